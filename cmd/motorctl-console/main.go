// motorctl-console is a developer tool for boards wired with a UART debug
// console in addition to (or instead of) network access. It opens a serial
// port, reads line-delimited JSON controller-status records, and prints them
// to stdout in a readable form.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"go.bug.st/serial"
)

func main() {
	port := flag.String("port", "/dev/ttyUSB0", "serial port device path")
	baud := flag.Int("baud", 115200, "baud rate")
	raw := flag.Bool("raw", false, "print raw JSON lines instead of formatted output")
	flag.Parse()

	mode := &serial.Mode{
		BaudRate: *baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	p, err := serial.Open(*port, mode)
	if err != nil {
		log.Fatalf("motorctl-console: failed to open %s: %v", *port, err)
	}
	defer p.Close()

	if err := p.SetReadTimeout(time.Second); err != nil {
		log.Fatalf("motorctl-console: failed to set read timeout: %v", err)
	}

	fmt.Printf("motorctl-console: listening on %s at %d baud\n", *port, *baud)

	scanner := bufio.NewScanner(p)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if *raw {
			fmt.Println(string(line))
			continue
		}

		var status controllerStatus
		if err := json.Unmarshal(line, &status); err != nil {
			fmt.Fprintf(os.Stderr, "motorctl-console: skipping unparseable line: %v\n", err)
			continue
		}
		status.print()
	}
	if err := scanner.Err(); err != nil {
		log.Fatalf("motorctl-console: read error: %v", err)
	}
}

// controllerStatus mirrors rpmctl.ControllerStatus's JSON shape without
// importing the package, so this binary stays a standalone serial client.
type controllerStatus struct {
	Active     bool    `json:"Active"`
	TargetRPM  float64 `json:"TargetRPM"`
	CurrentRPM float64 `json:"CurrentRPM"`
	CurrentPWM int     `json:"CurrentPWM"`
	Error      float64 `json:"Error"`
	ControlPin int     `json:"ControlPin"`
	SensorID   int     `json:"SensorID"`
	WallMs     int64   `json:"WallMs"`
}

func (s controllerStatus) print() {
	state := "stopped"
	if s.Active {
		state = "active"
	}
	fmt.Printf("[pin %d sensor %d] %s target=%.1f current=%.1f pwm=%d error=%.2f\n",
		s.ControlPin, s.SensorID, state, s.TargetRPM, s.CurrentRPM, s.CurrentPWM, s.Error)
}
