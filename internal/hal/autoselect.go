package hal

// NewAutoHAL probes the gpiocdev backend first (Linux character device, Pi
// 4/5 safe), falls back to the legacy rpio /dev/mem backend, and finally
// falls back to the in-memory simulation. The returned HAL's Backend()
// reports which one won so status queries can surface it.
func NewAutoHAL() HAL {
	if h, err := NewGpiocdevHAL(); err == nil {
		return h
	}
	if h, err := NewRpioHAL(); err == nil {
		return h
	}
	return NewMockHAL()
}
