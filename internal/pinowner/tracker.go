// Package pinowner enforces spec's pin-exclusivity invariant: a GPIO pin is
// unused, owned by the PWM Registry as an output, or owned by the Encoder
// Pipeline as an input — never both at once. The PWM Registry and Encoder
// Pipeline each hold a reference to one shared Tracker so a pin claimed by
// one immediately shows up to the other.
package pinowner

import (
	"sync"

	"github.com/edgeflow/motorctl/internal/ctrlerr"
)

// Kind identifies which component owns a pin.
type Kind int

const (
	OwnerPWM Kind = iota
	OwnerEncoder
)

// Tracker is the shared pin-ownership map. Safe for concurrent use.
type Tracker struct {
	mu    sync.Mutex
	owner map[int]Kind
}

// New creates an empty Tracker.
func New() *Tracker {
	return &Tracker{owner: make(map[int]Kind)}
}

// Claim registers pin as owned by kind. Returns a ConflictError if the pin
// is already owned by a different kind; re-claiming by the same kind is a
// no-op (idempotent, matching the Registry's own idempotent `set`).
func (t *Tracker) Claim(pin int, kind Kind) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if existing, ok := t.owner[pin]; ok && existing != kind {
		return ctrlerr.Conflictf("pin %d already in use by %s", pin, existing)
	}
	t.owner[pin] = kind
	return nil
}

// Release frees pin regardless of which kind owned it.
func (t *Tracker) Release(pin int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.owner, pin)
}

func (k Kind) String() string {
	switch k {
	case OwnerPWM:
		return "pwm output"
	case OwnerEncoder:
		return "encoder input"
	default:
		return "unknown"
	}
}
