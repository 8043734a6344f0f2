package sensors

import (
	"time"

	"periph.io/x/conn/v3/gpio"
)

// Line is the part of a GPIO pin the single-wire protocol needs.
// gpio.PinIO satisfies it.
type Line interface {
	Out(l gpio.Level) error
	In(pull gpio.Pull, edge gpio.Edge) error
	Read() gpio.Level
}

// PulseTimer measures how long a line holds a level, in polls of roughly one
// microsecond each.
type PulseTimer struct {
	// Delay runs between two polls. Defaults to a busy spin of one microsecond.
	Delay func()
}

// WaitWhile polls line until it leaves level and returns the number of polls
// the level was held. It gives up with ErrTimeout once limit polls have elapsed.
func (t PulseTimer) WaitWhile(line Line, level gpio.Level, limit int) (int, error) {
	delay := t.Delay
	if delay == nil {
		delay = spinMicrosecond
	}
	n := 0
	for line.Read() == level {
		if n >= limit {
			return n, ErrTimeout
		}
		delay()
		n++
	}
	return n, nil
}

// spinMicrosecond busy-waits on the monotonic clock. time.Sleep cannot go below
// scheduler granularity, which is far coarser than a bit slot.
func spinMicrosecond() {
	start := time.Now()
	for time.Since(start) < time.Microsecond {
	}
}
