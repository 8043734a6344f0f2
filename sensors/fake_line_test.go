package sensors

import (
	"errors"
	"time"

	"periph.io/x/conn/v3/gpio"
)

type segment struct {
	level gpio.Level
	polls int
}

// fakeLine replays a waveform. Time only moves when tick is called, which the
// tests install as PulseTimer.Delay, so every poll is exactly one microsecond.
type fakeLine struct {
	segs []segment
	idle gpio.Level
	now  int

	outs    []gpio.Level
	inputs  int
	outErr  error
	started bool
}

func (f *fakeLine) Out(l gpio.Level) error {
	if f.outErr != nil {
		return f.outErr
	}
	f.outs = append(f.outs, l)
	return nil
}

func (f *fakeLine) In(gpio.Pull, gpio.Edge) error {
	f.inputs++
	f.started = true
	f.now = 0
	return nil
}

func (f *fakeLine) Read() gpio.Level {
	if !f.started {
		return f.idle
	}
	t := f.now
	for _, s := range f.segs {
		if t < s.polls {
			return s.level
		}
		t -= s.polls
	}
	return f.idle
}

func (f *fakeLine) tick() { f.now++ }

// dhtWave renders frame as the sensor would send it, using zero and one as the
// high-phase widths of 0 and 1 bits.
func dhtWave(frame Frame, zero, one int) []segment {
	segs := []segment{
		{gpio.High, 30},
		{gpio.Low, 80},
		{gpio.High, 80},
	}
	for _, b := range frame {
		for i := 7; i >= 0; i-- {
			width := zero
			if b&(1<<i) != 0 {
				width = one
			}
			segs = append(segs, segment{gpio.Low, 50}, segment{gpio.High, width})
		}
	}
	return append(segs, segment{gpio.Low, 50})
}

func newTestDHT(line *fakeLine) *DHT22 {
	d := NewDHT22("GPIO27", "REF", line, DefaultThreshold, nil)
	d.Timer = PulseTimer{Delay: line.tick}
	d.Sleep = func(_ time.Duration) {}
	return d
}

var errFakePin = errors.New("fake pin failure")
