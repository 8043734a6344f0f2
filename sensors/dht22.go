package sensors

import (
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"periph.io/x/conn/v3/gpio"
)

// Protocol timing defaults. Limits are in polls of roughly one microsecond.
const (
	DefaultThreshold      = 30
	DefaultHandshakeLimit = 200
	DefaultBitLimit       = 1000
	DefaultWakeHold       = 18 * time.Millisecond
)

// Frame is the 5-byte payload of one DHT22 transmission:
// humidity hi/lo, temperature hi/lo, checksum.
type Frame [5]byte

// Checksum is the low byte of the sum of the four data bytes.
func (f Frame) Checksum() byte {
	return f[0] + f[1] + f[2] + f[3]
}

// Decode validates the checksum and returns humidity and temperature in tenths.
func (f Frame) Decode() (humidityTenths, temperatureTenths int, err error) {
	if f.Checksum() != f[4] {
		return 0, 0, fmt.Errorf("%w: got %#02x, want %#02x", ErrChecksumMismatch, f[4], f.Checksum())
	}
	humidityTenths = int(f[0])<<8 | int(f[1])
	temperatureTenths = int(f[2])<<8 | int(f[3])
	return humidityTenths, temperatureTenths, nil
}

// DHT22 bit-bangs the DHT22 single-wire protocol on a GPIO line.
// It keeps no state between reads.
type DHT22 struct {
	id    string
	label string
	line  Line

	// Threshold is the high-phase width, in microseconds, above which a bit is 1.
	Threshold      int
	HandshakeLimit int
	BitLimit       int
	WakeHold       time.Duration

	Timer PulseTimer
	Sleep func(time.Duration)

	logger *slog.Logger
}

// NewDHT22 returns a decoder for the sensor wired to line.
func NewDHT22(id, label string, line Line, threshold int, logger *slog.Logger) *DHT22 {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DHT22{
		id:             id,
		label:          label,
		line:           line,
		Threshold:      threshold,
		HandshakeLimit: DefaultHandshakeLimit,
		BitLimit:       DefaultBitLimit,
		WakeHold:       DefaultWakeHold,
		Sleep:          time.Sleep,
		logger:         logger.With("sensor", label, "pin", id),
	}
}

func (d *DHT22) ID() string    { return d.id }
func (d *DHT22) Label() string { return d.label }

// Read performs one wake/handshake/40-bit exchange. Failures yield an invalid
// reading and are logged; partial frames are dropped.
func (d *DHT22) Read() Reading {
	r := Reading{SensorID: d.id, Label: d.label}

	frame, err := d.readFrame()
	if err == nil {
		r.HumidityTenths, r.TemperatureTenths, err = frame.Decode()
	}
	if err != nil {
		d.logger.Warn("sensor read failed", "err", err)
		return Reading{SensorID: d.id, Label: d.label, Err: err}
	}
	r.Valid = true
	return r
}

func (d *DHT22) readFrame() (Frame, error) {
	var f Frame

	// The bit slots are tens of microseconds wide; keep the goroutine on one thread.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if err := d.line.Out(gpio.Low); err != nil {
		return f, fmt.Errorf("%w: drive low: %v", ErrPin, err)
	}
	d.Sleep(d.WakeHold)
	if err := d.line.In(gpio.PullUp, gpio.NoEdge); err != nil {
		return f, fmt.Errorf("%w: release: %v", ErrPin, err)
	}

	for _, level := range []gpio.Level{gpio.High, gpio.Low, gpio.High} {
		if _, err := d.Timer.WaitWhile(d.line, level, d.HandshakeLimit); err != nil {
			return f, ErrHandshakeTimeout
		}
	}

	for i := 0; i < len(f)*8; i++ {
		if _, err := d.Timer.WaitWhile(d.line, gpio.Low, d.BitLimit); err != nil {
			return Frame{}, fmt.Errorf("%w: bit %d low phase", ErrBitTimeout, i)
		}
		width, err := d.Timer.WaitWhile(d.line, gpio.High, d.BitLimit)
		if err != nil {
			return Frame{}, fmt.Errorf("%w: bit %d high phase", ErrBitTimeout, i)
		}
		f[i/8] <<= 1
		if width > d.Threshold {
			f[i/8] |= 1
		}
	}
	return f, nil
}
