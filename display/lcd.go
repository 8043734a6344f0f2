// Package display drives a 16x2 HD44780 character LCD behind a PCF8574 I2C
// backpack and renders sensor readings onto it.
//
// The backpack wires the LCD in 4-bit mode: every byte goes out as two
// nibbles in the high half of the expander port, with RS on P0, EN on P2 and
// the backlight on P3.
package display

import (
	"errors"
	"fmt"
	"time"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/i2c"
)

// DefaultAddress is the usual PCF8574A backpack address.
const DefaultAddress = 0x3f

// Width is the number of characters per line.
const Width = 16

const (
	modeCommand = 0x00
	modeData    = 0x01

	enable    = 0x04
	backlight = 0x08

	cmdClear = 0x01
	cmdHome  = 0x02
)

var lineAddress = []byte{0x80, 0xC0}

// Display is what the reporting step writes readings to.
type Display interface {
	Clear() error
	WriteLine(line int, text string) error
}

var (
	ErrInit = errors.New("lcd: init failed")
	ErrLine = errors.New("lcd: line out of range")
)

type LCD struct {
	dev   conn.Conn
	sleep func(time.Duration)
}

// NewI2C opens the LCD at addr on bus and initialises it.
func NewI2C(bus i2c.Bus, addr uint16) (*LCD, error) {
	return New(&i2c.Dev{Addr: addr, Bus: bus}, time.Sleep)
}

// New initialises the LCD behind dev. sleep paces the enable strobe; pass
// time.Sleep for real hardware.
func New(dev conn.Conn, sleep func(time.Duration)) (*LCD, error) {
	if sleep == nil {
		sleep = time.Sleep
	}
	l := &LCD{dev: dev, sleep: sleep}
	for _, cmd := range []byte{
		0x33, 0x32, // reset into 4-bit mode
		0x06,       // entry mode: increment, no shift
		0x0C,       // display on, cursor off, blink off
		0x28,       // 4-bit, 2 lines, 5x8 font
		cmdClear,
	} {
		if err := l.send(cmd, modeCommand); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInit, err)
		}
	}
	l.sleep(500 * time.Microsecond)
	return l, nil
}

// Lines returns the number of display lines.
func (l *LCD) Lines() int { return len(lineAddress) }

func (l *LCD) Clear() error {
	if err := l.send(cmdClear, modeCommand); err != nil {
		return err
	}
	return l.send(cmdHome, modeCommand)
}

// WriteLine moves to the start of line and writes text, cut to Width.
// Characters outside printable ASCII are shown as '?'.
func (l *LCD) WriteLine(line int, text string) error {
	if line < 0 || line >= len(lineAddress) {
		return fmt.Errorf("%w: %d", ErrLine, line)
	}
	if err := l.send(lineAddress[line], modeCommand); err != nil {
		return err
	}
	n := 0
	for _, r := range text {
		if n == Width {
			break
		}
		c := byte('?')
		if r >= 0x20 && r < 0x7F {
			c = byte(r)
		}
		if err := l.send(c, modeData); err != nil {
			return err
		}
		n++
	}
	return nil
}

func (l *LCD) send(bits, mode byte) error {
	high := mode | bits&0xF0 | backlight
	low := mode | (bits<<4)&0xF0 | backlight
	if err := l.write(high); err != nil {
		return err
	}
	if err := l.strobe(high); err != nil {
		return err
	}
	if err := l.write(low); err != nil {
		return err
	}
	return l.strobe(low)
}

func (l *LCD) strobe(bits byte) error {
	l.sleep(500 * time.Microsecond)
	if err := l.write(bits | enable); err != nil {
		return err
	}
	l.sleep(500 * time.Microsecond)
	if err := l.write(bits &^ enable); err != nil {
		return err
	}
	l.sleep(500 * time.Microsecond)
	return nil
}

func (l *LCD) write(b byte) error {
	return l.dev.Tx([]byte{b}, nil)
}
