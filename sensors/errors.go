package sensors

import (
	"errors"
	"fmt"
)

// Errors reported through Reading.Err. None of them is fatal to the caller.
var (
	ErrTimeout          = errors.New("dht22: timeout")
	ErrHandshakeTimeout = fmt.Errorf("handshake: %w", ErrTimeout)
	ErrBitTimeout       = fmt.Errorf("bit slot: %w", ErrTimeout)
	ErrChecksumMismatch = errors.New("dht22: checksum mismatch")
	ErrPin              = errors.New("dht22: pin error")
)
