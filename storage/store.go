// Package storage persists sampling cycles.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/Uranury/thermohygrometer/sensors"
)

// Store appends one row per cycle. Invalid readings are stored as absent
// values, never rejected.
type Store interface {
	Append(ctx context.Context, ts time.Time, readings []sensors.Reading) error
	Close() error
}

// Multi appends to every store and joins the errors. A failing store does not
// keep the others from receiving the row.
type Multi []Store

func (m Multi) Append(ctx context.Context, ts time.Time, readings []sensors.Reading) error {
	var errs []error
	for _, s := range m {
		if err := s.Append(ctx, ts, readings); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}
