// Package report is the sink the scheduler hands each cycle to. It writes the
// cycle to the LCD, the store and any extra feeds, and logs a summary.
//
// Only the scheduler goroutine calls Report, so the display and store handles
// are never touched concurrently. Display and storage failures are logged and
// the cycle carries on; nothing is retried or re-queued.
package report

import (
	"context"
	"log/slog"

	"github.com/Uranury/thermohygrometer/display"
	"github.com/Uranury/thermohygrometer/metrics"
	"github.com/Uranury/thermohygrometer/sampler"
	"github.com/Uranury/thermohygrometer/storage"
)

type Reporter struct {
	display display.Display
	lines   int
	store   storage.Store
	metrics *metrics.Metrics
	feeds   []sampler.Sink
	logger  *slog.Logger
}

// Options lists the outputs. Nil outputs are skipped.
type Options struct {
	Display display.Display
	// Lines is how many readings fit on the display.
	Lines   int
	Store   storage.Store
	Metrics *metrics.Metrics
	Feeds   []sampler.Sink
	Logger  *slog.Logger
}

func New(o Options) *Reporter {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Lines <= 0 {
		o.Lines = 2
	}
	return &Reporter{
		display: o.Display,
		lines:   o.Lines,
		store:   o.Store,
		metrics: o.Metrics,
		feeds:   o.Feeds,
		logger:  o.Logger,
	}
}

func (r *Reporter) Report(ctx context.Context, c sampler.Cycle) {
	logger := r.logger.With("cycle", c.ID)

	for _, rd := range c.Readings {
		if temp, ok := rd.Temperature(); ok {
			hum, _ := rd.Humidity()
			logger.Info("reading", "sensor", rd.Label, "temperature", temp, "humidity", hum)
		} else {
			logger.Info("reading", "sensor", rd.Label, "error", rd.Err)
		}
		if r.metrics != nil {
			r.metrics.ObserveReading(rd)
		}
	}

	if r.display != nil {
		if err := display.Show(r.display, c.Readings, r.lines); err != nil {
			logger.Error("display write failed", "err", err)
			if r.metrics != nil {
				r.metrics.DisplayErrors.Inc()
			}
		}
	}

	if r.store != nil {
		if err := r.store.Append(ctx, c.Timestamp, c.Readings); err != nil {
			logger.Error("storage write failed", "err", err)
			if r.metrics != nil {
				r.metrics.StorageErrors.Inc()
			}
		} else {
			logger.Debug("cycle stored")
		}
	}

	for _, f := range r.feeds {
		f.Report(ctx, c)
	}
}
