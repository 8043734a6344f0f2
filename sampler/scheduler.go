// Package sampler drives all configured sensors once per fixed interval.
//
// Every cycle fans out one goroutine per sensor, waits for all of them, stamps
// the readings with a single timestamp and hands the cycle to a Sink. The
// remainder of the interval is slept away; a cycle that used the whole
// interval is reported as an overrun and the next one starts immediately.
// Missed cycles are never caught up.
package sampler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Uranury/thermohygrometer/sensors"
)

var (
	ErrNoSensors   = errors.New("sampler: no sensors configured")
	ErrInterval    = errors.New("sampler: interval must be positive")
	ErrSensorPanic = errors.New("sampler: sensor panicked")
)

// Cycle is one scheduler iteration. Readings holds exactly one entry per
// configured sensor, in configuration order.
type Cycle struct {
	ID        uuid.UUID         `json:"id"`
	Start     time.Time         `json:"start"`
	Timestamp time.Time         `json:"timestamp"`
	Readings  []sensors.Reading `json:"readings"`
	Elapsed   time.Duration     `json:"elapsed"`
	Overrun   bool              `json:"overrun"`
}

// Sink receives every completed cycle. It runs on the scheduler goroutine and
// must not retain the Readings slice beyond the call unless it copies it.
type Sink interface {
	Report(ctx context.Context, c Cycle)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, c Cycle)

func (f SinkFunc) Report(ctx context.Context, c Cycle) { f(ctx, c) }

// Config controls scheduling. Zero hooks fall back to the wall clock.
type Config struct {
	Interval time.Duration
	// OnOverrun is called after a cycle that met or exceeded Interval.
	OnOverrun func(Cycle)
	// OnComplete is called after every cycle once Elapsed is known.
	OnComplete func(Cycle)
	Now        func() time.Time
	// Sleep waits for d or until ctx is done, returning ctx.Err() in that case.
	Sleep func(ctx context.Context, d time.Duration) error
}

type Scheduler struct {
	cfg     Config
	sensors []sensors.Sensor
	sink    Sink
	logger  *slog.Logger
}

func New(cfg Config, ss []sensors.Sensor, sink Sink, logger *slog.Logger) (*Scheduler, error) {
	if len(ss) == 0 {
		return nil, ErrNoSensors
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("%w: %s", ErrInterval, cfg.Interval)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleepContext
	}
	if logger == nil {
		logger = slog.Default()
	}
	if sink == nil {
		sink = SinkFunc(func(context.Context, Cycle) {})
	}
	return &Scheduler{cfg: cfg, sensors: ss, sink: sink, logger: logger}, nil
}

// Run performs cycles until ctx is cancelled and then returns ctx.Err().
// Cancellation is checked before each cycle and during the inter-cycle sleep;
// a decode already in flight runs to completion.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("sampling started", "sensors", len(s.sensors), "interval", s.cfg.Interval)
	for {
		if err := ctx.Err(); err != nil {
			s.logger.Info("sampling stopped")
			return err
		}

		c := s.RunCycle(ctx)
		if c.Overrun {
			continue
		}
		if err := s.cfg.Sleep(ctx, s.cfg.Interval-c.Elapsed); err != nil {
			s.logger.Info("sampling stopped")
			return err
		}
	}
}

// RunCycle samples every sensor once, reports the cycle and returns it. It does
// not sleep. The sink sees ctx without its cancellation, so a cycle that has
// started is always stored even if shutdown is requested meanwhile.
func (s *Scheduler) RunCycle(ctx context.Context) Cycle {
	c := Cycle{ID: uuid.New(), Start: s.cfg.Now()}

	c.Readings = s.sample()
	c.Timestamp = s.cfg.Now()
	for i := range c.Readings {
		c.Readings[i].Timestamp = c.Timestamp
	}

	s.sink.Report(context.WithoutCancel(ctx), c)

	c.Elapsed = s.cfg.Now().Sub(c.Start)
	if c.Elapsed >= s.cfg.Interval {
		c.Overrun = true
		s.logger.Warn("cycle overran interval, starting next cycle immediately",
			"cycle", c.ID, "elapsed", c.Elapsed, "interval", s.cfg.Interval)
		if s.cfg.OnOverrun != nil {
			s.cfg.OnOverrun(c)
		}
	} else {
		s.logger.Debug("cycle complete", "cycle", c.ID, "elapsed", c.Elapsed)
	}
	if s.cfg.OnComplete != nil {
		s.cfg.OnComplete(c)
	}
	return c
}

func (s *Scheduler) sample() []sensors.Reading {
	readings := make([]sensors.Reading, len(s.sensors))
	var wg sync.WaitGroup
	for i, sn := range s.sensors {
		wg.Add(1)
		go func(i int, sn sensors.Sensor) {
			defer wg.Done()
			readings[i] = s.safeRead(sn)
		}(i, sn)
	}
	wg.Wait()
	return readings
}

// safeRead turns a panicking sensor into an invalid reading so it cannot take
// the other sensors or the loop down with it.
func (s *Scheduler) safeRead(sn sensors.Sensor) (r sensors.Reading) {
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error("sensor panicked", "sensor", sn.Label(), "panic", rec)
			r = sensors.Reading{
				SensorID: sn.ID(),
				Label:    sn.Label(),
				Err:      fmt.Errorf("%w: %v", ErrSensorPanic, rec),
			}
		}
	}()
	return sn.Read()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
