// Package metrics exposes sampling health as Prometheus collectors.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Uranury/thermohygrometer/sampler"
	"github.com/Uranury/thermohygrometer/sensors"
)

// Read outcomes used as the "result" label.
const (
	ResultOK       = "ok"
	ResultTimeout  = "timeout"
	ResultChecksum = "checksum"
	ResultError    = "error"
)

type Metrics struct {
	CyclesTotal    prometheus.Counter
	OverrunsTotal  prometheus.Counter
	CycleDuration  prometheus.Histogram
	ReadsTotal     *prometheus.CounterVec
	StorageErrors  prometheus.Counter
	DisplayErrors  prometheus.Counter
	Temperature    *prometheus.GaugeVec
	Humidity       *prometheus.GaugeVec
	LastCycleEpoch prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		CyclesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "thermohygrometer_cycles_total",
			Help: "Total number of sampling cycles",
		}),
		OverrunsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "thermohygrometer_overruns_total",
			Help: "Cycles whose processing time met or exceeded the interval",
		}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "thermohygrometer_cycle_duration_seconds",
			Help:    "Time from cycle start to the end of reporting",
			Buckets: []float64{.05, .1, .25, .5, 1, 2, 5, 10},
		}),
		ReadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "thermohygrometer_sensor_reads_total",
			Help: "Sensor read attempts by outcome",
		}, []string{"sensor", "result"}),
		StorageErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "thermohygrometer_storage_errors_total",
			Help: "Cycles that could not be stored",
		}),
		DisplayErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "thermohygrometer_display_errors_total",
			Help: "Cycles that could not be shown on the LCD",
		}),
		Temperature: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "thermohygrometer_temperature_celsius",
			Help: "Last valid temperature per sensor",
		}, []string{"sensor"}),
		Humidity: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "thermohygrometer_humidity_percent",
			Help: "Last valid relative humidity per sensor",
		}, []string{"sensor"}),
		LastCycleEpoch: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "thermohygrometer_last_cycle_timestamp_seconds",
			Help: "Unix time of the last reported cycle",
		}),
	}
	for _, c := range []prometheus.Collector{
		m.CyclesTotal, m.OverrunsTotal, m.CycleDuration, m.ReadsTotal,
		m.StorageErrors, m.DisplayErrors, m.Temperature, m.Humidity, m.LastCycleEpoch,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ObserveReading counts one read attempt and updates the value gauges.
func (m *Metrics) ObserveReading(r sensors.Reading) {
	m.ReadsTotal.WithLabelValues(r.Label, Result(r)).Inc()
	if temp, ok := r.Temperature(); ok {
		m.Temperature.WithLabelValues(r.Label).Set(temp)
	}
	if hum, ok := r.Humidity(); ok {
		m.Humidity.WithLabelValues(r.Label).Set(hum)
	}
}

// ObserveCycle records a finished cycle. It is meant as the scheduler's
// OnComplete hook.
func (m *Metrics) ObserveCycle(c sampler.Cycle) {
	m.CyclesTotal.Inc()
	m.CycleDuration.Observe(c.Elapsed.Seconds())
	m.LastCycleEpoch.Set(float64(c.Timestamp.Unix()))
	if c.Overrun {
		m.OverrunsTotal.Inc()
	}
}

// Result classifies a reading for the result label.
func Result(r sensors.Reading) string {
	switch {
	case r.Valid:
		return ResultOK
	case errors.Is(r.Err, sensors.ErrTimeout):
		return ResultTimeout
	case errors.Is(r.Err, sensors.ErrChecksumMismatch):
		return ResultChecksum
	default:
		return ResultError
	}
}
