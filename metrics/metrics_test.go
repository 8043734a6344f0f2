package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Uranury/thermohygrometer/sampler"
	"github.com/Uranury/thermohygrometer/sensors"
)

func TestResult(t *testing.T) {
	assert.Equal(t, ResultOK, Result(sensors.Reading{Valid: true}))
	assert.Equal(t, ResultTimeout, Result(sensors.Reading{Err: sensors.ErrBitTimeout}))
	assert.Equal(t, ResultTimeout, Result(sensors.Reading{Err: fmt.Errorf("wrapped: %w", sensors.ErrHandshakeTimeout)}))
	assert.Equal(t, ResultChecksum, Result(sensors.Reading{Err: sensors.ErrChecksumMismatch}))
	assert.Equal(t, ResultError, Result(sensors.Reading{Err: sensors.ErrPin}))
}

func TestObserveReading(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	m.ObserveReading(sensors.Reading{Label: "REF", Valid: true, TemperatureTenths: 213, HumidityTenths: 455})
	m.ObserveReading(sensors.Reading{Label: "FRZ", Err: sensors.ErrHandshakeTimeout})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReadsTotal.WithLabelValues("REF", ResultOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReadsTotal.WithLabelValues("FRZ", ResultTimeout)))
	assert.InDelta(t, 21.3, testutil.ToFloat64(m.Temperature.WithLabelValues("REF")), 1e-9)
	assert.Equal(t, 1, testutil.CollectAndCount(m.Temperature), "invalid readings leave no gauge")
}

func TestNew_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)
	_, err = New(reg)
	assert.Error(t, err)
}

func TestObserveCycle(t *testing.T) {
	m, err := New(prometheus.NewRegistry())
	require.NoError(t, err)
	ts := time.Unix(1714564800, 0)

	m.ObserveCycle(sampler.Cycle{Timestamp: ts, Elapsed: 800 * time.Millisecond})
	m.ObserveCycle(sampler.Cycle{Timestamp: ts.Add(6 * time.Second), Elapsed: 6 * time.Second, Overrun: true})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.CyclesTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OverrunsTotal))
	assert.Equal(t, float64(ts.Unix()+6), testutil.ToFloat64(m.LastCycleEpoch))
}
