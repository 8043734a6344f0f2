package live

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Uranury/thermohygrometer/sampler"
	"github.com/Uranury/thermohygrometer/sensors"
	"github.com/Uranury/thermohygrometer/storage"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testCycle() sampler.Cycle {
	return sampler.Cycle{
		ID:        uuid.New(),
		Timestamp: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Readings: []sensors.Reading{
			{SensorID: "GPIO27", Label: "REF", Valid: true, TemperatureTenths: 213, HumidityTenths: 455},
			{SensorID: "GPIO17", Label: "FRZ", Err: sensors.ErrHandshakeTimeout},
		},
	}
}

type fakeHistory struct {
	rows []storage.Row
	err  error
	n    int
}

func (f *fakeHistory) Latest(_ context.Context, n int) ([]storage.Row, error) {
	f.n = n
	return f.rows, f.err
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestRouter_Latest(t *testing.T) {
	hub := NewHub(nil)
	r := NewRouter(hub, nil, nil, nil)

	assert.Equal(t, http.StatusNotFound, get(t, r, "/api/latest").Code)

	c := testCycle()
	hub.Report(context.Background(), c)

	w := get(t, r, "/api/latest")
	require.Equal(t, http.StatusOK, w.Code)
	var got sampler.Summary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, c.ID, got.Cycle)
	require.Len(t, got.Sensors, 2)
	assert.Nil(t, got.Sensors[1].Temperature)
}

func TestRouter_History(t *testing.T) {
	hist := &fakeHistory{rows: []storage.Row{{ID: 7, Timestamp: "2024/05/01 12:00:00"}}}
	r := NewRouter(NewHub(nil), hist, nil, nil)

	w := get(t, r, "/api/history?limit=10000")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, maxHistory, hist.n)
	assert.Contains(t, w.Body.String(), `"id":7`)

	assert.Equal(t, http.StatusBadRequest, get(t, r, "/api/history?limit=zero").Code)

	hist.err = errors.New("locked")
	assert.Equal(t, http.StatusInternalServerError, get(t, r, "/api/history").Code)

	assert.Equal(t, http.StatusNotFound, get(t, NewRouter(NewHub(nil), nil, nil, nil), "/api/history").Code)
}

func TestRouter_IndexHealthMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_cycles_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()
	r := NewRouter(NewHub(nil), nil, reg, nil)

	w := get(t, r, "/")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "/ws")

	w = get(t, r, "/healthz")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","clients":0}`, w.Body.String())

	w = get(t, r, "/metrics")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "test_cycles_total 1")
}

func TestHub_BroadcastsToWebsocketClients(t *testing.T) {
	hub := NewHub(nil)
	srv := httptest.NewServer(NewRouter(hub, nil, nil, nil))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	c := testCycle()
	hub.Report(context.Background(), c)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got sampler.Summary
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, c.ID, got.Cycle)
	require.NotNil(t, got.Sensors[0].Temperature)
	assert.Equal(t, 21.3, *got.Sensors[0].Temperature)

	conn.Close()
	require.Eventually(t, func() bool { return hub.Clients() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHub_SlowClientIsDroppedWithoutBlocking(t *testing.T) {
	hub := NewHub(nil)
	stalled := &client{send: make(chan sampler.Summary, sendBuffer)}
	hub.clients[stalled] = true

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i <= sendBuffer; i++ {
			hub.Report(context.Background(), testCycle())
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Report blocked on a client that is not reading")
	}
	assert.Equal(t, 0, hub.Clients())

	queued := 0
	for range stalled.send {
		queued++
	}
	assert.Equal(t, sendBuffer, queued)
	_, ok := hub.Latest()
	assert.True(t, ok)
}
