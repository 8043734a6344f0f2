package publish

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Uranury/thermohygrometer/sampler"
	"github.com/Uranury/thermohygrometer/sensors"
)

type doneToken struct{ err error }

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t doneToken) Error() error { return t.err }

type published struct {
	topic   string
	qos     byte
	payload []byte
}

// fakeClient embeds the interface so only the methods under test need bodies.
type fakeClient struct {
	mqtt.Client
	sent         []published
	err          error
	disconnected bool
}

func (f *fakeClient) Publish(topic string, qos byte, _ bool, payload interface{}) mqtt.Token {
	f.sent = append(f.sent, published{topic: topic, qos: qos, payload: payload.([]byte)})
	return doneToken{err: f.err}
}

func (f *fakeClient) Disconnect(uint) { f.disconnected = true }

func TestMQTT_Report(t *testing.T) {
	client := &fakeClient{}
	m := New(client, "home/thermo", nil)
	c := sampler.Cycle{
		ID:        uuid.New(),
		Timestamp: time.Now(),
		Readings: []sensors.Reading{
			{SensorID: "GPIO27", Label: "REF", Valid: true, TemperatureTenths: 213, HumidityTenths: 455},
			{SensorID: "GPIO17", Label: "FRZ"},
		},
	}

	m.Report(context.Background(), c)

	require.Len(t, client.sent, 1)
	assert.Equal(t, "home/thermo", client.sent[0].topic)
	assert.Zero(t, client.sent[0].qos)
	var got sampler.Summary
	require.NoError(t, json.Unmarshal(client.sent[0].payload, &got))
	assert.Equal(t, c.ID, got.Cycle)
	assert.Nil(t, got.Sensors[1].Humidity)

	m.Close()
	assert.True(t, client.disconnected)
}

func TestMQTT_ReportFailureIsNotFatal(t *testing.T) {
	client := &fakeClient{err: errors.New("not connected")}
	m := New(client, "t", nil)
	assert.NotPanics(t, func() { m.Report(context.Background(), sampler.Cycle{}) })
	assert.Len(t, client.sent, 1)
}
