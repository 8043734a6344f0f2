package storage

import (
	"context"
	"log/slog"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/Uranury/thermohygrometer/sensors"
)

const measurement = "sensor_data"

type pointWriter interface {
	WritePoint(p *write.Point)
	Flush()
}

// Influx mirrors cycles to InfluxDB through the client's batching write API.
// Writes are asynchronous; failures surface in the log.
type Influx struct {
	client influxdb2.Client
	writer pointWriter
}

func NewInflux(url, token, org, bucket string, logger *slog.Logger) *Influx {
	if logger == nil {
		logger = slog.Default()
	}
	client := influxdb2.NewClient(url, token)
	writeAPI := client.WriteAPI(org, bucket)
	go func() {
		for err := range writeAPI.Errors() {
			logger.Error("influx write failed", "err", err)
		}
	}()
	return &Influx{client: client, writer: writeAPI}
}

// Append writes one point per reading, tagged with the sensor label. Invalid
// readings carry only valid=false.
func (i *Influx) Append(_ context.Context, ts time.Time, readings []sensors.Reading) error {
	for _, r := range readings {
		i.writer.WritePoint(point(ts, r))
	}
	return nil
}

func point(ts time.Time, r sensors.Reading) *write.Point {
	p := influxdb2.NewPointWithMeasurement(measurement).
		AddTag("sensor", r.Label).
		AddTag("pin", r.SensorID).
		AddField("valid", r.Valid).
		SetTime(ts)
	if temp, ok := r.Temperature(); ok {
		p.AddField("temperature", temp)
	}
	if hum, ok := r.Humidity(); ok {
		p.AddField("humidity", hum)
	}
	return p
}

func (i *Influx) Close() error {
	i.writer.Flush()
	if i.client != nil {
		i.client.Close()
	}
	return nil
}
