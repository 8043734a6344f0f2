package sampler

import (
	"time"

	"github.com/google/uuid"
)

// Summary is the JSON view of a cycle shared by the live feed and MQTT.
// Invalid readings carry null values rather than zeros.
type Summary struct {
	Cycle     uuid.UUID       `json:"cycle"`
	Timestamp time.Time       `json:"timestamp"`
	Sensors   []SensorSummary `json:"sensors"`
}

type SensorSummary struct {
	Label       string   `json:"label"`
	Pin         string   `json:"pin"`
	Valid       bool     `json:"valid"`
	Temperature *float64 `json:"temperature"`
	Humidity    *float64 `json:"humidity"`
	Error       string   `json:"error,omitempty"`
}

func (c Cycle) Summary() Summary {
	s := Summary{Cycle: c.ID, Timestamp: c.Timestamp, Sensors: make([]SensorSummary, 0, len(c.Readings))}
	for _, r := range c.Readings {
		ss := SensorSummary{Label: r.Label, Pin: r.SensorID, Valid: r.Valid}
		if temp, ok := r.Temperature(); ok {
			ss.Temperature = &temp
		}
		if hum, ok := r.Humidity(); ok {
			ss.Humidity = &hum
		}
		if r.Err != nil {
			ss.Error = r.Err.Error()
		}
		s.Sensors = append(s.Sensors, ss)
	}
	return s
}
