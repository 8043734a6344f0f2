package sensors

import (
	"time"

	"periph.io/x/conn/v3/physic"
)

// Reading is the outcome of one sampling attempt on one sensor.
// Temperature and humidity are fixed-point tenths and only meaningful when Valid.
type Reading struct {
	SensorID          string    `json:"sensor_id"`
	Label             string    `json:"label"`
	TemperatureTenths int       `json:"temperature_tenths"`
	HumidityTenths    int       `json:"humidity_tenths"`
	Valid             bool      `json:"valid"`
	Timestamp         time.Time `json:"timestamp"`
	Err               error     `json:"-"`
}

// Temperature returns degrees Celsius, or false when the reading is invalid.
func (r Reading) Temperature() (float64, bool) {
	if !r.Valid {
		return 0, false
	}
	return float64(r.TemperatureTenths) / 10, true
}

// Humidity returns relative humidity in percent, or false when the reading is invalid.
func (r Reading) Humidity() (float64, bool) {
	if !r.Valid {
		return 0, false
	}
	return float64(r.HumidityTenths) / 10, true
}

// Env converts a valid reading to periph units.
func (r Reading) Env() (physic.Env, bool) {
	if !r.Valid {
		return physic.Env{}, false
	}
	return physic.Env{
		Temperature: physic.ZeroCelsius + physic.Temperature(r.TemperatureTenths)*100*physic.MilliKelvin,
		Humidity:    physic.RelativeHumidity(r.HumidityTenths) * physic.MilliRH,
	}, true
}

// Sensor interface that all sensors must implement.
// Read never fails: problems are reported through Reading.Valid and Reading.Err.
type Sensor interface {
	Read() Reading
	ID() string
	Label() string
}
