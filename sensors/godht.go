package sensors

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/MichaelS11/go-dht"
)

type humidityTemperatureReader interface {
	Read() (humidity float64, temperature float64, err error)
}

// GoDHT reads a DHT22 through github.com/MichaelS11/go-dht instead of the
// in-repo decoder. It performs a single attempt per Read.
type GoDHT struct {
	pin    string
	label  string
	dht    humidityTemperatureReader
	logger *slog.Logger
}

// InitGoDHT initialises the periph host drivers go-dht relies on.
func InitGoDHT() error {
	return dht.HostInit()
}

func NewGoDHT(pin, label string, logger *slog.Logger) (*GoDHT, error) {
	d, err := dht.NewDHT(pin, dht.Celsius, "dht22")
	if err != nil {
		return nil, fmt.Errorf("go-dht %s: %w", pin, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GoDHT{
		pin:    pin,
		label:  label,
		dht:    d,
		logger: logger.With("sensor", label, "pin", pin),
	}, nil
}

func (g *GoDHT) ID() string    { return g.pin }
func (g *GoDHT) Label() string { return g.label }

func (g *GoDHT) Read() Reading {
	humidity, temperature, err := g.dht.Read()
	if err != nil {
		g.logger.Warn("sensor read failed", "err", err)
		return Reading{SensorID: g.pin, Label: g.label, Err: fmt.Errorf("go-dht: %w", err)}
	}
	return Reading{
		SensorID:          g.pin,
		Label:             g.label,
		TemperatureTenths: int(math.Round(temperature * 10)),
		HumidityTenths:    int(math.Round(humidity * 10)),
		Valid:             true,
	}
}
