package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Uranury/thermohygrometer/display"
	"github.com/Uranury/thermohygrometer/sensors"
)

const (
	DriverNative = "native"
	DriverGoDHT  = "go-dht"

	disabled = "off"
)

var ErrConfig = errors.New("invalid configuration")

type SensorConfig struct {
	Label string
	Pin   string
}

type Config struct {
	Sensors      []SensorConfig
	Interval     time.Duration
	BitThreshold int
	Driver       string

	LCDEnabled bool
	LCDBus     string
	LCDAddr    uint16

	DBPath string

	InfluxURL    string
	InfluxToken  string
	InfluxOrg    string
	InfluxBucket string

	MQTTBroker   string
	MQTTTopic    string
	MQTTClientID string

	HTTPAddr string
	LogLevel slog.Level
}

// LoadConfig reads the environment (after godotenv has filled it) and validates it.
func LoadConfig() (Config, error) {
	cfg := Config{
		Driver:       getEnv("DHT_DRIVER", DriverNative),
		LCDBus:       os.Getenv("LCD_BUS"),
		DBPath:       getEnv("DB_PATH", "ThermoHygrometer.db"),
		InfluxURL:    os.Getenv("INFLUX_URL"),
		InfluxToken:  os.Getenv("INFLUX_TOKEN"),
		InfluxOrg:    os.Getenv("INFLUX_ORG"),
		InfluxBucket: os.Getenv("INFLUX_BUCKET"),
		MQTTBroker:   os.Getenv("MQTT_BROKER"),
		MQTTTopic:    getEnv("MQTT_TOPIC", "thermohygrometer/cycles"),
		MQTTClientID: getEnv("MQTT_CLIENT_ID", "thermohygrometer"),
		HTTPAddr:     getEnv("HTTP_ADDR", ":8080"),
	}
	if cfg.HTTPAddr == disabled {
		cfg.HTTPAddr = ""
	}

	seconds, err := getEnvInt("INTERVAL_SECONDS", 5)
	if err != nil {
		return Config{}, err
	}
	cfg.Interval = time.Duration(seconds) * time.Second
	if cfg.BitThreshold, err = getEnvInt("BIT_THRESHOLD_US", sensors.DefaultThreshold); err != nil {
		return Config{}, err
	}
	if cfg.LCDEnabled, err = getEnvBool("LCD_ENABLED", true); err != nil {
		return Config{}, err
	}
	if cfg.Sensors, err = parseSensors(getEnv("SENSORS", "REF:GPIO27,FRZ:GPIO17")); err != nil {
		return Config{}, err
	}
	addr, err := strconv.ParseUint(getEnv("LCD_ADDR", fmt.Sprintf("%#x", display.DefaultAddress)), 0, 16)
	if err != nil {
		return Config{}, fmt.Errorf("%w: LCD_ADDR: %v", ErrConfig, err)
	}
	cfg.LCDAddr = uint16(addr)
	if err := cfg.LogLevel.UnmarshalText([]byte(getEnv("LOG_LEVEL", "info"))); err != nil {
		return Config{}, fmt.Errorf("%w: LOG_LEVEL: %v", ErrConfig, err)
	}

	if cfg.Interval <= 0 {
		return Config{}, fmt.Errorf("%w: INTERVAL_SECONDS must be positive", ErrConfig)
	}
	if cfg.BitThreshold <= 0 {
		return Config{}, fmt.Errorf("%w: BIT_THRESHOLD_US must be positive", ErrConfig)
	}
	if cfg.Driver != DriverNative && cfg.Driver != DriverGoDHT {
		return Config{}, fmt.Errorf("%w: DHT_DRIVER must be %q or %q", ErrConfig, DriverNative, DriverGoDHT)
	}
	return cfg, nil
}

// Labels returns sensor labels in display order.
func (c Config) Labels() []string {
	out := make([]string, len(c.Sensors))
	for i, s := range c.Sensors {
		out[i] = s.Label
	}
	return out
}

// parseSensors reads "LABEL:PIN,LABEL:PIN".
func parseSensors(raw string) ([]SensorConfig, error) {
	var out []SensorConfig
	seen := map[string]bool{}
	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		label, pin, ok := strings.Cut(item, ":")
		label, pin = strings.TrimSpace(label), strings.TrimSpace(pin)
		if !ok || label == "" || pin == "" {
			return nil, fmt.Errorf("%w: SENSORS entry %q, want LABEL:PIN", ErrConfig, item)
		}
		if seen[label] {
			return nil, fmt.Errorf("%w: SENSORS label %q repeated", ErrConfig, label)
		}
		seen[label] = true
		out = append(out, SensorConfig{Label: label, Pin: pin})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: SENSORS is empty", ErrConfig)
	}
	return out, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns defaultValue when key is unset and ErrConfig when it is
// set but not an integer.
func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q is not an integer", ErrConfig, key, value)
	}
	return parsed, nil
}

func getEnvBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%w: %s=%q is not a boolean", ErrConfig, key, value)
	}
	return parsed, nil
}
