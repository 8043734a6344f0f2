// Command thermohygrometer samples DHT22 sensors on GPIO pins at a fixed
// interval, shows the readings on an I2C character LCD and appends every cycle
// to a local SQLite table.
//
// Usage:
//
//	thermohygrometer [-env .env] [-once]
//
// Configuration comes from the environment; see config.go for the keys.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"github.com/Uranury/thermohygrometer/display"
	"github.com/Uranury/thermohygrometer/live"
	"github.com/Uranury/thermohygrometer/metrics"
	"github.com/Uranury/thermohygrometer/publish"
	"github.com/Uranury/thermohygrometer/report"
	"github.com/Uranury/thermohygrometer/sampler"
	"github.com/Uranury/thermohygrometer/sensors"
	"github.com/Uranury/thermohygrometer/storage"
)

func main() {
	envFile := flag.String("env", ".env", "env file to load before reading the environment")
	once := flag.Bool("once", false, "run a single cycle and exit")
	flag.Parse()

	envErr := godotenv.Load(*envFile)

	cfg, err := LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	logger := newLogger(os.Stdout, cfg.LogLevel)
	if envErr != nil {
		logger.Info("No .env file found, using environment variables", "file", *envFile)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, *once); err != nil {
		logger.Error("exiting", "err", err)
		stop()
		os.Exit(1)
	}
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	// Libraries that still use the standard logger end up in the same stream.
	log.SetOutput(w)
	return logger
}

func run(ctx context.Context, cfg Config, logger *slog.Logger, once bool) error {
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("periph host init: %w", err)
	}

	ss, err := openSensors(cfg, logger)
	if err != nil {
		return err
	}

	var (
		disp  display.Display
		lines int
	)
	if cfg.LCDEnabled {
		bus, err := i2creg.Open(cfg.LCDBus)
		if err != nil {
			return fmt.Errorf("%w: open i2c bus %q: %v", display.ErrInit, cfg.LCDBus, err)
		}
		defer bus.Close()
		lcd, err := display.NewI2C(bus, cfg.LCDAddr)
		if err != nil {
			return err
		}
		disp, lines = lcd, lcd.Lines()
		logger.Info("lcd ready", "bus", bus.String(), "addr", fmt.Sprintf("%#x", cfg.LCDAddr))
	}

	db, err := storage.OpenSQLite(ctx, cfg.DBPath, cfg.Labels())
	if err != nil {
		return err
	}
	stores := storage.Multi{db}
	if cfg.InfluxURL != "" {
		stores = append(stores, storage.NewInflux(cfg.InfluxURL, cfg.InfluxToken, cfg.InfluxOrg, cfg.InfluxBucket, logger))
		logger.Info("mirroring to influxdb", "url", cfg.InfluxURL, "bucket", cfg.InfluxBucket)
	}
	defer stores.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New(reg)
	if err != nil {
		return err
	}

	hub := live.NewHub(logger)
	feeds := []sampler.Sink{hub}
	if cfg.MQTTBroker != "" {
		pub, err := publish.Connect(cfg.MQTTBroker, cfg.MQTTClientID, cfg.MQTTTopic, logger)
		if err != nil {
			// The broker is optional; sampling must not depend on it.
			logger.Error("mqtt disabled", "err", err)
		} else {
			defer pub.Close()
			feeds = append(feeds, pub)
		}
	}

	rep := report.New(report.Options{
		Display: disp,
		Lines:   lines,
		Store:   stores,
		Metrics: m,
		Feeds:   feeds,
		Logger:  logger,
	})
	sched, err := sampler.New(sampler.Config{
		Interval:   cfg.Interval,
		OnComplete: m.ObserveCycle,
	}, ss, rep, logger)
	if err != nil {
		return err
	}

	if cfg.HTTPAddr != "" && !once {
		gin.SetMode(gin.ReleaseMode)
		srv := &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           live.NewRouter(hub, db, reg, logger),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("http server starting", "addr", cfg.HTTPAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server failed", "err", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	logger.Info("monitoring sensors", "count", len(ss), "driver", cfg.Driver)
	for _, s := range ss {
		logger.Info("sensor", "label", s.Label(), "pin", s.ID())
	}

	if once {
		sched.RunCycle(ctx)
		return nil
	}
	if err := sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func openSensors(cfg Config, logger *slog.Logger) ([]sensors.Sensor, error) {
	if cfg.Driver == DriverGoDHT {
		if err := sensors.InitGoDHT(); err != nil {
			return nil, fmt.Errorf("go-dht host init: %w", err)
		}
	}

	out := make([]sensors.Sensor, 0, len(cfg.Sensors))
	for _, sc := range cfg.Sensors {
		switch cfg.Driver {
		case DriverGoDHT:
			s, err := sensors.NewGoDHT(sc.Pin, sc.Label, logger)
			if err != nil {
				return nil, err
			}
			out = append(out, s)
		default:
			pin := gpioreg.ByName(sc.Pin)
			if pin == nil {
				return nil, fmt.Errorf("%w: no GPIO named %q for %s", sensors.ErrPin, sc.Pin, sc.Label)
			}
			out = append(out, sensors.NewDHT22(sc.Pin, sc.Label, pin, cfg.BitThreshold, logger))
		}
	}
	return out, nil
}
