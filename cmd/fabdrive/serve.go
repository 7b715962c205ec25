package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/openfab/fabdrive/config"
	"github.com/openfab/fabdrive/device"
	"github.com/openfab/fabdrive/logger"
	"github.com/openfab/fabdrive/notify"
	"github.com/openfab/fabdrive/store"
	"github.com/openfab/fabdrive/transport"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the device control engine",
	Long: `Loads the configuration, creates the configured devices, discovers those
marked for discovery, and serves the websocket event stream and metrics.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		path, err := cmd.Flags().GetString("config")
		if err != nil {
			return err
		}

		cfg, err := config.Load(path)
		if err != nil {
			return err
		}

		return serve(cmd.Context(), cfg)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger.SetLevel(cfg.Level())
	l := logger.GetLogger()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Notification boundary: websocket hub always, MQTT when configured.
	hub := notify.NewHub(l)
	defer hub.Close()

	notifiers := []notify.Notifier{hub}
	if cfg.MQTT.Enabled {
		mqtt, err := notify.NewMQTTPublisher(cfg.MQTT.Broker, cfg.MQTT.ClientID, cfg.MQTT.TopicPrefix, l)
		if err != nil {
			return err
		}
		defer mqtt.Close()
		notifiers = append(notifiers, mqtt)
	}
	notifier := notify.Multi(notifiers...)

	opts := []device.ControllerOption{
		device.WithLogger(l),
		device.WithNotifier(notifier),
		device.WithMetrics(device.NewMetrics(prometheus.DefaultRegisterer)),
		device.WithPresets(cfg.DevicePresets()),
	}

	var st *store.SQLiteStore
	if cfg.StorePath != "" {
		var err error
		st, err = store.OpenSQLite(cfg.StorePath, l)
		if err != nil {
			return err
		}
		defer st.Close()
		opts = append(opts, device.WithStore(st))
	}

	factory, err := transport.NewFactory(
		transport.WithLogger(l),
		transport.WithNotifier(notifier),
	)
	if err != nil {
		return err
	}

	controller := device.NewController(factory, opts...)

	if err := createDevices(ctx, cfg, controller, st, l); err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/events", hub)
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		l.Info("listening", "addr", cfg.Listen)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err

	case <-ctx.Done():
		l.Info("shutting down")

		for _, dev := range controller.Devices() {
			if err := controller.Reset(dev.ID()); err != nil {
				l.Warn("device teardown failed", "device", dev.ID(), "error", err)
			}
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		return nil
	}
}

// createDevices builds the configured devices, seeds the store with their
// initial settings, and discovers the ones marked for discovery. A device
// that fails discovery stays registered in the failed state; startup continues.
func createDevices(ctx context.Context, cfg *config.Config, controller *device.Controller, st *store.SQLiteStore, l logger.Logger) error {
	for _, spec := range cfg.Devices {
		dev, err := controller.CreateDevice(spec.Preset, spec.Overrides)
		if err != nil {
			return err
		}

		if st != nil {
			s := dev.Settings()
			fields := map[string]any{
				"name":    s.Name,
				"offsetX": s.OffsetX,
				"offsetY": s.OffsetY,
				"offsetZ": s.OffsetZ,
				"prime":   s.Prime,
			}
			if err := st.Save(ctx, dev.ID(), fields); err != nil {
				return err
			}
		}

		if !spec.Discover {
			continue
		}

		if err := controller.Discover(ctx, dev.ID()); err != nil {
			l.Error("device discovery failed", "device", dev.ID(), "preset", spec.Preset, "error", err)
		}
	}

	return nil
}
