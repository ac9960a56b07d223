package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/thereceipt/label-dispatch/internal/api"
	"github.com/thereceipt/label-dispatch/internal/config"
	"github.com/thereceipt/label-dispatch/internal/logging"
	"github.com/thereceipt/label-dispatch/internal/metrics"
	"github.com/thereceipt/label-dispatch/internal/notify"
	"github.com/thereceipt/label-dispatch/internal/printer"
	"github.com/thereceipt/label-dispatch/internal/registry"
)

// Version is set during build via ldflags
var Version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "Path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.WithError(err).Warn("failed to load config, using defaults")
		cfg = config.Default()
	}

	log := logging.New(cfg.Log)
	log.WithField("version", Version).Info("label dispatch starting")

	reg, err := registry.New(cfg.Registry.Path, log)
	if err != nil {
		log.WithError(err).Fatal("failed to load profile registry")
	}

	usb := newUsbTransport(cfg.USB, log)
	dispatcher := printer.NewDispatcher(printer.WithLogger(log), printer.WithUsbTransport(usb))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	monitor := printer.NewMonitor(usb.Devices, cfg.USB.MonitorInterval, log)

	var opts []api.Option
	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
		dispatcher.Observe(m.ObserveDispatch)
		monitor.OnChange(m.ObserveDevice)
		opts = append(opts, api.WithMetrics(m.Handler()))
	}

	if cfg.Redis.Addr != "" {
		publisher, err := notify.NewPublisher(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB,
			cfg.Redis.Channel, cfg.Redis.HistoryLen, log)
		if err != nil {
			log.WithError(err).Warn("event publishing disabled")
		} else {
			defer publisher.Close()
			dispatcher.Observe(publisher.ObserveDispatch)
			monitor.OnChange(publisher.ObserveDevice)
			opts = append(opts, api.WithHistory(publisher))
		}
	}

	server := api.NewServer(dispatcher, reg, log, opts...)
	monitor.OnChange(server.BroadcastDevice)

	monitor.Start(ctx)
	defer monitor.Stop()
	log.WithField("devices", monitor.Len()).Info("USB monitor started")
	if m != nil {
		m.SetUsbDevices(monitor.Len())
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Run(cfg.Server.Address)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			log.WithError(err).Error("server error")
		}
	case <-ctx.Done():
		log.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("graceful shutdown failed")
	}
}

// newUsbTransport applies the configured vendor, read timeout and queue
// bindings to the platform USB transport
func newUsbTransport(cfg config.USBConfig, log logrus.FieldLogger) *printer.UsbTransport {
	usb := printer.NewUsbTransport(log)
	if cfg.VendorID != 0 {
		usb.VendorID = cfg.VendorID
	}
	if cfg.ReadTimeout > 0 {
		usb.ReadTimeout = cfg.ReadTimeout
	}
	if len(cfg.Queues) > 0 {
		usb.Queues = printer.QueueMap(cfg.QueueMap())
	}
	return usb
}
