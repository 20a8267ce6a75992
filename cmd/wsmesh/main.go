// Command wsmesh runs the weather station host loop: it renders the
// telemetry message from the configured template, sends it to the
// selected node on every update interval, and drives the delivery
// engine's tick in between.
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/wsmesh/wsmesh"
	"github.com/wsmesh/wsmesh/config"
	"github.com/wsmesh/wsmesh/nodes"
	"github.com/wsmesh/wsmesh/report"
	"github.com/wsmesh/wsmesh/snrstats"
	"github.com/wsmesh/wsmesh/telemetry"
	"github.com/wsmesh/wsmesh/transport"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the station config file")
	gatewayAddr := flag.String("gateway", "127.0.0.1:4403", "radio gateway daemon address")
	metricsAddr := flag.String("metrics", "", "listen address for Prometheus metrics (empty disables)")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if *verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}

	if err := run(*configPath, *gatewayAddr, *metricsAddr); err != nil {
		logrus.WithError(err).Fatal("wsmesh exited")
	}
}

func run(configPath, gatewayAddr, metricsAddr string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	entries, err := cfg.Directory()
	if err != nil {
		return err
	}
	dir, err := nodes.NewDirectory(entries)
	if err != nil {
		return err
	}

	keyring := make(map[uint32][]byte)
	for _, n := range entries {
		if n.HasPublicKey() {
			keyring[n.ID] = n.PublicKey
		}
	}

	radio, err := transport.NewGatewayTransport(gatewayAddr, nil, keyring)
	if err != nil {
		return err
	}

	deliveryLog := report.NewDeliveryLog(cfg.Logging.File, cfg.Logging.RetentionDays)
	if err := deliveryLog.CleanupOld(time.Now()); err != nil {
		logrus.WithError(err).Warn("Delivery log cleanup failed")
	}

	station, err := wsmesh.New(&wsmesh.Options{
		Directory:         dir,
		Transport:         radio,
		Stats:             snrstats.NewStore(cfg.Stats.File, cfg.Stats.AutosaveEvery),
		DeliveryLog:       deliveryLog,
		AckRetryTimeout:   cfg.AckRetryTimeout(),
		MaxRetries:        cfg.Settings.MaxRetries,
		ConfirmationDelay: cfg.ConfirmationDelayDuration(),
		Channel:           cfg.Settings.Channel,
	})
	if err != nil {
		return err
	}
	defer station.Kill()

	station.OnDelivered(func(node string, snr float64, hasSNR bool) {
		if hasSNR {
			fmt.Printf("✓ %s acknowledged (snr %.1f)\n", node, snr)
			return
		}
		fmt.Printf("✓ %s acknowledged\n", node)
	})
	station.OnDeliveryFailed(func(node, reason string) {
		fmt.Printf("✗ %s delivery failed: %s\n", node, reason)
	})

	if metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", telemetry.Handler())
			if err := http.ListenAndServe(metricsAddr, mux); err != nil {
				logrus.WithError(err).Error("Metrics server stopped")
			}
		}()
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	target := cfg.Settings.SelectedNode
	template := cfg.SelectedTemplate()

	logrus.WithFields(logrus.Fields{
		"target":   target,
		"interval": cfg.UpdateInterval(),
	}).Info("Starting send loop")

	sendTicker := time.NewTicker(cfg.UpdateInterval())
	defer sendTicker.Stop()
	// The engine tick runs much faster than the send interval so
	// timeouts and confirmations fire near their deadlines.
	engineTicker := time.NewTicker(time.Second)
	defer engineTicker.Stop()
	logTicker := time.NewTicker(cfg.LogAutoSaveInterval())
	defer logTicker.Stop()

	send := func() {
		data := report.Data{
			Now:      time.Now(),
			TempF:    readTemperatureF(),
			Humidity: readHumidity(),
			Online:   dir.Len(),
			Total:    dir.Len(),
			Ack:      station.AckIndicator(target),
		}
		// The {snr} placeholder shows the last acknowledged SNR.
		if status, ok := station.LastStatus(target); ok && status.HasSNR {
			data.SNR = status.SNR
			data.HasSNR = true
		}
		payload := report.Render(template, data)
		if _, err := station.Send(target, payload); err != nil {
			logrus.WithError(err).Warn("Send failed, will retry next interval")
		}
	}
	send()

	for {
		select {
		case <-stop:
			logrus.Info("Shutting down")
			return nil
		case <-sendTicker.C:
			send()
		case <-engineTicker.C:
			station.Iterate(time.Now())
		case <-logTicker.C:
			if err := deliveryLog.Flush(); err != nil {
				logrus.WithError(err).Warn("Delivery log flush failed")
			}
			if err := deliveryLog.CleanupOld(time.Now()); err != nil {
				logrus.WithError(err).Warn("Delivery log cleanup failed")
			}
		}
	}
}

// Sensor acquisition is outside this repo; the host wires a real DHT22
// reader here. These stand-ins keep the loop runnable without one.
func readTemperatureF() float64 { return 72 }
func readHumidity() float64 { return 45 }
