package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path"
	"strings"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/caarlos0/intelbras2mqtt/alarm"
	"github.com/caarlos0/intelbras2mqtt/amt8000"
	"github.com/caarlos0/intelbras2mqtt/bridge"
	"github.com/caarlos0/intelbras2mqtt/bus"
	"github.com/caarlos0/intelbras2mqtt/isecnet"
	logp "github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var log = logp.NewWithOptions(os.Stderr, logp.Options{
	ReportTimestamp: true,
	TimeFormat:      time.Kitchen,
	Prefix:          "intelbras2mqtt",
})

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	log.Info(
		"intelbras2mqtt",
		"version", version,
		"commit", commit,
		"date", date,
		"info", strings.Join([]string{
			"MQTT bridge for Intelbras alarm panels",
			"© Carlos Alexandro Becker",
			"https://becker.software",
		}, "\n"),
	)

	cfg, err := loadConfig(env.Options{})
	if err != nil {
		log.Fatal("invalid configuration", "err", err)
	}
	level, err := logp.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warn("invalid log level, using info", "level", cfg.LogLevel)
		level = logp.InfoLevel
	}
	log.SetLevel(level)

	zones, _ := cfg.zones()
	adapter, err := newAdapter(cfg)
	if err != nil {
		log.Fatal("could not create the panel adapter", "err", err)
	}

	mq, err := bus.New(bus.Config{
		Kind:         cfg.Bus,
		MQTTBroker:   cfg.MQTTBroker,
		MQTTPort:     cfg.MQTTPort,
		MQTTUsername: cfg.MQTTUsername,
		MQTTPassword: cfg.MQTTPassword,
		MQTTClientID: cfg.MQTTClientID,
		NATSURL:      cfg.NATSURL,
		WillTopic:    path.Join(cfg.Topic, alarm.TopicAvailability),
	}, log.WithPrefix("bus"))
	if err != nil {
		log.Fatal("could not create the bus client", "err", err)
	}

	log.Info(
		"bridge configuration",
		"protocol", adapter.Protocol(),
		"bus", cfg.Bus,
		"topic", cfg.Topic,
		"zones", fmt.Sprint(zones),
		"polling", cfg.pollInterval(),
	)

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)
	signal.Notify(c, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-c
		log.Info("stopping bridge")
		signal.Stop(c)
		cancel()
	}()

	if err := mq.Connect(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		log.Fatal("could not connect to the bus", "err", err)
	}
	defer func() {
		if err := mq.Close(); err != nil {
			log.Error("could not close the bus client", "err", err)
		}
	}()

	if cfg.Address != "" {
		srv := metricsServer(cfg.Address)
		defer func() {
			sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer scancel()
			_ = srv.Shutdown(sctx)
		}()
	}

	br := bridge.New(bridge.Config{
		Topic:                  cfg.Topic,
		Zones:                  zones,
		CommandTimeout:         cfg.CommandTimeout,
		PanicDuration:          cfg.PanicDuration,
		ClearTriggeredOnDisarm: cfg.ClearTriggeredOnDisarm,
		Manager: bridge.ManagerConfig{
			PollInterval:    cfg.pollInterval(),
			PollTimeout:     cfg.CommandTimeout,
			MaxPollFailures: cfg.MaxPollFailures,
			BackoffInitial:  cfg.BackoffInitial,
			BackoffMax:      cfg.BackoffMax,
		},
	}, adapter, mq, log.WithPrefix("bridge"))

	log.Info("starting bridge")
	if err := br.Run(ctx); err != nil {
		log.Error("bridge stopped", "err", err)
	}
}

func newAdapter(cfg Config) (alarm.Adapter, error) {
	switch cfg.Protocol {
	case protocolPoller:
		mac, err := amt8000.MacAddress(cfg.Host)
		if err != nil {
			log.Warn(
				"could not get the mac address, needs 'cap_net_raw+ep' capabilities",
				"err", err,
			)
		}
		log.Info("polling panel", "host", cfg.Host, "port", cfg.Port, "mac", mac)
		return amt8000.New(amt8000.Config{
			Host:        cfg.Host,
			Port:        cfg.Port,
			Password:    cfg.Password,
			ReadTimeout: cfg.CommandTimeout,
			Logger:      log.WithPrefix("amt8000"),
		})
	default:
		partitions, err := cfg.partitions()
		if err != nil {
			return nil, err
		}
		return isecnet.New(isecnet.Config{
			Address:     net.JoinHostPort("", cfg.Port),
			Password:    cfg.Password,
			Partitions:  partitions,
			ReadTimeout: cfg.ReadTimeout,
			Logger:      log.WithPrefix("isecnet"),
		})
	}
}

func metricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server failed", "err", err)
		}
	}()
	return srv
}
