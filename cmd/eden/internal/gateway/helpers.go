package gateway

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/tinyland-inc/eden/cmd/eden/internal"
	"github.com/tinyland-inc/eden/pkg/auth"
	"github.com/tinyland-inc/eden/pkg/blob"
	"github.com/tinyland-inc/eden/pkg/bus"
	"github.com/tinyland-inc/eden/pkg/mqtt"
	"github.com/tinyland-inc/eden/pkg/server"
	"github.com/tinyland-inc/eden/pkg/sink"
)

func newLogger(debug bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(level).
		With().Timestamp().Logger()
}

func gatewayCmd(debug bool) error {
	logger := newLogger(debug)

	cfg, err := internal.LoadConfig()
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	blobs, err := blob.NewCrateStore(blob.CrateConfig{
		BaseURL: cfg.CrateDB.BlobURL,
		Table:   cfg.CrateDB.BlobTable,
	})
	if err != nil {
		return fmt.Errorf("error creating blob store: %w", err)
	}

	cluster, err := sink.Connect(ctx, cfg.CrateDB.URL)
	if err != nil {
		return fmt.Errorf("error connecting to cluster: %w", err)
	}
	defer cluster.Close()

	// The blob table may already exist, so init failure is not fatal.
	if err := cluster.Exec(ctx, blobs.InitStatement()); err != nil {
		logger.Warn().Err(err).Msg("blob table init failed")
	}

	ingest := bus.NewIngestBus(bus.DefaultCapacity)

	snk := sink.NewSensorSink(sink.Config{
		Table:           cfg.CrateDB.Table,
		CreateStatement: cfg.CrateDB.CreateStatement,
		InsertStatement: cfg.CrateDB.InsertStatement,
		BulkSize:        cfg.CrateDB.BulkSize,
		FlushInterval:   time.Duration(cfg.CrateDB.FlushIntervalSeconds) * time.Second,
		OnWriteError:    sink.WritePolicy(cfg.CrateDB.OnWriteError),
	}, blobs, logger)

	relayDone := make(chan error, 1)
	go func() {
		relayDone <- snk.Relay(ctx, ingest, cluster)
	}()

	var srv *server.Server
	if cfg.HTTP.Enabled {
		authn := auth.NewAuthenticator(cfg.Keys.Secret, cfg.ACLs)
		srv = server.New(cfg.HTTP.ListenAddr, authn, ingest, logger)
		if err := srv.Start(ctx); err != nil {
			return fmt.Errorf("error starting http server: %w", err)
		}
		logger.Info().Str("addr", cfg.HTTP.ListenAddr).Msg("http listener started")
	}

	var sub *mqtt.Subscriber
	if cfg.MQTT.Enabled {
		sub = mqtt.NewSubscriber(mqtt.Config{
			BrokerURL:      cfg.MQTT.BrokerURL,
			Username:       cfg.MQTT.Username,
			Password:       cfg.MQTT.Password,
			VerifyCA:       cfg.MQTT.VerifyCA,
			Topics:         cfg.MQTT.Topics,
			QoS:            byte(cfg.MQTT.QoS),
			KeepAlive:      time.Duration(cfg.MQTT.KeepAliveSeconds) * time.Second,
			ConnectTimeout: time.Duration(cfg.MQTT.ConnectTimeoutSeconds) * time.Second,
		}, ingest, logger)
		if err := sub.Start(ctx); err != nil {
			return fmt.Errorf("error starting mqtt subscriber: %w", err)
		}
		logger.Info().Str("broker", cfg.MQTT.BrokerURL).Msg("mqtt subscriber started")
	}

	logger.Info().Msg("gateway started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	var relayErr error
	select {
	case <-sigChan:
		logger.Info().Msg("shutting down")
	case relayErr = <-relayDone:
		// Only the exit write policy ends the relay early.
		logger.Error().Err(relayErr).Msg("relay stopped")
	}

	if sub != nil {
		if err := sub.Stop(context.Background()); err != nil {
			logger.Warn().Err(err).Msg("mqtt shutdown")
		}
	}
	if srv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := srv.Stop(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("http shutdown")
		}
		shutdownCancel()
	}

	// Closing the bus lets the relay drain and flush what is buffered.
	ingest.Close()
	if relayErr == nil {
		relayErr = <-relayDone
	}

	logger.Info().Msg("gateway stopped")

	return relayErr
}
