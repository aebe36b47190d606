package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nidar-uav/ground-control/internal/config"
	"github.com/nidar-uav/ground-control/internal/detection"
	"github.com/nidar-uav/ground-control/internal/events"
	"github.com/nidar-uav/ground-control/internal/geofence"
	"github.com/nidar-uav/ground-control/internal/ingest"
	"github.com/nidar-uav/ground-control/internal/state"
	"github.com/nidar-uav/ground-control/internal/status"
	"github.com/nidar-uav/ground-control/internal/storage"
	"github.com/nidar-uav/ground-control/internal/transport"
)

var serveConfigPath string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the ground station",
	Long:  "serve connects to the telemetry link and runs the full pipeline: decode, track, alert and record.",
	RunE: func(cmd *cobra.Command, args []string) error {
		var logLevel slog.LevelVar
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: &logLevel}))

		cfg, err := config.Load(serveConfigPath)
		if err != nil {
			return err
		}
		logLevel.Set(cfg.Level())

		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		return runStation(ctx, cfg, logger)
	},
}

func init() {
	serveCmd.Flags().StringVarP(&serveConfigPath, "config", "c", "gcs.yaml", "Path to the configuration file")
}

func runStation(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	source, err := openSource(&cfg.Transport)
	if err != nil {
		return fmt.Errorf("opening telemetry source: %w", err)
	}

	store := storage.NewSqliteStore(cfg.Storage.Path)
	defer store.Close()

	missionID, err := store.CreateMission(ctx, cfg.TeamID, cfg)
	if err != nil {
		source.Close()
		return fmt.Errorf("creating mission: %w", err)
	}
	logger.Info("mission created", "mission", missionID, "team", cfg.TeamID, "db", cfg.Storage.Path)

	eventLog := events.NewLog(events.DefaultCapacity, logger)
	sink, err := buildSink(store, missionID, cfg, eventLog, logger)
	if err != nil {
		source.Close()
		return err
	}

	states := state.NewStore(cfg.Drones...)
	detections := detection.NewLog()

	scheduler := ingest.NewScheduler(source, states, detections, eventLog, sink,
		ingest.WithLogger(logger),
		ingest.WithGeofence(geofence.NewMonitor(zonesFromConfig(cfg.Zones))),
		ingest.WithDecodeErrorThreshold(cfg.Ingest.DecodeErrorThreshold),
		ingest.WithBatching(cfg.Storage.BatchSize, time.Duration(cfg.Storage.FlushInterval)),
		ingest.WithShutdownTimeout(time.Duration(cfg.Ingest.ShutdownTimeout)),
	)
	eventLog.Record(events.Info, events.KindMission, 0,
		fmt.Sprintf("mission %s started for team %s", missionID, cfg.TeamID))

	if err := scheduler.Start(ctx); err != nil {
		source.Close()
		return fmt.Errorf("starting ingestion: %w", err)
	}

	if cfg.Status.Enabled {
		api := status.NewServer(states, detections, eventLog, scheduler, logger)
		go func() {
			if err := api.Serve(ctx, cfg.Status.Listen); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("status API failed", "error", err)
			}
		}()
	}

	// Block until the operator interrupts or the pipeline stops on its own,
	// for example after a lost transport.
	select {
	case <-ctx.Done():
	case <-scheduler.Done():
	}
	scheduler.Stop()

	endCtx, endCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer endCancel()
	if err := store.EndMission(endCtx, missionID); err != nil {
		logger.Error("failed to stamp mission end", "error", err)
	}
	logger.Info("mission ended", "mission", missionID)
	return nil
}

func openSource(cfg *config.TransportConfig) (transport.Source, error) {
	switch cfg.Kind {
	case config.TransportTCP:
		return transport.DialTCP(cfg.Endpoint, time.Duration(cfg.ReadTimeout))

	case config.TransportSerial:
		return transport.OpenSerial(cfg.Serial.Port, cfg.Serial.BaudRate, time.Duration(cfg.ReadTimeout))

	case config.TransportReplay:
		return transport.OpenReplay(cfg.Replay.Path, time.Duration(cfg.Replay.Interval), cfg.Replay.Speed, cfg.Replay.Loop)

	default:
		return nil, fmt.Errorf("unknown transport kind '%s'", cfg.Kind)
	}
}

func buildSink(store storage.Store, missionID string, cfg *config.Config, eventLog *events.Log, logger *slog.Logger) (*storage.Sink, error) {
	opts := []func(*storage.Sink){
		storage.WithQueueDepth(cfg.Storage.QueueDepth),
		storage.WithRetry(cfg.Storage.MaxRetries, time.Duration(cfg.Storage.RetryBackoff)),
		storage.WithOnOverflow(func(dropped *storage.Batch) {
			eventLog.Record(events.Warning, events.KindPersistenceOverflow, 0,
				fmt.Sprintf("write queue full, dropped a batch of %d rows", dropped.Len()))
		}),
		storage.WithOnWriteFailure(func(batch *storage.Batch, err error) {
			eventLog.Record(events.Warning, events.KindPersistenceFailure, 0,
				fmt.Sprintf("failed to persist a batch of %d rows: %s", batch.Len(), err))
		}),
	}
	if cfg.Storage.OverflowPolicy == config.OverflowBlock {
		opts = append(opts, storage.WithBlockOnFull())
	}
	if cfg.Mirror.Enabled {
		mirror, err := storage.NewMirror(cfg.Mirror.Host, cfg.Mirror.Port, cfg.Mirror.Database, logger)
		if err != nil {
			return nil, fmt.Errorf("connecting telemetry mirror: %w", err)
		}
		opts = append(opts, storage.WithMirror(mirror))
	}
	return storage.NewSink(store, missionID, logger, opts...), nil
}

func zonesFromConfig(zones []config.ZoneConfig) []geofence.Zone {
	out := make([]geofence.Zone, 0, len(zones))
	for _, z := range zones {
		out = append(out, geofence.Zone{
			Name:      z.Name,
			CenterLat: z.CenterLat,
			CenterLon: z.CenterLon,
			RadiusKM:  z.RadiusKM,
		})
	}
	return out
}
