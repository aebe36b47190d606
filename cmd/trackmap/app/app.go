// Package app renders recorded mission telemetry into a track map image.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"image/jpeg"
	"image/png"
	"log/slog"
	"os"
	"time"

	"github.com/nidar-uav/ground-control/internal/storage"
)

// Run reads one mission from the database and writes the rendered track map
// to the configured output file.
func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	if _, err := os.Stat(config.DBPath); err != nil {
		return fmt.Errorf("database file '%s' does not exist", config.DBPath)
	}

	store := storage.NewSqliteStore(config.DBPath)
	defer store.Close()

	mission, err := resolveMission(ctx, store, config.MissionID)
	if err != nil {
		return err
	}

	data, err := readTrack(ctx, store, mission, config, logger)
	if err != nil {
		return err
	}
	if !data.Finalize() {
		return fmt.Errorf("mission %s holds no plottable positions", mission.ID)
	}

	renderer, err := NewTrackRenderer(RenderConfig{
		Width:         config.Width,
		ValueLabel:    valueLabel(config.ColorBy),
		NoAnnotations: config.NoAnnotations,
	})
	if err != nil {
		return fmt.Errorf("creating track renderer: %w", err)
	}

	logger.Info("rendering track map",
		slog.Group("image",
			slog.String("destination", config.OutputFile),
			slog.String("format", string(config.Format)),
			slog.Int("width", config.Width),
		))

	img, err := renderer.Render(data)
	if err != nil {
		return fmt.Errorf("rendering track map: %w", err)
	}

	out, err := os.Create(config.OutputFile)
	if err != nil {
		return err
	}

	switch config.Format {
	case ImagePNG:
		err = png.Encode(out, img)
	case ImageJPEG:
		err = jpeg.Encode(out, img, &jpeg.Options{Quality: 98})
	}
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	return err
}

func resolveMission(ctx context.Context, store storage.Store, missionID string) (*storage.Mission, error) {
	if missionID != "" {
		mission, err := store.Mission(ctx, missionID)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("mission '%s' not found", missionID)
		}
		if err != nil {
			return nil, fmt.Errorf("reading mission: %w", err)
		}
		return mission, nil
	}

	mission, err := store.LatestMission(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.New("database holds no missions")
	}
	if err != nil {
		return nil, fmt.Errorf("finding latest mission: %w", err)
	}
	return mission, nil
}

func readTrack(ctx context.Context, store storage.Store, mission *storage.Mission, config *Config, logger *slog.Logger) (*TrackData, error) {
	var opts []storage.QueryOption
	var filters []any

	if config.DroneID > 0 {
		opts = append(opts, storage.WithDrone(config.DroneID))
		filters = append(filters, slog.Int("drone", config.DroneID))
	}

	switch {
	case config.MinTimestamp != nil && config.MaxTimestamp != nil:
		opts = append(opts, storage.WithTimeRange(config.MinTimestamp.UTC(), config.MaxTimestamp.UTC()))
		filters = append(filters,
			slog.String("minTimestamp", config.MinTimestamp.UTC().Format(time.DateTime)),
			slog.String("maxTimestamp", config.MaxTimestamp.UTC().Format(time.DateTime)))

	case config.MinTimestamp != nil:
		opts = append(opts, storage.WithStartTime(config.MinTimestamp.UTC()))
		filters = append(filters, slog.String("minTimestamp", config.MinTimestamp.UTC().Format(time.DateTime)))

	case config.MaxTimestamp != nil:
		opts = append(opts, storage.WithEndTime(config.MaxTimestamp.UTC()))
		filters = append(filters, slog.String("maxTimestamp", config.MaxTimestamp.UTC().Format(time.DateTime)))
	}

	logger.Info("reader configuration", filters...)

	rows, err := store.Telemetry(ctx, mission.ID, opts...)
	if err != nil {
		return nil, fmt.Errorf("reading telemetry: %w", err)
	}
	detections, err := store.Detections(ctx, mission.ID, opts...)
	if err != nil {
		return nil, fmt.Errorf("reading detections: %w", err)
	}

	data := NewTrackData(mission.ID, mission.TeamID)
	data.SetZones(missionZones(mission))

	for _, row := range rows {
		value := row.Altitude
		if config.ColorBy == ColorByBattery {
			value = row.Battery
		}
		data.Update(row.DroneID, row.Latitude, row.Longitude, value, row.ReceivedAt)
	}
	for _, det := range detections {
		data.AddDetection(det)
	}

	logger.Info("finished reading mission rows",
		slog.Group("stats",
			slog.Int("telemetry", len(rows)),
			slog.Int("detections", len(detections)),
			slog.Int("zones", len(data.Zones)),
		))

	return data, nil
}

func valueLabel(colorBy string) string {
	if colorBy == ColorByBattery {
		return "battery %"
	}
	return "altitude m"
}
