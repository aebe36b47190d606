package storage

import (
	"context"
	"fmt"
	"log/slog"

	greptime "github.com/GreptimeTeam/greptimedb-ingester-go"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table/types"
)

const (
	mirrorTelemetryTable  = "gcs_telemetry"
	mirrorDetectionsTable = "gcs_detections"
)

// Mirror forwards telemetry and detection rows to a GreptimeDB instance
// for time-series dashboards. It is strictly best-effort: the SQLite store
// remains the system of record and mirror failures must never stall
// ingestion.
type Mirror struct {
	client *greptime.Client
	logger *slog.Logger
}

// NewMirror connects to a GreptimeDB instance. Tables are created on first
// write by the ingest service.
func NewMirror(host string, port int, database string, logger *slog.Logger) (*Mirror, error) {
	cfg := greptime.NewConfig(host).WithPort(port).WithDatabase(database)

	client, err := greptime.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating greptime client: %w", err)
	}
	return &Mirror{client: client, logger: logger}, nil
}

// WriteBatch forwards the batch's telemetry and detection rows.
func (m *Mirror) WriteBatch(ctx context.Context, missionID string, batch *Batch) error {
	var tables []*table.Table

	if len(batch.Telemetry) > 0 {
		tbl, err := telemetryTable(missionID, batch.Telemetry)
		if err != nil {
			return fmt.Errorf("building telemetry rows: %w", err)
		}
		tables = append(tables, tbl)
	}
	if len(batch.Detections) > 0 {
		tbl, err := detectionTable(missionID, batch.Detections)
		if err != nil {
			return fmt.Errorf("building detection rows: %w", err)
		}
		tables = append(tables, tbl)
	}
	if len(tables) == 0 {
		return nil
	}

	if _, err := m.client.Write(ctx, tables...); err != nil {
		return fmt.Errorf("writing to mirror: %w", err)
	}

	m.logger.Debug("mirrored batch", "telemetry", len(batch.Telemetry), "detections", len(batch.Detections))
	return nil
}

func telemetryTable(missionID string, rows []TelemetryRow) (*table.Table, error) {
	tbl, err := table.New(mirrorTelemetryTable)
	if err != nil {
		return nil, err
	}

	if err := tbl.AddTagColumn("mission_id", types.STRING); err != nil {
		return nil, err
	}
	if err := tbl.AddTagColumn("drone_id", types.INT64); err != nil {
		return nil, err
	}
	if err := tbl.AddFieldColumn("mode", types.STRING); err != nil {
		return nil, err
	}
	if err := tbl.AddFieldColumn("state", types.STRING); err != nil {
		return nil, err
	}
	if err := tbl.AddFieldColumn("altitude", types.FLOAT); err != nil {
		return nil, err
	}
	if err := tbl.AddFieldColumn("battery", types.FLOAT); err != nil {
		return nil, err
	}
	if err := tbl.AddFieldColumn("voltage", types.FLOAT); err != nil {
		return nil, err
	}
	if err := tbl.AddFieldColumn("latitude", types.FLOAT); err != nil {
		return nil, err
	}
	if err := tbl.AddFieldColumn("longitude", types.FLOAT); err != nil {
		return nil, err
	}
	if err := tbl.AddFieldColumn("link_status", types.STRING); err != nil {
		return nil, err
	}
	if err := tbl.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND); err != nil {
		return nil, err
	}

	for _, row := range rows {
		if err := tbl.AddRow(
			missionID,
			int64(row.DroneID),
			row.Mode,
			row.State,
			row.Altitude,
			row.Battery,
			row.Voltage,
			row.Latitude,
			row.Longitude,
			row.LinkStatus,
			row.ReceivedAt,
		); err != nil {
			return nil, err
		}
	}
	return tbl, nil
}

func detectionTable(missionID string, rows []DetectionRow) (*table.Table, error) {
	tbl, err := table.New(mirrorDetectionsTable)
	if err != nil {
		return nil, err
	}

	if err := tbl.AddTagColumn("mission_id", types.STRING); err != nil {
		return nil, err
	}
	if err := tbl.AddTagColumn("drone_id", types.INT64); err != nil {
		return nil, err
	}
	if err := tbl.AddFieldColumn("type", types.STRING); err != nil {
		return nil, err
	}
	if err := tbl.AddFieldColumn("confidence", types.FLOAT); err != nil {
		return nil, err
	}
	if err := tbl.AddFieldColumn("latitude", types.FLOAT); err != nil {
		return nil, err
	}
	if err := tbl.AddFieldColumn("longitude", types.FLOAT); err != nil {
		return nil, err
	}
	if err := tbl.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND); err != nil {
		return nil, err
	}

	for _, row := range rows {
		if err := tbl.AddRow(
			missionID,
			int64(row.DroneID),
			row.Type,
			row.Confidence,
			row.Latitude,
			row.Longitude,
			row.ReceivedAt,
		); err != nil {
			return nil, err
		}
	}
	return tbl, nil
}
