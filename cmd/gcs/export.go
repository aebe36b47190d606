package main

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/nidar-uav/ground-control/internal/storage"
)

var (
	exportDBPath  string
	exportMission string
	exportTable   string
	exportOut     string
	exportDrone   int
	exportFrom    string
	exportTo      string
	exportLimit   int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export mission rows to CSV",
	Long:  "export writes one mission table to a CSV file, filtered by drone and time range.",
	RunE: func(cmd *cobra.Command, args []string) error {
		store := storage.NewSqliteStore(exportDBPath)
		defer store.Close()

		ctx := context.Background()
		missionID := exportMission
		if missionID == "" {
			m, err := store.LatestMission(ctx)
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("no missions recorded in %s", exportDBPath)
			}
			if err != nil {
				return fmt.Errorf("finding latest mission: %w", err)
			}
			missionID = m.ID
		}

		opts, err := exportFilters()
		if err != nil {
			return err
		}

		f, err := os.Create(exportOut)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		defer f.Close()

		w := csv.NewWriter(f)
		var n int
		switch exportTable {
		case "telemetry":
			n, err = exportTelemetry(ctx, store, missionID, w, opts)
		case "detections":
			n, err = exportDetections(ctx, store, missionID, w, opts)
		case "commands":
			n, err = exportCommands(ctx, store, missionID, w, opts)
		case "events":
			n, err = exportEvents(ctx, store, missionID, w, opts)
		default:
			return fmt.Errorf("unknown table '%s', want telemetry, detections, commands or events", exportTable)
		}
		if err != nil {
			return err
		}

		w.Flush()
		if err := w.Error(); err != nil {
			return fmt.Errorf("writing csv: %w", err)
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("closing output file: %w", err)
		}

		info, err := os.Stat(exportOut)
		if err != nil {
			return fmt.Errorf("stating output file: %w", err)
		}
		fmt.Printf("exported %s %s rows for mission %s to %s (%s)\n",
			humanize.Comma(int64(n)), exportTable, missionID, exportOut, humanize.Bytes(uint64(info.Size())))
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportDBPath, "db", "mission_data.db", "Path to the mission database")
	exportCmd.Flags().StringVar(&exportMission, "mission", "", "Mission ID to export, latest when empty")
	exportCmd.Flags().StringVar(&exportTable, "table", "telemetry", "Table to export: telemetry, detections, commands or events")
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "Output CSV file")
	exportCmd.Flags().IntVar(&exportDrone, "drone", 0, "Restrict to one drone ID")
	exportCmd.Flags().StringVar(&exportFrom, "from", "", "Exclude rows before this RFC3339 time")
	exportCmd.Flags().StringVar(&exportTo, "to", "", "Exclude rows after this RFC3339 time")
	exportCmd.Flags().IntVar(&exportLimit, "limit", 0, "Cap the number of exported rows")
	exportCmd.MarkFlagRequired("out")
}

func exportFilters() ([]storage.QueryOption, error) {
	var opts []storage.QueryOption
	if exportDrone > 0 {
		opts = append(opts, storage.WithDrone(exportDrone))
	}
	if exportFrom != "" {
		t, err := time.Parse(time.RFC3339, exportFrom)
		if err != nil {
			return nil, fmt.Errorf("parsing --from: %w", err)
		}
		opts = append(opts, storage.WithStartTime(t))
	}
	if exportTo != "" {
		t, err := time.Parse(time.RFC3339, exportTo)
		if err != nil {
			return nil, fmt.Errorf("parsing --to: %w", err)
		}
		opts = append(opts, storage.WithEndTime(t))
	}
	if exportLimit > 0 {
		opts = append(opts, storage.WithLimit(exportLimit))
	}
	return opts, nil
}

func exportTelemetry(ctx context.Context, store storage.Store, missionID string, w *csv.Writer, opts []storage.QueryOption) (int, error) {
	rows, err := store.Telemetry(ctx, missionID, opts...)
	if err != nil {
		return 0, fmt.Errorf("reading telemetry: %w", err)
	}

	header := []string{
		"received_at", "drone_id", "mission_time", "packet_count", "mode", "state",
		"altitude", "temperature", "pressure", "voltage",
		"gyro_roll", "gyro_pitch", "gyro_yaw",
		"accel_roll", "accel_pitch", "accel_yaw",
		"mag_roll", "mag_pitch", "mag_yaw",
		"gps_time", "gps_altitude", "latitude", "longitude", "satellites",
		"battery", "link_status", "autonomy_mode", "geofence_breach", "payload_status", "cmd_echo",
	}
	if err := w.Write(header); err != nil {
		return 0, err
	}

	for _, row := range rows {
		rec := []string{
			formatTime(row.ReceivedAt),
			strconv.Itoa(row.DroneID),
			row.MissionTime,
			strconv.FormatUint(row.PacketCount, 10),
			row.Mode,
			row.State,
			formatFloat(row.Altitude),
			formatFloat(row.Temperature),
			formatFloat(row.Pressure),
			formatFloat(row.Voltage),
			formatFloat(row.GyroRoll),
			formatFloat(row.GyroPitch),
			formatFloat(row.GyroYaw),
			formatFloat(row.AccelRoll),
			formatFloat(row.AccelPitch),
			formatFloat(row.AccelYaw),
			formatFloat(row.MagRoll),
			formatFloat(row.MagPitch),
			formatFloat(row.MagYaw),
			row.GPSTime,
			formatFloat(row.GPSAltitude),
			formatFloat(row.Latitude),
			formatFloat(row.Longitude),
			strconv.Itoa(row.Satellites),
			formatFloat(row.Battery),
			row.LinkStatus,
			row.AutonomyMode,
			strconv.FormatBool(row.GeofenceBreach),
			row.PayloadStatus,
			row.CmdEcho,
		}
		if err := w.Write(rec); err != nil {
			return 0, err
		}
	}
	return len(rows), nil
}

func exportDetections(ctx context.Context, store storage.Store, missionID string, w *csv.Writer, opts []storage.QueryOption) (int, error) {
	rows, err := store.Detections(ctx, missionID, opts...)
	if err != nil {
		return 0, fmt.Errorf("reading detections: %w", err)
	}

	if err := w.Write([]string{"received_at", "drone_id", "mission_time", "type", "confidence", "latitude", "longitude"}); err != nil {
		return 0, err
	}
	for _, row := range rows {
		rec := []string{
			formatTime(row.ReceivedAt),
			strconv.Itoa(row.DroneID),
			row.MissionTime,
			row.Type,
			formatFloat(row.Confidence),
			formatFloat(row.Latitude),
			formatFloat(row.Longitude),
		}
		if err := w.Write(rec); err != nil {
			return 0, err
		}
	}
	return len(rows), nil
}

func exportCommands(ctx context.Context, store storage.Store, missionID string, w *csv.Writer, opts []storage.QueryOption) (int, error) {
	rows, err := store.Commands(ctx, missionID, opts...)
	if err != nil {
		return 0, fmt.Errorf("reading commands: %w", err)
	}

	if err := w.Write([]string{"received_at", "drone_id", "command"}); err != nil {
		return 0, err
	}
	for _, row := range rows {
		rec := []string{formatTime(row.ReceivedAt), strconv.Itoa(row.DroneID), row.Command}
		if err := w.Write(rec); err != nil {
			return 0, err
		}
	}
	return len(rows), nil
}

func exportEvents(ctx context.Context, store storage.Store, missionID string, w *csv.Writer, opts []storage.QueryOption) (int, error) {
	rows, err := store.Events(ctx, missionID, opts...)
	if err != nil {
		return 0, fmt.Errorf("reading events: %w", err)
	}

	if err := w.Write([]string{"time", "seq", "severity", "kind", "drone_id", "message"}); err != nil {
		return 0, err
	}
	for _, row := range rows {
		droneCol := ""
		if row.DroneID != 0 {
			droneCol = strconv.Itoa(row.DroneID)
		}
		rec := []string{
			formatTime(row.Time),
			strconv.FormatUint(row.Seq, 10),
			row.Severity,
			row.Kind,
			droneCol,
			row.Message,
		}
		if err := w.Write(rec); err != nil {
			return 0, err
		}
	}
	return len(rows), nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
