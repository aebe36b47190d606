package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// maxRowsPerInsert keeps a batch INSERT for the widest table under SQLite's
// host parameter limit.
const maxRowsPerInsert = 30

// SqliteStore is the SQLite implementation of Store. It lazily opens
// separate write and read connections; the write connection runs in WAL
// mode so readers never block the ingestion path.
type SqliteStore struct {
	dbPath string

	writeDB     *sql.DB
	writeDBOnce sync.Once
	writeDBErr  error

	readDB     *sql.DB
	readDBOnce sync.Once
	readDBErr  error

	closeOnce sync.Once
	closeErr  error
}

// NewSqliteStore creates a store for the database file at dbPath. The file
// and schema are created on first write.
func NewSqliteStore(dbPath string) *SqliteStore {
	return &SqliteStore{dbPath: dbPath}
}

func runSQLCommand(db *sql.DB, sql string) error {
	_, err := db.Exec(sql)
	return err
}

func (s *SqliteStore) getWriteDB() (*sql.DB, error) {
	s.writeDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "_journal_mode=WAL&_synchronous=NORMAL"))
		if err != nil {
			s.writeDBErr = fmt.Errorf("opening write connection: %w", err)
			return
		}

		if err = runSQLCommand(db, initSchemaSQL); err != nil {
			_ = db.Close()
			s.writeDBErr = fmt.Errorf("initializing schema: %w", err)
			return
		}

		s.writeDB = db
	})

	return s.writeDB, s.writeDBErr
}

func (s *SqliteStore) getReadDB() (*sql.DB, error) {
	s.readDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "mode=ro"))
		if err != nil {
			s.readDBErr = fmt.Errorf("opening read connection: %w", err)
			return
		}
		s.readDB = db
	})

	return s.readDB, s.readDBErr
}

func (s *SqliteStore) CreateMission(ctx context.Context, teamID string, config any) (missionID string, err error) {
	var configData sql.NullString

	if config != nil {
		switch v := config.(type) {
		case string:
			configData.Valid = true
			configData.String = v

		case []byte:
			configData.Valid = true
			configData.String = string(v)

		default:
			var p []byte
			if p, err = json.Marshal(config); err != nil {
				err = fmt.Errorf("marshaling config: %w", err)
				return
			}

			configData.Valid = true
			configData.String = string(p)
		}
	}

	db, err := s.getWriteDB()
	if err != nil {
		err = fmt.Errorf("getting write connection: %w", err)
		return
	}

	stmt, err := db.PrepareContext(ctx, insertMissionSQL)
	if err != nil {
		err = fmt.Errorf("preparing statement: %w", err)
		return
	}
	defer closeWithError(stmt, &err)

	missionID = uuid.NewString()
	if _, err = stmt.ExecContext(ctx, missionID, teamID, time.Now().UTC(), configData); err != nil {
		err = fmt.Errorf("inserting mission: %w", err)
		return
	}
	return missionID, nil
}

func (s *SqliteStore) EndMission(ctx context.Context, missionID string) error {
	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	if _, err := db.ExecContext(ctx, endMissionSQL, time.Now().UTC(), missionID); err != nil {
		return fmt.Errorf("ending mission: %w", err)
	}
	return nil
}

func (s *SqliteStore) WriteBatch(ctx context.Context, missionID string, batch *Batch) (err error) {
	if batch == nil || batch.Empty() {
		return nil
	}

	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer rollbackWithError(tx, &err)

	if err = insertTelemetryRows(ctx, tx, missionID, batch.Telemetry); err != nil {
		return err
	}
	if err = insertDetectionRows(ctx, tx, missionID, batch.Detections); err != nil {
		return err
	}
	if err = insertCommandRows(ctx, tx, missionID, batch.Commands); err != nil {
		return err
	}
	if err = insertEventRows(ctx, tx, missionID, batch.Events); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func insertTelemetryRows(ctx context.Context, tx *sql.Tx, missionID string, rows []TelemetryRow) error {
	for chunk := range slices.Chunk(rows, maxRowsPerInsert) {
		values := make([]interface{}, 0, len(chunk)*31)

		var sb strings.Builder
		sb.WriteString(insertTelemetrySQL)

		for i, row := range chunk {
			values = append(values,
				missionID,
				row.DroneID,
				row.ReceivedAt,
				row.MissionTime,
				row.PacketCount,
				row.Mode,
				row.State,
				row.Altitude,
				row.Temperature,
				row.Pressure,
				row.Voltage,
				row.GyroRoll,
				row.GyroPitch,
				row.GyroYaw,
				row.AccelRoll,
				row.AccelPitch,
				row.AccelYaw,
				row.MagRoll,
				row.MagPitch,
				row.MagYaw,
				row.GPSTime,
				row.GPSAltitude,
				row.Latitude,
				row.Longitude,
				row.Satellites,
				row.Battery,
				row.LinkStatus,
				row.AutonomyMode,
				boolToInt(row.GeofenceBreach),
				row.PayloadStatus,
				row.CmdEcho,
			)

			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(valuesPlaceholder(31))
		}

		if _, err := tx.ExecContext(ctx, sb.String(), values...); err != nil {
			return fmt.Errorf("batch inserting telemetry: %w", err)
		}
	}
	return nil
}

func insertDetectionRows(ctx context.Context, tx *sql.Tx, missionID string, rows []DetectionRow) error {
	for chunk := range slices.Chunk(rows, maxRowsPerInsert) {
		values := make([]interface{}, 0, len(chunk)*8)

		var sb strings.Builder
		sb.WriteString(insertDetectionSQL)

		for i, row := range chunk {
			values = append(values,
				missionID,
				row.DroneID,
				row.ReceivedAt,
				row.MissionTime,
				row.Type,
				row.Confidence,
				row.Latitude,
				row.Longitude,
			)

			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(valuesPlaceholder(8))
		}

		if _, err := tx.ExecContext(ctx, sb.String(), values...); err != nil {
			return fmt.Errorf("batch inserting detections: %w", err)
		}
	}
	return nil
}

func insertCommandRows(ctx context.Context, tx *sql.Tx, missionID string, rows []CommandRow) error {
	for chunk := range slices.Chunk(rows, maxRowsPerInsert) {
		values := make([]interface{}, 0, len(chunk)*4)

		var sb strings.Builder
		sb.WriteString(insertCommandSQL)

		for i, row := range chunk {
			values = append(values, missionID, row.DroneID, row.ReceivedAt, row.Command)

			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(valuesPlaceholder(4))
		}

		if _, err := tx.ExecContext(ctx, sb.String(), values...); err != nil {
			return fmt.Errorf("batch inserting commands: %w", err)
		}
	}
	return nil
}

func insertEventRows(ctx context.Context, tx *sql.Tx, missionID string, rows []EventRow) error {
	for chunk := range slices.Chunk(rows, maxRowsPerInsert) {
		values := make([]interface{}, 0, len(chunk)*7)

		var sb strings.Builder
		sb.WriteString(insertEventSQL)

		for i, row := range chunk {
			values = append(values,
				missionID,
				row.Seq,
				row.Time,
				row.Severity,
				row.Kind,
				nullableDroneID(row.DroneID),
				row.Message,
			)

			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(valuesPlaceholder(7))
		}

		if _, err := tx.ExecContext(ctx, sb.String(), values...); err != nil {
			return fmt.Errorf("batch inserting events: %w", err)
		}
	}
	return nil
}

func (s *SqliteStore) Mission(ctx context.Context, id string) (mission *Mission, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	stmt, err := db.PrepareContext(ctx, selectMissionSQL)
	if err != nil {
		err = fmt.Errorf("preparing statement: %w", err)
		return
	}
	defer closeWithError(stmt, &err)

	mission, err = scanMission(stmt.QueryRowContext(ctx, id))
	if err != nil {
		err = fmt.Errorf("scanning mission: %w", err)
		return
	}
	return mission, nil
}

func (s *SqliteStore) Missions(ctx context.Context) (missions []*Mission, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectMissionsSQL)
	if err != nil {
		err = fmt.Errorf("querying missions: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var m *Mission
		if m, err = scanMission(rows); err != nil {
			err = fmt.Errorf("scanning mission: %w", err)
			return
		}
		missions = append(missions, m)
	}
	err = rows.Err()
	return
}

func (s *SqliteStore) LatestMission(ctx context.Context) (mission *Mission, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	mission, err = scanMission(db.QueryRowContext(ctx, selectLatestMissionSQL))
	if err != nil {
		err = fmt.Errorf("scanning mission: %w", err)
		return
	}
	return mission, nil
}

func scanMission(row interface{ Scan(...any) error }) (*Mission, error) {
	var m Mission
	var endTime sql.NullTime
	var config sql.NullString

	if err := row.Scan(&m.ID, &m.TeamID, &m.StartTime, &endTime, &config); err != nil {
		return nil, err
	}
	if endTime.Valid {
		t := endTime.Time
		m.EndTime = &t
	}
	if config.Valid {
		c := config.String
		m.Config = &c
	}
	return &m, nil
}

func (s *SqliteStore) Telemetry(ctx context.Context, missionID string, opts ...QueryOption) (result []TelemetryRow, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	stmt, args := newQuery(opts).build(selectTelemetrySQL, "received_at", missionID)
	rows, err := db.QueryContext(ctx, stmt, args...)
	if err != nil {
		err = fmt.Errorf("querying telemetry: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var row TelemetryRow
		if err = rows.Scan(
			&row.ID,
			&row.MissionID,
			&row.DroneID,
			&row.ReceivedAt,
			&row.MissionTime,
			&row.PacketCount,
			&row.Mode,
			&row.State,
			&row.Altitude,
			&row.Temperature,
			&row.Pressure,
			&row.Voltage,
			&row.GyroRoll,
			&row.GyroPitch,
			&row.GyroYaw,
			&row.AccelRoll,
			&row.AccelPitch,
			&row.AccelYaw,
			&row.MagRoll,
			&row.MagPitch,
			&row.MagYaw,
			&row.GPSTime,
			&row.GPSAltitude,
			&row.Latitude,
			&row.Longitude,
			&row.Satellites,
			&row.Battery,
			&row.LinkStatus,
			&row.AutonomyMode,
			&row.GeofenceBreach,
			&row.PayloadStatus,
			&row.CmdEcho,
		); err != nil {
			err = fmt.Errorf("scanning telemetry: %w", err)
			return
		}
		result = append(result, row)
	}
	err = rows.Err()
	return
}

func (s *SqliteStore) Detections(ctx context.Context, missionID string, opts ...QueryOption) (result []DetectionRow, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	stmt, args := newQuery(opts).build(selectDetectionsSQL, "received_at", missionID)
	rows, err := db.QueryContext(ctx, stmt, args...)
	if err != nil {
		err = fmt.Errorf("querying detections: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var row DetectionRow
		if err = rows.Scan(
			&row.ID,
			&row.MissionID,
			&row.DroneID,
			&row.ReceivedAt,
			&row.MissionTime,
			&row.Type,
			&row.Confidence,
			&row.Latitude,
			&row.Longitude,
		); err != nil {
			err = fmt.Errorf("scanning detection: %w", err)
			return
		}
		result = append(result, row)
	}
	err = rows.Err()
	return
}

func (s *SqliteStore) Commands(ctx context.Context, missionID string, opts ...QueryOption) (result []CommandRow, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	stmt, args := newQuery(opts).build(selectCommandsSQL, "received_at", missionID)
	rows, err := db.QueryContext(ctx, stmt, args...)
	if err != nil {
		err = fmt.Errorf("querying commands: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var row CommandRow
		if err = rows.Scan(&row.ID, &row.MissionID, &row.DroneID, &row.ReceivedAt, &row.Command); err != nil {
			err = fmt.Errorf("scanning command: %w", err)
			return
		}
		result = append(result, row)
	}
	err = rows.Err()
	return
}

func (s *SqliteStore) Events(ctx context.Context, missionID string, opts ...QueryOption) (result []EventRow, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	stmt, args := newQuery(opts).build(selectEventsSQL, "time", missionID)
	rows, err := db.QueryContext(ctx, stmt, args...)
	if err != nil {
		err = fmt.Errorf("querying events: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var row EventRow
		var droneID sql.NullInt64
		if err = rows.Scan(
			&row.ID,
			&row.MissionID,
			&row.Seq,
			&row.Time,
			&row.Severity,
			&row.Kind,
			&droneID,
			&row.Message,
		); err != nil {
			err = fmt.Errorf("scanning event: %w", err)
			return
		}
		row.DroneID = int(droneID.Int64)
		result = append(result, row)
	}
	err = rows.Err()
	return
}

func (s *SqliteStore) Close() error {
	s.closeOnce.Do(func() {
		var writeErr, readErr error

		if s.writeDB != nil {
			_ = runSQLCommand(s.writeDB, initIndexesSQL)

			writeErr = s.writeDB.Close()
			s.writeDB = nil
		}

		if s.readDB != nil {
			readErr = s.readDB.Close()
			s.readDB = nil
		}

		switch {
		case writeErr != nil && readErr != nil:
			s.closeErr = errors.Join(writeErr, readErr)
		case writeErr != nil:
			s.closeErr = writeErr
		case readErr != nil:
			s.closeErr = readErr
		}
	})

	return s.closeErr
}
