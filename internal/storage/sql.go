package storage

import (
	_ "embed"
)

//go:embed schema.sql
var initSchemaSQL string

// Indexes are created on Close so they never slow down mission writes.
const initIndexesSQL = `
CREATE INDEX IF NOT EXISTS idx_telemetry_mission_time ON telemetry (mission_id, received_at);
CREATE INDEX IF NOT EXISTS idx_telemetry_drone ON telemetry (mission_id, drone_id, received_at);
CREATE INDEX IF NOT EXISTS idx_detections_mission_time ON detections (mission_id, received_at);
CREATE INDEX IF NOT EXISTS idx_commands_mission_time ON commands (mission_id, received_at);
CREATE INDEX IF NOT EXISTS idx_events_mission_time ON events (mission_id, time);`

const (
	insertMissionSQL = `
INSERT INTO missions (id, team_id, start_time, config)
VALUES (?, ?, ?, ?)`

	endMissionSQL = `
UPDATE missions
SET end_time = ?
WHERE id = ? AND end_time IS NULL`

	selectMissionSQL = `
SELECT id, team_id, start_time, end_time, config
FROM missions
WHERE id = ?`

	selectMissionsSQL = `
SELECT id, team_id, start_time, end_time, config
FROM missions
ORDER BY start_time`

	selectLatestMissionSQL = `
SELECT id, team_id, start_time, end_time, config
FROM missions
ORDER BY start_time DESC, id DESC
LIMIT 1`
)

// Batch insert statements; the VALUES tuples are appended per row.
const (
	insertTelemetrySQL = `
INSERT INTO telemetry (mission_id,
                       drone_id,
                       received_at,
                       mission_time,
                       packet_count,
                       mode,
                       state,
                       altitude,
                       temperature,
                       pressure,
                       voltage,
                       gyro_r,
                       gyro_p,
                       gyro_y,
                       accel_r,
                       accel_p,
                       accel_y,
                       mag_r,
                       mag_p,
                       mag_y,
                       gps_time,
                       gps_altitude,
                       latitude,
                       longitude,
                       satellites,
                       battery,
                       link_status,
                       autonomy_mode,
                       geofence_breach,
                       payload_status,
                       cmd_echo)
VALUES `

	insertDetectionSQL = `
INSERT INTO detections (mission_id,
                        drone_id,
                        received_at,
                        mission_time,
                        type,
                        confidence,
                        latitude,
                        longitude)
VALUES `

	insertCommandSQL = `
INSERT INTO commands (mission_id,
                      drone_id,
                      received_at,
                      command)
VALUES `

	insertEventSQL = `
INSERT INTO events (mission_id,
                    seq,
                    time,
                    severity,
                    kind,
                    drone_id,
                    message)
VALUES `
)

// Select column lists for the mission row readers; filters are appended by
// the query builder.
const (
	selectTelemetrySQL = `
SELECT id,
       mission_id,
       drone_id,
       received_at,
       mission_time,
       packet_count,
       mode,
       state,
       altitude,
       temperature,
       pressure,
       voltage,
       gyro_r,
       gyro_p,
       gyro_y,
       accel_r,
       accel_p,
       accel_y,
       mag_r,
       mag_p,
       mag_y,
       gps_time,
       gps_altitude,
       latitude,
       longitude,
       satellites,
       battery,
       link_status,
       autonomy_mode,
       geofence_breach,
       payload_status,
       cmd_echo
FROM telemetry
WHERE mission_id = ?`

	selectDetectionsSQL = `
SELECT id,
       mission_id,
       drone_id,
       received_at,
       mission_time,
       type,
       confidence,
       latitude,
       longitude
FROM detections
WHERE mission_id = ?`

	selectCommandsSQL = `
SELECT id,
       mission_id,
       drone_id,
       received_at,
       command
FROM commands
WHERE mission_id = ?`

	selectEventsSQL = `
SELECT id,
       mission_id,
       seq,
       time,
       severity,
       kind,
       drone_id,
       message
FROM events
WHERE mission_id = ?`
)
