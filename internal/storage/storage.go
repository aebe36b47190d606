package storage

import (
	"context"
)

// Batch is one unit of persistence work: the rows accepted by the pipeline
// during one flush interval. A batch is written atomically.
type Batch struct {
	Telemetry  []TelemetryRow
	Detections []DetectionRow
	Commands   []CommandRow
	Events     []EventRow
}

// Empty reports whether the batch carries no rows.
func (b *Batch) Empty() bool {
	return b.Len() == 0
}

// Len returns the total number of rows in the batch.
func (b *Batch) Len() int {
	return len(b.Telemetry) + len(b.Detections) + len(b.Commands) + len(b.Events)
}

// Store provides an interface for managing mission data storage. It handles
// missions, telemetry, detections, commands and events in a thread-safe
// manner. All write operations are atomic.
type Store interface {
	// CreateMission opens a new mission and returns its unique identifier.
	// config can be a string, []byte, or any JSON-serializable value; it is
	// stored verbatim for later inspection of the run parameters.
	CreateMission(ctx context.Context, teamID string, config any) (missionID string, err error)

	// EndMission stamps the mission's end time. Ending an already ended
	// mission is a no-op.
	EndMission(ctx context.Context, missionID string) error

	// WriteBatch persists every row of the batch under the given mission in
	// a single transaction. On error nothing from the batch is persisted.
	WriteBatch(ctx context.Context, missionID string, batch *Batch) error

	// Mission retrieves a mission by its ID.
	Mission(ctx context.Context, id string) (*Mission, error)

	// Missions returns all recorded missions ordered by start time.
	Missions(ctx context.Context) ([]*Mission, error)

	// LatestMission returns the most recently started mission, or
	// sql.ErrNoRows if the database holds none.
	LatestMission(ctx context.Context) (*Mission, error)

	// Telemetry returns the mission's telemetry rows, ordered by receive
	// time. Filters: WithDrone, WithTimeRange, WithLimit.
	Telemetry(ctx context.Context, missionID string, opts ...QueryOption) ([]TelemetryRow, error)

	// Detections returns the mission's detection rows, ordered by receive
	// time. Accepts the same filters as Telemetry.
	Detections(ctx context.Context, missionID string, opts ...QueryOption) ([]DetectionRow, error)

	// Commands returns the mission's acknowledged commands, ordered by
	// receive time. Accepts the same filters as Telemetry.
	Commands(ctx context.Context, missionID string, opts ...QueryOption) ([]CommandRow, error)

	// Events returns the mission's persisted events, ordered by event time.
	// Accepts the same filters as Telemetry.
	Events(ctx context.Context, missionID string, opts ...QueryOption) ([]EventRow, error)

	// Close releases database resources. After Close the store cannot be
	// reused. It is safe to call Close multiple times.
	Close() error
}
