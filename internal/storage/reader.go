package storage

import (
	"fmt"
	"strings"
	"time"
)

// query collects the row filters shared by all mission readers.
type query struct {
	droneID *int
	from    *time.Time
	to      *time.Time
	limit   int
}

// QueryOption configures a mission row reader.
type QueryOption func(*query)

// WithDrone restricts results to a single drone.
func WithDrone(id int) QueryOption {
	return func(q *query) {
		q.droneID = &id
	}
}

// WithStartTime excludes rows before t.
func WithStartTime(t time.Time) QueryOption {
	return func(q *query) {
		q.from = &t
	}
}

// WithEndTime excludes rows after t.
func WithEndTime(t time.Time) QueryOption {
	return func(q *query) {
		q.to = &t
	}
}

// WithTimeRange restricts results to rows within [from, to].
func WithTimeRange(from, to time.Time) QueryOption {
	return func(q *query) {
		q.from = &from
		q.to = &to
	}
}

// WithLimit caps the number of returned rows.
func WithLimit(n int) QueryOption {
	return func(q *query) {
		q.limit = n
	}
}

func newQuery(opts []QueryOption) query {
	var q query
	for _, opt := range opts {
		opt(&q)
	}
	return q
}

// build appends the filter clauses to a base SELECT whose first placeholder
// is the mission ID. timeCol is the table's time column, received_at on the
// row tables and time on events.
func (q query) build(base, timeCol, missionID string) (string, []any) {
	var sb strings.Builder
	sb.WriteString(base)
	args := []any{missionID}

	if q.droneID != nil {
		sb.WriteString(" AND drone_id = ?")
		args = append(args, *q.droneID)
	}
	if q.from != nil {
		fmt.Fprintf(&sb, " AND %s >= ?", timeCol)
		args = append(args, q.from.UTC())
	}
	if q.to != nil {
		fmt.Fprintf(&sb, " AND %s <= ?", timeCol)
		args = append(args, q.to.UTC())
	}

	fmt.Fprintf(&sb, " ORDER BY %s, id", timeCol)
	if q.limit > 0 {
		sb.WriteString(" LIMIT ?")
		args = append(args, q.limit)
	}
	return sb.String(), args
}
