// Package transport provides the line-oriented links a ground station
// receives telemetry over: a TCP client, a Linux serial port and a recorded
// packet log for replay. Every link implements Source; the ingestion loop
// polls ReadLine and treats ErrTimeout as "try again" and everything else
// as a lost link.
package transport

import (
	"errors"
)

// Source is one telemetry link delivering newline-terminated records.
type Source interface {
	// ReadLine returns the next record with the trailing newline stripped.
	// It returns ErrTimeout when no full record arrived within the
	// configured read timeout, ErrClosed after Close, and io.EOF when the
	// remote end hung up.
	ReadLine() (string, error)

	// Close shuts the link down and unblocks a pending ReadLine.
	Close() error
}

var (
	// ErrTimeout reports that no record arrived within the read timeout.
	// The link is still up; callers should poll again.
	ErrTimeout = errors.New("transport: read timeout")

	// ErrClosed reports a read on a link closed by this side.
	ErrClosed = errors.New("transport: closed")

	// ErrUnsupported reports a serial link on a platform without termios
	// support.
	ErrUnsupported = errors.New("transport: serial not supported on this platform")
)
