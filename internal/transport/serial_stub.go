//go:build !linux

package transport

import (
	"time"
)

// OpenSerial is a stub on platforms without termios support.
func OpenSerial(port string, baud int, readTimeout time.Duration) (Source, error) {
	return nil, ErrUnsupported
}
