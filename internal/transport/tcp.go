package transport

import (
	"fmt"
	"net"
	"time"
)

const dialTimeout = 5 * time.Second

// DialTCP connects to a telemetry bridge listening on endpoint
// (host:port). readTimeout bounds each ReadLine; zero disables the bound.
func DialTCP(endpoint string, readTimeout time.Duration) (Source, error) {
	conn, err := net.DialTimeout("tcp", endpoint, dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", endpoint, err)
	}
	return newLineSource("tcp "+endpoint, conn, readTimeout), nil
}
