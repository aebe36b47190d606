// Command dronesim runs a two-drone mission simulator and serves the
// generated telemetry as newline-delimited records over TCP, the same
// framing the ground station ingests.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/nidar-uav/ground-control/internal/sim"
)

func main() {
	var (
		listenAddr = flag.String("listen", "127.0.0.1:9003", "TCP address to serve telemetry on, empty to disable")
		teamID     = flag.String("team", "1000", "Team identifier stamped on every record")
		droneCount = flag.Int("drones", 2, "Number of drones in the fleet")
		centerLat  = flag.Float64("center-lat", 12.9716, "Operating zone center latitude")
		centerLon  = flag.Float64("center-lon", 77.5946, "Operating zone center longitude")
		radiusKM   = flag.Float64("radius", 1.5, "Operating zone radius in kilometers")
		tick       = flag.Duration("tick", time.Second, "Telemetry tick interval")
		seed       = flag.Int64("seed", 0, "Random seed, 0 seeds from the clock")
		toStdout   = flag.Bool("stdout", false, "Also print records to stdout")
	)
	flag.Parse()

	// Telemetry may go to stdout, so logs go to stderr.
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if *droneCount < 1 {
		logger.Error("at least one drone is required")
		os.Exit(1)
	}
	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}

	ids := make([]int, *droneCount)
	for i := range ids {
		ids[i] = i + 1
	}
	fleet := sim.NewFleet(*teamID, ids, *centerLat, *centerLon, *radiusKM, time.Now(), *seed)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	hub := newHub(logger)
	if *listenAddr != "" {
		ln, err := net.Listen("tcp", *listenAddr)
		if err != nil {
			logger.Error("failed to listen", "addr", *listenAddr, "error", err)
			os.Exit(1)
		}
		defer ln.Close()

		go hub.acceptLoop(ln)
		logger.Info("serving telemetry", "addr", ln.Addr().String(), "drones", *droneCount, "seed", *seed)
	}

	ticker := time.NewTicker(*tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			hub.closeAll()
			logger.Info("simulation stopped")
			return

		case now := <-ticker.C:
			for _, pkt := range fleet.Tick(now) {
				line := pkt.Format()
				if *toStdout {
					fmt.Println(line)
				}
				hub.broadcast(line + "\n")
			}
		}
	}
}

// hub fans telemetry lines out to every connected ground station.
type hub struct {
	logger *slog.Logger

	mu    sync.Mutex
	conns map[net.Conn]struct{}
}

func newHub(logger *slog.Logger) *hub {
	return &hub{logger: logger, conns: make(map[net.Conn]struct{})}
}

func (h *hub) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}

		h.mu.Lock()
		h.conns[conn] = struct{}{}
		h.mu.Unlock()
		h.logger.Info("ground station connected", "remote", conn.RemoteAddr().String())
	}
}

func (h *hub) broadcast(line string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for conn := range h.conns {
		if _, err := conn.Write([]byte(line)); err != nil {
			h.logger.Info("ground station disconnected", "remote", conn.RemoteAddr().String())
			conn.Close()
			delete(h.conns, conn)
		}
	}
}

func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for conn := range h.conns {
		conn.Close()
	}
	clear(h.conns)
}
