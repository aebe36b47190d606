package transport

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// replaySource plays a recorded packet log back as if it were a live link.
type replaySource struct {
	file     *os.File
	scanner  *bufio.Scanner
	interval time.Duration
	loop     bool
	started  bool

	mu      sync.Mutex
	closed  bool
	closing chan struct{}
}

// OpenReplay opens the packet log at path. interval is the recorded packet
// period and speed scales playback, so interval 1s at speed 2.0 emits a
// record every 500ms. With loop enabled the log restarts from the top at
// end of file instead of reporting io.EOF.
func OpenReplay(path string, interval time.Duration, speed float64, loop bool) (Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening packet log: %w", err)
	}
	if speed <= 0 {
		speed = 1.0
	}

	return &replaySource{
		file:     f,
		scanner:  bufio.NewScanner(f),
		interval: time.Duration(float64(interval) / speed),
		loop:     loop,
		closing:  make(chan struct{}),
	}, nil
}

func (r *replaySource) ReadLine() (string, error) {
	if r.isClosed() {
		return "", ErrClosed
	}

	// The first record plays immediately, the rest at the playback pace.
	if r.started && r.interval > 0 {
		select {
		case <-r.closing:
			return "", ErrClosed
		case <-time.After(r.interval):
		}
	}
	r.started = true

	for {
		if r.scanner.Scan() {
			line := strings.TrimSpace(r.scanner.Text())
			if line == "" {
				continue
			}
			return line, nil
		}

		if err := r.scanner.Err(); err != nil {
			if r.isClosed() {
				return "", ErrClosed
			}
			return "", fmt.Errorf("reading packet log: %w", err)
		}

		if !r.loop {
			return "", io.EOF
		}
		if _, err := r.file.Seek(0, io.SeekStart); err != nil {
			return "", fmt.Errorf("rewinding packet log: %w", err)
		}
		r.scanner = bufio.NewScanner(r.file)
	}
}

func (r *replaySource) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.closing)
	r.mu.Unlock()

	return r.file.Close()
}

func (r *replaySource) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}
