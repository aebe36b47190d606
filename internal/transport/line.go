package transport

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"sync"
	"time"
)

// deadlineReader is the part of net.Conn and *os.File the line source
// needs: polled reads bounded by a deadline.
type deadlineReader interface {
	io.ReadCloser
	SetReadDeadline(t time.Time) error
}

// lineSource turns a deadline-capable byte stream into a Source. A record
// cut off by the read timeout is kept and completed on the next poll, so a
// slow link never corrupts records.
type lineSource struct {
	name    string
	stream  deadlineReader
	reader  *bufio.Reader
	timeout time.Duration
	partial strings.Builder

	mu     sync.Mutex
	closed bool
}

func newLineSource(name string, stream deadlineReader, timeout time.Duration) *lineSource {
	return &lineSource{
		name:    name,
		stream:  stream,
		reader:  bufio.NewReader(stream),
		timeout: timeout,
	}
}

func (s *lineSource) ReadLine() (string, error) {
	if s.isClosed() {
		return "", ErrClosed
	}

	if s.timeout > 0 {
		if err := s.stream.SetReadDeadline(time.Now().Add(s.timeout)); err != nil {
			return "", fmt.Errorf("setting read deadline on %s: %w", s.name, err)
		}
	}

	chunk, err := s.reader.ReadString('\n')
	if err != nil {
		// Keep the fragment; the rest of the record arrives on a later poll.
		s.partial.WriteString(chunk)

		switch {
		case errors.Is(err, os.ErrDeadlineExceeded):
			return "", ErrTimeout
		case s.isClosed(), errors.Is(err, net.ErrClosed), errors.Is(err, os.ErrClosed):
			return "", ErrClosed
		case errors.Is(err, io.EOF):
			return "", io.EOF
		default:
			return "", fmt.Errorf("reading from %s: %w", s.name, err)
		}
	}

	line := s.partial.String() + chunk
	s.partial.Reset()
	return strings.TrimRight(line, "\r\n"), nil
}

func (s *lineSource) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	return s.stream.Close()
}

func (s *lineSource) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
