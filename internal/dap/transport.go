// Package dap implements the client side of the Debug Adapter Protocol over
// a duplex byte stream.
//
// The package provides:
//   - Transport: Content-Length framed message I/O over stdio pipes or TCP
//   - Client: request/response correlation, per-request timeouts, event fan-out
//
// The protocol is described at: https://microsoft.github.io/debug-adapter-protocol/
package dap

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/go-dap"
)

// MaxContentLength is the maximum allowed content length for DAP messages (10MB).
const MaxContentLength = 10 * 1024 * 1024

var headerSeparator = []byte("\r\n\r\n")

// ParseError reports a frame whose body could not be decoded as a DAP
// message. The stream remains usable; the caller may keep reading.
type ParseError struct {
	Body []byte
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to decode DAP message: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Transport provides DAP message I/O over a connection. Reads and writes may
// each be used from one goroutine at a time; reads may be concurrent with
// writes.
type Transport interface {
	// ReadMessage reads the next DAP protocol message, blocking until a
	// complete frame is available. A *ParseError return means the frame was
	// consumed but undecodable; the stream is still usable.
	ReadMessage() (dap.Message, error)

	// WriteMessage writes a DAP protocol message.
	WriteMessage(msg dap.Message) error

	// Close closes the transport. Idempotent; blocked reads return an error.
	Close() error
}

// frameScanner extracts Content-Length framed bodies from a byte stream.
// It is a two-state machine: seeking a header separator, then reading a body
// of exactly Content-Length bytes. A header without a parseable
// Content-Length is discarded through its separator so one malformed frame
// never poisons the stream. Bodies may arrive coalesced in one read or split
// across arbitrarily many.
type frameScanner struct {
	r   io.Reader
	buf []byte

	// contentLength is the pending body size, or -1 while seeking a header.
	contentLength int
}

func newFrameScanner(r io.Reader) *frameScanner {
	return &frameScanner{r: r, contentLength: -1}
}

// next returns the body of the next well-formed frame.
func (s *frameScanner) next() ([]byte, error) {
	for {
		if s.contentLength < 0 {
			if idx := bytes.Index(s.buf, headerSeparator); idx >= 0 {
				header := s.buf[:idx]
				s.buf = s.buf[idx+len(headerSeparator):]
				if n, ok := parseContentLength(header); ok {
					s.contentLength = n
				}
				// Malformed header: stay in seeking state, keep scanning.
				continue
			}
		} else if len(s.buf) >= s.contentLength {
			body := make([]byte, s.contentLength)
			copy(body, s.buf[:s.contentLength])
			s.buf = s.buf[s.contentLength:]
			s.contentLength = -1
			return body, nil
		}

		chunk := make([]byte, 4096)
		n, err := s.r.Read(chunk)
		if n > 0 {
			s.buf = append(s.buf, chunk[:n]...)
			continue
		}
		if err != nil {
			return nil, err
		}
	}
}

// parseContentLength extracts the Content-Length value from a header region.
// Header names are case-insensitive; headers other than Content-Length are
// ignored.
func parseContentLength(header []byte) (int, bool) {
	for _, line := range strings.Split(string(header), "\r\n") {
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		if !strings.EqualFold(strings.TrimSpace(name), "Content-Length") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || n < 0 || n > MaxContentLength {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

// streamTransport implements Transport over a read stream and a write stream.
type streamTransport struct {
	scanner *frameScanner
	w       io.Writer
	closers []io.Closer

	// writeMu protects concurrent writes
	writeMu sync.Mutex

	// closed indicates whether the transport has been closed
	closed bool
	mu     sync.Mutex
}

// NewStdioTransport creates a Transport over a child process's pipes:
// the child's stdout is the input stream and its stdin the output stream.
func NewStdioTransport(stdin io.WriteCloser, stdout io.ReadCloser) Transport {
	return &streamTransport{
		scanner: newFrameScanner(stdout),
		w:       stdin,
		closers: []io.Closer{stdin, stdout},
	}
}

// NewTCPTransport creates a Transport over an established TCP connection.
func NewTCPTransport(conn net.Conn) Transport {
	return &streamTransport{
		scanner: newFrameScanner(conn),
		w:       conn,
		closers: []io.Closer{conn},
	}
}

// DialTCP connects to a listening debug adapter, retrying with exponential
// backoff until the adapter accepts or the timeout elapses.
func DialTCP(ctx context.Context, address string, timeout time.Duration) (Transport, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 100 * time.Millisecond
	bo.MaxElapsedTime = timeout

	var conn net.Conn
	operation := func() error {
		var d net.Dialer
		c, err := d.DialContext(ctx, "tcp", address)
		if err != nil {
			return err
		}
		conn = c
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		return nil, fmt.Errorf("failed to connect to debug adapter at %s: %w", address, err)
	}
	return NewTCPTransport(conn), nil
}

func (t *streamTransport) ReadMessage() (dap.Message, error) {
	body, err := t.scanner.next()
	if err != nil {
		return nil, err
	}

	msg, decodeErr := dap.DecodeProtocolMessage(body)
	if decodeErr != nil {
		return nil, &ParseError{Body: body, Err: decodeErr}
	}
	return msg, nil
}

func (t *streamTransport) WriteMessage(msg dap.Message) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return fmt.Errorf("transport is closed")
	}
	t.mu.Unlock()

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if err := dap.WriteProtocolMessage(t.w, msg); err != nil {
		return fmt.Errorf("failed to write DAP message: %w", err)
	}
	return nil
}

func (t *streamTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true

	var firstErr error
	for _, c := range t.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
