// Package stdio implements the newline-delimited JSON-RPC pipe transport.
//
// Each message occupies exactly one line on the underlying stream. Incoming
// blank lines are skipped. The transport does not parse the payload; callers
// hand each line to the dispatcher and write back whatever it produces.
package stdio

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/localrivet/fichas-mcp/logx"
	"github.com/localrivet/fichas-mcp/types"
)

// ErrClosed is returned by Send and Receive after Close.
var ErrClosed = errors.New("stdio transport is closed")

// Transport reads messages from r and writes them to w, one per line.
// Send is safe for concurrent use. Receive must be called from a single
// goroutine.
type Transport struct {
	reader    *bufio.Reader
	rawReader io.Reader
	writer    io.Writer

	writeMu sync.Mutex
	closeMu sync.Mutex
	closed  bool

	logger types.Logger
}

// NewTransport creates a Transport over the given streams. A nil logger
// discards diagnostics.
func NewTransport(r io.Reader, w io.Writer, logger types.Logger) *Transport {
	if logger == nil {
		logger = logx.NopLogger{}
	}
	return &Transport{
		reader:    bufio.NewReaderSize(r, 64*1024),
		rawReader: r,
		writer:    w,
		logger:    logger,
	}
}

// Send writes data followed by a single newline. Trailing newlines already
// present in data are trimmed so each message is exactly one line.
func (t *Transport) Send(data []byte) error {
	if t.isClosed() {
		return ErrClosed
	}
	line := make([]byte, 0, len(data)+1)
	line = append(line, bytes.TrimRight(data, "\r\n")...)
	line = append(line, '\n')

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if _, err := t.writer.Write(line); err != nil {
		return fmt.Errorf("stdio: write: %w", err)
	}
	if f, ok := t.writer.(interface{ Flush() error }); ok {
		if err := f.Flush(); err != nil {
			return fmt.Errorf("stdio: flush: %w", err)
		}
	}
	return nil
}

// Receive returns the next non-empty line without its line terminator.
// A final line without a trailing newline is still returned. At end of
// input Receive returns io.EOF.
func (t *Transport) Receive() ([]byte, error) {
	for {
		if t.isClosed() {
			return nil, ErrClosed
		}
		line, err := t.reader.ReadBytes('\n')
		trimmed := bytes.TrimSpace(line)
		if len(trimmed) > 0 {
			if err != nil && err != io.EOF {
				t.logger.Warn("stdio: read error after partial line: %v", err)
			}
			t.logger.Debug("stdio: received %d bytes", len(trimmed))
			return trimmed, nil
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, io.EOF
			}
			return nil, fmt.Errorf("stdio: read: %w", err)
		}
	}
}

// Close marks the transport closed and closes the underlying streams when
// they implement io.Closer. It is idempotent.
func (t *Transport) Close() error {
	t.closeMu.Lock()
	if t.closed {
		t.closeMu.Unlock()
		return nil
	}
	t.closed = true
	t.closeMu.Unlock()

	var firstErr error
	if c, ok := t.writer.(io.Closer); ok {
		if err := c.Close(); err != nil && !errors.Is(err, io.ErrClosedPipe) {
			firstErr = err
		}
	}
	if c, ok := t.rawReader.(io.Closer); ok {
		if err := c.Close(); err != nil && !errors.Is(err, io.ErrClosedPipe) && firstErr == nil {
			firstErr = err
		}
	}
	t.logger.Debug("stdio: transport closed")
	return firstErr
}

func (t *Transport) isClosed() bool {
	t.closeMu.Lock()
	defer t.closeMu.Unlock()
	return t.closed
}
