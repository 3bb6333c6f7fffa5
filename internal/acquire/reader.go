// Package acquire reads TEDS memory from sensor interface hardware over a
// serial line.
//
// The interface answers a request command with one line of integers, one per
// transmitted unit, in the order the memory is read out. Integers may be
// decimal or 0x-prefixed hex, separated by commas or whitespace.
package acquire

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/banshee-data/teds/internal/monitoring"
	"github.com/banshee-data/teds/internal/teds"
	"github.com/banshee-data/teds/internal/timeutil"
)

var (
	ErrClosed   = errors.New("reader closed")
	ErrTimeout  = errors.New("timed out waiting for TEDS response")
	ErrNoTEDS   = errors.New("no TEDS data in response")
	ErrDevice   = errors.New("device reported an error")
	ErrBadWords = errors.New("malformed TEDS word list")
)

// Reader issues TEDS read requests over a single port. It is safe for
// concurrent use; requests are serialised.
//
// A request that times out or is cancelled abandons the port, since the
// device may still be mid-response. Readers created with Open reopen the
// port on the next request; readers wrapping a port with NewReader cannot
// and report ErrClosed from then on.
type Reader struct {
	name   string
	opts   PortOptions
	clock  timeutil.Clock
	reopen func() (Port, error)

	mu     sync.Mutex
	port   Port // nil after an abandoned request
	br     *bufio.Reader
	closed bool
}

// NewReader wraps an open port. name is used in log lines only.
func NewReader(name string, port Port, opts PortOptions) (*Reader, error) {
	opts, err := opts.Normalize()
	if err != nil {
		return nil, err
	}
	return &Reader{
		name:  name,
		opts:  opts,
		clock: timeutil.RealClock{},
		port:  port,
		br:    bufio.NewReader(port),
	}, nil
}

// SetClock replaces the clock that times requests.
func (r *Reader) SetClock(c timeutil.Clock) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clock = c
}

// Open opens path with open, or with OpenSerial when open is nil.
func Open(path string, opts PortOptions, open Opener) (*Reader, error) {
	if open == nil {
		open = OpenSerial
	}
	port, err := open(path, opts)
	if err != nil {
		return nil, err
	}
	r, err := NewReader(path, port, opts)
	if err != nil {
		port.Close()
		return nil, err
	}
	r.reopen = func() (Port, error) { return open(path, opts) }
	return r, nil
}

// ReadWords requests the TEDS memory and returns the raw hardware words.
func (r *Reader) ReadWords(ctx context.Context) ([]uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := r.ensurePortLocked(); err != nil {
		return nil, err
	}

	if _, err := r.port.Write([]byte(r.opts.Command + "\n")); err != nil {
		return nil, fmt.Errorf("failed to send %q to %s: %w", r.opts.Command, r.name, err)
	}

	type result struct {
		line string
		err  error
	}
	done := make(chan result, 1)
	br := r.br
	go func() {
		line, err := br.ReadString('\n')
		done <- result{line, err}
	}()

	timer := r.clock.NewTimer(r.opts.Timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		r.abandonLocked(func() { <-done })
		return nil, ctx.Err()
	case <-timer.C():
		r.abandonLocked(func() { <-done })
		return nil, fmt.Errorf("%w after %s on %s", ErrTimeout, r.opts.Timeout, r.name)
	case res := <-done:
		if res.err != nil && res.line == "" {
			return nil, fmt.Errorf("failed to read response from %s: %w", r.name, res.err)
		}
		words, err := ParseWords(res.line)
		if err != nil {
			return nil, err
		}
		monitoring.Logf("acquire: read %d TEDS words from %s", len(words), r.name)
		return words, nil
	}
}

// ensurePortLocked reopens the port after an abandoned request.
func (r *Reader) ensurePortLocked() error {
	if r.port != nil {
		return nil
	}
	if r.reopen == nil {
		r.closed = true
		return ErrClosed
	}
	port, err := r.reopen()
	if err != nil {
		return fmt.Errorf("failed to reopen %s: %w", r.name, err)
	}
	monitoring.Logf("acquire: reopened %s", r.name)
	r.port = port
	r.br = bufio.NewReader(port)
	return nil
}

// abandonLocked closes the port and waits for the pending read to return so
// a stale response cannot leak into the next request.
func (r *Reader) abandonLocked(wait func()) {
	if err := r.port.Close(); err != nil {
		monitoring.Logf("acquire: closing %s after abandoned request: %v", r.name, err)
	}
	wait()
	r.port = nil
	r.br = nil
}

// ReadDocument reads and decodes the TEDS memory.
func (r *Reader) ReadDocument(ctx context.Context) (*teds.Document, error) {
	words, err := r.ReadWords(ctx)
	if err != nil {
		return nil, err
	}
	return teds.DecodeWords(words)
}

// Close closes the underlying port. It is safe to call more than once.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closeLocked()
}

func (r *Reader) closeLocked() error {
	if r.closed {
		return nil
	}
	r.closed = true
	if r.port == nil {
		return nil
	}
	return r.port.Close()
}

// ParseWords parses one response line into hardware words.
func ParseWords(line string) ([]uint64, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, ErrNoTEDS
	}
	if strings.HasPrefix(strings.ToUpper(line), "ERR") {
		return nil, fmt.Errorf("%w: %s", ErrDevice, line)
	}

	tokens := strings.FieldsFunc(line, func(r rune) bool {
		return r == ',' || r == ';' || r == ' ' || r == '\t'
	})
	words := make([]uint64, 0, len(tokens))
	for i, tok := range tokens {
		w, err := strconv.ParseUint(tok, 0, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: word %d %q", ErrBadWords, i, tok)
		}
		words = append(words, w)
	}
	if len(words) == 0 {
		return nil, ErrNoTEDS
	}
	return words, nil
}
