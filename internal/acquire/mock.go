package acquire

import (
	"bytes"
	"errors"
	"sync"
)

var errPortClosed = errors.New("serial port closed")

// TestablePort implements Port for tests. Reads block until data is added
// or the port is closed. Each time a full command line is written, the next
// queued response (if any) becomes readable.
type TestablePort struct {
	mu   sync.Mutex
	cond *sync.Cond

	readBuf   bytes.Buffer
	written   bytes.Buffer
	responses []string

	// WriteError is returned by the next Write call if set.
	WriteError error

	Closed     bool
	WriteCalls int
	Opens      int
}

// NewTestablePort returns a port that answers successive commands with
// responses in order.
func NewTestablePort(responses ...string) *TestablePort {
	p := &TestablePort{responses: responses}
	p.cond = sync.NewCond(&p.mu)
	return p
}

func (p *TestablePort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for !p.Closed && p.readBuf.Len() == 0 {
		p.cond.Wait()
	}
	if p.Closed {
		return 0, errPortClosed
	}
	return p.readBuf.Read(b)
}

func (p *TestablePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.WriteCalls++
	if p.Closed {
		return 0, errPortClosed
	}
	if p.WriteError != nil {
		err := p.WriteError
		p.WriteError = nil
		return 0, err
	}

	p.written.Write(b)
	if bytes.HasSuffix(b, []byte("\n")) && len(p.responses) > 0 {
		p.readBuf.WriteString(p.responses[0])
		p.responses = p.responses[1:]
		p.cond.Broadcast()
	}
	return len(b), nil
}

// Close marks the port closed and wakes blocked readers.
func (p *TestablePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Closed = true
	p.cond.Broadcast()
	return nil
}

// AddReadData makes data readable immediately.
func (p *TestablePort) AddReadData(data string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.readBuf.WriteString(data)
	p.cond.Broadcast()
}

// Written returns everything written to the port so far.
func (p *TestablePort) Written() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.written.String()
}

// IsClosed reports whether Close was called.
func (p *TestablePort) IsClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Closed
}

// Opener returns an Opener that hands out p, reopening it if it was closed.
// Reopening drops any unread data, as a fresh serial handle would.
func (p *TestablePort) Opener() Opener {
	return func(string, PortOptions) (Port, error) {
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.Closed {
			p.Closed = false
			p.readBuf.Reset()
		}
		p.Opens++
		return p, nil
	}
}

// OpenCount returns how many times the port was handed out by Opener.
func (p *TestablePort) OpenCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Opens
}
