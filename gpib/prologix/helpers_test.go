package prologix

import (
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/arloliu/go-gpib/logger"
	"github.com/stretchr/testify/require"
)

// fakePort decodes what the bus writes into lines and answers them through a
// responder, the way a controller with one instrument attached would.
type fakePort struct {
	mu        sync.Mutex
	line      []byte
	escNext   bool
	lines     []string
	addr      int
	rx        []byte
	responder func(addr int, line string) []byte
	resets    int
	closed    bool
}

func newFakePort() *fakePort {
	return &fakePort{addr: -1}
}

func (p *fakePort) respond(fn func(addr int, line string) []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.responder = fn
}

func (p *fakePort) Write(data []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, c := range data {
		switch {
		case p.escNext:
			p.line = append(p.line, c)
			p.escNext = false
		case c == esc:
			p.escNext = true
		case c == lf:
			p.complete(string(p.line))
			p.line = p.line[:0]
		default:
			p.line = append(p.line, c)
		}
	}

	return len(data), nil
}

func (p *fakePort) complete(line string) {
	p.lines = append(p.lines, line)
	if rest, ok := strings.CutPrefix(line, "++addr "); ok {
		fields := strings.Fields(rest)
		p.addr, _ = strconv.Atoi(fields[0])
	}
	if p.responder != nil {
		p.rx = append(p.rx, p.responder(p.addr, line)...)
	}
}

func (p *fakePort) Read(buf []byte) (int, error) {
	p.mu.Lock()
	if len(p.rx) > 0 {
		n := copy(buf, p.rx)
		p.rx = p.rx[n:]
		p.mu.Unlock()

		return n, nil
	}
	p.mu.Unlock()

	// an idle serial read returns after its read timeout
	time.Sleep(time.Millisecond)

	return 0, nil
}

func (p *fakePort) SetReadTimeout(time.Duration) error { return nil }

func (p *fakePort) ResetInputBuffer() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rx = nil
	p.resets++

	return nil
}

func (p *fakePort) resetCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.resets
}

func (p *fakePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true

	return nil
}

func (p *fakePort) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.closed
}

func (p *fakePort) Lines() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]string(nil), p.lines...)
}

func (p *fakePort) resetLines() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lines = nil
}

// instrument answers serial polls at pad and queries with reply.
func instrument(pad int, reply string) func(addr int, line string) []byte {
	return func(addr int, line string) []byte {
		if addr != pad {
			return nil
		}
		switch line {
		case "++spoll":
			return []byte("0\r\n")
		case "++read eoi":
			return []byte(reply)
		}

		return nil
	}
}

func newTestBus(t *testing.T, port *fakePort, opts ...Option) *Bus {
	t.Helper()

	base := []Option{
		WithLogger(logger.NewPermissiveMockLogger()),
		WithIdleGap(5 * time.Millisecond),
		WithReadPoll(time.Millisecond),
	}
	b, err := New(port, append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	port.resetLines()

	return b
}
