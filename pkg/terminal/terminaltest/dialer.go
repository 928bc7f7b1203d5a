package terminaltest

import (
	"context"
	"net"
	"os"
	"sync"
	"syscall"
)

// Dialer connects to registered fake terminals and counts open
// connections so tests can assert that none leak.
type Dialer struct {
	mu        sync.Mutex
	terminals map[string]*Terminal
	failures  map[string]error
	hangs     map[string]bool
	dials     int
	open      int
}

func NewDialer() *Dialer {
	return &Dialer{
		terminals: make(map[string]*Terminal),
		failures:  make(map[string]error),
		hangs:     make(map[string]bool),
	}
}

// Register serves addr with t.
func (d *Dialer) Register(addr string, t *Terminal) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.terminals[addr] = t
}

// Fail makes dials to addr fail with the given errno, e.g.
// syscall.EHOSTUNREACH.
func (d *Dialer) Fail(addr string, errno syscall.Errno) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures[addr] = errno
}

// Hang makes dials to addr block until the dial context ends.
func (d *Dialer) Hang(addr string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hangs[addr] = true
}

// Dials returns the number of dial attempts.
func (d *Dialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// Open returns the number of connections not yet closed by the client.
func (d *Dialer) Open() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.open
}

func (d *Dialer) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	d.mu.Lock()
	d.dials++
	t := d.terminals[addr]
	failure := d.failures[addr]
	hang := d.hangs[addr]
	d.mu.Unlock()

	if hang {
		<-ctx.Done()
		return nil, &net.OpError{Op: "dial", Net: network, Err: ctx.Err()}
	}
	if err := ctx.Err(); err != nil {
		return nil, &net.OpError{Op: "dial", Net: network, Err: err}
	}
	if failure != nil {
		return nil, &net.OpError{Op: "dial", Net: network, Err: os.NewSyscallError("connect", failure)}
	}
	if t == nil {
		return nil, &net.OpError{Op: "dial", Net: network, Err: os.NewSyscallError("connect", syscall.ECONNREFUSED)}
	}

	client, server := net.Pipe()
	go t.Serve(server)

	d.mu.Lock()
	d.open++
	d.mu.Unlock()

	return &countingConn{Conn: client, d: d}, nil
}

type countingConn struct {
	net.Conn
	d    *Dialer
	once sync.Once
}

func (c *countingConn) Close() error {
	c.once.Do(func() {
		c.d.mu.Lock()
		c.d.open--
		c.d.mu.Unlock()
	})
	return c.Conn.Close()
}
