package worker

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/valpere/captran/internal/translator"
)

// Local runs workers as goroutines inside the current process.
type Local struct {
	backend translator.Backend
	log     zerolog.Logger
}

func NewLocal(backend translator.Backend, log zerolog.Logger) *Local {
	return &Local{backend: backend, log: log}
}

func (l *Local) Spawn(ctx context.Context) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	c := &localConn{
		requests: make(chan Request, 64),
		events:   make(chan Event, 256),
		ctx:      runCtx,
		cancel:   cancel,
	}

	rt := NewRuntime(l.backend, c.emit, l.log)
	go func() {
		defer close(c.events)
		_ = rt.Serve(runCtx, c.requests)
	}()
	return c, nil
}

type localConn struct {
	requests chan Request
	events   chan Event
	ctx      context.Context
	cancel   context.CancelFunc

	mu     sync.Mutex
	closed bool
}

func (c *localConn) Send(req Request) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}
	select {
	case c.requests <- req:
		return nil
	case <-c.ctx.Done():
		return ErrClosed
	}
}

func (c *localConn) Events() <-chan Event {
	return c.events
}

func (c *localConn) Terminate() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		c.cancel()
	}
	return nil
}

func (c *localConn) emit(ev Event) {
	select {
	case c.events <- ev:
	case <-c.ctx.Done():
	}
}
