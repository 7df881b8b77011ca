package worker

import (
	"context"
	"errors"
)

// ErrClosed is returned by Send after the connection was terminated.
var ErrClosed = errors.New("worker connection closed")

// Conn is one live worker. Events is closed once the worker has stopped.
type Conn interface {
	Send(req Request) error
	Events() <-chan Event
	Terminate() error
}

// Spawner starts workers.
type Spawner interface {
	Spawn(ctx context.Context) (Conn, error)
}
