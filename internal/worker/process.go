package worker

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/rs/zerolog"

	"github.com/valpere/captran/internal/translator"
)

const maxLineSize = 4 << 20

// Process runs each worker as a child process speaking JSON lines over
// stdin and stdout.
type Process struct {
	Path   string
	Args   []string
	Env    []string
	Stderr io.Writer
	Log    zerolog.Logger
}

func (p *Process) Spawn(ctx context.Context) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cmd := exec.Command(p.Path, p.Args...)
	if len(p.Env) > 0 {
		cmd.Env = append(os.Environ(), p.Env...)
	}
	cmd.Stderr = p.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start worker %s: %w", p.Path, err)
	}

	c := &processConn{
		cmd:    cmd,
		stdin:  stdin,
		enc:    json.NewEncoder(stdin),
		events: make(chan Event, 256),
		log:    p.Log.With().Int("pid", cmd.Process.Pid).Logger(),
	}
	go c.readLoop(stdout)
	return c, nil
}

type processConn struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	enc    *json.Encoder
	events chan Event
	log    zerolog.Logger

	mu     sync.Mutex
	closed bool
}

func (c *processConn) Send(req Request) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if err := c.enc.Encode(req); err != nil {
		return fmt.Errorf("send %s: %w", req.Action, err)
	}
	return nil
}

func (c *processConn) Events() <-chan Event {
	return c.events
}

func (c *processConn) Terminate() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	_ = c.stdin.Close()
	if err := c.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("kill worker: %w", err)
	}
	return nil
}

func (c *processConn) readLoop(r io.Reader) {
	defer close(c.events)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	for scanner.Scan() {
		var ev Event
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			c.log.Warn().Err(err).Msg("skipping malformed worker message")
			continue
		}
		c.events <- ev
	}
	if err := scanner.Err(); err != nil {
		c.log.Warn().Err(err).Msg("worker output read failed")
	}
	if err := c.cmd.Wait(); err != nil {
		c.log.Debug().Err(err).Msg("worker exited")
	}
}

// ServeStdio runs a worker runtime that reads requests from r and writes
// events to w, one JSON object per line. It returns when r is exhausted or
// ctx is cancelled.
func ServeStdio(ctx context.Context, backend translator.Backend, r io.Reader, w io.Writer, log zerolog.Logger) error {
	var (
		wmu sync.Mutex
		enc = json.NewEncoder(w)
	)
	emit := func(ev Event) {
		wmu.Lock()
		defer wmu.Unlock()
		if err := enc.Encode(ev); err != nil {
			log.Error().Err(err).Msg("write event")
		}
	}

	requests := make(chan Request)
	readErr := make(chan error, 1)
	go func() {
		defer close(requests)
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 64*1024), maxLineSize)
		for scanner.Scan() {
			var req Request
			if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
				emit(Event{Status: StatusError, Error: fmt.Sprintf("malformed request: %v", err)})
				continue
			}
			select {
			case requests <- req:
			case <-ctx.Done():
				readErr <- nil
				return
			}
		}
		readErr <- scanner.Err()
	}()

	if err := NewRuntime(backend, emit, log).Serve(ctx, requests); err != nil {
		return err
	}
	select {
	case err := <-readErr:
		return err
	default:
		return nil
	}
}
