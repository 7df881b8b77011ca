package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/valpere/captran/internal/catalog"
	"github.com/valpere/captran/internal/worker"
)

type reply struct {
	text string
	err  error
}

// bridge is the orchestrator's side of one worker: it correlates
// translation replies with their callers by request id.
type bridge struct {
	gen   uint64
	entry catalog.Entry
	conn  worker.Conn

	mu         sync.Mutex
	pending    map[string]chan reply
	terminated bool
}

func newBridge(gen uint64, entry catalog.Entry, conn worker.Conn) *bridge {
	return &bridge{
		gen:     gen,
		entry:   entry,
		conn:    conn,
		pending: make(map[string]chan reply),
	}
}

func (b *bridge) translate(ctx context.Context, requestID, text string, timeout time.Duration) (string, error) {
	ch := make(chan reply, 1)

	b.mu.Lock()
	if b.terminated {
		b.mu.Unlock()
		return "", ErrWorkerTerminated
	}
	if _, dup := b.pending[requestID]; dup {
		b.mu.Unlock()
		return "", fmt.Errorf("%w: %s", ErrDuplicateRequest, requestID)
	}
	b.pending[requestID] = ch
	b.mu.Unlock()

	err := b.conn.Send(worker.Request{
		Action:         worker.ActionTranslate,
		Text:           text,
		TranslationID:  requestID,
		TargetLanguage: b.entry.Language,
	})
	if err != nil {
		b.forget(requestID, ch)
		return "", fmt.Errorf("failed to send translation: %w", err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case r := <-ch:
		return r.text, r.err
	case <-timer.C:
		b.forget(requestID, ch)
		return "", ErrTranslationTimeout
	case <-ctx.Done():
		b.forget(requestID, ch)
		return "", ctx.Err()
	}
}

// resolve hands a complete or error event to the waiting caller. Unknown
// ids are ignored.
func (b *bridge) resolve(ev worker.Event) {
	b.mu.Lock()
	ch, ok := b.pending[ev.TranslationID]
	delete(b.pending, ev.TranslationID)
	b.mu.Unlock()
	if !ok {
		return
	}

	switch ev.Status {
	case worker.StatusComplete:
		text, err := ev.TranslationText()
		if err != nil {
			err = fmt.Errorf("translation %s: %w", ev.TranslationID, err)
		}
		ch <- reply{text: text, err: err}
	default:
		if ev.Error == worker.MessageNotReady {
			ch <- reply{err: ErrModelNotReady}
			return
		}
		ch <- reply{err: &TranslationError{RequestID: ev.TranslationID, Message: ev.Error}}
	}
}

func (b *bridge) forget(requestID string, ch chan reply) {
	b.mu.Lock()
	if b.pending[requestID] == ch {
		delete(b.pending, requestID)
	}
	b.mu.Unlock()
}

// teardown rejects every pending call with cause and stops the worker.
func (b *bridge) teardown(cause error) {
	b.mu.Lock()
	if b.terminated {
		b.mu.Unlock()
		return
	}
	b.terminated = true
	pending := b.pending
	b.pending = make(map[string]chan reply)
	b.mu.Unlock()

	for _, ch := range pending {
		ch <- reply{err: cause}
	}
	_ = b.conn.Terminate()
}

func (b *bridge) pendingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}
