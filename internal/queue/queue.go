// Package queue buffers translation requests that arrive while the model for
// their language is still loading.
package queue

import (
	"sync"
	"time"
)

// Item is one buffered request.
type Item struct {
	Text       string    `json:"text"`
	Language   string    `json:"language"`
	RequestID  string    `json:"requestId"`
	EnqueuedAt time.Time `json:"enqueuedAt"`
}

type key struct {
	text, lang, id string
}

// Queue keeps items in arrival order and refuses duplicates of
// (text, language, request id).
type Queue struct {
	mu    sync.Mutex
	items []Item
	keys  map[key]struct{}
	now   func() time.Time
}

func New() *Queue {
	return &Queue{
		keys: make(map[key]struct{}),
		now:  time.Now,
	}
}

// Enqueue appends the request unless an identical one is already queued.
// It reports whether the item was added.
func (q *Queue) Enqueue(text, lang, requestID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	k := key{text, lang, requestID}
	if _, dup := q.keys[k]; dup {
		return false
	}
	q.keys[k] = struct{}{}
	q.items = append(q.items, Item{
		Text:       text,
		Language:   lang,
		RequestID:  requestID,
		EnqueuedAt: q.now(),
	})
	return true
}

// Drain removes and returns every item for lang in arrival order. Items for
// other languages stay queued.
func (q *Queue) Drain(lang string) []Item {
	return q.remove(func(it Item) bool { return it.Language == lang })
}

// DiscardExcept drops every item not for lang and returns how many were
// dropped.
func (q *Queue) DiscardExcept(lang string) int {
	return len(q.remove(func(it Item) bool { return it.Language != lang }))
}

func (q *Queue) remove(match func(Item) bool) []Item {
	q.mu.Lock()
	defer q.mu.Unlock()

	var taken []Item
	kept := q.items[:0]
	for _, it := range q.items {
		if match(it) {
			taken = append(taken, it)
			delete(q.keys, key{it.Text, it.Language, it.RequestID})
			continue
		}
		kept = append(kept, it)
	}
	for i := len(kept); i < len(q.items); i++ {
		q.items[i] = Item{}
	}
	q.items = kept
	return taken
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Pending returns the number of items queued for lang.
func (q *Queue) Pending(lang string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, it := range q.items {
		if it.Language == lang {
			n++
		}
	}
	return n
}
