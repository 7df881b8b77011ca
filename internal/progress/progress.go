// Package progress aggregates per-file model load progress into an overall
// percentage that never moves backwards within one load attempt.
package progress

import (
	"fmt"
	"math"
	"sync"
)

const (
	StatusIdle  = "Idle"
	StatusReady = "Ready!"
	StatusError = "Error loading model"
)

// FileProgress is the load state of a single model file.
type FileProgress struct {
	FileName string `json:"fileName"`
	Progress int    `json:"progress"`
	Status   string `json:"status"`
	Loaded   int64  `json:"loaded,omitempty"`
	Total    int64  `json:"total,omitempty"`
}

// State is an immutable snapshot handed to subscribers.
type State struct {
	Files           map[string]FileProgress `json:"files"`
	OverallProgress int                     `json:"overallProgress"`
	Status          string                  `json:"status"`
	ModelName       string                  `json:"modelName"`
}

// Update is one progress report from the worker.
type Update struct {
	File           string
	Progress       float64
	TotalFiles     int
	CompletedFiles int
	Loaded         int64
	Total          int64
}

// Func receives progress snapshots.
type Func func(State)

// Aggregator owns the progress of the current load attempt. Every mutating
// call names the attempt it belongs to; calls for an older attempt are
// ignored so a torn-down worker cannot disturb a newer one.
type Aggregator struct {
	// notifyMu serializes broadcasts so subscribers observe snapshots in order.
	notifyMu sync.Mutex
	mu       sync.Mutex

	attempt uint64
	files   map[string]FileProgress
	overall int
	status  string
	model   string

	subs    map[uint64]Func
	nextSub uint64
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		files:  make(map[string]FileProgress),
		status: StatusIdle,
		subs:   make(map[uint64]Func),
	}
}

// Subscribe registers fn and returns a function that removes it. fn runs on
// the reporting goroutine; it may call Snapshot but must not report progress
// itself.
func (a *Aggregator) Subscribe(fn Func) (cancel func()) {
	if fn == nil {
		return func() {}
	}
	a.mu.Lock()
	a.nextSub++
	id := a.nextSub
	a.subs[id] = fn
	a.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			a.mu.Lock()
			delete(a.subs, id)
			a.mu.Unlock()
		})
	}
}

// Subscribers returns the number of registered subscribers.
func (a *Aggregator) Subscribers() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.subs)
}

func (a *Aggregator) Snapshot() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshotLocked()
}

// Reset returns to the idle state without starting an attempt.
func (a *Aggregator) Reset(attempt uint64) {
	a.apply(attempt, func() {
		a.files = make(map[string]FileProgress)
		a.overall = 0
		a.status = StatusIdle
		a.model = ""
	})
}

// Begin starts a new attempt for the named model.
func (a *Aggregator) Begin(attempt uint64, modelName string) {
	a.apply(attempt, func() {
		a.files = make(map[string]FileProgress)
		a.overall = 0
		a.model = modelName
		a.status = "Initializing " + modelName
	})
}

// Start handles the worker's initiate message.
func (a *Aggregator) Start(attempt uint64) {
	a.apply(attempt, func() {
		a.files = make(map[string]FileProgress)
		a.overall = 0
		a.status = "Starting " + a.model
	})
}

// Report folds one worker progress message into the attempt.
func (a *Aggregator) Report(attempt uint64, u Update) {
	a.apply(attempt, func() {
		pct := clamp(u.Progress)

		if u.File == "" {
			a.overall = max(a.overall, pct)
		} else {
			fp, ok := a.files[u.File]
			if !ok || pct >= fp.Progress {
				fp.Progress = pct
			}
			fp.FileName = u.File
			fp.Status = "Loading " + u.File
			if u.Total > 0 {
				fp.Loaded = max(fp.Loaded, u.Loaded)
				fp.Total = u.Total
			}
			a.files[u.File] = fp

			sum := 0
			for _, f := range a.files {
				sum += f.Progress
			}
			mean := int(math.Round(float64(sum) / float64(len(a.files))))
			a.overall = max(a.overall, mean)
		}

		total := u.TotalFiles
		if total < len(a.files) {
			total = len(a.files)
		}
		if total < 1 {
			total = 1
		}
		a.status = fmt.Sprintf("Loading %s (%d/%d files)", a.model, len(a.files), total)
	})
}

// Complete marks every file loaded.
func (a *Aggregator) Complete(attempt uint64) {
	a.apply(attempt, func() {
		for name, f := range a.files {
			f.Progress = 100
			f.Status = "Loaded " + name
			if f.Total > 0 {
				f.Loaded = f.Total
			}
			a.files[name] = f
		}
		a.overall = 100
		a.status = StatusReady
	})
}

// Fail ends the attempt with an error. Overall progress is left as is.
func (a *Aggregator) Fail(attempt uint64) {
	a.apply(attempt, func() {
		a.status = StatusError
	})
}

// apply runs mutate for attempt and broadcasts the result. An attempt newer
// than the current one becomes current; an older one is dropped.
func (a *Aggregator) apply(attempt uint64, mutate func()) {
	a.notifyMu.Lock()
	defer a.notifyMu.Unlock()

	a.mu.Lock()
	if attempt < a.attempt {
		a.mu.Unlock()
		return
	}
	a.attempt = attempt
	mutate()
	snap := a.snapshotLocked()
	subs := make([]Func, 0, len(a.subs))
	for _, fn := range a.subs {
		subs = append(subs, fn)
	}
	a.mu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
}

func (a *Aggregator) snapshotLocked() State {
	files := make(map[string]FileProgress, len(a.files))
	for k, v := range a.files {
		files[k] = v
	}
	return State{
		Files:           files,
		OverallProgress: a.overall,
		Status:          a.status,
		ModelName:       a.model,
	}
}

func clamp(p float64) int {
	if math.IsNaN(p) || p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return int(math.Round(p))
}
