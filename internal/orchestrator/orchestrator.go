// Package orchestrator owns the lifecycle of the resident translation model:
// it starts and replaces the worker, deduplicates concurrent loads, folds
// worker progress into the progress aggregator, correlates translation
// replies and drains requests queued while a model was loading.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/valpere/captran/internal/catalog"
	"github.com/valpere/captran/internal/flight"
	"github.com/valpere/captran/internal/progress"
	"github.com/valpere/captran/internal/queue"
	"github.com/valpere/captran/internal/worker"
)

// FailureMarker is delivered to the upgrade callback when a queued request
// could not be translated by the model.
const FailureMarker = "[Translation failed]"

const (
	DefaultTranslateTimeout = 15 * time.Second
	DefaultLoadTimeout      = 5 * time.Minute
)

type Phase string

const (
	PhaseIdle         Phase = "idle"
	PhaseInitializing Phase = "initializing"
	PhaseReady        Phase = "ready"
	PhaseError        Phase = "error"
)

// State is a snapshot of the model lifecycle.
type State struct {
	Phase           Phase  `json:"phase"`
	Ready           bool   `json:"ready"`
	Initializing    bool   `json:"initializing"`
	CurrentModel    string `json:"currentModel,omitempty"`
	CurrentLanguage string `json:"currentLanguage,omitempty"`
	Error           string `json:"error,omitempty"`
	HasWorker       bool   `json:"hasWorker"`
}

type Config struct {
	TranslateTimeout time.Duration
	LoadTimeout      time.Duration
}

// UpgradeFunc receives the model translation of a request that was queued
// while its model loaded.
type UpgradeFunc func(item queue.Item, text string)

type Orchestrator struct {
	catalog  *catalog.Catalog
	spawner  worker.Spawner
	log      zerolog.Logger
	cfg      Config
	progress *progress.Aggregator
	queue    *queue.Queue
	loads    flight.Group[string, struct{}]

	mu        sync.Mutex
	state     State
	gen       uint64
	bridge    *bridge
	attempt   *flight.Future[struct{}]
	onUpgrade UpgradeFunc
	closed    bool
}

func New(cat *catalog.Catalog, spawner worker.Spawner, log zerolog.Logger, cfg Config) *Orchestrator {
	if cfg.TranslateTimeout <= 0 {
		cfg.TranslateTimeout = DefaultTranslateTimeout
	}
	if cfg.LoadTimeout <= 0 {
		cfg.LoadTimeout = DefaultLoadTimeout
	}
	return &Orchestrator{
		catalog:  cat,
		spawner:  spawner,
		log:      log.With().Str("component", "orchestrator").Logger(),
		cfg:      cfg,
		progress: progress.NewAggregator(),
		queue:    queue.New(),
		state:    State{Phase: PhaseIdle},
	}
}

// Progress returns the aggregator fed by this orchestrator.
func (o *Orchestrator) Progress() *progress.Aggregator {
	return o.progress
}

func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// OnUpgrade registers the callback used when queued requests are drained.
// It replaces any earlier callback.
func (o *Orchestrator) OnUpgrade(fn UpgradeFunc) {
	o.mu.Lock()
	o.onUpgrade = fn
	o.mu.Unlock()
}

// IsReadyFor reports whether the resident model serves lang.
func (o *Orchestrator) IsReadyFor(lang string) bool {
	code := catalog.Normalize(lang)
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state.Ready && o.bridge != nil && o.state.CurrentLanguage == code
}

// Loading reports whether a load for lang is in progress.
func (o *Orchestrator) Loading(lang string) bool {
	code := catalog.Normalize(lang)
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state.Initializing && o.state.CurrentLanguage == code
}

// EnsureModelLoaded loads the model for lang unless it is already resident
// and waits for the outcome. ctx bounds only the wait.
func (o *Orchestrator) EnsureModelLoaded(ctx context.Context, lang string) error {
	f, err := o.Load(lang)
	if err != nil {
		return err
	}
	_, err = f.Wait(ctx)
	return err
}

// Load starts loading the model for lang, or joins the load already in
// flight for it, and returns without waiting. The transition to the
// initializing phase has happened by the time Load returns.
//
// Progress subscribers are notified from inside Load, under the single-flight
// lock. They may read State but must hand Load, EnsureModelLoaded and
// Translate off to another goroutine.
func (o *Orchestrator) Load(lang string) (*flight.Future[struct{}], error) {
	entry, ok := o.catalog.Lookup(lang)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedLanguage, lang)
	}
	f, shared := o.loads.Do(entry.Language, func() *flight.Future[struct{}] {
		return o.start(entry)
	})
	if shared {
		o.log.Debug().Str("language", entry.Language).Msg("joined load in flight")
	}
	return f, nil
}

func (o *Orchestrator) start(entry catalog.Entry) *flight.Future[struct{}] {
	f := flight.NewFuture[struct{}]()

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		f.Settle(struct{}{}, ErrClosed)
		return f
	}
	if o.state.Ready && o.bridge != nil &&
		o.state.CurrentLanguage == entry.Language && o.state.CurrentModel == entry.ModelID {
		o.mu.Unlock()
		f.Settle(struct{}{}, nil)
		return f
	}

	old, superseded := o.bridge, o.attempt
	o.gen++
	gen := o.gen
	o.bridge = nil
	o.attempt = f
	o.state = State{
		Phase:           PhaseInitializing,
		Initializing:    true,
		CurrentModel:    entry.ModelID,
		CurrentLanguage: entry.Language,
	}
	o.mu.Unlock()

	log := o.log.With().Str("language", entry.Language).Str("model", entry.ModelID).Uint64("attempt", gen).Logger()

	if old != nil {
		log.Info().Str("previous", old.entry.Language).Msg("replacing resident worker")
		old.teardown(ErrWorkerTerminated)
	}
	if superseded != nil {
		superseded.Settle(struct{}{}, ErrLoadSuperseded)
	}
	if n := o.queue.DiscardExcept(entry.Language); n > 0 {
		log.Info().Int("discarded", n).Msg("dropped queued requests for other languages")
	}
	o.progress.Begin(gen, entry.DisplayName)

	conn, err := o.spawner.Spawn(context.Background())
	if err != nil {
		log.Error().Err(err).Msg("failed to spawn worker")
		o.fail(gen, nil, f, &WorkerCreationError{Err: err})
		return f
	}

	b := newBridge(gen, entry, conn)
	o.mu.Lock()
	if o.gen != gen {
		o.mu.Unlock()
		_ = conn.Terminate()
		f.Settle(struct{}{}, ErrLoadSuperseded)
		return f
	}
	o.bridge = b
	o.state.HasWorker = true
	o.mu.Unlock()

	go o.pump(b, f)
	go o.watchLoad(b, f)

	log.Info().Msg("loading model")
	err = conn.Send(worker.Request{
		Action:         worker.ActionInitialize,
		ModelName:      entry.ModelID,
		TargetLanguage: entry.Language,
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to send initialize")
		o.fail(gen, b, f, &WorkerCreationError{Err: err})
	}
	return f
}

// pump handles the worker's events in order until its stream ends.
func (o *Orchestrator) pump(b *bridge, f *flight.Future[struct{}]) {
	for ev := range b.conn.Events() {
		o.handle(b, f, ev)
	}
	o.workerExited(b, f)
}

func (o *Orchestrator) handle(b *bridge, f *flight.Future[struct{}], ev worker.Event) {
	if ev.TranslationID != "" && (ev.Status == worker.StatusComplete || ev.Status == worker.StatusError) {
		b.resolve(ev)
		return
	}
	if !o.current(b) {
		o.log.Debug().Str("status", string(ev.Status)).Uint64("attempt", b.gen).Msg("dropping stale worker message")
		return
	}

	switch ev.Status {
	case worker.StatusInitiate:
		o.progress.Start(b.gen)
	case worker.StatusProgress:
		o.progress.Report(b.gen, progress.Update{
			File:           ev.File,
			Progress:       ev.Progress,
			TotalFiles:     ev.TotalFiles,
			CompletedFiles: ev.CompletedFiles,
			Loaded:         ev.Loaded,
			Total:          ev.Total,
		})
	case worker.StatusReady:
		o.ready(b, f)
	case worker.StatusError:
		o.loadError(b, f, ev.Error)
	default:
		o.log.Warn().Str("status", string(ev.Status)).Msg("unknown worker message")
	}
}

func (o *Orchestrator) ready(b *bridge, f *flight.Future[struct{}]) {
	o.mu.Lock()
	if !o.currentLocked(b) {
		o.mu.Unlock()
		return
	}
	o.state.Phase = PhaseReady
	o.state.Ready = true
	o.state.Initializing = false
	o.state.Error = ""
	if o.attempt == f {
		o.attempt = nil
	}
	o.mu.Unlock()

	o.log.Info().Str("language", b.entry.Language).Str("model", b.entry.ModelID).Msg("model ready")
	o.progress.Complete(b.gen)
	f.Settle(struct{}{}, nil)
	go o.drain(b.entry.Language)
}

func (o *Orchestrator) loadError(b *bridge, f *flight.Future[struct{}], message string) {
	o.mu.Lock()
	if !o.currentLocked(b) {
		o.mu.Unlock()
		return
	}
	wasReady := o.state.Ready
	o.setErrorLocked(message)
	if wasReady {
		o.bridge = nil
		o.state.HasWorker = false
	}
	if o.attempt == f {
		o.attempt = nil
	}
	o.mu.Unlock()

	if wasReady {
		o.log.Error().Str("error", message).Msg("worker failed after model was ready")
		b.teardown(ErrWorkerCrashed)
	} else {
		o.log.Error().Str("error", message).Msg("model load failed")
	}
	o.progress.Fail(b.gen)
	f.Settle(struct{}{}, &ModelLoadError{
		Model:    b.entry.ModelID,
		Category: worker.Categorize(message),
		Message:  message,
	})
}

func (o *Orchestrator) workerExited(b *bridge, f *flight.Future[struct{}]) {
	o.mu.Lock()
	if !o.currentLocked(b) {
		o.mu.Unlock()
		b.teardown(ErrWorkerTerminated)
		return
	}
	o.bridge = nil
	o.state.HasWorker = false
	changed := o.state.Phase != PhaseError
	if changed {
		o.setErrorLocked(ErrWorkerCrashed.Error())
	}
	if o.attempt == f {
		o.attempt = nil
	}
	o.mu.Unlock()

	o.log.Error().Str("language", b.entry.Language).Msg("worker exited unexpectedly")
	b.teardown(ErrWorkerCrashed)
	if changed {
		o.progress.Fail(b.gen)
	}
	f.Settle(struct{}{}, ErrWorkerCrashed)
}

func (o *Orchestrator) watchLoad(b *bridge, f *flight.Future[struct{}]) {
	timer := time.NewTimer(o.cfg.LoadTimeout)
	defer timer.Stop()

	select {
	case <-f.Done():
		return
	case <-timer.C:
	}

	o.mu.Lock()
	if !o.currentLocked(b) || !o.state.Initializing {
		o.mu.Unlock()
		return
	}
	o.setErrorLocked(ErrLoadTimeout.Error())
	o.bridge = nil
	o.state.HasWorker = false
	if o.attempt == f {
		o.attempt = nil
	}
	o.mu.Unlock()

	o.log.Error().Dur("timeout", o.cfg.LoadTimeout).Str("model", b.entry.ModelID).Msg("model load timed out")
	b.teardown(ErrWorkerTerminated)
	o.progress.Fail(b.gen)
	f.Settle(struct{}{}, ErrLoadTimeout)
}

// fail ends attempt gen with err before the worker ever reported.
func (o *Orchestrator) fail(gen uint64, b *bridge, f *flight.Future[struct{}], err error) {
	o.mu.Lock()
	if o.gen == gen {
		o.setErrorLocked(err.Error())
		o.bridge = nil
		o.state.HasWorker = false
		if o.attempt == f {
			o.attempt = nil
		}
	}
	o.mu.Unlock()

	if b != nil {
		b.teardown(ErrWorkerTerminated)
	}
	o.progress.Fail(gen)
	f.Settle(struct{}{}, err)
}

func (o *Orchestrator) setErrorLocked(message string) {
	o.state.Phase = PhaseError
	o.state.Ready = false
	o.state.Initializing = false
	o.state.Error = message
}

func (o *Orchestrator) current(b *bridge) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.currentLocked(b)
}

func (o *Orchestrator) currentLocked(b *bridge) bool {
	return o.bridge == b && o.gen == b.gen && o.state.CurrentLanguage == b.entry.Language
}

// Translate runs text through the resident model. The model must be ready
// for lang. requestID correlates the worker's reply and must not be empty.
func (o *Orchestrator) Translate(ctx context.Context, requestID, text, lang string) (string, error) {
	if requestID == "" {
		return "", ErrMissingRequestID
	}
	code := catalog.Normalize(lang)

	o.mu.Lock()
	b := o.bridge
	ready := o.state.Ready && b != nil && o.state.CurrentLanguage == code
	o.mu.Unlock()

	if !ready {
		return "", ErrModelNotReady
	}
	return b.translate(ctx, requestID, text, o.cfg.TranslateTimeout)
}

// Enqueue buffers a request until the model for lang is ready. When the
// model became ready in the meantime the queue is drained right away.
func (o *Orchestrator) Enqueue(text, lang, requestID string) bool {
	code := catalog.Normalize(lang)
	added := o.queue.Enqueue(text, code, requestID)
	if added && o.IsReadyFor(code) {
		go o.drain(code)
	}
	return added
}

// Pending returns the number of queued requests for lang.
func (o *Orchestrator) Pending(lang string) int {
	return o.queue.Pending(catalog.Normalize(lang))
}

func (o *Orchestrator) drain(lang string) {
	items := o.queue.Drain(lang)
	if len(items) == 0 {
		return
	}
	o.log.Info().Str("language", lang).Int("requests", len(items)).Msg("draining queued requests")

	for _, it := range items {
		text, err := o.Translate(context.Background(), it.RequestID, it.Text, it.Language)
		if err != nil {
			o.log.Warn().Err(err).Str("request_id", it.RequestID).Msg("queued translation failed")
			text = FailureMarker
		}
		o.notifyUpgrade(it, text)
	}
}

func (o *Orchestrator) notifyUpgrade(it queue.Item, text string) {
	o.mu.Lock()
	fn := o.onUpgrade
	o.mu.Unlock()
	if fn != nil {
		fn(it, text)
	}
}

// Close terminates the worker and rejects everything pending. Later loads
// fail with ErrClosed.
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	o.gen++
	gen := o.gen
	b, attempt := o.bridge, o.attempt
	o.bridge = nil
	o.attempt = nil
	o.state = State{Phase: PhaseIdle}
	o.mu.Unlock()

	if b != nil {
		b.teardown(ErrWorkerTerminated)
	}
	if attempt != nil {
		attempt.Settle(struct{}{}, ErrClosed)
	}
	o.queue.DiscardExcept("")
	o.progress.Reset(gen)
	return nil
}
