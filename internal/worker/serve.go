package worker

import (
	"context"
	"fmt"
	"io"
	"math"
	"sync"

	"github.com/rs/zerolog"

	"github.com/valpere/captran/internal/translator"
)

// Runtime is the worker side of the protocol. It owns at most one model and
// at most one load in progress.
type Runtime struct {
	backend translator.Backend
	emit    func(Event)
	log     zerolog.Logger

	mu         sync.Mutex
	model      translator.Model
	current    string
	loading    bool
	loadGen    uint64
	cancelLoad context.CancelFunc

	wg sync.WaitGroup
}

func NewRuntime(backend translator.Backend, emit func(Event), log zerolog.Logger) *Runtime {
	return &Runtime{
		backend: backend,
		emit:    emit,
		log:     log.With().Str("component", "worker").Str("backend", backend.Name()).Logger(),
	}
}

// Serve handles requests until ctx is cancelled or requests is closed, then
// waits for in-flight work and releases the model.
func (r *Runtime) Serve(ctx context.Context, requests <-chan Request) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			r.shutdown()
			return nil
		case req, ok := <-requests:
			if !ok {
				r.shutdown()
				return nil
			}
			r.Handle(ctx, req)
		}
	}
}

// Handle dispatches one request. Loads and translations run on their own
// goroutines.
func (r *Runtime) Handle(ctx context.Context, req Request) {
	switch req.Action {
	case ActionInitialize:
		r.initialize(ctx, req)
	case ActionTranslate:
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			r.translate(ctx, req)
		}()
	default:
		r.emit(Event{
			Status:        StatusError,
			TranslationID: req.TranslationID,
			Error:         fmt.Sprintf("unknown action: %q", req.Action),
		})
	}
}

func (r *Runtime) initialize(ctx context.Context, req Request) {
	r.mu.Lock()
	if r.current == req.ModelName && (r.loading || r.model != nil) {
		r.mu.Unlock()
		r.log.Debug().Str("model", req.ModelName).Msg("duplicate initialize ignored")
		return
	}
	if r.cancelLoad != nil {
		r.cancelLoad()
	}
	old := r.model
	r.model = nil
	r.current = req.ModelName
	r.loading = true
	r.loadGen++
	gen := r.loadGen
	loadCtx, cancel := context.WithCancel(ctx)
	r.cancelLoad = cancel
	r.mu.Unlock()

	closeModel(old)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer cancel()
		r.load(loadCtx, gen, req.ModelName)
	}()
}

func (r *Runtime) load(ctx context.Context, gen uint64, modelName string) {
	log := r.log.With().Str("model", modelName).Logger()
	log.Info().Msg("loading model")
	r.emit(Event{Status: StatusInitiate, ModelName: modelName})

	files := make(map[string]int)
	completed := 0
	report := func(p translator.LoadProgress) {
		pct := clampPercent(p.Percent)
		prev, seen := files[p.File]
		if seen && pct < prev {
			return
		}
		files[p.File] = pct
		if pct >= 100 && (!seen || prev < 100) {
			completed++
		}
		if !r.isCurrent(gen) {
			return
		}
		r.emit(Event{
			Status:         StatusProgress,
			File:           p.File,
			Progress:       float64(pct),
			TotalFiles:     len(files),
			CompletedFiles: completed,
			Loaded:         p.Loaded,
			Total:          p.Total,
		})
	}

	model, err := r.safeLoad(ctx, modelName, report)

	r.mu.Lock()
	if r.loadGen != gen {
		r.mu.Unlock()
		closeModel(model)
		log.Debug().Msg("superseded load discarded")
		return
	}
	r.loading = false
	r.cancelLoad = nil
	if err != nil {
		r.current = ""
		r.mu.Unlock()
		if ctx.Err() != nil {
			return
		}
		log.Error().Err(err).Msg("model load failed")
		r.emit(Event{Status: StatusError, Error: Describe(err)})
		return
	}
	r.model = model
	r.mu.Unlock()

	log.Info().Int("files", len(files)).Msg("model ready")
	r.emit(Event{Status: StatusReady, ModelName: modelName, TotalFiles: len(files)})
}

func (r *Runtime) safeLoad(ctx context.Context, modelName string, report translator.ProgressFunc) (m translator.Model, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error().Interface("panic", rec).Msg("backend panicked during load")
			m, err = nil, fmt.Errorf("%s", MessageCrashed)
		}
	}()
	return r.backend.Load(ctx, modelName, report)
}

func (r *Runtime) translate(ctx context.Context, req Request) {
	r.mu.Lock()
	model := r.model
	r.mu.Unlock()

	if model == nil {
		r.emit(Event{Status: StatusError, TranslationID: req.TranslationID, Error: MessageNotReady})
		return
	}

	out, err := safeTranslate(ctx, model, req.Text, req.TargetLanguage)
	if err != nil {
		r.log.Warn().Err(err).Str("translation_id", req.TranslationID).Msg("translation failed")
		r.emit(Event{Status: StatusError, TranslationID: req.TranslationID, Error: Describe(err)})
		return
	}
	r.emit(CompleteEvent(req.TranslationID, out))
}

func safeTranslate(ctx context.Context, m translator.Model, text, lang string) (out string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			out, err = "", fmt.Errorf("%s", MessageCrashed)
		}
	}()
	return m.Translate(ctx, text, lang)
}

func (r *Runtime) isCurrent(gen uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loadGen == gen
}

func (r *Runtime) shutdown() {
	r.mu.Lock()
	if r.cancelLoad != nil {
		r.cancelLoad()
	}
	r.mu.Unlock()

	r.wg.Wait()

	r.mu.Lock()
	model := r.model
	r.model = nil
	r.mu.Unlock()
	closeModel(model)
}

func closeModel(m translator.Model) {
	if c, ok := m.(io.Closer); ok {
		_ = c.Close()
	}
}

func clampPercent(p float64) int {
	if math.IsNaN(p) || p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return int(math.Round(p))
}
