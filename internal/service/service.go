// Package service is the entry point used by the CLI and the HTTP API. A
// caption is always answered at once: from translation memory, from the
// resident model, or with a fallback while the right model loads in the
// background. Requests answered with a fallback are upgraded through the
// OnUpgrade callback once the model is ready.
package service

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/valpere/captran/internal/catalog"
	"github.com/valpere/captran/internal/fallback"
	"github.com/valpere/captran/internal/orchestrator"
	"github.com/valpere/captran/internal/progress"
	"github.com/valpere/captran/internal/queue"
	"github.com/valpere/captran/internal/store"
	"github.com/valpere/captran/internal/validator"
)

type Options struct {
	// Memory is consulted before the model and fed with its output.
	Memory store.Memory
	// Validator rejects model output in the wrong language.
	Validator *validator.Validator
	Log       zerolog.Logger
}

type Service struct {
	orch      *orchestrator.Orchestrator
	catalog   *catalog.Catalog
	memory    store.Memory
	validator *validator.Validator
	log       zerolog.Logger

	mu        sync.Mutex
	onUpgrade func(requestID, text string)
}

func New(orch *orchestrator.Orchestrator, cat *catalog.Catalog, opts Options) *Service {
	s := &Service{
		orch:      orch,
		catalog:   cat,
		memory:    opts.Memory,
		validator: opts.Validator,
		log:       opts.Log.With().Str("component", "service").Logger(),
	}
	orch.OnUpgrade(s.upgrade)
	return s
}

// Source says where a translation came from.
type Source string

const (
	SourceMemory   Source = "memory"
	SourceModel    Source = "model"
	SourceFallback Source = "fallback"
)

// Result is one answered request. Queued is set when a fallback was returned
// and the model translation will follow through OnUpgrade.
type Result struct {
	RequestID string `json:"requestId"`
	Language  string `json:"language"`
	Text      string `json:"text"`
	Source    Source `json:"source"`
	Queued    bool   `json:"queued"`
}

// TranslateText returns a translation of text into lang without waiting for
// a model load. An empty requestID is replaced by a generated one.
func (s *Service) TranslateText(ctx context.Context, text, lang, requestID string) string {
	return s.Translate(ctx, text, lang, requestID).Text
}

// Translate is TranslateText with the details of how the request was served.
func (s *Service) Translate(ctx context.Context, text, lang, requestID string) Result {
	if requestID == "" {
		requestID = uuid.NewString()
	}
	code := catalog.Normalize(lang)
	res := Result{RequestID: requestID, Language: code, Source: SourceFallback}
	log := s.log.With().Str("request_id", requestID).Str("language", code).Logger()

	entry, ok := s.catalog.Lookup(code)
	if !ok {
		log.Debug().Msg("unsupported language, using fallback")
		res.Text = fallback.Translate(text, code)
		return res
	}

	if s.memory != nil {
		cached, hit, err := s.memory.Lookup(ctx, text, code, entry.ModelID)
		if err != nil {
			log.Warn().Err(err).Msg("translation memory lookup failed")
		} else if hit {
			log.Debug().Msg("translation memory hit")
			res.Text, res.Source = cached, SourceMemory
			return res
		}
	}

	if s.orch.IsReadyFor(code) {
		out, err := s.orch.Translate(ctx, requestID, text, code)
		if err != nil {
			log.Warn().Err(err).Msg("model translation failed, using fallback")
		} else if s.accept(out, code, log) {
			s.remember(ctx, text, code, entry.ModelID, out)
			res.Text, res.Source = out, SourceModel
			return res
		}
		res.Text = fallback.Translate(text, code)
		return res
	}

	if _, err := s.orch.Load(code); err != nil {
		log.Warn().Err(err).Msg("failed to start model load")
	}
	if s.orch.Loading(code) {
		if !s.orch.Enqueue(text, code, requestID) {
			log.Debug().Msg("request already queued")
		}
		res.Queued = true
	}
	res.Text = fallback.Translate(text, code)
	return res
}

// Preload loads the model for lang and waits for it, reporting progress to
// onProgress while it loads.
func (s *Service) Preload(ctx context.Context, lang string, onProgress progress.Func) error {
	if onProgress != nil {
		cancel := s.orch.Progress().Subscribe(onProgress)
		defer cancel()
	}
	return s.orch.EnsureModelLoaded(ctx, lang)
}

func (s *Service) IsSupported(lang string) bool {
	return s.catalog.Supported(lang)
}

func (s *Service) Languages() []catalog.Entry {
	return s.catalog.Entries()
}

func (s *Service) State() orchestrator.State {
	return s.orch.State()
}

func (s *Service) Progress() progress.State {
	return s.orch.Progress().Snapshot()
}

// OnUpgrade registers the callback that receives model translations of
// requests answered with a fallback. It replaces any earlier callback.
func (s *Service) OnUpgrade(fn func(requestID, text string)) {
	s.mu.Lock()
	s.onUpgrade = fn
	s.mu.Unlock()
}

func (s *Service) Close() error {
	return s.orch.Close()
}

func (s *Service) upgrade(it queue.Item, text string) {
	s.mu.Lock()
	fn := s.onUpgrade
	s.mu.Unlock()

	if text != orchestrator.FailureMarker {
		log := s.log.With().Str("request_id", it.RequestID).Logger()
		if !s.accept(text, it.Language, log) {
			text = orchestrator.FailureMarker
		} else if entry, ok := s.catalog.Lookup(it.Language); ok {
			s.remember(context.Background(), it.Text, it.Language, entry.ModelID, text)
		}
	}
	if fn != nil {
		fn(it.RequestID, text)
	}
}

func (s *Service) accept(out, lang string, log zerolog.Logger) bool {
	if s.validator == nil {
		return true
	}
	if ok, err := s.validator.IsValid(out, lang); !ok {
		log.Warn().Err(err).Msg("model output rejected")
		return false
	}
	return true
}

func (s *Service) remember(ctx context.Context, text, lang, model, out string) {
	if s.memory == nil {
		return
	}
	if err := s.memory.Remember(ctx, text, lang, model, out); err != nil {
		s.log.Warn().Err(err).Msg("failed to update translation memory")
	}
}
