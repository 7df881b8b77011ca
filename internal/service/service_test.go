package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/valpere/captran/internal/catalog"
	"github.com/valpere/captran/internal/orchestrator"
	"github.com/valpere/captran/internal/progress"
	"github.com/valpere/captran/internal/translator"
	"github.com/valpere/captran/internal/validator"
	"github.com/valpere/captran/internal/worker"
)

type mapMemory struct {
	mu      sync.Mutex
	entries map[string]string
}

func newMapMemory() *mapMemory {
	return &mapMemory{entries: make(map[string]string)}
}

func (m *mapMemory) Lookup(ctx context.Context, text, lang, model string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.entries[lang+"|"+model+"|"+text]
	return v, ok, nil
}

func (m *mapMemory) Remember(ctx context.Context, text, lang, model, translated string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[lang+"|"+model+"|"+text] = translated
	return nil
}

func (m *mapMemory) get(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.entries[key]
	return v, ok
}

func newTestService(t *testing.T, opts Options) *Service {
	t.Helper()
	backend := translator.NewSimulatedBackend(translator.SimulatedConfig{
		Files: []string{"config.json", "model.onnx"},
		Steps: 4,
		Delay: 5 * time.Millisecond,
	})
	cat := catalog.Default()
	orch := orchestrator.New(cat, worker.NewLocal(backend, zerolog.Nop()), zerolog.Nop(), orchestrator.Config{})
	opts.Log = zerolog.Nop()
	s := New(orch, cat, opts)
	t.Cleanup(func() { s.Close() })
	return s
}

func preload(t *testing.T, s *Service, lang string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Preload(ctx, lang, nil); err != nil {
		t.Fatalf("Preload(%s): %v", lang, err)
	}
}

func TestService_UnsupportedLanguage(t *testing.T) {
	s := newTestService(t, Options{})

	got := s.TranslateText(context.Background(), "hello", "xx", "r1")
	if got != "[XX] hello" {
		t.Errorf("got %q, want [XX] hello", got)
	}
	if st := s.State(); st.HasWorker || st.Initializing {
		t.Errorf("unsupported language touched the model: %+v", st)
	}
	if s.IsSupported("xx") || !s.IsSupported("es") {
		t.Error("IsSupported mismatch")
	}
}

func TestService_FallbackThenUpgrade(t *testing.T) {
	s := newTestService(t, Options{})

	upgrades := make(chan [2]string, 4)
	s.OnUpgrade(func(id, text string) { upgrades <- [2]string{id, text} })

	got := s.TranslateText(context.Background(), "hello", "es", "r1")
	if got != "hola" {
		t.Errorf("immediate result = %q, want hola", got)
	}
	if st := s.State(); !st.Initializing || st.CurrentLanguage != "es" {
		t.Errorf("load not started: %+v", st)
	}

	select {
	case up := <-upgrades:
		if up[0] != "r1" || up[1] != "<es> hello" {
			t.Errorf("upgrade = %v", up)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no upgrade after model became ready")
	}

	got = s.TranslateText(context.Background(), "hello", "es", "r2")
	if got != "<es> hello" {
		t.Errorf("ready result = %q", got)
	}
}

func TestService_GeneratesRequestID(t *testing.T) {
	s := newTestService(t, Options{})

	upgrades := make(chan string, 1)
	s.OnUpgrade(func(id, text string) { upgrades <- id })
	s.TranslateText(context.Background(), "thank you", "fr", "")

	select {
	case id := <-upgrades:
		if len(id) != 36 {
			t.Errorf("generated id %q is not a uuid", id)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no upgrade")
	}
}

func TestService_MemoryHit(t *testing.T) {
	mem := newMapMemory()
	entry, _ := catalog.Default().Lookup("de")
	_ = mem.Remember(context.Background(), "hello", "de", entry.ModelID, "Servus")
	s := newTestService(t, Options{Memory: mem})

	if got := s.TranslateText(context.Background(), "hello", "de", "r1"); got != "Servus" {
		t.Errorf("got %q, want Servus", got)
	}
	if s.State().HasWorker {
		t.Error("memory hit started a model load")
	}
}

func TestService_RemembersModelOutput(t *testing.T) {
	mem := newMapMemory()
	s := newTestService(t, Options{Memory: mem})
	entry, _ := catalog.Default().Lookup("it")

	done := make(chan struct{})
	s.OnUpgrade(func(id, text string) { close(done) })
	s.TranslateText(context.Background(), "good night", "it", "r1")
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("no upgrade")
	}

	if got, ok := mem.get("it|" + entry.ModelID + "|good night"); !ok || got != "<it> good night" {
		t.Errorf("upgraded output not remembered: %q %v", got, ok)
	}

	s.TranslateText(context.Background(), "see you", "it", "r2")
	if got, ok := mem.get("it|" + entry.ModelID + "|see you"); !ok || got != "<it> see you" {
		t.Errorf("direct output not remembered: %q %v", got, ok)
	}
}

func TestService_ValidatorRejectsWrongLanguage(t *testing.T) {
	s := newTestService(t, Options{Validator: validator.New("es")})
	preload(t, s, "es")

	// The simulated model echoes its input, so long English input stays English.
	text := "This sentence is long enough for the detector to recognise English."
	got := s.TranslateText(context.Background(), text, "es", "r1")
	if got != "[Spanish] "+text {
		t.Errorf("got %q, want fallback", got)
	}
}

func TestService_Preload(t *testing.T) {
	s := newTestService(t, Options{})

	var mu sync.Mutex
	var states []progress.State
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := s.Preload(ctx, "pt-BR", func(st progress.State) {
		mu.Lock()
		states = append(states, st)
		mu.Unlock()
	})
	if err != nil {
		t.Fatal(err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(states) == 0 {
		t.Fatal("no progress reported")
	}
	last := states[len(states)-1]
	if last.Status != progress.StatusReady || last.OverallProgress != 100 {
		t.Errorf("last state = %+v", last)
	}
	if len(last.Files) != 2 {
		t.Errorf("files = %v", last.Files)
	}
	if n := s.orch.Progress().Subscribers(); n != 0 {
		t.Errorf("%d subscribers left after Preload", n)
	}
	if st := s.State(); !st.Ready || st.CurrentLanguage != "pt" {
		t.Errorf("state = %+v", st)
	}
}

func TestService_PreloadUnsupported(t *testing.T) {
	s := newTestService(t, Options{})
	if err := s.Preload(context.Background(), "xx", nil); err == nil {
		t.Error("expected error for unsupported language")
	}
}

func TestService_TranslateReportsSource(t *testing.T) {
	mem := newMapMemory()
	s := newTestService(t, Options{Memory: mem})

	res := s.Translate(context.Background(), "hello", "es", "r1")
	if res.Source != SourceFallback || !res.Queued || res.Language != "es" || res.RequestID != "r1" {
		t.Errorf("loading result = %+v", res)
	}

	preload(t, s, "es")
	res = s.Translate(context.Background(), "bye", "es", "r2")
	if res.Source != SourceModel || res.Queued || res.Text != "<es> bye" {
		t.Errorf("ready result = %+v", res)
	}
	res = s.Translate(context.Background(), "bye", "es", "r3")
	if res.Source != SourceMemory || res.Text != "<es> bye" {
		t.Errorf("memory result = %+v", res)
	}

	res = s.Translate(context.Background(), "hello", "xx", "r4")
	if res.Source != SourceFallback || res.Queued {
		t.Errorf("unsupported result = %+v", res)
	}
}
