package worker

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/valpere/captran/internal/translator"
)

func TestTranslationText(t *testing.T) {
	tests := []struct {
		name    string
		output  string
		want    string
		wantErr bool
	}{
		{"array", `[{"translation_text":"hola"}]`, "hola", false},
		{"object", `{"translation_text":"bonjour"}`, "bonjour", false},
		{"empty array", `[]`, "", true},
		{"array without field", `[{"text":"x"}]`, "", true},
		{"array with empty text", `[{"translation_text":""}]`, "", true},
		{"object without field", `{"text":"x"}`, "", true},
		{"string", `"hola"`, "", true},
		{"missing", ``, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := Event{Status: StatusComplete, Output: json.RawMessage(tt.output)}
			got, err := ev.TranslationText()
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidOutput) {
					t.Fatalf("err = %v, want ErrInvalidOutput", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCompleteEventRoundTrip(t *testing.T) {
	got, err := CompleteEvent("t1", "hola").TranslationText()
	if err != nil || got != "hola" {
		t.Fatalf("got %q, %v", got, err)
	}
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		err  error
		want string
		cat  Category
	}{
		{errors.New("failed to fetch model"), MessageNetwork, CategoryNetwork},
		{errors.New("network request failed: dial tcp"), MessageNetwork, CategoryNetwork},
		{errors.New("out of memory"), MessageMemory, CategoryMemory},
		{errors.New("allocation failed"), MessageMemory, CategoryMemory},
		{errors.New("operation not supported on this platform"), MessagePlatform, CategoryPlatform},
		{errors.New("weights corrupted"), "weights corrupted", CategoryUnknown},
		{nil, MessageUnexpected, CategoryCrash},
	}
	for _, tt := range tests {
		got := Describe(tt.err)
		if got != tt.want {
			t.Errorf("Describe(%v) = %q, want %q", tt.err, got, tt.want)
		}
		if c := Categorize(got); c != tt.cat {
			t.Errorf("Categorize(%q) = %q, want %q", got, c, tt.cat)
		}
	}
}

type panicBackend struct {
	onLoad bool
}

func (b panicBackend) Name() string { return "panic" }

func (b panicBackend) Load(ctx context.Context, modelID string, progress translator.ProgressFunc) (translator.Model, error) {
	if b.onLoad {
		panic("boom")
	}
	return panicModel{}, nil
}

type panicModel struct{}

func (panicModel) Translate(ctx context.Context, text, lang string) (string, error) {
	panic("boom")
}

func waitFor(t *testing.T, events <-chan Event, status Status) []Event {
	t.Helper()
	var seen []Event
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				t.Fatalf("events closed before %s; saw %+v", status, seen)
			}
			seen = append(seen, ev)
			if ev.Status == status {
				return seen
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s; saw %+v", status, seen)
		}
	}
}

func spawn(t *testing.T, backend translator.Backend) Conn {
	t.Helper()
	conn, err := NewLocal(backend, zerolog.Nop()).Spawn(context.Background())
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	t.Cleanup(func() { _ = conn.Terminate() })
	return conn
}

func TestLocalLoadAndTranslate(t *testing.T) {
	backend := translator.NewSimulatedBackend(translator.SimulatedConfig{
		Files: []string{"a.bin", "b.bin"},
		Steps: 2,
	})
	conn := spawn(t, backend)

	if err := conn.Send(Request{Action: ActionInitialize, ModelName: "m-es", TargetLanguage: "es"}); err != nil {
		t.Fatal(err)
	}
	seen := waitFor(t, conn.Events(), StatusReady)

	if seen[0].Status != StatusInitiate {
		t.Errorf("first event = %s, want initiate", seen[0].Status)
	}
	ready := seen[len(seen)-1]
	if ready.ModelName != "m-es" || ready.TotalFiles != 2 {
		t.Errorf("ready = %+v", ready)
	}
	var last Event
	for _, ev := range seen {
		if ev.Status == StatusProgress {
			last = ev
		}
	}
	if last.CompletedFiles != 2 || last.TotalFiles != 2 || last.Progress != 100 {
		t.Errorf("last progress = %+v", last)
	}

	if err := conn.Send(Request{Action: ActionTranslate, Text: "hi", TranslationID: "t1", TargetLanguage: "es"}); err != nil {
		t.Fatal(err)
	}
	done := waitFor(t, conn.Events(), StatusComplete)
	ev := done[len(done)-1]
	text, err := ev.TranslationText()
	if err != nil || ev.TranslationID != "t1" || text != "<es> hi" {
		t.Errorf("complete = %+v text=%q err=%v", ev, text, err)
	}
}

func TestTranslateBeforeLoad(t *testing.T) {
	conn := spawn(t, translator.NewSimulatedBackend(translator.SimulatedConfig{}))
	if err := conn.Send(Request{Action: ActionTranslate, Text: "hi", TranslationID: "t1"}); err != nil {
		t.Fatal(err)
	}
	seen := waitFor(t, conn.Events(), StatusError)
	ev := seen[len(seen)-1]
	if ev.Error != MessageNotReady || ev.TranslationID != "t1" {
		t.Errorf("error event = %+v", ev)
	}
}

func TestDuplicateInitializeIgnored(t *testing.T) {
	backend := translator.NewSimulatedBackend(translator.SimulatedConfig{
		Files: []string{"a.bin"},
		Steps: 3,
		Delay: 10 * time.Millisecond,
	})
	conn := spawn(t, backend)
	req := Request{Action: ActionInitialize, ModelName: "m", TargetLanguage: "es"}
	_ = conn.Send(req)
	_ = conn.Send(req)

	seen := waitFor(t, conn.Events(), StatusReady)
	initiates := 0
	for _, ev := range seen {
		if ev.Status == StatusInitiate {
			initiates++
		}
	}
	if initiates != 1 {
		t.Errorf("initiate events = %d, want 1", initiates)
	}

	_ = conn.Send(req)
	select {
	case ev := <-conn.Events():
		t.Errorf("unexpected event after duplicate initialize of loaded model: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestNewModelSupersedesLoad(t *testing.T) {
	backend := translator.NewSimulatedBackend(translator.SimulatedConfig{
		Files: []string{"a.bin"},
		Steps: 5,
		Delay: 20 * time.Millisecond,
	})
	conn := spawn(t, backend)
	_ = conn.Send(Request{Action: ActionInitialize, ModelName: "first"})
	_ = conn.Send(Request{Action: ActionInitialize, ModelName: "second"})

	seen := waitFor(t, conn.Events(), StatusReady)
	if got := seen[len(seen)-1].ModelName; got != "second" {
		t.Errorf("ready for %q, want second", got)
	}
	for _, ev := range seen {
		if ev.Status == StatusError {
			t.Errorf("superseded load reported error: %+v", ev)
		}
	}
}

func TestLoadFailureClassified(t *testing.T) {
	backend := translator.NewSimulatedBackend(translator.SimulatedConfig{FailWith: "failed to fetch config.json"})
	conn := spawn(t, backend)
	_ = conn.Send(Request{Action: ActionInitialize, ModelName: "m"})
	seen := waitFor(t, conn.Events(), StatusError)
	if got := seen[len(seen)-1].Error; got != MessageNetwork {
		t.Errorf("error = %q, want %q", got, MessageNetwork)
	}
}

func TestBackendPanics(t *testing.T) {
	conn := spawn(t, panicBackend{onLoad: true})
	_ = conn.Send(Request{Action: ActionInitialize, ModelName: "m"})
	seen := waitFor(t, conn.Events(), StatusError)
	if got := seen[len(seen)-1].Error; got != MessageCrashed {
		t.Errorf("load panic error = %q", got)
	}

	conn = spawn(t, panicBackend{})
	_ = conn.Send(Request{Action: ActionInitialize, ModelName: "m"})
	waitFor(t, conn.Events(), StatusReady)
	_ = conn.Send(Request{Action: ActionTranslate, Text: "x", TranslationID: "t9"})
	seen = waitFor(t, conn.Events(), StatusError)
	ev := seen[len(seen)-1]
	if ev.Error != MessageCrashed || ev.TranslationID != "t9" {
		t.Errorf("translate panic event = %+v", ev)
	}
}

func TestTerminateClosesEvents(t *testing.T) {
	conn := spawn(t, translator.NewSimulatedBackend(translator.SimulatedConfig{}))
	if err := conn.Terminate(); err != nil {
		t.Fatal(err)
	}
	if err := conn.Send(Request{Action: ActionTranslate}); !errors.Is(err, ErrClosed) {
		t.Errorf("Send after Terminate = %v, want ErrClosed", err)
	}
	timeout := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-conn.Events():
			if !ok {
				return
			}
		case <-timeout:
			t.Fatal("events not closed after Terminate")
		}
	}
}

func TestServeStdio(t *testing.T) {
	backend := translator.NewSimulatedBackend(translator.SimulatedConfig{Files: []string{"a.bin"}, Steps: 1})

	inR, inW := io.Pipe()
	outR, outW := io.Pipe()
	done := make(chan error, 1)
	go func() {
		done <- ServeStdio(context.Background(), backend, inR, outW, zerolog.Nop())
		_ = outW.Close()
	}()

	events := make(chan Event, 32)
	go func() {
		defer close(events)
		scanner := bufio.NewScanner(outR)
		for scanner.Scan() {
			var ev Event
			if err := json.Unmarshal(scanner.Bytes(), &ev); err == nil {
				events <- ev
			}
		}
	}()

	enc := json.NewEncoder(inW)
	_ = enc.Encode(Request{Action: ActionInitialize, ModelName: "m"})
	waitFor(t, events, StatusReady)

	if _, err := io.WriteString(inW, "not json\n"); err != nil {
		t.Fatal(err)
	}
	seen := waitFor(t, events, StatusError)
	if !strings.HasPrefix(seen[len(seen)-1].Error, "malformed request") {
		t.Errorf("malformed request error = %q", seen[len(seen)-1].Error)
	}

	_ = enc.Encode(Request{Action: ActionTranslate, Text: "hi", TranslationID: "t1", TargetLanguage: "fr"})
	seen = waitFor(t, events, StatusComplete)
	if text, _ := seen[len(seen)-1].TranslationText(); text != "<fr> hi" {
		t.Errorf("translation = %q", text)
	}

	_ = inW.Close()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("ServeStdio: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("ServeStdio did not return after stdin closed")
	}
}
