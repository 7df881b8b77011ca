package cmd

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/valpere/captran/internal/progress"
	"github.com/valpere/captran/internal/service"
)

// fakeCaptions answers with a fallback and upgrades every caption
// asynchronously, the way a service with a loading model does.
type fakeCaptions struct {
	mu        sync.Mutex
	onUpgrade func(requestID, text string)
	preload   error
	noUpgrade bool
}

func (f *fakeCaptions) Translate(ctx context.Context, text, lang, requestID string) service.Result {
	f.mu.Lock()
	fn, skip := f.onUpgrade, f.noUpgrade
	f.mu.Unlock()
	if fn != nil && !skip {
		go fn(requestID, "model "+text)
	}
	return service.Result{RequestID: requestID, Language: lang, Text: "fallback " + text, Source: service.SourceFallback, Queued: true}
}

func (f *fakeCaptions) Preload(ctx context.Context, lang string, onProgress progress.Func) error {
	return f.preload
}

func (f *fakeCaptions) OnUpgrade(fn func(requestID, text string)) {
	f.mu.Lock()
	f.onUpgrade = fn
	f.mu.Unlock()
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestRunCaptions_UpgradesBeforeInputEnds(t *testing.T) {
	pr, pw := io.Pipe()
	out := &syncBuffer{}
	svc := &fakeCaptions{}

	errc := make(chan error, 1)
	go func() { errc <- runCaptions(context.Background(), svc, "es", pr, out, time.Second) }()

	if _, err := io.WriteString(pw, "hello\n"); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for !strings.Contains(out.String(), "1\tmodel hello\n") {
		if time.Now().After(deadline) {
			t.Fatalf("upgrade not printed while input is open; output %q", out.String())
		}
		time.Sleep(5 * time.Millisecond)
	}
	pw.Close()

	if err := <-errc; err != nil {
		t.Fatal(err)
	}
	if got := out.String(); got != "1\tfallback hello\n1\tmodel hello\n" {
		t.Errorf("unexpected output %q", got)
	}
}

func TestRunCaptions_ManyUpgradesNotDropped(t *testing.T) {
	var in strings.Builder
	const n = 600
	for i := 0; i < n; i++ {
		in.WriteString("caption\n")
	}
	out := &syncBuffer{}

	if err := runCaptions(context.Background(), &fakeCaptions{}, "es", strings.NewReader(in.String()), out, 5*time.Second); err != nil {
		t.Fatal(err)
	}
	if got := strings.Count(out.String(), "\tmodel caption\n"); got != n {
		t.Errorf("expected %d upgrades, got %d", n, got)
	}
}

func TestRunCaptions_LoadFailureStopsWaiting(t *testing.T) {
	svc := &fakeCaptions{noUpgrade: true, preload: errors.New("boom")}
	out := &syncBuffer{}

	start := time.Now()
	if err := runCaptions(context.Background(), svc, "es", strings.NewReader("hi\n\n"), out, time.Minute); err != nil {
		t.Fatal(err)
	}
	if time.Since(start) > 10*time.Second {
		t.Error("waited despite the failed load")
	}
	if got := out.String(); got != "1\tfallback hi\n" {
		t.Errorf("unexpected output %q", got)
	}
}

func TestRunCaptions_NoWait(t *testing.T) {
	out := &syncBuffer{}
	svc := &fakeCaptions{noUpgrade: true}
	if err := runCaptions(context.Background(), svc, "es", strings.NewReader("a\nb\n"), out, 0); err != nil {
		t.Fatal(err)
	}
	if got := out.String(); got != "1\tfallback a\n2\tfallback b\n" {
		t.Errorf("unexpected output %q", got)
	}
}
