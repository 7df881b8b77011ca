package translator

import (
	"errors"
	"strings"
	"testing"
)

func TestWithMarkup_RestoresTags(t *testing.T) {
	var sent, gotHint string
	out, err := withMarkup("<i>Hello</i> {\\an8}there", func(protected, hint string) (string, error) {
		sent, gotHint = protected, hint
		return "Translation: [PH0]Hola[PH1] [PH2]allí", nil
	})
	if err != nil {
		t.Fatalf("withMarkup failed: %v", err)
	}
	if strings.ContainsAny(sent, "<>{}") {
		t.Errorf("markup leaked to the model: %q", sent)
	}
	if gotHint == "" {
		t.Error("expected a placeholder hint for marked-up text")
	}
	if out != "<i>Hola</i> {\\an8}allí" {
		t.Errorf("unexpected output %q", out)
	}
}

func TestWithMarkup_PlainTextHasNoHint(t *testing.T) {
	out, err := withMarkup("Hello", func(protected, hint string) (string, error) {
		if hint != "" {
			t.Errorf("unexpected hint %q", hint)
		}
		return "\"Hola\"", nil
	})
	if err != nil || out != "Hola" {
		t.Errorf("got %q, %v", out, err)
	}
}

func TestWithMarkup_DroppedMarkerStripsMarkup(t *testing.T) {
	out, err := withMarkup("<i>Hello</i> world", func(protected, hint string) (string, error) {
		return "[PH0]Hola mundo", nil
	})
	if err != nil {
		t.Fatalf("withMarkup failed: %v", err)
	}
	if out != "Hola mundo" {
		t.Errorf("expected markup removed, got %q", out)
	}
}

func TestWithMarkup_Error(t *testing.T) {
	boom := errors.New("boom")
	if _, err := withMarkup("x", func(string, string) (string, error) { return "", boom }); !errors.Is(err, boom) {
		t.Errorf("expected boom, got %v", err)
	}
}
