package catalog

import (
	"strings"
	"testing"
)

func TestDefault_HasSixteenLanguages(t *testing.T) {
	c := Default()

	if c.Len() != 16 {
		t.Fatalf("expected 16 entries, got %d", c.Len())
	}
	codes := c.Codes()
	if codes[0] != "es" || codes[len(codes)-1] != "vi" {
		t.Errorf("unexpected order: %v", codes)
	}
}

func TestLookup(t *testing.T) {
	c := Default()

	tests := []struct {
		code        string
		wantOK      bool
		wantModel   string
		wantDisplay string
	}{
		{code: "es", wantOK: true, wantModel: "Xenova/opus-mt-en-es", wantDisplay: "English→Spanish Model"},
		{code: "ES", wantOK: true, wantModel: "Xenova/opus-mt-en-es", wantDisplay: "English→Spanish Model"},
		{code: "pt-BR", wantOK: true, wantModel: "Xenova/opus-mt-en-pt", wantDisplay: "English→Portuguese Model"},
		{code: "ja", wantOK: true, wantModel: "Xenova/opus-mt-en-jap", wantDisplay: "English→Japanese Model"},
		{code: "xx", wantOK: false},
		{code: "", wantOK: false},
		{code: "uk", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			e, ok := c.Lookup(tt.code)
			if ok != tt.wantOK {
				t.Fatalf("Lookup(%q) ok = %v, want %v", tt.code, ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if e.ModelID != tt.wantModel {
				t.Errorf("ModelID = %q, want %q", e.ModelID, tt.wantModel)
			}
			if e.DisplayName != tt.wantDisplay {
				t.Errorf("DisplayName = %q, want %q", e.DisplayName, tt.wantDisplay)
			}
		})
	}
}

func TestSupported(t *testing.T) {
	c := Default()

	if !c.Supported("fr") {
		t.Error("expected fr to be supported")
	}
	if c.Supported("xx") {
		t.Error("expected xx to be unsupported")
	}
}

func TestNormalize(t *testing.T) {
	tests := map[string]string{
		"es":      "es",
		" DE ":    "de",
		"zh-Hant": "zh",
		"en-US":   "en",
		"":        "",
	}
	for in, want := range tests {
		if got := Normalize(in); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New([]Entry{{Language: "", ModelID: "m"}}); err == nil {
		t.Error("expected error for missing language")
	}
	if _, err := New([]Entry{{Language: "es"}}); err == nil {
		t.Error("expected error for missing model")
	}
}

func TestLoad_OverridesAndAdds(t *testing.T) {
	src := `
- language: es
  model: llama3.2
- language: uk
  name: Ukrainian
  model: helsinki/opus-mt-en-uk
`
	c, err := Load(strings.NewReader(src))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if c.Len() != 17 {
		t.Errorf("expected 17 entries, got %d", c.Len())
	}

	es, _ := c.Lookup("es")
	if es.ModelID != "llama3.2" {
		t.Errorf("expected overridden model, got %q", es.ModelID)
	}
	if es.DisplayName != "English→Spanish Model" {
		t.Errorf("expected built-in name to be kept, got %q", es.DisplayName)
	}

	uk, ok := c.Lookup("uk")
	if !ok {
		t.Fatal("expected uk entry")
	}
	if uk.DisplayName != "English→Ukrainian Model" {
		t.Errorf("unexpected display name %q", uk.DisplayName)
	}
}

func TestLoad_Empty(t *testing.T) {
	c, err := Load(strings.NewReader(""))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if c.Len() != 16 {
		t.Errorf("expected built-in catalog, got %d entries", c.Len())
	}
}
