package detector

import (
	"testing"
)

func TestDetector_DetectISO(t *testing.T) {
	d := New("en", "es", "fr", "de", "ru", "ja", "ar", "ko")

	tests := []struct {
		text   string
		want   string
		wantOK bool
	}{
		{"", "", false},
		{"   ", "", false},
		{"We'll be right back after the break.", "en", true},
		{"Volvemos después de la pausa publicitaria.", "es", true},
		{"Nous revenons juste après la pause.", "fr", true},
		{"Wir sind gleich nach der Pause zurück.", "de", true},
		{"Мы вернёмся сразу после перерыва.", "ru", true},
		{"休憩の後すぐに戻ります。", "ja", true},
		{"سنعود بعد الفاصل مباشرة.", "ar", true},
		{"잠시 후에 다시 돌아오겠습니다.", "ko", true},
	}

	for _, tt := range tests {
		code, ok := d.DetectISO(tt.text)
		if ok != tt.wantOK {
			t.Errorf("DetectISO(%q) ok = %v, want %v", tt.text, ok, tt.wantOK)
			continue
		}
		if tt.wantOK && code != tt.want {
			t.Errorf("DetectISO(%q) = %q, want %q", tt.text, code, tt.want)
		}
	}
}

func TestDetector_Restricted(t *testing.T) {
	d := New("en", "es", "xx")
	if d.Len() != 2 {
		t.Errorf("Len = %d, want 2 (unknown code skipped)", d.Len())
	}

	// Ukrainian is not a candidate, so the closest candidate wins or
	// detection fails; it never reports uk.
	code, _ := d.DetectISO("Привіт, це тест українською мовою.")
	if code == "uk" {
		t.Error("restricted detector reported a language outside its set")
	}
}

func TestDetector_FallsBackToAllLanguages(t *testing.T) {
	d := New("es")
	if d.Len() < 20 {
		t.Errorf("Len = %d, want every language", d.Len())
	}
}

func TestLanguages(t *testing.T) {
	got := Languages("EN", "ja", "en", "zz")
	if len(got) != 2 {
		t.Fatalf("Languages = %v, want two entries", got)
	}
	if got[0].String() != "English" || got[1].String() != "Japanese" {
		t.Errorf("Languages = %v", got)
	}
}
