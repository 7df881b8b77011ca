// Package detector identifies the language of a piece of text.
package detector

import (
	"strings"

	lingua "github.com/pemistahl/lingua-go"
)

type Detector struct {
	detector  lingua.LanguageDetector
	languages []lingua.Language
}

// New builds a detector limited to the given ISO 639-1 codes. Unknown codes
// are skipped; with fewer than two known codes every language is considered.
// Building is expensive, so reuse the instance.
func New(codes ...string) *Detector {
	langs := Languages(codes...)

	builder := lingua.NewLanguageDetectorBuilder()
	var detector lingua.LanguageDetector
	if len(langs) >= 2 {
		detector = builder.FromLanguages(langs...).Build()
	} else {
		langs = lingua.AllLanguages()
		detector = builder.FromAllLanguages().Build()
	}

	return &Detector{detector: detector, languages: langs}
}

// Languages maps ISO 639-1 codes to lingua languages, dropping codes lingua
// does not know.
func Languages(codes ...string) []lingua.Language {
	var out []lingua.Language
	seen := make(map[lingua.Language]bool)
	for _, code := range codes {
		for _, l := range lingua.AllLanguages() {
			if strings.EqualFold(l.IsoCode639_1().String(), code) && !seen[l] {
				seen[l] = true
				out = append(out, l)
				break
			}
		}
	}
	return out
}

func (d *Detector) Detect(text string) (lingua.Language, bool) {
	if strings.TrimSpace(text) == "" {
		return lingua.Unknown, false
	}
	return d.detector.DetectLanguageOf(text)
}

// DetectISO returns the lower-case ISO 639-1 code of text's language.
func (d *Detector) DetectISO(text string) (string, bool) {
	lang, ok := d.Detect(text)
	if !ok {
		return "", false
	}
	return strings.ToLower(lang.IsoCode639_1().String()), true
}

// Len returns the number of candidate languages.
func (d *Detector) Len() int {
	return len(d.languages)
}
