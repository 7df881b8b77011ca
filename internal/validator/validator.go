// Package validator rejects model output that is not in the target language.
package validator

import (
	"errors"
	"fmt"

	"github.com/valpere/captran/internal/catalog"
	"github.com/valpere/captran/internal/detector"
	"github.com/valpere/captran/internal/placeholder"
)

// Captions shorter than this many runes are accepted unchecked; detection
// on a couple of words is mostly noise.
const minValidationLength = 20

var ErrEmpty = errors.New("translation is empty")

// MismatchError reports output detected in a different language.
type MismatchError struct {
	Expected string
	Detected string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("expected %s but detected %s", e.Expected, e.Detected)
}

// Validator holds a lingua detector restricted to English and the catalog
// languages. Building one is slow; share it.
type Validator struct {
	det *detector.Detector
}

func New(targets ...string) *Validator {
	codes := append([]string{"en"}, targets...)
	return &Validator{det: detector.New(codes...)}
}

// IsValid reports whether translatedText reads as targetLang. Caption
// markup is ignored. Short captions and captions whose language cannot be
// told apart pass; a mismatch returns a *MismatchError.
func (v *Validator) IsValid(translatedText, targetLang string) (bool, error) {
	want := catalog.Normalize(targetLang)
	if want == "" {
		return true, nil
	}

	protected, _ := placeholder.Protect(translatedText)
	text := placeholder.Restore(protected, nil)
	if text == "" {
		return false, ErrEmpty
	}
	if len([]rune(text)) < minValidationLength {
		return true, nil
	}

	detected, ok := v.det.DetectISO(text)
	if !ok {
		return true, nil
	}
	if detected != want {
		return false, &MismatchError{Expected: want, Detected: detected}
	}
	return true, nil
}
