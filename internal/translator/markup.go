package translator

import (
	"strings"

	"github.com/valpere/captran/internal/placeholder"
	"github.com/valpere/captran/internal/postprocess"
)

// withMarkup runs an LLM completion over text with its caption markup
// swapped for placeholders. complete receives the protected text and a
// prompt hint that is empty when there is no markup.
func withMarkup(text string, complete func(protected, hint string) (string, error)) (string, error) {
	protected, markers := placeholder.Protect(text)
	hint := ""
	if len(markers) > 0 {
		hint = placeholder.InstructionHint()
	}

	raw, err := complete(protected, hint)
	if err != nil {
		return "", err
	}
	out := postprocess.Clean(raw)

	if len(placeholder.Missing(out, markers)) > 0 {
		// unbalanced tags render worse than none
		return strings.Join(strings.Fields(placeholder.Restore(out, nil)), " "), nil
	}
	return placeholder.Restore(out, markers), nil
}
