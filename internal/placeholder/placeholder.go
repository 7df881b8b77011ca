// Package placeholder shields caption markup (WebVTT tags, SSA override
// blocks) from LLM backends. Protect swaps each markup run for a numbered
// marker ([PH0], [PH1], …) and Restore puts the originals back.
package placeholder

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	// SSA/ASS override blocks ({\an8}, {\pos(10,20)}) and WebVTT/SRT tags
	// (<i>, </i>, <c.yellow>, <v Roger>, <00:00:01.000>, <font color="red">)
	reMarkup = regexp.MustCompile(`\{\\[^}]*\}|<[^<>\n]+>`)

	// placeholder reference in translated text; models sometimes add spaces
	rePlaceholder = regexp.MustCompile(`\[\s*PH\s*(\d+)\s*\]`)
)

// Protect replaces caption markup with numbered placeholders in the order
// it appears in text. It returns the modified text and the captured
// originals for Restore.
func Protect(text string) (string, []string) {
	var markers []string

	replace := func(match string) string {
		id := fmt.Sprintf("[PH%d]", len(markers))
		markers = append(markers, match)
		return id
	}

	return reMarkup.ReplaceAllStringFunc(text, replace), markers
}

// Restore substitutes [PHn] markers in text with the originals captured by
// Protect. Markers the model invented are dropped.
func Restore(text string, markers []string) string {
	out := rePlaceholder.ReplaceAllStringFunc(text, func(match string) string {
		sub := rePlaceholder.FindStringSubmatch(match)
		idx, err := strconv.Atoi(sub[1])
		if err != nil || idx < 0 || idx >= len(markers) {
			return ""
		}
		return markers[idx]
	})
	return strings.TrimSpace(out)
}

// Missing returns the indices of markers absent from text.
func Missing(text string, markers []string) []int {
	var missing []int
	for i := range markers {
		if !strings.Contains(text, fmt.Sprintf("[PH%d]", i)) {
			missing = append(missing, i)
		}
	}
	return missing
}

// InstructionHint returns a sentence for LLM prompts so the model leaves
// placeholders intact.
func InstructionHint() string {
	return "Keep every [PHn] marker exactly as written and in the matching position."
}
