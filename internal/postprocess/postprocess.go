// Package postprocess strips LLM chatter from caption translations so that
// only the translated line remains.
package postprocess

import (
	"regexp"
	"strings"
)

var (
	// closed reasoning blocks; RE2 has no backreferences so each tag is listed
	reasoningRe = regexp.MustCompile(`(?is)<think>.*?</think>|<thinking>.*?</thinking>|<reasoning>.*?</reasoning>`)
	// a reasoning block the model never closed
	openReasoningRe = regexp.MustCompile(`(?is)(?:<think>|<thinking>|<reasoning>).*$`)
	// "Translation:", "Here is the translation:", "Sure, here's the translated text:"
	leadInRe = regexp.MustCompile(`(?i)^(?:(?:sure|certainly|of course)[,.!]?\s+)?(?:here(?:'s| is)\s+)?(?:the\s+)?(?:translation|translated text)(?:\s+(?:in|into)\s+[\p{L} ]+?)?\s*:\s*`)
	spaceRe  = regexp.MustCompile(`\s+`)
)

var quotePairs = [][2]rune{
	{'"', '"'},
	{'\'', '\''},
	{'«', '»'},
	{'“', '”'},
	{'‘', '’'},
	{'「', '」'},
}

// Clean returns the caption text contained in a raw model response.
func Clean(raw string) string {
	text := reasoningRe.ReplaceAllString(raw, "")
	text = openReasoningRe.ReplaceAllString(text, "")
	text = strings.TrimSpace(text)
	text = leadInRe.ReplaceAllString(text, "")
	text = unquote(strings.TrimSpace(text))
	return strings.TrimSpace(spaceRe.ReplaceAllString(text, " "))
}

func unquote(text string) string {
	runes := []rune(text)
	if len(runes) < 2 {
		return text
	}
	first, last := runes[0], runes[len(runes)-1]
	for _, p := range quotePairs {
		if first == p[0] && last == p[1] {
			return strings.TrimSpace(string(runes[1 : len(runes)-1]))
		}
	}
	return text
}
