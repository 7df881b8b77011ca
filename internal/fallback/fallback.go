// Package fallback produces an immediate, deterministic translation used
// while no model is available. It never fails and performs no I/O.
package fallback

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

var phrases = map[string]map[string]string{
	"hello": {
		"es": "hola", "fr": "bonjour", "de": "hallo", "it": "ciao",
		"pt": "olá", "ru": "привет", "ja": "こんにちは", "ko": "안녕하세요",
		"zh": "你好", "ar": "مرحبا", "hi": "नमस्ते",
	},
	"thank you": {
		"es": "gracias", "fr": "merci", "de": "danke", "it": "grazie",
		"pt": "obrigado", "ru": "спасибо", "ja": "ありがとう", "ko": "감사합니다",
		"zh": "谢谢", "ar": "شكرا", "hi": "धन्यवाद",
	},
	"good morning": {
		"es": "buenos días", "fr": "bonjour", "de": "guten Morgen", "it": "buongiorno",
		"pt": "bom dia", "ru": "доброе утро", "ja": "おはようございます", "ko": "좋은 아침",
		"zh": "早上好", "ar": "صباح الخير", "hi": "सुप्रभात",
	},
}

type substitution struct {
	re           *regexp.Regexp
	translations map[string]string
}

// applied in order
var words = []substitution{
	{re: regexp.MustCompile(`(?i)\bi\b`), translations: map[string]string{"es": "yo", "fr": "je", "de": "ich", "it": "io", "pt": "eu"}},
	{re: regexp.MustCompile(`(?i)\byou\b`), translations: map[string]string{"es": "tú", "fr": "vous", "de": "du", "it": "tu", "pt": "você"}},
	{re: regexp.MustCompile(`(?i)\blove\b`), translations: map[string]string{"es": "amor", "fr": "amour", "de": "liebe", "it": "amore", "pt": "amor"}},
}

var languageNames = map[string]string{
	"es": "Spanish", "fr": "French", "de": "German", "it": "Italian",
	"pt": "Portuguese", "ru": "Russian", "ja": "Japanese", "ko": "Korean",
	"zh": "Chinese", "ar": "Arabic", "hi": "Hindi", "th": "Thai",
	"vi": "Vietnamese", "nl": "Dutch", "pl": "Polish", "tr": "Turkish",
}

// Translate returns a best-effort translation of text into lang: a canned
// phrase, a whole-word substitution, or the input tagged with the language
// name, in that order of preference.
func Translate(text, lang string) string {
	key := norm.NFC.String(strings.ToLower(strings.TrimSpace(text)))
	if byLang, ok := phrases[key]; ok {
		if out, ok := byLang[lang]; ok {
			return out
		}
	}

	result := strings.ToLower(text)
	substituted := false
	for _, w := range words {
		repl, ok := w.translations[lang]
		if !ok || !w.re.MatchString(result) {
			continue
		}
		result = w.re.ReplaceAllLiteralString(result, repl)
		substituted = true
	}

	if !substituted {
		return Tag(text, lang)
	}
	return capitalize(result)
}

// Tag prefixes text with the bracketed language name, e.g. "[Spanish] hello".
func Tag(text, lang string) string {
	name, ok := languageNames[lang]
	if !ok {
		name = strings.ToUpper(lang)
	}
	return "[" + name + "] " + text
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
