// Package catalog maps target language codes to the translation model that
// serves them. A catalog is immutable once built.
package catalog

import (
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// Entry describes the model used for one target language.
type Entry struct {
	Language    string `yaml:"language" json:"language"`
	Name        string `yaml:"name" json:"name"`
	ModelID     string `yaml:"model" json:"modelId"`
	DisplayName string `yaml:"display_name" json:"displayName"`
}

// Catalog is a static language → model lookup.
type Catalog struct {
	entries map[string]Entry
	order   []string
}

var builtin = []Entry{
	{Language: "es", Name: "Spanish", ModelID: "Xenova/opus-mt-en-es"},
	{Language: "fr", Name: "French", ModelID: "Xenova/opus-mt-en-fr"},
	{Language: "de", Name: "German", ModelID: "Xenova/opus-mt-en-de"},
	{Language: "it", Name: "Italian", ModelID: "Xenova/opus-mt-en-it"},
	{Language: "pt", Name: "Portuguese", ModelID: "Xenova/opus-mt-en-pt"},
	{Language: "ru", Name: "Russian", ModelID: "Xenova/opus-mt-en-ru"},
	{Language: "zh", Name: "Chinese", ModelID: "Xenova/opus-mt-en-zh"},
	{Language: "ar", Name: "Arabic", ModelID: "Xenova/opus-mt-en-ar"},
	{Language: "nl", Name: "Dutch", ModelID: "Xenova/opus-mt-en-nl"},
	{Language: "pl", Name: "Polish", ModelID: "Xenova/opus-mt-en-pl"},
	{Language: "tr", Name: "Turkish", ModelID: "Xenova/opus-mt-en-tr"},
	{Language: "ja", Name: "Japanese", ModelID: "Xenova/opus-mt-en-jap"},
	{Language: "ko", Name: "Korean", ModelID: "Xenova/opus-mt-en-ko"},
	{Language: "hi", Name: "Hindi", ModelID: "Xenova/opus-mt-en-hi"},
	{Language: "th", Name: "Thai", ModelID: "Xenova/opus-mt-en-th"},
	{Language: "vi", Name: "Vietnamese", ModelID: "Xenova/opus-mt-en-vi"},
}

// Default returns the built-in catalog of English→X models.
func Default() *Catalog {
	c, err := build(builtin)
	if err != nil {
		panic(err)
	}
	return c
}

// New builds a catalog from the given entries. Later entries for the same
// language replace earlier ones.
func New(entries []Entry) (*Catalog, error) {
	return build(entries)
}

func build(entries []Entry) (*Catalog, error) {
	c := &Catalog{entries: make(map[string]Entry, len(entries))}
	for _, e := range entries {
		code := Normalize(e.Language)
		if code == "" {
			return nil, fmt.Errorf("catalog entry has no language")
		}
		if strings.TrimSpace(e.ModelID) == "" {
			return nil, fmt.Errorf("catalog entry %q has no model", code)
		}
		e.Language = code
		if e.Name == "" {
			e.Name = strings.ToUpper(code)
		}
		if e.DisplayName == "" {
			e.DisplayName = fmt.Sprintf("English→%s Model", e.Name)
		}
		if _, exists := c.entries[code]; !exists {
			c.order = append(c.order, code)
		}
		c.entries[code] = e
	}
	return c, nil
}

// Load reads a YAML list of entries and layers it over the built-in catalog.
// An entry for a built-in language may omit the name.
func Load(r io.Reader) (*Catalog, error) {
	var overrides []Entry
	if err := yaml.NewDecoder(r).Decode(&overrides); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to decode catalog: %w", err)
	}

	base := Default()
	merged := make([]Entry, 0, len(builtin)+len(overrides))
	merged = append(merged, builtin...)
	for _, o := range overrides {
		if prev, ok := base.Lookup(o.Language); ok && o.Name == "" {
			o.Name = prev.Name
		}
		merged = append(merged, o)
	}
	return build(merged)
}

// LoadFile is Load for a file path.
func LoadFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Normalize reduces a language tag to its lower-case base code
// ("es-MX" → "es"). Unparseable input is returned trimmed and lower-cased.
func Normalize(code string) string {
	code = strings.TrimSpace(code)
	if code == "" {
		return ""
	}
	tag, err := language.Parse(code)
	if err != nil {
		return strings.ToLower(code)
	}
	base, conf := tag.Base()
	if conf == language.No {
		return strings.ToLower(code)
	}
	return base.String()
}

// Lookup returns the entry serving code.
func (c *Catalog) Lookup(code string) (Entry, bool) {
	e, ok := c.entries[Normalize(code)]
	return e, ok
}

// Supported reports whether a model exists for code.
func (c *Catalog) Supported(code string) bool {
	_, ok := c.Lookup(code)
	return ok
}

// Entries returns all entries in catalog order.
func (c *Catalog) Entries() []Entry {
	out := make([]Entry, 0, len(c.order))
	for _, code := range c.order {
		out = append(out, c.entries[code])
	}
	return out
}

// Codes returns the supported language codes in catalog order.
func (c *Catalog) Codes() []string {
	return append([]string(nil), c.order...)
}

func (c *Catalog) Len() int {
	return len(c.order)
}
