package translator

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultMyMemoryURL = "https://api.mymemory.translated.net"

// MyMemoryBackend calls the MyMemory public API. There is nothing to
// download, so loading completes at once.
type MyMemoryBackend struct {
	baseURL string
	email   string
	client  *http.Client
}

func NewMyMemoryBackend(cfg Config) *MyMemoryBackend {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultMyMemoryURL
	}
	return &MyMemoryBackend{
		baseURL: baseURL,
		email:   cfg.Email,
		client:  &http.Client{Timeout: timeoutOr(cfg.Timeout, 30*time.Second)},
	}
}

func (b *MyMemoryBackend) Name() string {
	return "mymemory"
}

func (b *MyMemoryBackend) Load(ctx context.Context, modelID string, progress ProgressFunc) (Model, error) {
	report(progress, "mymemory", 100)
	return b, nil
}

func (b *MyMemoryBackend) Translate(ctx context.Context, text, targetLang string) (string, error) {
	q := url.Values{}
	q.Set("q", text)
	q.Set("langpair", "en|"+targetLang)
	if b.email != "" {
		q.Set("de", b.email)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/get?"+q.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	var out struct {
		ResponseData struct {
			TranslatedText string `json:"translatedText"`
		} `json:"responseData"`
		ResponseStatus  int    `json:"responseStatus"`
		ResponseDetails string `json:"responseDetails"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if out.ResponseStatus != http.StatusOK {
		return "", fmt.Errorf("API error: %s (%d)", out.ResponseDetails, out.ResponseStatus)
	}
	return out.ResponseData.TranslatedText, nil
}
