package translator

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const defaultOllamaURL = "http://localhost:11434"

// OllamaBackend pulls models into a local Ollama server. Each layer of the
// pull is reported as one file.
type OllamaBackend struct {
	baseURL string
	client  *http.Client
}

func NewOllamaBackend(cfg Config) *OllamaBackend {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultOllamaURL
	}
	return &OllamaBackend{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeoutOr(cfg.Timeout, 120*time.Second)},
	}
}

func (b *OllamaBackend) Name() string {
	return "ollama"
}

type ollamaPullEvent struct {
	Status    string `json:"status"`
	Digest    string `json:"digest"`
	Total     int64  `json:"total"`
	Completed int64  `json:"completed"`
	Error     string `json:"error"`
}

func (b *OllamaBackend) Load(ctx context.Context, modelID string, progress ProgressFunc) (Model, error) {
	body, err := json.Marshal(map[string]interface{}{
		"model":  modelID,
		"stream": true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal pull request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/api/pull", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create pull request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	// pulls outlive the per-request client timeout
	client := &http.Client{Transport: b.client.Transport}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("network request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama pull returned status %d", resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	succeeded := false
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var ev ollamaPullEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			return nil, fmt.Errorf("failed to decode pull event: %w", err)
		}
		if ev.Error != "" {
			return nil, fmt.Errorf("ollama pull failed: %s", ev.Error)
		}
		if ev.Digest != "" && ev.Total > 0 && progress != nil {
			progress(LoadProgress{
				File:    shortDigest(ev.Digest),
				Percent: float64(ev.Completed) / float64(ev.Total) * 100,
				Loaded:  ev.Completed,
				Total:   ev.Total,
			})
		}
		if ev.Status == "success" {
			succeeded = true
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read pull stream: %w", err)
	}
	if !succeeded {
		return nil, fmt.Errorf("ollama pull ended without success")
	}

	return &ollamaModel{backend: b, model: modelID}, nil
}

func shortDigest(d string) string {
	d = strings.TrimPrefix(d, "sha256:")
	if len(d) > 12 {
		d = d[:12]
	}
	return d
}

type ollamaModel struct {
	backend *OllamaBackend
	model   string
}

func (m *ollamaModel) Translate(ctx context.Context, text, targetLang string) (string, error) {
	return withMarkup(text, func(protected, hint string) (string, error) {
		return m.generate(ctx, protected, targetLang, hint)
	})
}

func (m *ollamaModel) generate(ctx context.Context, text, targetLang, hint string) (string, error) {
	prompt := fmt.Sprintf(`Translate the following caption from en to %s.
Only respond with the translation, nothing else.%s

Text: "%s"

Translation:`, targetLang, hintLine(hint), text)

	jsonData, err := json.Marshal(map[string]interface{}{
		"model":  m.model,
		"prompt": prompt,
		"stream": false,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.backend.baseURL+"/api/generate", bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.backend.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("API returned status %d", resp.StatusCode)
	}

	var out struct {
		Response string `json:"response"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	return out.Response, nil
}

func hintLine(hint string) string {
	if hint == "" {
		return ""
	}
	return "\n" + hint
}
