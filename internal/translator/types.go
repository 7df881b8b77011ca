// Package translator contains the model backends that run inside a worker.
// A backend loads a model, reporting per-file progress while it does so,
// and the loaded model then serves translation requests.
package translator

import (
	"context"
	"fmt"
	"time"
)

// Config carries backend connection settings.
type Config struct {
	BaseURL     string        `mapstructure:"base_url" json:"base_url"`
	APIKey      string        `mapstructure:"api_key" json:"api_key"`
	Credentials string        `mapstructure:"credentials" json:"credentials"`
	Email       string        `mapstructure:"email" json:"email"`
	Timeout     time.Duration `mapstructure:"timeout" json:"timeout"`
}

// LoadProgress is one progress report for one model file.
type LoadProgress struct {
	File    string
	Percent float64
	Loaded  int64
	Total   int64
}

type ProgressFunc func(LoadProgress)

// Model is a loaded model ready for inference. Implementations that hold
// resources also implement io.Closer.
type Model interface {
	Translate(ctx context.Context, text, targetLang string) (string, error)
}

// Backend loads models by id.
type Backend interface {
	Name() string
	Load(ctx context.Context, modelID string, progress ProgressFunc) (Model, error)
}

// Names lists the backends New understands.
var Names = []string{"ollama", "openai", "google", "mymemory", "simulated"}

// New constructs the named backend.
func New(name string, cfg Config) (Backend, error) {
	switch name {
	case "ollama":
		return NewOllamaBackend(cfg), nil
	case "openai":
		return NewOpenAIBackend(cfg), nil
	case "google":
		return NewGoogleBackend(cfg), nil
	case "mymemory":
		return NewMyMemoryBackend(cfg), nil
	case "simulated":
		return NewSimulatedBackend(SimulatedConfig{}), nil
	default:
		return nil, fmt.Errorf("unknown backend: %s", name)
	}
}

func timeoutOr(d, def time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return def
}
