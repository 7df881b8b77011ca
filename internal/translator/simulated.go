package translator

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var defaultSimulatedFiles = []string{
	"config.json",
	"tokenizer.json",
	"encoder_model.onnx",
	"decoder_model_merged.onnx",
}

// SimulatedConfig shapes the fake load performed by SimulatedBackend.
type SimulatedConfig struct {
	Files    []string
	Steps    int
	Delay    time.Duration
	FailWith string
}

// SimulatedBackend pretends to download a multi-file model and answers with
// a tagged echo of the input. It exercises the whole pipeline without a
// model server.
type SimulatedBackend struct {
	cfg SimulatedConfig
}

func NewSimulatedBackend(cfg SimulatedConfig) *SimulatedBackend {
	if len(cfg.Files) == 0 {
		cfg.Files = defaultSimulatedFiles
	}
	if cfg.Steps <= 0 {
		cfg.Steps = 4
	}
	return &SimulatedBackend{cfg: cfg}
}

func (b *SimulatedBackend) Name() string {
	return "simulated"
}

func (b *SimulatedBackend) Load(ctx context.Context, modelID string, progress ProgressFunc) (Model, error) {
	const fileSize = 1 << 20
	for _, file := range b.cfg.Files {
		for step := 1; step <= b.cfg.Steps; step++ {
			if b.cfg.Delay > 0 {
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(b.cfg.Delay):
				}
			}
			if progress != nil {
				loaded := int64(fileSize * step / b.cfg.Steps)
				progress(LoadProgress{
					File:    file,
					Percent: float64(step) / float64(b.cfg.Steps) * 100,
					Loaded:  loaded,
					Total:   fileSize,
				})
			}
		}
	}
	if b.cfg.FailWith != "" {
		return nil, errors.New(b.cfg.FailWith)
	}
	return simulatedModel{id: modelID}, nil
}

type simulatedModel struct {
	id string
}

func (m simulatedModel) Translate(ctx context.Context, text, targetLang string) (string, error) {
	return fmt.Sprintf("<%s> %s", targetLang, text), nil
}
