package translator

import (
	"context"
	"fmt"

	translate "cloud.google.com/go/translate"
	"golang.org/x/text/language"
	"google.golang.org/api/option"
)

// GoogleBackend uses Cloud Translation. The catalog model id is ignored;
// loading creates the authenticated client.
type GoogleBackend struct {
	credentials string
	apiKey      string
}

func NewGoogleBackend(cfg Config) *GoogleBackend {
	return &GoogleBackend{credentials: cfg.Credentials, apiKey: cfg.APIKey}
}

func (b *GoogleBackend) Name() string {
	return "google"
}

func (b *GoogleBackend) Load(ctx context.Context, modelID string, progress ProgressFunc) (Model, error) {
	report(progress, "client", 0)

	var opts []option.ClientOption
	if b.credentials != "" {
		opts = append(opts, option.WithCredentialsFile(b.credentials))
	}
	if b.apiKey != "" {
		opts = append(opts, option.WithAPIKey(b.apiKey))
	}

	client, err := translate.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	report(progress, "client", 100)
	return &googleModel{client: client}, nil
}

type googleModel struct {
	client *translate.Client
}

func (m *googleModel) Translate(ctx context.Context, text, targetLang string) (string, error) {
	target, err := language.Parse(targetLang)
	if err != nil {
		return "", fmt.Errorf("invalid target language: %w", err)
	}

	translations, err := m.client.Translate(ctx, []string{text}, target, &translate.Options{
		Source: language.English,
		Format: translate.Text,
	})
	if err != nil {
		return "", fmt.Errorf("translation failed: %w", err)
	}
	if len(translations) == 0 {
		return "", fmt.Errorf("no translation returned")
	}
	return translations[0].Text, nil
}

func (m *googleModel) Close() error {
	return m.client.Close()
}
