// Package worker implements the message protocol spoken between the
// orchestrator and the isolated background worker that hosts a model, the
// transports that carry it, and the worker-side runtime.
package worker

import (
	"encoding/json"
	"errors"
)

type Action string

const (
	ActionInitialize Action = "initialize"
	ActionTranslate  Action = "translate"
)

// Request is a message sent to the worker.
type Request struct {
	Action         Action `json:"action"`
	ModelName      string `json:"modelName,omitempty"`
	Text           string `json:"text,omitempty"`
	TranslationID  string `json:"translationId,omitempty"`
	TargetLanguage string `json:"targetLanguage,omitempty"`
}

type Status string

const (
	StatusInitiate Status = "initiate"
	StatusProgress Status = "progress"
	StatusReady    Status = "ready"
	StatusComplete Status = "complete"
	StatusError    Status = "error"
)

// Event is a message emitted by the worker.
type Event struct {
	Status         Status          `json:"status"`
	File           string          `json:"file,omitempty"`
	Progress       float64         `json:"progress,omitempty"`
	TotalFiles     int             `json:"totalFiles,omitempty"`
	CompletedFiles int             `json:"completedFiles,omitempty"`
	Loaded         int64           `json:"loaded,omitempty"`
	Total          int64           `json:"total,omitempty"`
	ModelName      string          `json:"modelName,omitempty"`
	TranslationID  string          `json:"translationId,omitempty"`
	Output         json.RawMessage `json:"output,omitempty"`
	Error          string          `json:"error,omitempty"`
}

// ErrInvalidOutput is returned when a complete event carries an output of
// neither accepted shape.
var ErrInvalidOutput = errors.New("invalid translation output")

type outputItem struct {
	TranslationText *string `json:"translation_text"`
}

// TranslationText extracts the translated text from a complete event. The
// output is either an array whose first element has a non-empty
// translation_text, or a single object with that field.
func (e Event) TranslationText() (string, error) {
	if len(e.Output) == 0 {
		return "", ErrInvalidOutput
	}

	var list []outputItem
	if err := json.Unmarshal(e.Output, &list); err == nil {
		if len(list) > 0 && list[0].TranslationText != nil && *list[0].TranslationText != "" {
			return *list[0].TranslationText, nil
		}
		return "", ErrInvalidOutput
	}

	var item outputItem
	if err := json.Unmarshal(e.Output, &item); err == nil && item.TranslationText != nil {
		return *item.TranslationText, nil
	}
	return "", ErrInvalidOutput
}

// CompleteEvent builds the complete event for a finished translation.
func CompleteEvent(translationID, text string) Event {
	out, _ := json.Marshal([]map[string]string{{"translation_text": text}})
	return Event{
		Status:        StatusComplete,
		TranslationID: translationID,
		Output:        out,
	}
}
