package orchestrator

import (
	"errors"
	"fmt"

	"github.com/valpere/captran/internal/worker"
)

var (
	ErrUnsupportedLanguage = errors.New("unsupported language")
	ErrTranslationTimeout  = errors.New("translation timed out")
	ErrWorkerCrashed       = errors.New("worker crashed")
	ErrLoadSuperseded      = errors.New("model load superseded by a newer request")
	ErrLoadTimeout         = errors.New("model load timed out")
	ErrWorkerTerminated    = errors.New("worker terminated")
	ErrModelNotReady       = errors.New("model not ready")
	ErrDuplicateRequest    = errors.New("duplicate request id")
	ErrMissingRequestID    = errors.New("missing request id")
	ErrClosed              = errors.New("orchestrator closed")
)

// WorkerCreationError is returned when a worker could not be started.
type WorkerCreationError struct {
	Err error
}

func (e *WorkerCreationError) Error() string {
	return fmt.Sprintf("failed to create worker: %v", e.Err)
}

func (e *WorkerCreationError) Unwrap() error {
	return e.Err
}

// ModelLoadError is a load failure reported by the worker.
type ModelLoadError struct {
	Model    string
	Category worker.Category
	Message  string
}

func (e *ModelLoadError) Error() string {
	return fmt.Sprintf("failed to load %s: %s", e.Model, e.Message)
}

// TranslationError is a translation failure reported by the worker.
type TranslationError struct {
	RequestID string
	Message   string
}

func (e *TranslationError) Error() string {
	return fmt.Sprintf("translation %s failed: %s", e.RequestID, e.Message)
}
