package worker

import "strings"

// Category groups load and translation failures into the few cases a user
// can act on.
type Category string

const (
	CategoryNetwork  Category = "network"
	CategoryMemory   Category = "memory"
	CategoryPlatform Category = "platform"
	CategoryCrash    Category = "crash"
	CategoryUnknown  Category = "unknown"
)

const (
	MessageNetwork    = "Network connection failed"
	MessageMemory     = "Insufficient memory"
	MessagePlatform   = "Platform not supported"
	MessageCrashed    = "Worker crashed"
	MessageUnexpected = "Unexpected error"
	MessageNotReady   = "Model not ready"
)

// Describe turns a backend error into the message reported to the
// orchestrator.
func Describe(err error) string {
	if err == nil {
		return MessageUnexpected
	}
	msg := err.Error()
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "fetch"), strings.Contains(lower, "network"),
		strings.Contains(lower, "connection refused"), strings.Contains(lower, "no such host"):
		return MessageNetwork
	case strings.Contains(lower, "memory"), strings.Contains(lower, "allocation"):
		return MessageMemory
	case strings.Contains(lower, "not supported"), strings.Contains(lower, "exec format"),
		strings.Contains(lower, "unsupported platform"):
		return MessagePlatform
	case msg == "":
		return MessageUnexpected
	}
	return msg
}

// Categorize maps a message produced by Describe to its category.
func Categorize(message string) Category {
	switch message {
	case MessageNetwork:
		return CategoryNetwork
	case MessageMemory:
		return CategoryMemory
	case MessagePlatform:
		return CategoryPlatform
	case MessageCrashed, MessageUnexpected:
		return CategoryCrash
	}
	return CategoryUnknown
}
