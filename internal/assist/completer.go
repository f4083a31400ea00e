// Package assist wraps the remote vision/LLM service used for OCR, grading
// and follow-up questions on a single submission.
package assist

import "context"

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Image struct {
	MIME string
	Data []byte
}

type Message struct {
	Role   string  `json:"role"`
	Text   string  `json:"content"`
	Images []Image `json:"-"`
}

type Request struct {
	Model       string
	Messages    []Message
	Temperature *float64
	MaxTokens   int
}

// Completer sends one chat request and returns the generated text.
// Failures are *Error values.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

func float(v float64) *float64 { return &v }
