package assist

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Kind tells the presentation layer what went wrong without parsing text.
type Kind string

const (
	KindTransport Kind = "transport"
	KindTimeout   Kind = "timeout"
	KindStatus    Kind = "status"
	KindMalformed Kind = "malformed"
	KindRender    Kind = "render"
	KindConfig    Kind = "config"
)

// Error is returned by every assist operation.
type Error struct {
	Kind       Kind
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindStatus:
		return fmt.Sprintf("%s: upstream returned %d: %s", e.Op, e.StatusCode, e.Body)
	case KindTimeout:
		return fmt.Sprintf("%s: timed out waiting for the model", e.Op)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
		}
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind of an assist error, or "" for anything else.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return ""
}

const maxErrorBody = 512

func statusError(op string, code int, body []byte) *Error {
	b := string(body)
	if len(b) > maxErrorBody {
		b = b[:maxErrorBody] + "..."
	}
	return &Error{Kind: KindStatus, Op: op, StatusCode: code, Body: b}
}

func transportError(op string, err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Op: op, Err: err}
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return &Error{Kind: KindTimeout, Op: op, Err: err}
	}
	return &Error{Kind: KindTransport, Op: op, Err: err}
}

func malformed(op string, err error) *Error {
	return &Error{Kind: KindMalformed, Op: op, Err: err}
}
