package llmclient

import (
	"context"
	"errors"
)

// ErrEmptyResponse is returned when the completion service answered without
// any usable text.
var ErrEmptyResponse = errors.New("empty response from LLM")

// Request is one fully-formed completion call. System and User are the two
// role-tagged messages; Temperature and MaxTokens are the sampling
// parameters chosen by the calling stage.
type Request struct {
	System      string
	User        string
	Temperature float32
	MaxTokens   int32
}

// Client is the narrow boundary to the external completion service.
// Implementations only perform the API call itself; cross-cutting concerns
// (retries, rate limiting, logging) are layered on via llm.Middleware.
type Client interface {
	Name() string
	Complete(ctx context.Context, req Request) (string, error)
	Close() error
}

// PermanentError indicates an error that will not resolve with retries.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

func NewPermanentError(err error) error {
	return &PermanentError{Err: err}
}
