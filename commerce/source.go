// Package commerce defines the remote commerce API collaborator consumed by
// the response cache and the prefetcher.
package commerce

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// UserContext identifies the shopper a request is made for.
// A nil *UserContext means an anonymous request.
type UserContext struct {
	CustomerID string
	Token      string
}

// Request describes one call to a logical endpoint.
type Request struct {
	Endpoint  string         // Logical endpoint identifier (e.g., "catalog/categories")
	Params    map[string]any // Request parameters
	CultureID int            // Numeric culture identifier expected by the remote API
	User      *UserContext
}

// Source is a remote data function. Responses are returned undecoded so the
// cache can store them without knowing their shape.
type Source interface {
	Fetch(ctx context.Context, req Request) (json.RawMessage, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(ctx context.Context, req Request) (json.RawMessage, error)

// Fetch calls f(ctx, req).
func (f SourceFunc) Fetch(ctx context.Context, req Request) (json.RawMessage, error) {
	return f(ctx, req)
}

// Error indicates a remote API failure.
type Error struct {
	Message    string
	StatusCode int // HTTP status, 0 when the request never got a response
	Cause      error
	Retryable  bool          // Whether the operation can be retried
	RetryAfter time.Duration // Server-requested wait before retrying, 0 when not given
}

func (e *Error) Error() string {
	msg := "commerce error: " + e.Message
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}
