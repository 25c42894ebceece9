// Package model defines the text-generation backend contract consumed
// by the response generator. Providers are adapters; the generator
// only sees compiled requests and ordered fragments.
package model

import (
	"context"

	"github.com/virtualcompanion/companion-sdk/core"
)

// Turn is one flattened history entry in a compiled request.
type Turn struct {
	Role    core.Role
	Content string
}

// Request is a compiled model request: system instructions, bounded
// history ending with the new user message, and generation parameters
// derived from character personality.
type Request struct {
	// Model optionally overrides the client's default model.
	Model string

	// System is the full system prompt.
	System string

	// Turns is the flattened conversation, oldest first. The last turn
	// is always the new user message.
	Turns []Turn

	// Temperature is the sampling temperature, already clamped to the
	// backend's valid range.
	Temperature float64

	// MaxTokens bounds the reply length. Zero uses the client default.
	MaxTokens int64
}

// Fragment is one element of a streamed generation. Zero or more text
// fragments are followed by exactly one terminal fragment (Done set;
// Err set on failure), after which the channel is closed.
type Fragment struct {
	Text string
	Done bool
	Err  error
}

// FragmentBuffer is the bounded queue size between a streaming
// provider and the response generator.
const FragmentBuffer = 32

// Client is the text-generation backend.
//
// Errors are classified against the core taxonomy: ErrProviderTimeout
// and ErrProviderUnavailable are transient (retried by the caller),
// ErrMalformedResponse is not.
type Client interface {
	// Generate runs a request to completion and returns the full text.
	Generate(ctx context.Context, req *Request) (string, error)

	// GenerateStream starts a streamed generation. The returned channel
	// observes Fragment ordering rules; it is closed after the terminal
	// fragment.
	GenerateStream(ctx context.Context, req *Request) (<-chan Fragment, error)
}
