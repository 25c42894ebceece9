// Package anthropic adapts the Anthropic Messages API to the model
// client contract.
package anthropic

import (
	"context"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/virtualcompanion/companion-sdk/core"
	"github.com/virtualcompanion/companion-sdk/model"
)

// Config configures the adapter defaults.
type Config struct {
	// Model is the default model when a request does not name one.
	Model string

	// MaxTokens is the default response token cap.
	MaxTokens int64
}

// Client implements model.Client over the Anthropic SDK.
type Client struct {
	api       *anthropic.Client
	model     string
	maxTokens int64
}

// New creates an adapter around an Anthropic SDK client.
func New(api *anthropic.Client, cfg Config) *Client {
	if cfg.Model == "" {
		cfg.Model = "claude-sonnet-4-20250514"
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 1024
	}
	return &Client{
		api:       api,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
	}
}

// Generate runs a request to completion.
func (c *Client) Generate(ctx context.Context, req *model.Request) (string, error) {
	resp, err := c.api.Messages.New(ctx, c.params(req))
	if err != nil {
		return "", classify(err)
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	if text == "" {
		return "", fmt.Errorf("%w: response contained no text blocks", core.ErrMalformedResponse)
	}
	return text, nil
}

// GenerateStream starts a streamed generation and forwards text deltas
// as fragments over a bounded channel.
func (c *Client) GenerateStream(ctx context.Context, req *model.Request) (<-chan model.Fragment, error) {
	out := make(chan model.Fragment, model.FragmentBuffer)

	go func() {
		defer close(out)

		stream := c.api.Messages.NewStreaming(ctx, c.params(req))
		defer stream.Close()

		emitted := false
		for stream.Next() {
			event := stream.Current()

			switch evt := event.AsAny().(type) {
			case anthropic.ContentBlockDeltaEvent:
				switch delta := evt.Delta.AsAny().(type) {
				case anthropic.TextDelta:
					if delta.Text != "" {
						emitted = true
						out <- model.Fragment{Text: delta.Text}
					}
				}
			}
		}

		if err := stream.Err(); err != nil {
			out <- model.Fragment{Done: true, Err: classify(err)}
			return
		}
		if !emitted {
			out <- model.Fragment{Done: true, Err: fmt.Errorf("%w: stream produced no text", core.ErrMalformedResponse)}
			return
		}
		out <- model.Fragment{Done: true}
	}()

	return out, nil
}

func (c *Client) params(req *model.Request) anthropic.MessageNewParams {
	modelName := req.Model
	if modelName == "" {
		modelName = c.model
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.maxTokens
	}

	messages := make([]anthropic.MessageParam, 0, len(req.Turns))
	for _, turn := range req.Turns {
		switch turn.Role {
		case core.RoleAssistant:
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(turn.Content)))
		default:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(turn.Content)))
		}
	}

	return anthropic.MessageNewParams{
		Model:       anthropic.Model(modelName),
		MaxTokens:   maxTokens,
		Temperature: anthropic.Float(req.Temperature),
		Messages:    messages,
		System: []anthropic.TextBlockParam{
			{Text: req.System},
		},
	}
}

// classify maps SDK errors onto the core provider taxonomy so the
// generator can decide between retry and fallback.
func classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", core.ErrProviderTimeout, err)
	}

	var apierr *anthropic.Error
	if errors.As(err, &apierr) {
		switch {
		case apierr.StatusCode == 429 || apierr.StatusCode >= 500:
			return fmt.Errorf("%w: %v", core.ErrProviderUnavailable, err)
		case apierr.StatusCode == 400:
			return fmt.Errorf("%w: %v", core.ErrMalformedResponse, err)
		}
	}

	return fmt.Errorf("%w: %v", core.ErrProviderUnavailable, err)
}
