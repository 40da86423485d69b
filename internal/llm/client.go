// Package llm streams model replies token-by-token into the speech
// pipeline.
package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
)

// TokenSink receives the streamed reply. Implemented by
// pipeline.Pipeline.
type TokenSink interface {
	Feed(token string)
	EndOfTurn()
}

// Config holds the upstream model settings. Any OpenAI-compatible
// endpoint works; the default deployment points at DashScope's
// compatible mode.
type Config struct {
	APIKey       string
	BaseURL      string
	Model        string
	SystemPrompt string
}

// Client drives one conversation turn against the model.
type Client struct {
	api    *openai.Client
	model  string
	system string
	logger zerolog.Logger
}

// NewClient builds a streaming chat client.
func NewClient(cfg Config, logger zerolog.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("llm: API key not configured")
	}
	if cfg.Model == "" {
		return nil, errors.New("llm: model not configured")
	}

	apiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = cfg.BaseURL
	}

	return &Client{
		api:    openai.NewClientWithConfig(apiCfg),
		model:  cfg.Model,
		system: cfg.SystemPrompt,
		logger: logger,
	}, nil
}

// StreamTurn sends the user message, feeds each delta token into the
// sink as it arrives, and signals end of turn. The sink is signalled
// even on mid-stream errors so partial replies still get spoken.
func (c *Client) StreamTurn(ctx context.Context, userText string, sink TokenSink) error {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if c.system != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: c.system,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: userText,
	})

	start := time.Now()
	stream, err := c.api.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   true,
	})
	if err != nil {
		return fmt.Errorf("llm: start stream: %w", err)
	}
	defer stream.Close()
	defer sink.EndOfTurn()

	first := true
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			c.logger.Debug().Dur("turn", time.Since(start)).Msg("Model stream complete")
			return nil
		}
		if err != nil {
			return fmt.Errorf("llm: stream: %w", err)
		}
		if len(resp.Choices) == 0 {
			continue
		}

		token := resp.Choices[0].Delta.Content
		if token == "" {
			continue
		}
		if first {
			c.logger.Info().Dur("ttft", time.Since(start)).Msg("First model token")
			first = false
		}
		sink.Feed(token)
	}
}
