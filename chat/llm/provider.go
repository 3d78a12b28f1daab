// Package llm wraps an OpenAI-compatible completion provider behind a
// narrow streaming interface so the orchestrator and its tests never
// depend on a concrete backend.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

// Message represents a chat message.
type Message struct {
	Role    string // system, user, assistant
	Content string
}

// CallStats represents statistics for a single completion call.
type CallStats struct {
	// PromptTokens is the number of tokens in the input prompt.
	PromptTokens int `json:"prompt_tokens"`

	// CompletionTokens is the number of tokens in the generated response.
	CompletionTokens int `json:"completion_tokens"`

	// TotalTokens is the sum of prompt and completion tokens.
	TotalTokens int `json:"total_tokens"`

	// FirstTokenMs is the time from request start to first delta (TTFT).
	FirstTokenMs int64 `json:"first_token_ms"`

	// TotalDurationMs is the total wall-clock time for the request.
	TotalDurationMs int64 `json:"total_duration_ms"`
}

// Provider is the completion provider interface. Stream is cancellable
// through its context; cancelling halts token consumption immediately.
type Provider interface {
	// Stream performs streaming completion. Returns a delta channel, a
	// stats channel and an error channel. The stats channel receives the
	// final stats when the stream completes normally; all channels are
	// closed when the stream ends.
	Stream(ctx context.Context, messages []Message) (<-chan string, <-chan *CallStats, <-chan error)

	// Warmup sends a lightweight ping to establish the provider connection.
	Warmup(ctx context.Context)
}

// Config represents completion provider configuration.
type Config struct {
	Provider    string // openai, deepseek, siliconflow, openrouter, ollama
	Model       string
	APIKey      string
	BaseURL     string
	MaxTokens   int     // default: 2048
	Temperature float32 // default: 0.7
	Timeout     int     // request timeout in seconds (default: 120)
}

type provider struct {
	client      *openai.Client
	model       string
	name        string
	maxTokens   int
	temperature float32
	timeout     int
}

// NewProvider creates a new completion Provider.
func NewProvider(cfg *Config) (Provider, error) {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	clientConfig.HTTPClient = newHTTPClient()

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 2048
	}
	temperature := cfg.Temperature
	if temperature <= 0 {
		temperature = 0.7
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120
	}

	return &provider{
		client:      openai.NewClientWithConfig(clientConfig),
		model:       cfg.Model,
		name:        cfg.Provider,
		maxTokens:   maxTokens,
		temperature: temperature,
		timeout:     timeout,
	}, nil
}

func (p *provider) Stream(ctx context.Context, messages []Message) (<-chan string, <-chan *CallStats, <-chan error) {
	deltaChan := make(chan string, 10)
	statsChan := make(chan *CallStats, 1)
	errChan := make(chan error, 1)

	go func() {
		defer close(deltaChan)
		defer close(statsChan)
		defer close(errChan)

		ctx, cancel := context.WithTimeout(ctx, time.Duration(p.timeout)*time.Second)
		defer cancel()

		req := openai.ChatCompletionRequest{
			Model:         p.model,
			MaxTokens:     p.maxTokens,
			Temperature:   p.temperature,
			Messages:      convertMessages(messages),
			StreamOptions: &openai.StreamOptions{IncludeUsage: true},
		}

		startTime := time.Now()
		var firstDeltaTime time.Time

		slog.Debug("llm: stream starting", "model", p.model, "messages", len(messages))
		stream, err := p.client.CreateChatCompletionStream(ctx, req)
		if err != nil {
			slog.Error("llm: failed to create stream", "error", err)
			select {
			case errChan <- fmt.Errorf("create stream failed: %w", err):
			case <-ctx.Done():
			}
			return
		}
		defer func() { _ = stream.Close() }() //nolint:errcheck // cleanup

		deltaCount := 0
		finish := func(usage *openai.Usage) {
			stats := &CallStats{
				TotalDurationMs: time.Since(startTime).Milliseconds(),
			}
			if !firstDeltaTime.IsZero() {
				stats.FirstTokenMs = firstDeltaTime.Sub(startTime).Milliseconds()
			}
			if usage != nil {
				stats.PromptTokens = usage.PromptTokens
				stats.CompletionTokens = usage.CompletionTokens
				stats.TotalTokens = usage.TotalTokens
			}
			slog.Debug("llm: stream completed", "deltas", deltaCount, "duration_ms", stats.TotalDurationMs)
			statsChan <- stats
		}

		for {
			response, err := stream.Recv()
			if err != nil {
				if strings.Contains(err.Error(), "EOF") {
					finish(nil)
					return
				}
				slog.Error("llm: stream receive error", "error", err, "deltas_so_far", deltaCount)
				select {
				case errChan <- fmt.Errorf("stream recv failed: %w", err):
				case <-ctx.Done():
				}
				return
			}

			if firstDeltaTime.IsZero() && len(response.Choices) > 0 && response.Choices[0].Delta.Content != "" {
				firstDeltaTime = time.Now()
			}

			// Some providers send usage in a trailing chunk with no choices.
			if response.Usage != nil && response.Usage.TotalTokens > 0 {
				finish(response.Usage)
				return
			}

			if len(response.Choices) == 0 {
				continue
			}

			delta := response.Choices[0].Delta.Content
			if delta != "" {
				deltaCount++
				select {
				case deltaChan <- delta:
				case <-ctx.Done():
					slog.Warn("llm: context cancelled during send", "deltas", deltaCount)
					return
				}
			}

			if response.Choices[0].FinishReason != "" {
				finish(nil)
				return
			}
		}
	}()

	return deltaChan, statsChan, errChan
}

func (p *provider) Warmup(ctx context.Context) {
	warmupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	startTime := time.Now()

	req := openai.ChatCompletionRequest{
		Model:       p.model,
		MaxTokens:   1,
		Temperature: 0,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: "Hi"},
		},
	}

	if _, err := p.client.CreateChatCompletion(warmupCtx, req); err != nil {
		slog.Warn("llm: warmup ping failed (first request may be slower)",
			"provider", p.name,
			"model", p.model,
			"error", err,
			"duration_ms", time.Since(startTime).Milliseconds(),
		)
		return
	}

	slog.Info("llm: connection warmed up",
		"provider", p.name,
		"model", p.model,
		"duration_ms", time.Since(startTime).Milliseconds(),
	)
}

func convertMessages(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		role := openai.ChatMessageRoleUser
		switch m.Role {
		case "system":
			role = openai.ChatMessageRoleSystem
		case "assistant":
			role = openai.ChatMessageRoleAssistant
		}
		out[i] = openai.ChatCompletionMessage{Role: role, Content: m.Content}
	}
	return out
}

func newHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 120 * time.Second,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
}

// SystemPrompt creates a system message.
func SystemPrompt(content string) Message {
	return Message{Role: "system", Content: content}
}

// UserMessage creates a user message.
func UserMessage(content string) Message {
	return Message{Role: "user", Content: content}
}

// AssistantMessage creates an assistant message.
func AssistantMessage(content string) Message {
	return Message{Role: "assistant", Content: content}
}
