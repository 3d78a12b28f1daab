package chat

import (
	"time"

	"github.com/kindredapp/kindred/chat/prompt"
	"github.com/kindredapp/kindred/chat/retrieval"
	"github.com/kindredapp/kindred/chat/toughlove"
)

// Config bundles all chat engine tuning knobs. It is threaded explicitly
// through the components so evaluation is reproducible given identical
// inputs; nothing reads ambient global state.
type Config struct {
	Retrieval *retrieval.Config
	ToughLove *toughlove.Config
	Prompt    *prompt.Config

	// MaxMessageLen rejects oversized input before any backend call.
	MaxMessageLen int // default: 4000

	// StartTimeout bounds the wait for the first generated token;
	// GenerationTimeout bounds the whole generation.
	StartTimeout      time.Duration // default: 10s
	GenerationTimeout time.Duration // default: 60s

	// RetryBackoff is the pause before the single retry after a
	// provider-unavailable failure.
	RetryBackoff time.Duration // default: 500ms

	// TitleLen caps the conversation title derived from the first message.
	TitleLen int // default: 60
}

// DefaultConfig returns the default chat engine configuration.
func DefaultConfig() *Config {
	return &Config{
		Retrieval:         retrieval.DefaultConfig(),
		ToughLove:         toughlove.DefaultConfig(),
		Prompt:            &prompt.Config{},
		MaxMessageLen:     4000,
		StartTimeout:      10 * time.Second,
		GenerationTimeout: 60 * time.Second,
		RetryBackoff:      500 * time.Millisecond,
		TitleLen:          60,
	}
}

func (c *Config) normalize() {
	if c.Retrieval == nil {
		c.Retrieval = retrieval.DefaultConfig()
	}
	if c.ToughLove == nil {
		c.ToughLove = toughlove.DefaultConfig()
	}
	if c.Prompt == nil {
		c.Prompt = &prompt.Config{}
	}
	if c.MaxMessageLen <= 0 {
		c.MaxMessageLen = 4000
	}
	if c.StartTimeout <= 0 {
		c.StartTimeout = 10 * time.Second
	}
	if c.GenerationTimeout <= 0 {
		c.GenerationTimeout = 60 * time.Second
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 500 * time.Millisecond
	}
	if c.TitleLen <= 0 {
		c.TitleLen = 60
	}
}
