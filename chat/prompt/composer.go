// Package prompt renders the instruction text sent to the completion
// provider. Activation logic lives upstream in toughlove; the composer
// only serializes decisions already made.
package prompt

import (
	"fmt"
	"strings"

	"github.com/kindredapp/kindred/chat/llm"
	"github.com/kindredapp/kindred/chat/retrieval"
	"github.com/kindredapp/kindred/chat/toughlove"
	"github.com/kindredapp/kindred/store"
)

const defaultPreamble = `You are Kindred, a personal relationship coach grounded in the user's own records.
Answer the user's question using the numbered sources below when they are relevant, citing them inline with [n] markers.
If no sources are listed, answer from the user profile alone and do not invent citations.
Be concrete and specific to this user; avoid generic advice.`

// Config configures prompt composition.
type Config struct {
	// Preamble replaces the default instruction preamble when set.
	Preamble string

	// HistoryWindow is how many trailing messages of the conversation are
	// replayed to the model.
	HistoryWindow int // default: 10
}

// Input carries everything one composition needs. All fields are computed
// upstream; composition itself is pure.
type Input struct {
	UserContext *retrieval.UserContext
	Sources     []*retrieval.RankedSource
	Decision    *toughlove.Decision
	History     []*store.Message
	UserMessage string
}

// Composer renders prompts.
type Composer struct {
	config *Config
}

// NewComposer creates a new Composer.
func NewComposer(config *Config) *Composer {
	if config == nil {
		config = &Config{}
	}
	if config.Preamble == "" {
		config.Preamble = defaultPreamble
	}
	if config.HistoryWindow <= 0 {
		config.HistoryWindow = 10
	}
	return &Composer{config: config}
}

// Compose renders the full message list for the completion provider: one
// system message carrying preamble, profile, sources and the optional
// tough-love directive, followed by the trailing history window and the
// user's message.
func (c *Composer) Compose(in *Input) []llm.Message {
	var b strings.Builder
	b.WriteString(c.config.Preamble)
	b.WriteString("\n\n")
	c.writeProfileBlock(&b, in.UserContext)
	c.writeSourceBlock(&b, in.Sources)
	c.writeToughLoveBlock(&b, in.Decision)

	messages := []llm.Message{llm.SystemPrompt(strings.TrimRight(b.String(), "\n"))}

	history := in.History
	if len(history) > c.config.HistoryWindow {
		history = history[len(history)-c.config.HistoryWindow:]
	}
	for _, message := range history {
		if message.Role == store.MessageRoleAssistant {
			messages = append(messages, llm.AssistantMessage(message.Content))
		} else {
			messages = append(messages, llm.UserMessage(message.Content))
		}
	}

	return append(messages, llm.UserMessage(in.UserMessage))
}

func (c *Composer) writeProfileBlock(b *strings.Builder, userContext *retrieval.UserContext) {
	if userContext == nil {
		return
	}
	b.WriteString("## User profile\n")

	if len(userContext.Values) > 0 {
		b.WriteString("Core values:\n")
		for _, value := range userContext.Values {
			if value.Description != "" {
				fmt.Fprintf(b, "- %s: %s\n", value.Name, value.Description)
			} else {
				fmt.Fprintf(b, "- %s\n", value.Name)
			}
		}
	}
	if len(userContext.FocusAreas) > 0 {
		b.WriteString("Active focus areas:\n")
		for _, area := range userContext.FocusAreas {
			fmt.Fprintf(b, "- %s (progress %.0f%%)\n", area.Name, area.Progress*100)
		}
	}
	if len(userContext.Mentors) > 0 {
		b.WriteString("Chosen mentors:\n")
		for _, mentor := range userContext.Mentors {
			fmt.Fprintf(b, "- %s (%s)\n", mentor.Name, mentor.Expertise)
		}
	}
	if len(userContext.Interactions) > 0 {
		b.WriteString("Recent interactions:\n")
		for _, interaction := range userContext.Interactions {
			fmt.Fprintf(b, "- [%s] %s\n", interaction.Outcome, interaction.Summary)
		}
	}
	b.WriteString("\n")
}

func (c *Composer) writeSourceBlock(b *strings.Builder, sources []*retrieval.RankedSource) {
	if len(sources) == 0 {
		b.WriteString("## Sources\nNo sources were retrieved for this question.\n\n")
		return
	}

	b.WriteString("## Sources\n")
	for i, source := range sources {
		fmt.Fprintf(b, "[%d] %s", i+1, source.Item.Title)
		if source.Item.Author != "" {
			fmt.Fprintf(b, " by %s", source.Item.Author)
		}
		if source.Item.System != "" {
			fmt.Fprintf(b, " (%s)", source.Item.System)
		}
		b.WriteString("\n")
		if source.Snippet != "" {
			fmt.Fprintf(b, "    %s\n", source.Snippet)
		}
	}
	b.WriteString("\n")
}

// writeToughLoveBlock directs the model to execute an already-made
// decision; it must never ask the model to re-derive eligibility.
func (c *Composer) writeToughLoveBlock(b *strings.Builder, decision *toughlove.Decision) {
	if decision == nil || !decision.Activate {
		return
	}

	b.WriteString("## Direct feedback directive\n")
	fmt.Fprintf(b, "The user opted into direct feedback and this reply uses the %s tier. Do not reconsider whether confrontation is warranted; that decision is already made. Push back honestly, grounded only in the evidence below:\n", decision.Approach)
	for _, pattern := range decision.Patterns {
		fmt.Fprintf(b, "- detected %s", pattern.Tag)
		if len(pattern.Evidence) > 0 {
			fmt.Fprintf(b, " (%s)", strings.Join(pattern.Evidence, "; "))
		}
		b.WriteString("\n")
	}
	for _, contradiction := range decision.Contradictions {
		fmt.Fprintf(b, "- their stated value %q is contradicted by: %s\n", contradiction.ValueName, contradiction.Evidence)
	}
	b.WriteString("\n")
}
