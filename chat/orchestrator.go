// Package chat is the contextual retrieval-augmented chat engine: it
// answers a user's free-text question by retrieving and ranking personal
// knowledge, deciding whether to adopt the opt-in direct-feedback
// register, composing a grounded prompt, and streaming a cited answer.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/lithammer/shortuuid/v4"
	"golang.org/x/sync/errgroup"

	"github.com/kindredapp/kindred/chat/llm"
	"github.com/kindredapp/kindred/chat/metrics"
	"github.com/kindredapp/kindred/chat/prompt"
	"github.com/kindredapp/kindred/chat/retrieval"
	"github.com/kindredapp/kindred/chat/toughlove"
	"github.com/kindredapp/kindred/store"
)

// MessageStore is the persistence surface the orchestrator writes through.
// *store.Store satisfies it; tests substitute an in-memory fake.
type MessageStore interface {
	GetConversation(ctx context.Context, find *store.FindConversation) (*store.Conversation, error)
	CreateConversation(ctx context.Context, create *store.Conversation) (*store.Conversation, error)
	UpdateConversation(ctx context.Context, update *store.UpdateConversation) (*store.Conversation, error)
	CreateMessage(ctx context.Context, create *store.Message) (*store.Message, error)
	ListMessages(ctx context.Context, find *store.FindMessage) ([]*store.Message, error)
	GetMessage(ctx context.Context, find *store.FindMessage) (*store.Message, error)
	UpdateMessageFeedback(ctx context.Context, update *store.UpdateMessageFeedback) error
}

// SendMessageRequest is one inbound chat message.
type SendMessageRequest struct {
	// ConversationUID selects an existing conversation; empty creates one.
	ConversationUID string
	Text            string
	OwnerID         int32
	ToughLoveOptIn  bool
	// Partitions scopes retrieval; empty searches all partitions.
	Partitions []store.ContentPartition
}

// Orchestrator owns the per-message state machine, drives the components
// and persists the result.
type Orchestrator struct {
	store    MessageStore
	builder  *retrieval.Builder
	engine   *toughlove.Engine
	composer *prompt.Composer
	provider llm.Provider
	metrics  *metrics.Metrics
	config   *Config
	locks    *conversationLocks
}

// NewOrchestrator creates a new chat Orchestrator. metrics may be nil.
func NewOrchestrator(messageStore MessageStore, builder *retrieval.Builder, engine *toughlove.Engine, composer *prompt.Composer, provider llm.Provider, m *metrics.Metrics, config *Config) *Orchestrator {
	if config == nil {
		config = DefaultConfig()
	}
	config.normalize()

	return &Orchestrator{
		store:    messageStore,
		builder:  builder,
		engine:   engine,
		composer: composer,
		provider: provider,
		metrics:  m,
		config:   config,
		locks:    newConversationLocks(),
	}
}

// SendMessage processes one inbound message end to end, pushing typed
// events onto the stream. The caller's ctx carries client cancellation:
// cancelling during generation persists the partial text marked
// incomplete and ends the stream without a complete event.
func (o *Orchestrator) SendMessage(ctx context.Context, req *SendMessageRequest, stream Stream) error {
	started := time.Now()
	machine := newStateMachine()
	o.metrics.RequestStarted()

	text := strings.TrimSpace(req.Text)
	if text == "" {
		return o.abort(machine, stream, started, NewValidationError("message text is empty"))
	}
	if utf8.RuneCountInString(text) > o.config.MaxMessageLen {
		return o.abort(machine, stream, started, NewValidationError("message text exceeds %d characters", o.config.MaxMessageLen))
	}

	conversation, err := o.resolveConversation(ctx, req, text)
	if err != nil {
		return o.abort(machine, stream, started, err)
	}

	// The conversation is the unit of mutual exclusion: no two messages in
	// the same conversation generate concurrently.
	unlock := o.locks.Lock(conversation.UID)
	defer unlock()

	history, err := o.store.ListMessages(ctx, &store.FindMessage{ConversationID: &conversation.ID})
	if err != nil {
		return o.abort(machine, stream, started, fmt.Errorf("list messages failed: %w", err))
	}

	// The user's message is stored before anything downstream can fail: a
	// failed assistant turn must never lose the user's input.
	userMessage, err := o.store.CreateMessage(ctx, &store.Message{
		UID:            uuid.NewString(),
		ConversationID: conversation.ID,
		Role:           store.MessageRoleUser,
		Content:        text,
		CreatedTs:      time.Now().Unix(),
	})
	if err != nil {
		return o.abort(machine, stream, started, fmt.Errorf("store user message failed: %w", err))
	}

	assistantUID := uuid.NewString()
	if err := stream.Send(startEvent(conversation.UID, assistantUID)); err != nil {
		return o.abort(machine, stream, started, fmt.Errorf("send start event failed: %w", err))
	}

	// Context building and tough-love evaluation run concurrently: the
	// engine needs the raw message and history, not the ranked sources.
	if err := machine.transition(StateContextBuilding); err != nil {
		return o.abort(machine, stream, started, err)
	}

	var (
		bundle      *retrieval.Bundle
		userContext *retrieval.UserContext
		decision    *toughlove.Decision
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		bundle = o.buildContext(gctx, req.OwnerID, text, req.Partitions)
		return nil
	})
	g.Go(func() error {
		userContext = o.buildUserContext(gctx, req.OwnerID)
		decision = o.engine.Evaluate(gctx, req.ToughLoveOptIn, text, history, userContext)
		return nil
	})
	_ = g.Wait() //nolint:errcheck // both goroutines degrade instead of failing

	if bundle.Partial {
		o.metrics.PartialRetrieval()
	}
	if decision.Activate {
		o.metrics.ToughLoveActivated()
	}

	if err := machine.transition(StateToughLoveEvaluating); err != nil {
		return o.abort(machine, stream, started, err)
	}
	if err := machine.transition(StateComposingPrompt); err != nil {
		return o.abort(machine, stream, started, err)
	}

	messages := o.composer.Compose(&prompt.Input{
		UserContext: userContext,
		Sources:     bundle.Sources,
		Decision:    decision,
		History:     history,
		UserMessage: text,
	})

	// Citations are known before generation begins; emitting them first
	// minimizes perceived latency.
	if err := machine.transition(StateCitingSources); err != nil {
		return o.abort(machine, stream, started, err)
	}
	citations := bundle.Citations()
	for _, citation := range citations {
		if err := stream.Send(sourceEvent(citation)); err != nil {
			return o.abort(machine, stream, started, fmt.Errorf("send source event failed: %w", err))
		}
	}

	if err := machine.transition(StateGenerating); err != nil {
		return o.abort(machine, stream, started, err)
	}
	finalText, stats, genErr := o.generate(ctx, stream, messages)

	confidence := decision.Confidence
	assistantMessage := &store.Message{
		UID:            assistantUID,
		ConversationID: conversation.ID,
		Role:           store.MessageRoleAssistant,
		Content:        finalText,
		Citations:      citations,
		DirectMode:     decision.Activate,
		Confidence:     &confidence,
		CreatedTs:      time.Now().Unix(),
		LatencyMs:      time.Since(started).Milliseconds(),
	}

	// Persistence must survive client cancellation.
	persistCtx := context.WithoutCancel(ctx)

	if genErr != nil {
		chatErr := Classify(genErr)

		// A non-empty prefix is persisted incomplete rather than
		// discarded, so the user never sees a silent failure.
		if finalText != "" {
			assistantMessage.Incomplete = true
			if _, err := o.store.CreateMessage(persistCtx, assistantMessage); err != nil {
				slog.Error("chat: failed to persist partial output", "message_uid", assistantUID, "error", err)
			}
		}

		if chatErr.Kind == ErrorKindCancelled {
			_ = machine.transition(StateCancelled) //nolint:errcheck // valid from generating
			slog.Info("chat: generation cancelled by client",
				"conversation_uid", conversation.UID,
				"partial_chars", len(finalText),
			)
			o.metrics.RequestFinished("cancelled", time.Since(started))
			return nil
		}

		return o.abort(machine, stream, started, chatErr)
	}

	createdMessage, err := o.store.CreateMessage(persistCtx, assistantMessage)
	if err != nil {
		return o.abort(machine, stream, started, fmt.Errorf("store assistant message failed: %w", err))
	}

	now := time.Now().Unix()
	if _, err := o.store.UpdateConversation(persistCtx, &store.UpdateConversation{ID: conversation.ID, UpdatedTs: &now}); err != nil {
		slog.Warn("chat: failed to bump conversation timestamp", "conversation_uid", conversation.UID, "error", err)
	}

	if stats != nil {
		o.metrics.Tokens(stats.PromptTokens, stats.CompletionTokens)
	}

	if err := machine.transition(StateComplete); err != nil {
		return o.abort(machine, stream, started, err)
	}
	if err := stream.Send(completeEvent(createdMessage)); err != nil {
		slog.Warn("chat: failed to send complete event", "message_uid", createdMessage.UID, "error", err)
	}

	slog.Info("chat: message completed",
		"conversation_uid", conversation.UID,
		"user_message_uid", userMessage.UID,
		"assistant_message_uid", createdMessage.UID,
		"sources", len(citations),
		"direct_mode", decision.Activate,
		"latency_ms", createdMessage.LatencyMs,
	)
	o.metrics.RequestFinished("complete", time.Since(started))
	return nil
}

// abort moves the machine to the error state, emits a typed error event
// and returns the classified error.
func (o *Orchestrator) abort(machine *stateMachine, stream Stream, started time.Time, err error) error {
	chatErr := Classify(err)
	if !machine.current.Terminal() {
		_ = machine.fail() //nolint:errcheck // error is valid from any non-terminal state
	}
	if sendErr := stream.Send(errorEvent(chatErr)); sendErr != nil {
		slog.Warn("chat: failed to send error event", "error", sendErr)
	}
	slog.Error("chat: request failed", "kind", chatErr.Kind, "error", chatErr.Message)
	o.metrics.RequestFinished("error", time.Since(started))
	return chatErr
}

func (o *Orchestrator) resolveConversation(ctx context.Context, req *SendMessageRequest, text string) (*store.Conversation, error) {
	if req.ConversationUID != "" {
		conversation, err := o.store.GetConversation(ctx, &store.FindConversation{UID: &req.ConversationUID})
		if err != nil {
			return nil, fmt.Errorf("get conversation failed: %w", err)
		}
		if conversation == nil || conversation.OwnerID != req.OwnerID {
			return nil, NewValidationError("conversation %s not found", req.ConversationUID)
		}
		return conversation, nil
	}

	now := time.Now().Unix()
	return o.store.CreateConversation(ctx, &store.Conversation{
		UID:         shortuuid.New(),
		OwnerID:     req.OwnerID,
		Title:       deriveTitle(text, o.config.TitleLen),
		TitleSource: store.TitleSourceDefault,
		CreatedTs:   now,
		UpdatedTs:   now,
	})
}

// buildContext retries one backend hiccup, then degrades to an empty
// partial bundle: losing grounding must not fail the whole request.
func (o *Orchestrator) buildContext(ctx context.Context, ownerID int32, text string, partitions []store.ContentPartition) *retrieval.Bundle {
	bundle, err := o.builder.BuildContext(ctx, ownerID, text, partitions)
	if err != nil && ctx.Err() == nil {
		slog.Warn("chat: context build failed, retrying once", "error", err)
		select {
		case <-time.After(o.config.RetryBackoff):
		case <-ctx.Done():
			return &retrieval.Bundle{Sources: []*retrieval.RankedSource{}, Partial: true}
		}
		bundle, err = o.builder.BuildContext(ctx, ownerID, text, partitions)
	}
	if err != nil {
		slog.Error("chat: context build failed, answering without sources", "owner_id", ownerID, "error", err)
		return &retrieval.Bundle{Sources: []*retrieval.RankedSource{}, Partial: true}
	}
	return bundle
}

func (o *Orchestrator) buildUserContext(ctx context.Context, ownerID int32) *retrieval.UserContext {
	userContext, err := o.builder.BuildUserContext(ctx, ownerID)
	if err != nil {
		slog.Error("chat: user context build failed, proceeding with empty profile", "owner_id", ownerID, "error", err)
		return &retrieval.UserContext{}
	}
	return userContext
}

// generate streams the completion, retrying once with backoff when the
// provider is unavailable before any output was produced. It returns the
// accumulated text even on failure so partial output can be persisted.
func (o *Orchestrator) generate(ctx context.Context, stream Stream, messages []llm.Message) (string, *llm.CallStats, error) {
	var b strings.Builder
	for attempt := 0; ; attempt++ {
		stats, err := o.streamOnce(ctx, stream, &b, messages)
		if err != nil && attempt == 0 && b.Len() == 0 && Classify(err).Kind == ErrorKindProviderUnavailable {
			slog.Warn("chat: provider unavailable, retrying once", "backoff", o.config.RetryBackoff, "error", err)
			select {
			case <-time.After(o.config.RetryBackoff):
				continue
			case <-ctx.Done():
				return b.String(), nil, ctx.Err()
			}
		}
		return b.String(), stats, err
	}
}

func (o *Orchestrator) streamOnce(ctx context.Context, stream Stream, b *strings.Builder, messages []llm.Message) (*llm.CallStats, error) {
	genCtx, cancel := context.WithTimeout(ctx, o.config.GenerationTimeout)
	defer cancel()

	deltas, statsChan, errChan := o.provider.Stream(genCtx, messages)

	startTimer := time.NewTimer(o.config.StartTimeout)
	defer startTimer.Stop()
	first := false

	for {
		select {
		case <-genCtx.Done():
			return nil, genCtx.Err()
		case <-startTimer.C:
			if !first {
				return nil, &Error{Kind: ErrorKindGenerationTimeout, Message: "generation did not start in time"}
			}
		case err, ok := <-errChan:
			if ok && err != nil {
				return nil, err
			}
			// Closed without an error; keep draining deltas.
			errChan = nil
		case delta, ok := <-deltas:
			if !ok {
				// The provider closes its channels without an error when its
				// context is cancelled, so a closed stream races with
				// genCtx.Done() in this select. A cancellation or timeout must
				// never be mistaken for a normal completion.
				if err := genCtx.Err(); err != nil {
					return nil, err
				}
				var stats *llm.CallStats
				select {
				case stats = <-statsChan:
				default:
				}
				if errChan != nil {
					select {
					case err, ok := <-errChan:
						if ok && err != nil {
							return stats, err
						}
					default:
					}
				}
				return stats, nil
			}
			if !first {
				first = true
				startTimer.Stop()
			}
			b.WriteString(delta)
			if err := stream.Send(deltaEvent(delta)); err != nil {
				return nil, fmt.Errorf("send delta failed: %w", err)
			}
		}
	}
}

func deriveTitle(text string, maxLen int) string {
	title := text
	if idx := strings.IndexByte(title, '\n'); idx >= 0 {
		title = title[:idx]
	}
	title = strings.TrimSpace(title)

	runes := []rune(title)
	if len(runes) <= maxLen {
		return title
	}
	cut := string(runes[:maxLen])
	if idx := strings.LastIndexByte(cut, ' '); idx > 0 {
		cut = cut[:idx]
	}
	return cut + "…"
}
