package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kindredapp/kindred/chat/llm"
	"github.com/kindredapp/kindred/chat/prompt"
	"github.com/kindredapp/kindred/chat/retrieval"
	"github.com/kindredapp/kindred/chat/toughlove"
	"github.com/kindredapp/kindred/store"
)

// stubEmbedder returns the same vector for every text, making every pair
// of texts maximally similar.
type stubEmbedder struct{}

func (stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0}, nil
}

func (stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func (stubEmbedder) Dimensions() int { return 2 }
func (stubEmbedder) Model() string   { return "stub" }

// stubSearch serves a fixed hit set and empty profile records.
type stubSearch struct {
	hits         []*store.ContentItemWithScore
	values       []*store.CoreValue
	interactions []*store.Interaction
}

func (s *stubSearch) ContentVectorSearch(ctx context.Context, opts *store.ContentVectorSearchOptions) ([]*store.ContentItemWithScore, error) {
	if opts.Partition == store.PartitionKnowledge {
		return s.hits, nil
	}
	return nil, nil
}

func (s *stubSearch) ContentGraphWeight(ctx context.Context, contentItemID int32) (float64, error) {
	return 0, nil
}

func (s *stubSearch) ListCoreValues(ctx context.Context, find *store.FindCoreValue) ([]*store.CoreValue, error) {
	return s.values, nil
}

func (s *stubSearch) ListFocusAreas(ctx context.Context, find *store.FindFocusArea) ([]*store.FocusArea, error) {
	return nil, nil
}

func (s *stubSearch) ListMentors(ctx context.Context, find *store.FindMentor) ([]*store.Mentor, error) {
	return nil, nil
}

func (s *stubSearch) ListInteractions(ctx context.Context, find *store.FindInteraction) ([]*store.Interaction, error) {
	return s.interactions, nil
}

// fakeProvider is a deterministic completion provider.
type fakeProvider struct {
	mu        sync.Mutex
	calls     int
	deltas    []string
	delay     time.Duration
	failCalls int   // first N calls fail with failErr
	failErr   error // defaults to a provider-unavailable error
	silent    bool  // never produce output
}

func (f *fakeProvider) Stream(ctx context.Context, messages []llm.Message) (<-chan string, <-chan *llm.CallStats, <-chan error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()

	deltaChan := make(chan string)
	statsChan := make(chan *llm.CallStats, 1)
	errChan := make(chan error, 1)

	go func() {
		defer close(deltaChan)
		defer close(statsChan)
		defer close(errChan)

		if call <= f.failCalls {
			err := f.failErr
			if err == nil {
				err = errors.New("dial tcp: connection refused")
			}
			errChan <- err
			return
		}
		if f.silent {
			<-ctx.Done()
			return
		}
		for _, delta := range f.deltas {
			if f.delay > 0 {
				select {
				case <-time.After(f.delay):
				case <-ctx.Done():
					return
				}
			}
			select {
			case deltaChan <- delta:
			case <-ctx.Done():
				return
			}
		}
		statsChan <- &llm.CallStats{PromptTokens: 10, CompletionTokens: 5}
	}()

	return deltaChan, statsChan, errChan
}

func (f *fakeProvider) Warmup(ctx context.Context) {}

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeStream records events and exposes a hook fired after each send.
type fakeStream struct {
	ctx    context.Context
	mu     sync.Mutex
	events []*StreamEvent
	onSend func(*StreamEvent)
}

func (s *fakeStream) Send(event *StreamEvent) error {
	s.mu.Lock()
	s.events = append(s.events, event)
	s.mu.Unlock()
	if s.onSend != nil {
		s.onSend(event)
	}
	return nil
}

func (s *fakeStream) Context() context.Context { return s.ctx }

func (s *fakeStream) byType(eventType EventType) []*StreamEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*StreamEvent
	for _, event := range s.events {
		if event.Type == eventType {
			out = append(out, event)
		}
	}
	return out
}

// fakeStore is an in-memory MessageStore.
type fakeStore struct {
	mu            sync.Mutex
	conversations []*store.Conversation
	messages      []*store.Message
	nextConvID    int32
	nextMsgID     int64
}

func (f *fakeStore) GetConversation(ctx context.Context, find *store.FindConversation) (*store.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, conversation := range f.conversations {
		if find.UID != nil && conversation.UID != *find.UID {
			continue
		}
		if find.ID != nil && conversation.ID != *find.ID {
			continue
		}
		if find.OwnerID != nil && conversation.OwnerID != *find.OwnerID {
			continue
		}
		return conversation, nil
	}
	return nil, nil
}

func (f *fakeStore) CreateConversation(ctx context.Context, create *store.Conversation) (*store.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextConvID++
	create.ID = f.nextConvID
	f.conversations = append(f.conversations, create)
	return create, nil
}

func (f *fakeStore) UpdateConversation(ctx context.Context, update *store.UpdateConversation) (*store.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, conversation := range f.conversations {
		if conversation.ID == update.ID {
			if update.UpdatedTs != nil {
				conversation.UpdatedTs = *update.UpdatedTs
			}
			if update.Title != nil {
				conversation.Title = *update.Title
			}
			return conversation, nil
		}
	}
	return nil, errors.New("conversation not found")
}

func (f *fakeStore) CreateMessage(ctx context.Context, create *store.Message) (*store.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextMsgID++
	create.ID = f.nextMsgID
	f.messages = append(f.messages, create)
	return create, nil
}

func (f *fakeStore) ListMessages(ctx context.Context, find *store.FindMessage) ([]*store.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*store.Message
	for _, message := range f.messages {
		if find.ConversationID != nil && message.ConversationID != *find.ConversationID {
			continue
		}
		if find.UID != nil && message.UID != *find.UID {
			continue
		}
		if find.ID != nil && message.ID != *find.ID {
			continue
		}
		out = append(out, message)
	}
	return out, nil
}

func (f *fakeStore) GetMessage(ctx context.Context, find *store.FindMessage) (*store.Message, error) {
	list, err := f.ListMessages(ctx, find)
	if err != nil || len(list) == 0 {
		return nil, err
	}
	return list[0], nil
}

func (f *fakeStore) UpdateMessageFeedback(ctx context.Context, update *store.UpdateMessageFeedback) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, message := range f.messages {
		if message.ID == update.ID {
			message.Feedback = update.Feedback
			return nil
		}
	}
	return errors.New("message not found")
}

func (f *fakeStore) assistantMessages() []*store.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*store.Message
	for _, message := range f.messages {
		if message.Role == store.MessageRoleAssistant {
			out = append(out, message)
		}
	}
	return out
}

func newTestOrchestrator(provider llm.Provider, search retrieval.SearchStore, messageStore MessageStore, config *Config) *Orchestrator {
	embedder := stubEmbedder{}
	return NewOrchestrator(
		messageStore,
		retrieval.NewBuilder(search, embedder, nil),
		toughlove.NewEngine(embedder, nil),
		prompt.NewComposer(nil),
		provider,
		nil,
		config,
	)
}

func attachedHit() *store.ContentItemWithScore {
	return &store.ContentItemWithScore{
		ContentItem: &store.ContentItem{
			ID:      42,
			OwnerID: 1,
			Title:   "Attached",
			System:  "books",
			Content: "Fear of abandonment drives protest behavior.",
		},
		Score: 0.9,
	}
}

func TestSendMessageHappyPath(t *testing.T) {
	fs := &fakeStore{}
	provider := &fakeProvider{deltas: []string{"You feel ", "anxious ", "because [1]."}}
	orchestrator := newTestOrchestrator(provider, &stubSearch{hits: []*store.ContentItemWithScore{attachedHit()}}, fs, nil)

	stream := &fakeStream{ctx: context.Background()}
	err := orchestrator.SendMessage(context.Background(), &SendMessageRequest{
		OwnerID: 1,
		Text:    "why do I get anxious when he doesn't text back",
	}, stream)
	require.NoError(t, err)

	// Event order: start, all sources, then deltas, then complete.
	require.GreaterOrEqual(t, len(stream.events), 4)
	assert.Equal(t, EventStart, stream.events[0].Type)
	assert.Equal(t, EventSource, stream.events[1].Type)
	assert.Equal(t, EventDelta, stream.events[2].Type)
	assert.Equal(t, EventComplete, stream.events[len(stream.events)-1].Type)

	sources := stream.byType(EventSource)
	require.Len(t, sources, 1)
	assert.Equal(t, "Attached", sources[0].Source.Title)
	assert.Contains(t, sources[0].Source.Snippet, "abandonment")

	// A conversation was created with a default title.
	require.Len(t, fs.conversations, 1)
	assert.Equal(t, store.TitleSourceDefault, fs.conversations[0].TitleSource)
	assert.NotEmpty(t, fs.conversations[0].UID)

	assistants := fs.assistantMessages()
	require.Len(t, assistants, 1)
	assert.Equal(t, "You feel anxious because [1].", assistants[0].Content)
	assert.False(t, assistants[0].Incomplete)
	assert.False(t, assistants[0].DirectMode)
	require.Len(t, assistants[0].Citations, 1)
}

func TestSendMessageRoundTrip(t *testing.T) {
	fs := &fakeStore{}
	provider := &fakeProvider{deltas: []string{"grounded answer [1]"}}
	orchestrator := newTestOrchestrator(provider, &stubSearch{hits: []*store.ContentItemWithScore{attachedHit()}}, fs, nil)

	stream := &fakeStream{ctx: context.Background()}
	require.NoError(t, orchestrator.SendMessage(context.Background(), &SendMessageRequest{
		OwnerID: 1,
		Text:    "what does my reading say about anxiety",
	}, stream))

	completes := stream.byType(EventComplete)
	require.Len(t, completes, 1)
	sent := completes[0].Complete.Message

	reread, err := fs.GetMessage(context.Background(), &store.FindMessage{UID: &sent.UID})
	require.NoError(t, err)
	require.NotNil(t, reread)
	assert.Equal(t, sent.Content, reread.Content)
	assert.Equal(t, sent.Citations, reread.Citations)
	assert.Equal(t, sent.DirectMode, reread.DirectMode)
}

func TestSendMessageValidation(t *testing.T) {
	fs := &fakeStore{}
	orchestrator := newTestOrchestrator(&fakeProvider{}, &stubSearch{}, fs, nil)

	stream := &fakeStream{ctx: context.Background()}
	err := orchestrator.SendMessage(context.Background(), &SendMessageRequest{OwnerID: 1, Text: "   "}, stream)

	var chatErr *Error
	require.ErrorAs(t, err, &chatErr)
	assert.Equal(t, ErrorKindValidation, chatErr.Kind)

	errs := stream.byType(EventError)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrorKindValidation, errs[0].Error.Kind)

	// Rejected before any backend call: nothing was stored.
	assert.Empty(t, fs.messages)
	assert.Empty(t, fs.conversations)
}

func TestSendMessageCancellationPersistsPartial(t *testing.T) {
	fs := &fakeStore{}
	provider := &fakeProvider{
		deltas: []string{"first ", "second ", "third ", "fourth "},
		delay:  20 * time.Millisecond,
	}
	orchestrator := newTestOrchestrator(provider, &stubSearch{}, fs, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	deltasSeen := 0
	stream := &fakeStream{ctx: ctx}
	stream.onSend = func(event *StreamEvent) {
		if event.Type == EventDelta {
			deltasSeen++
			if deltasSeen == 2 {
				cancel()
			}
		}
	}

	err := orchestrator.SendMessage(ctx, &SendMessageRequest{OwnerID: 1, Text: "talk to me"}, stream)
	require.NoError(t, err, "cancellation is an expected outcome, not an error")

	assert.Empty(t, stream.byType(EventComplete), "cancelled streams never complete")

	assistants := fs.assistantMessages()
	require.Len(t, assistants, 1)
	assert.True(t, assistants[0].Incomplete)
	assert.NotEmpty(t, assistants[0].Content)
	assert.Contains(t, assistants[0].Content, "first")
}

func TestSendMessageCancelledCloseNeverCompletes(t *testing.T) {
	// The provider closes its channels without an error when the client
	// cancels mid-stream, so the closed delta channel races the context in
	// the consumer's select. Whichever case wins, a cancelled stream must
	// never produce a complete event or a message persisted as final.
	for i := 0; i < 20; i++ {
		fs := &fakeStore{}
		provider := &fakeProvider{deltas: []string{"first ", "second ", "third "}}
		orchestrator := newTestOrchestrator(provider, &stubSearch{}, fs, nil)

		ctx, cancel := context.WithCancel(context.Background())
		stream := &fakeStream{ctx: ctx}
		stream.onSend = func(event *StreamEvent) {
			if event.Type == EventDelta {
				cancel()
				// Let the provider observe the cancel and close its
				// channels before the consumer selects again.
				time.Sleep(2 * time.Millisecond)
			}
		}

		err := orchestrator.SendMessage(ctx, &SendMessageRequest{OwnerID: 1, Text: "talk to me"}, stream)
		require.NoError(t, err, "cancellation is an expected outcome, not an error")
		assert.Empty(t, stream.byType(EventComplete), "cancelled streams never complete")
		for _, message := range fs.assistantMessages() {
			assert.True(t, message.Incomplete, "partial output must not be persisted as final")
		}
		cancel()
	}
}

func TestSendMessageRetriesUnavailableProvider(t *testing.T) {
	fs := &fakeStore{}
	provider := &fakeProvider{deltas: []string{"recovered"}, failCalls: 1}
	config := DefaultConfig()
	config.RetryBackoff = 10 * time.Millisecond
	orchestrator := newTestOrchestrator(provider, &stubSearch{}, fs, config)

	stream := &fakeStream{ctx: context.Background()}
	err := orchestrator.SendMessage(context.Background(), &SendMessageRequest{OwnerID: 1, Text: "are you there"}, stream)
	require.NoError(t, err)
	assert.Equal(t, 2, provider.callCount())
	require.Len(t, stream.byType(EventComplete), 1)
}

func TestSendMessageProviderDownAfterRetry(t *testing.T) {
	fs := &fakeStore{}
	provider := &fakeProvider{failCalls: 2}
	config := DefaultConfig()
	config.RetryBackoff = 10 * time.Millisecond
	orchestrator := newTestOrchestrator(provider, &stubSearch{}, fs, config)

	stream := &fakeStream{ctx: context.Background()}
	err := orchestrator.SendMessage(context.Background(), &SendMessageRequest{OwnerID: 1, Text: "hello?"}, stream)

	var chatErr *Error
	require.ErrorAs(t, err, &chatErr)
	assert.Equal(t, ErrorKindProviderUnavailable, chatErr.Kind)

	// The user's message survived the failed assistant turn.
	require.Len(t, fs.messages, 1)
	assert.Equal(t, store.MessageRoleUser, fs.messages[0].Role)
}

func TestSendMessageStartTimeout(t *testing.T) {
	fs := &fakeStore{}
	provider := &fakeProvider{silent: true}
	config := DefaultConfig()
	config.StartTimeout = 50 * time.Millisecond
	orchestrator := newTestOrchestrator(provider, &stubSearch{}, fs, config)

	stream := &fakeStream{ctx: context.Background()}
	err := orchestrator.SendMessage(context.Background(), &SendMessageRequest{OwnerID: 1, Text: "slow provider"}, stream)

	var chatErr *Error
	require.ErrorAs(t, err, &chatErr)
	assert.Equal(t, ErrorKindGenerationTimeout, chatErr.Kind)
	assert.Empty(t, fs.assistantMessages(), "no output was produced, nothing to persist")
}

func TestSendMessageDirectModePersisted(t *testing.T) {
	fs := &fakeStore{}

	// Seed a conversation where the same message was already sent twice;
	// the stub embedder makes every text pair maximally similar, and the
	// declared value contradicts a negative interaction.
	conversation, err := fs.CreateConversation(context.Background(), &store.Conversation{UID: "conv1", OwnerID: 1})
	require.NoError(t, err)
	for _, uid := range []string{"m1", "m2"} {
		_, err := fs.CreateMessage(context.Background(), &store.Message{
			UID: uid, ConversationID: conversation.ID, Role: store.MessageRoleUser, Content: "why won't she commit",
		})
		require.NoError(t, err)
	}

	search := &stubSearch{
		values: []*store.CoreValue{{ID: 1, OwnerID: 1, Name: "Honesty", Description: "Being truthful"}},
		interactions: []*store.Interaction{
			{ID: 2, OwnerID: 1, Summary: "lied about weekend plans", Outcome: store.InteractionOutcomeNegative},
		},
	}
	provider := &fakeProvider{deltas: []string{"direct answer"}}
	orchestrator := newTestOrchestrator(provider, search, fs, nil)

	stream := &fakeStream{ctx: context.Background()}
	require.NoError(t, orchestrator.SendMessage(context.Background(), &SendMessageRequest{
		OwnerID:         1,
		ConversationUID: "conv1",
		Text:            "why won't she commit",
		ToughLoveOptIn:  true,
	}, stream))

	assistants := fs.assistantMessages()
	require.Len(t, assistants, 1)
	assert.True(t, assistants[0].DirectMode)

	completes := stream.byType(EventComplete)
	require.Len(t, completes, 1)
	assert.True(t, completes[0].Complete.IsDirectMode)
}

func TestSendMessageOptOutNeverDirect(t *testing.T) {
	fs := &fakeStore{}
	search := &stubSearch{
		values: []*store.CoreValue{{ID: 1, OwnerID: 1, Name: "Honesty", Description: "Being truthful"}},
		interactions: []*store.Interaction{
			{ID: 2, OwnerID: 1, Summary: "lied about weekend plans", Outcome: store.InteractionOutcomeNegative},
		},
	}
	provider := &fakeProvider{deltas: []string{"gentle answer"}}
	orchestrator := newTestOrchestrator(provider, search, fs, nil)

	stream := &fakeStream{ctx: context.Background()}
	require.NoError(t, orchestrator.SendMessage(context.Background(), &SendMessageRequest{
		OwnerID:        1,
		Text:           "but I had to yell, they never listen",
		ToughLoveOptIn: false,
	}, stream))

	assistants := fs.assistantMessages()
	require.Len(t, assistants, 1)
	assert.False(t, assistants[0].DirectMode)
}

func TestSendMessageRejectsForeignConversation(t *testing.T) {
	fs := &fakeStore{}
	_, err := fs.CreateConversation(context.Background(), &store.Conversation{UID: "theirs", OwnerID: 2})
	require.NoError(t, err)

	orchestrator := newTestOrchestrator(&fakeProvider{deltas: []string{"x"}}, &stubSearch{}, fs, nil)
	stream := &fakeStream{ctx: context.Background()}
	err = orchestrator.SendMessage(context.Background(), &SendMessageRequest{
		OwnerID:         1,
		ConversationUID: "theirs",
		Text:            "hello",
	}, stream)

	var chatErr *Error
	require.ErrorAs(t, err, &chatErr)
	assert.Equal(t, ErrorKindValidation, chatErr.Kind)
}

func TestProvideFeedback(t *testing.T) {
	fs := &fakeStore{}
	conversation, err := fs.CreateConversation(context.Background(), &store.Conversation{UID: "conv1", OwnerID: 1})
	require.NoError(t, err)
	message, err := fs.CreateMessage(context.Background(), &store.Message{
		UID: "msg1", ConversationID: conversation.ID, Role: store.MessageRoleAssistant, Content: "answer",
	})
	require.NoError(t, err)

	orchestrator := newTestOrchestrator(&fakeProvider{}, &stubSearch{}, fs, nil)
	ctx := context.Background()

	require.NoError(t, orchestrator.ProvideFeedback(ctx, 1, "msg1", store.MessageFeedbackHelpful))
	require.NotNil(t, message.Feedback)
	assert.Equal(t, store.MessageFeedbackHelpful, *message.Feedback)

	// Last write wins.
	require.NoError(t, orchestrator.ProvideFeedback(ctx, 1, "msg1", store.MessageFeedbackNotHelpful))
	assert.Equal(t, store.MessageFeedbackNotHelpful, *message.Feedback)

	// Other owners cannot rate the message.
	err = orchestrator.ProvideFeedback(ctx, 2, "msg1", store.MessageFeedbackHelpful)
	var chatErr *Error
	require.ErrorAs(t, err, &chatErr)
	assert.Equal(t, ErrorKindValidation, chatErr.Kind)

	// Garbage feedback values are rejected.
	err = orchestrator.ProvideFeedback(ctx, 1, "msg1", "amazing")
	require.ErrorAs(t, err, &chatErr)
	assert.Equal(t, ErrorKindValidation, chatErr.Kind)
}
