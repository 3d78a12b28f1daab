package toughlove

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kindredapp/kindred/chat/retrieval"
	"github.com/kindredapp/kindred/store"
)

// fakeEmbedder returns canned vectors per text and fails on unknown text,
// which exercises the degrade-to-not-triggered paths.
type fakeEmbedder struct {
	vectors map[string][]float32
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if vector, ok := f.vectors[text]; ok {
		return vector, nil
	}
	return nil, errors.New("no embedding available")
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vector, err := f.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vector
	}
	return out, nil
}

func (f *fakeEmbedder) Dimensions() int { return 2 }
func (f *fakeEmbedder) Model() string   { return "fake-embedding" }

func userMessage(uid, content string) *store.Message {
	return &store.Message{UID: uid, Role: store.MessageRoleUser, Content: content}
}

func TestEvaluateOptOutShortCircuits(t *testing.T) {
	engine := NewEngine(&fakeEmbedder{}, nil)

	// Even a message dripping with patterns stays off when opted out.
	decision := engine.Evaluate(context.Background(), false,
		"I had to yell, maybe it wasn't my fault, should I apologize?",
		nil, &retrieval.UserContext{})

	assert.False(t, decision.Activate)
	assert.Zero(t, decision.Confidence)
	assert.Empty(t, decision.Patterns)
}

func TestEvaluateSinglePatternDoesNotActivate(t *testing.T) {
	engine := NewEngine(&fakeEmbedder{}, nil)

	decision := engine.Evaluate(context.Background(), true,
		"but I had to yell, they never listen",
		nil, &retrieval.UserContext{
			Values: []*store.CoreValue{{ID: 1, Name: "Honesty"}},
		})

	require.Len(t, decision.Patterns, 1)
	assert.Equal(t, PatternSelfJustification, decision.Patterns[0].Tag)
	assert.False(t, decision.Activate, "one pattern below the two-pattern minimum must not activate")
	assert.Empty(t, decision.Contradictions)
}

func TestEvaluateContradictionAloneActivates(t *testing.T) {
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"I keep asking why she won't commit": {1, 0},
		"Being truthful even when it costs":  {0, 1},
		"lied to my partner about plans":     {0, 1},
	}}
	engine := NewEngine(embedder, nil)

	history := []*store.Message{
		userMessage("m1", "I keep asking why she won't commit"),
		userMessage("m2", "I keep asking why she won't commit"),
	}
	userContext := &retrieval.UserContext{
		Values: []*store.CoreValue{
			{ID: 1, Name: "Honesty", Description: "Being truthful even when it costs"},
		},
		Interactions: []*store.Interaction{
			{ID: 10, Summary: "lied to my partner about plans", Outcome: store.InteractionOutcomeNegative},
		},
	}

	decision := engine.Evaluate(context.Background(), true,
		"I keep asking why she won't commit", history, userContext)

	assert.True(t, decision.Activate)
	require.Len(t, decision.Contradictions, 1)
	assert.Equal(t, "Honesty", decision.Contradictions[0].ValueName)
	assert.Equal(t, "lied to my partner about plans", decision.Contradictions[0].Evidence)

	// Repetition also triggered: the message appears three times.
	tags := decision.TriggeredTags()
	assert.Contains(t, tags, PatternRepetition)
	assert.Equal(t, ApproachDirect, decision.Approach)
	assert.LessOrEqual(t, decision.Confidence, 1.0)
}

func TestEvaluateContradictionIgnoresPositiveInteractions(t *testing.T) {
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"Being truthful": {0, 1},
		"told the truth": {0, 1},
	}}
	engine := NewEngine(embedder, nil)

	decision := engine.Evaluate(context.Background(), true, "how was my week?", nil,
		&retrieval.UserContext{
			Values: []*store.CoreValue{{ID: 1, Name: "Honesty", Description: "Being truthful"}},
			Interactions: []*store.Interaction{
				{ID: 10, Summary: "told the truth", Outcome: store.InteractionOutcomePositive},
			},
		})

	assert.Empty(t, decision.Contradictions)
	assert.False(t, decision.Activate)
}

func TestEvaluateZeroValuesNoContradictions(t *testing.T) {
	engine := NewEngine(&fakeEmbedder{}, nil)

	decision := engine.Evaluate(context.Background(), true, "anything", nil,
		&retrieval.UserContext{
			Interactions: []*store.Interaction{
				{ID: 1, Summary: "huge fight", Outcome: store.InteractionOutcomeNegative},
			},
		})

	assert.Empty(t, decision.Contradictions)
	assert.False(t, decision.Activate)
}

func TestRepetitionDetector(t *testing.T) {
	message := "why does he always cancel on me"
	embedder := &fakeEmbedder{vectors: map[string][]float32{message: {1, 0}}}
	engine := NewEngine(embedder, nil)

	history := []*store.Message{
		userMessage("m1", message),
		{UID: "a1", Role: store.MessageRoleAssistant, Content: "an answer"},
		userMessage("m2", message),
	}

	pattern := engine.detectRepetition(context.Background(), message, history)
	require.NotNil(t, pattern)
	assert.Equal(t, PatternRepetition, pattern.Tag)
	assert.GreaterOrEqual(t, pattern.Strength, 0.85)
	assert.Len(t, pattern.Evidence, 2)
}

func TestRepetitionDetectorDegradesOnEmbeddingFailure(t *testing.T) {
	engine := NewEngine(&fakeEmbedder{}, nil)

	history := []*store.Message{
		userMessage("m1", "same thing"),
		userMessage("m2", "same thing"),
	}
	pattern := engine.detectRepetition(context.Background(), "same thing", history)
	assert.Nil(t, pattern)
}

func TestAvoidanceDetector(t *testing.T) {
	engine := NewEngine(&fakeEmbedder{}, nil)

	tests := []struct {
		name      string
		message   string
		triggered bool
	}{
		{"hedging short message", "maybe, I don't know, not sure", true},
		{"no hedging", "I told him exactly how I felt about the move", false},
		{"hedging in long message", "maybe " + string(make([]rune, 150)), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pattern := engine.detectAvoidance(tt.message)
			if tt.triggered {
				require.NotNil(t, pattern)
				assert.Greater(t, pattern.Strength, 0.0)
				assert.LessOrEqual(t, pattern.Strength, 1.0)
			} else {
				assert.Nil(t, pattern)
			}
		})
	}
}

func TestValidationSeekingDetector(t *testing.T) {
	pattern := detectValidationSeeking("should I text him again? tell me I'm right", DefaultConfig().ValidationPhrases)
	require.NotNil(t, pattern)
	assert.Equal(t, PatternValidationSeeking, pattern.Tag)
	assert.InDelta(t, 0.8, pattern.Strength, 1e-9)

	assert.Nil(t, detectValidationSeeking("we talked it through calmly", DefaultConfig().ValidationPhrases))
}

func TestApproachTiers(t *testing.T) {
	engine := NewEngine(&fakeEmbedder{}, nil)

	assert.Equal(t, ApproachGentle, engine.approach(0.65))
	assert.Equal(t, ApproachModerate, engine.approach(0.7))
	assert.Equal(t, ApproachModerate, engine.approach(0.85))
	assert.Equal(t, ApproachDirect, engine.approach(0.86))
}

func TestAggregateCapsAtContradictionCap(t *testing.T) {
	config := DefaultConfig()
	config.ContradictionCap = 0.9
	engine := NewEngine(&fakeEmbedder{}, config)

	confidence := engine.aggregate(
		[]BehavioralPattern{{Tag: PatternRepetition, Strength: 1.0}},
		[]ValueContradiction{{Strength: 0.95}, {Strength: 0.99}},
	)
	assert.InDelta(t, 0.9, confidence, 1e-9)
}
