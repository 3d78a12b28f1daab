package toughlove

import (
	"context"
	"log/slog"
	"math"
	"strings"

	"github.com/kindredapp/kindred/chat/retrieval"
	"github.com/kindredapp/kindred/store"
)

// detectRepetition compares the new message's embedding against the last
// HistoryWindow user messages. Two or more prior occurrences above the
// similarity threshold trigger the pattern, strength scaled by the
// maximum similarity. Embedding failures degrade to not-triggered.
func (e *Engine) detectRepetition(ctx context.Context, messageText string, history []*store.Message) *BehavioralPattern {
	var priors []*store.Message
	for i := len(history) - 1; i >= 0 && len(priors) < e.config.HistoryWindow; i-- {
		if history[i].Role == store.MessageRoleUser {
			priors = append(priors, history[i])
		}
	}
	if len(priors) < e.config.RepetitionMinRepeats {
		return nil
	}

	queryVector, err := e.embedder.Embed(ctx, messageText)
	if err != nil {
		slog.Warn("toughlove: repetition detector degraded, embedding failed", "error", err)
		return nil
	}

	repeats := 0
	maxSimilarity := 0.0
	var evidence []string
	for _, prior := range priors {
		priorVector, err := e.embedder.Embed(ctx, prior.Content)
		if err != nil {
			slog.Warn("toughlove: skipping prior message, embedding failed", "message_uid", prior.UID, "error", err)
			continue
		}
		similarity := cosineSimilarity(queryVector, priorVector)
		if similarity >= e.config.RepetitionSimilarity {
			repeats++
			evidence = append(evidence, prior.UID)
			maxSimilarity = math.Max(maxSimilarity, similarity)
		}
	}

	if repeats < e.config.RepetitionMinRepeats {
		return nil
	}
	return &BehavioralPattern{
		Tag:      PatternRepetition,
		Strength: maxSimilarity,
		Evidence: evidence,
	}
}

// detectPhrases is the shared lexical detector: strength scales with the
// number of matched phrases.
func detectPhrases(tag PatternTag, messageText string, phrases []string) *BehavioralPattern {
	lowered := strings.ToLower(messageText)

	var evidence []string
	for _, phrase := range phrases {
		if strings.Contains(lowered, phrase) {
			evidence = append(evidence, phrase)
		}
	}
	if len(evidence) == 0 {
		return nil
	}
	return &BehavioralPattern{
		Tag:      tag,
		Strength: math.Min(1.0, 0.5+0.25*float64(len(evidence)-1)),
		Evidence: evidence,
	}
}

// detectAvoidance flags hedging markers in short messages, strength
// scaled by marker density.
func (e *Engine) detectAvoidance(messageText string) *BehavioralPattern {
	if len([]rune(messageText)) > e.config.AvoidanceMaxLength {
		return nil
	}
	lowered := strings.ToLower(messageText)

	var evidence []string
	for _, phrase := range e.config.AvoidancePhrases {
		if strings.Contains(lowered, phrase) {
			evidence = append(evidence, phrase)
		}
	}
	if len(evidence) == 0 {
		return nil
	}

	words := len(strings.Fields(messageText))
	if words == 0 {
		return nil
	}
	density := float64(len(evidence)) / float64(words)
	return &BehavioralPattern{
		Tag:      PatternAvoidance,
		Strength: math.Min(1.0, density*5),
		Evidence: evidence,
	}
}

// detectValidationSeeking is a binary-ish presence signal.
func detectValidationSeeking(messageText string, phrases []string) *BehavioralPattern {
	pattern := detectPhrases(PatternValidationSeeking, messageText, phrases)
	if pattern == nil {
		return nil
	}
	pattern.Strength = 0.8
	return pattern
}

// detectContradictions compares each declared value's description against
// the user's recent negative interactions. Zero declared values means an
// empty result; embedding failures skip the pair rather than abort.
func (e *Engine) detectContradictions(ctx context.Context, userContext *retrieval.UserContext) []ValueContradiction {
	contradictions := []ValueContradiction{}
	if userContext == nil || len(userContext.Values) == 0 {
		return contradictions
	}

	var negatives []*store.Interaction
	for _, interaction := range userContext.Interactions {
		if interaction.Outcome == store.InteractionOutcomeNegative {
			negatives = append(negatives, interaction)
		}
	}
	if len(negatives) == 0 {
		return contradictions
	}

	for _, value := range userContext.Values {
		description := value.Description
		if description == "" {
			description = value.Name
		}
		valueVector, err := e.embedder.Embed(ctx, description)
		if err != nil {
			slog.Warn("toughlove: skipping value, embedding failed", "value", value.Name, "error", err)
			continue
		}

		for _, interaction := range negatives {
			interactionVector, err := e.embedder.Embed(ctx, interaction.Summary)
			if err != nil {
				slog.Warn("toughlove: skipping interaction, embedding failed", "interaction_id", interaction.ID, "error", err)
				continue
			}
			similarity := cosineSimilarity(valueVector, interactionVector)
			if similarity >= e.config.ContradictionThreshold {
				contradictions = append(contradictions, ValueContradiction{
					ValueID:   value.ID,
					ValueName: value.Name,
					Evidence:  interaction.Summary,
					Strength:  similarity,
				})
			}
		}
	}
	return contradictions
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
