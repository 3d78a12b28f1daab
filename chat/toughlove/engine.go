// Package toughlove decides whether a reply should adopt the opt-in
// direct/confrontational register, based on behavioral patterns detected
// in the user's message and contradictions against their declared values.
// The decision is computed deterministically here; the language model only
// executes the register, never derives eligibility.
package toughlove

import (
	"context"
	"log/slog"
	"math"

	"github.com/kindredapp/kindred/chat/embedding"
	"github.com/kindredapp/kindred/chat/retrieval"
	"github.com/kindredapp/kindred/store"
)

// PatternTag labels a detected behavioral pattern.
type PatternTag string

const (
	PatternRepetition        PatternTag = "repetition"
	PatternSelfJustification PatternTag = "self_justification"
	PatternAvoidance         PatternTag = "avoidance"
	PatternValidationSeeking PatternTag = "validation_seeking"
)

// BehavioralPattern is a detected pattern with its strength in [0,1] and
// the supporting evidence (message uids or interaction summaries).
type BehavioralPattern struct {
	Tag      PatternTag
	Strength float64
	Evidence []string
}

// ValueContradiction links a declared core value to a recent negative
// interaction that semantically contradicts it.
type ValueContradiction struct {
	ValueName string
	Evidence  string
	Strength  float64
	ValueID   int32
}

// Approach is the register tier handed to the prompt composer.
type Approach string

const (
	ApproachGentle   Approach = "gentle"
	ApproachModerate Approach = "moderate"
	ApproachDirect   Approach = "direct"
)

// Decision is the outcome of one evaluation. Computed once per inbound
// message and never mutated afterward.
type Decision struct {
	Patterns       []BehavioralPattern
	Contradictions []ValueContradiction
	Approach       Approach
	Confidence     float64
	Activate       bool
}

// TriggeredTags returns the tags of all triggered patterns, in detector order.
func (d *Decision) TriggeredTags() []PatternTag {
	tags := make([]PatternTag, len(d.Patterns))
	for i, pattern := range d.Patterns {
		tags[i] = pattern.Tag
	}
	return tags
}

// Config exposes every threshold in the activation rule. This is the most
// consequential tuning surface in the system: false positives erode trust,
// false negatives make the feature invisible.
type Config struct {
	// ActivationConfidence and MinPatternCount form the pattern path of
	// the activation rule: confidence >= ActivationConfidence AND at
	// least MinPatternCount patterns triggered.
	ActivationConfidence float64 // default: 0.6
	MinPatternCount      int     // default: 2

	// RepetitionSimilarity is the cosine threshold for counting a prior
	// message as a repeat; RepetitionMinRepeats is how many repeats
	// trigger the pattern.
	RepetitionSimilarity float64 // default: 0.85
	RepetitionMinRepeats int     // default: 2

	// HistoryWindow is how many prior user messages repetition inspects.
	HistoryWindow int // default: 10

	// ContradictionThreshold is the similarity above which a declared
	// value and a negative interaction count as contradicting. A single
	// contradiction activates regardless of pattern confidence.
	ContradictionThreshold float64 // default: 0.7

	// ContradictionCap bounds the confidence contribution of
	// simultaneous contradictions.
	ContradictionCap float64 // default: 1.0

	// AvoidanceMaxLength is the message length (runes) below which
	// hedging markers count as avoidance.
	AvoidanceMaxLength int // default: 120

	// ModerateConfidence and DirectConfidence split the approach tiers:
	// gentle below moderate, direct above direct.
	ModerateConfidence float64 // default: 0.7
	DirectConfidence   float64 // default: 0.85

	// PatternWeights weight each tag in the confidence average. Missing
	// tags default to 1.
	PatternWeights map[PatternTag]float64

	// Phrase sets for the lexical detectors. Matched case-insensitively
	// as substrings.
	SelfJustificationPhrases []string
	AvoidancePhrases         []string
	ValidationPhrases        []string
}

// DefaultConfig returns the default evaluation configuration.
func DefaultConfig() *Config {
	return &Config{
		ActivationConfidence:   0.6,
		MinPatternCount:        2,
		RepetitionSimilarity:   0.85,
		RepetitionMinRepeats:   2,
		HistoryWindow:          10,
		ContradictionThreshold: 0.7,
		ContradictionCap:       1.0,
		AvoidanceMaxLength:     120,
		ModerateConfidence:     0.7,
		DirectConfidence:       0.85,
		PatternWeights: map[PatternTag]float64{
			PatternRepetition:        1.0,
			PatternSelfJustification: 1.0,
			PatternAvoidance:         0.8,
			PatternValidationSeeking: 0.8,
		},
		SelfJustificationPhrases: []string{
			"i had to", "they made me", "it wasn't my fault",
			"i had no choice", "what else could i do",
		},
		AvoidancePhrases: []string{
			"maybe", "not sure", "i don't know", "i guess",
			"whatever", "doesn't matter",
		},
		ValidationPhrases: []string{
			"is it okay if", "should i", "tell me i'm right",
			"am i wrong", "was that bad",
		},
	}
}

func (c *Config) normalize() {
	if c.ActivationConfidence <= 0 {
		c.ActivationConfidence = 0.6
	}
	if c.MinPatternCount <= 0 {
		c.MinPatternCount = 2
	}
	if c.RepetitionSimilarity <= 0 {
		c.RepetitionSimilarity = 0.85
	}
	if c.RepetitionMinRepeats <= 0 {
		c.RepetitionMinRepeats = 2
	}
	if c.HistoryWindow <= 0 {
		c.HistoryWindow = 10
	}
	if c.ContradictionThreshold <= 0 {
		c.ContradictionThreshold = 0.7
	}
	if c.ContradictionCap <= 0 {
		c.ContradictionCap = 1.0
	}
	if c.AvoidanceMaxLength <= 0 {
		c.AvoidanceMaxLength = 120
	}
	if c.ModerateConfidence <= 0 {
		c.ModerateConfidence = 0.7
	}
	if c.DirectConfidence <= 0 {
		c.DirectConfidence = 0.85
	}
	defaults := DefaultConfig()
	if c.PatternWeights == nil {
		c.PatternWeights = defaults.PatternWeights
	}
	if c.SelfJustificationPhrases == nil {
		c.SelfJustificationPhrases = defaults.SelfJustificationPhrases
	}
	if c.AvoidancePhrases == nil {
		c.AvoidancePhrases = defaults.AvoidancePhrases
	}
	if c.ValidationPhrases == nil {
		c.ValidationPhrases = defaults.ValidationPhrases
	}
}

// Engine evaluates inbound messages. Detector failures degrade to "not
// triggered"; Evaluate itself never fails.
type Engine struct {
	embedder embedding.Gateway
	config   *Config
}

// NewEngine creates a new tough-love Engine.
func NewEngine(embedder embedding.Gateway, config *Config) *Engine {
	if config == nil {
		config = DefaultConfig()
	}
	config.normalize()
	return &Engine{embedder: embedder, config: config}
}

// Evaluate computes the decision for one inbound message. When the user
// has not opted in it short-circuits to not-activated with confidence 0.
func (e *Engine) Evaluate(ctx context.Context, optIn bool, messageText string, history []*store.Message, userContext *retrieval.UserContext) *Decision {
	if !optIn {
		return &Decision{Activate: false, Confidence: 0, Approach: ApproachGentle}
	}

	var patterns []BehavioralPattern
	if pattern := e.detectRepetition(ctx, messageText, history); pattern != nil {
		patterns = append(patterns, *pattern)
	}
	if pattern := detectPhrases(PatternSelfJustification, messageText, e.config.SelfJustificationPhrases); pattern != nil {
		patterns = append(patterns, *pattern)
	}
	if pattern := e.detectAvoidance(messageText); pattern != nil {
		patterns = append(patterns, *pattern)
	}
	if pattern := detectValidationSeeking(messageText, e.config.ValidationPhrases); pattern != nil {
		patterns = append(patterns, *pattern)
	}

	contradictions := e.detectContradictions(ctx, userContext)

	confidence := e.aggregate(patterns, contradictions)
	anyContradiction := len(contradictions) > 0
	activate := (confidence >= e.config.ActivationConfidence && len(patterns) >= e.config.MinPatternCount) || anyContradiction

	decision := &Decision{
		Activate:       activate,
		Confidence:     confidence,
		Patterns:       patterns,
		Contradictions: contradictions,
		Approach:       e.approach(confidence),
	}

	if activate {
		slog.Info("toughlove: activated",
			"confidence", confidence,
			"patterns", len(patterns),
			"contradictions", len(contradictions),
			"approach", decision.Approach,
		)
	}
	return decision
}

// aggregate computes the weighted average of pattern strengths. Any
// contradiction above threshold lifts confidence to at least its own
// strength, capped by ContradictionCap.
func (e *Engine) aggregate(patterns []BehavioralPattern, contradictions []ValueContradiction) float64 {
	var weightedSum, weightTotal float64
	for _, pattern := range patterns {
		weight, ok := e.config.PatternWeights[pattern.Tag]
		if !ok {
			weight = 1.0
		}
		weightedSum += weight * pattern.Strength
		weightTotal += weight
	}

	confidence := 0.0
	if weightTotal > 0 {
		confidence = weightedSum / weightTotal
	}

	for _, contradiction := range contradictions {
		confidence = math.Max(confidence, contradiction.Strength)
	}
	return math.Min(confidence, e.config.ContradictionCap)
}

func (e *Engine) approach(confidence float64) Approach {
	switch {
	case confidence > e.config.DirectConfidence:
		return ApproachDirect
	case confidence >= e.config.ModerateConfidence:
		return ApproachModerate
	default:
		return ApproachGentle
	}
}
