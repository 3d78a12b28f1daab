package chat

import (
	"context"

	"github.com/kindredapp/kindred/store"
)

// EventType identifies a stream event.
type EventType string

const (
	// EventStart opens the stream with the conversation and message ids.
	EventStart EventType = "start"
	// EventSource carries one citation; sources are emitted before the
	// first delta since they are known before generation begins.
	EventSource EventType = "source"
	// EventDelta carries one generated text fragment.
	EventDelta EventType = "delta"
	// EventComplete closes a successful stream with the final message.
	EventComplete EventType = "complete"
	// EventError closes a failed stream with a typed error.
	EventError EventType = "error"
)

// StartEvent payload.
type StartEvent struct {
	ConversationUID string `json:"conversationUid"`
	MessageUID      string `json:"messageUid"`
}

// CompleteEvent payload.
type CompleteEvent struct {
	Message      *store.Message `json:"message"`
	IsDirectMode bool           `json:"isDirectMode"`
	LatencyMs    int64          `json:"latencyMs"`
}

// ErrorEvent payload.
type ErrorEvent struct {
	Kind         ErrorKind `json:"kind"`
	Message      string    `json:"message"`
	RetryAfterMs int64     `json:"retryAfterMs,omitempty"`
}

// StreamEvent is the typed event pushed to the client. Exactly one
// payload field matching Type is set.
type StreamEvent struct {
	Type     EventType             `json:"type"`
	Start    *StartEvent           `json:"start,omitempty"`
	Source   *store.SourceCitation `json:"source,omitempty"`
	Delta    string                `json:"delta,omitempty"`
	Complete *CompleteEvent        `json:"complete,omitempty"`
	Error    *ErrorEvent           `json:"error,omitempty"`
}

// Stream is the sink for one sendMessage call. Context carries the
// client's cancellation: when it is done the orchestrator stops pulling
// tokens and transitions the message to cancelled.
type Stream interface {
	Send(event *StreamEvent) error
	Context() context.Context
}

func startEvent(conversationUID, messageUID string) *StreamEvent {
	return &StreamEvent{Type: EventStart, Start: &StartEvent{ConversationUID: conversationUID, MessageUID: messageUID}}
}

func sourceEvent(citation store.SourceCitation) *StreamEvent {
	return &StreamEvent{Type: EventSource, Source: &citation}
}

func deltaEvent(text string) *StreamEvent {
	return &StreamEvent{Type: EventDelta, Delta: text}
}

func completeEvent(message *store.Message) *StreamEvent {
	return &StreamEvent{Type: EventComplete, Complete: &CompleteEvent{
		Message:      message,
		IsDirectMode: message.DirectMode,
		LatencyMs:    message.LatencyMs,
	}}
}

func errorEvent(chatErr *Error) *StreamEvent {
	return &StreamEvent{Type: EventError, Error: &ErrorEvent{
		Kind:         chatErr.Kind,
		Message:      chatErr.Message,
		RetryAfterMs: chatErr.RetryAfter.Milliseconds(),
	}}
}
