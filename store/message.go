package store

// MessageRole is the author of a message.
type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
)

// MessageFeedback is the user's verdict on an assistant message.
type MessageFeedback string

const (
	MessageFeedbackHelpful    MessageFeedback = "helpful"
	MessageFeedbackNotHelpful MessageFeedback = "not_helpful"
)

// SourceCitation references the retrieved text that grounded part of an
// answer. Always derived from retrieval, never created independently.
type SourceCitation struct {
	SourceID  int32   `json:"sourceId"`
	Title     string  `json:"title"`
	Author    string  `json:"author,omitempty"`
	System    string  `json:"system"`
	Snippet   string  `json:"snippet"`
	Relevance float64 `json:"relevance"`
}

// Message is immutable once persisted except for the Feedback field.
// Assistant messages are only finalized after the full stream completes
// or is explicitly cancelled; Incomplete marks partial output that was
// persisted after a timeout or cancellation.
type Message struct {
	UID            string
	Content        string
	Citations      []SourceCitation
	Feedback       *MessageFeedback
	Confidence     *float64
	Role           MessageRole
	CreatedTs      int64
	LatencyMs      int64
	ID             int64
	ConversationID int32
	DirectMode     bool
	Incomplete     bool
}

type FindMessage struct {
	ID             *int64
	UID            *string
	ConversationID *int32
	Limit          *int
}

// UpdateMessageFeedback is idempotent; the last write wins.
type UpdateMessageFeedback struct {
	Feedback *MessageFeedback
	ID       int64
}
