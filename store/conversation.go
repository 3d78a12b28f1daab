package store

// TitleSource indicates how the conversation title was created.
// - "default": derived from the first user message
// - "user": user-provided title (manual edit)
type TitleSource string

const (
	TitleSourceDefault TitleSource = "default"
	TitleSourceUser    TitleSource = "user"
)

// Conversation is a chat conversation owned by exactly one user.
// It is created on the first message when the client does not supply one.
type Conversation struct {
	UID          string
	Title        string
	TitleSource  TitleSource
	CreatedTs    int64
	UpdatedTs    int64
	ID           int32
	OwnerID      int32
	MessageCount int32 // populated by ListConversations with a JOIN
}

type FindConversation struct {
	ID      *int32
	UID     *string
	OwnerID *int32
}

type UpdateConversation struct {
	Title       *string
	TitleSource *TitleSource
	UpdatedTs   *int64
	ID          int32
}

type DeleteConversation struct {
	ID int32
}
