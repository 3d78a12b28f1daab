package store

import (
	"context"
	"database/sql"
)

// Driver is an interface for database access.
type Driver interface {
	GetDB() *sql.DB
	Close() error

	Migrate(ctx context.Context) error
	ListMigrationHistories(ctx context.Context, find *FindMigrationHistory) ([]*MigrationHistory, error)
	UpsertMigrationHistory(ctx context.Context, upsert *UpsertMigrationHistory) (*MigrationHistory, error)

	// Conversation model.
	CreateConversation(ctx context.Context, create *Conversation) (*Conversation, error)
	ListConversations(ctx context.Context, find *FindConversation) ([]*Conversation, error)
	UpdateConversation(ctx context.Context, update *UpdateConversation) (*Conversation, error)
	DeleteConversation(ctx context.Context, delete *DeleteConversation) error

	CreateMessage(ctx context.Context, create *Message) (*Message, error)
	ListMessages(ctx context.Context, find *FindMessage) ([]*Message, error)
	UpdateMessageFeedback(ctx context.Context, update *UpdateMessageFeedback) error

	// Behavior profile records, consumed read-only by the chat engine.
	ListCoreValues(ctx context.Context, find *FindCoreValue) ([]*CoreValue, error)
	ListFocusAreas(ctx context.Context, find *FindFocusArea) ([]*FocusArea, error)
	ListMentors(ctx context.Context, find *FindMentor) ([]*Mentor, error)
	ListInteractions(ctx context.Context, find *FindInteraction) ([]*Interaction, error)

	// Knowledge base.
	GetContentItem(ctx context.Context, find *FindContentItem) (*ContentItem, error)
	UpsertContentItemEmbedding(ctx context.Context, embedding *ContentItemEmbedding) (*ContentItemEmbedding, error)
	ContentVectorSearch(ctx context.Context, opts *ContentVectorSearchOptions) ([]*ContentItemWithScore, error)
	// ContentGraphWeight returns the structural connectivity of a content
	// item, normalized to [0,1]. Items with no links weigh 0.
	ContentGraphWeight(ctx context.Context, contentItemID int32) (float64, error)
}
