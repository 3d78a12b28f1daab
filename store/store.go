package store

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/kindredapp/kindred/internal/profile"
	"github.com/kindredapp/kindred/internal/version"
)

// Store provides database access to all raw objects.
type Store struct {
	profile *profile.Profile
	driver  Driver
}

// New creates a new instance of Store.
func New(driver Driver, profile *profile.Profile) *Store {
	return &Store{
		driver:  driver,
		profile: profile,
	}
}

func (s *Store) GetDriver() Driver {
	return s.driver
}

func (s *Store) GetDB() *sql.DB {
	return s.driver.GetDB()
}

func (s *Store) Close() error {
	return s.driver.Close()
}

// Migrate applies the schema and records the running version. Starting an
// older binary against data migrated by a newer one is refused.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.driver.Migrate(ctx); err != nil {
		return err
	}

	histories, err := s.driver.ListMigrationHistories(ctx, &FindMigrationHistory{})
	if err != nil {
		return errors.Wrap(err, "failed to list migration histories")
	}

	current := s.profile.Version
	latest := ""
	for _, history := range histories {
		if latest == "" || version.IsVersionGreaterOrEqualThan(history.Version, latest) {
			latest = history.Version
		}
	}
	if latest != "" && !version.IsVersionGreaterOrEqualThan(current, latest) {
		return errors.Errorf("version %s cannot run against data migrated by %s, downgrade is not supported", current, latest)
	}
	if latest == current {
		return nil
	}

	if _, err := s.driver.UpsertMigrationHistory(ctx, &UpsertMigrationHistory{Version: current}); err != nil {
		return errors.Wrap(err, "failed to record migration history")
	}
	return nil
}

func (s *Store) CreateConversation(ctx context.Context, create *Conversation) (*Conversation, error) {
	return s.driver.CreateConversation(ctx, create)
}

func (s *Store) ListConversations(ctx context.Context, find *FindConversation) ([]*Conversation, error) {
	return s.driver.ListConversations(ctx, find)
}

// GetConversation returns the single conversation matching find, or nil
// when none matches.
func (s *Store) GetConversation(ctx context.Context, find *FindConversation) (*Conversation, error) {
	list, err := s.driver.ListConversations(ctx, find)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

func (s *Store) UpdateConversation(ctx context.Context, update *UpdateConversation) (*Conversation, error) {
	return s.driver.UpdateConversation(ctx, update)
}

func (s *Store) DeleteConversation(ctx context.Context, delete *DeleteConversation) error {
	return s.driver.DeleteConversation(ctx, delete)
}

func (s *Store) CreateMessage(ctx context.Context, create *Message) (*Message, error) {
	return s.driver.CreateMessage(ctx, create)
}

func (s *Store) ListMessages(ctx context.Context, find *FindMessage) ([]*Message, error) {
	return s.driver.ListMessages(ctx, find)
}

// GetMessage returns the single message matching find, or nil when none
// matches.
func (s *Store) GetMessage(ctx context.Context, find *FindMessage) (*Message, error) {
	list, err := s.driver.ListMessages(ctx, find)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

func (s *Store) UpdateMessageFeedback(ctx context.Context, update *UpdateMessageFeedback) error {
	return s.driver.UpdateMessageFeedback(ctx, update)
}

func (s *Store) ListCoreValues(ctx context.Context, find *FindCoreValue) ([]*CoreValue, error) {
	return s.driver.ListCoreValues(ctx, find)
}

func (s *Store) ListFocusAreas(ctx context.Context, find *FindFocusArea) ([]*FocusArea, error) {
	return s.driver.ListFocusAreas(ctx, find)
}

func (s *Store) ListMentors(ctx context.Context, find *FindMentor) ([]*Mentor, error) {
	return s.driver.ListMentors(ctx, find)
}

func (s *Store) ListInteractions(ctx context.Context, find *FindInteraction) ([]*Interaction, error) {
	return s.driver.ListInteractions(ctx, find)
}

func (s *Store) GetContentItem(ctx context.Context, find *FindContentItem) (*ContentItem, error) {
	return s.driver.GetContentItem(ctx, find)
}

func (s *Store) UpsertContentItemEmbedding(ctx context.Context, embedding *ContentItemEmbedding) (*ContentItemEmbedding, error) {
	return s.driver.UpsertContentItemEmbedding(ctx, embedding)
}

func (s *Store) ContentVectorSearch(ctx context.Context, opts *ContentVectorSearchOptions) ([]*ContentItemWithScore, error) {
	return s.driver.ContentVectorSearch(ctx, opts)
}

func (s *Store) ContentGraphWeight(ctx context.Context, contentItemID int32) (float64, error) {
	return s.driver.ContentGraphWeight(ctx, contentItemID)
}
