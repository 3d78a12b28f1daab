package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kindredapp/kindred/store"
)

func TestCreateMessageDuplicateUID(t *testing.T) {
	ctx := context.Background()
	d := newTestDB(t)

	conversation, err := d.CreateConversation(ctx, &store.Conversation{
		UID:         "conv1",
		OwnerID:     1,
		Title:       "test",
		TitleSource: store.TitleSourceDefault,
		CreatedTs:   time.Now().Unix(),
		UpdatedTs:   time.Now().Unix(),
	})
	require.NoError(t, err)

	message := &store.Message{
		UID:            "msg1",
		ConversationID: conversation.ID,
		Role:           store.MessageRoleUser,
		Content:        "hello",
		CreatedTs:      time.Now().Unix(),
	}
	_, err = d.CreateMessage(ctx, message)
	require.NoError(t, err)

	// The unique constraint fires and the error carries store-layer context.
	_, err = d.CreateMessage(ctx, message)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create message")
}
