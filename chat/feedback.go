package chat

import (
	"context"
	"fmt"

	"github.com/kindredapp/kindred/store"
)

// ProvideFeedback records the user's verdict on an assistant message.
// Idempotent: the last write wins. Ownership is checked through the
// message's conversation so users cannot rate each other's messages.
func (o *Orchestrator) ProvideFeedback(ctx context.Context, ownerID int32, messageUID string, feedback store.MessageFeedback) error {
	if feedback != store.MessageFeedbackHelpful && feedback != store.MessageFeedbackNotHelpful {
		return NewValidationError("invalid feedback %q", feedback)
	}

	message, err := o.store.GetMessage(ctx, &store.FindMessage{UID: &messageUID})
	if err != nil {
		return fmt.Errorf("get message failed: %w", err)
	}
	if message == nil {
		return NewValidationError("message %s not found", messageUID)
	}

	conversation, err := o.store.GetConversation(ctx, &store.FindConversation{ID: &message.ConversationID})
	if err != nil {
		return fmt.Errorf("get conversation failed: %w", err)
	}
	if conversation == nil || conversation.OwnerID != ownerID {
		return NewValidationError("message %s not found", messageUID)
	}

	return o.store.UpdateMessageFeedback(ctx, &store.UpdateMessageFeedback{
		ID:       message.ID,
		Feedback: &feedback,
	})
}
