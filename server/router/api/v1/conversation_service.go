package v1

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/kindredapp/kindred/server/middleware"
	"github.com/kindredapp/kindred/store"
)

type updateConversationRequest struct {
	Title string `json:"title"`
}

// ListConversations handles GET /api/v1/conversations.
func (s *APIV1Service) ListConversations(c echo.Context) error {
	ownerID, ok := middleware.OwnerID(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing owner identity")
	}

	conversations, err := s.Store.ListConversations(c.Request().Context(), &store.FindConversation{OwnerID: &ownerID})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list conversations")
	}
	return c.JSON(http.StatusOK, conversations)
}

// GetConversation handles GET /api/v1/conversations/:uid.
func (s *APIV1Service) GetConversation(c echo.Context) error {
	conversation, err := s.ownedConversation(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, conversation)
}

// UpdateConversation handles PATCH /api/v1/conversations/:uid. Only the
// title is mutable; a manual edit pins it against default re-titling.
func (s *APIV1Service) UpdateConversation(c echo.Context) error {
	conversation, err := s.ownedConversation(c)
	if err != nil {
		return err
	}

	var body updateConversationRequest
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	if body.Title == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "title is required")
	}

	titleSource := store.TitleSourceUser
	now := time.Now().Unix()
	updated, err := s.Store.UpdateConversation(c.Request().Context(), &store.UpdateConversation{
		ID:          conversation.ID,
		Title:       &body.Title,
		TitleSource: &titleSource,
		UpdatedTs:   &now,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to update conversation")
	}
	return c.JSON(http.StatusOK, updated)
}

// DeleteConversation handles DELETE /api/v1/conversations/:uid.
func (s *APIV1Service) DeleteConversation(c echo.Context) error {
	conversation, err := s.ownedConversation(c)
	if err != nil {
		return err
	}

	if err := s.Store.DeleteConversation(c.Request().Context(), &store.DeleteConversation{ID: conversation.ID}); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to delete conversation")
	}
	return c.NoContent(http.StatusNoContent)
}

// ListConversationMessages handles GET /api/v1/conversations/:uid/messages.
func (s *APIV1Service) ListConversationMessages(c echo.Context) error {
	conversation, err := s.ownedConversation(c)
	if err != nil {
		return err
	}

	messages, err := s.Store.ListMessages(c.Request().Context(), &store.FindMessage{ConversationID: &conversation.ID})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list messages")
	}
	return c.JSON(http.StatusOK, messages)
}

// ownedConversation loads the :uid conversation and enforces ownership.
// Foreign conversations read as not-found to avoid leaking existence.
func (s *APIV1Service) ownedConversation(c echo.Context) (*store.Conversation, error) {
	ownerID, ok := middleware.OwnerID(c)
	if !ok {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "missing owner identity")
	}

	uid := c.Param("uid")
	conversation, err := s.Store.GetConversation(c.Request().Context(), &store.FindConversation{UID: &uid})
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusInternalServerError, "failed to get conversation")
	}
	if conversation == nil || conversation.OwnerID != ownerID {
		return nil, echo.NewHTTPError(http.StatusNotFound, "conversation not found")
	}
	return conversation, nil
}
