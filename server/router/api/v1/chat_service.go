package v1

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/kindredapp/kindred/chat"
	"github.com/kindredapp/kindred/server/middleware"
	"github.com/kindredapp/kindred/store"
)

type streamChatRequest struct {
	ConversationUID string   `json:"conversationUid"`
	Text            string   `json:"text"`
	ToughLoveOptIn  bool     `json:"toughLoveOptIn"`
	Partitions      []string `json:"partitions"`
}

type feedbackRequest struct {
	Feedback string `json:"feedback"`
}

// sseStream adapts the echo response to the chat.Stream interface, writing
// one SSE frame per event.
type sseStream struct {
	response *echo.Response
	request  *http.Request
}

func (s *sseStream) Send(event *chat.StreamEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event failed: %w", err)
	}
	if _, err := fmt.Fprintf(s.response, "event: %s\ndata: %s\n\n", event.Type, payload); err != nil {
		return fmt.Errorf("write event failed: %w", err)
	}
	s.response.Flush()
	return nil
}

func (s *sseStream) Context() context.Context {
	return s.request.Context()
}

// StreamChatMessage handles POST /api/v1/chat/messages: it runs one
// sendMessage call and streams its events back as server-sent events.
// Errors after the stream has started are delivered as error events, not
// HTTP statuses.
func (s *APIV1Service) StreamChatMessage(c echo.Context) error {
	ownerID, ok := middleware.OwnerID(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing owner identity")
	}

	var body streamChatRequest
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}

	partitions := make([]store.ContentPartition, 0, len(body.Partitions))
	for _, partition := range body.Partitions {
		switch p := store.ContentPartition(partition); p {
		case store.PartitionKnowledge, store.PartitionResearch:
			partitions = append(partitions, p)
		default:
			return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("unknown partition %q", partition))
		}
	}

	c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
	c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
	c.Response().Header().Set(echo.HeaderConnection, "keep-alive")
	c.Response().WriteHeader(http.StatusOK)

	// The orchestrator reports failures as typed error events on the
	// stream; by this point the response has already started.
	_ = s.Orchestrator.SendMessage(c.Request().Context(), &chat.SendMessageRequest{ //nolint:errcheck
		OwnerID:         ownerID,
		ConversationUID: body.ConversationUID,
		Text:            body.Text,
		ToughLoveOptIn:  body.ToughLoveOptIn,
		Partitions:      partitions,
	}, &sseStream{response: c.Response(), request: c.Request()})
	return nil
}

// ProvideMessageFeedback handles POST /api/v1/messages/:uid/feedback.
func (s *APIV1Service) ProvideMessageFeedback(c echo.Context) error {
	ownerID, ok := middleware.OwnerID(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing owner identity")
	}

	var body feedbackRequest
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}

	err := s.Orchestrator.ProvideFeedback(c.Request().Context(), ownerID, c.Param("uid"), store.MessageFeedback(body.Feedback))
	if err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
