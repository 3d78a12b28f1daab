// Package v1 exposes the chat engine over HTTP: a server-sent-events
// chat stream plus plain reads over conversations and messages.
package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/kindredapp/kindred/chat"
	"github.com/kindredapp/kindred/internal/profile"
	"github.com/kindredapp/kindred/server/middleware"
	"github.com/kindredapp/kindred/store"
)

// APIV1Service wires the HTTP routes to the chat engine and the store.
type APIV1Service struct {
	Profile      *profile.Profile
	Store        *store.Store
	Orchestrator *chat.Orchestrator
}

// NewAPIV1Service creates a new APIV1Service.
func NewAPIV1Service(profile *profile.Profile, store *store.Store, orchestrator *chat.Orchestrator) *APIV1Service {
	return &APIV1Service{
		Profile:      profile,
		Store:        store,
		Orchestrator: orchestrator,
	}
}

// RegisterRoutes mounts the v1 API under /api/v1.
func (s *APIV1Service) RegisterRoutes(e *echo.Echo) {
	group := e.Group("/api/v1", middleware.Owner(), middleware.RateLimiter(middleware.RateLimiterConfig{}))

	group.POST("/chat/messages", s.StreamChatMessage)
	group.POST("/messages/:uid/feedback", s.ProvideMessageFeedback)

	group.GET("/conversations", s.ListConversations)
	group.GET("/conversations/:uid", s.GetConversation)
	group.PATCH("/conversations/:uid", s.UpdateConversation)
	group.DELETE("/conversations/:uid", s.DeleteConversation)
	group.GET("/conversations/:uid/messages", s.ListConversationMessages)
}

// httpError maps a chat engine error to an HTTP status.
func httpError(err error) error {
	chatErr := chat.Classify(err)
	switch chatErr.Kind {
	case chat.ErrorKindValidation:
		return echo.NewHTTPError(http.StatusBadRequest, chatErr.Message)
	case chat.ErrorKindRateLimited:
		return echo.NewHTTPError(http.StatusTooManyRequests, chatErr.Message)
	case chat.ErrorKindProviderUnavailable:
		return echo.NewHTTPError(http.StatusServiceUnavailable, chatErr.Message)
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, chatErr.Message)
	}
}
