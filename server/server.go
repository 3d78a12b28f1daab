// Package server assembles the chat engine and serves it over HTTP.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kindredapp/kindred/chat"
	"github.com/kindredapp/kindred/chat/embedding"
	"github.com/kindredapp/kindred/chat/llm"
	"github.com/kindredapp/kindred/chat/metrics"
	"github.com/kindredapp/kindred/chat/prompt"
	"github.com/kindredapp/kindred/chat/retrieval"
	"github.com/kindredapp/kindred/chat/toughlove"
	"github.com/kindredapp/kindred/internal/profile"
	apiv1 "github.com/kindredapp/kindred/server/router/api/v1"
	"github.com/kindredapp/kindred/store"
)

// Server hosts the HTTP API.
type Server struct {
	echo     *echo.Echo
	profile  *profile.Profile
	store    *store.Store
	provider llm.Provider
}

// New builds the full chat engine from the profile and mounts the routes.
func New(ctx context.Context, profile *profile.Profile, st *store.Store) (*Server, error) {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomiddleware.Recover())
	e.Use(requestLogger())

	provider, err := llm.NewProvider(&llm.Config{
		Provider: profile.LLMProvider,
		Model:    profile.LLMModel,
		APIKey:   profile.LLMAPIKey,
		BaseURL:  profile.LLMBaseURL,
		Timeout:  profile.LLMTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("create completion provider failed: %w", err)
	}

	embedder, err := embedding.NewGateway(&embedding.Config{
		Provider:   profile.EmbeddingProvider,
		Model:      profile.EmbeddingModel,
		APIKey:     profile.EmbeddingAPIKey,
		BaseURL:    profile.EmbeddingBaseURL,
		Dimensions: profile.EmbeddingDimensions,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding gateway failed: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	chatConfig := chat.DefaultConfig()
	orchestrator := chat.NewOrchestrator(
		st,
		retrieval.NewBuilder(st, embedder, chatConfig.Retrieval),
		toughlove.NewEngine(embedder, chatConfig.ToughLove),
		prompt.NewComposer(chatConfig.Prompt),
		provider,
		metrics.New(registry),
		chatConfig,
	)

	apiv1.NewAPIV1Service(profile, st, orchestrator).RegisterRoutes(e)

	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	return &Server{
		echo:     e,
		profile:  profile,
		store:    st,
		provider: provider,
	}, nil
}

// Start begins serving in the background. It warms the completion
// provider so the first chat is not penalized by connection setup.
func (s *Server) Start(ctx context.Context) error {
	if s.profile.IsAIEnabled() {
		go s.provider.Warmup(ctx)
	}

	address := fmt.Sprintf("%s:%d", s.profile.Addr, s.profile.Port)
	go func() {
		if err := s.echo.Start(address); err != nil && err != http.ErrServerClosed {
			slog.Error("failed to start http server", "error", err)
		}
	}()
	slog.Info("server started", "address", address, "mode", s.profile.Mode, "version", s.profile.Version)
	return nil
}

// Shutdown drains in-flight requests and closes the store.
func (s *Server) Shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := s.echo.Shutdown(ctx); err != nil {
		slog.Error("failed to shut down http server", "error", err)
	}
	if err := s.store.Close(); err != nil {
		slog.Error("failed to close store", "error", err)
	}
	slog.Info("server stopped")
}

func requestLogger() echo.MiddlewareFunc {
	return echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogURI:    true,
		LogStatus: true,
		LogMethod: true,
		LogValuesFunc: func(c echo.Context, v echomiddleware.RequestLoggerValues) error {
			slog.Info("http request",
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
			)
			return nil
		},
	})
}
