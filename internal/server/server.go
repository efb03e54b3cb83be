package server

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mohammad-safakhou/newsrag/config"
	"github.com/mohammad-safakhou/newsrag/internal/index"
	"github.com/mohammad-safakhou/newsrag/internal/rag"
	"github.com/mohammad-safakhou/newsrag/internal/session"
	"github.com/mohammad-safakhou/newsrag/provider"
)

// Run wires the external clients together and serves the chat API until the
// listener fails.
func Run(cfg *config.Config) error {
	ctx := context.Background()

	redisClient, err := session.Dial(ctx, cfg.Storage.Redis)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	sessions := session.New(redisClient)

	ix, err := index.New(ctx, cfg.Storage.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}

	llm, err := provider.NewProvider(cfg.LLM)
	if err != nil {
		return fmt.Errorf("llm provider: %w", err)
	}

	responder := &rag.Responder{
		Embedder: llm,
		Index:    ix,
		Complete: llm,
		TopK:     cfg.Retrieval.TopK,
		MinScore: cfg.Retrieval.MinScore,
		Logger:   log.New(log.Writer(), "[RAG] ", log.LstdFlags),
	}

	e := newEcho()
	handler := &ChatHandler{
		Sessions:   sessions,
		Responder:  responder,
		SessionTTL: cfg.Session.TTL,
		Logger:     log.New(log.Writer(), "[CHAT] ", log.LstdFlags),
	}
	handler.Register(e.Group("/api"))

	return e.Start(cfg.Server.Address)
}

// newEcho builds the server skeleton: recovery, CORS, a unified JSON error
// handler, health and metrics endpoints.
func newEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if code >= http.StatusInternalServerError {
			// internal detail stays in the log
			msg = "internal server error"
		}
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}

	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Content-Type"},
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	return e
}
