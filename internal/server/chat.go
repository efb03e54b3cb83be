package server

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mohammad-safakhou/newsrag/models"
)

var (
	chatRequests = promauto.NewCounter(prometheus.CounterOpts{
		Name: "newsrag_chat_requests_total",
		Help: "Number of chat messages received.",
	})
	chatFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "newsrag_chat_failures_total",
		Help: "Number of chat requests that failed to produce a response.",
	})
)

// Responder produces the answer for one chat message.
type Responder interface {
	Respond(ctx context.Context, query string) (string, error)
}

// SessionStore is the per-session history surface the handlers need.
type SessionStore interface {
	Create() string
	Get(ctx context.Context, sessionID string) ([]models.ChatTurn, error)
	Put(ctx context.Context, sessionID string, history []models.ChatTurn, ttl time.Duration) error
	Clear(ctx context.Context, sessionID string) error
}

// ChatHandler exposes the chat API over the session store and the query
// pipeline.
type ChatHandler struct {
	Sessions   SessionStore
	Responder  Responder
	SessionTTL time.Duration
	Logger     *log.Logger
}

func (h *ChatHandler) Register(g *echo.Group) {
	g.GET("/session/new", h.newSession)
	g.POST("/chat", h.chat)
	g.GET("/history/:sessionId", h.history)
	g.POST("/session/clear", h.clearSession)
}

func (h *ChatHandler) newSession(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"sessionId": h.Sessions.Create()})
}

func (h *ChatHandler) chat(c echo.Context) error {
	chatRequests.Inc()

	var req struct {
		SessionID string `json:"sessionId"`
		Message   string `json:"message"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "sessionId and message are required")
	}
	if strings.TrimSpace(req.SessionID) == "" || strings.TrimSpace(req.Message) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "sessionId and message are required")
	}

	ctx := c.Request().Context()
	answer, err := h.Responder.Respond(ctx, req.Message)
	if err != nil {
		chatFailures.Inc()
		h.logf("chat response error: %v", err)
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	// read-modify-write of the whole history; last writer wins
	history, err := h.Sessions.Get(ctx, req.SessionID)
	if err != nil {
		h.logf("history read error: %v", err)
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	history = append(history,
		models.ChatTurn{Sender: models.SenderUser, Text: req.Message},
		models.ChatTurn{Sender: models.SenderBot, Text: answer},
	)
	if err := h.Sessions.Put(ctx, req.SessionID, history, h.SessionTTL); err != nil {
		h.logf("history write error: %v", err)
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, map[string]string{"response": answer})
}

func (h *ChatHandler) history(c echo.Context) error {
	history, err := h.Sessions.Get(c.Request().Context(), c.Param("sessionId"))
	if err != nil {
		h.logf("history read error: %v", err)
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if history == nil {
		history = []models.ChatTurn{}
	}
	return c.JSON(http.StatusOK, history)
}

func (h *ChatHandler) clearSession(c echo.Context) error {
	var req struct {
		SessionID string `json:"sessionId"`
	}
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.SessionID) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "sessionId is required")
	}
	if err := h.Sessions.Clear(c.Request().Context(), req.SessionID); err != nil {
		h.logf("session clear error: %v", err)
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "session cleared"})
}

func (h *ChatHandler) logf(format string, args ...interface{}) {
	if h.Logger != nil {
		h.Logger.Printf(format, args...)
	}
}
