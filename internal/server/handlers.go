package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/xaenox/scout-insights/internal/analytics"
	"github.com/xaenox/scout-insights/internal/chat"
	"github.com/xaenox/scout-insights/internal/llm"
	"github.com/xaenox/scout-insights/internal/models"
	"github.com/xaenox/scout-insights/internal/storage"
	"go.uber.org/zap"
)

// InsightGenerator produces one insight per request.
type InsightGenerator interface {
	Generate(ctx context.Context, req models.InsightRequest) (*models.Insight, error)
}

type Handler struct {
	analytics *analytics.Service
	insights  InsightGenerator
	chat      chat.Sender
	chatLog   storage.ChatLog
	logger    *zap.Logger
}

func NewHandler(svc *analytics.Service, insights InsightGenerator, sender chat.Sender, chatLog storage.ChatLog, logger *zap.Logger) *Handler {
	return &Handler{
		analytics: svc,
		insights:  insights,
		chat:      sender,
		chatLog:   chatLog,
		logger:    logger,
	}
}

func HealthCheck(c *gin.Context) {
	RespondOK(c, gin.H{"status": "ok"})
}

// filtersFromQuery reads a filter context from query parameters.
func filtersFromQuery(c *gin.Context) (models.FilterContext, error) {
	f := models.DefaultFilters()
	if err := c.ShouldBindQuery(&f); err != nil {
		return f, fmt.Errorf("%w: %v", models.ErrInvalidFilter, err)
	}
	f = f.Normalize()
	if err := f.Validate(); err != nil {
		return f, err
	}
	return f, nil
}

func (h *Handler) analyticsView(view func(context.Context, models.FilterContext) (any, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		f, err := filtersFromQuery(c)
		if err != nil {
			RespondError(c, http.StatusBadRequest, "invalid_filters", err)
			return
		}
		out, err := view(c.Request.Context(), f)
		if err != nil {
			h.logger.Error("Analytics query failed", zap.String("path", c.FullPath()), zap.Error(err))
			RespondError(c, http.StatusInternalServerError, "analytics_failed", err)
			return
		}
		RespondOK(c, out)
	}
}

func (h *Handler) Trends(c *gin.Context) {
	h.analyticsView(func(ctx context.Context, f models.FilterContext) (any, error) {
		return h.analytics.Trends(ctx, f)
	})(c)
}

func (h *Handler) Products(c *gin.Context) {
	h.analyticsView(func(ctx context.Context, f models.FilterContext) (any, error) {
		return h.analytics.ProductMix(ctx, f)
	})(c)
}

func (h *Handler) Behavior(c *gin.Context) {
	h.analyticsView(func(ctx context.Context, f models.FilterContext) (any, error) {
		return h.analytics.ConsumerBehavior(ctx, f)
	})(c)
}

func (h *Handler) Geographic(c *gin.Context) {
	h.analyticsView(func(ctx context.Context, f models.FilterContext) (any, error) {
		return h.analytics.Geographic(ctx, f)
	})(c)
}

func (h *Handler) Insight(c *gin.Context) {
	var req models.InsightRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	req.Filters = req.Filters.Normalize()

	insight, err := h.insights.Generate(c.Request.Context(), req)
	switch {
	case err == nil:
		RespondOK(c, insight)
	case errors.Is(err, models.ErrInvalidFilter):
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
	case errors.Is(err, llm.ErrAllProvidersFailed), errors.Is(err, llm.ErrNoProvider):
		RespondError(c, http.StatusBadGateway, "insight_unavailable", err)
	default:
		h.logger.Error("Insight request failed", zap.Error(err))
		RespondError(c, http.StatusInternalServerError, "insight_failed", err)
	}
}

type chatRequest struct {
	Message string               `json:"message"`
	Filters models.FilterContext `json:"filters"`
	History []models.ChatMessage `json:"history"`
}

func (h *Handler) Chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if req.Message == "" {
		RespondError(c, http.StatusBadRequest, "invalid_request", chat.ErrEmptyMessage)
		return
	}
	for _, m := range req.History {
		if m.Role != models.RoleUser && m.Role != models.RoleAssistant {
			RespondError(c, http.StatusBadRequest, "invalid_request", fmt.Errorf("invalid history role %q", m.Role))
			return
		}
	}
	req.Filters = req.Filters.Normalize()
	if err := req.Filters.Validate(); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_filters", err)
		return
	}

	reply, err := h.chat.SendMessage(c.Request.Context(), req.Message, req.Filters, req.History)
	if err != nil {
		h.logger.Error("Chat request failed", zap.Error(err))
		RespondError(c, http.StatusBadGateway, "chat_failed", errors.New(chat.Apology))
		return
	}
	RespondOK(c, reply)
}

func (h *Handler) ChatLog(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 || limit > 500 {
		RespondError(c, http.StatusBadRequest, "invalid_limit", fmt.Errorf("limit must be between 1 and 500"))
		return
	}
	entries, err := h.chatLog.RecentMessages(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to read chat log", zap.Error(err))
		RespondError(c, http.StatusInternalServerError, "chat_log_failed", err)
		return
	}
	RespondOK(c, gin.H{"messages": entries})
}
