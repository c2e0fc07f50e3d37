package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lysyi3m/rss-harvest/app/database"
	"github.com/lysyi3m/rss-harvest/app/tasks"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

func NewHandler(sources SourceStore, articles ArticleLister, refresher SourceRefresher,
	scheduler tasks.TaskSchedulerInterface, transport, version string) *Handler {
	return &Handler{
		sources:   sources,
		articles:  articles,
		refresher: refresher,
		scheduler: scheduler,
		transport: transport,
		version:   version,
		startedAt: time.Now(),
	}
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
		"uptime":    time.Since(h.startedAt).Round(time.Second).String(),
		"transport": h.transport,
		"version":   h.version,
	}

	if sources, err := h.sources.ListSources(c.Request.Context(), true); err == nil {
		health["active_sources"] = len(sources)
	} else {
		health["status"] = "degraded"
	}

	c.JSON(http.StatusOK, health)
}

func (h *Handler) GetStats(c *gin.Context) {
	stats, err := h.sources.GetStats(c.Request.Context())
	if err != nil {
		slog.Error("Database error", "operation", "get_stats", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"sources":        stats.Sources,
		"active_sources": stats.ActiveSources,
		"articles":       stats.Articles,
		"unread":         stats.Unread,
	})
}

func (h *Handler) APIListSources(c *gin.Context) {
	activeOnly := c.Query("active") == "true"

	sources, err := h.sources.ListSources(c.Request.Context(), activeOnly)
	if err != nil {
		slog.Error("Database error", "operation", "list_sources", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	out := make([]sourceResponse, 0, len(sources))
	for _, s := range sources {
		out = append(out, toSourceResponse(s))
	}

	c.JSON(http.StatusOK, gin.H{
		"sources": out,
		"total":   len(out),
	})
}

func (h *Handler) APIGetArticles(c *gin.Context) {
	source, ok := h.sourceFromParam(c)
	if !ok {
		return
	}

	limit := queryInt(c, "limit", defaultPageSize)
	if limit <= 0 || limit > maxPageSize {
		limit = defaultPageSize
	}
	offset := queryInt(c, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	articles, err := h.articles.GetArticles(c.Request.Context(), source.ID, limit, offset)
	if err != nil {
		slog.Error("Database error", "operation", "get_articles", "source", source.Name, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"source":   toSourceResponse(*source),
		"articles": toArticleResponses(articles),
		"limit":    limit,
		"offset":   offset,
	})
}

func (h *Handler) APIRefreshSource(c *gin.Context) {
	source, ok := h.sourceFromParam(c)
	if !ok {
		return
	}

	articles, err := h.refresher.RefreshSource(c.Request.Context(), *source)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{
			"error":  "Refresh failed",
			"source": source.Name,
			"detail": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"source":       source.Name,
		"new_articles": len(articles),
		"articles":     toArticleResponses(articles),
	})
}

func (h *Handler) APIRefreshAll(c *gin.Context) {
	// The batch outlives a client that hangs up mid-run.
	result, err := h.scheduler.RunNow(context.WithoutCancel(c.Request.Context()))
	if errors.Is(err, tasks.ErrRefreshRunning) {
		c.JSON(http.StatusConflict, gin.H{"error": "Refresh already running"})
		return
	}
	if err != nil {
		slog.Error("Refresh failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Refresh failed"})
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *Handler) sourceFromParam(c *gin.Context) (*database.Source, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid source id"})
		return nil, false
	}

	source, err := h.sources.GetSource(c.Request.Context(), id)
	if err != nil {
		slog.Error("Database error", "operation", "get_source", "id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return nil, false
	}
	if source == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Source not found"})
		return nil, false
	}
	return source, true
}

func queryInt(c *gin.Context, key string, fallback int) int {
	v := c.Query(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
