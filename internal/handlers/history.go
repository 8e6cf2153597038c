package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/speaklab-backend/internal/apierr"
	"github.com/yungbote/speaklab-backend/internal/repos"
	"github.com/yungbote/speaklab-backend/internal/services"
)

type HistoryHandler struct {
	historyService services.HistoryService
}

func NewHistoryHandler(historyService services.HistoryService) *HistoryHandler {
	return &HistoryHandler{historyService: historyService}
}

// Save persists one completed practice session for the authenticated user.
func (hh *HistoryHandler) Save(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		RespondError(c, http.StatusUnauthorized, apierr.CodeUnauthorized, fmt.Errorf("not authenticated"))
		return
	}

	var input services.SaveHistoryInput
	if err := c.ShouldBindJSON(&input); err != nil {
		RespondError(c, http.StatusBadRequest, apierr.CodeValidation, err)
		return
	}

	saved, err := hh.historyService.Save(c.Request.Context(), userID, input)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"history": saved})
}

// List returns the authenticated user's sessions, newest first, with
// optional part and topic filters.
func (hh *HistoryHandler) List(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		RespondError(c, http.StatusUnauthorized, apierr.CodeUnauthorized, fmt.Errorf("not authenticated"))
		return
	}

	filter := repos.HistoryFilter{
		Topic: c.Query("topic"),
		Page:  intQuery(c, "page", 1),
		Limit: intQuery(c, "limit", 10),
	}
	if raw := c.Query("part"); raw != "" {
		part, err := strconv.Atoi(raw)
		if err != nil || part < 1 || part > 3 {
			RespondError(c, http.StatusBadRequest, apierr.CodeValidation, fmt.Errorf("part must be 1, 2 or 3"))
			return
		}
		filter.Part = part
	}

	page, err := hh.historyService.List(c.Request.Context(), userID, filter)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{
		"histories": page.Histories,
		"pagination": gin.H{
			"page":  page.Page,
			"limit": page.Limit,
			"total": page.Total,
			"pages": page.Pages,
		},
	})
}

// Dashboard returns session counts and the average band score for the
// authenticated user.
func (hh *HistoryHandler) Dashboard(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		RespondError(c, http.StatusUnauthorized, apierr.CodeUnauthorized, fmt.Errorf("not authenticated"))
		return
	}

	stats, err := hh.historyService.Dashboard(c.Request.Context(), userID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, stats)
}

func intQuery(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 1 {
		return fallback
	}
	return value
}
