package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/speaklab-backend/internal/apierr"
	"github.com/yungbote/speaklab-backend/internal/services"
)

type ModelAnswerHandler struct {
	modelAnswerService services.ModelAnswerService
}

func NewModelAnswerHandler(modelAnswerService services.ModelAnswerService) *ModelAnswerHandler {
	return &ModelAnswerHandler{modelAnswerService: modelAnswerService}
}

// Search looks up the shared answer cache by question text. An exact match
// is returned directly; otherwise up to five answers for the same part and
// topic come back as suggestions.
func (mh *ModelAnswerHandler) Search(c *gin.Context) {
	question := c.Query("question")
	part := 0
	if raw := c.Query("part"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 3 {
			RespondError(c, http.StatusBadRequest, apierr.CodeValidation, fmt.Errorf("part must be 1, 2 or 3"))
			return
		}
		part = parsed
	}

	lookup, err := mh.modelAnswerService.Search(c.Request.Context(), question, part, c.Query("topic"))
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, lookup)
}

// Submit stores a model answer in the shared cache. Submitting a question
// that is already cached returns the stored record unchanged.
func (mh *ModelAnswerHandler) Submit(c *gin.Context) {
	var input services.SubmitAnswerInput
	if err := c.ShouldBindJSON(&input); err != nil {
		RespondError(c, http.StatusBadRequest, apierr.CodeValidation, err)
		return
	}

	stored, created, err := mh.modelAnswerService.Submit(c.Request.Context(), input)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	if !created {
		RespondOK(c, gin.H{"modelAnswer": stored, "message": "model answer already exists"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"modelAnswer": stored})
}
