package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/speaklab-backend/internal/apierr"
	"github.com/yungbote/speaklab-backend/internal/services"
)

type PracticeHandler struct {
	sessionService      services.SessionService
	orchestratorService services.OrchestratorService
}

func NewPracticeHandler(sessionService services.SessionService, orchestratorService services.OrchestratorService) *PracticeHandler {
	return &PracticeHandler{sessionService: sessionService, orchestratorService: orchestratorService}
}

// ValidateKey probes the configured provider key and reports whether it is
// usable. The outcome is cached, so polling this endpoint is cheap.
func (ph *PracticeHandler) ValidateKey(c *gin.Context) {
	RespondOK(c, ph.orchestratorService.ValidateKey(c.Request.Context()))
}

func (ph *PracticeHandler) StartSession(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		RespondError(c, http.StatusUnauthorized, apierr.CodeUnauthorized, fmt.Errorf("not authenticated"))
		return
	}

	var req struct {
		Part int `json:"part"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, apierr.CodeValidation, err)
		return
	}

	session, err := ph.sessionService.Start(c.Request.Context(), userID, req.Part)
	if err != nil {
		respondSessionError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"session": session})
}

func (ph *PracticeHandler) CurrentQuestion(c *gin.Context) {
	userID, sessionID, ok := sessionScope(c)
	if !ok {
		return
	}

	question, fromFallback, err := ph.sessionService.CurrentQuestion(c.Request.Context(), sessionID, userID)
	if err != nil {
		respondSessionError(c, err)
		return
	}
	// audio is delivered base64-encoded alongside the question text
	RespondOK(c, gin.H{"question": question, "audio": question.Audio, "fromFallback": fromFallback})
}

// maximum accepted recording size, 25 MB
const maxRecordingBytes = 25 << 20

// AttachRecording accepts the user's spoken answer as a multipart file
// named "audio" and holds it until submit.
func (ph *PracticeHandler) AttachRecording(c *gin.Context) {
	userID, sessionID, ok := sessionScope(c)
	if !ok {
		return
	}

	fileHeader, err := c.FormFile("audio")
	if err != nil {
		RespondError(c, http.StatusBadRequest, apierr.CodeValidation, fmt.Errorf("an audio file is required"))
		return
	}
	if fileHeader.Size > maxRecordingBytes {
		RespondError(c, http.StatusBadRequest, apierr.CodeValidation, fmt.Errorf("recording exceeds the %d byte limit", maxRecordingBytes))
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		RespondError(c, http.StatusBadRequest, apierr.CodeValidation, err)
		return
	}
	defer file.Close()
	audio, err := io.ReadAll(io.LimitReader(file, maxRecordingBytes))
	if err != nil {
		RespondError(c, http.StatusBadRequest, apierr.CodeValidation, err)
		return
	}

	mimeType := fileHeader.Header.Get("Content-Type")
	if err := ph.sessionService.AttachRecording(sessionID, userID, audio, mimeType); err != nil {
		respondSessionError(c, err)
		return
	}
	RespondOK(c, gin.H{"recorded": true})
}

func (ph *PracticeHandler) SubmitResponse(c *gin.Context) {
	userID, sessionID, ok := sessionScope(c)
	if !ok {
		return
	}

	response, err := ph.sessionService.Submit(c.Request.Context(), sessionID, userID)
	if err != nil {
		respondSessionError(c, err)
		return
	}
	RespondOK(c, gin.H{"response": response})
}

func (ph *PracticeHandler) Advance(c *gin.Context) {
	userID, sessionID, ok := sessionScope(c)
	if !ok {
		return
	}

	index, hasMore, err := ph.sessionService.Advance(c.Request.Context(), sessionID, userID)
	if err != nil {
		respondSessionError(c, err)
		return
	}
	RespondOK(c, gin.H{"index": index, "hasMore": hasMore})
}

func (ph *PracticeHandler) Complete(c *gin.Context) {
	userID, sessionID, ok := sessionScope(c)
	if !ok {
		return
	}

	summary, err := ph.sessionService.Complete(sessionID, userID)
	if err != nil {
		respondSessionError(c, err)
		return
	}
	RespondOK(c, gin.H{"summary": summary})
}

func (ph *PracticeHandler) Exit(c *gin.Context) {
	userID, sessionID, ok := sessionScope(c)
	if !ok {
		return
	}

	summary, err := ph.sessionService.Exit(sessionID, userID)
	if err != nil {
		respondSessionError(c, err)
		return
	}
	RespondOK(c, gin.H{"summary": summary})
}

// ModelAnswer generates (or improves) a model answer for an arbitrary
// question without requiring an active session.
func (ph *PracticeHandler) ModelAnswer(c *gin.Context) {
	if _, ok := currentUser(c); !ok {
		RespondError(c, http.StatusUnauthorized, apierr.CodeUnauthorized, fmt.Errorf("not authenticated"))
		return
	}

	var req struct {
		Question     string `json:"question"`
		Part         int    `json:"part"`
		UserResponse string `json:"userResponse,omitempty"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, apierr.CodeValidation, err)
		return
	}
	if req.Question == "" {
		RespondError(c, http.StatusBadRequest, apierr.CodeValidation, fmt.Errorf("question is required"))
		return
	}
	if req.Part < 1 || req.Part > 3 {
		RespondError(c, http.StatusBadRequest, apierr.CodeValidation, fmt.Errorf("part must be 1, 2 or 3"))
		return
	}

	result := ph.orchestratorService.GenerateModelAnswer(c.Request.Context(), req.Question, req.Part, req.UserResponse)
	RespondOK(c, result)
}

func sessionScope(c *gin.Context) (userID, sessionID uuid.UUID, ok bool) {
	userID, authed := currentUser(c)
	if !authed {
		RespondError(c, http.StatusUnauthorized, apierr.CodeUnauthorized, fmt.Errorf("not authenticated"))
		return uuid.Nil, uuid.Nil, false
	}
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, apierr.CodeValidation, fmt.Errorf("invalid session id"))
		return uuid.Nil, uuid.Nil, false
	}
	return userID, sessionID, true
}

func respondSessionError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrSessionNotFound):
		RespondError(c, http.StatusNotFound, apierr.CodeNotFound, err)
	case errors.Is(err, services.ErrSessionNotActive),
		errors.Is(err, services.ErrAlreadyAnswered),
		errors.Is(err, services.ErrNoMoreQuestions):
		RespondError(c, http.StatusConflict, "session_state", err)
	case errors.Is(err, services.ErrInvalidPart),
		errors.Is(err, services.ErrNoRecording):
		RespondError(c, http.StatusBadRequest, apierr.CodeValidation, err)
	default:
		RespondError(c, http.StatusInternalServerError, apierr.CodeInternal, err)
	}
}
