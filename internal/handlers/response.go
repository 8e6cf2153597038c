package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/speaklab-backend/internal/apierr"
	"github.com/yungbote/speaklab-backend/internal/requestdata"
	"github.com/yungbote/speaklab-backend/internal/services"
)

type APIError struct {
	Message string            `json:"message"`
	Code    string            `json:"code,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

// RespondServiceError maps service errors onto the envelope: validation
// failures become 400 with per-field details, everything else 500 unless
// the error carries its own status.
func RespondServiceError(c *gin.Context, err error) {
	var vErr *services.ValidationError
	if errors.As(err, &vErr) {
		c.JSON(http.StatusBadRequest, ErrorEnvelope{
			Error: APIError{
				Message: vErr.Error(),
				Code:    apierr.CodeValidation,
				Details: vErr.Fields,
			},
		})
		return
	}
	var aErr *apierr.Error
	if errors.As(err, &aErr) {
		RespondError(c, aErr.Status, aErr.Code, aErr)
		return
	}
	RespondError(c, http.StatusInternalServerError, apierr.CodeInternal, err)
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

// currentUser reads the authenticated user set by the auth middleware.
func currentUser(c *gin.Context) (uuid.UUID, bool) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil {
		return uuid.Nil, false
	}
	return rd.UserID, true
}
