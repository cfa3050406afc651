package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/edaptivai-netizen/edaptiv-learning/internal/domain/generation"
	"github.com/edaptivai-netizen/edaptiv-learning/internal/platform/apierr"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
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

// RespondErr maps a service error onto its HTTP status. Internal errors are
// reported with a generic message so causes never leak to clients.
func RespondErr(c *gin.Context, err error) {
	ae := FromError(err)
	if ae.Status >= http.StatusInternalServerError {
		_ = c.Error(err)
		RespondError(c, ae.Status, ae.Code, errors.New("internal error"))
		return
	}
	RespondError(c, ae.Status, ae.Code, errors.New(clientMessage(err)))
}

func FromError(err error) *apierr.Error {
	var ae *apierr.Error
	if errors.As(err, &ae) && ae != nil {
		return ae
	}
	switch generation.CodeOf(err) {
	case generation.CodeNotFound:
		return apierr.New(http.StatusNotFound, string(generation.CodeNotFound), err)
	case generation.CodeInvalidArgument:
		return apierr.New(http.StatusBadRequest, string(generation.CodeInvalidArgument), err)
	case generation.CodeConflict:
		return apierr.New(http.StatusConflict, string(generation.CodeConflict), err)
	default:
		return apierr.New(http.StatusInternalServerError, string(generation.CodeInternal), err)
	}
}

func clientMessage(err error) string {
	var ge *generation.Error
	if errors.As(err, &ge) && ge.Message != "" {
		return ge.Message
	}
	return err.Error()
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

func RespondAccepted(c *gin.Context, payload any) {
	c.JSON(http.StatusAccepted, payload)
}
