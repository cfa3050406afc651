package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/edaptivai-netizen/edaptiv-learning/internal/domain/generation"
	"github.com/edaptivai-netizen/edaptiv-learning/internal/http/response"
	"github.com/edaptivai-netizen/edaptiv-learning/internal/platform/ctxutil"
)

// studentAndMaterial reads the caller and :id, writing the error response
// itself when either is missing.
func studentAndMaterial(c *gin.Context) (uuid.UUID, uuid.UUID, bool) {
	userID, ok := ctxutil.UserID(c.Request.Context())
	if !ok {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", errors.New("not authenticated"))
		return uuid.Nil, uuid.Nil, false
	}
	materialID, err := uuid.Parse(c.Param("id"))
	if err != nil || materialID == uuid.Nil {
		response.RespondErr(c, generation.NewError(generation.CodeInvalidArgument, "params", "invalid material id", err))
		return uuid.Nil, uuid.Nil, false
	}
	return userID, materialID, true
}
