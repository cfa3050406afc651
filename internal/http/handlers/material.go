package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/edaptivai-netizen/edaptiv-learning/internal/http/response"
	"github.com/edaptivai-netizen/edaptiv-learning/internal/services"
)

type MaterialHandler struct {
	adaptation services.AdaptationService
}

func NewMaterialHandler(adaptation services.AdaptationService) *MaterialHandler {
	return &MaterialHandler{adaptation: adaptation}
}

// GET /api/materials/:id
func (h *MaterialHandler) GetMaterial(c *gin.Context) {
	userID, materialID, ok := studentAndMaterial(c)
	if !ok {
		return
	}
	am, err := h.adaptation.EnsureAdapted(c.Request.Context(), userID, materialID)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{
		"material":         am.Material,
		"adapted_content":  am.Content,
		"adapted_just_now": am.Created,
	})
}
