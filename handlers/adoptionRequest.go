package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/pawlink/petcircle_backend/models"
	"github.com/pawlink/petcircle_backend/utils"
)

type handleRequestInput struct {
	Status string `json:"status" binding:"required"`
}

func (h *Handler) CreateAdoptionRequest() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewAdoptionRequest
		if err := c.ShouldBind(&input); err != nil {
			respondBindError(c, err)
			return
		}

		request, err := h.Engine.CreateAdoptionRequest(c.Request.Context(), &input, formFiles(c, "images"))
		if err != nil {
			respondError(c, err)
			return
		}
		respondCreated(c, "adoption request created", request)
	}
}

// GetAdoptionRequestsForPost lists a post's requests; poster only.
func (h *Handler) GetAdoptionRequestsForPost() gin.HandlerFunc {
	return func(c *gin.Context) {
		postId, err := paramInt(c, "postId")
		if err != nil {
			respondError(c, err)
			return
		}

		requests, err := h.Engine.GetAdoptionRequestsForPost(c.Request.Context(), postId)
		if err != nil {
			respondError(c, err)
			return
		}
		respondOK(c, "adoption requests", requests)
	}
}

// HandleAdoptionRequest applies the poster's decision to a request.
func (h *Handler) HandleAdoptionRequest() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestId, err := paramInt(c, "requestId")
		if err != nil {
			respondError(c, err)
			return
		}

		var input handleRequestInput
		if err := c.ShouldBindJSON(&input); err != nil {
			respondBindError(c, err)
			return
		}
		newStatus, err := models.ParseRequestStatus(input.Status)
		if err != nil {
			respondError(c, utils.NewValidationError(err.Error(), nil))
			return
		}

		request, err := h.Engine.SetAdoptionRequestStatus(c.Request.Context(), requestId, newStatus)
		if err != nil {
			respondError(c, err)
			return
		}
		respondOK(c, "adoption request "+input.Status, request)
	}
}
