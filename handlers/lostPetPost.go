package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/pawlink/petcircle_backend/config"
	"github.com/pawlink/petcircle_backend/models"
	"github.com/pawlink/petcircle_backend/queue"
)

// CreateLostPetPost persists the report and enqueues the finder fan-out job.
func (h *Handler) CreateLostPetPost() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewLostPetPost
		if err := c.ShouldBind(&input); err != nil {
			respondBindError(c, err)
			return
		}

		ctx := c.Request.Context()
		post, err := models.CreateLostPetPost(ctx, &input, formFiles(c, "images"))
		if err != nil {
			respondError(c, err)
			return
		}

		job := queue.FindPetJob{
			PostId:  post.ID,
			City:    post.LastSeenCity,
			PetType: post.PetType,
		}
		if _, err := h.Queue.Enqueue(ctx, job); err != nil {
			config.LogError(h.Logger, "handlers", "CreateLostPetPost", "enqueue fan-out", post.ID, err)
		}

		respondCreated(c, "lost pet post created", post)
	}
}
