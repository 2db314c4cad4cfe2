package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/pawlink/petcircle_backend/config"
	"github.com/pawlink/petcircle_backend/models"
	"github.com/pawlink/petcircle_backend/queue"
)

// CreateAdoptionPost persists the post and its images, then enqueues the
// city fan-out job. The enqueue is best effort from the client's view; a
// failure is logged but never fails the already committed post.
func (h *Handler) CreateAdoptionPost() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewAdoptionPost
		if err := c.ShouldBind(&input); err != nil {
			respondBindError(c, err)
			return
		}

		ctx := c.Request.Context()
		post, err := models.CreateAdoptionPost(ctx, &input, formFiles(c, "images"))
		if err != nil {
			respondError(c, err)
			return
		}

		job := queue.PetAdoptionJob{
			PostId:  post.ID,
			City:    post.City,
			PetType: post.PetType,
			PetName: post.PetName,
		}
		if _, err := h.Queue.Enqueue(ctx, job); err != nil {
			config.LogError(h.Logger, "handlers", "CreateAdoptionPost", "enqueue fan-out", post.ID, err)
		}

		respondCreated(c, "adoption post created", post)
	}
}

func (h *Handler) GetAdoptionPost() gin.HandlerFunc {
	return func(c *gin.Context) {
		postId, err := paramInt(c, "postId")
		if err != nil {
			respondError(c, err)
			return
		}

		post, err := models.GetAdoptionPost(c.Request.Context(), postId)
		if err != nil {
			respondError(c, err)
			return
		}
		respondOK(c, "adoption post", post)
	}
}

// ListAdoptionPosts supports optional city and pet_type filters.
func (h *Handler) ListAdoptionPosts() gin.HandlerFunc {
	return func(c *gin.Context) {
		posts, err := models.GetAdoptionPosts(c.Request.Context(), c.Query("city"), c.Query("pet_type"))
		if err != nil {
			respondError(c, err)
			return
		}
		respondOK(c, "adoption posts", posts)
	}
}
