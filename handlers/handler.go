package handlers

import (
	"mime/multipart"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/pawlink/petcircle_backend/queue"
	"github.com/pawlink/petcircle_backend/utils"
	"github.com/pawlink/petcircle_backend/workflow"
	"github.com/sirupsen/logrus"
)

// Handler holds the collaborators every route needs.
type Handler struct {
	Logger *logrus.Logger
	Engine *workflow.Engine
	Queue  *queue.JobQueue
}

func NewHandler(logger *logrus.Logger, engine *workflow.Engine, q *queue.JobQueue) *Handler {
	return &Handler{Logger: logger, Engine: engine, Queue: q}
}

func paramInt(c *gin.Context, name string) (int, error) {
	v, err := strconv.Atoi(c.Param(name))
	if err != nil || v <= 0 {
		return 0, utils.NewValidationError(name+" must be a positive integer", err)
	}
	return v, nil
}

// formFiles returns the uploaded files under a multipart field; a request
// without that field is not an error, posts can be image-free.
func formFiles(c *gin.Context, field string) []*multipart.FileHeader {
	form, err := c.MultipartForm()
	if err != nil || form == nil {
		return nil
	}
	return form.File[field]
}
