package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/pawlink/petcircle_backend/utils"
)

// Envelope is the uniform response body. Data is set on success; Error and
// Type carry the taxonomy name on failure.
type Envelope struct {
	Success    bool        `json:"success"`
	Message    string      `json:"message"`
	Data       interface{} `json:"data,omitempty"`
	Error      interface{} `json:"error,omitempty"`
	StatusCode int         `json:"statusCode"`
	Type       string      `json:"type,omitempty"`
}

func respond(c *gin.Context, status int, message string, data interface{}) {
	c.JSON(status, Envelope{
		Success:    true,
		Message:    message,
		Data:       data,
		StatusCode: status,
	})
}

func respondOK(c *gin.Context, message string, data interface{}) {
	respond(c, http.StatusOK, message, data)
}

func respondCreated(c *gin.Context, message string, data interface{}) {
	respond(c, http.StatusCreated, message, data)
}

// ErrorEnvelope normalizes any error into a status code and failure body.
func ErrorEnvelope(err error) (int, Envelope) {
	apiErr := utils.AsAPIError(err)
	status := apiErr.StatusCode()
	return status, Envelope{
		Success:    false,
		Message:    apiErr.Message,
		Error:      apiErr.Message,
		StatusCode: status,
		Type:       string(apiErr.Type),
	}
}

func respondError(c *gin.Context, err error) {
	status, body := ErrorEnvelope(err)
	c.JSON(status, body)
}

// respondBindError turns gin binding failures into a 400 envelope. Field
// validation errors are reported per field; anything else (malformed JSON,
// wrong types) gets a generic message.
func respondBindError(c *gin.Context, err error) {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		status, body := ErrorEnvelope(utils.NewValidationError("invalid request body", err))
		body.Error = utils.ProcessValidationErrors(validationErrors)
		c.JSON(status, body)
		return
	}
	respondError(c, utils.NewValidationError("invalid request body", err))
}
