package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/pawlink/petcircle_backend/models"
	"github.com/pawlink/petcircle_backend/utils"
)

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required,min=8"`
}

func (h *Handler) Register() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewUser
		if err := c.ShouldBindJSON(&input); err != nil {
			respondBindError(c, err)
			return
		}

		user, err := models.CreateUser(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		respondCreated(c, "user registered", user)
	}
}

func (h *Handler) Login() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input loginRequest
		if err := c.ShouldBindJSON(&input); err != nil {
			respondBindError(c, err)
			return
		}

		info, err := models.Login(c.Request.Context(), input.Username, input.Password)
		if err != nil {
			respondError(c, err)
			return
		}
		respondOK(c, "login successful", info)
	}
}

func (h *Handler) Logout() gin.HandlerFunc {
	return func(c *gin.Context) {
		if token, hasToken := utils.GetTokenFromContext(c.Request.Context()); !hasToken || token == "" {
			respondError(c, utils.NewSessionError("login required", nil))
			return
		}

		ok, err := models.Logout(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		respondOK(c, "logged out", gin.H{"logged_out": ok})
	}
}

// ChangePassword rotates the password and destroys every session token, so
// the caller has to log in again.
func (h *Handler) ChangePassword() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input changePasswordRequest
		if err := c.ShouldBindJSON(&input); err != nil {
			respondBindError(c, err)
			return
		}

		user, err := models.ChangePassword(c.Request.Context(), input.OldPassword, input.NewPassword)
		if err != nil {
			respondError(c, err)
			return
		}
		user.PrepareGive()
		respondOK(c, "password changed, please log in again", user)
	}
}
