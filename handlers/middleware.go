package handlers

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pawlink/petcircle_backend/config"
	"github.com/pawlink/petcircle_backend/models"
	"github.com/pawlink/petcircle_backend/utils"
)

// SessionMiddleware resolves the "token" header into a username via the
// session store. A missing header passes through; routes behind RequireUser
// reject the request there. A token the store no longer knows is a hard 401.
func SessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Request.Header.Get("token")
		if token == "" {
			c.Next()
			return
		}
		// Forged or expired tokens are rejected before the session lookup.
		if _, err := utils.JwtValidate(token); err != nil {
			respondError(c, utils.NewSessionError("invalid or expired token", err))
			c.Abort()
			return
		}
		username, exists, err := config.GetRedisValue("Token:" + token)
		if err != nil || !exists {
			respondError(c, utils.NewSessionError("invalid or expired token", err))
			c.Abort()
			return
		}

		ctx := utils.SetTokenInContext(c.Request.Context(), token)
		ctx = utils.SetUsernameInContext(ctx, username)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// RequireUser loads the session user and puts the user id and display name on
// the request context. Must run after SessionMiddleware.
func (h *Handler) RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		username, ok := utils.GetUsernameFromContext(ctx)
		if !ok || username == "" {
			respondError(c, utils.NewSessionError("login required", nil))
			c.Abort()
			return
		}

		user, err := h.sessionUser(ctx, username)
		if err != nil {
			respondError(c, err)
			c.Abort()
			return
		}

		ctx = utils.SetUserIdInContext(ctx, user.ID)
		ctx = utils.SetUserNameInContext(ctx, user.Name)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// sessionUser resolves a username to its account, redis cache first. A
// session whose account has been deleted is destroyed on sight.
func (h *Handler) sessionUser(ctx context.Context, username string) (*models.User, error) {
	var cached models.User
	exists, err := config.GetRedisObject("User:"+username, &cached)
	if err != nil {
		config.LogError(h.Logger, "handlers", "sessionUser", "redis lookup", username, err)
	}
	if exists {
		if cached.IsActive == nil || !*cached.IsActive {
			return nil, utils.NewForbiddenError("user is disabled", nil)
		}
		return &cached, nil
	}

	user, err := models.GetUserByUsername(ctx, username)
	if err != nil {
		if _, logoutErr := models.Logout(ctx); logoutErr != nil {
			config.LogError(h.Logger, "handlers", "sessionUser", "logout dangling session", username, logoutErr)
		}
		return nil, utils.NewSessionError("user no longer exists", err)
	}
	if user.IsActive == nil || !*user.IsActive {
		return nil, utils.NewForbiddenError("user is disabled", nil)
	}

	lifespan, err := strconv.Atoi(os.Getenv("TOKEN_HOUR_LIFESPAN"))
	if err != nil || lifespan <= 0 {
		lifespan = 24
	}
	if err := config.SetRedisObject("User:"+username, user, time.Duration(lifespan)*time.Hour); err != nil {
		config.LogError(h.Logger, "handlers", "sessionUser", "cache user", username, err)
	}
	return user, nil
}
