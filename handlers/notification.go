package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/pawlink/petcircle_backend/models"
)

func (h *Handler) ListNotifications() gin.HandlerFunc {
	return func(c *gin.Context) {
		notifications, err := models.GetNotificationsForUser(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		respondOK(c, "notifications", notifications)
	}
}

func (h *Handler) MarkNotificationSeen() gin.HandlerFunc {
	return func(c *gin.Context) {
		notificationId, err := paramInt(c, "notificationId")
		if err != nil {
			respondError(c, err)
			return
		}

		notification, err := models.MarkNotificationSeen(c.Request.Context(), notificationId)
		if err != nil {
			respondError(c, err)
			return
		}
		respondOK(c, "notification seen", notification)
	}
}
