package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/pawlink/petcircle_backend/config"
	"github.com/pawlink/petcircle_backend/models"
	"github.com/pawlink/petcircle_backend/queue"
)

type paymentConfirmedInput struct {
	OrderId int `json:"order_id" binding:"required"`
}

func (h *Handler) CreateOrder() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewOrder
		if err := c.ShouldBindJSON(&input); err != nil {
			respondBindError(c, err)
			return
		}

		order, err := models.CreateOrder(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		respondCreated(c, "order created", order)
	}
}

func (h *Handler) GetOrder() gin.HandlerFunc {
	return func(c *gin.Context) {
		orderId, err := paramInt(c, "orderId")
		if err != nil {
			respondError(c, err)
			return
		}

		order, err := models.GetOrder(c.Request.Context(), orderId)
		if err != nil {
			respondError(c, err)
			return
		}
		respondOK(c, "order", order)
	}
}

// PaymentConfirmed is the payment provider's webhook. The paid transition is
// guarded, so a replayed webhook answers 200 without re-enqueueing the job.
func (h *Handler) PaymentConfirmed() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input paymentConfirmedInput
		if err := c.ShouldBindJSON(&input); err != nil {
			respondBindError(c, err)
			return
		}

		ctx := c.Request.Context()
		order, transitioned, err := models.MarkOrderPaid(ctx, input.OrderId)
		if err != nil {
			respondError(c, err)
			return
		}
		if !transitioned {
			respondOK(c, "payment already recorded", order)
			return
		}

		if _, err := h.Queue.Enqueue(ctx, queue.OrderProcessedJob{OrderId: order.ID}); err != nil {
			config.LogError(h.Logger, "handlers", "PaymentConfirmed", "enqueue", order.ID, err)
		}
		respondOK(c, "payment recorded", order)
	}
}

// MarkOrderDelivered lets the seller hand the order to delivery.
func (h *Handler) MarkOrderDelivered() gin.HandlerFunc {
	return func(c *gin.Context) {
		orderId, err := paramInt(c, "orderId")
		if err != nil {
			respondError(c, err)
			return
		}

		order, err := models.MarkOrderDelivered(c.Request.Context(), orderId)
		if err != nil {
			respondError(c, err)
			return
		}
		respondOK(c, "order marked delivered", order)
	}
}
