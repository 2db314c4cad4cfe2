package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/pawlink/petcircle_backend/config"
	"github.com/pawlink/petcircle_backend/mailer"
	"github.com/pawlink/petcircle_backend/models"
	"github.com/pawlink/petcircle_backend/realtime"
	"github.com/sirupsen/logrus"
)

// a delivered order is promoted to success after this long without a dispute
const OrderPromotionAge = 7 * 24 * time.Hour

// Handlers executes the worker-side effect of each job variant. Push and
// email failures inside a handler are logged, never returned: a job is only
// retried for store failures.
type Handlers struct {
	Logger   *logrus.Logger
	Notifier *realtime.Notifier
	Mailer   *mailer.Mailer
}

func NewHandlers(logger *logrus.Logger, notifier *realtime.Notifier, m *mailer.Mailer) *Handlers {
	return &Handlers{Logger: logger, Notifier: notifier, Mailer: m}
}

func (h *Handlers) Handle(ctx context.Context, job Job) error {
	switch j := job.(type) {
	case PetAdoptionJob:
		return h.handlePetAdoption(ctx, j)
	case FindPetJob:
		return h.handleFindPet(ctx, j)
	case OrderProcessedJob:
		return h.handleOrderProcessed(ctx, j)
	case UpdateOrderStatusJob:
		return h.handleUpdateStatus(ctx, j)
	default:
		return &UnknownKindError{Kind: string(job.Kind())}
	}
}

// BuildFanOutNotifications maps matched users to notification inputs.
func BuildFanOutNotifications(receivers []*models.User, title string, subtitle string, content string, moreInfo string) []*models.NewNotification {
	var inputs []*models.NewNotification
	for _, u := range receivers {
		inputs = append(inputs, &models.NewNotification{
			ReceiverId: u.ID,
			Title:      title,
			Subtitle:   subtitle,
			Content:    content,
			MoreInfo:   moreInfo,
		})
	}
	return inputs
}

func (h *Handlers) pushNotifications(ctx context.Context, notifications []*models.Notification) {
	for _, n := range notifications {
		err := h.Notifier.Trigger(ctx, realtime.UserChannel(n.ReceiverId), realtime.EventNewNotification, n)
		if err != nil {
			config.LogError(h.Logger, "queue", "pushNotifications", "realtime push", n.ReceiverId, err)
		}
	}
}

func (h *Handlers) handlePetAdoption(ctx context.Context, job PetAdoptionJob) error {
	receivers, err := models.FindUsersForFanOut(ctx, job.City, job.PetType, postPosterId(ctx, job.PostId))
	if err != nil {
		return err
	}

	inputs := BuildFanOutNotifications(receivers,
		"A pet near you is looking for a home",
		fmt.Sprintf("%s (%s) is up for adoption in %s", job.PetName, job.PetType, job.City),
		"",
		fmt.Sprintf("/adoption-post/%d", job.PostId))

	notifications, err := models.CreateNotifications(ctx, inputs)
	if err != nil {
		return err
	}
	h.pushNotifications(ctx, notifications)
	return nil
}

func (h *Handlers) handleFindPet(ctx context.Context, job FindPetJob) error {
	receivers, err := models.FindUsersForFanOut(ctx, job.City, job.PetType, lostPetPosterId(ctx, job.PostId))
	if err != nil {
		return err
	}

	inputs := BuildFanOutNotifications(receivers,
		"A lost pet was reported near you",
		fmt.Sprintf("A %s went missing around %s, keep an eye out", job.PetType, job.City),
		"",
		fmt.Sprintf("/lost-pet-post/%d", job.PostId))

	notifications, err := models.CreateNotifications(ctx, inputs)
	if err != nil {
		return err
	}
	h.pushNotifications(ctx, notifications)
	return nil
}

func (h *Handlers) handleOrderProcessed(ctx context.Context, job OrderProcessedJob) error {
	order, err := models.GetOrder(ctx, job.OrderId)
	if err != nil {
		return err
	}
	seller, err := models.GetUser(ctx, order.SellerId)
	if err != nil {
		return err
	}

	inputs := []*models.NewNotification{
		{
			ReceiverId: order.BuyerId,
			Title:      "Payment confirmed",
			Subtitle:   fmt.Sprintf("Your payment for %q was received", order.ProductName),
			MoreInfo:   fmt.Sprintf("/order/%d", order.ID),
		},
		{
			ReceiverId: order.SellerId,
			Title:      "You have a paid order",
			Subtitle:   fmt.Sprintf("%q was paid, please arrange delivery", order.ProductName),
			MoreInfo:   fmt.Sprintf("/order/%d", order.ID),
		},
	}
	notifications, err := models.CreateNotifications(ctx, inputs)
	if err != nil {
		return err
	}
	h.pushNotifications(ctx, notifications)

	if h.Mailer != nil && seller.Email != "" {
		h.Mailer.SendAsync(seller.Email,
			"Order paid: "+order.ProductName,
			fmt.Sprintf("<p>Your order #%d (%s) has been paid. Total: %s.</p><p>Please arrange delivery.</p>",
				order.ID, order.ProductName, order.TotalAmount.StringFixed(2)))
	}
	return nil
}

func (h *Handlers) handleUpdateStatus(ctx context.Context, job UpdateOrderStatusJob) error {
	cutoff := time.Now().UTC().Add(-OrderPromotionAge)
	order, promoted, err := models.PromoteDeliveredOrder(ctx, job.OrderId, cutoff)
	if err != nil {
		return err
	}
	if !promoted {
		// Not eligible (too fresh, wrong state, or a redelivered job): nothing to do.
		return nil
	}

	inputs := []*models.NewNotification{
		{
			ReceiverId: order.SellerId,
			Title:      "Order completed",
			Subtitle:   fmt.Sprintf("%s was credited to your balance for %q", order.TotalAmount.StringFixed(2), order.ProductName),
			MoreInfo:   fmt.Sprintf("/order/%d", order.ID),
		},
	}
	notifications, err := models.CreateNotifications(ctx, inputs)
	if err != nil {
		return err
	}
	h.pushNotifications(ctx, notifications)

	if h.Mailer != nil {
		buyer, err := models.GetUser(ctx, order.BuyerId)
		if err == nil && buyer.Email != "" {
			h.Mailer.SendAsync(buyer.Email,
				"Order completed: "+order.ProductName,
				fmt.Sprintf("<p>Your order #%d (%s) is now complete. Thank you for shopping with us.</p>",
					order.ID, order.ProductName))
		}
	}
	return nil
}

func postPosterId(ctx context.Context, postId int) int {
	post, err := models.GetAdoptionPost(ctx, postId)
	if err != nil {
		return 0
	}
	return post.PosterId
}

func lostPetPosterId(ctx context.Context, postId int) int {
	db := config.GetDB()
	var post models.LostPetPost
	err := db.WithContext(ctx).Select("id,poster_id").First(&post, postId).Error
	if err != nil {
		return 0
	}
	return post.PosterId
}
