package models

import (
	"context"
	"time"

	"github.com/pawlink/petcircle_backend/config"
	"github.com/pawlink/petcircle_backend/utils"
	"gorm.io/gorm"
)

type Notification struct {
	ID         int                `gorm:"primary_key" json:"id"`
	ReceiverId int                `gorm:"not null;index" json:"receiver_id"`
	Status     NotificationStatus `gorm:"type:enum('unseen','seen');default:'unseen'" json:"status"`
	Title      string             `gorm:"size:255;not null" json:"title"`
	Subtitle   string             `gorm:"size:255" json:"subtitle"`
	Content    string             `gorm:"type:text" json:"content"`
	MoreInfo   string             `gorm:"size:255" json:"more_info"`
	CreatedAt  time.Time          `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time          `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewNotification struct {
	ReceiverId int    `json:"receiver_id"`
	Title      string `json:"title"`
	Subtitle   string `json:"subtitle"`
	Content    string `json:"content"`
	MoreInfo   string `json:"more_info"`
}

func (input *NewNotification) mapInput() *Notification {
	return &Notification{
		ReceiverId: input.ReceiverId,
		Status:     NotificationStatusUnseen,
		Title:      input.Title,
		Subtitle:   input.Subtitle,
		Content:    input.Content,
		MoreInfo:   input.MoreInfo,
	}
}

func CreateNotification(tx *gorm.DB, input *NewNotification) (*Notification, error) {

	notification := input.mapInput()
	if err := tx.Create(notification).Error; err != nil {
		return nil, err
	}
	return notification, nil
}

// bulk insert for the fan-out job handlers; a no-op on an empty slice
func CreateNotifications(ctx context.Context, inputs []*NewNotification) ([]*Notification, error) {

	if len(inputs) == 0 {
		return nil, nil
	}

	var notifications []*Notification
	for _, input := range inputs {
		notifications = append(notifications, input.mapInput())
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&notifications).Error; err != nil {
		return nil, err
	}
	return notifications, nil
}

func GetNotificationsForUser(ctx context.Context) ([]*Notification, error) {

	userId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || userId == 0 {
		return nil, utils.NewSessionError("user id is required", nil)
	}

	db := config.GetDB()
	var results []*Notification

	err := db.WithContext(ctx).Model(&Notification{}).
		Where("receiver_id = ?", userId).
		Order("id DESC").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

// only the receiver may mark a notification seen
func MarkNotificationSeen(ctx context.Context, id int) (*Notification, error) {

	userId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || userId == 0 {
		return nil, utils.NewSessionError("user id is required", nil)
	}

	notification, err := utils.FetchModel[Notification](ctx, id)
	if err != nil {
		return nil, utils.NewNotFoundError("notification not found", err)
	}
	if notification.ReceiverId != userId {
		return nil, utils.NewForbiddenError("not the receiver of this notification", nil)
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Model(notification).
		UpdateColumn("status", NotificationStatusSeen).Error
	if err != nil {
		return nil, err
	}
	notification.Status = NotificationStatusSeen
	return notification, nil
}
