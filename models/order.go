package models

import (
	"context"
	"time"

	"github.com/pawlink/petcircle_backend/config"
	"github.com/pawlink/petcircle_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Order struct {
	ID          int             `gorm:"primary_key" json:"id"`
	BuyerId     int             `gorm:"not null;index" json:"buyer_id"`
	Buyer       *User           `gorm:"foreignKey:BuyerId" json:"buyer,omitempty"`
	SellerId    int             `gorm:"not null;index" json:"seller_id"`
	Seller      *User           `gorm:"foreignKey:SellerId" json:"seller,omitempty"`
	ProductName string          `gorm:"size:255;not null" json:"product_name"`
	TotalAmount decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"total_amount"`
	Status      OrderStatus     `gorm:"type:enum('pending','paid','delivered','success');default:'pending';index" json:"status"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewOrder struct {
	SellerId    int             `json:"seller_id" binding:"required"`
	ProductName string          `json:"product_name" binding:"required"`
	TotalAmount decimal.Decimal `json:"total_amount" binding:"required"`
}

func CreateOrder(ctx context.Context, input *NewOrder) (*Order, error) {

	buyerId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || buyerId == 0 {
		return nil, utils.NewSessionError("user id is required", nil)
	}
	if buyerId == input.SellerId {
		return nil, utils.NewForbiddenError("cannot order from yourself", nil)
	}
	if input.TotalAmount.LessThanOrEqual(decimal.Zero) {
		return nil, utils.NewValidationError("total amount must be positive", nil)
	}
	if err := utils.ValidateResourceId[User](ctx, input.SellerId); err != nil {
		return nil, utils.NewNotFoundError("seller not found", err)
	}

	db := config.GetDB()
	order := Order{
		BuyerId:     buyerId,
		SellerId:    input.SellerId,
		ProductName: input.ProductName,
		TotalAmount: input.TotalAmount,
		Status:      OrderStatusPending,
	}
	if err := db.WithContext(ctx).Create(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func GetOrder(ctx context.Context, id int) (*Order, error) {
	return utils.FetchModel[Order](ctx, id)
}

// payment webhook transition; guarded so a replayed webhook is a no-op
func MarkOrderPaid(ctx context.Context, orderId int) (*Order, bool, error) {

	order, err := utils.FetchModel[Order](ctx, orderId)
	if err != nil {
		return nil, false, utils.NewNotFoundError("order not found", err)
	}

	db := config.GetDB()
	result := db.WithContext(ctx).Model(&Order{}).
		Where("id = ? AND status = ?", orderId, OrderStatusPending).
		UpdateColumn("status", OrderStatusPaid)
	if result.Error != nil {
		return nil, false, result.Error
	}
	if result.RowsAffected == 0 {
		return order, false, nil
	}
	order.Status = OrderStatusPaid
	return order, true, nil
}

// seller marks the order handed over to delivery
func MarkOrderDelivered(ctx context.Context, orderId int) (*Order, error) {

	userId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || userId == 0 {
		return nil, utils.NewSessionError("user id is required", nil)
	}

	order, err := utils.FetchModel[Order](ctx, orderId)
	if err != nil {
		return nil, utils.NewNotFoundError("order not found", err)
	}
	if order.SellerId != userId {
		return nil, utils.NewForbiddenError("not the seller of this order", nil)
	}

	db := config.GetDB()
	result := db.WithContext(ctx).Model(&Order{}).
		Where("id = ? AND status = ?", orderId, OrderStatusPaid).
		UpdateColumn("status", OrderStatusDelivered)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, utils.NewConflictError("order is not in paid state", nil)
	}
	order.Status = OrderStatusDelivered
	return order, nil
}

// PromoteDeliveredOrder flips delivered to success once the order has sat
// delivered past the cutoff, crediting the seller's balance in the same
// transaction. The guarded UPDATE makes broker redelivery credit-safe: a
// second run matches zero rows and credits nothing.
func PromoteDeliveredOrder(ctx context.Context, orderId int, deliveredBefore time.Time) (*Order, bool, error) {

	order, err := utils.FetchModel[Order](ctx, orderId)
	if err != nil {
		return nil, false, utils.NewNotFoundError("order not found", err)
	}

	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()

	result := tx.Model(&Order{}).
		Where("id = ? AND status = ? AND updated_at <= ?", orderId, OrderStatusDelivered, deliveredBefore).
		UpdateColumn("status", OrderStatusSuccess)
	if result.Error != nil {
		tx.Rollback()
		return nil, false, result.Error
	}
	if result.RowsAffected == 0 {
		tx.Rollback()
		return order, false, nil
	}

	err = tx.Model(&User{}).
		Where("id = ?", order.SellerId).
		UpdateColumn("account_balance", gorm.Expr("account_balance + ?", order.TotalAmount)).Error
	if err != nil {
		tx.Rollback()
		return nil, false, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, false, err
	}
	order.Status = OrderStatusSuccess
	return order, true, nil
}

// ids of delivered orders old enough for the maintenance sweep to enqueue
func FindPromotableOrderIds(ctx context.Context, deliveredBefore time.Time) ([]int, error) {

	db := config.GetDB()
	var ids []int

	err := db.WithContext(ctx).Model(&Order{}).
		Where("status = ? AND updated_at <= ?", OrderStatusDelivered, deliveredBefore).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}
