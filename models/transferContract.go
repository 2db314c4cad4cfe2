package models

import (
	"context"
	"time"

	"github.com/pawlink/petcircle_backend/config"
	"github.com/pawlink/petcircle_backend/utils"
	"gorm.io/gorm"
)

type TransferContract struct {
	ID                int              `gorm:"primary_key" json:"id"`
	PostId            int              `gorm:"not null;index" json:"post_id"`
	Post              *AdoptionPost    `gorm:"foreignKey:PostId" json:"post,omitempty"`
	RequestId         int              `gorm:"not null;index" json:"request_id"`
	Request           *AdoptionRequest `gorm:"foreignKey:RequestId" json:"request,omitempty"`
	GiverId           int              `gorm:"not null;index" json:"giver_id"`
	ReceiverId        int              `gorm:"not null;index" json:"receiver_id"`
	GiverConfirmed    bool             `gorm:"not null;default:false" json:"giver_confirmed"`
	ReceiverConfirmed bool             `gorm:"not null;default:false" json:"receiver_confirmed"`
	Status            ContractStatus   `gorm:"type:enum('pending','confirmed','cancelled');default:'pending'" json:"status"`
	CreatedAt         time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

func GetTransferContract(ctx context.Context, id int) (*TransferContract, error) {
	return utils.FetchModel[TransferContract](ctx, id, "Post", "Request")
}

// contract created exactly when a request is approved
func NewContractForApproval(tx *gorm.DB, post *AdoptionPost, request *AdoptionRequest) (*TransferContract, error) {

	contract := TransferContract{
		PostId:            post.ID,
		RequestId:         request.ID,
		GiverId:           post.PosterId,
		ReceiverId:        request.RequesterId,
		GiverConfirmed:    false,
		ReceiverConfirmed: false,
		Status:            ContractStatusPending,
	}
	if err := tx.Create(&contract).Error; err != nil {
		return nil, err
	}
	return &contract, nil
}

// a contract never outlives the approval that created it
func DeleteContractForRequest(tx *gorm.DB, requestId int) error {
	return tx.Where("request_id = ?", requestId).Delete(&TransferContract{}).Error
}

func FindContractForRequest(ctx context.Context, requestId int) (*TransferContract, error) {

	db := config.GetDB()
	var result TransferContract

	err := db.WithContext(ctx).Model(&TransferContract{}).
		Where("request_id = ?", requestId).Take(&result).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &result, nil
}
