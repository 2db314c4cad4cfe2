package models

import (
	"context"
	"time"

	"github.com/pawlink/petcircle_backend/config"
	"github.com/pawlink/petcircle_backend/utils"
	"gorm.io/gorm"
)

type AdoptionRequest struct {
	ID                 int           `gorm:"primary_key" json:"id"`
	RequesterId        int           `gorm:"not null;index:idx_request_requester,priority:1" json:"requester_id"`
	Requester          *User         `gorm:"foreignKey:RequesterId" json:"requester,omitempty"`
	PostId             int           `gorm:"not null;index;index:idx_request_requester,priority:2" json:"post_id"`
	Post               *AdoptionPost `gorm:"foreignKey:PostId" json:"post,omitempty"`
	Type               RequestType   `gorm:"type:enum('reclaim-pet','adopt-pet');not null" json:"type"`
	Status             RequestStatus `gorm:"type:enum('pending','approved','rejected');default:'pending';index" json:"status"`
	DescriptionForPet  string        `gorm:"type:text" json:"description_for_pet"`
	DescriptionForUser string        `gorm:"type:text" json:"description_for_user"`
	ContactInfo        string        `gorm:"size:100;not null" json:"contact_info"`
	Images             []Image       `gorm:"polymorphic:Reference;polymorphicValue:adoption_requests" json:"images"`
	CreatedAt          time.Time     `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time     `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewAdoptionRequest struct {
	PostId             int    `form:"post_id" json:"post_id" binding:"required"`
	Type               string `form:"type" json:"type" binding:"required"`
	DescriptionForPet  string `form:"description_for_pet" json:"description_for_pet"`
	DescriptionForUser string `form:"description_for_user" json:"description_for_user"`
	ContactInfo        string `form:"contact_info" json:"contact_info" binding:"required"`
}

func GetAdoptionRequest(ctx context.Context, id int) (*AdoptionRequest, error) {
	return utils.FetchModel[AdoptionRequest](ctx, id, "Images", "Requester", "Post")
}

// requests on a post, newest first
func GetRequestsForPost(ctx context.Context, postId int) ([]*AdoptionRequest, error) {

	db := config.GetDB()
	var results []*AdoptionRequest

	err := db.WithContext(ctx).Model(&AdoptionRequest{}).
		Preload("Images").Preload("Requester").
		Where("post_id = ?", postId).
		Order("id DESC").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	for _, r := range results {
		if r.Requester != nil {
			r.Requester.PrepareGive()
		}
	}
	return results, nil
}

// the currently approved request on a post, if any (at most one by invariant)
func FindApprovedRequestForPost(ctx context.Context, postId int, excludeRequestId int) (*AdoptionRequest, error) {

	db := config.GetDB()
	var result AdoptionRequest

	err := db.WithContext(ctx).Model(&AdoptionRequest{}).
		Where("post_id = ? AND status = ? AND id != ?", postId, RequestStatusApproved, excludeRequestId).
		Take(&result).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &result, nil
}

// count of {pending|approved} requests by a requester on a post
func CountActiveRequests(ctx context.Context, requesterId int, postId int) (int64, error) {
	return utils.ResourceCountWhere[AdoptionRequest](ctx,
		"requester_id = ? AND post_id = ? AND status IN ?",
		requesterId, postId, []RequestStatus{RequestStatusPending, RequestStatusApproved})
}
