package models

import (
	"context"
	"mime/multipart"
	"time"

	"github.com/pawlink/petcircle_backend/config"
	"github.com/pawlink/petcircle_backend/utils"
)

type LostPetPost struct {
	ID           int       `gorm:"primary_key" json:"id"`
	PosterId     int       `gorm:"not null;index" json:"poster_id"`
	Poster       *User     `gorm:"foreignKey:PosterId" json:"poster,omitempty"`
	PetType      string    `gorm:"size:50;not null;index" json:"pet_type"`
	LastSeenCity string    `gorm:"size:100;index" json:"last_seen_city"`
	Description  string    `gorm:"type:text" json:"description"`
	Images       []Image   `gorm:"polymorphic:Reference;polymorphicValue:lost_pet_posts" json:"images"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewLostPetPost struct {
	PetType      string `form:"pet_type" json:"pet_type" binding:"required"`
	LastSeenCity string `form:"last_seen_city" json:"last_seen_city" binding:"required"`
	Description  string `form:"description" json:"description"`
}

func CreateLostPetPost(ctx context.Context, input *NewLostPetPost, files []*multipart.FileHeader) (*LostPetPost, error) {

	posterId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || posterId == 0 {
		return nil, utils.NewSessionError("user id is required", nil)
	}

	uploads, err := UploadFiles(ctx, files)
	if err != nil {
		return nil, utils.NewInternalError("failed to upload images", err)
	}

	db := config.GetDB()
	post := LostPetPost{
		PosterId:     posterId,
		PetType:      input.PetType,
		LastSeenCity: input.LastSeenCity,
		Description:  input.Description,
	}

	tx := db.WithContext(ctx).Begin()
	if err := tx.Create(&post).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if _, err := SaveImages(tx, uploads, ImageRefLostPetPost, post.ID); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	return utils.FetchModel[LostPetPost](ctx, post.ID, "Images")
}
