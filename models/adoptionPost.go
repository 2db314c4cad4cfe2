package models

import (
	"context"
	"mime/multipart"
	"time"

	"github.com/pawlink/petcircle_backend/config"
	"github.com/pawlink/petcircle_backend/utils"
)

type AdoptionPost struct {
	ID        int        `gorm:"primary_key" json:"id"`
	PosterId  int        `gorm:"not null;index" json:"poster_id"`
	Poster    *User      `gorm:"foreignKey:PosterId" json:"poster,omitempty"`
	PetName   string     `gorm:"size:100;not null" json:"pet_name"`
	PetType   string     `gorm:"size:50;not null;index" json:"pet_type"`
	Status    PostStatus `gorm:"type:enum('available','adopted');default:'available'" json:"status"`
	Reason    string     `gorm:"type:text" json:"reason"`
	City      string     `gorm:"size:100;index" json:"city"`
	Images    []Image    `gorm:"polymorphic:Reference;polymorphicValue:adoption_posts" json:"images"`
	CreatedAt time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewAdoptionPost struct {
	PetName string `form:"pet_name" json:"pet_name" binding:"required"`
	PetType string `form:"pet_type" json:"pet_type" binding:"required"`
	Reason  string `form:"reason" json:"reason"`
	City    string `form:"city" json:"city" binding:"required"`
}

func CreateAdoptionPost(ctx context.Context, input *NewAdoptionPost, files []*multipart.FileHeader) (*AdoptionPost, error) {

	posterId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || posterId == 0 {
		return nil, utils.NewSessionError("user id is required", nil)
	}

	uploads, err := UploadFiles(ctx, files)
	if err != nil {
		return nil, utils.NewInternalError("failed to upload images", err)
	}

	db := config.GetDB()
	post := AdoptionPost{
		PosterId: posterId,
		PetName:  input.PetName,
		PetType:  input.PetType,
		Status:   PostStatusAvailable,
		Reason:   input.Reason,
		City:     input.City,
	}

	tx := db.WithContext(ctx).Begin()
	if err := tx.Create(&post).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if _, err := SaveImages(tx, uploads, ImageRefAdoptionPost, post.ID); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	return GetAdoptionPost(ctx, post.ID)
}

func GetAdoptionPost(ctx context.Context, id int) (*AdoptionPost, error) {
	return utils.FetchModel[AdoptionPost](ctx, id, "Images", "Poster")
}

func GetAdoptionPosts(ctx context.Context, city string, petType string) ([]*AdoptionPost, error) {

	db := config.GetDB()
	var results []*AdoptionPost

	dbCtx := db.WithContext(ctx).Model(&AdoptionPost{}).Preload("Images")
	if city != "" {
		dbCtx = dbCtx.Where("city = ?", city)
	}
	if petType != "" {
		dbCtx = dbCtx.Where("pet_type = ?", petType)
	}
	err := dbCtx.Order("id DESC").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
