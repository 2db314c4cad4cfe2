package models

import (
	"context"
	"mime/multipart"
	"sync"

	"github.com/pawlink/petcircle_backend/config"
	"github.com/pawlink/petcircle_backend/utils"
	"gorm.io/gorm"
)

type Image struct {
	ID            int    `gorm:"primary_key" json:"id"`
	ImageUrl      string `json:"image_url"`
	ThumbnailUrl  string `json:"thumbnail_url"`
	ReferenceType string `gorm:"size:50;index:idx_image_ref,priority:1" json:"reference_type"`
	ReferenceID   int    `gorm:"index:idx_image_ref,priority:2" json:"reference_id"`
}

// reference types for Image rows
const (
	ImageRefAdoptionPost    = "adoption_posts"
	ImageRefLostPetPost     = "lost_pet_posts"
	ImageRefAdoptionRequest = "adoption_requests"
)

type UploadResponse struct {
	ImageUrl     string `json:"image_url"`
	ThumbnailUrl string `json:"thumbnail_url"`
}

// UploadFiles pushes every file to cloud storage concurrently and joins the
// results. Order of the responses matches the order of the inputs.
func UploadFiles(ctx context.Context, files []*multipart.FileHeader) ([]*UploadResponse, error) {

	responses := make([]*UploadResponse, len(files))
	errs := make([]error, len(files))

	var wg sync.WaitGroup
	for i, fh := range files {
		wg.Add(1)
		go func(i int, fh *multipart.FileHeader) {
			defer wg.Done()
			f, err := fh.Open()
			if err != nil {
				errs[i] = err
				return
			}
			defer f.Close()
			imageUrl, thumbUrl, err := utils.UploadImage(ctx, fh.Filename, f)
			if err != nil {
				errs[i] = err
				return
			}
			responses[i] = &UploadResponse{ImageUrl: imageUrl, ThumbnailUrl: thumbUrl}
		}(i, fh)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return responses, nil
}

// SaveImages persists uploaded image URLs against their owning record.
func SaveImages(tx *gorm.DB, uploads []*UploadResponse, referenceType string, referenceId int) ([]*Image, error) {

	if len(uploads) == 0 {
		return nil, nil
	}

	var images []*Image
	for _, u := range uploads {
		images = append(images, &Image{
			ImageUrl:      u.ImageUrl,
			ThumbnailUrl:  u.ThumbnailUrl,
			ReferenceType: referenceType,
			ReferenceID:   referenceId,
		})
	}
	if err := tx.Create(&images).Error; err != nil {
		return nil, err
	}
	return images, nil
}

func GetImagesFor(ctx context.Context, referenceType string, referenceId int) ([]*Image, error) {

	db := config.GetDB()
	var results []*Image

	err := db.WithContext(ctx).Model(&Image{}).
		Where("reference_type = ? AND reference_id = ?", referenceType, referenceId).
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
