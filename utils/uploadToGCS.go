package utils

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/disintegration/imaging"
	"google.golang.org/api/option"
)

const thumbnailWidth = 320

// getGoogleClient initializes a Google Cloud Storage client
func getGoogleClient(ctx context.Context) (*storage.Client, error) {
	// Prefer ADC (Cloud Run service account / GOOGLE_APPLICATION_CREDENTIALS).
	// If you need to provide explicit JSON (e.g. locally), set GCS_CREDENTIALS_JSON.
	if credJSON := os.Getenv("GCS_CREDENTIALS_JSON"); strings.TrimSpace(credJSON) != "" {
		client, err := storage.NewClient(ctx, option.WithCredentialsJSON([]byte(credJSON)))
		if err != nil {
			return nil, err
		}
		return client, nil
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	return client, nil
}

func publicObjectURL(bucket, object string) string {
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", bucket, object)
}

func writeObject(ctx context.Context, client *storage.Client, bucket, object, contentType string, data []byte) error {
	wc := client.Bucket(bucket).Object(object).NewWriter(ctx)
	wc.ContentType = contentType
	wc.Metadata = map[string]string{
		"x-goog-acl": "public-read",
	}
	if _, err := wc.Write(data); err != nil {
		return err
	}
	return wc.Close()
}

// UploadImage stores an uploaded image plus a generated thumbnail and returns
// both public URLs. The original bytes are uploaded untouched; the thumbnail
// is re-encoded as JPEG.
func UploadImage(ctx context.Context, filename string, file io.Reader) (string, string, error) {
	bucketName := os.Getenv("GCS_BUCKET")
	if bucketName == "" {
		return "", "", errors.New("GCS_BUCKET is required")
	}

	data, err := io.ReadAll(file)
	if err != nil {
		return "", "", fmt.Errorf("failed to read file content: %v", err)
	}

	mimeType := http.DetectContentType(data)
	allowed := map[string]bool{
		"image/jpeg": true,
		"image/png":  true,
		"image/gif":  true,
		"image/webp": true,
	}
	if !allowed[mimeType] {
		return "", "", fmt.Errorf("unsupported image type %q", mimeType)
	}

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return "", "", fmt.Errorf("failed to decode image: %v", err)
	}
	thumb := imaging.Resize(img, thumbnailWidth, 0, imaging.Lanczos)
	var thumbBuf bytes.Buffer
	if err := imaging.Encode(&thumbBuf, thumb, imaging.JPEG); err != nil {
		return "", "", fmt.Errorf("failed to encode thumbnail: %v", err)
	}

	client, err := getGoogleClient(ctx)
	if err != nil {
		return "", "", err
	}
	defer client.Close()

	ext := filepath.Ext(filename)
	base := GenerateUniqueFilename()
	objectName := "images/" + base + ext
	thumbName := "thumbnails/" + base + ".jpg"

	if err := writeObject(ctx, client, bucketName, objectName, mimeType, data); err != nil {
		return "", "", err
	}
	if err := writeObject(ctx, client, bucketName, thumbName, "image/jpeg", thumbBuf.Bytes()); err != nil {
		return "", "", err
	}

	return publicObjectURL(bucketName, objectName), publicObjectURL(bucketName, thumbName), nil
}
