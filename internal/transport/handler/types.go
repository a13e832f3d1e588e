package handler

import (
	"time"

	"github.com/ryan4259/r2-image-compressor/internal/entities"
)

type UploadImageParams struct {
	// Optional owner scoping for the derived keys, from the ownerId form field.
	OwnerID string `validate:"omitempty,max=64"`
}

type UploadImageResponse struct {
	Success  bool   `json:"success"`
	FullKey  string `json:"fullKey"`
	ThumbKey string `json:"thumbKey"`
	FullURL  string `json:"fullUrl,omitempty"`
	ThumbURL string `json:"thumbUrl,omitempty"`
}

type IssueTokenRequest struct {
	Key string `json:"key"`
}

type IssueTokenResponse struct {
	Success   bool      `json:"success"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type ListImagesResponse struct {
	Success bool             `json:"success"`
	Images  []entities.Image `json:"images"`
}

type HealthResponse struct {
	Status string `json:"status"`
	DB     string `json:"db,omitempty"`
	Redis  string `json:"redis,omitempty"`
}
