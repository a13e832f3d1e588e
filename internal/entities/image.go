package entities

import "time"

// Image is one completed upload: both derivative keys plus the bookkeeping
// exposed when listing uploads.
type Image struct {
	ID        int64     `json:"id"`
	OwnerID   *string   `json:"owner_id,omitempty"`
	BaseName  string    `json:"base_name"`
	FullKey   string    `json:"full_key"`
	ThumbKey  string    `json:"thumb_key"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	SizeBytes int64     `json:"size_bytes"`
	CreatedAt time.Time `json:"created_at"`
}
