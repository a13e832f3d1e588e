package pipeline

import (
	"errors"
	"fmt"
)

// DefaultMaxUploadBytes caps a single upload when no limit is configured.
const DefaultMaxUploadBytes = 15 << 20 // 15 MiB

var (
	ErrEmptyUpload     = errors.New("empty upload")
	ErrUnsupportedType = errors.New("unsupported content type")
	ErrPayloadTooLarge = errors.New("payload too large")
)

// allowedTypes lists the declared content types an upload may carry. The
// declared type is what the client claims; whether the bytes actually decode
// is the transcoder's call.
var allowedTypes = map[string]struct{}{
	"image/jpeg": {},
	"image/png":  {},
	"image/webp": {},
	"image/avif": {},
	"image/heic": {},
	"image/heif": {},
}

// Validate decides whether an upload is acceptable before any transcode or
// storage work happens. An empty declared type is tolerated; the decode step
// catches mislabeled or unreadable bytes.
func Validate(declaredType string, data []byte, maxBytes int64) error {
	if len(data) == 0 {
		return ErrEmptyUpload
	}
	if declaredType != "" {
		if _, ok := allowedTypes[declaredType]; !ok {
			return fmt.Errorf("%w: %q", ErrUnsupportedType, declaredType)
		}
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	if int64(len(data)) > maxBytes {
		return fmt.Errorf("%w: %d bytes exceeds limit of %d", ErrPayloadTooLarge, len(data), maxBytes)
	}
	return nil
}
