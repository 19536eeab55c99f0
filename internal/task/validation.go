package task

import (
	"mime"
	"path/filepath"
	"strings"
)

// Photo is an image attached to a task, either on creation (before) or on
// completion (after).
type Photo struct {
	Filename    string
	ContentType string
	Data        []byte
}

var allowedPhotoExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

var allowedPhotoMimeTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
}

// ValidatePhoto checks size, extension and MIME type before any upload.
func ValidatePhoto(p Photo, maxSize int64) error {
	if len(p.Data) == 0 {
		return ErrEmptyPhoto
	}
	if maxSize > 0 && int64(len(p.Data)) > maxSize {
		return ErrPhotoTooLarge
	}

	ext := strings.ToLower(filepath.Ext(p.Filename))
	if !allowedPhotoExtensions[ext] {
		return ErrInvalidPhotoType
	}

	mediaType, _, err := mime.ParseMediaType(p.ContentType)
	if err != nil || !allowedPhotoMimeTypes[mediaType] {
		return ErrInvalidPhotoType
	}
	return nil
}
