package compose

import (
	"net/http"
	"strings"
)

const (
	// MaxImageBytes is the largest image accepted for upload
	MaxImageBytes = 5 * 1024 * 1024

	minTitleLen       = 3
	minDescriptionLen = 5
	minLocationLen    = 3
)

// ValidationError is a client-side check that failed before any network call.
// Its message is meant to be shown next to the offending field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Image is a picked image file
type Image struct {
	Name string
	Data []byte
}

// ContentType sniffs the MIME type of the image data
func (i Image) ContentType() string {
	return http.DetectContentType(i.Data)
}

// ValidateImage checks type and size of an image
func ValidateImage(img Image) error {
	if len(img.Data) == 0 || !strings.HasPrefix(img.ContentType(), "image/") {
		return &ValidationError{Field: "image", Message: "Please select a valid image file."}
	}
	if len(img.Data) > MaxImageBytes {
		return &ValidationError{Field: "image", Message: "Image too large (max 5MB)."}
	}
	return nil
}

// CanGenerate reports whether an AI draft can be requested
func CanGenerate(location string, hasImage, signedIn bool) bool {
	return len(strings.TrimSpace(location)) >= minLocationLen && hasImage && signedIn
}

// ValidatePublish checks the form before publishing
func ValidatePublish(f Form) error {
	switch {
	case len(strings.TrimSpace(f.Title)) < minTitleLen:
		return &ValidationError{Field: "title", Message: "Title must be at least 3 characters."}
	case len(strings.TrimSpace(f.Description)) < minDescriptionLen:
		return &ValidationError{Field: "description", Message: "Description must be at least 5 characters."}
	case len(strings.TrimSpace(f.Location)) < minLocationLen:
		return &ValidationError{Field: "location", Message: "Location is required."}
	case f.ImageURL == "":
		return &ValidationError{Field: "image", Message: "Upload an image before publishing."}
	}
	return nil
}
