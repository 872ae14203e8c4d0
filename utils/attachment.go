package utils

import (
	"fmt"
	"mime/multipart"
	"path/filepath"
	"strings"
)

const (
	// MaxAttachmentSize is 10MB in bytes
	MaxAttachmentSize = 10 * 1024 * 1024
)

// attachmentTypes maps allowed file extensions to their content type and
// whether they render as an image message
var attachmentTypes = map[string]struct {
	ContentType string
	IsImage     bool
}{
	".png":  {"image/png", true},
	".jpg":  {"image/jpeg", true},
	".jpeg": {"image/jpeg", true},
	".webp": {"image/webp", true},
	".pdf":  {"application/pdf", false},
	".txt":  {"text/plain", false},
}

// AttachmentError represents an attachment validation error
type AttachmentError struct {
	Code    string
	Message string
}

func (e *AttachmentError) Error() string {
	return e.Message
}

// ValidateAttachment checks size and extension of an uploaded attachment
// and returns its content type and whether it is an image
func ValidateAttachment(fileHeader *multipart.FileHeader) (contentType string, isImage bool, err error) {
	if fileHeader.Size > MaxAttachmentSize {
		return "", false, &AttachmentError{
			Code:    "FILE_TOO_LARGE",
			Message: fmt.Sprintf("File size exceeds maximum allowed size of %d MB", MaxAttachmentSize/(1024*1024)),
		}
	}

	ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
	spec, ok := attachmentTypes[ext]
	if !ok {
		return "", false, &AttachmentError{
			Code:    "INVALID_FILE_FORMAT",
			Message: fmt.Sprintf("File format %q is not allowed", ext),
		}
	}
	return spec.ContentType, spec.IsImage, nil
}
