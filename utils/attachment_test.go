package utils

import (
	"mime/multipart"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fileHeader(name string, size int64) *multipart.FileHeader {
	return &multipart.FileHeader{Filename: name, Size: size}
}

func TestValidateAttachment(t *testing.T) {
	tests := []struct {
		name        string
		fileName    string
		size        int64
		contentType string
		isImage     bool
		wantErr     bool
	}{
		{"png image", "photo.png", 1024, "image/png", true, false},
		{"jpeg image", "photo.JPG", 1024, "image/jpeg", true, false},
		{"webp image", "sticker.webp", 1024, "image/webp", true, false},
		{"pdf document", "itinerary.pdf", 1024, "application/pdf", false, false},
		{"text document", "notes.txt", 1024, "text/plain", false, false},
		{"executable", "virus.exe", 1024, "", false, true},
		{"no extension", "README", 1024, "", false, true},
		{"too large", "huge.png", MaxAttachmentSize + 1, "", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			contentType, isImage, err := ValidateAttachment(fileHeader(tt.fileName, tt.size))
			if tt.wantErr {
				require.Error(t, err)
				var attachmentErr *AttachmentError
				assert.ErrorAs(t, err, &attachmentErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.contentType, contentType)
			assert.Equal(t, tt.isImage, isImage)
		})
	}
}
