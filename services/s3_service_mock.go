package services

import (
	"fmt"
	"mime/multipart"
	"sync"
)

// MockS3Service is an in-memory S3Interface implementation for testing
type MockS3Service struct {
	mu sync.Mutex

	// UploadedKeys records every key handed out by UploadAttachment
	UploadedKeys []string
	// DeletedKeys records every key passed to DeleteAttachment
	DeletedKeys []string

	// UploadError, when set, is returned by UploadAttachment
	UploadError error
	// PresignError, when set, is returned by GetPresignedURL
	PresignError error
}

// NewMockS3Service creates a mock attachment store
func NewMockS3Service() *MockS3Service {
	return &MockS3Service{}
}

// UploadAttachment records the upload and returns a deterministic key
func (m *MockS3Service) UploadAttachment(fileHeader *multipart.FileHeader, contentType string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UploadError != nil {
		return "", m.UploadError
	}
	key := fmt.Sprintf("attachments/mock_%d_%s", len(m.UploadedKeys), fileHeader.Filename)
	m.UploadedKeys = append(m.UploadedKeys, key)
	return key, nil
}

// GetPresignedURL returns a fake URL derived from the key
func (m *MockS3Service) GetPresignedURL(s3Key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.PresignError != nil {
		return "", m.PresignError
	}
	if s3Key == "" {
		return "", nil
	}
	return "https://mock-bucket.s3.amazonaws.com/" + s3Key + "?signature=mock", nil
}

// DeleteAttachment records the deletion
func (m *MockS3Service) DeleteAttachment(s3Key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DeletedKeys = append(m.DeletedKeys, s3Key)
	return nil
}
