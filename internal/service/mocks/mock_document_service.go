package mocks

import (
	"context"
	"io"

	"docregistry/internal/model"

	"github.com/stretchr/testify/mock"
)

type MockDocumentService struct {
	mock.Mock
}

func (m *MockDocumentService) Register(ctx context.Context, r io.Reader, fileName, contentType string, size int64) (*model.DocumentRecord, error) {
	args := m.Called(ctx, r, fileName, contentType, size)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.DocumentRecord), args.Error(1)
}

func (m *MockDocumentService) Verify(ctx context.Context, r io.Reader, contentType string, size int64) (*model.VerificationResult, error) {
	args := m.Called(ctx, r, contentType, size)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.VerificationResult), args.Error(1)
}

func (m *MockDocumentService) Get(ctx context.Context, id string) (*model.DocumentRecord, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.DocumentRecord), args.Error(1)
}

func (m *MockDocumentService) List(ctx context.Context, page, limit int) (*model.DocumentPage, error) {
	args := m.Called(ctx, page, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.DocumentPage), args.Error(1)
}

func (m *MockDocumentService) Health(ctx context.Context) model.HealthStatus {
	args := m.Called(ctx)
	return args.Get(0).(model.HealthStatus)
}
