package mocks

import (
	"context"
	"time"

	"docregistry/internal/model"

	"github.com/stretchr/testify/mock"
)

type MockRegistrationRepository struct {
	mock.Mock
}

func (m *MockRegistrationRepository) Create(ctx context.Context, r *model.Registration) error {
	args := m.Called(ctx, r)
	return args.Error(0)
}

func (m *MockRegistrationRepository) MarkSubmitted(ctx context.Context, attemptID, txHash string) error {
	args := m.Called(ctx, attemptID, txHash)
	return args.Error(0)
}

func (m *MockRegistrationRepository) MarkConfirmed(ctx context.Context, attemptID, documentID string, registeredAt int64) error {
	args := m.Called(ctx, attemptID, documentID, registeredAt)
	return args.Error(0)
}

func (m *MockRegistrationRepository) MarkAborted(ctx context.Context, attemptID string, state model.RegistrationState, reason string) error {
	args := m.Called(ctx, attemptID, state, reason)
	return args.Error(0)
}

func (m *MockRegistrationRepository) MarkOrphaned(ctx context.Context, attemptID, reason string) error {
	args := m.Called(ctx, attemptID, reason)
	return args.Error(0)
}

func (m *MockRegistrationRepository) FindConfirmedByDocumentID(ctx context.Context, documentID string) (*model.Registration, error) {
	args := m.Called(ctx, documentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Registration), args.Error(1)
}

func (m *MockRegistrationRepository) ListUnsettled(ctx context.Context, olderThan time.Time, limit int) ([]model.Registration, error) {
	args := m.Called(ctx, olderThan, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Registration), args.Error(1)
}
