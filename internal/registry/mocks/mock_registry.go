package mocks

import (
	"context"

	"docregistry/internal/hasher"
	"docregistry/internal/registry"

	"github.com/stretchr/testify/mock"
)

type MockRegistry struct {
	mock.Mock
}

func (m *MockRegistry) ExistsByHash(ctx context.Context, hash hasher.Digest) (bool, error) {
	args := m.Called(ctx, hash)
	return args.Bool(0), args.Error(1)
}

func (m *MockRegistry) RecordByID(ctx context.Context, id uint64) (registry.Record, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(registry.Record), args.Error(1)
}

func (m *MockRegistry) IDByHash(ctx context.Context, hash hasher.Digest) (uint64, bool, error) {
	args := m.Called(ctx, hash)
	return args.Get(0).(uint64), args.Bool(1), args.Error(2)
}

func (m *MockRegistry) TotalCount(ctx context.Context) (uint64, error) {
	args := m.Called(ctx)
	return args.Get(0).(uint64), args.Error(1)
}

func (m *MockRegistry) Submit(ctx context.Context, hash hasher.Digest) (registry.Pending, error) {
	args := m.Called(ctx, hash)
	return args.Get(0).(registry.Pending), args.Error(1)
}

func (m *MockRegistry) Confirm(ctx context.Context, p registry.Pending) (registry.Confirmation, error) {
	args := m.Called(ctx, p)
	return args.Get(0).(registry.Confirmation), args.Error(1)
}
