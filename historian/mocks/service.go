package mocks

import (
	"context"

	"github.com/absmach/sparkpipe/historian"
	"github.com/stretchr/testify/mock"
)

var _ historian.Service = (*Service)(nil)

// Service is a mock implementation of the historian.Service interface.
type Service struct {
	mock.Mock
}

// NewService creates a mock whose expectations are asserted on test cleanup.
func NewService(t interface {
	mock.TestingT
	Cleanup(func())
},
) *Service {
	m := &Service{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}

func (m *Service) Topology(ctx context.Context, device string) (historian.Topology, error) {
	args := m.Called(ctx, device)

	return args.Get(0).(historian.Topology), args.Error(1)
}

func (m *Service) CurrentTime(ctx context.Context) (string, error) {
	args := m.Called(ctx)

	return args.String(0), args.Error(1)
}

func (m *Service) CurrentTagValue(ctx context.Context, device, tag string) (historian.TagValue, error) {
	args := m.Called(ctx, device, tag)

	return args.Get(0).(historian.TagValue), args.Error(1)
}

func (m *Service) Status(ctx context.Context, req historian.Request) (historian.Result, error) {
	args := m.Called(ctx, req)

	return args.Get(0).(historian.Result), args.Error(1)
}

func (m *Service) StatusCount(ctx context.Context, req historian.Request) (uint64, error) {
	args := m.Called(ctx, req)

	return args.Get(0).(uint64), args.Error(1)
}

func (m *Service) TagHistory(ctx context.Context, req historian.Request) (historian.Result, error) {
	args := m.Called(ctx, req)

	return args.Get(0).(historian.Result), args.Error(1)
}

func (m *Service) TagHistoryCount(ctx context.Context, req historian.Request) (uint64, error) {
	args := m.Called(ctx, req)

	return args.Get(0).(uint64), args.Error(1)
}
