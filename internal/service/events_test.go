package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/meterline/meterline/internal/domain"
	"github.com/meterline/meterline/internal/storage"
)

// MockEventRepository is a mock implementation of storage.EventRepository
type MockEventRepository struct {
	mock.Mock
}

func (m *MockEventRepository) Insert(ctx context.Context, event *domain.CanonicalEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockEventRepository) Get(ctx context.Context, id string) (*domain.CanonicalEvent, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CanonicalEvent), args.Error(1)
}

func (m *MockEventRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockEventRepository) List(ctx context.Context, filter storage.Filter, sortBy storage.Sort, limit, skip int) ([]*domain.CanonicalEvent, error) {
	args := m.Called(ctx, filter, sortBy, limit, skip)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.CanonicalEvent), args.Error(1)
}

func (m *MockEventRepository) Count(ctx context.Context, filter storage.Filter) (int, error) {
	args := m.Called(ctx, filter)
	return args.Int(0), args.Error(1)
}

func (m *MockEventRepository) Aggregate(ctx context.Context, filter storage.Filter, groupBy storage.GroupBy) ([]storage.AggregateRow, error) {
	args := m.Called(ctx, filter, groupBy)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]storage.AggregateRow), args.Error(1)
}

func (m *MockEventRepository) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func TestQueryService_ListEvents_BuildsFilterAndSort(t *testing.T) {
	mockRepo := new(MockEventRepository)
	svc := NewQueryService(mockRepo, zap.NewNop())

	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)

	expectedFilter := storage.Filter{
		ClientID: "client_A",
		Status:   domain.StatusProcessed,
		Metric:   "purchase",
		From:     from,
		To:       to,
	}
	expectedSort := storage.Sort{Field: storage.SortByAmount, Desc: true}

	mockRepo.On("List", mock.Anything, expectedFilter, expectedSort, 10, 5).
		Return([]*domain.CanonicalEvent{{ID: "evt-1"}}, nil)

	events, err := svc.ListEvents(context.Background(), EventQuery{
		ClientID:  "client_A",
		Status:    "processed",
		Metric:    "purchase",
		From:      from,
		To:        to,
		SortField: "amount",
		SortDesc:  true,
		Limit:     10,
		Skip:      5,
	})

	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "evt-1", events[0].ID)
	mockRepo.AssertExpectations(t)
}

func TestQueryService_ListEvents_DefaultsAndCaps(t *testing.T) {
	mockRepo := new(MockEventRepository)
	svc := NewQueryService(mockRepo, zap.NewNop())

	mockRepo.On("List", mock.Anything, storage.Filter{}, storage.Sort{Field: storage.SortByTimestamp}, MaxPageSize, 0).
		Return([]*domain.CanonicalEvent{}, nil)

	_, err := svc.ListEvents(context.Background(), EventQuery{Limit: 100000, Skip: -3})

	require.NoError(t, err)
	mockRepo.AssertExpectations(t)
}

func TestQueryService_ListEvents_InvalidStatus(t *testing.T) {
	mockRepo := new(MockEventRepository)
	svc := NewQueryService(mockRepo, zap.NewNop())

	_, err := svc.ListEvents(context.Background(), EventQuery{Status: "pending"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid status value")
	mockRepo.AssertNotCalled(t, "List")
}

func TestQueryService_ListEvents_InvalidSort(t *testing.T) {
	mockRepo := new(MockEventRepository)
	svc := NewQueryService(mockRepo, zap.NewNop())

	_, err := svc.ListEvents(context.Background(), EventQuery{SortField: "color"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid sort value")
}

func TestQueryService_ListEvents_InvalidTimeRange(t *testing.T) {
	mockRepo := new(MockEventRepository)
	svc := NewQueryService(mockRepo, zap.NewNop())

	from := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := svc.ListEvents(context.Background(), EventQuery{From: from, To: to})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "from must be less than or equal to to")
}

func TestQueryService_CountEvents(t *testing.T) {
	mockRepo := new(MockEventRepository)
	svc := NewQueryService(mockRepo, zap.NewNop())

	mockRepo.On("Count", mock.Anything, storage.Filter{ClientID: "client_A"}).Return(7, nil)

	count, err := svc.CountEvents(context.Background(), EventQuery{ClientID: "client_A"})

	require.NoError(t, err)
	assert.Equal(t, 7, count)
}

func TestQueryService_Aggregate(t *testing.T) {
	mockRepo := new(MockEventRepository)
	svc := NewQueryService(mockRepo, zap.NewNop())

	rows := []storage.AggregateRow{{ClientID: "client_A", TotalAmount: 100, TotalCount: 2}}
	mockRepo.On("Aggregate", mock.Anything, storage.Filter{}, storage.GroupByClient).Return(rows, nil)

	got, err := svc.Aggregate(context.Background(), EventQuery{}, "client")

	require.NoError(t, err)
	assert.Equal(t, rows, got)
}

func TestQueryService_Aggregate_InvalidGroupBy(t *testing.T) {
	mockRepo := new(MockEventRepository)
	svc := NewQueryService(mockRepo, zap.NewNop())

	_, err := svc.Aggregate(context.Background(), EventQuery{}, "week")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid group_by value")
	mockRepo.AssertNotCalled(t, "Aggregate")
}

func TestQueryService_Aggregate_RepositoryError(t *testing.T) {
	mockRepo := new(MockEventRepository)
	svc := NewQueryService(mockRepo, zap.NewNop())

	repoErr := errors.New("iterator fault")
	mockRepo.On("Aggregate", mock.Anything, mock.Anything, mock.Anything).Return(nil, repoErr)

	_, err := svc.Aggregate(context.Background(), EventQuery{}, "metric")

	require.Error(t, err)
	assert.ErrorIs(t, err, repoErr)
}
