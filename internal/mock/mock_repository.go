package mock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/flowsim/flowsim/pkg/model"
)

// MockRequestRepository is a mock implementation of the RequestRepository interface.
type MockRequestRepository struct {
	mock.Mock
}

// GetPendingRequests mocks the GetPendingRequests method.
func (m *MockRequestRepository) GetPendingRequests(ctx context.Context, limit int) ([]*model.SimulationRequest, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.SimulationRequest), args.Error(1)
}

// GetRequestByID mocks the GetRequestByID method.
func (m *MockRequestRepository) GetRequestByID(ctx context.Context, id int64) (*model.SimulationRequest, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.SimulationRequest), args.Error(1)
}

// GetRequestByUUID mocks the GetRequestByUUID method.
func (m *MockRequestRepository) GetRequestByUUID(ctx context.Context, uuid string) (*model.SimulationRequest, error) {
	args := m.Called(ctx, uuid)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.SimulationRequest), args.Error(1)
}

// UpdateStatus mocks the UpdateStatus method.
func (m *MockRequestRepository) UpdateStatus(ctx context.Context, id int64, status model.JobStatus) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

// UpdateStatusWithInfo mocks the UpdateStatusWithInfo method.
func (m *MockRequestRepository) UpdateStatusWithInfo(ctx context.Context, id int64, status model.JobStatus, info string) error {
	args := m.Called(ctx, id, status, info)
	return args.Error(0)
}

// LockRequestForRun mocks the LockRequestForRun method.
func (m *MockRequestRepository) LockRequestForRun(ctx context.Context, id int64) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

// ListRecentRequests mocks the ListRecentRequests method.
func (m *MockRequestRepository) ListRecentRequests(ctx context.Context, limit, offset int) ([]*model.SimulationRequest, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.SimulationRequest), args.Error(1)
}

// ExpectGetPendingRequests sets up an expectation for GetPendingRequests.
func (m *MockRequestRepository) ExpectGetPendingRequests(limit int, reqs []*model.SimulationRequest, err error) *mock.Call {
	return m.On("GetPendingRequests", mock.Anything, limit).Return(reqs, err)
}

// ExpectUpdateStatus sets up an expectation for UpdateStatus.
func (m *MockRequestRepository) ExpectUpdateStatus(id int64, status model.JobStatus, err error) *mock.Call {
	return m.On("UpdateStatus", mock.Anything, id, status).Return(err)
}

// ExpectLockRequestForRun sets up an expectation for LockRequestForRun.
func (m *MockRequestRepository) ExpectLockRequestForRun(id int64, success bool, err error) *mock.Call {
	return m.On("LockRequestForRun", mock.Anything, id).Return(success, err)
}

// ExpectListRecentRequests sets up an expectation for ListRecentRequests.
func (m *MockRequestRepository) ExpectListRecentRequests(limit, offset int, reqs []*model.SimulationRequest, err error) *mock.Call {
	return m.On("ListRecentRequests", mock.Anything, limit, offset).Return(reqs, err)
}

// MockRunRepository is a mock implementation of the RunRepository interface.
type MockRunRepository struct {
	mock.Mock
}

// SaveRun mocks the SaveRun method.
func (m *MockRunRepository) SaveRun(ctx context.Context, run *model.SimulationResult) error {
	args := m.Called(ctx, run)
	return args.Error(0)
}

// GetRunByRequestUUID mocks the GetRunByRequestUUID method.
func (m *MockRunRepository) GetRunByRequestUUID(ctx context.Context, requestUUID string) (*model.SimulationResult, error) {
	args := m.Called(ctx, requestUUID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.SimulationResult), args.Error(1)
}

// UpdateRun mocks the UpdateRun method.
func (m *MockRunRepository) UpdateRun(ctx context.Context, run *model.SimulationResult) error {
	args := m.Called(ctx, run)
	return args.Error(0)
}

// ExpectSaveRun sets up an expectation for SaveRun.
func (m *MockRunRepository) ExpectSaveRun(err error) *mock.Call {
	return m.On("SaveRun", mock.Anything, mock.Anything).Return(err)
}
