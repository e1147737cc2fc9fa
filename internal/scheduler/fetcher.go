package scheduler

import (
	"context"

	"github.com/flowsim/flowsim/internal/repository"
	"github.com/flowsim/flowsim/pkg/model"
)

// RepositoryTaskFetcher implements TaskFetcher using repository interfaces.
type RepositoryTaskFetcher struct {
	requestRepo repository.RequestRepository
}

// NewRepositoryTaskFetcher creates a new RepositoryTaskFetcher.
func NewRepositoryTaskFetcher(requestRepo repository.RequestRepository) *RepositoryTaskFetcher {
	return &RepositoryTaskFetcher{requestRepo: requestRepo}
}

// FetchPendingTasks returns pending simulation requests to be processed.
func (f *RepositoryTaskFetcher) FetchPendingTasks(ctx context.Context, limit int) ([]*Task, error) {
	reqs, err := f.requestRepo.GetPendingRequests(ctx, limit)
	if err != nil {
		return nil, err
	}

	result := make([]*Task, len(reqs))
	for i, r := range reqs {
		result[i] = convertModelTask(r)
	}

	return result, nil
}

// LockTask attempts to lock a request for simulation.
func (f *RepositoryTaskFetcher) LockTask(ctx context.Context, taskID int64) (bool, error) {
	return f.requestRepo.LockRequestForRun(ctx, taskID)
}

// UpdateTaskStatus updates the request status.
func (f *RepositoryTaskFetcher) UpdateTaskStatus(ctx context.Context, taskID int64, status model.JobStatus, info string) error {
	if info != "" {
		return f.requestRepo.UpdateStatusWithInfo(ctx, taskID, status, info)
	}
	return f.requestRepo.UpdateStatus(ctx, taskID, status)
}

// convertModelTask converts a model.SimulationRequest to a scheduler.Task.
func convertModelTask(r *model.SimulationRequest) *Task {
	task := &Task{
		ID:          r.ID,
		UUID:        r.RequestUUID,
		Topology:    r.Topology,
		Workload:    r.Workload,
		RoutingSeed: r.RoutingSeed,
		Detailed:    r.Detailed,
		UserName:    r.UserName,
		COSBucket:   r.COSBucket,
		Priority:    0,
	}

	if r.IsHighPriority() {
		task.Priority = 1
	}

	return task
}
