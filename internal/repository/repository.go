// Package repository provides database abstraction for the simulation service.
package repository

import (
	"context"

	"github.com/flowsim/flowsim/pkg/model"
)

// RequestRepository defines the interface for SimulationRequest database operations.
type RequestRepository interface {
	// GetPendingRequests retrieves requests that are pending simulation.
	GetPendingRequests(ctx context.Context, limit int) ([]*model.SimulationRequest, error)

	// GetRequestByID retrieves a request by its ID.
	GetRequestByID(ctx context.Context, id int64) (*model.SimulationRequest, error)

	// GetRequestByUUID retrieves a request by its UUID.
	GetRequestByUUID(ctx context.Context, uuid string) (*model.SimulationRequest, error)

	// UpdateStatus updates the job status of a request.
	UpdateStatus(ctx context.Context, id int64, status model.JobStatus) error

	// UpdateStatusWithInfo updates the job status with additional info.
	UpdateStatusWithInfo(ctx context.Context, id int64, status model.JobStatus, info string) error

	// LockRequestForRun attempts to lock a request for simulation (prevents concurrent processing).
	LockRequestForRun(ctx context.Context, id int64) (bool, error)

	// ListRecentRequests retrieves the most recently created requests, newest first, for browsing.
	ListRecentRequests(ctx context.Context, limit, offset int) ([]*model.SimulationRequest, error)
}

// RunRepository defines the interface for persisted SimulationRun operations.
type RunRepository interface {
	// SaveRun saves a completed simulation run to the database.
	SaveRun(ctx context.Context, run *model.SimulationResult) error

	// GetRunByRequestUUID retrieves the simulation run for a request.
	GetRunByRequestUUID(ctx context.Context, requestUUID string) (*model.SimulationResult, error)

	// UpdateRun updates an existing simulation run record.
	UpdateRun(ctx context.Context, run *model.SimulationResult) error
}
