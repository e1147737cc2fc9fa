package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/flowsim/flowsim/pkg/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormRequestRepository implements RequestRepository using GORM.
type GormRequestRepository struct {
	db *gorm.DB
}

// NewGormRequestRepository creates a new GormRequestRepository.
func NewGormRequestRepository(db *gorm.DB) *GormRequestRepository {
	return &GormRequestRepository{db: db}
}

// GetPendingRequests retrieves requests that are pending simulation.
func (r *GormRequestRepository) GetPendingRequests(ctx context.Context, limit int) ([]*model.SimulationRequest, error) {
	var rows []SimulationRequestRow

	err := r.db.WithContext(ctx).
		Where("status = ?", model.JobStatusPending).
		Order("priority DESC, id ASC").
		Limit(limit).
		Find(&rows).Error

	if err != nil {
		return nil, fmt.Errorf("failed to query pending requests: %w", err)
	}

	result := make([]*model.SimulationRequest, len(rows))
	for i := range rows {
		result[i] = rows[i].ToModel()
	}

	return result, nil
}

// GetRequestByID retrieves a request by its ID.
func (r *GormRequestRepository) GetRequestByID(ctx context.Context, id int64) (*model.SimulationRequest, error) {
	var row SimulationRequestRow

	err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("request not found: %d", id)
		}
		return nil, fmt.Errorf("failed to get request: %w", err)
	}

	return row.ToModel(), nil
}

// GetRequestByUUID retrieves a request by its UUID.
func (r *GormRequestRepository) GetRequestByUUID(ctx context.Context, uuid string) (*model.SimulationRequest, error) {
	var row SimulationRequestRow

	err := r.db.WithContext(ctx).Where("request_uuid = ?", uuid).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("request not found: %s", uuid)
		}
		return nil, fmt.Errorf("failed to get request: %w", err)
	}

	return row.ToModel(), nil
}

// UpdateStatus updates the job status of a request.
func (r *GormRequestRepository) UpdateStatus(ctx context.Context, id int64, status model.JobStatus) error {
	result := r.db.WithContext(ctx).
		Model(&SimulationRequestRow{}).
		Where("id = ?", id).
		Update("status", status)

	if result.Error != nil {
		return fmt.Errorf("failed to update status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("request not found: %d", id)
	}

	return nil
}

// UpdateStatusWithInfo updates the job status with additional info.
func (r *GormRequestRepository) UpdateStatusWithInfo(ctx context.Context, id int64, status model.JobStatus, info string) error {
	result := r.db.WithContext(ctx).
		Model(&SimulationRequestRow{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":      status,
			"status_info": info,
		})

	if result.Error != nil {
		return fmt.Errorf("failed to update status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("request not found: %d", id)
	}

	return nil
}

// LockRequestForRun attempts to lock a request for simulation using FOR UPDATE.
func (r *GormRequestRepository) LockRequestForRun(ctx context.Context, id int64) (bool, error) {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row SimulationRequestRow

		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ? AND status = ?", id, model.JobStatusPending).
			First(&row).Error

		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return gorm.ErrRecordNotFound
			}
			return err
		}

		return tx.Model(&SimulationRequestRow{}).
			Where("id = ?", id).
			Update("status", model.JobStatusRunning).Error
	})

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to lock request: %w", err)
	}

	return true, nil
}

// ListRecentRequests retrieves the most recently created requests, newest first.
func (r *GormRequestRepository) ListRecentRequests(ctx context.Context, limit, offset int) ([]*model.SimulationRequest, error) {
	var rows []SimulationRequestRow

	err := r.db.WithContext(ctx).
		Order("create_time DESC, id DESC").
		Limit(limit).
		Offset(offset).
		Find(&rows).Error

	if err != nil {
		return nil, fmt.Errorf("failed to query recent requests: %w", err)
	}

	result := make([]*model.SimulationRequest, len(rows))
	for i := range rows {
		result[i] = rows[i].ToModel()
	}

	return result, nil
}

// GormRunRepository implements RunRepository using GORM.
type GormRunRepository struct {
	db *gorm.DB
}

// NewGormRunRepository creates a new GormRunRepository.
func NewGormRunRepository(db *gorm.DB) *GormRunRepository {
	return &GormRunRepository{db: db}
}

// SaveRun saves a completed simulation run to the database.
func (r *GormRunRepository) SaveRun(ctx context.Context, run *model.SimulationResult) error {
	row, err := SimulationRunRowFromModel(run)
	if err != nil {
		return fmt.Errorf("failed to marshal simulation run: %w", err)
	}

	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("failed to save simulation run: %w", err)
	}

	return nil
}

// GetRunByRequestUUID retrieves the simulation run for a request.
func (r *GormRunRepository) GetRunByRequestUUID(ctx context.Context, requestUUID string) (*model.SimulationResult, error) {
	var row SimulationRunRow

	err := r.db.WithContext(ctx).Where("request_uuid = ?", requestUUID).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("run not found for request: %s", requestUUID)
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	return row.ToModel()
}

// UpdateRun updates an existing simulation run record.
func (r *GormRunRepository) UpdateRun(ctx context.Context, run *model.SimulationResult) error {
	row, err := SimulationRunRowFromModel(run)
	if err != nil {
		return fmt.Errorf("failed to marshal simulation run: %w", err)
	}

	res := r.db.WithContext(ctx).
		Model(&SimulationRunRow{}).
		Where("request_uuid = ?", run.RequestUUID).
		Updates(map[string]interface{}{
			"global_time": row.GlobalTime,
			"rounds":      row.Rounds,
			"detailed":    row.Detailed,
			"rank_times":  row.RankTimes,
			"link_peaks":  row.LinkPeaks,
			"trace":       row.Trace,
			"error":       row.Error,
		})

	if res.Error != nil {
		return fmt.Errorf("failed to update run: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("run not found for request: %s", run.RequestUUID)
	}

	return nil
}
