// Package repository provides database abstraction for the simulation service.
package repository

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/flowsim/flowsim/pkg/model"
)

// SimulationRequestRow represents the simulation_requests table.
type SimulationRequestRow struct {
	ID          int64      `gorm:"column:id;primaryKey;autoIncrement"`
	RequestUUID string     `gorm:"column:request_uuid;type:varchar(64);uniqueIndex"`
	Name        string     `gorm:"column:name;type:varchar(255)"`
	Topology    JSONField  `gorm:"column:topology;type:json"`
	Workload    JSONField  `gorm:"column:workload;type:json"`
	RoutingSeed int64      `gorm:"column:routing_seed"`
	Detailed    bool       `gorm:"column:detailed"`
	Priority    int        `gorm:"column:priority"`
	Status      model.JobStatus `gorm:"column:status"`
	StatusInfo  string     `gorm:"column:status_info;type:text"`
	ResultFile  string     `gorm:"column:result_file;type:varchar(512)"`
	UserName    string     `gorm:"column:user_name;type:varchar(128)"`
	COSBucket   string     `gorm:"column:cos_bucket;type:varchar(128)"`
	CreateTime  time.Time  `gorm:"column:create_time;autoCreateTime"`
	BeginTime   *time.Time `gorm:"column:begin_time"`
	EndTime     *time.Time `gorm:"column:end_time"`
}

// TableName returns the table name for SimulationRequestRow.
func (SimulationRequestRow) TableName() string {
	return "simulation_requests"
}

// ToModel converts a SimulationRequestRow to model.SimulationRequest.
func (row *SimulationRequestRow) ToModel() *model.SimulationRequest {
	req := &model.SimulationRequest{
		ID:          row.ID,
		RequestUUID: row.RequestUUID,
		Name:        row.Name,
		RoutingSeed: row.RoutingSeed,
		Detailed:    row.Detailed,
		Priority:    row.Priority,
		Status:      row.Status,
		StatusInfo:  row.StatusInfo,
		ResultFile:  row.ResultFile,
		UserName:    row.UserName,
		COSBucket:   row.COSBucket,
		CreateTime:  row.CreateTime,
		BeginTime:   row.BeginTime,
		EndTime:     row.EndTime,
	}

	if row.Topology != nil {
		_ = json.Unmarshal(row.Topology, &req.Topology)
	}
	if row.Workload != nil {
		_ = json.Unmarshal(row.Workload, &req.Workload)
	}

	return req
}

// SimulationRequestRowFromModel builds the gorm row for a model.SimulationRequest.
func SimulationRequestRowFromModel(req *model.SimulationRequest) (*SimulationRequestRow, error) {
	topoJSON, err := json.Marshal(req.Topology)
	if err != nil {
		return nil, err
	}
	wlJSON, err := json.Marshal(req.Workload)
	if err != nil {
		return nil, err
	}

	return &SimulationRequestRow{
		ID:          req.ID,
		RequestUUID: req.RequestUUID,
		Name:        req.Name,
		Topology:    JSONField(topoJSON),
		Workload:    JSONField(wlJSON),
		RoutingSeed: req.RoutingSeed,
		Detailed:    req.Detailed,
		Priority:    req.Priority,
		Status:      req.Status,
		StatusInfo:  req.StatusInfo,
		ResultFile:  req.ResultFile,
		UserName:    req.UserName,
		COSBucket:   req.COSBucket,
	}, nil
}

// SimulationRunRow represents the simulation_runs table: the persisted record
// of a completed SimulationResult.
type SimulationRunRow struct {
	ID          int64     `gorm:"column:id;primaryKey;autoIncrement"`
	RequestUUID string    `gorm:"column:request_uuid;type:varchar(64);uniqueIndex"`
	GlobalTime  float64   `gorm:"column:global_time"`
	Rounds      int       `gorm:"column:rounds"`
	Detailed    bool      `gorm:"column:detailed"`
	RankTimes   JSONField `gorm:"column:rank_times;type:json"`
	LinkPeaks   JSONField `gorm:"column:link_peaks;type:json"`
	Trace       JSONField `gorm:"column:trace;type:json"`
	ArtifactKey string    `gorm:"column:artifact_key;type:varchar(512)"`
	Error       string    `gorm:"column:error;type:text"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName returns the table name for SimulationRunRow.
func (SimulationRunRow) TableName() string {
	return "simulation_runs"
}

// ToModel converts a SimulationRunRow to model.SimulationResult.
func (row *SimulationRunRow) ToModel() (*model.SimulationResult, error) {
	result := &model.SimulationResult{
		ID:          row.ID,
		RequestUUID: row.RequestUUID,
		GlobalTime:  row.GlobalTime,
		Rounds:      row.Rounds,
		Detailed:    row.Detailed,
		ArtifactKey: row.ArtifactKey,
		Error:       row.Error,
		CreatedAt:   row.CreatedAt,
	}

	if row.RankTimes != nil {
		if err := json.Unmarshal(row.RankTimes, &result.RankTimes); err != nil {
			return nil, err
		}
	}
	if row.LinkPeaks != nil {
		if err := json.Unmarshal(row.LinkPeaks, &result.LinkPeaks); err != nil {
			return nil, err
		}
	}
	if row.Trace != nil {
		if err := json.Unmarshal(row.Trace, &result.Trace); err != nil {
			return nil, err
		}
	}

	return result, nil
}

// SimulationRunRowFromModel builds the gorm row for a model.SimulationResult.
func SimulationRunRowFromModel(run *model.SimulationResult) (*SimulationRunRow, error) {
	rankTimesJSON, err := json.Marshal(run.RankTimes)
	if err != nil {
		return nil, err
	}
	linkPeaksJSON, err := json.Marshal(run.LinkPeaks)
	if err != nil {
		return nil, err
	}
	traceJSON, err := json.Marshal(run.Trace)
	if err != nil {
		return nil, err
	}

	return &SimulationRunRow{
		RequestUUID: run.RequestUUID,
		GlobalTime:  run.GlobalTime,
		Rounds:      run.Rounds,
		Detailed:    run.Detailed,
		RankTimes:   JSONField(rankTimesJSON),
		LinkPeaks:   JSONField(linkPeaksJSON),
		Trace:       JSONField(traceJSON),
		ArtifactKey: run.ArtifactKey,
		Error:       run.Error,
	}, nil
}

// JSONField is a custom type for handling JSON fields in GORM.
type JSONField []byte

// Value implements driver.Valuer interface.
func (j JSONField) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return []byte(j), nil
}

// Scan implements sql.Scanner interface.
func (j *JSONField) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	switch v := value.(type) {
	case []byte:
		*j = append((*j)[0:0], v...)
		return nil
	case string:
		*j = []byte(v)
		return nil
	default:
		return errors.New("unsupported type for JSONField")
	}
}

// MarshalJSON implements json.Marshaler interface.
func (j JSONField) MarshalJSON() ([]byte, error) {
	if j == nil {
		return []byte("null"), nil
	}
	return j, nil
}

// UnmarshalJSON implements json.Unmarshaler interface.
func (j *JSONField) UnmarshalJSON(data []byte) error {
	if data == nil || string(data) == "null" {
		*j = nil
		return nil
	}
	*j = append((*j)[0:0], data...)
	return nil
}
