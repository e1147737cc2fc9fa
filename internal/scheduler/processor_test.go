package scheduler

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	flowmock "github.com/flowsim/flowsim/internal/mock"
	"github.com/flowsim/flowsim/internal/repository"
	"github.com/flowsim/flowsim/pkg/model"
	"github.com/flowsim/flowsim/pkg/utils"
)

func TestBuildTopology(t *testing.T) {
	t.Run("OneBigSwitch", func(t *testing.T) {
		topo, err := BuildTopology(model.TopologyInput{Kind: model.TopologyOneBigSwitch, NumHosts: 4, Capacity: 10})
		require.NoError(t, err)
		assert.NotNil(t, topo)
	})

	t.Run("FatTree", func(t *testing.T) {
		topo, err := BuildTopology(model.TopologyInput{Kind: model.TopologyFatTree, SwitchRadix: 4, Capacity: 10})
		require.NoError(t, err)
		assert.NotNil(t, topo)
	})

	t.Run("UnknownKind", func(t *testing.T) {
		_, err := BuildTopology(model.TopologyInput{Kind: model.TopologyKind(99)})
		assert.Error(t, err)
	})
}

func TestBuildWorkload(t *testing.T) {
	wl, err := BuildWorkload(model.WorkloadInput{PP: 1, DP: 1, TP: 2, Microbatches: 2})
	require.NoError(t, err)
	assert.NotNil(t, wl)
}

func TestProcess_EndToEnd(t *testing.T) {
	requestRepo := &flowmock.MockRequestRepository{}
	runRepo := &flowmock.MockRunRepository{}
	store := &flowmock.MockStorage{}

	p := NewDefaultTaskProcessor(&ProcessorConfig{
		Repos:   &repository.Repositories{Request: requestRepo, Run: runRepo},
		Storage: store,
		Logger:  utils.NewDefaultLogger(utils.LevelDebug, io.Discard),
	})

	task := &Task{
		ID:          1,
		UUID:        "uuid-process-1",
		Topology:    model.TopologyInput{Kind: model.TopologyOneBigSwitch, NumHosts: 2, Capacity: 10},
		Workload:    model.WorkloadInput{PP: 1, DP: 1, TP: 2, Microbatches: 1, FwdCompTime: 1, BwdCompTime: 1, FwdTPSize: 1, BwdTPSize: 1},
		RoutingSeed: 1,
		Detailed:    true,
	}

	runRepo.On("SaveRun", mock.Anything, mock.MatchedBy(func(r *model.SimulationResult) bool {
		return r.RequestUUID == task.UUID && r.Error == ""
	})).Return(nil)
	requestRepo.On("UpdateStatus", mock.Anything, task.ID, model.JobStatusCompleted).Return(nil)
	store.On("Upload", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	err := p.Process(context.Background(), task)
	require.NoError(t, err)

	runRepo.AssertExpectations(t)
	requestRepo.AssertExpectations(t)
	store.AssertExpectations(t)
}

func TestProcess_InvalidTopologyFails(t *testing.T) {
	requestRepo := &flowmock.MockRequestRepository{}
	runRepo := &flowmock.MockRunRepository{}

	p := NewDefaultTaskProcessor(&ProcessorConfig{
		Repos:  &repository.Repositories{Request: requestRepo, Run: runRepo},
		Logger: utils.NewDefaultLogger(utils.LevelDebug, io.Discard),
	})

	task := &Task{ID: 2, UUID: "uuid-process-2", Topology: model.TopologyInput{Kind: model.TopologyKind(99)}}

	runRepo.On("SaveRun", mock.Anything, mock.MatchedBy(func(r *model.SimulationResult) bool {
		return r.Error != ""
	})).Return(nil)
	requestRepo.On("UpdateStatusWithInfo", mock.Anything, task.ID, model.JobStatusFailed, mock.Anything).Return(nil)

	err := p.Process(context.Background(), task)
	assert.Error(t, err)

	runRepo.AssertExpectations(t)
	requestRepo.AssertExpectations(t)
}
