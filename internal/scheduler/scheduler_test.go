package scheduler

import (
	"context"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/flowsim/flowsim/internal/scheduler/source"
	"github.com/flowsim/flowsim/pkg/model"
	"github.com/flowsim/flowsim/pkg/utils"
)

// MockTaskProcessor is a mock implementation of TaskProcessor.
type MockTaskProcessor struct {
	mock.Mock
	processedCount int32
}

func (m *MockTaskProcessor) Process(ctx context.Context, task *Task) error {
	atomic.AddInt32(&m.processedCount, 1)
	args := m.Called(ctx, task)
	return args.Error(0)
}

func (m *MockTaskProcessor) GetProcessedCount() int32 {
	return atomic.LoadInt32(&m.processedCount)
}

func TestScheduler_New(t *testing.T) {
	processor := &MockTaskProcessor{}
	logger := utils.NewDefaultLogger(utils.LevelDebug, io.Discard)

	// Create a simple aggregator with no sources for testing
	aggregator := source.NewAggregator(nil, 10, logger)

	t.Run("WithDefaultConfig", func(t *testing.T) {
		s := New(nil, aggregator, processor, nil)
		require.NotNil(t, s)
		assert.Equal(t, 5, s.config.WorkerCount)
		assert.Equal(t, 2*time.Second, s.config.PollInterval)
	})

	t.Run("WithCustomConfig", func(t *testing.T) {
		config := &SchedulerConfig{
			PollInterval:  5 * time.Second,
			WorkerCount:   10,
			PrioritySlots: 3,
			TaskBatchSize: 20,
		}
		s := New(config, aggregator, processor, nil)
		require.NotNil(t, s)
		assert.Equal(t, 10, s.config.WorkerCount)
		assert.Equal(t, 5*time.Second, s.config.PollInterval)
	})
}

func TestScheduler_Stats(t *testing.T) {
	processor := &MockTaskProcessor{}
	logger := utils.NewDefaultLogger(utils.LevelDebug, io.Discard)
	aggregator := source.NewAggregator(nil, 10, logger)

	config := &SchedulerConfig{
		WorkerCount: 5,
	}

	s := New(config, aggregator, processor, nil)

	stats := s.Stats()
	// Before Start(), workerPool is empty, so ActiveWorkers = WorkerCount - 0 = WorkerCount
	assert.Equal(t, 5, stats.ActiveWorkers)
	assert.Equal(t, 5, stats.TotalWorkers)
	assert.False(t, stats.Running)
}

func TestScheduler_ShouldAcceptTask(t *testing.T) {
	processor := &MockTaskProcessor{}
	logger := utils.NewDefaultLogger(utils.LevelDebug, io.Discard)
	aggregator := source.NewAggregator(nil, 10, logger)

	config := &SchedulerConfig{
		WorkerCount:   5,
		PrioritySlots: 2,
		PollInterval:  100 * time.Millisecond,
		TaskBatchSize: 5,
	}

	s := New(config, aggregator, processor, logger)

	// Need to initialize worker pool like Start() does
	for i := 0; i < config.WorkerCount; i++ {
		s.workerPool <- struct{}{}
	}

	t.Run("HighPriorityTask", func(t *testing.T) {
		task := &Task{Priority: 1}
		assert.True(t, s.shouldAcceptTask(task))
	})

	t.Run("NormalPriorityTask", func(t *testing.T) {
		task := &Task{Priority: 0}
		assert.True(t, s.shouldAcceptTask(task))
	})
}

func TestScheduler_StartStop(t *testing.T) {
	processor := &MockTaskProcessor{}
	logger := utils.NewDefaultLogger(utils.LevelDebug, io.Discard)
	aggregator := source.NewAggregator(nil, 10, logger)

	config := &SchedulerConfig{
		PollInterval:  100 * time.Millisecond,
		WorkerCount:   2,
		PrioritySlots: 1,
		TaskBatchSize: 5,
	}

	s := New(config, aggregator, processor, logger)

	ctx, cancel := context.WithCancel(context.Background())

	// Start scheduler
	err := s.Start(ctx)
	require.NoError(t, err)

	stats := s.Stats()
	assert.True(t, stats.Running)

	// Wait a bit
	time.Sleep(200 * time.Millisecond)

	// Stop scheduler
	cancel()
	s.Stop()

	stats = s.Stats()
	assert.False(t, stats.Running)
}

func TestDefaultSchedulerConfig(t *testing.T) {
	config := DefaultSchedulerConfig()
	assert.Equal(t, 2*time.Second, config.PollInterval)
	assert.Equal(t, 5, config.WorkerCount)
	assert.Equal(t, 2, config.PrioritySlots)
	assert.Equal(t, 10, config.TaskBatchSize)
}

func TestScheduler_ConvertEventToTask(t *testing.T) {
	processor := &MockTaskProcessor{}
	logger := utils.NewDefaultLogger(utils.LevelDebug, io.Discard)
	aggregator := source.NewAggregator(nil, 10, logger)

	s := New(nil, aggregator, processor, logger)

	modelReq := &model.SimulationRequest{
		ID:          1,
		RequestUUID: "uuid-123",
		Topology:    model.TopologyInput{Kind: model.TopologyOneBigSwitch, NumHosts: 4, Capacity: 1.0},
		Workload:    model.WorkloadInput{PP: 1, DP: 1, TP: 4, Microbatches: 4},
		RoutingSeed: 7,
		Detailed:    true,
		UserName:    "testuser",
		COSBucket:   "bucket-1",
	}

	event := source.NewTaskEvent(modelReq, source.SourceTypeDB, "test-source")
	task := s.convertEventToTask(event)

	assert.Equal(t, int64(1), task.ID)
	assert.Equal(t, "uuid-123", task.UUID)
	assert.Equal(t, model.TopologyOneBigSwitch, task.Topology.Kind)
	assert.Equal(t, 4, task.Workload.TP)
	assert.Equal(t, int64(7), task.RoutingSeed)
	assert.True(t, task.Detailed)
	assert.Equal(t, "testuser", task.UserName)
	assert.Equal(t, "bucket-1", task.COSBucket)
}

func TestScheduler_ConvertEventToTask_Priority(t *testing.T) {
	processor := &MockTaskProcessor{}
	logger := utils.NewDefaultLogger(utils.LevelDebug, io.Discard)
	aggregator := source.NewAggregator(nil, 10, logger)

	s := New(nil, aggregator, processor, logger)

	t.Run("HighPriorityFromEvent", func(t *testing.T) {
		modelReq := &model.SimulationRequest{ID: 1, RequestUUID: "uuid-123", Priority: 1}
		event := source.NewTaskEvent(modelReq, source.SourceTypeDB, "test-source")
		task := s.convertEventToTask(event)
		assert.Equal(t, 1, task.Priority)
	})

	t.Run("NormalPriorityFromEvent", func(t *testing.T) {
		modelReq := &model.SimulationRequest{ID: 2, RequestUUID: "uuid-456"}
		event := source.NewTaskEvent(modelReq, source.SourceTypeDB, "test-source")
		task := s.convertEventToTask(event)
		assert.Equal(t, 0, task.Priority)
	})
}
