// Package scheduler provides task scheduling and worker pool management.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/flowsim/flowsim/internal/scheduler/source"
	"github.com/flowsim/flowsim/pkg/config"
	"github.com/flowsim/flowsim/pkg/model"
	"github.com/flowsim/flowsim/pkg/utils"
)

// Task represents a simulation request queued for the worker pool.
type Task struct {
	ID          int64
	UUID        string
	Topology    model.TopologyInput
	Workload    model.WorkloadInput
	RoutingSeed int64
	Detailed    bool
	UserName    string
	COSBucket   string
	Priority    int // Higher value = higher priority
}

// TaskProcessor defines the interface for processing tasks.
type TaskProcessor interface {
	// Process runs one simulation request to completion.
	Process(ctx context.Context, task *Task) error
}

// SchedulerConfig holds scheduler configuration.
type SchedulerConfig struct {
	PollInterval  time.Duration // How often to poll for new tasks
	WorkerCount   int           // Number of concurrent workers
	PrioritySlots int           // Reserved slots for high priority tasks
	TaskBatchSize int           // Max tasks to fetch per poll
}

// DefaultSchedulerConfig returns default scheduler configuration.
func DefaultSchedulerConfig() *SchedulerConfig {
	return &SchedulerConfig{
		PollInterval:  2 * time.Second,
		WorkerCount:   5,
		PrioritySlots: 2,
		TaskBatchSize: 10,
	}
}

// FromConfig creates scheduler config from application config.
func FromConfig(cfg *config.SchedulerConfig) *SchedulerConfig {
	return &SchedulerConfig{
		PollInterval:  time.Duration(cfg.PollInterval) * time.Second,
		WorkerCount:   cfg.WorkerCount,
		PrioritySlots: cfg.PrioritySlots,
		TaskBatchSize: cfg.TaskBatchSize,
	}
}

// Scheduler manages task scheduling and worker pool.
type Scheduler struct {
	config    *SchedulerConfig
	processor TaskProcessor
	logger    utils.Logger

	// Source-based task fetching (Strategy Pattern)
	aggregator *source.Aggregator

	workerPool chan struct{}  // Semaphore for worker count
	taskQueue  chan *Task     // Task queue
	wg         sync.WaitGroup // Wait group for workers

	running bool
	stopCh  chan struct{}
}

// New creates a new Scheduler with source aggregator.
func New(config *SchedulerConfig, aggregator *source.Aggregator, processor TaskProcessor, logger utils.Logger) *Scheduler {
	if config == nil {
		config = DefaultSchedulerConfig()
	}
	if logger == nil {
		logger = utils.NewDefaultLogger(utils.LevelInfo, nil)
	}

	return &Scheduler{
		config:     config,
		aggregator: aggregator,
		processor:  processor,
		logger:     logger,
		workerPool: make(chan struct{}, config.WorkerCount),
		taskQueue:  make(chan *Task, config.TaskBatchSize*2),
		stopCh:     make(chan struct{}),
	}
}

// Start starts the scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("Starting scheduler with %d workers", s.config.WorkerCount)

	s.running = true

	// Fill the worker-slot semaphore
	for i := 0; i < s.config.WorkerCount; i++ {
		s.workerPool <- struct{}{}
	}

	// Start the aggregator
	if err := s.aggregator.Start(ctx); err != nil {
		return err
	}

	// Start the source-based event loop
	go s.sourceEventLoop(ctx)

	// Start the task processing loop
	go s.processLoop(ctx)

	return nil
}

// Stop stops the scheduler gracefully.
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping scheduler...")
	s.running = false
	close(s.stopCh)

	// Wait for all workers to complete
	s.wg.Wait()
	s.logger.Info("Scheduler stopped")
}

// shouldAcceptTask determines if a task should be accepted based on priority.
func (s *Scheduler) shouldAcceptTask(task *Task) bool {
	activeWorkers := s.config.WorkerCount - len(s.workerPool)
	reservedSlots := s.config.WorkerCount - s.config.PrioritySlots

	// High priority tasks can always be accepted if there's capacity
	if task.Priority > 0 {
		return activeWorkers < s.config.WorkerCount
	}

	// Normal priority tasks can only use non-reserved slots
	return activeWorkers < reservedSlots
}

// processLoop processes queued tasks.
func (s *Scheduler) processLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case task := <-s.taskQueue:
			// Acquire a worker slot
			select {
			case <-s.workerPool:
				s.wg.Add(1)
				go s.processTask(ctx, task)
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			}
		}
	}
}

// processTask processes a single task.
func (s *Scheduler) processTask(ctx context.Context, task *Task) {
	defer func() {
		s.workerPool <- struct{}{} // Release worker slot
		s.wg.Done()
	}()

	s.logger.Info("Processing request %d (UUID: %s)", task.ID, task.UUID)

	startTime := time.Now()
	err := s.processor.Process(ctx, task)
	duration := time.Since(startTime)

	if err != nil {
		s.logger.Error("Request %d failed after %v: %v", task.ID, duration, err)
		return
	}

	s.logger.Info("Request %d completed successfully in %v", task.ID, duration)
}

// sourceEventLoop receives task events from the aggregator and queues them for processing.
func (s *Scheduler) sourceEventLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case event, ok := <-s.aggregator.Tasks():
			if !ok {
				s.logger.Info("Aggregator channel closed")
				return
			}

			// Convert TaskEvent to Task
			task := s.convertEventToTask(event)

			// Check if we should accept this task
			if !s.shouldAcceptTask(task) {
				s.logger.Debug("Skipping request %d due to priority constraints", task.ID)
				continue
			}

			// Queue the task
			select {
			case s.taskQueue <- task:
				s.logger.Info("Queued request %d (UUID: %s) from source %s/%s",
					task.ID, task.UUID, event.SourceType, event.SourceName)
			default:
				// Queue full, nack the event back to its source (the database
				// source marks the request failed)
				s.logger.Warn("Task queue full, nacking request %d", task.ID)
				if err := s.aggregator.Nack(ctx, event, "task queue full"); err != nil {
					s.logger.Error("Failed to nack event: %v", err)
				}
			}
		}
	}
}

// convertEventToTask converts a source.TaskEvent to a scheduler.Task.
func (s *Scheduler) convertEventToTask(event *source.TaskEvent) *Task {
	t := event.Task
	task := &Task{
		ID:          t.ID,
		UUID:        t.RequestUUID,
		Topology:    t.Topology,
		Workload:    t.Workload,
		RoutingSeed: t.RoutingSeed,
		Detailed:    t.Detailed,
		UserName:    t.UserName,
		COSBucket:   t.COSBucket,
		Priority:    event.Priority,
	}
	return task
}

// Stats returns current scheduler statistics.
func (s *Scheduler) Stats() SchedulerStats {
	return SchedulerStats{
		ActiveWorkers: s.config.WorkerCount - len(s.workerPool),
		TotalWorkers:  s.config.WorkerCount,
		QueuedTasks:   len(s.taskQueue),
		Running:       s.running,
	}
}

// SchedulerStats holds scheduler statistics.
type SchedulerStats struct {
	ActiveWorkers int  `json:"active_workers"`
	TotalWorkers  int  `json:"total_workers"`
	QueuedTasks   int  `json:"queued_tasks"`
	Running       bool `json:"running"`
}
