package source

import (
	"context"
	"sync"
	"time"

	"github.com/flowsim/flowsim/internal/repository"
	"github.com/flowsim/flowsim/pkg/model"
	"github.com/flowsim/flowsim/pkg/utils"
)

// SourceTypeDB is the source type constant for database source.
const SourceTypeDB SourceType = "database"

func init() {
	// Register the database source strategy
	Register(SourceTypeDB, NewDatabaseSource)
}

// DatabaseOptions holds database source specific configuration.
type DatabaseOptions struct {
	// PollInterval is how often to poll for new tasks.
	PollInterval time.Duration

	// BatchSize is the maximum number of tasks to fetch per poll.
	BatchSize int
}

// DefaultDatabaseOptions returns the default options.
func DefaultDatabaseOptions() *DatabaseOptions {
	return &DatabaseOptions{
		PollInterval: 2 * time.Second,
		BatchSize:    10,
	}
}

// DatabaseSource implements TaskSource for database-based task fetching.
type DatabaseSource struct {
	name    string
	options *DatabaseOptions
	logger  utils.Logger

	requestRepo repository.RequestRepository

	taskChan chan *TaskEvent
	stopCh   chan struct{}

	mu      sync.RWMutex
	running bool
}

// NewDatabaseSource creates a new database source from configuration.
func NewDatabaseSource(cfg *SourceConfig) (TaskSource, error) {
	opts := &DatabaseOptions{
		PollInterval: cfg.GetDuration("poll_interval", 2*time.Second),
		BatchSize:    cfg.GetInt("batch_size", 10),
	}

	return &DatabaseSource{
		name:     cfg.Name,
		options:  opts,
		taskChan: make(chan *TaskEvent, opts.BatchSize*2),
		stopCh:   make(chan struct{}),
	}, nil
}

// NewDatabaseSourceWithDeps creates a new database source with explicit dependencies.
// This is useful for production use where repositories are already initialized.
func NewDatabaseSourceWithDeps(name string, opts *DatabaseOptions, requestRepo repository.RequestRepository, logger utils.Logger) *DatabaseSource {
	if opts == nil {
		opts = DefaultDatabaseOptions()
	}
	if logger == nil {
		logger = utils.NewDefaultLogger(utils.LevelInfo, nil)
	}

	return &DatabaseSource{
		name:        name,
		options:     opts,
		logger:      logger,
		requestRepo: requestRepo,
		taskChan:    make(chan *TaskEvent, opts.BatchSize*2),
		stopCh:      make(chan struct{}),
	}
}

// SetRepositories sets the request repository.
// This must be called before Start if using the factory-created source.
func (s *DatabaseSource) SetRepositories(requestRepo repository.RequestRepository) {
	s.requestRepo = requestRepo
}

// SetLogger sets the logger.
func (s *DatabaseSource) SetLogger(logger utils.Logger) {
	s.logger = logger
}

// Type returns the source type.
func (s *DatabaseSource) Type() SourceType {
	return SourceTypeDB
}

// Name returns the source instance name.
func (s *DatabaseSource) Name() string {
	return s.name
}

// Start starts the database polling loop.
func (s *DatabaseSource) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}

	if s.requestRepo == nil {
		s.mu.Unlock()
		return nil // No repository configured, skip
	}

	s.running = true
	s.mu.Unlock()

	if s.logger != nil {
		s.logger.Info("Database source %s starting with poll_interval=%v, batch_size=%d",
			s.name, s.options.PollInterval, s.options.BatchSize)
	}

	go s.pollLoop(ctx)
	return nil
}

// Stop stops the database source.
func (s *DatabaseSource) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopCh)
	return nil
}

// Tasks returns the task event channel.
func (s *DatabaseSource) Tasks() <-chan *TaskEvent {
	return s.taskChan
}

// Ack acknowledges a task has been processed successfully.
// For database source, this updates the request status to completed.
func (s *DatabaseSource) Ack(ctx context.Context, event *TaskEvent) error {
	if s.requestRepo == nil || event.Task == nil {
		return nil
	}
	return s.requestRepo.UpdateStatus(ctx, event.Task.ID, model.JobStatusCompleted)
}

// Nack indicates a task processing failed.
// For database source, this updates the request status to failed.
func (s *DatabaseSource) Nack(ctx context.Context, event *TaskEvent, reason string) error {
	if s.requestRepo == nil || event.Task == nil {
		return nil
	}
	return s.requestRepo.UpdateStatusWithInfo(ctx, event.Task.ID, model.JobStatusFailed, reason)
}

// HealthCheck checks the database connection.
func (s *DatabaseSource) HealthCheck(ctx context.Context) error {
	if s.requestRepo == nil {
		return nil
	}
	// Try to fetch a single request as health check
	_, err := s.requestRepo.GetPendingRequests(ctx, 1)
	return err
}

// pollLoop continuously polls the database for pending requests.
func (s *DatabaseSource) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(s.options.PollInterval)
	defer ticker.Stop()

	// Initial poll
	s.poll(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.poll(ctx)
		}
	}
}

// poll fetches pending requests and emits them to the task channel.
func (s *DatabaseSource) poll(ctx context.Context) {
	if s.requestRepo == nil {
		return
	}

	reqs, err := s.requestRepo.GetPendingRequests(ctx, s.options.BatchSize)
	if err != nil {
		if s.logger != nil {
			s.logger.Error("Database source %s failed to fetch requests: %v", s.name, err)
		}
		return
	}

	for _, req := range reqs {
		// Try to lock the request
		locked, err := s.requestRepo.LockRequestForRun(ctx, req.ID)
		if err != nil {
			if s.logger != nil {
				s.logger.Error("Database source %s failed to lock request %d: %v", s.name, req.ID, err)
			}
			continue
		}
		if !locked {
			continue // Request already locked by another instance
		}

		// Create and emit task event
		event := NewTaskEvent(req, SourceTypeDB, s.name).
			WithMetadata("locked_at", time.Now().Format(time.RFC3339))

		select {
		case s.taskChan <- event:
			if s.logger != nil {
				s.logger.Debug("Database source %s emitted request %s", s.name, req.RequestUUID)
			}
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		default:
			// Channel full, release the lock so the request is picked up in next poll
			if err := s.requestRepo.UpdateStatus(ctx, req.ID, model.JobStatusPending); err != nil && s.logger != nil {
				s.logger.Error("Database source %s failed to release request %d: %v", s.name, req.ID, err)
			}
			if s.logger != nil {
				s.logger.Warn("Database source %s task channel full, request %d will retry", s.name, req.ID)
			}
		}
	}
}
