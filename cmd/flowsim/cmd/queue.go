package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/flowsim/flowsim/internal/repository"
	"github.com/flowsim/flowsim/internal/scheduler"
	"github.com/flowsim/flowsim/internal/scheduler/source"
	"github.com/flowsim/flowsim/internal/storage"
	"github.com/flowsim/flowsim/pkg/config"
)

var queueConfigPath string

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Drain a database-backed request queue, running simulations as they arrive",
	Long: `Queue starts the long-running worker side of flowsim: it polls
SimulationRequest rows that are pending, runs each through the engine on a
bounded worker pool, and persists the resulting SimulationRun (and its
archived trace artifact, when detailed) back through the repository and
storage layers. It runs until interrupted.`,
	RunE: runQueue,
}

func init() {
	rootCmd.AddCommand(queueCmd)
	queueCmd.Flags().StringVarP(&queueConfigPath, "config", "c", "", "Path to configuration file")
}

func runQueue(cmd *cobra.Command, args []string) error {
	log := GetLogger()

	cfg, err := config.Load(queueConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log.Info("flowsim queue starting (simulation version %s)", cfg.Simulation.Version)
	log.Info("database: %s://%s:%d/%s", cfg.Database.Type, cfg.Database.Host, cfg.Database.Port, cfg.Database.Database)
	log.Info("storage: %s", cfg.Storage.Type)

	if err := cfg.EnsureDataDir(); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	gormDB, err := repository.NewGormDB(&repository.DBConfig{
		Type:     cfg.Database.Type,
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		Database: cfg.Database.Database,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		MaxConns: cfg.Database.MaxConns,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	repos := repository.NewRepositories(gormDB, cfg.Database.Type)
	defer repos.Close()

	store, err := storage.NewStorage(&cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}

	dbSource := source.NewDatabaseSourceWithDeps(
		"primary",
		&source.DatabaseOptions{
			PollInterval: time.Duration(cfg.Scheduler.PollInterval) * time.Second,
			BatchSize:    cfg.Scheduler.TaskBatchSize,
		},
		repos.Request,
		log,
	)

	aggregator := source.NewAggregator([]source.TaskSource{dbSource}, cfg.Scheduler.TaskBatchSize*2, log)

	processor := scheduler.NewDefaultTaskProcessor(&scheduler.ProcessorConfig{
		Repos:   repos,
		Storage: store,
		Logger:  log,
	})

	sched := scheduler.New(scheduler.FromConfig(&cfg.Scheduler), aggregator, processor, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	log.Info("queue running, waiting for requests...")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.Info("received signal %v, shutting down...", sig)

	cancel()
	sched.Stop()
	log.Info("queue stopped")

	return nil
}
