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
	"github.com/flowsim/flowsim/internal/storage"
	"github.com/flowsim/flowsim/internal/webui"
	"github.com/flowsim/flowsim/pkg/config"
)

var (
	serveConfigPath string
	servePort       int
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start a read-only web server to browse persisted simulation runs",
	Long: `Serve starts a lightweight HTTP server over the same database and
storage backend the queue writes to. It lists recent SimulationRequests,
shows each run's result (including rank completions, link peaks and the
per-round trace when detailed), and lets a browser download the archived
trace artifact. It never triggers a simulation.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	binName := BinName()
	serveCmd.Example = `  # Browse runs with default settings (port 8080)
  ` + binName + ` serve -c config.yaml

  # Use a different port
  ` + binName + ` serve -c config.yaml -p 9090`

	serveCmd.Flags().StringVarP(&serveConfigPath, "config", "c", "", "Path to configuration file")
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8080, "Port for the web server")
}

func runServe(cmd *cobra.Command, args []string) error {
	log := GetLogger()

	cfg, err := config.Load(serveConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
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

	server := webui.NewServer(repos, store, servePort, log)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info("shutting down server...")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(ctx)
		os.Exit(0)
	}()

	log.Info("")
	log.Info("flowsim run browser listening on http://localhost:%d", servePort)
	log.Info("database: %s://%s:%d/%s", cfg.Database.Type, cfg.Database.Host, cfg.Database.Port, cfg.Database.Database)
	log.Info("press Ctrl+C to stop")
	log.Info("")

	if err := server.Start(); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}
