package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/coursedl-go/api"
	"github.com/yourusername/coursedl-go/api/handlers"
	"github.com/yourusername/coursedl-go/internal/app"
	"github.com/yourusername/coursedl-go/internal/domain"
	"github.com/yourusername/coursedl-go/internal/infrastructure"
	"github.com/yourusername/coursedl-go/pkg/logger"
)

var serverMode = flag.Bool("server-mode", false, "Internal flag: run in server mode (called by daemon)")

func main() {
	flag.Parse()

	// If not in server mode, run as daemon
	if !*serverMode {
		startAsDaemon()
		return
	}

	// Run as server (called by daemon)
	runServer()
}

// startAsDaemon forks the current process and runs the server in background
func startAsDaemon() {
	execPath, err := os.Executable()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to get executable path: %v\n", err)
		os.Exit(1)
	}

	cwd, err := os.Getwd()
	if err != nil {
		cwd = "/"
	}

	cmd := exec.Command(execPath, "-server-mode")
	cmd.Dir = cwd
	cmd.Env = os.Environ()

	// Detach from parent process
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true,
	}

	devNull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open /dev/null: %v\n", err)
		os.Exit(1)
	}
	cmd.Stdin = devNull
	cmd.Stdout = devNull
	cmd.Stderr = devNull

	if err := cmd.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start daemon: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Server started as daemon (PID: %d)\n", cmd.Process.Pid)
	os.Exit(0)
}

func runServer() {
	config, err := app.LoadConfig(os.Getenv("COURSEDL_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := createDirectories(config); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create directories: %v\n", err)
		os.Exit(1)
	}

	// Initialize multi-logger (categories: queue, task, api, error)
	multiLog, err := logger.NewMultiLogger(logger.MultiLoggerConfig{
		Level:   config.Logging.Level,
		LogsDir: config.Download.LogsDir(),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer multiLog.Close()

	logAdapter := logger.NewLoggerAdapter(multiLog)
	log := logAdapter.GetSingleLogger()

	log.Info("Starting coursedl server",
		zap.String("version", "1.0.0"),
		zap.String("host", config.Server.Host),
		zap.Int("port", config.Server.Port),
		zap.String("download_root", config.Download.RootDir))

	// Initialize repository
	repo, err := infrastructure.NewSQLiteTaskRepository(config.Queue.DatabasePath)
	if err != nil {
		log.Fatal("Failed to initialize repository", zap.Error(err))
	}
	defer repo.Close()
	items := repo.Items()

	// Shared HTTP client for catalog, playlists and transfers
	httpClient := &http.Client{Timeout: config.Download.Timeout}

	resolver := infrastructure.NewStreamResolver(httpClient, config.Download.MaxRetries, config.Download.RetryInterval, log)
	catalog := infrastructure.NewCatalogClient(config.Catalog, resolver, log)
	engine := infrastructure.NewEngine(config.Download, httpClient, log)
	assembler := infrastructure.NewHLSAssembler(resolver, httpClient, config.Download, log)

	// Progress streaming over WebSocket
	progressWS := handlers.NewProgressWebSocketHandler(log)

	planner := app.NewPlanner(log)
	runner := app.NewJobRunner(catalog, planner, engine, assembler, resolver, repo, items, progressWS, log)

	notifier := infrastructure.NewNotificationService(&config.Notification, log)
	queueMgr := app.NewQueueManager(repo, runner, notifier, &config.Queue, multiLog)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := queueMgr.Start(ctx); err != nil {
		log.Fatal("Failed to start queue manager", zap.Error(err))
	}

	// Setup HTTP router
	router := api.SetupRouter(api.RouterDeps{
		QueueMgr:    queueMgr,
		Items:       items,
		Progress:    progressWS,
		LogAdapter:  logAdapter,
		LogsDir:     config.Download.LogsDir(),
		DefaultRoot: config.Download.RootDir,
	})

	addr := fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)
	server := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		log.Info("HTTP server listening", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Received shutdown signal")

	log.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := queueMgr.Stop(); err != nil {
		log.Error("Error stopping queue manager", zap.Error(err))
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited")
}

func createDirectories(config *domain.Config) error {
	dirs := []string{
		config.Download.RootDir,
		config.Download.StateDir(),
		config.Download.LogsDir(),
		filepath.Dir(config.Queue.DatabasePath),
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
