// cmd/main.go - Program entry
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"kicomport/internal/config"
	"kicomport/internal/database"
	"kicomport/internal/handler"
	"kicomport/internal/importer"
	"kicomport/internal/planner"
	"kicomport/internal/repository"
	"kicomport/internal/scanner"
	"kicomport/internal/scorer"
	"kicomport/internal/server"
	"kicomport/internal/service"
	"kicomport/internal/tables"
	"kicomport/internal/utils"
	"kicomport/pkg/logger"
)

var (
	// set by the linker during build
	osName   string
	archName string
	version  string
)

func main() {
	// Parse command line arguments
	appName := flag.String("appname", "kicomport", "app name")
	httpServer := flag.String("http", "localhost:11480", "HTTP server address")
	configPath := flag.String("config", "", "path to TOML configuration file")
	logLevel := flag.String("loglevel", "info", "log level (debug, info, warn, error)")
	flag.Parse()

	// Initialize configuration
	cfg, err := config.LoadAppConfig(*configPath)
	if err != nil {
		fmt.Printf("failed to load configuration: %v\n", err)
		return
	}

	// Initialize directories
	if err := initDir(cfg); err != nil {
		fmt.Printf("failed to initialize directory: %v\n", err)
		return
	}

	// Initialize logging system
	appLogger, err := logger.NewLogger(cfg.Paths.Logs, *logLevel, *appName)
	if err != nil {
		fmt.Printf("failed to initialize logging system: %v\n", err)
		return
	}
	appLogger.Info("OS: %s, Arch: %s, App: %s, Version: %s, Starting...", osName, archName, *appName, version)

	// Initialize database manager
	dbConfig := config.DefaultDatabaseConfig(cfg.Paths.Data)
	dbManager := database.NewSQLiteManager(dbConfig, appLogger)
	if err := dbManager.Initialize(); err != nil {
		appLogger.Fatal("failed to initialize database manager: %v", err)
		return
	}
	defer func() {
		if err := dbManager.Close(); err != nil {
			appLogger.Error("failed to close database manager: %v", err)
		}
	}()

	// Initialize repositories
	jobStore, err := repository.NewJobStore(cfg.Paths.Data, appLogger)
	if err != nil {
		appLogger.Fatal("failed to initialize job store: %v", err)
		return
	}
	defer func() {
		if err := jobStore.Close(); err != nil {
			appLogger.Error("failed to close job store: %v", err)
		}
	}()
	backupRepo, err := repository.NewBackupRepository(dbManager, cfg.Paths.Backup, appLogger)
	if err != nil {
		appLogger.Fatal("failed to initialize backup repository: %v", err)
		return
	}
	auditRepo := repository.NewAuditRepository(dbManager, appLogger)
	feedbackRepo := repository.NewFeedbackRepository(dbManager, appLogger)

	// Initialize scanning and scoring
	extractor := scanner.NewExtractor(cfg.Limits, appLogger)
	candidateScanner := scanner.NewCandidateScanner(cfg.Limits, appLogger)
	advisory := scorer.NewOllamaAdvisory(cfg.Advisory, appLogger)
	if advisory == nil {
		appLogger.Info("advisory scoring disabled, heuristic scoring only")
	}
	candidateScorer := scorer.NewCandidateScorer(cfg.Scoring, cfg.Advisory, advisory, feedbackRepo, appLogger)
	planBuilder := planner.NewPlanBuilder(appLogger)

	// Initialize apply engine
	tableEditor := tables.NewTableEditor(appLogger)
	organizer := importer.NewOrganizer(cfg.Paths.Libs, cfg.Apply, appLogger)
	lockManager := importer.NewTableLockManager()
	applyEngine := importer.NewApplyEngine(cfg, tableEditor, organizer, lockManager,
		jobStore, backupRepo, auditRepo, feedbackRepo, appLogger)

	// Initialize service layer
	jobService := service.NewJobService(cfg, jobStore, auditRepo,
		extractor, candidateScanner, candidateScorer, planBuilder, applyEngine, appLogger)

	// Initialize handler layer
	importHandler := handler.NewImportHandler(jobService, appLogger)

	// Initialize HTTP server
	httpServerInstance := server.NewServer(importHandler, appLogger)

	// Start HTTP server
	httpErrChan := make(chan error, 1)
	go func() {
		if err := httpServerInstance.Start(*httpServer); err != nil && err != http.ErrServerClosed {
			httpErrChan <- err
		}
		close(httpErrChan)
	}()

	select {
	case err := <-httpErrChan:
		if err != nil {
			appLogger.Error("HTTP server failed to start: %v", err)
			return
		}
	case <-time.After(2 * time.Second):
		appLogger.Info("HTTP server started successfully on %s", *httpServer)
	}

	appLogger.Info("application started successfully")

	// Handle system signals for graceful shutdown
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	<-signals

	appLogger.Info("received shutdown signal, shutting down gracefully...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServerInstance.Shutdown(ctx); err != nil {
		appLogger.Error("HTTP server shutdown error: %v", err)
	}

	appLogger.Info("service has been successfully closed")
}

// initDir creates every configured directory up front so later stages can
// assume they exist.
func initDir(cfg config.AppConfig) error {
	dirs := []string{
		cfg.Paths.Root,
		cfg.Paths.Libs,
		cfg.Paths.Incoming,
		cfg.Paths.Work,
		cfg.Paths.Backup,
		cfg.Paths.Logs,
		cfg.Paths.Data,
	}
	for _, dir := range dirs {
		if err := utils.EnsureDir(dir); err != nil {
			return fmt.Errorf("failed to create directory %s: %v", dir, err)
		}
	}
	return nil
}
