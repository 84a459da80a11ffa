package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/Deathbringer98/Firemap-WebApp/internal/api"
	"github.com/Deathbringer98/Firemap-WebApp/internal/config"
	"github.com/Deathbringer98/Firemap-WebApp/internal/notify"
	"github.com/Deathbringer98/Firemap-WebApp/internal/reports"
	"github.com/Deathbringer98/Firemap-WebApp/internal/server"
	"github.com/Deathbringer98/Firemap-WebApp/internal/static"
	"github.com/Deathbringer98/Firemap-WebApp/internal/ws"
)

func main() {
	configPath := flag.String("config", "config.yml", "path to the YAML config, relative to -dir")
	dir := flag.String("dir", installDir(), "directory to serve from (data file and static assets live here)")
	flag.Parse()

	logger := log.New(os.Stdout, "[firemap] ", log.LstdFlags|log.Lshortfile)

	if *dir != "" {
		if err := os.Chdir(*dir); err != nil {
			logger.Fatalf("Failed to change working directory to %s: %v", *dir, err)
		}
	}
	wd, _ := os.Getwd()

	// 1. Configuration
	cfg, err := config.Load(*configPath, os.Getenv)
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	// 2. Report store
	store, err := reports.NewStore(cfg.DataFile, logger, reports.WithWindow(cfg.FreshnessWindow))
	if err != nil {
		logger.Fatalf("Failed to open report store: %v", err)
	}
	created, err := store.Init()
	if err != nil {
		logger.Fatalf("Failed to create %s: %v", cfg.DataFile, err)
	}
	if created {
		fmt.Printf("Created initial %s\n", cfg.DataFile)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Notification sinks
	hub := ws.NewHub(logger)
	fanout := notify.NewFanout(logger, hub)

	if cfg.Notify.Kafka.Enabled() {
		logger.Println("Initializing Kafka publisher...")
		kp, err := notify.NewKafkaPublisher(cfg.Notify.Kafka, logger)
		if err != nil {
			logger.Fatalf("Failed to initialize Kafka publisher: %v", err)
		}
		fanout.Add(kp)
	}
	if cfg.Notify.RabbitMQ.Enabled() {
		logger.Println("Connecting to RabbitMQ...")
		rp := notify.NewRabbitPublisher(cfg.Notify.RabbitMQ, logger)
		dialCtx, dialCancel := context.WithTimeout(ctx, 10*time.Second)
		err := rp.Connect(dialCtx)
		dialCancel()
		if err != nil {
			logger.Fatalf("Failed to connect to RabbitMQ: %v", err)
		}
		fanout.Add(rp)
	}
	defer fanout.Close()

	// 4. HTTP server
	apiHandler := api.New(store, fanout, logger, cfg.MaxBodyBytes)
	router := server.NewRouter(server.Deps{
		API:     apiHandler,
		APIPath: cfg.APIPath,
		Static:  static.New(cfg.StaticDir, cfg.IndexFile),
		Hub:     hub,
	})
	httpServer := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.HttpServer.ReadTimeout,
		WriteTimeout: cfg.HttpServer.WriteTimeout,
		IdleTimeout:  cfg.HttpServer.IdleTimeout,
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("HTTP server startup failed: %v", err)
		}
	}()

	fmt.Printf("🔥 Fire Map Server running on http://localhost:%d\n", cfg.Port)
	fmt.Printf("📁 Serving files from: %s\n", wd)
	fmt.Printf("🌐 API endpoint: http://localhost:%d%s\n", cfg.Port, cfg.APIPath)
	fmt.Println("Press Ctrl+C to stop the server")

	// 5. Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.Printf("Received shutdown signal: %s, shutting down...", sig)
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HttpServer.ShutdownTimeout)
	defer shutdownCancel()

	// websocket connections are hijacked and not tracked by Shutdown
	hub.Close()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Printf("HTTP server shutdown failed: %v", err)
	}
	<-done
	apiHandler.Wait()
	fmt.Println("Server stopped")
}

// installDir is the directory holding the running executable, or "" when
// it cannot be resolved.
func installDir() string {
	exe, err := os.Executable()
	if err != nil {
		return ""
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Dir(exe)
}
