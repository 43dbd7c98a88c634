package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"goharmonic/internal"
	"goharmonic/internal/api"
	"goharmonic/internal/config"
	"goharmonic/internal/container"
)

func main() {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	appConfig, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger := internal.NewLogger(internal.ParseLevel(appConfig.Logging.Level), appConfig.Logging.Format)
	gin.SetMode(appConfig.Server.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	appContainer, err := container.New(appConfig, logger)
	if err != nil {
		logger.Error("failed to create application container: %v", err)
		os.Exit(1)
	}
	defer appContainer.Shutdown()

	if err := appContainer.InitWithDatabase(ctx); err != nil {
		logger.Error("failed to initialize result database: %v", err)
		os.Exit(1)
	}

	opts := []api.Option{api.WithSinks(appContainer.Sinks)}
	if history := appContainer.History(); history != nil {
		opts = append(opts, api.WithHistory(history))
	}
	server := api.NewServer(ctx, appContainer.Service, logger.With("component", "api"), opts...)

	httpServer := &http.Server{
		Addr:              ":" + appConfig.Server.Port,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("serving %s analysis on %s", appContainer.Run.Name, httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed: %v", err)
	}
	server.Wait()
}
