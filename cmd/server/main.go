package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"meteor-deploy-manager/internal/config"
	"meteor-deploy-manager/internal/handler"
	"meteor-deploy-manager/internal/model"
	"meteor-deploy-manager/internal/pkg/deployconf"
	"meteor-deploy-manager/internal/pkg/logger"
	"meteor-deploy-manager/internal/router"
	"meteor-deploy-manager/internal/service"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := config.LoadEnvFiles(); err != nil {
		log.Fatal("Failed to load .env file:", err)
	}
	cfg := config.LoadConfig()

	appLogger, err := logger.NewLogger(logger.Options{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		File:      cfg.Logging.File,
		MaxSizeMB: cfg.Logging.MaxSizeMB,
		MaxFiles:  cfg.Logging.MaxFiles,
	})
	if err != nil {
		log.Fatal("Failed to create logger:", err)
	}
	defer appLogger.Sync()

	configPath := filepath.Join(cfg.Project.Path, cfg.Project.ConfigFile)
	loadDeployment := func() (*model.DeploymentConfig, error) {
		return deployconf.Load(configPath)
	}

	sshService := service.NewSSHService(cfg.SSH, appLogger)
	deployService := service.NewDeployService(sshService, cfg.SSH.StepTimeoutDuration(), appLogger)
	taskService := service.NewTaskService(deployService, loadDeployment, appLogger)

	deployHandler := handler.NewDeployHandler(taskService)
	taskHandler := handler.NewTaskHandler(taskService)
	streamHandler := handler.NewStreamHandler(taskService, cfg.Server.AllowOrigins, appLogger)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.Server.AllowOrigins
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type"}
	r.Use(cors.New(corsConfig))

	router.RegisterRoutes(r, deployHandler, taskHandler, streamHandler)

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		appLogger.Infof("Server starting on %s, serving %s", addr, configPath)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	appLogger.Info("Shutting down; running tasks will be interrupted")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Errorf("HTTP shutdown: %v", err)
	}
	if err := taskService.Shutdown(shutdownCtx); err != nil {
		appLogger.Errorf("Tasks did not stop in time: %v", err)
	}
}
