package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/rideflow/gateway/internal/config"
	"github.com/rideflow/gateway/internal/handler"
	"github.com/rideflow/gateway/internal/middleware"
	"github.com/rideflow/gateway/internal/registry"
	"github.com/rideflow/gateway/internal/service"
	"github.com/rideflow/gateway/internal/transport"
	"github.com/rideflow/gateway/pkg/logger"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	log.Info("Starting RideFlow gateway")

	reg := registry.NewRegistry(log)
	for _, svcConfig := range cfg.ToServiceConfigs() {
		if err := reg.Register(svcConfig); err != nil {
			log.WithError(err).Fatal("Failed to register service")
		}
	}

	log.WithFields(map[string]interface{}{
		"port":     cfg.Server.Port,
		"services": len(cfg.Services),
	}).Info("Gateway configuration loaded")

	metrics := service.NewMetrics()
	httpTransport := transport.NewHTTPTransport(log)
	router := service.NewRequestRouter(reg, httpTransport, metrics, log)

	healthChecker := service.NewHealthChecker(service.HealthCheckConfig{
		Enabled:  cfg.HealthCheck.Enabled,
		Interval: cfg.HealthCheck.Interval,
		Timeout:  cfg.HealthCheck.Timeout,
	}, reg, log)

	gatewayHandler := handler.NewGatewayHandler(router, log)
	adminHandler := handler.NewAdminHandler(reg, metrics, log)

	muxRouter := mux.NewRouter()

	var adminMiddleware func(http.Handler) http.Handler
	if cfg.Admin.Enabled {
		adminAuth := middleware.NewAdminAuth(cfg.Admin.JWTSecret, log)
		adminMiddleware = adminAuth.Middleware()
	}
	adminHandler.RegisterRoutes(muxRouter, adminMiddleware)
	muxRouter.PathPrefix("/").Handler(gatewayHandler)

	middlewares := []func(http.Handler) http.Handler{
		middleware.RecoveryMiddleware(log),
		middleware.LoggingMiddleware(log),
	}
	if cfg.RateLimit.Enabled {
		rateLimiter := middleware.NewRateLimiter(cfg.RateLimit, log)
		middlewares = append(middlewares, rateLimiter.Middleware())
		log.Info("Rate limiting enabled")
	}

	var finalHandler http.Handler = muxRouter
	for i := len(middlewares) - 1; i >= 0; i-- {
		finalHandler = middlewares[i](finalHandler)
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      finalHandler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := healthChecker.Start(ctx); err != nil {
		log.WithError(err).Fatal("Failed to start health checker")
	}

	go func() {
		log.WithField("port", cfg.Server.Port).Info("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("HTTP server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	log.Info("Shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	healthChecker.Stop()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Error shutting down HTTP server")
	}

	log.Info("Gateway stopped gracefully")
}
