// Survey notification server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/survey-notify/internal/api"
	"github.com/ashureev/survey-notify/internal/config"
	"github.com/ashureev/survey-notify/internal/debuglog"
	"github.com/ashureev/survey-notify/internal/health"
	"github.com/ashureev/survey-notify/internal/middleware"
	"github.com/ashureev/survey-notify/internal/notify"
	"github.com/ashureev/survey-notify/internal/push"
	"github.com/ashureev/survey-notify/internal/session"
	"github.com/ashureev/survey-notify/internal/store"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"google.golang.org/grpc"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "grpc_health_port", cfg.GRPCHealthPort, "dev", cfg.IsDevelopment())

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	debugKey, err := loadDebugLogKey(cfg.DebugLog.KeyHex)
	if err != nil {
		slog.Error("Failed to prepare debug log key", "error", err)
		os.Exit(1)
	}
	debugLog, err := debuglog.Open(debuglog.Config{
		Path:      cfg.DebugLog.Path,
		Key:       debugKey,
		QueueSize: cfg.DebugLog.QueueSize,
	}, logger)
	if err != nil {
		slog.Error("Failed to open debug log", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := debugLog.Close(); closeErr != nil {
			slog.Error("Failed to close debug log", "error", closeErr)
		}
	}()

	// Initialize services.
	hub := push.NewHub(cfg.NotificationsEnabled, originHosts(cfg.AllowedOrigins), logger)
	dispatcher := notify.New(repo, hub, debugLog, logger)
	messenger := notify.NewMessenger(repo, hub, logger)
	sessions := session.NewManager(repo, hub, logger)
	hub.OnDismiss(dispatcher.DismissNotification)

	restored := dispatcher.RestoreNotifications(context.Background())
	slog.Info("Notification state restored", "surveys", len(restored))

	// Initialize handlers.
	baseHandler := api.NewHandler(repo, dispatcher, messenger, sessions, logger)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	api.NewHealthHandler(repo).RegisterHealth(r)
	api.NewSurveyHandler(baseHandler).RegisterRoutes(r)
	api.NewSessionHandler(baseHandler).RegisterRoutes(r)
	api.NewMessageHandler(baseHandler).RegisterRoutes(r)

	// WebSocket endpoint.
	r.Get("/ws/notifications", hub.ServeHTTP)

	// WriteTimeout stays 0 so device websockets are not cut off.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start gRPC health service.
	monitor := health.NewMonitor(repo, cfg.HealthCheckInterval, logger)
	monitor.Start(ctx)
	grpcServer := grpc.NewServer()
	monitor.Register(grpcServer)

	grpcLis, err := net.Listen("tcp", ":"+cfg.GRPCHealthPort)
	if err != nil {
		slog.Error("Failed to listen for gRPC health", "error", err)
		os.Exit(1)
	}
	go func() {
		slog.Info("gRPC health listening", "addr", grpcLis.Addr().String())
		if err := grpcServer.Serve(grpcLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			slog.Error("gRPC health server failed", "error", err)
		}
	}()

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")
	monitor.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}
	grpcServer.GracefulStop()

	slog.Info("Server stopped successfully")
}
