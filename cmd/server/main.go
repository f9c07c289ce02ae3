// cmd/server/main.go
package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/gurkanbulca/tasktracker/internal/config"
	"github.com/gurkanbulca/tasktracker/internal/database"
	"github.com/gurkanbulca/tasktracker/internal/middleware"
	"github.com/gurkanbulca/tasktracker/internal/notification"
	"github.com/gurkanbulca/tasktracker/internal/repository"
	"github.com/gurkanbulca/tasktracker/internal/service"
	"github.com/gurkanbulca/tasktracker/internal/workflow"
	"github.com/gurkanbulca/tasktracker/pkg/auth"
	"github.com/gurkanbulca/tasktracker/pkg/email"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.ValidateConfig(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	log.Printf("Connecting to %s database...", cfg.Database.Driver)
	db, err := database.Open(cfg.ToDatabaseConfig())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Printf("Failed to close database connection: %v", err)
		}
	}()

	if cfg.Server.AutoMigrate {
		if err := database.Migrate(context.Background(), db); err != nil {
			log.Fatalf("Failed to run auto migration: %v", err)
		}
	}

	tokenManager := auth.NewTokenManager(cfg.JWT.AccessSecret, cfg.JWT.AccessTokenDuration)
	emailService := newEmailService(cfg)

	dispatcher := notification.NewDispatcher(
		repository.NewNotificationRepository(),
		repository.NewUserRepository(),
		emailService,
		cfg.Email.SendTimeout,
	)
	wf := workflow.New(db, dispatcher, workflow.Config{
		TxTimeout:     cfg.Workflow.TxTimeout,
		AdminOverride: cfg.Workflow.AdminOverride,
	})

	metadataExtractor := middleware.NewMetadataExtractorInterceptor()
	authInterceptor := middleware.NewAuthInterceptor(tokenManager)
	validationInterceptor := middleware.NewValidationInterceptor(cfg.ToValidationConfig())

	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			metadataExtractor.Unary(),
			validationInterceptor.Unary(),
			authInterceptor.Unary(),
			loggingInterceptor,
		),
		grpc.ChainStreamInterceptor(
			metadataExtractor.Stream(),
			authInterceptor.Stream(),
		),
	)

	service.RegisterTaskServer(grpcServer, service.NewTaskService(wf))
	service.RegisterNotificationServer(grpcServer, service.NewNotificationService(wf))
	service.RegisterUserServer(grpcServer, service.NewUserService(wf))

	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus(service.TaskServiceName, grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(service.NotificationServiceName, grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(service.UserServiceName, grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)

	if cfg.Server.EnableReflection {
		reflection.Register(grpcServer)
		log.Println("gRPC reflection enabled (disable in production)")
	}

	listener, err := net.Listen("tcp", fmt.Sprintf(":%s", cfg.Server.GRPCPort))
	if err != nil {
		log.Fatalf("Failed to listen: %v", err)
	}

	go func() {
		log.Printf("🚀 TaskTracker gRPC server listening on port %s", cfg.Server.GRPCPort)
		if err := grpcServer.Serve(listener); err != nil {
			log.Fatalf("Failed to serve: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("📴 Shutting down server...")
	healthServer.Shutdown()
	grpcServer.GracefulStop()
	// Let in-flight notification emails finish.
	wf.Wait()
	log.Println("✅ Server shutdown complete")
}

func newEmailService(cfg *config.Config) email.EmailService {
	if cfg.Email.TestingMode || cfg.IsDevelopment() {
		log.Println("Using mock email service for development/testing")
		return email.NewMockEmailService()
	}

	log.Println("Using SMTP email service")
	smtpService := email.NewSMTPEmailService(cfg.ToEmailConfig())

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Email.SendTimeout)
	defer cancel()
	if err := smtpService.TestConnection(ctx); err != nil {
		log.Printf("Warning: SMTP connection test failed: %v", err)
	} else {
		log.Println("SMTP connection test successful")
	}
	return smtpService
}

// loggingInterceptor logs incoming requests
func loggingInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	duration := time.Since(start)

	clientInfo := middleware.GetClientInfoFromContext(ctx)
	logLevel := "INFO"
	if err != nil {
		logLevel = "ERROR"
	}
	log.Printf("[%s] %s completed in %v (request: %s, user: %s, ip: %s)",
		logLevel, info.FullMethod, duration, clientInfo.RequestID, clientInfo.UserID, clientInfo.IPAddress)
	if err != nil {
		log.Printf("[ERROR] %s error: %v", info.FullMethod, err)
	}
	return resp, err
}
