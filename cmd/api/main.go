package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lostfound-api/internal/config"
	"github.com/lostfound-api/internal/infrastructure/dynamo"
	jwtinfra "github.com/lostfound-api/internal/infrastructure/jwt"
	s3infra "github.com/lostfound-api/internal/infrastructure/s3"
	"github.com/lostfound-api/internal/infrastructure/smtp"
	"github.com/lostfound-api/internal/infrastructure/sns"
	transporthttp "github.com/lostfound-api/internal/transport/http"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading from environment")
	}

	cfg := config.Load()

	// Bootstrap DynamoDB tables (creates them if they don't exist).
	dynamoClient := dynamo.NewClient(cfg)
	dynamo.Bootstrap(context.Background(), dynamoClient, cfg.DynamoTables)

	// JWT provider, optional. Auth routes fall back to passthrough if keys
	// are missing.
	var jwtProvider *jwtinfra.Provider
	if p, err := jwtinfra.NewProvider(cfg); err == nil {
		jwtProvider = p
	} else {
		log.Printf("WARN: JWT provider not available: %v", err)
	}

	// S3 image store.
	s3Client := s3infra.NewClient(cfg)
	imageStore := s3infra.NewImageStore(s3Client, cfg.S3BucketName)

	// SMTP mailer.
	mailer := smtp.NewMailer(cfg)

	// SNS push publisher, optional.
	var pushPublisher sns.PushPublisher
	if pub, err := sns.NewPublisher(cfg); err == nil {
		pushPublisher = pub
	} else {
		log.Printf("WARN: SNS publisher not available: %v", err)
	}

	itemRepo := dynamo.NewItemRepo(dynamoClient, cfg.DynamoTables.Items)

	deps := &transporthttp.Deps{
		UserRepo:         dynamo.NewUserRepo(dynamoClient, cfg.DynamoTables.Users),
		SessionRepo:      dynamo.NewSessionRepo(dynamoClient, cfg.DynamoTables.Sessions),
		ItemRepo:         itemRepo,
		ClaimRepo:        dynamo.NewClaimRepo(dynamoClient, cfg.DynamoTables.Claims, cfg.DynamoTables.Items),
		NotificationRepo: dynamo.NewNotificationRepo(dynamoClient, cfg.DynamoTables.Notifications),
		ActivityLogRepo:  dynamo.NewActivityLogRepo(dynamoClient, cfg.DynamoTables.ActivityLogs),
		Watcher:          dynamo.NewWatcher(itemRepo, cfg.WatchPollInterval),
		ImageStore:       imageStore,
		Mailer:           mailer,
		PushPublisher:    pushPublisher,
		JWTProvider:      jwtProvider,
	}

	router := transporthttp.NewRouter(cfg, deps)

	srv := &http.Server{
		Addr:        fmt.Sprintf(":%s", cfg.AppPort),
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: the watch endpoint holds its stream open.
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on :%s (env=%s)", cfg.AppPort, cfg.AppEnv)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("forced shutdown: %v", err)
	}
	log.Println("Server stopped")
}
