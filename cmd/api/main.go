package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dishdash-auth/internal/config"
	"github.com/dishdash-auth/internal/infrastructure/dynamo"
	jwtinfra "github.com/dishdash-auth/internal/infrastructure/jwt"
	"github.com/dishdash-auth/internal/infrastructure/memory"
	"github.com/dishdash-auth/internal/infrastructure/postgres"
	s3infra "github.com/dishdash-auth/internal/infrastructure/s3"
	"github.com/dishdash-auth/internal/infrastructure/smtp"
	"github.com/dishdash-auth/internal/infrastructure/sns"
	"github.com/dishdash-auth/internal/pkg/password"
	transporthttp "github.com/dishdash-auth/internal/transport/http"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading from environment")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)})))

	ctx := context.Background()
	deps, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("store: %v", err)
	}
	defer closeStore()

	deps.JWTProvider, err = jwtinfra.NewProvider(cfg)
	if err != nil {
		log.Fatalf("jwt provider: %v", err)
	}
	deps.Hasher, err = password.New(cfg.PasswordHasher)
	if err != nil {
		log.Fatalf("password hasher: %v", err)
	}

	// S3 store.
	s3Client, err := s3infra.NewClient(ctx, cfg)
	if err != nil {
		log.Fatalf("s3: %v", err)
	}
	deps.ObjectStore = s3infra.NewStore(s3Client, cfg.S3BucketName)

	deps.Mailer = smtp.NewMailer(cfg)

	// SNS SMS sender (optional, OTP over sms answers 502 without it).
	if cfg.SMSEnabled {
		if sender, err := sns.NewSender(ctx, cfg); err == nil {
			deps.SMSSender = sender
		} else {
			slog.Warn("SNS sender not available", "error", err)
		}
	}

	router := transporthttp.NewRouter(cfg, deps)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second + cfg.UploadTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "port", cfg.AppPort, "env", cfg.AppEnv, "store", cfg.StoreDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("forced shutdown: %v", err)
	}
	slog.Info("server stopped")
}

// openStore wires the user, challenge and profile repositories for the
// configured STORE_DRIVER.
func openStore(ctx context.Context, cfg *config.Config) (*transporthttp.Deps, func(), error) {
	switch cfg.StoreDriver {
	case config.StorePostgres:
		if cfg.AutoMigrate {
			if err := postgres.Migrate(cfg.DatabaseURL, "up"); err != nil {
				return nil, nil, fmt.Errorf("migrate: %w", err)
			}
		}
		pool, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return &transporthttp.Deps{
			UserRepo:      postgres.NewUserRepo(pool),
			ChallengeRepo: postgres.NewChallengeRepo(pool),
			ProfileRepo:   postgres.NewProfileRepo(pool),
		}, pool.Close, nil

	case config.StoreMemory:
		slog.Warn("using in-memory store, data is lost on restart")
		store := memory.New()
		return &transporthttp.Deps{
			UserRepo:      store.Users(),
			ChallengeRepo: store.Challenges(),
			ProfileRepo:   store.Profiles(),
		}, func() {}, nil

	default:
		client, err := dynamo.NewClient(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		// Creates the tables if they don't exist.
		dynamo.Bootstrap(ctx, client, cfg.DynamoTables)
		t := cfg.DynamoTables
		return &transporthttp.Deps{
			UserRepo:      dynamo.NewUserRepo(client, t.Users, t.UserKeys),
			ChallengeRepo: dynamo.NewChallengeRepo(client, t.Challenges),
			ProfileRepo:   dynamo.NewProfileRepo(client, t.Profiles),
		}, func() {}, nil
	}
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
