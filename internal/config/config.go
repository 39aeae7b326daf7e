package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Store drivers selectable with STORE_DRIVER.
const (
	StoreDynamo   = "dynamo"
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Config holds all runtime configuration loaded from environment variables.
type Config struct {
	AppPort  string `env:"APP_PORT" envDefault:"3000"`
	AppEnv   string `env:"APP_ENV" envDefault:"development"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	StoreDriver string `env:"STORE_DRIVER" envDefault:"dynamo"`
	DatabaseURL string `env:"DATABASE_URL"`
	// AutoMigrate applies the embedded Postgres migrations at startup.
	AutoMigrate bool `env:"AUTO_MIGRATE" envDefault:"true"`

	AWSRegion      string `env:"AWS_REGION" envDefault:"us-east-1"`
	AWSEndpointURL string `env:"AWS_ENDPOINT_URL"` // empty in prod, set to LocalStack URL in dev
	AWSAccessKeyID string `env:"AWS_ACCESS_KEY_ID"`
	AWSSecretKey   string `env:"AWS_SECRET_ACCESS_KEY"`
	DynamoTables   DynamoTables
	S3BucketName   string        `env:"S3_BUCKET_NAME" envDefault:"dishdash-profile-images"`
	UploadTimeout  time.Duration `env:"UPLOAD_TIMEOUT" envDefault:"30s"`
	MaxImageBytes  int64         `env:"MAX_IMAGE_BYTES" envDefault:"5242880"`
	ImageURLTTL    time.Duration `env:"IMAGE_URL_TTL" envDefault:"15m"`

	JWTPrivateKeyPath string        `env:"JWT_PRIVATE_KEY_PATH" envDefault:"./private_key.pem"`
	JWTPublicKeyPath  string        `env:"JWT_PUBLIC_KEY_PATH" envDefault:"./public_key.pem"`
	JWTIssuer         string        `env:"JWT_ISSUER" envDefault:"dishdash-auth"`
	JWTExpiry         time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"6h"`
	RefreshTokenTTL   time.Duration `env:"REFRESH_TOKEN_TTL" envDefault:"720h"`

	PasswordHasher string `env:"PASSWORD_HASHER" envDefault:"argon2id"`
	// LogoutRequireTokenMatch rejects a logout whose bearer token differs
	// from the stored access token.
	LogoutRequireTokenMatch bool `env:"LOGOUT_REQUIRE_TOKEN_MATCH" envDefault:"false"`

	OTPTTL            time.Duration `env:"OTP_TTL" envDefault:"10m"`
	NotifyTimeout     time.Duration `env:"NOTIFY_TIMEOUT" envDefault:"10s"`
	NotifyMaxAttempts uint          `env:"NOTIFY_MAX_ATTEMPTS" envDefault:"3"`

	SMTPHost     string `env:"SMTP_HOST" envDefault:"localhost"`
	SMTPPort     string `env:"SMTP_PORT" envDefault:"1025"`
	SMTPFrom     string `env:"SMTP_FROM" envDefault:"noreply@example.com"`
	SMTPUsername string `env:"SMTP_USERNAME"`
	SMTPPassword string `env:"SMTP_PASSWORD"`

	SNSRegion  string `env:"SNS_REGION" envDefault:"us-east-1"`
	SMSFrom    string `env:"SMS_FROM_NUMBER"`
	SMSEnabled bool   `env:"SMS_ENABLED" envDefault:"true"`

	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envDefault:"*" envSeparator:","` // CORS allowed origins
	// TrustProxyHeaders takes the client address from X-Forwarded-For /
	// X-Real-IP. Enable only behind a proxy that overwrites those headers.
	TrustProxyHeaders bool `env:"TRUST_PROXY_HEADERS" envDefault:"false"`
}

// DynamoTables holds the DynamoDB table name for each entity.
type DynamoTables struct {
	Users      string `env:"DYNAMO_TABLE_USERS" envDefault:"users"`
	UserKeys   string `env:"DYNAMO_TABLE_USER_KEYS" envDefault:"user_keys"`
	Challenges string `env:"DYNAMO_TABLE_OTP_CHALLENGES" envDefault:"otp_challenges"`
	Profiles   string `env:"DYNAMO_TABLE_PROFILES" envDefault:"profiles"`
}

// Load reads all configuration from environment variables.
func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.StoreDriver {
	case StoreDynamo, StoreMemory:
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_DRIVER=%s", StorePostgres)
		}
	default:
		return fmt.Errorf("STORE_DRIVER must be one of %q, %q, %q, got %q", StoreDynamo, StorePostgres, StoreMemory, c.StoreDriver)
	}
	if c.JWTExpiry <= 0 {
		return fmt.Errorf("ACCESS_TOKEN_TTL must be positive")
	}
	if c.OTPTTL <= 0 {
		return fmt.Errorf("OTP_TTL must be positive")
	}
	if c.NotifyMaxAttempts == 0 {
		return fmt.Errorf("NOTIFY_MAX_ATTEMPTS must be at least 1")
	}
	return nil
}
