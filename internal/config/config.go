package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config represents the application configuration
type Config struct {
	Server        ServerConfig        `json:"server"`
	Database      DatabaseConfig      `json:"database"`
	Repository    RepositoryConfig    `json:"repository"`
	AWS           AWSConfig           `json:"aws"`
	Storage       StorageConfig       `json:"storage"`
	Dynamo        DynamoConfig        `json:"dynamo"`
	Notifications NotificationsConfig `json:"notifications"`
	Security      SecurityConfig      `json:"security"`
	Logging       LoggingConfig       `json:"logging"`
	Workers       WorkersConfig       `json:"workers"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Host         string   `json:"host"`
	Port         int      `json:"port"`
	ReadTimeout  Duration `json:"read_timeout"`
	WriteTimeout Duration `json:"write_timeout"`
	IdleTimeout  Duration `json:"idle_timeout"`
	Mode         string   `json:"mode"` // debug, release, test

	// AllowedOrigins limits CORS and websocket origins; empty allows any
	AllowedOrigins []string `json:"allowed_origins"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	Host           string   `json:"host"`
	Port           int      `json:"port"`
	User           string   `json:"user"`
	Password       string   `json:"password"`
	DBName         string   `json:"db_name"`
	SSLMode        string   `json:"ssl_mode"`
	MaxConnections int      `json:"max_connections"`
	MaxIdleConns   int      `json:"max_idle_conns"`
	MaxLifetime    Duration `json:"max_lifetime"`
	AutoMigrate    bool     `json:"auto_migrate"`
}

// RepositoryConfig selects where documents are persisted
type RepositoryConfig struct {
	Backend string `json:"backend"` // postgres, dynamodb, memory
}

type AWSConfig struct {
	Region          string `json:"region"`
	Endpoint        string `json:"endpoint"`
	AccessKeyID     string `json:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key"`
}

type StorageConfig struct {
	Backend      string   `json:"backend"` // s3, memory
	Bucket       string   `json:"bucket"`
	UsePathStyle bool     `json:"use_path_style"`
	PresignTTL   Duration `json:"presign_ttl"`
}

type DynamoConfig struct {
	TableName string `json:"table_name"`
}

type NotificationsConfig struct {
	// Store keeps the inbox apart from the document backend: postgres or memory
	Store        string `json:"store"`
	EmailEnabled bool   `json:"email_enabled"`
	FromAddress  string `json:"from_address"`
	// EmailDomain turns an employee ID into an address when no directory lookup exists
	EmailDomain string `json:"email_domain"`
	SNSTopicARN string `json:"sns_topic_arn"`
}

// SecurityConfig
type SecurityConfig struct {
	JWTSecret string   `json:"jwt_secret"`
	JWTIssuer string   `json:"jwt_issuer"`
	TokenTTL  Duration `json:"token_ttl"`
	DevBypass bool     `json:"dev_bypass"`
}

// LoggingConfig
type LoggingConfig struct {
	Level string `json:"level"`
}

type WorkersConfig struct {
	ReminderSchedule string   `json:"reminder_schedule"`
	ReminderTimeout  Duration `json:"reminder_timeout"`
	// EmbedReminders runs the reminder schedule inside the API process
	EmbedReminders bool `json:"embed_reminders"`
}

// Duration reads either a Go duration string ("30s") or integer seconds
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case float64:
		d.Duration = time.Duration(v) * time.Second
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", v, err)
		}
		d.Duration = parsed
	default:
		return fmt.Errorf("invalid duration %s", string(data))
	}
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// LoadConfig loads configuration from file and environment variables.
// A .env file in the working directory is applied before the environment is read.
func LoadConfig(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	config := defaults()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		switch {
		case err == nil:
			if err := json.Unmarshal(data, config); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		case !errors.Is(err, os.ErrNotExist):
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	overrideWithEnv(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  Duration{15 * time.Second},
			WriteTimeout: Duration{30 * time.Second},
			IdleTimeout:  Duration{60 * time.Second},
			Mode:         "debug",
		},
		Database: DatabaseConfig{
			Host:           "localhost",
			Port:           5432,
			User:           os.Getenv("USER"),
			DBName:         "review_portal",
			SSLMode:        "disable",
			MaxConnections: 25,
			MaxIdleConns:   5,
			MaxLifetime:    Duration{5 * time.Minute},
			AutoMigrate:    true,
		},
		Repository: RepositoryConfig{Backend: "postgres"},
		AWS:        AWSConfig{Region: "us-east-1"},
		Storage: StorageConfig{
			Backend:    "s3",
			Bucket:     "review-portal-documents",
			PresignTTL: Duration{5 * time.Minute},
		},
		Dynamo:        DynamoConfig{TableName: "review-portal-documents"},
		Notifications: NotificationsConfig{Store: "postgres"},
		Security: SecurityConfig{
			JWTIssuer: "review-portal",
			TokenTTL:  Duration{12 * time.Hour},
		},
		Logging: LoggingConfig{Level: "info"},
		Workers: WorkersConfig{
			ReminderSchedule: "0 0 9 * * MON-FRI",
			ReminderTimeout:  Duration{time.Minute},
		},
	}
}

func overrideWithEnv(config *Config) {
	setString(&config.Server.Host, "SERVER_HOST")
	setInt(&config.Server.Port, "SERVER_PORT")
	setString(&config.Server.Mode, "GIN_MODE")
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		config.Server.AllowedOrigins = nil
		for _, origin := range strings.Split(v, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				config.Server.AllowedOrigins = append(config.Server.AllowedOrigins, origin)
			}
		}
	}

	setString(&config.Database.Host, "DATABASE_HOST")
	setInt(&config.Database.Port, "DATABASE_PORT")
	setString(&config.Database.User, "DATABASE_USER")
	setString(&config.Database.Password, "DATABASE_PASSWORD")
	setString(&config.Database.DBName, "DATABASE_DBNAME")
	setString(&config.Database.SSLMode, "DATABASE_SSLMODE")
	setBool(&config.Database.AutoMigrate, "DATABASE_AUTO_MIGRATE")

	setString(&config.Repository.Backend, "REPOSITORY_BACKEND")

	setString(&config.AWS.Region, "AWS_REGION")
	setString(&config.AWS.Endpoint, "AWS_ENDPOINT_URL")
	setString(&config.AWS.AccessKeyID, "AWS_ACCESS_KEY_ID")
	setString(&config.AWS.SecretAccessKey, "AWS_SECRET_ACCESS_KEY")

	setString(&config.Storage.Backend, "STORAGE_BACKEND")
	setString(&config.Storage.Bucket, "S3_BUCKET")
	setBool(&config.Storage.UsePathStyle, "S3_USE_PATH_STYLE")
	setString(&config.Dynamo.TableName, "DYNAMO_TABLE")

	setString(&config.Notifications.Store, "NOTIFY_STORE")
	setBool(&config.Notifications.EmailEnabled, "NOTIFY_EMAIL_ENABLED")
	setString(&config.Notifications.FromAddress, "NOTIFY_FROM_ADDRESS")
	setString(&config.Notifications.EmailDomain, "NOTIFY_EMAIL_DOMAIN")
	setString(&config.Notifications.SNSTopicARN, "NOTIFY_SNS_TOPIC_ARN")

	setString(&config.Security.JWTSecret, "JWT_SECRET")
	setString(&config.Security.JWTIssuer, "JWT_ISSUER")
	setBool(&config.Security.DevBypass, "AUTH_DEV_BYPASS")

	setString(&config.Logging.Level, "LOG_LEVEL")
	setString(&config.Workers.ReminderSchedule, "REMINDER_SCHEDULE")
	setBool(&config.Workers.EmbedReminders, "REMINDERS_IN_API")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

// Validate rejects configurations the server cannot start with
func (c *Config) Validate() error {
	switch strings.ToLower(c.Repository.Backend) {
	case "postgres", "dynamodb", "memory":
	default:
		return fmt.Errorf("unknown repository backend %q", c.Repository.Backend)
	}
	switch strings.ToLower(c.Storage.Backend) {
	case "s3", "memory":
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	switch strings.ToLower(c.Notifications.Store) {
	case "postgres", "memory":
	default:
		return fmt.Errorf("unknown notification store %q", c.Notifications.Store)
	}
	if c.Security.JWTSecret == "" && !c.Security.DevBypass {
		return errors.New("security.jwt_secret is required unless dev_bypass is enabled")
	}
	if c.Notifications.EmailEnabled && c.Notifications.FromAddress == "" {
		return errors.New("notifications.from_address is required when email is enabled")
	}
	return nil
}

// SharedInbox reports whether separate processes see the same notification inbox
func (c *Config) SharedInbox() bool {
	return !strings.EqualFold(c.Notifications.Store, "memory")
}

// GetDatabaseURL returns the database connection string
func (c *DatabaseConfig) GetDatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode)
}

// GetServerAddr returns the server address
func (c *ServerConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
