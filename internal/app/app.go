package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"review-portal/review-portal-backend/internal/config"
	"review-portal/review-portal-backend/internal/documents"
	"review-portal/review-portal-backend/internal/notifications"
	"review-portal/review-portal-backend/internal/notifications/websocket"
	"review-portal/review-portal-backend/pkg/storage"
)

// App holds the wired services shared by the API server and the workers
type App struct {
	Documents     documents.Service
	Notifications *notifications.Service
	WSManager     *websocket.Manager

	logger  *zap.Logger
	db      *sqlx.DB
	awsCfg  *aws.Config
	closers []func()
}

// Build connects the configured backends and wires the document workflow
// to its notification channels.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{logger: logger}

	repo, err := a.repository(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	s3Client, err := a.s3Client(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	provider := documents.NewStorageProvider(s3Client, cfg.Storage.Bucket, cfg.Storage.PresignTTL.Duration)
	versions := documents.NewVersionStore(repo, provider)
	bus := documents.NewEventBus(logger)
	a.Documents = documents.NewService(repo, versions, documents.NewWorkflowService(), bus, logger)

	store, err := a.notificationStore(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.WSManager = websocket.NewManager(cfg.Server.AllowedOrigins, logger)
	a.closers = append(a.closers, a.WSManager.Close)

	channels, err := a.channels(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Notifications = notifications.NewService(store, logger, channels...)
	bus.Subscribe(a.Notifications.Notify)

	return a, nil
}

func (a *App) repository(ctx context.Context, cfg *config.Config) (documents.Repository, error) {
	switch strings.ToLower(cfg.Repository.Backend) {
	case "memory":
		a.logger.Warn("Using in-memory document repository")
		return documents.NewMemoryRepository(), nil
	case "dynamodb":
		awsCfg, err := a.aws(ctx, cfg)
		if err != nil {
			return nil, err
		}
		a.logger.Info("Using DynamoDB document repository", zap.String("table", cfg.Dynamo.TableName))
		return documents.NewDynamoRepository(dynamodb.NewFromConfig(awsCfg), cfg.Dynamo.TableName), nil
	default:
		db, err := sqlx.Connect("postgres", cfg.Database.GetDatabaseURL())
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		db.SetMaxOpenConns(cfg.Database.MaxConnections)
		db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
		db.SetConnMaxLifetime(cfg.Database.MaxLifetime.Duration)
		a.db = db
		a.closers = append(a.closers, func() { db.Close() })

		if cfg.Database.AutoMigrate {
			if err := documents.Migrate(ctx, db); err != nil {
				return nil, err
			}
		}
		a.logger.Info("Using PostgreSQL document repository",
			zap.String("host", cfg.Database.Host),
			zap.String("database", cfg.Database.DBName))
		return documents.NewRepository(db), nil
	}
}

func (a *App) s3Client(ctx context.Context, cfg *config.Config) (storage.S3Client, error) {
	if strings.EqualFold(cfg.Storage.Backend, "memory") {
		a.logger.Warn("Using in-memory file storage")
		return storage.NewMemoryS3Client("memory:/"), nil
	}
	awsCfg, err := a.aws(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return storage.NewS3Client(awsCfg, cfg.Storage.UsePathStyle), nil
}

// notificationStore opens the inbox on PostgreSQL whatever the document
// backend is, sharing the document pool when there is one.
func (a *App) notificationStore(cfg *config.Config) (notifications.Store, error) {
	if !cfg.SharedInbox() {
		a.logger.Warn("Using in-memory notification inbox")
		return notifications.NewMemoryStore(), nil
	}

	dialector := postgres.Open(cfg.Database.GetDatabaseURL())
	if a.db != nil {
		dialector = postgres.New(postgres.Config{Conn: a.db.DB})
	}
	gdb, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to open notification database: %w", err)
	}
	if a.db == nil {
		sqlDB, err := gdb.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get notification database handle: %w", err)
		}
		sqlDB.SetMaxOpenConns(cfg.Database.MaxConnections)
		sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
		sqlDB.SetConnMaxLifetime(cfg.Database.MaxLifetime.Duration)
		a.closers = append(a.closers, func() { sqlDB.Close() })
	}
	return notifications.NewGormStore(gdb)
}

func (a *App) channels(ctx context.Context, cfg *config.Config) ([]notifications.Channel, error) {
	channels := []notifications.Channel{notifications.NewWebSocketChannel(a.WSManager)}

	if cfg.Notifications.EmailEnabled {
		awsCfg, err := a.aws(ctx, cfg)
		if err != nil {
			return nil, err
		}
		channels = append(channels, notifications.NewEmailChannel(
			sesv2.NewFromConfig(awsCfg),
			cfg.Notifications.FromAddress,
			notifications.DomainResolver(cfg.Notifications.EmailDomain),
		))
	}
	if cfg.Notifications.SNSTopicARN != "" {
		awsCfg, err := a.aws(ctx, cfg)
		if err != nil {
			return nil, err
		}
		channels = append(channels, notifications.NewSNSPublisher(sns.NewFromConfig(awsCfg), cfg.Notifications.SNSTopicARN))
	}
	return channels, nil
}

func (a *App) aws(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	if a.awsCfg != nil {
		return *a.awsCfg, nil
	}
	awsCfg, err := storage.LoadAWSConfig(ctx, storage.AWSOptions{
		Region:          cfg.AWS.Region,
		Endpoint:        cfg.AWS.Endpoint,
		AccessKeyID:     cfg.AWS.AccessKeyID,
		SecretAccessKey: cfg.AWS.SecretAccessKey,
	})
	if err != nil {
		return aws.Config{}, err
	}
	a.awsCfg = &awsCfg
	return awsCfg, nil
}

// Close releases connections in reverse order of acquisition
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
