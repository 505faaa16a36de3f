package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/mbeoliero/kit/log"
	"github.com/mbeoliero/nexo-chat/internal/config"
	"github.com/mbeoliero/nexo-chat/internal/entity"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Repositories holds all repositories
type Repositories struct {
	DB           *gorm.DB
	Redis        *redis.Client
	User         *UserRepo
	Message      *MessageRepo
	Delivery     *DeliveryRepo
	Conversation *ConversationRepo
	Inbox        *InboxRepo
	Restriction  *RestrictionRepo
}

// NewRepositories creates all repositories
func NewRepositories(cfg *config.Config) (*Repositories, error) {
	// Initialize MySQL
	db, err := initMySQL(cfg)
	if err != nil {
		return nil, err
	}

	if cfg.MySQL.AutoMigrate {
		if err := AutoMigrate(db); err != nil {
			return nil, err
		}
	}

	// Initialize Redis
	rdb := initRedis(cfg)

	return NewRepositoriesWith(db, rdb, cfg.Suspension.CacheTTL), nil
}

// NewRepositoriesWith wires repositories over existing connections
func NewRepositoriesWith(db *gorm.DB, rdb *redis.Client, suspensionTTL time.Duration) *Repositories {
	return &Repositories{
		DB:           db,
		Redis:        rdb,
		User:         NewUserRepo(db, rdb),
		Message:      NewMessageRepo(db, rdb),
		Delivery:     NewDeliveryRepo(db, rdb),
		Conversation: NewConversationRepo(db, rdb),
		Inbox:        NewInboxRepo(db, rdb),
		Restriction:  NewRestrictionRepo(db, rdb, suspensionTTL),
	}
}

// AutoMigrate creates or updates the chat tables
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&entity.User{},
		&entity.AccountRestriction{},
		&entity.Conversation{},
		&entity.ConversationMember{},
		&entity.PinnedChat{},
		&entity.Message{},
		&entity.SeenRecord{},
		&entity.Reaction{},
		&entity.MessageHide{},
	)
}

// initMySQL initializes MySQL connection
func initMySQL(cfg *config.Config) (*gorm.DB, error) {
	var logLevel logger.LogLevel
	if cfg.Server.Mode == "debug" {
		logLevel = logger.Info
	} else {
		logLevel = logger.Warn
	}

	db, err := gorm.Open(mysql.Open(cfg.MySQL.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	sqlDB.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MySQL.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return db, nil
}

// initRedis initializes Redis connection
func initRedis(cfg *config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

// Close closes all connections
func (r *Repositories) Close() error {
	sqlDB, err := r.DB.DB()
	if err != nil {
		return err
	}
	if err := sqlDB.Close(); err != nil {
		return err
	}
	return r.Redis.Close()
}

// Transaction executes fn in a transaction
func (r *Repositories) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.DB.WithContext(ctx).Transaction(fn)
}

// TransactionWithOptions executes fn in a transaction with options
func (r *Repositories) TransactionWithOptions(ctx context.Context, opts *sql.TxOptions, fn func(tx *gorm.DB) error) error {
	return r.DB.WithContext(ctx).Transaction(fn, opts)
}

// CheckConnection checks if database and redis connections are alive
func (r *Repositories) CheckConnection(ctx context.Context) error {
	// Check MySQL
	sqlDB, err := r.DB.DB()
	if err != nil {
		return err
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		log.CtxError(ctx, "mysql ping failed: %v", err)
		return err
	}

	// Check Redis
	if err := r.Redis.Ping(ctx).Err(); err != nil {
		log.CtxError(ctx, "redis ping failed: %v", err)
		return err
	}

	return nil
}
