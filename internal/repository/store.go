package repository

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormLogger "gorm.io/gorm/logger"

	"github.com/core-coin/solvere/internal/models"
	"github.com/core-coin/solvere/pkg/logger"
	"github.com/core-coin/solvere/pkg/validation"
)

var _ models.Repository = (*Store)(nil)

// Store is the GORM implementation of models.Repository. Every query is
// filtered by the (account, chain) scope.
type Store struct {
	logger *logger.Logger

	Conn *gorm.DB
}

func gormConfig() *gorm.Config {
	// Configure GORM logger to suppress "record not found" messages
	l := gormLogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormLogger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  true,
		},
	)
	return &gorm.Config{Logger: l, TranslateError: true}
}

func NewPostgresDB(user, password, dbname, host string, port int, logger *logger.Logger) (*Store, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable",
		host, user, password, dbname, port)

	db, err := gorm.Open(postgres.Open(dsn), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	store, err := newStore(db, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("Successfully connected to PostgreSQL!")
	return store, nil
}

// NewSQLiteDB opens a pure Go SQLite database. path may be a file name or a
// DSN such as "file:solvere?mode=memory&cache=shared".
func NewSQLiteDB(path string, logger *logger.Logger) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	store, err := newStore(db, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("Opened SQLite database", "path", path)
	return store, nil
}

func newStore(db *gorm.DB, logger *logger.Logger) (*Store, error) {
	if err := db.AutoMigrate(&models.Subscription{}, &models.Token{}, &models.ActivityAction{}); err != nil {
		return nil, fmt.Errorf("failed to auto-migrate models: %w", err)
	}
	return &Store{Conn: db, logger: logger.Named("repository")}, nil
}

func (db *Store) Close() error {
	sqlDB, err := db.Conn.DB()
	if err != nil {
		return fmt.Errorf("failed to get database connection: %w", err)
	}
	return sqlDB.Close()
}

func (db *Store) scoped(ctx context.Context, scope models.Scope) *gorm.DB {
	return db.Conn.WithContext(ctx).Where("account = ? AND chain_id = ?", scope.Account.Hex(), scope.ChainID)
}

func (db *Store) ListSubscriptions(ctx context.Context, scope models.Scope) ([]*models.Subscription, error) {
	var subs []*models.Subscription
	if err := db.scoped(ctx, scope).Order("id").Find(&subs).Error; err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	return subs, nil
}

func (db *Store) GetSubscription(ctx context.Context, scope models.Scope, id uint64) (*models.Subscription, error) {
	var sub models.Subscription
	if err := db.scoped(ctx, scope).Where("id = ?", id).First(&sub).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %d", models.ErrSubscriptionNotFound, id)
		}
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	return &sub, nil
}

func (db *Store) AddSubscription(ctx context.Context, sub *models.Subscription) error {
	sub.Account = normalize(sub.Account)
	if err := db.Conn.WithContext(ctx).Create(sub).Error; err != nil {
		if isDuplicate(err) {
			return fmt.Errorf("%w: %d", models.ErrSubscriptionExists, sub.ID)
		}
		return fmt.Errorf("failed to create subscription: %w", err)
	}
	db.logger.Debug("Added subscription", "scope", sub.Scope().String(), "id", sub.ID)
	return nil
}

func (db *Store) MarkSubscriptionCanceled(ctx context.Context, scope models.Scope, id uint64, canceledAt int64) error {
	res := db.scoped(ctx, scope).
		Model(&models.Subscription{}).
		Where("id = ? AND canceled_at IS NULL", id).
		Update("canceled_at", canceledAt)
	if res.Error != nil {
		return fmt.Errorf("failed to cancel subscription: %w", res.Error)
	}
	if res.RowsAffected == 1 {
		return nil
	}
	if _, err := db.GetSubscription(ctx, scope, id); err != nil {
		return err
	}
	return fmt.Errorf("%w: %d", models.ErrAlreadyCanceled, id)
}

func (db *Store) ListTokens(ctx context.Context, scope models.Scope) ([]*models.Token, error) {
	var tokens []*models.Token
	if err := db.scoped(ctx, scope).Order("symbol").Find(&tokens).Error; err != nil {
		return nil, fmt.Errorf("failed to list tokens: %w", err)
	}
	return tokens, nil
}

// AddToken stores a token. Importing a token again refreshes its metadata.
func (db *Store) AddToken(ctx context.Context, token *models.Token) error {
	token.Account = normalize(token.Account)
	token.Address = normalize(token.Address)
	err := db.Conn.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "account"}, {Name: "chain_id"}, {Name: "address"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "symbol", "decimals"}),
	}).Create(token).Error
	if err != nil {
		return fmt.Errorf("failed to add token: %w", err)
	}
	return nil
}

func (db *Store) ListActivity(ctx context.Context, scope models.Scope) ([]*models.ActivityAction, error) {
	var actions []*models.ActivityAction
	if err := db.scoped(ctx, scope).Order("timestamp DESC").Order("id").Find(&actions).Error; err != nil {
		return nil, fmt.Errorf("failed to list activity: %w", err)
	}
	return actions, nil
}

// AddActivity appends an action. Actions without a dedup key get a random
// one, so only subscription payments can collide.
func (db *Store) AddActivity(ctx context.Context, action *models.ActivityAction) (bool, error) {
	if action.ActivityType == models.ActivityNotice {
		return false, fmt.Errorf("notice actions are not stored")
	}
	action.Account = normalize(action.Account)
	if action.DedupKey == "" {
		action.DedupKey = uuid.NewString()
	}
	res := db.Conn.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(action)
	if res.Error != nil {
		return false, fmt.Errorf("failed to add activity action: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		db.logger.Debug("Skipped duplicate activity", "account", action.Account, "chain_id", action.ChainID, "key", action.DedupKey)
		return false, nil
	}
	return true, nil
}

// normalize stores addresses in their checksummed form so that scope filters match.
func normalize(address string) string {
	if !common.IsHexAddress(address) {
		return address
	}
	return validation.NormalizeAddress(address)
}

func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	// glebarez/sqlite reports UNIQUE violations as plain text.
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint failed") || strings.Contains(low, "constraint failed: unique")
}
