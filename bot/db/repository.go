package db

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/liuran001/MuzmoBot-Go/bot"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

const sendCountKey = "send_count"

// Repository provides access to the delivered-file cache database.
type Repository struct {
	db *gorm.DB
}

// NewSQLiteRepository creates a repository backed by SQLite.
func NewSQLiteRepository(dsn string, gormLogger logger.Interface) (*Repository, error) {
	if dsn == "" {
		return nil, fmt.Errorf("dsn required")
	}

	if gormLogger == nil {
		gormLogger = logger.Default.LogMode(logger.Silent)
	}

	dbDir := filepath.Dir(dsn)
	if dbDir != "" && dbDir != "." {
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		PrepareStmt:            true,
		SkipDefaultTransaction: true,
		Logger:                 gormLogger,
	})
	if err != nil {
		return nil, err
	}

	if err := applySQLitePragmas(db); err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&SongInfoModel{}, &BotStatModel{}); err != nil {
		return nil, err
	}

	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return &Repository{db: db}, nil
}

// ConfigurePool updates the database connection pool settings.
func (r *Repository) ConfigurePool(maxOpen, maxIdle int, maxLifetime time.Duration) error {
	if r == nil || r.db == nil {
		return errors.New("repository not configured")
	}
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	if maxOpen >= 0 {
		sqlDB.SetMaxOpenConns(maxOpen)
	}
	if maxIdle >= 0 {
		sqlDB.SetMaxIdleConns(maxIdle)
	}
	if maxLifetime >= 0 {
		sqlDB.SetConnMaxLifetime(maxLifetime)
	}
	return nil
}

// FindByItemID returns a cached song by source item id.
func (r *Repository) FindByItemID(ctx context.Context, itemID string) (*bot.SongInfo, error) {
	var model SongInfoModel
	err := r.db.WithContext(ctx).Where("item_id = ?", itemID).First(&model).Error
	if err != nil {
		return nil, err
	}
	return toInternal(model), nil
}

// Create inserts a song record, replacing an existing row for the same item.
func (r *Repository) Create(ctx context.Context, song *bot.SongInfo) error {
	if song == nil {
		return errors.New("song required")
	}
	if song.ID != 0 {
		return r.update(ctx, song)
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		model := toModel(song)
		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "item_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"deleted_at",
				"updated_at",
				"display_name",
				"duration_label",
				"performer",
				"title",
				"file_name",
				"music_size",
				"file_id",
				"delivery",
				"from_user_id",
				"from_user_name",
				"from_chat_id",
				"from_chat_name",
			}),
		}).Create(model).Error; err != nil {
			return err
		}
		if err := tx.Where("item_id = ?", model.ItemID).First(model).Error; err != nil {
			return err
		}
		song.ID = model.ID
		song.CreatedAt = model.CreatedAt
		song.UpdatedAt = model.UpdatedAt
		return nil
	})
}

func (r *Repository) update(ctx context.Context, song *bot.SongInfo) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		model := toModel(song)
		return tx.Save(model).Error
	})
}

// DeleteByItemID removes a cached song, e.g. after Telegram rejected its file id.
func (r *Repository) DeleteByItemID(ctx context.Context, itemID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Unscoped().Delete(&SongInfoModel{}, "item_id = ?", itemID).Error
	})
}

// Count returns total cached songs.
func (r *Repository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&SongInfoModel{}).Count(&count).Error
	return count, err
}

// CountByUserID returns cached count by user ID.
func (r *Repository) CountByUserID(ctx context.Context, userID int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&SongInfoModel{}).Where("from_user_id = ?", userID).Count(&count).Error
	return count, err
}

// CountByChatID returns cached count by chat ID.
func (r *Repository) CountByChatID(ctx context.Context, chatID int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&SongInfoModel{}).Where("from_chat_id = ?", chatID).Count(&count).Error
	return count, err
}

// GetSendCount returns total successful send count.
func (r *Repository) GetSendCount(ctx context.Context) (int64, error) {
	if r == nil || r.db == nil {
		return 0, errors.New("repository not configured")
	}
	var stat BotStatModel
	err := r.db.WithContext(ctx).Where("key = ?", sendCountKey).First(&stat).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return stat.Value, nil
}

// IncrementSendCount increments total successful send count.
func (r *Repository) IncrementSendCount(ctx context.Context) error {
	if r == nil || r.db == nil {
		return errors.New("repository not configured")
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&BotStatModel{}).Where("key = ?", sendCountKey).UpdateColumn("value", gorm.Expr("value + ?", 1))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			return nil
		}
		return tx.Create(&BotStatModel{Key: sendCountKey, Value: 1}).Error
	})
}

// Last returns the most recently delivered song.
func (r *Repository) Last(ctx context.Context) (*bot.SongInfo, error) {
	var model SongInfoModel
	if err := r.db.WithContext(ctx).Order("updated_at desc").Order("id desc").First(&model).Error; err != nil {
		return nil, err
	}
	return toInternal(model), nil
}

func applySQLitePragmas(db *gorm.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA cache_size=-64000;",
		"PRAGMA foreign_keys=ON;",
	}
	for _, stmt := range pragmas {
		if err := db.Exec(stmt).Error; err != nil {
			return err
		}
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("get sql.DB: %w", err)
	}
	return sqlDB.Close()
}
