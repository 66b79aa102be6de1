package repository

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotFound is returned when a key has no stored value.
var ErrNotFound = errors.New("record not found")

// SettingRepository persists key/value settings in SQL.
type SettingRepository struct {
	db    *gorm.DB
	retry Retrier
}

// NewSettingRepository creates a new repository instance.
func NewSettingRepository(db *gorm.DB, logger *zap.Logger) *SettingRepository {
	return &SettingRepository{db: db, retry: NewRetrier(logger.Named("setting_repository")).Expecting(ErrNotFound)}
}

// AutoMigrate ensures the schema is available.
func (r *SettingRepository) AutoMigrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&Setting{})
}

// Get returns the value stored under key.
func (r *SettingRepository) Get(ctx context.Context, key string) (string, error) {
	var setting Setting
	err := r.retry.Do(ctx, "repository.setting.get", key, func() error {
		err := r.db.WithContext(ctx).First(&setting, "key = ?", key).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	})
	if err != nil {
		return "", err
	}
	return setting.Value, nil
}

// Set upserts value under key.
func (r *SettingRepository) Set(ctx context.Context, key, value string) error {
	setting := Setting{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	return r.retry.Do(ctx, "repository.setting.set", key, func() error {
		return r.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).Create(&setting).Error
	})
}
