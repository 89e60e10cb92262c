package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"coin_swap/internal/domain"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Storage is the local sqlite persistence for storage slots and the asset snapshot
type Storage struct {
	db *gorm.DB
}

// NewStorage opens the sqlite database at path, or at the per-user default location when path is empty.
func NewStorage(path string) (*Storage, error) {
	if path == "" {
		var err error
		path, err = getDBPath()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve DB path: %w", err)
		}
	}

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create DB directory: %w", err)
	}

	// Connect to SQLite (Pure Go)
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(&domain.AssetRecord{}, &domain.AppConfig{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Storage{db: db}, nil
}

// getDBPath resolves the database file path based on OS
func getDBPath() (string, error) {
	var configDir string
	var err error

	if runtime.GOOS == "windows" {
		configDir = os.Getenv("LOCALAPPDATA")
		if configDir == "" {
			configDir, err = os.UserConfigDir()
		}
	} else {
		configDir, err = os.UserConfigDir()
	}

	if err != nil {
		return "", err
	}

	return filepath.Join(configDir, "CoinSwap", "data", "coinswap.db"), nil
}

// Close releases the underlying connection pool
func (s *Storage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ======================================================================================
// Asset Operations
// ======================================================================================

// UpsertAssets creates or updates catalog records, keeping previously synced icon paths.
func (s *Storage) UpsertAssets(records []domain.AssetRecord) error {
	if len(records) == 0 {
		return nil
	}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"symbol", "name", "icon_url", "reference_price", "catalog_rank", "updated_at"}),
	}).Create(&records).Error
}

// GetAsset retrieves an asset record by id
func (s *Storage) GetAsset(id string) (*domain.AssetRecord, error) {
	var rec domain.AssetRecord
	err := s.db.First(&rec, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil // Not found is not an error
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// GetAllAssets retrieves all asset records in catalog order
func (s *Storage) GetAllAssets() ([]domain.AssetRecord, error) {
	var records []domain.AssetRecord
	err := s.db.Order("catalog_rank asc").Find(&records).Error
	return records, err
}

// SetIconPath records the local icon file for an asset
func (s *Storage) SetIconPath(id, path string) error {
	res := s.db.Model(&domain.AssetRecord{}).Where("id = ?", id).Updates(map[string]interface{}{
		"icon_path":      path,
		"last_synced_at": time.Now(),
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", domain.ErrAssetNotFound, id)
	}
	return nil
}

// ======================================================================================
// Config Operations
// ======================================================================================

// SaveValue stores one storage slot
func (s *Storage) SaveValue(key, value string) error {
	config := domain.AppConfig{
		Key:   key,
		Value: value,
	}
	return s.db.Save(&config).Error
}

// GetValue loads one storage slot; found is false when the key was never written.
func (s *Storage) GetValue(key string) (string, bool, error) {
	var config domain.AppConfig
	err := s.db.First(&config, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return config.Value, true, nil
}
