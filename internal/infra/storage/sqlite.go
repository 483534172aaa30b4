package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"currency_go/internal/domain"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// RatesKey is the AppConfig key holding the persisted rate snapshot
const RatesKey = "rates"

// Storage persists the rate snapshot and currency metadata in SQLite
type Storage struct {
	db *gorm.DB
}

// NewStorage opens (or creates) the SQLite database at dbPath
func NewStorage(dbPath string) (*Storage, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create DB directory: %w", err)
	}

	// Connect to SQLite (Pure Go)
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(&domain.CurrencyInfo{}, &domain.AppConfig{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Storage{db: db}, nil
}

// DBPath returns the database file location under dataDir
func DBPath(dataDir string) string {
	return filepath.Join(dataDir, "data", "currency.db")
}

// Close releases the underlying connection
func (s *Storage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ======================================================================================
// Snapshot Operations
// ======================================================================================

// LoadSnapshot returns the persisted snapshot, or nil when none was stored yet
func (s *Storage) LoadSnapshot(ctx context.Context) (*domain.RateSnapshot, error) {
	value, ok, err := s.GetValue(ctx, RatesKey)
	if err != nil || !ok {
		return nil, err
	}

	var snap domain.RateSnapshot
	if err := json.Unmarshal([]byte(value), &snap); err != nil {
		return nil, fmt.Errorf("corrupt %q entry: %w", RatesKey, err)
	}
	return &snap, nil
}

// SaveSnapshot overwrites the persisted snapshot
func (s *Storage) SaveSnapshot(ctx context.Context, snap *domain.RateSnapshot) error {
	if snap == nil {
		return errors.New("nil snapshot")
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	return s.SetValue(ctx, RatesKey, string(data))
}

// ======================================================================================
// Key/Value Operations
// ======================================================================================

// GetValue reads a single entry; ok is false when the key is absent
func (s *Storage) GetValue(ctx context.Context, key string) (string, bool, error) {
	var entry domain.AppConfig
	err := s.db.WithContext(ctx).Where(&domain.AppConfig{Key: key}).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil // Not found is not an error
	}
	if err != nil {
		return "", false, err
	}
	return entry.Value, true, nil
}

// SetValue creates or replaces an entry
func (s *Storage) SetValue(ctx context.Context, key, value string) error {
	entry := domain.AppConfig{
		Key:   key,
		Value: value,
	}
	return s.db.WithContext(ctx).Save(&entry).Error
}

// ======================================================================================
// Currency Operations
// ======================================================================================

// UpsertCurrency creates or updates currency metadata
func (s *Storage) UpsertCurrency(ctx context.Context, info *domain.CurrencyInfo) error {
	return s.db.WithContext(ctx).Save(info).Error
}

// GetCurrency retrieves currency metadata by code
func (s *Storage) GetCurrency(ctx context.Context, code string) (*domain.CurrencyInfo, error) {
	var info domain.CurrencyInfo
	err := s.db.WithContext(ctx).First(&info, "code = ?", code).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil // Not found is not an error
	}
	if err != nil {
		return nil, err
	}
	return &info, nil
}

// ListCurrencies returns all currencies, favorites first then by code
func (s *Storage) ListCurrencies(ctx context.Context) ([]domain.CurrencyInfo, error) {
	var infos []domain.CurrencyInfo
	err := s.db.WithContext(ctx).Order("is_favorite DESC").Order("code ASC").Find(&infos).Error
	return infos, err
}

// ToggleFavorite toggles the favorite status of a currency.
// A code without a row yet (flags not synced) is created as a favorite.
func (s *Storage) ToggleFavorite(ctx context.Context, code string) (bool, error) {
	info, err := s.GetCurrency(ctx, code)
	if err != nil {
		return false, err
	}
	if info == nil {
		info = &domain.CurrencyInfo{Code: code}
	}

	info.IsFavorite = !info.IsFavorite
	err = s.UpsertCurrency(ctx, info)
	return info.IsFavorite, err
}

// RecordFlag stores the flag path for code, keeping the favorite flag intact
func (s *Storage) RecordFlag(ctx context.Context, code, path string) error {
	info, err := s.GetCurrency(ctx, code)
	if err != nil {
		return err
	}
	if info == nil {
		info = &domain.CurrencyInfo{Code: code}
	}
	info.FlagPath = path
	info.LastSyncedAt = time.Now()
	return s.UpsertCurrency(ctx, info)
}
