package domain

import (
	"time"
)

// CurrencyInfo represents metadata for a currency shown in the selectors
type CurrencyInfo struct {
	Code         string    `gorm:"primaryKey" json:"code"`
	FlagPath     string    `json:"flag_path"`
	IsFavorite   bool      `json:"is_favorite" gorm:"index"` // Pinned to the top of the dropdown
	LastSyncedAt time.Time `json:"last_synced_at"`           // Last flag sync time
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// AppConfig represents a persisted key/value entry
type AppConfig struct {
	Key       string    `gorm:"primaryKey" json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}
