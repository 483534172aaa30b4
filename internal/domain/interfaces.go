package domain

import (
	"context"
)

// RatesProvider fetches a fresh rate table from the backend
type RatesProvider interface {
	FetchRates(ctx context.Context) (*RateSnapshot, error)
}

// FlagProvider resolves a flag image for a currency code and returns its local path
type FlagProvider interface {
	FetchFlag(ctx context.Context, code string) (string, error)
}

// SnapshotStore persists the single rate snapshot entry
type SnapshotStore interface {
	LoadSnapshot(ctx context.Context) (*RateSnapshot, error)
	SaveSnapshot(ctx context.Context, snap *RateSnapshot) error
}

// CurrencyCatalog is the persisted per-currency metadata: favorites and cached flags
type CurrencyCatalog interface {
	ListCurrencies(ctx context.Context) ([]CurrencyInfo, error)
	ToggleFavorite(ctx context.Context, code string) (bool, error)
}
