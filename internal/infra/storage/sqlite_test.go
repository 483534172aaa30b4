package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"currency_go/internal/domain"

	"github.com/shopspring/decimal"
)

func setupTestDB(t *testing.T) *Storage {
	s, err := NewStorage(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() {
		s.Close()
	})
	return s
}

func TestSnapshotRoundTrip(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	// 1. Empty store
	snap, err := s.LoadSnapshot(ctx)
	if err != nil {
		t.Fatalf("LoadSnapshot on empty store failed: %v", err)
	}
	if snap != nil {
		t.Fatal("expected nil snapshot on empty store")
	}

	// 2. Save and load
	fetchedAt := time.Date(2024, 3, 1, 0, 2, 31, 0, time.UTC)
	orig := domain.NewRateSnapshot(map[string]decimal.Decimal{
		"USD": decimal.RequireFromString("1.0834"),
		"SEK": decimal.RequireFromString("11.2"),
	}, fetchedAt)
	if err := s.SaveSnapshot(ctx, orig); err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}

	loaded, err := s.LoadSnapshot(ctx)
	if err != nil {
		t.Fatalf("LoadSnapshot failed: %v", err)
	}
	if !loaded.FetchedAt.Equal(fetchedAt) {
		t.Errorf("expected fetchedAt %v, got %v", fetchedAt, loaded.FetchedAt)
	}
	if !loaded.Rates["USD"].Equal(orig.Rates["USD"]) {
		t.Errorf("expected USD %s, got %s", orig.Rates["USD"], loaded.Rates["USD"])
	}

	// 3. Overwrite keeps a single entry
	newer := domain.NewRateSnapshot(map[string]decimal.Decimal{"USD": decimal.NewFromInt(2)}, fetchedAt.Add(time.Hour))
	if err := s.SaveSnapshot(ctx, newer); err != nil {
		t.Fatalf("SaveSnapshot overwrite failed: %v", err)
	}
	loaded, _ = s.LoadSnapshot(ctx)
	if !loaded.Rates["USD"].Equal(decimal.NewFromInt(2)) {
		t.Errorf("expected overwritten USD 2, got %s", loaded.Rates["USD"])
	}
	if loaded.Has("SEK") {
		t.Error("overwrite should replace the whole table")
	}
}

func TestLoadSnapshot_Corrupt(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	if err := s.SetValue(ctx, RatesKey, "{not json"); err != nil {
		t.Fatalf("SetValue failed: %v", err)
	}
	if _, err := s.LoadSnapshot(ctx); err == nil {
		t.Error("expected error for corrupt entry")
	}
}

func TestUpsertAndGetCurrency(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	if err := s.UpsertCurrency(ctx, &domain.CurrencyInfo{Code: "SEK"}); err != nil {
		t.Fatalf("UpsertCurrency failed: %v", err)
	}

	fetched, err := s.GetCurrency(ctx, "SEK")
	if err != nil {
		t.Fatalf("GetCurrency failed: %v", err)
	}
	if fetched == nil || fetched.Code != "SEK" {
		t.Fatalf("expected SEK, got %+v", fetched)
	}

	missing, err := s.GetCurrency(ctx, "XYZ")
	if err != nil || missing != nil {
		t.Errorf("expected nil, nil for missing currency, got %+v, %v", missing, err)
	}
}

func TestRecordFlagKeepsFavorite(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	s.UpsertCurrency(ctx, &domain.CurrencyInfo{Code: "USD", IsFavorite: true})

	if err := s.RecordFlag(ctx, "USD", "/tmp/usd.png"); err != nil {
		t.Fatalf("RecordFlag failed: %v", err)
	}
	info, _ := s.GetCurrency(ctx, "USD")
	if info.FlagPath != "/tmp/usd.png" {
		t.Errorf("expected flag path to be stored, got %q", info.FlagPath)
	}
	if !info.IsFavorite {
		t.Error("RecordFlag should not clear IsFavorite")
	}
	if info.LastSyncedAt.IsZero() {
		t.Error("expected LastSyncedAt to be set")
	}

	// Unknown codes are created on demand
	if err := s.RecordFlag(ctx, "JPY", "/tmp/jpy.png"); err != nil {
		t.Fatalf("RecordFlag for new code failed: %v", err)
	}
	if info, _ := s.GetCurrency(ctx, "JPY"); info == nil {
		t.Error("expected JPY to be created")
	}
}

func TestToggleFavoriteAndOrdering(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	for _, code := range []string{"USD", "EUR", "SEK"} {
		s.UpsertCurrency(ctx, &domain.CurrencyInfo{Code: code})
	}

	isFav, err := s.ToggleFavorite(ctx, "SEK")
	if err != nil {
		t.Fatalf("ToggleFavorite failed: %v", err)
	}
	if !isFav {
		t.Error("expected IsFavorite to be true")
	}

	list, err := s.ListCurrencies(ctx)
	if err != nil {
		t.Fatalf("ListCurrencies failed: %v", err)
	}
	if len(list) != 3 || list[0].Code != "SEK" || list[1].Code != "EUR" || list[2].Code != "USD" {
		t.Errorf("unexpected order: %+v", list)
	}

	isFav, _ = s.ToggleFavorite(ctx, "SEK")
	if isFav {
		t.Error("expected IsFavorite to be false")
	}
}

func TestToggleFavorite_UnsyncedCurrency(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	isFav, err := s.ToggleFavorite(ctx, "NOK")
	if err != nil {
		t.Fatalf("ToggleFavorite failed: %v", err)
	}
	if !isFav {
		t.Error("expected a new row to start as favorite")
	}

	info, err := s.GetCurrency(ctx, "NOK")
	if err != nil || info == nil {
		t.Fatalf("expected NOK row, got %v, %v", info, err)
	}
	if !info.IsFavorite || info.FlagPath != "" {
		t.Errorf("unexpected row: %+v", info)
	}
}
