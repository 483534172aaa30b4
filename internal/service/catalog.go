package service

import (
	"context"

	"currency_go/internal/domain"
)

// CurrencyEntry is one dropdown option: a code from the installed snapshot
// joined with its persisted metadata.
type CurrencyEntry struct {
	Code     string
	Favorite bool
	FlagPath string // Empty until the flag has been synced
}

// ListCurrencyEntries returns the snapshot's codes with favorites first (by code),
// then the rest by code. Catalog rows for codes outside the snapshot are ignored.
// A nil catalog yields the plain sorted codes.
func ListCurrencyEntries(ctx context.Context, catalog domain.CurrencyCatalog, snap *domain.RateSnapshot) ([]CurrencyEntry, error) {
	codes := snap.Codes()
	entries := make([]CurrencyEntry, 0, len(codes))
	if len(codes) == 0 {
		return entries, nil
	}

	var infos []domain.CurrencyInfo
	var err error
	if catalog != nil {
		infos, err = catalog.ListCurrencies(ctx)
	}

	byCode := make(map[string]domain.CurrencyInfo, len(infos))
	for _, info := range infos {
		byCode[info.Code] = info
	}

	for _, code := range codes {
		if info := byCode[code]; info.IsFavorite {
			entries = append(entries, CurrencyEntry{Code: code, Favorite: true, FlagPath: info.FlagPath})
		}
	}
	for _, code := range codes {
		if info, ok := byCode[code]; !ok || !info.IsFavorite {
			entries = append(entries, CurrencyEntry{Code: code, FlagPath: info.FlagPath})
		}
	}

	// Still usable without metadata
	return entries, err
}
