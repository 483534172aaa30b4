package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"currency_go/internal/domain"

	"github.com/shopspring/decimal"
)

var errBackendDown = errors.New("backend down")

type fakeProvider struct {
	calls atomic.Int32
	snap  *domain.RateSnapshot
	err   error
}

func (p *fakeProvider) FetchRates(ctx context.Context) (*domain.RateSnapshot, error) {
	p.calls.Add(1)
	if p.err != nil {
		return nil, domain.NewNetworkError("fetch_rates", p.err)
	}
	return p.snap, nil
}

type memStore struct {
	mu    sync.Mutex
	snap  *domain.RateSnapshot
	saves int
}

func (m *memStore) LoadSnapshot(ctx context.Context) (*domain.RateSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap, nil
}

func (m *memStore) SaveSnapshot(ctx context.Context, snap *domain.RateSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap = snap
	m.saves++
	return nil
}

type staticSource struct {
	snap *domain.RateSnapshot
}

func (s staticSource) Current() *domain.RateSnapshot {
	return s.snap
}

func sampleSnapshot(fetchedAt time.Time) *domain.RateSnapshot {
	return domain.NewRateSnapshot(map[string]decimal.Decimal{
		"USD": decimal.NewFromFloat(1.1),
		"SEK": decimal.NewFromFloat(11.0),
	}, fetchedAt)
}

// memCatalog is an in-memory CurrencyCatalog
type memCatalog struct {
	mu    sync.Mutex
	infos map[string]domain.CurrencyInfo
	err   error
}

func newMemCatalog(favorites ...string) *memCatalog {
	c := &memCatalog{infos: make(map[string]domain.CurrencyInfo)}
	for _, code := range favorites {
		c.infos[code] = domain.CurrencyInfo{Code: code, IsFavorite: true}
	}
	return c
}

func (c *memCatalog) ListCurrencies(ctx context.Context) ([]domain.CurrencyInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	infos := make([]domain.CurrencyInfo, 0, len(c.infos))
	for _, info := range c.infos {
		infos = append(infos, info)
	}
	return infos, nil
}

func (c *memCatalog) ToggleFavorite(ctx context.Context, code string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	info := c.infos[code]
	info.Code = code
	info.IsFavorite = !info.IsFavorite
	c.infos[code] = info
	return info.IsFavorite, nil
}
