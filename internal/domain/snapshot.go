package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	// AnchorCurrency is the currency every rate in a snapshot is expressed against.
	AnchorCurrency = "EUR"

	// FreshnessWindow is how long a snapshot may be reused after it was fetched.
	FreshnessWindow = 24 * time.Hour
)

// timestampLayouts are tried in order when decoding time_last_update_utc.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC1123Z,
	time.RFC1123,
}

// RateSnapshot is a complete EUR-anchored rate table plus the time it was fetched.
// Treat it as immutable once built; replace it as a whole instead of editing Rates.
type RateSnapshot struct {
	Base      string
	Rates     map[string]decimal.Decimal
	FetchedAt time.Time
}

// NewRateSnapshot builds a normalized snapshot:
// codes are upper-cased, non-positive factors are dropped and EUR is pinned to 1.
func NewRateSnapshot(rates map[string]decimal.Decimal, fetchedAt time.Time) *RateSnapshot {
	table := make(map[string]decimal.Decimal, len(rates)+1)
	for code, rate := range rates {
		code = strings.ToUpper(strings.TrimSpace(code))
		if code == "" || !rate.IsPositive() {
			continue
		}
		table[code] = rate
	}
	table[AnchorCurrency] = decimal.NewFromInt(1)

	return &RateSnapshot{
		Base:      AnchorCurrency,
		Rates:     table,
		FetchedAt: fetchedAt.UTC(),
	}
}

// Has reports whether code has a usable factor in the table
func (s *RateSnapshot) Has(code string) bool {
	if s == nil {
		return false
	}
	_, ok := s.Rates[code]
	return ok
}

// Codes returns the currency codes in the table sorted alphabetically
func (s *RateSnapshot) Codes() []string {
	if s == nil {
		return nil
	}
	codes := make([]string, 0, len(s.Rates))
	for code := range s.Rates {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// ExpiresAt returns the instant after which the snapshot is stale
func (s *RateSnapshot) ExpiresAt() time.Time {
	return s.FetchedAt.Add(FreshnessWindow)
}

// ConversionRequest asks to convert Amount units of From into To
type ConversionRequest struct {
	From   string          `json:"from"`
	To     string          `json:"to"`
	Amount decimal.Decimal `json:"amount"`
}

// IsFresh reports whether snap may be reused at now.
// A snapshot exactly FreshnessWindow old is still fresh.
func IsFresh(snap *RateSnapshot, now time.Time) bool {
	if snap == nil {
		return false
	}
	return !now.After(snap.ExpiresAt())
}

// ResolveRate returns how many units of to one unit of from buys.
// Cross rates are derived through the anchor: rates[to] / rates[from].
func ResolveRate(snap *RateSnapshot, from, to string) (decimal.Decimal, error) {
	if snap == nil {
		return decimal.Zero, ErrNoSnapshot
	}

	toRate, ok := snap.Rates[to]
	if !ok {
		return decimal.Zero, &RateError{From: from, To: to, Err: ErrRateUnavailable}
	}
	if from == AnchorCurrency {
		return toRate, nil
	}

	fromRate, ok := snap.Rates[from]
	if !ok || !fromRate.IsPositive() {
		return decimal.Zero, &RateError{From: from, To: to, Err: ErrRateUnavailable}
	}
	return toRate.Div(fromRate), nil
}

// Convert applies the resolved rate to req.Amount
func Convert(snap *RateSnapshot, req ConversionRequest) (decimal.Decimal, error) {
	if req.Amount.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrInvalidAmount, req.Amount.String())
	}
	rate, err := ResolveRate(snap, req.From, req.To)
	if err != nil {
		return decimal.Zero, err
	}
	return req.Amount.Mul(rate), nil
}

// snapshotWire is the backend's /rates payload and the persisted form
type snapshotWire struct {
	TimeLastUpdateUTC string                     `json:"time_last_update_utc"`
	Rates             map[string]decimal.Decimal `json:"rates"`
}

// MarshalJSON encodes the snapshot in the backend's wire shape
func (s RateSnapshot) MarshalJSON() ([]byte, error) {
	return json.Marshal(snapshotWire{
		TimeLastUpdateUTC: s.FetchedAt.UTC().Format(time.RFC3339Nano),
		Rates:             s.Rates,
	})
}

// UnmarshalJSON decodes the backend's wire shape and normalizes the table
func (s *RateSnapshot) UnmarshalJSON(data []byte) error {
	var wire snapshotWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	if wire.TimeLastUpdateUTC == "" {
		return errors.New("missing time_last_update_utc")
	}
	fetchedAt, err := ParseTimestamp(wire.TimeLastUpdateUTC)
	if err != nil {
		return err
	}
	*s = *NewRateSnapshot(wire.Rates, fetchedAt)
	return nil
}

// ParseTimestamp accepts ISO-8601 and RFC1123 timestamps
func ParseTimestamp(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", value)
}
