package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"currency_go/internal/domain"
	"currency_go/internal/engine"
	"currency_go/internal/infra"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// SnapshotSource exposes the currently installed rate snapshot
type SnapshotSource interface {
	Current() *domain.RateSnapshot
}

// ErrFavoritesUnavailable is returned by ToggleFavorite when the panel has no catalog
var ErrFavoritesUnavailable = errors.New("favorites not available")

// PanelOptions configures a converter panel.
// Flags may be nil, in which case no flag images are requested.
// Catalog may be nil, in which case the dropdown is plain alphabetical.
type PanelOptions struct {
	Locale      string
	Flags       domain.FlagProvider
	Catalog     domain.CurrencyCatalog
	DefaultFrom string
	DefaultTo   string
	Metrics     *infra.Metrics
	Now         func() time.Time
	// OnChange is called after an async update (a flag arriving) changed the panel
	OnChange func(PanelState)
}

// PanelState is a read-only copy of everything the view renders
type PanelState struct {
	FromCode    string   `json:"from"`
	ToCode      string   `json:"to"`
	FromAmount  string   `json:"from_amount"`
	ToAmount    string   `json:"to_amount"`
	FromText    string   `json:"from_text"`
	ToText      string   `json:"to_text"`
	Rate        string   `json:"rate"`
	FromFlag    string   `json:"from_flag,omitempty"`
	ToFlag      string   `json:"to_flag,omitempty"`
	LastUpdated string   `json:"last_updated"`
	Status      string   `json:"status,omitempty"`
	Currencies  []string `json:"currencies"`
	Favorites   []string `json:"favorites"`
}

type panelLabels struct {
	lastUpdated string
	unavailable string
	noRates     string
	relative    bool
}

var labelsByLanguage = map[string]panelLabels{
	"sv": {lastUpdated: "Senast uppdaterad", unavailable: "omräkning ej tillgänglig", noRates: "kurser saknas"},
	"en": {lastUpdated: "Last updated", unavailable: "conversion unavailable", noRates: "rates not loaded", relative: true},
}

// Panel is the UI-binding context of one converter view: two selectors,
// two amount fields, two flags and a last-updated line. Handlers operate on it
// explicitly; the only shared state is the snapshot read from SnapshotSource.
type Panel struct {
	mu sync.Mutex

	source  SnapshotSource
	opts    PanelOptions
	seq     *engine.Sequencer
	printer *message.Printer
	labels  panelLabels
	logger  *slog.Logger

	fromCode   string
	toCode     string
	fromAmount decimal.Decimal
	toAmount   decimal.Decimal
	rate       decimal.Decimal
	fromFlag   string
	toFlag     string
	status     string

	// fromDerived is set when the last failed conversion came from InputTo,
	// so the typed target amount stays visible and the source side is hidden.
	fromDerived bool

	currencies []string
	favorites  []string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPanel creates a panel bound to source and computes its initial state
func NewPanel(ctx context.Context, source SnapshotSource, opts PanelOptions) *Panel {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.DefaultFrom == "" {
		opts.DefaultFrom = domain.AnchorCurrency
	}
	if opts.DefaultTo == "" {
		opts.DefaultTo = domain.AnchorCurrency
	}

	tag, err := language.Parse(opts.Locale)
	if err != nil {
		tag = language.English
	}
	base, _ := tag.Base()
	labels, ok := labelsByLanguage[base.String()]
	if !ok {
		labels = labelsByLanguage["en"]
	}

	p := &Panel{
		source:     source,
		opts:       opts,
		printer:    message.NewPrinter(tag),
		labels:     labels,
		logger:     slog.Default().With("module", "panel"),
		fromCode:   strings.ToUpper(opts.DefaultFrom),
		toCode:     strings.ToUpper(opts.DefaultTo),
		fromAmount: decimal.NewFromInt(1),
	}
	p.seq = engine.NewSequencer(func(t engine.Ticket) {
		if opts.Metrics != nil {
			opts.Metrics.StaleResponses.WithLabelValues(string(t.Slot)).Inc()
		}
		p.logger.Debug("Discarded stale response", slog.String("slot", string(t.Slot)), slog.Uint64("seq", t.Seq))
	})
	p.ctx, p.cancel = context.WithCancel(ctx)
	p.currencies, p.favorites = p.loadCurrencies()

	p.mu.Lock()
	p.recomputeTo()
	p.requestFlag(engine.SlotFrom, p.fromCode)
	p.requestFlag(engine.SlotTo, p.toCode)
	p.mu.Unlock()

	return p
}

// SelectFrom changes the source currency and recomputes the target amount
func (p *Panel) SelectFrom(code string) error {
	code = strings.ToUpper(strings.TrimSpace(code))
	if err := p.checkCode(code); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.fromCode = code
	p.fromFlag = ""
	p.requestFlag(engine.SlotFrom, code)
	return p.recomputeTo()
}

// SelectTo changes the target currency and recomputes the target amount
func (p *Panel) SelectTo(code string) error {
	code = strings.ToUpper(strings.TrimSpace(code))
	if err := p.checkCode(code); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.toCode = code
	p.toFlag = ""
	p.requestFlag(engine.SlotTo, code)
	return p.recomputeTo()
}

// InputFrom sets the source amount; the target amount follows
func (p *Panel) InputFrom(amount decimal.Decimal) error {
	if amount.IsNegative() {
		return fmt.Errorf("%w: %s", domain.ErrInvalidAmount, amount)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.fromAmount = amount
	return p.recomputeTo()
}

// InputTo sets the target amount; the source amount follows
func (p *Panel) InputTo(amount decimal.Decimal) error {
	if amount.IsNegative() {
		return fmt.Errorf("%w: %s", domain.ErrInvalidAmount, amount)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.toAmount = amount
	converted, err := domain.Convert(p.source.Current(), domain.ConversionRequest{
		From:   p.toCode,
		To:     p.fromCode,
		Amount: amount,
	})
	p.opts.Metrics.RecordConversion(err)
	if err != nil {
		p.fromDerived = true
		p.markUnavailable(err)
		return err
	}

	p.fromDerived = false
	p.fromAmount = converted
	p.rate, _ = domain.ResolveRate(p.source.Current(), p.fromCode, p.toCode)
	p.status = ""
	return nil
}

// Refresh recomputes the panel against the currently installed snapshot
func (p *Panel) Refresh() error {
	currencies, favorites := p.loadCurrencies()

	p.mu.Lock()
	defer p.mu.Unlock()
	p.currencies, p.favorites = currencies, favorites
	return p.recomputeTo()
}

// ToggleFavorite pins or unpins code at the top of the dropdown and reports the new state
func (p *Panel) ToggleFavorite(code string) (bool, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if err := p.checkCode(code); err != nil {
		return false, err
	}
	if p.opts.Catalog == nil {
		return false, ErrFavoritesUnavailable
	}

	favorite, err := p.opts.Catalog.ToggleFavorite(p.ctx, code)
	if err != nil {
		return false, fmt.Errorf("toggle favorite %s: %w", code, err)
	}

	currencies, favorites := p.loadCurrencies()
	p.mu.Lock()
	p.currencies, p.favorites = currencies, favorites
	p.mu.Unlock()
	return favorite, nil
}

// State returns a copy of the panel for rendering
func (p *Panel) State() PanelState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stateLocked()
}

// Close cancels in-flight flag requests and waits for them to finish
func (p *Panel) Close() {
	p.cancel()
	p.wg.Wait()
}

// Wait blocks until in-flight flag requests are done
func (p *Panel) Wait() {
	p.wg.Wait()
}

func (p *Panel) checkCode(code string) error {
	if len(code) != 3 {
		return fmt.Errorf("%w: %q", domain.ErrInvalidCurrency, code)
	}
	return nil
}

// recomputeTo derives toAmount from fromAmount. Caller holds mu.
func (p *Panel) recomputeTo() error {
	snap := p.source.Current()
	rate, err := domain.ResolveRate(snap, p.fromCode, p.toCode)
	p.opts.Metrics.RecordConversion(err)
	p.fromDerived = false
	if err != nil {
		p.toAmount = decimal.Zero
		p.markUnavailable(err)
		return err
	}

	p.rate = rate
	p.toAmount = p.fromAmount.Mul(rate)
	p.status = ""
	return nil
}

// markUnavailable shows a visible state instead of a misleading zero. Caller holds mu.
func (p *Panel) markUnavailable(err error) {
	p.rate = decimal.Zero
	if errors.Is(err, domain.ErrNoSnapshot) {
		p.status = p.labels.noRates
		return
	}
	p.status = p.labels.unavailable
}

// requestFlag starts a sequenced flag fetch for slot. Caller holds mu.
func (p *Panel) requestFlag(slot engine.Slot, code string) {
	if p.opts.Flags == nil {
		return
	}
	ticket := p.seq.Issue(slot)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		path, err := p.opts.Flags.FetchFlag(p.ctx, code)
		if err != nil {
			p.logger.Warn("Flag fetch failed", slog.String("currency", code), slog.Any("error", err))
			return
		}

		p.mu.Lock()
		if !p.seq.Accept(ticket) {
			p.mu.Unlock()
			return
		}
		switch slot {
		case engine.SlotFrom:
			p.fromFlag = path
		case engine.SlotTo:
			p.toFlag = path
		}
		state := p.stateLocked()
		p.mu.Unlock()

		if p.opts.OnChange != nil {
			p.opts.OnChange(state)
		}
	}()
}

func (p *Panel) stateLocked() PanelState {
	snap := p.source.Current()

	state := PanelState{
		FromCode:   p.fromCode,
		ToCode:     p.toCode,
		FromFlag:   p.fromFlag,
		ToFlag:     p.toFlag,
		Status:     p.status,
		Currencies: p.currencies,
		Favorites:  p.favorites,
	}
	// While unavailable only the side the user typed is rendered
	if p.status == "" || !p.fromDerived {
		state.FromAmount = p.fromAmount.String()
		state.FromText = p.formatAmount(p.fromAmount)
	}
	if p.status == "" || p.fromDerived {
		state.ToAmount = p.toAmount.String()
		state.ToText = p.formatAmount(p.toAmount)
	}
	if p.status == "" {
		state.Rate = p.rate.String()
	}
	if snap != nil {
		state.LastUpdated = p.formatLastUpdated(snap.FetchedAt)
	}
	return state
}

// loadCurrencies orders the snapshot's codes through the catalog. Must not hold mu.
func (p *Panel) loadCurrencies() ([]string, []string) {
	entries, err := ListCurrencyEntries(p.ctx, p.opts.Catalog, p.source.Current())
	if err != nil {
		p.logger.Warn("Currency catalog unavailable", slog.Any("error", err))
	}

	codes := make([]string, 0, len(entries))
	favorites := make([]string, 0)
	for _, e := range entries {
		codes = append(codes, e.Code)
		if e.Favorite {
			favorites = append(favorites, e.Code)
		}
	}
	return codes, favorites
}

func (p *Panel) formatAmount(d decimal.Decimal) string {
	return p.printer.Sprintf("%.2f", d.InexactFloat64())
}

func (p *Panel) formatLastUpdated(t time.Time) string {
	line := p.labels.lastUpdated + ": " + t.UTC().Format("2006-01-02 15:04 MST")
	if p.labels.relative {
		line += " (" + humanize.RelTime(t, p.opts.Now(), "ago", "from now") + ")"
	}
	return line
}
