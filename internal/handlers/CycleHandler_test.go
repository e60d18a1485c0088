package handlers

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"CryptoSignalBot/internal/models"
	"CryptoSignalBot/internal/services/analysis"
	"CryptoSignalBot/internal/services/trading"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type fakeGateway struct {
	prices    map[string]models.Price
	priceErrs map[string]error
	account   models.AccountState

	// ops records every exchange order in call order, e.g. "sell BTCUSDT"
	ops []string
	seq int
}

func (g *fakeGateway) GetPrices(ctx context.Context, ticker string) (models.Price, error) {
	if err := g.priceErrs[ticker]; err != nil {
		return models.Price{}, err
	}
	return g.prices[ticker], nil
}

func (g *fakeGateway) Buy(ctx context.Context, req trading.OrderRequest) (*trading.OrderConfirmation, error) {
	g.ops = append(g.ops, "buy "+req.Ticker)
	return g.confirm(req), nil
}

func (g *fakeGateway) Sell(ctx context.Context, req trading.OrderRequest) (*trading.OrderConfirmation, error) {
	g.ops = append(g.ops, "sell "+req.Ticker)
	return g.confirm(req), nil
}

func (g *fakeGateway) confirm(req trading.OrderRequest) *trading.OrderConfirmation {
	g.seq++
	price := req.Price
	if price == 0 {
		price = g.prices[req.Ticker].Ask
	}
	return &trading.OrderConfirmation{
		TransactionID: fmt.Sprintf("tx-%d", g.seq),
		Ticker:        req.Ticker,
		Side:          req.Side,
		Volume:        req.Volume,
		Price:         price,
		Cost:          decimal.NewFromFloat(price * req.Volume),
		ExecutedAt:    time.Now().UTC(),
	}
}

func (g *fakeGateway) GetAccountBalances(ctx context.Context) (models.AccountState, error) {
	return g.account, nil
}

func (g *fakeGateway) GetOrder(ctx context.Context, ticker, transactionID string) (string, error) {
	return "filled", nil
}

func (g *fakeGateway) MinimumVolume(ticker string) float64 { return 0 }

type fakeLedger struct {
	positions []models.Position
	findErr   error
	deleted   []string
	reverted  map[string]bool
}

func (l *fakeLedger) Insert(position *models.Position) error {
	l.positions = append(l.positions, *position)
	return nil
}

func (l *fakeLedger) Delete(transactionID string) error {
	for i := range l.positions {
		if l.positions[i].TransactionID == transactionID {
			l.positions = append(l.positions[:i], l.positions[i+1:]...)
			break
		}
	}
	l.deleted = append(l.deleted, transactionID)
	return nil
}

func (l *fakeLedger) SetMeanReverted(transactionID string, isReverted bool) error {
	if l.reverted == nil {
		l.reverted = make(map[string]bool)
	}
	l.reverted[transactionID] = isReverted
	return nil
}

func (l *fakeLedger) FindOpenPositions() ([]models.Position, error) {
	if l.findErr != nil {
		return nil, l.findErr
	}
	return l.positions, nil
}

func (l *fakeLedger) FindOpenPositionsByTicker(ticker string) ([]models.Position, error) {
	if l.findErr != nil {
		return nil, l.findErr
	}
	var out []models.Position
	for _, p := range l.positions {
		if p.Ticker == ticker {
			out = append(out, p)
		}
	}
	return out, nil
}

type fakePriceStore struct {
	histories map[string][]models.Price
	created   []models.Price
	snapshots map[string]bool
}

func (s *fakePriceStore) Create(price *models.Price) error {
	s.created = append(s.created, *price)
	return nil
}

func (s *fakePriceStore) GetPriceHistory(ticker string, since time.Time) ([]models.Price, error) {
	var history []models.Price
	for _, sample := range s.histories[ticker] {
		if !sample.Timestamp.Before(since) {
			history = append(history, sample)
		}
	}
	if len(history) == 0 {
		return nil, analysis.ErrEmptyHistory
	}
	return history, nil
}

func (s *fakePriceStore) HasSnapshotSince(ticker string, since time.Time) (bool, error) {
	return s.snapshots[ticker], nil
}

type fakeTradeHistory struct {
	records []models.TradeRecord
}

func (h *fakeTradeHistory) FindSince(since time.Time) ([]models.TradeRecord, error) {
	return h.records, nil
}

type fakeRecorder struct{}

func (fakeRecorder) Record(record *models.TradeRecord) error { return nil }

func flatSample(ticker string, mid, vwap float64, ts time.Time) models.Price {
	return models.Price{Ticker: ticker, Ask: mid, Bid: mid, VWAP: vwap, Timestamp: ts}
}

// newTestHandler wires a CycleHandler over in-memory fakes with an open
// threshold of 2 standard deviations.
func newTestHandler(tickers []string, gateway *fakeGateway, ledger *fakeLedger, store *fakePriceStore, trades *fakeTradeHistory) *CycleHandler {
	logger := zap.NewNop()
	baseline := analysis.NewBaselineSource(analysis.BaselineCurrentVWAP)
	deviation := analysis.NewMeanReversionAnalyzer(baseline, 30, 2.0, logger)
	trailing := analysis.NewTrailingStopAnalyzer()

	opener := trading.NewOpener(trading.OpenerConfig{
		OpenThreshold:      2.0,
		BaseCostUSD:        100,
		DefaultLeverage:    2,
		MarginLevelMinimum: 2.0,
		AllowMarginTrading: true,
	}, gateway, ledger, fakeRecorder{}, logger)

	closer := trading.NewCloser(trading.CloserConfig{
		TrailingCloseThreshold: 0.02,
	}, gateway, ledger, fakeRecorder{}, logger)

	return NewCycleHandler(tickers, 30, gateway, ledger, store, trades,
		deviation, trailing, opener, closer, logger)
}

// sigmaFiveHistory builds samples whose mid prices deviate from a VWAP of 100
// by exactly 5, giving a standard deviation of 5.
func sigmaFiveHistory(ticker string, now time.Time) []models.Price {
	history := make([]models.Price, 0, 10)
	for i := 0; i < 10; i++ {
		mid := 105.0
		if i%2 == 0 {
			mid = 95.0
		}
		history = append(history, flatSample(ticker, mid, 100, now.Add(-time.Duration(10-i)*time.Hour)))
	}
	return history
}

func TestCycleHandler_ClosesBeforeOpens(t *testing.T) {
	now := time.Now().UTC()

	// BTCUSDT holds a mean-reverted buy position; ETHUSDT is 2.4 sigma below
	// its VWAP and should be bought
	gateway := &fakeGateway{
		prices: map[string]models.Price{
			"BTCUSDT": {Ticker: "BTCUSDT", Ask: 106, Bid: 105, VWAP: 104},
			"ETHUSDT": flatSample("ETHUSDT", 88, 100, now),
		},
		account: models.AccountState{MarginLevel: 5},
	}
	ledger := &fakeLedger{positions: []models.Position{{
		Ticker:        "BTCUSDT",
		Side:          models.OrderSideBuy,
		Volume:        1,
		EntryPrice:    100,
		TransactionID: "tx-btc",
		OpenTime:      now.Add(-2 * time.Hour),
	}}}
	store := &fakePriceStore{histories: map[string][]models.Price{
		"BTCUSDT": {flatSample("BTCUSDT", 105, 105, now.Add(-time.Hour))},
		"ETHUSDT": sigmaFiveHistory("ETHUSDT", now),
	}}

	handler := newTestHandler([]string{"BTCUSDT", "ETHUSDT"}, gateway, ledger, store, &fakeTradeHistory{})
	summary := handler.Trade(context.Background())

	if summary.Closed != 1 {
		t.Errorf("expected 1 close, got %d", summary.Closed)
	}
	if summary.Opened != 1 {
		t.Errorf("expected 1 open, got %d", summary.Opened)
	}
	if summary.Evaluated != 3 {
		t.Errorf("expected 3 evaluations, got %d", summary.Evaluated)
	}
	if len(summary.Errors) != 0 {
		t.Errorf("expected no errors, got %v", summary.Errors)
	}

	want := []string{"sell BTCUSDT", "buy ETHUSDT"}
	if len(gateway.ops) != len(want) {
		t.Fatalf("expected ops %v, got %v", want, gateway.ops)
	}
	for i := range want {
		if gateway.ops[i] != want[i] {
			t.Fatalf("expected ops %v, got %v", want, gateway.ops)
		}
	}
	if len(ledger.deleted) != 1 || ledger.deleted[0] != "tx-btc" {
		t.Errorf("expected tx-btc deleted, got %v", ledger.deleted)
	}
}

func TestCycleHandler_PerAssetFailureIsolation(t *testing.T) {
	now := time.Now().UTC()
	gateway := &fakeGateway{
		prices: map[string]models.Price{
			"ETHUSDT": flatSample("ETHUSDT", 88, 100, now),
		},
		priceErrs: map[string]error{
			"BTCUSDT": errors.New("binance: 503"),
		},
	}
	ledger := &fakeLedger{}
	store := &fakePriceStore{histories: map[string][]models.Price{
		"ETHUSDT": sigmaFiveHistory("ETHUSDT", now),
	}}

	handler := newTestHandler([]string{"BTCUSDT", "ETHUSDT"}, gateway, ledger, store, &fakeTradeHistory{})
	summary := handler.Trade(context.Background())

	if _, ok := summary.Errors["BTCUSDT"]; !ok {
		t.Error("expected an error recorded for BTCUSDT")
	}
	if summary.Opened != 1 {
		t.Errorf("expected the healthy ticker to still open, got %d opens", summary.Opened)
	}
}

func TestCycleHandler_SummaryAlwaysReturned(t *testing.T) {
	gateway := &fakeGateway{prices: map[string]models.Price{}}
	ledger := &fakeLedger{findErr: errors.New("db down")}
	store := &fakePriceStore{}

	handler := newTestHandler([]string{"BTCUSDT"}, gateway, ledger, store, &fakeTradeHistory{})
	summary := handler.Trade(context.Background())

	if summary == nil {
		t.Fatal("expected a summary even when everything fails")
	}
	if len(summary.Errors) == 0 {
		t.Error("expected recorded errors")
	}
}

func TestCycleHandler_OnePositionPerTicker(t *testing.T) {
	now := time.Now().UTC()
	gateway := &fakeGateway{
		prices: map[string]models.Price{
			// far below VWAP, would open if no position existed
			"BTCUSDT": flatSample("BTCUSDT", 88, 100, now),
		},
	}
	// entry just above the current bid: not mean reverted, retracement under
	// the stop threshold, so no close gate fires either
	ledger := &fakeLedger{positions: []models.Position{{
		Ticker:        "BTCUSDT",
		Side:          models.OrderSideBuy,
		Volume:        1,
		EntryPrice:    88.5,
		TransactionID: "tx-existing",
		OpenTime:      now,
	}}}
	store := &fakePriceStore{histories: map[string][]models.Price{
		"BTCUSDT": sigmaFiveHistory("BTCUSDT", now),
	}}

	handler := newTestHandler([]string{"BTCUSDT"}, gateway, ledger, store, &fakeTradeHistory{})
	summary := handler.Trade(context.Background())

	if summary.Opened != 0 {
		t.Errorf("expected no new position while one is open, got %d", summary.Opened)
	}
	for _, op := range gateway.ops {
		if op == "buy BTCUSDT" {
			t.Error("expected no entry order while a position is open")
		}
	}
}

func TestCycleHandler_MeanRevertedFlagSet(t *testing.T) {
	now := time.Now().UTC()
	gateway := &fakeGateway{
		prices: map[string]models.Price{
			"BTCUSDT": {Ticker: "BTCUSDT", Ask: 106, Bid: 105, VWAP: 104},
		},
	}
	ledger := &fakeLedger{positions: []models.Position{{
		Ticker:        "BTCUSDT",
		Side:          models.OrderSideBuy,
		Volume:        1,
		EntryPrice:    100,
		TransactionID: "tx-btc",
		OpenTime:      now.Add(-time.Hour),
	}}}
	store := &fakePriceStore{}

	handler := newTestHandler([]string{"BTCUSDT"}, gateway, ledger, store, &fakeTradeHistory{})
	handler.CloseOnly(context.Background())

	if !ledger.reverted["tx-btc"] {
		t.Error("expected the mean reverted flag to be set")
	}
}

func TestCycleHandler_Liquidate(t *testing.T) {
	now := time.Now().UTC()
	gateway := &fakeGateway{
		prices: map[string]models.Price{
			// below entry and VWAP: no gate would approve this close
			"BTCUSDT": {Ticker: "BTCUSDT", Ask: 96, Bid: 95, VWAP: 100},
		},
	}
	ledger := &fakeLedger{positions: []models.Position{{
		Ticker:        "BTCUSDT",
		Side:          models.OrderSideBuy,
		Volume:        1,
		EntryPrice:    100,
		TransactionID: "tx-btc",
		OpenTime:      now.Add(-time.Hour),
	}}}
	store := &fakePriceStore{}

	handler := newTestHandler([]string{"BTCUSDT"}, gateway, ledger, store, &fakeTradeHistory{})
	if err := handler.Liquidate(context.Background(), "BTCUSDT"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ledger.positions) != 0 {
		t.Errorf("expected all positions closed, %d remain", len(ledger.positions))
	}
}

func TestCycleHandler_SnapshotDedupe(t *testing.T) {
	gateway := &fakeGateway{
		prices: map[string]models.Price{
			"BTCUSDT": {Ticker: "BTCUSDT", Ask: 100, Bid: 99},
			"ETHUSDT": {Ticker: "ETHUSDT", Ask: 50, Bid: 49},
		},
	}
	store := &fakePriceStore{snapshots: map[string]bool{"BTCUSDT": true}}

	handler := newTestHandler([]string{"BTCUSDT", "ETHUSDT"}, gateway, &fakeLedger{}, store, &fakeTradeHistory{})
	handler.Snapshot(context.Background(), time.Hour)

	if len(store.created) != 1 {
		t.Fatalf("expected 1 snapshot, got %d", len(store.created))
	}
	if store.created[0].Ticker != "ETHUSDT" {
		t.Errorf("expected the ETHUSDT snapshot, got %s", store.created[0].Ticker)
	}
}

func TestCycleHandler_DailySummary(t *testing.T) {
	gateway := &fakeGateway{account: models.AccountState{Equity: 1000, MarginLevel: 5}}
	trades := &fakeTradeHistory{records: []models.TradeRecord{{Ticker: "BTCUSDT"}}}

	handler := newTestHandler(nil, gateway, &fakeLedger{}, &fakePriceStore{}, trades)
	summary, err := handler.Summary(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Account.Equity != 1000 {
		t.Errorf("expected equity 1000, got %f", summary.Account.Equity)
	}
	if len(summary.Trades) != 1 {
		t.Errorf("expected 1 trade, got %d", len(summary.Trades))
	}
}
