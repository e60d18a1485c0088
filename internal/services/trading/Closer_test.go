package trading

import (
	"context"
	"errors"
	"testing"
	"time"

	"CryptoSignalBot/internal/models"
	"CryptoSignalBot/internal/services/analysis"

	"go.uber.org/zap"
)

func newTestCloser(gateway *fakeGateway, ledger *fakeLedger, recorder *fakeRecorder) *Closer {
	return NewCloser(CloserConfig{TrailingCloseThreshold: 0.02}, gateway, ledger, recorder, zap.NewNop())
}

func openBuyPosition() *models.Position {
	return &models.Position{
		Ticker:        "BTCUSDT",
		Side:          models.OrderSideBuy,
		Volume:        1,
		EntryPrice:    100,
		TransactionID: "tx-open",
		OpenTime:      time.Now().UTC().Add(-time.Hour),
	}
}

func TestCloserMeanReverted(t *testing.T) {
	closer := newTestCloser(&fakeGateway{}, &fakeLedger{}, &fakeRecorder{})

	tests := []struct {
		name         string
		side         string
		currentPrice float64
		currentVWAP  float64
		want         bool
	}{
		{"buy back above vwap", models.OrderSideBuy, 101, 100, true},
		{"buy still below vwap", models.OrderSideBuy, 99, 100, false},
		{"sell back below vwap", models.OrderSideSell, 99, 100, true},
		{"sell still above vwap", models.OrderSideSell, 101, 100, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			position := &models.Position{Side: tt.side}
			if got := closer.MeanReverted(position, tt.currentPrice, tt.currentVWAP); got != tt.want {
				t.Errorf("MeanReverted() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCloserApproves(t *testing.T) {
	closer := newTestCloser(&fakeGateway{}, &fakeLedger{}, &fakeRecorder{})
	position := openBuyPosition()

	tests := []struct {
		name         string
		trailing     float64
		currentPrice float64
		currentVWAP  float64
		want         bool
	}{
		{"mean reverted", 0.001, 101, 100, true},
		{"trailing stop hit", 0.03, 95, 100, true},
		{"neither condition", 0.001, 95, 100, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := &analysis.TrailingStopReport{TrailingPercentage: tt.trailing}
			if got := closer.Approves(position, report, tt.currentPrice, tt.currentVWAP); got != tt.want {
				t.Errorf("Approves() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCloserExecute_OppositeTradeAndDelete(t *testing.T) {
	gateway := &fakeGateway{}
	position := openBuyPosition()
	ledger := &fakeLedger{positions: []models.Position{*position}}
	recorder := &fakeRecorder{}
	closer := newTestCloser(gateway, ledger, recorder)

	report := &analysis.TrailingStopReport{UnrealizedProfit: 8}
	result := closer.Execute(context.Background(), position, report, 108)

	if !result.Success {
		t.Fatalf("expected success, got reason %q", result.Reason)
	}
	if len(gateway.sells) != 1 {
		t.Fatalf("expected one sell to close a buy, got %d", len(gateway.sells))
	}
	if gateway.sells[0].Volume != position.Volume {
		t.Errorf("expected close volume %f, got %f", position.Volume, gateway.sells[0].Volume)
	}
	if len(ledger.deleted) != 1 || ledger.deleted[0] != "tx-open" {
		t.Errorf("expected ledger delete of tx-open, got %v", ledger.deleted)
	}
	if result.Profit != 8 {
		t.Errorf("expected profit 8, got %f", result.Profit)
	}
	if len(recorder.records) != 1 || recorder.records[0].Action != models.TradeActionClose {
		t.Errorf("expected one close trade record, got %+v", recorder.records)
	}
}

func TestCloserExecute_SellClosedWithBuy(t *testing.T) {
	gateway := &fakeGateway{}
	position := &models.Position{
		Ticker:        "ETHUSDT",
		Side:          models.OrderSideSell,
		Leverage:      2,
		Volume:        2,
		EntryPrice:    100,
		TransactionID: "tx-short",
	}
	ledger := &fakeLedger{positions: []models.Position{*position}}
	closer := newTestCloser(gateway, ledger, &fakeRecorder{})

	result := closer.Execute(context.Background(), position, &analysis.TrailingStopReport{}, 90)

	if !result.Success {
		t.Fatalf("expected success, got reason %q", result.Reason)
	}
	if len(gateway.buys) != 1 {
		t.Fatalf("expected one buy to close a short, got %d", len(gateway.buys))
	}
	if gateway.buys[0].Leverage != 2 {
		t.Errorf("expected the closing order to carry the position leverage, got %d", gateway.buys[0].Leverage)
	}
}

func TestCloserExecute_ExchangeFailureLeavesLedgerUntouched(t *testing.T) {
	gateway := &fakeGateway{sellErr: errors.New("binance: rejected")}
	position := openBuyPosition()
	ledger := &fakeLedger{positions: []models.Position{*position}}
	closer := newTestCloser(gateway, ledger, &fakeRecorder{})

	result := closer.Execute(context.Background(), position, &analysis.TrailingStopReport{}, 108)

	if result.Success {
		t.Fatal("expected failure when the exchange call fails")
	}
	if len(ledger.deleted) != 0 {
		t.Error("expected no ledger delete after an exchange failure")
	}
	if len(ledger.positions) != 1 {
		t.Error("expected the position to remain for the next cycle")
	}
}

func TestCloserExecute_LedgerDeleteFailureIsReported(t *testing.T) {
	gateway := &fakeGateway{}
	position := openBuyPosition()
	ledger := &fakeLedger{positions: []models.Position{*position}, deleteErr: errors.New("db down")}
	closer := newTestCloser(gateway, ledger, &fakeRecorder{})

	result := closer.Execute(context.Background(), position, &analysis.TrailingStopReport{}, 108)

	if result.Success {
		t.Fatal("expected failure when the ledger delete fails")
	}
	if result.Order == nil {
		t.Error("expected the executed order to be surfaced despite the ledger failure")
	}
}
