package exchange

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"CryptoSignalBot/internal/models"
	"CryptoSignalBot/internal/services/trading"

	"github.com/adshao/go-binance/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const defaultMinimumVolume = 0.0001

// BinanceGateway is the live trading.ExchangeGateway backed by the Binance
// spot and margin APIs. Unleveraged entries go through spot orders; leveraged
// shorts and their closing buys go through margin orders.
type BinanceGateway struct {
	client         *binance.Client
	rateLimiter    *rate.Limiter
	minimumVolumes map[string]float64
	logger         *zap.Logger
}

func NewBinanceGateway(apiKey, secretKey string, minimumVolumes map[string]float64, logger *zap.Logger) *BinanceGateway {
	// Custom HTTP client with timeouts
	httpClient := &http.Client{
		Timeout: time.Second * 10,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 100,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	client := binance.NewClient(apiKey, secretKey)
	client.HTTPClient = httpClient

	// Rate limiter: 10 requests per second with burst of 20
	limiter := rate.NewLimiter(rate.Limit(10), 20)

	return &BinanceGateway{
		client:         client,
		rateLimiter:    limiter,
		minimumVolumes: minimumVolumes,
		logger:         logger.Named("BinanceGateway"),
	}
}

// GetPrices fetches the current ask/bid/vwap/high/low snapshot for a ticker
// from the 24-hour price change statistics.
func (g *BinanceGateway) GetPrices(ctx context.Context, ticker string) (models.Price, error) {
	var stats []*binance.PriceChangeStats
	err := g.withRetry(ctx, func() error {
		var callErr error
		stats, callErr = g.client.NewListPriceChangeStatsService().Symbol(ticker).Do(ctx)
		return callErr
	})
	if err != nil {
		return models.Price{}, fmt.Errorf("unable to fetch prices for %s: %w", ticker, err)
	}
	if len(stats) == 0 {
		return models.Price{}, fmt.Errorf("no price stats returned for %s", ticker)
	}

	s := stats[0]
	return models.Price{
		Ticker:    ticker,
		Ask:       parseFloat(s.AskPrice),
		Bid:       parseFloat(s.BidPrice),
		VWAP:      parseFloat(s.WeightedAvgPrice),
		High:      parseFloat(s.HighPrice),
		Low:       parseFloat(s.LowPrice),
		Timestamp: time.Now().UTC(),
	}, nil
}

// Buy places a market buy order. A non-zero leverage routes through the
// margin account with automatic borrow repayment (closing a short).
func (g *BinanceGateway) Buy(ctx context.Context, req trading.OrderRequest) (*trading.OrderConfirmation, error) {
	return g.placeOrder(ctx, req, binance.SideTypeBuy)
}

// Sell places a market sell order. A non-zero leverage routes through the
// margin account, borrowing the base asset (opening a short).
func (g *BinanceGateway) Sell(ctx context.Context, req trading.OrderRequest) (*trading.OrderConfirmation, error) {
	return g.placeOrder(ctx, req, binance.SideTypeSell)
}

func (g *BinanceGateway) placeOrder(ctx context.Context, req trading.OrderRequest, side binance.SideType) (*trading.OrderConfirmation, error) {
	quantity := strconv.FormatFloat(req.Volume, 'f', 8, 64)

	var resp *binance.CreateOrderResponse
	err := g.withRetry(ctx, func() error {
		var callErr error
		if req.Leverage > 0 {
			sideEffect := binance.SideEffectTypeMarginBuy
			if side == binance.SideTypeBuy {
				sideEffect = binance.SideEffectTypeAutoRepay
			}
			resp, callErr = g.client.NewCreateMarginOrderService().
				Symbol(req.Ticker).
				Side(side).
				Type(binance.OrderTypeMarket).
				Quantity(quantity).
				SideEffectType(sideEffect).
				Do(ctx)
		} else {
			resp, callErr = g.client.NewCreateOrderService().
				Symbol(req.Ticker).
				Side(side).
				Type(binance.OrderTypeMarket).
				Quantity(quantity).
				Do(ctx)
		}
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("exchange request failed for %s %s: %w", req.Ticker, side, err)
	}

	return confirmationFromResponse(resp, req), nil
}

func confirmationFromResponse(resp *binance.CreateOrderResponse, req trading.OrderRequest) *trading.OrderConfirmation {
	executed := parseFloat(resp.ExecutedQuantity)
	quoteSpent := parseFloat(resp.CummulativeQuoteQuantity)

	price := req.Price
	if executed > 0 && quoteSpent > 0 {
		price = quoteSpent / executed
	}
	volume := executed
	if volume == 0 {
		volume = req.Volume
	}

	fee := decimal.Zero
	for _, fill := range resp.Fills {
		if commission, err := decimal.NewFromString(fill.Commission); err == nil {
			fee = fee.Add(commission)
		}
	}

	return &trading.OrderConfirmation{
		TransactionID: strconv.FormatInt(resp.OrderID, 10),
		Ticker:        resp.Symbol,
		Side:          sideToOrderSide(resp.Side),
		Volume:        volume,
		Price:         price,
		Cost:          decimal.NewFromFloat(quoteSpent),
		Fee:           fee,
		ExecutedAt:    time.UnixMilli(resp.TransactTime).UTC(),
	}
}

// GetAccountBalances reads the margin account: USDT net asset as equity,
// USDT borrowed as margin used, plus the account-wide margin level.
func (g *BinanceGateway) GetAccountBalances(ctx context.Context) (models.AccountState, error) {
	var account *binance.MarginAccount
	err := g.withRetry(ctx, func() error {
		var callErr error
		account, callErr = g.client.NewGetMarginAccountService().Do(ctx)
		return callErr
	})
	if err != nil {
		return models.AccountState{}, fmt.Errorf("unable to fetch account balances: %w", err)
	}

	state := models.AccountState{MarginLevel: parseFloat(account.MarginLevel)}
	for _, asset := range account.UserAssets {
		if asset.Asset == "USDT" {
			state.Equity = parseFloat(asset.NetAsset)
			state.MarginUsed = parseFloat(asset.Borrowed)
			break
		}
	}
	return state, nil
}

// GetOrder fetches the status of a previously placed order.
func (g *BinanceGateway) GetOrder(ctx context.Context, ticker, transactionID string) (string, error) {
	orderID, err := strconv.ParseInt(transactionID, 10, 64)
	if err != nil {
		return "", fmt.Errorf("invalid transaction id %q: %w", transactionID, err)
	}

	var order *binance.Order
	err = g.withRetry(ctx, func() error {
		var callErr error
		order, callErr = g.client.NewGetOrderService().
			Symbol(ticker).
			OrderID(orderID).
			Do(ctx)
		return callErr
	})
	if err != nil {
		return "", fmt.Errorf("unable to fetch order %s: %w", transactionID, err)
	}
	return string(order.Status), nil
}

// MinimumVolume returns the smallest tradeable volume for a ticker.
func (g *BinanceGateway) MinimumVolume(ticker string) float64 {
	if minimum, ok := g.minimumVolumes[ticker]; ok {
		return minimum
	}
	return defaultMinimumVolume
}

// withRetry runs a call under the rate limiter with bounded exponential
// backoff.
func (g *BinanceGateway) withRetry(ctx context.Context, call func() error) error {
	const maxRetries = 3
	backoff := 100 * time.Millisecond

	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if waitErr := g.rateLimiter.Wait(ctx); waitErr != nil {
			return waitErr
		}

		err = call()
		if err == nil {
			return nil
		}
		if attempt == maxRetries {
			break
		}

		waitTime := time.Duration(math.Pow(2, float64(attempt))) * backoff
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(waitTime):
		}
	}
	return err
}

func sideToOrderSide(side binance.SideType) string {
	if side == binance.SideTypeBuy {
		return models.OrderSideBuy
	}
	return models.OrderSideSell
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

var _ trading.ExchangeGateway = (*BinanceGateway)(nil)
