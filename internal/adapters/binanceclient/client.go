package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"tradegate/internal/ports"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
)

const (
	// Base URLs
	baseURLProduction = "https://api.binance.com"
	baseURLTestnet    = "https://testnet.binance.vision"
)

// Client implements ports.PriceHistoryProvider and ports.BrokerExecutionPort
// using the go-binance library.
type Client struct {
	spotClient *binance.Client
	logger     ports.Logger
}

// Config holds configuration specific to the Binance client adapter.
type Config struct {
	APIKey     string
	SecretKey  string
	UseTestnet bool
	Logger     ports.Logger
}

// New creates a new Binance client adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance client")
	}
	if cfg.APIKey == "" || cfg.SecretKey == "" {
		cfg.Logger.Warn(context.Background(), "APIKey or SecretKey is empty. Client will only work for public endpoints.")
	}

	client := binance.NewClient(cfg.APIKey, cfg.SecretKey)

	// Set BaseURL directly instead of using the global testnet toggle
	if cfg.UseTestnet {
		client.BaseURL = baseURLTestnet
		cfg.Logger.Info(context.Background(), "Binance client configured for Testnet", map[string]interface{}{"baseURL": client.BaseURL})
	} else {
		client.BaseURL = baseURLProduction
		cfg.Logger.Info(context.Background(), "Binance client configured for Production", map[string]interface{}{"baseURL": client.BaseURL})
	}

	return &Client{
		spotClient: client,
		logger:     cfg.Logger,
	}, nil
}

// handleError translates common Binance API errors into standardized ports errors.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	fields := map[string]interface{}{"operation": operation, "originalError": err.Error()}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fields["apiErrorCode"] = apiErr.Code
		fields["apiErrorMessage"] = apiErr.Message

		var mappedErr error
		switch apiErr.Code {
		case -2010: // New order rejected
			mappedErr = ports.ErrOrderPlacementFailed
		case -2011: // Cancel order rejected
			mappedErr = ports.ErrOrderNotFound
		case -2013: // Order does not exist
			mappedErr = ports.ErrOrderNotFound
		default:
			mappedErr = ports.ErrDataUnavailable
		}
		finalErr := fmt.Errorf("%s failed: %w: %w", operation, mappedErr, err)
		c.logger.Error(ctx, err, fmt.Sprintf("%s failed with API error", operation), fields)
		return finalErr
	}

	// Non-API errors (network, context cancellation, parsing)
	finalErr := fmt.Errorf("%s failed: %w: %w", operation, ports.ErrDataUnavailable, err)
	c.logger.Error(ctx, err, fmt.Sprintf("%s failed", operation), fields)
	return finalErr
}

// Ping checks the connectivity to the exchange API.
func (c *Client) Ping(ctx context.Context) error {
	op := "Ping"
	if err := c.spotClient.NewPingService().Do(ctx); err != nil {
		return c.handleError(ctx, err, op)
	}
	c.logger.Debug(ctx, op+" successful")
	return nil
}

// --- ports.PriceHistoryProvider ---

// DailyCloses retrieves up to lookbackDays end-of-day closes for the
// instrument, oldest first.
func (c *Client) DailyCloses(ctx context.Context, instrument string, lookbackDays int) ([]ports.DailyClose, error) {
	op := "DailyCloses"
	klines, err := c.spotClient.NewKlinesService().
		Symbol(instrument).
		Interval("1d").
		Limit(lookbackDays).
		Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	if len(klines) == 0 {
		err := fmt.Errorf("no daily kline data returned for instrument %s", instrument)
		return nil, c.handleError(ctx, err, op)
	}

	closes := make([]ports.DailyClose, 0, len(klines))
	for _, k := range klines {
		closePrice, err := strconv.ParseFloat(k.Close, 64)
		if err != nil {
			parseErr := fmt.Errorf("could not parse close price '%s': %w", k.Close, err)
			return nil, c.handleError(ctx, parseErr, op)
		}
		closes = append(closes, ports.DailyClose{
			Date:  time.UnixMilli(k.OpenTime).UTC().Truncate(24 * time.Hour),
			Close: closePrice,
		})
	}
	return closes, nil
}

// IntradaySnapshot retrieves the current session's OHLCV for the instrument.
func (c *Client) IntradaySnapshot(ctx context.Context, instrument string) (*ports.Quote, error) {
	op := "IntradaySnapshot"
	stats, err := c.spotClient.NewListPriceChangeStatsService().Symbol(instrument).Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	if len(stats) == 0 {
		err := fmt.Errorf("no ticker data returned for instrument %s", instrument)
		return nil, c.handleError(ctx, err, op)
	}

	s := stats[0]
	quote := &ports.Quote{AsOf: time.Now()}
	for _, f := range []struct {
		raw string
		dst *float64
	}{
		{s.OpenPrice, &quote.Open},
		{s.HighPrice, &quote.High},
		{s.LowPrice, &quote.Low},
		{s.LastPrice, &quote.Close},
		{s.Volume, &quote.Volume},
	} {
		v, err := strconv.ParseFloat(f.raw, 64)
		if err != nil {
			parseErr := fmt.Errorf("could not parse ticker field '%s': %w", f.raw, err)
			return nil, c.handleError(ctx, parseErr, op)
		}
		*f.dst = v
	}
	return quote, nil
}

// --- ports.BrokerExecutionPort ---

// SubmitOrder places a market or stop-limit order.
func (c *Client) SubmitOrder(ctx context.Context, spec ports.OrderSpec) (ports.OrderHandle, error) {
	op := "SubmitOrder"

	svc := c.spotClient.NewCreateOrderService().
		Symbol(spec.Instrument).
		Side(binance.SideType(spec.Side)).
		Quantity(strconv.FormatInt(spec.Quantity, 10))

	switch spec.Type {
	case ports.OrderTypeStopLimit:
		svc = svc.Type(binance.OrderTypeStopLossLimit).
			Price(strconv.FormatFloat(spec.LimitPrice, 'f', -1, 64)).
			StopPrice(strconv.FormatFloat(spec.StopPrice, 'f', -1, 64)).
			TimeInForce(binance.TimeInForceTypeGTC)
	default:
		svc = svc.Type(binance.OrderTypeMarket)
	}

	order, err := svc.Do(ctx)
	if err != nil {
		return ports.OrderHandle{}, c.handleError(ctx, err, op)
	}

	handle := ports.OrderHandle{
		ID:         strconv.FormatInt(order.OrderID, 10),
		Instrument: spec.Instrument,
	}
	c.logger.Info(ctx, op+" successful", map[string]interface{}{
		"instrument": spec.Instrument,
		"side":       spec.Side,
		"type":       spec.Type,
		"quantity":   spec.Quantity,
		"orderID":    handle.ID,
	})
	return handle, nil
}

// CancelOrder cancels an open order.
func (c *Client) CancelOrder(ctx context.Context, h ports.OrderHandle) error {
	op := "CancelOrder"
	orderID, err := strconv.ParseInt(h.ID, 10, 64)
	if err != nil {
		return fmt.Errorf("%s: invalid order handle '%s': %w", op, h.ID, err)
	}

	_, err = c.spotClient.NewCancelOrderService().
		Symbol(h.Instrument).
		OrderID(orderID).
		Do(ctx)
	if err != nil {
		return c.handleError(ctx, err, op)
	}
	c.logger.Info(ctx, op+" successful", map[string]interface{}{"instrument": h.Instrument, "orderID": h.ID})
	return nil
}

// QueryStatus retrieves the broker's view of a submitted order.
func (c *Client) QueryStatus(ctx context.Context, h ports.OrderHandle) (ports.OrderState, error) {
	op := "QueryStatus"
	orderID, err := strconv.ParseInt(h.ID, 10, 64)
	if err != nil {
		return ports.OrderState{}, fmt.Errorf("%s: invalid order handle '%s': %w", op, h.ID, err)
	}

	order, err := c.spotClient.NewGetOrderService().
		Symbol(h.Instrument).
		OrderID(orderID).
		Do(ctx)
	if err != nil {
		return ports.OrderState{}, c.handleError(ctx, err, op)
	}

	execQty, err := strconv.ParseFloat(order.ExecutedQuantity, 64)
	if err != nil {
		parseErr := fmt.Errorf("could not parse executed quantity '%s': %w", order.ExecutedQuantity, err)
		return ports.OrderState{}, c.handleError(ctx, parseErr, op)
	}
	quoteQty, err := strconv.ParseFloat(order.CummulativeQuoteQuantity, 64)
	if err != nil {
		parseErr := fmt.Errorf("could not parse quote quantity '%s': %w", order.CummulativeQuoteQuantity, err)
		return ports.OrderState{}, c.handleError(ctx, parseErr, op)
	}

	avgPrice := 0.0
	if execQty > 0 {
		avgPrice = quoteQty / execQty
	}

	return ports.OrderState{
		Status:       translateOrderStatus(order.Status),
		FilledQty:    int64(execQty),
		AvgFillPrice: avgPrice,
	}, nil
}

func translateOrderStatus(s binance.OrderStatusType) ports.OrderStatus {
	switch s {
	case binance.OrderStatusTypeFilled:
		return ports.OrderStatusFilled
	case binance.OrderStatusTypeCanceled, binance.OrderStatusTypePendingCancel:
		return ports.OrderStatusCanceled
	case binance.OrderStatusTypeRejected:
		return ports.OrderStatusRejected
	case binance.OrderStatusTypeExpired:
		return ports.OrderStatusExpired
	default:
		return ports.OrderStatusNew
	}
}
