package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradegate/internal/domain"
	"tradegate/internal/exitrules"
	"tradegate/internal/ledger"
	"tradegate/internal/ports"
	"tradegate/internal/risk"
)

type nopLogger struct{}

func (nopLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (nopLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (nopLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (nopLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

// mockBroker fills every order immediately at its limit (or spec) price.
type mockBroker struct {
	mu     sync.Mutex
	nextID int
	status map[string]ports.OrderState
	orders []ports.OrderSpec
}

func newMockBroker() *mockBroker {
	return &mockBroker{status: make(map[string]ports.OrderState)}
}

func (b *mockBroker) SubmitOrder(ctx context.Context, spec ports.OrderSpec) (ports.OrderHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := strconv.Itoa(b.nextID)
	b.orders = append(b.orders, spec)
	b.status[id] = ports.OrderState{
		Status:       ports.OrderStatusFilled,
		FilledQty:    spec.Quantity,
		AvgFillPrice: spec.LimitPrice,
	}
	return ports.OrderHandle{ID: id, Instrument: spec.Instrument}, nil
}

func (b *mockBroker) CancelOrder(ctx context.Context, h ports.OrderHandle) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.status[h.ID] = ports.OrderState{Status: ports.OrderStatusCanceled}
	return nil
}

func (b *mockBroker) QueryStatus(ctx context.Context, h ports.OrderHandle) (ports.OrderState, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	state, ok := b.status[h.ID]
	if !ok {
		return ports.OrderState{}, ports.ErrOrderNotFound
	}
	return state, nil
}

type stubHistory struct{}

func (stubHistory) DailyCloses(ctx context.Context, instrument string, lookbackDays int) ([]ports.DailyClose, error) {
	return nil, ports.ErrDataUnavailable
}

func (stubHistory) IntradaySnapshot(ctx context.Context, instrument string) (*ports.Quote, error) {
	return nil, ports.ErrDataUnavailable
}

func testConfig() Config {
	return Config{
		RiskPerTrade:        0.01,
		MaxSingleFraction:   0.20,
		EntryOffsetFraction: 0.001,
		BackupStopFraction:  0.10,
		PanicDailyDrawdown:  0.04,
		MaxTotalDrawdown:    0.06,
		TickInterval:        time.Minute,
		QuoteTimeout:        time.Second,
	}
}

func testOrchestrator(t *testing.T, led *ledger.Ledger, broker ports.BrokerExecutionPort, store ports.DurableStateStore) *Orchestrator {
	t.Helper()
	gate := risk.NewGate(risk.Config{
		RiskPerTrade:            0.01,
		MaxSingleFraction:       0.20,
		SectorCapFraction:       0.20,
		MaxCorrelation:          0.75,
		CorrelationLookback:     60,
		MinAlignedReturns:       20,
		BetaNormal:              2.0,
		BetaAggressive:          3.0,
		VolumeConfirmRatio:      2.0,
		DailyDrawdownThreshold:  0.02,
		WeeklyDrawdownThreshold: 0.05,
	}, nopLogger{})
	exits := exitrules.NewEngine(exitrules.Config{
		PartialCloseFraction: 0.5,
		BreakevenBuffer:      0.001,
		BreakevenMinProfit:   0.01,
		TrailingATRMultiple:  2.0,
		FlashCrashThreshold:  0.03,
		MaxHoldingSessions:   10,
		WeekCutoffHour:       15,
	})
	o, err := New(testConfig(), nopLogger{}, led, gate, exits, broker, stubHistory{}, nil, store, nil)
	require.NoError(t, err)
	return o
}

func newLedger() *ledger.Ledger {
	return ledger.New(ledger.Config{InitialCapital: 100000, WeeklyWindowDays: 5}, nopLogger{})
}

func proposal(instrument string) *domain.TradeProposal {
	return &domain.TradeProposal{
		Instrument:  instrument,
		Direction:   domain.Long,
		EntryPrice:  100,
		StopPrice:   98,
		Target1:     104,
		Target2:     108,
		SizeClass:   domain.SizeNormal,
		Sector:      "TECH",
		ATR:         2.0,
		Beta:        1.5,
		VolumeRatio: 1.0,
		CreatedAt:   time.Now(),
	}
}

func flatPrices(c domain.Candle) PricesFunc {
	return func(string) (domain.Candle, error) { return c, nil }
}

var midweek = time.Date(2024, 1, 3, 12, 0, 0, 0, time.UTC)

func TestOrchestrator_ProposalToOpenPosition(t *testing.T) {
	led := newLedger()
	broker := newMockBroker()
	o := testOrchestrator(t, led, broker, nil)
	ctx := context.Background()

	v, err := o.HandleProposal(ctx, proposal("NVDA"), midweek)
	require.NoError(t, err)
	require.True(t, v.Accepted)

	// Entry fills on the next tick.
	o.Tick(ctx, midweek, flatPrices(domain.Candle{Open: 100, High: 100.3, Low: 99.8, Close: 100.1}))

	pos, ok := led.Position("NVDA")
	require.True(t, ok)
	assert.Equal(t, int64(200), pos.Quantity) // $1,000 risk / $2, capped at 20%
	assert.InDelta(t, 100.1, pos.EntryPrice, 1e-9)
	assert.Equal(t, 98.0, pos.Stop)
	assert.InDelta(t, 100.1*0.9, pos.BackupStop, 1e-9)
	assert.Equal(t, "TECH", pos.Sector)
}

func TestOrchestrator_DuplicateProposalVetoed(t *testing.T) {
	led := newLedger()
	o := testOrchestrator(t, led, newMockBroker(), nil)
	ctx := context.Background()

	_, err := o.HandleProposal(ctx, proposal("NVDA"), midweek)
	require.NoError(t, err)

	v, err := o.HandleProposal(ctx, proposal("NVDA"), midweek)
	require.NoError(t, err)
	assert.False(t, v.Accepted)
	assert.Equal(t, "duplicate", v.Rule)
}

func TestOrchestrator_KillSwitchBlocksProposals(t *testing.T) {
	led := newLedger()
	o := testOrchestrator(t, led, newMockBroker(), nil)
	ctx := context.Background()

	led.ActivateKillSwitch(ctx)

	v, err := o.HandleProposal(ctx, proposal("NVDA"), midweek)
	require.NoError(t, err)
	assert.False(t, v.Accepted)
	assert.Equal(t, "kill_switch", v.Rule)
}

func TestOrchestrator_TickIsolation(t *testing.T) {
	led := newLedger()
	o := testOrchestrator(t, led, newMockBroker(), nil)
	ctx := context.Background()

	for _, instrument := range []string{"NVDA", "XOM"} {
		pos := &domain.Position{
			Instrument: instrument, Direction: domain.Long,
			EntryPrice: 100, Quantity: 100, OrigQty: 100,
			Stop: 98, BackupStop: 90, Target1: 104, Target2: 108,
			PeakPrice: 100, ATRAtEntry: 2, Sector: "TECH", EntryTime: midweek,
		}
		require.NoError(t, led.OpenPosition(ctx, pos))
	}

	// NVDA's quote fails; XOM breaches its stop. The fault on NVDA must not
	// stop XOM's close.
	prices := func(instrument string) (domain.Candle, error) {
		if instrument == "NVDA" {
			return domain.Candle{}, errors.New("feed down")
		}
		return domain.Candle{Open: 99, High: 99, Low: 97.5, Close: 97.8}, nil
	}
	o.Tick(ctx, midweek, prices)

	_, nvdaOpen := led.Position("NVDA")
	assert.True(t, nvdaOpen, "faulting position is retried next tick, not closed")
	_, xomOpen := led.Position("XOM")
	assert.False(t, xomOpen, "healthy position must still be evaluated")
}

func TestOrchestrator_KillSwitchDrain(t *testing.T) {
	led := newLedger()
	o := testOrchestrator(t, led, newMockBroker(), nil)
	ctx := context.Background()

	for _, instrument := range []string{"NVDA", "AMD", "MSFT"} {
		pos := &domain.Position{
			Instrument: instrument, Direction: domain.Long,
			EntryPrice: 100, Quantity: 100, OrigQty: 100,
			Stop: 98, BackupStop: 90, PeakPrice: 100, ATRAtEntry: 2,
			Sector: "TECH", EntryTime: midweek,
		}
		require.NoError(t, led.OpenPosition(ctx, pos))
	}

	pending := led.ActivateKillSwitch(ctx)
	assert.Len(t, pending, 3)

	o.Tick(ctx, midweek, flatPrices(domain.Candle{Open: 100, High: 100.5, Low: 99.5, Close: 100}))

	assert.Empty(t, led.OpenInstruments())
	assert.Empty(t, led.PendingCloses())
	require.NoError(t, o.DeactivateKillSwitch(ctx))
	assert.False(t, led.KillSwitchActive())
}

func TestOrchestrator_PanicThresholdActivatesKillSwitch(t *testing.T) {
	led := newLedger()
	o := testOrchestrator(t, led, newMockBroker(), nil)
	ctx := context.Background()

	// Realize a 5% loss, past the 4% daily panic threshold.
	pos := &domain.Position{
		Instrument: "NVDA", Direction: domain.Long,
		EntryPrice: 100, Quantity: 500, OrigQty: 500,
		Stop: 98, BackupStop: 85, PeakPrice: 100, ATRAtEntry: 2,
		Sector: "TECH", EntryTime: midweek,
	}
	require.NoError(t, led.OpenPosition(ctx, pos))
	_, err := led.ApplyFullClose(ctx, "NVDA", 90, domain.CloseReasonStopLoss, midweek)
	require.NoError(t, err)
	require.InDelta(t, 0.05, led.DailyDrawdown(), 1e-9)

	o.Tick(ctx, midweek, flatPrices(domain.Candle{Open: 100, High: 100, Low: 100, Close: 100}))
	assert.True(t, led.KillSwitchActive())
}

func TestOrchestrator_TrailingStopThroughTick(t *testing.T) {
	led := newLedger()
	o := testOrchestrator(t, led, newMockBroker(), nil)
	ctx := context.Background()

	pos := &domain.Position{
		Instrument: "NVDA", Direction: domain.Long,
		EntryPrice: 50, Quantity: 100, OrigQty: 100,
		Stop: 48, BackupStop: 45, PeakPrice: 50, ATRAtEntry: 2,
		Sector: "TECH", EntryTime: midweek,
	}
	require.NoError(t, led.OpenPosition(ctx, pos))

	o.Tick(ctx, midweek, flatPrices(domain.Candle{Open: 55, High: 60, Low: 54.5, Close: 59}))

	got, ok := led.Position("NVDA")
	require.True(t, ok)
	assert.Equal(t, 60.0, got.PeakPrice)
	assert.Equal(t, 56.0, got.Stop)
}

type failingStore struct{}

func (failingStore) WriteSnapshot(ctx context.Context, data []byte) error {
	return fmt.Errorf("disk full")
}

func (failingStore) ReadLatestSnapshot(ctx context.Context) ([]byte, error) {
	return nil, ports.ErrSnapshotNotFound
}

func TestOrchestrator_DegradedDurabilityDoesNotBlockTrading(t *testing.T) {
	led := newLedger()
	o := testOrchestrator(t, led, newMockBroker(), failingStore{})
	ctx := context.Background()

	o.Tick(ctx, midweek, flatPrices(domain.Candle{Open: 100, High: 100, Low: 100, Close: 100}))
	assert.True(t, o.Degraded())

	// Trading still works while persistence is down.
	v, err := o.HandleProposal(ctx, proposal("NVDA"), midweek)
	require.NoError(t, err)
	assert.True(t, v.Accepted)
}
