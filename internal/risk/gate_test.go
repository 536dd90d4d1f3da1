package risk

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradegate/internal/domain"
	"tradegate/internal/ports"
)

type nopLogger struct{}

func (nopLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (nopLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (nopLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (nopLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

type mockHistory struct {
	closes map[string][]ports.DailyClose
	errs   map[string]error
}

func (m *mockHistory) DailyCloses(ctx context.Context, instrument string, lookbackDays int) ([]ports.DailyClose, error) {
	if err, ok := m.errs[instrument]; ok {
		return nil, err
	}
	closes, ok := m.closes[instrument]
	if !ok {
		return nil, ports.ErrDataUnavailable
	}
	return closes, nil
}

func (m *mockHistory) IntradaySnapshot(ctx context.Context, instrument string) (*ports.Quote, error) {
	return nil, ports.ErrDataUnavailable
}

func testGateConfig() Config {
	return Config{
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
	}
}

// randomCloses builds a deterministic pseudo-random close series; two series
// from different seeds are effectively uncorrelated.
func randomCloses(seed int64, days int) []ports.DailyClose {
	rng := rand.New(rand.NewSource(seed))
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	closes := make([]ports.DailyClose, 0, days)
	price := 100.0
	for i := 0; i < days; i++ {
		price *= 1 + (rng.Float64()-0.5)*0.04
		closes = append(closes, ports.DailyClose{Date: start.AddDate(0, 0, i), Close: price})
	}
	return closes
}

func testProposal() *domain.TradeProposal {
	return &domain.TradeProposal{
		Instrument:  "NVDA",
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

func TestGate_NoOpenPositionsSkipsCorrelation(t *testing.T) {
	gate := NewGate(testGateConfig(), nopLogger{})
	view := PortfolioView{Capital: 100000}

	// History provider that fails for everything: must not matter with no
	// open positions.
	history := &mockHistory{errs: map[string]error{"NVDA": ports.ErrDataUnavailable}}

	v := gate.Evaluate(context.Background(), testProposal(), view, history)
	require.True(t, v.Accepted)
	assert.Equal(t, 1.0, v.Multiplier)
}

func TestGate_CorrelationVeto(t *testing.T) {
	gate := NewGate(testGateConfig(), nopLogger{})
	view := PortfolioView{
		Capital: 100000,
		Open:    []OpenExposure{{Instrument: "AMD", Sector: "TECH", Notional: 10000}},
	}

	// Identical series correlate at exactly 1.0.
	series := randomCloses(1, 60)
	history := &mockHistory{closes: map[string][]ports.DailyClose{
		"NVDA": series,
		"AMD":  series,
	}}

	v := gate.Evaluate(context.Background(), testProposal(), view, history)
	require.False(t, v.Accepted)
	assert.Equal(t, RuleCorrelation, v.Rule)
	assert.NotEmpty(t, v.Reason)
}

func TestGate_CorrelationFaultVetoes(t *testing.T) {
	gate := NewGate(testGateConfig(), nopLogger{})
	view := PortfolioView{
		Capital: 100000,
		Open:    []OpenExposure{{Instrument: "AMD", Sector: "TECH", Notional: 10000}},
	}

	tests := []struct {
		name    string
		history *mockHistory
	}{
		{
			name: "proposal history unavailable",
			history: &mockHistory{
				closes: map[string][]ports.DailyClose{"AMD": randomCloses(1, 60)},
				errs:   map[string]error{"NVDA": ports.ErrDataUnavailable},
			},
		},
		{
			name: "open position history unavailable",
			history: &mockHistory{
				closes: map[string][]ports.DailyClose{"NVDA": randomCloses(1, 60)},
				errs:   map[string]error{"AMD": ports.ErrDataUnavailable},
			},
		},
		{
			name: "insufficient aligned data",
			history: &mockHistory{closes: map[string][]ports.DailyClose{
				"NVDA": randomCloses(1, 60),
				"AMD":  randomCloses(2, 5), // too few overlapping returns
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := gate.Evaluate(context.Background(), testProposal(), view, tt.history)
			require.False(t, v.Accepted)
			assert.Equal(t, RuleCorrelation, v.Rule)
		})
	}
}

func TestGate_UncorrelatedInstrumentsAccepted(t *testing.T) {
	gate := NewGate(testGateConfig(), nopLogger{})
	view := PortfolioView{
		Capital: 100000,
		Open:    []OpenExposure{{Instrument: "XOM", Sector: "ENERGY", Notional: 10000}},
	}

	history := &mockHistory{closes: map[string][]ports.DailyClose{
		"NVDA": randomCloses(11, 60),
		"XOM":  randomCloses(97, 60),
	}}

	v := gate.Evaluate(context.Background(), testProposal(), view, history)
	require.True(t, v.Accepted)
	assert.Equal(t, 1.0, v.Multiplier)
}

func TestGate_SectorCapVeto(t *testing.T) {
	gate := NewGate(testGateConfig(), nopLogger{})

	// Two open tech positions at 12% and 9% of capital; the new proposal's
	// stop distance makes its estimated notional 3% of capital, pushing the
	// sector to 24% against a 20% cap.
	view := PortfolioView{
		Capital: 100000,
		Open: []OpenExposure{
			{Instrument: "AAPL", Sector: "TECH", Notional: 12000},
			{Instrument: "MSFT", Sector: "TECH", Notional: 9000},
		},
	}

	proposal := testProposal()
	proposal.StopPrice = 100.0 * (1 - 1.0/3.0) // estimate = $1,000 / (1/3) = $3,000

	v := gate.checkSectorCap(proposal, view)
	require.False(t, v.Accepted)
	assert.Equal(t, RuleSectorCap, v.Rule)
}

func TestGate_SectorCapIgnoresOtherSectors(t *testing.T) {
	gate := NewGate(testGateConfig(), nopLogger{})
	view := PortfolioView{
		Capital: 100000,
		Open: []OpenExposure{
			{Instrument: "XOM", Sector: "ENERGY", Notional: 19000},
		},
	}

	v := gate.checkSectorCap(testProposal(), view)
	assert.True(t, v.Accepted)
}

func TestGate_SectorEstimateIsBounded(t *testing.T) {
	gate := NewGate(testGateConfig(), nopLogger{})

	// A razor-thin stop would imply a huge notional; the estimate must be
	// bounded by the single-position cap instead.
	proposal := testProposal()
	proposal.StopPrice = 99.99

	estimate := gate.estimateNotional(proposal, 100000)
	assert.InDelta(t, 20000, estimate, 1e-9)
}

func TestGate_BetaMultiplier(t *testing.T) {
	gate := NewGate(testGateConfig(), nopLogger{})

	tests := []struct {
		name        string
		beta        float64
		volumeRatio float64
		wantMult    float64
		wantVeto    bool
	}{
		{name: "normal beta", beta: 1.5, wantMult: 1.0},
		{name: "elevated beta", beta: 2.5, wantMult: 0.75},
		{name: "extreme beta with volume confirmation", beta: 3.5, volumeRatio: 2.5, wantMult: 0.5},
		{name: "extreme beta without volume confirmation", beta: 3.5, volumeRatio: 1.0, wantVeto: true},
		{name: "boundary beta at aggressive threshold", beta: 3.0, volumeRatio: 0.5, wantVeto: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			proposal := testProposal()
			proposal.Beta = tt.beta
			proposal.VolumeRatio = tt.volumeRatio

			mult, v := gate.betaMultiplier(proposal)
			if tt.wantVeto {
				require.False(t, v.Accepted)
				assert.Equal(t, RuleBeta, v.Rule)
				return
			}
			require.True(t, v.Accepted)
			assert.Equal(t, tt.wantMult, mult)
		})
	}
}

func TestGate_DefensiveMultiplier(t *testing.T) {
	gate := NewGate(testGateConfig(), nopLogger{})
	ctx := context.Background()

	t.Run("weekly drawdown past threshold halves risk", func(t *testing.T) {
		view := PortfolioView{Capital: 100000, WeeklyDrawdown: 0.052}
		assert.Equal(t, 0.5, gate.defensiveMultiplier(ctx, view))
	})

	t.Run("daily drawdown past threshold halves risk", func(t *testing.T) {
		view := PortfolioView{Capital: 100000, DailyDrawdown: 0.025}
		assert.Equal(t, 0.5, gate.defensiveMultiplier(ctx, view))
	})

	t.Run("no drawdown leaves risk untouched", func(t *testing.T) {
		view := PortfolioView{Capital: 100000, DailyDrawdown: 0.01, WeeklyDrawdown: 0.03}
		assert.Equal(t, 1.0, gate.defensiveMultiplier(ctx, view))
	})
}

func TestGate_CombinedMultiplier(t *testing.T) {
	gate := NewGate(testGateConfig(), nopLogger{})

	// Elevated beta and a weekly drawdown breach combine multiplicatively.
	proposal := testProposal()
	proposal.Beta = 2.5
	view := PortfolioView{Capital: 100000, WeeklyDrawdown: 0.06}

	v := gate.Evaluate(context.Background(), proposal, view, &mockHistory{})
	require.True(t, v.Accepted)
	assert.InDelta(t, 0.375, v.Multiplier, 1e-9)
}
