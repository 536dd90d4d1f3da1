package risk

import (
	"context"
	"fmt"
	"math"

	"tradegate/internal/domain"
	"tradegate/internal/ports"
)

// Veto rule names carried on rejected verdicts for audit.
const (
	RuleCorrelation = "correlation"
	RuleSectorCap   = "sector_cap"
	RuleBeta        = "beta"
)

// sectorCapTolerance absorbs floating-point noise when comparing sector
// exposure against the cap.
const sectorCapTolerance = 1e-9

// Config holds configuration for the risk gate.
type Config struct {
	RiskPerTrade      float64
	MaxSingleFraction float64
	SectorCapFraction float64

	MaxCorrelation      float64
	CorrelationLookback int
	MinAlignedReturns   int

	BetaNormal         float64
	BetaAggressive     float64
	VolumeConfirmRatio float64

	DailyDrawdownThreshold  float64
	WeeklyDrawdownThreshold float64
}

// OpenExposure is the slice of portfolio state the gate needs per open
// position.
type OpenExposure struct {
	Instrument string
	Sector     string
	Notional   float64
}

// PortfolioView is a read-only snapshot of the portfolio taken under the
// ledger's lock. The gate never sees live position records.
type PortfolioView struct {
	Capital        float64
	DailyDrawdown  float64
	WeeklyDrawdown float64
	Open           []OpenExposure
}

// Verdict is the outcome of a risk evaluation. Vetoes are values, not
// errors: a rejected proposal is normal control flow.
type Verdict struct {
	Accepted   bool
	Rule       string // veto rule name, empty when accepted
	Reason     string // human-readable explanation
	Multiplier float64 // combined beta and defensive multiplier when accepted
}

func veto(rule, reason string) Verdict {
	return Verdict{Accepted: false, Rule: rule, Reason: reason}
}

// Gate runs the pre-entry risk checks. It holds no mutable state; every
// Evaluate call is a function of its inputs, so the same gate serves both
// the live orchestrator and replay runs.
type Gate struct {
	cfg    Config
	logger ports.Logger
}

// NewGate creates a new risk gate.
func NewGate(cfg Config, logger ports.Logger) *Gate {
	return &Gate{cfg: cfg, logger: logger}
}

// Evaluate runs the four checks in order: correlation veto, sector
// concentration veto, beta multiplier, defensive multiplier. The first hard
// veto short-circuits the rest.
func (g *Gate) Evaluate(ctx context.Context, proposal *domain.TradeProposal, view PortfolioView, history ports.PriceHistoryProvider) Verdict {
	if v := g.checkCorrelation(ctx, proposal, view, history); !v.Accepted {
		return v
	}
	if v := g.checkSectorCap(proposal, view); !v.Accepted {
		return v
	}

	betaMult, v := g.betaMultiplier(proposal)
	if !v.Accepted {
		return v
	}

	defensive := g.defensiveMultiplier(ctx, view)

	return Verdict{Accepted: true, Multiplier: betaMult * defensive}
}

// checkCorrelation vetoes when the proposal's instrument correlates with any
// open position's instrument above the threshold. Any failure to compute a
// correlation is treated as maximal correlation: when uncertain, block.
func (g *Gate) checkCorrelation(ctx context.Context, proposal *domain.TradeProposal, view PortfolioView, history ports.PriceHistoryProvider) Verdict {
	if len(view.Open) == 0 {
		return Verdict{Accepted: true}
	}

	proposalCloses, err := history.DailyCloses(ctx, proposal.Instrument, g.cfg.CorrelationLookback)
	if err != nil {
		g.logger.Warn(ctx, "Price history unavailable for proposal, assuming maximal correlation", map[string]interface{}{
			"instrument": proposal.Instrument, "error": err.Error()})
		return veto(RuleCorrelation,
			fmt.Sprintf("price history unavailable for %s, assumed correlation 1.00", proposal.Instrument))
	}

	for _, open := range view.Open {
		corr := 1.0
		openCloses, err := history.DailyCloses(ctx, open.Instrument, g.cfg.CorrelationLookback)
		if err == nil {
			corr, err = correlation(proposalCloses, openCloses, g.cfg.MinAlignedReturns)
		}
		if err != nil {
			g.logger.Warn(ctx, "Correlation computation failed, assuming maximal correlation", map[string]interface{}{
				"proposal": proposal.Instrument, "open": open.Instrument, "error": err.Error()})
			corr = 1.0
		}
		if math.Abs(corr) > g.cfg.MaxCorrelation {
			return veto(RuleCorrelation,
				fmt.Sprintf("correlation %.2f between %s and open position %s exceeds %.2f",
					math.Abs(corr), proposal.Instrument, open.Instrument, g.cfg.MaxCorrelation))
		}
	}
	return Verdict{Accepted: true}
}

// checkSectorCap vetoes when the proposal's sector would exceed the cap,
// using a conservative pre-sizing estimate of the new position's notional.
func (g *Gate) checkSectorCap(proposal *domain.TradeProposal, view PortfolioView) Verdict {
	var sectorTotal float64
	for _, open := range view.Open {
		if open.Sector == proposal.Sector {
			sectorTotal += open.Notional
		}
	}

	estimate := g.estimateNotional(proposal, view.Capital)
	capAmount := view.Capital * g.cfg.SectorCapFraction

	if sectorTotal+estimate > capAmount*(1+sectorCapTolerance) {
		return veto(RuleSectorCap,
			fmt.Sprintf("sector %s exposure %.0f plus estimated %.0f would exceed cap %.0f",
				proposal.Sector, sectorTotal, estimate, capAmount))
	}
	return Verdict{Accepted: true}
}

// estimateNotional approximates the new position's exposure before sizing
// has run: the risk budget divided by the stop distance as a fraction of
// entry, bounded by the single-position cap. The bound keeps a tight stop
// from producing an unbounded estimate. This deliberately overstates
// exposure relative to the post-sizing value; the true quantity is computed
// later and may be smaller.
func (g *Gate) estimateNotional(proposal *domain.TradeProposal, capital float64) float64 {
	maxNotional := capital * g.cfg.MaxSingleFraction
	if proposal.EntryPrice <= 0 {
		return maxNotional
	}
	stopDistFraction := math.Abs(proposal.EntryPrice-proposal.StopPrice) / proposal.EntryPrice
	if stopDistFraction <= 0 {
		return maxNotional
	}
	estimate := capital * g.cfg.RiskPerTrade / stopDistFraction
	return math.Min(estimate, maxNotional)
}

// betaMultiplier maps the proposal's beta estimate onto a size multiplier.
// An extreme beta without confirming volume is a hard veto.
func (g *Gate) betaMultiplier(proposal *domain.TradeProposal) (float64, Verdict) {
	switch {
	case proposal.Beta < g.cfg.BetaNormal:
		return 1.0, Verdict{Accepted: true}
	case proposal.Beta < g.cfg.BetaAggressive:
		return 0.75, Verdict{Accepted: true}
	case proposal.VolumeRatio >= g.cfg.VolumeConfirmRatio:
		return 0.5, Verdict{Accepted: true}
	default:
		return 0, veto(RuleBeta,
			fmt.Sprintf("beta %.2f at or above %.2f without confirming volume (ratio %.2f, need %.2f)",
				proposal.Beta, g.cfg.BetaAggressive, proposal.VolumeRatio, g.cfg.VolumeConfirmRatio))
	}
}

// defensiveMultiplier scales risk down portfolio-wide when a drawdown
// threshold has been crossed.
func (g *Gate) defensiveMultiplier(ctx context.Context, view PortfolioView) float64 {
	if view.WeeklyDrawdown >= g.cfg.WeeklyDrawdownThreshold || view.DailyDrawdown >= g.cfg.DailyDrawdownThreshold {
		g.logger.Info(ctx, "Drawdown threshold crossed, applying defensive multiplier", map[string]interface{}{
			"dailyDrawdown":  view.DailyDrawdown,
			"weeklyDrawdown": view.WeeklyDrawdown,
		})
		return 0.5
	}
	return 1.0
}
