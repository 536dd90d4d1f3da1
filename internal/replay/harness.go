package replay

import (
	"context"
	"fmt"
	"sort"
	"time"

	"tradegate/internal/app"
	"tradegate/internal/domain"
	"tradegate/internal/exitrules"
	"tradegate/internal/ledger"
	"tradegate/internal/ports"
	"tradegate/internal/risk"
)

// tickHour is the simulated wall-clock hour of each daily tick, late enough
// in the session for the end-of-week rules to apply.
const tickHour = 16

// Config bundles the engine configuration a replay run needs. The risk and
// exit parameters are the same structs the live engine consumes.
type Config struct {
	App              app.Config
	Gate             risk.Config
	Exits            exitrules.Config
	InitialCapital   float64
	WeeklyWindowDays int
}

// Harness drives the orchestrator over historical daily bars. Every decision
// runs through the identical gate, sizer, exit engine and ledger code the
// live engine uses; only the broker and the price source are simulated.
type Harness struct {
	cfg       Config
	logger    ports.Logger
	candles   map[string][]domain.Candle
	proposals map[string][]*domain.TradeProposal // keyed by trading day

	ledger  *ledger.Ledger
	broker  *SimBroker
	history *HistoryProvider
	journal *memoryJournal
	orch    *app.Orchestrator
}

// NewHarness builds a replay run over the given candle data and advisory
// proposals. Proposals are dispatched on their CreatedAt trading day.
func NewHarness(cfg Config, logger ports.Logger, candles map[string][]domain.Candle, proposals []*domain.TradeProposal) (*Harness, error) {
	if len(candles) == 0 {
		return nil, fmt.Errorf("replay needs at least one instrument's candles")
	}

	byDay := make(map[string][]*domain.TradeProposal)
	for _, p := range proposals {
		key := day(p.CreatedAt)
		byDay[key] = append(byDay[key], p)
	}
	for _, ps := range byDay {
		sort.Slice(ps, func(i, j int) bool { return ps[i].Instrument < ps[j].Instrument })
	}

	led := ledger.New(ledger.Config{
		InitialCapital:   cfg.InitialCapital,
		WeeklyWindowDays: cfg.WeeklyWindowDays,
	}, logger)
	broker := NewSimBroker()
	history := NewHistoryProvider(candles)
	journal := newMemoryJournal()

	orch, err := app.New(cfg.App, logger, led,
		risk.NewGate(cfg.Gate, logger),
		exitrules.NewEngine(cfg.Exits),
		broker, history, journal, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("building replay orchestrator: %w", err)
	}

	return &Harness{
		cfg:       cfg,
		logger:    logger,
		candles:   candles,
		proposals: byDay,
		ledger:    led,
		broker:    broker,
		history:   history,
		journal:   journal,
		orch:      orch,
	}, nil
}

// Run replays every trading day in the candle data, oldest first, and
// returns the resulting report.
func (h *Harness) Run(ctx context.Context) (*Report, error) {
	days := h.tradingDays()
	h.logger.Info(ctx, "Replay starting", map[string]interface{}{
		"days":        len(days),
		"instruments": len(h.candles),
		"capital":     h.cfg.InitialCapital,
	})

	for _, d := range days {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		dayCandles := h.candlesFor(d)
		h.history.SetCursor(d)
		h.broker.SetDay(dayCandles)

		now := time.Date(d.Year(), d.Month(), d.Day(), tickHour, 0, 0, 0, time.UTC)
		h.orch.Tick(ctx, now, func(instrument string) (domain.Candle, error) {
			candle, ok := dayCandles[instrument]
			if !ok {
				return domain.Candle{}, fmt.Errorf("no bar for %s on %s: %w", instrument, day(d), ports.ErrDataUnavailable)
			}
			return candle, nil
		})

		for _, p := range h.proposals[day(d)] {
			if _, err := h.orch.HandleProposal(ctx, p, now); err != nil {
				h.logger.Warn(ctx, "Replay proposal failed", map[string]interface{}{
					"instrument": p.Instrument, "error": err.Error()})
			}
		}

		h.orch.AdvanceDay(ctx)
	}

	report := &Report{
		Days:           len(days),
		InitialCapital: h.cfg.InitialCapital,
		FinalCapital:   h.ledger.Capital(),
		Trades:         append([]domain.TradeRecord(nil), h.journal.trades...),
		Vetoes:         append([]VetoRecord(nil), h.journal.vetoes...),
		Log:            append([]string(nil), h.journal.log...),
	}
	h.logger.Info(ctx, "Replay finished", map[string]interface{}{
		"finalCapital": report.FinalCapital,
		"trades":       len(report.Trades),
		"vetoes":       len(report.Vetoes),
	})
	return report, nil
}

// tradingDays is the sorted union of all candle dates.
func (h *Harness) tradingDays() []time.Time {
	seen := make(map[string]time.Time)
	for _, bars := range h.candles {
		for _, bar := range bars {
			d := bar.Date.UTC().Truncate(24 * time.Hour)
			seen[day(d)] = d
		}
	}
	days := make([]time.Time, 0, len(seen))
	for _, d := range seen {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	return days
}

func (h *Harness) candlesFor(d time.Time) map[string]domain.Candle {
	out := make(map[string]domain.Candle)
	for instrument, bars := range h.candles {
		for _, bar := range bars {
			if day(bar.Date) == day(d) {
				out[instrument] = bar
				break
			}
		}
	}
	return out
}
