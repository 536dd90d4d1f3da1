package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"

	"tradegate/config"
	"tradegate/internal/adapters/csvdata"
	"tradegate/internal/adapters/logger"
	"tradegate/internal/app"
	"tradegate/internal/exitrules"
	"tradegate/internal/replay"
	"tradegate/internal/risk"
)

func main() {
	candlesPath := flag.String("candles", "data/daily_candles.csv", "daily candle CSV file")
	advisoriesPath := flag.String("advisories", "data/advisories.json", "advisory proposal JSON file")
	showLog := flag.Bool("log", false, "print the full trade log")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	// Replay output is for humans at a terminal; keep logging quiet unless
	// something goes wrong.
	appLogger := logger.NewStdLogger(logger.LevelWarn)
	ctx := context.Background()

	candles, err := csvdata.LoadDailyCandles(*candlesPath)
	if err != nil {
		log.Fatalf("FATAL: Failed to load candles: %v", err)
	}
	proposals, err := csvdata.LoadAdvisories(*advisoriesPath)
	if err != nil {
		log.Fatalf("FATAL: Failed to load advisories: %v", err)
	}

	harness, err := replay.NewHarness(replay.Config{
		App: app.Config{
			RiskPerTrade:        cfg.RiskPerTrade,
			MaxSingleFraction:   cfg.MaxSingleFraction,
			EntryOffsetFraction: cfg.EntryOffsetFraction,
			BackupStopFraction:  cfg.BackupStopFraction,
			PanicDailyDrawdown:  cfg.PanicDailyDrawdown,
			MaxTotalDrawdown:    cfg.MaxTotalDrawdown,
			TickInterval:        cfg.TickInterval,
			QuoteTimeout:        cfg.QuoteTimeout,
		},
		Gate: risk.Config{
			RiskPerTrade:            cfg.RiskPerTrade,
			MaxSingleFraction:       cfg.MaxSingleFraction,
			SectorCapFraction:       cfg.SectorCapFraction,
			MaxCorrelation:          cfg.MaxCorrelation,
			CorrelationLookback:     cfg.CorrelationLookback,
			MinAlignedReturns:       cfg.MinAlignedReturns,
			BetaNormal:              cfg.BetaNormal,
			BetaAggressive:          cfg.BetaAggressive,
			VolumeConfirmRatio:      cfg.VolumeConfirmRatio,
			DailyDrawdownThreshold:  cfg.DailyDrawdownThreshold,
			WeeklyDrawdownThreshold: cfg.WeeklyDrawdownThreshold,
		},
		Exits: exitrules.Config{
			PartialCloseFraction: cfg.PartialCloseFraction,
			BreakevenBuffer:      cfg.BreakevenBuffer,
			BreakevenMinProfit:   cfg.BreakevenMinProfit,
			TrailingATRMultiple:  cfg.TrailingATRMultiple,
			FlashCrashThreshold:  cfg.FlashCrashThreshold,
			MaxHoldingSessions:   cfg.MaxHoldingSessions,
			WeekCutoffHour:       cfg.WeekCutoffHour,
		},
		InitialCapital:   cfg.StartingCapital,
		WeeklyWindowDays: cfg.WeeklyWindowDays,
	}, appLogger, candles, proposals)
	if err != nil {
		log.Fatalf("FATAL: Failed to build replay harness: %v", err)
	}

	report, err := harness.Run(ctx)
	if err != nil {
		log.Fatalf("FATAL: Replay run failed: %v", err)
	}

	printReport(report)
	if *showLog {
		fmt.Println()
		fmt.Println(report.TradeLog())
	}
}

func printReport(report *replay.Report) {
	stats := replay.ComputeStats(report.Trades, report.InitialCapital)

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.SetTitle("Replay Summary")
	t.AppendRows([]table.Row{
		{"Trading Days", report.Days},
		{"Initial Capital", fmt.Sprintf("%.2f", report.InitialCapital)},
		{"Final Capital", fmt.Sprintf("%.2f", report.FinalCapital)},
		{"Net P&L", fmt.Sprintf("%.2f", report.NetPnL())},
		{"Return", fmt.Sprintf("%.2f%%", stats.Return*100)},
		{"Trades", stats.TotalTrades},
		{"Win Rate", fmt.Sprintf("%.1f%%", stats.WinRate*100)},
		{"Profit Factor", fmt.Sprintf("%.2f", stats.ProfitFactor)},
		{"Expectancy", fmt.Sprintf("%.2f", stats.Expectancy)},
		{"Max Drawdown", fmt.Sprintf("%.2f%%", stats.MaxDrawdown*100)},
		{"Avg Holding", stats.AverageHolding.String()},
		{"Vetoes", len(report.Vetoes)},
	})
	t.Render()

	if len(report.Trades) > 0 {
		tt := table.NewWriter()
		tt.SetOutputMirror(os.Stdout)
		tt.SetStyle(table.StyleLight)
		tt.SetTitle("Closed Trades")
		tt.AppendHeader(table.Row{"Exit Day", "Instrument", "Side", "Qty", "Entry", "Exit", "P&L", "Reason"})
		for _, rec := range report.Trades {
			tt.AppendRow(table.Row{
				rec.ExitTime.UTC().Format("2006-01-02"),
				rec.Instrument,
				rec.Direction,
				rec.Quantity,
				fmt.Sprintf("%.2f", rec.EntryPrice),
				fmt.Sprintf("%.2f", rec.ExitPrice),
				fmt.Sprintf("%.2f", rec.PnL),
				rec.Reason,
			})
		}
		tt.Render()
	}

	if len(report.Vetoes) > 0 {
		vt := table.NewWriter()
		vt.SetOutputMirror(os.Stdout)
		vt.SetStyle(table.StyleLight)
		vt.SetTitle("Vetoed Proposals")
		vt.AppendHeader(table.Row{"Day", "Instrument", "Rule", "Reason"})
		for _, v := range report.Vetoes {
			vt.AppendRow(table.Row{v.Day.UTC().Format("2006-01-02"), v.Instrument, v.Rule, v.Reason})
		}
		vt.Render()
	}
}
