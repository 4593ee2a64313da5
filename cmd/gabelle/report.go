package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/gabellehq/gabelle/internal/budget"
	"github.com/gabellehq/gabelle/internal/business"
	"github.com/gabellehq/gabelle/internal/config"
	"github.com/gabellehq/gabelle/internal/metering"
	"github.com/gabellehq/gabelle/internal/report"
)

var (
	reportBusinessID int64
	reportPeriod     string
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print a usage report for one business to stdout",
	RunE:  runReport,
}

func init() {
	reportCmd.Flags().Int64Var(&reportBusinessID, "business", 0, "business id (required)")
	reportCmd.Flags().StringVar(&reportPeriod, "period", metering.PeriodLast30Days, "period: 30days or all")
	_ = reportCmd.MarkFlagRequired("business")
	rootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command, args []string) error {
	var sel metering.Selector
	switch reportPeriod {
	case metering.PeriodLast30Days:
		sel = metering.Last30Days()
	case metering.PeriodAllTime:
		sel = metering.AllTime()
	default:
		return fmt.Errorf("unknown period %q (want 30days or all)", reportPeriod)
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	meterStore := metering.NewStore(pool)
	budgetStore := budget.NewStore(pool)
	evaluator := budget.NewEvaluator(budgetStore, meterStore)
	assembler := report.NewAssembler(meterStore, evaluator, business.NewStore(pool), nil)

	rep, err := assembler.Build(ctx, reportBusinessID, sel, time.Now().UTC())
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}
