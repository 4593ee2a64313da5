package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/gabellehq/gabelle/internal/budget"
	"github.com/gabellehq/gabelle/internal/business"
	"github.com/gabellehq/gabelle/internal/config"
	"github.com/gabellehq/gabelle/internal/metering"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed demo businesses, budgets, and two months of synthetic usage",
	RunE:  runSeed,
}

func init() {
	rootCmd.AddCommand(seedCmd)
}

var demoBusinesses = []string{
	"Acme Robotics",
	"Borealis Analytics",
	"Cachalot Media",
}

var demoPlatforms = []struct {
	name          string
	costPerMToken decimal.Decimal
}{
	{"anthropic", decimal.RequireFromString("9.00")},
	{"openai", decimal.RequireFromString("7.50")},
	{"gemini", decimal.RequireFromString("4.00")},
}

func runSeed(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	businessStore := business.NewStore(pool)
	budgetStore := budget.NewStore(pool)
	meterStore := metering.NewStore(pool)

	rng := rand.New(rand.NewSource(42))
	today := time.Now().UTC().Truncate(24 * time.Hour)

	for i, name := range demoBusinesses {
		b, err := businessStore.Create(ctx, name)
		if err != nil {
			return fmt.Errorf("seeding business %q: %w", name, err)
		}

		// A limited budget on the first platform, an unlimited one on the
		// second, nothing on the third, staggered per business.
		limit := decimal.NewFromInt(int64(50 * (i + 1)))
		if _, err := budgetStore.Set(ctx, budget.SetBudgetInput{
			BusinessID:          b.ID,
			Platform:            demoPlatforms[i%len(demoPlatforms)].name,
			MonthlyLimit:        decimal.NewNullDecimal(limit),
			WarningThresholdPct: 80,
		}); err != nil {
			return fmt.Errorf("seeding budget: %w", err)
		}
		if _, err := budgetStore.Set(ctx, budget.SetBudgetInput{
			BusinessID: b.ID,
			Platform:   demoPlatforms[(i+1)%len(demoPlatforms)].name,
		}); err != nil {
			return fmt.Errorf("seeding budget: %w", err)
		}

		var deltas []metering.UsageDelta
		for day := 0; day < 60; day++ {
			date := today.AddDate(0, 0, -day)
			for _, p := range demoPlatforms {
				// Not every business uses every platform every day.
				if rng.Intn(4) == 0 {
					continue
				}
				prompt := int64(rng.Intn(40_000) + 1_000)
				completion := int64(rng.Intn(15_000) + 500)
				cost := p.costPerMToken.
					Mul(decimal.NewFromInt(prompt + completion)).
					Div(decimal.NewFromInt(1_000_000))
				deltas = append(deltas, metering.UsageDelta{
					BusinessID:       b.ID,
					Platform:         p.name,
					Date:             date,
					PromptTokens:     prompt,
					CompletionTokens: completion,
					RequestCount:     int64(rng.Intn(20) + 1),
					EstimatedCost:    cost,
				})
			}
		}
		metering.SortDeltas(deltas)
		if err := meterStore.Accumulate(ctx, deltas); err != nil {
			return fmt.Errorf("seeding usage: %w", err)
		}

		slog.Info("seeded business", "id", b.ID, "name", b.Name, "usage_rows", len(deltas))
	}

	slog.Info("seed complete", "businesses", len(demoBusinesses))
	return nil
}
