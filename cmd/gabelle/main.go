package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "gabelle",
	Short: "Gabelle — usage metering and budget alerting",
	Long:  "Gabelle meters per-business LLM platform consumption (tokens, requests, cost), aggregates it over time windows, and evaluates monthly platform budgets to surface warnings before the bill does.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: configs/gabelle.yaml)")
}

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
