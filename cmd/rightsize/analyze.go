package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/fleetcost/rightsize/internal/catalog"
	"github.com/fleetcost/rightsize/internal/config"
	"github.com/fleetcost/rightsize/internal/dataset"
	"github.com/fleetcost/rightsize/internal/pipeline"
	"github.com/fleetcost/rightsize/internal/pricing"
	"github.com/spf13/cobra"
)

var (
	analyzeQuery string
	analyzeJSON  bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <dataset.csv>",
	Short: "Run the right-sizing pipeline over a CSV dataset",
	Long:  "Analyze runs the full pipeline offline against the builtin SKU catalog, pricing candidates from list prices instead of the live provider. No database or API key is required.",
	Args:  cobra.ExactArgs(1),
	RunE:  runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeQuery, "query", "Which VMs should we downsize, and what would we save?", "question the run answers")
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "print the full result as JSON")
	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	slog.SetDefault(logger)

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	records, rowErrs, err := dataset.ReadFile(args[0])
	if err != nil {
		return err
	}
	for _, re := range rowErrs {
		fmt.Fprintf(os.Stderr, "skipped line %d (%s): %s\n", re.Line, re.VMID, re.Reason)
	}

	specs := catalog.BuiltinIndex()
	prices := make(map[string]float64, len(specs))
	for name, spec := range specs {
		prices[name] = spec.ListMonthly
	}

	orch := pipeline.NewOrchestrator(
		pipeline.NewFilter(cfg.Pipeline.CPUThreshold, cfg.Pipeline.RAMThreshold),
		pipeline.NewSynthesizer(cfg.Pipeline.SafetyFloor),
		pricing.NewListResolver(prices),
		pipeline.StaticSpecs(specs),
		cfg.Pipeline.Workers,
		cfg.Pipeline.RunTimeout,
		0,
	)

	result, err := orch.Run(cmd.Context(), analyzeQuery, records)
	if err != nil {
		return err
	}

	if analyzeJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	fmt.Println(result.Response)
	fmt.Println()
	for _, rec := range result.Recommendations {
		if rec.Viable() {
			fmt.Printf("  %-12s %s -> %s  saves $%.2f/mo\n", rec.VMID, rec.CurrentSKU, *rec.RecommendedSKU, *rec.Savings)
		} else {
			fmt.Printf("  %-12s %s  (%s)\n", rec.VMID, rec.CurrentSKU, rec.Note)
		}
	}
	return nil
}
