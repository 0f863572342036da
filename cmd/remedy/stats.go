package main

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/havenops/remedy/internal/storage"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show recovery pattern statistics",
	Long:  `Display learned recovery patterns and their success rates.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		store, err := storage.New(&storage.Config{Path: cfg.Database})
		if err != nil {
			return fmt.Errorf("failed to open storage: %w", err)
		}
		defer store.Close()

		patterns, err := store.GetRecoveryPatterns(ctx)
		if err != nil {
			return fmt.Errorf("failed to get recovery patterns: %w", err)
		}

		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		yellow := color.New(color.FgYellow).SprintFunc()
		green := color.New(color.FgGreen).SprintFunc()
		red := color.New(color.FgRed).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()

		fmt.Printf("\n%s\n\n", cyan("=== Recovery Patterns ==="))
		if len(patterns) == 0 {
			fmt.Printf("  %s\n\n", gray("No patterns learned yet"))
			return nil
		}

		// Most used first
		sort.Slice(patterns, func(i, j int) bool {
			return patterns[i].UsageCount > patterns[j].UsageCount
		})

		for _, p := range patterns {
			fmt.Printf("%s %s\n", yellow("Signature:"), p.Signature)
			fmt.Printf("  used %d times, avg recovery %s\n",
				p.UsageCount, p.AvgRecoveryTime.Round(time.Millisecond))

			type entry struct {
				strategy string
				rate     float64
			}
			entries := make([]entry, 0, len(p.SuccessRates))
			for strategy, rate := range p.SuccessRates {
				entries = append(entries, entry{string(strategy), rate})
			}
			sort.Slice(entries, func(i, j int) bool { return entries[i].rate > entries[j].rate })
			for _, e := range entries {
				rateColor := red
				if e.rate >= 0.5 {
					rateColor = green
				}
				fmt.Printf("    %-24s %s\n", e.strategy, rateColor(fmt.Sprintf("%.0f%%", e.rate*100)))
			}
			fmt.Println()
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
