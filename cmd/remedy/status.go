package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/havenops/remedy/internal/storage"
	"github.com/havenops/remedy/internal/types"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show recent healing activity",
	Long:  `Display recent healing sessions, errors and anomalies from the database.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		store, err := storage.New(&storage.Config{Path: cfg.Database})
		if err != nil {
			return fmt.Errorf("failed to open storage: %w", err)
		}
		defer store.Close()

		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		yellow := color.New(color.FgYellow).SprintFunc()
		green := color.New(color.FgGreen).SprintFunc()
		red := color.New(color.FgRed).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()

		fmt.Printf("\n%s\n\n", cyan("=== Remedy Status ==="))

		sessions, err := store.GetRecentHealingSessions(ctx, 10)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to get sessions: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s\n", yellow("Recent Healing Sessions:"))
		if len(sessions) == 0 {
			fmt.Printf("  %s\n", gray("No sessions recorded"))
		}
		for _, s := range sessions {
			icon := green("✓")
			if !s.Success {
				icon = red("✗")
			}
			duration := ""
			if !s.EndTime.IsZero() {
				duration = s.EndTime.Sub(s.StartTime).Round(time.Millisecond).String()
			}
			fmt.Printf("  %s %s  %s  %s %s\n",
				icon, s.StartTime.Format("2006-01-02 15:04:05"), s.Trigger, duration, gray(shortID(s.ID)))
		}

		events, err := store.GetRecentErrorEvents(ctx, 10)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to get error events: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("\n%s\n", yellow("Recent Errors:"))
		if len(events) == 0 {
			fmt.Printf("  %s\n", gray("No errors recorded"))
		}
		for _, e := range events {
			sevColor := gray
			switch e.Severity {
			case types.SeverityCritical, types.SeverityHigh:
				sevColor = red
			case types.SeverityMedium:
				sevColor = yellow
			}
			fmt.Printf("  %s [%s] %s: %s\n",
				e.Timestamp.Format("15:04:05"), sevColor(string(e.Severity)), e.Type, truncate(e.Message, 70))
		}

		anomalies, err := store.GetRecentAnomalies(ctx, 5)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to get anomalies: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("\n%s\n", yellow("Recent Anomalies:"))
		if len(anomalies) == 0 {
			fmt.Printf("  %s\n", gray("No anomalies recorded"))
		}
		for _, a := range anomalies {
			fmt.Printf("  %s [%s] %s\n",
				a.Timestamp.Format("15:04:05"), a.Severity, truncate(a.Description, 70))
		}
		fmt.Println()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
