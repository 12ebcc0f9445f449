package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show queue depth and item state counts",
	Long: `Show the daemon's current per-service queue depth and per-state
item counts, as reported by GET /admin/stats.

Examples:
  wantarr status
  wantarr status --json`,
	RunE: runStatusCmd,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatusCmd(cmd *cobra.Command, args []string) error {
	client := NewClient(serverURL)

	stats, err := client.Stats()
	if err != nil {
		return fmt.Errorf("status check failed: %w", err)
	}

	if jsonOutput {
		printJSON(stats)
		return nil
	}

	printStats(serverURL, stats)
	return nil
}

func printStats(server string, s *StatsResponse) {
	fmt.Printf("wantarrd v%s | Server: %s\n\n", version, server)

	if s.Queue != nil {
		fmt.Println("Queue")
		printCountTable(s.Queue.Running, "running")
		printCountTable(s.Queue.Queued, "queued")
		fmt.Println()
	}

	if s.ItemsByState != nil {
		fmt.Println("Items by state")
		printCountTable(s.ItemsByState, "items")
	}

	if s.Queue == nil && s.ItemsByState == nil {
		fmt.Println("No stats reported (bus/store not wired on the server).")
	}
}

func printCountTable(counts map[string]int, label string) {
	if len(counts) == 0 {
		fmt.Printf("  (no %s)\n", label)
		return
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("  %-12s %-22s %d\n", label, k, counts[k])
	}
}
