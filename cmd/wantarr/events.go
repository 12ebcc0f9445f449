package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Show recent item transitions",
	Long:  "Show events recorded by the daemon's event log (internal/events.EventLog), oldest first.",
	RunE:  runEventsCmd,
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.Flags().DurationP("since", "s", time.Hour, "Only show events at or after this long ago")
}

func runEventsCmd(cmd *cobra.Command, args []string) error {
	since, _ := cmd.Flags().GetDuration("since")

	client := NewClient(serverURL)
	events, err := client.Events(time.Now().Add(-since))
	if err != nil {
		return fmt.Errorf("failed to fetch events: %w", err)
	}

	if jsonOutput {
		printJSON(events)
		return nil
	}

	if len(events) == 0 {
		fmt.Println("No events")
		return nil
	}

	fmt.Printf("Recent events (%d):\n\n", len(events))
	fmt.Printf("  %-12s %-28s %-15s\n", "TIME", "EVENT", "ENTITY")
	fmt.Println("  " + strings.Repeat("-", 58))

	for _, e := range events {
		t, _ := time.Parse(time.RFC3339, e.OccurredAt)
		ago := formatTimeAgo(t.Unix())
		entity := fmt.Sprintf("%s/%d", e.EntityType, e.EntityID)
		fmt.Printf("  %-12s %-28s %-15s\n", ago, e.EventType, entity)
	}

	return nil
}
