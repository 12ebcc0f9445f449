package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

// formatTimeAgo renders a unix timestamp as a short relative duration
// ("5m ago", "3h ago"), falling back to the absolute date once it's
// more than a week old.
func formatTimeAgo(unixTime int64) string {
	if unixTime == 0 {
		return "-"
	}
	d := time.Since(time.Unix(unixTime, 0))
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	default:
		return time.Unix(unixTime, 0).Format("2006-01-02")
	}
}
