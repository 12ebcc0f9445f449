package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vmunix/wantarr/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starting config.toml",
	Long:  "Writes a starting config.toml for wantarrd. Currently scaffolds the file only; fill in indexer/debrid credentials by hand.",
	RunE:  runInitCmd,
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().Bool("force", false, "Overwrite existing config.toml")
}

func runInitCmd(cmd *cobra.Command, args []string) error {
	force, _ := cmd.Flags().GetBool("force")
	configPath := "config.toml"

	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("config.toml already exists, use --force to overwrite")
	}

	if err := config.WriteDefault(configPath); err != nil {
		return fmt.Errorf("write %s: %w", configPath, err)
	}
	fmt.Printf("Wrote %s; fill in indexer/debrid credentials by hand.\n", configPath)
	return nil
}

// promptWithDefault shows a prompt with default value in brackets.
// Returns the user's input, or the default if input is empty.
func promptWithDefault(label, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", label, defaultVal)
	} else {
		fmt.Printf("%s: ", label)
	}
	reader := bufio.NewReader(os.Stdin)
	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(input)
	if input == "" {
		return defaultVal
	}
	return input
}

// promptRequired prompts until a non-empty value is provided.
func promptRequired(label string) string {
	reader := bufio.NewReader(os.Stdin)
	for {
		fmt.Printf("%s: ", label)
		input, _ := reader.ReadString('\n')
		input = strings.TrimSpace(input)
		if input != "" {
			return input
		}
		fmt.Println("  Value required")
	}
}
