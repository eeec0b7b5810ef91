package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete old, unimportant, rarely used memories",
		Long:  "Deletes memories whose importance is below --min-importance AND age exceeds --max-age-days AND access count is below 3.",
		Run:   runCleanup,
	}

	cmd.Flags().Float64("min-importance", -1, "Importance threshold (default: memory.min_importance)")
	cmd.Flags().Int("max-age-days", -1, "Age threshold in days (default: memory.max_age_days)")

	RootCmd.AddCommand(cmd)
}

func runCleanup(cmd *cobra.Command, args []string) {
	a := mustOpenApp()
	defer a.Close()

	minImportance := a.Config.Memory.MinImportance
	if cmd.Flags().Changed("min-importance") {
		minImportance, _ = cmd.Flags().GetFloat64("min-importance")
	}
	maxAge := a.Config.Memory.MaxAgeDays
	if cmd.Flags().Changed("max-age-days") {
		maxAge, _ = cmd.Flags().GetInt("max-age-days")
	}

	deleted, err := a.Memory.Cleanup(cmd.Context(), minImportance, maxAge)
	if err != nil {
		// The sweep continues past failures; report both.
		fmt.Fprintf(cmd.OutOrStdout(), `{"ok":false,"deleted":%d}`+"\n", deleted)
		exitErr("cleanup", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), `{"ok":true,"deleted":%d}`+"\n", deleted)
}
