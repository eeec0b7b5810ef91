package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export all memories as JSON",
		Long:  "Export every memory of both scopes, oldest first, in the format read by import.",
		Run:   runExport,
	}

	RootCmd.AddCommand(cmd)
}

func runExport(cmd *cobra.Command, args []string) {
	a := mustOpenApp()
	defer a.Close()

	memories, err := a.Store.ExportAll(cmd.Context())
	if err != nil {
		exitErr("export", err)
	}
	printJSON(memories)
}
