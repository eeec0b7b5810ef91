package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "projects",
		Short: "List project paths with stored memories",
		Run:   runProjects,
	}

	RootCmd.AddCommand(cmd)
}

func runProjects(cmd *cobra.Command, args []string) {
	a := mustOpenApp()
	defer a.Close()

	rows, err := a.Store.ListProjects(cmd.Context())
	if err != nil {
		exitErr("list projects", err)
	}
	if textFormat() {
		for _, r := range rows {
			fmt.Printf("%d\t%s\n", r.Count, r.ProjectPath)
		}
		return
	}
	printJSON(rows)
}
