package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/agent-context/internal/model"
	"github.com/rcliao/agent-context/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List memories, newest first",
		Run:   runList,
	}

	cmd.Flags().StringP("scope", "s", "both", "Scope: global, project or both")
	cmd.Flags().StringP("project", "p", "", "Filter by project path")
	cmd.Flags().String("category", "", "Filter by category")
	cmd.Flags().IntP("limit", "l", 20, "Max results (0 for all)")
	cmd.Flags().Bool("ids-only", false, "Only output ids")

	RootCmd.AddCommand(cmd)
}

func runList(cmd *cobra.Command, args []string) {
	scopeStr, _ := cmd.Flags().GetString("scope")
	project, _ := cmd.Flags().GetString("project")
	categoryStr, _ := cmd.Flags().GetString("category")
	limit, _ := cmd.Flags().GetInt("limit")
	idsOnly, _ := cmd.Flags().GetBool("ids-only")

	scope, err := model.ParseScope(scopeStr)
	if err != nil {
		exitErr("list", err)
	}
	var category model.Category
	if categoryStr != "" {
		if category, err = model.ParseCategory(categoryStr); err != nil {
			exitErr("list", err)
		}
	}

	a := mustOpenApp()
	defer a.Close()

	memories, err := a.Memory.List(cmd.Context(), store.ListParams{
		Scope:       scope,
		ProjectPath: project,
		Category:    category,
		Limit:       limit,
	})
	if err != nil {
		exitErr("list", err)
	}

	if idsOnly {
		for _, m := range memories {
			fmt.Println(m.ID)
		}
		return
	}
	if textFormat() {
		for _, m := range memories {
			fmt.Printf("%s  %-7s  %-12s  %.2f  %s\n", m.ID, m.Scope, m.Category, m.Importance, m.Content)
		}
		return
	}
	printJSON(memories)
}
