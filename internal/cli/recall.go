package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/agent-context/internal/memory"
	"github.com/rcliao/agent-context/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "recall [query]",
		Short: "Search memories",
		Long:  "Hybrid search: 0.7 x vector similarity + 0.3 x keyword overlap.",
		Args:  cobra.MinimumNArgs(1),
		Run:   runRecall,
	}

	cmd.Flags().StringP("scope", "s", "both", "Scope: global, project or both")
	cmd.Flags().StringP("project", "p", "", "Project path")
	cmd.Flags().StringSlice("category", nil, "Only these categories")
	cmd.Flags().IntP("limit", "l", memory.DefaultLimit, "Max results")
	cmd.Flags().Float64("min-score", memory.DefaultMinScore, "Minimum score")

	RootCmd.AddCommand(cmd)
}

func runRecall(cmd *cobra.Command, args []string) {
	scopeStr, _ := cmd.Flags().GetString("scope")
	project, _ := cmd.Flags().GetString("project")
	categoryStrs, _ := cmd.Flags().GetStringSlice("category")
	limit, _ := cmd.Flags().GetInt("limit")
	minScore, _ := cmd.Flags().GetFloat64("min-score")

	scope, err := model.ParseScope(scopeStr)
	if err != nil {
		exitErr("recall", err)
	}
	var categories []model.Category
	for _, c := range categoryStrs {
		cat, err := model.ParseCategory(c)
		if err != nil {
			exitErr("recall", err)
		}
		categories = append(categories, cat)
	}

	a := mustOpenApp()
	defer a.Close()

	results, err := a.Memory.Recall(cmd.Context(), memory.RecallParams{
		Query:       strings.Join(args, " "),
		Scope:       scope,
		ProjectPath: project,
		Categories:  categories,
		Limit:       limit,
		MinScore:    minScore,
	})
	if err != nil {
		exitErr("recall", err)
	}

	if textFormat() {
		for _, r := range results {
			fmt.Printf("%.3f  %-7s  %s  [%s/%s] %s\n", r.Score, r.MatchType, r.Memory.ID, r.Memory.Scope, r.Memory.Category, r.Memory.Content)
		}
		return
	}
	printJSON(results)
}
