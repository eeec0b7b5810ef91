package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rcliao/agent-context/internal/memory"
	"github.com/rcliao/agent-context/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "remember [content]",
		Short: "Store a memory",
		Long:  "Store a memory. Content can be a positional arg or piped via stdin.",
		Run:   runRemember,
	}

	cmd.Flags().StringP("scope", "s", "global", "Scope: global or project")
	cmd.Flags().StringP("project", "p", "", "Project path (required for project scope)")
	cmd.Flags().String("category", "knowledge", "Category: "+categoryList())
	cmd.Flags().Float64("importance", -1, "Importance in [0,1] (default: derived from category and content)")
	cmd.Flags().StringP("tags", "t", "", "Comma-separated tags")
	cmd.Flags().StringSlice("files", nil, "Related files")
	cmd.Flags().String("source", "cli", "Source recorded in metadata")
	cmd.Flags().Duration("ttl", 0, "Expire the memory after this duration")

	RootCmd.AddCommand(cmd)
}

func categoryList() string {
	names := make([]string, len(model.Categories))
	for i, c := range model.Categories {
		names[i] = string(c)
	}
	return strings.Join(names, ", ")
}

func runRemember(cmd *cobra.Command, args []string) {
	scopeStr, _ := cmd.Flags().GetString("scope")
	project, _ := cmd.Flags().GetString("project")
	categoryStr, _ := cmd.Flags().GetString("category")
	importance, _ := cmd.Flags().GetFloat64("importance")
	tagsStr, _ := cmd.Flags().GetString("tags")
	files, _ := cmd.Flags().GetStringSlice("files")
	source, _ := cmd.Flags().GetString("source")
	ttl, _ := cmd.Flags().GetDuration("ttl")

	// Get content: positional arg first, then check stdin
	var content string
	if len(args) > 0 {
		content = strings.Join(args, " ")
	} else {
		stat, _ := os.Stdin.Stat()
		if (stat.Mode() & os.ModeCharDevice) == 0 {
			b, err := io.ReadAll(os.Stdin)
			if err != nil {
				exitErr("read stdin", err)
			}
			content = string(b)
		}
	}
	if strings.TrimSpace(content) == "" {
		exitErr("remember", fmt.Errorf("content is required (positional arg or stdin)"))
	}

	scope, err := model.ParseScope(scopeStr)
	if err != nil {
		exitErr("remember", err)
	}
	category, err := model.ParseCategory(categoryStr)
	if err != nil {
		exitErr("remember", err)
	}

	p := memory.RememberParams{
		Content:     content,
		Scope:       scope,
		Category:    category,
		ProjectPath: project,
		Metadata: model.Metadata{
			Source:       source,
			Tags:         splitTags(tagsStr),
			RelatedFiles: files,
		},
	}
	if cmd.Flags().Changed("importance") {
		p.Importance = &importance
	}
	if ttl > 0 {
		exp := time.Now().Add(ttl).UTC()
		p.Metadata.ExpiresAt = &exp
	}

	a := mustOpenApp()
	defer a.Close()

	mem, err := a.Memory.Remember(cmd.Context(), p)
	if err != nil {
		exitErr("remember", err)
	}
	printJSON(mem)
}

func splitTags(s string) []string {
	var tags []string
	for _, t := range strings.Split(s, ",") {
		t = strings.TrimSpace(t)
		if t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}
