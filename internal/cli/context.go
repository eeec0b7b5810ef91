package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/agent-context/internal/assembler"
	"github.com/rcliao/agent-context/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "context [message]",
		Short: "Build the augmented system prompt for a message",
		Long:  "Runs the context assembler over a single user message and prints the result. Use --format text to print only the system prompt.",
		Args:  cobra.MinimumNArgs(1),
		Run:   runContext,
	}

	cmd.Flags().StringP("project", "p", "", "Project path")
	cmd.Flags().String("system", "", "Original system prompt")
	cmd.Flags().String("session", "", "Session id")
	cmd.Flags().StringSlice("tools", nil, "Tool names available to the model")
	cmd.Flags().IntP("max-tokens", "b", 0, "Override max_tokens")

	RootCmd.AddCommand(cmd)
}

func runContext(cmd *cobra.Command, args []string) {
	project, _ := cmd.Flags().GetString("project")
	system, _ := cmd.Flags().GetString("system")
	session, _ := cmd.Flags().GetString("session")
	toolNames, _ := cmd.Flags().GetStringSlice("tools")
	maxTokens, _ := cmd.Flags().GetInt("max-tokens")

	cfg, err := loadConfig()
	if err != nil {
		exitErr("config", err)
	}
	if maxTokens > 0 {
		cfg.MaxTokens = maxTokens
	}

	a, err := openWith(cfg)
	if err != nil {
		exitErr("open", err)
	}
	defer a.Close()

	tools := make([]model.Tool, len(toolNames))
	for i, n := range toolNames {
		tools[i] = model.Tool{Name: n}
	}

	res, err := a.Assembler.Build(cmd.Context(), system, assembler.Request{
		Messages:    []model.Message{{Role: "user", Content: strings.Join(args, " ")}},
		ProjectPath: project,
		SessionID:   session,
		Tools:       tools,
	})
	if err != nil {
		exitErr("context", err)
	}
	if textFormat() {
		fmt.Println(res.SystemPrompt)
		return
	}
	printJSON(res)
}
