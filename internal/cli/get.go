package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "get [id]",
		Short: "Retrieve a memory by id",
		Args:  cobra.ExactArgs(1),
		Run:   runGet,
	}

	cmd.Flags().Bool("touch", false, "Record this read as an access")

	RootCmd.AddCommand(cmd)
}

func runGet(cmd *cobra.Command, args []string) {
	touch, _ := cmd.Flags().GetBool("touch")

	a := mustOpenApp()
	defer a.Close()

	m, err := a.Memory.Get(cmd.Context(), args[0])
	if err != nil {
		exitErr("get", err)
	}
	if touch {
		if err := a.Memory.Touch(cmd.Context(), m); err != nil {
			exitErr("touch", err)
		}
	}
	printJSON(m)
}
