package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show database statistics",
		Run:   runStats,
	}

	RootCmd.AddCommand(cmd)
}

func runStats(cmd *cobra.Command, args []string) {
	a := mustOpenApp()
	defer a.Close()

	stats, err := a.Store.Stats(cmd.Context())
	if err != nil {
		exitErr("stats", err)
	}
	hits, misses := a.Cache.Stats()
	printJSON(struct {
		Store     any    `json:"store"`
		Provider  string `json:"provider"`
		Model     string `json:"model"`
		CacheHits int64  `json:"cacheHits"`
		CacheMiss int64  `json:"cacheMisses"`
	}{stats, a.Embedder.Name(), a.Embedder.Model(), hits, misses})
}
