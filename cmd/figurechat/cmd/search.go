package cmd

import (
	"strings"

	"github.com/spf13/cobra"
)

var (
	searchN      int
	searchMinSim float64
)

var searchCmd = &cobra.Command{
	Use:   "search <figure-id> <query>...",
	Short: "Run a hybrid search against a figure's documents",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		figureID := args[0]
		query := strings.Join(args[1:], " ")

		a, err := buildApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		minSim := cfg.Search.MinCosineSimilarity
		if searchMinSim >= 0 {
			minSim = searchMinSim
		}
		results, err := a.engine.SearchWithFloor(cmd.Context(), figureID, query, searchN, minSim)
		if err != nil {
			return err
		}

		if len(results) == 0 {
			out.Dim("no results")
			return nil
		}

		for i, res := range results {
			out.Title("%d. %s [chunk %d/%d]", i+1,
				res.Metadata.OriginalFilename, res.Metadata.ChunkIndex+1, res.Metadata.TotalChunks)
			out.Plain("   %s", out.Score("cosine %.3f  bm25 %.2f  rrf %.4f",
				res.CosineSimilarity, res.BM25Score, res.RRFScore))
			if len(res.TopMatchingWords) > 0 {
				out.Dim("   matched: %s", strings.Join(res.TopMatchingWords, ", "))
			}
			out.Plain("   %s", truncate(res.Text, 240))
		}
		return nil
	},
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}

func init() {
	searchCmd.Flags().IntVarP(&searchN, "n", "n", 5, "number of results")
	searchCmd.Flags().Float64Var(&searchMinSim, "min-similarity", -1, "cosine similarity floor (default: configured value)")
	rootCmd.AddCommand(searchCmd)
}
