package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/etoslabs/memvault/internal/retrieval"
)

func init() {
	cmd := &cobra.Command{
		Use:   "retrieve [query]",
		Short: "Retrieve memories relevant to a query",
		Run:   runRetrieve,
	}

	cmd.Flags().IntP("top-k", "k", 0, "Max results (default: $MEMVAULT_TOP_K or 5)")
	cmd.Flags().StringP("mode", "m", "vector", "Matching mode: vector or keyword")
	cmd.Flags().Bool("all", false, "Return every non-archived memory, ignoring the query")
	cmd.Flags().BoolP("archived", "a", false, "Include archived memories")

	RootCmd.AddCommand(cmd)
}

func runRetrieve(cmd *cobra.Command, args []string) {
	topK, _ := cmd.Flags().GetInt("top-k")
	modeStr, _ := cmd.Flags().GetString("mode")
	all, _ := cmd.Flags().GetBool("all")
	archived, _ := cmd.Flags().GetBool("archived")

	mode := retrieval.ModeVector
	switch modeStr {
	case "vector":
	case "keyword":
		mode = retrieval.ModeKeyword
	default:
		exitErr("retrieve", fmt.Errorf("unknown mode %q", modeStr))
	}

	query := strings.Join(args, " ")
	if query == "" && !all {
		exitErr("retrieve", fmt.Errorf("query is required unless --all is set"))
	}

	a, err := openApp()
	if err != nil {
		exitErr("open", err)
	}
	defer a.Close()

	if topK == 0 {
		topK = a.settings.TopK
	}
	if all {
		topK = 0
	}

	results, err := a.retriever.Retrieve(cmd.Context(), retrieval.Params{
		Query:           query,
		TopK:            topK,
		IncludeArchived: archived,
		Mode:            mode,
	})
	if err != nil {
		exitErr("retrieve", err)
	}

	b, _ := json.MarshalIndent(results, "", "  ")
	fmt.Println(string(b))
}
