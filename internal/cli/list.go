package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/etoslabs/memvault/internal/record"
)

func init() {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List memories",
		Run:   runList,
	}

	cmd.Flags().BoolP("archived", "a", false, "Include archived memories")
	cmd.Flags().Bool("recent", false, "Order by most recently updated")
	cmd.Flags().Bool("ids-only", false, "Only output memory ids")

	RootCmd.AddCommand(cmd)
}

func runList(cmd *cobra.Command, args []string) {
	archived, _ := cmd.Flags().GetBool("archived")
	recent, _ := cmd.Flags().GetBool("recent")
	idsOnly, _ := cmd.Flags().GetBool("ids-only")

	a, err := openApp()
	if err != nil {
		exitErr("open", err)
	}
	defer a.Close()

	memories, err := a.records.List(cmd.Context(), record.ListParams{
		IncludeArchived: archived,
		Recent:          recent,
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

	b, _ := json.MarshalIndent(memories, "", "  ")
	fmt.Println(string(b))
}
