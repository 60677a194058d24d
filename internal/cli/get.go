package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Show a memory",
		Args:  cobra.ExactArgs(1),
		Run:   runGet,
	}

	RootCmd.AddCommand(cmd)
}

func runGet(cmd *cobra.Command, args []string) {
	a, err := openApp()
	if err != nil {
		exitErr("open", err)
	}
	defer a.Close()

	rec, err := a.records.Get(cmd.Context(), args[0])
	if err != nil {
		exitErr("get", err)
	}

	b, _ := json.MarshalIndent(rec, "", "  ")
	fmt.Println(string(b))
}
