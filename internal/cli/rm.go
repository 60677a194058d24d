package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "rm <id>",
		Short: "Delete a memory and its index entries",
		Args:  cobra.ExactArgs(1),
		Run:   runRm,
	}

	RootCmd.AddCommand(cmd)
}

func runRm(cmd *cobra.Command, args []string) {
	a, err := openApp()
	if err != nil {
		exitErr("open", err)
	}
	defer a.Close()

	if err := a.records.Delete(cmd.Context(), args[0]); err != nil {
		exitErr("rm", err)
	}

	fmt.Printf(`{"ok":true,"id":%q}`+"\n", args[0])
}
