package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	archive := &cobra.Command{
		Use:   "archive <id>",
		Short: "Archive a memory so retrieval skips it",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			runSetArchived(cmd, args[0], true)
		},
	}

	restore := &cobra.Command{
		Use:   "restore <id>",
		Short: "Restore an archived memory",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			runSetArchived(cmd, args[0], false)
		},
	}

	RootCmd.AddCommand(archive)
	RootCmd.AddCommand(restore)
}

func runSetArchived(cmd *cobra.Command, id string, archived bool) {
	a, err := openApp()
	if err != nil {
		exitErr("open", err)
	}
	defer a.Close()

	if err := a.records.SetArchived(cmd.Context(), id, archived); err != nil {
		exitErr(cmd.Name(), err)
	}

	fmt.Printf(`{"ok":true,"id":%q,"archived":%t}`+"\n", id, archived)
}
