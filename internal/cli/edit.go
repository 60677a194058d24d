package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "edit <id> [content]",
		Short: "Replace a memory's content",
		Long:  "Replace a memory's content. New content can be a positional arg or piped via stdin. The memory is re-embedded on the next reconcile.",
		Args:  cobra.MinimumNArgs(1),
		Run:   runEdit,
	}

	RootCmd.AddCommand(cmd)
}

func runEdit(cmd *cobra.Command, args []string) {
	id := args[0]

	var content string
	if len(args) > 1 {
		content = strings.Join(args[1:], " ")
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
		exitErr("edit", fmt.Errorf("content is required (positional arg or stdin)"))
	}

	a, err := openApp()
	if err != nil {
		exitErr("open", err)
	}
	defer a.Close()

	if err := a.records.UpdateContent(cmd.Context(), id, strings.TrimSpace(content)); err != nil {
		exitErr("edit", err)
	}

	fmt.Printf(`{"ok":true,"id":%q}`+"\n", id)
}
