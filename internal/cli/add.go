package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "add [content]",
		Short: "Store a memory",
		Long:  "Store a memory. Content can be a positional arg or piped via stdin.",
		Run:   runAdd,
	}

	RootCmd.AddCommand(cmd)
}

func runAdd(cmd *cobra.Command, args []string) {
	// Get content: positional arg first, then check stdin
	var content string
	if len(args) > 0 {
		content = strings.Join(args, " ")
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
		exitErr("add", fmt.Errorf("content is required (positional arg or stdin)"))
	}

	a, err := openApp()
	if err != nil {
		exitErr("open", err)
	}
	defer a.Close()

	rec, err := a.records.Add(cmd.Context(), strings.TrimSpace(content))
	if err != nil {
		exitErr("add", err)
	}

	b, _ := json.Marshal(rec)
	fmt.Println(string(b))
}
