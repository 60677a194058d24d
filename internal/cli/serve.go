package cli

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/etoslabs/memvault/internal/server"
)

func init() {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve memory tools over MCP stdio",
		Long:  "Serve memory tools over MCP stdio. The memory_retrieve tool is only registered when $MEMVAULT_ACTIVE_RETRIEVAL is true.",
		Run:   runServe,
	}

	RootCmd.AddCommand(cmd)
}

func runServe(cmd *cobra.Command, args []string) {
	a, err := openApp()
	if err != nil {
		exitErr("open", err)
	}
	defer a.Close()

	srv := server.NewMemoryToolServer(a.records, a.retriever, a.engine, server.Options{
		DefaultTopK:     a.settings.TopK,
		ActiveRetrieval: a.settings.ActiveRetrieval,
	}, slog.Default())

	if err := srv.Initialize(); err != nil {
		exitErr("serve", err)
	}
	if err := srv.Start(); err != nil {
		exitErr("serve", err)
	}
}
