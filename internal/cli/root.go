// Package cli implements the memvault CLI commands.
package cli

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/etoslabs/memvault/internal/chunker"
	"github.com/etoslabs/memvault/internal/config"
	"github.com/etoslabs/memvault/internal/embedding"
	"github.com/etoslabs/memvault/internal/index"
	"github.com/etoslabs/memvault/internal/reconcile"
	"github.com/etoslabs/memvault/internal/record"
	"github.com/etoslabs/memvault/internal/retrieval"
)

// embedCacheBytes caps the in-process embedding cache.
const embedCacheBytes = 32 << 20

var dbPath string

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "memvault",
	Short: "Device-local long-term memory for assistants",
	Long:  "Store, embed and retrieve assistant memories. SQLite-backed, single binary.",
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "Database path (default: $MEMVAULT_DB or ~/.memvault/memvault.db)")
}

func getDBPath() string {
	if dbPath != "" {
		return dbPath
	}
	if env := os.Getenv(config.EnvDBPath); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".memvault", "memvault.db")
}

// app bundles the wired subsystem for one command invocation.
type app struct {
	db        *sql.DB
	records   *record.Store
	idx       *index.Index
	provider  embedding.Provider
	cache     *embedding.CachedProvider
	engine    *reconcile.Engine
	retriever *retrieval.Engine
	settings  config.Settings
}

func openApp() (*app, error) {
	db, err := record.Open(getDBPath())
	if err != nil {
		return nil, err
	}

	records, err := record.NewStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	idx, err := index.New(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	records.OnDelete(func(ctx context.Context, id string) error {
		return idx.DeleteMemory(ctx, id)
	})

	a := &app{
		db:       db,
		records:  records,
		idx:      idx,
		settings: config.FromEnv(),
	}

	a.provider = embedding.NewFromEnv()
	if a.provider != nil {
		cached, err := embedding.NewCachedProvider(a.provider, embedCacheBytes)
		if err != nil {
			db.Close()
			return nil, err
		}
		a.cache = cached
		a.provider = cached
	}

	log := slog.Default()
	providerFn := func() embedding.Provider { return a.provider }
	a.engine = reconcile.New(records, idx, providerFn, chunker.DefaultOptions(), log)
	a.retriever = retrieval.New(records, idx, providerFn, a.engine, log)
	return a, nil
}

func (a *app) Close() {
	if a.cache != nil {
		a.cache.Close()
	}
	a.db.Close()
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
