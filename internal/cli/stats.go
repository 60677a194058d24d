package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/etoslabs/memvault/internal/record"
)

func init() {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show record and index statistics",
		Run:   runStats,
	}

	RootCmd.AddCommand(cmd)
}

type statsReport struct {
	Records      *record.Stats  `json:"records"`
	Chunks       int            `json:"chunks"`
	Fingerprints map[string]int `json:"fingerprints,omitempty"`
	DBPath       string         `json:"db_path"`
	DBSizeBytes  int64          `json:"db_size_bytes"`
}

func runStats(cmd *cobra.Command, args []string) {
	a, err := openApp()
	if err != nil {
		exitErr("open", err)
	}
	defer a.Close()

	ctx := cmd.Context()
	recStats, err := a.records.Stats(ctx)
	if err != nil {
		exitErr("stats", err)
	}
	chunks, err := a.idx.Count(ctx)
	if err != nil {
		exitErr("stats", err)
	}
	fps, err := a.idx.Fingerprints(ctx)
	if err != nil {
		exitErr("stats", err)
	}

	report := statsReport{
		Records:      recStats,
		Chunks:       chunks,
		Fingerprints: fps,
		DBPath:       getDBPath(),
	}
	if fi, err := os.Stat(report.DBPath); err == nil {
		report.DBSizeBytes = fi.Size()
	}
	b, _ := json.MarshalIndent(report, "", "  ")
	fmt.Println(string(b))
}
