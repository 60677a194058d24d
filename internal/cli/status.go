package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/etoslabs/memvault/internal/model"
)

func init() {
	status := &cobra.Command{
		Use:   "status",
		Short: "Show embedding job state and pending work",
		Run:   runStatus,
	}

	cancel := &cobra.Command{
		Use:   "cancel",
		Short: "Cancel the running embedding job",
		Run:   runCancel,
	}

	RootCmd.AddCommand(status)
	RootCmd.AddCommand(cancel)
}

type statusReport struct {
	Job         *model.Job `json:"job,omitempty"`
	PendingWork bool       `json:"pending_work"`
	Stale       int        `json:"stale"`
	Provider    string     `json:"provider,omitempty"`
}

func runStatus(cmd *cobra.Command, args []string) {
	a, err := openApp()
	if err != nil {
		exitErr("open", err)
	}
	defer a.Close()

	report := statusReport{}
	if job, ok := a.engine.Snapshot(); ok {
		report.Job = &job
	}
	if a.provider != nil {
		report.Provider = a.provider.Fingerprint()
		stale, err := a.records.CountStale(cmd.Context(), a.provider.Fingerprint())
		if err != nil {
			exitErr("status", err)
		}
		report.Stale = stale
		report.PendingWork = stale > 0
	}

	b, _ := json.MarshalIndent(report, "", "  ")
	fmt.Println(string(b))
}

func runCancel(cmd *cobra.Command, args []string) {
	a, err := openApp()
	if err != nil {
		exitErr("open", err)
	}
	defer a.Close()

	if !a.engine.Cancel() {
		exitErr("cancel", fmt.Errorf("no running job"))
	}
	fmt.Println(`{"ok":true}`)
}
