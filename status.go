package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show sync configuration and progress",
		Long: `Display the current sync state: configuration, initialization,
cursor position, pending outbox operations, and the last error if any.
Reads local state only and never touches the network.`,
		RunE: runStatus,
	}
}

// statusView is the JSON shape of the status output.
type statusView struct {
	Configured     bool   `json:"configured"`
	Enabled        bool   `json:"enabled"`
	Initialized    bool   `json:"initialized"`
	Cursor         int64  `json:"cursor"`
	Pending        int    `json:"pending"`
	LastSyncAt     string `json:"last_sync_at,omitempty"`
	LastError      string `json:"last_error,omitempty"`
	LastNoOpReason string `json:"last_no_op_reason,omitempty"`
}

func runStatus(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	status, err := a.engine.Status(ctx)
	if err != nil {
		return err
	}

	view := statusView{
		Configured:     status.Configured,
		Enabled:        status.Enabled,
		Initialized:    status.Initialized,
		Cursor:         status.Cursor,
		Pending:        status.Pending,
		LastError:      status.LastError,
		LastNoOpReason: status.LastNoOpReason,
	}
	if !status.LastSyncAt.IsZero() {
		view.LastSyncAt = status.LastSyncAt.Format(time.RFC3339)
	}

	if flagJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		return enc.Encode(view)
	}

	boolWord := func(b bool) string {
		if b {
			return "yes"
		}

		return "no"
	}

	fmt.Printf("Configured:   %s\n", boolWord(view.Configured))
	fmt.Printf("Enabled:      %s\n", boolWord(view.Enabled))
	fmt.Printf("Initialized:  %s\n", boolWord(view.Initialized))
	fmt.Printf("Cursor:       %d\n", view.Cursor)
	fmt.Printf("Pending ops:  %d\n", view.Pending)

	if view.LastSyncAt != "" {
		fmt.Printf("Last sync:    %s\n", view.LastSyncAt)
	}

	if view.LastError != "" {
		fmt.Printf("Last error:   %s\n", view.LastError)
	}

	if view.LastNoOpReason != "" {
		fmt.Printf("First sync was a no-op: %s\n", view.LastNoOpReason)
	}

	return nil
}
