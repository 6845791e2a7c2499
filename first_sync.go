package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/jrmdev/linkloom/internal/sync"
)

// First-sync command flags.
var (
	flagFirstSyncMode   string
	flagFirstSyncPhrase string
	flagFirstSyncYes    bool
)

func newFirstSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "first-sync",
		Short: "Run the initial reconciliation between local bookmarks and the server",
		Long: `Reconcile local bookmarks with the server for the first time.

Modes:
  replace_local_with_server   discard local bookmarks, adopt the server's
  replace_server_with_local   discard server bookmarks, upload local ones
  two_way_merge               merge both sides, matching bookmarks by URL

Destructive modes require typing a confirmation phrase. The phrase can be
supplied with --phrase for non-interactive use; --yes confirms the final
checkbox. Nothing is modified until both confirmations pass.`,
		RunE: runFirstSync,
	}

	cmd.Flags().StringVar(&flagFirstSyncMode, "mode", "", "reconciliation mode (required)")
	cmd.Flags().StringVar(&flagFirstSyncPhrase, "phrase", "", "confirmation phrase (prompted interactively if omitted)")
	cmd.Flags().BoolVar(&flagFirstSyncYes, "yes", false, "confirm the operation without an interactive prompt")
	_ = cmd.MarkFlagRequired("mode")

	return cmd
}

func runFirstSync(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	preflight, err := a.engine.Preflight(ctx, flagFirstSyncMode)
	if err != nil {
		return describeSyncError(err)
	}

	fmt.Printf("Mode: %s\n", preflight.Mode)
	fmt.Printf("Local bookmarks:  %d\n", preflight.LocalBookmarkCount)
	fmt.Printf("Server bookmarks: %d\n", preflight.ServerBookmarkCount)
	fmt.Printf("Impact: +%d/-%d local, +%d/-%d server\n",
		preflight.Impact.LocalAdditions, preflight.Impact.LocalDeletions,
		preflight.Impact.ServerAdditions, preflight.Impact.ServerDeletions)

	if preflight.WouldNoOp {
		fmt.Printf("This would be a no-op: %s\n", preflight.NoOpReason)
	}

	if len(preflight.SampleLocalRemovals) > 0 {
		fmt.Println("Sample of bookmarks that would be removed locally:")

		for _, s := range preflight.SampleLocalRemovals {
			fmt.Printf("  - %s (%s)\n", s.Title, s.URL)
		}
	}

	fmt.Printf("\n%s\n", preflight.Warning)

	phrase := flagFirstSyncPhrase
	confirmed := flagFirstSyncYes

	if phrase == "" || !confirmed {
		if !isatty.IsTerminal(os.Stdin.Fd()) {
			return errors.New("not a terminal: pass --phrase and --yes for non-interactive use")
		}

		reader := bufio.NewReader(os.Stdin)

		if phrase == "" {
			fmt.Printf("Type %q to continue: ", preflight.RequiredPhrase)

			line, err := reader.ReadString('\n')
			if err != nil {
				return fmt.Errorf("reading confirmation: %w", err)
			}

			phrase = strings.TrimSpace(line)
		}

		if !confirmed {
			fmt.Print("Proceed? [y/N]: ")

			line, err := reader.ReadString('\n')
			if err != nil {
				return fmt.Errorf("reading confirmation: %w", err)
			}

			confirmed = strings.EqualFold(strings.TrimSpace(line), "y")
		}
	}

	resp, err := a.engine.ApplyFirstSync(ctx, flagFirstSyncMode, preflight.ConfirmationToken, phrase, confirmed)
	if err != nil {
		var confErr *sync.ConfirmationError
		if errors.As(err, &confErr) {
			return fmt.Errorf("aborted: %s", confErr.Reason)
		}

		return err
	}

	switch resp.Status {
	case "no_op":
		fmt.Printf("Nothing to do: %s\n", resp.Reason)
	default:
		fmt.Printf("First sync complete (%s). Cursor %d, %d folders, %d bookmarks.\n",
			resp.Status, resp.Cursor, len(resp.Folders), len(resp.Bookmarks))
	}

	return nil
}
