package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

var flagResetYes bool

func newResetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Clear all sync state (identity map, queue, cursor)",
		Long: `Clear all sync state: the identity map, the pending operation queue,
the cursor, and the initialized flag. Local bookmarks are untouched. Sync is
left disabled; run first-sync to start over.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			if !flagResetYes {
				if !isatty.IsTerminal(os.Stdin.Fd()) {
					return errors.New("not a terminal: pass --yes to reset non-interactively")
				}

				fmt.Print("This clears all sync state. Proceed? [y/N]: ")

				line, err := bufio.NewReader(os.Stdin).ReadString('\n')
				if err != nil {
					return fmt.Errorf("reading confirmation: %w", err)
				}

				if !strings.EqualFold(strings.TrimSpace(line), "y") {
					fmt.Println("Aborted.")
					return nil
				}
			}

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.engine.Reset(ctx); err != nil {
				return err
			}

			fmt.Println("Sync state cleared.")

			return nil
		},
	}

	cmd.Flags().BoolVar(&flagResetYes, "yes", false, "skip the confirmation prompt")

	return cmd
}
