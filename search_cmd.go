package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jrmdev/linkloom/internal/sync"
)

var flagSearchLimit int

func newSearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search bookmarks on the server",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			query := strings.Join(args, " ")

			results, err := a.engine.Search(ctx, query, flagSearchLimit)
			if err != nil {
				if errors.Is(err, sync.ErrStaleSearch) {
					return nil
				}

				return describeSyncError(err)
			}

			if flagJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")

				return enc.Encode(results)
			}

			if len(results) == 0 {
				fmt.Println("No results.")
				return nil
			}

			for _, r := range results {
				fmt.Printf("%6.2f  %s\n        %s\n", r.Score, r.Title, r.URL)
			}

			return nil
		},
	}

	cmd.Flags().IntVar(&flagSearchLimit, "limit", 20, "maximum number of results")

	return cmd
}
