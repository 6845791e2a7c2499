package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var flagRegisterName string

func newRegisterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register this client with the server",
		Long: `Announce this client to the server, generating a client id on first
use. Registration is idempotent; the local sync cursor is never adopted from
the server.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			name := flagRegisterName
			if name == "" {
				name, _ = os.Hostname()
			}

			resp, err := a.engine.Register(ctx, name)
			if err != nil {
				return describeSyncError(err)
			}

			fmt.Printf("Registered as %s (server last cursor %d)\n",
				resp.Client.ClientID, resp.Client.LastCursor)

			return nil
		},
	}

	cmd.Flags().StringVar(&flagRegisterName, "name", "", "client display name (defaults to hostname)")

	return cmd
}
