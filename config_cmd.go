package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jrmdev/linkloom/internal/sync"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change durable sync settings",
	}

	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigSetCmd())

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the durable sync settings",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			settings, err := a.store.Settings(ctx)
			if err != nil {
				return err
			}

			token := "(not set)"
			if settings.APIToken != "" {
				token = "(set)"
			}

			fmt.Printf("server:        %s\n", settings.ServerURL)
			fmt.Printf("api token:     %s\n", token)
			fmt.Printf("client id:     %s\n", settings.ClientID)
			fmt.Printf("poll interval: %d minutes\n", settings.PollIntervalMinutes)
			fmt.Printf("enabled:       %t\n", settings.Enabled)

			return nil
		},
	}
}

// settingAppliers mutate one settings field from its string form.
var settingAppliers = map[string]func(*sync.Settings, string) error{
	"server": func(s *sync.Settings, v string) error {
		s.ServerURL = v
		return nil
	},
	"token": func(s *sync.Settings, v string) error {
		s.APIToken = v
		return nil
	},
	"poll-interval": func(s *sync.Settings, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return fmt.Errorf("poll-interval must be a positive integer, got %q", v)
		}

		s.PollIntervalMinutes = n

		return nil
	},
	"enabled": func(s *sync.Settings, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("enabled must be true or false, got %q", v)
		}

		s.Enabled = b

		return nil
	},
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a durable sync setting",
		Long: `Set a durable sync setting. Keys:

  server         LinkLoom server base URL
  token          API bearer token
  poll-interval  watch poll interval in minutes
  enabled        whether sync runs (true/false)`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigSet(cmd.Context(), args[0], args[1])
		},
	}
}

func runConfigSet(ctx context.Context, key, value string) error {
	apply, ok := settingAppliers[key]
	if !ok {
		return fmt.Errorf("unknown setting %q", key)
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	settings, err := a.store.Settings(ctx)
	if err != nil {
		return err
	}

	if err := apply(&settings, value); err != nil {
		return err
	}

	if err := a.store.SaveSettings(ctx, settings); err != nil {
		return err
	}

	fmt.Printf("%s updated\n", key)

	return nil
}
