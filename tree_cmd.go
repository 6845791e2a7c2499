package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jrmdev/linkloom/internal/bookmarks"
)

// resolvePath walks a slash-separated path like "toolbar/Work/Wiki" down to
// a node id. The first segment names a well-known root; the rest match child
// titles case-insensitively.
func resolvePath(ctx context.Context, tree bookmarks.Tree, path string) (string, error) {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	if len(segments) == 0 || segments[0] == "" {
		return "", fmt.Errorf("empty path")
	}

	rootID, ok := bookmarks.MatchWellKnownRoot(segments[0])
	if !ok {
		return "", fmt.Errorf("unknown root %q (use menu, toolbar, mobile, or other)", segments[0])
	}

	current := tree.Roots()[rootID]

	for _, segment := range segments[1:] {
		children, err := tree.Children(ctx, current)
		if err != nil {
			return "", err
		}

		found := ""

		for _, child := range children {
			if strings.EqualFold(child.Title, segment) {
				found = child.ID
				break
			}
		}

		if found == "" {
			return "", fmt.Errorf("%q not found under %q", segment, segments[0])
		}

		current = found
	}

	return current, nil
}

func newLsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls [path]",
		Short: "List local bookmarks",
		Long: `List the children of a local folder. Paths start with a root name
(menu, toolbar, mobile, other), e.g. "toolbar/Work". With no path, lists the
roots themselves.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			var parents []string

			if len(args) == 0 {
				for _, id := range a.tree.Roots() {
					parents = append(parents, id)
				}
			} else {
				id, err := resolvePath(ctx, a.tree, args[0])
				if err != nil {
					return err
				}

				parents = []string{id}
			}

			for _, parent := range parents {
				node, err := a.tree.Get(ctx, parent)
				if err != nil {
					return err
				}

				fmt.Printf("%s/\n", node.Title)

				children, err := a.tree.Children(ctx, parent)
				if err != nil {
					return err
				}

				for _, child := range children {
					if child.IsFolder() {
						fmt.Printf("  %s/\n", child.Title)
					} else {
						fmt.Printf("  %s  %s\n", child.Title, child.URL)
					}
				}
			}

			return nil
		},
	}
}

var flagAddTitle string

func newAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add <folder-path> <url>",
		Short: "Add a bookmark",
		Long: `Add a bookmark under a local folder. The change is queued and pushed
on the next sync. Example: linkloom add toolbar/Work https://example.com --title Example`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			parent, err := resolvePath(ctx, a.tree, args[0])
			if err != nil {
				return err
			}

			title := flagAddTitle
			if title == "" {
				title = args[1]
			}

			node, err := a.tree.Create(ctx, parent, title, args[1])
			if err != nil {
				return err
			}

			fmt.Printf("Added %s\n", node.Title)

			return nil
		},
	}

	cmd.Flags().StringVar(&flagAddTitle, "title", "", "bookmark title (defaults to the URL)")

	return cmd
}

func newMkdirCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mkdir <folder-path>",
		Short: "Create a local folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			path := strings.Trim(args[0], "/")
			slash := strings.LastIndex(path, "/")
			if slash < 0 {
				return fmt.Errorf("path %q must name a folder under a root", args[0])
			}

			parent, err := resolvePath(ctx, a.tree, path[:slash])
			if err != nil {
				return err
			}

			node, err := a.tree.Create(ctx, parent, path[slash+1:], "")
			if err != nil {
				return err
			}

			fmt.Printf("Created %s/\n", node.Title)

			return nil
		},
	}
}

func newMvCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mv <path> <new-folder-path>",
		Short: "Move a bookmark or folder",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			id, err := resolvePath(ctx, a.tree, args[0])
			if err != nil {
				return err
			}

			newParent, err := resolvePath(ctx, a.tree, args[1])
			if err != nil {
				return err
			}

			if err := a.tree.Move(ctx, id, newParent); err != nil {
				return err
			}

			fmt.Println("Moved.")

			return nil
		},
	}
}

var flagRmRecursive bool

func newRmCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rm <path>",
		Short: "Remove a bookmark or folder",
		Long: `Remove a bookmark or an empty folder. Use --recursive to remove a
folder and everything beneath it. Deletions are queued and pushed on the
next sync.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			id, err := resolvePath(ctx, a.tree, args[0])
			if err != nil {
				return err
			}

			if flagRmRecursive {
				err = a.tree.RemoveSubtree(ctx, id)
			} else {
				err = a.tree.Remove(ctx, id)
			}

			if err != nil {
				return err
			}

			fmt.Println("Removed.")

			return nil
		},
	}

	cmd.Flags().BoolVarP(&flagRmRecursive, "recursive", "r", false, "remove a folder and its contents")

	return cmd
}
