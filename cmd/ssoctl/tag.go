package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/opentrusty/ssoproxy/internal/app"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

// tagCmd represents the tag command
var tagCmd = &cobra.Command{
	Use:   "tag",
	Short: "Manage tag pools",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("tag requires a subcommand")
		_ = cmd.Help()
	},
}

var tagAddCmd = &cobra.Command{
	Use:   "add <account> <tag>",
	Short: "Add an account to a tag pool",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireTenant(); err != nil {
			return err
		}
		account, tag := args[0], args[1]

		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			_, err := a.Directory.CreateTag(ctx, tenantID, account, tag)
			if err := record(ctx, "create_tag", tag, err); err != nil {
				return fmt.Errorf("failed to add tag: %w", err)
			}
			pterm.Success.Printf("Tagged %s with %s\n", account, tag)
			return nil
		})
	},
}

var tagRemoveCmd = &cobra.Command{
	Use:   "remove <account> <tag>",
	Short: "Take an account out of a tag pool",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireTenant(); err != nil {
			return err
		}
		account, tag := args[0], args[1]

		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			err := a.Directory.RemoveTag(ctx, tenantID, account, tag)
			if err := record(ctx, "remove_tag", tag, err); err != nil {
				return fmt.Errorf("failed to remove tag: %w", err)
			}
			pterm.Success.Printf("Removed tag %s from %s\n", tag, account)
			return nil
		})
	},
}

var tagRenameCmd = &cobra.Command{
	Use:   "rename <tag> <new-name>",
	Short: "Rename every tag of a name",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireTenant(); err != nil {
			return err
		}
		from, to := args[0], args[1]

		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			n, err := a.Directory.RenameTag(ctx, tenantID, from, to)
			if err := record(ctx, "rename_tag", from, err); err != nil {
				return fmt.Errorf("failed to rename tag: %w", err)
			}
			pterm.Success.Printf("Renamed %d tag(s) from %s to %s\n", n, from, to)
			return nil
		})
	},
}

var tagListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tag pools and their accounts",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireTenant(); err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			tags, err := a.Directory.ListTags(ctx, tenantID)
			if err != nil {
				return fmt.Errorf("failed to list tags: %w", err)
			}
			if len(tags) == 0 {
				pterm.Info.Println("No tags found.")
				return nil
			}
			names := make([]string, 0, len(tags))
			for name := range tags {
				names = append(names, name)
			}
			sort.Strings(names)

			table := pterm.TableData{{"TAG", "ACCOUNTS"}}
			for _, name := range names {
				table = append(table, []string{name, strings.Join(tags[name], ", ")})
			}
			return pterm.DefaultTable.WithHasHeader().WithData(table).Render()
		})
	},
}

var tagAnnotateCmd = &cobra.Command{
	Use:   "annotate <tag> [file]",
	Short: "Set or show the client configuration of a tag pool",
	Long: `Set or show the client configuration blob shared by a tag pool.

With a file argument the blob is replaced by the file's contents ("-" reads
stdin). Without one the current blob is written to stdout.

Example:
  ssoctl --tenant 1 tag annotate healer ui-layout.json
  ssoctl --tenant 1 tag annotate healer > ui-layout.json`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireTenant(); err != nil {
			return err
		}
		tag := args[0]

		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			if len(args) == 1 {
				ann, err := a.Directory.GetTagAnnotation(ctx, tenantID, tag)
				if err != nil {
					return fmt.Errorf("failed to read annotation: %w", err)
				}
				_, err = os.Stdout.Write(ann.Data)
				return err
			}

			data, err := readInput(args[1])
			if err != nil {
				return err
			}
			_, err = a.Directory.SetTagAnnotation(ctx, tenantID, tag, data)
			if err := record(ctx, "set_tag_annotation", tag, err); err != nil {
				return fmt.Errorf("failed to set annotation: %w", err)
			}
			pterm.Success.Printf("Stored %d byte(s) on tag %s\n", len(data), tag)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(tagCmd)
	tagCmd.AddCommand(tagAddCmd, tagRemoveCmd, tagRenameCmd, tagListCmd, tagAnnotateCmd)
}

// readInput reads a file, or stdin for "-"
func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}
