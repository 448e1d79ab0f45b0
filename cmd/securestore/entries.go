package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/benaskins/securestore/internal/policy"
	"github.com/benaskins/securestore/internal/store"
)

const cliActor = "cli"

// commandContext is cancelled by Ctrl-C and names the CLI as the actor.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt)
	return store.WithActor(ctx, cliActor), cancel
}

var putPolicy string

var putCmd = &cobra.Command{
	Use:   "put <id> [value]",
	Short: "Store a secret",
	Long: "Store a secret under id. If value is omitted it is read from a hidden prompt, " +
		"or from stdin when piped. The policy of an existing entry cannot change.",
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		tag, err := policy.ParseTag(putPolicy)
		if err != nil {
			return err
		}

		var value []byte
		if len(args) == 2 {
			value = []byte(args[1])
		} else {
			value, err = readValue()
			if err != nil {
				return err
			}
		}

		a, err := openApp(nil)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, cancel := commandContext(cmd)
		defer cancel()
		if err := a.store.Put(ctx, args[0], value, tag); err != nil {
			return err
		}
		fmt.Printf("Secret %q stored (%s)\n", args[0], tag)
		return nil
	},
}

var getCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Retrieve a secret",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(terminalPrompt())
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, cancel := commandContext(cmd)
		defer cancel()
		value, err := a.store.Get(ctx, args[0], policy.Caller{Actor: cliActor})
		if err != nil {
			return err
		}
		os.Stdout.Write(value)
		if stdoutIsTerminal() {
			fmt.Println()
		}
		return nil
	},
}

var infoCmd = &cobra.Command{
	Use:   "info <id>",
	Short: "Show entry metadata without decrypting it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(nil)
		if err != nil {
			return err
		}
		defer a.Close()

		info, err := a.store.Info(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "ID\t%s\n", info.ID)
		fmt.Fprintf(w, "POLICY\t%s\n", info.Policy)
		fmt.Fprintf(w, "CIPHER\t%s\n", info.Suite)
		fmt.Fprintf(w, "VERSION\t%d\n", info.Version)
		fmt.Fprintf(w, "SIZE\t%d bytes\n", info.Size)
		fmt.Fprintf(w, "CREATED\t%s\n", info.CreatedAt.Local().Format(time.RFC3339))
		fmt.Fprintf(w, "UPDATED\t%s\n", info.UpdatedAt.Local().Format(time.RFC3339))
		return w.Flush()
	},
}

var listCmd = &cobra.Command{
	Use:     "list",
	Short:   "List all entries",
	Aliases: []string{"ls"},
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(nil)
		if err != nil {
			return err
		}
		defer a.Close()

		ids, err := a.store.List(cmd.Context())
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			fmt.Println("No secrets stored")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tPOLICY\tVERSION\tUPDATED")
		for _, id := range ids {
			info, err := a.store.Info(cmd.Context(), id)
			if err != nil {
				fmt.Fprintf(w, "%s\t-\t-\t-\n", id)
				continue
			}
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", id, info.Policy, info.Version, info.UpdatedAt.Local().Format(time.DateTime))
		}
		return w.Flush()
	},
}

var deleteCmd = &cobra.Command{
	Use:     "delete <id>",
	Short:   "Remove a secret",
	Aliases: []string{"rm"},
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(nil)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, cancel := commandContext(cmd)
		defer cancel()
		if err := a.store.Delete(ctx, args[0]); err != nil {
			return err
		}
		fmt.Printf("Secret %q deleted\n", args[0])
		return nil
	},
}

var confirmed bool

func requireConfirmation(action string) error {
	if confirmed {
		return nil
	}
	return fmt.Errorf("%s is irreversible; rerun with --yes", action)
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every entry",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireConfirmation("clear"); err != nil {
			return err
		}
		a, err := openApp(nil)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, cancel := commandContext(cmd)
		defer cancel()
		n, err := a.store.Clear(ctx)
		if err != nil {
			return fmt.Errorf("cleared %d entries before failing: %w", n, err)
		}
		fmt.Printf("Cleared %d entries\n", n)
		return nil
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete every entry and destroy the master key",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireConfirmation("reset"); err != nil {
			return err
		}
		a, err := openApp(nil)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, cancel := commandContext(cmd)
		defer cancel()
		n, err := a.store.Reset(ctx)
		if err != nil {
			return fmt.Errorf("reset after removing %d entries: %w", n, err)
		}
		fmt.Printf("Removed %d entries and destroyed the master key\n", n)
		return nil
	},
}

func init() {
	putCmd.Flags().StringVarP(&putPolicy, "policy", "p", string(policy.TagNone),
		"Access policy: none, device-unlock, biometric, biometric-or-passcode")
	clearCmd.Flags().BoolVar(&confirmed, "yes", false, "Confirm deletion")
	resetCmd.Flags().BoolVar(&confirmed, "yes", false, "Confirm deletion")

	rootCmd.AddCommand(putCmd, getCmd, infoCmd, listCmd, deleteCmd, clearCmd, resetCmd)
}
