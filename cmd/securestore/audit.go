package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/benaskins/securestore/internal/audit"
)

var (
	auditLines     int
	auditFromStart bool
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect the audit log",
}

var auditShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print recent audit records",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		records, err := audit.ReadFile(cfg.AuditPath)
		if err != nil {
			return err
		}
		if auditLines > 0 && len(records) > auditLines {
			records = records[len(records)-auditLines:]
		}
		if len(records) == 0 {
			fmt.Println("No audit records")
			return nil
		}
		for _, r := range records {
			printRecord(os.Stdout, r)
		}
		return nil
	},
}

var auditFollowCmd = &cobra.Command{
	Use:   "follow",
	Short: "Stream audit records as they are written",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer cancel()

		err = audit.Follow(ctx, cfg.AuditPath, auditFromStart, func(r audit.Record) {
			printRecord(os.Stdout, r)
		})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

var (
	successColor = color.New(color.FgGreen)
	deniedColor  = color.New(color.FgYellow, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	dimColor     = color.New(color.Faint)
)

func outcomeColor(o audit.Outcome) *color.Color {
	switch o {
	case audit.OutcomeSuccess:
		return successColor
	case audit.OutcomeDenied:
		return deniedColor
	default:
		return errorColor
	}
}

func printRecord(w io.Writer, r audit.Record) {
	ts := dimColor.Sprint(r.Timestamp.Local().Format(time.DateTime))
	outcome := outcomeColor(r.Outcome).Sprintf("%-7s", r.Outcome)
	actor := r.Actor
	if actor == "" {
		actor = "-"
	}
	fmt.Fprintf(w, "%s  %-6s  %s  %-8s  %s", ts, r.Operation, outcome, actor, r.EntryID)
	if r.Error != "" {
		fmt.Fprintf(w, "  %s", dimColor.Sprint(r.Error))
	}
	fmt.Fprintln(w)
}

func init() {
	auditShowCmd.Flags().IntVarP(&auditLines, "lines", "n", 20, "Number of records to show (0 for all)")
	auditFollowCmd.Flags().BoolVar(&auditFromStart, "from-start", false, "Replay existing records first")
	auditCmd.AddCommand(auditShowCmd, auditFollowCmd)
	rootCmd.AddCommand(auditCmd)
}
