package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/benaskins/securestore/internal/health"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check the records backend, audit log and keystore",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(nil)
		if err != nil {
			return err
		}
		defer a.Close()

		report := health.Run(a.checks())
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "CHECK\tSTATUS\tMESSAGE")
		for _, r := range report.Checks {
			fmt.Fprintf(w, "%s\t%s\t%s\n", r.Name, statusColor(r.Status).Sprint(r.Status), r.Message)
		}
		w.Flush()

		if report.Status != health.StatusHealthy {
			return fmt.Errorf("store is %s", report.Status)
		}
		return nil
	},
}

func statusColor(s health.Status) *color.Color {
	if s == health.StatusHealthy {
		return successColor
	}
	return errorColor
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
