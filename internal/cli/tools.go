package cli

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/civicstore/pkg/deadline"
	"github.com/mesh-intelligence/civicstore/pkg/derive"
	"github.com/mesh-intelligence/civicstore/pkg/types"
)

func (a *app) deriver() derive.Deriver {
	return derive.Deriver{
		FiscalYearStart: time.Month(a.cfg.Intake.FiscalYearStartMonth),
		CasePrefix:      a.cfg.Intake.CasePrefix,
	}
}

func newDeadlineCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "deadline <date> [business-days]",
		Short: "Compute a response deadline in business days",
		Long: `Deadline adds business days (Monday to Friday) to a date. The count
defaults to the configured response window.

Example:
  civicstore deadline 2024-03-01 10`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			start, err := parseDate(args[0])
			if err != nil {
				return err
			}
			n := a.cfg.Intake.ResponseDays
			if len(args) == 2 {
				if n, err = strconv.Atoi(args[1]); err != nil {
					return usageErr("business days %q: not an integer", args[1])
				}
			}
			due := deadline.AddBusinessDays(start, n)
			out := struct {
				Start        string `json:"start"`
				BusinessDays int    `json:"business_days"`
				Due          string `json:"due"`
			}{args[0], n, due.Format(dateLayout)}
			return a.emit(cmd.OutOrStdout(), out, func(w io.Writer) error {
				_, err := fmt.Fprintln(w, out.Due)
				return err
			})
		},
	}
}

func newCaseIDCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "case-id <date> <item-id>",
		Short: "Derive the case id of an item",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			date, err := parseDate(args[0])
			if err != nil {
				return err
			}
			id := a.deriver().DeriveCaseID(date, args[1])
			return a.emit(cmd.OutOrStdout(), map[string]string{"case_id": id}, func(w io.Writer) error {
				_, err := fmt.Fprintln(w, id)
				return err
			})
		},
	}
}

func newFiscalYearCmd(a *app) *cobra.Command {
	var category string
	cmd := &cobra.Command{
		Use:   "fiscal-year <date>",
		Short: "Show the fiscal year label and intake folder of a date",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			date, err := parseDate(args[0])
			if err != nil {
				return err
			}
			if category == "" {
				category = a.cfg.Intake.DefaultCategory
			}
			d := a.deriver()
			out := struct {
				Label  string `json:"label"`
				Folder string `json:"folder"`
			}{
				Label:  d.FiscalYearLabel(date),
				Folder: types.JoinPath(d.DeriveFolderPath(a.cfg.Intake.DocumentRoot, category, date, "")),
			}
			return a.emit(cmd.OutOrStdout(), out, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "%s\t%s\n", out.Label, out.Folder)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "request category (default from config)")
	return cmd
}
