package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/civicstore/internal/client"
	"github.com/mesh-intelligence/civicstore/pkg/types"
)

const dateLayout = "2006-01-02"

func parseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(dateLayout, s, time.Local)
	if err != nil {
		return time.Time{}, usageErr("date %q: expected YYYY-MM-DD", s)
	}
	return t, nil
}

func newIntakeCmd(a *app) *cobra.Command {
	var (
		req  types.IntakeRequest
		date string
	)
	cmd := &cobra.Command{
		Use:   "intake",
		Short: "Record a public records request",
		Long: `Intake files a governed public records request: it creates the case
folder, uploads the request document, creates the case item and stamps its
case id. Re-running with the same --submission-id is safe.

Example:
  civicstore intake --name "Ada Lovelace" --email ada@example.org \
    --request "Council minutes for January" --date 2024-03-01`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if date != "" {
				t, err := parseDate(date)
				if err != nil {
					return err
				}
				req.SubmittedAt = t
			}
			return a.withSession(cmd.Context(), func(c *client.Client) error {
				res, err := c.SubmitGovernedIntake(cmd.Context(), req)
				if err != nil {
					return err
				}
				return a.emit(cmd.OutOrStdout(), res, func(w io.Writer) error {
					return writeIntakeResult(w, res)
				})
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&req.Name, "name", "", "requester name")
	f.StringVar(&req.Email, "email", "", "requester email")
	f.StringVar(&req.Phone, "phone", "", "requester phone")
	f.StringVar(&req.Request, "request", "", "records requested")
	f.StringVar(&req.Category, "category", "", "request category (default from config)")
	f.StringVar(&req.SubmissionID, "submission-id", "", "stable id of this submission (generated when empty)")
	f.StringVar(&date, "date", "", "submission date YYYY-MM-DD (default now)")
	return cmd
}

func writeIntakeResult(w io.Writer, res types.IntakeResult) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "state\t%s\n", res.State)
	fmt.Fprintf(tw, "submission\t%s\n", res.SubmissionID)
	if res.CaseID != "" {
		fmt.Fprintf(tw, "case\t%s\n", res.CaseID)
	}
	if res.RemoteItemID != "" {
		fmt.Fprintf(tw, "item\t%s\n", res.RemoteItemID)
	}
	if res.QueueID != "" {
		fmt.Fprintf(tw, "queued as\t%s\n", res.QueueID)
	}
	fmt.Fprintf(tw, "folder\t%s\n", res.FolderPath)
	if res.DocumentURL != "" {
		fmt.Fprintf(tw, "document\t%s\n", res.DocumentURL)
	}
	fmt.Fprintf(tw, "due\t%s\n", res.Deadline.Format(dateLayout))
	return tw.Flush()
}
