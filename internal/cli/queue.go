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

func newQueueCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and replay writes queued while the store was unreachable",
	}
	cmd.AddCommand(newQueueListCmd(a), newQueueReplayCmd(a))
	return cmd
}

func newQueueListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List queued writes, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openSession(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer func() { _ = a.finish(s) }()

			pending, err := s.client.Pending(cmd.Context())
			if err != nil {
				return err
			}
			if pending == nil {
				pending = []types.QueuedSubmission{}
			}
			return a.emit(cmd.OutOrStdout(), pending, func(w io.Writer) error {
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tOP\tLIST\tITEM\tQUEUED\tATTEMPTS\tLAST ERROR")
				for _, e := range pending {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
						e.ID, e.Op, e.ListName, e.ItemID,
						e.EnqueuedAt.Format(time.RFC3339), e.Attempts, e.LastError)
				}
				return tw.Flush()
			})
		},
	}
}

// replayView is the printable form of a ReplayReport.
type replayView struct {
	Replayed  int                  `json:"replayed"`
	Failed    []replayFailureView  `json:"failed"`
	Intakes   []types.IntakeResult `json:"intakes,omitempty"`
	Remaining int                  `json:"remaining"`
}

type replayFailureView struct {
	ID    string        `json:"id"`
	Op    types.QueueOp `json:"op"`
	List  string        `json:"list,omitempty"`
	Error string        `json:"error"`
}

func newReplayView(r client.ReplayReport) replayView {
	v := replayView{Replayed: r.Replayed, Intakes: r.Intakes, Remaining: r.Remaining}
	v.Failed = make([]replayFailureView, 0, len(r.Failed))
	for _, f := range r.Failed {
		v.Failed = append(v.Failed, replayFailureView{
			ID: f.Entry.ID, Op: f.Entry.Op, List: f.Entry.ListName, Error: f.Err.Error(),
		})
	}
	return v
}

func newQueueReplayCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "replay",
		Short: "Send queued writes to the record store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSession(cmd.Context(), func(c *client.Client) error {
				report, err := c.ReplayQueue(cmd.Context())
				if err != nil {
					return err
				}
				v := newReplayView(report)
				return a.emit(cmd.OutOrStdout(), v, func(w io.Writer) error {
					fmt.Fprintf(w, "replayed %d, failed %d, remaining %d\n", v.Replayed, len(v.Failed), v.Remaining)
					for _, in := range v.Intakes {
						fmt.Fprintf(w, "intake %s recorded as %s\n", in.SubmissionID, in.CaseID)
					}
					for _, f := range v.Failed {
						fmt.Fprintf(w, "dropped %s %s: %s\n", f.Op, f.ID, f.Error)
					}
					return nil
				})
			})
		},
	}
}
