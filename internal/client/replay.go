package client

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/mesh-intelligence/civicstore/pkg/types"
)

// ReplayFailure is a queued write the remote store rejected for good. It
// has been removed from the queue.
type ReplayFailure struct {
	Entry types.QueuedSubmission
	Err   error
}

// ReplayReport summarises one pass over the local queue.
type ReplayReport struct {
	Replayed  int
	Failed    []ReplayFailure
	Intakes   []types.IntakeResult
	Remaining int
}

// ReplayQueue sends queued writes to the remote store, oldest first and
// paced by the replay rate. A replayed entry is removed and its list
// invalidated. A transient failure bumps the entry's attempt count and ends
// the pass, since the store is evidently still unreachable. Unauthorized
// ends the pass with an error and leaves the entry queued. Any other error
// drops the entry and reports it in Failed.
func (c *Client) ReplayQueue(ctx context.Context) (ReplayReport, error) {
	var report ReplayReport
	if !c.started.Load() {
		return report, types.ErrNotStarted
	}
	entries, err := c.queue.List(ctx)
	if err != nil {
		return report, err
	}

	for i, entry := range entries {
		if err := c.replay.Wait(ctx); err != nil {
			report.Remaining = len(entries) - i
			return report, err
		}

		result, err := c.replayEntry(ctx, entry)
		switch {
		case err == nil:
			if err := c.queue.Remove(ctx, entry.ID); err != nil {
				return report, err
			}
			report.Replayed++
			if entry.Op == types.OpIntake {
				report.Intakes = append(report.Intakes, result)
			}
			c.logger.Info("queued write replayed",
				zap.String("queue_id", entry.ID),
				zap.String("op", string(entry.Op)),
				zap.String("list", entry.ListName))

		case types.IsTransient(err):
			entry.Attempts++
			entry.LastError = err.Error()
			if uerr := c.queue.Update(ctx, entry); uerr != nil {
				return report, uerr
			}
			report.Remaining = len(entries) - i
			c.logger.Warn("replay paused, remote store still unavailable",
				zap.String("queue_id", entry.ID),
				zap.Int("attempts", entry.Attempts),
				zap.Error(err))
			return report, nil

		case errors.Is(err, types.ErrUnauthorized):
			report.Remaining = len(entries) - i
			return report, fmt.Errorf("replaying %s: %w", entry.ID, err)

		default:
			if rerr := c.queue.Remove(ctx, entry.ID); rerr != nil {
				return report, rerr
			}
			report.Failed = append(report.Failed, ReplayFailure{Entry: entry, Err: err})
			if entry.Op == types.OpIntake {
				result.State = types.IntakeFailed
				report.Intakes = append(report.Intakes, result)
			}
			c.logger.Error("queued write rejected, dropped",
				zap.String("queue_id", entry.ID),
				zap.String("op", string(entry.Op)),
				zap.String("list", entry.ListName),
				zap.Error(err))
		}
	}
	return report, nil
}

func (c *Client) replayEntry(ctx context.Context, entry types.QueuedSubmission) (types.IntakeResult, error) {
	if entry.Op == types.OpIntake {
		if entry.Intake == nil {
			return types.IntakeResult{}, fmt.Errorf("intake entry %s has no request: %w", entry.ID, types.ErrValidation)
		}
		return c.replayIntake(ctx, *entry.Intake)
	}

	d, err := c.resolve(ctx, entry.ListName)
	if err != nil {
		return types.IntakeResult{}, err
	}
	switch entry.Op {
	case types.OpCreate:
		fields, perr := prepareFields(d, entry.Fields)
		if perr != nil {
			return types.IntakeResult{}, perr
		}
		_, err = c.remote.CreateItem(ctx, d.RemoteID, fields)
	case types.OpUpdate:
		_, err = c.remote.UpdateItemFields(ctx, d.RemoteID, entry.ItemID, entry.Fields)
	case types.OpDelete:
		err = c.remote.DeleteItem(ctx, d.RemoteID, entry.ItemID)
		if types.IsNotFound(err) {
			err = nil
		}
	default:
		err = fmt.Errorf("unknown queued operation %q: %w", entry.Op, types.ErrValidation)
	}
	if err != nil {
		return types.IntakeResult{}, err
	}
	c.invalidate(d)
	return types.IntakeResult{}, nil
}

// replayIntake moves a queued intake to recorded or failed. A transient
// failure leaves it queued.
func (c *Client) replayIntake(ctx context.Context, req types.IntakeRequest) (types.IntakeResult, error) {
	in := &types.Intake{Request: req, State: types.IntakeQueued}
	result := types.IntakeResult{
		SubmissionID: req.SubmissionID,
		Deadline:     c.policy.Due(req.SubmittedAt),
		FolderPath:   types.JoinPath(c.intakeFolder(req)),
		State:        in.State,
	}
	rec, err := c.recordIntake(ctx, req, &result)
	if types.IsTransient(err) {
		return result, err
	}
	return c.finish(in, rec, err)
}
