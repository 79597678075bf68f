package client

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/mesh-intelligence/civicstore/pkg/types"
)

// Intake list column names.
const (
	ColTitle          = "Title"
	ColRequesterName  = "RequesterName"
	ColRequesterEmail = "RequesterEmail"
	ColRequesterPhone = "RequesterPhone"
	ColRequestText    = "RequestText"
	ColCategory       = "Category"
	ColReceivedDate   = "ReceivedDate"
	ColDueDate        = "DueDate"
	ColStatus         = "Status"
	ColDocumentURL    = "DocumentUrl"
	ColFolderPath     = "FolderPath"
	ColSubmissionID   = "SubmissionId"
	ColCaseID         = "CaseId"
)

// StatusReceived is the status of a freshly recorded request.
const StatusReceived = "Received"

const dateLayout = "2006-01-02"

// IntakeList returns the descriptor of the public records request list.
func IntakeList(name string) types.ListDescriptor {
	return types.ListDescriptor{
		DisplayName: name,
		Columns: []types.ColumnSpec{
			{Name: ColTitle, Kind: types.ColumnText, Required: true},
			{Name: ColRequesterName, Kind: types.ColumnText, Required: true},
			{Name: ColRequesterEmail, Kind: types.ColumnText, Required: true},
			{Name: ColRequesterPhone, Kind: types.ColumnText},
			{Name: ColRequestText, Kind: types.ColumnMultilineText, Required: true},
			{Name: ColCategory, Kind: types.ColumnText},
			{Name: ColReceivedDate, Kind: types.ColumnDateTime, Required: true},
			{Name: ColDueDate, Kind: types.ColumnDateTime},
			{
				Name:    ColStatus,
				Kind:    types.ColumnChoice,
				Choices: []string{StatusReceived, "In Progress", "Fulfilled", "Closed"},
				Default: StatusReceived,
			},
			{Name: ColDocumentURL, Kind: types.ColumnText},
			{Name: ColFolderPath, Kind: types.ColumnText},
			{Name: ColSubmissionID, Kind: types.ColumnText},
			{Name: ColCaseID, Kind: types.ColumnText},
		},
	}
}

// intakeDocument is the YAML body uploaded for each request.
type intakeDocument struct {
	SubmissionID string `yaml:"submission_id"`
	Received     string `yaml:"received"`
	Due          string `yaml:"due"`
	FiscalYear   string `yaml:"fiscal_year"`
	Category     string `yaml:"category"`
	Requester    struct {
		Name  string `yaml:"name"`
		Email string `yaml:"email"`
		Phone string `yaml:"phone,omitempty"`
	} `yaml:"requester"`
	Request string `yaml:"request"`
}

func (c *Client) composeDocument(req types.IntakeRequest, due time.Time) ([]byte, error) {
	doc := intakeDocument{
		SubmissionID: req.SubmissionID,
		Received:     req.SubmittedAt.Format(time.RFC3339),
		Due:          due.Format(dateLayout),
		FiscalYear:   c.deriver.FiscalYearLabel(req.SubmittedAt),
		Category:     req.Category,
		Request:      req.Request,
	}
	doc.Requester.Name = req.Name
	doc.Requester.Email = req.Email
	doc.Requester.Phone = req.Phone
	return yaml.Marshal(doc)
}

// normalizeIntake fills the fields a draft may leave empty.
func (c *Client) normalizeIntake(req types.IntakeRequest) (types.IntakeRequest, error) {
	if req.SubmissionID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return req, fmt.Errorf("generating submission id: %w", err)
		}
		req.SubmissionID = id.String()
	}
	if req.SubmittedAt.IsZero() {
		req.SubmittedAt = c.now()
	}
	if strings.TrimSpace(req.Category) == "" {
		req.Category = c.intake.DefaultCategory
	}
	return req, nil
}

// SubmitGovernedIntake records a public records request: the request is
// validated, its response deadline computed, a YAML document uploaded into
// the fiscal-year folder and a list item created that references it.
//
// When the remote store is unavailable the intake is queued and the result
// state is queued with a nil error. Other failures return an *IntakeError
// naming the step; resubmitting the same request (same SubmissionID) is
// safe.
func (c *Client) SubmitGovernedIntake(ctx context.Context, req types.IntakeRequest) (types.IntakeResult, error) {
	if !c.started.Load() {
		return types.IntakeResult{}, types.ErrNotStarted
	}
	req, err := c.normalizeIntake(req)
	if err != nil {
		return types.IntakeResult{}, err
	}

	in := types.NewIntake(req)
	_ = in.Transition(types.IntakeSubmitting)
	result := types.IntakeResult{
		SubmissionID: req.SubmissionID,
		Deadline:     c.policy.Due(req.SubmittedAt),
		FolderPath:   types.JoinPath(c.intakeFolder(req)),
	}

	if err := c.validate.Struct(req); err != nil {
		return c.finish(in, result, &types.IntakeError{
			Step:         types.StepValidate,
			SubmissionID: req.SubmissionID,
			Err:          fmt.Errorf("%w: %w", types.ErrValidation, err),
		})
	}

	rec, err := c.recordIntake(ctx, req, &result)
	if types.IsTransient(err) {
		queued, qerr := c.enqueue(ctx, types.QueuedSubmission{
			Op:       types.OpIntake,
			ListName: c.intake.List,
			Intake:   &req,
		}, err)
		if qerr != nil {
			return c.finish(in, result, &types.IntakeError{
				Step:         types.StepEnqueue,
				SubmissionID: req.SubmissionID,
				FolderPath:   result.FolderPath,
				Err:          qerr,
			})
		}
		result.QueueID = queued.ID
		_ = in.Transition(types.IntakeQueued)
		result.State = in.State
		c.metrics.Intake(in.State)
		return result, nil
	}
	if err != nil {
		return c.finish(in, result, err)
	}

	c.logger.Info("intake recorded",
		zap.String("submission_id", req.SubmissionID),
		zap.String("case_id", rec.CaseID),
		zap.String("item_id", rec.RemoteItemID),
		zap.Time("due", rec.Deadline))
	return c.finish(in, rec, nil)
}

// finish settles the intake state from err.
func (c *Client) finish(in *types.Intake, result types.IntakeResult, err error) (types.IntakeResult, error) {
	state := types.IntakeRecorded
	if err != nil {
		state = types.IntakeFailed
		c.logger.Warn("intake failed",
			zap.String("submission_id", in.Request.SubmissionID),
			zap.Error(err))
	}
	if terr := in.Transition(state); terr != nil {
		return result, errors.Join(err, terr)
	}
	result.State = in.State
	c.metrics.Intake(in.State)
	return result, err
}

func (c *Client) intakeFolder(req types.IntakeRequest) []string {
	return c.deriver.DeriveFolderPath(c.intake.DocumentRoot, req.Category, req.SubmittedAt, "")
}

// recordIntake runs the remote steps of an intake. Every step is safe to
// repeat, so a queued intake replays by calling it again. result is filled
// in as steps complete so a failure reports how far the intake got.
func (c *Client) recordIntake(ctx context.Context, req types.IntakeRequest, result *types.IntakeResult) (types.IntakeResult, error) {
	fail := func(step string, err error) (types.IntakeResult, error) {
		return *result, &types.IntakeError{
			Step:         step,
			SubmissionID: req.SubmissionID,
			FolderPath:   result.FolderPath,
			RemoteItemID: result.RemoteItemID,
			Err:          err,
		}
	}

	d, err := c.resolve(ctx, c.intake.List)
	if err != nil {
		return fail(types.StepLookup, err)
	}

	path, err := c.prov.EnsureFolderPath(ctx, c.intakeFolder(req))
	if err != nil {
		return fail(types.StepFolder, err)
	}
	result.FolderPath = path

	content, err := c.composeDocument(req, result.Deadline)
	if err != nil {
		return fail(types.StepCompose, err)
	}
	name := c.deriver.DocumentName(req.SubmittedAt, req.SubmissionID)
	doc, err := c.remote.UploadFile(ctx, path, name, content, true)
	if err != nil {
		return fail(types.StepUpload, err)
	}
	result.DocumentURL = doc.WebURL

	existing, err := c.remote.ListItems(ctx, d.RemoteID, types.Query{
		Top:    1,
		Filter: map[string]string{ColSubmissionID: req.SubmissionID},
	})
	if err != nil {
		return fail(types.StepLookup, err)
	}

	var item types.RemoteItem
	if len(existing) > 0 {
		item = existing[0]
		c.logger.Debug("intake item already recorded, reusing",
			zap.String("submission_id", req.SubmissionID),
			zap.String("item_id", item.ID))
	} else {
		item, err = c.remote.CreateItem(ctx, d.RemoteID, c.intakeFields(req, result.Deadline, path, doc.WebURL))
		if err != nil {
			return fail(types.StepCreate, err)
		}
	}
	result.RemoteItemID = item.ID
	c.invalidate(d)

	caseID := c.deriver.DeriveCaseID(req.SubmittedAt, item.ID)
	if item.Fields[ColCaseID] != caseID {
		if _, err := c.remote.UpdateItemFields(ctx, d.RemoteID, item.ID, map[string]any{ColCaseID: caseID}); err != nil {
			return fail(types.StepCaseID, err)
		}
		c.invalidate(d)
	}
	result.CaseID = caseID
	return *result, nil
}

func (c *Client) intakeFields(req types.IntakeRequest, due time.Time, folder, docURL string) map[string]any {
	title := req.Request
	if r := []rune(title); len(r) > 80 {
		title = string(r[:80])
	}
	fields := map[string]any{
		ColTitle:          title,
		ColRequesterName:  req.Name,
		ColRequesterEmail: req.Email,
		ColRequestText:    req.Request,
		ColCategory:       req.Category,
		ColReceivedDate:   req.SubmittedAt.Format(time.RFC3339),
		ColDueDate:        due.Format(dateLayout),
		ColStatus:         StatusReceived,
		ColDocumentURL:    docURL,
		ColFolderPath:     folder,
		ColSubmissionID:   req.SubmissionID,
	}
	if req.Phone != "" {
		fields[ColRequesterPhone] = req.Phone
	}
	return fields
}
