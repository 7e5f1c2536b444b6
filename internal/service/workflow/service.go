// Package workflow drives the end-to-end change pipeline: request →
// generation → parse → locate/patch → review → publish → notify. Each
// external call is an isolated stage; a failure aborts the run, leaves the
// session or ticket in its last well-defined state, and is reported through
// the audit sink.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"infrachat/gateway/internal/changeset"
	"infrachat/gateway/internal/domain"
	"infrachat/gateway/internal/hclblock"
	"infrachat/gateway/internal/logging"
	"infrachat/gateway/internal/parser"
	"infrachat/gateway/internal/service/ports"
	"infrachat/gateway/internal/session"
)

const (
	StageGenerate = "generate"
	StageParse    = "parse"
	StageBuild    = "build"
	StagePublish  = "publish"
	StageTicket   = "ticket"

	defaultTicketInitialStatus = "To Do"
	defaultTicketWorkingStatus = "In Progress"
	defaultTicketDoneStatus    = "Done"
)

// ServiceError reports invalid input or a session in the wrong state.
type ServiceError struct {
	Code    string
	Message string
	Details interface{}
}

func (e *ServiceError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// StageError reports a pipeline stage failure. Retryable tells the caller
// whether simply re-issuing the request is safe; a failed publish is not
// auto-retried and needs an explicit new approval action.
type StageError struct {
	Stage     string
	Retryable bool
	Err       error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func (e *StageError) UserMessage() string {
	retry := "It is safe to retry with a fresh request."
	if !e.Retryable {
		retry = "Approve again to retry the publication."
	}
	return fmt.Sprintf("The %s step failed. %s", e.Stage, retry)
}

type Dependencies struct {
	Sessions   *session.Registry
	Generator  ports.Generator
	Repository ports.Repository
	Ticketing  ports.Ticketing
	Audit      ports.AuditSink
	Logger     *slog.Logger

	// DefaultTargetFile receives single-change responses that carry no
	// File:/Block: addressing.
	DefaultTargetFile string

	TicketInitialStatus string
	TicketWorkingStatus string
	TicketDoneStatus    string

	Now func() time.Time
}

type Service struct {
	deps Dependencies

	// ticketRunMu serializes ticket-driven runs. The cron schedule and the
	// manual poll endpoint would otherwise both list the same pending
	// tickets and publish each one twice.
	ticketRunMu sync.Mutex
}

func NewService(deps Dependencies) *Service {
	if deps.Sessions == nil {
		deps.Sessions = session.NewRegistry()
	}
	if deps.Logger == nil {
		deps.Logger = logging.Nop()
	}
	if deps.DefaultTargetFile == "" {
		deps.DefaultTargetFile = domain.DefaultTargetFile
	}
	if deps.TicketInitialStatus == "" {
		deps.TicketInitialStatus = defaultTicketInitialStatus
	}
	if deps.TicketWorkingStatus == "" {
		deps.TicketWorkingStatus = defaultTicketWorkingStatus
	}
	if deps.TicketDoneStatus == "" {
		deps.TicketDoneStatus = defaultTicketDoneStatus
	}
	if deps.Now == nil {
		deps.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{deps: deps}
}

type MessageInput struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	Message   string `json:"message"`
}

type MessageOutput struct {
	Reply            string            `json:"reply"`
	Summary          string            `json:"summary,omitempty"`
	Diffs            []domain.FileDiff `json:"diffs,omitempty"`
	AwaitingApproval bool              `json:"awaiting_approval"`
	ProposalReplaced bool              `json:"proposal_replaced,omitempty"`
}

// HandleMessage runs one interactive request/response cycle: generate,
// parse, build, then park the proposal on the session awaiting approval.
func (s *Service) HandleMessage(ctx context.Context, input MessageInput) (MessageOutput, error) {
	sessionID := strings.TrimSpace(input.SessionID)
	message := strings.TrimSpace(input.Message)
	if sessionID == "" || message == "" {
		return MessageOutput{}, &ServiceError{
			Code:    "invalid_request",
			Message: "session_id and message are required",
		}
	}

	s.record(ctx, "request_received", sessionID, "", message)

	proposal, patchSet, err := s.buildProposal(ctx, sessionID, interactivePrompt(message))
	if err != nil {
		return MessageOutput{}, err
	}

	if proposal.Empty() {
		s.record(ctx, "informational_reply", sessionID, StageParse, "no summary or change in response")
		return MessageOutput{
			Reply:            strings.TrimSpace(proposal.RawResponse),
			AwaitingApproval: false,
		}, nil
	}

	sess := s.deps.Sessions.Get(sessionID)
	replaced, err := sess.Propose(proposal, patchSet)
	if err != nil {
		return MessageOutput{}, &ServiceError{Code: "publish_in_progress", Message: err.Error()}
	}
	s.record(ctx, "proposal_pending", sessionID, StageBuild,
		fmt.Sprintf("items=%d files=%d fallback=%t replaced=%t", len(proposal.Items), len(patchSet.Files), patchSet.AnyFallback, replaced))

	return MessageOutput{
		Reply:            proposalReply(proposal, patchSet, replaced),
		Summary:          proposal.Summary,
		Diffs:            patchSet.Diffs,
		AwaitingApproval: true,
		ProposalReplaced: replaced,
	}, nil
}

const (
	ActionApprove = "approve"
	ActionReject  = "reject"
)

type ApprovalInput struct {
	SessionID string `json:"session_id"`
	Action    string `json:"action"`
}

type ApprovalOutput struct {
	Result    string `json:"result"`
	BranchURL string `json:"branch_url,omitempty"`
	PRURL     string `json:"pr_url,omitempty"`
}

// HandleApproval resolves a pending proposal: reject discards it, approve
// publishes it. A publish failure keeps the proposal pending for retry.
func (s *Service) HandleApproval(ctx context.Context, input ApprovalInput) (ApprovalOutput, error) {
	sessionID := strings.TrimSpace(input.SessionID)
	action := strings.ToLower(strings.TrimSpace(input.Action))
	if sessionID == "" {
		return ApprovalOutput{}, &ServiceError{Code: "invalid_request", Message: "session_id is required"}
	}

	sess := s.deps.Sessions.Get(sessionID)
	switch action {
	case ActionReject:
		if err := sess.Reject(); err != nil {
			return ApprovalOutput{}, sessionStateError(err)
		}
		s.deps.Sessions.Drop(sessionID)
		s.record(ctx, "proposal_rejected", sessionID, "", "")
		return ApprovalOutput{Result: "Change rejected. Nothing was published."}, nil

	case ActionApprove:
		proposal, patchSet, err := sess.BeginPublish()
		if err != nil {
			return ApprovalOutput{}, sessionStateError(err)
		}

		if !patchSet.HasChanges() {
			sess.CompletePublish(true)
			s.deps.Sessions.Drop(sessionID)
			s.record(ctx, "proposal_closed", sessionID, StagePublish, "approved with no file changes")
			return ApprovalOutput{Result: "Approved, but the proposal contained no file changes to publish."}, nil
		}

		result, err := s.deps.Repository.Publish(ctx, branchHint(proposal), patchSet.Files, proposal.Summary)
		if err != nil {
			sess.CompletePublish(false)
			s.record(ctx, "stage_failed", sessionID, StagePublish, err.Error())
			s.deps.Logger.Error("publish failed", "session_id", sessionID, "error", err)
			return ApprovalOutput{}, &StageError{Stage: StagePublish, Retryable: false, Err: err}
		}
		sess.CompletePublish(true)
		s.deps.Sessions.Drop(sessionID)
		s.record(ctx, "published", sessionID, StagePublish, result.PRURL)
		return ApprovalOutput{
			Result:    fmt.Sprintf("Change published for review: %s", result.PRURL),
			BranchURL: result.BranchURL,
			PRURL:     result.PRURL,
		}, nil

	default:
		return ApprovalOutput{}, &ServiceError{
			Code:    "invalid_action",
			Message: fmt.Sprintf("action must be %q or %q", ActionApprove, ActionReject),
		}
	}
}

// buildProposal runs the generate → parse → build stages shared by both
// operating modes.
func (s *Service) buildProposal(ctx context.Context, subjectID, prompt string) (domain.ChangeProposal, domain.PatchSet, error) {
	raw, err := s.deps.Generator.Generate(ctx, prompt)
	if err != nil {
		s.record(ctx, "stage_failed", subjectID, StageGenerate, err.Error())
		s.deps.Logger.Error("generation failed", "subject_id", subjectID, "error", err)
		return domain.ChangeProposal{}, domain.PatchSet{}, &StageError{Stage: StageGenerate, Retryable: true, Err: err}
	}

	proposal := parser.Parse(raw)
	s.resolveItems(&proposal)
	if proposal.Empty() {
		return proposal, domain.PatchSet{}, nil
	}

	patchSet, err := changeset.Build(ctx, proposal, s.fetchFile)
	if err != nil {
		s.record(ctx, "stage_failed", subjectID, StageBuild, err.Error())
		s.deps.Logger.Error("patch set build failed", "subject_id", subjectID, "error", err)
		return domain.ChangeProposal{}, domain.PatchSet{}, &StageError{Stage: StageBuild, Retryable: true, Err: err}
	}
	return proposal, patchSet, nil
}

// resolveItems gives a single-change response a concrete target: the code
// body becomes one item against the default target file, addressed by the
// signature derived from its own header. Diff bodies and plain snippets
// carry no block shape and stay informational.
func (s *Service) resolveItems(proposal *domain.ChangeProposal) {
	if len(proposal.Items) > 0 || proposal.Change == "" {
		return
	}
	switch proposal.ChangeType {
	case "hcl", "terraform", "tf", "":
	default:
		return
	}
	signature := hclblock.HeaderSignature(proposal.Change)
	if signature == "" {
		return
	}
	proposal.Items = []domain.ChangeItem{
		{
			TargetFile:     s.deps.DefaultTargetFile,
			BlockSignature: signature,
			NewBlockText:   proposal.Change,
		},
	}
}

func (s *Service) fetchFile(ctx context.Context, path string) (string, bool, error) {
	content, err := s.deps.Repository.FetchFile(ctx, path)
	if errors.Is(err, ports.ErrFileNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return content, true, nil
}

// record writes an audit event, best effort.
func (s *Service) record(ctx context.Context, kind, subjectID, stage, detail string) {
	if s.deps.Audit == nil {
		return
	}
	event := domain.AuditEvent{
		Kind:      kind,
		SubjectID: subjectID,
		Stage:     stage,
		Detail:    detail,
		CreatedAt: s.deps.Now().Format(time.RFC3339Nano),
	}
	if err := s.deps.Audit.Record(ctx, event); err != nil {
		s.deps.Logger.Warn("audit record failed", "kind", kind, "subject_id", subjectID, "error", err)
	}
}

func sessionStateError(err error) error {
	switch {
	case errors.Is(err, session.ErrNoPendingProposal):
		return &ServiceError{Code: "no_pending_proposal", Message: "there is no pending change for this session"}
	case errors.Is(err, session.ErrPublishInProgress):
		return &ServiceError{Code: "publish_in_progress", Message: "a publish for this session is already in progress"}
	default:
		return err
	}
}

func branchHint(proposal domain.ChangeProposal) string {
	if hint := strings.TrimSpace(proposal.Summary); hint != "" {
		return hint
	}
	return domain.BranchHintFallback
}

func proposalReply(proposal domain.ChangeProposal, patchSet domain.PatchSet, replaced bool) string {
	var b strings.Builder
	if proposal.Summary != "" {
		b.WriteString(proposal.Summary)
	} else {
		b.WriteString("Proposed infrastructure change.")
	}
	if len(patchSet.Files) > 0 {
		b.WriteString(fmt.Sprintf("\n\n%d file(s) would change.", len(patchSet.Files)))
	} else {
		b.WriteString("\n\nNo file changes could be derived from the response.")
	}
	if patchSet.AnyFallback {
		b.WriteString("\nWarning: one or more blocks were not found in their target file and were appended instead; review the diff carefully.")
	}
	if replaced {
		b.WriteString("\nNote: this supersedes the previously pending change for this session.")
	}
	b.WriteString("\nReply with approve to publish or reject to discard.")
	return b.String()
}
