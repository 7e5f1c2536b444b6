package workflow

import (
	"context"
	"fmt"
	"strings"

	"infrachat/gateway/internal/domain"
)

// TicketRunResult summarizes one polling pass for logging and the manual
// trigger endpoint.
type TicketRunResult struct {
	Accepted  int `json:"accepted"`
	Published int `json:"published"`
	Failed    int `json:"failed"`
}

// ProcessTickets runs the ticket-driven mode once: list tickets in the
// designated initial status and drive each through generation, patching,
// publication, and its lifecycle transitions. There is no human approval
// step; a successfully built patch set is published directly. A failure on
// one ticket is reported and does not stop the others. At most one run
// executes at a time; an overlapping call returns ticket_run_in_progress
// instead of listing (and publishing) the same tickets twice.
func (s *Service) ProcessTickets(ctx context.Context) (TicketRunResult, error) {
	if s.deps.Ticketing == nil {
		return TicketRunResult{}, &ServiceError{Code: "ticketing_not_configured", Message: "ticketing is not configured"}
	}
	if !s.ticketRunMu.TryLock() {
		return TicketRunResult{}, &ServiceError{Code: "ticket_run_in_progress", Message: "a ticket run is already in progress"}
	}
	defer s.ticketRunMu.Unlock()

	tickets, err := s.deps.Ticketing.ListTickets(ctx, s.deps.TicketInitialStatus)
	if err != nil {
		s.record(ctx, "stage_failed", "ticket-poll", StageTicket, err.Error())
		return TicketRunResult{}, &StageError{Stage: StageTicket, Retryable: true, Err: err}
	}

	result := TicketRunResult{}
	for _, ticket := range tickets {
		// Tickets outside the designated initial status are ignored, not
		// errors, even if the search returned them.
		if !strings.EqualFold(strings.TrimSpace(ticket.Status), s.deps.TicketInitialStatus) {
			continue
		}
		result.Accepted++
		published, err := s.processTicket(ctx, ticket)
		if err != nil {
			result.Failed++
			s.deps.Logger.Error("ticket run failed", "ticket", ticket.Key, "error", err)
			continue
		}
		if published {
			result.Published++
		}
	}
	return result, nil
}

func (s *Service) processTicket(ctx context.Context, ticket domain.TicketRef) (bool, error) {
	subjectID := "ticket-" + ticket.Key
	s.record(ctx, "ticket_accepted", subjectID, StageTicket, ticket.Summary)

	if err := s.deps.Ticketing.Transition(ctx, ticket.ID, s.deps.TicketWorkingStatus); err != nil {
		s.record(ctx, "stage_failed", subjectID, StageTicket, err.Error())
		return false, &StageError{Stage: StageTicket, Retryable: true, Err: err}
	}

	proposal, patchSet, err := s.buildProposal(ctx, subjectID, ticketPrompt(ticket))
	if err != nil {
		s.commentBestEffort(ctx, ticket.ID, subjectID, "Automated change failed before publication; the ticket stays in progress for manual handling.")
		return false, err
	}
	if !patchSet.HasChanges() {
		s.record(ctx, "ticket_no_change", subjectID, StageBuild, "response contained no applicable file change")
		s.commentBestEffort(ctx, ticket.ID, subjectID, "No applicable infrastructure change could be derived from this ticket; please refine the request.")
		return false, nil
	}

	publishResult, err := s.deps.Repository.Publish(ctx, ticket.Key+" "+proposal.Summary, patchSet.Files, proposal.Summary)
	if err != nil {
		s.record(ctx, "stage_failed", subjectID, StagePublish, err.Error())
		s.commentBestEffort(ctx, ticket.ID, subjectID, "Publishing the change failed; the ticket stays in progress for manual handling.")
		return false, &StageError{Stage: StagePublish, Retryable: false, Err: err}
	}
	s.record(ctx, "published", subjectID, StagePublish, publishResult.PRURL)

	comment := fmt.Sprintf("%s\n\nReview: %s", strings.TrimSpace(proposal.Summary), publishResult.PRURL)
	if patchSet.AnyFallback {
		comment += "\n\nWarning: one or more blocks were appended rather than replaced; review the diff carefully."
	}
	s.commentBestEffort(ctx, ticket.ID, subjectID, comment)

	if err := s.deps.Ticketing.Transition(ctx, ticket.ID, s.deps.TicketDoneStatus); err != nil {
		// The change is already published; the stuck transition is reported
		// for manual follow-up rather than failing the run.
		s.record(ctx, "stage_failed", subjectID, StageTicket, err.Error())
		s.deps.Logger.Warn("ticket close transition failed", "ticket", ticket.Key, "error", err)
	}
	return true, nil
}

func (s *Service) commentBestEffort(ctx context.Context, ticketID, subjectID, text string) {
	if err := s.deps.Ticketing.Comment(ctx, ticketID, text); err != nil {
		s.record(ctx, "stage_failed", subjectID, StageTicket, err.Error())
		s.deps.Logger.Warn("ticket comment failed", "ticket_id", ticketID, "error", err)
	}
}
