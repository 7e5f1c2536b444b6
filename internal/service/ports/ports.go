// Package ports declares the interfaces the workflow service needs from its
// external collaborators. Concrete clients live in internal/runner,
// internal/gitops, internal/ticket and internal/audit; tests substitute
// fakes.
package ports

import (
	"context"
	"errors"

	"infrachat/gateway/internal/domain"
)

// ErrFileNotFound distinguishes a missing repository file from a failed
// fetch. Missing files are patched by appending into a new file; failed
// fetches abort the build.
var ErrFileNotFound = errors.New("file not found")

// Generator produces raw model text for a prompt. The workflow makes no
// assumption about the output beyond the marker conventions the parser
// understands.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Repository fetches current file content and publishes a finished PatchSet
// as a branch plus pull request.
type Repository interface {
	FetchFile(ctx context.Context, path string) (string, error)
	Publish(ctx context.Context, branchHint string, files map[string]string, summary string) (domain.PublishResult, error)
}

// Ticketing is the ticket-driven mode's collaborator.
type Ticketing interface {
	ListTickets(ctx context.Context, status string) ([]domain.TicketRef, error)
	Transition(ctx context.Context, ticketID, status string) error
	Comment(ctx context.Context, ticketID, text string) error
}

// AuditSink receives structured records of state transitions and patch
// decisions. Recording is best effort: a sink failure must never abort the
// pipeline.
type AuditSink interface {
	Record(ctx context.Context, event domain.AuditEvent) error
}
