package workflow

import (
	"fmt"
	"strings"

	"infrachat/gateway/internal/domain"
)

// interactivePrompt wraps a chat request in the response format contract the
// parser understands. The model is steered toward either the single-change
// form or the multi-file File:/Block: form, and away from shell commands and
// prose-only answers.
func interactivePrompt(request string) string {
	return fmt.Sprintf(
		"Generate a concise summary (1-2 sentences) in plain English describing the requested "+
			"infrastructure change, then provide only the Terraform code to accomplish it.\n"+
			"User request: %s\n"+
			"Format your response as:\n"+
			"Summary: <summary here>\n"+
			"Terraform:\n```hcl\n<complete replacement block here>\n```\n"+
			"If the change touches more than one file or block, instead repeat this group per block:\n"+
			"File: <relative path> Block: <block type and name, e.g. resource \"google_compute_instance\" \"web\">\n"+
			"```hcl\n<complete replacement block>\n```\n"+
			"Always emit the complete block, not a fragment. "+
			"Do not include bash scripts, gcloud commands, or lengthy explanations.",
		strings.TrimSpace(request),
	)
}

// ticketPrompt builds the generation prompt for a ticket-driven run from the
// ticket's summary and description.
func ticketPrompt(ticket domain.TicketRef) string {
	request := strings.TrimSpace(ticket.Summary)
	if description := strings.TrimSpace(ticket.Description); description != "" {
		request += "\n" + description
	}
	return interactivePrompt(request)
}
