package domain

import "strings"

const (
	DefaultTargetFile  = "main.tf"
	DefaultBaseBranch  = "main"
	BranchHintFallback = "infra-change"
)

type APIErrorBody struct {
	Error APIError `json:"error"`
}

type APIError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// ChangeItem is one targeted block edit inside a proposal. BlockSignature is
// the header text (block type plus name) used to locate the block in TargetFile.
type ChangeItem struct {
	TargetFile     string `json:"target_file"`
	BlockSignature string `json:"block_signature"`
	NewBlockText   string `json:"new_block_text"`
}

// ChangeProposal is the parsed form of one generation response. Items carry
// explicit File:/Block: edits; Change holds a single fenced code body when
// the response used the plain Summary:/Change: format instead.
type ChangeProposal struct {
	Summary     string       `json:"summary,omitempty"`
	Change      string       `json:"change,omitempty"`
	ChangeType  string       `json:"change_type,omitempty"`
	Items       []ChangeItem `json:"items,omitempty"`
	RawResponse string       `json:"-"`
}

func (p ChangeProposal) Empty() bool {
	return strings.TrimSpace(p.Summary) == "" &&
		strings.TrimSpace(p.Change) == "" &&
		len(p.Items) == 0
}

// FileDiff is the reviewer-facing rendering of one applied ChangeItem.
type FileDiff struct {
	Path     string `json:"path"`
	Diff     string `json:"diff"`
	FellBack bool   `json:"fell_back"`
}

// PatchSet is the atomic set of per-file content changes built from one
// proposal. Files maps path to final content after all items were applied.
type PatchSet struct {
	Files       map[string]string `json:"files"`
	Diffs       []FileDiff        `json:"diffs"`
	AnyFallback bool              `json:"any_fallback"`
}

func (ps PatchSet) HasChanges() bool {
	return len(ps.Files) > 0
}

type PublishResult struct {
	BranchURL string `json:"branch_url"`
	PRURL     string `json:"pr_url"`
}

type TicketRef struct {
	ID          string `json:"id"`
	Key         string `json:"key"`
	Status      string `json:"status"`
	Summary     string `json:"summary"`
	Description string `json:"description,omitempty"`
}

type AuditEvent struct {
	Kind      string `json:"kind"`
	SubjectID string `json:"subject_id"`
	Stage     string `json:"stage,omitempty"`
	Detail    string `json:"detail,omitempty"`
	CreatedAt string `json:"created_at"`
}
