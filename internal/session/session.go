// Package session owns per-conversation state and the approval state
// machine. All access to one session goes through its own mutex; distinct
// sessions never share mutable state, so they proceed fully in parallel.
package session

import (
	"errors"
	"sync"

	"infrachat/gateway/internal/domain"
)

type State string

const (
	StateIdle             State = "idle"
	StateAwaitingApproval State = "awaiting_approval"
	StatePublishing       State = "publishing"
)

var (
	ErrNoPendingProposal = errors.New("session has no pending proposal")
	ErrPublishInProgress = errors.New("a publish for this session is already in progress")
)

// Session tracks one proposal's lifecycle from generation to publication or
// rejection. A session holds at most one pending proposal at a time.
type Session struct {
	ID string

	mu       sync.Mutex
	state    State
	proposal *domain.ChangeProposal
	patchSet *domain.PatchSet
}

func newSession(id string) *Session {
	return &Session{ID: id, state: StateIdle}
}

// Propose stores a new pending proposal and moves the session to
// AwaitingApproval. A proposal arriving while one is already pending
// replaces it; replaced is returned so the caller can warn the reviewer.
func (s *Session) Propose(proposal domain.ChangeProposal, patchSet domain.PatchSet) (replaced bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StatePublishing {
		return false, ErrPublishInProgress
	}
	replaced = s.state == StateAwaitingApproval
	s.state = StateAwaitingApproval
	s.proposal = &proposal
	s.patchSet = &patchSet
	return replaced, nil
}

// BeginPublish transitions AwaitingApproval -> Publishing and hands the
// pending data to the caller. The session mutex is not held during the
// publish call itself; the Publishing state keeps concurrent approvals and
// proposals out until CompletePublish is called.
func (s *Session) BeginPublish() (domain.ChangeProposal, domain.PatchSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StatePublishing:
		return domain.ChangeProposal{}, domain.PatchSet{}, ErrPublishInProgress
	case StateAwaitingApproval:
	default:
		return domain.ChangeProposal{}, domain.PatchSet{}, ErrNoPendingProposal
	}
	s.state = StatePublishing
	return *s.proposal, *s.patchSet, nil
}

// CompletePublish finishes a publish attempt. Success clears the pending
// state; failure returns the session to AwaitingApproval with the pending
// proposal intact so the approval can be retried.
func (s *Session) CompletePublish(success bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StatePublishing {
		return
	}
	if success {
		s.state = StateIdle
		s.proposal = nil
		s.patchSet = nil
		return
	}
	s.state = StateAwaitingApproval
}

// Reject discards the pending proposal without publishing.
func (s *Session) Reject() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StatePublishing:
		return ErrPublishInProgress
	case StateAwaitingApproval:
	default:
		return ErrNoPendingProposal
	}
	s.state = StateIdle
	s.proposal = nil
	s.patchSet = nil
	return nil
}

// snapshot returns the current state and a copy of any pending data.
func (s *Session) snapshot() (State, *domain.ChangeProposal, *domain.PatchSet) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var proposal *domain.ChangeProposal
	var patchSet *domain.PatchSet
	if s.proposal != nil {
		p := *s.proposal
		proposal = &p
	}
	if s.patchSet != nil {
		ps := *s.patchSet
		patchSet = &ps
	}
	return s.state, proposal, patchSet
}

// Registry hands out sessions keyed by id, creating them on first use.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: map[string]*Session{}}
}

func (r *Registry) Get(id string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		s = newSession(id)
		r.sessions[id] = s
	}
	return s
}

// Drop removes a session once its proposal reached a terminal outcome
// (published or rejected); the next request for the id starts fresh. The
// registry would otherwise grow by one entry per session id forever.
func (r *Registry) Drop(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

func (r *Registry) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
