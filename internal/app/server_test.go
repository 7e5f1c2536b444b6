package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"infrachat/gateway/internal/config"
	"infrachat/gateway/internal/domain"
	"infrachat/gateway/internal/logging"
	"infrachat/gateway/internal/service/ports"
	"infrachat/gateway/internal/service/workflow"
)

type stubGenerator struct {
	response string
}

func (g *stubGenerator) Generate(context.Context, string) (string, error) {
	return g.response, nil
}

type stubRepository struct {
	files     map[string]string
	published int
}

func (r *stubRepository) FetchFile(_ context.Context, path string) (string, error) {
	content, ok := r.files[path]
	if !ok {
		return "", ports.ErrFileNotFound
	}
	return content, nil
}

func (r *stubRepository) Publish(context.Context, string, map[string]string, string) (domain.PublishResult, error) {
	r.published++
	return domain.PublishResult{
		BranchURL: "https://github.com/acme/infra/tree/b",
		PRURL:     "https://github.com/acme/infra/pull/7",
	}, nil
}

type stubAudit struct {
	events []domain.AuditEvent
}

func (a *stubAudit) Record(_ context.Context, event domain.AuditEvent) error {
	a.events = append(a.events, event)
	return nil
}

func (a *stubAudit) Recent(_ context.Context, limit int) ([]domain.AuditEvent, error) {
	if limit > len(a.events) {
		limit = len(a.events)
	}
	out := make([]domain.AuditEvent, 0, limit)
	for i := len(a.events) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, a.events[i])
	}
	return out, nil
}

const generatorResponse = "Summary: bump the instance size\nTerraform:\n```hcl\nresource \"google_compute_instance\" \"web\" {\n  machine_type = \"e2-standard-4\"\n}\n```"

func newTestServer(apiKey string) (*Server, *stubRepository, *stubAudit) {
	repo := &stubRepository{files: map[string]string{
		"main.tf": "resource \"google_compute_instance\" \"web\" {\n  machine_type = \"e2-small\"\n}\n",
	}}
	sink := &stubAudit{}
	svc := workflow.NewService(workflow.Dependencies{
		Generator:  &stubGenerator{response: generatorResponse},
		Repository: repo,
		Audit:      sink,
	})
	srv := &Server{
		cfg:      config.Config{APIKey: apiKey},
		workflow: svc,
		audit:    sink,
		logger:   logging.Nop(),
	}
	return srv, repo, sink
}

func postJSON(t *testing.T, handler http.Handler, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthzAndVersion(t *testing.T) {
	t.Parallel()

	srv, _, _ := newTestServer("")
	handler := srv.Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz status=%d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/version", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), version) {
		t.Fatalf("version status=%d body=%s", rec.Code, rec.Body.String())
	}
}

func TestChatApproveRoundTrip(t *testing.T) {
	t.Parallel()

	srv, repo, _ := newTestServer("")
	handler := srv.Handler()

	rec := postJSON(t, handler, "/chat", workflow.MessageInput{SessionID: "s1", Message: "bump web"})
	if rec.Code != http.StatusOK {
		t.Fatalf("chat status=%d body=%s", rec.Code, rec.Body.String())
	}
	var chatOut workflow.MessageOutput
	if err := json.Unmarshal(rec.Body.Bytes(), &chatOut); err != nil {
		t.Fatalf("decode chat output: %v", err)
	}
	if !chatOut.AwaitingApproval {
		t.Fatalf("chat output=%+v", chatOut)
	}

	rec = postJSON(t, handler, "/approve", workflow.ApprovalInput{SessionID: "s1", Action: "approve"})
	if rec.Code != http.StatusOK {
		t.Fatalf("approve status=%d body=%s", rec.Code, rec.Body.String())
	}
	var approveOut workflow.ApprovalOutput
	if err := json.Unmarshal(rec.Body.Bytes(), &approveOut); err != nil {
		t.Fatalf("decode approve output: %v", err)
	}
	if approveOut.PRURL == "" || repo.published != 1 {
		t.Fatalf("approve output=%+v published=%d", approveOut, repo.published)
	}
}

func TestApproveWithoutProposalConflicts(t *testing.T) {
	t.Parallel()

	srv, _, _ := newTestServer("")
	rec := postJSON(t, srv.Handler(), "/approve", workflow.ApprovalInput{SessionID: "s1", Action: "approve"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "no_pending_proposal") {
		t.Fatalf("body=%s", rec.Body.String())
	}
}

func TestChatRejectsInvalidBody(t *testing.T) {
	t.Parallel()

	srv, _, _ := newTestServer("")
	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", rec.Code)
	}
}

func TestAPIKeyGuardsChatButNotHealthz(t *testing.T) {
	t.Parallel()

	srv, _, _ := newTestServer("secret")
	handler := srv.Handler()

	rec := postJSON(t, handler, "/chat", workflow.MessageInput{SessionID: "s1", Message: "x"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated chat status=%d", rec.Code)
	}

	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec2.Code != http.StatusOK {
		t.Fatalf("healthz status=%d", rec2.Code)
	}

	payload, _ := json.Marshal(workflow.MessageInput{SessionID: "s1", Message: "bump web"})
	req := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewReader(payload))
	req.Header.Set("X-API-Key", "secret")
	rec3 := httptest.NewRecorder()
	handler.ServeHTTP(rec3, req)
	if rec3.Code != http.StatusOK {
		t.Fatalf("authenticated chat status=%d body=%s", rec3.Code, rec3.Body.String())
	}
}

func TestAuditEventsFeed(t *testing.T) {
	t.Parallel()

	srv, _, sink := newTestServer("")
	handler := srv.Handler()

	if rec := postJSON(t, handler, "/chat", workflow.MessageInput{SessionID: "s1", Message: "x"}); rec.Code != http.StatusOK {
		t.Fatalf("chat status=%d", rec.Code)
	}
	if len(sink.events) == 0 {
		t.Fatal("expected audit events recorded")
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/audit/events?limit=10", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "request_received") {
		t.Fatalf("body=%s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/audit/events?limit=0", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid limit status=%d", rec.Code)
	}
}

func TestTicketPollWithoutTicketing(t *testing.T) {
	t.Parallel()

	srv, _, _ := newTestServer("")
	rec := postJSON(t, srv.Handler(), "/tickets/poll", struct{}{})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "ticketing_not_configured") {
		t.Fatalf("body=%s", rec.Body.String())
	}
}
