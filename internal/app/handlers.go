package app

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"infrachat/gateway/internal/domain"
	"infrachat/gateway/internal/service/workflow"
)

const maxRequestBytes = 1 << 20

func (s *Server) handleVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": version})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var input workflow.MessageInput
	if !decodeBody(w, r, &input) {
		return
	}
	output, err := s.workflow.HandleMessage(r.Context(), input)
	if err != nil {
		writeWorkflowErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, output)
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	var input workflow.ApprovalInput
	if !decodeBody(w, r, &input) {
		return
	}
	output, err := s.workflow.HandleApproval(r.Context(), input)
	if err != nil {
		writeWorkflowErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, output)
}

func (s *Server) handleAuditEvents(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeErr(w, http.StatusNotFound, "audit_not_configured", "audit sink is not configured", nil)
		return
	}
	limit := 50
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 500 {
			writeErr(w, http.StatusBadRequest, "invalid_limit", "limit must be an integer between 1 and 500", nil)
			return
		}
		limit = parsed
	}
	events, err := s.audit.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("audit read failed", "error", err)
		writeErr(w, http.StatusInternalServerError, "audit_read_failed", "could not read audit events", nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": events})
}

// handleTicketPoll triggers one ticket-driven pass on demand, outside the
// cron schedule.
func (s *Server) handleTicketPoll(w http.ResponseWriter, r *http.Request) {
	result, err := s.workflow.ProcessTickets(r.Context())
	if err != nil {
		writeWorkflowErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err := decoder.Decode(dst); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid_body", "request body must be valid JSON", nil)
		return false
	}
	return true
}

func writeWorkflowErr(w http.ResponseWriter, err error) {
	var svcErr *workflow.ServiceError
	if errors.As(err, &svcErr) {
		status := http.StatusBadRequest
		switch svcErr.Code {
		case "no_pending_proposal", "publish_in_progress", "ticket_run_in_progress":
			status = http.StatusConflict
		case "ticketing_not_configured":
			status = http.StatusNotFound
		}
		writeErr(w, status, svcErr.Code, svcErr.Message, svcErr.Details)
		return
	}
	var stageErr *workflow.StageError
	if errors.As(err, &stageErr) {
		writeErr(w, http.StatusBadGateway, "stage_failed", stageErr.UserMessage(), map[string]interface{}{
			"stage":     stageErr.Stage,
			"retryable": stageErr.Retryable,
		})
		return
	}
	writeErr(w, http.StatusInternalServerError, "internal_error", "unexpected error", nil)
}

func writeJSON(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(data)
}

func writeErr(w http.ResponseWriter, code int, errCode, message string, details interface{}) {
	writeJSON(w, code, domain.APIErrorBody{Error: domain.APIError{Code: errCode, Message: message, Details: details}})
}
