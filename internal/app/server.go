// Package app wires the gateway's HTTP surface: routing, auth, the workflow
// service behind /chat and /approve, the audit feed, and the scheduled
// ticket-polling job.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	cronv3 "github.com/robfig/cron/v3"

	"infrachat/gateway/internal/audit"
	"infrachat/gateway/internal/config"
	"infrachat/gateway/internal/domain"
	"infrachat/gateway/internal/gitops"
	"infrachat/gateway/internal/logging"
	"infrachat/gateway/internal/observability"
	"infrachat/gateway/internal/runner"
	"infrachat/gateway/internal/service/ports"
	"infrachat/gateway/internal/service/workflow"
	"infrachat/gateway/internal/ticket"
)

const version = "0.1.0"

const auditDBName = "audit.db"

// auditReader is the slice of the audit store the HTTP feed needs.
type auditReader interface {
	Recent(ctx context.Context, limit int) ([]domain.AuditEvent, error)
}

type Server struct {
	cfg      config.Config
	workflow *workflow.Service
	audit    auditReader
	logger   *slog.Logger

	cron       *cronv3.Cron
	auditStore *audit.Store
	closeOnce  sync.Once
}

func NewServer(cfg config.Config, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = logging.Nop()
	}

	auditStore, err := audit.NewSQLite(filepath.Join(cfg.DataDir, auditDBName))
	if err != nil {
		return nil, fmt.Errorf("open audit store: %w", err)
	}

	generator := runner.New(runner.Config{
		BaseURL:   cfg.GeneratorBaseURL,
		APIKey:    cfg.GeneratorAPIKey,
		Model:     cfg.GeneratorModel,
		TimeoutMS: cfg.HTTPTimeoutMS,
	})
	repository := gitops.New(gitops.Config{
		BaseURL:    cfg.GitBaseURL,
		Token:      cfg.GitToken,
		Owner:      cfg.GitOwner,
		Repo:       cfg.GitRepo,
		BaseBranch: cfg.GitBaseBranch,
		TimeoutMS:  cfg.HTTPTimeoutMS,
	})

	var ticketing ports.Ticketing
	if cfg.TicketingConfigured() {
		ticketing = ticket.New(ticket.Config{
			BaseURL:    cfg.TicketBaseURL,
			Email:      cfg.TicketEmail,
			APIToken:   cfg.TicketAPIToken,
			ProjectKey: cfg.TicketProject,
			TimeoutMS:  cfg.HTTPTimeoutMS,
		})
	}

	svc := workflow.NewService(workflow.Dependencies{
		Generator:           generator,
		Repository:          repository,
		Ticketing:           ticketing,
		Audit:               auditStore,
		Logger:              logger,
		DefaultTargetFile:   cfg.DefaultTargetFile,
		TicketInitialStatus: cfg.TicketInitialStatus,
		TicketWorkingStatus: cfg.TicketWorkingStatus,
		TicketDoneStatus:    cfg.TicketDoneStatus,
	})

	srv := &Server{
		cfg:        cfg,
		workflow:   svc,
		audit:      auditStore,
		auditStore: auditStore,
		logger:     logger,
	}
	if ticketing != nil {
		if err := srv.startTicketPoller(cfg.TicketPollSchedule); err != nil {
			auditStore.Close()
			return nil, fmt.Errorf("schedule ticket poller: %w", err)
		}
	}
	return srv, nil
}

func (s *Server) startTicketPoller(schedule string) error {
	parser := cronv3.NewParser(cronv3.SecondOptional | cronv3.Minute | cronv3.Hour | cronv3.Dom | cronv3.Month | cronv3.Dow | cronv3.Descriptor)
	c := cronv3.New(cronv3.WithParser(parser))
	_, err := c.AddFunc(schedule, func() {
		result, err := s.workflow.ProcessTickets(context.Background())
		if err != nil {
			var svcErr *workflow.ServiceError
			if errors.As(err, &svcErr) && svcErr.Code == "ticket_run_in_progress" {
				s.logger.Info("ticket poll skipped, previous run still in progress")
				return
			}
			s.logger.Error("ticket poll failed", "error", err)
			return
		}
		if result.Accepted > 0 {
			s.logger.Info("ticket poll finished",
				"accepted", result.Accepted,
				"published", result.Published,
				"failed", result.Failed,
			)
		}
	})
	if err != nil {
		return err
	}
	c.Start()
	s.cron = c
	return nil
}

func (s *Server) Close() {
	s.closeOnce.Do(func() {
		if s.cron != nil {
			<-s.cron.Stop().Done()
		}
		if s.auditStore != nil {
			if err := s.auditStore.Close(); err != nil {
				s.logger.Warn("audit store close failed", "error", err)
			}
		}
	})
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(observability.RequestLogging(s.logger))

	r.Get("/version", s.handleVersion)
	r.Get("/healthz", s.handleHealthz)

	r.Group(func(api chi.Router) {
		api.Use(observability.APIKey(s.cfg.APIKey))

		api.Post("/chat", s.handleChat)
		api.Post("/approve", s.handleApprove)
		api.Get("/audit/events", s.handleAuditEvents)
		api.Post("/tickets/poll", s.handleTicketPoll)
	})
	return r
}
