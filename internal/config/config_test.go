package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("INFRACHAT_HOST", "")
	t.Setenv("INFRACHAT_PORT", "")
	t.Setenv("INFRACHAT_GIT_BASE_URL", "")
	t.Setenv("INFRACHAT_GIT_BASE_BRANCH", "")
	t.Setenv("INFRACHAT_DEFAULT_TARGET_FILE", "")
	t.Setenv("INFRACHAT_TICKET_POLL_SCHEDULE", "")
	t.Setenv("INFRACHAT_HTTP_TIMEOUT_MS", "")

	cfg := Load()
	if cfg.Host != "127.0.0.1" || cfg.Port != "8090" {
		t.Fatalf("host=%q port=%q", cfg.Host, cfg.Port)
	}
	if cfg.GitBaseURL != "https://api.github.com" {
		t.Fatalf("git base url=%q", cfg.GitBaseURL)
	}
	if cfg.GitBaseBranch != "main" {
		t.Fatalf("git base branch=%q", cfg.GitBaseBranch)
	}
	if cfg.DefaultTargetFile != "main.tf" {
		t.Fatalf("default target file=%q", cfg.DefaultTargetFile)
	}
	if cfg.TicketPollSchedule != "@every 2m" {
		t.Fatalf("poll schedule=%q", cfg.TicketPollSchedule)
	}
	if cfg.HTTPTimeoutMS != 30000 {
		t.Fatalf("http timeout=%d", cfg.HTTPTimeoutMS)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("INFRACHAT_GIT_OWNER", "  acme  ")
	t.Setenv("INFRACHAT_GIT_REPO", "infra")
	t.Setenv("INFRACHAT_DEBUG", "TRUE")
	t.Setenv("INFRACHAT_HTTP_TIMEOUT_MS", "5000")

	cfg := Load()
	if cfg.GitOwner != "acme" {
		t.Fatalf("expected trimmed owner, got=%q", cfg.GitOwner)
	}
	if cfg.GitRepo != "infra" {
		t.Fatalf("repo=%q", cfg.GitRepo)
	}
	if !cfg.Debug {
		t.Fatalf("expected debug true")
	}
	if cfg.HTTPTimeoutMS != 5000 {
		t.Fatalf("http timeout=%d", cfg.HTTPTimeoutMS)
	}
}

func TestLoadInvalidTimeoutFallsBack(t *testing.T) {
	t.Setenv("INFRACHAT_HTTP_TIMEOUT_MS", "not-a-number")

	cfg := Load()
	if cfg.HTTPTimeoutMS != 30000 {
		t.Fatalf("expected fallback timeout, got=%d", cfg.HTTPTimeoutMS)
	}
}

func TestTicketingConfigured(t *testing.T) {
	t.Setenv("INFRACHAT_TICKET_BASE_URL", "https://acme.atlassian.net")
	t.Setenv("INFRACHAT_TICKET_PROJECT", "INFRA")

	cfg := Load()
	if !cfg.TicketingConfigured() {
		t.Fatalf("expected ticketing configured")
	}

	t.Setenv("INFRACHAT_TICKET_PROJECT", "")
	cfg = Load()
	if cfg.TicketingConfigured() {
		t.Fatalf("expected ticketing not configured without project")
	}
}
