package config

import (
	"os"
	"strconv"
	"strings"
)

// Config carries everything the gateway reads from the environment. Secrets
// (API key, provider key, VCS token, ticket token) have no defaults; the
// subsystems they belong to stay disabled when unset.
type Config struct {
	Host    string
	Port    string
	DataDir string
	APIKey  string
	Debug   bool

	GeneratorBaseURL string
	GeneratorAPIKey  string
	GeneratorModel   string

	GitBaseURL    string
	GitToken      string
	GitOwner      string
	GitRepo       string
	GitBaseBranch string

	TicketBaseURL       string
	TicketEmail         string
	TicketAPIToken      string
	TicketProject       string
	TicketInitialStatus string
	TicketWorkingStatus string
	TicketDoneStatus    string
	TicketPollSchedule  string

	DefaultTargetFile string
	HTTPTimeoutMS     int
}

func Load() Config {
	host := os.Getenv("INFRACHAT_HOST")
	if host == "" {
		host = "127.0.0.1"
	}
	port := os.Getenv("INFRACHAT_PORT")
	if port == "" {
		port = "8090"
	}
	dataDir := os.Getenv("INFRACHAT_DATA_DIR")
	if dataDir == "" {
		dataDir = ".data"
	}
	gitBaseURL := strings.TrimSpace(os.Getenv("INFRACHAT_GIT_BASE_URL"))
	if gitBaseURL == "" {
		gitBaseURL = "https://api.github.com"
	}
	gitBaseBranch := strings.TrimSpace(os.Getenv("INFRACHAT_GIT_BASE_BRANCH"))
	if gitBaseBranch == "" {
		gitBaseBranch = "main"
	}
	targetFile := strings.TrimSpace(os.Getenv("INFRACHAT_DEFAULT_TARGET_FILE"))
	if targetFile == "" {
		targetFile = "main.tf"
	}
	pollSchedule := strings.TrimSpace(os.Getenv("INFRACHAT_TICKET_POLL_SCHEDULE"))
	if pollSchedule == "" {
		pollSchedule = "@every 2m"
	}
	return Config{
		Host:    host,
		Port:    port,
		DataDir: dataDir,
		APIKey:  os.Getenv("INFRACHAT_API_KEY"),
		Debug:   parseEnvBool("INFRACHAT_DEBUG"),

		GeneratorBaseURL: strings.TrimSpace(os.Getenv("INFRACHAT_GENERATOR_BASE_URL")),
		GeneratorAPIKey:  strings.TrimSpace(os.Getenv("INFRACHAT_GENERATOR_API_KEY")),
		GeneratorModel:   strings.TrimSpace(os.Getenv("INFRACHAT_GENERATOR_MODEL")),

		GitBaseURL:    gitBaseURL,
		GitToken:      strings.TrimSpace(os.Getenv("INFRACHAT_GIT_TOKEN")),
		GitOwner:      strings.TrimSpace(os.Getenv("INFRACHAT_GIT_OWNER")),
		GitRepo:       strings.TrimSpace(os.Getenv("INFRACHAT_GIT_REPO")),
		GitBaseBranch: gitBaseBranch,

		TicketBaseURL:       strings.TrimSpace(os.Getenv("INFRACHAT_TICKET_BASE_URL")),
		TicketEmail:         strings.TrimSpace(os.Getenv("INFRACHAT_TICKET_EMAIL")),
		TicketAPIToken:      strings.TrimSpace(os.Getenv("INFRACHAT_TICKET_API_TOKEN")),
		TicketProject:       strings.TrimSpace(os.Getenv("INFRACHAT_TICKET_PROJECT")),
		TicketInitialStatus: strings.TrimSpace(os.Getenv("INFRACHAT_TICKET_INITIAL_STATUS")),
		TicketWorkingStatus: strings.TrimSpace(os.Getenv("INFRACHAT_TICKET_WORKING_STATUS")),
		TicketDoneStatus:    strings.TrimSpace(os.Getenv("INFRACHAT_TICKET_DONE_STATUS")),
		TicketPollSchedule:  pollSchedule,

		DefaultTargetFile: targetFile,
		HTTPTimeoutMS:     parseEnvInt("INFRACHAT_HTTP_TIMEOUT_MS", 30000),
	}
}

// TicketingConfigured reports whether the ticket-driven mode can run at all.
func (c Config) TicketingConfigured() bool {
	return c.TicketBaseURL != "" && c.TicketProject != ""
}

func parseEnvBool(key string) bool {
	return strings.EqualFold(strings.TrimSpace(os.Getenv(key)), "true")
}

func parseEnvInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}
