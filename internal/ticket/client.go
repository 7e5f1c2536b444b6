// Package ticket is the ticketing collaborator: a Jira-style REST client
// used by the ticket-driven workflow mode to list tickets in the designated
// initial status, move them through their lifecycle, and attach comments.
package ticket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"infrachat/gateway/internal/domain"
)

const (
	defaultTimeout   = 10 * time.Second
	maxResponseBytes = 4 * 1024 * 1024
)

type Config struct {
	BaseURL    string
	Email      string
	APIToken   string
	ProjectKey string
	TimeoutMS  int
}

type Client struct {
	cfg        Config
	httpClient *http.Client
}

func New(cfg Config) *Client {
	timeout := defaultTimeout
	if cfg.TimeoutMS > 0 {
		timeout = time.Duration(cfg.TimeoutMS) * time.Millisecond
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type searchResponse struct {
	Issues []struct {
		ID     string `json:"id"`
		Key    string `json:"key"`
		Fields struct {
			Summary     string `json:"summary"`
			Description string `json:"description"`
			Status      struct {
				Name string `json:"name"`
			} `json:"status"`
		} `json:"fields"`
	} `json:"issues"`
}

// ListTickets returns tickets of the configured project currently in the
// given status.
func (c *Client) ListTickets(ctx context.Context, status string) ([]domain.TicketRef, error) {
	jql := fmt.Sprintf("project = %q AND status = %q ORDER BY created ASC", c.cfg.ProjectKey, status)
	endpoint := c.endpoint("/rest/api/2/search") + "?jql=" + url.QueryEscape(jql)

	respStatus, body, err := c.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	if respStatus != http.StatusOK {
		return nil, fmt.Errorf("list tickets: ticketing returned status %d", respStatus)
	}

	var search searchResponse
	if err := json.Unmarshal(body, &search); err != nil {
		return nil, fmt.Errorf("list tickets: decode response: %w", err)
	}
	tickets := make([]domain.TicketRef, 0, len(search.Issues))
	for _, issue := range search.Issues {
		tickets = append(tickets, domain.TicketRef{
			ID:          issue.ID,
			Key:         issue.Key,
			Status:      issue.Fields.Status.Name,
			Summary:     issue.Fields.Summary,
			Description: issue.Fields.Description,
		})
	}
	return tickets, nil
}

// Transition moves a ticket to newStatus. The transition id is resolved by
// name from the ticket's currently available transitions.
func (c *Client) Transition(ctx context.Context, ticketID, newStatus string) error {
	endpoint := c.endpoint("/rest/api/2/issue/" + url.PathEscape(ticketID) + "/transitions")

	status, body, err := c.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("list transitions for %s: %w", ticketID, err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("list transitions for %s: ticketing returned status %d", ticketID, status)
	}

	var transitions struct {
		Transitions []struct {
			ID string `json:"id"`
			To struct {
				Name string `json:"name"`
			} `json:"to"`
		} `json:"transitions"`
	}
	if err := json.Unmarshal(body, &transitions); err != nil {
		return fmt.Errorf("list transitions for %s: decode response: %w", ticketID, err)
	}

	transitionID := ""
	for _, tr := range transitions.Transitions {
		if strings.EqualFold(strings.TrimSpace(tr.To.Name), strings.TrimSpace(newStatus)) {
			transitionID = tr.ID
			break
		}
	}
	if transitionID == "" {
		return fmt.Errorf("transition %s to %q: no matching transition available", ticketID, newStatus)
	}

	payload := map[string]interface{}{
		"transition": map[string]string{"id": transitionID},
	}
	status, _, err = c.do(ctx, http.MethodPost, endpoint, payload)
	if err != nil {
		return fmt.Errorf("transition %s: %w", ticketID, err)
	}
	if status != http.StatusNoContent && status != http.StatusOK {
		return fmt.Errorf("transition %s: ticketing returned status %d", ticketID, status)
	}
	return nil
}

// Comment attaches a text comment to a ticket.
func (c *Client) Comment(ctx context.Context, ticketID, text string) error {
	endpoint := c.endpoint("/rest/api/2/issue/" + url.PathEscape(ticketID) + "/comment")
	payload := map[string]string{"body": text}

	status, _, err := c.do(ctx, http.MethodPost, endpoint, payload)
	if err != nil {
		return fmt.Errorf("comment on %s: %w", ticketID, err)
	}
	if status != http.StatusCreated && status != http.StatusOK {
		return fmt.Errorf("comment on %s: ticketing returned status %d", ticketID, status)
	}
	return nil
}

func (c *Client) endpoint(path string) string {
	return strings.TrimRight(c.cfg.BaseURL, "/") + path
}

func (c *Client) do(ctx context.Context, method, endpoint string, payload interface{}) (int, []byte, error) {
	var reqBody io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	if c.cfg.Email != "" || c.cfg.APIToken != "" {
		req.SetBasicAuth(c.cfg.Email, c.cfg.APIToken)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return 0, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, body, nil
}
