// Package gitops is the version control collaborator: it fetches current
// file content from the base branch and publishes a finished PatchSet as a
// new branch plus pull request through a GitHub-style REST API.
package gitops

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"

	"infrachat/gateway/internal/domain"
	"infrachat/gateway/internal/service/ports"
)

const (
	defaultTimeout   = 15 * time.Second
	maxResponseBytes = 4 * 1024 * 1024
)

// PublishError is surfaced to the reviewer when branch, commit, or PR
// creation fails; the session stays in AwaitingApproval so the approval can
// be retried.
type PublishError struct {
	Step string
	Err  error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish %s: %v", e.Step, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }

type Config struct {
	BaseURL    string
	Token      string
	Owner      string
	Repo       string
	BaseBranch string
	TimeoutMS  int
}

type Client struct {
	cfg        Config
	httpClient *http.Client
	now        func() time.Time
}

func New(cfg Config) *Client {
	timeout := defaultTimeout
	if cfg.TimeoutMS > 0 {
		timeout = time.Duration(cfg.TimeoutMS) * time.Millisecond
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = "https://api.github.com"
	}
	if strings.TrimSpace(cfg.BaseBranch) == "" {
		cfg.BaseBranch = domain.DefaultBaseBranch
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (c *Client) repoPath(format string, args ...interface{}) string {
	return strings.TrimRight(c.cfg.BaseURL, "/") +
		fmt.Sprintf("/repos/%s/%s", c.cfg.Owner, c.cfg.Repo) +
		fmt.Sprintf(format, args...)
}

type contentsResponse struct {
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
	SHA      string `json:"sha"`
}

// FetchFile returns the content of path on the base branch. A missing file
// is reported as ports.ErrFileNotFound so the patcher can fall back to
// creating it.
func (c *Client) FetchFile(ctx context.Context, path string) (string, error) {
	endpoint := c.repoPath("/contents/%s", escapePath(path)) + "?ref=" + url.QueryEscape(c.cfg.BaseBranch)
	status, body, err := c.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", path, err)
	}
	if status == http.StatusNotFound {
		return "", fmt.Errorf("fetch %s: %w", path, ports.ErrFileNotFound)
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("fetch %s: repository returned status %d", path, status)
	}

	var contents contentsResponse
	if err := json.Unmarshal(body, &contents); err != nil {
		return "", fmt.Errorf("fetch %s: decode response: %w", path, err)
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(contents.Content, "\n", ""))
	if err != nil {
		return "", fmt.Errorf("fetch %s: decode content: %w", path, err)
	}
	return string(decoded), nil
}

// Publish creates a branch from the base branch head, commits every file of
// the PatchSet onto it, and opens a pull request. The branch name is derived
// from branchHint plus a timestamp so retries never collide with a branch a
// previous failed attempt may have left behind.
func (c *Client) Publish(ctx context.Context, branchHint string, files map[string]string, summary string) (domain.PublishResult, error) {
	branch := c.branchName(branchHint)

	baseSHA, err := c.baseBranchSHA(ctx)
	if err != nil {
		return domain.PublishResult{}, &PublishError{Step: "resolve base branch", Err: err}
	}
	if err := c.createBranch(ctx, branch, baseSHA); err != nil {
		return domain.PublishResult{}, &PublishError{Step: "create branch", Err: err}
	}

	message := strings.TrimSpace(summary)
	if message == "" {
		message = "Apply infrastructure change"
	}
	for _, path := range sortedPaths(files) {
		if err := c.commitFile(ctx, branch, path, files[path], message); err != nil {
			return domain.PublishResult{}, &PublishError{Step: fmt.Sprintf("commit %s", path), Err: err}
		}
	}

	prURL, err := c.openPullRequest(ctx, branch, message)
	if err != nil {
		return domain.PublishResult{}, &PublishError{Step: "open pull request", Err: err}
	}
	return domain.PublishResult{
		BranchURL: fmt.Sprintf("%s/%s/%s/tree/%s", webBaseURL(c.cfg.BaseURL), c.cfg.Owner, c.cfg.Repo, branch),
		PRURL:     prURL,
	}, nil
}

var branchSanitizer = regexp.MustCompile(`[^a-z0-9-]+`)

func (c *Client) branchName(hint string) string {
	slug := branchSanitizer.ReplaceAllString(strings.ToLower(strings.TrimSpace(hint)), "-")
	slug = strings.Trim(slug, "-")
	if slug == "" {
		slug = domain.BranchHintFallback
	}
	if len(slug) > 40 {
		slug = slug[:40]
	}
	return fmt.Sprintf("%s-%s", slug, c.now().Format("20060102-150405"))
}

func (c *Client) baseBranchSHA(ctx context.Context) (string, error) {
	endpoint := c.repoPath("/git/ref/heads/%s", c.cfg.BaseBranch)
	status, body, err := c.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("repository returned status %d", status)
	}
	var ref struct {
		Object struct {
			SHA string `json:"sha"`
		} `json:"object"`
	}
	if err := json.Unmarshal(body, &ref); err != nil {
		return "", fmt.Errorf("decode ref response: %w", err)
	}
	if ref.Object.SHA == "" {
		return "", fmt.Errorf("ref response has no object sha")
	}
	return ref.Object.SHA, nil
}

func (c *Client) createBranch(ctx context.Context, branch, sha string) error {
	payload := map[string]string{
		"ref": "refs/heads/" + branch,
		"sha": sha,
	}
	status, body, err := c.do(ctx, http.MethodPost, c.repoPath("/git/refs"), payload)
	if err != nil {
		return err
	}
	if status != http.StatusCreated {
		return fmt.Errorf("repository returned status %d: %s", status, truncate(body))
	}
	return nil
}

func (c *Client) commitFile(ctx context.Context, branch, path, content, message string) error {
	payload := map[string]string{
		"message": message,
		"content": base64.StdEncoding.EncodeToString([]byte(content)),
		"branch":  branch,
	}
	// Updating an existing file needs its current blob sha on the branch.
	if sha, ok, err := c.fileSHA(ctx, branch, path); err != nil {
		return err
	} else if ok {
		payload["sha"] = sha
	}

	endpoint := c.repoPath("/contents/%s", escapePath(path))
	status, body, err := c.do(ctx, http.MethodPut, endpoint, payload)
	if err != nil {
		return err
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return fmt.Errorf("repository returned status %d: %s", status, truncate(body))
	}
	return nil
}

func (c *Client) fileSHA(ctx context.Context, branch, path string) (string, bool, error) {
	endpoint := c.repoPath("/contents/%s", escapePath(path)) + "?ref=" + url.QueryEscape(branch)
	status, body, err := c.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", false, err
	}
	if status == http.StatusNotFound {
		return "", false, nil
	}
	if status != http.StatusOK {
		return "", false, fmt.Errorf("repository returned status %d", status)
	}
	var contents contentsResponse
	if err := json.Unmarshal(body, &contents); err != nil {
		return "", false, fmt.Errorf("decode contents response: %w", err)
	}
	return contents.SHA, contents.SHA != "", nil
}

func (c *Client) openPullRequest(ctx context.Context, branch, title string) (string, error) {
	payload := map[string]string{
		"title": title,
		"head":  branch,
		"base":  c.cfg.BaseBranch,
		"body":  "Automated infrastructure change awaiting merge review.",
	}
	status, body, err := c.do(ctx, http.MethodPost, c.repoPath("/pulls"), payload)
	if err != nil {
		return "", err
	}
	if status != http.StatusCreated {
		return "", fmt.Errorf("repository returned status %d: %s", status, truncate(body))
	}
	var pr struct {
		HTMLURL string `json:"html_url"`
	}
	if err := json.Unmarshal(body, &pr); err != nil {
		return "", fmt.Errorf("decode pull request response: %w", err)
	}
	return pr.HTMLURL, nil
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
	req.Header.Set("Accept", "application/vnd.github+json")
	if token := strings.TrimSpace(c.cfg.Token); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
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

func escapePath(path string) string {
	parts := strings.Split(strings.TrimPrefix(path, "/"), "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}

func webBaseURL(apiBase string) string {
	if strings.Contains(apiBase, "api.github.com") {
		return "https://github.com"
	}
	return strings.TrimRight(apiBase, "/")
}

func sortedPaths(files map[string]string) []string {
	paths := make([]string, 0, len(files))
	for path := range files {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

func truncate(body []byte) string {
	const limit = 200
	s := strings.TrimSpace(string(body))
	if len(s) > limit {
		return s[:limit] + "…"
	}
	return s
}
