package jira

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/golovatskygroup/jira-lens/internal/logging"
)

var errHTMLOrRedirect = errors.New("jira api returned html/redirect (likely login page)")

// APIError is a non-2xx Jira response.
type APIError struct {
	Status int
	Body   string
	Hint   string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("Jira API error (%d): %s", e.Status, e.Body)
	if e.Hint != "" {
		msg += "\n" + e.Hint
	}
	return msg
}

// Client talks to one Jira instance.
type Client struct {
	baseURL    string
	apiVersion int
	authHeader string
	pageSize   int
	c          *http.Client
	logger     *slog.Logger
}

type Options struct {
	Client     string
	BaseURL    string
	APIVersion int
	Timeout    time.Duration
	Logger     *slog.Logger
	// HTTPClient replaces the default client; its CheckRedirect is left as is.
	HTTPClient *http.Client
}

// New resolves credentials from the environment and returns a Client.
func New(opts Options) (*Client, error) {
	cfg, err := ResolveConfig(opts.Client, opts.BaseURL, opts.APIVersion)
	if err != nil {
		return nil, err
	}
	return NewWithConfig(cfg, opts), nil
}

// NewWithConfig skips environment resolution.
func NewWithConfig(cfg Config, opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{
			Timeout: timeout,
			// Do not follow redirects automatically. Jira DC commonly redirects /rest/api/3 to login pages.
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		}
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		apiVersion: cfg.APIVersion,
		authHeader: cfg.AuthHeader,
		pageSize:   50,
		c:          hc,
		logger:     logging.OrDiscard(opts.Logger),
	}
}

func (j *Client) BaseURL() string { return j.baseURL }
func (j *Client) APIVersion() int { return j.apiVersion }
func (j *Client) apiBase() string { return j.baseURL + "/rest/api/" + strconv.Itoa(j.apiVersion) }

func looksLikeHTML(b []byte) bool {
	s := strings.TrimSpace(strings.ToLower(string(b)))
	if s == "" {
		return false
	}
	return strings.HasPrefix(s, "<!doctype html") || strings.HasPrefix(s, "<html") || (strings.Contains(s, "<html") && strings.Contains(s, "<body"))
}

func (j *Client) do(ctx context.Context, method string, apiPath string, query url.Values) (int, http.Header, []byte, error) {
	u := j.apiBase() + apiPath
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return 0, nil, nil, err
	}
	req.Header.Set("User-Agent", "jira-lens")
	req.Header.Set("Accept", "application/json")
	if j.authHeader != "" {
		req.Header.Set("Authorization", j.authHeader)
	}

	resp, err := j.c.Do(req)
	if err != nil {
		return 0, nil, nil, err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, resp.Header, nil, err
	}
	ct := strings.ToLower(resp.Header.Get("Content-Type"))
	if resp.StatusCode >= 300 && resp.StatusCode < 400 {
		return resp.StatusCode, resp.Header, b, errHTMLOrRedirect
	}
	if strings.Contains(ct, "text/html") || looksLikeHTML(b) {
		return resp.StatusCode, resp.Header, b, errHTMLOrRedirect
	}
	return resp.StatusCode, resp.Header, b, nil
}

// getJSON performs a GET and returns the body of a 2xx response. A 429 is retried once after
// Retry-After (capped at maxRetryWait).
func (j *Client) getJSON(ctx context.Context, apiPath string, query url.Values) ([]byte, error) {
	for attempt := 0; ; attempt++ {
		status, hdr, body, err := j.do(ctx, http.MethodGet, apiPath, query)
		if err != nil {
			if errors.Is(err, errHTMLOrRedirect) {
				return nil, fmt.Errorf("%w: status=%d location=%s %s", errHTMLOrRedirect, status, hdr.Get("Location"), authHint(status, body))
			}
			return nil, err
		}
		if status == http.StatusTooManyRequests && attempt == 0 {
			wait, ok := parseRetryAfter(hdr)
			if !ok {
				wait = time.Second
			}
			wait = min(wait, maxRetryWait)
			j.logger.Warn("jira rate limited, retrying", "path", apiPath, "wait", wait)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
			continue
		}
		if status < 200 || status >= 300 {
			return nil, &APIError{Status: status, Body: strings.TrimSpace(string(body)), Hint: authHint(status, body)}
		}
		return body, nil
	}
}

const maxRetryWait = 5 * time.Second

func authHint(status int, body []byte) string {
	switch status {
	case http.StatusUnauthorized:
		return "Jira API returned 401. Check auth env vars: (Cloud) JIRA_EMAIL + JIRA_API_TOKEN, (DC/Server) JIRA_PAT, (3LO) JIRA_OAUTH_ACCESS_TOKEN (+ JIRA_CLOUD_ID)."
	case http.StatusForbidden:
		return "Jira API returned 403. Likely missing permissions/scopes for browsing projects."
	case http.StatusTooManyRequests:
		return "Jira API returned 429 (rate limited). Respect Retry-After and retry with backoff."
	default:
		if bytes.Contains(bytes.ToLower(body), []byte("captcha")) {
			return "Jira reported CAPTCHA/authentication denial; interactive login may be required to clear it."
		}
		return ""
	}
}

func parseRetryAfter(h http.Header) (time.Duration, bool) {
	ra := strings.TrimSpace(h.Get("Retry-After"))
	if ra == "" {
		return 0, false
	}
	sec, err := strconv.Atoi(ra)
	if err != nil || sec <= 0 {
		return 0, false
	}
	return time.Duration(sec) * time.Second, true
}
