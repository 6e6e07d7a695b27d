package jira

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearJiraEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"JIRA_BASE_URL", "JIRA_PAT", "JIRA_EMAIL", "JIRA_API_TOKEN", "JIRA_BEARER_TOKEN",
		"JIRA_OAUTH_ACCESS_TOKEN", "JIRA_CLOUD_ID", "JIRA_CLIENTS_JSON", "JIRA_DEFAULT_CLIENT",
	} {
		t.Setenv(k, "")
	}
}

func TestResolveConfigPAT(t *testing.T) {
	clearJiraEnv(t)
	t.Setenv("JIRA_BASE_URL", "https://jira.example.com/")
	t.Setenv("JIRA_PAT", "pat-1")

	cfg, err := ResolveConfig("", "", 0)
	require.NoError(t, err)
	assert.Equal(t, "https://jira.example.com", cfg.BaseURL)
	assert.Equal(t, 2, cfg.APIVersion)
	assert.Equal(t, "Bearer pat-1", cfg.AuthHeader)
}

func TestResolveConfigCloudBasicAuth(t *testing.T) {
	clearJiraEnv(t)
	t.Setenv("JIRA_BASE_URL", "https://acme.atlassian.net")
	t.Setenv("JIRA_EMAIL", "me@acme.io")
	t.Setenv("JIRA_API_TOKEN", "tok")

	cfg, err := ResolveConfig("", "", 0)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.APIVersion)
	assert.Equal(t, "Basic "+base64.StdEncoding.EncodeToString([]byte("me@acme.io:tok")), cfg.AuthHeader)
}

func TestResolveConfigNamedClient(t *testing.T) {
	clearJiraEnv(t)
	t.Setenv("JIRA_CLIENTS_JSON", `{"dc":{"base_url":"https://dc.example.com","api_version":2,"pat":"p"},"cloud":{"cloud_id":"abc","oauth_access_token":"o"}}`)
	t.Setenv("JIRA_DEFAULT_CLIENT", "cloud")

	cfg, err := ResolveConfig("", "", 0)
	require.NoError(t, err)
	assert.Equal(t, "https://api.atlassian.com/ex/jira/abc", cfg.BaseURL)
	assert.Equal(t, 3, cfg.APIVersion)
	assert.Equal(t, "Bearer o", cfg.AuthHeader)

	cfg, err = ResolveConfig("dc", "", 0)
	require.NoError(t, err)
	assert.Equal(t, "https://dc.example.com", cfg.BaseURL)
	assert.Equal(t, "Bearer p", cfg.AuthHeader)

	t.Setenv("JIRA_PAT", "env-pat")
	t.Setenv("JIRA_BASE_URL", "https://other.example.com")
	cfg, err = ResolveConfig("dc", "", 0)
	require.NoError(t, err)
	assert.Equal(t, "https://dc.example.com", cfg.BaseURL)
	assert.Equal(t, "Bearer env-pat", cfg.AuthHeader)

	_, err = ResolveConfig("nope", "", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown Jira client")

	t.Setenv("JIRA_CLIENTS_JSON", `{"dc":`)
	_, err = ResolveConfig("dc", "", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse JIRA_CLIENTS_JSON")
}

func TestResolveConfigErrors(t *testing.T) {
	clearJiraEnv(t)
	_, err := ResolveConfig("", "", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing Jira base URL")

	t.Setenv("JIRA_BASE_URL", "https://jira.example.com")
	_, err = ResolveConfig("", "", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing Jira auth")

	t.Setenv("JIRA_PAT", "x")
	_, err = ResolveConfig("", "", 4)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported Jira api_version 4")
}

func TestFetchProjectsV2(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/api/2/project", r.URL.Path)
		assert.Equal(t, "description", r.URL.Query().Get("expand"))
		assert.Equal(t, "Bearer t", r.Header.Get("Authorization"))
		assert.Equal(t, "jira-lens", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"id":"1","key":"AIT","name":"AITECH","description":"<p>AI <b>tech</b>nology</p><p>team</p>"},
			{"id":"2","key":"OLD","name":"Old","archived":true},
			{"id":"3","key":"","name":"broken"},
			{"id":"4","key":"HR","name":"People"}
		]`))
	}))
	defer srv.Close()

	c := NewWithConfig(Config{BaseURL: srv.URL, APIVersion: 2, AuthHeader: "Bearer t"}, Options{})
	projects, err := c.FetchProjects(context.Background())
	require.NoError(t, err)
	require.Len(t, projects, 2)
	assert.Equal(t, "AIT", projects[0].Key)
	assert.Equal(t, "AI technology team", projects[0].Description)
	assert.Equal(t, "HR", projects[1].Key)
}

func TestFetchProjectsV3Paginates(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/rest/api/3/project/search", r.URL.Path)
		startAt, _ := strconv.Atoi(r.URL.Query().Get("startAt"))
		w.Header().Set("Content-Type", "application/json")
		switch startAt {
		case 0:
			_, _ = w.Write([]byte(`{"startAt":0,"maxResults":2,"total":3,"isLast":false,"values":[{"key":"A","name":"Alpha"},{"key":"B","name":"Beta"}]}`))
		case 2:
			_, _ = w.Write([]byte(`{"startAt":2,"maxResults":2,"total":3,"isLast":true,"values":[{"key":"C","name":"Gamma"}]}`))
		default:
			t.Errorf("unexpected startAt %d", startAt)
		}
	}))
	defer srv.Close()

	c := NewWithConfig(Config{BaseURL: srv.URL, APIVersion: 3}, Options{})
	c.pageSize = 2
	projects, err := c.FetchProjects(context.Background())
	require.NoError(t, err)
	require.Len(t, projects, 3)
	assert.Equal(t, "C", projects[2].Key)
	assert.Equal(t, int32(2), calls.Load())
}

func TestFetchProjectsV3TotalWithoutIsLast(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"startAt":0,"maxResults":50,"total":1,"values":[{"key":"A","name":"Alpha"}]}`))
	}))
	defer srv.Close()

	c := NewWithConfig(Config{BaseURL: srv.URL, APIVersion: 3}, Options{})
	projects, err := c.FetchProjects(context.Background())
	require.NoError(t, err)
	assert.Len(t, projects, 1)
}

func TestFetchProjectsLoginPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<!DOCTYPE html><html><body>login</body></html>"))
	}))
	defer srv.Close()

	c := NewWithConfig(Config{BaseURL: srv.URL, APIVersion: 2}, Options{})
	_, err := c.FetchProjects(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errHTMLOrRedirect))
}

func TestFetchProjectsRedirectNotFollowed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/login.jsp", http.StatusFound)
	}))
	defer srv.Close()

	c := NewWithConfig(Config{BaseURL: srv.URL, APIVersion: 2}, Options{})
	_, err := c.FetchProjects(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errHTMLOrRedirect)
	assert.Contains(t, err.Error(), "/login.jsp")
}

func TestFetchProjectsUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"errorMessages":["nope"]}`))
	}))
	defer srv.Close()

	c := NewWithConfig(Config{BaseURL: srv.URL, APIVersion: 2}, Options{})
	_, err := c.FetchProjects(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Contains(t, apiErr.Hint, "JIRA_PAT")
}

func TestFetchProjectsRetriesRateLimitOnce(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{}`))
			return
		}
		_, _ = w.Write([]byte(`[{"key":"A","name":"Alpha"}]`))
	}))
	defer srv.Close()

	c := NewWithConfig(Config{BaseURL: srv.URL, APIVersion: 2}, Options{})
	projects, err := c.FetchProjects(context.Background())
	require.NoError(t, err)
	assert.Len(t, projects, 1)
	assert.Equal(t, int32(2), calls.Load())
}

func TestPlainText(t *testing.T) {
	assert.Equal(t, "", plainText("   ", 10))
	assert.Equal(t, "one two", plainText(" one\n\t two ", 0))
	assert.Equal(t, "Head body", plainText("<h1>Head</h1><script>x()</script><div>body</div>", 0))
	assert.Equal(t, "abc", plainText("abcdef", 3))
	assert.Equal(t, "a < b", plainText("a < b", 0))
}

func TestParseRetryAfter(t *testing.T) {
	h := http.Header{}
	_, ok := parseRetryAfter(h)
	assert.False(t, ok)
	h.Set("Retry-After", "7")
	d, ok := parseRetryAfter(h)
	assert.True(t, ok)
	assert.Equal(t, "7s", d.String())
}
