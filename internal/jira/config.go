// Package jira fetches the project catalog from the Jira REST API (Cloud v3 or Server/Data
// Center v2).
package jira

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Config is a resolved Jira endpoint plus the Authorization header to send.
type Config struct {
	BaseURL    string
	APIVersion int
	AuthHeader string
}

// clientEntry is one named instance in JIRA_CLIENTS_JSON.
type clientEntry struct {
	BaseURL          string `json:"base_url,omitempty"`
	APIVersion       int    `json:"api_version,omitempty"` // 2 or 3
	PAT              string `json:"pat,omitempty"`
	BearerToken      string `json:"bearer_token,omitempty"`
	Email            string `json:"email,omitempty"`
	APIToken         string `json:"api_token,omitempty"`
	OAuthAccessToken string `json:"oauth_access_token,omitempty"`
	CloudID          string `json:"cloud_id,omitempty"`
}

// credentials reads a setting from the process environment first and from the selected
// JIRA_CLIENTS_JSON entry second.
type credentials struct {
	name  string
	entry *clientEntry
}

func (c credentials) get(env string, field func(*clientEntry) string) string {
	if v := strings.TrimSpace(os.Getenv(env)); v != "" {
		return v
	}
	if c.entry == nil {
		return ""
	}
	return strings.TrimSpace(field(c.entry))
}

func lookupClient(name string) (credentials, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = strings.TrimSpace(os.Getenv("JIRA_DEFAULT_CLIENT"))
	}
	creds := credentials{name: name}
	raw := strings.TrimSpace(os.Getenv("JIRA_CLIENTS_JSON"))
	if raw == "" {
		return creds, nil
	}
	var clients map[string]clientEntry
	if err := json.Unmarshal([]byte(raw), &clients); err != nil {
		return creds, fmt.Errorf("parse JIRA_CLIENTS_JSON: %w", err)
	}
	if e, ok := clients[name]; ok && name != "" {
		creds.entry = &e
	}
	return creds, nil
}

// ResolveConfig picks the Jira instance the project catalog is read from. clientName selects an
// entry of JIRA_CLIENTS_JSON (JIRA_DEFAULT_CLIENT when empty). The entry's base_url wins over
// JIRA_BASE_URL while credentials in the environment win over the entry's. baseOverride and
// apiVersion win over both.
func ResolveConfig(clientName string, baseOverride string, apiVersion int) (Config, error) {
	creds, err := lookupClient(clientName)
	if err != nil {
		return Config{}, err
	}
	if creds.name != "" && creds.entry == nil && strings.TrimSpace(os.Getenv("JIRA_CLIENTS_JSON")) != "" {
		return Config{}, fmt.Errorf("unknown Jira client %q: no such entry in JIRA_CLIENTS_JSON", creds.name)
	}

	oauth := creds.get("JIRA_OAUTH_ACCESS_TOKEN", func(e *clientEntry) string { return e.OAuthAccessToken })
	baseURL := strings.TrimSpace(baseOverride)
	if baseURL == "" && creds.entry != nil {
		baseURL = strings.TrimSpace(creds.entry.BaseURL)
	}
	if baseURL == "" {
		baseURL = strings.TrimSpace(os.Getenv("JIRA_BASE_URL"))
	}
	if baseURL == "" && oauth != "" {
		// 3LO tokens address the site through the gateway.
		if id := creds.get("JIRA_CLOUD_ID", func(e *clientEntry) string { return e.CloudID }); id != "" {
			baseURL = "https://api.atlassian.com/ex/jira/" + id
		}
	}
	if baseURL == "" {
		return Config{}, fmt.Errorf("missing Jira base URL for the project catalog: set JIRA_BASE_URL or jira.base_url, select a JIRA_CLIENTS_JSON entry, or set JIRA_OAUTH_ACCESS_TOKEN with JIRA_CLOUD_ID")
	}
	cfg := Config{BaseURL: strings.TrimRight(baseURL, "/"), APIVersion: apiVersion}

	if cfg.APIVersion == 0 && creds.entry != nil {
		cfg.APIVersion = creds.entry.APIVersion
	}
	if cfg.APIVersion == 0 {
		// Server/Data Center often answers /rest/api/3 with a login page.
		cfg.APIVersion = 2
		if isCloudBaseURL(cfg.BaseURL) {
			cfg.APIVersion = 3
		}
	}
	if cfg.APIVersion != 2 && cfg.APIVersion != 3 {
		return Config{}, fmt.Errorf("unsupported Jira api_version %d: use 2 (Server/Data Center) or 3 (Cloud)", cfg.APIVersion)
	}

	cfg.AuthHeader = authHeader(creds, oauth)
	if cfg.AuthHeader == "" {
		if creds.entry != nil {
			return Config{}, fmt.Errorf("missing Jira auth for client %q: its JIRA_CLIENTS_JSON entry needs pat, bearer_token, email with api_token, or oauth_access_token", creds.name)
		}
		return Config{}, fmt.Errorf("missing Jira auth for the project catalog: set JIRA_PAT (Server/Data Center), JIRA_EMAIL with JIRA_API_TOKEN (Cloud), or JIRA_BEARER_TOKEN")
	}
	return cfg, nil
}

// authHeader prefers a token (OAuth, bearer, then PAT) over basic auth.
func authHeader(creds credentials, oauth string) string {
	token := oauth
	if token == "" {
		token = creds.get("JIRA_BEARER_TOKEN", func(e *clientEntry) string { return e.BearerToken })
	}
	if token == "" {
		token = creds.get("JIRA_PAT", func(e *clientEntry) string { return e.PAT })
	}
	if token != "" {
		return "Bearer " + token
	}

	email := creds.get("JIRA_EMAIL", func(e *clientEntry) string { return e.Email })
	apiToken := creds.get("JIRA_API_TOKEN", func(e *clientEntry) string { return e.APIToken })
	if email == "" || apiToken == "" {
		return ""
	}
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(email+":"+apiToken))
}

func isCloudBaseURL(baseURL string) bool {
	u := strings.ToLower(strings.TrimSpace(baseURL))
	return strings.Contains(u, ".atlassian.net") || strings.HasPrefix(u, "https://api.atlassian.com/ex/jira/")
}
