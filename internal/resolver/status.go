package resolver

import "time"

type Status struct {
	Projects           int            `json:"projects"`
	CatalogFetchedAt   *time.Time     `json:"catalog_fetched_at,omitempty"`
	CatalogExpiresAt   *time.Time     `json:"catalog_expires_at,omitempty"`
	CatalogStale       bool           `json:"catalog_stale"`
	SemanticConfigured bool           `json:"semantic_configured"`
	SemanticActive     bool           `json:"semantic_active"`
	DisabledReason     string         `json:"disabled_reason,omitempty"`
	Model              string         `json:"model,omitempty"`
	IndexRecords       int            `json:"index_records"`
	IndexProjects      int            `json:"index_projects"`
	TokensUsed         int64          `json:"tokens_used"`
	LastRefresh        *time.Time     `json:"last_refresh,omitempty"`
	NextRefreshIn      time.Duration  `json:"next_refresh_in"`
	LastReport         *RefreshReport `json:"last_report,omitempty"`
}

// Status summarizes the catalog and index without touching upstream.
func (r *Resolver) Status() Status {
	st := Status{
		SemanticConfigured: r.SemanticConfigured(),
		SemanticActive:     r.SemanticActive(),
		NextRefreshIn:      r.scheduler.TimeToNextUpdate(),
		LastReport:         r.lastReport.Load(),
	}
	if snap := r.catalog.Peek(); snap != nil {
		fetched, expires := snap.FetchedAt, snap.ExpiresAt
		st.Projects = snap.Len()
		st.CatalogFetchedAt = &fetched
		st.CatalogExpiresAt = &expires
		st.CatalogStale = snap.Expired(time.Now())
	}
	if reason := r.disabledReason.Load(); reason != nil && !st.SemanticActive {
		st.DisabledReason = *reason
	}
	if last := r.scheduler.LastUpdate(); !last.IsZero() {
		st.LastRefresh = &last
	}
	if r.SemanticConfigured() {
		st.Model = r.embedder.Model()
		st.TokensUsed = r.embedder.TokensUsed()
		st.IndexRecords = r.index.Len()
		st.IndexProjects = len(r.index.Keys())
	}
	return st
}

// Close waits for background refreshes started by Search.
func (r *Resolver) Close() {
	r.bg.Wait()
}
