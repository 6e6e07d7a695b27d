package jira

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/golovatskygroup/jira-lens/internal/catalog"
)

type projectDTO struct {
	ID          string `json:"id,omitempty"`
	Key         string `json:"key"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Archived    bool   `json:"archived,omitempty"`
}

// projectPage is the body of GET /rest/api/3/project/search.
type projectPage struct {
	StartAt    int          `json:"startAt"`
	MaxResults int          `json:"maxResults"`
	Total      int          `json:"total"`
	IsLast     *bool        `json:"isLast,omitempty"`
	Values     []projectDTO `json:"values"`
}

// maxPages stops a misbehaving server that never reports the last page.
const maxPages = 200

var _ catalog.Fetcher = (*Client)(nil)

// FetchProjects lists every project visible to the account. Cloud (v3) is paginated through
// /project/search; Server/Data Center (v2) returns everything from /project.
func (j *Client) FetchProjects(ctx context.Context) ([]catalog.Project, error) {
	var dtos []projectDTO
	var err error
	if j.apiVersion == 3 {
		dtos, err = j.fetchProjectPages(ctx)
	} else {
		dtos, err = j.fetchProjectList(ctx)
	}
	if err != nil {
		return nil, err
	}

	out := make([]catalog.Project, 0, len(dtos))
	for _, d := range dtos {
		if d.Key == "" || d.Archived {
			continue
		}
		out = append(out, catalog.Project{
			Key:         d.Key,
			Name:        d.Name,
			Description: plainText(d.Description, maxDescriptionRunes),
		})
	}
	j.logger.Debug("jira projects fetched", "count", len(out), "api_version", j.apiVersion)
	return out, nil
}

func (j *Client) fetchProjectList(ctx context.Context) ([]projectDTO, error) {
	q := url.Values{}
	q.Set("expand", "description")
	body, err := j.getJSON(ctx, "/project", q)
	if err != nil {
		return nil, err
	}
	var dtos []projectDTO
	if err := json.Unmarshal(body, &dtos); err != nil {
		return nil, fmt.Errorf("decode /project: %w", err)
	}
	return dtos, nil
}

func (j *Client) fetchProjectPages(ctx context.Context) ([]projectDTO, error) {
	var all []projectDTO
	startAt := 0
	for page := 0; page < maxPages; page++ {
		q := url.Values{}
		q.Set("startAt", strconv.Itoa(startAt))
		q.Set("maxResults", strconv.Itoa(j.pageSize))
		q.Set("orderBy", "key")
		q.Set("expand", "description")

		body, err := j.getJSON(ctx, "/project/search", q)
		if err != nil {
			return nil, err
		}
		var p projectPage
		if err := json.Unmarshal(body, &p); err != nil {
			return nil, fmt.Errorf("decode /project/search: %w", err)
		}
		all = append(all, p.Values...)

		if len(p.Values) == 0 {
			return all, nil
		}
		if p.IsLast != nil {
			if *p.IsLast {
				return all, nil
			}
		} else if p.Total > 0 && startAt+len(p.Values) >= p.Total {
			return all, nil
		}
		startAt += len(p.Values)
	}
	return nil, fmt.Errorf("jira project search did not finish after %d pages", maxPages)
}
