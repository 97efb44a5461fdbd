package tfs

import (
	"context"
	"log/slog"
	"net/url"
	"strconv"
	"time"
)

// projectsPageSize is the $top value for project listing.
const projectsPageSize = 100

// continuationHeader carries the paging cursor for project listings.
const continuationHeader = "x-ms-continuationtoken"

type projectResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	State       string `json:"state"`
	LastUpdate  string `json:"lastUpdateTime"`
}

type projectsListResponse struct {
	Count int               `json:"count"`
	Value []projectResponse `json:"value"`
}

func (p *projectResponse) toProject(logger *slog.Logger) Project {
	proj := Project{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		State:       p.State,
	}

	if p.LastUpdate != "" {
		// 0001-01-01 is reported for projects never updated; keep it zero.
		if t, err := time.Parse(time.RFC3339, p.LastUpdate); err == nil && t.Year() >= minValidYear {
			proj.LastUpdated = t.UTC()
		} else if err != nil {
			logger.Debug("unparseable project update time",
				slog.String("project", p.Name),
				slog.String("raw", p.LastUpdate),
			)
		}
	}

	return proj
}

// Projects lists every project in the collection, following continuation
// tokens until the server stops returning one.
func (c *Client) Projects(ctx context.Context) ([]Project, error) {
	c.logger.Info("listing projects")

	var projects []Project

	token := ""
	page := 1

	for {
		q := url.Values{"$top": {strconv.Itoa(projectsPageSize)}}
		if token != "" {
			q.Set("continuationToken", token)
		}

		var pl projectsListResponse

		hdr, err := c.getJSON(ctx, "_apis/projects", q, &pl)
		if err != nil {
			return nil, err
		}

		for i := range pl.Value {
			projects = append(projects, pl.Value[i].toProject(c.logger))
		}

		c.logger.Debug("fetched projects page",
			slog.Int("page", page),
			slog.Int("count", len(pl.Value)),
		)

		next := hdr.Get(continuationHeader)
		if next == "" || next == token || len(pl.Value) == 0 {
			break
		}

		token = next
		page++
	}

	if projects == nil {
		projects = []Project{}
	}

	c.logger.Info("listed projects", slog.Int("count", len(projects)))

	return projects, nil
}
