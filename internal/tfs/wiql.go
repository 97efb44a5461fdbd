package tfs

import (
	"context"
	"log/slog"
	"net/url"
	"strconv"
)

type wiqlRequest struct {
	Query string `json:"query"`
}

type workItemRef struct {
	ID int `json:"id"`
}

type workItemLinkRef struct {
	Rel    string       `json:"rel"`
	Source *workItemRef `json:"source"`
	Target *workItemRef `json:"target"`
}

// wiqlResponse covers both result shapes: flat queries fill WorkItems,
// tree and one-hop queries fill WorkItemRelations.
type wiqlResponse struct {
	QueryType         string            `json:"queryType"`
	WorkItems         []workItemRef     `json:"workItems"`
	WorkItemRelations []workItemLinkRef `json:"workItemRelations"`
}

// ids returns the referenced work item ids in encounter order without
// duplicates. For link queries both sides of each relation are included.
func (r *wiqlResponse) ids() []int {
	seen := make(map[int]bool)
	out := make([]int, 0, len(r.WorkItems)+len(r.WorkItemRelations))

	add := func(ref *workItemRef) {
		if ref == nil || ref.ID == 0 || seen[ref.ID] {
			return
		}

		seen[ref.ID] = true
		out = append(out, ref.ID)
	}

	for i := range r.WorkItems {
		add(&r.WorkItems[i])
	}

	for _, rel := range r.WorkItemRelations {
		add(rel.Source)
		add(rel.Target)
	}

	return out
}

// QueryWIQL runs an ad-hoc WIQL query and returns the ids it references.
// project scopes @project macros; empty runs at collection level. top > 0
// caps the number of results server-side.
func (c *Client) QueryWIQL(ctx context.Context, project, wiql string, top int) ([]int, error) {
	c.logger.Info("running WIQL query",
		slog.String("project", project),
		slog.Int("top", top),
	)

	var q url.Values
	if top > 0 {
		q = url.Values{"$top": {strconv.Itoa(top)}}
	}

	var wr wiqlResponse
	if err := c.postJSON(ctx, projectPath(project, "_apis/wit/wiql"), q, wiqlRequest{Query: wiql}, &wr); err != nil {
		return nil, err
	}

	ids := wr.ids()

	c.logger.Debug("WIQL query returned",
		slog.String("query_type", wr.QueryType),
		slog.Int("count", len(ids)),
	)

	return ids, nil
}

// QueryByID runs a saved query by its id and returns the ids it references.
func (c *Client) QueryByID(ctx context.Context, project, queryID string) ([]int, error) {
	c.logger.Info("running saved query",
		slog.String("project", project),
		slog.String("query_id", queryID),
	)

	var wr wiqlResponse
	if _, err := c.getJSON(ctx, projectPath(project, "_apis/wit/wiql/"+url.PathEscape(queryID)), nil, &wr); err != nil {
		return nil, err
	}

	return wr.ids(), nil
}
