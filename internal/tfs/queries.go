package tfs

import (
	"context"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
)

// maxQueryDepth is the deepest $depth the server accepts in one request.
const maxQueryDepth = 2

type queryItemResponse struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Path        string              `json:"path"`
	IsFolder    bool                `json:"isFolder"`
	HasChildren bool                `json:"hasChildren"`
	QueryType   string              `json:"queryType"`
	WIQL        string              `json:"wiql"`
	Children    []queryItemResponse `json:"children"`
}

type queryListResponse struct {
	Count int                 `json:"count"`
	Value []queryItemResponse `json:"value"`
}

func (q *queryItemResponse) toQueryItem() QueryItem {
	item := QueryItem{
		ID:          q.ID,
		Name:        q.Name,
		Path:        q.Path,
		IsFolder:    q.IsFolder,
		HasChildren: q.HasChildren,
		QueryType:   q.QueryType,
		WIQL:        q.WIQL,
	}

	if len(q.Children) > 0 {
		item.Children = make([]QueryItem, 0, len(q.Children))
		for i := range q.Children {
			item.Children = append(item.Children, q.Children[i].toQueryItem())
		}
	}

	return item
}

func hierarchyQuery() url.Values {
	return url.Values{
		"$depth":  {strconv.Itoa(maxQueryDepth)},
		"$expand": {"wiql"},
	}
}

// QueryHierarchy returns the root folders of a project's query hierarchy
// (typically "My Queries" and "Shared Queries") with up to two levels of
// children. Use ExpandFolder to load deeper levels.
func (c *Client) QueryHierarchy(ctx context.Context, project string) ([]QueryItem, error) {
	c.logger.Info("fetching query hierarchy", slog.String("project", project))

	var ql queryListResponse
	if _, err := c.getJSON(ctx, projectPath(project, "_apis/wit/queries"), hierarchyQuery(), &ql); err != nil {
		return nil, err
	}

	roots := make([]QueryItem, 0, len(ql.Value))
	for i := range ql.Value {
		roots = append(roots, ql.Value[i].toQueryItem())
	}

	return roots, nil
}

// QueryItem fetches a folder or query by id or by slash-separated path
// (e.g. "Shared Queries/Team/Active Bugs").
func (c *Client) QueryItem(ctx context.Context, project, pathOrID string) (*QueryItem, error) {
	c.logger.Debug("fetching query item",
		slog.String("project", project),
		slog.String("path", pathOrID),
	)

	var qr queryItemResponse

	apiPath := projectPath(project, "_apis/wit/queries/"+encodePathSegments(pathOrID))
	if _, err := c.getJSON(ctx, apiPath, hierarchyQuery(), &qr); err != nil {
		return nil, err
	}

	item := qr.toQueryItem()

	return &item, nil
}

// ExpandFolder returns item with every descendant loaded. The server stops
// at maxQueryDepth levels per request, leaving folders that report
// HasChildren with no Children; those are refetched by id until the tree is
// complete. Non-folders are returned unchanged.
func (c *Client) ExpandFolder(ctx context.Context, project string, item QueryItem) (QueryItem, error) {
	if !item.IsFolder {
		return item, nil
	}

	if item.HasChildren && len(item.Children) == 0 {
		fetched, err := c.QueryItem(ctx, project, item.ID)
		if err != nil {
			return QueryItem{}, err
		}

		item.Children = fetched.Children
	}

	children := make([]QueryItem, 0, len(item.Children))

	for i := range item.Children {
		expanded, err := c.ExpandFolder(ctx, project, item.Children[i])
		if err != nil {
			return QueryItem{}, err
		}

		children = append(children, expanded)
	}

	item.Children = children

	return item, nil
}

// encodePathSegments URL-encodes each segment of a slash-separated path so
// names containing #, ?, % or spaces survive interpolation into the URL.
func encodePathSegments(path string) string {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}

	return strings.Join(segments, "/")
}
