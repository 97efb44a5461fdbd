// Package workitems is the query façade over a TFS / Azure DevOps
// collection. An Extractor holds one authenticated session and adapts REST
// results into Summary values. Every failure is returned as *Error carrying
// a fixed hint and the underlying cause.
package workitems

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/tonimelisma/workitems-go/internal/tfs"
)

// Store is the REST surface the façade needs. *tfs.Client satisfies it.
type Store interface {
	EnsureAuthenticated(ctx context.Context) (*tfs.Connection, error)
	WorkItem(ctx context.Context, id int) (*tfs.WorkItem, error)
	WorkItemsBatch(ctx context.Context, ids []int, fields []string) ([]tfs.WorkItem, error)
	QueryWIQL(ctx context.Context, project, wiql string, top int) ([]int, error)
	QueryByID(ctx context.Context, project, queryID string) ([]int, error)
	Projects(ctx context.Context) ([]tfs.Project, error)
	QueryHierarchy(ctx context.Context, project string) ([]tfs.QueryItem, error)
	ExpandFolder(ctx context.Context, project string, item tfs.QueryItem) (tfs.QueryItem, error)
}

// Dialer builds an unauthenticated-but-configured Store for a server URL.
type Dialer interface {
	Dial(ctx context.Context, serverURL string, creds Credentials) (Store, error)
}

// Credentials are explicit Windows credentials. When Domain and Username
// are both set, Connect negotiates NTLM with them; otherwise cached
// credentials are used.
type Credentials struct {
	Domain   string
	Username string
	Password string //nolint:gosec // held in memory only
}

// Explicit reports whether the credentials select the NTLM path.
func (c Credentials) Explicit() bool {
	return c.Domain != "" && c.Username != ""
}

// QueryOptions tunes WorkItemsByQueryText.
type QueryOptions struct {
	// Project resolves @project in the query text. Empty runs at
	// collection scope.
	Project string
	// Top caps the number of results. Zero returns every match.
	Top int
}

// Extractor is safe for concurrent use. Connect swaps the session atomically
// with respect to running queries.
type Extractor struct {
	dialer Dialer
	logger *slog.Logger

	mu       sync.RWMutex
	url      string
	store    Store
	identity *tfs.Connection
}

// NewExtractor returns an Extractor with no session.
func NewExtractor(dialer Dialer, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}

	return &Extractor{dialer: dialer, logger: logger}
}

// Connect assigns the server URL and authenticates against it. The URL is
// recorded even if authentication fails, in which case the previous session
// stays in place.
func (e *Extractor) Connect(ctx context.Context, serverURL string, creds Credentials) error {
	if serverURL == "" {
		return ErrEmptyURL
	}

	e.mu.Lock()
	e.url = serverURL
	e.mu.Unlock()

	e.logger.Info("connecting",
		slog.String("url", serverURL),
		slog.Bool("explicit_credentials", creds.Explicit()),
	)

	store, err := e.dialer.Dial(ctx, serverURL, creds)
	if err != nil {
		return wrap(HintQuery, fmt.Errorf("connecting to %s: %w", serverURL, err))
	}

	conn, err := store.EnsureAuthenticated(ctx)
	if err != nil {
		return wrap(HintQuery, fmt.Errorf("authenticating to %s: %w", serverURL, err))
	}

	e.mu.Lock()
	e.store = store
	e.identity = conn
	e.mu.Unlock()

	return nil
}

// ServerURL returns the URL last passed to Connect.
func (e *Extractor) ServerURL() string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.url
}

// Identity returns the authenticated user of the current session, or nil.
func (e *Extractor) Identity() *tfs.Connection {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.identity
}

func (e *Extractor) session() (Store, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.store == nil {
		return nil, ErrNotConnected
	}

	return e.store, nil
}

// WorkItemByID fetches one work item.
func (e *Extractor) WorkItemByID(ctx context.Context, id int) (Summary, error) {
	store, err := e.session()
	if err != nil {
		return Summary{}, wrap(HintWorkItemID, err)
	}

	wi, err := store.WorkItem(ctx, id)
	if err != nil {
		return Summary{}, wrap(HintWorkItemID, fmt.Errorf("work item %d: %w", id, err))
	}

	return NewSummary(wi), nil
}

// WorkItemsByQueryText runs a WIQL query and returns matching work items in
// server order.
func (e *Extractor) WorkItemsByQueryText(ctx context.Context, wiql string, opts QueryOptions) ([]Summary, error) {
	store, err := e.session()
	if err != nil {
		return nil, wrap(HintQuery, err)
	}

	ids, err := store.QueryWIQL(ctx, opts.Project, wiql, opts.Top)
	if err != nil {
		return nil, wrap(HintQuery, err)
	}

	if opts.Top > 0 && len(ids) > opts.Top {
		ids = ids[:opts.Top]
	}

	items, err := store.WorkItemsBatch(ctx, ids, tfs.SummaryFields)
	if err != nil {
		return nil, wrap(HintQuery, err)
	}

	return summaries(items), nil
}

// WorkItemsBySavedQuery runs the saved query named query inside the root
// folder named folder of project.
func (e *Extractor) WorkItemsBySavedQuery(ctx context.Context, project, folder, query string) ([]Summary, error) {
	store, err := e.session()
	if err != nil {
		return nil, wrap(HintQuery, err)
	}

	root, err := e.rootFolder(ctx, store, project, folder)
	if err != nil {
		return nil, wrap(HintQuery, err)
	}

	def, ok := findChild(root.Children, query)
	if !ok {
		return nil, wrap(HintQuery, fmt.Errorf("query %q in %s/%s: %w", query, project, folder, ErrNoSuchName))
	}

	if def.IsFolder {
		return nil, wrap(HintQuery, fmt.Errorf("%q is a folder: %w", def.Path, ErrWrongKind))
	}

	ids, err := store.QueryByID(ctx, project, def.ID)
	if err != nil {
		return nil, wrap(HintQuery, err)
	}

	items, err := store.WorkItemsBatch(ctx, ids, tfs.SummaryFields)
	if err != nil {
		return nil, wrap(HintQuery, err)
	}

	return summaries(items), nil
}

// AvailableProjects lists project names in server order.
func (e *Extractor) AvailableProjects(ctx context.Context) ([]string, error) {
	store, err := e.session()
	if err != nil {
		return nil, wrap(HintQuery, err)
	}

	projects, err := store.Projects(ctx)
	if err != nil {
		return nil, wrap(HintQuery, err)
	}

	names := make([]string, 0, len(projects))
	for i := range projects {
		names = append(names, projects[i].Name)
	}

	return names, nil
}

// AvailableQueryFolders lists the root folder names of project's query
// hierarchy.
func (e *Extractor) AvailableQueryFolders(ctx context.Context, project string) ([]string, error) {
	store, err := e.session()
	if err != nil {
		return nil, wrap(HintQuery, err)
	}

	roots, err := store.QueryHierarchy(ctx, project)
	if err != nil {
		return nil, wrap(HintQuery, err)
	}

	names := make([]string, 0, len(roots))
	for i := range roots {
		if roots[i].IsFolder {
			names = append(names, roots[i].Name)
		}
	}

	return names, nil
}

// AvailableQueries lists the names of every query under the root folder
// named folder, including those in nested sub-folders.
func (e *Extractor) AvailableQueries(ctx context.Context, project, folder string) ([]string, error) {
	tree, err := e.QueryTree(ctx, project, folder)
	if err != nil {
		return nil, err
	}

	queries := FlattenQueries(tree)

	names := make([]string, 0, len(queries))
	for i := range queries {
		names = append(names, queries[i].Name)
	}

	return names, nil
}

// QueryTree returns the fully expanded tree under the root folder named
// folder.
func (e *Extractor) QueryTree(ctx context.Context, project, folder string) (QueryNode, error) {
	store, err := e.session()
	if err != nil {
		return QueryNode{}, wrap(HintQuery, err)
	}

	root, err := e.rootFolder(ctx, store, project, folder)
	if err != nil {
		return QueryNode{}, wrap(HintQuery, err)
	}

	expanded, err := store.ExpandFolder(ctx, project, *root)
	if err != nil {
		return QueryNode{}, wrap(HintQuery, err)
	}

	return newQueryNode(&expanded), nil
}

// rootFolder finds a root-level folder by name. Its direct children are
// guaranteed loaded.
func (e *Extractor) rootFolder(ctx context.Context, store Store, project, folder string) (*tfs.QueryItem, error) {
	roots, err := store.QueryHierarchy(ctx, project)
	if err != nil {
		return nil, err
	}

	root, ok := findChild(roots, folder)
	if !ok {
		return nil, fmt.Errorf("folder %q in project %q: %w", folder, project, ErrNoSuchName)
	}

	if !root.IsFolder {
		return nil, fmt.Errorf("%q is not a folder: %w", root.Path, ErrWrongKind)
	}

	if root.HasChildren && len(root.Children) == 0 {
		e.logger.Debug("root folder children truncated, expanding", slog.String("folder", root.Path))

		expanded, err := store.ExpandFolder(ctx, project, *root)
		if err != nil {
			return nil, err
		}

		root = &expanded
	}

	return root, nil
}
