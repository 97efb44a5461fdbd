package tfs

import "time"

// Field reference names read by the normalizer.
const (
	FieldID            = "System.Id"
	FieldWorkItemType  = "System.WorkItemType"
	FieldTitle         = "System.Title"
	FieldState         = "System.State"
	FieldReason        = "System.Reason"
	FieldAssignedTo    = "System.AssignedTo"
	FieldCreatedBy     = "System.CreatedBy"
	FieldAreaPath      = "System.AreaPath"
	FieldIterationPath = "System.IterationPath"
	FieldTeamProject   = "System.TeamProject"
	FieldTags          = "System.Tags"
	FieldCreatedDate   = "System.CreatedDate"
	FieldChangedDate   = "System.ChangedDate"
	FieldPriority      = "Microsoft.VSTS.Common.Priority"
)

// SummaryFields is the field list requested by batch fetches. Requesting an
// explicit list keeps responses small on items with large HTML fields.
var SummaryFields = []string{
	FieldID, FieldWorkItemType, FieldTitle, FieldState, FieldReason,
	FieldAssignedTo, FieldCreatedBy, FieldAreaPath, FieldIterationPath,
	FieldTeamProject, FieldTags, FieldCreatedDate, FieldChangedDate,
	FieldPriority,
}

// Identity is a user reference as reported in identity fields.
type Identity struct {
	ID          string
	DisplayName string
	UniqueName  string // e.g. "alice@contoso.com" or `CONTOSO\alice`
}

// IsZero reports whether the identity is unset (e.g. unassigned item).
func (i Identity) IsZero() bool {
	return i.ID == "" && i.DisplayName == "" && i.UniqueName == ""
}

// WorkItem is a normalized work item. Fields holds every field the server
// returned, keyed by reference name, for callers that need more than the
// promoted ones.
type WorkItem struct {
	ID            int
	Rev           int
	Type          string
	Title         string
	State         string
	Reason        string
	AssignedTo    Identity
	CreatedBy     Identity
	AreaPath      string
	IterationPath string
	Project       string
	Tags          []string
	Priority      int // 0 when the process template has no priority field
	CreatedAt     time.Time
	ChangedAt     time.Time
	URL           string
	Fields        map[string]any
}

// Project is a team project in the collection.
type Project struct {
	ID          string
	Name        string
	Description string
	State       string
	LastUpdated time.Time
}

// QueryItem is a node in a project's query hierarchy: either a folder
// (IsFolder) or a saved query carrying its WIQL text.
type QueryItem struct {
	ID          string
	Name        string
	Path        string
	IsFolder    bool
	HasChildren bool
	QueryType   string // flat, tree, oneHop; empty for folders
	WIQL        string
	Children    []QueryItem
}

// Connection describes the identity the server authenticated.
type Connection struct {
	UserID      string
	DisplayName string
	Account     string
	InstanceID  string
}
