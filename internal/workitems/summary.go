package workitems

import (
	"time"

	"github.com/tonimelisma/workitems-go/internal/tfs"
)

// Summary is the adapted view of a work item returned by every query.
type Summary struct {
	ID            int       `json:"id" yaml:"id"`
	Rev           int       `json:"rev" yaml:"rev"`
	Type          string    `json:"type" yaml:"type"`
	Title         string    `json:"title" yaml:"title"`
	State         string    `json:"state" yaml:"state"`
	Reason        string    `json:"reason,omitempty" yaml:"reason,omitempty"`
	AssignedTo    string    `json:"assignedTo,omitempty" yaml:"assigned_to,omitempty"`
	CreatedBy     string    `json:"createdBy,omitempty" yaml:"created_by,omitempty"`
	AreaPath      string    `json:"areaPath,omitempty" yaml:"area_path,omitempty"`
	IterationPath string    `json:"iterationPath,omitempty" yaml:"iteration_path,omitempty"`
	Project       string    `json:"project,omitempty" yaml:"project,omitempty"`
	Tags          []string  `json:"tags,omitempty" yaml:"tags,omitempty"`
	Priority      int       `json:"priority,omitempty" yaml:"priority,omitempty"`
	CreatedAt     time.Time `json:"createdAt,omitzero" yaml:"created_at,omitempty"`
	ChangedAt     time.Time `json:"changedAt,omitzero" yaml:"changed_at,omitempty"`
	URL           string    `json:"url,omitempty" yaml:"url,omitempty"`
}

// NewSummary adapts a REST work item.
func NewSummary(wi *tfs.WorkItem) Summary {
	return Summary{
		ID:            wi.ID,
		Rev:           wi.Rev,
		Type:          wi.Type,
		Title:         wi.Title,
		State:         wi.State,
		Reason:        wi.Reason,
		AssignedTo:    personName(wi.AssignedTo),
		CreatedBy:     personName(wi.CreatedBy),
		AreaPath:      wi.AreaPath,
		IterationPath: wi.IterationPath,
		Project:       wi.Project,
		Tags:          wi.Tags,
		Priority:      wi.Priority,
		CreatedAt:     wi.CreatedAt,
		ChangedAt:     wi.ChangedAt,
		URL:           wi.URL,
	}
}

func summaries(items []tfs.WorkItem) []Summary {
	out := make([]Summary, 0, len(items))
	for i := range items {
		out = append(out, NewSummary(&items[i]))
	}

	return out
}

// personName prefers the display name and falls back to the unique name.
func personName(id tfs.Identity) string {
	if id.DisplayName != "" {
		return id.DisplayName
	}

	return id.UniqueName
}
