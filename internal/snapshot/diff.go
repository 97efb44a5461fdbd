package snapshot

import (
	"context"
	"sort"

	"github.com/tonimelisma/workitems-go/internal/workitems"
)

// Change pairs the two recorded states of a work item.
type Change struct {
	ID  int               `json:"id" yaml:"id"`
	Old workitems.Summary `json:"old" yaml:"old"`
	New workitems.Summary `json:"new" yaml:"new"`
}

// Diff is the difference between two runs.
type Diff struct {
	OldRun  string              `json:"oldRun" yaml:"old_run"`
	NewRun  string              `json:"newRun" yaml:"new_run"`
	Added   []workitems.Summary `json:"added" yaml:"added"`
	Removed []workitems.Summary `json:"removed" yaml:"removed"`
	Changed []Change            `json:"changed" yaml:"changed"`
}

// Empty reports whether the runs hold the same items in the same states.
func (d *Diff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Changed) == 0
}

// Diff compares two runs by work item id. An item counts as changed when
// its revision or state differs. Results are ordered by id.
func (s *Store) Diff(ctx context.Context, oldRunID, newRunID string) (*Diff, error) {
	oldRun, err := s.Run(ctx, oldRunID)
	if err != nil {
		return nil, err
	}

	newRun, err := s.Run(ctx, newRunID)
	if err != nil {
		return nil, err
	}

	oldItems, err := s.Items(ctx, oldRun.ID)
	if err != nil {
		return nil, err
	}

	newItems, err := s.Items(ctx, newRun.ID)
	if err != nil {
		return nil, err
	}

	d := compare(oldItems, newItems)
	d.OldRun = oldRun.ID
	d.NewRun = newRun.ID

	return d, nil
}

func compare(oldItems, newItems []workitems.Summary) *Diff {
	d := &Diff{
		Added:   []workitems.Summary{},
		Removed: []workitems.Summary{},
		Changed: []Change{},
	}

	before := make(map[int]workitems.Summary, len(oldItems))
	for _, it := range oldItems {
		before[it.ID] = it
	}

	after := make(map[int]bool, len(newItems))

	for _, it := range newItems {
		after[it.ID] = true

		prev, ok := before[it.ID]

		switch {
		case !ok:
			d.Added = append(d.Added, it)
		case prev.Rev != it.Rev || prev.State != it.State:
			d.Changed = append(d.Changed, Change{ID: it.ID, Old: prev, New: it})
		}
	}

	for _, it := range oldItems {
		if !after[it.ID] {
			d.Removed = append(d.Removed, it)
		}
	}

	sort.Slice(d.Added, func(i, j int) bool { return d.Added[i].ID < d.Added[j].ID })
	sort.Slice(d.Removed, func(i, j int) bool { return d.Removed[i].ID < d.Removed[j].ID })
	sort.Slice(d.Changed, func(i, j int) bool { return d.Changed[i].ID < d.Changed[j].ID })

	return d
}
