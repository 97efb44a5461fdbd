package tfs

import (
	"encoding/json"
	"log/slog"
	"strings"
	"time"
)

// Timestamp validation bounds. Timestamps outside this range are dropped
// (left zero) and a warning is logged.
const (
	minValidYear = 1970
	maxValidYear = 2200
)

// workItemResponse mirrors the work item JSON exactly.
// Unexported; callers get WorkItem through toWorkItem.
type workItemResponse struct {
	ID     int                        `json:"id"`
	Rev    int                        `json:"rev"`
	Fields map[string]json.RawMessage `json:"fields"`
	URL    string                     `json:"url"`
}

// identityRef mirrors the IdentityRef object used by newer servers.
type identityRef struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	UniqueName  string `json:"uniqueName"`
}

// toWorkItem normalizes a work item response.
func (r *workItemResponse) toWorkItem(logger *slog.Logger) WorkItem {
	wi := WorkItem{
		ID:     r.ID,
		Rev:    r.Rev,
		URL:    r.URL,
		Fields: make(map[string]any, len(r.Fields)),
	}

	for name, raw := range r.Fields {
		var v any
		if err := json.Unmarshal(raw, &v); err == nil {
			wi.Fields[name] = v
		}
	}

	wi.Type = stringField(r.Fields, FieldWorkItemType)
	wi.Title = stringField(r.Fields, FieldTitle)
	wi.State = stringField(r.Fields, FieldState)
	wi.Reason = stringField(r.Fields, FieldReason)
	wi.AreaPath = stringField(r.Fields, FieldAreaPath)
	wi.IterationPath = stringField(r.Fields, FieldIterationPath)
	wi.Project = stringField(r.Fields, FieldTeamProject)
	wi.Tags = splitTags(stringField(r.Fields, FieldTags))
	wi.Priority = intField(r.Fields, FieldPriority)
	wi.AssignedTo = identityField(r.Fields, FieldAssignedTo)
	wi.CreatedBy = identityField(r.Fields, FieldCreatedBy)
	wi.CreatedAt = timeField(r.Fields, FieldCreatedDate, r.ID, logger)
	wi.ChangedAt = timeField(r.Fields, FieldChangedDate, r.ID, logger)

	return wi
}

// stringField returns the string value of a field, or "" when the field is
// absent or not a string.
func stringField(fields map[string]json.RawMessage, name string) string {
	raw, ok := fields[name]
	if !ok {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}

	return s
}

// intField returns the integer value of a numeric field. Servers encode
// integers as JSON numbers; some older ones send doubles (e.g. 2.0).
func intField(fields map[string]json.RawMessage, name string) int {
	raw, ok := fields[name]
	if !ok {
		return 0
	}

	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0
	}

	return int(f)
}

// identityField decodes an identity field. Newer servers send an IdentityRef
// object; older ones send a display string "Name <DOMAIN\user>".
func identityField(fields map[string]json.RawMessage, name string) Identity {
	raw, ok := fields[name]
	if !ok {
		return Identity{}
	}

	var ref identityRef
	if err := json.Unmarshal(raw, &ref); err == nil {
		return Identity{ID: ref.ID, DisplayName: ref.DisplayName, UniqueName: ref.UniqueName}
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return Identity{}
	}

	return parseIdentityString(s)
}

// parseIdentityString splits "Display Name <unique>" into its parts. A string
// without angle brackets is taken as the display name.
func parseIdentityString(s string) Identity {
	s = strings.TrimSpace(s)

	open := strings.LastIndex(s, "<")
	if open < 0 || !strings.HasSuffix(s, ">") {
		return Identity{DisplayName: s}
	}

	return Identity{
		DisplayName: strings.TrimSpace(s[:open]),
		UniqueName:  s[open+1 : len(s)-1],
	}
}

// splitTags splits the "a; b; c" tag encoding into trimmed, non-empty tags.
func splitTags(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ";")
	tags := make([]string, 0, len(parts))

	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			tags = append(tags, p)
		}
	}

	return tags
}

// timeField parses an RFC 3339 date field and validates the year range.
// Absent fields yield the zero time silently; malformed ones are logged.
func timeField(fields map[string]json.RawMessage, name string, itemID int, logger *slog.Logger) time.Time {
	raw := stringField(fields, name)
	if raw == "" {
		return time.Time{}
	}

	return parseTimestamp(raw, name, itemID, logger)
}

// parseTimestamp parses an RFC 3339 timestamp (fractional seconds allowed)
// and validates the year range.
func parseTimestamp(raw, field string, itemID int, logger *slog.Logger) time.Time {
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		logger.Warn("invalid timestamp, ignoring",
			slog.String("field", field),
			slog.Int("work_item_id", itemID),
			slog.String("raw", raw),
			slog.String("error", err.Error()),
		)

		return time.Time{}
	}

	if t.Year() < minValidYear || t.Year() > maxValidYear {
		logger.Warn("timestamp out of valid range, ignoring",
			slog.String("field", field),
			slog.Int("work_item_id", itemID),
			slog.String("raw", raw),
		)

		return time.Time{}
	}

	return t.UTC()
}
