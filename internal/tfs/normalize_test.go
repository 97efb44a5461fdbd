package tfs

import (
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeWorkItem(t *testing.T, raw string) WorkItem {
	t.Helper()

	var wr workItemResponse
	require.NoError(t, json.Unmarshal([]byte(raw), &wr))

	return wr.toWorkItem(slog.Default())
}

func TestToWorkItem_ModernServer(t *testing.T) {
	wi := decodeWorkItem(t, `{
		"id": 42,
		"rev": 7,
		"url": "https://dev.azure.com/contoso/_apis/wit/workItems/42",
		"fields": {
			"System.WorkItemType": "Bug",
			"System.Title": "Crash on save",
			"System.State": "Active",
			"System.Reason": "New",
			"System.TeamProject": "Fabrikam",
			"System.AreaPath": "Fabrikam\\Editor",
			"System.IterationPath": "Fabrikam\\Sprint 12",
			"System.AssignedTo": {"id": "u-1", "displayName": "Alice", "uniqueName": "alice@contoso.com"},
			"System.CreatedBy": {"displayName": "Bob", "uniqueName": "bob@contoso.com"},
			"System.Tags": "crash; editor ;; p1",
			"System.CreatedDate": "2024-03-01T10:15:30.123Z",
			"System.ChangedDate": "2024-03-02T08:00:00Z",
			"Microsoft.VSTS.Common.Priority": 1,
			"Custom.Score": 3.5
		}
	}`)

	assert.Equal(t, 42, wi.ID)
	assert.Equal(t, 7, wi.Rev)
	assert.Equal(t, "Bug", wi.Type)
	assert.Equal(t, "Crash on save", wi.Title)
	assert.Equal(t, "Active", wi.State)
	assert.Equal(t, "New", wi.Reason)
	assert.Equal(t, "Fabrikam", wi.Project)
	assert.Equal(t, `Fabrikam\Editor`, wi.AreaPath)
	assert.Equal(t, `Fabrikam\Sprint 12`, wi.IterationPath)
	assert.Equal(t, Identity{ID: "u-1", DisplayName: "Alice", UniqueName: "alice@contoso.com"}, wi.AssignedTo)
	assert.Equal(t, "Bob", wi.CreatedBy.DisplayName)
	assert.Equal(t, []string{"crash", "editor", "p1"}, wi.Tags)
	assert.Equal(t, 1, wi.Priority)
	assert.True(t, wi.CreatedAt.Equal(time.Date(2024, 3, 1, 10, 15, 30, 123000000, time.UTC)))
	assert.True(t, wi.ChangedAt.Equal(time.Date(2024, 3, 2, 8, 0, 0, 0, time.UTC)))
	assert.Equal(t, 3.5, wi.Fields["Custom.Score"])
	assert.Equal(t, "Bug", wi.Fields[FieldWorkItemType])
}

func TestToWorkItem_LegacyIdentityString(t *testing.T) {
	wi := decodeWorkItem(t, `{
		"id": 5,
		"rev": 1,
		"fields": {
			"System.AssignedTo": "Carol Jones <CONTOSO\\carol>",
			"System.CreatedBy": "Service Account",
			"Microsoft.VSTS.Common.Priority": 2.0
		}
	}`)

	assert.Equal(t, Identity{DisplayName: "Carol Jones", UniqueName: `CONTOSO\carol`}, wi.AssignedTo)
	assert.Equal(t, Identity{DisplayName: "Service Account"}, wi.CreatedBy)
	assert.Equal(t, 2, wi.Priority)
}

func TestToWorkItem_MissingFields(t *testing.T) {
	wi := decodeWorkItem(t, `{"id": 9, "rev": 1, "fields": {}}`)

	assert.Equal(t, 9, wi.ID)
	assert.Empty(t, wi.Title)
	assert.Nil(t, wi.Tags)
	assert.True(t, wi.AssignedTo.IsZero())
	assert.True(t, wi.CreatedAt.IsZero())
	assert.Zero(t, wi.Priority)
	assert.NotNil(t, wi.Fields)
}

func TestToWorkItem_BadTimestamps(t *testing.T) {
	wi := decodeWorkItem(t, `{
		"id": 1,
		"fields": {
			"System.CreatedDate": "yesterday",
			"System.ChangedDate": "1601-01-01T00:00:00Z"
		}
	}`)

	assert.True(t, wi.CreatedAt.IsZero())
	assert.True(t, wi.ChangedAt.IsZero())
}

func TestToWorkItem_WrongFieldTypes(t *testing.T) {
	wi := decodeWorkItem(t, `{
		"id": 1,
		"fields": {
			"System.Title": 123,
			"Microsoft.VSTS.Common.Priority": "high",
			"System.AssignedTo": 17
		}
	}`)

	assert.Empty(t, wi.Title)
	assert.Zero(t, wi.Priority)
	assert.True(t, wi.AssignedTo.IsZero())
}

func TestParseIdentityString(t *testing.T) {
	tests := []struct {
		in   string
		want Identity
	}{
		{"Alice <alice@contoso.com>", Identity{DisplayName: "Alice", UniqueName: "alice@contoso.com"}},
		{"  Dave  ", Identity{DisplayName: "Dave"}},
		{"Eve <unterminated", Identity{DisplayName: "Eve <unterminated"}},
		{"<only@unique>", Identity{UniqueName: "only@unique"}},
		{"", Identity{}},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, parseIdentityString(tt.in))
		})
	}
}

func TestSplitTags(t *testing.T) {
	assert.Nil(t, splitTags(""))
	assert.Equal(t, []string{"a"}, splitTags("a"))
	assert.Equal(t, []string{"a", "b c"}, splitTags(" a ;b c; ; "))
}
