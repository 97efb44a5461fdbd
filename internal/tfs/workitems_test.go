package tfs

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkItem_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/_apis/wit/workitems/42", r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":42,"rev":3,"fields":{"System.Title":"Hello","System.State":"New"}}`)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	wi, err := client.WorkItem(context.Background(), 42)
	require.NoError(t, err)

	assert.Equal(t, 42, wi.ID)
	assert.Equal(t, 3, wi.Rev)
	assert.Equal(t, "Hello", wi.Title)
	assert.Equal(t, "New", wi.State)
}

func TestWorkItem_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"message":"TF401232: Work item 999 does not exist.","typeKey":"WorkItemUnauthorizedAccessException"}`)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	_, err := client.WorkItem(context.Background(), 999)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "TF401232")
}

// batchServer answers workitemsbatch requests by echoing the requested ids in
// reverse order, omitting any id listed in missing.
func batchServer(t *testing.T, calls *atomic.Int32, missing map[int]bool) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/_apis/wit/workitemsbatch", r.URL.Path)
		calls.Add(1)

		var req workItemsBatchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.LessOrEqual(t, len(req.IDs), maxBatchSize)
		assert.Equal(t, "omit", req.ErrorPolicy)

		var parts []string

		for i := len(req.IDs) - 1; i >= 0; i-- {
			id := req.IDs[i]
			if missing[id] {
				parts = append(parts, "null")
				continue
			}

			parts = append(parts, fmt.Sprintf(`{"id":%d,"rev":1,"fields":{"System.Title":"item %d"}}`, id, id))
		}

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"count":%d,"value":[%s]}`, len(parts), strings.Join(parts, ","))
	}))
}

func TestWorkItemsBatch_PreservesOrderAcrossChunks(t *testing.T) {
	var calls atomic.Int32

	srv := batchServer(t, &calls, map[int]bool{7: true})
	defer srv.Close()

	ids := make([]int, 0, 450)
	for i := 450; i >= 1; i-- {
		ids = append(ids, i)
	}

	client := newTestClient(t, srv.URL, WithBatchConcurrency(2))
	items, err := client.WorkItemsBatch(context.Background(), ids, SummaryFields)
	require.NoError(t, err)

	assert.Equal(t, int32(3), calls.Load(), "450 ids = 3 batches of <=200")
	require.Len(t, items, 449)
	assert.Equal(t, 450, items[0].ID)
	assert.Equal(t, 1, items[len(items)-1].ID)

	for _, wi := range items {
		assert.NotEqual(t, 7, wi.ID)
	}
}

func TestWorkItemsBatch_Empty(t *testing.T) {
	client := newTestClient(t, "http://unused.invalid")

	items, err := client.WorkItemsBatch(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.NotNil(t, items)
	assert.Empty(t, items)
}

func TestWorkItemsBatch_ErrorCancelsOthers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	ids := make([]int, 500)
	for i := range ids {
		ids[i] = i + 1
	}

	client := newTestClient(t, srv.URL)
	_, err := client.WorkItemsBatch(context.Background(), ids, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrForbidden)
	assert.Contains(t, err.Error(), "batch ")
}

func TestChunkIDs(t *testing.T) {
	assert.Empty(t, chunkIDs(nil, 3))
	assert.Equal(t, [][]int{{1, 2, 3}, {4, 5}}, chunkIDs([]int{1, 2, 3, 4, 5}, 3))
	assert.Equal(t, [][]int{{1, 2}}, chunkIDs([]int{1, 2}, 200))
}

func TestOrderByIDs_DropsDuplicates(t *testing.T) {
	batches := [][]WorkItem{{{ID: 2}, {ID: 1}}, {{ID: 3}}}

	out := orderByIDs([]int{1, 2, 1, 3, 4}, batches)

	got := make([]int, 0, len(out))
	for _, wi := range out {
		got = append(got, wi.ID)
	}

	assert.Equal(t, []int{1, 2, 3}, got)
}
