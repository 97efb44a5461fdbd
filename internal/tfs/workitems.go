package tfs

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"golang.org/x/sync/errgroup"
)

// maxBatchSize is the server's limit on ids per workitemsbatch request.
const maxBatchSize = 200

type workItemsBatchRequest struct {
	IDs         []int    `json:"ids"`
	Fields      []string `json:"fields,omitempty"`
	ErrorPolicy string   `json:"errorPolicy"`
}

type workItemsBatchResponse struct {
	Count int                `json:"count"`
	Value []workItemResponse `json:"value"`
}

// WorkItem fetches a single work item with all of its fields.
func (c *Client) WorkItem(ctx context.Context, id int) (*WorkItem, error) {
	c.logger.Debug("fetching work item", slog.Int("id", id))

	var wr workItemResponse

	path := "_apis/wit/workitems/" + strconv.Itoa(id)
	if _, err := c.getJSON(ctx, path, nil, &wr); err != nil {
		return nil, err
	}

	wi := wr.toWorkItem(c.logger)

	return &wi, nil
}

// WorkItemsBatch fetches the given ids in chunks of maxBatchSize, running up
// to the configured batch concurrency at once. The result keeps the order of
// ids; ids the server omits (deleted, no permission) are skipped. fields may
// be nil to request every field.
func (c *Client) WorkItemsBatch(ctx context.Context, ids []int, fields []string) ([]WorkItem, error) {
	if len(ids) == 0 {
		return []WorkItem{}, nil
	}

	chunks := chunkIDs(ids, maxBatchSize)
	results := make([][]WorkItem, len(chunks))

	c.logger.Info("fetching work items",
		slog.Int("count", len(ids)),
		slog.Int("batches", len(chunks)),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.batchConcurrency)

	for i, chunk := range chunks {
		g.Go(func() error {
			items, err := c.fetchBatch(gctx, chunk, fields)
			if err != nil {
				return fmt.Errorf("batch %d/%d: %w", i+1, len(chunks), err)
			}

			results[i] = items

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return orderByIDs(ids, results), nil
}

// fetchBatch performs one workitemsbatch call.
func (c *Client) fetchBatch(ctx context.Context, ids []int, fields []string) ([]WorkItem, error) {
	req := workItemsBatchRequest{
		IDs:         ids,
		Fields:      fields,
		ErrorPolicy: "omit",
	}

	var br workItemsBatchResponse
	if err := c.postJSON(ctx, "_apis/wit/workitemsbatch", nil, req, &br); err != nil {
		return nil, err
	}

	items := make([]WorkItem, 0, len(br.Value))
	for i := range br.Value {
		// errorPolicy=omit returns null entries for missing ids.
		if br.Value[i].ID == 0 {
			continue
		}

		items = append(items, br.Value[i].toWorkItem(c.logger))
	}

	return items, nil
}

// chunkIDs splits ids into consecutive slices of at most size elements.
func chunkIDs(ids []int, size int) [][]int {
	chunks := make([][]int, 0, (len(ids)+size-1)/size)
	for start := 0; start < len(ids); start += size {
		end := min(start+size, len(ids))
		chunks = append(chunks, ids[start:end])
	}

	return chunks
}

// orderByIDs flattens batch results into the order of ids. The server does
// not promise to echo ids in request order.
func orderByIDs(ids []int, batches [][]WorkItem) []WorkItem {
	byID := make(map[int]WorkItem, len(ids))
	for _, batch := range batches {
		for _, wi := range batch {
			byID[wi.ID] = wi
		}
	}

	out := make([]WorkItem, 0, len(byID))
	for _, id := range ids {
		if wi, ok := byID[id]; ok {
			out = append(out, wi)
			delete(byID, id) // duplicates in ids appear once
		}
	}

	return out
}
