package relations

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"fanlink/backend/internal/store"
	"fanlink/backend/pkg/logger"
)

// detailChunkSize is the store's limit on membership-query clauses
const detailChunkSize = 10

// DetailFetcher resolves batches of user ids into display summaries
type DetailFetcher struct {
	store  store.Store
	logger *zap.Logger
}

// NewDetailFetcher creates a detail fetcher over the given store
func NewDetailFetcher(s store.Store) *DetailFetcher {
	return &DetailFetcher{
		store:  s,
		logger: logger.Named("relations"),
	}
}

// Fetch loads the summaries for the given user ids. Ids are split into
// chunks of at most ten (the in-clause limit) and the chunk queries run
// concurrently. A malformed user document is logged and skipped, never
// failing the batch.
func (f *DetailFetcher) Fetch(ctx context.Context, ids []string) ([]NodeSummary, error) {
	if len(ids) == 0 {
		return []NodeSummary{}, nil
	}

	chunks := chunkIds(ids, detailChunkSize)
	results := make([][]NodeSummary, len(chunks))

	g, ctx := errgroup.WithContext(ctx)
	for i, chunk := range chunks {
		i, chunk := i, chunk
		g.Go(func() error {
			docs, err := f.store.Query(usersCollection).
				Where("userId", "in", chunk).
				Documents(ctx)
			if err != nil {
				return err
			}
			summaries := make([]NodeSummary, 0, len(docs))
			for _, doc := range docs {
				summary, err := decodeSummary(doc)
				if err != nil {
					f.logger.Warn("Skipping malformed user document", zap.String("path", doc.Path), zap.Error(err))
					continue
				}
				summaries = append(summaries, *summary)
			}
			results[i] = summaries // each goroutine owns its own slot
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, mapStoreErr(err)
	}

	out := make([]NodeSummary, 0, len(ids))
	for _, chunk := range results {
		out = append(out, chunk...)
	}
	return out, nil
}

func chunkIds(ids []string, size int) [][]string {
	var chunks [][]string
	for len(ids) > size {
		chunks = append(chunks, ids[:size])
		ids = ids[size:]
	}
	return append(chunks, ids)
}
