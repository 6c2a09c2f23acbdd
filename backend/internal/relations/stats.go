package relations

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"fanlink/backend/internal/store"
	"fanlink/backend/pkg/logger"
	pkgerrors "fanlink/backend/pkg/errors"
)

// StatsReader serves the denormalized per-user counters without touching
// the edge collections
type StatsReader struct {
	store  store.Store
	logger *zap.Logger
}

// NewStatsReader creates a stats reader over the given store
func NewStatsReader(s store.Store) *StatsReader {
	return &StatsReader{
		store:  s,
		logger: logger.Named("relations"),
	}
}

// Get returns the outgoing and incoming counters of the given kind for a
// user. Before the first mutation through this engine the aggregate
// document does not exist yet, in which case the legacy scalars on the
// user document answer instead.
func (sr *StatsReader) Get(ctx context.Context, nodeID string, kind Kind) (outCount, inCount int64, err error) {
	spec := kindSpecs[kind]

	doc, err := sr.store.Get(ctx, statsPath(nodeID))
	if err == nil {
		return asInt64(doc.Data[spec.outCounter]), asInt64(doc.Data[spec.inCounter]), nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return 0, 0, mapStoreErr(err)
	}

	// bootstrap path: fall back to the legacy counters on the user doc
	userDoc, err := sr.store.Get(ctx, userPath(nodeID))
	if errors.Is(err, store.ErrNotFound) {
		return 0, 0, pkgerrors.NewUserNotFound(nodeID)
	}
	if err != nil {
		return 0, 0, mapStoreErr(err)
	}
	sr.logger.Debug("Stats aggregate missing, using legacy counters", zap.String("user_id", nodeID))
	return asInt64(userDoc.Data[spec.legacyOut]), asInt64(userDoc.Data[spec.legacyIn]), nil
}

// CurrentSponsor returns the id of the user's active sponsor and whether
// one is set. A missing aggregate simply means the user was never sponsored.
func (sr *StatsReader) CurrentSponsor(ctx context.Context, nodeID string) (sponsorID string, sponsored bool, err error) {
	doc, err := sr.store.Get(ctx, statsPath(nodeID))
	if errors.Is(err, store.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, mapStoreErr(err)
	}
	stats := decodeStats(doc)
	if !stats.IsSponsored || stats.CurrentSponsorID == "" {
		return "", false, nil
	}
	return stats.CurrentSponsorID, true, nil
}
