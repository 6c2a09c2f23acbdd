package relations

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"fanlink/backend/internal/store"
	"fanlink/backend/pkg/logger"
)

// The data layout has migrated twice. Reads therefore walk an ordered chain
// of tiers: the nested-collection layout (authoritative), the legacy
// per-user array document, and the oldest generic edge collection. A tier
// either answers conclusively or defers to the next one.

// tierVerdict is the outcome of probing one layout tier
type tierVerdict int

const (
	// tierInconclusive means the tier holds no evidence either way
	tierInconclusive tierVerdict = iota
	// tierActive means the tier proves an active edge
	tierActive
	// tierInactive means the tier proves the edge is absent or cancelled
	tierInactive
)

// existsTier probes one layout for the presence of a specific edge
type existsTier struct {
	name  string
	probe func(ctx context.Context, kind Kind, sourceID, targetID string) (tierVerdict, error)
}

// listTier enumerates counterpart ids from one layout
type listTier struct {
	name string
	list func(ctx context.Context, kind Kind, nodeID string, dir Direction) ([]string, error)
}

// Resolver answers existence and membership questions across all three
// data layouts
type Resolver struct {
	store  store.Store
	logger *zap.Logger
}

// NewResolver creates a resolver over the given store
func NewResolver(s store.Store) *Resolver {
	return &Resolver{
		store:  s,
		logger: logger.Named("relations"),
	}
}

// Exists reports whether an active edge of the given kind links source to
// target. The new layout is authoritative: a cancelled edge there settles
// the answer without consulting older layouts.
func (r *Resolver) Exists(ctx context.Context, kind Kind, sourceID, targetID string) (bool, error) {
	tiers := []existsTier{
		{name: "nested", probe: r.probeNested},
		{name: "legacyList", probe: r.probeLegacyList},
		{name: "genericEdges", probe: r.probeGenericEdges},
	}

	for _, tier := range tiers {
		verdict, err := tier.probe(ctx, kind, sourceID, targetID)
		if err != nil {
			return false, mapStoreErr(err)
		}
		switch verdict {
		case tierActive:
			return true, nil
		case tierInactive:
			return false, nil
		}
		r.logger.Debug("Tier inconclusive, falling through",
			zap.String("tier", tier.name),
			zap.String("kind", string(kind)),
			zap.String("source_id", sourceID),
		)
	}
	return false, nil
}

func (r *Resolver) probeNested(ctx context.Context, kind Kind, sourceID, targetID string) (tierVerdict, error) {
	spec := kindSpecs[kind]
	doc, err := r.store.Get(ctx, edgePath(sourceID, spec.outgoingColl, targetID))
	if errors.Is(err, store.ErrNotFound) {
		return tierInconclusive, nil
	}
	if err != nil {
		return tierInconclusive, err
	}
	edge, err := decodeEdge(doc)
	if err != nil {
		// a record we cannot read is no evidence; log and defer
		r.logger.Warn("Skipping malformed edge document", zap.String("path", doc.Path), zap.Error(err))
		return tierInconclusive, nil
	}
	if edge.Active() {
		return tierActive, nil
	}
	return tierInactive, nil
}

func (r *Resolver) probeLegacyList(ctx context.Context, kind Kind, sourceID, targetID string) (tierVerdict, error) {
	spec := kindSpecs[kind]
	doc, err := r.store.Get(ctx, relationListPath(sourceID))
	if errors.Is(err, store.ErrNotFound) {
		return tierInconclusive, nil
	}
	if err != nil {
		return tierInconclusive, err
	}
	for _, id := range asStringSlice(doc.Data[spec.outgoingColl]) {
		if id == targetID {
			return tierActive, nil
		}
	}
	// an id missing from a legacy array is not proof of absence, the
	// array may predate the edge
	return tierInconclusive, nil
}

func (r *Resolver) probeGenericEdges(ctx context.Context, kind Kind, sourceID, targetID string) (tierVerdict, error) {
	docs, err := r.store.Query(edgesCollection).
		Where("sourceId", "==", sourceID).
		Where("targetId", "==", targetID).
		Where("kind", "==", string(kind)).
		Limit(1).
		Documents(ctx)
	if err != nil {
		return tierInconclusive, err
	}
	if len(docs) > 0 {
		return tierActive, nil
	}
	// last tier: no evidence anywhere means no edge
	return tierInactive, nil
}

// ListIds enumerates the counterpart user ids of the node's edges of the
// given kind and direction. Unlike Exists, an empty result from the new
// layout is indistinguishable from "not migrated yet", so enumeration
// falls through on empty.
func (r *Resolver) ListIds(ctx context.Context, kind Kind, nodeID string, dir Direction) ([]string, error) {
	tiers := []listTier{
		{name: "nested", list: r.listNested},
		{name: "legacyList", list: r.listLegacyList},
		{name: "genericEdges", list: r.listGenericEdges},
	}

	for _, tier := range tiers {
		ids, err := tier.list(ctx, kind, nodeID, dir)
		if err != nil {
			return nil, mapStoreErr(err)
		}
		if len(ids) > 0 {
			return dedupe(ids), nil
		}
		r.logger.Debug("Tier empty, falling through",
			zap.String("tier", tier.name),
			zap.String("kind", string(kind)),
			zap.String("node_id", nodeID),
		)
	}
	return []string{}, nil
}

func (r *Resolver) listNested(ctx context.Context, kind Kind, nodeID string, dir Direction) ([]string, error) {
	spec := kindSpecs[kind]
	coll := spec.outgoingColl
	if dir == DirectionIncoming {
		coll = spec.incomingColl
	}
	docs, err := r.store.Query(edgeCollection(nodeID, coll)).Documents(ctx)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(docs))
	for _, doc := range docs {
		edge, err := decodeEdge(doc)
		if err != nil {
			r.logger.Warn("Skipping malformed edge document", zap.String("path", doc.Path), zap.Error(err))
			continue
		}
		if edge.Active() {
			ids = append(ids, edge.UserID)
		}
	}
	return ids, nil
}

func (r *Resolver) listLegacyList(ctx context.Context, kind Kind, nodeID string, dir Direction) ([]string, error) {
	spec := kindSpecs[kind]
	field := spec.outgoingColl
	if dir == DirectionIncoming {
		field = spec.incomingColl
	}
	doc, err := r.store.Get(ctx, relationListPath(nodeID))
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return asStringSlice(doc.Data[field]), nil
}

func (r *Resolver) listGenericEdges(ctx context.Context, kind Kind, nodeID string, dir Direction) ([]string, error) {
	selfField, otherField := "sourceId", "targetId"
	if dir == DirectionIncoming {
		selfField, otherField = "targetId", "sourceId"
	}
	docs, err := r.store.Query(edgesCollection).
		Where(selfField, "==", nodeID).
		Where("kind", "==", string(kind)).
		Documents(ctx)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(docs))
	for _, doc := range docs {
		id, ok := asString(doc.Data[otherField])
		if !ok || id == "" {
			r.logger.Warn("Skipping malformed edge document", zap.String("path", doc.Path))
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
