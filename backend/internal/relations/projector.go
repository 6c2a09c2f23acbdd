package relations

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"fanlink/backend/internal/store"
	"fanlink/backend/pkg/logger"
	pkgerrors "fanlink/backend/pkg/errors"
)

// defaultTxAttempts is the transaction retry budget reported on contention
const defaultTxAttempts = 5

// Projector applies a relationship mutation as one atomic transaction
// across every denormalized view: the outgoing edge, the mirrored incoming
// edge, both users' counter aggregates and both users' legacy scalar
// counters.
type Projector struct {
	store  store.Store
	logger *zap.Logger
}

// NewProjector creates a projector over the given store
func NewProjector(s store.Store) *Projector {
	return &Projector{
		store:  s,
		logger: logger.Named("relations"),
	}
}

// Create writes a new active edge of the given kind from source to target.
// Returns ErrAlreadyExists if an active edge of the same kind already links
// the pair, and ErrAlreadySponsored when a sponsorship would violate the
// one-active-sponsor rule.
func (p *Projector) Create(ctx context.Context, kind Kind, sourceID, targetID string, attrs CreateAttrs) error {
	if sourceID == "" || targetID == "" {
		return fmt.Errorf("ids cannot be empty")
	}
	if sourceID == targetID {
		return fmt.Errorf("cannot create a %s relation to yourself", kind)
	}
	spec, ok := kindSpecs[kind]
	if !ok {
		return fmt.Errorf("unknown relation kind: %s", kind)
	}

	err := p.store.RunTransaction(ctx, func(tx store.Txn) error {
		outPath := edgePath(sourceID, spec.outgoingColl, targetID)

		// duplicate guard: an active edge of the same kind must not be
		// created twice
		doc, err := tx.Get(outPath)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		if doc != nil {
			if edge, decErr := decodeEdge(doc); decErr == nil && edge.Active() {
				return pkgerrors.NewAlreadyExists(string(kind), sourceID, targetID)
			}
			// a cancelled (or unreadable) edge is overwritten below
		}

		if kind == KindSponsorship {
			statsDoc, err := tx.Get(statsPath(targetID))
			if err != nil && !errors.Is(err, store.ErrNotFound) {
				return err
			}
			if statsDoc != nil {
				stats := decodeStats(statsDoc)
				if stats.IsSponsored && stats.CurrentSponsorID != "" && stats.CurrentSponsorID != sourceID {
					return pkgerrors.NewAlreadySponsored(targetID, stats.CurrentSponsorID)
				}
			}
		}

		// one logical timestamp for all six documents
		now := time.Now().UTC()

		outData := map[string]any{
			"userId":    targetID,
			"state":     string(StateActive),
			"createdAt": now,
		}
		inData := map[string]any{
			"userId":    sourceID,
			"state":     string(StateActive),
			"createdAt": now,
		}
		if attrs.ExpiresAt != nil {
			outData["expiresAt"] = attrs.ExpiresAt.UTC()
			inData["expiresAt"] = attrs.ExpiresAt.UTC()
		}

		if err := tx.Set(outPath, outData, false); err != nil {
			return err
		}
		if err := tx.Set(edgePath(targetID, spec.incomingColl, sourceID), inData, false); err != nil {
			return err
		}

		if err := tx.Set(statsPath(sourceID), map[string]any{
			spec.outCounter: store.Increment(1),
			"updatedAt":     now,
		}, true); err != nil {
			return err
		}

		targetStats := map[string]any{
			spec.inCounter: store.Increment(1),
			"updatedAt":    now,
		}
		if kind == KindSponsorship {
			targetStats["isSponsored"] = true
			targetStats["currentSponsorId"] = sourceID
		}
		if err := tx.Set(statsPath(targetID), targetStats, true); err != nil {
			return err
		}

		// legacy scalar counters live on the user documents themselves and
		// move in the same transaction
		if err := tx.Set(userPath(sourceID), map[string]any{spec.legacyOut: store.Increment(1)}, true); err != nil {
			return err
		}
		return tx.Set(userPath(targetID), map[string]any{spec.legacyIn: store.Increment(1)}, true)
	})
	if err != nil {
		return mapStoreErr(err)
	}

	p.logger.Info("Relation created",
		zap.String("kind", string(kind)),
		zap.String("source_id", sourceID),
		zap.String("target_id", targetID),
	)
	return nil
}

// Cancel ends the edge of the given kind from source to target. Follows are
// physically deleted; subscriptions and sponsorships are flipped to the
// cancelled state to preserve history. Cancelling an absent or already
// cancelled edge is a logged no-op, not an error.
func (p *Projector) Cancel(ctx context.Context, kind Kind, sourceID, targetID string) error {
	spec, ok := kindSpecs[kind]
	if !ok {
		return fmt.Errorf("unknown relation kind: %s", kind)
	}

	var noop bool
	err := p.store.RunTransaction(ctx, func(tx store.Txn) error {
		noop = false // the store may re-run the transaction

		outPath := edgePath(sourceID, spec.outgoingColl, targetID)
		doc, err := tx.Get(outPath)
		if errors.Is(err, store.ErrNotFound) {
			noop = true
			return nil
		}
		if err != nil {
			return err
		}
		edge, err := decodeEdge(doc)
		if err != nil {
			return err
		}
		if !edge.Active() {
			noop = true
			return nil
		}

		// remaining reads before any write: counters for the clamped
		// decrements
		srcStats, err := getOrNil(tx, statsPath(sourceID))
		if err != nil {
			return err
		}
		tgtStats, err := getOrNil(tx, statsPath(targetID))
		if err != nil {
			return err
		}
		srcUser, err := getOrNil(tx, userPath(sourceID))
		if err != nil {
			return err
		}
		tgtUser, err := getOrNil(tx, userPath(targetID))
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		inPath := edgePath(targetID, spec.incomingColl, sourceID)

		if spec.softCancel {
			upd := map[string]any{
				"state":       string(StateCancelled),
				"cancelledAt": now,
			}
			if err := tx.Update(outPath, upd); err != nil {
				return err
			}
			if err := tx.Update(inPath, upd); err != nil {
				return err
			}
		} else {
			if err := tx.Delete(outPath); err != nil {
				return err
			}
			if err := tx.Delete(inPath); err != nil {
				return err
			}
		}

		srcUpdate := map[string]any{
			spec.outCounter: p.decrementFloor(counterValue(srcStats, spec.outCounter), spec.outCounter, sourceID),
			"updatedAt":     now,
		}
		if err := tx.Set(statsPath(sourceID), srcUpdate, true); err != nil {
			return err
		}

		tgtUpdate := map[string]any{
			spec.inCounter: p.decrementFloor(counterValue(tgtStats, spec.inCounter), spec.inCounter, targetID),
			"updatedAt":    now,
		}
		if kind == KindSponsorship {
			stats := &Stats{}
			if tgtStats != nil {
				stats = decodeStats(tgtStats)
			}
			// only clear the pointer if we are the sponsor holding it
			if stats.CurrentSponsorID == sourceID || stats.CurrentSponsorID == "" {
				tgtUpdate["isSponsored"] = false
				tgtUpdate["currentSponsorId"] = store.DeleteField()
			}
		}
		if err := tx.Set(statsPath(targetID), tgtUpdate, true); err != nil {
			return err
		}

		if srcUser != nil {
			legacy := p.decrementFloor(counterValue(srcUser, spec.legacyOut), spec.legacyOut, sourceID)
			if err := tx.Set(userPath(sourceID), map[string]any{spec.legacyOut: legacy}, true); err != nil {
				return err
			}
		}
		if tgtUser != nil {
			legacy := p.decrementFloor(counterValue(tgtUser, spec.legacyIn), spec.legacyIn, targetID)
			if err := tx.Set(userPath(targetID), map[string]any{spec.legacyIn: legacy}, true); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return mapStoreErr(err)
	}

	if noop {
		p.logger.Info("Cancel was a no-op, edge not active",
			zap.String("kind", string(kind)),
			zap.String("source_id", sourceID),
			zap.String("target_id", targetID),
		)
		return nil
	}

	p.logger.Info("Relation cancelled",
		zap.String("kind", string(kind)),
		zap.String("source_id", sourceID),
		zap.String("target_id", targetID),
	)
	return nil
}

// decrementFloor clamps counter decrements at zero. Hitting the floor means
// a view was already out of sync, which is worth a log line but must not
// fail the cancellation itself.
func (p *Projector) decrementFloor(current int64, field, userID string) int64 {
	next := current - 1
	if next < 0 {
		p.logger.Warn("Counter underflow clamped to zero",
			zap.String("field", field),
			zap.String("user_id", userID),
			zap.Int64("value", current),
		)
		return 0
	}
	return next
}

func getOrNil(tx store.Txn, path string) (*store.Document, error) {
	doc, err := tx.Get(path)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	return doc, err
}

func counterValue(doc *store.Document, field string) int64 {
	if doc == nil {
		return 0
	}
	return asInt64(doc.Data[field])
}

// mapStoreErr translates store-level failures into the caller-facing
// taxonomy while letting already-classified errors through
func mapStoreErr(err error) error {
	if err == nil {
		return nil
	}
	var base *pkgerrors.BaseError
	if errors.As(err, &base) {
		return err
	}
	if errors.Is(err, store.ErrAborted) {
		return pkgerrors.NewContention(defaultTxAttempts, err)
	}
	return pkgerrors.NewStoreUnavailable(err)
}
