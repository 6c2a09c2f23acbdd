// Package ranking resolves a user's 1-based leaderboard position within
// their preferred geographic scope. The store has no rank-of-row query, so
// the position comes from a full ordered scan of the resolved partition —
// fine for a city or province, known to degrade for the global scope.
package ranking

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"fanlink/backend/internal/store"
	"fanlink/backend/pkg/logger"
	pkgerrors "fanlink/backend/pkg/errors"
)

// Preference is the user's chosen ranking scope
type Preference string

const (
	PreferenceLocal      Preference = "local"
	PreferenceProvincial Preference = "provincial"
	PreferenceNational   Preference = "national"
	PreferenceGlobal     Preference = "global"
)

// GlobalLabel is the scope label returned for the global partition
const GlobalLabel = "Global"

const usersCollection = "users"

// scopeDef binds a preference to the user attribute that partitions it.
// Order matters: each entry falls back to the next when its attribute is
// blank.
type scopeDef struct {
	pref  Preference
	field string // empty for the global scope
}

var scopeOrder = []scopeDef{
	{PreferenceLocal, "city"},
	{PreferenceProvincial, "province"},
	{PreferenceNational, "country"},
	{PreferenceGlobal, ""},
}

// Index resolves ranking positions
type Index struct {
	store  store.Store
	logger *zap.Logger
}

// NewIndex creates a ranking index over the given store
func NewIndex(s store.Store) *Index {
	return &Index{
		store:  s,
		logger: logger.Named("ranking"),
	}
}

// Position returns the user's 1-based rank within their resolved scope and
// the label of that scope (the partition value, or "Global"). A user whose
// own document has not landed in the scan yet is placed last instead of
// failing.
func (i *Index) Position(ctx context.Context, nodeID string) (int, string, error) {
	doc, err := i.store.Get(ctx, usersCollection+"/"+nodeID)
	if errors.Is(err, store.ErrNotFound) {
		return 0, "", pkgerrors.NewUserNotFound(nodeID)
	}
	if err != nil {
		return 0, "", pkgerrors.NewStoreUnavailable(err)
	}

	pref := parsePreference(doc.Data["rankingPreference"])
	field, value := i.resolveScope(pref, doc.Data, nodeID)

	q := i.store.Query(usersCollection)
	if field != "" {
		q = q.Where(field, "==", value)
	}
	docs, err := q.OrderBy("score", store.Desc).Documents(ctx)
	if err != nil {
		return 0, "", pkgerrors.NewStoreUnavailable(err)
	}

	label := GlobalLabel
	if field != "" {
		label = value
	}

	for idx, d := range docs {
		if d.ID == nodeID {
			return idx + 1, label, nil
		}
	}

	// the user's own write may not be visible in the scan yet; rank them
	// last rather than erroring
	i.logger.Warn("User missing from own ranking scan, placing last",
		zap.String("user_id", nodeID),
		zap.String("scope", label),
		zap.Int("scan_size", len(docs)),
	)
	return len(docs) + 1, label, nil
}

// resolveScope walks from the preferred scope to broader ones until it
// finds a usable partition attribute, ending at global
func (i *Index) resolveScope(pref Preference, data map[string]any, nodeID string) (field, value string) {
	started := false
	for _, def := range scopeOrder {
		if def.pref == pref {
			started = true
		}
		if !started {
			continue
		}
		if def.field == "" {
			return "", ""
		}
		if v, ok := data[def.field].(string); ok && v != "" {
			return def.field, v
		}
		i.logger.Debug("Scope attribute blank, widening",
			zap.String("user_id", nodeID),
			zap.String("scope", string(def.pref)),
		)
	}
	return "", ""
}

func parsePreference(v any) Preference {
	s, ok := v.(string)
	if !ok {
		return PreferenceGlobal
	}
	switch Preference(s) {
	case PreferenceLocal, PreferenceProvincial, PreferenceNational, PreferenceGlobal:
		return Preference(s)
	default:
		return PreferenceGlobal
	}
}
