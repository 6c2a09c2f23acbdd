// Package relations implements the relationship-mutation engine, the
// multi-tier read resolver and the counter aggregates for the social graph:
// follows, subscriptions and sponsorships between users.
package relations

import (
	"time"

	pkgerrors "fanlink/backend/pkg/errors"

	"fanlink/backend/internal/store"
)

// Kind is the relationship kind
type Kind string

const (
	KindFollow       Kind = "follow"
	KindSubscription Kind = "subscription"
	KindSponsorship  Kind = "sponsorship"
)

// ParseKind maps an external kind label to a Kind
func ParseKind(s string) (Kind, bool) {
	switch Kind(s) {
	case KindFollow, KindSubscription, KindSponsorship:
		return Kind(s), true
	}
	return "", false
}

// Direction selects which side of an edge to enumerate
type Direction string

const (
	DirectionOutgoing Direction = "outgoing"
	DirectionIncoming Direction = "incoming"
)

// State is the edge lifecycle state
type State string

const (
	StateActive    State = "active"
	StateCancelled State = "cancelled"
)

// Edge is one side of a relationship record. UserID is the counterpart:
// the target on the outgoing view, the source on the incoming view.
type Edge struct {
	UserID      string
	State       State
	CreatedAt   time.Time
	CancelledAt *time.Time
	ExpiresAt   *time.Time // advisory only, nothing enforces it
}

// Active reports whether the edge is in the active state
func (e *Edge) Active() bool { return e.State == StateActive }

// Stats is the per-user denormalized counter aggregate
type Stats struct {
	FollowersCount     int64
	FollowingCount     int64
	SubscribersCount   int64
	SubscriptionsCount int64
	SponsoringCount    int64
	SponsorshipsCount  int64
	IsSponsored        bool
	CurrentSponsorID   string
}

// NodeSummary is the display projection of a user document
type NodeSummary struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	PhotoURL    string `json:"photo_url"`
	Score       int64  `json:"score"`
}

// CreateAttrs carries optional attributes for edge creation
type CreateAttrs struct {
	ExpiresAt *time.Time
}

// kindSpec describes where each kind lives across the three layouts and
// the aggregate/legacy counter fields it maintains
type kindSpec struct {
	outgoingColl string // subcollection under the source user
	incomingColl string // subcollection under the target user
	outCounter   string // aggregate counter on the source
	inCounter    string // aggregate counter on the target
	legacyOut    string // legacy scalar on the source user doc
	legacyIn     string // legacy scalar on the target user doc
	softCancel   bool   // cancelled edges are kept with a state flip
}

var kindSpecs = map[Kind]kindSpec{
	KindFollow: {
		outgoingColl: "following",
		incomingColl: "followers",
		outCounter:   "followingCount",
		inCounter:    "followersCount",
		legacyOut:    "following",
		legacyIn:     "followers",
		// follows are physically removed on cancel; there is no audit
		// requirement for them
		softCancel: false,
	},
	KindSubscription: {
		outgoingColl: "subscriptions",
		incomingColl: "subscribers",
		outCounter:   "subscriptionsCount",
		inCounter:    "subscribersCount",
		legacyOut:    "subscriptions",
		legacyIn:     "subscribers",
		softCancel:   true,
	},
	KindSponsorship: {
		outgoingColl: "sponsoring",
		incomingColl: "sponsors",
		outCounter:   "sponsoringCount",
		inCounter:    "sponsorshipsCount",
		legacyOut:    "sponsoring",
		legacyIn:     "sponsorships",
		softCancel:   true,
	},
}

// document paths

const (
	usersCollection         = "users"
	relationListsCollection = "relationLists"
	edgesCollection         = "relationships"
)

func userPath(userID string) string {
	return usersCollection + "/" + userID
}

func edgePath(userID, coll, otherID string) string {
	return usersCollection + "/" + userID + "/" + coll + "/" + otherID
}

func edgeCollection(userID, coll string) string {
	return usersCollection + "/" + userID + "/" + coll
}

func statsPath(userID string) string {
	return usersCollection + "/" + userID + "/aggregates/relations"
}

func relationListPath(userID string) string {
	return relationListsCollection + "/" + userID
}

// decoding — documents are validated at the read boundary; a schema
// mismatch yields ErrMalformedDocument instead of a silently defaulted
// value

func decodeEdge(doc *store.Document) (*Edge, error) {
	userID, ok := asString(doc.Data["userId"])
	if !ok || userID == "" {
		return nil, pkgerrors.NewMalformedDocument(doc.Path, "userId")
	}
	stateRaw, ok := asString(doc.Data["state"])
	if !ok {
		return nil, pkgerrors.NewMalformedDocument(doc.Path, "state")
	}
	state := State(stateRaw)
	if state != StateActive && state != StateCancelled {
		return nil, pkgerrors.NewMalformedDocument(doc.Path, "state")
	}
	createdAt, ok := asTime(doc.Data["createdAt"])
	if !ok {
		return nil, pkgerrors.NewMalformedDocument(doc.Path, "createdAt")
	}

	edge := &Edge{UserID: userID, State: state, CreatedAt: createdAt}
	if t, ok := asTime(doc.Data["cancelledAt"]); ok {
		edge.CancelledAt = &t
	}
	if t, ok := asTime(doc.Data["expiresAt"]); ok {
		edge.ExpiresAt = &t
	}
	return edge, nil
}

func decodeStats(doc *store.Document) *Stats {
	// counters default to 0, so a partially populated aggregate still
	// decodes; only the fields present count
	s := &Stats{
		FollowersCount:     asInt64(doc.Data["followersCount"]),
		FollowingCount:     asInt64(doc.Data["followingCount"]),
		SubscribersCount:   asInt64(doc.Data["subscribersCount"]),
		SubscriptionsCount: asInt64(doc.Data["subscriptionsCount"]),
		SponsoringCount:    asInt64(doc.Data["sponsoringCount"]),
		SponsorshipsCount:  asInt64(doc.Data["sponsorshipsCount"]),
	}
	if b, ok := doc.Data["isSponsored"].(bool); ok {
		s.IsSponsored = b
	}
	if v, ok := asString(doc.Data["currentSponsorId"]); ok {
		s.CurrentSponsorID = v
	}
	return s
}

func decodeSummary(doc *store.Document) (*NodeSummary, error) {
	userID, ok := asString(doc.Data["userId"])
	if !ok || userID == "" {
		return nil, pkgerrors.NewMalformedDocument(doc.Path, "userId")
	}
	name, ok := asString(doc.Data["displayName"])
	if !ok {
		return nil, pkgerrors.NewMalformedDocument(doc.Path, "displayName")
	}
	summary := &NodeSummary{
		UserID:      userID,
		DisplayName: name,
		Score:       asInt64(doc.Data["score"]),
	}
	if url, ok := asString(doc.Data["photoUrl"]); ok {
		summary.PhotoURL = url
	}
	return summary, nil
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func asTime(v any) (time.Time, bool) {
	t, ok := v.(time.Time)
	return t, ok
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int64:
		return n
	case float64:
		return int64(n)
	default:
		return 0
	}
}

// asStringSlice tolerates both []string and the []any Firestore hands back
// for array fields
func asStringSlice(v any) []string {
	switch s := v.(type) {
	case []string:
		return s
	case []any:
		out := make([]string, 0, len(s))
		for _, item := range s {
			if str, ok := item.(string); ok {
				out = append(out, str)
			}
		}
		return out
	default:
		return nil
	}
}
