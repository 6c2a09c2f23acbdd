package relations

import (
	"context"
	"time"

	"fanlink/backend/internal/store"
)

// Service is the caller-facing operation set over the relationship graph.
// It is stateless: every call goes straight to the document store.
type Service struct {
	projector *Projector
	resolver  *Resolver
	stats     *StatsReader
	details   *DetailFetcher
}

// NewService wires the relationship components over one store
func NewService(s store.Store) *Service {
	return &Service{
		projector: NewProjector(s),
		resolver:  NewResolver(s),
		stats:     NewStatsReader(s),
		details:   NewDetailFetcher(s),
	}
}

// Follows

func (s *Service) CreateFollow(ctx context.Context, sourceID, targetID string) error {
	return s.projector.Create(ctx, KindFollow, sourceID, targetID, CreateAttrs{})
}

func (s *Service) CancelFollow(ctx context.Context, sourceID, targetID string) error {
	return s.projector.Cancel(ctx, KindFollow, sourceID, targetID)
}

func (s *Service) IsFollowing(ctx context.Context, sourceID, targetID string) (bool, error) {
	return s.resolver.Exists(ctx, KindFollow, sourceID, targetID)
}

// Subscriptions

func (s *Service) CreateSubscription(ctx context.Context, sourceID, targetID string, expiresAt *time.Time) error {
	return s.projector.Create(ctx, KindSubscription, sourceID, targetID, CreateAttrs{ExpiresAt: expiresAt})
}

func (s *Service) CancelSubscription(ctx context.Context, sourceID, targetID string) error {
	return s.projector.Cancel(ctx, KindSubscription, sourceID, targetID)
}

func (s *Service) IsSubscribed(ctx context.Context, sourceID, targetID string) (bool, error) {
	return s.resolver.Exists(ctx, KindSubscription, sourceID, targetID)
}

// Sponsorships

func (s *Service) CreateSponsorship(ctx context.Context, sourceID, targetID string, expiresAt *time.Time) error {
	return s.projector.Create(ctx, KindSponsorship, sourceID, targetID, CreateAttrs{ExpiresAt: expiresAt})
}

func (s *Service) CancelSponsorship(ctx context.Context, sourceID, targetID string) error {
	return s.projector.Cancel(ctx, KindSponsorship, sourceID, targetID)
}

func (s *Service) IsSponsoring(ctx context.Context, sourceID, targetID string) (bool, error) {
	return s.resolver.Exists(ctx, KindSponsorship, sourceID, targetID)
}

func (s *Service) GetCurrentSponsor(ctx context.Context, nodeID string) (string, bool, error) {
	return s.stats.CurrentSponsor(ctx, nodeID)
}

// Enumeration and display

func (s *Service) ListRelationIds(ctx context.Context, kind Kind, nodeID string, dir Direction) ([]string, error) {
	return s.resolver.ListIds(ctx, kind, nodeID, dir)
}

func (s *Service) FetchRelationDetails(ctx context.Context, ids []string) ([]NodeSummary, error) {
	return s.details.Fetch(ctx, ids)
}

func (s *Service) GetStats(ctx context.Context, nodeID string, kind Kind) (outCount, inCount int64, err error) {
	return s.stats.Get(ctx, nodeID, kind)
}
