// Package service implements the election lifecycle engine: scheduling,
// per-election candidacies with ballot assignment, eligibility checks and
// results tabulation and publication.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"comitia/internal/audit"
	"comitia/internal/election/metrics"
	"comitia/internal/election/models"
	identitymodels "comitia/internal/identity/models"
	id "comitia/pkg/domain"
	dErrors "comitia/pkg/domain-errors"
	"comitia/pkg/platform/sentinel"
	"comitia/pkg/platform/tx"
	"comitia/pkg/requestcontext"
)

// ElectionStore persists elections and their positions.
type ElectionStore interface {
	Create(ctx context.Context, e *models.Election) error
	FindByID(ctx context.Context, electionID id.ElectionID) (*models.Election, error)
	Update(ctx context.Context, e *models.Election) error
	List(ctx context.Context) ([]models.Election, error)
	CreatePosition(ctx context.Context, p *models.Position) error
	FindPosition(ctx context.Context, positionID id.PositionID) (*models.Position, error)
	ListActivePositions(ctx context.Context, electionID id.ElectionID) ([]models.Position, error)
}

// CandidacyStore persists per-election candidacies. MaxAssignedBallotNumber
// must serialize concurrent callers for the same position and reports the
// highest number ever assigned, withdrawn candidacies included.
type CandidacyStore interface {
	Create(ctx context.Context, c *models.Candidacy) error
	FindByID(ctx context.Context, candidacyID id.CandidacyID) (*models.Candidacy, error)
	Update(ctx context.Context, c *models.Candidacy) error
	MaxAssignedBallotNumber(ctx context.Context, electionID id.ElectionID, positionID id.PositionID) (int, error)
	CountApproved(ctx context.Context, electionID id.ElectionID, positionID id.PositionID) (int, error)
	ListApprovedByPosition(ctx context.Context, electionID id.ElectionID, positionID id.PositionID) ([]models.Candidacy, error)
	ListByElection(ctx context.Context, electionID id.ElectionID) ([]models.Candidacy, error)
}

// ResultStore persists tabulated results.
type ResultStore interface {
	ReplaceForElection(ctx context.Context, electionID id.ElectionID, results []models.Result) error
	ListByElection(ctx context.Context, electionID id.ElectionID) ([]models.Result, error)
	MarkPublished(ctx context.Context, electionID id.ElectionID, publishedAt time.Time) error
}

// UserStore is the slice of identity persistence the engine reads.
type UserStore interface {
	FindByID(ctx context.Context, userID id.UserID) (*identitymodels.User, error)
	Update(ctx context.Context, u *identitymodels.User) error
}

// BallotCache accelerates the ballot and published-results read paths.
// Nil disables caching; errors degrade to a store read.
type BallotCache interface {
	GetBallot(ctx context.Context, electionID id.ElectionID) (*models.Ballot, error)
	SetBallot(ctx context.Context, ballot *models.Ballot) error
	InvalidateBallot(ctx context.Context, electionID id.ElectionID) error
	GetResults(ctx context.Context, electionID id.ElectionID) ([]models.Result, error)
	SetResults(ctx context.Context, electionID id.ElectionID, results []models.Result) error
}

// AuditPublisher is the fail-closed audit sink.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service coordinates the election lifecycle.
type Service struct {
	elections   ElectionStore
	candidacies CandidacyStore
	results     ResultStore
	users       UserStore
	runner      tx.Runner

	cache          BallotCache
	auditPublisher AuditPublisher
	logger         *slog.Logger
	metrics        *metrics.Metrics
	tracer         trace.Tracer
}

// Option configures the Service.
type Option func(*Service)

// WithLogger sets a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithAuditPublisher sets the fail-closed audit publisher.
func WithAuditPublisher(p AuditPublisher) Option {
	return func(s *Service) { s.auditPublisher = p }
}

// WithMetrics sets the Prometheus collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithBallotCache sets the Redis-backed read cache.
func WithBallotCache(c BallotCache) Option {
	return func(s *Service) { s.cache = c }
}

func New(elections ElectionStore, candidacies CandidacyStore, results ResultStore, users UserStore, runner tx.Runner, opts ...Option) *Service {
	s := &Service{
		elections:   elections,
		candidacies: candidacies,
		results:     results,
		users:       users,
		runner:      runner,
		logger:      slog.Default(),
		tracer:      otel.Tracer("comitia/election"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) emit(ctx context.Context, event audit.Event) error {
	if s.auditPublisher == nil {
		return nil
	}
	return s.auditPublisher.Emit(ctx, event)
}

// requireCommissioner loads the actor and checks election-management
// permission against the stored record. Denials are audited.
func (s *Service) requireCommissioner(ctx context.Context, action string) (*identitymodels.User, error) {
	actorID := requestcontext.ActorID(ctx)
	if actorID.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	actor, err := s.users.FindByID(ctx, actorID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "unknown actor")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load actor")
	}
	if !actor.CanManageElections() {
		if emitErr := s.emit(ctx, audit.Event{
			Action:      audit.ActionAuthorizationDenied,
			Description: fmt.Sprintf("%s denied: insufficient role %s", action, actor.Role),
			ActorID:     actorID,
		}); emitErr != nil {
			s.logger.ErrorContext(ctx, "audit denial failed", "error", emitErr)
		}
		return nil, dErrors.Newf(dErrors.CodeForbidden, "role %s may not %s", actor.Role, action)
	}
	return actor, nil
}

// loadElection fetches an election, translating store sentinels.
func (s *Service) loadElection(ctx context.Context, electionID id.ElectionID) (*models.Election, error) {
	e, err := s.elections.FindByID(ctx, electionID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "election not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load election")
	}
	return e, nil
}
