// Package service implements the role transition engine: the only code path
// through which a user's role ever changes.
//
// Both transition paths (citizen→voter, citizen/voter→candidate) follow the
// same shape: the subject submits an application, an authorized reviewer
// decides it, and only an approval flips the role. Every decision runs in a
// single transaction together with its audit entry.
package service

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"comitia/internal/audit"
	"comitia/internal/identity/metrics"
	"comitia/internal/identity/models"
	id "comitia/pkg/domain"
	"comitia/pkg/platform/tx"
)

// UserStore is the subset of user persistence the engine needs.
type UserStore interface {
	FindByID(ctx context.Context, userID id.UserID) (*models.User, error)
	Update(ctx context.Context, u *models.User) error
}

// ApplicationStore persists role applications.
type ApplicationStore interface {
	Create(ctx context.Context, a *models.RoleApplication) error
	FindByID(ctx context.Context, appID id.ApplicationID) (*models.RoleApplication, error)
	FindOpenByUserAndType(ctx context.Context, userID id.UserID, appType models.ApplicationType) (*models.RoleApplication, error)
	Update(ctx context.Context, a *models.RoleApplication) error
	ListByStatus(ctx context.Context, status models.ApplicationStatus) ([]models.RoleApplication, error)
}

// ProfileStore persists the voter and candidate profiles created by
// approvals.
type ProfileStore interface {
	CreateVoterProfile(ctx context.Context, p *models.VoterProfile) error
	FindVoterProfile(ctx context.Context, userID id.UserID) (*models.VoterProfile, error)
	CreateCandidateProfile(ctx context.Context, p *models.CandidateProfile) error
	FindCandidateProfile(ctx context.Context, userID id.UserID) (*models.CandidateProfile, error)
	UpdateCandidateProfile(ctx context.Context, p *models.CandidateProfile) error
}

// AuditPublisher is the fail-closed audit sink. A nil publisher disables
// auditing (tests only).
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service coordinates role applications and their decisions.
type Service struct {
	users    UserStore
	apps     ApplicationStore
	profiles ProfileStore
	runner   tx.Runner

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

// WithAuditPublisher sets the fail-closed audit publisher. Production
// deployments must set it.
func WithAuditPublisher(p AuditPublisher) Option {
	return func(s *Service) { s.auditPublisher = p }
}

// WithMetrics sets the Prometheus collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func New(users UserStore, apps ApplicationStore, profiles ProfileStore, runner tx.Runner, opts ...Option) *Service {
	s := &Service{
		users:    users,
		apps:     apps,
		profiles: profiles,
		runner:   runner,
		logger:   slog.Default(),
		tracer:   otel.Tracer("comitia/identity"),
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
