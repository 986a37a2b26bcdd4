// Package domain defines the business logic for the activity control service.
package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrActivityNotFound is returned when an activity cannot be located.
	ErrActivityNotFound = errors.New("activity not found")
	// ErrInvalidTransition is returned when a status change violates the lifecycle.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Cursor models the pagination token for activity listings.
type Cursor struct {
	CreatedAt time.Time
	ID        string
}

// ListFilter narrows activity listings.
type ListFilter struct {
	AssigneeID string
	Status     Status
	Category   string
}

// Summary aggregates board-level stats for the dashboard.
type Summary struct {
	Total                int
	Planned              int
	InProgress           int
	Completed            int
	Cancelled            int
	Overdue              int
	CompletionRate       float64
	AverageCycleTimeMins float64
	LastActivityAt       *time.Time
}

// TimeBucket is one day of dashboard chart data.
type TimeBucket struct {
	Day       time.Time
	Created   int
	Completed int
}

// BreakdownRow aggregates per-group totals for the dashboard.
type BreakdownRow struct {
	Group          string
	Total          int
	Completed      int
	Overdue        int
	CompletionRate float64
}

// Repository captures persistence operations for activities.
type Repository interface {
	FindByIdempotency(ctx context.Context, tenantID, assigneeID, idempotencyKey string) (*Activity, error)
	Create(ctx context.Context, activity Activity, idempotencyKey string) error
	Get(ctx context.Context, tenantID, activityID string) (*Activity, error)
	UpdateStatus(ctx context.Context, activity Activity, reason string) error
	List(ctx context.Context, tenantID string, filter ListFilter, cursor *Cursor, limit int) ([]Activity, *Cursor, error)
	Summary(ctx context.Context, tenantID, assigneeID string, now time.Time) (Summary, error)
	TimeSeries(ctx context.Context, tenantID string, from, to time.Time) ([]TimeBucket, error)
	Breakdown(ctx context.Context, tenantID, groupBy string) ([]BreakdownRow, error)
}

// Service orchestrates activity workflows.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService constructs a Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: func() time.Time { return time.Now().UTC() }}
}

// CreateInput captures the payload from the API layer.
type CreateInput struct {
	TenantID       string
	AssigneeID     string
	Title          string
	Description    string
	Category       string
	Priority       Priority
	DueAt          *time.Time
	IdempotencyKey string
}

// Create handles idempotent activity creation. The boolean result reports
// whether an existing record was replayed for the idempotency key.
func (s *Service) Create(ctx context.Context, input CreateInput) (*Activity, bool, error) {
	existing, err := s.repo.FindByIdempotency(ctx, input.TenantID, input.AssigneeID, input.IdempotencyKey)
	if err != nil {
		return nil, false, fmt.Errorf("idempotency lookup: %w", err)
	}
	if existing != nil {
		return existing, true, nil
	}

	now := s.now()
	activity := Activity{
		ID:          uuid.NewString(),
		TenantID:    input.TenantID,
		AssigneeID:  input.AssigneeID,
		Title:       input.Title,
		Description: input.Description,
		Category:    input.Category,
		Priority:    input.Priority,
		Status:      StatusPlanned,
		DueAt:       input.DueAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if activity.Priority == "" {
		activity.Priority = PriorityMedium
	}

	if err := s.repo.Create(ctx, activity, input.IdempotencyKey); err != nil {
		return nil, false, err
	}

	return &activity, false, nil
}

// Get fetches an activity by ID.
func (s *Service) Get(ctx context.Context, tenantID, activityID string) (*Activity, error) {
	activity, err := s.repo.Get(ctx, tenantID, activityID)
	if err != nil {
		return nil, err
	}
	if activity == nil {
		return nil, ErrActivityNotFound
	}
	return activity, nil
}

// Transition moves an activity to the requested status, stamping lifecycle
// timestamps and recording the change for downstream consumers.
func (s *Service) Transition(ctx context.Context, tenantID, activityID string, to Status, reason string) (*Activity, error) {
	activity, err := s.Get(ctx, tenantID, activityID)
	if err != nil {
		return nil, err
	}

	if !CanTransition(activity.Status, to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, activity.Status, to)
	}

	now := s.now()
	activity.Status = to
	activity.UpdatedAt = now
	switch to {
	case StatusInProgress:
		activity.StartedAt = &now
	case StatusCompleted, StatusCancelled:
		activity.CompletedAt = &now
	}

	if err := s.repo.UpdateStatus(ctx, *activity, reason); err != nil {
		return nil, err
	}
	return activity, nil
}

// List fetches activities with cursor pagination.
func (s *Service) List(ctx context.Context, tenantID string, filter ListFilter, cursor *Cursor, limit int) ([]Activity, *Cursor, error) {
	return s.repo.List(ctx, tenantID, filter, cursor, limit)
}

// DashboardSummary aggregates board counters for a tenant, optionally scoped
// to a single assignee.
func (s *Service) DashboardSummary(ctx context.Context, tenantID, assigneeID string) (Summary, error) {
	return s.repo.Summary(ctx, tenantID, assigneeID, s.now())
}

// DashboardTimeSeries returns daily created/completed buckets over the window
// ending now. The buckets feed the dashboard charts directly.
func (s *Service) DashboardTimeSeries(ctx context.Context, tenantID string, window time.Duration) ([]TimeBucket, error) {
	to := s.now()
	from := to.Add(-window)
	return s.repo.TimeSeries(ctx, tenantID, from, to)
}

// DashboardBreakdown aggregates totals grouped by category or assignee.
func (s *Service) DashboardBreakdown(ctx context.Context, tenantID, groupBy string) ([]BreakdownRow, error) {
	if groupBy != "category" && groupBy != "assignee" {
		return nil, fmt.Errorf("unsupported breakdown group: %s", groupBy)
	}
	return s.repo.Breakdown(ctx, tenantID, groupBy)
}
