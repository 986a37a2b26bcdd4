package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/activitycontrol/internal/domain"
	"example.com/activitycontrol/internal/events"
	"example.com/activitycontrol/internal/observability"
)

const activityColumns = `activity_id, tenant_id, assignee_id, title, description, category, priority, status, due_at, started_at, completed_at, created_at, updated_at`

// Repository provides Postgres-backed persistence for activities and outbox events.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// FindByIdempotency checks if an activity already exists for the supplied idempotency key.
func (r *Repository) FindByIdempotency(ctx context.Context, tenantID, assigneeID, idempotencyKey string) (*domain.Activity, error) {
	if idempotencyKey == "" {
		return nil, nil
	}

	query := `SELECT ` + activityColumns + `
        FROM activities WHERE tenant_id=$1 AND assignee_id=$2 AND idempotency_key=$3`

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", tenantID); err != nil {
		return nil, err
	}

	activity, err := scanActivity(tx.QueryRow(ctx, query, tenantID, assigneeID, idempotencyKey))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, tx.Commit(ctx)
		}
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return activity, nil
}

// Create persists the activity and records the outbox event inside a single transaction.
func (r *Repository) Create(ctx context.Context, activity domain.Activity, idempotencyKey string) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", activity.TenantID); err != nil {
		return err
	}

	insertActivity := `INSERT INTO activities (activity_id, tenant_id, assignee_id, title, description, category, priority, status, due_at, idempotency_key, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`

	_, err = tx.Exec(ctx, insertActivity,
		activity.ID,
		activity.TenantID,
		activity.AssigneeID,
		activity.Title,
		activity.Description,
		activity.Category,
		activity.Priority,
		activity.Status,
		activity.DueAt,
		nullIfEmpty(idempotencyKey),
		activity.CreatedAt,
		activity.UpdatedAt,
	)
	if err != nil {
		return err
	}

	if err = r.insertOutbox(ctx, tx, activity, "activity.created", events.ActivityCreated{
		ActivityID: activity.ID,
		TenantID:   activity.TenantID,
		AssigneeID: activity.AssigneeID,
		Title:      activity.Title,
		Category:   activity.Category,
		Priority:   string(activity.Priority),
		DueAt:      activity.DueAt,
		CreatedAt:  activity.CreatedAt,
	}); err != nil {
		return err
	}

	err = tx.Commit(ctx)
	if err != nil {
		return err
	}
	observability.RecordActivityPersisted(activity.UpdatedAt)
	return nil
}

// UpdateStatus stores the transitioned activity and queues the status event.
func (r *Repository) UpdateStatus(ctx context.Context, activity domain.Activity, reason string) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", activity.TenantID); err != nil {
		return err
	}

	const stmt = `UPDATE activities
        SET status=$1, started_at=$2, completed_at=$3, updated_at=$4
        WHERE tenant_id=$5 AND activity_id=$6`

	tag, err := tx.Exec(ctx, stmt,
		activity.Status,
		activity.StartedAt,
		activity.CompletedAt,
		activity.UpdatedAt,
		activity.TenantID,
		activity.ID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		err = domain.ErrActivityNotFound
		return err
	}

	if err = r.insertOutbox(ctx, tx, activity, "activity.status_changed", events.ActivityStatusChanged{
		ActivityID: activity.ID,
		TenantID:   activity.TenantID,
		AssigneeID: activity.AssigneeID,
		Status:     string(activity.Status),
		OccurredAt: activity.UpdatedAt,
		Reason:     reason,
	}); err != nil {
		return err
	}

	err = tx.Commit(ctx)
	if err != nil {
		return err
	}
	observability.RecordTransition(string(activity.Status))
	if activity.Status.Terminal() {
		observability.RecordActivityClosed(activity.UpdatedAt)
	}
	return nil
}

func (r *Repository) insertOutbox(ctx context.Context, tx pgx.Tx, activity domain.Activity, eventType string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	meta := eventCatalog[eventType]
	if meta.Topic == "" {
		return fmt.Errorf("unknown event type: %s", eventType)
	}

	partitionKey := meta.PartitionKeyFn(activity)
	dedupeKey := fmt.Sprintf("%s:%s:%s", activity.ID, eventType, activity.UpdatedAt.UTC().Format(time.RFC3339Nano))

	const stmt = `INSERT INTO outbox (tenant_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`

	_, err = tx.Exec(ctx, stmt,
		activity.TenantID,
		"activity",
		activity.ID,
		eventType,
		meta.Topic,
		meta.SchemaSubject,
		partitionKey,
		body,
		dedupeKey,
	)
	return err
}

// Get retrieves an activity by ID.
func (r *Repository) Get(ctx context.Context, tenantID, activityID string) (*domain.Activity, error) {
	query := `SELECT ` + activityColumns + `
        FROM activities WHERE tenant_id=$1 AND activity_id=$2`

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", tenantID); err != nil {
		return nil, err
	}

	activity, err := scanActivity(tx.QueryRow(ctx, query, tenantID, activityID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if err := tx.Commit(ctx); err != nil {
				return nil, err
			}
			return nil, nil
		}
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return activity, nil
}

// List returns activities matching the filter ordered by creation time.
func (r *Repository) List(ctx context.Context, tenantID string, filter domain.ListFilter, cursor *domain.Cursor, limit int) ([]domain.Activity, *domain.Cursor, error) {
	args := []interface{}{tenantID, filter.AssigneeID, limit}
	query := `SELECT ` + activityColumns + `
        FROM activities WHERE tenant_id=$1 AND assignee_id=$2`

	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(` AND status=$%d`, len(args))
	}
	if filter.Category != "" {
		args = append(args, filter.Category)
		query += fmt.Sprintf(` AND category=$%d`, len(args))
	}
	if cursor != nil {
		args = append(args, cursor.CreatedAt, cursor.ID)
		query += fmt.Sprintf(` AND (created_at, activity_id) < ($%d, $%d)`, len(args)-1, len(args))
	}

	query += ` ORDER BY created_at DESC, activity_id DESC LIMIT $3`

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", tenantID); err != nil {
		return nil, nil, err
	}

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	results := make([]domain.Activity, 0, limit)
	for rows.Next() {
		activity, err := scanActivity(rows)
		if err != nil {
			return nil, nil, err
		}
		results = append(results, *activity)
	}

	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, err
	}

	var nextCursor *domain.Cursor
	if len(results) == limit {
		last := results[len(results)-1]
		nextCursor = &domain.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}
	}

	return results, nextCursor, nil
}

// Summary aggregates board counters for the dashboard in a single query.
func (r *Repository) Summary(ctx context.Context, tenantID, assigneeID string, now time.Time) (domain.Summary, error) {
	query := `SELECT COUNT(*),
        COUNT(*) FILTER (WHERE status='planned'),
        COUNT(*) FILTER (WHERE status='in_progress'),
        COUNT(*) FILTER (WHERE status='completed'),
        COUNT(*) FILTER (WHERE status='cancelled'),
        COUNT(*) FILTER (WHERE due_at IS NOT NULL AND due_at < $2 AND status IN ('planned','in_progress')),
        COALESCE(AVG(EXTRACT(EPOCH FROM (completed_at - started_at)) / 60.0) FILTER (WHERE status='completed' AND started_at IS NOT NULL), 0),
        MAX(updated_at)
        FROM activities WHERE tenant_id=$1`

	args := []interface{}{tenantID, now}
	if assigneeID != "" {
		args = append(args, assigneeID)
		query += ` AND assignee_id=$3`
	}

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return domain.Summary{}, err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return domain.Summary{}, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", tenantID); err != nil {
		return domain.Summary{}, err
	}

	var summary domain.Summary
	var lastActivityAt *time.Time
	row := tx.QueryRow(ctx, query, args...)
	if err := row.Scan(
		&summary.Total,
		&summary.Planned,
		&summary.InProgress,
		&summary.Completed,
		&summary.Cancelled,
		&summary.Overdue,
		&summary.AverageCycleTimeMins,
		&lastActivityAt,
	); err != nil {
		return domain.Summary{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Summary{}, err
	}

	summary.LastActivityAt = lastActivityAt
	if summary.Total > 0 {
		summary.CompletionRate = float64(summary.Completed) / float64(summary.Total)
	}
	return summary, nil
}

// TimeSeries returns daily created/completed buckets for the chart feed.
// Days without activity still appear so the chart axis stays continuous.
func (r *Repository) TimeSeries(ctx context.Context, tenantID string, from, to time.Time) ([]domain.TimeBucket, error) {
	const query = `SELECT gs AS day,
        COALESCE(c.created, 0),
        COALESCE(f.completed, 0)
        FROM generate_series(date_trunc('day', $2::timestamptz), date_trunc('day', $3::timestamptz), interval '1 day') AS gs
        LEFT JOIN (
            SELECT date_trunc('day', created_at) AS day, COUNT(*) AS created
            FROM activities WHERE tenant_id=$1 AND created_at >= $2 AND created_at <= $3
            GROUP BY 1
        ) c ON c.day = gs
        LEFT JOIN (
            SELECT date_trunc('day', completed_at) AS day, COUNT(*) AS completed
            FROM activities WHERE tenant_id=$1 AND status='completed' AND completed_at >= $2 AND completed_at <= $3
            GROUP BY 1
        ) f ON f.day = gs
        ORDER BY gs`

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", tenantID); err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, query, tenantID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	buckets := make([]domain.TimeBucket, 0)
	for rows.Next() {
		var bucket domain.TimeBucket
		if err := rows.Scan(&bucket.Day, &bucket.Created, &bucket.Completed); err != nil {
			return nil, err
		}
		buckets = append(buckets, bucket)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return buckets, nil
}

// Breakdown aggregates totals grouped by category or assignee.
func (r *Repository) Breakdown(ctx context.Context, tenantID, groupBy string) ([]domain.BreakdownRow, error) {
	var column string
	switch groupBy {
	case "category":
		column = "COALESCE(NULLIF(category, ''), 'uncategorised')"
	case "assignee":
		column = "assignee_id"
	default:
		return nil, fmt.Errorf("unsupported breakdown group: %s", groupBy)
	}

	query := `SELECT ` + column + ` AS grp,
        COUNT(*),
        COUNT(*) FILTER (WHERE status='completed'),
        COUNT(*) FILTER (WHERE due_at IS NOT NULL AND due_at < NOW() AND status IN ('planned','in_progress'))
        FROM activities WHERE tenant_id=$1
        GROUP BY grp
        ORDER BY COUNT(*) DESC, grp`

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", tenantID); err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, query, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]domain.BreakdownRow, 0)
	for rows.Next() {
		var row domain.BreakdownRow
		if err := rows.Scan(&row.Group, &row.Total, &row.Completed, &row.Overdue); err != nil {
			return nil, err
		}
		if row.Total > 0 {
			row.CompletionRate = float64(row.Completed) / float64(row.Total)
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return results, nil
}

func scanActivity(row pgx.Row) (*domain.Activity, error) {
	var activity domain.Activity
	if err := row.Scan(
		&activity.ID,
		&activity.TenantID,
		&activity.AssigneeID,
		&activity.Title,
		&activity.Description,
		&activity.Category,
		&activity.Priority,
		&activity.Status,
		&activity.DueAt,
		&activity.StartedAt,
		&activity.CompletedAt,
		&activity.CreatedAt,
		&activity.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &activity, nil
}

func nullIfEmpty(value string) interface{} {
	if value == "" {
		return nil
	}
	return value
}

// EventMetadata describes how to route an outbox event.
type EventMetadata struct {
	Topic          string
	SchemaSubject  string
	PartitionKeyFn func(domain.Activity) string
}

var eventCatalog = map[string]EventMetadata{
	"activity.created": {
		Topic:         "activity_events",
		SchemaSubject: "activity_events-value",
		PartitionKeyFn: func(a domain.Activity) string {
			return fmt.Sprintf("%s:%s", a.TenantID, a.AssigneeID)
		},
	},
	"activity.status_changed": {
		Topic:         "activity_status_changed",
		SchemaSubject: "activity_status_changed-value",
		PartitionKeyFn: func(a domain.Activity) string {
			return a.ID
		},
	},
}
