package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"example.com/activitycontrol/internal/auth"
	"example.com/activitycontrol/internal/domain"
)

func TestCreateActivitySuccess(t *testing.T) {
	handler := NewHandler(domain.NewService(&mockRepo{}))

	body := `{"assignee_id":"user-1","title":"Replace filters","category":"maintenance","priority":"high"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/activities", strings.NewReader(body))
	req = withClaims(req, auth.ScopeActivitiesWrite)

	rr := httptest.NewRecorder()
	handler.createActivity(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", rr.Code, rr.Body.String())
	}

	var resp CreateActivityResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.ActivityID == "" {
		t.Fatal("expected activity id")
	}
	if resp.Status != string(domain.StatusPlanned) {
		t.Fatalf("expected planned got %s", resp.Status)
	}
	if resp.Replay {
		t.Fatal("unexpected idempotent replay")
	}
}

func TestCreateActivityValidation(t *testing.T) {
	handler := NewHandler(domain.NewService(&mockRepo{}))

	cases := []string{
		`{"title":"no assignee"}`,
		`{"assignee_id":"user-1"}`,
		`{"assignee_id":"user-1","title":"bad priority","priority":"urgent"}`,
	}

	for _, body := range cases {
		req := httptest.NewRequest(http.MethodPost, "/v1/activities", strings.NewReader(body))
		req = withClaims(req, auth.ScopeActivitiesWrite)

		rr := httptest.NewRecorder()
		handler.createActivity(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 for %s got %d", body, rr.Code)
		}
	}
}

func TestCreateActivityRequiresWriteScope(t *testing.T) {
	handler := NewHandler(domain.NewService(&mockRepo{}))

	body := `{"assignee_id":"user-1","title":"Needs write"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/activities", strings.NewReader(body))
	req = withClaims(req, auth.ScopeActivitiesRead)

	rr := httptest.NewRecorder()
	handler.createActivity(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", rr.Code)
	}
}

func TestTransitionConflict(t *testing.T) {
	now := time.Date(2026, time.April, 2, 9, 0, 0, 0, time.UTC)
	repo := &mockRepo{
		activities: map[string]domain.Activity{
			"act-1": {
				ID:         "act-1",
				TenantID:   "tenant-1",
				AssigneeID: "user-1",
				Title:      "Patch servers",
				Priority:   domain.PriorityMedium,
				Status:     domain.StatusPlanned,
				CreatedAt:  now,
				UpdatedAt:  now,
			},
		},
	}
	handler := NewHandler(domain.NewService(repo))

	req := httptest.NewRequest(http.MethodPost, "/v1/activities/act-1/status", strings.NewReader(`{"status":"completed"}`))
	req = withClaims(req, auth.ScopeActivitiesWrite)

	rr := httptest.NewRecorder()
	handler.transitionActivity(rr, req, "act-1")

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestTransitionSuccess(t *testing.T) {
	now := time.Date(2026, time.April, 2, 9, 0, 0, 0, time.UTC)
	repo := &mockRepo{
		activities: map[string]domain.Activity{
			"act-1": {
				ID:         "act-1",
				TenantID:   "tenant-1",
				AssigneeID: "user-1",
				Title:      "Patch servers",
				Priority:   domain.PriorityMedium,
				Status:     domain.StatusPlanned,
				CreatedAt:  now,
				UpdatedAt:  now,
			},
		},
	}
	handler := NewHandler(domain.NewService(repo))

	req := httptest.NewRequest(http.MethodPost, "/v1/activities/act-1/status", strings.NewReader(`{"status":"in_progress"}`))
	req = withClaims(req, auth.ScopeActivitiesWrite)

	rr := httptest.NewRecorder()
	handler.transitionActivity(rr, req, "act-1")

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}

	var view ActivityView
	if err := json.Unmarshal(rr.Body.Bytes(), &view); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if view.Status != string(domain.StatusInProgress) {
		t.Fatalf("expected in_progress got %s", view.Status)
	}
	if view.StartedAt == nil {
		t.Fatal("expected started_at to be stamped")
	}
}

func TestListActivitiesRequiresAssignee(t *testing.T) {
	handler := NewHandler(domain.NewService(&mockRepo{}))

	req := httptest.NewRequest(http.MethodGet, "/v1/activities", nil)
	req = withClaims(req, auth.ScopeActivitiesRead)

	rr := httptest.NewRecorder()
	handler.listActivities(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rr.Code)
	}
}

func TestDashboardSummarySuccess(t *testing.T) {
	now := time.Date(2026, time.April, 2, 20, 0, 0, 0, time.UTC)
	repo := &mockRepo{
		summary: domain.Summary{
			Total:                8,
			Planned:              2,
			InProgress:           1,
			Completed:            4,
			Cancelled:            1,
			Overdue:              1,
			CompletionRate:       0.5,
			AverageCycleTimeMins: 95.5,
			LastActivityAt:       &now,
		},
	}
	handler := NewHandler(domain.NewService(repo))

	req := httptest.NewRequest(http.MethodGet, "/v1/dashboard/summary?assignee_id=user-1", nil)
	req = withClaims(req, auth.ScopeDashboardRead)

	rr := httptest.NewRecorder()
	handler.dashboardSummary(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}

	var resp SummaryResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Total != 8 {
		t.Fatalf("expected total 8 got %d", resp.Total)
	}
	if resp.CompletionRate != 0.5 {
		t.Fatalf("unexpected completion rate %f", resp.CompletionRate)
	}
	if resp.LastActivityAt == nil {
		t.Fatal("expected last_activity_at")
	}
}

func TestDashboardTimeSeries(t *testing.T) {
	day := time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC)
	repo := &mockRepo{
		buckets: []domain.TimeBucket{
			{Day: day, Created: 3, Completed: 1},
			{Day: day.AddDate(0, 0, 1), Created: 0, Completed: 2},
		},
	}
	handler := NewHandler(domain.NewService(repo))

	req := httptest.NewRequest(http.MethodGet, "/v1/dashboard/timeseries?window_days=7", nil)
	req = withClaims(req, auth.ScopeDashboardRead)

	rr := httptest.NewRecorder()
	handler.dashboardTimeSeries(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}

	var resp TimeSeriesResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.WindowDays != 7 {
		t.Fatalf("expected window_days 7 got %d", resp.WindowDays)
	}
	if len(resp.Buckets) != 2 {
		t.Fatalf("expected 2 buckets got %d", len(resp.Buckets))
	}
	if resp.Buckets[0].Day != "2026-04-01" {
		t.Fatalf("unexpected first bucket day %s", resp.Buckets[0].Day)
	}
}

func TestDashboardBreakdownRejectsUnknownGroup(t *testing.T) {
	handler := NewHandler(domain.NewService(&mockRepo{}))

	req := httptest.NewRequest(http.MethodGet, "/v1/dashboard/breakdown?group_by=priority", nil)
	req = withClaims(req, auth.ScopeDashboardRead)

	rr := httptest.NewRecorder()
	handler.dashboardBreakdown(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rr.Code)
	}
}

func TestDashboardRequiresScope(t *testing.T) {
	handler := NewHandler(domain.NewService(&mockRepo{}))

	req := httptest.NewRequest(http.MethodGet, "/v1/dashboard/summary", nil)
	req = withClaims(req, auth.ScopeActivitiesWrite)

	rr := httptest.NewRecorder()
	handler.dashboardSummary(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", rr.Code)
	}
}

func withClaims(req *http.Request, scopes ...string) *http.Request {
	scopeSet := make(map[string]struct{}, len(scopes))
	for _, scope := range scopes {
		scopeSet[scope] = struct{}{}
	}
	claims := &auth.Claims{
		Subject:   "tester",
		TenantID:  "tenant-1",
		Scopes:    scopeSet,
		ExpiresAt: time.Now().Add(time.Hour),
	}
	return req.WithContext(auth.WithClaims(req.Context(), claims))
}

type mockRepo struct {
	activities map[string]domain.Activity
	summary    domain.Summary
	buckets    []domain.TimeBucket
	rows       []domain.BreakdownRow
}

func (m *mockRepo) FindByIdempotency(ctx context.Context, tenantID, assigneeID, idempotencyKey string) (*domain.Activity, error) {
	return nil, nil
}

func (m *mockRepo) Create(ctx context.Context, activity domain.Activity, idempotencyKey string) error {
	if m.activities == nil {
		m.activities = make(map[string]domain.Activity)
	}
	m.activities[activity.ID] = activity
	return nil
}

func (m *mockRepo) Get(ctx context.Context, tenantID, activityID string) (*domain.Activity, error) {
	activity, ok := m.activities[activityID]
	if !ok || activity.TenantID != tenantID {
		return nil, nil
	}
	return &activity, nil
}

func (m *mockRepo) UpdateStatus(ctx context.Context, activity domain.Activity, reason string) error {
	m.activities[activity.ID] = activity
	return nil
}

func (m *mockRepo) List(ctx context.Context, tenantID string, filter domain.ListFilter, cursor *domain.Cursor, limit int) ([]domain.Activity, *domain.Cursor, error) {
	out := make([]domain.Activity, 0, len(m.activities))
	for _, activity := range m.activities {
		out = append(out, activity)
	}
	return out, nil, nil
}

func (m *mockRepo) Summary(ctx context.Context, tenantID, assigneeID string, now time.Time) (domain.Summary, error) {
	return m.summary, nil
}

func (m *mockRepo) TimeSeries(ctx context.Context, tenantID string, from, to time.Time) ([]domain.TimeBucket, error) {
	return m.buckets, nil
}

func (m *mockRepo) Breakdown(ctx context.Context, tenantID, groupBy string) ([]domain.BreakdownRow, error) {
	return m.rows, nil
}
