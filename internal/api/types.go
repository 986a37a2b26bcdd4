package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"example.com/activitycontrol/internal/domain"
)

// CreateActivityRequest is the payload for POST /v1/activities.
type CreateActivityRequest struct {
	AssigneeID  string     `json:"assignee_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Category    string     `json:"category"`
	Priority    string     `json:"priority"`
	DueAt       *time.Time `json:"due_at"`
}

// Validate ensures request correctness.
func (r CreateActivityRequest) Validate() error {
	if strings.TrimSpace(r.AssigneeID) == "" {
		return errors.New("assignee_id is required")
	}
	if strings.TrimSpace(r.Title) == "" {
		return errors.New("title is required")
	}
	if r.Priority != "" && !domain.Priority(r.Priority).Valid() {
		return errors.New("priority must be low, medium, or high")
	}
	return nil
}

// CreateActivityResponse describes the response body for create.
type CreateActivityResponse struct {
	ActivityID string `json:"activity_id"`
	Status     string `json:"status"`
	Replay     bool   `json:"idempotent_replay"`
}

// TransitionRequest is the payload for POST /v1/activities/{id}/status.
type TransitionRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

// ActivityView exposes full details about an activity.
type ActivityView struct {
	ActivityID  string     `json:"activity_id"`
	TenantID    string     `json:"tenant_id"`
	AssigneeID  string     `json:"assignee_id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Category    string     `json:"category,omitempty"`
	Priority    string     `json:"priority"`
	Status      string     `json:"status"`
	DueAt       *time.Time `json:"due_at,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	Overdue     bool       `json:"overdue"`
}

// ListActivitiesResponse packages list results.
type ListActivitiesResponse struct {
	Items      []ActivityView `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

// SummaryResponse carries the dashboard headline counters.
type SummaryResponse struct {
	Total                int        `json:"total"`
	Planned              int        `json:"planned"`
	InProgress           int        `json:"in_progress"`
	Completed            int        `json:"completed"`
	Cancelled            int        `json:"cancelled"`
	Overdue              int        `json:"overdue"`
	CompletionRate       float64    `json:"completion_rate"`
	AverageCycleTimeMins float64    `json:"average_cycle_time_minutes"`
	LastActivityAt       *time.Time `json:"last_activity_at,omitempty"`
}

// TimeBucketView is one chart point of the dashboard time series.
type TimeBucketView struct {
	Day       string `json:"day"`
	Created   int    `json:"created"`
	Completed int    `json:"completed"`
}

// TimeSeriesResponse feeds the dashboard charts.
type TimeSeriesResponse struct {
	WindowDays int              `json:"window_days"`
	Buckets    []TimeBucketView `json:"buckets"`
}

// BreakdownRowView is one grouped row of the dashboard breakdown.
type BreakdownRowView struct {
	Group          string  `json:"group"`
	Total          int     `json:"total"`
	Completed      int     `json:"completed"`
	Overdue        int     `json:"overdue"`
	CompletionRate float64 `json:"completion_rate"`
}

// BreakdownResponse groups totals by category or assignee.
type BreakdownResponse struct {
	GroupBy string             `json:"group_by"`
	Rows    []BreakdownRowView `json:"rows"`
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func toActivityView(activity domain.Activity) ActivityView {
	return ActivityView{
		ActivityID:  activity.ID,
		TenantID:    activity.TenantID,
		AssigneeID:  activity.AssigneeID,
		Title:       activity.Title,
		Description: activity.Description,
		Category:    activity.Category,
		Priority:    string(activity.Priority),
		Status:      string(activity.Status),
		DueAt:       activity.DueAt,
		StartedAt:   activity.StartedAt,
		CompletedAt: activity.CompletedAt,
		CreatedAt:   activity.CreatedAt,
		UpdatedAt:   activity.UpdatedAt,
		Overdue:     activity.Overdue(time.Now().UTC()),
	}
}
