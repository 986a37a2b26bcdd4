// Package api exposes HTTP handlers for the activity control service.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"example.com/activitycontrol/internal/auth"
	"example.com/activitycontrol/internal/domain"
	"example.com/activitycontrol/internal/persistence"
)

// Handler coordinates HTTP requests with the domain service.
type Handler struct {
	service *domain.Service
}

// NewHandler builds a Handler.
func NewHandler(service *domain.Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/activities", h.activities)
	mux.HandleFunc("/v1/activities/", h.activitySubtree)
	mux.HandleFunc("/v1/dashboard/summary", h.dashboardSummary)
	mux.HandleFunc("/v1/dashboard/timeseries", h.dashboardTimeSeries)
	mux.HandleFunc("/v1/dashboard/breakdown", h.dashboardBreakdown)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) activities(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.createActivity(w, r)
	case http.MethodGet:
		h.listActivities(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) activitySubtree(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/activities/")
	if rest == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing activity id")
		return
	}

	if id, ok := strings.CutSuffix(rest, "/status"); ok {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
			return
		}
		h.transitionActivity(w, r, id)
		return
	}

	if strings.Contains(rest, "/") {
		writeError(w, http.StatusNotFound, "not_found", "unknown resource")
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.getActivity(w, r, rest)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) createActivity(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeActivitiesWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope activities:write required")
		return
	}

	var req CreateActivityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	idempotencyKey := r.Header.Get("Idempotency-Key")

	activity, replay, err := h.service.Create(r.Context(), domain.CreateInput{
		TenantID:       claims.TenantID,
		AssigneeID:     req.AssigneeID,
		Title:          req.Title,
		Description:    req.Description,
		Category:       req.Category,
		Priority:       domain.Priority(req.Priority),
		DueAt:          req.DueAt,
		IdempotencyKey: idempotencyKey,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	resp := CreateActivityResponse{
		ActivityID: activity.ID,
		Status:     string(activity.Status),
		Replay:     replay,
	}

	status := http.StatusCreated
	if replay {
		status = http.StatusOK
	}
	writeJSON(w, status, resp)
}

func (h *Handler) getActivity(w http.ResponseWriter, r *http.Request, id string) {
	claims, ok := requireReadScope(w, r)
	if !ok {
		return
	}

	activity, err := h.service.Get(r.Context(), claims.TenantID, id)
	if err != nil {
		if errors.Is(err, domain.ErrActivityNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "activity not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, toActivityView(*activity))
}

func (h *Handler) transitionActivity(w http.ResponseWriter, r *http.Request, id string) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeActivitiesWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope activities:write required")
		return
	}

	var req TransitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	target := domain.Status(req.Status)
	if !target.Valid() {
		writeError(w, http.StatusBadRequest, "validation_failed", "unknown status")
		return
	}

	activity, err := h.service.Transition(r.Context(), claims.TenantID, id, target, req.Reason)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrActivityNotFound):
			writeError(w, http.StatusNotFound, "not_found", "activity not found")
		case errors.Is(err, domain.ErrInvalidTransition):
			writeError(w, http.StatusConflict, "invalid_transition", err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, toActivityView(*activity))
}

func (h *Handler) listActivities(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireReadScope(w, r)
	if !ok {
		return
	}

	assigneeID := r.URL.Query().Get("assignee_id")
	if assigneeID == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "missing assignee_id parameter")
		return
	}

	filter := domain.ListFilter{AssigneeID: assigneeID}
	if raw := r.URL.Query().Get("status"); raw != "" {
		status := domain.Status(raw)
		if !status.Valid() {
			writeError(w, http.StatusBadRequest, "validation_failed", "unknown status filter")
			return
		}
		filter.Status = status
	}
	filter.Category = r.URL.Query().Get("category")

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	cursorToken := r.URL.Query().Get("cursor")
	cursor, err := persistence.DecodeCursor(cursorToken)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid cursor")
		return
	}

	activities, next, err := h.service.List(r.Context(), claims.TenantID, filter, cursor, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	items := make([]ActivityView, 0, len(activities))
	for _, activity := range activities {
		items = append(items, toActivityView(activity))
	}

	resp := ListActivitiesResponse{
		Items:      items,
		NextCursor: persistence.EncodeCursor(next),
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) dashboardSummary(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireDashboardScope(w, r)
	if !ok {
		return
	}

	assigneeID := r.URL.Query().Get("assignee_id")

	summary, err := h.service.DashboardSummary(r.Context(), claims.TenantID, assigneeID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	resp := SummaryResponse{
		Total:                summary.Total,
		Planned:              summary.Planned,
		InProgress:           summary.InProgress,
		Completed:            summary.Completed,
		Cancelled:            summary.Cancelled,
		Overdue:              summary.Overdue,
		CompletionRate:       summary.CompletionRate,
		AverageCycleTimeMins: summary.AverageCycleTimeMins,
		LastActivityAt:       summary.LastActivityAt,
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) dashboardTimeSeries(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireDashboardScope(w, r)
	if !ok {
		return
	}

	windowDays := 30
	if raw := r.URL.Query().Get("window_days"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			if parsed > 365 {
				parsed = 365
			}
			windowDays = parsed
		}
	}

	window := time.Duration(windowDays) * 24 * time.Hour
	buckets, err := h.service.DashboardTimeSeries(r.Context(), claims.TenantID, window)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	resp := TimeSeriesResponse{
		WindowDays: windowDays,
		Buckets:    make([]TimeBucketView, 0, len(buckets)),
	}
	for _, bucket := range buckets {
		resp.Buckets = append(resp.Buckets, TimeBucketView{
			Day:       bucket.Day.Format("2006-01-02"),
			Created:   bucket.Created,
			Completed: bucket.Completed,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) dashboardBreakdown(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireDashboardScope(w, r)
	if !ok {
		return
	}

	groupBy := r.URL.Query().Get("group_by")
	if groupBy == "" {
		groupBy = "category"
	}
	if groupBy != "category" && groupBy != "assignee" {
		writeError(w, http.StatusBadRequest, "validation_failed", "group_by must be category or assignee")
		return
	}

	rows, err := h.service.DashboardBreakdown(r.Context(), claims.TenantID, groupBy)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	resp := BreakdownResponse{
		GroupBy: groupBy,
		Rows:    make([]BreakdownRowView, 0, len(rows)),
	}
	for _, row := range rows {
		resp.Rows = append(resp.Rows, BreakdownRowView{
			Group:          row.Group,
			Total:          row.Total,
			Completed:      row.Completed,
			Overdue:        row.Overdue,
			CompletionRate: row.CompletionRate,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func requireReadScope(w http.ResponseWriter, r *http.Request) (*auth.Claims, bool) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return nil, false
	}
	if !claims.HasScope(auth.ScopeActivitiesRead) && !claims.HasScope(auth.ScopeActivitiesWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope activities:read required")
		return nil, false
	}
	return claims, true
}

func requireDashboardScope(w http.ResponseWriter, r *http.Request) (*auth.Claims, bool) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return nil, false
	}
	if !claims.HasScope(auth.ScopeDashboardRead) && !claims.HasScope(auth.ScopeActivitiesRead) {
		writeError(w, http.StatusForbidden, "forbidden", "scope dashboard:read required")
		return nil, false
	}
	return claims, true
}
