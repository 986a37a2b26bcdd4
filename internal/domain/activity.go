package domain

import "time"

// Status represents the lifecycle stage of an activity.
type Status string

const (
	StatusPlanned    Status = "planned"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// Priority orders activities on the board.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// transitions enumerates the legal lifecycle edges.
var transitions = map[Status][]Status{
	StatusPlanned:    {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusCompleted, StatusCancelled},
}

// CanTransition reports whether moving from one status to another is legal.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether a status has no outgoing edges.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

// Valid reports whether the status is a known lifecycle stage.
func (s Status) Valid() bool {
	switch s {
	case StatusPlanned, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Valid reports whether the priority is a known level.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// Activity is the canonical activity-control record stored in PostgreSQL.
type Activity struct {
	ID          string
	TenantID    string
	AssigneeID  string
	Title       string
	Description string
	Category    string
	Priority    Priority
	Status      Status
	DueAt       *time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Overdue reports whether the activity is past its due date and still open.
func (a Activity) Overdue(now time.Time) bool {
	if a.DueAt == nil || a.Status.Terminal() {
		return false
	}
	return a.DueAt.Before(now)
}
