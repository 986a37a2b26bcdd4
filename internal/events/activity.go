// Package events defines the payloads emitted through the outbox.
package events

import "time"

// ActivityCreated is emitted when a new activity is accepted onto the board.
type ActivityCreated struct {
	ActivityID string     `json:"activity_id"`
	TenantID   string     `json:"tenant_id"`
	AssigneeID string     `json:"assignee_id"`
	Title      string     `json:"title"`
	Category   string     `json:"category"`
	Priority   string     `json:"priority"`
	DueAt      *time.Time `json:"due_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// ActivityStatusChanged tracks lifecycle transitions for audit and dashboard refresh.
type ActivityStatusChanged struct {
	ActivityID string    `json:"activity_id"`
	TenantID   string    `json:"tenant_id"`
	AssigneeID string    `json:"assignee_id"`
	Status     string    `json:"status"`
	OccurredAt time.Time `json:"occurred_at"`
	Reason     string    `json:"reason,omitempty"`
}
