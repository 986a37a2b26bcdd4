package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		ok       bool
	}{
		{StatusPlanned, StatusInProgress, true},
		{StatusPlanned, StatusCancelled, true},
		{StatusPlanned, StatusCompleted, false},
		{StatusInProgress, StatusCompleted, true},
		{StatusInProgress, StatusCancelled, true},
		{StatusInProgress, StatusPlanned, false},
		{StatusCompleted, StatusInProgress, false},
		{StatusCancelled, StatusPlanned, false},
	}

	for _, tc := range cases {
		require.Equal(t, tc.ok, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestStatusTerminal(t *testing.T) {
	require.False(t, StatusPlanned.Terminal())
	require.False(t, StatusInProgress.Terminal())
	require.True(t, StatusCompleted.Terminal())
	require.True(t, StatusCancelled.Terminal())
}

func TestOverdue(t *testing.T) {
	now := time.Date(2026, time.May, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	require.False(t, Activity{Status: StatusPlanned}.Overdue(now), "no due date")
	require.True(t, Activity{Status: StatusPlanned, DueAt: &past}.Overdue(now))
	require.False(t, Activity{Status: StatusPlanned, DueAt: &future}.Overdue(now))
	require.False(t, Activity{Status: StatusCompleted, DueAt: &past}.Overdue(now), "terminal activities are never overdue")
}
