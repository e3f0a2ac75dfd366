package appointment

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdminDashboard(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	loc := time.FixedZone("ICT", 7*60*60)
	now := time.Now()
	today := now.In(loc).Format(time.DateOnly)

	pending := f.book(t, "doc-a", "user-alice", today, "09:00")
	confirmed := f.book(t, "doc-a", "user-alice", "2030-01-01", "09:00")
	cancelled := f.book(t, "doc-b", "user-bob", today, "10:00")
	completed := f.book(t, "doc-b", "user-bob", "2030-01-02", "10:00")

	_, err := f.svc.ConfirmAppointment(ctx, confirmed.ID, AdminActor())
	require.NoError(t, err)
	_, err = f.svc.CancelAppointment(ctx, cancelled.ID, AdminActor())
	require.NoError(t, err)
	_, err = f.svc.CompleteAppointment(ctx, completed.ID, AdminActor())
	require.NoError(t, err)

	stats, err := f.svc.AdminDashboard(ctx, now, loc)
	require.NoError(t, err)

	assert.Equal(t, DashboardCards{
		TotalUsers:        2,
		TotalDoctors:      2,
		TotalAppointments: 4,
		Revenue:           300,
	}, stats.Cards)
	assert.Equal(t, StateBreakdown{Pending: 1, Confirmed: 1, Cancelled: 1, Completed: 1}, stats.Breakdown)
	assert.Equal(t, TodayCounts{BookedToday: 4, ScheduledToday: 2}, stats.Today)
	require.Len(t, stats.RecentAppointments, 4)
	assert.Contains(t, []string{pending.ID, confirmed.ID, cancelled.ID, completed.ID}, stats.RecentAppointments[0].ID)
}

func TestDoctorDashboard(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	now := time.Now()
	today := now.UTC().Format(time.DateOnly)

	for _, slot := range []string{"09:00", "09:30", "10:00", "10:30", "11:00", "11:30"} {
		f.book(t, "doc-a", "user-alice", today, slot)
	}
	gone := f.book(t, "doc-a", "user-bob", "2030-01-01", "09:00")
	_, err := f.svc.CancelAppointment(ctx, gone.ID, AdminActor())
	require.NoError(t, err)
	f.book(t, "doc-b", "user-bob", today, "09:00")

	stats, err := f.svc.DoctorDashboard(ctx, "doc-a", now, time.UTC)
	require.NoError(t, err)

	assert.Equal(t, 7, stats.MyAppointments)
	assert.Equal(t, 6, stats.ScheduledToday)
	assert.Equal(t, 6, stats.UpcomingCount)
	assert.Len(t, stats.Upcoming, 5)
}
