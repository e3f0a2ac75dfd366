package appointment

import (
	"context"
	"fmt"
	"time"
)

const recentLimit = 5

type DashboardCards struct {
	TotalUsers        int     `json:"totalUsers"`
	TotalDoctors      int     `json:"totalDoctors"`
	TotalAppointments int     `json:"totalAppointments"`
	Revenue           float64 `json:"revenue"`
}

// StateBreakdown counts appointments per lifecycle state. Completed
// appointments are counted only as completed.
type StateBreakdown struct {
	Pending   int `json:"pending"`
	Confirmed int `json:"confirmed"`
	Cancelled int `json:"cancelled"`
	Completed int `json:"completed"`
}

type TodayCounts struct {
	BookedToday    int `json:"bookedToday"`
	ScheduledToday int `json:"scheduledToday"`
}

type AdminDashboard struct {
	Cards              DashboardCards `json:"cards"`
	Breakdown          StateBreakdown `json:"breakdown"`
	Today              TodayCounts    `json:"today"`
	RecentAppointments []Appointment  `json:"recentAppointments"`
}

type DoctorDashboard struct {
	MyAppointments int           `json:"myAppointments"`
	ScheduledToday int           `json:"scheduledToday"`
	UpcomingCount  int           `json:"upcomingCount"`
	Upcoming       []Appointment `json:"upcoming"`
}

// AdminDashboard aggregates clinic-wide figures. "Today" is the calendar day
// of now in loc; slot dates are compared as YYYY-MM-DD.
func (s *Service) AdminDashboard(ctx context.Context, now time.Time, loc *time.Location) (*AdminDashboard, error) {
	users, err := s.repo.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	doctors, err := s.repo.ListDoctors(ctx)
	if err != nil {
		return nil, fmt.Errorf("list doctors: %w", err)
	}
	appts, err := s.ListAppointments(ctx, AppointmentFilter{})
	if err != nil {
		return nil, err
	}

	local := now.In(loc)
	dayStart := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	dayEnd := dayStart.AddDate(0, 0, 1)
	today := dayStart.Format(time.DateOnly)

	out := &AdminDashboard{
		Cards: DashboardCards{
			TotalUsers:        len(users),
			TotalDoctors:      len(doctors),
			TotalAppointments: len(appts),
		},
	}

	for _, a := range appts {
		switch a.State() {
		case StatePending:
			out.Breakdown.Pending++
		case StateConfirmed:
			out.Breakdown.Confirmed++
		case StateCancelled:
			out.Breakdown.Cancelled++
		case StateCompleted:
			out.Breakdown.Completed++
		}
		if a.IsCompleted {
			out.Cards.Revenue += a.Amount
		}
		if !a.CreatedAt.Before(dayStart) && a.CreatedAt.Before(dayEnd) {
			out.Today.BookedToday++
		}
		if a.SlotDate == today {
			out.Today.ScheduledToday++
		}
	}

	out.RecentAppointments = appts[:min(recentLimit, len(appts))]
	return out, nil
}

// DoctorDashboard summarizes one doctor's appointments.
func (s *Service) DoctorDashboard(ctx context.Context, doctorID string, now time.Time, loc *time.Location) (*DoctorDashboard, error) {
	appts, err := s.ListAppointments(ctx, AppointmentFilter{DoctorID: doctorID})
	if err != nil {
		return nil, err
	}

	today := now.In(loc).Format(time.DateOnly)
	out := &DoctorDashboard{
		MyAppointments: len(appts),
		Upcoming:       []Appointment{},
	}
	for _, a := range appts {
		if a.SlotDate == today {
			out.ScheduledToday++
		}
		if a.Active() {
			out.UpcomingCount++
			if len(out.Upcoming) < recentLimit {
				out.Upcoming = append(out.Upcoming, a)
			}
		}
	}
	return out, nil
}
