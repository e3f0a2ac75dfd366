package appointment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	redisclient "github.com/hackgods/clinic-appointments/internal/redis"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *recordingPublisher) Publish(ev EventLog) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev.EventType)
}

func (p *recordingPublisher) Types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.events...)
}

type fixture struct {
	repo *MemoryRepository
	svc  *Service
	pub  *recordingPublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := NewMemoryRepository()
	pub := &recordingPublisher{}
	svc := NewService(repo, redisclient.NewLocalLocker(time.Second), pub, zerolog.Nop())

	seedDoctor(t, repo, "doc-a", true, 500)
	seedDoctor(t, repo, "doc-b", true, 300)
	require.NoError(t, repo.CreateUser(context.Background(), &User{
		ID:    "user-alice",
		Name:  "Alice",
		Email: "alice@x.com",
		Phone: "0800000000",
	}))
	require.NoError(t, repo.CreateUser(context.Background(), &User{
		ID:    "user-bob",
		Name:  "Bob",
		Email: "bob@x.com",
	}))

	return &fixture{repo: repo, svc: svc, pub: pub}
}

func (f *fixture) book(t *testing.T, doctorID, userID, date, slotTime string) *Appointment {
	t.Helper()
	appt, err := f.svc.CreateAppointment(context.Background(), CreateRequest{
		DoctorID: doctorID,
		UserID:   userID,
		SlotDate: date,
		SlotTime: slotTime,
	})
	require.NoError(t, err)
	return appt
}

func (f *fixture) booked(t *testing.T, doctorID, date, slotTime string) bool {
	t.Helper()
	ok, err := f.svc.Ledger().IsBooked(context.Background(), doctorID, date, slotTime)
	require.NoError(t, err)
	return ok
}

func TestEndToEndBookingScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	doctorA := DoctorActor("doc-a")

	appt, err := f.svc.CreateAppointment(ctx, CreateRequest{
		DoctorID:  "doc-a",
		UserEmail: "alice@x.com",
		SlotDate:  "2025-01-10",
		SlotTime:  "10:00",
	})
	require.NoError(t, err)
	assert.Equal(t, StatePending, appt.State())
	assert.Equal(t, 500.0, appt.Amount)
	assert.True(t, f.booked(t, "doc-a", "2025-01-10", "10:00"))

	completed, err := f.svc.CompleteAppointment(ctx, appt.ID, doctorA)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, completed.State())
	assert.True(t, completed.Confirmed)

	again, err := f.svc.CompleteAppointment(ctx, appt.ID, doctorA)
	require.NoError(t, err)
	assert.Equal(t, completed, again)

	_, err = f.svc.CancelAppointment(ctx, appt.ID, doctorA)
	assert.ErrorIs(t, err, ErrAppointmentClosed)

	stored, err := f.repo.GetAppointmentByID(ctx, appt.ID)
	require.NoError(t, err)
	assert.False(t, stored.Cancelled)
	assert.True(t, f.booked(t, "doc-a", "2025-01-10", "10:00"))
}

func TestCreateAppointment(t *testing.T) {
	ctx := context.Background()

	t.Run("snapshots exclude credentials and ledger", func(t *testing.T) {
		f := newFixture(t)
		appt := f.book(t, "doc-a", "user-alice", "2025-01-10", "10:00")

		assert.Equal(t, "Dr. doc-a", appt.DoctorData.Name)
		assert.Equal(t, 500.0, appt.DoctorData.Fees)
		assert.Equal(t, "Alice", appt.UserData.Name)
		assert.Equal(t, "0800000000", appt.UserData.Phone)
		assert.False(t, appt.CreatedAt.IsZero())
		assert.Equal(t, []string{EventAppointmentCreated}, f.pub.Types())
	})

	t.Run("explicit amount overrides fees", func(t *testing.T) {
		f := newFixture(t)
		appt, err := f.svc.CreateAppointment(ctx, CreateRequest{
			DoctorID: "doc-a",
			UserID:   "user-alice",
			SlotDate: "2025-01-10",
			SlotTime: "10:00",
			Amount:   Some(0.0),
		})
		require.NoError(t, err)
		assert.Equal(t, 0.0, appt.Amount)
	})

	t.Run("dotted locale time books and conflicts", func(t *testing.T) {
		f := newFixture(t)
		appt := f.book(t, "doc-a", "user-alice", "2025-01-10", "10.30")
		assert.Equal(t, "10.30", appt.SlotTime)
		assert.True(t, f.booked(t, "doc-a", "2025-01-10", "10.30"))

		_, err := f.svc.CreateAppointment(ctx, CreateRequest{
			DoctorID: "doc-a", UserID: "user-bob", SlotDate: "2025-01-10", SlotTime: "10.30",
		})
		assert.ErrorIs(t, err, ErrSlotConflict)
	})

	t.Run("email wins over id", func(t *testing.T) {
		f := newFixture(t)
		appt, err := f.svc.CreateAppointment(ctx, CreateRequest{
			DoctorID:  "doc-a",
			UserID:    "user-alice",
			UserEmail: "BOB@x.com",
			SlotDate:  "2025-01-10",
			SlotTime:  "10:00",
		})
		require.NoError(t, err)
		assert.Equal(t, "user-bob", appt.UserID)
	})

	t.Run("failures leave the ledger untouched", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.repo.SetDoctorAvailability(ctx, "doc-b", false)
		require.NoError(t, err)

		tests := []struct {
			name string
			req  CreateRequest
			want error
		}{
			{"unknown user", CreateRequest{DoctorID: "doc-a", UserEmail: "nobody@x.com", SlotDate: "2025-01-10", SlotTime: "10:00"}, ErrUserNotFound},
			{"no user reference", CreateRequest{DoctorID: "doc-a", SlotDate: "2025-01-10", SlotTime: "10:00"}, ErrUserNotFound},
			{"unknown doctor", CreateRequest{DoctorID: "doc-z", UserID: "user-alice", SlotDate: "2025-01-10", SlotTime: "10:00"}, ErrDoctorNotFound},
			{"unavailable doctor", CreateRequest{DoctorID: "doc-b", UserID: "user-alice", SlotDate: "2025-01-10", SlotTime: "10:00"}, ErrDoctorUnavailable},
			{"missing slot", CreateRequest{DoctorID: "doc-a", UserID: "user-alice", SlotTime: "10:00"}, ErrInvalidSlotKey},
			{"negative amount", CreateRequest{DoctorID: "doc-a", UserID: "user-alice", SlotDate: "2025-01-10", SlotTime: "10:00", Amount: Some(-1.0)}, ErrInvalidAmount},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := f.svc.CreateAppointment(ctx, tt.req)
				assert.ErrorIs(t, err, tt.want)
			})
		}

		assert.False(t, f.booked(t, "doc-a", "2025-01-10", "10:00"))
		appts, err := f.svc.ListAppointments(ctx, AppointmentFilter{})
		require.NoError(t, err)
		assert.Empty(t, appts)
	})

	t.Run("slot conflict", func(t *testing.T) {
		f := newFixture(t)
		f.book(t, "doc-a", "user-alice", "2025-01-10", "10:00")

		_, err := f.svc.CreateAppointment(ctx, CreateRequest{
			DoctorID: "doc-a",
			UserID:   "user-bob",
			SlotDate: "2025-01-10",
			SlotTime: "10:00",
		})
		assert.ErrorIs(t, err, ErrSlotConflict)

		// Same pair on another doctor is fine.
		f.book(t, "doc-b", "user-bob", "2025-01-10", "10:00")
	})
}

func TestConcurrentBookingsProduceOneAppointment(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	const patients = 20
	for i := 0; i < patients; i++ {
		require.NoError(t, f.repo.CreateUser(ctx, &User{
			ID:    "p-" + string(rune('a'+i)),
			Email: string(rune('a'+i)) + "@load.test",
		}))
	}

	var wg sync.WaitGroup
	results := make(chan error, patients)
	for i := 0; i < patients; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.svc.CreateAppointment(ctx, CreateRequest{
				DoctorID: "doc-a",
				UserID:   "p-" + string(rune('a'+i)),
				SlotDate: "2025-02-01",
				SlotTime: "09:30",
			})
			results <- err
		}(i)
	}
	wg.Wait()
	close(results)

	var ok, conflicts int
	for err := range results {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrSlotConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, patients-1, conflicts)

	appts, err := f.svc.ListAppointments(ctx, AppointmentFilter{DoctorID: "doc-a"})
	require.NoError(t, err)
	assert.Len(t, appts, 1)
}

func TestRescheduleAppointment(t *testing.T) {
	ctx := context.Background()
	doctorA := DoctorActor("doc-a")

	t.Run("moves the slot", func(t *testing.T) {
		f := newFixture(t)
		appt := f.book(t, "doc-a", "user-alice", "2025-01-10", "10:00")

		moved, err := f.svc.RescheduleAppointment(ctx, appt.ID, doctorA, ReschedulePatch{
			SlotTime: Some("11:00"),
		})
		require.NoError(t, err)
		assert.Equal(t, "2025-01-10", moved.SlotDate)
		assert.Equal(t, "11:00", moved.SlotTime)
		assert.False(t, f.booked(t, "doc-a", "2025-01-10", "10:00"))
		assert.True(t, f.booked(t, "doc-a", "2025-01-10", "11:00"))
	})

	t.Run("conflict keeps the old slot", func(t *testing.T) {
		f := newFixture(t)
		a := f.book(t, "doc-a", "user-alice", "2025-01-10", "10:00")
		f.book(t, "doc-a", "user-bob", "2025-01-11", "14:00")

		_, err := f.svc.RescheduleAppointment(ctx, a.ID, doctorA, ReschedulePatch{
			SlotDate: Some("2025-01-11"),
			SlotTime: Some("14:00"),
			Amount:   Some(999.0),
		})
		assert.ErrorIs(t, err, ErrSlotConflict)

		assert.True(t, f.booked(t, "doc-a", "2025-01-10", "10:00"))
		stored, err := f.repo.GetAppointmentByID(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, "2025-01-10", stored.SlotDate)
		assert.Equal(t, "10:00", stored.SlotTime)
		assert.Equal(t, 500.0, stored.Amount)
	})

	t.Run("same slot only changes amount", func(t *testing.T) {
		f := newFixture(t)
		a := f.book(t, "doc-a", "user-alice", "2025-01-10", "10:00")

		updated, err := f.svc.RescheduleAppointment(ctx, a.ID, doctorA, ReschedulePatch{
			SlotDate: Some("2025-01-10"),
			SlotTime: Some("10:00"),
			Amount:   Some(750.0),
		})
		require.NoError(t, err)
		assert.Equal(t, 750.0, updated.Amount)
		assert.True(t, f.booked(t, "doc-a", "2025-01-10", "10:00"))
	})

	t.Run("unavailable doctor cannot move but can reprice", func(t *testing.T) {
		f := newFixture(t)
		a := f.book(t, "doc-a", "user-alice", "2025-01-10", "10:00")
		_, err := f.repo.SetDoctorAvailability(ctx, "doc-a", false)
		require.NoError(t, err)

		_, err = f.svc.RescheduleAppointment(ctx, a.ID, doctorA, ReschedulePatch{SlotTime: Some("11:00")})
		assert.ErrorIs(t, err, ErrDoctorUnavailable)
		assert.True(t, f.booked(t, "doc-a", "2025-01-10", "10:00"))
		assert.False(t, f.booked(t, "doc-a", "2025-01-10", "11:00"))

		repriced, err := f.svc.RescheduleAppointment(ctx, a.ID, doctorA, ReschedulePatch{Amount: Some(650.0)})
		require.NoError(t, err)
		assert.Equal(t, 650.0, repriced.Amount)
		assert.Equal(t, "10:00", repriced.SlotTime)
	})

	t.Run("rejections", func(t *testing.T) {
		f := newFixture(t)
		open := f.book(t, "doc-a", "user-alice", "2025-01-10", "10:00")
		cancelled := f.book(t, "doc-a", "user-alice", "2025-01-10", "12:00")
		_, err := f.svc.CancelAppointment(ctx, cancelled.ID, doctorA)
		require.NoError(t, err)
		done := f.book(t, "doc-a", "user-alice", "2025-01-10", "13:00")
		_, err = f.svc.CompleteAppointment(ctx, done.ID, doctorA)
		require.NoError(t, err)

		patch := ReschedulePatch{SlotTime: Some("16:00")}

		_, err = f.svc.RescheduleAppointment(ctx, "missing", doctorA, patch)
		assert.ErrorIs(t, err, ErrAppointmentNotFound)
		_, err = f.svc.RescheduleAppointment(ctx, open.ID, DoctorActor("doc-b"), patch)
		assert.ErrorIs(t, err, ErrForbidden)
		_, err = f.svc.RescheduleAppointment(ctx, open.ID, UserActor("user-alice"), patch)
		assert.ErrorIs(t, err, ErrForbidden)
		_, err = f.svc.RescheduleAppointment(ctx, cancelled.ID, doctorA, patch)
		assert.ErrorIs(t, err, ErrAppointmentClosed)
		_, err = f.svc.RescheduleAppointment(ctx, done.ID, doctorA, patch)
		assert.ErrorIs(t, err, ErrAppointmentClosed)

		assert.False(t, f.booked(t, "doc-a", "2025-01-10", "16:00"))
	})
}

func TestCancelAppointment(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	appt := f.book(t, "doc-a", "user-alice", "2025-01-10", "10:00")
	_, err := f.svc.ConfirmAppointment(ctx, appt.ID, DoctorActor("doc-a"))
	require.NoError(t, err)

	_, err = f.svc.CancelAppointment(ctx, appt.ID, UserActor("user-bob"))
	assert.ErrorIs(t, err, ErrForbidden)

	cancelled, err := f.svc.CancelAppointment(ctx, appt.ID, UserActor("user-alice"))
	require.NoError(t, err)
	assert.True(t, cancelled.Cancelled)
	assert.True(t, cancelled.Confirmed, "cancel leaves other flags alone")
	assert.False(t, f.booked(t, "doc-a", "2025-01-10", "10:00"))

	slotsBefore, err := f.repo.DoctorSlots(ctx, "doc-a")
	require.NoError(t, err)

	again, err := f.svc.CancelAppointment(ctx, appt.ID, AdminActor())
	require.NoError(t, err)
	assert.Equal(t, cancelled, again)

	slotsAfter, err := f.repo.DoctorSlots(ctx, "doc-a")
	require.NoError(t, err)
	assert.Equal(t, slotsBefore, slotsAfter)

	// The freed slot can be booked again.
	f.book(t, "doc-a", "user-bob", "2025-01-10", "10:00")

	_, err = f.svc.CancelAppointment(ctx, "missing", AdminActor())
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
}

func TestCompleteCancelledIsRejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	appt := f.book(t, "doc-a", "user-alice", "2025-01-10", "10:00")
	_, err := f.svc.CancelAppointment(ctx, appt.ID, AdminActor())
	require.NoError(t, err)

	before, err := f.repo.GetAppointmentByID(ctx, appt.ID)
	require.NoError(t, err)

	_, err = f.svc.CompleteAppointment(ctx, appt.ID, DoctorActor("doc-a"))
	assert.ErrorIs(t, err, ErrAlreadyCancelled)

	after, err := f.repo.GetAppointmentByID(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	_, err = f.svc.CompleteAppointment(ctx, appt.ID, DoctorActor("doc-b"))
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestMarkPaid(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	appt := f.book(t, "doc-a", "user-alice", "2025-01-10", "10:00")

	_, err := f.svc.MarkPaid(ctx, appt.ID, UserActor("user-bob"))
	assert.ErrorIs(t, err, ErrForbidden)

	paid, err := f.svc.MarkPaid(ctx, appt.ID, UserActor("user-alice"))
	require.NoError(t, err)
	assert.True(t, paid.Paid)
	assert.Equal(t, StateConfirmed, paid.State())

	other := f.book(t, "doc-a", "user-alice", "2025-01-10", "11:00")
	_, err = f.svc.CancelAppointment(ctx, other.ID, UserActor("user-alice"))
	require.NoError(t, err)
	_, err = f.svc.MarkPaid(ctx, other.ID, UserActor("user-alice"))
	assert.ErrorIs(t, err, ErrAlreadyCancelled)
}

func TestDeleteAppointment(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	active := f.book(t, "doc-a", "user-alice", "2025-01-10", "10:00")
	done := f.book(t, "doc-a", "user-alice", "2025-01-10", "11:00")
	_, err := f.svc.CompleteAppointment(ctx, done.ID, DoctorActor("doc-a"))
	require.NoError(t, err)

	assert.ErrorIs(t, f.svc.DeleteAppointment(ctx, active.ID, DoctorActor("doc-b")), ErrForbidden)
	assert.ErrorIs(t, f.svc.DeleteAppointment(ctx, active.ID, UserActor("user-alice")), ErrForbidden)

	require.NoError(t, f.svc.DeleteAppointment(ctx, active.ID, DoctorActor("doc-a")))
	assert.False(t, f.booked(t, "doc-a", "2025-01-10", "10:00"))

	require.NoError(t, f.svc.DeleteAppointment(ctx, done.ID, AdminActor()))
	assert.False(t, f.booked(t, "doc-a", "2025-01-10", "11:00"))

	assert.ErrorIs(t, f.svc.DeleteAppointment(ctx, done.ID, AdminActor()), ErrAppointmentNotFound)
}

func TestCascadeDeleteForUser(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	a1 := f.book(t, "doc-a", "user-alice", "2025-01-10", "10:00")
	a2 := f.book(t, "doc-b", "user-alice", "2025-01-10", "11:00")
	_, err := f.svc.CancelAppointment(ctx, a2.ID, UserActor("user-alice"))
	require.NoError(t, err)
	keep := f.book(t, "doc-a", "user-bob", "2025-01-10", "12:00")

	report, err := f.svc.CascadeDeleteForUser(ctx, "user-alice")
	require.NoError(t, err)
	assert.Equal(t, 2, report.Deleted)
	assert.Equal(t, 1, report.Released)
	assert.Empty(t, report.Failed)

	assert.False(t, f.booked(t, "doc-a", "2025-01-10", "10:00"))
	for _, id := range []string{a1.ID, a2.ID} {
		_, err := f.repo.GetAppointmentByID(ctx, id)
		assert.ErrorIs(t, err, ErrAppointmentNotFound)
	}

	_, err = f.repo.GetAppointmentByID(ctx, keep.ID)
	assert.NoError(t, err)
	assert.True(t, f.booked(t, "doc-a", "2025-01-10", "12:00"))
}

type failingDeleteRepo struct {
	*MemoryRepository
	failID string
}

func (r *failingDeleteRepo) DeleteAppointment(ctx context.Context, id string) error {
	if id == r.failID {
		return errors.New("disk on fire")
	}
	return r.MemoryRepository.DeleteAppointment(ctx, id)
}

func TestCascadeDeleteContinuesPastFailures(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	bad := f.book(t, "doc-a", "user-alice", "2025-01-10", "10:00")
	good := f.book(t, "doc-a", "user-alice", "2025-01-10", "11:00")

	repo := &failingDeleteRepo{MemoryRepository: f.repo, failID: bad.ID}
	svc := NewService(repo, redisclient.NewLocalLocker(time.Second), nil, zerolog.Nop())

	report, err := svc.CascadeDeleteForUser(ctx, "user-alice")
	require.Error(t, err)
	assert.Contains(t, err.Error(), bad.ID)
	assert.Equal(t, []string{bad.ID}, report.Failed)
	assert.Equal(t, 1, report.Deleted)

	_, err = f.repo.GetAppointmentByID(ctx, good.ID)
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
	assert.False(t, f.booked(t, "doc-a", "2025-01-10", "11:00"))

	// The failed one keeps its record and therefore its slot.
	assert.True(t, f.booked(t, "doc-a", "2025-01-10", "10:00"))
}

func TestGuardDoctorDelete(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	appt := f.book(t, "doc-a", "user-alice", "2025-01-10", "10:00")
	assert.ErrorIs(t, f.svc.GuardDoctorDelete(ctx, "doc-a"), ErrHasActiveAppointments)

	_, err := f.svc.CancelAppointment(ctx, appt.ID, AdminActor())
	require.NoError(t, err)
	assert.NoError(t, f.svc.GuardDoctorDelete(ctx, "doc-a"))

	done := f.book(t, "doc-a", "user-bob", "2025-01-10", "11:00")
	_, err = f.svc.CompleteAppointment(ctx, done.ID, DoctorActor("doc-a"))
	require.NoError(t, err)
	assert.NoError(t, f.svc.GuardDoctorDelete(ctx, "doc-a"), "completed appointments do not block")

	// A reserved pair whose appointment is not stored yet.
	require.NoError(t, f.svc.Ledger().Reserve(ctx, "doc-a", "2025-01-12", "09:00"))
	assert.ErrorIs(t, f.svc.GuardDoctorDelete(ctx, "doc-a"), ErrHasActiveAppointments)

	assert.ErrorIs(t, f.svc.GuardDoctorDelete(ctx, "doc-z"), ErrDoctorNotFound)
}

// userVanishingRepo deletes the patient right after an appointment is stored.
type userVanishingRepo struct {
	*MemoryRepository
}

func (r userVanishingRepo) CreateAppointment(ctx context.Context, a *Appointment) error {
	if err := r.MemoryRepository.CreateAppointment(ctx, a); err != nil {
		return err
	}
	return r.MemoryRepository.DeleteUser(ctx, a.UserID)
}

func TestCreateAppointmentUndoneWhenUserDeletedMidBooking(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := NewService(userVanishingRepo{f.repo}, redisclient.NewLocalLocker(time.Second), f.pub, zerolog.Nop())

	_, err := svc.CreateAppointment(ctx, CreateRequest{
		DoctorID: "doc-a", UserID: "user-alice", SlotDate: "2025-01-10", SlotTime: "10:00",
	})
	assert.ErrorIs(t, err, ErrUserNotFound)

	assert.False(t, f.booked(t, "doc-a", "2025-01-10", "10:00"))
	left, err := f.repo.ListAppointments(ctx, AppointmentFilter{UserID: "user-alice"})
	require.NoError(t, err)
	assert.Empty(t, left)
	assert.Empty(t, f.pub.Types())
}

type blockingLocker struct{}

func (blockingLocker) WithLock(context.Context, string, func(context.Context) error) error {
	return redisclient.ErrLockNotAcquired
}

func TestBusyLockMapsToAppointmentBusy(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	appt := f.book(t, "doc-a", "user-alice", "2025-01-10", "10:00")

	svc := NewService(f.repo, blockingLocker{}, nil, zerolog.Nop())
	_, err := svc.CancelAppointment(ctx, appt.ID, AdminActor())
	assert.ErrorIs(t, err, ErrAppointmentBusy)
	assert.True(t, f.booked(t, "doc-a", "2025-01-10", "10:00"))
}

func TestLifecycleEventsAreRecorded(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	appt := f.book(t, "doc-a", "user-alice", "2025-01-10", "10:00")
	_, err := f.svc.RescheduleAppointment(ctx, appt.ID, DoctorActor("doc-a"), ReschedulePatch{SlotTime: Some("10:30")})
	require.NoError(t, err)
	_, err = f.svc.CancelAppointment(ctx, appt.ID, AdminActor())
	require.NoError(t, err)
	require.NoError(t, f.svc.DeleteAppointment(ctx, appt.ID, AdminActor()))

	want := []string{
		EventAppointmentCreated,
		EventAppointmentRescheduled,
		EventAppointmentCancelled,
		EventAppointmentDeleted,
	}
	assert.Equal(t, want, f.pub.Types())

	logged := f.repo.Events()
	require.Len(t, logged, len(want))
	for i, ev := range logged {
		assert.Equal(t, want[i], ev.EventType)
		require.NotNil(t, ev.AppointmentID)
		assert.Equal(t, appt.ID, *ev.AppointmentID)
		assert.NotEmpty(t, ev.Payload)
	}
}
