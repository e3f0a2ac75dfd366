package payment

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-appointments/internal/appointment"
	redisclient "github.com/hackgods/clinic-appointments/internal/redis"
)

func setup(t *testing.T) (*Service, *appointment.Service, *appointment.Appointment) {
	t.Helper()
	ctx := context.Background()
	repo := appointment.NewMemoryRepository()
	require.NoError(t, repo.CreateDoctor(ctx, &appointment.Doctor{ID: "doc", Email: "doc@x.com", Available: true, Fees: 499.99}))
	require.NoError(t, repo.CreateUser(ctx, &appointment.User{ID: "alice", Email: "alice@x.com"}))

	appts := appointment.NewService(repo, redisclient.NewLocalLocker(time.Second), nil, zerolog.Nop())
	appt, err := appts.CreateAppointment(ctx, appointment.CreateRequest{
		DoctorID: "doc", UserID: "alice", SlotDate: "2025-01-10", SlotTime: "10:00",
	})
	require.NoError(t, err)

	return NewService(NewDevProcessor(), appts, "thb", zerolog.Nop()), appts, appt
}

func TestToMinorUnits(t *testing.T) {
	assert.Equal(t, int64(50000), ToMinorUnits(500))
	assert.Equal(t, int64(49999), ToMinorUnits(499.99))
	assert.Equal(t, int64(1), ToMinorUnits(0.005))
	assert.Equal(t, int64(0), ToMinorUnits(0))
}

func TestPaymentFlow(t *testing.T) {
	ctx := context.Background()
	svc, _, appt := setup(t)
	alice := appointment.UserActor("alice")

	_, err := svc.CreateIntent(ctx, appointment.UserActor("mallory"), appt.ID)
	assert.ErrorIs(t, err, appointment.ErrForbidden)

	intent, err := svc.CreateIntent(ctx, alice, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(49999), intent.Amount)
	assert.Equal(t, "thb", intent.Currency)
	assert.NotEmpty(t, intent.ClientSecret)

	_, err = svc.Confirm(ctx, alice, appt.ID, "pi_unknown")
	assert.ErrorIs(t, err, ErrPaymentIncomplete)

	paid, err := svc.Confirm(ctx, alice, appt.ID, intent.ID)
	require.NoError(t, err)
	assert.True(t, paid.Paid)
	assert.True(t, paid.Confirmed)

	_, err = svc.CreateIntent(ctx, alice, appt.ID)
	assert.ErrorIs(t, err, ErrAlreadyPaid)
}

func TestPaymentRejectedForCancelled(t *testing.T) {
	ctx := context.Background()
	svc, appts, appt := setup(t)
	alice := appointment.UserActor("alice")

	_, err := appts.CancelAppointment(ctx, appt.ID, alice)
	require.NoError(t, err)

	_, err = svc.CreateIntent(ctx, alice, appt.ID)
	assert.ErrorIs(t, err, appointment.ErrAlreadyCancelled)
	_, err = svc.Confirm(ctx, alice, appt.ID, "")
	assert.ErrorIs(t, err, appointment.ErrAlreadyCancelled)
}
