package appointment

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedDoctor(t *testing.T, repo *MemoryRepository, id string, available bool, fees float64) *Doctor {
	t.Helper()
	d := &Doctor{
		ID:         id,
		Name:       "Dr. " + id,
		Email:      id + "@clinic.test",
		Speciality: "General physician",
		Available:  available,
		Fees:       fees,
	}
	require.NoError(t, repo.CreateDoctor(context.Background(), d))
	return d
}

func TestLedgerReserveAndRelease(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	seedDoctor(t, repo, "doc-1", true, 500)
	ledger := NewLedger(repo)

	require.NoError(t, ledger.Reserve(ctx, "doc-1", "2025-01-10", "10:00"))

	booked, err := ledger.IsBooked(ctx, "doc-1", "2025-01-10", "10:00")
	require.NoError(t, err)
	assert.True(t, booked)

	err = ledger.Reserve(ctx, "doc-1", "2025-01-10", "10:00")
	assert.ErrorIs(t, err, ErrSlotConflict)

	require.NoError(t, ledger.Release(ctx, "doc-1", "2025-01-10", "10:00"))
	booked, err = ledger.IsBooked(ctx, "doc-1", "2025-01-10", "10:00")
	require.NoError(t, err)
	assert.False(t, booked)
}

func TestLedgerReserveErrors(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	seedDoctor(t, repo, "busy", false, 100)
	ledger := NewLedger(repo)

	tests := []struct {
		name     string
		doctorID string
		date     string
		time     string
		want     error
	}{
		{"unknown doctor", "nobody", "2025-01-10", "10:00", ErrDoctorNotFound},
		{"unavailable doctor", "busy", "2025-01-10", "10:00", ErrDoctorUnavailable},
		{"empty date", "busy", "", "10:00", ErrInvalidSlotKey},
		{"empty time", "busy", "2025-01-10", " ", ErrInvalidSlotKey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ledger.Reserve(ctx, tt.doctorID, tt.date, tt.time)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestLedgerKeysAreOpaque(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	seedDoctor(t, repo, "doc-1", true, 500)
	ledger := NewLedger(repo)

	require.NoError(t, ledger.Reserve(ctx, "doc-1", "10.01.2025", "10.30"))
	assert.ErrorIs(t, ledger.Reserve(ctx, "doc-1", "10.01.2025", "10.30"), ErrSlotConflict)

	// Exact comparison only: other spellings of the same moment are distinct pairs.
	require.NoError(t, ledger.Reserve(ctx, "doc-1", "10.01.2025", "10:30"))
	require.NoError(t, ledger.Reserve(ctx, "doc-1", "2025-01-10", "10.30"))

	booked, err := ledger.IsBooked(ctx, "doc-1", "10.01.2025", "10.30")
	require.NoError(t, err)
	assert.True(t, booked)

	require.NoError(t, ledger.Release(ctx, "doc-1", "10.01.2025", "10.30"))
	booked, err = ledger.IsBooked(ctx, "doc-1", "10.01.2025", "10.30")
	require.NoError(t, err)
	assert.False(t, booked)
}

func TestCheckDateField(t *testing.T) {
	assert.NoError(t, checkDateField("2025-01-10"))
	assert.NoError(t, checkDateField("10/01/2025"))
	assert.ErrorIs(t, checkDateField("10.01.2025"), ErrInvalidSlotKey)
	assert.ErrorIs(t, checkDateField("$where"), ErrInvalidSlotKey)
}

func TestLedgerReleaseIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	seedDoctor(t, repo, "doc-1", true, 500)
	ledger := NewLedger(repo)

	require.NoError(t, ledger.Reserve(ctx, "doc-1", "2025-01-10", "10:00"))
	require.NoError(t, ledger.Reserve(ctx, "doc-1", "2025-01-10", "11:00"))

	require.NoError(t, ledger.Release(ctx, "doc-1", "2025-01-10", "10:00"))
	once, err := repo.DoctorSlots(ctx, "doc-1")
	require.NoError(t, err)

	require.NoError(t, ledger.Release(ctx, "doc-1", "2025-01-10", "10:00"))
	twice, err := repo.DoctorSlots(ctx, "doc-1")
	require.NoError(t, err)

	assert.Equal(t, once, twice)
	assert.Equal(t, SlotMap{"2025-01-10": {"11:00"}}, twice)

	assert.NoError(t, ledger.Release(ctx, "doc-1", "2031-12-31", "09:00"), "never held")
	assert.NoError(t, ledger.Release(ctx, "missing-doctor", "2025-01-10", "10:00"), "unknown doctor")
}

func TestLedgerConcurrentReserveHasOneWinner(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	seedDoctor(t, repo, "doc-1", true, 500)
	ledger := NewLedger(repo)

	const attempts = 50
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		wins      int
		conflicts int
	)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := ledger.Reserve(ctx, "doc-1", "2025-01-10", "10:00")

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, ErrSlotConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, attempts-1, conflicts)

	slots, err := repo.DoctorSlots(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, 1, slots.Len())
}

func TestSlotMapHas(t *testing.T) {
	m := SlotMap{"2025-01-10": {"10:00", "11:00"}}

	assert.True(t, m.Has("2025-01-10", "11:00"))
	assert.False(t, m.Has("2025-01-10", "12:00"))
	assert.False(t, m.Has("2025-01-11", "10:00"))
	assert.Equal(t, 2, m.Len())
}
