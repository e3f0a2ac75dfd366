package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrSlotConflict      = errors.New("slot already booked for this doctor")
	ErrDoctorUnavailable = errors.New("doctor is not accepting bookings")
)

// Ledger tracks which (date, time) pairs each doctor has booked. All writes to
// a doctor's slots go through Reserve and Release.
type Ledger struct {
	store SlotStore
}

func NewLedger(store SlotStore) *Ledger {
	return &Ledger{store: store}
}

// Reserve books the pair for the doctor, failing with ErrDoctorNotFound,
// ErrDoctorUnavailable or ErrSlotConflict. Concurrent reserves of the same
// pair yield exactly one success.
func (l *Ledger) Reserve(ctx context.Context, doctorID, date, slotTime string) error {
	if err := ValidateSlotKey(date, slotTime); err != nil {
		return err
	}
	if err := l.store.ReserveSlot(ctx, doctorID, date, slotTime); err != nil {
		if errors.Is(err, ErrDoctorNotFound) || errors.Is(err, ErrDoctorUnavailable) || errors.Is(err, ErrSlotConflict) || errors.Is(err, ErrInvalidSlotKey) {
			return err
		}
		return fmt.Errorf("reserve slot: %w", err)
	}
	return nil
}

// Release frees the pair. Releasing a pair that is not held, or for a doctor
// that no longer exists, is a no-op.
func (l *Ledger) Release(ctx context.Context, doctorID, date, slotTime string) error {
	if date == "" || slotTime == "" {
		return nil
	}
	err := l.store.ReleaseSlot(ctx, doctorID, date, slotTime)
	if err != nil && !errors.Is(err, ErrDoctorNotFound) {
		return fmt.Errorf("release slot: %w", err)
	}
	return nil
}

func (l *Ledger) IsBooked(ctx context.Context, doctorID, date, slotTime string) (bool, error) {
	booked, err := l.store.IsSlotBooked(ctx, doctorID, date, slotTime)
	if err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("check slot: %w", err)
	}
	return booked, nil
}

// ValidateSlotKey rejects empty keys. Keys are otherwise opaque and compared
// exactly; stores with narrower key rules check them on write.
func ValidateSlotKey(date, slotTime string) error {
	if strings.TrimSpace(date) == "" || strings.TrimSpace(slotTime) == "" {
		return ErrInvalidSlotKey
	}
	return nil
}
