package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	redisclient "github.com/hackgods/clinic-appointments/internal/redis"
)

const (
	EventAppointmentCreated     = "APPOINTMENT_CREATED"
	EventAppointmentRescheduled = "APPOINTMENT_RESCHEDULED"
	EventAppointmentCancelled   = "APPOINTMENT_CANCELLED"
	EventAppointmentConfirmed   = "APPOINTMENT_CONFIRMED"
	EventAppointmentCompleted   = "APPOINTMENT_COMPLETED"
	EventAppointmentPaid        = "APPOINTMENT_PAID"
	EventAppointmentDeleted     = "APPOINTMENT_DELETED"
)

var (
	ErrForbidden             = errors.New("not allowed to act on this appointment")
	ErrAppointmentClosed     = errors.New("appointment is cancelled or completed")
	ErrAlreadyCancelled      = errors.New("appointment is cancelled")
	ErrHasActiveAppointments = errors.New("doctor has active appointments")
	ErrAppointmentBusy       = errors.New("appointment is being modified, please retry")
	ErrInvalidAmount         = errors.New("amount must be a non-negative number")
)

// Publisher receives lifecycle events after they are written to the event log.
type Publisher interface {
	Publish(ev EventLog)
}

type Service struct {
	repo      Repository
	ledger    *Ledger
	locker    redisclient.Locker
	publisher Publisher
	log       zerolog.Logger
}

func NewService(repo Repository, locker redisclient.Locker, publisher Publisher, logger zerolog.Logger) *Service {
	return &Service{
		repo:      repo,
		ledger:    NewLedger(repo),
		locker:    locker,
		publisher: publisher,
		log:       logger.With().Str("component", "appointment").Logger(),
	}
}

func (s *Service) Ledger() *Ledger {
	return s.ledger
}

// CreateRequest books a slot. The patient is resolved by email first, then by id.
type CreateRequest struct {
	DoctorID  string
	UserID    string
	UserEmail string
	SlotDate  string
	SlotTime  string
	Amount    Optional[float64]
}

// CreateAppointment reserves the slot and stores a Pending appointment with
// snapshots of the doctor and patient. If the appointment cannot be stored the
// slot is released again.
func (s *Service) CreateAppointment(ctx context.Context, req CreateRequest) (*Appointment, error) {
	if err := ValidateSlotKey(req.SlotDate, req.SlotTime); err != nil {
		return nil, err
	}
	if req.Amount.Set && req.Amount.Value < 0 {
		return nil, ErrInvalidAmount
	}

	user, err := s.resolveUser(ctx, req.UserEmail, req.UserID)
	if err != nil {
		return nil, err
	}

	doctor, err := s.repo.GetDoctorByID(ctx, req.DoctorID)
	if err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load doctor: %w", err)
	}
	if !doctor.Available {
		return nil, ErrDoctorUnavailable
	}

	if err := s.ledger.Reserve(ctx, doctor.ID, req.SlotDate, req.SlotTime); err != nil {
		return nil, err
	}

	appt := &Appointment{
		ID:         uuid.NewString(),
		UserID:     user.ID,
		DoctorID:   doctor.ID,
		SlotDate:   req.SlotDate,
		SlotTime:   req.SlotTime,
		UserData:   user.Snapshot(),
		DoctorData: doctor.Snapshot(),
		Amount:     req.Amount.Or(doctor.Fees),
		CreatedAt:  time.Now(),
	}

	if err := s.repo.CreateAppointment(ctx, appt); err != nil {
		if relErr := s.ledger.Release(ctx, doctor.ID, req.SlotDate, req.SlotTime); relErr != nil {
			s.log.Error().Err(relErr).
				Str("doctor_id", doctor.ID).
				Str("slot_date", req.SlotDate).
				Str("slot_time", req.SlotTime).
				Msg("release slot after failed create")
		}
		return nil, fmt.Errorf("create appointment: %w", err)
	}

	// The patient may have been deleted while this booking was in flight.
	if _, err := s.repo.GetUserByID(ctx, user.ID); errors.Is(err, ErrUserNotFound) {
		s.undoCreate(ctx, appt)
		return nil, ErrUserNotFound
	}

	s.logEvent(ctx, appt.ID, EventAppointmentCreated, map[string]any{
		"doctor_id": doctor.ID,
		"user_id":   user.ID,
		"slot_date": appt.SlotDate,
		"slot_time": appt.SlotTime,
		"amount":    appt.Amount,
	})

	return appt, nil
}

func (s *Service) undoCreate(ctx context.Context, appt *Appointment) {
	if err := s.repo.DeleteAppointment(ctx, appt.ID); err != nil && !errors.Is(err, ErrAppointmentNotFound) {
		s.log.Error().Err(err).
			Str("appointment_id", appt.ID).
			Msg("delete appointment of removed user")
		return
	}
	s.release(ctx, appt.DoctorID, appt.SlotDate, appt.SlotTime, "undo booking of removed user")
}

func (s *Service) resolveUser(ctx context.Context, email, id string) (*User, error) {
	if email != "" {
		u, err := s.repo.GetUserByEmail(ctx, email)
		if err == nil {
			return u, nil
		}
		if !errors.Is(err, ErrUserNotFound) {
			return nil, fmt.Errorf("load user by email: %w", err)
		}
	}
	if id != "" {
		u, err := s.repo.GetUserByID(ctx, id)
		if err == nil {
			return u, nil
		}
		if !errors.Is(err, ErrUserNotFound) {
			return nil, fmt.Errorf("load user: %w", err)
		}
	}
	return nil, ErrUserNotFound
}

// RescheduleAppointment moves an open appointment and/or changes its amount.
// The new slot is reserved before the old one is released, so a failed move
// leaves the appointment holding its original slot.
func (s *Service) RescheduleAppointment(ctx context.Context, id string, actor Actor, patch ReschedulePatch) (*Appointment, error) {
	if patch.Amount.Set && patch.Amount.Value < 0 {
		return nil, ErrInvalidAmount
	}

	var updated *Appointment
	err := s.withLock(ctx, id, func(ctx context.Context) error {
		appt, err := s.load(ctx, id)
		if err != nil {
			return err
		}
		if err := authorize(appt, actor, RoleDoctor, RoleAdmin); err != nil {
			return err
		}
		if !appt.Active() {
			return ErrAppointmentClosed
		}

		newDate := patch.SlotDate.Or(appt.SlotDate)
		newTime := patch.SlotTime.Or(appt.SlotTime)
		moving := newDate != appt.SlotDate || newTime != appt.SlotTime

		upd := AppointmentUpdate{Amount: patch.Amount}
		if moving {
			if err := s.ledger.Reserve(ctx, appt.DoctorID, newDate, newTime); err != nil {
				return err
			}
			upd.SlotDate = Some(newDate)
			upd.SlotTime = Some(newTime)
		}

		updated, err = s.repo.UpdateAppointment(ctx, id, upd)
		if err != nil {
			if moving {
				s.release(ctx, appt.DoctorID, newDate, newTime, "undo reschedule reserve")
			}
			return fmt.Errorf("update appointment: %w", err)
		}

		if moving {
			s.release(ctx, appt.DoctorID, appt.SlotDate, appt.SlotTime, "release previous slot")
		}

		s.logEvent(ctx, id, EventAppointmentRescheduled, map[string]any{
			"from":   []string{appt.SlotDate, appt.SlotTime},
			"to":     []string{updated.SlotDate, updated.SlotTime},
			"amount": updated.Amount,
			"actor":  actor.Role,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

// CancelAppointment marks the appointment cancelled and frees its slot.
// Cancelling a cancelled appointment succeeds without changes; a completed
// appointment cannot be cancelled.
func (s *Service) CancelAppointment(ctx context.Context, id string, actor Actor) (*Appointment, error) {
	var result *Appointment
	err := s.withLock(ctx, id, func(ctx context.Context) error {
		appt, err := s.load(ctx, id)
		if err != nil {
			return err
		}
		if err := authorize(appt, actor, RoleUser, RoleDoctor, RoleAdmin); err != nil {
			return err
		}
		if appt.Cancelled {
			result = appt
			return nil
		}
		if appt.IsCompleted {
			return ErrAppointmentClosed
		}

		result, err = s.repo.UpdateAppointment(ctx, id, AppointmentUpdate{Cancelled: Some(true)})
		if err != nil {
			return fmt.Errorf("cancel appointment: %w", err)
		}
		s.release(ctx, appt.DoctorID, appt.SlotDate, appt.SlotTime, "release cancelled slot")

		s.logEvent(ctx, id, EventAppointmentCancelled, map[string]any{
			"slot_date": appt.SlotDate,
			"slot_time": appt.SlotTime,
			"actor":     actor.Role,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// CompleteAppointment sets isCompleted and confirmed. Completing twice is a no-op.
func (s *Service) CompleteAppointment(ctx context.Context, id string, actor Actor) (*Appointment, error) {
	var result *Appointment
	err := s.withLock(ctx, id, func(ctx context.Context) error {
		appt, err := s.load(ctx, id)
		if err != nil {
			return err
		}
		if err := authorize(appt, actor, RoleDoctor, RoleAdmin); err != nil {
			return err
		}
		if appt.Cancelled {
			return ErrAlreadyCancelled
		}
		if appt.IsCompleted {
			result = appt
			return nil
		}

		result, err = s.repo.UpdateAppointment(ctx, id, AppointmentUpdate{
			IsCompleted: Some(true),
			Confirmed:   Some(true),
		})
		if err != nil {
			return fmt.Errorf("complete appointment: %w", err)
		}

		s.logEvent(ctx, id, EventAppointmentCompleted, map[string]any{"actor": actor.Role})
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// ConfirmAppointment moves a Pending appointment to Confirmed.
func (s *Service) ConfirmAppointment(ctx context.Context, id string, actor Actor) (*Appointment, error) {
	var result *Appointment
	err := s.withLock(ctx, id, func(ctx context.Context) error {
		appt, err := s.load(ctx, id)
		if err != nil {
			return err
		}
		if err := authorize(appt, actor, RoleDoctor, RoleAdmin); err != nil {
			return err
		}
		if appt.Cancelled {
			return ErrAlreadyCancelled
		}
		if appt.Confirmed {
			result = appt
			return nil
		}

		result, err = s.repo.UpdateAppointment(ctx, id, AppointmentUpdate{Confirmed: Some(true)})
		if err != nil {
			return fmt.Errorf("confirm appointment: %w", err)
		}

		s.logEvent(ctx, id, EventAppointmentConfirmed, map[string]any{"actor": actor.Role})
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// MarkPaid records a successful payment; it also confirms the appointment.
func (s *Service) MarkPaid(ctx context.Context, id string, actor Actor) (*Appointment, error) {
	var result *Appointment
	err := s.withLock(ctx, id, func(ctx context.Context) error {
		appt, err := s.load(ctx, id)
		if err != nil {
			return err
		}
		if err := authorize(appt, actor, RoleUser, RoleAdmin); err != nil {
			return err
		}
		if appt.Cancelled {
			return ErrAlreadyCancelled
		}
		if appt.Paid && appt.Confirmed {
			result = appt
			return nil
		}

		result, err = s.repo.UpdateAppointment(ctx, id, AppointmentUpdate{
			Paid:      Some(true),
			Confirmed: Some(true),
		})
		if err != nil {
			return fmt.Errorf("mark appointment paid: %w", err)
		}

		s.logEvent(ctx, id, EventAppointmentPaid, map[string]any{"amount": appt.Amount})
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// DeleteAppointment removes the record, completed or not, and frees the slot
// if the appointment still held one.
func (s *Service) DeleteAppointment(ctx context.Context, id string, actor Actor) error {
	return s.withLock(ctx, id, func(ctx context.Context) error {
		appt, err := s.load(ctx, id)
		if err != nil {
			return err
		}
		if err := authorize(appt, actor, RoleDoctor, RoleAdmin); err != nil {
			return err
		}
		return s.remove(ctx, appt, actor.Role)
	})
}

func (s *Service) remove(ctx context.Context, appt *Appointment, by Role) error {
	if err := s.repo.DeleteAppointment(ctx, appt.ID); err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return err
		}
		return fmt.Errorf("delete appointment: %w", err)
	}
	if appt.HoldsSlot() {
		if err := s.ledger.Release(ctx, appt.DoctorID, appt.SlotDate, appt.SlotTime); err != nil {
			return err
		}
	}

	s.logEvent(ctx, appt.ID, EventAppointmentDeleted, map[string]any{
		"doctor_id": appt.DoctorID,
		"user_id":   appt.UserID,
		"released":  appt.HoldsSlot(),
		"actor":     by,
	})
	return nil
}

// CascadeReport summarizes CascadeDeleteForUser.
type CascadeReport struct {
	Deleted  int      `json:"deleted"`
	Released int      `json:"released"`
	Failed   []string `json:"failed,omitempty"`
}

// CascadeDeleteForUser removes every appointment of the user, releasing held
// slots. Each appointment is processed independently; failures are collected
// and returned together without stopping the batch.
func (s *Service) CascadeDeleteForUser(ctx context.Context, userID string) (CascadeReport, error) {
	var report CascadeReport

	appts, err := s.repo.ListAppointments(ctx, AppointmentFilter{UserID: userID})
	if err != nil {
		return report, fmt.Errorf("list user appointments: %w", err)
	}

	var errs []error
	for _, a := range appts {
		var held bool
		err := s.withLock(ctx, a.ID, func(ctx context.Context) error {
			appt, err := s.load(ctx, a.ID)
			if err != nil {
				return err
			}
			held = appt.HoldsSlot()
			return s.remove(ctx, appt, RoleAdmin)
		})
		switch {
		case errors.Is(err, ErrAppointmentNotFound):
			continue
		case err != nil:
			s.log.Error().Err(err).
				Str("user_id", userID).
				Str("appointment_id", a.ID).
				Msg("cascade delete appointment")
			report.Failed = append(report.Failed, a.ID)
			errs = append(errs, fmt.Errorf("appointment %s: %w", a.ID, err))
			continue
		}
		report.Deleted++
		if held {
			report.Released++
		}
	}

	return report, errors.Join(errs...)
}

// GuardDoctorDelete fails with ErrHasActiveAppointments while any appointment
// for the doctor is neither cancelled nor completed, or while the ledger holds
// a pair no appointment accounts for (a booking between Reserve and its
// record write).
func (s *Service) GuardDoctorDelete(ctx context.Context, doctorID string) error {
	if _, err := s.repo.GetDoctorByID(ctx, doctorID); err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return err
		}
		return fmt.Errorf("load doctor: %w", err)
	}

	n, err := s.repo.CountActiveForDoctor(ctx, doctorID)
	if err != nil {
		return fmt.Errorf("count active appointments: %w", err)
	}
	if n > 0 {
		return ErrHasActiveAppointments
	}

	slots, err := s.repo.DoctorSlots(ctx, doctorID)
	if err != nil {
		return fmt.Errorf("load doctor slots: %w", err)
	}
	if slots.Len() == 0 {
		return nil
	}
	appts, err := s.repo.ListAppointments(ctx, AppointmentFilter{DoctorID: doctorID})
	if err != nil {
		return fmt.Errorf("list doctor appointments: %w", err)
	}
	held := make(map[SlotKey]bool, len(appts))
	for _, a := range appts {
		if a.HoldsSlot() {
			held[SlotKey{Date: a.SlotDate, Time: a.SlotTime}] = true
		}
	}
	for date, times := range slots {
		for _, t := range times {
			if !held[SlotKey{Date: date, Time: t}] {
				return ErrHasActiveAppointments
			}
		}
	}
	return nil
}

// GetAppointment loads an appointment visible to the actor.
func (s *Service) GetAppointment(ctx context.Context, id string, actor Actor) (*Appointment, error) {
	appt, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorize(appt, actor, RoleUser, RoleDoctor, RoleAdmin); err != nil {
		return nil, err
	}
	return appt, nil
}

// ListAppointments returns appointments newest first.
func (s *Service) ListAppointments(ctx context.Context, f AppointmentFilter) ([]Appointment, error) {
	appts, err := s.repo.ListAppointments(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	if appts == nil {
		appts = []Appointment{}
	}
	return appts, nil
}

func (s *Service) load(ctx context.Context, id string) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	return appt, nil
}

func authorize(appt *Appointment, actor Actor, allowed ...Role) error {
	permitted := false
	for _, r := range allowed {
		if r == actor.Role {
			permitted = true
			break
		}
	}
	if !permitted {
		return ErrForbidden
	}

	switch actor.Role {
	case RoleAdmin:
		return nil
	case RoleDoctor:
		if appt.DoctorID == actor.ID {
			return nil
		}
	case RoleUser:
		if appt.UserID == actor.ID {
			return nil
		}
	}
	return ErrForbidden
}

func (s *Service) withLock(ctx context.Context, appointmentID string, fn func(ctx context.Context) error) error {
	if s.locker == nil {
		return fn(ctx)
	}

	err := s.locker.WithLock(ctx, "appointment:"+appointmentID, fn)
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		return ErrAppointmentBusy
	}
	return err
}

// release frees a slot after the appointment has stopped referencing it. A
// failure leaves a stale ledger entry, which blocks the slot but never double
// books it; reconcile repairs it.
func (s *Service) release(ctx context.Context, doctorID, date, slotTime, reason string) {
	if err := s.ledger.Release(ctx, doctorID, date, slotTime); err != nil {
		s.log.Error().Err(err).
			Str("doctor_id", doctorID).
			Str("slot_date", date).
			Str("slot_time", slotTime).
			Msg(reason)
	}
}

func (s *Service) logEvent(ctx context.Context, appointmentID string, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Error().Err(err).Str("event", eventType).Msg("marshal event payload")
		data = nil
	}

	apptID := appointmentID

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     time.Now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.log.Error().Err(err).
			Str("event", eventType).
			Str("appointment_id", appointmentID).
			Msg("insert event log")
	}

	if s.publisher != nil {
		s.publisher.Publish(ev)
	}
}
