package payment

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-appointments/internal/appointment"
)

var (
	ErrAlreadyPaid       = errors.New("appointment is already paid")
	ErrPaymentIncomplete = errors.New("payment has not succeeded")
)

type Intent struct {
	ID           string `json:"id"`
	ClientSecret string `json:"clientSecret"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
}

// Processor is the payment provider boundary.
type Processor interface {
	CreateIntent(ctx context.Context, amount int64, currency string, metadata map[string]string) (*Intent, error)
	// Succeeded reports whether the intent has been paid.
	Succeeded(ctx context.Context, intentID string) (bool, error)
}

// ToMinorUnits converts an amount to the currency's smallest unit.
func ToMinorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

type Service struct {
	processor Processor
	appts     *appointment.Service
	currency  string
	log       zerolog.Logger
}

func NewService(processor Processor, appts *appointment.Service, currency string, logger zerolog.Logger) *Service {
	return &Service{
		processor: processor,
		appts:     appts,
		currency:  currency,
		log:       logger.With().Str("component", "payment").Logger(),
	}
}

// CreateIntent starts a payment for the appointment's amount. Only the
// patient who owns the appointment may pay for it.
func (s *Service) CreateIntent(ctx context.Context, actor appointment.Actor, appointmentID string) (*Intent, error) {
	appt, err := s.appts.GetAppointment(ctx, appointmentID, actor)
	if err != nil {
		return nil, err
	}
	if appt.Cancelled {
		return nil, appointment.ErrAlreadyCancelled
	}
	if appt.Paid {
		return nil, ErrAlreadyPaid
	}

	intent, err := s.processor.CreateIntent(ctx, ToMinorUnits(appt.Amount), s.currency, map[string]string{
		"appointmentId": appt.ID,
		"userId":        appt.UserID,
	})
	if err != nil {
		return nil, fmt.Errorf("create payment intent: %w", err)
	}

	s.log.Info().
		Str("appointment_id", appt.ID).
		Str("intent_id", intent.ID).
		Int64("amount", intent.Amount).
		Msg("payment intent created")
	return intent, nil
}

// Confirm marks the appointment paid. When an intent id is supplied the
// provider must report it as succeeded.
func (s *Service) Confirm(ctx context.Context, actor appointment.Actor, appointmentID, intentID string) (*appointment.Appointment, error) {
	if intentID != "" {
		ok, err := s.processor.Succeeded(ctx, intentID)
		if err != nil {
			return nil, fmt.Errorf("check payment intent: %w", err)
		}
		if !ok {
			return nil, ErrPaymentIncomplete
		}
	}
	return s.appts.MarkPaid(ctx, appointmentID, actor)
}
