package api

import (
	"errors"
	"net/http"

	"github.com/hackgods/clinic-appointments/internal/appointment"
	"github.com/hackgods/clinic-appointments/internal/auth"
	"github.com/hackgods/clinic-appointments/internal/directory"
	"github.com/hackgods/clinic-appointments/internal/media"
	"github.com/hackgods/clinic-appointments/internal/payment"
	redisclient "github.com/hackgods/clinic-appointments/internal/redis"
)

var errBadRequest = errors.New("invalid request body")

type apiError struct {
	status  int
	code    string
	message string
}

// classify maps service errors onto HTTP status and error code. Unknown
// errors become a 500 with a generic message.
func classify(err error) apiError {
	var verr *directory.ValidationError
	switch {
	case errors.As(err, &verr):
		return apiError{http.StatusBadRequest, "ValidationFailed", verr.Message}
	case errors.Is(err, errBadRequest),
		errors.Is(err, appointment.ErrInvalidAmount),
		errors.Is(err, media.ErrInvalidImage):
		return apiError{http.StatusBadRequest, "ValidationFailed", err.Error()}
	case errors.Is(err, appointment.ErrInvalidSlotKey):
		return apiError{http.StatusBadRequest, "InvalidSlot", err.Error()}

	case errors.Is(err, auth.ErrInvalidCredentials):
		return apiError{http.StatusUnauthorized, "InvalidCredentials", "Invalid credentials"}

	case errors.Is(err, appointment.ErrForbidden):
		return apiError{http.StatusForbidden, "Forbidden", "Unauthorized action"}

	case errors.Is(err, appointment.ErrDoctorNotFound):
		return apiError{http.StatusNotFound, "DoctorNotFound", "Doctor not found"}
	case errors.Is(err, appointment.ErrUserNotFound):
		return apiError{http.StatusNotFound, "UserNotFound", "User not found"}
	case errors.Is(err, appointment.ErrAppointmentNotFound):
		return apiError{http.StatusNotFound, "AppointmentNotFound", "Appointment not found"}

	case errors.Is(err, appointment.ErrSlotConflict):
		return apiError{http.StatusConflict, "SlotConflict", "Slot not available"}
	case errors.Is(err, appointment.ErrDoctorUnavailable):
		return apiError{http.StatusConflict, "DoctorUnavailable", "Doctor not available"}
	case errors.Is(err, appointment.ErrAppointmentClosed):
		return apiError{http.StatusConflict, "AppointmentClosed", "Appointment is cancelled or completed"}
	case errors.Is(err, appointment.ErrAlreadyCancelled):
		return apiError{http.StatusConflict, "AppointmentCancelled", "Appointment is cancelled"}
	case errors.Is(err, appointment.ErrHasActiveAppointments):
		return apiError{http.StatusConflict, "DOCTOR_HAS_ACTIVE_APPOINTMENTS", "Doctor has active appointments"}
	case errors.Is(err, appointment.ErrAppointmentBusy),
		errors.Is(err, redisclient.ErrLockNotAcquired):
		return apiError{http.StatusConflict, "AppointmentBusy", "Appointment is being modified, please retry"}
	case errors.Is(err, appointment.ErrEmailInUse):
		return apiError{http.StatusConflict, "EmailInUse", "Email already in use"}
	case errors.Is(err, payment.ErrAlreadyPaid):
		return apiError{http.StatusConflict, "AlreadyPaid", "Appointment is already paid"}

	case errors.Is(err, payment.ErrPaymentIncomplete):
		return apiError{http.StatusPaymentRequired, "PaymentIncomplete", "Payment has not succeeded"}

	default:
		return apiError{http.StatusInternalServerError, "InternalError", "internal server error"}
	}
}

func (s *server) fail(w http.ResponseWriter, r *http.Request, err error) {
	e := classify(err)
	if e.status >= http.StatusInternalServerError {
		s.log.Error().Err(err).
			Str("request_id", GetRequestID(r.Context())).
			Str("path", r.URL.Path).
			Msg("request failed")
	}
	s.metrics.APIError(e.code)
	writeError(w, e.status, e.code, e.message)
}
