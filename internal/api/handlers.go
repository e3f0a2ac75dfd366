package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hackgods/clinic-appointments/internal/appointment"
	"github.com/hackgods/clinic-appointments/internal/auth"
)

func actorOf(r *http.Request) appointment.Actor {
	actor, _ := auth.ActorFrom(r.Context())
	return actor
}

func requireField(value, name string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%w: %s is required", errBadRequest, name)
	}
	return nil
}

// Logins

type loginFunc func(r *http.Request, email, password string) (string, error)

func (s *server) loginHandler(role appointment.Role, login loginFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LoginRequest
		if err := decodeJSON(w, r, &req); err != nil {
			s.fail(w, r, err)
			return
		}

		token, err := login(r, req.Email, req.Password)
		s.metrics.Login(string(role), err == nil)
		if err != nil {
			s.fail(w, r, err)
			return
		}

		writeOK(w, "", envelope{"token": token})
	}
}

func (s *server) loginUser() http.HandlerFunc {
	return s.loginHandler(appointment.RoleUser, func(r *http.Request, email, password string) (string, error) {
		return s.dir.LoginUser(r.Context(), email, password)
	})
}

func (s *server) loginDoctor() http.HandlerFunc {
	return s.loginHandler(appointment.RoleDoctor, func(r *http.Request, email, password string) (string, error) {
		return s.dir.LoginDoctor(r.Context(), email, password)
	})
}

func (s *server) loginAdmin() http.HandlerFunc {
	return s.loginHandler(appointment.RoleAdmin, func(_ *http.Request, email, password string) (string, error) {
		return s.dir.LoginAdmin(email, password)
	})
}

// Patients

func (s *server) registerUser() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RegisterRequest
		if err := decodeJSON(w, r, &req); err != nil {
			s.fail(w, r, err)
			return
		}

		token, err := s.dir.Register(r.Context(), req.Name, req.Email, req.Password)
		if err != nil {
			s.fail(w, r, err)
			return
		}

		writeOK(w, "", envelope{"token": token})
	}
}

func (s *server) getProfile() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, err := s.dir.GetUser(r.Context(), actorOf(r).ID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeOK(w, "", envelope{"userData": u})
	}
}

func (s *server) updateProfile() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in, err := s.readUserUpdate(w, r)
		if err != nil {
			s.fail(w, r, err)
			return
		}

		u, err := s.dir.UpdateProfile(r.Context(), actorOf(r).ID, in)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeOK(w, "Profile Updated", envelope{"userData": u})
	}
}

func (s *server) bookAppointment() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BookAppointmentRequest
		if err := decodeJSON(w, r, &req); err != nil {
			s.fail(w, r, err)
			return
		}
		if err := requireField(req.DoctorID, "docId"); err != nil {
			s.fail(w, r, err)
			return
		}

		appt, err := s.appts.CreateAppointment(r.Context(), appointment.CreateRequest{
			DoctorID: req.DoctorID,
			UserID:   actorOf(r).ID,
			SlotDate: req.SlotDate,
			SlotTime: req.SlotTime,
		})
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeOK(w, "Appointment Booked", envelope{"appointment": appt})
	}
}

// listAppointments scopes the listing to the caller: patients and doctors
// see their own, admins see everything.
func (s *server) listAppointments() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor := actorOf(r)

		var filter appointment.AppointmentFilter
		switch actor.Role {
		case appointment.RoleUser:
			filter.UserID = actor.ID
		case appointment.RoleDoctor:
			filter.DoctorID = actor.ID
		}

		appts, err := s.appts.ListAppointments(r.Context(), filter)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeOK(w, "", envelope{"appointments": appts})
	}
}

func (s *server) cancelAppointment() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AppointmentIDRequest
		if err := decodeJSON(w, r, &req); err != nil {
			s.fail(w, r, err)
			return
		}
		if err := requireField(req.AppointmentID, "appointmentId"); err != nil {
			s.fail(w, r, err)
			return
		}

		appt, err := s.appts.CancelAppointment(r.Context(), req.AppointmentID, actorOf(r))
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeOK(w, "Appointment Cancelled", envelope{"appointment": appt})
	}
}

func (s *server) downloadReceipt() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		appt, err := s.appts.GetAppointment(r.Context(), chi.URLParam(r, "id"), actorOf(r))
		if err != nil {
			s.fail(w, r, err)
			return
		}

		pdf, err := s.receipts.Render(appt, s.currency)
		if err != nil {
			s.fail(w, r, err)
			return
		}

		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=receipt-%s.pdf", appt.ID))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(pdf)
	}
}

func (s *server) createPaymentIntent() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AppointmentIDRequest
		if err := decodeJSON(w, r, &req); err != nil {
			s.fail(w, r, err)
			return
		}
		if err := requireField(req.AppointmentID, "appointmentId"); err != nil {
			s.fail(w, r, err)
			return
		}

		intent, err := s.payments.CreateIntent(r.Context(), actorOf(r), req.AppointmentID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeOK(w, "", envelope{
			"clientSecret":    intent.ClientSecret,
			"paymentIntentId": intent.ID,
			"amount":          intent.Amount,
			"currency":        intent.Currency,
		})
	}
}

func (s *server) confirmPayment() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ConfirmPaymentRequest
		if err := decodeJSON(w, r, &req); err != nil {
			s.fail(w, r, err)
			return
		}
		if err := requireField(req.AppointmentID, "appointmentId"); err != nil {
			s.fail(w, r, err)
			return
		}

		appt, err := s.payments.Confirm(r.Context(), actorOf(r), req.AppointmentID, req.PaymentIntentID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeOK(w, "Payment confirmed and appointment updated", envelope{"appointment": appt})
	}
}

// Doctors

func (s *server) publicDoctors() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctors, err := s.dir.PublicDoctors(r.Context())
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeOK(w, "", envelope{"doctors": doctors})
	}
}

// changeAvailability toggles the caller's own availability, or for admins
// the doctor named in the body.
func (s *server) changeAvailability() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor := actorOf(r)
		doctorID := actor.ID

		if actor.Role == appointment.RoleAdmin {
			var req DoctorIDRequest
			if err := decodeJSON(w, r, &req); err != nil {
				s.fail(w, r, err)
				return
			}
			if err := requireField(req.DoctorID, "docId"); err != nil {
				s.fail(w, r, err)
				return
			}
			doctorID = req.DoctorID
		}

		d, err := s.dir.ToggleAvailability(r.Context(), doctorID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeOK(w, "Availability Changed", envelope{"available": d.Available})
	}
}

func (s *server) doctorDashboard() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dash, err := s.appts.DoctorDashboard(r.Context(), actorOf(r).ID, s.now(), s.loc)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeOK(w, "", envelope{"dashData": dash})
	}
}

// doctorBook books a slot with the calling doctor for an existing patient.
func (s *server) doctorBook() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req DoctorBookingRequest
		if err := decodeJSON(w, r, &req); err != nil {
			s.fail(w, r, err)
			return
		}
		if req.UserID == "" && req.Email == "" {
			s.fail(w, r, fmt.Errorf("%w: userId or email is required", errBadRequest))
			return
		}

		appt, err := s.appts.CreateAppointment(r.Context(), appointment.CreateRequest{
			DoctorID:  actorOf(r).ID,
			UserID:    req.UserID,
			UserEmail: req.Email,
			SlotDate:  req.SlotDate,
			SlotTime:  req.SlotTime,
			Amount:    req.Amount,
		})
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeOK(w, "Appointment created", envelope{"appointment": appt})
	}
}

func (s *server) rescheduleAppointment() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var patch appointment.ReschedulePatch
		if err := decodeJSON(w, r, &patch); err != nil {
			s.fail(w, r, err)
			return
		}

		appt, err := s.appts.RescheduleAppointment(r.Context(), chi.URLParam(r, "id"), actorOf(r), patch)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeOK(w, "Appointment updated", envelope{"appointment": appt})
	}
}

func (s *server) deleteAppointment() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.appts.DeleteAppointment(r.Context(), chi.URLParam(r, "id"), actorOf(r)); err != nil {
			s.fail(w, r, err)
			return
		}
		writeOK(w, "Appointment deleted", nil)
	}
}

func (s *server) completeAppointment() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		appt, err := s.appts.CompleteAppointment(r.Context(), chi.URLParam(r, "id"), actorOf(r))
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeOK(w, "Appointment marked completed", envelope{"appointment": appt})
	}
}

func (s *server) confirmAppointment() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		appt, err := s.appts.ConfirmAppointment(r.Context(), chi.URLParam(r, "id"), actorOf(r))
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeOK(w, "Appointment confirmed", envelope{"appointment": appt})
	}
}

// doctorUsers lists patients for the doctor's booking form, without
// anything beyond the public profile.
func (s *server) doctorUsers() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		users, err := s.dir.ListUsers(r.Context())
		if err != nil {
			s.fail(w, r, err)
			return
		}
		out := make([]appointment.UserSnapshot, 0, len(users))
		for i := range users {
			out = append(out, users[i].Snapshot())
		}
		writeOK(w, "", envelope{"users": out})
	}
}

// Admin

func (s *server) addDoctor() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in, err := s.readNewDoctor(w, r)
		if err != nil {
			s.fail(w, r, err)
			return
		}

		d, err := s.dir.AddDoctor(r.Context(), in)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeOK(w, "Doctor Added", envelope{"doctor": d})
	}
}

func (s *server) allDoctors() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctors, err := s.dir.ListDoctors(r.Context())
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeOK(w, "", envelope{"doctors": doctors})
	}
}

func (s *server) updateDoctor() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in, err := s.readDoctorUpdate(w, r)
		if err != nil {
			s.fail(w, r, err)
			return
		}

		d, err := s.dir.UpdateDoctor(r.Context(), chi.URLParam(r, "id"), in)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeOK(w, "Doctor updated", envelope{"doctor": d})
	}
}

// deleteDoctor takes the id from the path, or from {"docId"} on the
// legacy POST route.
func (s *server) deleteDoctor() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if id == "" {
			var req DoctorIDRequest
			if err := decodeJSON(w, r, &req); err != nil {
				s.fail(w, r, err)
				return
			}
			id = req.DoctorID
		}
		if err := requireField(id, "docId"); err != nil {
			s.fail(w, r, err)
			return
		}

		if err := s.dir.DeleteDoctor(r.Context(), id); err != nil {
			s.fail(w, r, err)
			return
		}
		writeOK(w, "Doctor deleted", nil)
	}
}

func (s *server) allUsers() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		users, err := s.dir.ListUsers(r.Context())
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeOK(w, "", envelope{"users": users})
	}
}

func (s *server) createUser() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in, err := s.readNewUser(w, r)
		if err != nil {
			s.fail(w, r, err)
			return
		}

		u, err := s.dir.CreateUser(r.Context(), in)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeOK(w, "User created", envelope{"user": u})
	}
}

func (s *server) updateUser() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in, err := s.readUserUpdate(w, r)
		if err != nil {
			s.fail(w, r, err)
			return
		}

		u, err := s.dir.UpdateUser(r.Context(), chi.URLParam(r, "id"), in)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeOK(w, "User updated", envelope{"user": u})
	}
}

func (s *server) deleteUser() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := s.dir.DeleteUser(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			if len(report.Failed) > 0 && !errors.Is(err, appointment.ErrUserNotFound) {
				s.log.Error().Err(err).Strs("failed", report.Failed).Msg("user delete left appointments behind")
			}
			s.fail(w, r, err)
			return
		}
		writeOK(w, "User and related appointments deleted", envelope{"report": report})
	}
}

func (s *server) adminDashboard() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dash, err := s.appts.AdminDashboard(r.Context(), s.now(), s.loc)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeOK(w, "", envelope{"dashData": dash})
	}
}
