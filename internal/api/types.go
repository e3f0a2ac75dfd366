package api

import (
	"encoding/json"
	"net/http"

	"github.com/hackgods/clinic-appointments/internal/appointment"
)

// envelope is the response shape every client of this API expects:
// success, message and an optional machine-readable code, followed by payload keys.
type envelope map[string]any

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type BookAppointmentRequest struct {
	DoctorID string `json:"docId"`
	SlotDate string `json:"slotDate"`
	SlotTime string `json:"slotTime"`
}

// DoctorBookingRequest is used by doctors booking on behalf of a patient,
// who is identified by email or id.
type DoctorBookingRequest struct {
	UserID   string                        `json:"userId"`
	Email    string                        `json:"email"`
	SlotDate string                        `json:"slotDate"`
	SlotTime string                        `json:"slotTime"`
	Amount   appointment.Optional[float64] `json:"amount"`
}

type AppointmentIDRequest struct {
	AppointmentID string `json:"appointmentId"`
}

type ConfirmPaymentRequest struct {
	AppointmentID   string `json:"appointmentId"`
	PaymentIntentID string `json:"paymentIntentId"`
}

type DoctorIDRequest struct {
	DoctorID string `json:"docId"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeOK(w http.ResponseWriter, message string, payload envelope) {
	body := envelope{"success": true}
	if message != "" {
		body["message"] = message
	}
	for k, v := range payload {
		body[k] = v
	}
	writeJSON(w, http.StatusOK, body)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, envelope{
		"success": false,
		"message": message,
		"code":    code,
	})
}

type NewDoctorRequest struct {
	Name       string                        `json:"name"`
	Email      string                        `json:"email"`
	Password   string                        `json:"password"`
	Speciality string                        `json:"speciality"`
	Degree     string                        `json:"degree"`
	Experience string                        `json:"experience"`
	About      string                        `json:"about"`
	Fees       appointment.Optional[float64] `json:"fees"`
	Address    appointment.Address           `json:"address"`
}

type NewUserRequest struct {
	Name     string              `json:"name"`
	Email    string              `json:"email"`
	Password string              `json:"password"`
	Phone    string              `json:"phone"`
	Address  appointment.Address `json:"address"`
	Gender   string              `json:"gender"`
	DOB      string              `json:"dob"`
}
