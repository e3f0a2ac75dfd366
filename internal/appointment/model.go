package appointment

import (
	"time"
)

type State string

const (
	StatePending   State = "pending"
	StateConfirmed State = "confirmed"
	StateCompleted State = "completed"
	StateCancelled State = "cancelled"
)

type Role string

const (
	RoleUser   Role = "user"
	RoleDoctor Role = "doctor"
	RoleAdmin  Role = "admin"
)

// Actor is the authenticated caller of a lifecycle command.
type Actor struct {
	Role Role
	ID   string
}

func AdminActor() Actor { return Actor{Role: RoleAdmin} }

func DoctorActor(id string) Actor { return Actor{Role: RoleDoctor, ID: id} }

func UserActor(id string) Actor { return Actor{Role: RoleUser, ID: id} }

type Address struct {
	Line1 string `json:"line1" bson:"line1"`
	Line2 string `json:"line2" bson:"line2"`
}

// SlotMap is a doctor's ledger: date key -> booked time keys.
type SlotMap map[string][]string

// Has reports whether the (date, time) pair is present.
func (m SlotMap) Has(date, slotTime string) bool {
	for _, t := range m[date] {
		if t == slotTime {
			return true
		}
	}
	return false
}

// Len counts booked pairs.
func (m SlotMap) Len() int {
	n := 0
	for _, times := range m {
		n += len(times)
	}
	return n
}

type Doctor struct {
	ID           string    `json:"_id" bson:"_id"`
	Name         string    `json:"name" bson:"name"`
	Email        string    `json:"email,omitempty" bson:"email"`
	PasswordHash string    `json:"-" bson:"password"`
	Image        string    `json:"image" bson:"image"`
	Speciality   string    `json:"speciality" bson:"speciality"`
	Degree       string    `json:"degree" bson:"degree"`
	Experience   string    `json:"experience" bson:"experience"`
	About        string    `json:"about" bson:"about"`
	Available    bool      `json:"available" bson:"available"`
	Fees         float64   `json:"fees" bson:"fees"`
	Address      Address   `json:"address" bson:"address"`
	CreatedAt    time.Time `json:"date" bson:"date"`
	SlotsBooked  SlotMap   `json:"slots_booked" bson:"slots_booked"`
}

// Snapshot copies the public fields stored on an appointment. It never
// carries the credential digest or the ledger.
func (d *Doctor) Snapshot() DoctorSnapshot {
	return DoctorSnapshot{
		ID:         d.ID,
		Name:       d.Name,
		Email:      d.Email,
		Image:      d.Image,
		Speciality: d.Speciality,
		Degree:     d.Degree,
		Experience: d.Experience,
		About:      d.About,
		Fees:       d.Fees,
		Address:    d.Address,
	}
}

// Public strips fields hidden from the patient-facing doctor list.
func (d Doctor) Public() Doctor {
	d.Email = ""
	d.PasswordHash = ""
	return d
}

type User struct {
	ID           string    `json:"_id" bson:"_id"`
	Name         string    `json:"name" bson:"name"`
	Email        string    `json:"email" bson:"email"`
	PasswordHash string    `json:"-" bson:"password"`
	Image        string    `json:"image" bson:"image"`
	Phone        string    `json:"phone" bson:"phone"`
	Address      Address   `json:"address" bson:"address"`
	Gender       string    `json:"gender" bson:"gender"`
	DOB          string    `json:"dob" bson:"dob"`
	CreatedAt    time.Time `json:"createdAt" bson:"createdAt"`
}

func (u *User) Snapshot() UserSnapshot {
	return UserSnapshot{
		ID:      u.ID,
		Name:    u.Name,
		Email:   u.Email,
		Image:   u.Image,
		Phone:   u.Phone,
		Address: u.Address,
		Gender:  u.Gender,
		DOB:     u.DOB,
	}
}

// DoctorSnapshot is a denormalized copy taken at booking time. It does not
// follow later edits of the doctor record.
type DoctorSnapshot struct {
	ID         string  `json:"_id" bson:"_id"`
	Name       string  `json:"name" bson:"name"`
	Email      string  `json:"email" bson:"email"`
	Image      string  `json:"image" bson:"image"`
	Speciality string  `json:"speciality" bson:"speciality"`
	Degree     string  `json:"degree" bson:"degree"`
	Experience string  `json:"experience" bson:"experience"`
	About      string  `json:"about" bson:"about"`
	Fees       float64 `json:"fees" bson:"fees"`
	Address    Address `json:"address" bson:"address"`
}

// UserSnapshot is the patient counterpart of DoctorSnapshot.
type UserSnapshot struct {
	ID      string  `json:"_id" bson:"_id"`
	Name    string  `json:"name" bson:"name"`
	Email   string  `json:"email" bson:"email"`
	Image   string  `json:"image" bson:"image"`
	Phone   string  `json:"phone" bson:"phone"`
	Address Address `json:"address" bson:"address"`
	Gender  string  `json:"gender" bson:"gender"`
	DOB     string  `json:"dob" bson:"dob"`
}

type Appointment struct {
	ID          string         `json:"_id" bson:"_id"`
	UserID      string         `json:"userId" bson:"userId"`
	DoctorID    string         `json:"docId" bson:"docId"`
	SlotDate    string         `json:"slotDate" bson:"slotDate"`
	SlotTime    string         `json:"slotTime" bson:"slotTime"`
	UserData    UserSnapshot   `json:"userData" bson:"userData"`
	DoctorData  DoctorSnapshot `json:"docData" bson:"docData"`
	Amount      float64        `json:"amount" bson:"amount"`
	CreatedAt   time.Time      `json:"date" bson:"date"`
	Cancelled   bool           `json:"cancelled" bson:"cancelled"`
	Confirmed   bool           `json:"confirmed" bson:"confirmed"`
	IsCompleted bool           `json:"isCompleted" bson:"isCompleted"`
	Paid        bool           `json:"paid" bson:"paid"`
}

// State derives the lifecycle state from the status flags.
func (a *Appointment) State() State {
	switch {
	case a.Cancelled:
		return StateCancelled
	case a.IsCompleted:
		return StateCompleted
	case a.Confirmed:
		return StateConfirmed
	default:
		return StatePending
	}
}

// Active reports whether the appointment is neither cancelled nor completed.
func (a *Appointment) Active() bool {
	return !a.Cancelled && !a.IsCompleted
}

// HoldsSlot reports whether the appointment owns a ledger entry.
func (a *Appointment) HoldsSlot() bool {
	return !a.Cancelled
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *string
	Payload       []byte
	CreatedAt     time.Time
}

// AppointmentFilter narrows ListAppointments. Empty fields match everything.
type AppointmentFilter struct {
	DoctorID string
	UserID   string
}
