package appointment

import (
	"context"
	"errors"
)

var (
	ErrUserNotFound        = errors.New("user not found")
	ErrDoctorNotFound      = errors.New("doctor not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrEmailInUse          = errors.New("email already in use")
	ErrInvalidSlotKey      = errors.New("slot date and time must be non-empty")
)

// DoctorStore persists doctor records. The ledger is written only through
// SlotStore.
type DoctorStore interface {
	CreateDoctor(ctx context.Context, d *Doctor) error
	GetDoctorByID(ctx context.Context, id string) (*Doctor, error)
	GetDoctorByEmail(ctx context.Context, email string) (*Doctor, error)
	ListDoctors(ctx context.Context) ([]Doctor, error)
	UpdateDoctor(ctx context.Context, id string, patch DoctorPatch) (*Doctor, error)
	SetDoctorAvailability(ctx context.Context, id string, available bool) (*Doctor, error)
	DeleteDoctor(ctx context.Context, id string) error
}

type UserStore interface {
	CreateUser(ctx context.Context, u *User) error
	GetUserByID(ctx context.Context, id string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	// ListUsers returns users newest first.
	ListUsers(ctx context.Context) ([]User, error)
	UpdateUser(ctx context.Context, id string, patch UserPatch) (*User, error)
	DeleteUser(ctx context.Context, id string) error
}

// SlotStore is the persistence side of the ledger. ReserveSlot must check and
// insert in one atomic step per doctor.
type SlotStore interface {
	ReserveSlot(ctx context.Context, doctorID, date, slotTime string) error
	ReleaseSlot(ctx context.Context, doctorID, date, slotTime string) error
	IsSlotBooked(ctx context.Context, doctorID, date, slotTime string) (bool, error)
	DoctorSlots(ctx context.Context, doctorID string) (SlotMap, error)
}

type AppointmentStore interface {
	CreateAppointment(ctx context.Context, a *Appointment) error
	GetAppointmentByID(ctx context.Context, id string) (*Appointment, error)
	// ListAppointments returns matches newest first by CreatedAt.
	ListAppointments(ctx context.Context, f AppointmentFilter) ([]Appointment, error)
	UpdateAppointment(ctx context.Context, id string, upd AppointmentUpdate) (*Appointment, error)
	DeleteAppointment(ctx context.Context, id string) error
	CountActiveForDoctor(ctx context.Context, doctorID string) (int, error)

	InsertEvent(ctx context.Context, ev EventLog) error
}

// Repository contains all DB interactions needed by the services.
type Repository interface {
	DoctorStore
	UserStore
	SlotStore
	AppointmentStore

	Ping(ctx context.Context) error
}
