package appointment

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryRepository keeps everything in process memory behind one mutex. It is
// used by STORE_DRIVER=memory and by tests.
type MemoryRepository struct {
	mu           sync.Mutex
	doctors      map[string]*Doctor
	users        map[string]*User
	appointments map[string]*Appointment
	events       []EventLog
	nextEventID  int64
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		doctors:      make(map[string]*Doctor),
		users:        make(map[string]*User),
		appointments: make(map[string]*Appointment),
	}
}

func (r *MemoryRepository) Ping(context.Context) error { return nil }

func cloneSlots(m SlotMap) SlotMap {
	out := make(SlotMap, len(m))
	for d, times := range m {
		out[d] = append([]string(nil), times...)
	}
	return out
}

func cloneDoctor(d *Doctor) *Doctor {
	c := *d
	c.SlotsBooked = cloneSlots(d.SlotsBooked)
	return &c
}

// Doctors

func (r *MemoryRepository) CreateDoctor(_ context.Context, d *Doctor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.doctors {
		if strings.EqualFold(existing.Email, d.Email) {
			return ErrEmailInUse
		}
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}
	c := cloneDoctor(d)
	if c.SlotsBooked == nil {
		c.SlotsBooked = SlotMap{}
	}
	r.doctors[d.ID] = c
	return nil
}

func (r *MemoryRepository) GetDoctorByID(_ context.Context, id string) (*Doctor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.doctors[id]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	return cloneDoctor(d), nil
}

func (r *MemoryRepository) GetDoctorByEmail(_ context.Context, email string) (*Doctor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, d := range r.doctors {
		if strings.EqualFold(d.Email, email) {
			return cloneDoctor(d), nil
		}
	}
	return nil, ErrDoctorNotFound
}

func (r *MemoryRepository) ListDoctors(context.Context) ([]Doctor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Doctor, 0, len(r.doctors))
	for _, d := range r.doctors {
		out = append(out, *cloneDoctor(d))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryRepository) UpdateDoctor(_ context.Context, id string, patch DoctorPatch) (*Doctor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.doctors[id]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	if patch.Email.Set {
		for otherID, other := range r.doctors {
			if otherID != id && strings.EqualFold(other.Email, patch.Email.Value) {
				return nil, ErrEmailInUse
			}
		}
	}
	patch.Apply(d)
	return cloneDoctor(d), nil
}

func (r *MemoryRepository) SetDoctorAvailability(_ context.Context, id string, available bool) (*Doctor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.doctors[id]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	d.Available = available
	return cloneDoctor(d), nil
}

func (r *MemoryRepository) DeleteDoctor(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.doctors[id]; !ok {
		return ErrDoctorNotFound
	}
	delete(r.doctors, id)
	return nil
}

// Users

func (r *MemoryRepository) CreateUser(_ context.Context, u *User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return ErrEmailInUse
		}
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	c := *u
	r.users[u.ID] = &c
	return nil
}

func (r *MemoryRepository) GetUserByID(_ context.Context, id string) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	c := *u
	return &c, nil
}

func (r *MemoryRepository) GetUserByEmail(_ context.Context, email string) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.users {
		if strings.EqualFold(u.Email, email) {
			c := *u
			return &c, nil
		}
	}
	return nil, ErrUserNotFound
}

func (r *MemoryRepository) ListUsers(context.Context) ([]User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]User, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryRepository) UpdateUser(_ context.Context, id string, patch UserPatch) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	if patch.Email.Set {
		for otherID, other := range r.users {
			if otherID != id && strings.EqualFold(other.Email, patch.Email.Value) {
				return nil, ErrEmailInUse
			}
		}
	}
	patch.Apply(u)
	c := *u
	return &c, nil
}

func (r *MemoryRepository) DeleteUser(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[id]; !ok {
		return ErrUserNotFound
	}
	delete(r.users, id)
	return nil
}

// Slots

func (r *MemoryRepository) ReserveSlot(_ context.Context, doctorID, date, slotTime string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.doctors[doctorID]
	if !ok {
		return ErrDoctorNotFound
	}
	if !d.Available {
		return ErrDoctorUnavailable
	}
	if d.SlotsBooked.Has(date, slotTime) {
		return ErrSlotConflict
	}
	if d.SlotsBooked == nil {
		d.SlotsBooked = SlotMap{}
	}
	d.SlotsBooked[date] = append(d.SlotsBooked[date], slotTime)
	return nil
}

func (r *MemoryRepository) ReleaseSlot(_ context.Context, doctorID, date, slotTime string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.doctors[doctorID]
	if !ok {
		return ErrDoctorNotFound
	}
	times := d.SlotsBooked[date]
	kept := times[:0]
	for _, t := range times {
		if t != slotTime {
			kept = append(kept, t)
		}
	}
	if len(kept) == 0 {
		delete(d.SlotsBooked, date)
	} else {
		d.SlotsBooked[date] = kept
	}
	return nil
}

func (r *MemoryRepository) IsSlotBooked(_ context.Context, doctorID, date, slotTime string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.doctors[doctorID]
	if !ok {
		return false, ErrDoctorNotFound
	}
	return d.SlotsBooked.Has(date, slotTime), nil
}

func (r *MemoryRepository) DoctorSlots(_ context.Context, doctorID string) (SlotMap, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.doctors[doctorID]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	return cloneSlots(d.SlotsBooked), nil
}

// Appointments

func (r *MemoryRepository) CreateAppointment(_ context.Context, a *Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	c := *a
	r.appointments[a.ID] = &c
	return nil
}

func (r *MemoryRepository) GetAppointmentByID(_ context.Context, id string) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	c := *a
	return &c, nil
}

func (r *MemoryRepository) ListAppointments(_ context.Context, f AppointmentFilter) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Appointment, 0)
	for _, a := range r.appointments {
		if f.DoctorID != "" && a.DoctorID != f.DoctorID {
			continue
		}
		if f.UserID != "" && a.UserID != f.UserID {
			continue
		}
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryRepository) UpdateAppointment(_ context.Context, id string, upd AppointmentUpdate) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	upd.Apply(a)
	c := *a
	return &c, nil
}

func (r *MemoryRepository) DeleteAppointment(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.appointments[id]; !ok {
		return ErrAppointmentNotFound
	}
	delete(r.appointments, id)
	return nil
}

func (r *MemoryRepository) CountActiveForDoctor(_ context.Context, doctorID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, a := range r.appointments {
		if a.DoctorID == doctorID && a.Active() {
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepository) InsertEvent(_ context.Context, ev EventLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextEventID++
	ev.ID = r.nextEventID
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}
	r.events = append(r.events, ev)
	return nil
}

// Events returns a copy of the recorded event log.
func (r *MemoryRepository) Events() []EventLog {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]EventLog(nil), r.events...)
}
