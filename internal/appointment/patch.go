package appointment

import (
	"bytes"
	"encoding/json"
)

// Optional marks a field as present or absent in a patch. A JSON null or a
// missing key leaves it absent.
type Optional[T any] struct {
	Value T
	Set   bool
}

func Some[T any](v T) Optional[T] {
	return Optional[T]{Value: v, Set: true}
}

// Or returns the value when present, otherwise fallback.
func (o Optional[T]) Or(fallback T) T {
	if o.Set {
		return o.Value
	}
	return fallback
}

func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*o = Optional[T]{}
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*o = Optional[T]{Value: v, Set: true}
	return nil
}

func (o Optional[T]) MarshalJSON() ([]byte, error) {
	if !o.Set {
		return []byte("null"), nil
	}
	return json.Marshal(o.Value)
}

// ReschedulePatch carries the fields a doctor may change on an open appointment.
type ReschedulePatch struct {
	SlotDate Optional[string]  `json:"slotDate"`
	SlotTime Optional[string]  `json:"slotTime"`
	Amount   Optional[float64] `json:"amount"`
}

// AppointmentUpdate is the store-level write set. Only present fields are written.
type AppointmentUpdate struct {
	SlotDate    Optional[string]
	SlotTime    Optional[string]
	Amount      Optional[float64]
	Cancelled   Optional[bool]
	Confirmed   Optional[bool]
	IsCompleted Optional[bool]
	Paid        Optional[bool]
}

func (u AppointmentUpdate) Empty() bool {
	return !u.SlotDate.Set && !u.SlotTime.Set && !u.Amount.Set &&
		!u.Cancelled.Set && !u.Confirmed.Set && !u.IsCompleted.Set && !u.Paid.Set
}

// Apply writes present fields onto a.
func (u AppointmentUpdate) Apply(a *Appointment) {
	a.SlotDate = u.SlotDate.Or(a.SlotDate)
	a.SlotTime = u.SlotTime.Or(a.SlotTime)
	a.Amount = u.Amount.Or(a.Amount)
	a.Cancelled = u.Cancelled.Or(a.Cancelled)
	a.Confirmed = u.Confirmed.Or(a.Confirmed)
	a.IsCompleted = u.IsCompleted.Or(a.IsCompleted)
	a.Paid = u.Paid.Or(a.Paid)
}

// DoctorPatch updates a doctor record. Ledger and availability are not
// patchable here.
type DoctorPatch struct {
	Name         Optional[string]
	Email        Optional[string]
	PasswordHash Optional[string]
	Image        Optional[string]
	Speciality   Optional[string]
	Degree       Optional[string]
	Experience   Optional[string]
	About        Optional[string]
	Fees         Optional[float64]
	Address      Optional[Address]
}

func (p DoctorPatch) Apply(d *Doctor) {
	d.Name = p.Name.Or(d.Name)
	d.Email = p.Email.Or(d.Email)
	d.PasswordHash = p.PasswordHash.Or(d.PasswordHash)
	d.Image = p.Image.Or(d.Image)
	d.Speciality = p.Speciality.Or(d.Speciality)
	d.Degree = p.Degree.Or(d.Degree)
	d.Experience = p.Experience.Or(d.Experience)
	d.About = p.About.Or(d.About)
	d.Fees = p.Fees.Or(d.Fees)
	d.Address = p.Address.Or(d.Address)
}

type UserPatch struct {
	Name         Optional[string]
	Email        Optional[string]
	PasswordHash Optional[string]
	Image        Optional[string]
	Phone        Optional[string]
	Address      Optional[Address]
	Gender       Optional[string]
	DOB          Optional[string]
}

func (p UserPatch) Apply(u *User) {
	u.Name = p.Name.Or(u.Name)
	u.Email = p.Email.Or(u.Email)
	u.PasswordHash = p.PasswordHash.Or(u.PasswordHash)
	u.Image = p.Image.Or(u.Image)
	u.Phone = p.Phone.Or(u.Phone)
	u.Address = p.Address.Or(u.Address)
	u.Gender = p.Gender.Or(u.Gender)
	u.DOB = p.DOB.Or(u.DOB)
}
