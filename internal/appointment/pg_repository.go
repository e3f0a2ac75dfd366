package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgUniqueViolation = "23505"

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func (r *PgRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// Helpers

const doctorColumns = `id, name, email, password_hash, image, speciality, degree, experience, about, available, fees, address, created_at`

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor

	err := row.Scan(
		&d.ID,
		&d.Name,
		&d.Email,
		&d.PasswordHash,
		&d.Image,
		&d.Speciality,
		&d.Degree,
		&d.Experience,
		&d.About,
		&d.Available,
		&d.Fees,
		&d.Address,
		&d.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}

	d.SlotsBooked = SlotMap{}
	return &d, nil
}

const userColumns = `id, name, email, password_hash, image, phone, address, gender, dob, created_at`

func scanUser(row pgx.Row) (*User, error) {
	var u User

	err := row.Scan(
		&u.ID,
		&u.Name,
		&u.Email,
		&u.PasswordHash,
		&u.Image,
		&u.Phone,
		&u.Address,
		&u.Gender,
		&u.DOB,
		&u.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	return &u, nil
}

const appointmentColumns = `id, user_id, doctor_id, slot_date, slot_time, user_data, doc_data, amount, created_at, cancelled, confirmed, is_completed, paid`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment

	err := row.Scan(
		&a.ID,
		&a.UserID,
		&a.DoctorID,
		&a.SlotDate,
		&a.SlotTime,
		&a.UserData,
		&a.DoctorData,
		&a.Amount,
		&a.CreatedAt,
		&a.Cancelled,
		&a.Confirmed,
		&a.IsCompleted,
		&a.Paid,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	return &a, nil
}

// Doctors

func (r *PgRepository) CreateDoctor(ctx context.Context, d *Doctor) error {
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO doctors (`+doctorColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, d.ID, d.Name, d.Email, d.PasswordHash, d.Image, d.Speciality, d.Degree,
		d.Experience, d.About, d.Available, d.Fees, d.Address, d.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrEmailInUse
		}
		return fmt.Errorf("insert doctor: %w", err)
	}

	return nil
}

func (r *PgRepository) GetDoctorByID(ctx context.Context, id string) (*Doctor, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+doctorColumns+`
		FROM doctors
		WHERE id = $1
	`, id)
	d, err := scanDoctor(row)
	if err != nil {
		return nil, err
	}

	slots, err := r.DoctorSlots(ctx, id)
	if err != nil {
		return nil, err
	}
	d.SlotsBooked = slots
	return d, nil
}

func (r *PgRepository) GetDoctorByEmail(ctx context.Context, email string) (*Doctor, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+doctorColumns+`
		FROM doctors
		WHERE lower(email) = lower($1)
	`, email)
	return scanDoctor(row)
}

func (r *PgRepository) ListDoctors(ctx context.Context) ([]Doctor, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+doctorColumns+`
		FROM doctors
		ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Doctor
	index := make(map[string]int)
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, err
		}
		index[d.ID] = len(result)
		result = append(result, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	slotRows, err := r.pool.Query(ctx, `
		SELECT doctor_id, slot_date, slot_time
		FROM doctor_slots
		ORDER BY doctor_id, slot_date, created_at
	`)
	if err != nil {
		return nil, err
	}
	defer slotRows.Close()

	for slotRows.Next() {
		var doctorID, date, slotTime string
		if err := slotRows.Scan(&doctorID, &date, &slotTime); err != nil {
			return nil, err
		}
		if i, ok := index[doctorID]; ok {
			result[i].SlotsBooked[date] = append(result[i].SlotsBooked[date], slotTime)
		}
	}

	return result, slotRows.Err()
}

func (r *PgRepository) UpdateDoctor(ctx context.Context, id string, patch DoctorPatch) (*Doctor, error) {
	var updated *Doctor

	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		d, err := scanDoctor(tx.QueryRow(ctx, `
			SELECT `+doctorColumns+`
			FROM doctors
			WHERE id = $1
			FOR UPDATE
		`, id))
		if err != nil {
			return err
		}

		patch.Apply(d)

		_, err = tx.Exec(ctx, `
			UPDATE doctors
			SET name = $2, email = $3, password_hash = $4, image = $5, speciality = $6,
			    degree = $7, experience = $8, about = $9, fees = $10, address = $11
			WHERE id = $1
		`, id, d.Name, d.Email, d.PasswordHash, d.Image, d.Speciality, d.Degree,
			d.Experience, d.About, d.Fees, d.Address)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrEmailInUse
			}
			return fmt.Errorf("update doctor: %w", err)
		}

		updated = d
		return nil
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

func (r *PgRepository) SetDoctorAvailability(ctx context.Context, id string, available bool) (*Doctor, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE doctors
		SET available = $2
		WHERE id = $1
		RETURNING `+doctorColumns, id, available)
	return scanDoctor(row)
}

// DeleteDoctor removes the doctor; the ledger rows go with it.
func (r *PgRepository) DeleteDoctor(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM doctors WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete doctor: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDoctorNotFound
	}
	return nil
}

// Users

func (r *PgRepository) CreateUser(ctx context.Context, u *User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, u.ID, u.Name, u.Email, u.PasswordHash, u.Image, u.Phone, u.Address, u.Gender, u.DOB, u.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrEmailInUse
		}
		return fmt.Errorf("insert user: %w", err)
	}

	return nil
}

func (r *PgRepository) GetUserByID(ctx context.Context, id string) (*User, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE id = $1
	`, id)
	return scanUser(row)
}

func (r *PgRepository) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE lower(email) = lower($1)
	`, email)
	return scanUser(row)
}

func (r *PgRepository) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+userColumns+`
		FROM users
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *u)
	}

	return result, rows.Err()
}

func (r *PgRepository) UpdateUser(ctx context.Context, id string, patch UserPatch) (*User, error) {
	var updated *User

	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		u, err := scanUser(tx.QueryRow(ctx, `
			SELECT `+userColumns+`
			FROM users
			WHERE id = $1
			FOR UPDATE
		`, id))
		if err != nil {
			return err
		}

		patch.Apply(u)

		_, err = tx.Exec(ctx, `
			UPDATE users
			SET name = $2, email = $3, password_hash = $4, image = $5, phone = $6,
			    address = $7, gender = $8, dob = $9
			WHERE id = $1
		`, id, u.Name, u.Email, u.PasswordHash, u.Image, u.Phone, u.Address, u.Gender, u.DOB)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrEmailInUse
			}
			return fmt.Errorf("update user: %w", err)
		}

		updated = u
		return nil
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

func (r *PgRepository) DeleteUser(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// Slots

// ReserveSlot inserts the pair only when the doctor exists and is available.
// The primary key on doctor_slots makes the check and the insert one step.
func (r *PgRepository) ReserveSlot(ctx context.Context, doctorID, date, slotTime string) error {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO doctor_slots (doctor_id, slot_date, slot_time)
		SELECT id, $2, $3
		FROM doctors
		WHERE id = $1
		  AND available
		ON CONFLICT DO NOTHING
	`, doctorID, date, slotTime)
	if err != nil {
		return fmt.Errorf("insert doctor slot: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	// Nothing inserted: work out why.
	var available bool
	err = r.pool.QueryRow(ctx, `SELECT available FROM doctors WHERE id = $1`, doctorID).Scan(&available)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrDoctorNotFound
		}
		return err
	}
	if !available {
		return ErrDoctorUnavailable
	}
	return ErrSlotConflict
}

func (r *PgRepository) ReleaseSlot(ctx context.Context, doctorID, date, slotTime string) error {
	_, err := r.pool.Exec(ctx, `
		DELETE FROM doctor_slots
		WHERE doctor_id = $1
		  AND slot_date = $2
		  AND slot_time = $3
	`, doctorID, date, slotTime)
	if err != nil {
		return fmt.Errorf("delete doctor slot: %w", err)
	}
	return nil
}

func (r *PgRepository) IsSlotBooked(ctx context.Context, doctorID, date, slotTime string) (bool, error) {
	var booked bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM doctor_slots
			WHERE doctor_id = $1 AND slot_date = $2 AND slot_time = $3
		)
	`, doctorID, date, slotTime).Scan(&booked)
	return booked, err
}

func (r *PgRepository) DoctorSlots(ctx context.Context, doctorID string) (SlotMap, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT slot_date, slot_time
		FROM doctor_slots
		WHERE doctor_id = $1
		ORDER BY slot_date, created_at
	`, doctorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	slots := SlotMap{}
	for rows.Next() {
		var date, slotTime string
		if err := rows.Scan(&date, &slotTime); err != nil {
			return nil, err
		}
		slots[date] = append(slots[date], slotTime)
	}

	return slots, rows.Err()
}

// Appointments

func (r *PgRepository) CreateAppointment(ctx context.Context, a *Appointment) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO appointments (`+appointmentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, a.ID, a.UserID, a.DoctorID, a.SlotDate, a.SlotTime, a.UserData, a.DoctorData,
		a.Amount, a.CreatedAt, a.Cancelled, a.Confirmed, a.IsCompleted, a.Paid)
	if err != nil {
		return fmt.Errorf("insert appointment: %w", err)
	}

	return nil
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id string) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) ListAppointments(ctx context.Context, f AppointmentFilter) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE ($1 = '' OR doctor_id = $1)
		  AND ($2 = '' OR user_id = $2)
		ORDER BY created_at DESC
	`, f.DoctorID, f.UserID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	return result, rows.Err()
}

func (r *PgRepository) UpdateAppointment(ctx context.Context, id string, upd AppointmentUpdate) (*Appointment, error) {
	if upd.Empty() {
		return r.GetAppointmentByID(ctx, id)
	}

	args := []any{id}
	var sets []string
	set := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if upd.SlotDate.Set {
		set("slot_date", upd.SlotDate.Value)
	}
	if upd.SlotTime.Set {
		set("slot_time", upd.SlotTime.Value)
	}
	if upd.Amount.Set {
		set("amount", upd.Amount.Value)
	}
	if upd.Cancelled.Set {
		set("cancelled", upd.Cancelled.Value)
	}
	if upd.Confirmed.Set {
		set("confirmed", upd.Confirmed.Value)
	}
	if upd.IsCompleted.Set {
		set("is_completed", upd.IsCompleted.Value)
	}
	if upd.Paid.Set {
		set("paid", upd.Paid.Value)
	}

	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET `+strings.Join(sets, ", ")+`
		WHERE id = $1
		RETURNING `+appointmentColumns, args...)

	return scanAppointment(row)
}

func (r *PgRepository) DeleteAppointment(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM appointments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete appointment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (r *PgRepository) CountActiveForDoctor(ctx context.Context, doctorID string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*)
		FROM appointments
		WHERE doctor_id = $1
		  AND NOT cancelled
		  AND NOT is_completed
	`, doctorID).Scan(&n)
	return n, err
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
