package directory

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-appointments/internal/appointment"
	"github.com/hackgods/clinic-appointments/internal/auth"
)

const minPasswordLen = 8

var ErrValidation = errors.New("validation failed")

// ValidationError carries the message shown to the caller.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalid(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

type AdminCredentials struct {
	Email    string
	Password string
}

// Service manages doctors and patients and issues login tokens. Appointment
// side effects of deletes go through the lifecycle service.
type Service struct {
	repo   appointment.Repository
	appts  *appointment.Service
	hasher auth.Hasher
	tokens *auth.TokenIssuer
	admin  AdminCredentials
	log    zerolog.Logger
}

func NewService(
	repo appointment.Repository,
	appts *appointment.Service,
	hasher auth.Hasher,
	tokens *auth.TokenIssuer,
	admin AdminCredentials,
	logger zerolog.Logger,
) *Service {
	return &Service{
		repo:   repo,
		appts:  appts,
		hasher: hasher,
		tokens: tokens,
		admin:  admin,
		log:    logger.With().Str("component", "directory").Logger(),
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateEmail(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email[strings.LastIndex(email, "@")+1:], ".") {
		return invalid("Enter valid email")
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < minPasswordLen {
		return invalid("Password must have at least %d characters", minPasswordLen)
	}
	return nil
}

// Doctors

type NewDoctor struct {
	Name       string
	Email      string
	Password   string
	Image      string
	Speciality string
	Degree     string
	Experience string
	About      string
	Fees       appointment.Optional[float64]
	Address    appointment.Address
}

func (s *Service) AddDoctor(ctx context.Context, in NewDoctor) (*appointment.Doctor, error) {
	in.Email = normalizeEmail(in.Email)
	for _, v := range []string{in.Name, in.Email, in.Password, in.Speciality, in.Degree, in.Experience, in.About} {
		if strings.TrimSpace(v) == "" {
			return nil, invalid("Missing Details")
		}
	}
	if !in.Fees.Set {
		return nil, invalid("Missing Details")
	}
	if in.Fees.Value < 0 {
		return nil, invalid("Fees must be a non-negative number")
	}
	if err := validateEmail(in.Email); err != nil {
		return nil, err
	}
	if err := validatePassword(in.Password); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}

	d := &appointment.Doctor{
		ID:           uuid.NewString(),
		Name:         strings.TrimSpace(in.Name),
		Email:        in.Email,
		PasswordHash: hash,
		Image:        in.Image,
		Speciality:   in.Speciality,
		Degree:       in.Degree,
		Experience:   in.Experience,
		About:        in.About,
		Available:    true,
		Fees:         in.Fees.Value,
		Address:      in.Address,
		CreatedAt:    time.Now(),
		SlotsBooked:  appointment.SlotMap{},
	}
	if err := s.repo.CreateDoctor(ctx, d); err != nil {
		return nil, err
	}

	s.log.Info().Str("doctor_id", d.ID).Msg("doctor added")
	return d, nil
}

// DoctorUpdate overwrites only the supplied fields.
type DoctorUpdate struct {
	Name       appointment.Optional[string]              `json:"name"`
	Email      appointment.Optional[string]              `json:"email"`
	Password   appointment.Optional[string]              `json:"password"`
	Image      appointment.Optional[string]              `json:"-"`
	Speciality appointment.Optional[string]              `json:"speciality"`
	Degree     appointment.Optional[string]              `json:"degree"`
	Experience appointment.Optional[string]              `json:"experience"`
	About      appointment.Optional[string]              `json:"about"`
	Fees       appointment.Optional[float64]             `json:"fees"`
	Address    appointment.Optional[appointment.Address] `json:"address"`
}

func (s *Service) UpdateDoctor(ctx context.Context, id string, in DoctorUpdate) (*appointment.Doctor, error) {
	patch := appointment.DoctorPatch{
		Name:       in.Name,
		Image:      in.Image,
		Speciality: in.Speciality,
		Degree:     in.Degree,
		Experience: in.Experience,
		About:      in.About,
		Fees:       in.Fees,
		Address:    in.Address,
	}

	if in.Name.Set && strings.TrimSpace(in.Name.Value) == "" {
		return nil, invalid("Name cannot be empty")
	}
	if in.Email.Set {
		email := normalizeEmail(in.Email.Value)
		if err := validateEmail(email); err != nil {
			return nil, err
		}
		patch.Email = appointment.Some(email)
	}
	if in.Fees.Set && in.Fees.Value < 0 {
		return nil, invalid("Fees must be a non-negative number")
	}
	if in.Password.Set && in.Password.Value != "" {
		if err := validatePassword(in.Password.Value); err != nil {
			return nil, err
		}
		hash, err := s.hasher.Hash(in.Password.Value)
		if err != nil {
			return nil, err
		}
		patch.PasswordHash = appointment.Some(hash)
	}

	return s.repo.UpdateDoctor(ctx, id, patch)
}

// ListDoctors is the admin view; credentials never leave the store layer
// because PasswordHash is not serialized.
func (s *Service) ListDoctors(ctx context.Context) ([]appointment.Doctor, error) {
	doctors, err := s.repo.ListDoctors(ctx)
	if err != nil {
		return nil, fmt.Errorf("list doctors: %w", err)
	}
	if doctors == nil {
		doctors = []appointment.Doctor{}
	}
	return doctors, nil
}

// PublicDoctors is the patient-facing list: no email, ledger included.
func (s *Service) PublicDoctors(ctx context.Context) ([]appointment.Doctor, error) {
	doctors, err := s.ListDoctors(ctx)
	if err != nil {
		return nil, err
	}
	for i := range doctors {
		doctors[i] = doctors[i].Public()
	}
	return doctors, nil
}

func (s *Service) GetDoctor(ctx context.Context, id string) (*appointment.Doctor, error) {
	return s.repo.GetDoctorByID(ctx, id)
}

// ToggleAvailability flips whether the doctor accepts new bookings.
func (s *Service) ToggleAvailability(ctx context.Context, doctorID string) (*appointment.Doctor, error) {
	d, err := s.repo.GetDoctorByID(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	return s.repo.SetDoctorAvailability(ctx, doctorID, !d.Available)
}

// DeleteDoctor refuses while the doctor has active appointments. The doctor
// is closed to bookings before the check, so no slot can be reserved between
// the check and the delete; availability is restored if the check fails. The
// ledger is discarded with the record.
func (s *Service) DeleteDoctor(ctx context.Context, doctorID string) error {
	d, err := s.repo.GetDoctorByID(ctx, doctorID)
	if err != nil {
		return err
	}
	if d.Available {
		if _, err := s.repo.SetDoctorAvailability(ctx, doctorID, false); err != nil {
			return fmt.Errorf("close doctor to bookings: %w", err)
		}
	}

	if err := s.appts.GuardDoctorDelete(ctx, doctorID); err != nil {
		if d.Available {
			if _, rerr := s.repo.SetDoctorAvailability(ctx, doctorID, true); rerr != nil {
				s.log.Error().Err(rerr).Str("doctor_id", doctorID).Msg("restore availability after refused delete")
			}
		}
		return err
	}
	if err := s.repo.DeleteDoctor(ctx, doctorID); err != nil {
		return err
	}
	s.log.Info().Str("doctor_id", doctorID).Msg("doctor deleted")
	return nil
}

// Users

type NewUser struct {
	Name     string
	Email    string
	Password string
	Image    string
	Phone    string
	Address  appointment.Address
	Gender   string
	DOB      string
}

func (s *Service) CreateUser(ctx context.Context, in NewUser) (*appointment.User, error) {
	in.Email = normalizeEmail(in.Email)
	if strings.TrimSpace(in.Name) == "" || in.Email == "" || in.Password == "" {
		return nil, invalid("Missing Details")
	}
	if err := validateEmail(in.Email); err != nil {
		return nil, err
	}
	if err := validatePassword(in.Password); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}

	u := &appointment.User{
		ID:           uuid.NewString(),
		Name:         strings.TrimSpace(in.Name),
		Email:        in.Email,
		PasswordHash: hash,
		Image:        in.Image,
		Phone:        in.Phone,
		Address:      in.Address,
		Gender:       in.Gender,
		DOB:          in.DOB,
		CreatedAt:    time.Now(),
	}
	if err := s.repo.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Register creates a patient account and logs it in.
func (s *Service) Register(ctx context.Context, name, email, password string) (string, error) {
	u, err := s.CreateUser(ctx, NewUser{Name: name, Email: email, Password: password})
	if err != nil {
		return "", err
	}
	return s.tokens.Issue(appointment.UserActor(u.ID))
}

type UserUpdate struct {
	Name     appointment.Optional[string]              `json:"name"`
	Email    appointment.Optional[string]              `json:"email"`
	Password appointment.Optional[string]              `json:"password"`
	Image    appointment.Optional[string]              `json:"-"`
	Phone    appointment.Optional[string]              `json:"phone"`
	Address  appointment.Optional[appointment.Address] `json:"address"`
	Gender   appointment.Optional[string]              `json:"gender"`
	DOB      appointment.Optional[string]              `json:"dob"`
}

func (s *Service) UpdateUser(ctx context.Context, id string, in UserUpdate) (*appointment.User, error) {
	patch := appointment.UserPatch{
		Name:    in.Name,
		Image:   in.Image,
		Phone:   in.Phone,
		Address: in.Address,
		Gender:  in.Gender,
		DOB:     in.DOB,
	}

	if in.Name.Set && strings.TrimSpace(in.Name.Value) == "" {
		return nil, invalid("Name cannot be empty")
	}
	if in.Email.Set {
		email := normalizeEmail(in.Email.Value)
		if err := validateEmail(email); err != nil {
			return nil, err
		}
		patch.Email = appointment.Some(email)
	}
	if in.Password.Set && in.Password.Value != "" {
		if err := validatePassword(in.Password.Value); err != nil {
			return nil, err
		}
		hash, err := s.hasher.Hash(in.Password.Value)
		if err != nil {
			return nil, err
		}
		patch.PasswordHash = appointment.Some(hash)
	}

	return s.repo.UpdateUser(ctx, id, patch)
}

// UpdateProfile is the patient's own edit; email and password are not part of it.
func (s *Service) UpdateProfile(ctx context.Context, id string, in UserUpdate) (*appointment.User, error) {
	in.Email = appointment.Optional[string]{}
	in.Password = appointment.Optional[string]{}
	return s.UpdateUser(ctx, id, in)
}

func (s *Service) GetUser(ctx context.Context, id string) (*appointment.User, error) {
	return s.repo.GetUserByID(ctx, id)
}

func (s *Service) ListUsers(ctx context.Context) ([]appointment.User, error) {
	users, err := s.repo.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	if users == nil {
		users = []appointment.User{}
	}
	return users, nil
}

// DeleteUser removes the patient's appointments first, releasing their
// slots. The user record is kept if any appointment could not be removed, so
// the delete can be retried. A second pass after the record is gone sweeps
// bookings that were stored while the first pass ran; bookings that start
// later fail with ErrUserNotFound.
func (s *Service) DeleteUser(ctx context.Context, id string) (appointment.CascadeReport, error) {
	if _, err := s.repo.GetUserByID(ctx, id); err != nil {
		return appointment.CascadeReport{}, err
	}

	report, err := s.appts.CascadeDeleteForUser(ctx, id)
	if err != nil {
		return report, fmt.Errorf("delete user appointments: %w", err)
	}

	if err := s.repo.DeleteUser(ctx, id); err != nil {
		return report, err
	}

	sweep, err := s.appts.CascadeDeleteForUser(ctx, id)
	report.Deleted += sweep.Deleted
	report.Released += sweep.Released
	report.Failed = append(report.Failed, sweep.Failed...)
	if err != nil {
		s.log.Error().Err(err).Str("user_id", id).Msg("sweep appointments of deleted user")
		return report, fmt.Errorf("sweep user appointments: %w", err)
	}

	s.log.Info().
		Str("user_id", id).
		Int("appointments_deleted", report.Deleted).
		Int("slots_released", report.Released).
		Msg("user deleted")
	return report, nil
}

// Logins

func (s *Service) LoginUser(ctx context.Context, email, password string) (string, error) {
	u, err := s.repo.GetUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, appointment.ErrUserNotFound) {
			return "", auth.ErrInvalidCredentials
		}
		return "", err
	}
	if err := s.hasher.Verify(u.PasswordHash, password); err != nil {
		return "", err
	}
	return s.tokens.Issue(appointment.UserActor(u.ID))
}

func (s *Service) LoginDoctor(ctx context.Context, email, password string) (string, error) {
	if email == "" || password == "" {
		return "", invalid("Missing email or password")
	}
	d, err := s.repo.GetDoctorByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, appointment.ErrDoctorNotFound) {
			return "", auth.ErrInvalidCredentials
		}
		return "", err
	}
	if err := s.hasher.Verify(d.PasswordHash, password); err != nil {
		return "", err
	}
	return s.tokens.Issue(appointment.DoctorActor(d.ID))
}

// LoginAdmin checks the configured admin credentials. An unset admin email
// disables admin login.
func (s *Service) LoginAdmin(email, password string) (string, error) {
	if s.admin.Email == "" || s.admin.Password == "" {
		return "", auth.ErrInvalidCredentials
	}
	emailOK := subtle.ConstantTimeCompare([]byte(normalizeEmail(email)), []byte(normalizeEmail(s.admin.Email))) == 1
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(s.admin.Password)) == 1
	if !emailOK || !passOK {
		return "", auth.ErrInvalidCredentials
	}
	return s.tokens.Issue(appointment.AdminActor())
}
