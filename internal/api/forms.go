package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/hackgods/clinic-appointments/internal/appointment"
	"github.com/hackgods/clinic-appointments/internal/directory"
	"github.com/hackgods/clinic-appointments/internal/media"
)

const (
	maxJSONBody      = 1 << 20
	maxMultipartBody = media.MaxUploadBytes + 1<<20
)

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty body", errBadRequest)
		}
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

func isMultipart(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mt == "multipart/form-data"
}

func parseMultipart(w http.ResponseWriter, r *http.Request) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxMultipartBody)
	if err := r.ParseMultipartForm(maxMultipartBody); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

// formString returns the field only when the client sent it.
func formString(r *http.Request, key string) appointment.Optional[string] {
	if r.MultipartForm == nil {
		return appointment.Optional[string]{}
	}
	vals, ok := r.MultipartForm.Value[key]
	if !ok || len(vals) == 0 {
		return appointment.Optional[string]{}
	}
	return appointment.Some(vals[0])
}

func formFloat(r *http.Request, key string) (appointment.Optional[float64], error) {
	raw := formString(r, key)
	if !raw.Set || strings.TrimSpace(raw.Value) == "" {
		return appointment.Optional[float64]{}, nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(raw.Value), 64)
	if err != nil {
		return appointment.Optional[float64]{}, &directory.ValidationError{Message: key + " must be a number"}
	}
	return appointment.Some(f), nil
}

// formAddress accepts the address either as a JSON object string or as
// line1/line2 fields.
func formAddress(r *http.Request) (appointment.Optional[appointment.Address], error) {
	if raw := formString(r, "address"); raw.Set && strings.TrimSpace(raw.Value) != "" {
		var addr appointment.Address
		if err := json.Unmarshal([]byte(raw.Value), &addr); err != nil {
			return appointment.Optional[appointment.Address]{}, &directory.ValidationError{Message: "Invalid address format"}
		}
		return appointment.Some(addr), nil
	}
	line1, line2 := formString(r, "line1"), formString(r, "line2")
	if line1.Set || line2.Set {
		return appointment.Some(appointment.Address{Line1: line1.Value, Line2: line2.Value}), nil
	}
	return appointment.Optional[appointment.Address]{}, nil
}

// saveImage stores the "image" file part if present.
func (s *server) saveImage(r *http.Request, kind string) (appointment.Optional[string], error) {
	if r.MultipartForm == nil || s.media == nil {
		return appointment.Optional[string]{}, nil
	}
	file, _, err := r.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		return appointment.Optional[string]{}, nil
	}
	if err != nil {
		return appointment.Optional[string]{}, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	defer file.Close()

	url, err := s.media.Save(r.Context(), kind, file)
	if err != nil {
		return appointment.Optional[string]{}, err
	}
	return appointment.Some(url), nil
}

// readDoctorUpdate reads a doctor patch from JSON or multipart.
func (s *server) readDoctorUpdate(w http.ResponseWriter, r *http.Request) (directory.DoctorUpdate, error) {
	var in directory.DoctorUpdate
	if !isMultipart(r) {
		err := decodeJSON(w, r, &in)
		return in, err
	}
	if err := parseMultipart(w, r); err != nil {
		return in, err
	}

	in.Name = formString(r, "name")
	in.Email = formString(r, "email")
	in.Password = formString(r, "password")
	in.Speciality = formString(r, "speciality")
	in.Degree = formString(r, "degree")
	in.Experience = formString(r, "experience")
	in.About = formString(r, "about")

	var err error
	if in.Fees, err = formFloat(r, "fees"); err != nil {
		return in, err
	}
	if in.Address, err = formAddress(r); err != nil {
		return in, err
	}
	if in.Image, err = s.saveImage(r, "doctor"); err != nil {
		return in, err
	}
	return in, nil
}

// readUserUpdate reads a patient patch from JSON or multipart.
func (s *server) readUserUpdate(w http.ResponseWriter, r *http.Request) (directory.UserUpdate, error) {
	var in directory.UserUpdate
	if !isMultipart(r) {
		err := decodeJSON(w, r, &in)
		return in, err
	}
	if err := parseMultipart(w, r); err != nil {
		return in, err
	}

	in.Name = formString(r, "name")
	in.Email = formString(r, "email")
	in.Password = formString(r, "password")
	in.Phone = formString(r, "phone")
	in.Gender = formString(r, "gender")
	in.DOB = formString(r, "dob")

	var err error
	if in.Address, err = formAddress(r); err != nil {
		return in, err
	}
	if in.Image, err = s.saveImage(r, "user"); err != nil {
		return in, err
	}
	return in, nil
}

func (s *server) readNewDoctor(w http.ResponseWriter, r *http.Request) (directory.NewDoctor, error) {
	if !isMultipart(r) {
		var req NewDoctorRequest
		if err := decodeJSON(w, r, &req); err != nil {
			return directory.NewDoctor{}, err
		}
		return directory.NewDoctor{
			Name:       req.Name,
			Email:      req.Email,
			Password:   req.Password,
			Speciality: req.Speciality,
			Degree:     req.Degree,
			Experience: req.Experience,
			About:      req.About,
			Fees:       req.Fees,
			Address:    req.Address,
		}, nil
	}

	if err := parseMultipart(w, r); err != nil {
		return directory.NewDoctor{}, err
	}
	fees, err := formFloat(r, "fees")
	if err != nil {
		return directory.NewDoctor{}, err
	}
	addr, err := formAddress(r)
	if err != nil {
		return directory.NewDoctor{}, err
	}
	image, err := s.saveImage(r, "doctor")
	if err != nil {
		return directory.NewDoctor{}, err
	}

	return directory.NewDoctor{
		Name:       r.FormValue("name"),
		Email:      r.FormValue("email"),
		Password:   r.FormValue("password"),
		Image:      image.Value,
		Speciality: r.FormValue("speciality"),
		Degree:     r.FormValue("degree"),
		Experience: r.FormValue("experience"),
		About:      r.FormValue("about"),
		Fees:       fees,
		Address:    addr.Value,
	}, nil
}

func (s *server) readNewUser(w http.ResponseWriter, r *http.Request) (directory.NewUser, error) {
	if !isMultipart(r) {
		var req NewUserRequest
		if err := decodeJSON(w, r, &req); err != nil {
			return directory.NewUser{}, err
		}
		return directory.NewUser{
			Name:     req.Name,
			Email:    req.Email,
			Password: req.Password,
			Phone:    req.Phone,
			Address:  req.Address,
			Gender:   req.Gender,
			DOB:      req.DOB,
		}, nil
	}

	if err := parseMultipart(w, r); err != nil {
		return directory.NewUser{}, err
	}
	addr, err := formAddress(r)
	if err != nil {
		return directory.NewUser{}, err
	}
	image, err := s.saveImage(r, "user")
	if err != nil {
		return directory.NewUser{}, err
	}

	return directory.NewUser{
		Name:     r.FormValue("name"),
		Email:    r.FormValue("email"),
		Password: r.FormValue("password"),
		Image:    image.Value,
		Phone:    r.FormValue("phone"),
		Address:  addr.Value,
		Gender:   r.FormValue("gender"),
		DOB:      r.FormValue("dob"),
	}, nil
}
