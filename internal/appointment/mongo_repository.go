package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoRepository stores doctors with their ledger embedded as
// slots_booked: {date: [time, ...]}, one document per doctor.
type MongoRepository struct {
	db           *mongo.Database
	doctors      *mongo.Collection
	users        *mongo.Collection
	appointments *mongo.Collection
	events       *mongo.Collection
}

func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{
		db:           db,
		doctors:      db.Collection("doctors"),
		users:        db.Collection("users"),
		appointments: db.Collection("appointments"),
		events:       db.Collection("event_logs"),
	}
}

func (r *MongoRepository) Ping(ctx context.Context) error {
	return r.db.Client().Ping(ctx, nil)
}

func slotPath(date string) string {
	return "slots_booked." + date
}

// checkDateField rejects dates that cannot be a field name under
// slots_booked. Times are array values and need no check.
func checkDateField(date string) error {
	if strings.Contains(date, ".") || strings.HasPrefix(date, "$") || strings.ContainsRune(date, 0) {
		return fmt.Errorf("%w: date %q cannot be stored as a document key", ErrInvalidSlotKey, date)
	}
	return nil
}

func afterUpdate() *options.FindOneAndUpdateOptions {
	return options.FindOneAndUpdate().SetReturnDocument(options.After)
}

func notFound(err, sentinel error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return sentinel
	}
	return err
}

// Doctors

func (r *MongoRepository) CreateDoctor(ctx context.Context, d *Doctor) error {
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}
	d.Email = strings.ToLower(d.Email)
	if d.SlotsBooked == nil {
		d.SlotsBooked = SlotMap{}
	}

	if _, err := r.doctors.InsertOne(ctx, d); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrEmailInUse
		}
		return fmt.Errorf("insert doctor: %w", err)
	}
	return nil
}

func (r *MongoRepository) findDoctor(ctx context.Context, filter bson.M) (*Doctor, error) {
	var d Doctor
	if err := r.doctors.FindOne(ctx, filter).Decode(&d); err != nil {
		return nil, notFound(err, ErrDoctorNotFound)
	}
	if d.SlotsBooked == nil {
		d.SlotsBooked = SlotMap{}
	}
	return &d, nil
}

func (r *MongoRepository) GetDoctorByID(ctx context.Context, id string) (*Doctor, error) {
	return r.findDoctor(ctx, bson.M{"_id": id})
}

func (r *MongoRepository) GetDoctorByEmail(ctx context.Context, email string) (*Doctor, error) {
	return r.findDoctor(ctx, bson.M{"email": strings.ToLower(email)})
}

func (r *MongoRepository) ListDoctors(ctx context.Context) ([]Doctor, error) {
	cur, err := r.doctors.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "date", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("find doctors: %w", err)
	}

	var result []Doctor
	if err := cur.All(ctx, &result); err != nil {
		return nil, fmt.Errorf("decode doctors: %w", err)
	}
	for i := range result {
		if result[i].SlotsBooked == nil {
			result[i].SlotsBooked = SlotMap{}
		}
	}
	return result, nil
}

func (r *MongoRepository) UpdateDoctor(ctx context.Context, id string, patch DoctorPatch) (*Doctor, error) {
	set := bson.M{}
	if patch.Name.Set {
		set["name"] = patch.Name.Value
	}
	if patch.Email.Set {
		set["email"] = strings.ToLower(patch.Email.Value)
	}
	if patch.PasswordHash.Set {
		set["password"] = patch.PasswordHash.Value
	}
	if patch.Image.Set {
		set["image"] = patch.Image.Value
	}
	if patch.Speciality.Set {
		set["speciality"] = patch.Speciality.Value
	}
	if patch.Degree.Set {
		set["degree"] = patch.Degree.Value
	}
	if patch.Experience.Set {
		set["experience"] = patch.Experience.Value
	}
	if patch.About.Set {
		set["about"] = patch.About.Value
	}
	if patch.Fees.Set {
		set["fees"] = patch.Fees.Value
	}
	if patch.Address.Set {
		set["address"] = patch.Address.Value
	}
	if len(set) == 0 {
		return r.GetDoctorByID(ctx, id)
	}

	var d Doctor
	err := r.doctors.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set}, afterUpdate()).Decode(&d)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrEmailInUse
		}
		return nil, notFound(err, ErrDoctorNotFound)
	}
	return &d, nil
}

func (r *MongoRepository) SetDoctorAvailability(ctx context.Context, id string, available bool) (*Doctor, error) {
	var d Doctor
	err := r.doctors.FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"available": available}},
		afterUpdate(),
	).Decode(&d)
	if err != nil {
		return nil, notFound(err, ErrDoctorNotFound)
	}
	return &d, nil
}

func (r *MongoRepository) DeleteDoctor(ctx context.Context, id string) error {
	res, err := r.doctors.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete doctor: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrDoctorNotFound
	}
	return nil
}

// Users

func (r *MongoRepository) CreateUser(ctx context.Context, u *User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	u.Email = strings.ToLower(u.Email)

	if _, err := r.users.InsertOne(ctx, u); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrEmailInUse
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *MongoRepository) findUser(ctx context.Context, filter bson.M) (*User, error) {
	var u User
	if err := r.users.FindOne(ctx, filter).Decode(&u); err != nil {
		return nil, notFound(err, ErrUserNotFound)
	}
	return &u, nil
}

func (r *MongoRepository) GetUserByID(ctx context.Context, id string) (*User, error) {
	return r.findUser(ctx, bson.M{"_id": id})
}

func (r *MongoRepository) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	return r.findUser(ctx, bson.M{"email": strings.ToLower(email)})
}

func (r *MongoRepository) ListUsers(ctx context.Context) ([]User, error) {
	cur, err := r.users.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("find users: %w", err)
	}

	var result []User
	if err := cur.All(ctx, &result); err != nil {
		return nil, fmt.Errorf("decode users: %w", err)
	}
	return result, nil
}

func (r *MongoRepository) UpdateUser(ctx context.Context, id string, patch UserPatch) (*User, error) {
	set := bson.M{}
	if patch.Name.Set {
		set["name"] = patch.Name.Value
	}
	if patch.Email.Set {
		set["email"] = strings.ToLower(patch.Email.Value)
	}
	if patch.PasswordHash.Set {
		set["password"] = patch.PasswordHash.Value
	}
	if patch.Image.Set {
		set["image"] = patch.Image.Value
	}
	if patch.Phone.Set {
		set["phone"] = patch.Phone.Value
	}
	if patch.Address.Set {
		set["address"] = patch.Address.Value
	}
	if patch.Gender.Set {
		set["gender"] = patch.Gender.Value
	}
	if patch.DOB.Set {
		set["dob"] = patch.DOB.Value
	}
	if len(set) == 0 {
		return r.GetUserByID(ctx, id)
	}

	var u User
	err := r.users.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set}, afterUpdate()).Decode(&u)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrEmailInUse
		}
		return nil, notFound(err, ErrUserNotFound)
	}
	return &u, nil
}

func (r *MongoRepository) DeleteUser(ctx context.Context, id string) error {
	res, err := r.users.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrUserNotFound
	}
	return nil
}

// Slots

// ReserveSlot pushes the time onto the doctor's date array only if the doctor
// is available and the time is absent. A single-document update is atomic, so
// concurrent reserves of the same pair cannot both match.
func (r *MongoRepository) ReserveSlot(ctx context.Context, doctorID, date, slotTime string) error {
	if err := ValidateSlotKey(date, slotTime); err != nil {
		return err
	}
	if err := checkDateField(date); err != nil {
		return err
	}

	res, err := r.doctors.UpdateOne(ctx,
		bson.M{
			"_id":          doctorID,
			"available":    true,
			slotPath(date): bson.M{"$ne": slotTime},
		},
		bson.M{"$push": bson.M{slotPath(date): slotTime}},
	)
	if err != nil {
		return fmt.Errorf("push doctor slot: %w", err)
	}
	if res.MatchedCount == 1 {
		return nil
	}

	var state struct {
		Available bool `bson:"available"`
	}
	err = r.doctors.FindOne(ctx,
		bson.M{"_id": doctorID},
		options.FindOne().SetProjection(bson.M{"available": 1}),
	).Decode(&state)
	if err != nil {
		return notFound(err, ErrDoctorNotFound)
	}
	if !state.Available {
		return ErrDoctorUnavailable
	}
	return ErrSlotConflict
}

func (r *MongoRepository) ReleaseSlot(ctx context.Context, doctorID, date, slotTime string) error {
	// Such pairs can never have been reserved here.
	if ValidateSlotKey(date, slotTime) != nil || checkDateField(date) != nil {
		return nil
	}

	_, err := r.doctors.UpdateOne(ctx,
		bson.M{"_id": doctorID},
		bson.M{"$pull": bson.M{slotPath(date): slotTime}},
	)
	if err != nil {
		return fmt.Errorf("pull doctor slot: %w", err)
	}

	// Drop the date key once its last time is gone.
	_, err = r.doctors.UpdateOne(ctx,
		bson.M{"_id": doctorID, slotPath(date): bson.M{"$size": 0}},
		bson.M{"$unset": bson.M{slotPath(date): ""}},
	)
	if err != nil {
		return fmt.Errorf("unset empty slot date: %w", err)
	}
	return nil
}

func (r *MongoRepository) IsSlotBooked(ctx context.Context, doctorID, date, slotTime string) (bool, error) {
	slots, err := r.DoctorSlots(ctx, doctorID)
	if err != nil {
		return false, err
	}
	return slots.Has(date, slotTime), nil
}

func (r *MongoRepository) DoctorSlots(ctx context.Context, doctorID string) (SlotMap, error) {
	var doc struct {
		SlotsBooked SlotMap `bson:"slots_booked"`
	}
	err := r.doctors.FindOne(ctx,
		bson.M{"_id": doctorID},
		options.FindOne().SetProjection(bson.M{"slots_booked": 1}),
	).Decode(&doc)
	if err != nil {
		return nil, notFound(err, ErrDoctorNotFound)
	}
	if doc.SlotsBooked == nil {
		doc.SlotsBooked = SlotMap{}
	}
	return doc.SlotsBooked, nil
}

// Appointments

func (r *MongoRepository) CreateAppointment(ctx context.Context, a *Appointment) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	if _, err := r.appointments.InsertOne(ctx, a); err != nil {
		return fmt.Errorf("insert appointment: %w", err)
	}
	return nil
}

func (r *MongoRepository) GetAppointmentByID(ctx context.Context, id string) (*Appointment, error) {
	var a Appointment
	if err := r.appointments.FindOne(ctx, bson.M{"_id": id}).Decode(&a); err != nil {
		return nil, notFound(err, ErrAppointmentNotFound)
	}
	return &a, nil
}

func (r *MongoRepository) ListAppointments(ctx context.Context, f AppointmentFilter) ([]Appointment, error) {
	filter := bson.M{}
	if f.DoctorID != "" {
		filter["docId"] = f.DoctorID
	}
	if f.UserID != "" {
		filter["userId"] = f.UserID
	}

	cur, err := r.appointments.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "date", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("find appointments: %w", err)
	}

	var result []Appointment
	if err := cur.All(ctx, &result); err != nil {
		return nil, fmt.Errorf("decode appointments: %w", err)
	}
	return result, nil
}

func (r *MongoRepository) UpdateAppointment(ctx context.Context, id string, upd AppointmentUpdate) (*Appointment, error) {
	if upd.Empty() {
		return r.GetAppointmentByID(ctx, id)
	}

	set := bson.M{}
	if upd.SlotDate.Set {
		set["slotDate"] = upd.SlotDate.Value
	}
	if upd.SlotTime.Set {
		set["slotTime"] = upd.SlotTime.Value
	}
	if upd.Amount.Set {
		set["amount"] = upd.Amount.Value
	}
	if upd.Cancelled.Set {
		set["cancelled"] = upd.Cancelled.Value
	}
	if upd.Confirmed.Set {
		set["confirmed"] = upd.Confirmed.Value
	}
	if upd.IsCompleted.Set {
		set["isCompleted"] = upd.IsCompleted.Value
	}
	if upd.Paid.Set {
		set["paid"] = upd.Paid.Value
	}

	var a Appointment
	err := r.appointments.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set}, afterUpdate()).Decode(&a)
	if err != nil {
		return nil, notFound(err, ErrAppointmentNotFound)
	}
	return &a, nil
}

func (r *MongoRepository) DeleteAppointment(ctx context.Context, id string) error {
	res, err := r.appointments.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete appointment: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (r *MongoRepository) CountActiveForDoctor(ctx context.Context, doctorID string) (int, error) {
	n, err := r.appointments.CountDocuments(ctx, bson.M{
		"docId":       doctorID,
		"cancelled":   false,
		"isCompleted": false,
	})
	return int(n), err
}

func (r *MongoRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}

	doc := bson.M{
		"event_type":     ev.EventType,
		"appointment_id": ev.AppointmentID,
		"created_at":     ev.CreatedAt,
	}
	if len(ev.Payload) > 0 {
		var payload bson.M
		if err := bson.UnmarshalExtJSON(ev.Payload, false, &payload); err == nil {
			doc["payload"] = payload
		}
	}

	if _, err := r.events.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}
	return nil
}
