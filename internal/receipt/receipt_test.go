package receipt

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-appointments/internal/appointment"
)

func sample() *appointment.Appointment {
	return &appointment.Appointment{
		ID:         "appt-1",
		UserID:     "alice",
		DoctorID:   "doc",
		SlotDate:   "2025-01-10",
		SlotTime:   "10:00",
		Amount:     500,
		CreatedAt:  time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC),
		UserData:   appointment.UserSnapshot{Name: "Alice"},
		DoctorData: appointment.DoctorSnapshot{Name: "Dr. Somchai", Speciality: "Dermatologist"},
	}
}

func TestRenderProducesPDF(t *testing.T) {
	g := NewGenerator([]byte("receipt-secret"), "Prescripto Clinic")

	out, err := g.Render(sample(), "thb")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestReferenceVerify(t *testing.T) {
	g := NewGenerator([]byte("receipt-secret"), "Prescripto Clinic")
	ref := g.Reference(sample())

	assert.True(t, strings.HasPrefix(ref, "appt-1|alice|2025-01-10|10:00|"))
	assert.True(t, g.Verify(ref))

	tampered := strings.Replace(ref, "10:00", "11:00", 1)
	assert.False(t, g.Verify(tampered))
	assert.False(t, g.Verify("no-separator"))

	other := NewGenerator([]byte("another-secret"), "Prescripto Clinic")
	assert.False(t, other.Verify(ref))
}
