package receipt

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/phpdave11/gofpdf"
	"github.com/skip2/go-qrcode"

	"github.com/hackgods/clinic-appointments/internal/appointment"
)

// Generator renders appointment receipts. The QR code carries a signed
// reference that front-desk staff can check with Verify.
type Generator struct {
	secret []byte
	clinic string
}

func NewGenerator(secret []byte, clinic string) *Generator {
	return &Generator{secret: secret, clinic: clinic}
}

// Reference returns "appointmentID|userID|slotDate|slotTime|signature".
func (g *Generator) Reference(a *appointment.Appointment) string {
	data := strings.Join([]string{a.ID, a.UserID, a.SlotDate, a.SlotTime}, "|")
	return data + "|" + g.sign(data)
}

// Verify checks a reference produced by Reference.
func (g *Generator) Verify(ref string) bool {
	i := strings.LastIndex(ref, "|")
	if i < 0 {
		return false
	}
	want := g.sign(ref[:i])
	return hmac.Equal([]byte(want), []byte(ref[i+1:]))
}

func (g *Generator) sign(data string) string {
	h := hmac.New(sha256.New, g.secret)
	h.Write([]byte(data))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}

// Render returns the receipt as a PDF document.
func (g *Generator) Render(a *appointment.Appointment, currency string) ([]byte, error) {
	qrPNG, err := qrcode.Encode(g.Reference(a), qrcode.Medium, 256)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Appointment receipt", false)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 18)
	pdf.Cell(0, 10, g.clinic)
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 12)
	pdf.Cell(0, 8, "Appointment receipt")
	pdf.Ln(14)

	rows := [][2]string{
		{"Reference", a.ID},
		{"Patient", a.UserData.Name},
		{"Doctor", a.DoctorData.Name},
		{"Speciality", a.DoctorData.Speciality},
		{"Date", a.SlotDate},
		{"Time", a.SlotTime},
		{"Amount", fmt.Sprintf("%.2f %s", a.Amount, strings.ToUpper(currency))},
		{"Status", string(a.State())},
		{"Paid", yesNo(a.Paid)},
		{"Booked at", a.CreatedAt.UTC().Format(time.RFC1123)},
	}
	for _, row := range rows {
		pdf.SetFont("Arial", "B", 11)
		pdf.CellFormat(40, 8, row[0], "", 0, "L", false, 0, "")
		pdf.SetFont("Arial", "", 11)
		pdf.CellFormat(0, 8, row[1], "", 1, "L", false, 0, "")
	}

	opts := gofpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader("qr", opts, bytes.NewReader(qrPNG))
	pdf.ImageOptions("qr", 150, 30, 45, 45, false, opts, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
