package export

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// Receipt holds the fields rendered on a payment receipt.
type Receipt struct {
	PaymentID    string
	CourseTitle  string
	CustomerName string
	Email        string
	Amount       int64
	Currency     string
	OrderCode    int64
	PaidAt       time.Time
}

// ReceiptExporter renders payment receipts as A4 PDFs.
type ReceiptExporter struct{}

// NewReceiptExporter constructs a receipt exporter.
func NewReceiptExporter() *ReceiptExporter {
	return &ReceiptExporter{}
}

// Render produces the PDF bytes for a completed payment.
func (e *ReceiptExporter) Render(r Receipt) ([]byte, error) {
	if r.PaymentID == "" {
		return nil, fmt.Errorf("receipt requires a payment id")
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 20, 15)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(0, 10, strings.ToUpper("payment receipt"), "", 1, "C", false, 0, "")
	pdf.Ln(6)

	rows := [][2]string{
		{"Payment ID", r.PaymentID},
		{"Course", r.CourseTitle},
		{"Customer", r.CustomerName},
		{"Email", r.Email},
		{"Amount", fmt.Sprintf("%d %s", r.Amount, r.Currency)},
		{"Order code", fmt.Sprintf("%d", r.OrderCode)},
		{"Paid at", r.PaidAt.UTC().Format(time.RFC3339)},
	}

	for _, row := range rows {
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(45, 8, row[0], "1", 0, "", false, 0, "")
		pdf.SetFont("Arial", "", 10)
		pdf.CellFormat(135, 8, row[1], "1", 1, "", false, 0, "")
	}

	pdf.Ln(8)
	pdf.SetFont("Arial", "I", 9)
	pdf.CellFormat(0, 6, "Generated by EduShare course platform", "", 1, "C", false, 0, "")

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render receipt pdf: %w", err)
	}
	return buf.Bytes(), nil
}
