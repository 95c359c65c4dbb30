// Package document builds printable invoices, receipts and dispensing
// labels from the dispensary's read models.
package document

import (
	"html/template"
	"io"
	"time"

	"github.com/jwalitptl/clinic-desk/internal/model"
)

type InvoiceLine struct {
	Name     string
	Type     string
	Quantity int
	Rate     string
	Total    string
}

type PaymentLine struct {
	Method    string
	Reference string
	Amount    string
	PaidAt    string
}

type Invoice struct {
	Title       string
	ClinicName  string
	IssuedAt    string
	PatientName string
	PatientCode string
	QueueNumber string
	Tier        string
	TierWarning string
	Lines       []InvoiceLine
	Payments    []PaymentLine
	Total       string
	Paid        string
	Due         string
}

type Label struct {
	ClinicName   string
	PatientName  string
	PatientCode  string
	ItemName     string
	Quantity     int
	Dosage       string
	Frequency    string
	Duration     string
	Instructions string
	Date         string
}

const timeLayout = "02 Jan 2006 15:04"

// NewInvoice lays out inv for printing. A receipt is the same document
// with a different title.
func NewInvoice(inv *model.Invoice, clinicName string, receipt bool, at time.Time) *Invoice {
	doc := &Invoice{
		Title:      "Invoice",
		ClinicName: clinicName,
		IssuedAt:   at.Format(timeLayout),
		Total:      inv.TotalAmount.String(),
		Paid:       inv.TotalPaid.String(),
		Due:        inv.AmountDue.String(),
	}
	if receipt {
		doc.Title = "Receipt"
	}
	if inv.Patient != nil {
		doc.PatientName, doc.PatientCode = inv.Patient.Name, inv.Patient.PatientCode
	}
	if inv.QueueEntry != nil {
		doc.QueueNumber = inv.QueueEntry.QueueNumber
	}
	if inv.Tier != nil {
		doc.Tier = inv.Tier.Name
	}
	if inv.TierWarning == model.TierWarningNoTierAssigned {
		doc.TierWarning = "No price tier assigned; base prices applied."
	}

	for _, item := range inv.Items {
		doc.Lines = append(doc.Lines, InvoiceLine{
			Name:     item.Name,
			Type:     string(item.ItemType),
			Quantity: item.Quantity,
			Rate:     item.Rate.String(),
			Total:    item.TotalAmount.String(),
		})
	}
	for _, p := range inv.Payments {
		line := PaymentLine{
			Method: string(p.Method),
			Amount: p.Amount.String(),
			PaidAt: p.PaidAt.In(at.Location()).Format(timeLayout),
		}
		if p.Reference != nil {
			line.Reference = *p.Reference
		}
		doc.Payments = append(doc.Payments, line)
	}
	return doc
}

func NewLabel(item *model.TreatmentItem, patient *model.Patient, clinicName string, at time.Time) *Label {
	return &Label{
		ClinicName:   clinicName,
		PatientName:  patient.Name,
		PatientCode:  patient.PatientCode,
		ItemName:     item.Name,
		Quantity:     item.Quantity,
		Dosage:       deref(item.Dosage),
		Frequency:    deref(item.Frequency),
		Duration:     deref(item.Duration),
		Instructions: deref(item.Instructions),
		Date:         at.Format("02 Jan 2006"),
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

var (
	invoiceTmpl = template.Must(template.New("invoice").Parse(invoiceHTML))
	labelTmpl   = template.Must(template.New("label").Parse(labelHTML))
)

func RenderInvoice(w io.Writer, doc *Invoice) error {
	return invoiceTmpl.Execute(w, doc)
}

func RenderLabel(w io.Writer, doc *Label) error {
	return labelTmpl.Execute(w, doc)
}
