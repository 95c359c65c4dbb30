package model

import (
	"time"

	"github.com/google/uuid"
)

type PaymentMethod string

const (
	PaymentMethodCash         PaymentMethod = "cash"
	PaymentMethodCard         PaymentMethod = "card"
	PaymentMethodEWallet      PaymentMethod = "ewallet"
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
	PaymentMethodInsurance    PaymentMethod = "insurance"
	PaymentMethodPanel        PaymentMethod = "panel"
)

var validPaymentMethods = map[PaymentMethod]bool{
	PaymentMethodCash:         true,
	PaymentMethodCard:         true,
	PaymentMethodEWallet:      true,
	PaymentMethodBankTransfer: true,
	PaymentMethodInsurance:    true,
	PaymentMethodPanel:        true,
}

func (m PaymentMethod) Valid() bool {
	return validPaymentMethods[m]
}

// Payment is one amount received against a session's invoice.
type Payment struct {
	ID         uuid.UUID     `db:"id" json:"id"`
	SessionID  uuid.UUID     `db:"session_id" json:"session_id"`
	Amount     Money         `db:"amount" json:"amount"`
	Method     PaymentMethod `db:"method" json:"method"`
	Reference  *string       `db:"reference" json:"reference,omitempty"`
	ReceivedBy *uuid.UUID    `db:"received_by" json:"received_by,omitempty"`
	PaidAt     time.Time     `db:"paid_at" json:"paid_at"`
}

type PaymentRequest struct {
	Amount    Money         `json:"amount"`
	Method    PaymentMethod `json:"method" binding:"required,payment_method"`
	Reference *string       `json:"reference" binding:"omitempty,max=100"`
}

// Invoice is a read model; every total is derived from items and payments
// on each read.
type Invoice struct {
	SessionID   uuid.UUID        `json:"session_id"`
	Patient     *Patient         `json:"patient,omitempty"`
	QueueEntry  *QueueEntry      `json:"queue_entry,omitempty"`
	Tier        *PriceTier       `json:"tier,omitempty"`
	TierWarning TierWarning      `json:"tier_warning,omitempty"`
	Items       []*TreatmentItem `json:"items"`
	Payments    []*Payment       `json:"payments"`
	TotalAmount Money            `json:"total_amount"`
	TotalPaid   Money            `json:"total_paid"`
	AmountDue   Money            `json:"amount_due"`
}

// Totals holds the pure invoice sums.
type Totals struct {
	TotalAmount Money
	TotalPaid   Money
	AmountDue   Money
}

// ComputeTotals sums items and payments. AmountDue floors at zero;
// over-payment is not carried as credit.
func ComputeTotals(items []*TreatmentItem, payments []*Payment) Totals {
	var t Totals
	for _, item := range items {
		t.TotalAmount += item.TotalAmount
	}
	for _, p := range payments {
		t.TotalPaid += p.Amount
	}
	t.AmountDue = Max(0, t.TotalAmount-t.TotalPaid)
	return t
}

// Settled reports whether recorded payments cover the invoice.
func (t Totals) Settled() bool {
	return t.AmountDue <= 0
}
