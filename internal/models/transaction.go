package models

import (
	"time"

	"bizledger-backend/internal/ledger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Transaction - one sale, payment, credit or refund against a customer.
// Status and DebtImpact are what the ledger calculator derived when the
// row was last written.
type Transaction struct {
	ID         uint     `gorm:"primaryKey" json:"id"`
	Reference  string   `gorm:"size:36;uniqueIndex;not null" json:"reference"`
	BusinessID uint     `gorm:"index;not null" json:"business_id"`
	CustomerID uint     `gorm:"index;not null" json:"customer_id"`
	Customer   Customer `gorm:"foreignKey:CustomerID" json:"-"`

	Type            ledger.Type          `gorm:"size:20;not null;index" json:"type"`
	PaymentMethod   ledger.PaymentMethod `gorm:"size:20" json:"payment_method"`
	Amount          decimal.Decimal      `gorm:"type:decimal(14,2);not null" json:"amount"`
	PaidAmount      decimal.Decimal      `gorm:"type:decimal(14,2);not null;default:0" json:"paid_amount"`      // mixed only
	RemainingAmount decimal.Decimal      `gorm:"type:decimal(14,2);not null;default:0" json:"remaining_amount"` // mixed only
	AppliedToDebt   *bool                `json:"applied_to_debt"`                                               // payments only

	Status     ledger.Status   `gorm:"size:20;not null;index" json:"status"`
	DebtImpact decimal.Decimal `gorm:"type:decimal(14,2);not null;default:0" json:"debt_impact"`

	DueDate     *time.Time `json:"due_date"`
	Description string     `gorm:"size:500" json:"description"`
	Date        time.Time  `gorm:"index;not null" json:"date"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (t *Transaction) BeforeCreate(tx *gorm.DB) error {
	if t.Reference == "" {
		t.Reference = uuid.NewString()
	}
	return nil
}

// LedgerInput is the calculator's view of the row.
func (t Transaction) LedgerInput() ledger.Input {
	return ledger.Input{
		Type:            t.Type,
		PaymentMethod:   t.PaymentMethod,
		Amount:          t.Amount,
		PaidAmount:      t.PaidAmount,
		RemainingAmount: t.RemainingAmount,
		AppliedToDebt:   t.AppliedToDebt,
		Cancelled:       t.Status == ledger.StatusCancelled,
	}
}

// LedgerInputs maps a date-ordered history for the calculator.
func LedgerInputs(txs []Transaction) []ledger.Input {
	out := make([]ledger.Input, 0, len(txs))
	for _, t := range txs {
		out = append(out, t.LedgerInput())
	}
	return out
}
