package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ContactMethod - how the customer prefers to be reached
type ContactMethod string

const (
	ContactPhone    ContactMethod = "phone"
	ContactSMS      ContactMethod = "sms"
	ContactWhatsApp ContactMethod = "whatsapp"
	ContactEmail    ContactMethod = "email"
)

func (m ContactMethod) Valid() bool {
	switch m {
	case ContactPhone, ContactSMS, ContactWhatsApp, ContactEmail:
		return true
	}
	return false
}

// CustomerSource - where the record came from
type CustomerSource string

const (
	SourceManual CustomerSource = "manual"
	SourceImport CustomerSource = "import"
)

// Customer - aggregate fields (TotalSpent, OutstandingBalance,
// DepositBalance, LastPurchase) are re-derived from Transactions on every
// change and never edited directly.
type Customer struct {
	ID               uint           `gorm:"primaryKey" json:"id"`
	BusinessID       uint           `gorm:"index;not null;index:idx_customers_business_phone,priority:1" json:"business_id"`
	Name             string         `gorm:"size:150;not null" json:"name"`
	Phone            string         `gorm:"size:30;not null;index:idx_customers_business_phone,priority:2" json:"phone"`
	Email            string         `gorm:"size:150" json:"email"`
	Address          string         `gorm:"size:255" json:"address"`
	Company          string         `gorm:"size:150" json:"company"`
	JobTitle         string         `gorm:"size:100" json:"job_title"`
	Nickname         string         `gorm:"size:100" json:"nickname"`
	PreferredContact ContactMethod  `gorm:"size:20" json:"preferred_contact"`
	Source           CustomerSource `gorm:"size:20;not null;default:manual" json:"source"`

	TotalSpent         decimal.Decimal `gorm:"type:decimal(14,2);not null;default:0" json:"total_spent"`
	OutstandingBalance decimal.Decimal `gorm:"type:decimal(14,2);not null;default:0;index" json:"outstanding_balance"`
	DepositBalance     decimal.Decimal `gorm:"type:decimal(14,2);not null;default:0" json:"deposit_balance"`
	LastPurchase       *time.Time      `json:"last_purchase"`

	Transactions []Transaction `gorm:"foreignKey:CustomerID;constraint:OnDelete:CASCADE" json:"transactions,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}
