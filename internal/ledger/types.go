package ledger

import "github.com/shopspring/decimal"

// Type - what kind of event a transaction records
type Type string

const (
	TypeSale    Type = "sale"
	TypePayment Type = "payment"
	TypeCredit  Type = "credit" // credit issued to the customer, no goods
	TypeRefund  Type = "refund"
)

func (t Type) Valid() bool {
	switch t {
	case TypeSale, TypePayment, TypeCredit, TypeRefund:
		return true
	}
	return false
}

// PaymentMethod - how the money moved (or didn't)
type PaymentMethod string

const (
	MethodCash         PaymentMethod = "cash"
	MethodBankTransfer PaymentMethod = "bank_transfer"
	MethodPOSCard      PaymentMethod = "pos_card"
	MethodCredit       PaymentMethod = "credit" // nothing paid now
	MethodMixed        PaymentMethod = "mixed"  // part now, part owed
)

// Methods lists every payment method in display order.
var Methods = []PaymentMethod{MethodCash, MethodBankTransfer, MethodPOSCard, MethodCredit, MethodMixed}

func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodCash, MethodBankTransfer, MethodPOSCard, MethodCredit, MethodMixed:
		return true
	}
	return false
}

// PaidInFull reports whether the method settles the whole amount on the spot.
func (m PaymentMethod) PaidInFull() bool {
	return m == MethodCash || m == MethodBankTransfer || m == MethodPOSCard
}

type Status string

const (
	StatusCompleted Status = "completed"
	StatusPending   Status = "pending"
	StatusPartial   Status = "partial"
	StatusCancelled Status = "cancelled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusCompleted, StatusPending, StatusPartial, StatusCancelled:
		return true
	}
	return false
}

// Input is everything the calculator looks at for one transaction.
// PaidAmount and RemainingAmount only matter for mixed payments;
// AppliedToDebt only for payments.
type Input struct {
	Type            Type
	PaymentMethod   PaymentMethod
	Amount          decimal.Decimal
	PaidAmount      decimal.Decimal
	RemainingAmount decimal.Decimal
	AppliedToDebt   *bool
	Cancelled       bool
}

// Result is what a form needs to render a preview or block a submit.
type Result struct {
	IsValid    bool
	Errors     ValidationErrors
	Status     Status
	DebtImpact decimal.Decimal
	PaidNow    decimal.Decimal
	Remaining  decimal.Decimal
}

// Balance is one row of a running balance statement.
type Balance struct {
	Impact decimal.Decimal
	Before decimal.Decimal
	After  decimal.Decimal
}

// Aggregate holds the customer totals derived from a transaction history.
type Aggregate struct {
	TotalSpent         decimal.Decimal
	OutstandingBalance decimal.Decimal
	DepositBalance     decimal.Decimal
}

// Bool returns a pointer to b, for AppliedToDebt literals.
func Bool(b bool) *bool {
	return &b
}
