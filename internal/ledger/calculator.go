// Package ledger derives transaction status and debt impact.
//
// Every consumer (create/edit flows, previews, statements, aggregate
// re-derivation) goes through the functions here; nothing else encodes
// the rules. The package does no I/O and holds no state.
package ledger

import (
	"iter"

	"github.com/shopspring/decimal"
)

// Field names used in validation errors; they match the request JSON.
const (
	FieldType            = "type"
	FieldPaymentMethod   = "payment_method"
	FieldAmount          = "amount"
	FieldPaidAmount      = "paid_amount"
	FieldRemainingAmount = "remaining_amount"
	FieldAppliedToDebt   = "applied_to_debt"
)

// DefaultTolerance is how far paid + remaining may drift from the total
// on a mixed payment.
var DefaultTolerance = decimal.New(1, -2)

// Calculator is the dependency services take instead of calling the
// package functions directly.
type Calculator interface {
	Validate(in Input) ValidationErrors
	Calculate(in Input) Result
	RunningBalances(entries []Input) iter.Seq2[int, Balance]
	Summarize(entries []Input) Aggregate
}

// Rules implements Calculator.
type Rules struct {
	Tolerance decimal.Decimal
}

var _ Calculator = Rules{}

func NewRules() Rules {
	return Rules{Tolerance: DefaultTolerance}
}

// Default is the rule set behind the package-level functions.
var Default = NewRules()

func CalculateStatus(in Input) Status              { return Default.Status(in) }
func CalculateDebtImpact(in Input) decimal.Decimal { return Default.DebtImpact(in) }
func Validate(in Input) ValidationErrors           { return Default.Validate(in) }
func Calculate(in Input) Result                    { return Default.Calculate(in) }

// Status derives the transaction status. It does not validate; an
// unknown type yields "".
func (r Rules) Status(in Input) Status {
	if in.Cancelled {
		return StatusCancelled
	}
	switch in.Type {
	case TypeSale:
		switch {
		case in.PaymentMethod == MethodCredit:
			return StatusPending
		case in.PaymentMethod == MethodMixed:
			if in.RemainingAmount.Round(2).IsPositive() {
				return StatusPartial
			}
			return StatusCompleted
		default:
			return StatusCompleted
		}
	case TypePayment, TypeRefund:
		return StatusCompleted
	case TypeCredit:
		return StatusPending
	}
	return ""
}

// DebtImpact is the signed change the transaction makes to the
// customer's outstanding balance.
func (r Rules) DebtImpact(in Input) decimal.Decimal {
	if in.Cancelled {
		return decimal.Zero
	}
	amount := in.Amount.Round(2)
	switch in.Type {
	case TypeSale:
		switch in.PaymentMethod {
		case MethodCredit:
			return amount
		case MethodMixed:
			return in.RemainingAmount.Round(2)
		}
		return decimal.Zero
	case TypePayment:
		if in.AppliedToDebt != nil && *in.AppliedToDebt {
			return amount.Neg()
		}
		// banked as a deposit for future service
		return decimal.Zero
	case TypeCredit:
		return amount
	case TypeRefund:
		return amount.Neg()
	}
	return decimal.Zero
}

// Breakdown splits the amount into what changes hands now and what is
// left owing.
func (r Rules) Breakdown(in Input) (paidNow, remaining decimal.Decimal) {
	amount := in.Amount.Round(2)
	if in.Cancelled {
		return decimal.Zero, decimal.Zero
	}
	switch in.Type {
	case TypeSale:
		switch in.PaymentMethod {
		case MethodCredit:
			return decimal.Zero, amount
		case MethodMixed:
			return in.PaidAmount.Round(2), in.RemainingAmount.Round(2)
		}
		return amount, decimal.Zero
	case TypeCredit:
		return decimal.Zero, amount
	}
	return amount, decimal.Zero
}

func (r Rules) Validate(in Input) ValidationErrors {
	var errs ValidationErrors

	if !in.Type.Valid() {
		errs = append(errs, NewValidationError(FieldType, MsgUnknownType))
	}

	switch {
	case in.PaymentMethod == "":
		if in.Type == TypeSale || in.Type == TypePayment {
			errs = append(errs, NewValidationError(FieldPaymentMethod, MsgMethodRequired))
		}
	case !in.PaymentMethod.Valid():
		errs = append(errs, NewValidationError(FieldPaymentMethod, MsgUnknownMethod))
	}

	if !in.Amount.IsPositive() || in.Amount.Round(2).IsZero() {
		errs = append(errs, NewValidationError(FieldAmount, MsgAmountPositive))
	}

	if in.PaymentMethod == MethodMixed && in.Type.Valid() && in.Type != TypeSale {
		errs = append(errs, NewValidationError(FieldPaymentMethod, MsgMixedSaleOnly))
	}

	if in.PaymentMethod == MethodMixed && in.Type == TypeSale {
		splitOK := true
		if in.PaidAmount.IsNegative() {
			errs = append(errs, NewValidationError(FieldPaidAmount, MsgNotNegative))
			splitOK = false
		}
		if in.RemainingAmount.IsNegative() {
			errs = append(errs, NewValidationError(FieldRemainingAmount, MsgNotNegative))
			splitOK = false
		}
		if splitOK {
			diff := in.PaidAmount.Add(in.RemainingAmount).Sub(in.Amount).Abs()
			if diff.GreaterThan(r.tolerance()) {
				errs = append(errs, NewValidationError(FieldPaidAmount, MsgSplitMismatch))
			}
		}
	}

	if in.PaymentMethod == MethodCredit && in.Type != TypeCredit && !in.PaidAmount.IsZero() {
		errs = append(errs, NewValidationError(FieldPaidAmount, MsgCreditPaidNonZero))
	}

	if in.Type == TypePayment && in.AppliedToDebt == nil {
		errs = append(errs, NewValidationError(FieldAppliedToDebt, MsgAppliedToDebt))
	}

	return errs
}

// Calculate validates in and, when valid, derives status, debt impact
// and the paid/remaining breakdown. It never fails; problems are in
// Result.Errors.
func (r Rules) Calculate(in Input) Result {
	errs := r.Validate(in)
	if len(errs) > 0 {
		return Result{
			IsValid:    false,
			Errors:     errs,
			DebtImpact: decimal.Zero,
			PaidNow:    decimal.Zero,
			Remaining:  decimal.Zero,
		}
	}
	paid, remaining := r.Breakdown(in)
	return Result{
		IsValid:    true,
		Status:     r.Status(in),
		DebtImpact: r.DebtImpact(in),
		PaidNow:    paid,
		Remaining:  remaining,
	}
}

func (r Rules) tolerance() decimal.Decimal {
	if r.Tolerance.IsZero() {
		return DefaultTolerance
	}
	return r.Tolerance
}
