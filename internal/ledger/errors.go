package ledger

import (
	"fmt"
	"strings"
)

// ValidationError names the offending field so a form can show the
// message inline.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// ValidationErrors collects every failure for one input.
type ValidationErrors []*ValidationError

func (errs ValidationErrors) Error() string {
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		msgs = append(msgs, e.Error())
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// Field returns the first error reported for field, or nil.
func (errs ValidationErrors) Field(field string) *ValidationError {
	for _, e := range errs {
		if e.Field == field {
			return e
		}
	}
	return nil
}

// Err returns nil for an empty list so callers can use the usual
// `if err != nil` check.
func (errs ValidationErrors) Err() error {
	if len(errs) == 0 {
		return nil
	}
	return errs
}

const (
	MsgAmountPositive    = "must be a positive number"
	MsgNotNegative       = "must not be negative"
	MsgSplitMismatch     = "paid + remaining must equal total"
	MsgCreditPaidNonZero = "must be 0 when paying on credit"
	MsgAppliedToDebt     = "must specify whether payment applies to debt"
	MsgUnknownType       = "must be one of sale, payment, credit, refund"
	MsgUnknownMethod     = "must be one of cash, bank_transfer, pos_card, credit, mixed"
	MsgMethodRequired    = "is required"
	MsgNegativeBalance   = "would make the outstanding balance negative"
	MsgRefundExceedsDebt = "refund is larger than what the customer owes"
	MsgMixedSaleOnly     = "mixed is only allowed on sales"
)
