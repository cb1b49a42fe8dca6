package ledger

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

var sampleAmounts = []string{"0.01", "1", "250.50", "10000", "9999999.99"}

func TestSalePaidInFull(t *testing.T) {
	for _, m := range []PaymentMethod{MethodCash, MethodBankTransfer, MethodPOSCard} {
		for _, a := range sampleAmounts {
			in := Input{Type: TypeSale, PaymentMethod: m, Amount: dec(a)}
			res := Calculate(in)
			if !res.IsValid {
				t.Fatalf("Calculate(sale/%s/%s) invalid: %v", m, a, res.Errors)
			}
			if res.Status != StatusCompleted {
				t.Errorf("sale/%s/%s status = %q, want %q", m, a, res.Status, StatusCompleted)
			}
			if !res.DebtImpact.IsZero() {
				t.Errorf("sale/%s/%s impact = %s, want 0", m, a, res.DebtImpact)
			}
			if !res.PaidNow.Equal(dec(a)) || !res.Remaining.IsZero() {
				t.Errorf("sale/%s/%s breakdown = %s/%s, want %s/0", m, a, res.PaidNow, res.Remaining, a)
			}
		}
	}
}

func TestSaleOnCredit(t *testing.T) {
	for _, a := range sampleAmounts {
		res := Calculate(Input{Type: TypeSale, PaymentMethod: MethodCredit, Amount: dec(a)})
		if !res.IsValid {
			t.Fatalf("Calculate(sale/credit/%s) invalid: %v", a, res.Errors)
		}
		if res.Status != StatusPending {
			t.Errorf("status = %q, want %q", res.Status, StatusPending)
		}
		if !res.DebtImpact.Equal(dec(a)) {
			t.Errorf("impact = %s, want %s", res.DebtImpact, a)
		}
	}
}

func TestSaleMixed(t *testing.T) {
	tests := []struct {
		amount, paid, remaining string
		want                    Status
	}{
		{"5000", "3000", "2000", StatusPartial},
		{"1000", "600", "400", StatusPartial},
		{"1000", "1000", "0", StatusCompleted},
		{"1000", "0", "1000", StatusPartial},
		{"100", "33.33", "66.67", StatusPartial},
	}
	for _, tc := range tests {
		in := Input{
			Type:            TypeSale,
			PaymentMethod:   MethodMixed,
			Amount:          dec(tc.amount),
			PaidAmount:      dec(tc.paid),
			RemainingAmount: dec(tc.remaining),
		}
		res := Calculate(in)
		if !res.IsValid {
			t.Fatalf("Calculate(%+v) invalid: %v", tc, res.Errors)
		}
		if res.Status != tc.want {
			t.Errorf("%+v status = %q, want %q", tc, res.Status, tc.want)
		}
		if !res.DebtImpact.Equal(dec(tc.remaining)) {
			t.Errorf("%+v impact = %s, want %s", tc, res.DebtImpact, tc.remaining)
		}
	}
}

func TestPayment(t *testing.T) {
	for _, a := range sampleAmounts {
		applied := Calculate(Input{Type: TypePayment, PaymentMethod: MethodCash, Amount: dec(a), AppliedToDebt: Bool(true)})
		if !applied.IsValid {
			t.Fatalf("payment applied invalid: %v", applied.Errors)
		}
		if !applied.DebtImpact.Equal(dec(a).Neg()) {
			t.Errorf("applied impact = %s, want -%s", applied.DebtImpact, a)
		}
		if applied.Status != StatusCompleted {
			t.Errorf("applied status = %q, want completed", applied.Status)
		}

		deposit := Calculate(Input{Type: TypePayment, PaymentMethod: MethodPOSCard, Amount: dec(a), AppliedToDebt: Bool(false)})
		if !deposit.IsValid {
			t.Fatalf("payment deposit invalid: %v", deposit.Errors)
		}
		if !deposit.DebtImpact.IsZero() {
			t.Errorf("deposit impact = %s, want 0", deposit.DebtImpact)
		}
	}
}

func TestPaymentRequiresAppliedToDebt(t *testing.T) {
	res := Calculate(Input{Type: TypePayment, PaymentMethod: MethodCash, Amount: dec("100")})
	if res.IsValid {
		t.Fatal("payment without applied_to_debt should be invalid")
	}
	e := res.Errors.Field(FieldAppliedToDebt)
	if e == nil || e.Message != MsgAppliedToDebt {
		t.Errorf("errors = %v, want %q on %s", res.Errors, MsgAppliedToDebt, FieldAppliedToDebt)
	}
}

func TestCreditAndRefund(t *testing.T) {
	for _, a := range sampleAmounts {
		credit := Calculate(Input{Type: TypeCredit, Amount: dec(a)})
		if !credit.IsValid {
			t.Fatalf("credit invalid: %v", credit.Errors)
		}
		if credit.Status != StatusPending || !credit.DebtImpact.Equal(dec(a)) {
			t.Errorf("credit = %q/%s, want pending/+%s", credit.Status, credit.DebtImpact, a)
		}

		refund := Calculate(Input{Type: TypeRefund, PaymentMethod: MethodCash, Amount: dec(a)})
		if !refund.IsValid {
			t.Fatalf("refund invalid: %v", refund.Errors)
		}
		if refund.Status != StatusCompleted || !refund.DebtImpact.Equal(dec(a).Neg()) {
			t.Errorf("refund = %q/%s, want completed/-%s", refund.Status, refund.DebtImpact, a)
		}
	}
}

func TestMixedSplitValidation(t *testing.T) {
	bad := Calculate(Input{Type: TypeSale, PaymentMethod: MethodMixed, Amount: dec("1000"), PaidAmount: dec("600"), RemainingAmount: dec("500")})
	if bad.IsValid {
		t.Fatal("600 + 500 != 1000 should be invalid")
	}
	if e := bad.Errors.Field(FieldPaidAmount); e == nil || e.Message != MsgSplitMismatch {
		t.Errorf("errors = %v, want split mismatch", bad.Errors)
	}

	good := Calculate(Input{Type: TypeSale, PaymentMethod: MethodMixed, Amount: dec("1000"), PaidAmount: dec("600"), RemainingAmount: dec("400")})
	if !good.IsValid {
		t.Errorf("600 + 400 == 1000 should be valid, got %v", good.Errors)
	}
}

func TestMixedSplitTolerance(t *testing.T) {
	tests := []struct {
		paid, remaining string
		valid           bool
	}{
		{"333.33", "666.66", true},
		{"333.33", "666.67", true},  // off by 0.01
		{"333.34", "666.67", false}, // off by 0.02
		{"333.33", "666.64", false}, // off by 0.02
		{"-1", "1001", false},
		{"1001", "-1", false},
	}
	for _, tc := range tests {
		res := Calculate(Input{Type: TypeSale, PaymentMethod: MethodMixed, Amount: dec("999.99"), PaidAmount: dec(tc.paid), RemainingAmount: dec(tc.remaining)})
		if res.IsValid != tc.valid {
			t.Errorf("paid=%s remaining=%s valid = %v, want %v (%v)", tc.paid, tc.remaining, res.IsValid, tc.valid, res.Errors)
		}
	}
}

func TestNegativeSplitNamesField(t *testing.T) {
	res := Calculate(Input{Type: TypeSale, PaymentMethod: MethodMixed, Amount: dec("100"), PaidAmount: dec("-10"), RemainingAmount: dec("110")})
	if e := res.Errors.Field(FieldPaidAmount); e == nil || e.Message != MsgNotNegative {
		t.Errorf("errors = %v, want %q on paid_amount", res.Errors, MsgNotNegative)
	}
	if res.Errors.Field(FieldRemainingAmount) != nil {
		t.Errorf("remaining_amount should not be flagged: %v", res.Errors)
	}
}

func TestCreditMethodPaidAmount(t *testing.T) {
	res := Calculate(Input{Type: TypeSale, PaymentMethod: MethodCredit, Amount: dec("100"), PaidAmount: dec("10")})
	if e := res.Errors.Field(FieldPaidAmount); e == nil || e.Message != MsgCreditPaidNonZero {
		t.Errorf("errors = %v, want %q", res.Errors, MsgCreditPaidNonZero)
	}

	// credit type is exempt
	ok := Calculate(Input{Type: TypeCredit, PaymentMethod: MethodCredit, Amount: dec("100"), PaidAmount: dec("10")})
	if !ok.IsValid {
		t.Errorf("credit type with paid amount should be valid, got %v", ok.Errors)
	}
}

func TestInvalidAmount(t *testing.T) {
	for _, a := range []string{"0", "-1", "-0.01", "0.001"} {
		res := Calculate(Input{Type: TypeSale, PaymentMethod: MethodCash, Amount: dec(a)})
		if res.IsValid {
			t.Errorf("amount %s should be invalid", a)
			continue
		}
		if e := res.Errors.Field(FieldAmount); e == nil || e.Message != MsgAmountPositive {
			t.Errorf("amount %s errors = %v", a, res.Errors)
		}
		if res.Status != "" || !res.DebtImpact.IsZero() {
			t.Errorf("invalid result should carry no status/impact, got %q/%s", res.Status, res.DebtImpact)
		}
	}
}

func TestUnknownTypeAndMethod(t *testing.T) {
	res := Calculate(Input{Type: "gift", PaymentMethod: "barter", Amount: dec("10")})
	if res.Errors.Field(FieldType) == nil {
		t.Errorf("unknown type not reported: %v", res.Errors)
	}
	if e := res.Errors.Field(FieldPaymentMethod); e == nil || e.Message != MsgUnknownMethod {
		t.Errorf("unknown method not reported: %v", res.Errors)
	}

	res = Calculate(Input{Type: TypeSale, Amount: dec("10")})
	if e := res.Errors.Field(FieldPaymentMethod); e == nil || e.Message != MsgMethodRequired {
		t.Errorf("missing method on sale not reported: %v", res.Errors)
	}

	res = Calculate(Input{Type: TypeCredit, Amount: dec("10")})
	if !res.IsValid {
		t.Errorf("credit without method should be valid, got %v", res.Errors)
	}
}

func TestCancelled(t *testing.T) {
	in := Input{Type: TypeSale, PaymentMethod: MethodCredit, Amount: dec("500"), Cancelled: true}
	if got := CalculateStatus(in); got != StatusCancelled {
		t.Errorf("status = %q, want cancelled", got)
	}
	if got := CalculateDebtImpact(in); !got.IsZero() {
		t.Errorf("impact = %s, want 0", got)
	}
}

func TestCalculateIsIdempotent(t *testing.T) {
	inputs := []Input{
		{Type: TypeSale, PaymentMethod: MethodMixed, Amount: dec("5000"), PaidAmount: dec("3000"), RemainingAmount: dec("2000")},
		{Type: TypePayment, PaymentMethod: MethodCash, Amount: dec("4000"), AppliedToDebt: Bool(true)},
		{Type: TypeSale, PaymentMethod: MethodMixed, Amount: dec("1000"), PaidAmount: dec("600"), RemainingAmount: dec("500")},
	}
	for _, in := range inputs {
		a, b := Calculate(in), Calculate(in)
		if a.IsValid != b.IsValid || a.Status != b.Status || !a.DebtImpact.Equal(b.DebtImpact) ||
			!a.PaidNow.Equal(b.PaidNow) || !a.Remaining.Equal(b.Remaining) || len(a.Errors) != len(b.Errors) {
			t.Errorf("Calculate(%+v) not idempotent: %+v vs %+v", in, a, b)
		}
	}
}

func TestZeroRulesUsesDefaultTolerance(t *testing.T) {
	var r Rules
	res := r.Calculate(Input{Type: TypeSale, PaymentMethod: MethodMixed, Amount: dec("10"), PaidAmount: dec("4.99"), RemainingAmount: dec("5")})
	if !res.IsValid {
		t.Errorf("zero Rules should tolerate 0.01, got %v", res.Errors)
	}
}

func TestMoney(t *testing.T) {
	d, ok := Money(12.345)
	if !ok || !d.Equal(dec("12.35")) {
		t.Errorf("Money(12.345) = %s, %v, want 12.35", d, ok)
	}
	if _, ok := Money(math.Inf(1)); ok {
		t.Error("Money(+Inf) ok = true, want false")
	}
	if d, ok := MoneyPtr(nil); !ok || !d.IsZero() {
		t.Errorf("MoneyPtr(nil) = %s, %v", d, ok)
	}
}

func TestMixedOnlyOnSales(t *testing.T) {
	for _, typ := range []Type{TypePayment, TypeCredit, TypeRefund} {
		res := Calculate(Input{
			Type:            typ,
			PaymentMethod:   MethodMixed,
			Amount:          dec("1000"),
			PaidAmount:      dec("600"),
			RemainingAmount: dec("400"),
			AppliedToDebt:   Bool(true),
		})
		if res.IsValid {
			t.Errorf("%s with mixed method should be invalid", typ)
			continue
		}
		if e := res.Errors.Field(FieldPaymentMethod); e == nil || e.Message != MsgMixedSaleOnly {
			t.Errorf("%s errors = %v, want %q", typ, res.Errors, MsgMixedSaleOnly)
		}
		if res.Errors.Field(FieldPaidAmount) != nil {
			t.Errorf("%s split should not be checked: %v", typ, res.Errors)
		}
	}
}
