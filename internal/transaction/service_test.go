package transaction

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"bizledger-backend/internal/apperr"
	"bizledger-backend/internal/audit"
	"bizledger-backend/internal/database"
	"bizledger-backend/internal/ledger"
	"bizledger-backend/internal/models"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type fixture struct {
	db       *gorm.DB
	svc      *Service
	actor    models.Actor
	customer models.Customer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	t.Cleanup(func() { database.Close(db) })
	if err := database.Migrate(db); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	biz := models.Business{Name: "Mama Put", Currency: "NGN"}
	if err := db.Create(&biz).Error; err != nil {
		t.Fatal(err)
	}
	user := models.User{BusinessID: biz.ID, Name: "Ada", Email: "ada@example.com", PasswordHash: "x", Role: models.RoleOwner}
	if err := db.Create(&user).Error; err != nil {
		t.Fatal(err)
	}
	cust := models.Customer{BusinessID: biz.ID, Name: "Chidi", Phone: "+2348012345678", Source: models.SourceManual}
	if err := db.Create(&cust).Error; err != nil {
		t.Fatal(err)
	}

	return &fixture{
		db:       db,
		svc:      NewService(db, ledger.NewRules(), zerolog.Nop()),
		actor:    models.Actor{UserID: user.ID, UserName: user.Name, BusinessID: biz.ID, Role: user.Role},
		customer: cust,
	}
}

func (f *fixture) reload(t *testing.T) models.Customer {
	t.Helper()
	var c models.Customer
	if err := f.db.First(&c, f.customer.ID).Error; err != nil {
		t.Fatal(err)
	}
	return c
}

func (f *fixture) create(t *testing.T, req Request) *models.Transaction {
	t.Helper()
	req.CustomerID = f.customer.ID
	tx, err := f.svc.Create(context.Background(), f.actor, req)
	if err != nil {
		t.Fatalf("Create(%s %s %s) error = %v", req.Type, req.PaymentMethod, req.Amount, err)
	}
	return tx
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func dp(s string) *decimal.Decimal {
	v := d(s)
	return &v
}

func day(n int) time.Time {
	return time.Date(2025, 3, n, 10, 0, 0, 0, time.UTC)
}

func wantDecimal(t *testing.T, name string, got decimal.Decimal, want string) {
	t.Helper()
	if !got.Equal(d(want)) {
		t.Errorf("%s = %s, want %s", name, got.StringFixed(2), want)
	}
}

func TestCreditSaleThenPayment(t *testing.T) {
	f := newFixture(t)

	sale := f.create(t, Request{Type: ledger.TypeSale, PaymentMethod: ledger.MethodCredit, Amount: d("10000"), Date: day(1)})
	if sale.Status != ledger.StatusPending {
		t.Errorf("sale status = %q, want pending", sale.Status)
	}
	if sale.Reference == "" {
		t.Error("sale reference not set")
	}
	wantDecimal(t, "outstanding after sale", f.reload(t).OutstandingBalance, "10000")

	f.create(t, Request{Type: ledger.TypePayment, PaymentMethod: ledger.MethodCash, Amount: d("4000"), AppliedToDebt: ledger.Bool(true), Date: day(2)})

	c := f.reload(t)
	wantDecimal(t, "outstanding", c.OutstandingBalance, "6000")
	wantDecimal(t, "total spent", c.TotalSpent, "10000")
	if c.LastPurchase == nil || !c.LastPurchase.Equal(day(1)) {
		t.Errorf("LastPurchase = %v, want %v", c.LastPurchase, day(1))
	}
}

func TestMixedSaleDerivesRemaining(t *testing.T) {
	f := newFixture(t)

	tx := f.create(t, Request{Type: ledger.TypeSale, PaymentMethod: ledger.MethodMixed, Amount: d("5000"), PaidAmount: dp("3000")})
	if tx.Status != ledger.StatusPartial {
		t.Errorf("status = %q, want partial", tx.Status)
	}
	wantDecimal(t, "remaining", tx.RemainingAmount, "2000")
	wantDecimal(t, "debt impact", tx.DebtImpact, "2000")
	wantDecimal(t, "outstanding", f.reload(t).OutstandingBalance, "2000")
}

func TestCreateDefaultsMethod(t *testing.T) {
	f := newFixture(t)

	credit := f.create(t, Request{Type: ledger.TypeCredit, Amount: d("700")})
	if credit.PaymentMethod != ledger.MethodCredit {
		t.Errorf("credit method = %q, want credit", credit.PaymentMethod)
	}
	refund := f.create(t, Request{Type: ledger.TypeRefund, Amount: d("200")})
	if refund.PaymentMethod != ledger.MethodCash {
		t.Errorf("refund method = %q, want cash", refund.PaymentMethod)
	}
	wantDecimal(t, "outstanding", f.reload(t).OutstandingBalance, "500")
}

func TestCreateRejectsInvalid(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Create(context.Background(), f.actor, Request{
		CustomerID:      f.customer.ID,
		Type:            ledger.TypeSale,
		PaymentMethod:   ledger.MethodMixed,
		Amount:          d("1000"),
		PaidAmount:      dp("600"),
		RemainingAmount: dp("500"),
	})
	var verrs ledger.ValidationErrors
	if !errors.As(err, &verrs) || verrs.Field(ledger.FieldPaidAmount) == nil {
		t.Fatalf("err = %v, want paid_amount validation error", err)
	}

	var n int64
	f.db.Model(&models.Transaction{}).Count(&n)
	if n != 0 {
		t.Errorf("%d transactions stored after rejected create", n)
	}
}

func TestCreateRejectsNegativeBalance(t *testing.T) {
	tests := []struct {
		name string
		req  Request
		want string
	}{
		{"refund", Request{Type: ledger.TypeRefund, Amount: d("100")}, ledger.MsgRefundExceedsDebt},
		{"payment", Request{Type: ledger.TypePayment, PaymentMethod: ledger.MethodCash, Amount: d("100"), AppliedToDebt: ledger.Bool(true)}, ledger.MsgNegativeBalance},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tt.req.CustomerID = f.customer.ID

			_, err := f.svc.Create(context.Background(), f.actor, tt.req)
			var verr *ledger.ValidationError
			if !errors.As(err, &verr) || verr.Field != ledger.FieldAmount || verr.Message != tt.want {
				t.Fatalf("err = %v, want %q on amount", err, tt.want)
			}

			var n int64
			f.db.Model(&models.Transaction{}).Count(&n)
			if n != 0 {
				t.Errorf("%s was stored despite rejection", tt.name)
			}
			wantDecimal(t, "outstanding", f.reload(t).OutstandingBalance, "0")
		})
	}
}

func TestConcurrentCreates(t *testing.T) {
	f := newFixture(t)
	const workers, perWorker = 8, 5

	var wg sync.WaitGroup
	errs := make(chan error, workers*perWorker)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perWorker {
				_, err := f.svc.Create(context.Background(), f.actor, Request{
					CustomerID:    f.customer.ID,
					Type:          ledger.TypeSale,
					PaymentMethod: ledger.MethodCredit,
					Amount:        d("100"),
				})
				if err != nil {
					errs <- err
				}
			}
		}()
	}
	wg.Wait()
	close(errs)

	failed := 0
	for err := range errs {
		if failed == 0 {
			t.Errorf("Create() error = %v", err)
		}
		failed++
	}
	if failed > 0 {
		t.Fatalf("%d of %d concurrent creates failed", failed, workers*perWorker)
	}

	var n int64
	f.db.Model(&models.Transaction{}).Where("customer_id = ?", f.customer.ID).Count(&n)
	if n != workers*perWorker {
		t.Errorf("stored %d transactions, want %d", n, workers*perWorker)
	}
	wantDecimal(t, "outstanding", f.reload(t).OutstandingBalance, "4000")
	wantDecimal(t, "total spent", f.reload(t).TotalSpent, "4000")
}

func TestMixedOnlyOnSales(t *testing.T) {
	f := newFixture(t)
	f.create(t, Request{Type: ledger.TypeSale, PaymentMethod: ledger.MethodCredit, Amount: d("1000")})

	_, err := f.svc.Create(context.Background(), f.actor, Request{
		CustomerID:    f.customer.ID,
		Type:          ledger.TypePayment,
		PaymentMethod: ledger.MethodMixed,
		Amount:        d("500"),
		PaidAmount:    dp("200"),
		AppliedToDebt: ledger.Bool(true),
	})
	var verrs ledger.ValidationErrors
	if !errors.As(err, &verrs) || verrs.Field(ledger.FieldPaymentMethod) == nil {
		t.Fatalf("err = %v, want payment_method error", err)
	}
	wantDecimal(t, "outstanding", f.reload(t).OutstandingBalance, "1000")
}

func TestCreateUnknownCustomer(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Create(context.Background(), f.actor, Request{
		CustomerID:    f.customer.ID + 100,
		Type:          ledger.TypeSale,
		PaymentMethod: ledger.MethodCash,
		Amount:        d("10"),
	})
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestDepositPayment(t *testing.T) {
	f := newFixture(t)

	f.create(t, Request{Type: ledger.TypePayment, PaymentMethod: ledger.MethodBankTransfer, Amount: d("1500"), AppliedToDebt: ledger.Bool(false)})

	c := f.reload(t)
	wantDecimal(t, "outstanding", c.OutstandingBalance, "0")
	wantDecimal(t, "deposit", c.DepositBalance, "1500")
}

func TestUpdateRederives(t *testing.T) {
	f := newFixture(t)
	tx := f.create(t, Request{Type: ledger.TypeSale, PaymentMethod: ledger.MethodCredit, Amount: d("800")})

	method := ledger.MethodMixed
	updated, err := f.svc.Update(context.Background(), f.actor, tx.ID, Patch{PaymentMethod: &method, PaidAmount: dp("500")})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if updated.Status != ledger.StatusPartial {
		t.Errorf("status = %q, want partial", updated.Status)
	}
	wantDecimal(t, "outstanding", f.reload(t).OutstandingBalance, "300")

	amount := d("1000")
	if _, err := f.svc.Update(context.Background(), f.actor, tx.ID, Patch{Amount: &amount}); err != nil {
		t.Fatalf("Update(amount) error = %v", err)
	}
	wantDecimal(t, "outstanding after amount change", f.reload(t).OutstandingBalance, "500")
}

func TestUpdateCannotDriveBalanceNegative(t *testing.T) {
	f := newFixture(t)
	sale := f.create(t, Request{Type: ledger.TypeSale, PaymentMethod: ledger.MethodCredit, Amount: d("1000"), Date: day(1)})
	f.create(t, Request{Type: ledger.TypePayment, PaymentMethod: ledger.MethodCash, Amount: d("800"), AppliedToDebt: ledger.Bool(true), Date: day(2)})

	amount := d("500")
	_, err := f.svc.Update(context.Background(), f.actor, sale.ID, Patch{Amount: &amount})
	var verr *ledger.ValidationError
	if !errors.As(err, &verr) || verr.Message != ledger.MsgNegativeBalance {
		t.Fatalf("err = %v, want negative balance error", err)
	}
	wantDecimal(t, "outstanding", f.reload(t).OutstandingBalance, "200")
}

func TestCancel(t *testing.T) {
	f := newFixture(t)
	tx := f.create(t, Request{Type: ledger.TypeSale, PaymentMethod: ledger.MethodCredit, Amount: d("2500")})

	cancelled, err := f.svc.Cancel(context.Background(), f.actor, tx.ID)
	if err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if cancelled.Status != ledger.StatusCancelled || !cancelled.DebtImpact.IsZero() {
		t.Errorf("cancelled = %s/%s, want cancelled/0", cancelled.Status, cancelled.DebtImpact)
	}
	c := f.reload(t)
	wantDecimal(t, "outstanding", c.OutstandingBalance, "0")
	wantDecimal(t, "total spent", c.TotalSpent, "0")
	if c.LastPurchase != nil {
		t.Errorf("LastPurchase = %v, want nil", c.LastPurchase)
	}

	if _, err := f.svc.Cancel(context.Background(), f.actor, tx.ID); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("second Cancel() err = %v, want ErrConflict", err)
	}
}

func TestDelete(t *testing.T) {
	f := newFixture(t)
	tx := f.create(t, Request{Type: ledger.TypeCredit, Amount: d("900")})

	if err := f.svc.Delete(context.Background(), f.actor, tx.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	wantDecimal(t, "outstanding", f.reload(t).OutstandingBalance, "0")
	if _, err := f.svc.Get(context.Background(), f.actor.BusinessID, tx.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Get() after delete err = %v, want ErrNotFound", err)
	}
}

func TestOtherBusinessCannotSee(t *testing.T) {
	f := newFixture(t)
	tx := f.create(t, Request{Type: ledger.TypeCredit, Amount: d("100")})

	if _, err := f.svc.Get(context.Background(), f.actor.BusinessID+1, tx.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Get() from other business err = %v, want ErrNotFound", err)
	}
	other := f.actor
	other.BusinessID++
	if err := f.svc.Delete(context.Background(), other, tx.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Delete() from other business err = %v, want ErrNotFound", err)
	}
}

func TestStatement(t *testing.T) {
	f := newFixture(t)
	// recorded out of order; the statement follows the dates
	f.create(t, Request{Type: ledger.TypePayment, PaymentMethod: ledger.MethodCash, Amount: d("4000"), AppliedToDebt: ledger.Bool(true), Date: day(5)})
	f.create(t, Request{Type: ledger.TypeSale, PaymentMethod: ledger.MethodCredit, Amount: d("10000"), Date: day(1)})
	f.create(t, Request{Type: ledger.TypeSale, PaymentMethod: ledger.MethodCash, Amount: d("300"), Date: day(3)})

	st, err := f.svc.Statement(context.Background(), f.actor.BusinessID, f.customer.ID)
	if err != nil {
		t.Fatalf("Statement() error = %v", err)
	}
	want := []string{"10000", "10000", "6000"}
	if len(st.Lines) != len(want) {
		t.Fatalf("got %d lines, want %d", len(st.Lines), len(want))
	}
	for i, w := range want {
		wantDecimal(t, "balance after line", st.Lines[i].Balance.After, w)
	}
	if !st.Lines[0].Balance.Before.IsZero() {
		t.Errorf("first line starts at %s, want 0", st.Lines[0].Balance.Before)
	}
}

func TestPreview(t *testing.T) {
	f := newFixture(t)
	f.create(t, Request{Type: ledger.TypeSale, PaymentMethod: ledger.MethodCredit, Amount: d("1000")})

	p, err := f.svc.Preview(context.Background(), f.actor.BusinessID, Request{
		CustomerID:    f.customer.ID,
		Type:          ledger.TypePayment,
		PaymentMethod: ledger.MethodPOSCard,
		Amount:        d("250"),
		AppliedToDebt: ledger.Bool(true),
	})
	if err != nil {
		t.Fatalf("Preview() error = %v", err)
	}
	if !p.IsValid {
		t.Fatalf("preview invalid: %v", p.Errors)
	}
	wantDecimal(t, "current", *p.CurrentBalance, "1000")
	wantDecimal(t, "new", *p.NewBalance, "750")

	var n int64
	f.db.Model(&models.Transaction{}).Count(&n)
	if n != 1 {
		t.Errorf("preview stored a transaction: count = %d", n)
	}

	p, err = f.svc.Preview(context.Background(), f.actor.BusinessID, Request{Type: ledger.TypePayment, PaymentMethod: ledger.MethodCash, Amount: d("10")})
	if err != nil {
		t.Fatalf("Preview() error = %v", err)
	}
	if p.IsValid || p.Errors.Field(ledger.FieldAppliedToDebt) == nil {
		t.Errorf("preview without applied_to_debt = %+v, want applied_to_debt error", p.Result)
	}
}

func TestList(t *testing.T) {
	f := newFixture(t)
	f.create(t, Request{Type: ledger.TypeSale, PaymentMethod: ledger.MethodCredit, Amount: d("100"), Date: day(1)})
	f.create(t, Request{Type: ledger.TypeSale, PaymentMethod: ledger.MethodCash, Amount: d("200"), Date: day(2)})
	f.create(t, Request{Type: ledger.TypeCredit, Amount: d("50"), Date: day(3)})

	txs, total, err := f.svc.List(context.Background(), f.actor.BusinessID, Filter{Type: ledger.TypeSale})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if total != 2 || len(txs) != 2 {
		t.Fatalf("List(type=sale) = %d/%d, want 2", len(txs), total)
	}
	if !txs[0].Date.After(txs[1].Date) {
		t.Error("List() not newest first")
	}

	from, to := day(2), day(3)
	txs, _, err = f.svc.List(context.Background(), f.actor.BusinessID, Filter{From: &from, To: &to, Status: ledger.StatusPending})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(txs) != 1 || txs[0].Type != ledger.TypeCredit {
		t.Errorf("List(from, to, pending) = %+v, want the credit only", txs)
	}
}

func TestRecalculateAllRepairsDrift(t *testing.T) {
	f := newFixture(t)
	f.create(t, Request{Type: ledger.TypeSale, PaymentMethod: ledger.MethodCredit, Amount: d("1200")})

	f.db.Model(&models.Customer{}).Where("id = ?", f.customer.ID).Update("outstanding_balance", d("99"))

	drifts, err := f.svc.RecalculateAll(context.Background(), f.actor.BusinessID)
	if err != nil {
		t.Fatalf("RecalculateAll() error = %v", err)
	}
	if len(drifts) != 1 || drifts[0].CustomerID != f.customer.ID {
		t.Fatalf("drifts = %+v, want one for customer %d", drifts, f.customer.ID)
	}
	wantDecimal(t, "stored", drifts[0].Stored.OutstandingBalance, "99")
	wantDecimal(t, "outstanding", f.reload(t).OutstandingBalance, "1200")

	drifts, err = f.svc.RecalculateAll(context.Background(), 0)
	if err != nil || len(drifts) != 0 {
		t.Errorf("second RecalculateAll() = %v, %v; want no drift", drifts, err)
	}
}

func TestUndoThroughAudit(t *testing.T) {
	f := newFixture(t)
	auditSvc := audit.NewService(f.db)
	auditSvc.Register(models.EntityTransaction, f.svc)

	tx := f.create(t, Request{Type: ledger.TypeSale, PaymentMethod: ledger.MethodCredit, Amount: d("400")})
	if err := f.svc.Delete(context.Background(), f.actor, tx.ID); err != nil {
		t.Fatal(err)
	}
	wantDecimal(t, "outstanding after delete", f.reload(t).OutstandingBalance, "0")

	logs, err := auditSvc.List(context.Background(), f.actor.BusinessID, audit.Filter{EntityType: models.EntityTransaction})
	if err != nil || len(logs) != 2 {
		t.Fatalf("audit logs = %d, %v; want 2", len(logs), err)
	}
	if logs[0].Action != models.AuditActionDelete {
		t.Fatalf("latest log action = %q, want delete", logs[0].Action)
	}

	if err := auditSvc.Undo(context.Background(), f.actor, logs[0].ID); err != nil {
		t.Fatalf("Undo(delete) error = %v", err)
	}
	restored, err := f.svc.Get(context.Background(), f.actor.BusinessID, tx.ID)
	if err != nil {
		t.Fatalf("Get() after undo error = %v", err)
	}
	if restored.Reference != tx.Reference {
		t.Errorf("restored reference = %q, want %q", restored.Reference, tx.Reference)
	}
	wantDecimal(t, "outstanding after undo", f.reload(t).OutstandingBalance, "400")

	if err := auditSvc.Undo(context.Background(), f.actor, logs[0].ID); !errors.Is(err, audit.ErrAlreadyUndone) {
		t.Errorf("second Undo() err = %v, want ErrAlreadyUndone", err)
	}
}
