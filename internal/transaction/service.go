package transaction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"bizledger-backend/internal/apperr"
	"bizledger-backend/internal/audit"
	"bizledger-backend/internal/ledger"
	"bizledger-backend/internal/models"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Request is a new transaction. PaidAmount and RemainingAmount are
// optional; a mixed payment with only one of them gets the other
// derived from Amount.
type Request struct {
	CustomerID      uint
	Type            ledger.Type
	PaymentMethod   ledger.PaymentMethod
	Amount          decimal.Decimal
	PaidAmount      *decimal.Decimal
	RemainingAmount *decimal.Decimal
	AppliedToDebt   *bool
	DueDate         *time.Time
	Description     string
	Date            time.Time
}

// Patch is a partial edit; nil fields keep their stored value.
type Patch struct {
	Type            *ledger.Type
	PaymentMethod   *ledger.PaymentMethod
	Amount          *decimal.Decimal
	PaidAmount      *decimal.Decimal
	RemainingAmount *decimal.Decimal
	AppliedToDebt   *bool
	DueDate         *time.Time
	ClearDueDate    bool
	Description     *string
	Date            *time.Time
}

type Filter struct {
	CustomerID uint
	Type       ledger.Type
	Status     ledger.Status
	From       *time.Time
	To         *time.Time // inclusive day
	Limit      int
	Offset     int
}

// Preview is the calculator result for an unsaved transaction. The
// balances are set when the request names a customer.
type Preview struct {
	ledger.Result
	CurrentBalance *decimal.Decimal
	NewBalance     *decimal.Decimal
}

// StatementLine is one transaction with the running balance around it.
type StatementLine struct {
	Transaction models.Transaction
	Balance     ledger.Balance
}

type Statement struct {
	Customer models.Customer
	Lines    []StatementLine
}

// Drift reports a customer whose stored aggregate differed from the one
// derived from their history.
type Drift struct {
	CustomerID uint
	Name       string
	Stored     ledger.Aggregate
	Derived    ledger.Aggregate
}

type Service struct {
	db   *gorm.DB
	calc ledger.Calculator
	log  zerolog.Logger
}

func NewService(db *gorm.DB, calc ledger.Calculator, log zerolog.Logger) *Service {
	if calc == nil {
		calc = ledger.Default
	}
	return &Service{db: db, calc: calc, log: log}
}

// input applies request defaults and returns what the calculator sees.
func (r Request) input() ledger.Input {
	method := r.PaymentMethod
	if method == "" {
		switch r.Type {
		case ledger.TypeCredit:
			method = ledger.MethodCredit
		case ledger.TypeRefund:
			method = ledger.MethodCash
		}
	}

	in := ledger.Input{
		Type:          r.Type,
		PaymentMethod: method,
		Amount:        r.Amount,
		AppliedToDebt: r.AppliedToDebt,
	}
	if r.PaidAmount != nil {
		in.PaidAmount = *r.PaidAmount
	}
	if r.RemainingAmount != nil {
		in.RemainingAmount = *r.RemainingAmount
	}
	if method == ledger.MethodMixed {
		switch {
		case r.PaidAmount != nil && r.RemainingAmount == nil:
			in.RemainingAmount = r.Amount.Sub(*r.PaidAmount)
		case r.PaidAmount == nil && r.RemainingAmount != nil:
			in.PaidAmount = r.Amount.Sub(*r.RemainingAmount)
		}
	}
	return in
}

func (s *Service) Preview(ctx context.Context, businessID uint, req Request) (*Preview, error) {
	p := &Preview{Result: s.calc.Calculate(req.input())}
	if req.CustomerID == 0 {
		return p, nil
	}

	c, err := findCustomer(s.db.WithContext(ctx), businessID, req.CustomerID)
	if err != nil {
		return nil, err
	}
	current := c.OutstandingBalance
	p.CurrentBalance = &current
	if p.IsValid {
		next := current.Add(p.DebtImpact)
		p.NewBalance = &next
	}
	return p, nil
}

func (s *Service) Create(ctx context.Context, actor models.Actor, req Request) (*models.Transaction, error) {
	in := req.input()
	res := s.calc.Calculate(in)
	if !res.IsValid {
		return nil, res.Errors
	}

	date := req.Date
	if date.IsZero() {
		date = time.Now()
	}
	t := models.Transaction{
		BusinessID:    actor.BusinessID,
		CustomerID:    req.CustomerID,
		Description:   strings.TrimSpace(req.Description),
		DueDate:       req.DueDate,
		Date:          date,
		AppliedToDebt: appliedFor(in),
	}
	store(&t, in, res)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		c, err := lockCustomer(tx, actor.BusinessID, req.CustomerID)
		if err != nil {
			return err
		}
		if err := tx.Omit(clause.Associations).Create(&t).Error; err != nil {
			return fmt.Errorf("create transaction: %w", err)
		}
		if _, err := s.rederive(tx, c.ID, t.Type); err != nil {
			return err
		}
		return audit.Write(tx, actor, audit.LogOptions{
			EntityType:  models.EntityTransaction,
			EntityID:    t.ID,
			Action:      models.AuditActionCreate,
			Description: describe("recorded", t, c.Name),
			After:       t,
		})
	})
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Service) Get(ctx context.Context, businessID, id uint) (*models.Transaction, error) {
	return find(s.db.WithContext(ctx), businessID, id)
}

// List returns a page of transactions, newest first, plus the total
// matching count.
func (s *Service) List(ctx context.Context, businessID uint, f Filter) ([]models.Transaction, int64, error) {
	q := s.db.WithContext(ctx).Model(&models.Transaction{}).Where("business_id = ?", businessID)
	if f.CustomerID > 0 {
		q = q.Where("customer_id = ?", f.CustomerID)
	}
	if f.Type != "" {
		q = q.Where("type = ?", f.Type)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.From != nil {
		q = q.Where("date >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("date < ?", f.To.AddDate(0, 0, 1))
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count transactions: %w", err)
	}

	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var txs []models.Transaction
	err := q.Order("date DESC, id DESC").Limit(limit).Offset(max(f.Offset, 0)).Find(&txs).Error
	if err != nil {
		return nil, 0, fmt.Errorf("list transactions: %w", err)
	}
	return txs, total, nil
}

func (s *Service) Update(ctx context.Context, actor models.Actor, id uint, p Patch) (*models.Transaction, error) {
	var updated models.Transaction
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		t, err := findLocked(tx, actor.BusinessID, id)
		if err != nil {
			return err
		}
		if t.Status == ledger.StatusCancelled {
			return conflict("transaction is cancelled")
		}
		before := *t

		in := p.merge(*t)
		res := s.calc.Calculate(in)
		if !res.IsValid {
			return res.Errors
		}
		store(t, in, res)
		t.AppliedToDebt = appliedFor(in)
		if p.Description != nil {
			t.Description = strings.TrimSpace(*p.Description)
		}
		if p.Date != nil {
			t.Date = *p.Date
		}
		if p.ClearDueDate {
			t.DueDate = nil
		} else if p.DueDate != nil {
			t.DueDate = p.DueDate
		}

		if err := tx.Omit(clause.Associations).Save(t).Error; err != nil {
			return fmt.Errorf("update transaction: %w", err)
		}
		c, err := s.rederive(tx, t.CustomerID, t.Type)
		if err != nil {
			return err
		}
		updated = *t

		return audit.Write(tx, actor, audit.LogOptions{
			EntityType:  models.EntityTransaction,
			EntityID:    t.ID,
			Action:      models.AuditActionUpdate,
			Description: describe("edited", *t, c.Name),
			Before:      before,
			After:       *t,
		})
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// Cancel keeps the row for the history but drops its effect on every
// aggregate.
func (s *Service) Cancel(ctx context.Context, actor models.Actor, id uint) (*models.Transaction, error) {
	var cancelled models.Transaction
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		t, err := findLocked(tx, actor.BusinessID, id)
		if err != nil {
			return err
		}
		if t.Status == ledger.StatusCancelled {
			return conflict("transaction is already cancelled")
		}
		before := *t

		t.Status = ledger.StatusCancelled
		t.DebtImpact = decimal.Zero
		if err := tx.Model(t).Select("status", "debt_impact").Updates(t).Error; err != nil {
			return fmt.Errorf("cancel transaction: %w", err)
		}
		c, err := s.rederive(tx, t.CustomerID, "")
		if err != nil {
			return err
		}
		cancelled = *t

		return audit.Write(tx, actor, audit.LogOptions{
			EntityType:  models.EntityTransaction,
			EntityID:    t.ID,
			Action:      models.AuditActionUpdate,
			Description: describe("cancelled", *t, c.Name),
			Before:      before,
			After:       *t,
		})
	})
	if err != nil {
		return nil, err
	}
	return &cancelled, nil
}

func (s *Service) Delete(ctx context.Context, actor models.Actor, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		t, err := findLocked(tx, actor.BusinessID, id)
		if err != nil {
			return err
		}
		if err := tx.Delete(&models.Transaction{}, t.ID).Error; err != nil {
			return fmt.Errorf("delete transaction: %w", err)
		}
		c, err := s.rederive(tx, t.CustomerID, "")
		if err != nil {
			return err
		}
		return audit.Write(tx, actor, audit.LogOptions{
			EntityType:  models.EntityTransaction,
			EntityID:    t.ID,
			Action:      models.AuditActionDelete,
			Description: describe("deleted", *t, c.Name),
			Before:      *t,
		})
	})
}

// Statement returns the customer's history oldest first with the
// running balance after each row.
func (s *Service) Statement(ctx context.Context, businessID, customerID uint) (*Statement, error) {
	db := s.db.WithContext(ctx)
	c, err := findCustomer(db, businessID, customerID)
	if err != nil {
		return nil, err
	}
	txs, err := history(db, customerID)
	if err != nil {
		return nil, err
	}

	st := &Statement{Customer: *c, Lines: make([]StatementLine, 0, len(txs))}
	for i, b := range s.calc.RunningBalances(models.LedgerInputs(txs)) {
		st.Lines = append(st.Lines, StatementLine{Transaction: txs[i], Balance: b})
	}
	return st, nil
}

// Recalculate re-derives one customer's aggregate using db, which may be
// an open transaction. It does not enforce the non-negative balance
// rule, so historic data can always be repaired.
func (s *Service) Recalculate(ctx context.Context, db *gorm.DB, customerID uint) (*Drift, error) {
	if db == nil {
		db = s.db
	}

	var drift *Drift
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var c models.Customer
		if err := tx.Clauses(updateLock()).First(&c, customerID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("customer %d: %w", customerID, apperr.ErrNotFound)
			}
			return fmt.Errorf("load customer: %w", err)
		}
		stored := aggregateOf(c)

		derived, err := s.apply(tx, &c)
		if err != nil {
			return err
		}
		if !sameAggregate(stored, derived) {
			drift = &Drift{CustomerID: c.ID, Name: c.Name, Stored: stored, Derived: derived}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return drift, nil
}

// RecalculateAll repairs every customer of the business (or of every
// business when businessID is 0) and reports the ones that drifted.
func (s *Service) RecalculateAll(ctx context.Context, businessID uint) ([]Drift, error) {
	q := s.db.WithContext(ctx).Model(&models.Customer{})
	if businessID > 0 {
		q = q.Where("business_id = ?", businessID)
	}
	var ids []uint
	if err := q.Order("id").Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("list customers: %w", err)
	}

	var drifts []Drift
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return drifts, err
		}
		d, err := s.Recalculate(ctx, s.db, id)
		if err != nil {
			return drifts, err
		}
		if d != nil {
			s.log.Warn().
				Uint("customer_id", d.CustomerID).
				Str("stored_balance", d.Stored.OutstandingBalance.StringFixed(2)).
				Str("derived_balance", d.Derived.OutstandingBalance.StringFixed(2)).
				Msg("customer aggregate drifted")
			drifts = append(drifts, *d)
		}
	}
	return drifts, nil
}

// rederive recomputes the customer's aggregate inside a mutation and
// rejects the mutation if the balance would go negative. cause is the
// type of the transaction being written, if any, and picks the message.
// The customer row stays locked until tx ends, so concurrent mutations
// for one customer derive from each other's committed rows.
func (s *Service) rederive(tx *gorm.DB, customerID uint, cause ledger.Type) (*models.Customer, error) {
	var c models.Customer
	if err := tx.Clauses(updateLock()).First(&c, customerID).Error; err != nil {
		return nil, fmt.Errorf("load customer: %w", err)
	}
	agg, err := s.apply(tx, &c)
	if err != nil {
		return nil, err
	}
	if agg.OutstandingBalance.IsNegative() {
		if cause == ledger.TypeRefund {
			return nil, ledger.NewValidationError(ledger.FieldAmount, ledger.MsgRefundExceedsDebt)
		}
		return nil, ledger.NewValidationError(ledger.FieldAmount, ledger.MsgNegativeBalance)
	}
	return &c, nil
}

// apply derives c's aggregate from its history and stores it.
func (s *Service) apply(db *gorm.DB, c *models.Customer) (ledger.Aggregate, error) {
	txs, err := history(db, c.ID)
	if err != nil {
		return ledger.Aggregate{}, err
	}
	agg := s.calc.Summarize(models.LedgerInputs(txs))

	c.TotalSpent = agg.TotalSpent
	c.OutstandingBalance = agg.OutstandingBalance
	c.DepositBalance = agg.DepositBalance
	c.LastPurchase = lastPurchase(txs)

	err = db.Model(c).
		Select("total_spent", "outstanding_balance", "deposit_balance", "last_purchase").
		Updates(c).Error
	if err != nil {
		return ledger.Aggregate{}, fmt.Errorf("update customer totals: %w", err)
	}
	return agg, nil
}

func history(db *gorm.DB, customerID uint) ([]models.Transaction, error) {
	var txs []models.Transaction
	err := db.Where("customer_id = ?", customerID).Order("date ASC, id ASC").Find(&txs).Error
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	return txs, nil
}

func lastPurchase(txs []models.Transaction) *time.Time {
	var last *time.Time
	for i := range txs {
		t := txs[i]
		if t.Type != ledger.TypeSale || t.Status == ledger.StatusCancelled {
			continue
		}
		if last == nil || t.Date.After(*last) {
			d := t.Date
			last = &d
		}
	}
	return last
}

func aggregateOf(c models.Customer) ledger.Aggregate {
	return ledger.Aggregate{
		TotalSpent:         c.TotalSpent,
		OutstandingBalance: c.OutstandingBalance,
		DepositBalance:     c.DepositBalance,
	}
}

func sameAggregate(a, b ledger.Aggregate) bool {
	return a.TotalSpent.Equal(b.TotalSpent) &&
		a.OutstandingBalance.Equal(b.OutstandingBalance) &&
		a.DepositBalance.Equal(b.DepositBalance)
}

// store copies the validated input and its derived fields onto t. The
// split is only kept for mixed payments.
func store(t *models.Transaction, in ledger.Input, res ledger.Result) {
	t.Type = in.Type
	t.PaymentMethod = in.PaymentMethod
	t.Amount = in.Amount.Round(2)
	t.PaidAmount = decimal.Zero
	t.RemainingAmount = decimal.Zero
	if in.PaymentMethod == ledger.MethodMixed {
		t.PaidAmount = res.PaidNow
		t.RemainingAmount = res.Remaining
	}
	t.Status = res.Status
	t.DebtImpact = res.DebtImpact
}

func appliedFor(in ledger.Input) *bool {
	if in.Type != ledger.TypePayment {
		return nil
	}
	return in.AppliedToDebt
}

// merge overlays p on the stored row. For a mixed payment whose amount
// changes without a new split, the paid part is kept and the remainder
// follows the amount.
func (p Patch) merge(t models.Transaction) ledger.Input {
	in := t.LedgerInput()
	in.Cancelled = false
	if p.Type != nil {
		in.Type = *p.Type
	}
	if p.PaymentMethod != nil {
		in.PaymentMethod = *p.PaymentMethod
	}
	if p.Amount != nil {
		in.Amount = *p.Amount
	}
	if p.AppliedToDebt != nil {
		in.AppliedToDebt = p.AppliedToDebt
	}

	if in.PaymentMethod != ledger.MethodMixed {
		in.PaidAmount = decimal.Zero
		in.RemainingAmount = decimal.Zero
		if p.PaidAmount != nil {
			in.PaidAmount = *p.PaidAmount
		}
		return in
	}

	switch {
	case p.PaidAmount != nil && p.RemainingAmount != nil:
		in.PaidAmount, in.RemainingAmount = *p.PaidAmount, *p.RemainingAmount
	case p.PaidAmount != nil:
		in.PaidAmount = *p.PaidAmount
		in.RemainingAmount = in.Amount.Sub(in.PaidAmount)
	case p.RemainingAmount != nil:
		in.RemainingAmount = *p.RemainingAmount
		in.PaidAmount = in.Amount.Sub(in.RemainingAmount)
	case t.PaymentMethod != ledger.MethodMixed:
		// switching to mixed without a split: everything still owed
		in.RemainingAmount = in.Amount
	case p.Amount != nil:
		in.RemainingAmount = in.Amount.Sub(in.PaidAmount)
	}
	return in
}

func find(db *gorm.DB, businessID, id uint) (*models.Transaction, error) {
	var t models.Transaction
	err := db.Where("id = ? AND business_id = ?", id, businessID).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("transaction %d: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load transaction: %w", err)
	}
	return &t, nil
}

func findCustomer(db *gorm.DB, businessID, id uint) (*models.Customer, error) {
	var c models.Customer
	err := db.Where("id = ? AND business_id = ?", id, businessID).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("customer %d: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load customer: %w", err)
	}
	return &c, nil
}

// updateLock is SELECT ... FOR UPDATE on Postgres. The sqlite driver
// drops it; IMMEDIATE transactions serialise writers there instead.
func updateLock() clause.Locking {
	return clause.Locking{Strength: clause.LockingStrengthUpdate}
}

func lockCustomer(db *gorm.DB, businessID, id uint) (*models.Customer, error) {
	return findCustomer(db.Clauses(updateLock()), businessID, id)
}

// findLocked loads a transaction for a mutation. The owning customer is
// locked first and the row re-read, so checks like "already cancelled"
// see whatever a concurrent writer committed.
func findLocked(tx *gorm.DB, businessID, id uint) (*models.Transaction, error) {
	t, err := find(tx, businessID, id)
	if err != nil {
		return nil, err
	}
	if _, err := lockCustomer(tx, businessID, t.CustomerID); err != nil {
		return nil, err
	}
	return find(tx, businessID, id)
}

// describe builds the audit line, e.g. "sale recorded: 5000.00 (credit) for Ada".
func describe(verb string, t models.Transaction, customer string) string {
	return fmt.Sprintf("%s %s: %s (%s) for %s", t.Type, verb, t.Amount.StringFixed(2), t.PaymentMethod, customer)
}

func conflict(msg string) error {
	return fmt.Errorf("%s: %w", msg, apperr.ErrConflict)
}

// -------------------------
// Undo support
// -------------------------

var _ audit.Reverter = (*Service)(nil)

func (s *Service) RevertCreate(tx *gorm.DB, businessID, entityID uint) error {
	t, err := findLocked(tx, businessID, entityID)
	if err != nil {
		return err
	}
	if err := tx.Delete(&models.Transaction{}, t.ID).Error; err != nil {
		return err
	}
	_, err = s.rederive(tx, t.CustomerID, "")
	return err
}

func (s *Service) RevertUpdate(tx *gorm.DB, businessID, entityID uint, before []byte) error {
	var prev models.Transaction
	if err := json.Unmarshal(before, &prev); err != nil {
		return fmt.Errorf("decode transaction snapshot: %w", err)
	}
	t, err := findLocked(tx, businessID, entityID)
	if err != nil {
		return err
	}
	prev.ID = t.ID
	prev.BusinessID = t.BusinessID
	prev.CustomerID = t.CustomerID
	prev.Reference = t.Reference
	prev.CreatedAt = t.CreatedAt
	if err := tx.Omit(clause.Associations).Save(&prev).Error; err != nil {
		return err
	}
	_, err = s.rederive(tx, t.CustomerID, prev.Type)
	return err
}

func (s *Service) RevertDelete(tx *gorm.DB, businessID uint, before []byte) error {
	var prev models.Transaction
	if err := json.Unmarshal(before, &prev); err != nil {
		return fmt.Errorf("decode transaction snapshot: %w", err)
	}
	if prev.BusinessID != businessID {
		return apperr.ErrForbidden
	}
	if _, err := lockCustomer(tx, businessID, prev.CustomerID); err != nil {
		return err
	}
	if err := tx.Omit(clause.Associations).Create(&prev).Error; err != nil {
		return fmt.Errorf("recreate transaction: %w", err)
	}
	_, err := s.rederive(tx, prev.CustomerID, prev.Type)
	return err
}
