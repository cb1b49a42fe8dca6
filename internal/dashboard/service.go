package dashboard

import (
	"context"
	"fmt"
	"time"

	"bizledger-backend/internal/ledger"
	"bizledger-backend/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Period string

const (
	PeriodDaily   Period = "daily"
	PeriodWeekly  Period = "weekly"
	PeriodMonthly Period = "monthly"
)

// DefaultCount is the number of buckets shown when none is asked for.
func (p Period) DefaultCount() int {
	switch p {
	case PeriodWeekly:
		return 8
	case PeriodMonthly:
		return 12
	}
	return 7
}

func (p Period) Valid() bool {
	return p == PeriodDaily || p == PeriodWeekly || p == PeriodMonthly
}

const maxBuckets = 366

// Bucket is one point of the sales chart. ByMethod always has an entry
// for every payment method.
type Bucket struct {
	Start     time.Time
	ByMethod  map[ledger.PaymentMethod]decimal.Decimal
	Total     decimal.Decimal
	Collected decimal.Decimal // paid at the time of sale
	OnCredit  decimal.Decimal // left owing
}

type SalesChart struct {
	Period  Period
	From    time.Time
	To      time.Time // exclusive
	Buckets []Bucket
	Totals  Bucket
}

type Debtor struct {
	ID                 uint
	Name               string
	Phone              string
	OutstandingBalance decimal.Decimal
}

type Summary struct {
	Customers        int64
	Debtors          int64
	TotalOutstanding decimal.Decimal
	MonthSales       decimal.Decimal
	MonthPayments    decimal.Decimal
	TopDebtors       []Debtor
}

type Service struct {
	db   *gorm.DB
	calc ledger.Calculator
}

func NewService(db *gorm.DB, calc ledger.Calculator) *Service {
	if calc == nil {
		calc = ledger.Default
	}
	return &Service{db: db, calc: calc}
}

// bucketStart truncates t to the start of its day, ISO week (Monday) or
// month.
func bucketStart(t time.Time, p Period) time.Time {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	switch p {
	case PeriodWeekly:
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	case PeriodMonthly:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	}
	return day
}

func next(t time.Time, p Period) time.Time {
	switch p {
	case PeriodWeekly:
		return t.AddDate(0, 0, 7)
	case PeriodMonthly:
		return t.AddDate(0, 1, 0)
	}
	return t.AddDate(0, 0, 1)
}

func newBucket(start time.Time) Bucket {
	b := Bucket{
		Start:     start,
		ByMethod:  make(map[ledger.PaymentMethod]decimal.Decimal, len(ledger.Methods)),
		Total:     decimal.Zero,
		Collected: decimal.Zero,
		OnCredit:  decimal.Zero,
	}
	for _, m := range ledger.Methods {
		b.ByMethod[m] = decimal.Zero
	}
	return b
}

func (b *Bucket) add(t models.Transaction, res ledger.Result) {
	b.ByMethod[t.PaymentMethod] = b.ByMethod[t.PaymentMethod].Add(t.Amount)
	b.Total = b.Total.Add(t.Amount)
	b.Collected = b.Collected.Add(res.PaidNow)
	b.OnCredit = b.OnCredit.Add(res.Remaining)
}

// SalesChart totals non-cancelled sales into count buckets ending with
// the one containing now. Bucketing happens here rather than in SQL so
// the same code runs on SQLite and PostgreSQL.
func (s *Service) SalesChart(ctx context.Context, businessID uint, p Period, count int, now time.Time) (*SalesChart, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("unknown period %q", p)
	}
	if count <= 0 {
		count = p.DefaultCount()
	}
	count = min(count, maxBuckets)

	last := bucketStart(now, p)
	var first time.Time
	switch p {
	case PeriodWeekly:
		first = last.AddDate(0, 0, -7*(count-1))
	case PeriodMonthly:
		first = last.AddDate(0, -(count - 1), 0)
	default:
		first = last.AddDate(0, 0, -(count - 1))
	}
	end := next(last, p)

	var sales []models.Transaction
	err := s.db.WithContext(ctx).
		Where("business_id = ? AND type = ? AND status <> ? AND date >= ? AND date < ?",
			businessID, ledger.TypeSale, ledger.StatusCancelled, first, end).
		Order("date ASC").
		Find(&sales).Error
	if err != nil {
		return nil, fmt.Errorf("load sales: %w", err)
	}

	chart := &SalesChart{Period: p, From: first, To: end, Totals: newBucket(first)}
	index := make(map[time.Time]int, count)
	for start := first; start.Before(end); start = next(start, p) {
		index[start] = len(chart.Buckets)
		chart.Buckets = append(chart.Buckets, newBucket(start))
	}

	for _, t := range sales {
		i, ok := index[bucketStart(t.Date.In(now.Location()), p)]
		if !ok {
			continue
		}
		res := s.calc.Calculate(t.LedgerInput())
		chart.Buckets[i].add(t, res)
		chart.Totals.add(t, res)
	}
	return chart, nil
}

func (s *Service) Summary(ctx context.Context, businessID uint, now time.Time) (*Summary, error) {
	db := s.db.WithContext(ctx)
	sum := &Summary{TotalOutstanding: decimal.Zero, MonthSales: decimal.Zero, MonthPayments: decimal.Zero}

	customers := db.Model(&models.Customer{}).Where("business_id = ?", businessID)
	if err := customers.Count(&sum.Customers).Error; err != nil {
		return nil, fmt.Errorf("count customers: %w", err)
	}

	var debtors []models.Customer
	err := db.Where("business_id = ? AND outstanding_balance > 0", businessID).
		Order("outstanding_balance DESC, name ASC").
		Find(&debtors).Error
	if err != nil {
		return nil, fmt.Errorf("load debtors: %w", err)
	}
	sum.Debtors = int64(len(debtors))
	for i, c := range debtors {
		sum.TotalOutstanding = sum.TotalOutstanding.Add(c.OutstandingBalance)
		if i < 5 {
			sum.TopDebtors = append(sum.TopDebtors, Debtor{
				ID:                 c.ID,
				Name:               c.Name,
				Phone:              c.Phone,
				OutstandingBalance: c.OutstandingBalance,
			})
		}
	}

	monthStart := bucketStart(now, PeriodMonthly)
	var txs []models.Transaction
	err = db.Select("type", "amount").
		Where("business_id = ? AND status <> ? AND type IN ? AND date >= ? AND date < ?",
			businessID, ledger.StatusCancelled, []ledger.Type{ledger.TypeSale, ledger.TypePayment},
			monthStart, monthStart.AddDate(0, 1, 0)).
		Find(&txs).Error
	if err != nil {
		return nil, fmt.Errorf("load month transactions: %w", err)
	}
	for _, t := range txs {
		switch t.Type {
		case ledger.TypeSale:
			sum.MonthSales = sum.MonthSales.Add(t.Amount)
		case ledger.TypePayment:
			sum.MonthPayments = sum.MonthPayments.Add(t.Amount)
		}
	}
	return sum, nil
}
