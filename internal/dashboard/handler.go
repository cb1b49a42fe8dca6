package dashboard

import (
	"time"

	"bizledger-backend/internal/auth"
	"bizledger-backend/internal/httpx"
	"bizledger-backend/internal/ledger"

	"github.com/gofiber/fiber/v2"
)

type SalesChartPoint struct {
	Label        string  `json:"label"` // bucket start date
	Cash         float64 `json:"cash"`
	BankTransfer float64 `json:"bank_transfer"`
	POSCard      float64 `json:"pos_card"`
	Credit       float64 `json:"credit"`
	Mixed        float64 `json:"mixed"`
	Total        float64 `json:"total"`
	Collected    float64 `json:"collected"`
	OnCredit     float64 `json:"on_credit"`
}

type SalesChartResponse struct {
	Period      string            `json:"period"` // daily | weekly | monthly
	From        string            `json:"from"`
	To          string            `json:"to"` // last day included
	Points      []SalesChartPoint `json:"points"`
	GrandTotals SalesChartPoint   `json:"grand_totals"`
}

type DebtorResponse struct {
	ID                 uint    `json:"id"`
	Name               string  `json:"name"`
	Phone              string  `json:"phone"`
	OutstandingBalance float64 `json:"outstanding_balance"`
}

type SummaryResponse struct {
	Customers        int64            `json:"customers"`
	Debtors          int64            `json:"debtors"`
	TotalOutstanding float64          `json:"total_outstanding"`
	MonthSales       float64          `json:"month_sales"`
	MonthPayments    float64          `json:"month_payments"`
	TopDebtors       []DebtorResponse `json:"top_debtors"`
}

func point(b Bucket) SalesChartPoint {
	return SalesChartPoint{
		Label:        b.Start.Format("2006-01-02"),
		Cash:         b.ByMethod[ledger.MethodCash].InexactFloat64(),
		BankTransfer: b.ByMethod[ledger.MethodBankTransfer].InexactFloat64(),
		POSCard:      b.ByMethod[ledger.MethodPOSCard].InexactFloat64(),
		Credit:       b.ByMethod[ledger.MethodCredit].InexactFloat64(),
		Mixed:        b.ByMethod[ledger.MethodMixed].InexactFloat64(),
		Total:        b.Total.InexactFloat64(),
		Collected:    b.Collected.InexactFloat64(),
		OnCredit:     b.OnCredit.InexactFloat64(),
	}
}

// GET /api/dashboard/sales-chart?period=daily&count=7
func SalesChartHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.CurrentActor(c)
		if err != nil {
			return err
		}

		period := Period(c.Query("period", string(PeriodDaily)))
		if !period.Valid() {
			return fiber.NewError(fiber.StatusBadRequest, "period must be daily, weekly or monthly")
		}
		count := period.DefaultCount()
		if c.Query("count") != "" {
			count = c.QueryInt("count")
			if count <= 0 || count > maxBuckets {
				return fiber.NewError(fiber.StatusBadRequest, "invalid count")
			}
		}

		chart, err := svc.SalesChart(c.UserContext(), actor.BusinessID, period, count, time.Now())
		if err != nil {
			return httpx.Error(c, err, "could not build sales chart")
		}

		resp := SalesChartResponse{
			Period:      string(chart.Period),
			From:        chart.From.Format("2006-01-02"),
			To:          chart.To.AddDate(0, 0, -1).Format("2006-01-02"),
			Points:      make([]SalesChartPoint, 0, len(chart.Buckets)),
			GrandTotals: point(chart.Totals),
		}
		resp.GrandTotals.Label = ""
		for _, b := range chart.Buckets {
			resp.Points = append(resp.Points, point(b))
		}
		return c.JSON(resp)
	}
}

// GET /api/dashboard/summary
func SummaryHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.CurrentActor(c)
		if err != nil {
			return err
		}

		sum, err := svc.Summary(c.UserContext(), actor.BusinessID, time.Now())
		if err != nil {
			return httpx.Error(c, err, "could not build summary")
		}

		resp := SummaryResponse{
			Customers:        sum.Customers,
			Debtors:          sum.Debtors,
			TotalOutstanding: sum.TotalOutstanding.InexactFloat64(),
			MonthSales:       sum.MonthSales.InexactFloat64(),
			MonthPayments:    sum.MonthPayments.InexactFloat64(),
			TopDebtors:       make([]DebtorResponse, 0, len(sum.TopDebtors)),
		}
		for _, d := range sum.TopDebtors {
			resp.TopDebtors = append(resp.TopDebtors, DebtorResponse{
				ID:                 d.ID,
				Name:               d.Name,
				Phone:              d.Phone,
				OutstandingBalance: d.OutstandingBalance.InexactFloat64(),
			})
		}
		return c.JSON(resp)
	}
}
