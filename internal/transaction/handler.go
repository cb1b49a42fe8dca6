package transaction

import (
	"strings"
	"time"

	"bizledger-backend/internal/auth"
	"bizledger-backend/internal/httpx"
	"bizledger-backend/internal/ledger"
	"bizledger-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

// -------------------------
// Request/Response Types
// -------------------------

type CreateTransactionRequest struct {
	CustomerID      uint     `json:"customer_id"`
	Type            string   `json:"type"`           // sale | payment | credit | refund
	PaymentMethod   string   `json:"payment_method"` // cash | bank_transfer | pos_card | credit | mixed
	Amount          float64  `json:"amount"`
	PaidAmount      *float64 `json:"paid_amount"`      // mixed
	RemainingAmount *float64 `json:"remaining_amount"` // mixed
	AppliedToDebt   *bool    `json:"applied_to_debt"`  // payment
	DueDate         string   `json:"due_date"`         // "2025-12-09"
	Description     string   `json:"description"`
	Date            string   `json:"date"` // "2025-12-09", defaults to now
}

type UpdateTransactionRequest struct {
	Type            *string  `json:"type"`
	PaymentMethod   *string  `json:"payment_method"`
	Amount          *float64 `json:"amount"`
	PaidAmount      *float64 `json:"paid_amount"`
	RemainingAmount *float64 `json:"remaining_amount"`
	AppliedToDebt   *bool    `json:"applied_to_debt"`
	DueDate         *string  `json:"due_date"` // "" clears it
	Description     *string  `json:"description"`
	Date            *string  `json:"date"`
}

type TransactionResponse struct {
	ID              uint    `json:"id"`
	Reference       string  `json:"reference"`
	CustomerID      uint    `json:"customer_id"`
	Type            string  `json:"type"`
	PaymentMethod   string  `json:"payment_method"`
	Amount          float64 `json:"amount"`
	PaidAmount      float64 `json:"paid_amount"`
	RemainingAmount float64 `json:"remaining_amount"`
	AppliedToDebt   *bool   `json:"applied_to_debt"`
	Status          string  `json:"status"`
	DebtImpact      float64 `json:"debt_impact"`
	DueDate         *string `json:"due_date"`
	Description     string  `json:"description"`
	Date            string  `json:"date"`
	CreatedAt       string  `json:"created_at"`
	UpdatedAt       string  `json:"updated_at"`
}

type PreviewResponse struct {
	IsValid        bool                    `json:"is_valid"`
	Errors         ledger.ValidationErrors `json:"errors"`
	Status         string                  `json:"status"`
	DebtImpact     float64                 `json:"debt_impact"`
	PaidNow        float64                 `json:"paid_now"`
	Remaining      float64                 `json:"remaining"`
	CurrentBalance *float64                `json:"current_balance,omitempty"`
	NewBalance     *float64                `json:"new_balance,omitempty"`
}

type StatementLineResponse struct {
	TransactionResponse
	BalanceBefore float64 `json:"balance_before"`
	BalanceAfter  float64 `json:"balance_after"`
}

type StatementResponse struct {
	CustomerID         uint                    `json:"customer_id"`
	CustomerName       string                  `json:"customer_name"`
	OutstandingBalance float64                 `json:"outstanding_balance"`
	TotalSpent         float64                 `json:"total_spent"`
	DepositBalance     float64                 `json:"deposit_balance"`
	Lines              []StatementLineResponse `json:"lines"`
}

const dateLayout = "2006-01-02"

func ToResponse(t models.Transaction) TransactionResponse {
	resp := TransactionResponse{
		ID:              t.ID,
		Reference:       t.Reference,
		CustomerID:      t.CustomerID,
		Type:            string(t.Type),
		PaymentMethod:   string(t.PaymentMethod),
		Amount:          t.Amount.InexactFloat64(),
		PaidAmount:      t.PaidAmount.InexactFloat64(),
		RemainingAmount: t.RemainingAmount.InexactFloat64(),
		AppliedToDebt:   t.AppliedToDebt,
		Status:          string(t.Status),
		DebtImpact:      t.DebtImpact.InexactFloat64(),
		Description:     t.Description,
		Date:            t.Date.Format(dateLayout),
		CreatedAt:       t.CreatedAt.Format(time.RFC3339),
		UpdatedAt:       t.UpdatedAt.Format(time.RFC3339),
	}
	if t.DueDate != nil {
		d := t.DueDate.Format(dateLayout)
		resp.DueDate = &d
	}
	return resp
}

// -------------------------
// Parsing
// -------------------------

// parseDate accepts a plain day or a full RFC3339 timestamp.
func parseDate(field, v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if t, err := time.ParseInLocation(dateLayout, v, time.Local); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.Time{}, ledger.NewValidationError(field, "must be a date like 2025-12-09")
}

func money(field string, v float64) (decimal.Decimal, error) {
	d, ok := ledger.Money(v)
	if !ok {
		return decimal.Zero, ledger.NewValidationError(field, ledger.MsgAmountPositive)
	}
	return d, nil
}

func moneyPtr(field string, v *float64) (*decimal.Decimal, error) {
	if v == nil {
		return nil, nil
	}
	d, err := money(field, *v)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (body CreateTransactionRequest) toRequest() (Request, error) {
	req := Request{
		CustomerID:    body.CustomerID,
		Type:          ledger.Type(strings.TrimSpace(body.Type)),
		PaymentMethod: ledger.PaymentMethod(strings.TrimSpace(body.PaymentMethod)),
		AppliedToDebt: body.AppliedToDebt,
		Description:   body.Description,
	}

	var err error
	if req.Amount, err = money(ledger.FieldAmount, body.Amount); err != nil {
		return req, err
	}
	if req.PaidAmount, err = moneyPtr(ledger.FieldPaidAmount, body.PaidAmount); err != nil {
		return req, err
	}
	if req.RemainingAmount, err = moneyPtr(ledger.FieldRemainingAmount, body.RemainingAmount); err != nil {
		return req, err
	}
	if body.Date != "" {
		if req.Date, err = parseDate("date", body.Date); err != nil {
			return req, err
		}
	}
	if body.DueDate != "" {
		due, err := parseDate("due_date", body.DueDate)
		if err != nil {
			return req, err
		}
		req.DueDate = &due
	}
	return req, nil
}

func (body UpdateTransactionRequest) toPatch() (Patch, error) {
	var p Patch
	if body.Type != nil {
		t := ledger.Type(strings.TrimSpace(*body.Type))
		p.Type = &t
	}
	if body.PaymentMethod != nil {
		m := ledger.PaymentMethod(strings.TrimSpace(*body.PaymentMethod))
		p.PaymentMethod = &m
	}

	var err error
	if p.Amount, err = moneyPtr(ledger.FieldAmount, body.Amount); err != nil {
		return p, err
	}
	if p.PaidAmount, err = moneyPtr(ledger.FieldPaidAmount, body.PaidAmount); err != nil {
		return p, err
	}
	if p.RemainingAmount, err = moneyPtr(ledger.FieldRemainingAmount, body.RemainingAmount); err != nil {
		return p, err
	}
	p.AppliedToDebt = body.AppliedToDebt
	p.Description = body.Description

	if body.Date != nil {
		d, err := parseDate("date", *body.Date)
		if err != nil {
			return p, err
		}
		p.Date = &d
	}
	if body.DueDate != nil {
		if strings.TrimSpace(*body.DueDate) == "" {
			p.ClearDueDate = true
		} else {
			d, err := parseDate("due_date", *body.DueDate)
			if err != nil {
				return p, err
			}
			p.DueDate = &d
		}
	}
	return p, nil
}

func parseFilter(c *fiber.Ctx) (Filter, error) {
	f := Filter{
		CustomerID: uint(max(c.QueryInt("customer_id"), 0)),
		Type:       ledger.Type(c.Query("type")),
		Status:     ledger.Status(c.Query("status")),
		Limit:      c.QueryInt("limit"),
		Offset:     c.QueryInt("offset"),
	}
	if f.Type != "" && !f.Type.Valid() {
		return f, fiber.NewError(fiber.StatusBadRequest, "invalid type")
	}
	if f.Status != "" && !f.Status.Valid() {
		return f, fiber.NewError(fiber.StatusBadRequest, "invalid status")
	}
	if v := c.Query("from"); v != "" {
		d, err := time.ParseInLocation(dateLayout, v, time.Local)
		if err != nil {
			return f, fiber.NewError(fiber.StatusBadRequest, "from must be YYYY-MM-DD")
		}
		f.From = &d
	}
	if v := c.Query("to"); v != "" {
		d, err := time.ParseInLocation(dateLayout, v, time.Local)
		if err != nil {
			return f, fiber.NewError(fiber.StatusBadRequest, "to must be YYYY-MM-DD")
		}
		f.To = &d
	}
	return f, nil
}

// -------------------------
// Handlers
// -------------------------

// POST /api/transactions/preview
// Runs the calculator without saving; invalid input is a normal 200
// response with is_valid=false.
func PreviewHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.CurrentActor(c)
		if err != nil {
			return err
		}
		var body CreateTransactionRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		req, err := body.toRequest()
		if err != nil {
			return httpx.Error(c, err, "could not preview transaction")
		}

		p, err := svc.Preview(c.UserContext(), actor.BusinessID, req)
		if err != nil {
			return httpx.Error(c, err, "could not preview transaction")
		}

		resp := PreviewResponse{
			IsValid:    p.IsValid,
			Errors:     p.Errors,
			Status:     string(p.Status),
			DebtImpact: p.DebtImpact.InexactFloat64(),
			PaidNow:    p.PaidNow.InexactFloat64(),
			Remaining:  p.Remaining.InexactFloat64(),
		}
		if resp.Errors == nil {
			resp.Errors = ledger.ValidationErrors{}
		}
		if p.CurrentBalance != nil {
			v := p.CurrentBalance.InexactFloat64()
			resp.CurrentBalance = &v
		}
		if p.NewBalance != nil {
			v := p.NewBalance.InexactFloat64()
			resp.NewBalance = &v
		}
		return c.JSON(resp)
	}
}

// POST /api/transactions
func CreateTransactionHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.CurrentActor(c)
		if err != nil {
			return err
		}
		var body CreateTransactionRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		if body.CustomerID == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "customer_id is required")
		}
		req, err := body.toRequest()
		if err != nil {
			return httpx.Error(c, err, "could not record transaction")
		}

		t, err := svc.Create(c.UserContext(), actor, req)
		if err != nil {
			return httpx.Error(c, err, "could not record transaction")
		}
		return c.Status(fiber.StatusCreated).JSON(ToResponse(*t))
	}
}

// GET /api/transactions?customer_id=&type=&status=&from=&to=
func ListTransactionsHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.CurrentActor(c)
		if err != nil {
			return err
		}
		f, err := parseFilter(c)
		if err != nil {
			return err
		}

		txs, total, err := svc.List(c.UserContext(), actor.BusinessID, f)
		if err != nil {
			return httpx.Error(c, err, "could not list transactions")
		}

		items := make([]TransactionResponse, 0, len(txs))
		for _, t := range txs {
			items = append(items, ToResponse(t))
		}
		return c.JSON(fiber.Map{
			"items": items,
			"total": total,
		})
	}
}

// GET /api/transactions/:id
func GetTransactionHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.CurrentActor(c)
		if err != nil {
			return err
		}
		id, err := httpx.ParamID(c, "id")
		if err != nil {
			return err
		}

		t, err := svc.Get(c.UserContext(), actor.BusinessID, id)
		if err != nil {
			return httpx.Error(c, err, "could not load transaction")
		}
		return c.JSON(ToResponse(*t))
	}
}

// PUT /api/transactions/:id
func UpdateTransactionHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.CurrentActor(c)
		if err != nil {
			return err
		}
		id, err := httpx.ParamID(c, "id")
		if err != nil {
			return err
		}
		var body UpdateTransactionRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		p, err := body.toPatch()
		if err != nil {
			return httpx.Error(c, err, "could not update transaction")
		}

		t, err := svc.Update(c.UserContext(), actor, id, p)
		if err != nil {
			return httpx.Error(c, err, "could not update transaction")
		}
		return c.JSON(ToResponse(*t))
	}
}

// POST /api/transactions/:id/cancel
func CancelTransactionHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.CurrentActor(c)
		if err != nil {
			return err
		}
		id, err := httpx.ParamID(c, "id")
		if err != nil {
			return err
		}

		t, err := svc.Cancel(c.UserContext(), actor, id)
		if err != nil {
			return httpx.Error(c, err, "could not cancel transaction")
		}
		return c.JSON(ToResponse(*t))
	}
}

// DELETE /api/transactions/:id
func DeleteTransactionHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.CurrentActor(c)
		if err != nil {
			return err
		}
		id, err := httpx.ParamID(c, "id")
		if err != nil {
			return err
		}

		if err := svc.Delete(c.UserContext(), actor, id); err != nil {
			return httpx.Error(c, err, "could not delete transaction")
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// GET /api/customers/:id/statement
func StatementHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.CurrentActor(c)
		if err != nil {
			return err
		}
		id, err := httpx.ParamID(c, "id")
		if err != nil {
			return err
		}

		st, err := svc.Statement(c.UserContext(), actor.BusinessID, id)
		if err != nil {
			return httpx.Error(c, err, "could not build statement")
		}

		resp := StatementResponse{
			CustomerID:         st.Customer.ID,
			CustomerName:       st.Customer.Name,
			OutstandingBalance: st.Customer.OutstandingBalance.InexactFloat64(),
			TotalSpent:         st.Customer.TotalSpent.InexactFloat64(),
			DepositBalance:     st.Customer.DepositBalance.InexactFloat64(),
			Lines:              make([]StatementLineResponse, 0, len(st.Lines)),
		}
		for _, l := range st.Lines {
			resp.Lines = append(resp.Lines, StatementLineResponse{
				TransactionResponse: ToResponse(l.Transaction),
				BalanceBefore:       l.Balance.Before.InexactFloat64(),
				BalanceAfter:        l.Balance.After.InexactFloat64(),
			})
		}
		return c.JSON(resp)
	}
}
