package customer

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"bizledger-backend/internal/auth"
	"bizledger-backend/internal/httpx"
	"bizledger-backend/internal/ledger"
	"bizledger-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// -------------------------
// Request/Response Types
// -------------------------

type CustomerRequest struct {
	Name             string `json:"name"`
	Phone            string `json:"phone"`
	Email            string `json:"email"`
	Address          string `json:"address"`
	Company          string `json:"company"`
	JobTitle         string `json:"job_title"`
	Nickname         string `json:"nickname"`
	PreferredContact string `json:"preferred_contact"` // phone | sms | whatsapp | email
}

type UpdateCustomerRequest struct {
	Name             *string `json:"name"`
	Phone            *string `json:"phone"`
	Email            *string `json:"email"`
	Address          *string `json:"address"`
	Company          *string `json:"company"`
	JobTitle         *string `json:"job_title"`
	Nickname         *string `json:"nickname"`
	PreferredContact *string `json:"preferred_contact"`
}

type ImportRequest struct {
	Contacts []Contact `json:"contacts"`
}

type CustomerResponse struct {
	ID                 uint    `json:"id"`
	Name               string  `json:"name"`
	Phone              string  `json:"phone"`
	Email              string  `json:"email"`
	Address            string  `json:"address"`
	Company            string  `json:"company"`
	JobTitle           string  `json:"job_title"`
	Nickname           string  `json:"nickname"`
	PreferredContact   string  `json:"preferred_contact"`
	Source             string  `json:"source"`
	TotalSpent         float64 `json:"total_spent"`
	OutstandingBalance float64 `json:"outstanding_balance"`
	DepositBalance     float64 `json:"deposit_balance"`
	LastPurchase       *string `json:"last_purchase"`
	CreatedAt          string  `json:"created_at"`
	UpdatedAt          string  `json:"updated_at"`
}

func ToResponse(c models.Customer) CustomerResponse {
	resp := CustomerResponse{
		ID:                 c.ID,
		Name:               c.Name,
		Phone:              c.Phone,
		Email:              c.Email,
		Address:            c.Address,
		Company:            c.Company,
		JobTitle:           c.JobTitle,
		Nickname:           c.Nickname,
		PreferredContact:   string(c.PreferredContact),
		Source:             string(c.Source),
		TotalSpent:         c.TotalSpent.InexactFloat64(),
		OutstandingBalance: c.OutstandingBalance.InexactFloat64(),
		DepositBalance:     c.DepositBalance.InexactFloat64(),
		CreatedAt:          c.CreatedAt.Format(time.RFC3339),
		UpdatedAt:          c.UpdatedAt.Format(time.RFC3339),
	}
	if c.LastPurchase != nil {
		d := c.LastPurchase.Format("2006-01-02")
		resp.LastPurchase = &d
	}
	return resp
}

func (r CustomerRequest) input() Input {
	return Input{
		Name:             r.Name,
		Phone:            r.Phone,
		Email:            r.Email,
		Address:          r.Address,
		Company:          r.Company,
		JobTitle:         r.JobTitle,
		Nickname:         r.Nickname,
		PreferredContact: models.ContactMethod(strings.TrimSpace(r.PreferredContact)),
	}
}

func (r UpdateCustomerRequest) patch() Patch {
	p := Patch{
		Name:     r.Name,
		Phone:    r.Phone,
		Email:    r.Email,
		Address:  r.Address,
		Company:  r.Company,
		JobTitle: r.JobTitle,
		Nickname: r.Nickname,
	}
	if r.PreferredContact != nil {
		m := models.ContactMethod(strings.TrimSpace(*r.PreferredContact))
		p.PreferredContact = &m
	}
	return p
}

// -------------------------
// Handlers
// -------------------------

// POST /api/customers
func CreateCustomerHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.CurrentActor(c)
		if err != nil {
			return err
		}
		var body CustomerRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}

		cust, err := svc.Create(c.UserContext(), actor, body.input())
		if err != nil {
			return httpx.Error(c, err, "could not create customer")
		}
		return c.Status(fiber.StatusCreated).JSON(ToResponse(*cust))
	}
}

// GET /api/customers?search=&has_debt=true&sort=name|balance|recent
func ListCustomersHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.CurrentActor(c)
		if err != nil {
			return err
		}

		sort := c.Query("sort", "name")
		switch sort {
		case "name", "balance", "recent":
		default:
			return fiber.NewError(fiber.StatusBadRequest, "sort must be name, balance or recent")
		}

		customers, total, err := svc.List(c.UserContext(), actor.BusinessID, ListFilter{
			Search:  c.Query("search"),
			HasDebt: c.QueryBool("has_debt"),
			Sort:    sort,
			Limit:   c.QueryInt("limit"),
			Offset:  c.QueryInt("offset"),
		})
		if err != nil {
			return httpx.Error(c, err, "could not list customers")
		}

		items := make([]CustomerResponse, 0, len(customers))
		for _, cust := range customers {
			items = append(items, ToResponse(cust))
		}
		return c.JSON(fiber.Map{
			"items": items,
			"total": total,
		})
	}
}

// GET /api/customers/:id
func GetCustomerHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.CurrentActor(c)
		if err != nil {
			return err
		}
		id, err := httpx.ParamID(c, "id")
		if err != nil {
			return err
		}

		cust, err := svc.Get(c.UserContext(), actor.BusinessID, id)
		if err != nil {
			return httpx.Error(c, err, "could not load customer")
		}
		return c.JSON(ToResponse(*cust))
	}
}

// PUT /api/customers/:id
func UpdateCustomerHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.CurrentActor(c)
		if err != nil {
			return err
		}
		id, err := httpx.ParamID(c, "id")
		if err != nil {
			return err
		}
		var body UpdateCustomerRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}

		cust, err := svc.Update(c.UserContext(), actor, id, body.patch())
		if err != nil {
			return httpx.Error(c, err, "could not update customer")
		}
		return c.JSON(ToResponse(*cust))
	}
}

// DELETE /api/customers/:id
// Removes the customer together with their transactions.
func DeleteCustomerHandler(svc *Service) fiber.Handler {
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
			return httpx.Error(c, err, "could not delete customer")
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// POST /api/customers/import
// Accepts either {"contacts":[...]} or a multipart .xlsx upload in "file".
func ImportCustomersHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.CurrentActor(c)
		if err != nil {
			return err
		}

		var contacts []Contact
		if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
			fileHeader, err := c.FormFile("file")
			if err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "file is required")
			}
			if !strings.HasSuffix(strings.ToLower(fileHeader.Filename), ".xlsx") {
				return fiber.NewError(fiber.StatusBadRequest, "only .xlsx files can be imported")
			}
			file, err := fileHeader.Open()
			if err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "could not open upload")
			}
			defer file.Close()

			contacts, err = ParseContactsXLSX(file)
			var verr *ledger.ValidationError
			if errors.As(err, &verr) {
				return httpx.Error(c, err, "")
			}
			if err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "could not read spreadsheet: "+err.Error())
			}
		} else {
			var body ImportRequest
			if err := c.BodyParser(&body); err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
			}
			contacts = body.Contacts
		}

		if len(contacts) == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "no contacts to import")
		}

		res, err := svc.Import(c.UserContext(), actor, contacts)
		if err != nil {
			return httpx.Error(c, err, "could not import contacts")
		}
		return c.JSON(res)
	}
}

// GET /api/customers/export
func ExportCustomersHandler(svc *Service, db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.CurrentActor(c)
		if err != nil {
			return err
		}

		var biz models.Business
		if err := db.WithContext(c.UserContext()).First(&biz, actor.BusinessID).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "could not load business")
		}
		customers, err := svc.AllForExport(c.UserContext(), actor.BusinessID)
		if err != nil {
			return httpx.Error(c, err, "could not export customers")
		}

		var buf bytes.Buffer
		if err := WriteXLSX(&buf, customers, biz.Currency); err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "could not build spreadsheet")
		}

		c.Set(fiber.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		c.Set(fiber.HeaderContentDisposition,
			fmt.Sprintf("attachment; filename=\"customers_%s.xlsx\"", time.Now().Format("20060102")))
		return c.Send(buf.Bytes())
	}
}
