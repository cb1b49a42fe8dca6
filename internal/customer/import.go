package customer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"bizledger-backend/internal/audit"
	"bizledger-backend/internal/ledger"
	"bizledger-backend/internal/models"

	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

// Contact is one entry from a phone's address book or a spreadsheet row.
type Contact struct {
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Email    string `json:"email"`
	Company  string `json:"company"`
	JobTitle string `json:"job_title"`
	Nickname string `json:"nickname"`
	Address  string `json:"address"`
}

type ImportError struct {
	Row     int    `json:"row"` // 1-based position in the input
	Name    string `json:"name"`
	Message string `json:"message"`
}

type ImportResult struct {
	Created int           `json:"created"`
	Skipped int           `json:"skipped"`
	Errors  []ImportError `json:"errors"`
}

// MaxImport caps one import request.
const MaxImport = 5000

// Import adds every contact whose normalised phone is new to the
// business. Known phones are skipped; invalid contacts are reported and
// do not stop the rest.
func (s *Service) Import(ctx context.Context, actor models.Actor, contacts []Contact) (*ImportResult, error) {
	if len(contacts) > MaxImport {
		return nil, ledger.NewValidationError("contacts", fmt.Sprintf("at most %d contacts per import", MaxImport))
	}
	res := &ImportResult{Errors: []ImportError{}}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var phones []string
		if err := tx.Model(&models.Customer{}).Where("business_id = ?", actor.BusinessID).Pluck("phone", &phones).Error; err != nil {
			return fmt.Errorf("load phones: %w", err)
		}
		seen := make(map[string]bool, len(phones)+len(contacts))
		for _, p := range phones {
			seen[p] = true
		}

		for i, ct := range contacts {
			c := models.Customer{BusinessID: actor.BusinessID, Source: models.SourceImport}
			err := apply(&c, Input{
				Name:     ct.Name,
				Phone:    ct.Phone,
				Email:    ct.Email,
				Address:  ct.Address,
				Company:  ct.Company,
				JobTitle: ct.JobTitle,
				Nickname: ct.Nickname,
			})
			if err != nil {
				res.Errors = append(res.Errors, ImportError{Row: i + 1, Name: ct.Name, Message: err.Error()})
				continue
			}
			if seen[c.Phone] {
				res.Skipped++
				continue
			}
			seen[c.Phone] = true

			if err := tx.Create(&c).Error; err != nil {
				return fmt.Errorf("import contact %d: %w", i+1, err)
			}
			if err := audit.Write(tx, actor, audit.LogOptions{
				EntityType:  models.EntityCustomer,
				EntityID:    c.ID,
				Action:      models.AuditActionCreate,
				Description: fmt.Sprintf("Customer imported: %s", c.Name),
				After:       c,
			}); err != nil {
				return err
			}
			res.Created++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

var errEmptySheet = errors.New("spreadsheet has no rows")

// header aliases, lower-cased
var columnAliases = map[string][]string{
	"name":      {"name", "full name", "customer", "customer name"},
	"phone":     {"phone", "phone number", "mobile", "telephone", "tel"},
	"email":     {"email", "e-mail", "email address"},
	"company":   {"company", "organization", "organisation", "business"},
	"job_title": {"job title", "title", "position"},
	"nickname":  {"nickname", "nick"},
	"address":   {"address", "location"},
}

// ParseContactsXLSX reads contacts from the first sheet of an .xlsx
// file. The first row must be a header naming at least the name and
// phone columns; column order is free.
func ParseContactsXLSX(r io.Reader) ([]Contact, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open spreadsheet: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errEmptySheet
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return nil, errEmptySheet
	}

	cols := headerIndex(rows[0])
	if _, ok := cols["name"]; !ok {
		return nil, ledger.NewValidationError("file", "header row must have a name column")
	}
	if _, ok := cols["phone"]; !ok {
		return nil, ledger.NewValidationError("file", "header row must have a phone column")
	}

	cell := func(row []string, key string) string {
		i, ok := cols[key]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	contacts := make([]Contact, 0, len(rows)-1)
	for _, row := range rows[1:] {
		ct := Contact{
			Name:     cell(row, "name"),
			Phone:    cell(row, "phone"),
			Email:    cell(row, "email"),
			Company:  cell(row, "company"),
			JobTitle: cell(row, "job_title"),
			Nickname: cell(row, "nickname"),
			Address:  cell(row, "address"),
		}
		if ct == (Contact{}) {
			continue
		}
		contacts = append(contacts, ct)
	}
	return contacts, nil
}

func headerIndex(header []string) map[string]int {
	idx := make(map[string]int)
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(h))
		for key, aliases := range columnAliases {
			if _, done := idx[key]; done {
				continue
			}
			for _, a := range aliases {
				if h == a {
					idx[key] = i
				}
			}
		}
	}
	return idx
}
