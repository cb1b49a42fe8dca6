package customer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"bizledger-backend/internal/apperr"
	"bizledger-backend/internal/audit"
	"bizledger-backend/internal/ledger"
	"bizledger-backend/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Input carries the editable profile fields. Aggregates are never
// accepted from callers.
type Input struct {
	Name             string
	Phone            string
	Email            string
	Address          string
	Company          string
	JobTitle         string
	Nickname         string
	PreferredContact models.ContactMethod
}

// Patch is a partial update; nil fields are left alone.
type Patch struct {
	Name             *string
	Phone            *string
	Email            *string
	Address          *string
	Company          *string
	JobTitle         *string
	Nickname         *string
	PreferredContact *models.ContactMethod
}

type ListFilter struct {
	Search  string
	HasDebt bool
	Sort    string // name | balance | recent
	Limit   int
	Offset  int
}

type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

func (s *Service) Create(ctx context.Context, actor models.Actor, in Input) (*models.Customer, error) {
	c := models.Customer{BusinessID: actor.BusinessID, Source: models.SourceManual}
	if err := apply(&c, in); err != nil {
		return nil, err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensurePhoneFree(tx, actor.BusinessID, c.Phone, 0); err != nil {
			return err
		}
		if err := tx.Create(&c).Error; err != nil {
			return fmt.Errorf("create customer: %w", err)
		}
		return audit.Write(tx, actor, audit.LogOptions{
			EntityType:  models.EntityCustomer,
			EntityID:    c.ID,
			Action:      models.AuditActionCreate,
			Description: fmt.Sprintf("Customer added: %s", c.Name),
			After:       c,
		})
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Service) Get(ctx context.Context, businessID, id uint) (*models.Customer, error) {
	return find(s.db.WithContext(ctx), businessID, id)
}

func find(db *gorm.DB, businessID, id uint) (*models.Customer, error) {
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

// List returns one page of customers plus the total matching count.
func (s *Service) List(ctx context.Context, businessID uint, f ListFilter) ([]models.Customer, int64, error) {
	q := s.db.WithContext(ctx).Model(&models.Customer{}).Where("business_id = ?", businessID)

	if term := strings.TrimSpace(f.Search); term != "" {
		like := "%" + strings.ToLower(term) + "%"
		if digits := NormalizePhone(term); digits != "" {
			q = q.Where("LOWER(name) LIKE ? OR phone LIKE ? OR LOWER(company) LIKE ? OR LOWER(nickname) LIKE ?",
				like, "%"+digits+"%", like, like)
		} else {
			q = q.Where("LOWER(name) LIKE ? OR LOWER(company) LIKE ? OR LOWER(nickname) LIKE ?", like, like, like)
		}
	}
	if f.HasDebt {
		q = q.Where("outstanding_balance > 0")
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count customers: %w", err)
	}

	switch f.Sort {
	case "balance":
		q = q.Order("outstanding_balance DESC, name ASC")
	case "recent":
		q = q.Order("last_purchase IS NULL, last_purchase DESC, name ASC")
	default:
		q = q.Order("LOWER(name) ASC, id ASC")
	}

	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}

	var customers []models.Customer
	if err := q.Limit(limit).Offset(offset).Find(&customers).Error; err != nil {
		return nil, 0, fmt.Errorf("list customers: %w", err)
	}
	return customers, total, nil
}

func (s *Service) Update(ctx context.Context, actor models.Actor, id uint, p Patch) (*models.Customer, error) {
	var updated *models.Customer
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		c, err := find(tx, actor.BusinessID, id)
		if err != nil {
			return err
		}
		before := *c

		in := profileOf(c)
		p.mergeInto(&in)
		if err := apply(c, in); err != nil {
			return err
		}
		if c.Phone != before.Phone {
			if err := ensurePhoneFree(tx, actor.BusinessID, c.Phone, c.ID); err != nil {
				return err
			}
		}

		if err := tx.Model(c).Select(profileColumns).Updates(c).Error; err != nil {
			return fmt.Errorf("update customer: %w", err)
		}
		updated = c

		return audit.Write(tx, actor, audit.LogOptions{
			EntityType:  models.EntityCustomer,
			EntityID:    c.ID,
			Action:      models.AuditActionUpdate,
			Description: fmt.Sprintf("Customer updated: %s", c.Name),
			Before:      before,
			After:       *c,
		})
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes the customer and every transaction recorded against
// them.
func (s *Service) Delete(ctx context.Context, actor models.Actor, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// locked so no transaction can be recorded against the customer
		// between the snapshot and the delete
		c, err := find(tx.Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate}), actor.BusinessID, id)
		if err != nil {
			return err
		}
		if err := tx.Where("customer_id = ?", c.ID).Order("date ASC, id ASC").Find(&c.Transactions).Error; err != nil {
			return fmt.Errorf("load transactions: %w", err)
		}

		if err := tx.Where("customer_id = ?", c.ID).Delete(&models.Transaction{}).Error; err != nil {
			return fmt.Errorf("delete transactions: %w", err)
		}
		if err := tx.Delete(&models.Customer{}, c.ID).Error; err != nil {
			return fmt.Errorf("delete customer: %w", err)
		}

		return audit.Write(tx, actor, audit.LogOptions{
			EntityType:  models.EntityCustomer,
			EntityID:    c.ID,
			Action:      models.AuditActionDelete,
			Description: fmt.Sprintf("Customer deleted: %s (%d transactions)", c.Name, len(c.Transactions)),
			Before:      c,
		})
	})
}

var profileColumns = []string{"name", "phone", "email", "address", "company", "job_title", "nickname", "preferred_contact"}

func profileOf(c *models.Customer) Input {
	return Input{
		Name:             c.Name,
		Phone:            c.Phone,
		Email:            c.Email,
		Address:          c.Address,
		Company:          c.Company,
		JobTitle:         c.JobTitle,
		Nickname:         c.Nickname,
		PreferredContact: c.PreferredContact,
	}
}

func (p Patch) mergeInto(in *Input) {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	set(&in.Name, p.Name)
	set(&in.Phone, p.Phone)
	set(&in.Email, p.Email)
	set(&in.Address, p.Address)
	set(&in.Company, p.Company)
	set(&in.JobTitle, p.JobTitle)
	set(&in.Nickname, p.Nickname)
	if p.PreferredContact != nil {
		in.PreferredContact = *p.PreferredContact
	}
}

// apply validates in and copies it onto c.
func apply(c *models.Customer, in Input) error {
	var errs ledger.ValidationErrors

	name := strings.TrimSpace(in.Name)
	if name == "" {
		errs = append(errs, ledger.NewValidationError("name", "is required"))
	}
	phone := NormalizePhone(in.Phone)
	if phone == "" {
		errs = append(errs, ledger.NewValidationError("phone", "is required"))
	} else if digits := strings.TrimPrefix(phone, "+"); len(digits) < 7 || len(digits) > 15 {
		errs = append(errs, ledger.NewValidationError("phone", "must have 7 to 15 digits"))
	}
	email := strings.TrimSpace(strings.ToLower(in.Email))
	if email != "" && (!strings.Contains(email, "@") || strings.HasPrefix(email, "@") || strings.HasSuffix(email, "@")) {
		errs = append(errs, ledger.NewValidationError("email", "is not a valid address"))
	}
	if in.PreferredContact != "" && !in.PreferredContact.Valid() {
		errs = append(errs, ledger.NewValidationError("preferred_contact", "must be one of phone, sms, whatsapp, email"))
	}
	if err := errs.Err(); err != nil {
		return err
	}

	c.Name = name
	c.Phone = phone
	c.Email = email
	c.Address = strings.TrimSpace(in.Address)
	c.Company = strings.TrimSpace(in.Company)
	c.JobTitle = strings.TrimSpace(in.JobTitle)
	c.Nickname = strings.TrimSpace(in.Nickname)
	c.PreferredContact = in.PreferredContact
	return nil
}

// NormalizePhone keeps the digits and a leading plus sign.
func NormalizePhone(raw string) string {
	raw = strings.TrimSpace(raw)
	var b strings.Builder
	for i, r := range raw {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		}
	}
	if b.String() == "+" {
		return ""
	}
	return b.String()
}

func ensurePhoneFree(tx *gorm.DB, businessID uint, phone string, exceptID uint) error {
	var count int64
	q := tx.Model(&models.Customer{}).Where("business_id = ? AND phone = ?", businessID, phone)
	if exceptID > 0 {
		q = q.Where("id <> ?", exceptID)
	}
	if err := q.Count(&count).Error; err != nil {
		return fmt.Errorf("check phone: %w", err)
	}
	if count > 0 {
		return fmt.Errorf("customer with phone %s: %w", phone, apperr.ErrConflict)
	}
	return nil
}

// -------------------------
// Undo support
// -------------------------

var _ audit.Reverter = (*Service)(nil)

func (s *Service) RevertCreate(tx *gorm.DB, businessID, entityID uint) error {
	var n int64
	if err := tx.Model(&models.Transaction{}).Where("customer_id = ?", entityID).Count(&n).Error; err != nil {
		return err
	}
	if n > 0 {
		return fmt.Errorf("customer has %d transactions: %w", n, audit.ErrNotUndoable)
	}
	res := tx.Where("id = ? AND business_id = ?", entityID, businessID).Delete(&models.Customer{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("customer %d: %w", entityID, apperr.ErrNotFound)
	}
	return nil
}

func (s *Service) RevertUpdate(tx *gorm.DB, businessID, entityID uint, before []byte) error {
	var prev models.Customer
	if err := json.Unmarshal(before, &prev); err != nil {
		return fmt.Errorf("decode customer snapshot: %w", err)
	}
	c, err := find(tx, businessID, entityID)
	if err != nil {
		return err
	}
	if prev.Phone != c.Phone {
		if err := ensurePhoneFree(tx, businessID, prev.Phone, c.ID); err != nil {
			return err
		}
	}
	prev.ID = c.ID
	return tx.Model(c).Select(profileColumns).Updates(&prev).Error
}

// RevertDelete restores the customer and their transactions with their
// original ids.
func (s *Service) RevertDelete(tx *gorm.DB, businessID uint, before []byte) error {
	var prev models.Customer
	if err := json.Unmarshal(before, &prev); err != nil {
		return fmt.Errorf("decode customer snapshot: %w", err)
	}
	if prev.BusinessID != businessID {
		return apperr.ErrForbidden
	}
	if err := ensurePhoneFree(tx, businessID, prev.Phone, 0); err != nil {
		return err
	}

	txs := prev.Transactions
	prev.Transactions = nil
	if err := tx.Omit(clause.Associations).Create(&prev).Error; err != nil {
		return fmt.Errorf("recreate customer: %w", err)
	}
	if len(txs) > 0 {
		if err := tx.Omit(clause.Associations).Create(&txs).Error; err != nil {
			return fmt.Errorf("recreate transactions: %w", err)
		}
	}
	return nil
}
