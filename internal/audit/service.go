package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"bizledger-backend/internal/apperr"
	"bizledger-backend/internal/models"

	"gorm.io/gorm"
)

var (
	ErrAlreadyUndone = errors.New("this change has already been undone")
	ErrNotUndoable   = errors.New("this change cannot be undone")
)

// Reverter knows how to roll back changes to one entity type. Every
// method runs inside the undo's database transaction.
type Reverter interface {
	// RevertCreate removes a record that was created.
	RevertCreate(tx *gorm.DB, businessID, entityID uint) error
	// RevertUpdate puts back the state captured before an update.
	RevertUpdate(tx *gorm.DB, businessID, entityID uint, before []byte) error
	// RevertDelete recreates a deleted record from its snapshot.
	RevertDelete(tx *gorm.DB, businessID uint, before []byte) error
}

type LogOptions struct {
	EntityType  string
	EntityID    uint
	Action      models.AuditAction
	Description string
	Before      any
	After       any
}

// Write records a change using tx, so the log row commits or rolls back
// with the change itself.
func Write(tx *gorm.DB, actor models.Actor, opts LogOptions) error {
	row := models.AuditLog{
		BusinessID:  actor.BusinessID,
		UserID:      actor.UserID,
		UserName:    actor.UserName,
		EntityType:  opts.EntityType,
		EntityID:    opts.EntityID,
		Action:      opts.Action,
		Description: truncate(opts.Description, maxDescription),
		BeforeData:  snapshot(opts.Before),
		AfterData:   snapshot(opts.After),
	}
	if err := tx.Create(&row).Error; err != nil {
		return fmt.Errorf("write audit log: %w", err)
	}
	return nil
}

const maxDescription = 255

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func snapshot(v any) string {
	if v == nil {
		return "null"
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}

type Service struct {
	db        *gorm.DB
	reverters map[string]Reverter
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db, reverters: make(map[string]Reverter)}
}

// Register makes changes to entityType undoable.
func (s *Service) Register(entityType string, r Reverter) {
	s.reverters[entityType] = r
}

type Filter struct {
	EntityType string
	EntityID   uint
	UserID     uint
	Limit      int
}

func (s *Service) List(ctx context.Context, businessID uint, f Filter) ([]models.AuditLog, error) {
	q := s.db.WithContext(ctx).Where("business_id = ?", businessID)
	if f.EntityType != "" {
		q = q.Where("entity_type = ?", f.EntityType)
	}
	if f.EntityID > 0 {
		q = q.Where("entity_id = ?", f.EntityID)
	}
	if f.UserID > 0 {
		q = q.Where("user_id = ?", f.UserID)
	}
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	var logs []models.AuditLog
	if err := q.Order("created_at DESC, id DESC").Limit(limit).Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("list audit logs: %w", err)
	}
	return logs, nil
}

// Undo reverses the change recorded by logID and records the undo.
func (s *Service) Undo(ctx context.Context, actor models.Actor, logID uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var entry models.AuditLog
		err := tx.Where("id = ? AND business_id = ?", logID, actor.BusinessID).First(&entry).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("audit log %d: %w", logID, apperr.ErrNotFound)
		}
		if err != nil {
			return err
		}
		if entry.IsUndone {
			return ErrAlreadyUndone
		}

		r, ok := s.reverters[entry.EntityType]
		if !ok {
			return ErrNotUndoable
		}

		switch entry.Action {
		case models.AuditActionCreate:
			err = r.RevertCreate(tx, entry.BusinessID, entry.EntityID)
		case models.AuditActionUpdate:
			err = r.RevertUpdate(tx, entry.BusinessID, entry.EntityID, []byte(entry.BeforeData))
		case models.AuditActionDelete:
			err = r.RevertDelete(tx, entry.BusinessID, []byte(entry.BeforeData))
		default:
			return ErrNotUndoable
		}
		if err != nil {
			return err
		}

		now := time.Now()
		entry.IsUndone = true
		entry.UndoneBy = &actor.UserID
		entry.UndoneAt = &now
		if err := tx.Save(&entry).Error; err != nil {
			return fmt.Errorf("mark audit log undone: %w", err)
		}

		undo := models.AuditLog{
			BusinessID:  entry.BusinessID,
			UserID:      actor.UserID,
			UserName:    actor.UserName,
			EntityType:  entry.EntityType,
			EntityID:    entry.EntityID,
			Action:      models.AuditActionUndo,
			Description: truncate("Undone: "+entry.Description, maxDescription),
			BeforeData:  entry.AfterData,
			AfterData:   entry.BeforeData,
			Undone:      true,
		}
		if err := tx.Create(&undo).Error; err != nil {
			return fmt.Errorf("write undo log: %w", err)
		}
		return nil
	})
}
