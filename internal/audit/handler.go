package audit

import (
	"errors"
	"time"

	"bizledger-backend/internal/auth"
	"bizledger-backend/internal/httpx"
	"bizledger-backend/internal/models"

	"github.com/gofiber/fiber/v2"
)

type AuditLogResponse struct {
	ID          uint               `json:"id"`
	CreatedAt   string             `json:"created_at"`
	UserID      uint               `json:"user_id"`
	UserName    string             `json:"user_name"`
	EntityType  string             `json:"entity_type"`
	EntityID    uint               `json:"entity_id"`
	Action      models.AuditAction `json:"action"`
	Description string             `json:"description"`
	IsUndone    bool               `json:"is_undone"`
	UndoneBy    *uint              `json:"undone_by"`
	UndoneAt    *string            `json:"undone_at"`
}

// GET /api/audit-logs?entity_type=transaction&entity_id=1&user_id=2&limit=50
func ListAuditLogsHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.CurrentActor(c)
		if err != nil {
			return err
		}

		f := Filter{
			EntityType: c.Query("entity_type"),
			EntityID:   uint(c.QueryInt("entity_id", 0)),
			UserID:     uint(c.QueryInt("user_id", 0)),
			Limit:      c.QueryInt("limit", 100),
		}

		logs, err := svc.List(c.UserContext(), actor.BusinessID, f)
		if err != nil {
			return httpx.Error(c, err, "could not list audit logs")
		}

		resp := make([]AuditLogResponse, 0, len(logs))
		for _, l := range logs {
			var undoneAt *string
			if l.UndoneAt != nil {
				s := l.UndoneAt.Format(time.RFC3339)
				undoneAt = &s
			}
			resp = append(resp, AuditLogResponse{
				ID:          l.ID,
				CreatedAt:   l.CreatedAt.Format(time.RFC3339),
				UserID:      l.UserID,
				UserName:    l.UserName,
				EntityType:  l.EntityType,
				EntityID:    l.EntityID,
				Action:      l.Action,
				Description: l.Description,
				IsUndone:    l.IsUndone,
				UndoneBy:    l.UndoneBy,
				UndoneAt:    undoneAt,
			})
		}
		return c.JSON(resp)
	}
}

// POST /api/audit-logs/:id/undo
func UndoAuditLogHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.CurrentActor(c)
		if err != nil {
			return err
		}
		logID, err := httpx.ParamID(c, "id")
		if err != nil {
			return err
		}

		err = svc.Undo(c.UserContext(), actor, logID)
		if errors.Is(err, ErrAlreadyUndone) || errors.Is(err, ErrNotUndoable) {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err != nil {
			return httpx.Error(c, err, "could not undo change")
		}

		return c.JSON(fiber.Map{"message": "change undone"})
	}
}
