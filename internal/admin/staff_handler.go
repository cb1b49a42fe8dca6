package admin

import (
	"errors"
	"strings"
	"time"

	"bizledger-backend/internal/auth"
	"bizledger-backend/internal/httpx"
	"bizledger-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type CreateStaffRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type StaffResponse struct {
	ID        uint   `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	CreatedAt string `json:"created_at"`
}

func toStaffResponse(u models.User) StaffResponse {
	return StaffResponse{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Role:      string(u.Role),
		CreatedAt: u.CreatedAt.Format(time.RFC3339),
	}
}

// POST /api/staff
// Owner only. Adds a staff account to the owner's business.
func CreateStaffHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.CurrentActor(c)
		if err != nil {
			return err
		}

		var body CreateStaffRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		body.Email = strings.ToLower(strings.TrimSpace(body.Email))
		body.Name = strings.TrimSpace(body.Name)

		if body.Name == "" || body.Email == "" || body.Password == "" {
			return fiber.NewError(fiber.StatusBadRequest, "name, email and password are required")
		}
		if len(body.Password) < 8 {
			return fiber.NewError(fiber.StatusBadRequest, "password must be at least 8 characters")
		}

		var count int64
		db.WithContext(c.UserContext()).Model(&models.User{}).Where("email = ?", body.Email).Count(&count)
		if count > 0 {
			return fiber.NewError(fiber.StatusConflict, "email already registered")
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(body.Password), bcrypt.DefaultCost)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "could not hash password")
		}

		user := models.User{
			BusinessID:   actor.BusinessID,
			Name:         body.Name,
			Email:        body.Email,
			PasswordHash: string(hash),
			Role:         models.RoleStaff,
		}
		if err := db.WithContext(c.UserContext()).Create(&user).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "could not create staff account")
		}

		return c.Status(fiber.StatusCreated).JSON(toStaffResponse(user))
	}
}

// GET /api/staff
func ListStaffHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.CurrentActor(c)
		if err != nil {
			return err
		}

		var users []models.User
		err = db.WithContext(c.UserContext()).
			Where("business_id = ?", actor.BusinessID).
			Order("role ASC, name ASC").
			Find(&users).Error
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "could not list staff")
		}

		resp := make([]StaffResponse, 0, len(users))
		for _, u := range users {
			resp = append(resp, toStaffResponse(u))
		}
		return c.JSON(resp)
	}
}

// DELETE /api/staff/:id
// Owners cannot be removed here, including the caller.
func DeleteStaffHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.CurrentActor(c)
		if err != nil {
			return err
		}
		id, err := httpx.ParamID(c, "id")
		if err != nil {
			return err
		}

		var user models.User
		err = db.WithContext(c.UserContext()).
			Where("id = ? AND business_id = ?", id, actor.BusinessID).
			First(&user).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "staff member not found")
		}
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "could not load staff member")
		}
		if user.Role != models.RoleStaff {
			return fiber.NewError(fiber.StatusBadRequest, "only staff accounts can be removed")
		}

		if err := db.WithContext(c.UserContext()).Delete(&user).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "could not remove staff member")
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}
