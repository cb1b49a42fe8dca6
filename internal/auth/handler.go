package auth

import (
	"errors"
	"strings"
	"time"

	"bizledger-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type RegisterRequest struct {
	BusinessName string `json:"business_name"`
	Currency     string `json:"currency"`
	Phone        string `json:"phone"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	Password     string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Settings is what the auth handlers need from config.
type Settings struct {
	JWTSecret       string
	TokenTTL        time.Duration
	DefaultCurrency string
}

const minPasswordLen = 8

// POST /api/auth/register
// Creates a business together with its owner account.
func RegisterHandler(db *gorm.DB, s Settings) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body RegisterRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}

		body.Email = strings.TrimSpace(strings.ToLower(body.Email))
		body.Name = strings.TrimSpace(body.Name)
		body.BusinessName = strings.TrimSpace(body.BusinessName)

		if body.Email == "" || body.Password == "" || body.Name == "" || body.BusinessName == "" {
			return fiber.NewError(fiber.StatusBadRequest, "business_name, name, email and password are required")
		}
		if len(body.Password) < minPasswordLen {
			return fiber.NewError(fiber.StatusBadRequest, "password must be at least 8 characters")
		}
		currency := strings.ToUpper(strings.TrimSpace(body.Currency))
		if currency == "" {
			currency = s.DefaultCurrency
		}
		if len(currency) != 3 {
			return fiber.NewError(fiber.StatusBadRequest, "currency must be a 3-letter code")
		}

		var count int64
		db.Model(&models.User{}).Where("email = ?", body.Email).Count(&count)
		if count > 0 {
			return fiber.NewError(fiber.StatusConflict, "email already registered")
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(body.Password), bcrypt.DefaultCost)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "could not hash password")
		}

		var user models.User
		err = db.WithContext(c.UserContext()).Transaction(func(tx *gorm.DB) error {
			business := models.Business{
				Name:     body.BusinessName,
				Currency: currency,
				Phone:    strings.TrimSpace(body.Phone),
			}
			if err := tx.Create(&business).Error; err != nil {
				return err
			}
			user = models.User{
				BusinessID:   business.ID,
				Name:         body.Name,
				Email:        body.Email,
				PasswordHash: string(hash),
				Role:         models.RoleOwner,
			}
			return tx.Create(&user).Error
		})
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "could not create account")
		}

		token, err := GenerateToken(s.JWTSecret, s.TokenTTL, &user)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "could not create token")
		}

		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"token": token,
			"user":  userJSON(&user),
		})
	}
}

// POST /api/auth/login
func LoginHandler(db *gorm.DB, s Settings) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body LoginRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}

		body.Email = strings.TrimSpace(strings.ToLower(body.Email))

		var user models.User
		if err := db.WithContext(c.UserContext()).Where("email = ?", body.Email).First(&user).Error; err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "wrong email or password")
		}

		if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(body.Password)); err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "wrong email or password")
		}

		token, err := GenerateToken(s.JWTSecret, s.TokenTTL, &user)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "could not create token")
		}

		return c.JSON(fiber.Map{
			"token": token,
			"user":  userJSON(&user),
		})
	}
}

// GET /api/auth/me
func MeHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := CurrentActor(c)
		if err != nil {
			return err
		}

		var user models.User
		err = db.WithContext(c.UserContext()).Preload("Business").First(&user, actor.UserID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.NewError(fiber.StatusUnauthorized, "account no longer exists")
		}
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "could not load account")
		}

		resp := userJSON(&user)
		resp["business"] = fiber.Map{
			"id":       user.Business.ID,
			"name":     user.Business.Name,
			"currency": user.Business.Currency,
			"phone":    user.Business.Phone,
		}
		return c.JSON(resp)
	}
}

func userJSON(u *models.User) fiber.Map {
	return fiber.Map{
		"id":          u.ID,
		"name":        u.Name,
		"email":       u.Email,
		"role":        u.Role,
		"business_id": u.BusinessID,
	}
}
