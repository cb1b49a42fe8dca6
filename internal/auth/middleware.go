package auth

import (
	"strings"

	"bizledger-backend/internal/models"

	"github.com/gofiber/fiber/v2"
)

const (
	CtxUserIDKey     = "user_id"
	CtxUserNameKey   = "user_name"
	CtxUserRoleKey   = "user_role"
	CtxBusinessIDKey = "business_id"
)

func JWTMiddleware(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing Authorization header")
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			return fiber.NewError(fiber.StatusUnauthorized, "Authorization must be 'Bearer <token>'")
		}

		claims, err := ParseToken(secret, parts[1])
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid or expired token")
		}
		if claims.BusinessID == 0 {
			return fiber.NewError(fiber.StatusUnauthorized, "token has no business")
		}

		c.Locals(CtxUserIDKey, claims.UserID)
		c.Locals(CtxUserNameKey, claims.Name)
		c.Locals(CtxUserRoleKey, claims.Role)
		c.Locals(CtxBusinessIDKey, claims.BusinessID)

		return c.Next()
	}
}

func RequireRole(allowedRoles ...models.UserRole) fiber.Handler {
	return func(c *fiber.Ctx) error {
		role, ok := c.Locals(CtxUserRoleKey).(models.UserRole)
		if !ok {
			return fiber.NewError(fiber.StatusForbidden, "role missing from token")
		}

		for _, r := range allowedRoles {
			if r == role {
				return c.Next()
			}
		}
		return fiber.NewError(fiber.StatusForbidden, "not allowed for your role")
	}
}

// CurrentActor reads what JWTMiddleware stored.
func CurrentActor(c *fiber.Ctx) (models.Actor, error) {
	userID, ok := c.Locals(CtxUserIDKey).(uint)
	if !ok {
		return models.Actor{}, fiber.NewError(fiber.StatusForbidden, "user missing from token")
	}
	businessID, ok := c.Locals(CtxBusinessIDKey).(uint)
	if !ok || businessID == 0 {
		return models.Actor{}, fiber.NewError(fiber.StatusForbidden, "business missing from token")
	}
	name, _ := c.Locals(CtxUserNameKey).(string)
	role, _ := c.Locals(CtxUserRoleKey).(models.UserRole)
	return models.Actor{
		UserID:     userID,
		UserName:   name,
		BusinessID: businessID,
		Role:       role,
	}, nil
}
