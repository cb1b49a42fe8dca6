package server

import (
	"errors"
	"strings"

	"bizledger-backend/internal/admin"
	"bizledger-backend/internal/audit"
	"bizledger-backend/internal/auth"
	"bizledger-backend/internal/config"
	"bizledger-backend/internal/customer"
	"bizledger-backend/internal/dashboard"
	"bizledger-backend/internal/ledger"
	"bizledger-backend/internal/logger"
	"bizledger-backend/internal/models"
	"bizledger-backend/internal/transaction"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"gorm.io/gorm"
)

// New builds the HTTP app with every route registered. The caller owns
// db and is expected to have migrated it.
func New(cfg *config.Config, db *gorm.DB) *fiber.App {
	log := logger.WithComponent("server")
	calc := ledger.NewRules()

	auditSvc := audit.NewService(db)
	customerSvc := customer.NewService(db)
	txSvc := transaction.NewService(db, calc, logger.WithComponent("transaction"))
	dashSvc := dashboard.NewService(db, calc)

	auditSvc.Register(models.EntityCustomer, customerSvc)
	auditSvc.Register(models.EntityTransaction, txSvc)

	app := fiber.New(fiber.Config{
		AppName:   "bizledger",
		BodyLimit: 10 * 1024 * 1024, // contact spreadsheets
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			var e *fiber.Error
			if errors.As(err, &e) {
				return c.Status(e.Code).JSON(fiber.Map{
					"error": e.Message,
				})
			}
			log.Error().Err(err).Str("path", c.Path()).Msg("unexpected error")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "unexpected server error",
			})
		},
	})

	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(logger.Middleware())

	corsOrigins := strings.Split(cfg.CORSOrigins, ",")
	for i := range corsOrigins {
		corsOrigins[i] = strings.TrimSpace(corsOrigins[i])
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(corsOrigins, ","),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		sqlDB, err := db.DB()
		if err != nil || sqlDB.PingContext(c.UserContext()) != nil {
			return fiber.NewError(fiber.StatusServiceUnavailable, "database unavailable")
		}
		return c.JSON(fiber.Map{"status": "ok"})
	})

	settings := auth.Settings{
		JWTSecret:       cfg.JWTSecret,
		TokenTTL:        cfg.TokenTTL,
		DefaultCurrency: cfg.DefaultCurrency,
	}

	api := app.Group("/api")

	// Public auth
	api.Post("/auth/register", auth.RegisterHandler(db, settings))
	api.Post("/auth/login", auth.LoginHandler(db, settings))

	// Protected
	protected := api.Group("")
	protected.Use(auth.JWTMiddleware(cfg.JWTSecret))

	protected.Get("/auth/me", auth.MeHandler(db))

	// Customers; fixed paths before :id
	protected.Post("/customers/import", customer.ImportCustomersHandler(customerSvc))
	protected.Get("/customers/export", customer.ExportCustomersHandler(customerSvc, db))
	protected.Post("/customers", customer.CreateCustomerHandler(customerSvc))
	protected.Get("/customers", customer.ListCustomersHandler(customerSvc))
	protected.Get("/customers/:id", customer.GetCustomerHandler(customerSvc))
	protected.Put("/customers/:id", customer.UpdateCustomerHandler(customerSvc))
	protected.Delete("/customers/:id", customer.DeleteCustomerHandler(customerSvc))
	protected.Get("/customers/:id/statement", transaction.StatementHandler(txSvc))

	// Transactions
	protected.Post("/transactions/preview", transaction.PreviewHandler(txSvc))
	protected.Post("/transactions", transaction.CreateTransactionHandler(txSvc))
	protected.Get("/transactions", transaction.ListTransactionsHandler(txSvc))
	protected.Get("/transactions/:id", transaction.GetTransactionHandler(txSvc))
	protected.Put("/transactions/:id", transaction.UpdateTransactionHandler(txSvc))
	protected.Post("/transactions/:id/cancel", transaction.CancelTransactionHandler(txSvc))
	protected.Delete("/transactions/:id", transaction.DeleteTransactionHandler(txSvc))

	// Dashboard
	protected.Get("/dashboard/sales-chart", dashboard.SalesChartHandler(dashSvc))
	protected.Get("/dashboard/summary", dashboard.SummaryHandler(dashSvc))

	// Audit log
	protected.Get("/audit-logs", audit.ListAuditLogsHandler(auditSvc))
	protected.Post("/audit-logs/:id/undo", audit.UndoAuditLogHandler(auditSvc))

	// Owner only
	ownerRoutes := protected.Group("/staff")
	ownerRoutes.Use(auth.RequireRole(models.RoleOwner))
	ownerRoutes.Post("/", admin.CreateStaffHandler(db))
	ownerRoutes.Get("/", admin.ListStaffHandler(db))
	ownerRoutes.Delete("/:id", admin.DeleteStaffHandler(db))

	return app
}
