package main

import (
	"context"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"
	"github.com/joho/godotenv"

	"github.com/juniorlance/juniorlance_be/internal/config"
	"github.com/juniorlance/juniorlance_be/internal/db"
	"github.com/juniorlance/juniorlance_be/internal/handlers"
	"github.com/juniorlance/juniorlance_be/internal/middleware"
	"github.com/juniorlance/juniorlance_be/internal/models"
	"github.com/juniorlance/juniorlance_be/internal/realtime"
	"github.com/juniorlance/juniorlance_be/internal/services/admin"
	"github.com/juniorlance/juniorlance_be/internal/services/audit"
	"github.com/juniorlance/juniorlance_be/internal/services/escrow"
	"github.com/juniorlance/juniorlance_be/internal/services/gate"
	"github.com/juniorlance/juniorlance_be/internal/services/gateway"
	"github.com/juniorlance/juniorlance_be/internal/services/interlock"
	"github.com/juniorlance/juniorlance_be/internal/services/order"
	"github.com/juniorlance/juniorlance_be/internal/services/wallet"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	gdb, err := db.Connect(cfg.DBDSN)
	if err != nil {
		log.Fatal(err)
	}

	rdb := realtime.NewRedis()
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Fatal("Redis not reachable:", err)
	}

	hub := realtime.NewHub()
	go hub.Run()

	if err := gdb.AutoMigrate(
		&models.User{},
		&models.Job{},
		&models.Order{},
		&models.EscrowTransaction{},
		&models.EscrowOperation{},
		&models.WalletTransaction{},
		&models.Withdrawal{},
		&models.AuditEntry{},
		&models.Report{},
		&models.Conversation{},
		&models.Message{},
	); err != nil {
		log.Fatal(err)
	}

	// Services.
	auditSvc := audit.NewService(gdb)
	walletSvc := wallet.NewWalletService(gdb)
	gw := gateway.NewService(cfg.GatewayAPIKey, cfg.GatewayPrivateKey, cfg.GatewayMerchant)

	withdrawStore := wallet.NewWithdrawStore(gdb, walletSvc)
	withdrawSvc := wallet.NewWithdrawService(withdrawStore, gw, auditSvc)

	escrowStore := escrow.NewStore(gdb, walletSvc)
	escrowSvc := escrow.NewService(escrowStore, gw, auditSvc, cfg.EscrowFeePercent)

	gateStore := gate.NewStore(gdb)
	gateSvc := gate.NewService(gateStore, auditSvc)

	interlockStore := interlock.NewStore(gdb)
	interlockSvc := interlock.NewService(interlockStore, auditSvc)

	notifier := realtime.NewNotifier(hub, rdb, gdb)

	orderStore := order.NewStore(gdb)
	orderSvc := order.NewService(orderStore, gateStore, escrowSvc, auditSvc, notifier)

	adminStore := admin.NewStore(gdb)
	adminSvc := admin.NewService(adminStore, escrowSvc, auditSvc)

	// Auto-release of completed orders the client never acted on.
	sweeper := order.NewSweeper(orderSvc, cfg.ReviewWindow, cfg.SweepInterval)
	sweeper.Start(context.Background())

	app := fiber.New(fiber.Config{
		BodyLimit: 32 * 1024 * 1024,
	})

	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.FrontendBaseURL,
		AllowMethods:     "GET,POST,PUT,PATCH,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		ExposeHeaders:    "Content-Length",
		AllowCredentials: true,
	}))
	app.Options("/*", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})

	// Handlers.
	authH := &handlers.AuthHandler{
		DB:        gdb,
		JWTSecret: cfg.JWTSecret,
		Expires:   cfg.JWTExpiresMin,
	}
	googleH := &handlers.GoogleOAuthHandler{
		DB:              gdb,
		JWTSecret:       cfg.JWTSecret,
		Expires:         cfg.JWTExpiresMin,
		GoogleClientID:  cfg.GoogleClientID,
		GoogleSecret:    cfg.GoogleSecret,
		GoogleRedirect:  cfg.GoogleRedirect,
		FrontendBaseURL: cfg.FrontendBaseURL,
	}
	jobH := handlers.NewJobHandler(gdb)
	orderH := handlers.NewOrderHandler(gdb, orderSvc, interlockSvc, cfg)
	paymentH := handlers.NewPaymentHandler(gdb, escrowSvc, gw)
	verifyH := handlers.NewVerificationHandler(gateSvc, cfg.IdentityCallbackKey)
	guardianH := handlers.NewGuardianHandler(gdb, interlockSvc)
	reportH := handlers.NewReportHandler(gdb, orderSvc)
	adminH := handlers.NewAdminHandler(adminSvc)
	walletH := handlers.NewWalletHandler(gdb, withdrawSvc)
	fileH := handlers.NewFileHandler(cfg)
	wsH := handlers.NewWSHandler(hub, cfg.JWTSecret)

	api := app.Group("/api")

	// public
	api.Post("/auth/register", authH.Register)
	api.Post("/auth/login", authH.Login)
	api.Post("/auth/logout", authH.Logout)
	api.Get("/auth/google/start", googleH.GoogleStart)
	api.Get("/auth/google/callback", googleH.GoogleCallback)

	// provider webhooks, HMAC-authenticated
	api.Post("/payments/callback", paymentH.HandleCallback)
	api.Post("/verification/callback", verifyH.HandleCallback)

	// signed deliverable downloads
	app.Get("/files/*", fileH.Serve)

	// protected (JWT cookie)
	protected := api.Group("/",
		middleware.JWTFromCookie(cfg.JWTSecret),
		middleware.AttachJWTLocals(),
	)

	protected.Get("/me", func(c *fiber.Ctx) error {
		uid := c.Locals("userId")
		var user models.User
		if err := gdb.First(&user, "id = ?", uid).Error; err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success": false,
				"message": "user not found",
			})
		}
		return c.JSON(fiber.Map{
			"success": true,
			"data": fiber.Map{
				"id":                 user.ID,
				"name":               user.Name,
				"email":              user.Email,
				"role":               user.Role,
				"verification_level": user.VerificationLevel,
				"guardian_locked":    user.GuardianLocked,
				"balance":            user.Balance,
			},
		})
	})

	// jobs
	protected.Post("/jobs", middleware.RequireRoles("client"), jobH.CreateJob)
	protected.Get("/jobs", jobH.ListJobs)
	protected.Get("/jobs/:id", jobH.GetJob)

	// orders
	protected.Post("/orders", middleware.RequireRoles("freelancer"), orderH.Apply)
	protected.Get("/orders", orderH.ListMine)
	protected.Get("/orders/:id", orderH.GetOrder)
	protected.Post("/orders/:id/accept", middleware.RequireRoles("client"), orderH.Accept)
	protected.Post("/orders/:id/reject", middleware.RequireRoles("client"), orderH.Reject)
	protected.Post("/orders/:id/submit", middleware.RequireRoles("freelancer"), orderH.Submit)
	protected.Post("/orders/:id/revision", middleware.RequireRoles("client"), orderH.RequestRevision)
	protected.Post("/orders/:id/complete", middleware.RequireRoles("client"), orderH.Complete)
	protected.Post("/orders/:id/release", middleware.RequireRoles("client"), orderH.Release)
	protected.Post("/orders/:id/rate", middleware.RequireRoles("client"), orderH.Rate)
	protected.Post("/orders/:id/dispute", orderH.Dispute)

	// escrow checkout
	protected.Post("/payments/hold", middleware.RequireRoles("client"), paymentH.CreateHold)

	// wallet
	protected.Get("/wallet", walletH.Balance)
	protected.Post("/wallet/withdraw", middleware.RequireRoles("freelancer"), walletH.Withdraw)

	// guardian interlock
	protected.Get("/guardian", guardianH.Status)
	protected.Post("/guardian/enable", guardianH.Enable)
	protected.Post("/guardian/disable", guardianH.Disable)

	// reports
	protected.Post("/reports", reportH.Create)
	protected.Get("/reports", reportH.ListMine)

	// admin
	adm := protected.Group("/admin", middleware.RequireRoles("admin"))
	adm.Post("/orders/:id/force-release", adminH.ForceRelease)
	adm.Post("/orders/:id/force-refund", adminH.ForceRefund)
	adm.Get("/orders/:id/evidence", adminH.Evidence)
	adm.Post("/users/:id/ban", adminH.BanUser)
	adm.Post("/reports/:id/resolve", adminH.ResolveReport)
	adm.Get("/reconciliation", adminH.Reconciliation)

	// websocket notification stream, authenticated via the same cookie
	app.Get("/ws/notifications", websocket.New(wsH.Handle))

	log.Fatal(app.Listen(":" + cfg.AppPort))
}
