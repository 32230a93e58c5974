package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"

	"github.com/chatcart-io/chatcart-backend/database"
	"github.com/chatcart-io/chatcart-backend/internal/crypto"
	"github.com/chatcart-io/chatcart-backend/internal/handlers"
	"github.com/chatcart-io/chatcart-backend/internal/jobs"
	"github.com/chatcart-io/chatcart-backend/internal/models"
	"github.com/chatcart-io/chatcart-backend/internal/routes"
	"github.com/chatcart-io/chatcart-backend/internal/services"
	"github.com/chatcart-io/chatcart-backend/internal/storage"
)

func main() {
	// Load .env file for local development
	if os.Getenv("INSTANCE_CONNECTION_NAME") == "" {
		err := godotenv.Load(".env")
		if err != nil {
			err = godotenv.Load("environments/.env.development")
			if err != nil {
				log.Println("⚠️  No .env file found - checking environment variables")
			}
		}
	}

	// Encryption key material must be present and well-formed before
	// anything else starts. A bad key fails the deploy, not a request.
	cipher, err := crypto.NewCipherFromHex(
		os.Getenv("ENCRYPTION_KEY"),
		os.Getenv("ENCRYPTION_IV"),
	)
	if err != nil {
		log.Fatal("Failed to initialize encryption service:", err)
	}
	if err := cipher.SelfTest(); err != nil {
		log.Fatal("Encryption self-test failed:", err)
	}
	log.Println("✅ Encryption service initialized")

	// Initialize storage
	var store storage.Store
	var dbPing func() error

	if os.Getenv("USE_MEMORY_STORE") == "true" {
		log.Println("⚠️  Using in-memory storage (not for production!)")
		store = storage.NewMemoryStore()
	} else {
		log.Println("📦 Connecting to PostgreSQL database...")
		database.Connect()

		log.Println("🔄 Running database migrations...")
		err := database.DB.AutoMigrate(
			&models.Tenant{},
			&models.MessagingAccount{},
			&models.ConversationSession{},
			&models.Category{},
			&models.Product{},
			&models.Order{},
			&models.OrderItem{},
			&models.PaymentConfig{},
			&models.ProcessedMessage{},
		)
		if err != nil {
			log.Fatal("Failed to migrate database:", err)
		}
		log.Println("✅ Database migrations completed!")

		store = storage.NewDatabaseStore(database.DB)
		dbPing = func() error {
			sqlDB, err := database.DB.DB()
			if err != nil {
				return err
			}
			return sqlDB.Ping()
		}
		log.Println("✅ Using PostgreSQL database storage")
	}

	graphBaseURL := os.Getenv("WHATSAPP_GRAPH_URL")

	// Initialize all services
	whatsappService := services.NewWhatsAppService(store, cipher, graphBaseURL)
	connectService := services.NewConnectService(store, cipher, graphBaseURL,
		os.Getenv("WHATSAPP_APP_ID"), os.Getenv("WHATSAPP_APP_SECRET"))
	catalog := services.NewStoreCatalog(store)
	orderService := services.NewOrderService(store)

	paymentService := services.NewPaymentService(store, cipher)
	paymentService.Register(models.PaymentProviderRazorpay, services.NewRazorpayProvider(os.Getenv("RAZORPAY_API_URL")))
	paymentService.Register(models.PaymentProviderPayPal, services.NewPayPalProvider(os.Getenv("PAYPAL_API_URL")))

	engine := services.NewConversationEngine(store, catalog, whatsappService, orderService, paymentService)

	// Initialize and start maintenance jobs
	maintenanceJob := jobs.NewMaintenanceJob(store, whatsappService, func() []string {
		accounts, err := store.ListActiveMessagingAccounts()
		if err != nil {
			log.Printf("⚠️  Could not list accounts for health checks: %v", err)
			return nil
		}
		ids := make([]string, 0, len(accounts))
		for _, account := range accounts {
			ids = append(ids, account.TenantID)
		}
		return ids
	})
	maintenanceJob.Start()

	log.Println("✅ All services initialized and scheduled jobs started")

	// Create fiber app
	app := fiber.New(fiber.Config{
		AppName: "ChatCart Backend v1.0.0",
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	// Middleware
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))

	// Setup routes
	routes.SetupRoutes(app, &routes.Handlers{
		Webhook:        handlers.NewWebhookHandler(store, engine, os.Getenv("WEBHOOK_VERIFY_TOKEN")),
		PaymentWebhook: handlers.NewPaymentWebhookHandler(store, paymentService, orderService, whatsappService),
		Connect:        handlers.NewConnectHandler(connectService),
		Orders:         handlers.NewOrderHandler(orderService),
		Health:         handlers.NewHealthHandler(cipher, dbPing),
	})

	// Get port from environment or use default
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Handle graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-c
		log.Println("\n🛑 Gracefully shutting down...")
		log.Println("⏹️  Stopping maintenance jobs...")
		maintenanceJob.Stop()
		log.Println("⏹️  Shutting down server...")
		_ = app.Shutdown()
	}()

	// Start server
	log.Println("========================================")
	log.Printf("🚀 ChatCart Backend starting on port %s", port)
	log.Printf("📊 Storage: %s", getStorageType())
	log.Printf("🌍 Environment: %s", getEnvironment())
	log.Printf("📱 WhatsApp webhook: %s", getWebhookStatus())
	log.Println("========================================")

	log.Fatal(app.Listen(":" + port))
}

func getEnvironment() string {
	if os.Getenv("INSTANCE_CONNECTION_NAME") != "" {
		return "Production (Cloud Run)"
	}
	return "Development (Local)"
}

func getStorageType() string {
	if os.Getenv("USE_MEMORY_STORE") == "true" {
		return "In-Memory (Testing)"
	}
	return "PostgreSQL Database"
}

func getWebhookStatus() string {
	if os.Getenv("WEBHOOK_VERIFY_TOKEN") == "" {
		return "Not configured"
	}
	return "Configured"
}
