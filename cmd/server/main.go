package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/viper"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/knowhub/backend/docs"
	"github.com/knowhub/backend/internal/audit"
	"github.com/knowhub/backend/internal/config"
	"github.com/knowhub/backend/internal/database"
	"github.com/knowhub/backend/internal/handlers"
	mW "github.com/knowhub/backend/internal/middleware"
	"github.com/knowhub/backend/internal/services"
)

// @title KnowHub Backend API
// @version 1.0
// @description API for the KnowHub points ledger and resource platform
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https

func main() {
	// Initialize config
	viper.SetConfigFile(".env") // explicitly point to .env file
	viper.AutomaticEnv()        // allow environment variables to override .env

	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.name", "DATABASE_NAME")
	viper.BindEnv("database.ssl_mode", "DATABASE_SSL_MODE")

	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")

	viper.BindEnv("jwt.secret_key", "JWT_SECRET_KEY")
	viper.BindEnv("jwt.expiry_hours", "JWT_EXPIRY_HOURS")
	viper.BindEnv("argon2.time", "ARGON2_TIME")
	viper.BindEnv("argon2.memory", "ARGON2_MEMORY")
	viper.BindEnv("argon2.threads", "ARGON2_THREADS")
	viper.BindEnv("argon2.key_length", "ARGON2_KEY_LENGTH")
	viper.BindEnv("argon2.salt_length", "ARGON2_SALT_LENGTH")

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Config file not found, using defaults: %v", err)
	}

	docs.SwaggerInfo.Host = viper.GetString("swagger.host")
	if docs.SwaggerInfo.Host == "" {
		docs.SwaggerInfo.Host = "localhost:8080"
	}

	pointsConfig := config.LoadPointsConfig()

	// Initialize services
	db := database.InitDatabase()
	defer db.Close()

	if err := database.EnsureLedgerIndexes(db); err != nil {
		log.Fatalf("Failed to ensure ledger indexes: %v", err)
	}

	redisClient := database.InitRedis()
	if redisClient != nil {
		defer redisClient.Close()
	}

	auditLogger := audit.NewLogger(db)
	ledgerService := services.NewLedgerService(db)
	purchaseResolver := services.NewPurchaseResolver(db)
	accessGate := services.NewAccessGate(ledgerService, purchaseResolver, nil)

	authService := services.NewAuthService(db, redisClient, ledgerService, auditLogger, pointsConfig)
	pointsService := services.NewPointsService(db, ledgerService, auditLogger, pointsConfig)
	resourceService := services.NewResourceService(db, redisClient, accessGate, purchaseResolver, pointsConfig)
	resourceHandler := handlers.NewResourceHandler(resourceService, auditLogger)
	rechargeService := services.NewRechargeService(db, redisClient, ledgerService, pointsConfig)
	rechargeHandler := handlers.NewRechargeHandler(rechargeService, auditLogger)

	// Initialize auth middleware with Redis
	mW.InitAuthMiddleware(redisClient)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(mW.SecurityHeaders)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Access-Control-Allow-Origin"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	// Swagger documentation
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("http://localhost:8080/swagger/doc.json"),
	))

	// Static file server for resource thumbnails
	r.Handle("/static/thumbnails/*", http.StripPrefix("/static/thumbnails/",
		mW.StaticFileServer("./static/thumbnails")))

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		// Public endpoints (no auth required)
		r.Post("/auth/register", authService.Register)
		r.Post("/auth/login", authService.Login)
		r.Post("/auth/logout", authService.Logout)
		r.Get("/recharge/plans", rechargeHandler.ListPlans)

		// Resource browsing works anonymously; purchase flags need identity
		r.Group(func(r chi.Router) {
			r.Use(mW.OptionalAuth)

			r.Get("/resources", resourceHandler.List)
			r.Get("/resources/hot", resourceHandler.Hot)
			r.Get("/resources/{resourceId}", resourceHandler.Get)
			r.Get("/resources/files/{token}", resourceHandler.ServeFile)
		})

		// Protected endpoints (auth required)
		r.Group(func(r chi.Router) {
			r.Use(mW.AuthMiddleware)

			r.Get("/auth/me", authService.GetProfile)

			r.Post("/points/recharge", pointsService.Recharge)
			r.Get("/points/balance", pointsService.GetBalance)
			r.Get("/points/transactions", pointsService.ListTransactions)

			r.Post("/resources/{resourceId}/download", resourceHandler.Download)

			r.Post("/recharge/orders", rechargeHandler.CreateOrder)
			r.Get("/recharge/orders/my", rechargeHandler.MyOrders)
			r.Get("/recharge/orders/{orderId}/qr", rechargeHandler.PaymentQR)

			// Admin endpoints
			r.Group(func(r chi.Router) {
				r.Use(mW.AdminOnly)

				r.Post("/points/admin/adjust", pointsService.AdminAdjust)
				r.Get("/points/admin/transactions", pointsService.AdminListTransactions)

				r.Post("/resources", resourceHandler.Create)
				r.Put("/resources/{resourceId}", resourceHandler.Update)
				r.Delete("/resources/{resourceId}", resourceHandler.Delete)

				r.Post("/recharge/plans", rechargeHandler.CreatePlan)
				r.Put("/recharge/plans/{planId}", rechargeHandler.UpdatePlan)
				r.Delete("/recharge/plans/{planId}", rechargeHandler.DeletePlan)
				r.Get("/recharge/orders", rechargeHandler.ListOrders)
				r.Put("/recharge/orders/{orderId}", rechargeHandler.UpdateOrder)
			})
		})
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Start server
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Printf("Server starting on :%s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server stopped")
}
