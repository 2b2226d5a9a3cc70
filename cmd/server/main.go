package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/nonvi/booking-core/internal/clock"
	"github.com/nonvi/booking-core/internal/config"
	"github.com/nonvi/booking-core/internal/database"
	"github.com/nonvi/booking-core/internal/handlers"
	"github.com/nonvi/booking-core/internal/keystore"
	"github.com/nonvi/booking-core/internal/messaging"
	"github.com/nonvi/booking-core/internal/metrics"
	"github.com/nonvi/booking-core/internal/middleware"
	"github.com/nonvi/booking-core/internal/services"
	"github.com/nonvi/booking-core/pkg/jwt"
	"github.com/nonvi/booking-core/pkg/payment"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

var (
	version   = "1.0.0"
	buildTime = "unknown"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	logger.Info("Starting Nonvi booking core")
	logger.Infof("Version: %s, Build Time: %s", version, buildTime)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	// Set log level
	logLevel, err := logrus.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		logger.Warn("Invalid log level, using INFO")
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	// Set Gin mode
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	location, err := time.LoadLocation(cfg.Booking.Timezone)
	if err != nil {
		logger.Fatalf("Failed to load timezone: %v", err)
	}
	operatingStart, _ := config.ParseClock(cfg.Booking.OperatingStart)
	operatingEnd, _ := config.ParseClock(cfg.Booking.OperatingEnd)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize database connection
	logger.Info("Connecting to database...")
	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		logger.Fatalf("Failed to ping database: %v", err)
	}
	logger.Info("Database connection established")

	if cfg.Database.RunMigrations {
		if err := database.RunMigrations(ctx, db, logger); err != nil {
			logger.Fatalf("Failed to run migrations: %v", err)
		}
	}

	clk := clock.NewSystem()

	// Keystore: Redis when configured, otherwise the kv_store table
	var (
		store   keystore.Store
		pgStore *keystore.PostgresStore
	)
	if cfg.Redis.Addr != "" {
		redisStore, err := keystore.NewRedisStore(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, "booking:")
		if err != nil {
			logger.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer redisStore.Close()
		store = redisStore
		logger.WithField("addr", cfg.Redis.Addr).Info("Using Redis keystore")
	} else {
		pgStore = keystore.NewPostgresStore(db, clk)
		store = pgStore
		logger.Info("Redis not configured, using Postgres keystore")
	}

	// Event publisher
	var publisher messaging.Publisher = messaging.NoopPublisher{}
	if cfg.NATS.URL != "" {
		natsClient, err := messaging.NewNATSClient(messaging.Config{
			URL:       cfg.NATS.URL,
			ClusterID: cfg.NATS.ClusterID,
			ClientID:  cfg.NATS.ClientID,
		}, logger)
		if err != nil {
			logger.Fatalf("Failed to connect to NATS: %v", err)
		}
		publisher = natsClient
	} else {
		logger.Info("NATS not configured, domain events are not published")
	}
	defer publisher.Close()

	// Payment gateway
	var gateway payment.Gateway
	if cfg.Payment.SecretKey != "" {
		gateway = payment.NewHTTPClient(payment.Config{
			Environment: cfg.Payment.Environment,
			SecretKey:   cfg.Payment.SecretKey,
			BaseURL:     cfg.Payment.BaseURL,
			Timeout:     cfg.Payment.Timeout,
		}, logger)
		logger.WithField("environment", cfg.Payment.Environment).Info("Payment gateway initialized")
	} else {
		gateway = payment.NewPlaceholderGateway(logger)
		logger.Warn("PAYMENT_SECRET_KEY not set, using placeholder gateway (development only)")
	}

	// Repositories
	txManager := database.NewTxManager(db)
	holdRepo := database.NewBookingHoldRepository(db)
	reservationRepo := database.NewReservationRepository(db)
	ticketRepo := database.NewTicketRepository(db)
	orderRepo := database.NewOrderRepository(db)
	settingRepo := database.NewSystemSettingRepository(db)
	auditRepo := database.NewAuditRepository(db)

	// Initialize services
	logger.Info("Initializing services...")
	jwtService := jwt.NewService(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.AccessTokenExpiry)

	var auditService *services.AuditService
	if cfg.Security.EnableAuditLog {
		auditService = services.NewAuditService(auditRepo, logger)
	}

	capacityService := services.NewCapacityService(settingRepo, store, auditService, services.CapacityConfig{
		DefaultCapacity: cfg.Booking.DefaultCapacity,
		CacheTTL:        cfg.Booking.SettingsCacheTTL,
	}, logger)
	availabilityService := services.NewAvailabilityService(reservationRepo, holdRepo, capacityService, clk, cfg.Booking.HoldTTL)
	statusEngine := services.NewStatusEngine(location, clk)
	ticketIssuer := services.NewTicketIssuer(ticketRepo, clk, logger)

	intentService := services.NewBookingIntentService(
		txManager,
		holdRepo,
		orderRepo,
		availabilityService,
		capacityService,
		gateway,
		auditService,
		clk,
		services.IntentConfig{
			HoldTTL:         cfg.Booking.HoldTTL,
			OperatingStart:  operatingStart,
			OperatingEnd:    operatingEnd,
			Location:        location,
			Currency:        cfg.Booking.Currency,
			CallbackBaseURL: cfg.Server.PublicURL + "/api/v1",
			CustomerCountry: cfg.Payment.Country,
		},
		logger,
	)

	settlementService := services.NewSettlementService(
		txManager,
		holdRepo,
		reservationRepo,
		orderRepo,
		ticketIssuer,
		availabilityService,
		gateway,
		store,
		publisher,
		auditService,
		clk,
		cfg.Booking.HoldTTL,
		logger,
	)

	scanService := services.NewScanService(txManager, ticketRepo, reservationRepo, publisher, auditService, clk, logger)
	reservationService := services.NewReservationService(reservationRepo, ticketRepo, statusEngine)

	rateLimitService := services.NewRateLimitService(store, clk, services.RateLimitConfig{
		MaxPhoneRequests: cfg.Security.MaxBookingsPerPhone,
		PhoneWindow:      cfg.Security.BookingPhoneWindow,
		MaxIPRequests:    cfg.Security.MaxBookingsPerIP,
		IPWindow:         cfg.Security.BookingIPWindow,
	})

	cleanupConfig := services.HoldCleanupConfig{HoldTTL: cfg.Booking.HoldTTL, Grace: cfg.Booking.CleanupGrace}
	var cleanupService *services.HoldCleanupService
	if pgStore != nil {
		cleanupService = services.NewHoldCleanupService(holdRepo, pgStore, publisher, auditService, clk, cleanupConfig, logger)
	} else {
		// Redis expires keys on its own
		cleanupService = services.NewHoldCleanupService(holdRepo, nil, publisher, auditService, clk, cleanupConfig, logger)
	}

	// Initialize and start cron service
	cronService := services.NewCronService(cleanupService, cfg.Booking.CleanupSchedule, logger)
	if err := cronService.Start(); err != nil {
		logger.Fatalf("Failed to start cron service: %v", err)
	}
	defer cronService.Stop()

	logger.Info("Services initialized")

	// Initialize handlers
	availabilityHandler := handlers.NewAvailabilityHandler(availabilityService, logger)
	bookingHandler := handlers.NewBookingHandler(intentService, rateLimitService, logger)
	reservationHandler := handlers.NewReservationHandler(reservationService, logger)
	paymentHandler := handlers.NewPaymentHandler(settlementService, cfg.Booking.AppRedirectURI, logger)
	scanHandler := handlers.NewScanHandler(scanService, logger)
	systemSettingHandler := handlers.NewSystemSettingHandler(capacityService, logger)

	// Initialize Gin router
	router := gin.New()

	// Middleware
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(metrics.GinMiddleware())
	if cfg.Security.EnableRequestLog {
		router.Use(requestLogger(logger))
	}

	// CORS configuration
	corsConfig := cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		ExposeHeaders:    []string{"Content-Length", middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	router.Use(cors.New(corsConfig))

	// Health check and metrics
	router.GET("/health", healthCheckHandler(db))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	requireAuth := middleware.AuthMiddleware(jwtService, logger)
	staffOnly := middleware.RequireRole(jwt.RoleStaff, jwt.RoleConductor, jwt.RoleAdmin)

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		v1.GET("/availability", availabilityHandler.GetAvailability)

		bookings := v1.Group("/bookings")
		{
			bookings.POST("/transport", middleware.OptionalAuth(jwtService, logger), bookingHandler.CreateTransportBooking)
			bookings.POST("/order", requireAuth, bookingHandler.CreateOrderBooking)
		}

		v1.GET("/reservations/:id", requireAuth, reservationHandler.GetReservation)

		// Gateway webhooks and browser returns carry no bearer token
		payments := v1.Group("/payments")
		{
			payments.GET("/callback/:type/:ref", paymentHandler.Callback)
			payments.POST("/callback/:type/:ref", paymentHandler.Callback)
			payments.GET("/return/:type/:ref", paymentHandler.Return)
		}

		staff := v1.Group("/staff", requireAuth, staffOnly)
		{
			staff.POST("/scan", scanHandler.Scan)
		}

		settings := v1.Group("/system-settings", requireAuth, middleware.RequireRole(jwt.RoleAdmin))
		{
			settings.GET("", systemSettingHandler.GetAllSettings)
			settings.GET("/:key", systemSettingHandler.GetSettingByKey)
			settings.PUT("/:key", systemSettingHandler.UpdateSetting)
		}

		admin := v1.Group("/admin", requireAuth, middleware.RequireRole(jwt.RoleAdmin))
		{
			admin.GET("/jobs", func(c *gin.Context) {
				c.JSON(http.StatusOK, cronService.GetJobStatus())
			})
			admin.POST("/jobs/cleanup-holds", func(c *gin.Context) {
				cronService.RunCleanupNow()
				c.JSON(http.StatusAccepted, gin.H{"message": "Hold cleanup started"})
			})
		}
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 45 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Infof("Server listening on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	<-ctx.Done()
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited")
}

// requestLogger logs one line per request with its outcome
func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		fields := logrus.Fields{
			"status":     c.Writer.Status(),
			"method":     c.Request.Method,
			"path":       path,
			"ip":         c.ClientIP(),
			"latency_ms": time.Since(start).Milliseconds(),
			"user_agent": c.Request.UserAgent(),
			"request_id": middleware.GetRequestID(c),
			"has_auth":   c.GetHeader("Authorization") != "",
		}

		// Add user context if available
		if userCtx, ok := middleware.GetUserContext(c); ok {
			fields["user_id"] = userCtx.UserID
			fields["roles"] = userCtx.Roles
		}

		entry := logger.WithFields(fields)

		if len(c.Errors) > 0 {
			entry.WithField("errors", c.Errors.String()).Error("Request failed with errors")
			return
		}

		status := c.Writer.Status()
		if status >= 500 {
			entry.Error("Request completed with server error")
		} else if status >= 400 {
			entry.Warn("Request completed with client error")
		} else {
			entry.Info("Request completed successfully")
		}
	}
}

// healthCheckHandler returns a health check endpoint
func healthCheckHandler(db database.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		dbStatus := "healthy"
		if err := db.PingContext(c.Request.Context()); err != nil {
			dbStatus = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"database": dbStatus,
				"error":    err.Error(),
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"database":  dbStatus,
			"version":   version,
			"timestamp": time.Now().Unix(),
		})
	}
}
