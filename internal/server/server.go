package server

import (
	"fmt"
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/Eissaali11/nuzum-edut-sub003/internal/config"
	"github.com/Eissaali11/nuzum-edut-sub003/internal/handler"
	"github.com/Eissaali11/nuzum-edut-sub003/internal/middleware"
	"github.com/Eissaali11/nuzum-edut-sub003/internal/service"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Server represents the HTTP server and the background services it owns
type Server struct {
	router *gin.Engine
	config *config.Config
	db     *gorm.DB
	redis  *redis.Client
	nats   *nats.Conn

	wsHub      *handler.WSHub
	wsHandler  *handler.WSHandler
	reconciler *service.Reconciler
	notifier   *service.NotificationService
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config, db *gorm.DB, redisClient *redis.Client, natsConn *nats.Conn) *Server {
	return &Server{
		config: cfg,
		db:     db,
		redis:  redisClient,
		nats:   natsConn,
	}
}

// Setup initializes services, handlers and routes
func (s *Server) Setup() error {
	tz, err := time.LoadLocation(s.config.AttendanceTZ)
	if err != nil {
		return fmt.Errorf("load attendance timezone %q: %w", s.config.AttendanceTZ, err)
	}

	// WebSocket hub first, it feeds from the same NATS subjects the
	// services publish to
	s.wsHub = handler.NewWSHub(s.nats)
	s.wsHandler = handler.NewWSHandler(s.wsHub)

	// Services
	locks := service.NewKeyedLocker()
	audit := service.NewAuditService()
	authService := service.NewAuthService(s.db)
	presenceService := service.NewPresenceService(s.db, s.redis, audit, tz)
	ingestService := service.NewIngestService(s.db, s.redis, s.nats, presenceService, locks)
	queryService := service.NewPresenceQueryService(s.db, s.redis, tz)
	zoneService := service.NewZoneService(s.db, presenceService, audit)
	reportService := service.NewReportService(s.db, queryService)
	reconciler := service.NewReconciler(s.db, audit, locks)
	notifier := service.NewNotificationService(s.db, s.nats, s.config.PushURL)
	operationService := service.NewOperationService(s.db, s.nats, audit, notifier, reconciler, locks)
	vehicleService := service.NewVehicleService(s.db, audit, reconciler)
	employeeService := service.NewEmployeeService(s.db)

	s.reconciler = reconciler
	s.notifier = notifier

	// Handlers
	authHandler := handler.NewAuthHandler(authService, s.config)
	locationHandler := handler.NewLocationHandler(ingestService, queryService)
	zoneHandler := handler.NewZoneHandler(zoneService, presenceService, queryService, reportService, s.config.StalenessWindow)
	operationHandler := handler.NewOperationHandler(operationService)
	vehicleHandler := handler.NewVehicleHandler(vehicleService)
	employeeHandler := handler.NewEmployeeHandler(employeeService)
	notificationHandler := handler.NewNotificationHandler(notifier)

	// Background services
	reconciler.Start()
	log.Println("[Server] Reconciler started")
	if err := notifier.Start(); err != nil {
		return fmt.Errorf("start notification service: %w", err)
	}
	go s.wsHub.Run()
	log.Println("[Server] WebSocket hub started")

	// Gin router
	s.router = gin.Default()

	// CORS middleware
	s.router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	// Swagger UI
	s.router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Public routes
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	limiter := middleware.NewRedisRateLimiter(s.redis)
	loginRule := s.config.GetRateLimitRuleForPath("/api/v1/auth/login")
	s.router.POST("/api/v1/auth/login",
		middleware.NewRateLimitMiddleware(limiter, loginRule.ToMiddlewareConfig()).Middleware(),
		authHandler.Login)

	// WebSocket routes
	s.router.GET("/ws/events", s.wsHandler.HandleEvents)
	s.router.GET("/ws/stats", s.wsHandler.GetStats)

	// Protected routes
	api := s.router.Group("/api/v1")
	api.Use(authHandler.AuthMiddleware())
	{
		// Auth
		api.GET("/auth/me", authHandler.GetMe)

		// Location ingest and queries
		ingestRule := s.config.GetRateLimitRuleForPath("/api/v1/locations")
		api.POST("/locations",
			middleware.NewRateLimitMiddleware(limiter, ingestRule.ToMiddlewareConfig()).Middleware(),
			locationHandler.Ingest)
		api.GET("/locations/live", locationHandler.Live)
		api.GET("/employees/:id/history", locationHandler.History)

		// Employees
		api.GET("/employees", employeeHandler.List)
		api.POST("/employees", employeeHandler.Create)
		api.GET("/employees/:id", employeeHandler.Get)
		api.PUT("/employees/:id", employeeHandler.Update)
		api.PUT("/employees/:id/departments", employeeHandler.SetDepartments)

		// Zones
		api.GET("/zones", zoneHandler.List)
		api.POST("/zones", zoneHandler.Create)
		api.GET("/zones/:id", zoneHandler.Get)
		api.PUT("/zones/:id", zoneHandler.Update)
		api.DELETE("/zones/:id", zoneHandler.Deactivate)
		api.GET("/zones/:id/present", zoneHandler.Present)
		api.GET("/zones/:id/attendance", zoneHandler.Attendance)
		api.GET("/zones/:id/attendance/export", zoneHandler.ExportAttendance)
		api.POST("/zones/:id/check-in", zoneHandler.CheckIn)
		api.POST("/zones/:id/assign", zoneHandler.AssignEmployees)
		api.GET("/zones/:id/events", zoneHandler.Events)

		// Vehicles
		api.GET("/vehicles", vehicleHandler.List)
		api.POST("/vehicles", vehicleHandler.Create)
		api.GET("/vehicles/:id", vehicleHandler.Get)
		api.POST("/vehicles/:id/out-of-service", handler.RequireRole("admin", "manager"), vehicleHandler.SetOutOfService)
		api.DELETE("/vehicles/:id/out-of-service", handler.RequireRole("admin", "manager"), vehicleHandler.ClearOutOfService)
		api.POST("/vehicles/:id/reconcile", handler.RequireRole("admin", "manager"), vehicleHandler.Reconcile)

		// Operation workflow
		api.GET("/operations", operationHandler.List)
		api.POST("/operations", operationHandler.Submit)
		api.GET("/operations/:id", operationHandler.Get)
		api.POST("/operations/:id/review", handler.RequireRole("admin", "manager"), operationHandler.Review)
		api.POST("/operations/:id/approve", handler.RequireRole("admin", "manager"), operationHandler.Approve)
		api.POST("/operations/:id/reject", handler.RequireRole("admin", "manager"), operationHandler.Reject)

		// Notifications
		api.GET("/notifications", notificationHandler.List)
		api.GET("/notifications/unread-count", notificationHandler.UnreadCount)
		api.POST("/notifications/:id/read", notificationHandler.MarkRead)
		api.POST("/notifications/batch-read", notificationHandler.BatchRead)
	}

	return nil
}

// Run starts the HTTP server
func (s *Server) Run(addr string) error {
	log.Printf("[Server] HTTP server listening on %s", addr)
	return s.router.Run(addr)
}

// GetRouter returns the gin router for testing
func (s *Server) GetRouter() *gin.Engine {
	return s.router
}

// Shutdown gracefully shuts down the background services
func (s *Server) Shutdown() {
	if s.wsHub != nil {
		s.wsHub.Stop()
		log.Println("[Server] WebSocket hub stopped")
	}
	if s.notifier != nil {
		s.notifier.Stop()
		log.Println("[Server] Notification service stopped")
	}
	if s.reconciler != nil {
		s.reconciler.Stop()
		log.Println("[Server] Reconciler stopped")
	}
}
