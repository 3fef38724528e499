package routes

import (
	"time"

	"helpnet/config"
	"helpnet/controllers"
	"helpnet/middleware"
	"helpnet/repositories"
	"helpnet/services"
	"helpnet/utils"
	"helpnet/websocket"
	"helpnet/workers"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.mongodb.org/mongo-driver/mongo"
)

// App bundles the wired application: the HTTP router plus the background
// components main starts and stops.
type App struct {
	Router       *gin.Engine
	Hub          *websocket.Hub
	OutboxWorker *workers.OutboxWorker
	ExpiryWorker *workers.ExpiryWorker
}

// SetupApp wires repositories, services, workers, the websocket hub and
// all routes.
func SetupApp(db *mongo.Database, redisClient *redis.Client, cfg *config.Config) *App {
	// Repositories
	userRepo := repositories.NewUserRepository(db)
	emergencyRepo := repositories.NewEmergencyRepository(db)
	messageRepo := repositories.NewMessageRepository(db)

	// Services
	jwtService := utils.NewJWTService(cfg.JWTSecret)
	authService := services.NewAuthService(userRepo, jwtService)
	notificationService := services.NewNotificationService(userRepo, cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioPhoneNumber)

	outboxWorker := workers.NewOutboxWorker(notificationService, emergencyRepo)

	// The hub and the emergency service reference each other.
	hub := websocket.NewHub(authService)
	emergencyService := services.NewEmergencyService(emergencyRepo, userRepo, messageRepo, hub, outboxWorker)
	hub.SetEmergencyService(emergencyService)

	discoveryService := services.NewDiscoveryService(emergencyRepo, userRepo, redisClient, emergencyService)
	messageService := services.NewMessageService(messageRepo, emergencyRepo, userRepo, hub)

	expiryWorker := workers.NewExpiryWorker(emergencyService, time.Duration(cfg.EmergencyMaxAge)*time.Hour)

	// Controllers
	emergencyController := controllers.NewEmergencyController(emergencyService, discoveryService)
	messageController := controllers.NewMessageController(messageService)
	websocketController := controllers.NewWebSocketController(hub)

	// Router
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))

	authMiddleware := middleware.NewAuthMiddleware(authService)

	router.GET("/health", func(c *gin.Context) {
		utils.SuccessResponse(c, "OK", gin.H{"status": "healthy"})
	})

	v1 := router.Group("/api/v1")
	v1.Use(authMiddleware.RequireAuth())
	v1.Use(middleware.RateLimit(middleware.RateLimitConfig{
		Redis:    redisClient,
		Requests: cfg.RateLimitRequests,
		Window:   time.Duration(cfg.RateLimitWindow) * time.Minute,
	}))

	emergencies := v1.Group("/emergencies")
	{
		emergencies.POST("", emergencyController.CreateEmergency)
		emergencies.GET("/nearby", emergencyController.GetNearbyEmergencies)
		emergencies.GET("/pending", emergencyController.GetPendingEmergencies)
		emergencies.GET("/history", emergencyController.GetHistory)
		emergencies.GET("/:emergencyId", emergencyController.GetEmergency)
		emergencies.POST("/:emergencyId/resolve", emergencyController.ResolveEmergency)
		emergencies.POST("/:emergencyId/cancel", emergencyController.CancelEmergency)

		emergencies.POST("/:emergencyId/responders", emergencyController.AddResponder)
		emergencies.PUT("/:emergencyId/responders/status", emergencyController.UpdateResponderStatus)
		emergencies.POST("/:emergencyId/responders/:helperId/report", emergencyController.ReportResponder)

		emergencies.POST("/:emergencyId/messages", messageController.SendMessage)
		emergencies.GET("/:emergencyId/messages", messageController.GetMessages)
		emergencies.DELETE("/:emergencyId/messages/:messageId", messageController.DeleteMessage)
	}

	ws := router.Group("/ws")
	{
		ws.GET("", websocketController.HandleConnection)
		ws.GET("/stats", authMiddleware.RequireAuth(), websocketController.GetStats)
	}

	return &App{
		Router:       router,
		Hub:          hub,
		OutboxWorker: outboxWorker,
		ExpiryWorker: expiryWorker,
	}
}
