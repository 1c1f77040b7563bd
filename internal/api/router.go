package api

import (
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/nekogravitycat/room-booking-backend/internal/auth"
	"github.com/nekogravitycat/room-booking-backend/internal/booking"
	bookingHttp "github.com/nekogravitycat/room-booking-backend/internal/booking/http"
	"github.com/nekogravitycat/room-booking-backend/internal/notification"
	notificationHttp "github.com/nekogravitycat/room-booking-backend/internal/notification/http"
	"github.com/nekogravitycat/room-booking-backend/internal/user"
	userHttp "github.com/nekogravitycat/room-booking-backend/internal/user/http"
)

// Config holds the services the router exposes.
type Config struct {
	IsProduction        bool
	ProdOrigins         string
	UserService         user.Service
	BookingService      booking.Service
	NotificationService notification.Service
	History             bookingHttp.HistoryReader
	JWTManager          *auth.JWTManager
}

// NewRouter initializes the HTTP router engine.
// It is responsible for assembling middleware (CORS, Logger, Auth) and registering routes for various modules.
func NewRouter(cfg Config) *gin.Engine {
	if cfg.IsProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// Global Middleware:
	// - Logger: Logs request information to the console.
	// - Recovery: Captures panics to prevent server crashes and returns a 500 error.
	r.Use(gin.Logger(), gin.Recovery())

	// Configure CORS (Cross-Origin Resource Sharing).
	config := cors.DefaultConfig()
	config.AllowOrigins = allowedOrigins(cfg.IsProduction, cfg.ProdOrigins)
	config.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	config.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	r.Use(cors.New(config))

	// authMiddleware: Validates if the request contains a valid JWT.
	authMiddleware := auth.AuthRequired(cfg.JWTManager)
	// adminMiddleware: Further checks if the authenticated user is an admin.
	adminMiddleware := RequireAdmin(cfg.UserService)

	// Initialize HTTP Handlers for each module (injecting Service dependencies).
	userHandler := userHttp.NewHandler(cfg.UserService, cfg.JWTManager)
	bookingHandler := bookingHttp.NewHandler(cfg.BookingService, cfg.UserService, cfg.History)
	notificationHandler := notificationHttp.NewHandler(cfg.NotificationService)

	// Register API routes under /v1
	v1 := r.Group("/v1")
	{
		userHttp.RegisterRoutes(v1, userHandler, authMiddleware, adminMiddleware)
		bookingHttp.RegisterRoutes(v1, bookingHandler, authMiddleware)
		notificationHttp.RegisterRoutes(v1, notificationHandler, authMiddleware)
	}

	return r
}

// allowedOrigins returns the comma separated PROD_ORIGINS in production and
// the local frontend and Swagger origins otherwise.
func allowedOrigins(isProduction bool, prodOrigins string) []string {
	if !isProduction {
		return []string{
			"http://localhost:3000", // Frontend
			"http://localhost:8081", // Swagger
		}
	}

	var origins []string
	for _, o := range strings.Split(prodOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}
