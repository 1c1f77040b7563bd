package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/nekogravitycat/room-booking-backend/internal/api"
	"github.com/nekogravitycat/room-booking-backend/internal/auth"
	"github.com/nekogravitycat/room-booking-backend/internal/booking"
	"github.com/nekogravitycat/room-booking-backend/internal/config"
	"github.com/nekogravitycat/room-booking-backend/internal/history"
	"github.com/nekogravitycat/room-booking-backend/internal/notification"
	"github.com/nekogravitycat/room-booking-backend/internal/user"
)

// Config holds the dependencies and settings required to start the application.
type Config struct {
	IsProduction bool
	ProdOrigins  string
	DBPool       *pgxpool.Pool
	// MongoDB is required when BookingStore is config.StoreMongo.
	MongoDB      *mongo.Database
	BookingStore string
	Location     *time.Location
	Logger       *slog.Logger
	JWTSecret    string
	JWTTTL       time.Duration
	BcryptCost   int
}

// Container holds the initialized components that are needed externally.
type Container struct {
	Router         *gin.Engine
	JWTManager     *auth.JWTManager
	BookingService booking.Service
}

// NewContainer initializes all modules and returns the container.
func NewContainer(ctx context.Context, cfg Config) (*Container, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	// Init Components
	passwordHasher := auth.NewBcryptPasswordHasherWithCost(cfg.BcryptCost)
	jwtManager := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTTTL)

	// User Module
	userRepo := user.NewPgxRepository(cfg.DBPool)
	userService := user.NewService(userRepo, passwordHasher, logger)

	// Notification Module
	notificationRepo := notification.NewPgxRepository(cfg.DBPool)
	notificationService := notification.NewService(notificationRepo, logger)

	// History Module
	historyRecorder := history.NewRecorder(history.NewPgxRepository(cfg.DBPool))

	// Booking Module
	bookingRepo, err := newBookingRepository(ctx, cfg)
	if err != nil {
		return nil, err
	}
	bookingService := booking.NewService(bookingRepo, booking.ServiceConfig{
		Location:    cfg.Location,
		Logger:      logger,
		Subscribers: []booking.Subscriber{historyRecorder, notificationService},
	})
	logger.Info("booking store selected", "store", cfg.BookingStore)

	// Router
	router := api.NewRouter(api.Config{
		IsProduction:        cfg.IsProduction,
		ProdOrigins:         cfg.ProdOrigins,
		UserService:         userService,
		BookingService:      bookingService,
		NotificationService: notificationService,
		History:             historyRecorder,
		JWTManager:          jwtManager,
	})

	return &Container{
		Router:         router,
		JWTManager:     jwtManager,
		BookingService: bookingService,
	}, nil
}

func newBookingRepository(ctx context.Context, cfg Config) (booking.Repository, error) {
	switch cfg.BookingStore {
	case "", config.StorePostgres:
		return booking.NewPgxRepository(cfg.DBPool), nil
	case config.StoreMongo:
		if cfg.MongoDB == nil {
			return nil, fmt.Errorf("booking store %q needs a mongodb database", cfg.BookingStore)
		}
		if err := booking.EnsureIndexes(ctx, cfg.MongoDB); err != nil {
			return nil, fmt.Errorf("failed to ensure booking indexes: %w", err)
		}
		return booking.NewMongoRepository(cfg.MongoDB), nil
	case config.StoreMemory:
		return booking.NewMemoryRepository(), nil
	}
	return nil, fmt.Errorf("unknown booking store %q", cfg.BookingStore)
}
