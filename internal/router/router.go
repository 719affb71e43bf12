package router

import (
	"log"
	"time"

	"firebase.google.com/go/v4/auth"
	"github.com/labstack/echo/v4"
	eMiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/phlockapp/backend/internal/handlers"
	"github.com/phlockapp/backend/internal/middleware"
	"github.com/phlockapp/backend/internal/models"
	"github.com/phlockapp/backend/internal/repositories"
	"github.com/phlockapp/backend/internal/services"
	"github.com/phlockapp/backend/pkg/config"
	"github.com/phlockapp/backend/pkg/firebase"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"
	"gorm.io/gorm"
)

// SetupMiddleware configures global Echo middleware
func SetupMiddleware(e *echo.Echo) {
	e.Use(eMiddleware.Recover())
	e.Use(eMiddleware.CORS())
	log.Println("Global middleware configured.")
}

// App bundles the wired services the server loop needs outside request
// handling (currently the swap scheduler).
type App struct {
	Phlock *services.Phlock
}

// SetupRoutes configures all application routes and injects dependencies
func SetupRoutes(
	e *echo.Echo,
	pgdb *gorm.DB,
	mgClient *mongo.Client,
	firebaseApp *firebase.App,
	cfg *config.Config,
	appLog *logrus.Logger,
) (*App, error) {
	// AutoMigrate PostgreSQL models
	err := pgdb.AutoMigrate(
		&models.User{},
		&models.DeviceToken{},
		&models.Notification{},
		&models.Share{},
		&models.Follow{},
		&models.PhlockSwap{},
		&models.FollowRequest{},
		&models.Like{},
		&models.Comment{},
		&models.CommentLike{},
	)
	if err != nil {
		return nil, err
	}
	log.Println("PostgreSQL auto-migrations completed for all models.")

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		appLog.WithError(err).Warnf("unknown timezone %q, falling back to local", cfg.Timezone)
		loc = time.Local
	}

	// Health check - always accessible
	e.GET("/health", handlers.HealthCheck)

	// --- Initialize Repositories ---
	userRepo := repositories.NewPostgresUserRepository(pgdb)
	notificationRepo := repositories.NewPostgresNotificationRepository(pgdb)
	shareRepo := repositories.NewPostgresShareRepository(pgdb)
	followRepo := repositories.NewPostgresFollowRepository(pgdb)
	followRequestRepo := repositories.NewPostgresFollowRequestRepository(pgdb)
	likeRepo := repositories.NewPostgresLikeRepository(pgdb)
	commentRepo := repositories.NewPostgresCommentRepository(pgdb)
	commentLikeRepo := repositories.NewPostgresCommentLikeRepository(pgdb)
	engagementRepo := repositories.NewMongoEngagementRepository(mgClient.Database("phlock"))

	// --- Initialize Services ---
	tasks := services.NewAsyncRunner(appLog)

	var pusher services.Pusher = services.NopPusher{}
	if firebaseApp != nil && firebaseApp.MessagingClient != nil {
		pusher = services.NewFCMPusher(firebaseApp.MessagingClient, userRepo)
	}

	var catalog services.MusicCatalog = services.PassthroughCatalog{}
	if cfg.CatalogURL != "" {
		catalog = services.NewHTTPCatalog(cfg.CatalogURL)
	}

	notifier := services.NewNotifier(notificationRepo, userRepo, pusher, tasks, loc)
	shares := services.NewShares(shareRepo, followRepo, engagementRepo, notifier, catalog, tasks, appLog, loc)
	engagement := services.NewEngagement(likeRepo, commentRepo, commentLikeRepo, shareRepo, notifier, tasks)
	phlock := services.NewPhlock(followRepo, followRequestRepo, userRepo, shareRepo, notifier, appLog, loc)

	// --- Unprotected routes for authentication ---
	authGroup := e.Group("/api/v1/auth")
	var authClient *auth.Client
	if firebaseApp != nil {
		authClient = firebaseApp.AuthClient
	}
	authHandler := handlers.NewAuthHandler(userRepo, authClient, cfg.JWTSecret)
	authHandler.RegisterAuthRoutes(authGroup)
	log.Println("Auth routes configured.")

	// --- Protected routes (require JWT authentication) ---
	api := e.Group("/api/v1")
	api.Use(middleware.JWTAuthMiddleware(cfg.JWTSecret))
	log.Println("JWT authentication middleware applied to /api/v1 group.")

	// User profile routes
	userHandler := handlers.NewUserHandler(userRepo)
	userHandler.RegisterUserRoutes(api)
	log.Println("User routes configured.")

	// Notification routes
	notificationHandler := handlers.NewNotificationHandler(notifier)
	notificationHandler.RegisterNotificationRoutes(api)
	log.Println("Notification routes configured.")

	// Share and daily-song routes
	shareHandler := handlers.NewShareHandler(shares)
	shareHandler.RegisterShareRoutes(api)
	log.Println("Share routes configured.")

	// Like and comment routes
	engagementHandler := handlers.NewEngagementHandler(engagement, commentRepo, commentLikeRepo, likeRepo)
	engagementHandler.RegisterEngagementRoutes(api)
	log.Println("Engagement routes configured.")

	// Follow and phlock routes
	followHandler := handlers.NewFollowHandler(phlock)
	followHandler.RegisterFollowRoutes(api)
	log.Println("Follow routes configured.")

	// Follow request routes
	followRequestHandler := handlers.NewFollowRequestHandler(phlock)
	followRequestHandler.RegisterFollowRequestRoutes(api)
	log.Println("Follow request routes configured.")

	// Feed routes
	feedHandler := handlers.NewFeedHandler(phlock, shares, engagement, likeRepo, commentRepo)
	feedHandler.RegisterFeedRoutes(api)
	log.Println("Feed routes configured.")

	log.Println("All routes configured.")
	return &App{Phlock: phlock}, nil
}
