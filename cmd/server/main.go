package main

import (
	"context"
	"log"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/phlockapp/backend/internal/router"
	"github.com/phlockapp/backend/pkg/config"
	"github.com/phlockapp/backend/pkg/firebase"
	"github.com/phlockapp/backend/pkg/logger"
	"github.com/phlockapp/backend/validators"
)

func main() {
	// Load configuration
	cfg := config.Load()
	appLog := logger.New(cfg.Env)

	// Initialize database connections
	db, err := config.InitDB()
	if err != nil {
		log.Fatalf("Failed to initialize databases: %v", err)
	}
	defer db.CloseDB()

	// Initialize Firebase. Push and Firebase login degrade gracefully when
	// credentials are absent (local development).
	ctx := context.Background()
	firebaseApp, err := firebase.InitFirebase(ctx, cfg.FirebaseCredentialsPath)
	if err != nil {
		appLog.WithError(err).Warn("Firebase unavailable, push notifications disabled")
		firebaseApp = nil
	}

	// Create Echo instance
	e := echo.New()

	// Setup global middleware
	router.SetupMiddleware(e)

	// Setup routes and dependencies
	app, err := router.SetupRoutes(e, db.Postgres, db.Mongo, firebaseApp, cfg, appLog)
	if err != nil {
		log.Fatalf("Failed to set up routes: %v", err)
	}

	// Validator
	e.Validator = validators.NewValidator()

	// Apply phlock swaps that were deferred to midnight
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			if err := app.Phlock.ProcessDueSwaps(context.Background()); err != nil {
				appLog.WithError(err).Error("processing due phlock swaps")
			}
		}
	}()

	// Start server
	e.Logger.Fatal(e.Start(":" + cfg.Port))
}
