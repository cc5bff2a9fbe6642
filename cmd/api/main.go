package main

import (
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	_ "github.com/dotsapp/dots/docs"
	"github.com/dotsapp/dots/internal/activity"
	"github.com/dotsapp/dots/internal/category"
	"github.com/dotsapp/dots/internal/config"
	"github.com/dotsapp/dots/internal/database"
	"github.com/dotsapp/dots/internal/expense"
	expensesplit "github.com/dotsapp/dots/internal/expense/split"
	"github.com/dotsapp/dots/internal/friend"
	"github.com/dotsapp/dots/internal/group"
	"github.com/dotsapp/dots/internal/invite"
	"github.com/dotsapp/dots/internal/sync"
	"github.com/dotsapp/dots/internal/user"
	"github.com/dotsapp/dots/pkg/logging"
	mw "github.com/dotsapp/dots/pkg/middleware"
)

// @title        Dots API
// @version      1.0
// @description  Expense-sharing ledger with offline batch reconciliation.
// @BasePath     /api/v1
func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	// Load configuration
	cfg := config.Load()
	logging.Setup(cfg.LogLevel)

	// Initialize database connection
	db, err := database.NewPostgresConnection(cfg.DatabaseURL)
	if err != nil {
		slog.Error("Failed to connect to database", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	slog.Info("Connected to database successfully")

	// Split Strategy Factory (Factory Pattern)
	splitFactory := expensesplit.NewFactory()

	// Activity feature; its service doubles as the notifier injected into the
	// mutating features.
	activityRepo := activity.NewRepository(db)
	activityService := activity.NewService(activityRepo)
	activityHandler := activity.NewHandler(activityService)

	// User feature
	userRepo := user.NewRepository(db)
	userService := user.NewService(userRepo)

	// Category and friend features
	categoryRepo := category.NewRepository(db)
	friendRepo := friend.NewRepository(db)

	// Invite delivery
	inviteService := invite.NewService()

	// Group feature
	groupRepo := group.NewRepository(db)
	groupService := group.NewService(groupRepo, activityService)
	groupHandler := group.NewHandler(groupService)

	// Expense feature (with split factory injected)
	expenseRepo := expense.NewRepository(db)
	expenseService := expense.NewService(expenseRepo, splitFactory, activityService)
	expenseHandler := expense.NewHandler(expenseService)

	// Sync feature
	syncRepo := sync.NewRepository(db, friendRepo, groupRepo, categoryRepo, expenseRepo)
	syncService := sync.NewService(syncRepo, userService, splitFactory, activityService, inviteService)
	syncHandler := sync.NewHandler(syncService)

	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/swagger/*", httpSwagger.WrapHandler)

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(mw.Auth(cfg.JWTSecret))

		// Mount feature routers
		r.Mount("/groups", groupHandler.Routes())
		r.Mount("/expenses", expenseHandler.Routes())
		r.Mount("/sync", syncHandler.Routes())
		r.Mount("/activities", activityHandler.Routes())
	})

	// Start server
	port := cfg.Port
	if port == "" {
		port = "8080"
	}

	slog.Info("Server starting", "port", port)
	if err := http.ListenAndServe(":"+port, r); err != nil {
		slog.Error("Server failed to start", "err", err)
		os.Exit(1)
	}
}
