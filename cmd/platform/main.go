package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	caseapi "github.com/cavim/platform/internal/case/api"
	caseinfra "github.com/cavim/platform/internal/case/infrastructure"
	"github.com/cavim/platform/internal/catalog"
	"github.com/cavim/platform/internal/identity"
	"github.com/cavim/platform/internal/notification"
	"github.com/cavim/platform/internal/report"
	"github.com/cavim/platform/internal/shared/auth"
	"github.com/cavim/platform/internal/shared/config"
	"github.com/cavim/platform/internal/shared/database"
	"github.com/cavim/platform/internal/shared/metrics"
	secmiddleware "github.com/cavim/platform/internal/shared/middleware"
	"github.com/cavim/platform/internal/victim"
)

// App holds all application dependencies
type App struct {
	Config *config.Config
	DB     *database.DB
}

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	db, err := database.New(ctx, cfg.Database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := database.Migrate(ctx, db.Pool); err != nil {
		fmt.Fprintf(os.Stderr, "failed to run migrations: %v\n", err)
		os.Exit(1)
	}

	app := &App{Config: cfg, DB: db}

	// Email: log-only sender unless a provider key is configured.
	var sender notification.Sender
	if cfg.Email.ResendAPIKey != "" {
		sender = notification.NewResendSender(cfg.Email.ResendAPIKey, cfg.Email.From)
	} else {
		fmt.Println("RESEND_API_KEY not set, outbound email disabled")
		sender = notification.NewMemorySender()
	}

	identityRepo := identity.NewPostgresRepository(db)
	identityService := identity.NewService(identityRepo, sender, cfg.Auth, cfg.Email)
	identityHandler := identity.NewHandler(identityService)

	catalogRepo := catalog.NewPostgresRepository(db)
	catalogHandler := catalog.NewHandler(catalogRepo)

	victimRepo := victim.NewPostgresRepository(db)
	victimHandler := victim.NewHandler(victimRepo)

	caseRepo := caseinfra.NewPostgresRepository(db)
	caseNotifier := notification.NewCaseNotifier(sender, identityRepo)
	caseHandler := caseapi.NewHandler(caseRepo, caseNotifier)

	reportService := report.NewService(db)
	reportHandler := report.NewHandler(reportService)

	loginLimiter := secmiddleware.NewIPRateLimiter(cfg.Auth.LoginRatePerMinute, cfg.Auth.LoginBurst)

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(secmiddleware.SecurityHeaders)
	r.Use(secmiddleware.MaxBodySize(1 << 20))
	r.Use(metrics.Middleware)
	r.Use(secmiddleware.CORS([]string{"*"}))

	// Health checks (unauthenticated)
	r.Get("/health", healthHandler(app))
	r.Get("/ready", readyHandler(app))
	r.Handle("/metrics", metrics.Handler())
	r.Get("/", infoHandler)

	r.Route("/api/v1", func(r chi.Router) {
		// Credential endpoints, throttled per IP.
		r.Group(func(r chi.Router) {
			r.Use(loginLimiter.Middleware)
			r.Mount("/auth", identityHandler.PublicRoutes())
		})

		// Everything else requires a session.
		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(cfg.Auth.JWTSecret))

			r.Mount("/session", identityHandler.SessionRoutes())
			r.Mount("/users", identityHandler.AdminRoutes())
			r.Mount("/catalogs", catalogHandler.Routes())
			r.Mount("/areas", catalogHandler.AreaRoutes())
			r.Mount("/victims", victimHandler.Routes())
			r.Mount("/cases", caseHandler.Routes())
			r.Mount("/reports", reportHandler.Routes())
		})
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	done := make(chan bool)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		fmt.Println("\nShutting down server...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			fmt.Printf("Server shutdown error: %v\n", err)
		}
		close(done)
	}()

	fmt.Println("============================================")
	fmt.Println("CAVIM - Plataforma de Atención a Víctimas")
	fmt.Println("============================================")
	fmt.Printf("Environment: %s\n", cfg.Server.Env)
	fmt.Printf("Server:      http://localhost:%d\n", cfg.Server.Port)
	fmt.Printf("API:         http://localhost:%d/api/v1\n", cfg.Server.Port)
	fmt.Printf("Health:      http://localhost:%d/health\n", cfg.Server.Port)
	fmt.Println("============================================")

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}

	<-done
	fmt.Println("Server stopped")
}

func infoHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"name":    "CAVIM Case Management API",
		"version": "1.0.0",
		"docs":    "/api/v1",
	})
}

func healthHandler(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{
			"status": "healthy",
		})
	}
}

func readyHandler(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"server": "ready",
		}

		if err := app.DB.Health(r.Context()); err != nil {
			checks["database"] = "not ready: " + err.Error()
		} else {
			checks["database"] = "ready"
		}

		allReady := true
		for _, status := range checks {
			if status != "ready" {
				allReady = false
				break
			}
		}

		status := http.StatusOK
		if !allReady {
			status = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]any{
			"status": map[bool]string{true: "ready", false: "not ready"}[allReady],
			"checks": checks,
		})
	}
}
