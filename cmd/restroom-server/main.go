package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/restroomfinder/restroomfinder/internal/config"
	"github.com/restroomfinder/restroomfinder/internal/domain/location"
	"github.com/restroomfinder/restroomfinder/internal/platform/auth"
	"github.com/restroomfinder/restroomfinder/internal/platform/db"
	"github.com/restroomfinder/restroomfinder/internal/platform/geocode"
	"github.com/restroomfinder/restroomfinder/internal/platform/middleware"
	"github.com/restroomfinder/restroomfinder/internal/platform/recaptcha"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "restroom-server",
		Short: "Community restroom directory API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(hydrateCmd())
	rootCmd.AddCommand(seedCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger() zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" || os.Getenv("ENV") == "" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return logger
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := db.Migrate(ctx, pool); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Println("Migrations applied.")
			return nil
		},
	}
}

func hydrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hydrate",
		Short: "Backfill the store from the remote directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			lat, _ := cmd.Flags().GetFloat64("lat")
			lng, _ := cmd.Flags().GetFloat64("lng")
			query, _ := cmd.Flags().GetString("query")
			perPage, _ := cmd.Flags().GetInt("per-page")

			logger := newLogger()
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			repo := location.NewRepoPG(pool)
			remote := location.NewRemoteHTTP(cfg.RemoteAPIURL, cfg.RemoteTimeout())
			// The CLI is an operator surface; it hydrates regardless of
			// the runtime toggle.
			hydrator := location.NewHydrator(repo, remote, true, logger)

			var sum *location.HydrationSummary
			switch {
			case query != "":
				sum, err = hydrator.BySearch(ctx, query, perPage)
			case cmd.Flags().Changed("lat") && cmd.Flags().Changed("lng"):
				sum, err = hydrator.ByLocation(ctx, lat, lng, perPage)
			default:
				sum, err = hydrator.WithFilters(ctx, location.RemoteFilters{}, perPage)
			}
			if err != nil {
				return err
			}

			fmt.Printf("Hydration complete: %d saved, %d skipped, %d failed of %d\n",
				sum.Saved, sum.Skipped, sum.Failed, sum.Total)
			return nil
		},
	}
	cmd.Flags().Float64("lat", 0, "Latitude to hydrate around")
	cmd.Flags().Float64("lng", 0, "Longitude to hydrate around")
	cmd.Flags().String("query", "", "Text query to hydrate from")
	cmd.Flags().Int("per-page", 20, "Number of remote records to fetch")
	return cmd
}

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Seed the store with sample test data",
		RunE: func(cmd *cobra.Command, args []string) error {
			count, _ := cmd.Flags().GetInt("count")

			logger := newLogger()
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.IsProduction() {
				return fmt.Errorf("seeding is not allowed in production")
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			repo := location.NewRepoPG(pool)
			n, err := location.SeedTestData(ctx, repo, count, logger)
			if err != nil {
				return err
			}
			fmt.Printf("Seeded %d test locations.\n", n)
			return nil
		},
	}
	cmd.Flags().Int("count", 10, "Number of sample locations to insert")
	return cmd
}

func runServer() error {
	logger := newLogger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	if err := db.Migrate(ctx, pool); err != nil {
		logger.Fatal().Err(err).Msg("failed to run migrations")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID", "X-Recaptcha-Token"},
	}))

	apiV1 := e.Group("/api/v1")
	fhirGroup := e.Group("/fhir")
	adminGroup := e.Group("/admin")

	// Public routes stay open; only the admin surface needs a token.
	if cfg.IsDev() {
		adminGroup.Use(auth.DevAuthMiddleware())
	} else {
		adminGroup.Use(auth.JWTMiddleware([]byte(cfg.AdminJWTSecret)))
	}

	apiV1.Use(middleware.RateLimit(middleware.RateLimitConfig{}))
	fhirGroup.Use(middleware.RateLimit(middleware.RateLimitConfig{}))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})
	e.GET("/health/db", db.HealthHandler(pool))

	// Location domain wiring
	repo := location.NewRepoPG(pool)
	remote := location.NewRemoteHTTP(cfg.RemoteAPIURL, cfg.RemoteTimeout())
	hydrator := location.NewHydrator(repo, remote, cfg.HydrationEnabled, logger)

	var geocoder location.Geocoder
	if cfg.GeocoderAPIKey != "" {
		geocoder = geocode.NewClient(cfg.GeocoderAPIKey)
	} else {
		logger.Warn().Msg("GEOCODER_API_KEY not set; submissions without coordinates are stored as-is")
	}

	var captcha location.TokenValidator
	if cfg.RecaptchaSecret != "" {
		captcha = recaptcha.NewClient(cfg.RecaptchaSecret)
	} else {
		logger.Warn().Msg("RECAPTCHA_SECRET not set; submission verification is disabled")
	}

	svc := location.NewService(repo, hydrator, geocoder, captcha, cfg.SparsityThreshold, logger)
	handler := location.NewHandler(svc, hydrator)
	handler.RegisterRoutes(apiV1, fhirGroup, adminGroup)

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Bool("hydration", cfg.HydrationEnabled).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
