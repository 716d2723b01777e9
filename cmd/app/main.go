package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	jwtware "github.com/gofiber/jwt/v2"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/wichananm65/smart-cart-backend/internal/activity"
	"github.com/wichananm65/smart-cart-backend/internal/cart"
	"github.com/wichananm65/smart-cart-backend/internal/category"
	"github.com/wichananm65/smart-cart-backend/internal/checkout"
	"github.com/wichananm65/smart-cart-backend/internal/config"
	"github.com/wichananm65/smart-cart-backend/internal/dashboard"
	"github.com/wichananm65/smart-cart-backend/internal/database"
	"github.com/wichananm65/smart-cart-backend/internal/metrics"
	"github.com/wichananm65/smart-cart-backend/internal/money"
	"github.com/wichananm65/smart-cart-backend/internal/order"
	"github.com/wichananm65/smart-cart-backend/internal/payment"
	"github.com/wichananm65/smart-cart-backend/internal/product"
	"github.com/wichananm65/smart-cart-backend/internal/user"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err == nil {
		err = cfg.Validate()
	}
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(log)
	if err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("database unavailable", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := database.Migrate(ctx, db); err != nil {
		log.Error("schema migration failed", "error", err)
		os.Exit(1)
	}

	calc, err := money.NewCalculator(cfg.SurchargeRate)
	if err != nil {
		log.Error("invalid surcharge rate", "error", err)
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	checkoutMetrics := metrics.NewCheckout(reg)

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Use(recover.New())
	app.Use(requestid.New())
	setupCORS(app)
	app.Use(logger.New(logger.Config{
		Format:     `{"time":"${time}","request_id":"${locals:requestid}","method":"${method}","path":"${path}","status":${status},"latency":"${latency}"}` + "\n",
		TimeFormat: time.RFC3339,
	}))

	userService := user.NewService(user.NewPostgresRepository(db))
	userHandler := user.NewHandler(userService, []byte(cfg.JWTSecret))

	productService := product.NewService(product.NewPostgresRepository(db))
	productHandler := product.NewHandler(productService)
	categoryHandler := category.NewHandler(category.NewService(category.NewPostgresRepository(db), productService))

	cartService := cart.NewService(cart.NewPostgresRepository(db), productService, calc)
	cartHandler := cart.NewHandler(cartService)

	orderRepo := order.NewPostgresRepository(db)
	orderService := order.NewService(orderRepo)
	orderHandler := order.NewHandler(orderService, productService, log)
	dashboardHandler := dashboard.NewHandler(dashboard.NewService(orderService, productService, userService))

	activityService := activity.NewService(activity.NewPostgresRepository(db))
	activityHandler := activity.NewHandler(activityService)

	stripeProvider := payment.NewStripeProvider(payment.StripeConfig{
		SecretKey:     cfg.StripeSecretKey,
		WebhookSecret: cfg.StripeWebhookSecret,
		Timeout:       cfg.PaymentTimeout,
	})
	verifier := payment.NewVerifier(stripeProvider, cfg.PaymentTimeout, checkoutMetrics)
	checkoutService := checkout.NewService(
		checkout.NewSnapshotReader(cartService, productService, calc),
		stripeProvider,
		checkout.Settings{
			Currency:         cfg.Currency,
			SuccessURL:       cfg.SuccessURL,
			CancelURL:        cfg.CancelURL,
			AllowedCountries: cfg.ShippingCountries,
			MinChargeCents:   cfg.MinChargeCents,
		},
		checkoutMetrics, log,
	)
	finalizer := checkout.NewFinalizer(orderRepo, verifier, cartService, activityService, calc, checkoutMetrics, log)
	checkoutHandler := checkout.NewHandler(checkoutService, finalizer, stripeProvider, checkout.DefaultBackoff, checkoutMetrics, log)

	app.Get("/healthz", func(c *fiber.Ctx) error {
		if err := db.PingContext(c.UserContext()); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unavailable"})
		}
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler(reg)))

	// public routes must be registered before the jwt middleware
	userHandler.RegisterPublicRoutes(app)
	categoryHandler.RegisterPublicRoutes(app)
	productHandler.RegisterPublicRoutes(app)
	checkoutHandler.RegisterPublicRoutes(app)

	app.Use(jwtware.New(jwtware.Config{
		SigningKey: []byte(cfg.JWTSecret),
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "unauthorized"})
		},
	}))

	userHandler.RegisterProtectedRoutes(app)
	cartHandler.RegisterProtectedRoutes(app)
	orderHandler.RegisterProtectedRoutes(app)
	checkoutHandler.RegisterProtectedRoutes(app)

	userHandler.RegisterAdminRoutes(app)
	orderHandler.RegisterAdminRoutes(app)
	activityHandler.RegisterAdminRoutes(app)
	dashboardHandler.RegisterAdminRoutes(app)

	go func() {
		<-ctx.Done()
		log.Info("shutting down")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Error("shutdown failed", "error", err)
		}
	}()

	log.Info("listening", "addr", cfg.Addr)
	if err := app.Listen(cfg.Addr); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func setupCORS(app *fiber.App) {
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,HEAD,PUT,DELETE,PATCH",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))
}
