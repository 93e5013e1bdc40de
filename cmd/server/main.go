package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/pixter/pixter-backend/internal/config"
	"github.com/pixter/pixter-backend/internal/db"
	"github.com/pixter/pixter-backend/internal/goroutine"
	httpHandlers "github.com/pixter/pixter-backend/internal/http/handlers"
	httpRouter "github.com/pixter/pixter-backend/internal/http/router"
	"github.com/pixter/pixter-backend/internal/logger"
	"github.com/pixter/pixter-backend/internal/mailer"
	"github.com/pixter/pixter-backend/internal/oauth"
	"github.com/pixter/pixter-backend/internal/payments"
	"github.com/pixter/pixter-backend/internal/ratelimit"
	"github.com/pixter/pixter-backend/internal/receipt"
	"github.com/pixter/pixter-backend/internal/repository"
	"github.com/pixter/pixter-backend/internal/service"
	"github.com/pixter/pixter-backend/internal/sms"
	"github.com/pixter/pixter-backend/internal/storage"
	"github.com/pixter/pixter-backend/internal/ws"
)

func main() {
	// Готовим контекст для graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("main: ошибка загрузки конфигурации: %v", err)
	}

	// Инициализация логгера
	if cfg.IsProduction() {
		logger.Init("info")
	} else {
		logger.Init("debug")
		logger.SetTextFormatter()
	}

	// Подключение к базе и миграции.
	dbConn, err := db.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("main: ошибка подключения к базе: %v", err)
	}
	defer safeClose(dbConn)

	if _, err := db.RunMigrations(ctx, dbConn, db.MigrationsSource(cfg.MigrationsPath)); err != nil {
		log.Fatalf("main: ошибка миграций: %v", err)
	}

	// Redis необязателен: без него лимиты хранятся в памяти процесса.
	var rdb *redis.Client
	if cfg.RedisURL != "" {
		rdb, err = ratelimit.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			log.Fatalf("main: %v", err)
		}
		defer func() { _ = rdb.Close() }()
	}

	apiLimiter := mustLimiter(rdb, "pixter:api", cfg.RateLimitLimit, cfg.RateLimitPeriod)
	smsLimiter := mustLimiter(rdb, "pixter:sms", cfg.Verification.SendLimit, cfg.Verification.SendPeriod)

	// Внешние провайдеры.
	var smsSender service.SMSSender = sms.LogSender{}
	if cfg.Twilio.Enabled() {
		smsSender = sms.NewTwilioSender(cfg.Twilio.AccountSID, cfg.Twilio.AuthToken, cfg.Twilio.FromNumber)
	} else {
		logger.Log.Warn("main: Twilio не настроен, коды пишутся в лог")
	}

	gateway := payments.NewStripeGateway(cfg.Stripe.SecretKey, cfg.Stripe.WebhookSecret)

	var google service.GoogleAuthenticator
	if cfg.Google.Enabled() {
		google = oauth.NewGoogleProvider(cfg.Google.ClientID, cfg.Google.ClientSecret, cfg.Google.RedirectURL)
	}

	objectStorage, err := storage.NewObjectStorage(cfg.Storage.Path, cfg.Storage.PublicURL, cfg.Storage.MaxUploadSizeMB)
	if err != nil {
		log.Fatalf("main: не удалось подготовить файловое хранилище: %v", err)
	}

	var receiptMailer service.ReceiptMailer
	if cfg.SMTP.Enabled() {
		receiptMailer = mailer.New(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.User, cfg.SMTP.Password, cfg.SMTP.From)
	}

	// Репозитории.
	identityRepo := repository.NewIdentityRepository(dbConn)
	profileRepo := repository.NewProfileRepository(dbConn)
	sessionRepo := repository.NewSessionRepository(dbConn)
	verificationRepo := repository.NewVerificationRepository(dbConn)
	paymentRepo := repository.NewPaymentRepository(dbConn)

	// Сервисы.
	tokenManager := service.NewTokenManager(cfg.JWTSecret, cfg.SessionTTL)
	verificationService := service.NewVerificationService(verificationRepo, smsSender, smsLimiter, cfg.Verification)
	authService := service.NewAuthService(identityRepo, profileRepo, sessionRepo, verificationService, tokenManager, google)
	profileService := service.NewProfileService(profileRepo, objectStorage, cfg.Verification.DefaultCountryCode)
	connectService := service.NewConnectService(profileRepo, gateway, cfg.AppURL)
	paymentService := service.NewPaymentService(profileRepo, paymentRepo, gateway, cfg.Stripe.PlatformFeePercent, cfg.Verification.DefaultCountryCode)
	receiptService := service.NewReceiptService(gateway, profileRepo, receipt.NewRenderer(cfg.ReceiptFontPath), receiptMailer, cfg.Stripe.PlatformFeePercent)
	webhookService := service.NewWebhookService(gateway, connectService, paymentService)

	// Вебсокеты.
	hub := ws.NewHub()
	goroutine.SafeGo(func() { hub.Run(ctx) })
	paymentService.SetNotifier(hub)
	if receiptMailer != nil {
		paymentService.SetReceiptEmailer(receiptService)
	}

	// HTTP хэндлеры.
	authHandler := httpHandlers.NewAuthHandler(authService, verificationService, cfg.AppURL, cfg.IsProduction())
	profileHandler := httpHandlers.NewProfileHandler(profileService)
	paymentHandler := httpHandlers.NewPaymentHandler(paymentService)
	connectHandler := httpHandlers.NewConnectHandler(connectService)
	receiptHandler := httpHandlers.NewReceiptHandler(receiptService)
	webhookHandler := httpHandlers.NewWebhookHandler(webhookService)
	healthHandler := httpHandlers.NewHealthHandler(dbConn, rdb)
	wsHandler := httpHandlers.NewWSHandler(hub, authService, cfg.AllowedOrigins)

	// Роутер.
	engine := httpRouter.SetupRouter(cfg, authService, apiLimiter,
		authHandler, profileHandler, paymentHandler, connectHandler, receiptHandler, webhookHandler,
		healthHandler, wsHandler)

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Завершаем сервер при получении сигнала.
	goroutine.SafeGo(func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Log.WithError(err).Error("main: ошибка остановки http сервера")
		}
	})

	logger.Log.WithField("port", cfg.HTTPPort).Info("main: HTTP сервер запущен")

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("main: сервер завершился с ошибкой: %v", err)
	}
}

func mustLimiter(rdb *redis.Client, prefix string, limit int64, period time.Duration) *ratelimit.KeyLimiter {
	store, err := ratelimit.NewStore(rdb, prefix)
	if err != nil {
		log.Fatalf("main: %v", err)
	}
	return ratelimit.New(store, limit, period)
}

// safeClose закрывает соединение с базой.
func safeClose(db *sqlx.DB) {
	if err := db.Close(); err != nil {
		log.Printf("main: ошибка закрытия базы: %v", err)
	}
}
