package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pixter/pixter-backend/internal/config"
	"github.com/pixter/pixter-backend/internal/http/handlers"
	"github.com/pixter/pixter-backend/internal/http/middleware"
	"github.com/pixter/pixter-backend/internal/models"
	"github.com/pixter/pixter-backend/internal/ratelimit"
)

func SetupRouter(
	cfg *config.Config,
	auth middleware.Authenticator,
	apiLimiter *ratelimit.KeyLimiter,
	authHandler *handlers.AuthHandler,
	profileHandler *handlers.ProfileHandler,
	paymentHandler *handlers.PaymentHandler,
	connectHandler *handlers.ConnectHandler,
	receiptHandler *handlers.ReceiptHandler,
	webhookHandler *handlers.WebhookHandler,
	healthHandler *handlers.HealthHandler,
	wsHandler *handlers.WSHandler,
) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()
	r.Use(middleware.MetricsMiddleware())
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))

	r.GET("/health", healthHandler.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	// Без листинга каталогов: в selfies лежат фото документов водителей.
	r.Static("/static", cfg.Storage.Path)

	api := r.Group("/api")

	// Вебхук подписан Stripe и не проходит через лимит по IP
	api.POST("/webhooks/stripe", webhookHandler.Stripe)
	api.GET("/ws", wsHandler.Handle)

	limited := api.Group("")
	limited.Use(middleware.RateLimitMiddleware(apiLimiter, "api"))

	authGroup := limited.Group("/auth")
	{
		authGroup.POST("/send-verification", authHandler.SendVerification)
		authGroup.POST("/verify-code", authHandler.VerifyCode)
		authGroup.POST("/complete-registration", authHandler.CompleteRegistration)
		authGroup.POST("/login", authHandler.Login)
		authGroup.GET("/google", authHandler.GoogleStart)
		authGroup.GET("/google/callback", authHandler.GoogleCallback)
	}

	// Публичные маршруты
	limited.GET("/public/driver-info/:phone", profileHandler.PublicDriverInfo)
	limited.GET("/receipts/:chargeId", receiptHandler.ClientReceipt)
	limited.GET("/payments/status/:intentId", paymentHandler.Status)
	limited.POST("/payments/update-intent", paymentHandler.UpdateIntent)
	limited.POST("/payments/create-intent", middleware.OptionalAuth(auth), paymentHandler.CreateIntent)

	// Защищённые маршруты
	protected := limited.Group("")
	protected.Use(middleware.AuthMiddleware(auth))
	{
		protected.POST("/auth/logout", authHandler.Logout)
		protected.GET("/auth/session", authHandler.Session)
		protected.GET("/auth/sessions", authHandler.ListSessions)
		protected.DELETE("/auth/sessions/:id", middleware.UUIDValidator("id"), authHandler.DeleteSession)

		protected.GET("/profile", profileHandler.GetMe)
		protected.PUT("/profile", profileHandler.UpdateMe)
		protected.POST("/profile/avatar", profileHandler.UploadAvatar)
		protected.POST("/profile/selfie", profileHandler.UploadSelfie)

		protected.GET("/payments/history", middleware.RequireTipo(models.TipoCliente), paymentHandler.ClientHistory)
	}

	// Маршруты водителя
	driver := protected.Group("")
	driver.Use(middleware.RequireTipo(models.TipoMotorista))
	{
		driver.POST("/stripe/connect-account", connectHandler.ConnectAccount)
		driver.GET("/stripe/account-status", connectHandler.AccountStatus)

		driver.GET("/driver/balance", connectHandler.Balance)
		driver.GET("/driver/transactions", connectHandler.Transactions)
		driver.GET("/driver/payments", paymentHandler.DriverHistory)
		driver.GET("/driver/receipts/:chargeId", receiptHandler.DriverReceipt)
	}

	return r
}
