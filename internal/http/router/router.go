package router

import (
	"github.com/gin-gonic/gin"

	"github.com/refermarket/referral-backend/internal/config"
	"github.com/refermarket/referral-backend/internal/http/handlers"
	"github.com/refermarket/referral-backend/internal/http/middleware"
	"github.com/refermarket/referral-backend/internal/service"
)

func SetupRouter(
	cfg *config.Config,
	authHandler *handlers.AuthHandler,
	walletHandler *handlers.WalletHandler,
	referralHandler *handlers.ReferralHandler,
	chatHandler *handlers.ChatHandler,
	notificationHandler *handlers.NotificationHandler,
	wsHandler *handlers.WSHandler,
	healthHandler *handlers.HealthHandler,
	tokenManager *service.TokenManager,
) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))

	r.GET("/health", healthHandler.Health)

	api := r.Group("/api")

	authGroup := api.Group("/auth")
	authRateLimit := middleware.RateLimitMiddleware(5, cfg.RateLimitPeriod)
	authGroup.Use(authRateLimit)
	{
		authGroup.POST("/register", authHandler.Register)
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/refresh", authHandler.Refresh)
	}

	protectedAuth := api.Group("/auth")
	protectedAuth.Use(middleware.AuthMiddleware(tokenManager))
	{
		protectedAuth.GET("/me", authHandler.GetMe)
		protectedAuth.PUT("/me/companies", authHandler.UpdateCompanies)
	}

	// WebSocket авторизуется по токену в query, минуя заголовки
	api.GET("/ws", wsHandler.Handle)

	// Защищённые маршруты
	protected := api.Group("/")
	protected.Use(middleware.AuthMiddleware(tokenManager))
	{
		protected.GET("/wallet", walletHandler.GetWallet)
		protected.GET("/wallet/transactions", walletHandler.ListTransactions)
		protected.POST("/wallet/topup", walletHandler.TopUp)
		protected.POST("/wallet/topup/proof", walletHandler.TopUpWithProof)
		protected.POST("/wallet/withdraw", walletHandler.Withdraw)
		protected.GET("/wallet/escrows/:referralId", middleware.UUIDValidator("referralId"), walletHandler.GetEscrow)

		protected.POST("/referrals", referralHandler.CreateReferral)
		protected.GET("/referrals", referralHandler.ListReferrals)
		protected.GET("/referrals/:id", middleware.UUIDValidator("id"), referralHandler.GetReferral)
		protected.GET("/referrals/:id/referrer", middleware.UUIDValidator("id"), referralHandler.GetReferrerDisplay)
		protected.GET("/referrals/:id/chat", middleware.UUIDValidator("id"), chatHandler.GetRoomByReferral)
		protected.POST("/referrals/:id/accept", middleware.UUIDValidator("id"), referralHandler.AcceptReferral)
		protected.POST("/referrals/:id/in-progress", middleware.UUIDValidator("id"), referralHandler.MarkInProgress)
		protected.POST("/referrals/:id/referred", middleware.UUIDValidator("id"), referralHandler.MarkReferred)
		protected.POST("/referrals/:id/complete", middleware.UUIDValidator("id"), referralHandler.CompleteReferral)
		protected.POST("/referrals/:id/cancel", middleware.UUIDValidator("id"), referralHandler.CancelReferral)
		protected.POST("/referrals/:id/reject", middleware.UUIDValidator("id"), referralHandler.DeclineReferral)

		protected.GET("/chats/:roomId", middleware.UUIDValidator("roomId"), chatHandler.GetRoom)
		protected.GET("/chats/:roomId/messages", middleware.UUIDValidator("roomId"), chatHandler.ListMessages)
		protected.POST("/chats/:roomId/messages", middleware.UUIDValidator("roomId"), chatHandler.SendMessage)

		protected.GET("/notifications", notificationHandler.ListNotifications)
		protected.GET("/notifications/unread/count", notificationHandler.CountUnread)
		protected.GET("/notifications/:id", middleware.UUIDValidator("id"), notificationHandler.GetNotification)
		protected.PUT("/notifications/:id/read", middleware.UUIDValidator("id"), notificationHandler.MarkAsRead)
		protected.PUT("/notifications/read-all", notificationHandler.MarkAllAsRead)
		protected.DELETE("/notifications/:id", middleware.UUIDValidator("id"), notificationHandler.DeleteNotification)
	}

	return r
}
