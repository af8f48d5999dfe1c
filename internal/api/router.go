package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jafarshop/settlement/internal/api/handlers"
	"github.com/jafarshop/settlement/internal/api/middleware"
	"github.com/jafarshop/settlement/internal/config"
	"github.com/jafarshop/settlement/internal/domain"
	"github.com/jafarshop/settlement/internal/repository"
	"github.com/jafarshop/settlement/internal/service"
)

// Services bundles what the handlers call
type Services struct {
	Orders   *service.OrderService
	Payments *service.PaymentService
	Payouts  *service.PayoutService
	Returns  *service.ReturnService
	Promos   *service.PromoService
}

// NewRouter creates and configures the Gin router
func NewRouter(cfg *config.Config, repos *repository.Repositories, svc Services, logger *zap.Logger) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Middleware
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(loggingMiddleware(logger))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	v1 := router.Group("/v1")
	{
		// Gateway callbacks authenticate by signature, not API key
		v1.POST("/webhooks/payments", handlers.HandlePaymentWebhook(svc.Payments, logger))

		authed := v1.Group("")
		authed.Use(middleware.AuthMiddleware(repos, logger))
		{
			authed.GET("/orders", handlers.HandleListMyOrders(svc.Orders, logger))
			authed.GET("/orders/:id", handlers.HandleGetOrder(svc.Orders, logger))
			authed.GET("/returns", handlers.HandleListMyReturns(svc.Returns, logger))
			authed.GET("/returns/:id", handlers.HandleGetReturn(svc.Returns, logger))
		}

		buyerRoutes := authed.Group("")
		buyerRoutes.Use(middleware.RequireRole(domain.RoleBuyer))
		{
			buyerRoutes.POST("/orders", handlers.HandleCreateOrder(svc.Orders, logger))
			buyerRoutes.POST("/payments/verify", handlers.HandleVerifyPayment(svc.Payments, logger))
			buyerRoutes.POST("/returns", handlers.HandleFileReturn(svc.Returns, logger))
			buyerRoutes.POST("/promos/validate", handlers.HandleValidatePromo(svc.Promos, logger))
		}

		sellerRoutes := authed.Group("/seller")
		sellerRoutes.Use(middleware.RequireRole(domain.RoleSeller))
		{
			sellerRoutes.POST("/orders/:id/status", handlers.HandleShippingUpdate(svc.Orders, logger))
			sellerRoutes.POST("/returns/:id/feedback", handlers.HandleStudioFeedback(svc.Returns, logger))
			sellerRoutes.GET("/payouts", handlers.HandleListSellerPayouts(svc.Payouts, logger))
		}

		adminRoutes := authed.Group("/admin")
		adminRoutes.Use(middleware.RequireRole(domain.RoleAdmin))
		{
			adminRoutes.GET("/orders", handlers.HandleListOrders(svc.Orders, logger))
			adminRoutes.POST("/orders/:id/cancel", handlers.HandleCancelOrder(svc.Orders, logger))

			adminRoutes.POST("/payouts", handlers.HandleCreatePayout(svc.Payouts, logger))
			adminRoutes.GET("/payouts", handlers.HandleListPayouts(svc.Payouts, logger))
			adminRoutes.GET("/payouts/:id", handlers.HandleGetPayout(svc.Payouts, logger))
			adminRoutes.PATCH("/payouts/:id/status", handlers.HandleUpdatePayoutStatus(svc.Payouts, logger))

			adminRoutes.GET("/returns", handlers.HandleListReturns(svc.Returns, logger))
			adminRoutes.POST("/returns/:id/review", handlers.HandleStartReview(svc.Returns, logger))
			adminRoutes.POST("/returns/:id/decision", handlers.HandleDecideReturn(svc.Returns, logger))
			adminRoutes.POST("/returns/:id/complete", handlers.HandleCompleteReturn(svc.Returns, logger))

			adminRoutes.POST("/promos", handlers.HandleCreatePromo(svc.Promos, logger))
		}
	}

	return router
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		status := c.Writer.Status()
		logger.Info("HTTP request",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("request_id", middleware.GetRequestID(c)),
		)
	}
}
