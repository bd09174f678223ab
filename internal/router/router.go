package router

import (
	"net/http"

	"github.com/brightwire/cert-portal/config"
	"github.com/brightwire/cert-portal/internal/app/controller"
	"github.com/brightwire/cert-portal/internal/app/model"
	"github.com/brightwire/cert-portal/internal/middleware"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Controllers groups every HTTP handler the router mounts
type Controllers struct {
	Auth               *controller.AuthController
	Certificate        *controller.CertificateController
	Renewal            *controller.RenewalController
	CertificateRequest *controller.CertificateRequestController
	Property           *controller.PropertyController
	Admin              *controller.AdminController
	Notification       *controller.NotificationController
	WebSocket          *controller.WebSocketController
}

type Router struct {
	controllers    Controllers
	authMiddleware *middleware.AuthMiddleware
	config         *config.Config
}

func NewRouter(controllers Controllers, authMiddleware *middleware.AuthMiddleware, cfg *config.Config) *Router {
	return &Router{
		controllers:    controllers,
		authMiddleware: authMiddleware,
		config:         cfg,
	}
}

func (r *Router) Setup() *gin.Engine {
	gin.SetMode(r.config.Server.GinMode)

	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.LoggingMiddleware("/health", "/metrics"))
	router.Use(middleware.MetricsMiddleware())
	router.Use(corsMiddleware(r.config.CORS.AllowedOrigins))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"message": "Certificate portal API is running",
		})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	ctrl := r.controllers
	authenticate := r.authMiddleware.Authenticate()
	staff := r.authMiddleware.RequireRole(model.RoleStaff, model.RoleAdmin)
	reviewers := r.authMiddleware.RequireRole(model.RoleQS, model.RoleAdmin)
	office := r.authMiddleware.RequireRole(model.RoleStaff, model.RoleQS, model.RoleAdmin)

	v1 := router.Group("/api/v1")
	{
		auth := v1.Group("/auth")
		{
			auth.POST("/register", ctrl.Auth.Register)
			auth.POST("/login", ctrl.Auth.Login)
			auth.POST("/refresh", ctrl.Auth.Refresh)
			auth.POST("/logout", authenticate, ctrl.Auth.Logout)
			auth.GET("/me", authenticate, ctrl.Auth.GetMe)
			auth.PUT("/me", authenticate, ctrl.Auth.UpdateMe)
		}

		certificates := v1.Group("/certificates")
		certificates.Use(authenticate)
		{
			certificates.GET("", office, ctrl.Certificate.ListCertificates)
			certificates.POST("", staff, ctrl.Certificate.CreateCertificate)

			// registered before /:id so the static segment wins
			certificates.GET("/renewals", office, ctrl.Renewal.ListExpiring)
			certificates.GET("/renewals/export", office, ctrl.Renewal.Export)

			certificates.GET("/:id", office, ctrl.Certificate.GetCertificate)
			certificates.PUT("/:id", staff, ctrl.Certificate.UpdateCertificate)
			certificates.POST("/:id/submit", staff, ctrl.Certificate.Submit)
			certificates.POST("/:id/approve", reviewers, ctrl.Certificate.Approve)
			certificates.POST("/:id/reject", reviewers, ctrl.Certificate.Reject)
			certificates.GET("/:id/events", office, ctrl.Certificate.ListEvents)
			certificates.GET("/:id/pdf", office, ctrl.Certificate.GetPDF)
		}

		requests := v1.Group("/certificate-requests")
		requests.Use(authenticate)
		{
			requests.GET("", ctrl.CertificateRequest.ListRequests)
			requests.POST("",
				r.authMiddleware.RequireRole(model.RoleCustomer),
				ctrl.CertificateRequest.CreateRequest,
			)
			requests.GET("/:id", ctrl.CertificateRequest.GetRequest)
			requests.POST("/:id/triage", staff, ctrl.CertificateRequest.Triage)
			requests.POST("/:id/fulfill", staff, ctrl.CertificateRequest.Fulfill)
		}

		properties := v1.Group("/properties")
		properties.Use(authenticate)
		{
			properties.GET("", ctrl.Property.ListMyProperties)
			properties.GET("/:id", ctrl.Property.GetProperty)
		}

		adminOnly := r.authMiddleware.RequireRole(model.RoleAdmin)
		admin := v1.Group("/admin")
		admin.Use(authenticate)
		{
			admin.GET("/users", adminOnly, ctrl.Admin.ListUsers)
			admin.PUT("/users/:id/role", adminOnly, ctrl.Admin.SetRole)
			admin.PUT("/users/:id/customer", staff, ctrl.Admin.LinkCustomer)
		}

		notifications := v1.Group("/notifications")
		notifications.Use(authenticate)
		{
			notifications.GET("", ctrl.Notification.GetNotifications)
			notifications.GET("/unread-count", ctrl.Notification.GetUnreadCount)
			notifications.PUT("/read-all", ctrl.Notification.MarkAllAsRead)
			notifications.PUT("/:id/read", ctrl.Notification.MarkAsRead)
			notifications.GET("/settings", ctrl.Notification.GetNotificationSettings)
			notifications.PUT("/settings", ctrl.Notification.UpdateNotificationSettings)
		}

		v1.GET("/ws", authenticate, ctrl.WebSocket.Connect)
	}

	return router
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")

		allowed := false
		for _, allowedOrigin := range allowedOrigins {
			if origin == allowedOrigin || allowedOrigin == "*" {
				allowed = true
				break
			}
		}

		if allowed {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		}

		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Request-ID")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Content-Disposition, X-Request-ID")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
