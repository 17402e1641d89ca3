package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Router wraps the Gin engine with portal handlers.
type Router struct {
	engine  *gin.Engine
	handler *Handler
}

// NewRouter creates a new API router.
func NewRouter(handler *Handler) *Router {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	// Middleware
	engine.Use(gin.Recovery())
	engine.Use(corsMiddleware())

	r := &Router{
		engine:  engine,
		handler: handler,
	}

	r.setupRoutes()

	return r
}

// setupRoutes configures all API routes.
func (r *Router) setupRoutes() {
	// Health check
	r.engine.GET("/health", r.handler.HealthCheck)

	// API v1 routes
	v1 := r.engine.Group("/api/v1")
	{
		// Guest portal
		v1.POST("/login", r.handler.Login)
		v1.GET("/packages", r.handler.ListPackages)
		v1.POST("/purchase", r.handler.Purchase)

		// Authenticated guest routes
		account := v1.Group("")
		account.Use(r.handler.AuthMiddleware())
		{
			account.GET("/status", r.handler.Status)
			account.POST("/logout", r.handler.Logout)
		}

		// Operator fallback for the approval channel
		admin := v1.Group("/admin")
		admin.Use(r.handler.AdminMiddleware())
		{
			admin.GET("/requests", r.handler.ListRequests)
			admin.GET("/requests/:id", r.handler.GetRequest)
			admin.POST("/requests/:id/decision", r.handler.Decide)
		}
	}
}

// Engine returns the underlying Gin engine.
func (r *Router) Engine() *gin.Engine {
	return r.engine
}

// ServeHTTP implements http.Handler.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.engine.ServeHTTP(w, req)
}

// corsMiddleware adds CORS headers.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization, X-Admin-Token")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
