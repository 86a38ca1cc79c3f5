package server

import (
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"field-history/internal/auth"
)

// UserHeader carries the acting user's id. Its value is attributed to every
// history record written while serving the request.
const UserHeader = "X-User-ID"

// UserMiddleware stores the acting user from UserHeader in the request context.
func UserMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if user := strings.TrimSpace(c.Request().Header.Get(UserHeader)); user != "" {
			req := c.Request()
			c.SetRequest(req.WithContext(auth.WithUser(req.Context(), user)))
		}
		return next(c)
	}
}

// Register mounts every route on e.
func (s *Server) Register(e *echo.Echo) {
	// Health check
	e.GET("/health", s.HealthCheck)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api", UserMiddleware)
	orders := api.Group("/orders")
	orders.POST("", s.CreateOrder)
	orders.GET("/:id", s.GetOrder)
	orders.PUT("/:id/status", s.UpdateOrderStatus)
	orders.GET("/:id/history", s.GetOrderHistory)
	orders.GET("/:id/history/:field", s.GetOrderFieldHistory)
	orders.GET("/:id/history/:field/latest", s.GetLatestOrderFieldHistory)
}
