package server

import (
	"context"
	"errors"
	"net/http"

	"field-history/internal/domain"
	"field-history/internal/service"

	log "github.com/sirupsen/logrus"

	"github.com/labstack/echo/v4"
)

// Pinger reports whether the history backend is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type Server struct {
	orderService service.OrderServiceInterface
	backend      Pinger
}

// NewServer builds the HTTP handlers. backend may be nil when the history
// backend has nothing to ping.
func NewServer(orderService service.OrderServiceInterface, backend Pinger) *Server {
	return &Server{
		orderService: orderService,
		backend:      backend,
	}
}

func (s *Server) HealthCheck(c echo.Context) error {
	if s.backend != nil {
		if err := s.backend.PingContext(c.Request().Context()); err != nil {
			log.WithField("error", err).Error("Health check failed: history backend is down")
			return c.JSON(http.StatusServiceUnavailable, map[string]string{
				"status": "unhealthy",
				"error":  "history backend connection error",
			})
		}
	}
	return c.JSON(http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

// errorResponse maps service errors to HTTP responses. Unexpected errors are
// logged and hidden from the client.
func errorResponse(c echo.Context, err error, msg string, fields log.Fields) error {
	switch {
	case errors.Is(err, domain.ErrInvalidStatus),
		errors.Is(err, domain.ErrInvalidEntityID),
		errors.Is(err, domain.ErrUntrackedField):
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
	case errors.Is(err, domain.ErrEntityNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{
			"error": "order not found",
		})
	case errors.Is(err, domain.ErrHistoryNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{
			"error": "field history not found",
		})
	}
	log.WithError(err).WithFields(fields).Error(msg)
	return c.JSON(http.StatusInternalServerError, map[string]string{
		"error": "internal server error",
	})
}

func (s *Server) CreateOrder(c echo.Context) error {
	var req domain.CreateOrderRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "invalid request body",
		})
	}

	ctx := c.Request().Context()
	order, err := s.orderService.CreateOrder(ctx, req)
	if err != nil {
		return errorResponse(c, err, "Failed to create order", nil)
	}

	return c.JSON(http.StatusCreated, order)
}

func (s *Server) GetOrder(c echo.Context) error {
	id := c.Param("id")

	ctx := c.Request().Context()
	order, err := s.orderService.GetOrder(ctx, id)
	if err != nil {
		return errorResponse(c, err, "Failed to get order", log.Fields{"order_id": id})
	}

	return c.JSON(http.StatusOK, order)
}

func (s *Server) UpdateOrderStatus(c echo.Context) error {
	id := c.Param("id")

	var req domain.UpdateOrderStatusRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "invalid request body",
		})
	}

	ctx := c.Request().Context()
	order, err := s.orderService.UpdateStatus(ctx, id, req)
	if err != nil {
		return errorResponse(c, err, "Failed to update order status", log.Fields{"order_id": id})
	}

	return c.JSON(http.StatusOK, order)
}

func (s *Server) GetOrderHistory(c echo.Context) error {
	id := c.Param("id")

	ctx := c.Request().Context()
	entries, err := s.orderService.History(ctx, id)
	if err != nil {
		return errorResponse(c, err, "Failed to get order history", log.Fields{"order_id": id})
	}

	return c.JSON(http.StatusOK, entries)
}

func (s *Server) GetOrderFieldHistory(c echo.Context) error {
	id := c.Param("id")
	field := c.Param("field")

	ctx := c.Request().Context()
	entries, err := s.orderService.FieldHistory(ctx, id, field)
	if err != nil {
		return errorResponse(c, err, "Failed to get order field history", log.Fields{"order_id": id, "field": field})
	}

	return c.JSON(http.StatusOK, entries)
}

func (s *Server) GetLatestOrderFieldHistory(c echo.Context) error {
	id := c.Param("id")
	field := c.Param("field")

	ctx := c.Request().Context()
	entry, err := s.orderService.LatestFieldHistory(ctx, id, field)
	if err != nil {
		return errorResponse(c, err, "Failed to get latest order field history", log.Fields{"order_id": id, "field": field})
	}

	return c.JSON(http.StatusOK, entry)
}
