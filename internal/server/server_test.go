package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"field-history/internal/domain"
	"field-history/internal/fieldhistory"
	"field-history/internal/models"
	"field-history/internal/service"
	"field-history/internal/storage/memory"
)

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) PingContext(ctx context.Context) error { return f(ctx) }

func newTestEcho(t *testing.T, backend Pinger) *echo.Echo {
	t.Helper()
	entities, err := memory.NewEntityStore[models.PizzaOrder]()
	require.NoError(t, err)
	orders, err := fieldhistory.Register[models.PizzaOrder](models.PizzaOrderFields, entities, memory.NewHistoryStore(),
		fieldhistory.WithRegistry(fieldhistory.NewRegistry()))
	require.NoError(t, err)

	e := echo.New()
	NewServer(service.NewOrderService(orders), backend).Register(e)
	return e
}

func do(e *echo.Echo, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestHealthCheck(t *testing.T) {
	rec := do(newTestEcho(t, nil), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())

	down := pingerFunc(func(context.Context) error { return errors.New("connection refused") })
	rec = do(newTestEcho(t, down), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "unhealthy")
}

func TestOrderLifecycle(t *testing.T) {
	e := newTestEcho(t, nil)

	rec := do(e, http.MethodPost, "/api/orders", `{"status":"ORDERED"}`, UserHeader, "waiter")
	require.Equal(t, http.StatusCreated, rec.Code)
	var order models.PizzaOrder
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &order))
	assert.EqualValues(t, 1, order.ID)

	rec = do(e, http.MethodPut, "/api/orders/1/status", `{"status":"COOKING"}`, UserHeader, "chef")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(e, http.MethodGet, "/api/orders/1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":1,"status":"COOKING"}`, rec.Body.String())

	rec = do(e, http.MethodGet, "/api/orders/1/history", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var entries []domain.HistoryEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, "ORDERED", entries[0].Value)
	require.NotNil(t, entries[0].User)
	assert.Equal(t, "waiter", *entries[0].User)
	assert.Equal(t, "COOKING", entries[1].Value)
	require.NotNil(t, entries[1].User)
	assert.Equal(t, "chef", *entries[1].User)

	rec = do(e, http.MethodGet, "/api/orders/1/history/status/latest", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var latest domain.HistoryEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &latest))
	assert.Equal(t, "COOKING", latest.Value)

	rec = do(e, http.MethodGet, "/api/orders/1/history/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestOrderErrors(t *testing.T) {
	e := newTestEcho(t, nil)

	rec := do(e, http.MethodPost, "/api/orders", `{"status":"BURNT"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(e, http.MethodPost, "/api/orders", `{"status":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"invalid request body"}`, rec.Body.String())

	rec = do(e, http.MethodGet, "/api/orders/7", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(e, http.MethodPut, "/api/orders/7/status", `{"status":"COOKING"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(e, http.MethodPost, "/api/orders", `{}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(e, http.MethodGet, "/api/orders/1/history/price", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	rec := do(newTestEcho(t, nil), http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
