package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"krishikendra/backend/internal/domain"
	"krishikendra/backend/internal/service"
	"krishikendra/backend/internal/store/memory"
)

func newTestHandler(t *testing.T) http.Handler {
	t.Helper()
	svc := service.New(memory.New(), nil, zaptest.NewLogger(t), time.Minute)
	return New(svc, zaptest.NewLogger(t), "*").Handler()
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

func createTestProduct(t *testing.T, handler http.Handler, name string, price, cost int64, stock int) domain.Product {
	t.Helper()
	rec := doJSON(t, handler, http.MethodPost, "/api/v1/products", map[string]any{
		"name":      name,
		"category":  "Seeds",
		"price":     price,
		"costPrice": cost,
		"stock":     stock,
		"unit":      "kg",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	return decodeBody[domain.Product](t, rec)
}

func TestHealthz(t *testing.T) {
	handler := newTestHandler(t)
	rec := doJSON(t, handler, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestProductLifecycle(t *testing.T) {
	handler := newTestHandler(t)

	created := createTestProduct(t, handler, "Wheat Seeds Premium", 12000, 9000, 100)
	require.NotEmpty(t, created.ID)
	require.Equal(t, domain.DefaultMinStockAlert, created.MinStockAlert)

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/products/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, handler, http.MethodPut, "/api/v1/products/"+created.ID, map[string]any{
		"price": 13000,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	updated := decodeBody[domain.Product](t, rec)
	require.Equal(t, int64(13000), updated.Price)
	require.Equal(t, created.Name, updated.Name)

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/products?category=Seeds", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	listed := decodeBody[[]domain.Product](t, rec)
	require.Len(t, listed, 1)

	rec = doJSON(t, handler, http.MethodDelete, "/api/v1/products/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/products/"+created.ID, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateProductRejectsBadBody(t *testing.T) {
	handler := newTestHandler(t)

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/products", map[string]any{
		"name":     "Mystery",
		"category": "Seeds",
		"unit":     "kg",
		"bogus":    true,
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/products", map[string]any{
		"name":     "Mystery",
		"category": "Gadgets",
		"unit":     "kg",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody[map[string]string](t, rec)
	require.Contains(t, body["error"], "category")
}

func TestAdjustStockEndpoint(t *testing.T) {
	handler := newTestHandler(t)
	product := createTestProduct(t, handler, "NPK Fertilizer", 85000, 70000, 50)

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/products/"+product.ID+"/stock", map[string]any{
		"delta": -20,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	adjusted := decodeBody[domain.Product](t, rec)
	require.Equal(t, 30, adjusted.Stock)

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/products/"+product.ID+"/stock", map[string]any{
		"delta": -31,
	})
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestSaleLifecycle(t *testing.T) {
	handler := newTestHandler(t)
	product := createTestProduct(t, handler, "Wheat Seeds", 5000, 3000, 10)

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/sales", map[string]any{
		"customerName": "Ramesh Kumar",
		"items":        []map[string]any{{"product": product.ID, "quantity": 3}},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decodeBody[domain.Sale](t, rec)
	require.Equal(t, int64(15000), created.TotalAmount)
	require.Equal(t, int64(6000), created.Profit)
	require.Regexp(t, `^GKK\d{4}0001$`, created.InvoiceNumber)

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/sales/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/sales/invoice/"+created.InvoiceNumber, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	byInvoice := decodeBody[domain.Sale](t, rec)
	require.Equal(t, created.ID, byInvoice.ID)

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/products/"+product.ID, nil)
	require.Equal(t, 7, decodeBody[domain.Product](t, rec).Stock)

	rec = doJSON(t, handler, http.MethodDelete, "/api/v1/sales/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/products/"+product.ID, nil)
	require.Equal(t, 10, decodeBody[domain.Product](t, rec).Stock)

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/sales/"+created.ID, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateSaleInsufficientStockIs409(t *testing.T) {
	handler := newTestHandler(t)
	product := createTestProduct(t, handler, "Wheat Seeds", 5000, 3000, 2)

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/sales", map[string]any{
		"customerName": "Ramesh Kumar",
		"items":        []map[string]any{{"product": product.ID, "quantity": 3}},
	})
	require.Equal(t, http.StatusConflict, rec.Code)
	body := decodeBody[map[string]string](t, rec)
	require.Contains(t, body["error"], "insufficient stock")
}

func TestListSalesFiltersAndPaginates(t *testing.T) {
	handler := newTestHandler(t)
	product := createTestProduct(t, handler, "Wheat Seeds", 5000, 3000, 100)

	for i, customer := range []string{"Ramesh Kumar", "Sita Devi", "Ramesh Patel"} {
		rec := doJSON(t, handler, http.MethodPost, "/api/v1/sales", map[string]any{
			"customerName": customer,
			"items":        []map[string]any{{"product": product.ID, "quantity": i + 1}},
		})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/sales?customer=ramesh", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	filtered := decodeBody[domain.SaleListResult](t, rec)
	require.Equal(t, 2, filtered.Total)

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/sales?page=2&pageSize=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	paged := decodeBody[domain.SaleListResult](t, rec)
	require.Equal(t, 3, paged.Total)
	require.Len(t, paged.Sales, 1)
	require.Equal(t, int64(30000), paged.Summary.TotalSales)

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/sales?from=not-a-date", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	today := time.Now().UTC().Format("2006-01-02")
	rec = doJSON(t, handler, http.MethodGet, fmt.Sprintf("/api/v1/sales?from=%s&to=%s", today, today), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	byDate := decodeBody[domain.SaleListResult](t, rec)
	require.Equal(t, 3, byDate.Total)
}

func TestUpdatePaymentEndpoint(t *testing.T) {
	handler := newTestHandler(t)
	product := createTestProduct(t, handler, "Wheat Seeds", 5000, 3000, 10)

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/sales", map[string]any{
		"customerName":  "Ramesh Kumar",
		"items":         []map[string]any{{"product": product.ID, "quantity": 2}},
		"paymentStatus": "pending",
		"pendingAmount": 10000,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decodeBody[domain.Sale](t, rec)

	rec = doJSON(t, handler, http.MethodPatch, "/api/v1/sales/"+created.ID+"/payment", map[string]any{
		"paymentStatus": "paid",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	updated := decodeBody[domain.Sale](t, rec)
	require.Equal(t, domain.PaymentStatusPaid, updated.PaymentStatus)
	require.Equal(t, int64(0), updated.PendingAmount)

	rec = doJSON(t, handler, http.MethodPatch, "/api/v1/sales/"+created.ID+"/payment", map[string]any{
		"paymentStatus": "settled",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDashboardEndpoint(t *testing.T) {
	handler := newTestHandler(t)
	product := createTestProduct(t, handler, "Wheat Seeds", 5000, 3000, 6)

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/sales", map[string]any{
		"customerName": "Ramesh Kumar",
		"items":        []map[string]any{{"product": product.ID, "quantity": 4}},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/dashboard", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	dash := decodeBody[domain.DashboardResponse](t, rec)
	require.Equal(t, int64(20000), dash.Summary.TotalSales)
	require.Len(t, dash.RecentSales, 1)
	require.Len(t, dash.LowStockProducts, 1)
}

func TestCORSPreflightAndSecurityHeaders(t *testing.T) {
	handler := newTestHandler(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/products", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}
