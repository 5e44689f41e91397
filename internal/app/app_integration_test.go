//go:build integration

package app

import (
	"context"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-faster/jx"
	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap/zaptest"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/storage/postgres"
)

const testSecret = "integration-secret"

type noopTelemetry struct{}

func (noopTelemetry) TracerProvider() trace.TracerProvider { return tracenoop.NewTracerProvider() }
func (noopTelemetry) MeterProvider() metric.MeterProvider  { return metricnoop.NewMeterProvider() }

type server struct {
	baseURL  string
	client   *http.Client
	products []product.Product
}

func startPostgres(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("shop"),
		tcpostgres.WithUsername("shop"),
		tcpostgres.WithPassword("shop"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return dsn
}

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

// startServer seeds a database and runs the whole application against it.
func startServer(t *testing.T) *server {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	dsn := startPostgres(t)
	pool, err := postgres.NewPool(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, postgres.RunMigrations(pool))

	users := postgres.NewUserRepository(pool)
	for _, u := range []auth.User{
		{ID: "alice", UserName: "Alice", Email: "alice@example.com"},
		{ID: "bob", UserName: "Bob", Email: "bob@example.com"},
		{ID: "seller-1", UserName: "Lumiere"},
	} {
		require.NoError(t, users.Upsert(ctx, u))
	}
	products := []product.Product{
		{Name: "Waffle", Price: decimal.RequireFromString("6.50"), Quantity: 10, OwnerID: "seller-1", Image: "waffle.jpg"},
		{Name: "Tiramisu", Price: decimal.RequireFromString("5.50"), Quantity: 1, OwnerID: "seller-2"},
	}
	require.NoError(t, postgres.NewProductRepository(pool).CreateBatch(ctx, products))

	mr := miniredis.RunT(t)

	cfg := &Config{
		Addr:         freeAddr(t),
		DatabaseURL:  dsn,
		RedisURL:     "redis://" + mr.Addr(),
		ImageBaseURL: "https://cdn.example.com/img",
		Migrate:      true,
		Auth:         AuthConfig{Secret: testSecret},
		Checkout:     CheckoutConfig{InventoryPolicy: "reject", ClearCart: true},
		RateLimit:    RateLimitConfig{Max: 1000, Window: time.Minute},
		CORS:         CORSConfig{Origins: []string{"*"}},
		Graceful:     GracefulConfig{ShutdownTimeout: 5 * time.Second},
	}

	done := make(chan error, 1)
	go func() { done <- Run(ctx, zaptest.NewLogger(t), noopTelemetry{}, cfg) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(10 * time.Second):
			t.Error("server did not stop")
		}
	})

	s := &server{
		baseURL:  "http://" + cfg.Addr,
		client:   &http.Client{Timeout: 10 * time.Second},
		products: products,
	}
	require.Eventually(t, func() bool {
		resp, err := s.client.Get(s.baseURL + "/readyz")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 30*time.Second, 100*time.Millisecond)
	return s
}

func token(t *testing.T, subject string) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": subject}).
		SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func (s *server) do(t *testing.T, method, path, user, body string) (*http.Response, []byte) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, s.baseURL+path, r)
	require.NoError(t, err)
	if user != "" {
		req.Header.Set("Authorization", "Bearer "+token(t, user))
	}
	resp, err := s.client.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func path(format string, id int64) string {
	return strings.Replace(format, "{id}", strconv.FormatInt(id, 10), 1)
}

func TestApplication(t *testing.T) {
	s := startServer(t)
	waffle, tiramisu := s.products[0], s.products[1]

	t.Run("Health", func(t *testing.T) {
		resp, body := s.do(t, http.MethodGet, "/livez", "", "")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.JSONEq(t, `{"status":"ok"}`, string(body))
		assert.Empty(t, resp.Header.Get("X-RateLimit-Limit"))
	})

	t.Run("Products", func(t *testing.T) {
		resp, body := s.do(t, http.MethodGet, "/api/products", "", "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "1000", resp.Header.Get("X-RateLimit-Limit"))
		assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
		assert.Contains(t, string(body), `"image":"https://cdn.example.com/img/waffle.jpg"`)

		resp, _ = s.do(t, http.MethodGet, path("/api/products/{id}", 999999), "", "")
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("Anonymous", func(t *testing.T) {
		resp, _ := s.do(t, http.MethodPost, "/api/checkout", "", "")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

		resp, _ = s.do(t, http.MethodGet, "/api/cart", "", "")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

		resp, _ = s.do(t, http.MethodGet, "/api/cart", "ghost", "")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("CheckoutFlow", func(t *testing.T) {
		for range 2 {
			resp, _ := s.do(t, http.MethodPost, path("/api/cart/{id}", waffle.ID), "alice", "")
			require.Equal(t, http.StatusOK, resp.StatusCode)
		}
		_, body := s.do(t, http.MethodGet, "/api/cart", "alice", "")
		assert.Contains(t, string(body), `"count":2`)

		resp, body := s.do(t, http.MethodPost, "/api/checkout", "alice", "")
		require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
		assert.Contains(t, string(body), `"totalPrice":13.00`)
		assert.Contains(t, string(body), `"state":"Pending"`)

		_, body = s.do(t, http.MethodGet, "/api/cart", "alice", "")
		assert.Contains(t, string(body), `"count":0`)

		resp, body = s.do(t, http.MethodGet, "/api/checkout/current", "alice", "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var orderID int64
		require.NoError(t, jx.DecodeBytes(body).ObjBytes(func(d *jx.Decoder, key []byte) error {
			if string(key) == "id" {
				v, err := d.Int64()
				orderID = v
				return err
			}
			return d.Skip()
		}))

		resp, body = s.do(t, http.MethodGet, "/api/orders/AdminOrders", "seller-1", "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, string(body), `"userId":"alice"`)

		resp, body = s.do(t, http.MethodPut, path("/api/orders/acceptOrder/{id}", orderID), "seller-1", "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, string(body), `"state":"Accepted"`)

		resp, body = s.do(t, http.MethodGet, "/api/orders?state=Accepted", "alice", "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, string(body), `"state":"Accepted"`)

		resp, body = s.do(t, http.MethodGet, path("/api/orders/{id}/invoice", orderID), "alice", "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, string(body), `"userName":"Alice"`)
	})

	t.Run("InvalidFilter", func(t *testing.T) {
		resp, body := s.do(t, http.MethodGet, "/api/orders?state=accepted", "alice", "")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Contains(t, string(body), `"code":400`)
	})

	t.Run("InsufficientStock", func(t *testing.T) {
		for range 2 {
			resp, _ := s.do(t, http.MethodPost, path("/api/cart/{id}", tiramisu.ID), "bob", "")
			require.Equal(t, http.StatusOK, resp.StatusCode)
		}
		resp, _ := s.do(t, http.MethodPost, "/api/checkout", "bob", "")
		assert.Equal(t, http.StatusConflict, resp.StatusCode)

		// The failed checkout leaves the cart intact.
		_, body := s.do(t, http.MethodGet, "/api/cart", "bob", "")
		assert.Contains(t, string(body), `"count":2`)
	})

	t.Run("Wishlist", func(t *testing.T) {
		resp, _ := s.do(t, http.MethodPost, path("/api/wishlist/{id}", waffle.ID), "bob", "")
		require.Equal(t, http.StatusNoContent, resp.StatusCode)

		_, body := s.do(t, http.MethodGet, "/api/wishlist", "bob", "")
		assert.Contains(t, string(body), `"name":"Waffle"`)

		resp, _ = s.do(t, http.MethodDelete, path("/api/wishlist/{id}", waffle.ID), "bob", "")
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	})

	t.Run("CORSPreflight", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodOptions, s.baseURL+"/api/products", nil)
		require.NoError(t, err)
		req.Header.Set("Origin", "http://example.com")
		req.Header.Set("Access-Control-Request-Method", "GET")

		resp, err := s.client.Do(req)
		require.NoError(t, err)
		_ = resp.Body.Close()
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
		assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	})
}
