package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type body struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func get(t *testing.T, endpoint http.HandlerFunc) (int, body) {
	t.Helper()
	w := httptest.NewRecorder()
	endpoint(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var b body
	require.NoError(t, json.NewDecoder(w.Body).Decode(&b))
	return w.Code, b
}

func pass(context.Context) error { return nil }

func fail(msg string) CheckFunc {
	return func(context.Context) error { return errors.New(msg) }
}

// runN drives checker i synchronously.
func runN(h *Health, i, n int) {
	for range n {
		h.checkers[i].run(context.Background())
	}
}

func TestLiveEndpoint(t *testing.T) {
	tests := []struct {
		name     string
		checks   []CheckFunc
		runs     int
		wantCode int
		wantFail map[string]string
	}{
		{name: "no checks", wantCode: http.StatusOK},
		{name: "passing", checks: []CheckFunc{pass, pass}, runs: 1, wantCode: http.StatusOK},
		{name: "below threshold", checks: []CheckFunc{fail("flaky")}, runs: FailureThreshold - 1, wantCode: http.StatusOK},
		{
			name:     "at threshold",
			checks:   []CheckFunc{pass, fail("connection refused")},
			runs:     FailureThreshold,
			wantCode: http.StatusServiceUnavailable,
			wantFail: map[string]string{"c1": "connection refused"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := New()
			for i, c := range tt.checks {
				h.AddLivenessCheck("c"+string(rune('0'+i)), time.Second, c)
			}
			for i := range tt.checks {
				runN(h, i, tt.runs)
			}

			code, b := get(t, h.LiveEndpoint)
			assert.Equal(t, tt.wantCode, code)
			if tt.wantFail == nil {
				assert.Equal(t, "ok", b.Status)
				assert.Empty(t, b.Checks)
				return
			}
			assert.Equal(t, "unhealthy", b.Status)
			assert.Equal(t, tt.wantFail, b.Checks)
		})
	}
}

func TestReadyEndpoint(t *testing.T) {
	h := New()
	h.AddReadinessCheck("postgres", time.Second, pass)
	h.AddReadinessCheck("redis", time.Second, fail("cache down"))
	h.AddLivenessCheck("goroutines", time.Second, fail("ignored by readyz"))

	code, b := get(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, map[string]string{"_readiness": "service is not ready"}, b.Checks)
	assert.False(t, h.IsReady())

	h.SetReady(true)
	code, _ = get(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, h.IsReady())

	runN(h, 1, FailureThreshold)
	code, b = get(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, map[string]string{"redis": "cache down"}, b.Checks)
	assert.False(t, h.IsReady())

	h.SetReady(false)
	_, b = get(t, h.ReadyEndpoint)
	assert.Len(t, b.Checks, 2)
}

func TestCheckRecovers(t *testing.T) {
	var down atomic.Bool
	down.Store(true)

	h := New()
	h.AddLivenessCheck("flaky", time.Second, func(context.Context) error {
		if down.Load() {
			return errors.New("down")
		}
		return nil
	})
	p := h.checkers[0]
	assert.Equal(t, "check is unhealthy", p.reason())

	runN(h, 0, FailureThreshold)
	assert.False(t, p.healthy())
	assert.Equal(t, "down", p.reason())

	down.Store(false)
	runN(h, 0, SuccessThreshold)
	assert.True(t, p.healthy())
}

func TestCheckTimeout(t *testing.T) {
	h := New()
	h.AddReadinessCheck("slow", 10*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	runN(h, 0, FailureThreshold)
	assert.Contains(t, h.checkers[0].reason(), "deadline")
}

func TestStartStop(t *testing.T) {
	var calls atomic.Int32
	h := New()
	h.AddLivenessCheck("counter", time.Second, func(context.Context) error {
		calls.Add(1)
		return nil
	})
	h.AddReadinessCheck("failing", time.Second, fail("nope"))
	h.SetReady(true)

	h.Start(context.Background(), 5*time.Millisecond)
	require.Eventually(t, func() bool { return calls.Load() >= 3 }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return !h.IsReady() }, time.Second, time.Millisecond)

	h.Stop()
	h.Stop()
	time.Sleep(20 * time.Millisecond)
	stopped := calls.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, stopped, calls.Load())
}

func TestConcurrentReads(t *testing.T) {
	h := New()
	h.AddLivenessCheck("live", time.Second, fail("err"))
	h.AddReadinessCheck("ready", time.Second, pass)
	h.SetReady(true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.Start(ctx, time.Millisecond)
	defer h.Stop()

	var wg sync.WaitGroup
	for range 8 {
		wg.Go(func() {
			for range 50 {
				h.IsReady()
				h.LiveEndpoint(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/livez", nil))
				h.ReadyEndpoint(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/readyz", nil))
			}
		})
	}
	wg.Wait()
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func TestPingCheck(t *testing.T) {
	require.NoError(t, PingCheck("postgres", pinger{})(context.Background()))

	err := PingCheck("postgres", pinger{err: errors.New("refused")})(context.Background())
	require.Error(t, err)
	assert.Equal(t, "ping postgres: refused", err.Error())
}

func TestRuntimeChecks(t *testing.T) {
	require.NoError(t, GoroutineCountCheck(1_000_000)(context.Background()))
	err := GoroutineCountCheck(0)(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds threshold")

	assert.NoError(t, GCMaxPauseCheck(time.Hour)(context.Background()))
}
