package common_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-merch/internal/common"
)

func newIdem(t *testing.T) common.Idem {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return common.Idem{R: client, TTL: time.Minute}
}

func TestIdemRejectsReplay(t *testing.T) {
	idem := newIdem(t)
	calls := 0
	handler := idem.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	}))

	for i, want := range []int{http.StatusCreated, http.StatusConflict} {
		req := httptest.NewRequest(http.MethodPost, "/api/orders", nil)
		req.Header.Set(common.IdempotencyHeader, "abc")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(t, want, rec.Code, "request %d", i)
	}
	require.Equal(t, 1, calls)
}

func TestIdemReleasesKeyOnFailure(t *testing.T) {
	for _, failed := range []int{http.StatusBadRequest, http.StatusUnprocessableEntity, http.StatusInternalServerError} {
		t.Run(http.StatusText(failed), func(t *testing.T) {
			idem := newIdem(t)
			status := failed
			handler := idem.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(status)
			}))

			req := httptest.NewRequest(http.MethodPost, "/api/orders", nil)
			req.Header.Set(common.IdempotencyHeader, "retry-me")
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			require.Equal(t, failed, rec.Code)

			status = http.StatusCreated
			req = httptest.NewRequest(http.MethodPost, "/api/orders", nil)
			req.Header.Set(common.IdempotencyHeader, "retry-me")
			rec = httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			require.Equal(t, http.StatusCreated, rec.Code)
		})
	}
}

func TestIdemPassThroughWithoutHeader(t *testing.T) {
	idem := newIdem(t)
	calls := 0
	handler := idem.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))
	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/orders", nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}
	require.Equal(t, 2, calls)
}
