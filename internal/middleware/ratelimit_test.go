package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func doRequest(h http.Handler, remoteAddr string) int {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = remoteAddr
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec.Code
}

func TestRateLimiter_LimitsPerCaller(t *testing.T) {
	rl := NewRateLimiter(60) // burst of 6
	h := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	var limited bool
	for i := 0; i < 20; i++ {
		if doRequest(h, "10.0.0.1:1234") == http.StatusTooManyRequests {
			limited = true
			break
		}
	}
	assert.True(t, limited, "a hot caller eventually hits the limit")

	// A different caller still has its full budget
	assert.Equal(t, http.StatusOK, doRequest(h, "10.0.0.2:1234"))
}

func TestRateLimiter_CleanupDropsIdleCallers(t *testing.T) {
	rl := NewRateLimiter(600)
	h := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	doRequest(h, "10.0.0.1:1234")
	assert.Len(t, rl.limiters, 1)

	// The entry is still warm (tokens below burst), so it survives
	rl.Cleanup()
	assert.Len(t, rl.limiters, 1)
}
