package httpmiddleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClientKey(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.7:51234"
	assert.Equal(t, "10.0.0.7", ClientKey(r))

	r.Header.Set("X-Forwarded-For", " 203.0.113.9 , 10.0.0.1")
	assert.Equal(t, "203.0.113.9", ClientKey(r))

	r.Header.Del("X-Forwarded-For")
	r.RemoteAddr = "unix-socket"
	assert.Equal(t, "unix-socket", ClientKey(r))
}

type denyAll struct{}

func (denyAll) Allow(string) bool { return false }

func TestRateLimit_Rejects(t *testing.T) {
	h := RateLimit(denyAll{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.JSONEq(t, `{"error":"Too Many Requests"}`, w.Body.String())
}
