package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCORS(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	t.Run("wildcard echoes origin without credentials", func(t *testing.T) {
		h := CORS([]string{"*"})(next)
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Origin", "https://curhatin.id")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)

		require.Equal(t, http.StatusTeapot, w.Code)
		require.Equal(t, "https://curhatin.id", w.Header().Get("Access-Control-Allow-Origin"))
		require.Contains(t, w.Header().Get("Access-Control-Expose-Headers"), "Retry-After")
		require.Contains(t, w.Header().Get("Access-Control-Expose-Headers"), "X-Parlant-Timeout")
		require.Empty(t, w.Header().Get("Access-Control-Allow-Credentials"))
	})

	t.Run("explicit origin allows credentials", func(t *testing.T) {
		h := CORS([]string{"https://curhatin.id"})(next)
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Origin", "https://curhatin.id")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)

		require.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
	})

	t.Run("unknown origin gets no headers", func(t *testing.T) {
		h := CORS([]string{"https://curhatin.id"})(next)
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Origin", "https://evil.example")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)

		require.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("preflight short-circuits", func(t *testing.T) {
		h := CORS([]string{"*"})(next)
		r := httptest.NewRequest(http.MethodOptions, "/", nil)
		r.Header.Set("Origin", "https://curhatin.id")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)

		require.Equal(t, http.StatusNoContent, w.Code)
	})
}
