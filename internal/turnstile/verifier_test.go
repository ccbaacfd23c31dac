package turnstile

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVerify_SendsFormAndAcceptsSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, formContentType, r.Header.Get("Content-Type"))
		require.NoError(t, r.ParseForm())
		require.Equal(t, "s3cret", r.PostForm.Get("secret"))
		require.Equal(t, "tok", r.PostForm.Get("response"))
		require.Equal(t, "203.0.113.7", r.PostForm.Get("remoteip"))
		_, _ = w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	v := NewVerifier("s3cret", srv.URL)
	ok, err := v.Verify(context.Background(), "tok", "203.0.113.7")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestVerify_RejectedTokenIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		require.Empty(t, r.PostForm.Get("remoteip"))
		_, _ = w.Write([]byte(`{"success":false,"error-codes":["invalid-input-response"]}`))
	}))
	defer srv.Close()

	v := NewVerifier("s3cret", srv.URL)
	ok, err := v.Verify(context.Background(), "bad", "unknown")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestVerify_MissingSecret(t *testing.T) {
	v := NewVerifier("  ", "http://127.0.0.1:1")
	require.False(t, v.Configured())

	_, err := v.Verify(context.Background(), "tok", "")
	require.ErrorIs(t, err, ErrNotConfigured)
}

func TestVerify_ServiceFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	v := NewVerifier("s3cret", srv.URL, WithHTTPClient(srv.Client()))
	_, err := v.Verify(context.Background(), "tok", "")
	require.Error(t, err)
	require.Contains(t, err.Error(), "502")
}
