package wishlist

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/containerd/errdefs"
	"github.com/curhatin/companion/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type memRepo struct {
	mu        sync.Mutex
	entries   []*domain.WishlistEntry
	forwarded map[string]bool
}

func newMemRepo() *memRepo {
	return &memRepo{forwarded: make(map[string]bool)}
}

func (r *memRepo) SaveWishlistEntry(_ context.Context, e *domain.WishlistEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *e
	r.entries = append(r.entries, &cp)
	return nil
}

func (r *memRepo) PendingWishlistEntries(_ context.Context, limit int) ([]*domain.WishlistEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.WishlistEntry
	for _, e := range r.entries {
		if !r.forwarded[e.ID] && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *memRepo) MarkWishlistForwarded(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.forwarded[id] = true
	return nil
}

type stubVerifier struct{ err error }

func (v stubVerifier) Verify(context.Context, string, string) error { return v.err }

func TestSubmit_ForwardsTrimmedEntry(t *testing.T) {
	var got webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	repo := newMemRepo()
	svc := NewService(repo, stubVerifier{}, NewWebhookForwarder(srv.URL, nil))

	entry, err := svc.Submit(context.Background(), "c", SubmitRequest{Name: "  Ani ", Email: " ani@example.com ", VerificationToken: "tok"})
	require.NoError(t, err)
	require.True(t, entry.Forwarded)
	_, err = uuid.Parse(entry.ID)
	require.NoError(t, err)
	require.Equal(t, webhookPayload{Name: "Ani", Email: "ani@example.com"}, got)
	require.True(t, repo.forwarded[entry.ID])
}

func TestSubmit_RequiresNameAndEmail(t *testing.T) {
	svc := NewService(newMemRepo(), stubVerifier{}, NewWebhookForwarder("http://unused", nil))

	_, err := svc.Submit(context.Background(), "c", SubmitRequest{Name: " ", Email: "a@b.c"})
	require.ErrorIs(t, err, ErrInvalidEntry)
	require.True(t, errdefs.IsInvalidArgument(err))
}

func TestSubmit_VerificationFailureStoresNothing(t *testing.T) {
	repo := newMemRepo()
	denied := errdefs.ErrPermissionDenied.WithMessage("verification failed")
	svc := NewService(repo, stubVerifier{err: denied}, NewWebhookForwarder("http://unused", nil))

	_, err := svc.Submit(context.Background(), "c", SubmitRequest{Name: "Ani", Email: "a@b.c", VerificationToken: "bad"})
	require.ErrorIs(t, err, denied)
	require.Empty(t, repo.entries)
}

func TestSubmit_MissingWebhookIsConfigurationError(t *testing.T) {
	svc := NewService(newMemRepo(), stubVerifier{}, NewWebhookForwarder("", nil))

	_, err := svc.Submit(context.Background(), "c", SubmitRequest{Name: "Ani", Email: "a@b.c", VerificationToken: "tok"})
	require.ErrorIs(t, err, ErrWebhookNotConfigured)
}

func TestSubmit_WebhookFailureKeepsEntryPendingThenRetries(t *testing.T) {
	fail := true
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		if fail {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	repo := newMemRepo()
	svc := NewService(repo, stubVerifier{}, NewWebhookForwarder(srv.URL, srv.Client()))

	entry, err := svc.Submit(context.Background(), "c", SubmitRequest{Name: "Ani", Email: "a@b.c", VerificationToken: "tok"})
	require.NoError(t, err)
	require.False(t, entry.Forwarded)

	n, err := svc.RetryPending(context.Background(), 10)
	require.Error(t, err)
	require.Zero(t, n)

	mu.Lock()
	fail = false
	mu.Unlock()

	n, err = svc.RetryPending(context.Background(), 10)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.True(t, repo.forwarded[entry.ID])
}

func TestRetryPending_UnconfiguredIsNoop(t *testing.T) {
	repo := newMemRepo()
	require.NoError(t, repo.SaveWishlistEntry(context.Background(), &domain.WishlistEntry{ID: "x"}))
	svc := NewService(repo, stubVerifier{}, NewWebhookForwarder("", nil))

	n, err := svc.RetryPending(context.Background(), 10)
	require.NoError(t, err)
	require.Zero(t, n)
	require.False(t, errors.Is(err, ErrWebhookNotConfigured))
}
