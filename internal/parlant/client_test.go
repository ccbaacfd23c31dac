package parlant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/containerd/errdefs"
	"github.com/stretchr/testify/require"
)

func TestCreateSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/sessions", r.URL.Path)

		var p CreateSessionParams
		require.NoError(t, json.NewDecoder(r.Body).Decode(&p))
		require.Equal(t, "agent-1", p.AgentID)
		require.Equal(t, "guest", p.CustomerID)

		_, _ = w.Write([]byte(`{"id":"sess-1","agent_id":"agent-1","customer_id":"guest","creation_utc":"2025-01-02T03:04:05.000Z","title":"t"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", time.Second)
	s, err := c.CreateSession(context.Background(), CreateSessionParams{AgentID: "agent-1", CustomerID: "guest", Title: "t"})
	require.NoError(t, err)
	require.Equal(t, "sess-1", s.ID)
	require.Equal(t, time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC), s.CreatedAt())
}

func TestListEvents_NeverFiltersKinds(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/sessions/sess-1/events", r.URL.Path)
		q := r.URL.Query()
		require.Equal(t, "7", q.Get("min_offset"))
		require.Equal(t, "2", q.Get("wait_for_data"))
		require.False(t, q.Has("kinds"))
		_, _ = w.Write([]byte(`[
			{"id":"e7","source":"ai_agent","kind":"message","offset":7,"creation_utc":"x","data":{"message":"hi","participant":{"id":"a1","display_name":"Curhatin"}}},
			{"id":"e8","source":"ai_agent","kind":"status","offset":8,"data":{"status":"ready"}}
		]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	events, err := c.ListEvents(context.Background(), "sess-1", ListEventsParams{MinOffset: 7, WaitForData: 2 * time.Second})
	require.NoError(t, err)
	require.Len(t, events, 2)

	first := events[0].Normalize()
	require.Equal(t, "hi", first.Message)
	require.Equal(t, "Curhatin", first.Participant)
	require.Equal(t, "x", first.CreatedAt)
	require.Equal(t, "ready", events[1].Normalize().Status)
}

func TestNormalize_ToleratesMissingAndOddData(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"no data", `{"id":"e","kind":"tool","offset":3}`},
		{"data not object", `{"id":"e","kind":"message","offset":3,"data":"oops"}`},
		{"message not string", `{"id":"e","kind":"message","offset":3,"data":{"message":{"parts":[]}}}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var e EventResource
			require.NoError(t, json.Unmarshal([]byte(tc.raw), &e))
			ev := e.Normalize()
			require.Equal(t, int64(3), ev.Offset)
			require.Empty(t, ev.Message)
		})
	}

	var e EventResource
	require.NoError(t, json.Unmarshal([]byte(`{"id":"e","offset":1,"createdAt":"later","data":{"participant":"Budi"}}`), &e))
	ev := e.Normalize()
	require.Equal(t, "Budi", ev.Participant)
	require.Equal(t, "later", ev.CreatedAt)
}

func TestStatusErrorClasses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such session", http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	_, err := c.CreateEvent(context.Background(), "missing", CreateEventParams{Kind: "message", Source: "customer", Message: "x"})
	require.Error(t, err)
	require.True(t, errdefs.IsNotFound(err))
	require.False(t, IsTimeout(err))
}

func TestIsTimeout(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"gateway status", fmt.Errorf("list events: %w", &StatusError{StatusCode: http.StatusGatewayTimeout}), true},
		{"gateway wording", errors.New("GatewayTimeout from proxy"), true},
		{"generic wording", errors.New("request Timeout while awaiting headers"), true},
		{"deadline", fmt.Errorf("list events: %w", context.DeadlineExceeded), true},
		{"server error", &StatusError{StatusCode: http.StatusInternalServerError, Body: "boom"}, false},
		{"canceled", context.Canceled, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, IsTimeout(tc.err))
		})
	}
}

func TestNotConfigured(t *testing.T) {
	c := NewClient("", time.Second)
	require.False(t, c.Configured())
	_, err := c.CreateSession(context.Background(), CreateSessionParams{AgentID: "a"})
	require.ErrorIs(t, err, ErrNotConfigured)
}
