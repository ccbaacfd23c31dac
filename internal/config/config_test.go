package config

import (
	"testing"
	"time"

	"github.com/curhatin/companion/internal/domain"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PARLANT_SERVER_URL", "http://parlant:8800")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "8080", cfg.Port)
	require.Equal(t, 10, cfg.RateLimit.SessionRequests)
	require.Equal(t, 30, cfg.RateLimit.EventRequests)
	require.Equal(t, time.Minute, cfg.RateLimit.Window)
	require.Equal(t, 30*time.Second, cfg.Chat.PollMaxWait)
	require.Equal(t, 2000, cfg.Chat.MessageMaxLength)
	require.Equal(t, []string{"*"}, cfg.CORSAllowedOrigins)
	require.True(t, cfg.IsDevelopment())
}

func TestLoadLegacyFallbacks(t *testing.T) {
	t.Setenv("NEXT_PUBLIC_PARLANT_SERVER_URL", "http://legacy:8800")
	t.Setenv("NEXT_PUBLIC_PARLANT_AGENT_ID_EN", "agent-en")
	t.Setenv("PARLANT_AGENT_ID_ID", "agent-id")
	t.Setenv("NEXT_PUBLIC_PARLANT_AGENT_ID_ID", "ignored")
	t.Setenv("NEXT_PUBLIC_GOOGLE_SCRIPT_URL", "https://script.example/exec")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "http://legacy:8800", cfg.Parlant.ServerURL)
	require.Equal(t, "https://script.example/exec", cfg.Wishlist.WebhookURL)
	require.Equal(t, map[domain.Language]string{
		domain.LanguageEnglish:    "agent-en",
		domain.LanguageIndonesian: "agent-id",
	}, cfg.AgentIDs())
}

func TestAgentIDsOmitsMissingLanguages(t *testing.T) {
	cfg := &Config{Parlant: ParlantConfig{AgentIDEnglish: "agent-en"}}
	ids := cfg.AgentIDs()
	require.Len(t, ids, 1)
	_, ok := ids[domain.LanguageIndonesian]
	require.False(t, ok)
}

func TestValidateRejectsShortUpstreamTimeout(t *testing.T) {
	t.Setenv("POLL_MAX_WAIT", "30s")
	t.Setenv("PARLANT_REQUEST_TIMEOUT", "10s")

	_, err := Load()
	require.Error(t, err)
	require.Contains(t, err.Error(), "PARLANT_REQUEST_TIMEOUT")
}

func TestValidateRejectsPollWaitAboveThirtySeconds(t *testing.T) {
	t.Setenv("POLL_MAX_WAIT", "31s")
	t.Setenv("PARLANT_REQUEST_TIMEOUT", "60s")

	_, err := Load()
	require.Error(t, err)
	require.Contains(t, err.Error(), "POLL_MAX_WAIT")
}

func TestValidateRejectsZeroLimits(t *testing.T) {
	t.Setenv("RATE_LIMIT_EVENT_REQUESTS", "0")

	_, err := Load()
	require.Error(t, err)
}

func TestIsDevelopment(t *testing.T) {
	cases := []struct {
		url  string
		want bool
	}{
		{"", true},
		{"http://localhost:3000", true},
		{"http://127.0.0.1:3000", true},
		{"https://curhatin.id", false},
		{"https://www.curhatin.id", false},
	}
	for _, tc := range cases {
		cfg := &Config{FrontendURL: tc.url}
		require.Equal(t, tc.want, cfg.IsDevelopment(), tc.url)
	}
}
