package api

import (
	"net/http"

	"github.com/curhatin/companion/internal/chat"
	"github.com/curhatin/companion/internal/domain"
	"github.com/go-chi/chi/v5"
)

// PublicConfig is what the browser widget needs before it can talk to us.
type PublicConfig struct {
	TurnstileSiteKey string
	MessageMaxLength int
	PollMaxWaitSecs  int
}

// ConfigHandler exposes PublicConfig.
type ConfigHandler struct {
	cfg PublicConfig
}

// NewConfigHandler creates a new config handler.
func NewConfigHandler(cfg PublicConfig) *ConfigHandler {
	return &ConfigHandler{cfg: cfg}
}

// RegisterRoutes registers config routes.
func (h *ConfigHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/config", h.GetConfig)
}

type languageOption struct {
	Code  domain.Language `json:"code"`
	Label string          `json:"label"`
}

// GetConfig returns the widget configuration.
func (h *ConfigHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	langs := make([]languageOption, 0, len(domain.Languages))
	for i, code := range domain.Languages {
		label := string(code)
		if i < len(chat.LanguageOptions) {
			label = chat.LanguageOptions[i]
		}
		langs = append(langs, languageOption{Code: code, Label: label})
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"turnstile_site_key": h.cfg.TurnstileSiteKey,
		"languages":          langs,
		"language_prompt":    chat.LanguagePrompt,
		"max_message_length": h.cfg.MessageMaxLength,
		"poll_max_wait":      h.cfg.PollMaxWaitSecs,
	})
}
