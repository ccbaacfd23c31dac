// Package domain contains core domain types for the Curhatin companion backend.
package domain

import (
	"strings"
	"time"
)

// Language selects which agent persona handles a session.
type Language string

const (
	// LanguageIndonesian is the primary audience language.
	LanguageIndonesian Language = "id"
	// LanguageEnglish is the secondary audience language.
	LanguageEnglish Language = "en"
)

// Languages lists every supported language in display order.
var Languages = []Language{LanguageIndonesian, LanguageEnglish}

// ParseLanguage returns the Language for a wire value.
// Only exact codes are accepted; free-form selection lives in the chat package.
func ParseLanguage(s string) (Language, bool) {
	switch Language(strings.TrimSpace(s)) {
	case LanguageIndonesian:
		return LanguageIndonesian, true
	case LanguageEnglish:
		return LanguageEnglish, true
	default:
		return "", false
	}
}

// Session identifies a stateful conversation with the remote agent.
type Session struct {
	ID         string    `json:"sessionId"`
	AgentID    string    `json:"agentId"`
	Language   Language  `json:"language,omitempty"`
	CustomerID string    `json:"customerId"`
	Title      string    `json:"title,omitempty"`
	ClientID   string    `json:"-"`
	VisitorID  string    `json:"-"`
	CreatedAt  time.Time `json:"createdAt,omitempty"`
}

// HasCreationTime reports whether the platform reported a creation time.
func (s *Session) HasCreationTime() bool {
	return !s.CreatedAt.IsZero()
}
