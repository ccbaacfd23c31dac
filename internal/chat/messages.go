package chat

import (
	"strings"

	"github.com/curhatin/companion/internal/domain"
)

// LanguagePrompt asks the visitor to pick a language before a session exists.
const LanguagePrompt = "Hi! Please choose your preferred language:\n\nHalo! Silakan pilih bahasa yang kamu inginkan:"

// InvalidSelection is shown when a language choice could not be parsed.
const InvalidSelection = "I didn't understand your selection. Please click on one of the language options above: Bahasa Indonesia or English"

// LanguageOptions are the labels offered for selection, in display order.
var LanguageOptions = []string{"Bahasa Indonesia", "English"}

// Texts holds the fixed widget copy for one language.
type Texts struct {
	Greeting            string
	Apology             string
	SessionSetupFailed  string
	SessionError        string
	NotReady            string
	VerificationPending string
	EmptyInput          string
}

var texts = map[domain.Language]Texts{
	domain.LanguageIndonesian: {
		Greeting:            "Halo! Aku Curhatin, teman AI kamu. Aku di sini buat dengerin dan nemenin kamu\n\nMau cerita apa aja boleh banget, aku siap dengerin tanpa nge-judge sama sekali. Gimana perasaan kamu hari ini?",
		Apology:             "Aku lagi ada masalah koneksi nih. Coba lagi ya sebentar lagi.",
		SessionSetupFailed:  "Maaf, aku lagi ada masalah untuk menyiapkan sesi chat kita sekarang. Tolong refresh halaman atau coba lagi sebentar lagi ya. Kalau masalahnya masih ada, tolong hubungi support.",
		SessionError:        "Maaf, aku tidak bisa memproses pesan sekarang karena ada masalah sesi. Tolong refresh halaman untuk coba lagi.",
		NotReady:            "Tolong tunggu sebentar sementara aku menyiapkan sesi chat. Kalau pesan ini terus muncul, tolong refresh halaman.",
		VerificationPending: "Maaf, aku perlu verifikasi dulu kalau kamu bukan robot. Tolong tunggu sebentar dan coba lagi ya.",
		EmptyInput:          "Aku di sini buat dengerin kamu. Ada apa yang lagi kamu pikirin?",
	},
	domain.LanguageEnglish: {
		Greeting:            "Hello! I'm Curhatin, your AI companion. I'm here to listen and support you\n\nYou can share anything with me - I'm here to listen without any judgment. How are you feeling today?",
		Apology:             "I'm having trouble connecting right now. Please try again in a moment.",
		SessionSetupFailed:  "I'm sorry, but I'm having trouble setting up our chat session right now. Please try refreshing the page or try again in a moment. If the problem persists, please contact support.",
		SessionError:        "I'm sorry, but I'm unable to process messages right now due to a session error. Please refresh the page to try again.",
		NotReady:            "Please wait while I set up the chat session. If this message persists, please refresh the page.",
		VerificationPending: "I'm sorry, but I need to verify you're not a robot first. Please wait a moment and try again.",
		EmptyInput:          "I'm here to listen. What's on your mind?",
	},
}

// TextsFor returns the copy for lang, falling back to Indonesian.
func TextsFor(lang domain.Language) Texts {
	if t, ok := texts[lang]; ok {
		return t
	}
	return texts[domain.LanguageIndonesian]
}

// ParseLanguageSelection interprets free-form input from the language
// prompt. Indonesian wins when both match.
func ParseLanguageSelection(input string) (domain.Language, bool) {
	in := strings.ToLower(input)
	switch {
	case strings.Contains(in, "indonesia"), strings.Contains(in, "bahasa"), strings.Contains(in, "id"):
		return domain.LanguageIndonesian, true
	case strings.Contains(in, "english"), strings.Contains(in, "en"):
		return domain.LanguageEnglish, true
	default:
		return "", false
	}
}
