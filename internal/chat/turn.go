package chat

import (
	"sort"
	"strings"
	"time"

	"github.com/curhatin/companion/internal/domain"
)

// TurnConfig holds the heuristics of one request/response cycle.
type TurnConfig struct {
	// MaxAttempts bounds the number of polls per turn.
	MaxAttempts int
	// Timeout bounds the wall-clock length of a turn.
	Timeout time.Duration
	// PollWait is the server-side wait requested on each poll.
	PollWait time.Duration
	// IdleDelay follows a poll that returned no events.
	IdleDelay time.Duration
	// TimeoutDelay follows a poll whose upstream wait elapsed.
	TimeoutDelay time.Duration
	// ErrorDelay follows a failed poll.
	ErrorDelay time.Duration
	// MinMessageLength is the trimmed length an agent message needs to be shown.
	MinMessageLength int
	// ReadyThreshold is how many consecutive ready statuses end a turn.
	ReadyThreshold int
	// CreateTimeout bounds a shared session creation.
	CreateTimeout time.Duration
}

// DefaultTurnConfig returns the tuning used by the web widget.
func DefaultTurnConfig() TurnConfig {
	return TurnConfig{
		MaxAttempts:      20,
		Timeout:          60 * time.Second,
		PollWait:         2 * time.Second,
		IdleDelay:        500 * time.Millisecond,
		TimeoutDelay:     300 * time.Millisecond,
		ErrorDelay:       time.Second,
		MinMessageLength: 3,
		ReadyThreshold:   2,
		CreateTimeout:    30 * time.Second,
	}
}

// TurnState tracks progress through one turn's event stream.
type TurnState struct {
	Cursor           int64
	ConsecutiveReady int
	Displayed        []string
	Attempts         int

	minLen    int
	threshold int
}

// NewTurnState starts a turn reading from cursor.
func NewTurnState(cursor int64, cfg TurnConfig) *TurnState {
	return &TurnState{
		Cursor:    cursor,
		minLen:    cfg.MinMessageLength,
		threshold: cfg.ReadyThreshold,
	}
}

// Apply consumes a batch and returns the agent messages to display, in
// offset order. Events below the cursor were already consumed and are
// ignored.
func (t *TurnState) Apply(events []domain.Event) []string {
	batch := make([]domain.Event, len(events))
	copy(batch, events)
	sort.SliceStable(batch, func(i, j int) bool { return batch[i].Offset < batch[j].Offset })

	var (
		show         []string
		readyInBatch int
		busyInBatch  bool
	)
	for _, ev := range batch {
		if ev.Offset < t.Cursor {
			continue
		}
		t.Cursor = ev.Offset + 1

		if !ev.FromAgent() {
			continue
		}
		switch {
		case ev.IsMessage() && ev.Message != "":
			if len([]rune(strings.TrimSpace(ev.Message))) >= t.minLen {
				show = append(show, ev.Message)
				t.Displayed = append(t.Displayed, ev.Message)
			}
			t.ConsecutiveReady = 0
		case ev.IsStatus() && ev.Status == domain.StatusReady:
			readyInBatch++
		case ev.IsBusyStatus():
			busyInBatch = true
			t.ConsecutiveReady = 0
		}
	}

	if readyInBatch > 0 && !busyInBatch {
		t.ConsecutiveReady += readyInBatch
	}
	return show
}

// Complete reports whether the agent has replied and gone idle.
func (t *TurnState) Complete() bool {
	return len(t.Displayed) > 0 && t.ConsecutiveReady >= t.threshold
}
