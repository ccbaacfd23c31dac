package api

import (
	"log/slog"
	"sync"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// maxStreamsPerVisitor bounds the chat streams one visitor may hold open.
// Registering past the bound closes the visitor's oldest stream.
const maxStreamsPerVisitor = 3

// StreamConn is the part of a stream connection the registry needs.
type StreamConn interface {
	Close(code websocket.StatusCode, reason string) error
}

type openStream struct {
	id   string
	conn StreamConn
}

// StreamRegistry tracks open chat streams per visitor, oldest first.
type StreamRegistry struct {
	mu        sync.Mutex
	limit     int
	byVisitor map[string][]openStream
}

// NewStreamRegistry creates an empty registry.
func NewStreamRegistry() *StreamRegistry {
	return &StreamRegistry{
		limit:     maxStreamsPerVisitor,
		byVisitor: make(map[string][]openStream),
	}
}

// Register records conn as a new stream of visitorID and returns its id.
func (m *StreamRegistry) Register(visitorID string, conn StreamConn) string {
	id := uuid.NewString()

	m.mu.Lock()
	streams := append(m.byVisitor[visitorID], openStream{id: id, conn: conn})
	var evicted []openStream
	if over := len(streams) - m.limit; over > 0 {
		evicted = append(evicted, streams[:over]...)
		streams = append([]openStream(nil), streams[over:]...)
	}
	m.byVisitor[visitorID] = streams
	m.mu.Unlock()

	// Close blocks on the close handshake, so it runs outside the lock.
	for _, s := range evicted {
		slog.Info("closing oldest chat stream", "visitor_id", visitorID, "stream_id", s.id)
		_ = s.conn.Close(websocket.StatusPolicyViolation, "too many open chat streams")
	}
	slog.Debug("chat stream registered", "visitor_id", visitorID, "stream_id", id)
	return id
}

// Unregister forgets a stream. Unknown ids are ignored.
func (m *StreamRegistry) Unregister(visitorID, streamID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	streams := m.byVisitor[visitorID]
	for i, s := range streams {
		if s.id != streamID {
			continue
		}
		streams = append(streams[:i:i], streams[i+1:]...)
		if len(streams) == 0 {
			delete(m.byVisitor, visitorID)
		} else {
			m.byVisitor[visitorID] = streams
		}
		slog.Debug("chat stream unregistered", "visitor_id", visitorID, "stream_id", streamID)
		return
	}
}

// CloseAll closes every stream and returns how many were open. Used on
// shutdown.
func (m *StreamRegistry) CloseAll(reason string) int {
	m.mu.Lock()
	all := m.byVisitor
	m.byVisitor = make(map[string][]openStream)
	m.mu.Unlock()

	n := 0
	for _, streams := range all {
		for _, s := range streams {
			_ = s.conn.Close(websocket.StatusGoingAway, reason)
			n++
		}
	}
	slog.Info("chat streams closed", "reason", reason, "count", n)
	return n
}
