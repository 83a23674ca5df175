// Package history keeps per-session conversation history in memory.
//
// Each session holds a bounded window of messages: once the window is full,
// appending drops the oldest messages. History lives for the process lifetime
// only; there is no persistence layer behind it.
package history

import (
	"sync"

	"github.com/firebase/genkit/go/ai"

	"github.com/koopa0/ragline/internal/log"
)

// DefaultWindow is the number of messages retained per session
// when no explicit window is configured.
const DefaultWindow = 10

// Manager stores bounded per-session message history.
// Safe for concurrent use by multiple goroutines.
type Manager struct {
	mu       sync.RWMutex
	window   int
	sessions map[string][]*ai.Message
	logger   log.Logger
}

// New creates a Manager retaining at most window messages per session.
// A non-positive window falls back to DefaultWindow.
func New(window int, logger log.Logger) *Manager {
	if window <= 0 {
		window = DefaultWindow
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Manager{
		window:   window,
		sessions: make(map[string][]*ai.Message),
		logger:   logger,
	}
}

// Window returns the configured message window.
func (m *Manager) Window() int {
	return m.window
}

// Snapshot returns a deep copy of the session's history in insertion order.
// An unknown session yields an empty snapshot; sessions are created lazily
// on first Append. The returned messages never alias internal state, so
// callers can hand them to Genkit without racing later appends.
func (m *Manager) Snapshot(sessionID string) []*ai.Message {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return deepCopyMessages(m.sessions[sessionID])
}

// Append adds messages to the session in order, creating the session if
// needed, then trims to the most recent window messages.
func (m *Manager) Append(sessionID string, msgs ...*ai.Message) {
	if len(msgs) == 0 {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	history := append(m.sessions[sessionID], deepCopyMessages(msgs)...)
	if over := len(history) - m.window; over > 0 {
		m.logger.Debug("trimming session history",
			"session_id", sessionID, "dropped", over, "window", m.window)
		history = history[over:]
	}
	m.sessions[sessionID] = history
}

// Len reports the number of messages currently stored for the session.
func (m *Manager) Len(sessionID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions[sessionID])
}

// Clear removes all history for the session.
func (m *Manager) Clear(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
}

// deepCopyMessages creates independent copies of Message and Part structs.
//
// WORKAROUND: Genkit's renderMessages() modifies msg.Content in-place,
// causing data races when concurrent generations share message objects.
// Copying on both Snapshot and Append keeps the stored history isolated
// from anything Genkit touches.
//
// Tested version: github.com/firebase/genkit/go v1.4.0
func deepCopyMessages(msgs []*ai.Message) []*ai.Message {
	if msgs == nil {
		return nil // Preserve nil vs empty slice semantics
	}
	copied := make([]*ai.Message, len(msgs))
	for i, msg := range msgs {
		parts := make([]*ai.Part, len(msg.Content))
		for j, part := range msg.Content {
			parts[j] = deepCopyPart(part)
		}
		copied[i] = &ai.Message{
			Role:     msg.Role,
			Content:  parts,
			Metadata: shallowCopyMap(msg.Metadata),
		}
	}
	return copied
}

// deepCopyPart creates an independent copy of an ai.Part struct.
//
// Note on Input/Output fields: ToolRequest.Input and ToolResponse.Output
// are type `any` and copied by reference. Genkit only mutates the Content
// slice, not tool payloads, so a reference copy is sufficient here.
func deepCopyPart(p *ai.Part) *ai.Part {
	if p == nil {
		return nil
	}
	cp := &ai.Part{
		Kind:        p.Kind,
		ContentType: p.ContentType,
		Text:        p.Text,
		Custom:      shallowCopyMap(p.Custom),
		Metadata:    shallowCopyMap(p.Metadata),
	}
	if p.ToolRequest != nil {
		cp.ToolRequest = &ai.ToolRequest{
			Input: p.ToolRequest.Input,
			Name:  p.ToolRequest.Name,
			Ref:   p.ToolRequest.Ref,
		}
	}
	if p.ToolResponse != nil {
		cp.ToolResponse = &ai.ToolResponse{
			Name:   p.ToolResponse.Name,
			Output: p.ToolResponse.Output,
			Ref:    p.ToolResponse.Ref,
		}
	}
	if p.Resource != nil {
		cp.Resource = &ai.ResourcePart{Uri: p.Resource.Uri}
	}
	return cp
}

// shallowCopyMap copies map keys and values but not nested structures.
func shallowCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cp := make(map[string]any, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}
