// Package session tracks chat conversations per figure. Each conversation
// persists as a JSON file and is reaped after a period of inactivity.
package session

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	ferrors "github.com/figurechat/figurechat/internal/errors"
	"github.com/figurechat/figurechat/internal/llm"
)

// Conversation is one chat session with a figure.
type Conversation struct {
	ID        string        `json:"id"`
	FigureID  string        `json:"figure_id"`
	Messages  []llm.Message `json:"messages"`
	CreatedAt time.Time     `json:"created_at"`
	// LastActive drives inactivity reaping.
	LastActive time.Time `json:"last_active"`
}

type entry struct {
	mu   sync.Mutex
	conv *Conversation
	path string
}

// Manager owns all live conversations.
type Manager struct {
	dir     string
	timeout time.Duration
	sweep   time.Duration

	mu       sync.RWMutex
	sessions map[string]*entry

	done chan struct{}
	once sync.Once
}

// NewManager creates a manager storing conversations under dir.
func NewManager(dir string, timeout, sweepInterval time.Duration) (*Manager, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create conversations dir: %w", err)
	}
	if timeout <= 0 {
		timeout = 24 * time.Hour
	}
	if sweepInterval <= 0 {
		sweepInterval = time.Hour
	}
	return &Manager{
		dir:      dir,
		timeout:  timeout,
		sweep:    sweepInterval,
		sessions: make(map[string]*entry),
		done:     make(chan struct{}),
	}, nil
}

// Start launches the background reaper.
func (m *Manager) Start() {
	go func() {
		ticker := time.NewTicker(m.sweep)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.reap()
			case <-m.done:
				return
			}
		}
	}()
}

// Close stops the reaper.
func (m *Manager) Close() {
	m.once.Do(func() { close(m.done) })
}

// Create starts a new conversation for the figure.
func (m *Manager) Create(figureID string) (*Conversation, error) {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return nil, fmt.Errorf("generate session id: %w", err)
	}
	shortID := hex.EncodeToString(buf[:])

	now := time.Now().UTC()
	conv := &Conversation{
		ID:         shortID,
		FigureID:   figureID,
		CreatedAt:  now,
		LastActive: now,
	}

	e := &entry{
		conv: conv,
		path: filepath.Join(m.dir, fmt.Sprintf("conversation_%s_%s.json",
			now.Format("2006-01-02"), shortID)),
	}
	if err := e.persist(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.sessions[shortID] = e
	m.mu.Unlock()

	slog.Debug("conversation started",
		slog.String("session_id", shortID),
		slog.String("figure_id", figureID))
	return conv, nil
}

// Get returns a snapshot of the conversation, bumping its activity time.
func (m *Manager) Get(id string) (*Conversation, error) {
	e, err := m.lookup(id)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.conv.LastActive = time.Now().UTC()
	return snapshot(e.conv), nil
}

// Append adds one message to the conversation and persists it.
func (m *Manager) Append(id, role, content string) (*Conversation, error) {
	e, err := m.lookup(id)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.conv.Messages = append(e.conv.Messages, llm.Message{Role: role, Content: content})
	e.conv.LastActive = time.Now().UTC()
	if err := e.persist(); err != nil {
		return nil, err
	}
	return snapshot(e.conv), nil
}

// Count returns the number of live conversations.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func (m *Manager) lookup(id string) (*entry, error) {
	m.mu.RLock()
	e, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ferrors.Validation(fmt.Sprintf("unknown session %q", id))
	}
	return e, nil
}

// reap collects expired sessions under the read lock, then removes them.
func (m *Manager) reap() {
	cutoff := time.Now().UTC().Add(-m.timeout)

	var expired []string
	m.mu.RLock()
	for id, e := range m.sessions {
		e.mu.Lock()
		idle := e.conv.LastActive.Before(cutoff)
		e.mu.Unlock()
		if idle {
			expired = append(expired, id)
		}
	}
	m.mu.RUnlock()

	if len(expired) == 0 {
		return
	}

	m.mu.Lock()
	for _, id := range expired {
		if e, ok := m.sessions[id]; ok {
			if err := os.Remove(e.path); err != nil && !os.IsNotExist(err) {
				slog.Warn("removing expired conversation file failed",
					slog.String("path", e.path),
					slog.String("error", err.Error()))
			}
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	slog.Info("expired conversations reaped", slog.Int("count", len(expired)))
}

func (e *entry) persist() error {
	data, err := json.MarshalIndent(e.conv, "", "  ")
	if err != nil {
		return fmt.Errorf("encode conversation: %w", err)
	}

	tmp := e.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write conversation: %w", err)
	}
	if err := os.Rename(tmp, e.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename conversation: %w", err)
	}
	return nil
}

func snapshot(c *Conversation) *Conversation {
	out := *c
	out.Messages = make([]llm.Message, len(c.Messages))
	copy(out.Messages, c.Messages)
	return &out
}
