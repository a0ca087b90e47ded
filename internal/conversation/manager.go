package conversation

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusActive Status = "active"
	StatusEnded  Status = "ended"
)

var (
	ErrNotFound = errors.New("conversation not found")
	ErrEnded    = errors.New("conversation ended")
)

// Info is a point-in-time view of a conversation's metadata.
type Info struct {
	ID             string    `json:"conversation_id"`
	Status         Status    `json:"status"`
	TurnCount      int       `json:"turn_count"`
	MessageCount   int       `json:"message_count"`
	StartedAt      time.Time `json:"started_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

// Conversation owns one message log and serializes turns against it.
type Conversation struct {
	id        string
	startedAt time.Time
	log       *Log
	turn      chan struct{}

	mu             sync.RWMutex
	status         Status
	lastActivityAt time.Time
	turnCount      int
}

func newConversation() *Conversation {
	now := time.Now().UTC()
	return &Conversation{
		id:             uuid.NewString(),
		startedAt:      now,
		log:            NewLog(),
		turn:           make(chan struct{}, 1),
		status:         StatusActive,
		lastActivityAt: now,
	}
}

func (c *Conversation) ID() string { return c.id }

func (c *Conversation) Log() *Log { return c.log }

// AcquireTurn blocks until no other turn is in flight on this conversation.
// The returned release func must be called exactly once.
func (c *Conversation) AcquireTurn(ctx context.Context) (release func(), err error) {
	select {
	case c.turn <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	c.mu.Lock()
	if c.status != StatusActive {
		c.mu.Unlock()
		<-c.turn
		return nil, ErrEnded
	}
	c.turnCount++
	c.lastActivityAt = time.Now().UTC()
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.touch()
			<-c.turn
		})
	}, nil
}

func (c *Conversation) Info() Info {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Info{
		ID:             c.id,
		Status:         c.status,
		TurnCount:      c.turnCount,
		MessageCount:   c.log.Len(),
		StartedAt:      c.startedAt,
		LastActivityAt: c.lastActivityAt,
	}
}

func (c *Conversation) touch() {
	c.mu.Lock()
	c.lastActivityAt = time.Now().UTC()
	c.mu.Unlock()
}

// end marks the conversation ended and reports whether it was active.
func (c *Conversation) end(now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status != StatusActive {
		return false
	}
	c.status = StatusEnded
	c.lastActivityAt = now
	return true
}

// Manager tracks conversations by id and expires idle ones.
type Manager struct {
	mu                sync.RWMutex
	conversations     map[string]*Conversation
	inactivityTimeout time.Duration
	endedRetention    time.Duration
	onExpire          func(Info)
}

func NewManager(inactivityTimeout time.Duration) *Manager {
	if inactivityTimeout <= 0 {
		inactivityTimeout = 30 * time.Minute
	}
	return &Manager{
		conversations:     make(map[string]*Conversation),
		inactivityTimeout: inactivityTimeout,
		endedRetention:    time.Hour,
	}
}

func (m *Manager) SetExpireHook(hook func(Info)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onExpire = hook
}

// SetEndedRetention controls how long ended conversations stay readable.
func (m *Manager) SetEndedRetention(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d > 0 {
		m.endedRetention = d
	}
}

func (m *Manager) Create() *Conversation {
	c := newConversation()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conversations[c.id] = c
	return c
}

func (m *Manager) Get(id string) (*Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	return c, nil
}

func (m *Manager) End(id string) (Info, error) {
	c, err := m.Get(id)
	if err != nil {
		return Info{}, err
	}
	c.end(time.Now().UTC())
	return c.Info(), nil
}

func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, c := range m.conversations {
		if c.Info().Status == StatusActive {
			count++
		}
	}
	return count
}

func (m *Manager) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.expireInactive()
			}
		}
	}()
}

func (m *Manager) expireInactive() {
	now := time.Now().UTC()
	var expired []Info

	m.mu.Lock()
	for id, c := range m.conversations {
		info := c.Info()
		if info.Status == StatusEnded {
			if now.Sub(info.LastActivityAt) >= m.endedRetention {
				delete(m.conversations, id)
			}
			continue
		}
		if now.Sub(info.LastActivityAt) < m.inactivityTimeout {
			continue
		}
		// A turn in flight keeps the conversation alive.
		if len(c.turn) > 0 {
			continue
		}
		if c.end(now) {
			expired = append(expired, c.Info())
		}
	}
	hook := m.onExpire
	m.mu.Unlock()

	if hook != nil {
		for _, info := range expired {
			hook(info)
		}
	}
}
