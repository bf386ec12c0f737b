// Package conversation holds the per-session chat log.
package conversation

import (
	"sync"
	"time"

	"llm-chatbot/models"
)

// Sink receives every appended entry. The archive implements it.
type Sink interface {
	Record(sessionID string, e models.Entry)
}

type session struct {
	entries  []models.Entry
	lastSeen time.Time
}

// Log is an append-only, session-keyed conversation log safe for concurrent
// use. Entries are only removed by EvictIdle.
type Log struct {
	mu       sync.RWMutex
	sessions map[string]*session
	sink     Sink
	now      func() time.Time
}

func NewLog(sink Sink) *Log {
	return &Log{
		sessions: make(map[string]*session),
		sink:     sink,
		now:      time.Now,
	}
}

// Append adds e to the session's log. An empty session id means the default
// session. A zero timestamp is filled in.
func (l *Log) Append(sessionID string, e models.Entry) {
	if sessionID == "" {
		sessionID = models.DefaultSessionID
	}
	now := l.now()
	if e.Timestamp.IsZero() {
		e.Timestamp = now
	}

	l.mu.Lock()
	s, ok := l.sessions[sessionID]
	if !ok {
		s = &session{}
		l.sessions[sessionID] = s
	}
	s.entries = append(s.entries, e)
	s.lastSeen = now
	l.mu.Unlock()

	if l.sink != nil {
		l.sink.Record(sessionID, e)
	}
}

// Entries returns a copy of the session's log in append order.
func (l *Log) Entries(sessionID string) []models.Entry {
	if sessionID == "" {
		sessionID = models.DefaultSessionID
	}
	l.mu.RLock()
	defer l.mu.RUnlock()

	s, ok := l.sessions[sessionID]
	if !ok {
		return []models.Entry{}
	}
	out := make([]models.Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Len counts entries across all sessions.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	n := 0
	for _, s := range l.sessions {
		n += len(s.entries)
	}
	return n
}

func (l *Log) Sessions() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.sessions)
}

// EvictIdle drops sessions with no append for longer than ttl and returns how
// many were removed. A ttl of zero or less evicts nothing.
func (l *Log) EvictIdle(ttl time.Duration) int {
	if ttl <= 0 {
		return 0
	}
	cutoff := l.now().Add(-ttl)

	l.mu.Lock()
	defer l.mu.Unlock()
	evicted := 0
	for id, s := range l.sessions {
		if s.lastSeen.Before(cutoff) {
			delete(l.sessions, id)
			evicted++
		}
	}
	return evicted
}
