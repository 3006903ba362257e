// Package session tracks what free-text input the bot expects next from each
// player. Sessions live in process memory only and are lost on restart; a
// missing session reads as CursorNone.
package session

import (
	"sync"
	"time"
)

// Cursor marks the next expected input from a player.
type Cursor int

// Cursor values.
const (
	CursorNone Cursor = iota
	CursorAwaitingCharacterName
	CursorAwaitingVoiceSubmission
)

func (c Cursor) String() string {
	switch c {
	case CursorAwaitingCharacterName:
		return "awaiting_character_name"
	case CursorAwaitingVoiceSubmission:
		return "awaiting_voice_submission"
	default:
		return "none"
	}
}

// Session is the conversation state passed to handlers alongside the player.
type Session struct {
	PlayerID int64
	Cursor   Cursor
	Touched  time.Time
}

// Store holds sessions keyed by player id.
type Store struct {
	mu       sync.Mutex
	sessions map[int64]Session
	now      func() time.Time
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		sessions: make(map[int64]Session),
		now:      time.Now,
	}
}

// Get returns the player's session.
func (s *Store) Get(playerID int64) Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[playerID]; ok {
		return sess
	}
	return Session{PlayerID: playerID, Cursor: CursorNone}
}

// Set moves the player's cursor.
func (s *Store) Set(playerID int64, c Cursor) {
	if c == CursorNone {
		s.Clear(playerID)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[playerID] = Session{PlayerID: playerID, Cursor: c, Touched: s.now()}
}

// Clear forgets the player's session.
func (s *Store) Clear(playerID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, playerID)
}

// Sweep drops sessions untouched for longer than ttl and returns how many
// were dropped.
func (s *Store) Sweep(ttl time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.now().Add(-ttl)
	n := 0
	for id, sess := range s.sessions {
		if sess.Touched.Before(cutoff) {
			delete(s.sessions, id)
			n++
		}
	}
	return n
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
