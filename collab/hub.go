package collab

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"bandaid/settings"
)

// Peer is one client listening on a session stream
type Peer struct {
	ID        string
	SessionID string
	Messages  chan []byte

	mu       sync.Mutex
	lastSeen time.Time
}

func (p *Peer) touch(now time.Time) {
	p.mu.Lock()
	p.lastSeen = now
	p.mu.Unlock()
}

func (p *Peer) seen() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastSeen
}

// Session is the shared document of a group of peers
type Session struct {
	ID      string
	Created time.Time

	mu     sync.Mutex
	peers  map[string]*Peer
	state  settings.Patch
	idle   time.Time // when the last peer left
	closed bool
}

// Hub relays patches between the peers of each session and remembers the
// union of every patch so late joiners start in sync
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	// StaleAfter is how long a silent peer or an empty session survives
	StaleAfter time.Duration
	// SweepEvery is the cleanup period of Run
	SweepEvery time.Duration

	now func() time.Time
}

func NewHub() *Hub {
	return &Hub{
		sessions:   make(map[string]*Session),
		StaleAfter: 60 * time.Second,
		SweepEvery: 30 * time.Second,
		now:        time.Now,
	}
}

// Start mints a new session id
func (h *Hub) Start() string {
	id := uuid.NewString()
	h.session(id)
	return id
}

// session gets or creates a live session
func (h *Hub) session(id string) *Session {
	h.mu.Lock()
	defer h.mu.Unlock()

	if s, ok := h.sessions[id]; ok {
		return s
	}
	now := h.now()
	s := &Session{
		ID:      id,
		Created: now,
		peers:   make(map[string]*Peer),
		idle:    now,
	}
	h.sessions[id] = s
	log.Printf("Created session %s", id)
	return s
}

func (h *Hub) lookup(id string) (*Session, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.sessions[id]
	return s, ok
}

// AddPeer joins peerID to a session, creating it if needed. A peer already
// joined under the same id is replaced and its stream closed. The new peer
// receives the session snapshot first when there is one.
func (h *Hub) AddPeer(sessionID, peerID string) *Peer {
	for {
		s := h.session(sessionID)
		s.mu.Lock()
		if s.closed {
			// swept between lookup and lock
			s.mu.Unlock()
			continue
		}

		if existing, ok := s.peers[peerID]; ok {
			close(existing.Messages)
		}
		p := &Peer{
			ID:        peerID,
			SessionID: sessionID,
			Messages:  make(chan []byte, 100),
			lastSeen:  h.now(),
		}
		s.peers[peerID] = p
		if !s.state.Empty() {
			state := s.state
			p.Messages <- newMessage(Snapshot, sessionID, "", &state).encode()
		}
		s.broadcast(peerID, newMessage(Join, sessionID, peerID, nil).encode())
		s.mu.Unlock()

		log.Printf("Peer %s joined session %s", peerID, sessionID)
		return p
	}
}

// RemovePeer drops p from its session. A peer that was already replaced
// by a newer one with the same id is left alone.
func (h *Hub) RemovePeer(p *Peer) {
	s, ok := h.lookup(p.SessionID)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.peers[p.ID] != p {
		return
	}
	close(p.Messages)
	delete(s.peers, p.ID)
	if len(s.peers) == 0 {
		s.idle = h.now()
	}
	s.broadcast(p.ID, newMessage(Leave, p.SessionID, p.ID, nil).encode())
	log.Printf("Peer %s left session %s", p.ID, p.SessionID)
}

// Publish merges p into the session document and relays it to every peer
// except the sender
func (h *Hub) Publish(sessionID, senderID string, p settings.Patch) {
	if p.Empty() {
		return
	}
	s := h.session(sessionID)
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = s.state.Merge(p)
	s.broadcast(senderID, newMessage(Update, sessionID, senderID, &p).encode())
}

// State returns the union of every patch published to a session
func (h *Hub) State(sessionID string) (settings.Patch, bool) {
	s, ok := h.lookup(sessionID)
	if !ok {
		return settings.Patch{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, true
}

// Peers lists the peer ids of a session
func (h *Hub) Peers(sessionID string) []string {
	s, ok := h.lookup(sessionID)
	if !ok {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.peers))
	for id := range s.peers {
		ids = append(ids, id)
	}
	return ids
}

// broadcast queues msg for every peer but senderID. s.mu must be held.
func (s *Session) broadcast(senderID string, msg []byte) {
	for id, p := range s.peers {
		if id == senderID {
			continue
		}
		select {
		case p.Messages <- msg:
		default:
			log.Printf("Message buffer full for peer %s", id)
		}
	}
}

// Sweep removes stale peers and sessions that have been empty for
// StaleAfter. It returns how many of each were removed.
func (h *Hub) Sweep() (peers, sessions int) {
	now := h.now()
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, s := range h.sessions {
		s.mu.Lock()
		for pid, p := range s.peers {
			if now.Sub(p.seen()) > h.StaleAfter {
				close(p.Messages)
				delete(s.peers, pid)
				peers++
				if len(s.peers) == 0 {
					s.idle = now
				}
				log.Printf("Removed stale peer %s from session %s", pid, id)
			}
		}
		if len(s.peers) == 0 && now.Sub(s.idle) > h.StaleAfter {
			s.closed = true
			delete(h.sessions, id)
			sessions++
			log.Printf("Removed empty session %s", id)
		}
		s.mu.Unlock()
	}
	return peers, sessions
}

// Run sweeps every SweepEvery until ctx is done
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.SweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.Sweep()
		}
	}
}
