package sync

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Registry tracks live sessions by identity and document membership by
// document id, and performs scoped broadcast. The membership set exists
// to scope presence bookkeeping; broadcast itself iterates the live
// sessions directly, so every join/leave transition must keep the two
// consistent.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session        // identity -> session, last login wins
	members  map[string]map[string]bool // documentID -> set of identities

	logger *zap.Logger

	messagesSent    atomic.Int64
	messagesDropped atomic.Int64
}

// Stats is a point-in-time snapshot of registry counters.
type Stats struct {
	ActiveSessions  int   `json:"activeSessions"`
	Documents       int   `json:"documents"`
	MessagesSent    int64 `json:"messagesSent"`
	MessagesDropped int64 `json:"messagesDropped"`
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		members:  make(map[string]map[string]bool),
		logger:   logger,
	}
}

// Register binds an identity to a session. A duplicate login overwrites
// the slot: the last login for a given identity wins.
func (r *Registry) Register(identity string, s *Session) {
	r.mu.Lock()
	prev, replaced := r.sessions[identity]
	r.sessions[identity] = s
	r.mu.Unlock()

	if replaced && prev != s {
		r.logger.Warn("duplicate login replaced previous session",
			zap.String("identity", identity),
			zap.String("previousConnection", prev.ConnectionID()),
			zap.String("connection", s.ConnectionID()),
		)
	} else {
		r.logger.Info("session registered",
			zap.String("identity", identity),
			zap.String("connection", s.ConnectionID()),
		)
	}
}

// Unregister removes the identity binding, but only when it still points
// at s: a stale session replaced by a duplicate login must not evict its
// replacement. Reports whether s was the registered session.
func (r *Registry) Unregister(identity string, s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.sessions[identity]
	if !ok || current != s {
		return false
	}
	delete(r.sessions, identity)
	return true
}

// JoinDocument records identity as a member of documentID.
func (r *Registry) JoinDocument(documentID, identity string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.members[documentID] == nil {
		r.members[documentID] = make(map[string]bool)
	}
	r.members[documentID][identity] = true
}

// LeaveDocument removes identity from documentID's membership, dropping
// the document entry once empty.
func (r *Registry) LeaveDocument(documentID, identity string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if set, ok := r.members[documentID]; ok {
		delete(set, identity)
		if len(set) == 0 {
			delete(r.members, documentID)
		}
	}
}

// MembersOf returns a copy of the identities joined to documentID.
func (r *Registry) MembersOf(documentID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.members[documentID]
	out := make([]string, 0, len(set))
	for identity := range set {
		out = append(out, identity)
	}
	return out
}

// BroadcastToDocument delivers payload to every live session joined to
// documentID, except excludeIdentity when non-empty. The session set is
// snapshotted first; no lock is held across a send, and a failed or slow
// peer never blocks delivery to the others. Returns the delivered count.
func (r *Registry) BroadcastToDocument(documentID string, payload []byte, excludeIdentity string) int {
	r.mu.RLock()
	snapshot := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		snapshot = append(snapshot, s)
	}
	r.mu.RUnlock()

	delivered := 0
	for _, s := range snapshot {
		if excludeIdentity != "" && s.Identity() == excludeIdentity {
			continue
		}
		if s.JoinedDocument() != documentID {
			continue
		}
		if s.Send(payload) {
			delivered++
			r.messagesSent.Add(1)
		} else {
			r.messagesDropped.Add(1)
		}
	}
	return delivered
}

// CloseAll tears down every registered session, used at shutdown.
func (r *Registry) CloseAll() {
	r.mu.RLock()
	snapshot := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		snapshot = append(snapshot, s)
	}
	r.mu.RUnlock()

	for _, s := range snapshot {
		s.Close()
	}
}

// GetStats returns current registry counters.
func (r *Registry) GetStats() Stats {
	r.mu.RLock()
	sessions := len(r.sessions)
	documents := len(r.members)
	r.mu.RUnlock()

	return Stats{
		ActiveSessions:  sessions,
		Documents:       documents,
		MessagesSent:    r.messagesSent.Load(),
		MessagesDropped: r.messagesDropped.Load(),
	}
}
