package sync

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mindlink/application/store"
	"mindlink/domain/board"
)

// State is a session's protocol state.
type State int

const (
	StateConnected State = iota
	StateIdentified
	StateJoined
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateIdentified:
		return "identified"
	case StateJoined:
		return "joined"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

const logPayloadLimit = 150

// Session is one client's live connection and protocol state machine:
// Connected -> Identified(identity, role) -> Joined(documentId), torn down
// on disconnect or I/O error. All errors stay contained at this boundary;
// a failing session never takes down the server or its peers.
type Session struct {
	id        string
	conn      Conn
	registry  *Registry
	store     *store.DocumentStore
	allocator *store.IdentityAllocator
	logger    *zap.Logger

	mu         sync.Mutex
	state      State
	identity   string
	role       string
	documentID string

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// NewSession creates a session over an accepted connection.
func NewSession(conn Conn, registry *Registry, docStore *store.DocumentStore, allocator *store.IdentityAllocator, logger *zap.Logger) *Session {
	id := uuid.New().String()
	return &Session{
		id:        id,
		conn:      conn,
		registry:  registry,
		store:     docStore,
		allocator: allocator,
		logger: logger.With(
			zap.String("connection", id),
			zap.String("remoteAddr", conn.RemoteAddr()),
		),
		state: StateConnected,
		send:  make(chan []byte, sendBufferSize),
		done:  make(chan struct{}),
	}
}

// ConnectionID returns the unique id of this connection.
func (s *Session) ConnectionID() string {
	return s.id
}

// Identity returns the logged-in identity, or "" before login.
func (s *Session) Identity() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

// Role returns the client-declared role string.
func (s *Session) Role() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.role
}

// JoinedDocument returns the joined document id, or "" before join.
func (s *Session) JoinedDocument() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.documentID
}

// State returns the current protocol state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Run drives the session until the connection drops. It blocks; callers
// start one goroutine per accepted connection.
func (s *Session) Run(ctx context.Context) {
	defer s.Close()
	go s.writeLoop()
	s.readLoop(ctx)
}

// Send queues a record for delivery without blocking. A full buffer means
// the peer stopped draining; the session is torn down rather than letting
// one slow peer stall broadcasts to the rest.
func (s *Session) Send(payload []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}

	select {
	case s.send <- payload:
		return true
	default:
		s.logger.Warn("send buffer full, dropping session")
		go s.Close()
		return false
	}
}

// Close tears the session down: registry and membership cleanup, one
// peerLeft notification to the document's remaining members, and release
// of the connection. Safe to call multiple times.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		identity := s.identity
		documentID := s.documentID
		s.state = StateClosed
		s.mu.Unlock()

		close(s.done)

		if identity != "" {
			// Only the currently registered session cleans up shared
			// state; a session replaced by a duplicate login must not
			// evict its replacement's registration or membership.
			wasCurrent := s.registry.Unregister(identity, s)
			if wasCurrent && documentID != "" {
				s.registry.LeaveDocument(documentID, identity)
				payload, err := json.Marshal(PeerLeft{
					Type:       TypePeerLeft,
					Identity:   identity,
					DocumentID: documentID,
				})
				if err == nil {
					s.registry.BroadcastToDocument(documentID, payload, identity)
				}
			}
		}

		s.conn.Close()
		s.logger.Info("session closed",
			zap.String("identity", identity),
			zap.String("documentID", documentID),
		)
	})
}

func (s *Session) readLoop(ctx context.Context) {
	for {
		payload, err := s.conn.ReadRecord()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.logger.Info("connection read failed", zap.Error(err))
			}
			return
		}
		s.dispatch(ctx, payload)
	}
}

func (s *Session) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case payload := <-s.send:
			if err := s.conn.WriteRecord(payload); err != nil {
				s.logger.Info("connection write failed", zap.Error(err))
				s.Close()
				return
			}
		case <-ticker.C:
			if err := s.conn.Ping(); err != nil {
				s.Close()
				return
			}
		case <-s.done:
			return
		}
	}
}

// dispatch parses the type discriminator and routes the record. Malformed
// and out-of-state messages are protocol errors: logged, dropped, the
// connection stays open.
func (s *Session) dispatch(ctx context.Context, payload []byte) {
	s.logger.Debug("received",
		zap.String("identity", s.Identity()),
		zap.String("payload", truncate(payload)),
	)

	var envelope Envelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		s.logger.Warn("malformed message dropped", zap.Error(err), zap.String("payload", truncate(payload)))
		return
	}

	switch envelope.Type {
	case TypeLogin:
		s.handleLogin(payload)
	case TypeJoin:
		s.handleJoin(ctx, payload)
	case TypeRequestAddNode:
		s.handleRequestAddNode(ctx, payload)
	case TypeUpdateNode:
		s.handleUpdateNode(ctx, payload)
	case TypeDeleteNode:
		s.handleDeleteNode(ctx, payload)
	case TypeAddEdge, TypeRemoveEdge:
		s.handleEdgeChange(ctx, payload)
	default:
		s.handleUnknown(envelope.Type, payload)
	}
}

func (s *Session) handleLogin(payload []byte) {
	var msg Login
	if err := json.Unmarshal(payload, &msg); err != nil {
		s.logger.Warn("malformed login dropped", zap.Error(err))
		return
	}
	if msg.Email == "" {
		s.logger.Warn("login without email dropped")
		return
	}

	s.mu.Lock()
	if s.state != StateConnected {
		state := s.state
		s.mu.Unlock()
		s.logger.Warn("login out of state dropped", zap.Stringer("state", state))
		return
	}
	s.state = StateIdentified
	s.identity = msg.Email
	s.role = msg.Role
	s.mu.Unlock()

	s.registry.Register(msg.Email, s)
	s.logger.Info("user logged in",
		zap.String("identity", msg.Email),
		zap.String("role", msg.Role),
	)

	s.sendJSON(LoginConfirmed{
		Type:    TypeLoginConfirmed,
		Message: "Connected to mindlink server. Join a document to begin.",
	})
}

func (s *Session) handleJoin(ctx context.Context, payload []byte) {
	var msg Join
	if err := json.Unmarshal(payload, &msg); err != nil {
		s.logger.Warn("malformed join dropped", zap.Error(err))
		return
	}
	if msg.DocumentID == "" {
		s.logger.Warn("join without documentId dropped")
		return
	}

	s.mu.Lock()
	if s.state != StateIdentified {
		state := s.state
		s.mu.Unlock()
		s.logger.Warn("join out of state dropped", zap.Stringer("state", state))
		return
	}
	s.state = StateJoined
	s.documentID = msg.DocumentID
	identity := s.identity
	s.mu.Unlock()

	s.registry.JoinDocument(msg.DocumentID, identity)
	s.logger.Info("user joined document",
		zap.String("identity", identity),
		zap.String("documentID", msg.DocumentID),
	)

	// The snapshot goes to this session only; membership stands even when
	// the load fails, and the client falls back to an offline view.
	snapshot, err := s.store.LoadSnapshot(ctx, msg.DocumentID)
	if err != nil {
		s.logger.Error("failed to load snapshot for join",
			zap.String("documentID", msg.DocumentID),
			zap.Error(err),
		)
		s.sendJSON(ErrorInitialState{
			Type:       TypeErrorInitialState,
			DocumentID: msg.DocumentID,
			Message:    "could not load document state",
		})
		return
	}
	s.sendJSON(InitialState{
		Type:       TypeInitialState,
		DocumentID: msg.DocumentID,
		Document:   *snapshot,
	})
}

func (s *Session) handleRequestAddNode(ctx context.Context, payload []byte) {
	var msg RequestAddNode
	if err := json.Unmarshal(payload, &msg); err != nil {
		s.logger.Warn("malformed requestAddNode dropped", zap.Error(err))
		return
	}

	documentID, identity, ok := s.joinedScope(msg.DocumentID, TypeRequestAddNode)
	if !ok {
		return
	}

	id := s.allocator.NextID()
	node := board.Node{
		ID:          id,
		Title:       msg.Title,
		Content:     msg.Content,
		X:           msg.X,
		Y:           msg.Y,
		Connections: []int{},
	}
	if err := s.store.UpsertNode(ctx, documentID, node); err != nil {
		// Peers still learn about the node; durable state catches up on
		// the next successful write.
		s.logger.Error("add node not persisted", zap.Int("nodeID", id), zap.Error(err))
	}

	s.broadcast(documentID, AddNode{
		Type:        TypeAdd,
		DocumentID:  documentID,
		Email:       identity,
		ID:          id,
		Title:       msg.Title,
		Content:     msg.Content,
		X:           msg.X,
		Y:           msg.Y,
		Connections: []int{},
	}, "") // include the requester: clients wait for the echo
}

func (s *Session) handleUpdateNode(ctx context.Context, payload []byte) {
	var msg UpdateNode
	if err := json.Unmarshal(payload, &msg); err != nil {
		s.logger.Warn("malformed updateNode dropped", zap.Error(err))
		return
	}

	documentID, identity, ok := s.joinedScope(msg.DocumentID, TypeUpdateNode)
	if !ok {
		return
	}

	if msg.Connections == nil {
		msg.Connections = []int{}
	}
	// Stamp the session identity for attribution, whatever the client sent.
	msg.Email = identity

	if err := s.store.UpsertNode(ctx, documentID, board.Node{
		ID:          msg.ID,
		Title:       msg.Title,
		Content:     msg.Content,
		X:           msg.X,
		Y:           msg.Y,
		Connections: msg.Connections,
	}); err != nil {
		s.logger.Error("update not persisted", zap.Int("nodeID", msg.ID), zap.Error(err))
	}

	// The sender already applied this change optimistically; echoing it
	// back would double-apply.
	s.broadcast(documentID, msg, identity)
}

func (s *Session) handleDeleteNode(ctx context.Context, payload []byte) {
	var msg DeleteNode
	if err := json.Unmarshal(payload, &msg); err != nil {
		s.logger.Warn("malformed deleteNode dropped", zap.Error(err))
		return
	}

	documentID, _, ok := s.joinedScope(msg.DocumentID, TypeDeleteNode)
	if !ok {
		return
	}

	if err := s.store.RemoveNode(ctx, documentID, msg.ID); err != nil {
		s.logger.Error("delete not persisted", zap.Int("nodeID", msg.ID), zap.Error(err))
	}

	msg.DocumentID = documentID
	s.broadcast(documentID, msg, "") // deletes are not pre-applied locally
}

func (s *Session) handleEdgeChange(ctx context.Context, payload []byte) {
	var msg EdgeChange
	if err := json.Unmarshal(payload, &msg); err != nil {
		s.logger.Warn("malformed edge change dropped", zap.Error(err))
		return
	}

	documentID, _, ok := s.joinedScope(msg.DocumentID, msg.Type)
	if !ok {
		return
	}

	var err error
	if msg.Type == TypeAddEdge {
		err = s.store.AddEdge(ctx, documentID, msg.SourceID, msg.TargetID)
	} else {
		err = s.store.RemoveEdge(ctx, documentID, msg.SourceID, msg.TargetID)
	}
	if err != nil {
		s.logger.Error("edge change not persisted",
			zap.String("type", msg.Type),
			zap.Int("sourceID", msg.SourceID),
			zap.Int("targetID", msg.TargetID),
			zap.Error(err),
		)
	}

	msg.DocumentID = documentID
	s.broadcast(documentID, msg, "") // edge changes echo to everyone
}

// handleUnknown relays unrecognized message types verbatim to the other
// members of the session's document, as a best-effort passthrough.
func (s *Session) handleUnknown(msgType string, payload []byte) {
	s.mu.Lock()
	state := s.state
	documentID := s.documentID
	identity := s.identity
	s.mu.Unlock()

	if state != StateJoined {
		s.logger.Warn("unknown message type dropped",
			zap.String("type", msgType),
			zap.Stringer("state", state),
		)
		return
	}

	s.logger.Info("relaying unknown message type",
		zap.String("type", msgType),
		zap.String("documentID", documentID),
	)
	s.registry.BroadcastToDocument(documentID, payload, identity)
}

// joinedScope checks that the session has joined a document and, for
// document-scoped messages, that the message targets it. A mismatched
// documentId is ignored outright.
func (s *Session) joinedScope(msgDocumentID, msgType string) (documentID, identity string, ok bool) {
	s.mu.Lock()
	state := s.state
	documentID = s.documentID
	identity = s.identity
	s.mu.Unlock()

	if state != StateJoined {
		s.logger.Warn("message requires a joined session, dropped",
			zap.String("type", msgType),
			zap.Stringer("state", state),
		)
		return "", "", false
	}
	if msgDocumentID != "" && msgDocumentID != documentID {
		s.logger.Warn("documentId mismatch, message ignored",
			zap.String("type", msgType),
			zap.String("sessionDocumentID", documentID),
			zap.String("messageDocumentID", msgDocumentID),
		)
		return "", "", false
	}
	return documentID, identity, true
}

func (s *Session) broadcast(documentID string, msg interface{}, excludeIdentity string) {
	payload, err := json.Marshal(msg)
	if err != nil {
		s.logger.Error("failed to encode broadcast", zap.Error(err))
		return
	}
	s.registry.BroadcastToDocument(documentID, payload, excludeIdentity)
}

func (s *Session) sendJSON(msg interface{}) {
	payload, err := json.Marshal(msg)
	if err != nil {
		s.logger.Error("failed to encode message", zap.Error(err))
		return
	}
	s.Send(payload)
}

func truncate(payload []byte) string {
	if len(payload) <= logPayloadLimit {
		return string(payload)
	}
	return string(payload[:logPayloadLimit]) + "..."
}
