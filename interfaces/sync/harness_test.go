package sync

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"mindlink/application/store"
	"mindlink/domain/board"
)

// fakeConn is an in-memory Conn driven by channels: the test writes
// inbound records to in and reads the session's output from out.
type fakeConn struct {
	in        chan []byte
	out       chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:     make(chan []byte, 16),
		out:    make(chan []byte, 64),
		closed: make(chan struct{}),
	}
}

func (f *fakeConn) ReadRecord() ([]byte, error) {
	select {
	case payload, ok := <-f.in:
		if !ok {
			return nil, io.EOF
		}
		return payload, nil
	case <-f.closed:
		return nil, io.EOF
	}
}

func (f *fakeConn) WriteRecord(payload []byte) error {
	select {
	case f.out <- payload:
		return nil
	case <-f.closed:
		return errors.New("connection closed")
	}
}

func (f *fakeConn) Ping() error { return nil }

func (f *fakeConn) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeConn) RemoteAddr() string { return "fake:0" }

// memoryBackend is an in-memory SnapshotStore; failSave makes every Save
// fail, for exercising the divergence window.
type memoryBackend struct {
	mu       sync.Mutex
	boards   map[string]*board.Board
	failSave error
	failLoad error
}

func newMemoryBackend() *memoryBackend {
	return &memoryBackend{boards: make(map[string]*board.Board)}
}

func (m *memoryBackend) Load(_ context.Context, documentID string) (*board.Board, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failLoad != nil {
		return nil, m.failLoad
	}
	b, ok := m.boards[documentID]
	if !ok {
		return nil, nil
	}
	return b.Clone(), nil
}

func (m *memoryBackend) Save(_ context.Context, documentID string, b *board.Board) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSave != nil {
		return m.failSave
	}
	m.boards[documentID] = b.Clone()
	return nil
}

func (m *memoryBackend) setFailSave(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failSave = err
}

func (m *memoryBackend) setFailLoad(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failLoad = err
}

// harness bundles the server-side fixture shared by the session tests.
type harness struct {
	t         *testing.T
	registry  *Registry
	store     *store.DocumentStore
	allocator *store.IdentityAllocator
	backend   *memoryBackend
}

func newHarness(t *testing.T) *harness {
	logger := zaptest.NewLogger(t)
	backend := newMemoryBackend()
	docStore := store.NewDocumentStore(backend, logger)
	return &harness{
		t:         t,
		registry:  NewRegistry(logger),
		store:     docStore,
		allocator: store.NewIdentityAllocator(nil),
		backend:   backend,
	}
}

// connect starts a session over a fresh fake connection.
func (h *harness) connect() (*Session, *fakeConn) {
	conn := newFakeConn()
	session := NewSession(conn, h.registry, h.store, h.allocator, zaptest.NewLogger(h.t))
	go session.Run(context.Background())
	return session, conn
}

// join drives a connection through login and join and consumes the
// loginConfirmed and initialState replies.
func (h *harness) join(conn *fakeConn, identity, documentID string) {
	h.t.Helper()
	h.send(conn, Login{Type: TypeLogin, Email: identity, Role: "editor"})
	confirmed := h.recv(conn)
	require.Equal(h.t, TypeLoginConfirmed, confirmed["type"])

	h.send(conn, Join{Type: TypeJoin, DocumentID: documentID})
	initial := h.recv(conn)
	require.Equal(h.t, TypeInitialState, initial["type"])
}

func (h *harness) send(conn *fakeConn, msg interface{}) {
	h.t.Helper()
	payload, err := json.Marshal(msg)
	require.NoError(h.t, err)
	h.sendRaw(conn, payload)
}

func (h *harness) sendRaw(conn *fakeConn, payload []byte) {
	h.t.Helper()
	select {
	case conn.in <- payload:
	case <-time.After(2 * time.Second):
		h.t.Fatal("timed out sending record to session")
	}
}

// recv waits for the next record the session wrote.
func (h *harness) recv(conn *fakeConn) map[string]interface{} {
	h.t.Helper()
	select {
	case payload := <-conn.out:
		var msg map[string]interface{}
		require.NoError(h.t, json.Unmarshal(payload, &msg))
		return msg
	case <-time.After(2 * time.Second):
		h.t.Fatal("timed out waiting for record from session")
		return nil
	}
}

// expectSilence asserts no record arrives within the grace window.
func (h *harness) expectSilence(conn *fakeConn) {
	h.t.Helper()
	select {
	case payload := <-conn.out:
		h.t.Fatalf("expected no record, got: %s", payload)
	case <-time.After(100 * time.Millisecond):
	}
}
