package ingest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/inboxd/inboxd/internal/model"
	"github.com/inboxd/inboxd/internal/store"
)

// fakeConn is an in-memory Conn. Tests seed it with messages keyed by
// sequence number and drive the monitor loop via pushUpdate/failIdle.
type fakeConn struct {
	mu        sync.Mutex
	loginErr  error
	count     uint32
	messages  map[uint32][]byte
	failFetch map[uint32]bool
	searches  int
	fetched   []uint32
	updates   chan uint32
	idleDone  chan error
	idleCount int
	idleErrs  int
	closed    bool
}

func newFakeConn(count uint32) *fakeConn {
	return &fakeConn{
		count:    count,
		messages: map[uint32][]byte{},
		updates:  make(chan uint32, 8),
	}
}

func (f *fakeConn) addMessage(seq uint32, from, subject, body string) {
	raw := fmt.Sprintf("From: %s\r\nTo: me@example.com\r\nSubject: %s\r\nMessage-Id: <msg%d@mail>\r\nDate: Mon, 24 Aug 2026 10:00:00 +0000\r\nContent-Type: text/plain\r\n\r\n%s\r\n",
		from, subject, seq, body)
	f.mu.Lock()
	f.messages[seq] = []byte(raw)
	f.mu.Unlock()
}

func (f *fakeConn) Login(username, password string) error { return f.loginErr }

func (f *fakeConn) Select(mailbox string) (uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.count, nil
}

func (f *fakeConn) SearchSince(since time.Time) ([]uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searches++
	seqs := make([]uint32, 0, len(f.messages))
	for seq := range f.messages {
		seqs = append(seqs, seq)
	}
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })
	return seqs, nil
}

func (f *fakeConn) FetchRaw(seq uint32) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetched = append(f.fetched, seq)
	if f.failFetch[seq] {
		return nil, fmt.Errorf("fetch %d: connection reset", seq)
	}
	raw, ok := f.messages[seq]
	if !ok {
		return nil, fmt.Errorf("message %d not found", seq)
	}
	return raw, nil
}

// Idle begins a fake IDLE. The first idleErrs calls fail at establishment,
// exercising the retry-in-place path.
func (f *fakeConn) Idle() (IdleHandle, error) {
	f.mu.Lock()
	f.idleCount++
	if f.idleErrs > 0 {
		f.idleErrs--
		f.mu.Unlock()
		return nil, fmt.Errorf("idle rejected")
	}
	f.idleDone = make(chan error, 1)
	done := f.idleDone
	f.mu.Unlock()
	return &fakeIdle{done: done}, nil
}

// pushUpdate simulates a server EXISTS notification with the new count.
func (f *fakeConn) pushUpdate(count uint32) {
	f.mu.Lock()
	f.count = count
	f.mu.Unlock()
	f.updates <- count
}

// failIdle ends the in-flight idle with a transport error.
func (f *fakeConn) failIdle(err error) {
	f.mu.Lock()
	done := f.idleDone
	f.mu.Unlock()
	if done != nil {
		select {
		case done <- err:
		default:
		}
	}
}

func (f *fakeConn) Updates() <-chan uint32 { return f.updates }
func (f *fakeConn) Logout() error          { return nil }

func (f *fakeConn) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeConn) fetchedSeqs() []uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]uint32, len(f.fetched))
	copy(out, f.fetched)
	return out
}

type fakeIdle struct {
	done chan error
	once sync.Once
}

func (f *fakeIdle) Close() error {
	f.once.Do(func() {
		select {
		case f.done <- nil:
		default:
		}
	})
	return nil
}

func (f *fakeIdle) Done() <-chan error { return f.done }

// memStore is an in-memory EmailStore keyed by (id, accountID).
type memStore struct {
	mu   sync.Mutex
	docs map[string]model.EmailDocument
}

func newMemStore() *memStore {
	return &memStore{docs: map[string]model.EmailDocument{}}
}

func (m *memStore) key(id, accountID string) string { return accountID + "|" + id }

func (m *memStore) Upsert(ctx context.Context, doc model.EmailDocument) (model.EmailDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := m.key(doc.ID, doc.AccountID)
	if prev, ok := m.docs[k]; ok {
		doc.CreatedAt = prev.CreatedAt
	} else {
		doc.CreatedAt = time.Now()
	}
	doc.UpdatedAt = time.Now()
	m.docs[k] = doc
	return doc, nil
}

func (m *memStore) Get(ctx context.Context, id, accountID string) (*model.EmailDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if doc, ok := m.docs[m.key(id, accountID)]; ok {
		return &doc, nil
	}
	return nil, nil
}

func (m *memStore) List(ctx context.Context, f store.Filter) ([]model.EmailDocument, error) {
	return m.All(ctx)
}

func (m *memStore) All(ctx context.Context) ([]model.EmailDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.EmailDocument, 0, len(m.docs))
	for _, doc := range m.docs {
		out = append(out, doc)
	}
	return out, nil
}

func (m *memStore) Stats(ctx context.Context) (model.EmailStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return model.EmailStats{Total: len(m.docs)}, nil
}

func (m *memStore) Close() error { return nil }

func (m *memStore) total() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.docs)
}

func testAccount(id string) model.Account {
	return model.Account{ID: id, Host: "imap.example.com", User: "u@example.com", Password: "pw", TLS: true}
}

// waitForState polls until the watcher reaches state or the deadline passes.
func waitForState(w *Watcher, state model.WatcherState, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if w.Status().State == state {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}
