package ingest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/inboxd/inboxd/internal/model"
)

const (
	backfillWindow = 30 * 24 * time.Hour
	backfillBatch  = 5
	reconnectDelay = 5 * time.Second
	idleRetryDelay = 3 * time.Second
	mailboxName    = "INBOX"
)

// ErrAuth marks authentication failures. They are terminal for the watcher:
// no automatic retry, operator correction required.
var ErrAuth = errors.New("authentication failed")

// Watcher owns one account's connection lifecycle. State transitions are
// serialized within a watcher; watchers run independently of each other.
type Watcher struct {
	acc      model.Account
	dial     DialFunc
	pipeline *Pipeline

	reconnectWait time.Duration
	idleRetryWait time.Duration

	// mboxMu serializes mailbox-mutating operations on this watcher's
	// connection. Held across the whole backfill and per drained delta.
	mboxMu sync.Mutex

	mu        sync.Mutex
	state     model.WatcherState
	watermark uint32
	lastErr   string

	cancel context.CancelFunc
	done   chan struct{}
}

// NewWatcher creates a stopped watcher for one account.
func NewWatcher(acc model.Account, dial DialFunc, pipeline *Pipeline) *Watcher {
	return &Watcher{
		acc:           acc,
		dial:          dial,
		pipeline:      pipeline,
		state:         model.StateDisconnected,
		reconnectWait: reconnectDelay,
		idleRetryWait: idleRetryDelay,
	}
}

// Start launches the watcher's lifecycle goroutine. It returns immediately;
// connection progress is visible via Status.
func (w *Watcher) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	w.mu.Lock()
	w.cancel = cancel
	w.done = make(chan struct{})
	done := w.done
	w.mu.Unlock()

	go func() {
		defer close(done)
		w.run(runCtx)
	}()
}

// Stop tears down the watcher from any state, canceling pending backoff
// timers, and waits for the lifecycle goroutine to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	cancel := w.cancel
	done := w.done
	w.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// Status returns the operator-visible snapshot.
func (w *Watcher) Status() model.WatcherStatus {
	w.mu.Lock()
	defer w.mu.Unlock()
	return model.WatcherStatus{
		AccountID:  w.acc.ID,
		State:      w.state,
		Monitoring: w.state == model.StateMonitoring,
		Watermark:  w.watermark,
		LastError:  w.lastErr,
	}
}

func (w *Watcher) setState(s model.WatcherState) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
	log.Printf("INFO: [%s] watcher %s", w.acc.ID, s)
}

func (w *Watcher) setError(err error) {
	w.mu.Lock()
	if err != nil {
		w.lastErr = err.Error()
	} else {
		w.lastErr = ""
	}
	w.mu.Unlock()
}

func (w *Watcher) run(ctx context.Context) {
	w.setState(model.StateConnecting)
	conn, count, err := w.connect(ctx)
	if err != nil {
		w.setError(err)
		w.setState(model.StateDisconnected)
		log.Printf("ERROR: [%s] connect: %v", w.acc.ID, err)
		return
	}
	defer func() {
		if conn != nil {
			conn.Logout()
			conn.Close()
		}
	}()

	w.setState(model.StateSyncing)
	if err := w.backfill(ctx, conn); err != nil {
		if ctx.Err() != nil {
			w.setState(model.StateDisconnected)
			return
		}
		log.Printf("ERROR: [%s] backfill: %v", w.acc.ID, err)
	}

	w.mu.Lock()
	w.watermark = count
	w.mu.Unlock()

	// Backfill runs once per Start. Reconnects below resume monitoring only.
	for {
		w.setState(model.StateMonitoring)
		w.setError(nil)
		err := w.monitor(ctx, conn)
		if ctx.Err() != nil {
			w.setState(model.StateDisconnected)
			return
		}
		w.setError(err)
		log.Printf("WARN: [%s] monitor: %v, reconnecting in %s", w.acc.ID, err, w.reconnectWait)
		conn.Close()

		w.setState(model.StateReconnecting)
		for {
			if !sleepCtx(ctx, w.reconnectWait) {
				w.setState(model.StateDisconnected)
				return
			}
			conn, count, err = w.connect(ctx)
			if err == nil {
				break
			}
			if errors.Is(err, ErrAuth) {
				w.setError(err)
				w.setState(model.StateDisconnected)
				log.Printf("ERROR: [%s] reconnect: %v", w.acc.ID, err)
				return
			}
			if ctx.Err() != nil {
				w.setState(model.StateDisconnected)
				return
			}
			log.Printf("WARN: [%s] reconnect: %v, retrying", w.acc.ID, err)
		}

		// Messages that arrived while disconnected are within the current
		// count; reset the watermark to it and let the next IDLE cycle run.
		w.mu.Lock()
		w.watermark = count
		w.mu.Unlock()
	}
}

// connect dials, authenticates and selects the inbox, returning the mailbox
// message count. Login failures are wrapped with ErrAuth.
func (w *Watcher) connect(ctx context.Context) (Conn, uint32, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	conn, err := w.dial(w.acc)
	if err != nil {
		return nil, 0, err
	}
	if err := conn.Login(w.acc.User, w.acc.Password); err != nil {
		conn.Close()
		return nil, 0, fmt.Errorf("%w: %v", ErrAuth, err)
	}
	count, err := conn.Select(mailboxName)
	if err != nil {
		conn.Close()
		return nil, 0, fmt.Errorf("select %s: %w", mailboxName, err)
	}
	return conn, count, nil
}

// sleepCtx waits for d, returning false if ctx is canceled first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
