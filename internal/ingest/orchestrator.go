package ingest

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/inboxd/inboxd/internal/model"
)

const startStagger = 1 * time.Second

// Orchestrator starts and stops the per-account watchers and exposes the
// bulk resync/reindex operations.
type Orchestrator struct {
	accounts []model.Account
	dial     DialFunc
	pipeline *Pipeline
	stagger  time.Duration

	mu       sync.Mutex
	watchers []*Watcher
	runCtx   context.Context
}

// NewOrchestrator creates an orchestrator for the configured accounts.
func NewOrchestrator(accounts []model.Account, dial DialFunc, pipeline *Pipeline) *Orchestrator {
	return &Orchestrator{
		accounts: accounts,
		dial:     dial,
		pipeline: pipeline,
		stagger:  startStagger,
	}
}

// StartAll launches one watcher per account, staggered to avoid
// simultaneous-login rate limiting, and returns the active watchers.
func (o *Orchestrator) StartAll(ctx context.Context) []*Watcher {
	o.mu.Lock()
	defer o.mu.Unlock()

	if len(o.watchers) > 0 {
		return o.watchers
	}
	o.runCtx = ctx
	for i, acc := range o.accounts {
		if i > 0 {
			if !sleepCtx(ctx, o.stagger) {
				break
			}
		}
		w := NewWatcher(acc, o.dial, o.pipeline)
		w.Start(ctx)
		o.watchers = append(o.watchers, w)
	}
	log.Printf("INFO: started %d account watchers", len(o.watchers))
	return o.watchers
}

// StopAll stops every watcher and waits for them to exit.
func (o *Orchestrator) StopAll() {
	o.mu.Lock()
	watchers := o.watchers
	o.watchers = nil
	o.mu.Unlock()

	var wg sync.WaitGroup
	for _, w := range watchers {
		wg.Add(1)
		go func(w *Watcher) {
			defer wg.Done()
			w.Stop()
		}(w)
	}
	wg.Wait()
}

// Resync restarts every watcher, re-running backfill. Returns the number of
// accounts restarted. Safe to repeat. Restarted watchers keep the lifetime
// of the original StartAll context, not the caller's.
func (o *Orchestrator) Resync() int {
	log.Printf("INFO: manual resync requested")
	o.mu.Lock()
	ctx := o.runCtx
	o.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	o.StopAll()
	return len(o.StartAll(ctx))
}

// ReindexAll re-emits every stored message through the index gateway.
// Returns indexed, failed and total counts.
func (o *Orchestrator) ReindexAll(ctx context.Context) (indexed, failed, total int) {
	if o.pipeline.Index == nil {
		return 0, 0, 0
	}
	docs, err := o.pipeline.Store.All(ctx)
	if err != nil {
		log.Printf("ERROR: reindex: load stored emails: %v", err)
		return 0, 0, 0
	}
	for _, doc := range docs {
		if err := o.pipeline.Index.Upsert(doc); err != nil {
			log.Printf("WARN: reindex %s: %v", doc.ID, err)
			failed++
			continue
		}
		indexed++
	}
	log.Printf("INFO: reindexed %d/%d emails (%d errors)", indexed, len(docs), failed)
	return indexed, failed, len(docs)
}

// Status returns the snapshot of every watcher. Accounts whose watcher has
// not been started appear as disconnected.
func (o *Orchestrator) Status() []model.WatcherStatus {
	o.mu.Lock()
	watchers := o.watchers
	o.mu.Unlock()

	if len(watchers) == 0 {
		out := make([]model.WatcherStatus, 0, len(o.accounts))
		for _, acc := range o.accounts {
			out = append(out, model.WatcherStatus{AccountID: acc.ID, State: model.StateDisconnected})
		}
		return out
	}
	out := make([]model.WatcherStatus, 0, len(watchers))
	for _, w := range watchers {
		out = append(out, w.Status())
	}
	return out
}
