package ingest

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

// backfill ingests every inbox message received within the trailing window,
// in ascending batches of backfillBatch with intra-batch concurrency. The
// mailbox lock is held for the whole backfill. Per-message failures are
// logged and skipped; only search errors abort.
func (w *Watcher) backfill(ctx context.Context, conn Conn) error {
	w.mboxMu.Lock()
	defer w.mboxMu.Unlock()

	since := time.Now().Add(-backfillWindow)
	seqs, err := conn.SearchSince(since)
	if err != nil {
		return fmt.Errorf("search since %s: %w", since.Format("2006-01-02"), err)
	}
	if len(seqs) == 0 {
		log.Printf("INFO: [%s] backfill: no messages in window", w.acc.ID)
		return nil
	}
	log.Printf("INFO: [%s] backfill: %d messages in %d batches", w.acc.ID, len(seqs), len(batches(seqs, backfillBatch)))

	for _, batch := range batches(seqs, backfillBatch) {
		if err := ctx.Err(); err != nil {
			return err
		}
		var wg sync.WaitGroup
		for _, seq := range batch {
			wg.Add(1)
			go func(seq uint32) {
				defer wg.Done()
				if err := w.processSeq(ctx, conn, seq); err != nil {
					log.Printf("WARN: [%s] backfill message %d: %v", w.acc.ID, seq, err)
				}
			}(seq)
		}
		wg.Wait()
	}
	return nil
}

// processSeq fetches one message and runs it through the pipeline.
func (w *Watcher) processSeq(ctx context.Context, conn Conn, seq uint32) error {
	raw, err := conn.FetchRaw(seq)
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}
	return w.pipeline.Process(ctx, w.acc, seq, raw)
}

// batches splits seqs into consecutive groups of at most size.
func batches(seqs []uint32, size int) [][]uint32 {
	if size <= 0 {
		size = 1
	}
	var out [][]uint32
	for start := 0; start < len(seqs); start += size {
		end := start + size
		if end > len(seqs) {
			end = len(seqs)
		}
		out = append(out, seqs[start:end])
	}
	return out
}
