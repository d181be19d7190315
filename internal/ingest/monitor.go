package ingest

import (
	"context"
	"log"
)

// monitor alternates between awaiting a server push (IDLE) and draining the
// delta of newly arrived messages. Returns on context cancellation or a
// transport error; the caller decides whether to reconnect. An IDLE that
// cannot be established is retried after idleRetryDelay without being
// treated as a connection error.
func (w *Watcher) monitor(ctx context.Context, conn Conn) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		idle, err := conn.Idle()
		if err != nil {
			log.Printf("WARN: [%s] idle start: %v, retrying in %s", w.acc.ID, err, w.idleRetryWait)
			if !sleepCtx(ctx, w.idleRetryWait) {
				return ctx.Err()
			}
			continue
		}

		select {
		case <-ctx.Done():
			idle.Close()
			<-idle.Done()
			return ctx.Err()

		case count := <-conn.Updates():
			idle.Close()
			if err := <-idle.Done(); err != nil {
				return err
			}
			if err := w.drain(ctx, conn, count); err != nil {
				return err
			}

		case err := <-idle.Done():
			if err != nil {
				return err
			}
			// Server ended the IDLE cleanly (e.g. periodic timeout).
			// Loop around and re-issue it.
		}
	}
}

// drain processes the delta range (watermark, count] under the mailbox lock
// and advances the watermark. Counts at or below the watermark (deletions,
// duplicate notifications) are ignored. Per-message failures are logged and
// skipped; the watermark still advances so the range is never re-drained.
func (w *Watcher) drain(ctx context.Context, conn Conn, count uint32) error {
	w.mu.Lock()
	watermark := w.watermark
	w.mu.Unlock()

	if count <= watermark {
		return nil
	}

	w.mboxMu.Lock()
	defer w.mboxMu.Unlock()

	log.Printf("INFO: [%s] new mail: %d -> %d", w.acc.ID, watermark, count)
	for seq := watermark + 1; seq <= count; seq++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.processSeq(ctx, conn, seq); err != nil {
			log.Printf("WARN: [%s] message %d: %v", w.acc.ID, seq, err)
		}
	}

	w.mu.Lock()
	w.watermark = count
	w.mu.Unlock()
	return nil
}
