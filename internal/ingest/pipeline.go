package ingest

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/inboxd/inboxd/internal/classify"
	"github.com/inboxd/inboxd/internal/mailparse"
	"github.com/inboxd/inboxd/internal/model"
	"github.com/inboxd/inboxd/internal/storage"
	"github.com/inboxd/inboxd/internal/store"
)

// Indexer is the search-index gateway consumed by the pipeline.
type Indexer interface {
	Upsert(doc model.EmailDocument) error
}

// Notifier is invoked for interested messages, fire-and-forget.
type Notifier interface {
	NotifyInterested(ctx context.Context, doc model.EmailDocument)
}

// ReplyDispatcher sends at most one auto-reply per message.
type ReplyDispatcher interface {
	Dispatch(ctx context.Context, acc model.Account, doc model.EmailDocument)
}

// Pipeline drives one raw message through parse, classify, persist and
// fan-out. Persistence failure fails the message; indexing, blob archival,
// notification and reply are best-effort.
type Pipeline struct {
	Store  store.EmailStore
	Index  Indexer
	Blobs  storage.BlobStore
	Notify Notifier
	Reply  ReplyDispatcher
	Folder string
	now    func() time.Time
}

// NewPipeline wires the fan-out targets. Index, Blobs, Notify and Reply may
// be nil to disable that leg.
func NewPipeline(s store.EmailStore, idx Indexer, blobs storage.BlobStore, n Notifier, r ReplyDispatcher) *Pipeline {
	return &Pipeline{
		Store:  s,
		Index:  idx,
		Blobs:  blobs,
		Notify: n,
		Reply:  r,
		Folder: "INBOX",
		now:    time.Now,
	}
}

// Process ingests one raw message for an account. The returned error covers
// parse and persistence only; downstream fan-out failures are logged.
func (p *Pipeline) Process(ctx context.Context, acc model.Account, seq uint32, raw []byte) error {
	parsed, err := mailparse.Parse(raw)
	if err != nil {
		return fmt.Errorf("parse message %d: %w", seq, err)
	}

	id := mailparse.CanonicalID(parsed.MessageID, acc.ID, seq)
	category := classify.Classify(parsed.Subject, parsed.BodyText, parsed.FromAddr)

	date := parsed.Date
	if date.IsZero() {
		date = p.now()
	}
	doc := model.EmailDocument{
		ID:        id,
		AccountID: acc.ID,
		From:      parsed.From,
		FromAddr:  parsed.FromAddr,
		To:        parsed.To,
		Subject:   parsed.Subject,
		BodyText:  parsed.BodyText,
		Folder:    p.Folder,
		Date:      date,
		Category:  category,
		Preview:   mailparse.Preview(parsed.BodyText),
	}

	stored, err := p.Store.Upsert(ctx, doc)
	if err != nil {
		return fmt.Errorf("upsert %s: %w", id, err)
	}
	// FromAddr is derived at parse time and not a stored column.
	stored.FromAddr = doc.FromAddr
	doc = stored

	if p.Blobs != nil {
		if err := p.Blobs.Write(ctx, storage.MessageKey(acc.ID, id), raw); err != nil {
			log.Printf("WARN: [%s] archive %s: %v", acc.ID, id, err)
		}
	}
	if p.Index != nil {
		if err := p.Index.Upsert(doc); err != nil {
			log.Printf("WARN: [%s] index %s: %v", acc.ID, id, err)
		}
	}
	if p.Notify != nil && doc.Category == model.CategoryInterested {
		p.Notify.NotifyInterested(ctx, doc)
	}
	if p.Reply != nil && doc.Category != model.CategorySpam && doc.Category != model.CategoryMeetings {
		p.Reply.Dispatch(ctx, acc, doc)
	}

	log.Printf("INFO: [%s] processed %s (%s) from %s", acc.ID, id, doc.Category, doc.FromAddr)
	return nil
}
