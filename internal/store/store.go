// Package store persists ingested messages. The upsert is idempotent on
// (id, account_id): ingesting the same message twice updates the stored
// record in place.
package store

import (
	"context"

	"github.com/inboxd/inboxd/internal/model"
)

// Filter narrows List results. Zero values mean "no constraint".
type Filter struct {
	Category  string
	AccountID string
	Folder    string
	Limit     int
	Offset    int
}

// EmailStore is the persistence gateway consumed by the ingestion pipeline.
type EmailStore interface {
	// Upsert inserts or updates the record keyed by (doc.ID, doc.AccountID)
	// and returns the merged record.
	Upsert(ctx context.Context, doc model.EmailDocument) (model.EmailDocument, error)
	Get(ctx context.Context, id, accountID string) (*model.EmailDocument, error)
	List(ctx context.Context, f Filter) ([]model.EmailDocument, error)
	// All streams every stored record, newest first. Used by reindexing.
	All(ctx context.Context) ([]model.EmailDocument, error)
	Stats(ctx context.Context) (model.EmailStats, error)
	Close() error
}
