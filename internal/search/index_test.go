package search

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/inboxd/inboxd/internal/model"
)

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := New("")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { idx.Close() })
	return idx
}

func testDoc(id, accountID, subject, body string) model.EmailDocument {
	return model.EmailDocument{
		ID:        id,
		AccountID: accountID,
		From:      "Alice <alice@example.com>",
		To:        "bob@example.com",
		Subject:   subject,
		BodyText:  body,
		Folder:    "INBOX",
		Category:  model.CategoryInbox,
		Date:      time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC),
	}
}

func TestUpsertAndSearch(t *testing.T) {
	idx := newTestIndex(t)

	if err := idx.Upsert(testDoc("m1@mail", "account1", "Quarterly report", "The attached report covers Q2.")); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := idx.Upsert(testDoc("m2@mail", "account1", "Lunch plans", "Pizza on Friday?")); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	res, err := idx.Search("report", Filter{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if res.Total != 1 {
		t.Fatalf("Total = %d, want 1", res.Total)
	}
	if res.Hits[0].ID != "m1@mail" {
		t.Errorf("hit ID = %q, want m1@mail", res.Hits[0].ID)
	}
}

func TestUpsertReplacesExisting(t *testing.T) {
	idx := newTestIndex(t)

	doc := testDoc("m1@mail", "account1", "first subject", "body")
	if err := idx.Upsert(doc); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	doc.Subject = "second subject"
	if err := idx.Upsert(doc); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	if n := idx.Count(); n != 1 {
		t.Fatalf("Count = %d, want 1", n)
	}
	res, err := idx.Search("second", Filter{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if res.Total != 1 {
		t.Errorf("Total = %d, want 1", res.Total)
	}
}

func TestSameIDAcrossAccounts(t *testing.T) {
	idx := newTestIndex(t)

	if err := idx.Upsert(testDoc("shared@mail", "account1", "hello", "body")); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := idx.Upsert(testDoc("shared@mail", "account2", "hello", "body")); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	if n := idx.Count(); n != 2 {
		t.Fatalf("Count = %d, want 2", n)
	}
	res, err := idx.Search("hello", Filter{AccountID: "account2"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if res.Total != 1 {
		t.Errorf("filtered Total = %d, want 1", res.Total)
	}
}

func TestSearchCaseInsensitive(t *testing.T) {
	idx := newTestIndex(t)

	if err := idx.Upsert(testDoc("m1@mail", "account1", "URGENT Invoice", "please PAY NOW")); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	for _, q := range []string{"urgent", "URGENT", "pay now"} {
		res, err := idx.Search(q, Filter{})
		if err != nil {
			t.Fatalf("Search(%q): %v", q, err)
		}
		if res.Total != 1 {
			t.Errorf("Search(%q) Total = %d, want 1", q, res.Total)
		}
	}
}

func TestParquetRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.parquet")

	idx, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := idx.Upsert(testDoc("m1@mail", "account1", "persisted subject", "body")); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := idx.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}
	idx.Close()

	reloaded, err := New(path)
	if err != nil {
		t.Fatalf("New (reload): %v", err)
	}
	defer reloaded.Close()

	if n := reloaded.Count(); n != 1 {
		t.Fatalf("reloaded Count = %d, want 1", n)
	}
	res, err := reloaded.Search("persisted", Filter{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if res.Total != 1 {
		t.Errorf("Total = %d, want 1", res.Total)
	}
}
