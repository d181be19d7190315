package ingest

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/inboxd/inboxd/internal/model"
)

type recordingNotifier struct {
	mu   sync.Mutex
	docs []model.EmailDocument
}

func (r *recordingNotifier) NotifyInterested(ctx context.Context, doc model.EmailDocument) {
	r.mu.Lock()
	r.docs = append(r.docs, doc)
	r.mu.Unlock()
}

type recordingReplier struct {
	mu   sync.Mutex
	docs []model.EmailDocument
}

func (r *recordingReplier) Dispatch(ctx context.Context, acc model.Account, doc model.EmailDocument) {
	r.mu.Lock()
	r.docs = append(r.docs, doc)
	r.mu.Unlock()
}

func rawMessage(messageID, from, subject, body string) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: me@example.com\r\n")
	b.WriteString("Subject: " + subject + "\r\n")
	if messageID != "" {
		b.WriteString("Message-Id: <" + messageID + ">\r\n")
	}
	b.WriteString("Date: Mon, 24 Aug 2026 10:00:00 +0000\r\n")
	b.WriteString("Content-Type: text/plain\r\n\r\n")
	b.WriteString(body + "\r\n")
	return []byte(b.String())
}

func TestProcessStoresClassifiedDocument(t *testing.T) {
	ms := newMemStore()
	p := NewPipeline(ms, nil, nil, nil, nil)

	raw := rawMessage("lead1@mail", "lead@example.com", "Pricing", "I am interested in a demo call")
	if err := p.Process(context.Background(), testAccount("account1"), 1, raw); err != nil {
		t.Fatalf("Process: %v", err)
	}

	doc, err := ms.Get(context.Background(), "lead1@mail", "account1")
	if err != nil || doc == nil {
		t.Fatalf("Get: doc=%v err=%v", doc, err)
	}
	if doc.Category != model.CategoryInterested {
		t.Errorf("Category = %s, want interested", doc.Category)
	}
	if doc.Preview == "" {
		t.Error("Preview empty")
	}
}

func TestProcessIsIdempotent(t *testing.T) {
	ms := newMemStore()
	p := NewPipeline(ms, nil, nil, nil, nil)
	acc := testAccount("account1")

	raw := rawMessage("dup@mail", "a@example.com", "hello", "body text")
	for i := 0; i < 2; i++ {
		if err := p.Process(context.Background(), acc, 1, raw); err != nil {
			t.Fatalf("Process #%d: %v", i+1, err)
		}
	}
	if got := ms.total(); got != 1 {
		t.Errorf("stored %d records after duplicate ingest, want 1", got)
	}
}

func TestProcessFallbackIDWithoutMessageID(t *testing.T) {
	ms := newMemStore()
	p := NewPipeline(ms, nil, nil, nil, nil)

	raw := rawMessage("", "a@example.com", "no id", "body")
	if err := p.Process(context.Background(), testAccount("account1"), 42, raw); err != nil {
		t.Fatalf("Process: %v", err)
	}
	doc, err := ms.Get(context.Background(), "account1_42", "account1")
	if err != nil || doc == nil {
		t.Fatalf("fallback id not stored: doc=%v err=%v", doc, err)
	}
}

func TestProcessNotifiesOnlyInterested(t *testing.T) {
	ms := newMemStore()
	notifier := &recordingNotifier{}
	replier := &recordingReplier{}
	p := NewPipeline(ms, nil, nil, notifier, replier)
	acc := testAccount("account1")

	interested := rawMessage("i@mail", "lead@example.com", "Demo", "I am interested in your product")
	spam := rawMessage("s@mail", "noreply@promo.example.com", "Big sale", "Limited time discount on all items")
	if err := p.Process(context.Background(), acc, 1, interested); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if err := p.Process(context.Background(), acc, 2, spam); err != nil {
		t.Fatalf("Process: %v", err)
	}

	if len(notifier.docs) != 1 {
		t.Errorf("notified %d times, want 1", len(notifier.docs))
	}
	if len(replier.docs) != 1 {
		t.Errorf("reply dispatcher invoked %d times, want 1 (spam excluded)", len(replier.docs))
	}
}
