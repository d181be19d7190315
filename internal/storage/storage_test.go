package storage

import (
	"context"
	"errors"
	"testing"
)

func TestFSBlobStoreRoundTrip(t *testing.T) {
	store := NewFSBlobStore(t.TempDir())
	ctx := context.Background()

	key := MessageKey("account1", "abc123@mail")
	raw := []byte("From: a@example.com\r\nSubject: hi\r\n\r\nbody\r\n")

	if err := store.Write(ctx, key, raw); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := store.Read(ctx, key)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != string(raw) {
		t.Errorf("got %q, want %q", got, raw)
	}
}

func TestFSBlobStoreNotFound(t *testing.T) {
	store := NewFSBlobStore(t.TempDir())
	_, err := store.Read(context.Background(), "account1/missing.eml")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Read: got %v, want ErrNotFound", err)
	}
}

func TestFSBlobStoreList(t *testing.T) {
	store := NewFSBlobStore(t.TempDir())
	ctx := context.Background()

	for _, key := range []string{
		MessageKey("account1", "m1@mail"),
		MessageKey("account1", "m2@mail"),
		MessageKey("account2", "m3@mail"),
	} {
		if err := store.Write(ctx, key, []byte("x")); err != nil {
			t.Fatalf("Write %s: %v", key, err)
		}
	}

	keys, err := store.List(ctx, "account1")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(keys) != 2 {
		t.Errorf("List(account1) = %d keys, want 2", len(keys))
	}
}

func TestMessageKey(t *testing.T) {
	tests := []struct {
		accountID, canonicalID, want string
	}{
		{"account1", "abc@mail", "account1/abc@mail.eml"},
		{"account2", "account2_42", "account2/account2_42.eml"},
		{"account1", "weird/id@mail", "account1/weird_id@mail.eml"},
	}
	for _, tt := range tests {
		if got := MessageKey(tt.accountID, tt.canonicalID); got != tt.want {
			t.Errorf("MessageKey(%q, %q) = %q, want %q", tt.accountID, tt.canonicalID, got, tt.want)
		}
	}
}

// TestS3StoreRetrieve verifies Write and Read against an S3-compatible store.
//
// Run MinIO first, then:
//
//	S3_ENDPOINT=http://localhost:9000 S3_ACCESS_KEY_ID=minioadmin S3_SECRET_ACCESS_KEY=minioadmin S3_BUCKET=inboxd-test S3_USE_SSL=false go test -v ./internal/storage/ -run TestS3StoreRetrieve
func TestS3StoreRetrieve(t *testing.T) {
	cfg := ConfigFromEnv()
	if cfg == nil {
		t.Skip("S3_ENDPOINT not set, skipping integration test")
	}

	ctx := context.Background()
	store, err := NewS3BlobStore(ctx, cfg, "raw")
	if err != nil {
		t.Fatalf("NewS3BlobStore: %v", err)
	}

	key := MessageKey("account1", "integration@mail")
	content := []byte("From: test@example.com\r\nSubject: S3 Test\r\n\r\nHello.\r\n")

	if err := store.Write(ctx, key, content); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := store.Read(ctx, key)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("got %q, want %q", got, content)
	}
}
