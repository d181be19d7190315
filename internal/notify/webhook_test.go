package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/inboxd/inboxd/internal/model"
)

func TestNotifyInterestedPostsBothEndpoints(t *testing.T) {
	var slackBody, leadBody []byte

	slackSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		slackBody, _ = io.ReadAll(r.Body)
	}))
	defer slackSrv.Close()

	leadSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		leadBody, _ = io.ReadAll(r.Body)
	}))
	defer leadSrv.Close()

	n := New(slackSrv.URL, leadSrv.URL)
	n.NotifyInterested(context.Background(), model.EmailDocument{
		AccountID: "account1",
		From:      "Lead <lead@example.com>",
		Subject:   "Interested in your product",
	})

	var slack slackPayload
	if err := json.Unmarshal(slackBody, &slack); err != nil {
		t.Fatalf("unmarshal slack payload: %v", err)
	}
	if len(slack.Blocks) != 1 || !strings.Contains(slack.Blocks[0].Text.Text, "Interested in your product") {
		t.Errorf("slack payload missing subject: %+v", slack)
	}

	var lead leadPayload
	if err := json.Unmarshal(leadBody, &lead); err != nil {
		t.Fatalf("unmarshal lead payload: %v", err)
	}
	if lead.Sender != "Lead <lead@example.com>" {
		t.Errorf("lead Sender = %q", lead.Sender)
	}
	if lead.AccountID != "account1" {
		t.Errorf("lead AccountID = %q", lead.AccountID)
	}
}

func TestNotifyInterestedFailureDoesNotPanic(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	n := New(srv.URL, "http://127.0.0.1:1/unreachable")
	n.NotifyInterested(context.Background(), model.EmailDocument{AccountID: "account1"})
}

func TestEnabled(t *testing.T) {
	if New("", "").Enabled() {
		t.Error("Enabled() = true with no URLs")
	}
	if !New("http://example.com/hook", "").Enabled() {
		t.Error("Enabled() = false with slack URL")
	}
}
