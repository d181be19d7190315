// Package notify pushes webhook notifications for interesting emails.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/inboxd/inboxd/internal/model"
)

const requestTimeout = 10 * time.Second

// Notifier posts to configured webhook endpoints when a message lands in the
// interested category. Both endpoints are optional; failures are logged and
// never bubble up to the pipeline.
type Notifier struct {
	slackURL      string
	interestedURL string
	client        *http.Client
}

// New creates a Notifier. Empty URLs disable the corresponding endpoint.
func New(slackURL, interestedURL string) *Notifier {
	return &Notifier{
		slackURL:      slackURL,
		interestedURL: interestedURL,
		client:        &http.Client{Timeout: requestTimeout},
	}
}

// Enabled reports whether at least one endpoint is configured.
func (n *Notifier) Enabled() bool {
	return n.slackURL != "" || n.interestedURL != ""
}

type slackPayload struct {
	Text   string       `json:"text"`
	Blocks []slackBlock `json:"blocks"`
}

type slackBlock struct {
	Type string    `json:"type"`
	Text slackText `json:"text"`
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type leadPayload struct {
	Subject   string `json:"subject"`
	Sender    string `json:"sender"`
	AccountID string `json:"account_id"`
	Timestamp string `json:"timestamp"`
}

// NotifyInterested posts the message summary to each configured endpoint.
func (n *Notifier) NotifyInterested(ctx context.Context, doc model.EmailDocument) {
	if n.slackURL != "" {
		payload := slackPayload{
			Text: "New Interested Lead!",
			Blocks: []slackBlock{{
				Type: "section",
				Text: slackText{
					Type: "mrkdwn",
					Text: fmt.Sprintf("*New Interested Lead*\n\n*Subject:* %s\n*From:* %s", doc.Subject, doc.From),
				},
			}},
		}
		if err := n.post(ctx, n.slackURL, payload); err != nil {
			log.Printf("ERROR: [%s] slack webhook: %v", doc.AccountID, err)
		}
	}
	if n.interestedURL != "" {
		payload := leadPayload{
			Subject:   doc.Subject,
			Sender:    doc.From,
			AccountID: doc.AccountID,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}
		if err := n.post(ctx, n.interestedURL, payload); err != nil {
			log.Printf("ERROR: [%s] interested webhook: %v", doc.AccountID, err)
		}
	}
}

func (n *Notifier) post(ctx context.Context, url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned %s", resp.Status)
	}
	return nil
}
