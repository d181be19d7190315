// Package mailparse turns a raw RFC 822 message blob into the structured
// fields the ingestion pipeline works with.
package mailparse

import (
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"golang.org/x/text/encoding/simplifiedchinese"
)

func init() {
	// Some providers (QQ/163) still emit GBK bodies that go-message does not
	// decode out of the box.
	charset.RegisterEncoding("gbk", simplifiedchinese.GBK)
	charset.RegisterEncoding("gb2312", simplifiedchinese.HZGB2312)
}

// maxBodyBytes caps extracted body text per message to avoid pathological
// memory use.
const maxBodyBytes = 64 * 1024

// previewLen is the preview snippet length in runes.
const previewLen = 150

// Email holds the parsed fields of one message.
type Email struct {
	MessageID string
	From      string // display form, e.g. `"Jane" <jane@example.com>`
	FromAddr  string // bare address, e.g. `jane@example.com`
	To        string
	Subject   string
	BodyText  string
	Date      time.Time
}

var reHTMLTag = regexp.MustCompile(`<[^>]*>`)

// Parse extracts headers and body text from a raw message. The plain-text
// part is preferred; an HTML part is tag-stripped as fallback. Header fields
// that are absent come back as empty strings, never as an error.
func Parse(raw []byte) (*Email, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		if mr == nil {
			return nil, fmt.Errorf("read message: %w", err)
		}
		// Header parsed but something in the MIME structure is off; keep
		// going with whatever parts are readable.
	}

	h := mr.Header

	subject, err := h.Subject()
	if err != nil {
		subject = strings.TrimSpace(h.Get("Subject"))
	}

	from, fromAddr := addressField(h, "From")
	to, _ := addressField(h, "To")

	date, err := h.Date()
	if err != nil || date.IsZero() {
		date = parseDateFuzzy(h.Get("Date"))
	}

	msgID, err := h.MessageID()
	if err != nil || msgID == "" {
		msgID = strings.Trim(strings.TrimSpace(h.Get("Message-Id")), "<>")
	}

	var textBody, htmlBody string
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Unreadable part; use whatever has been collected so far.
			break
		}
		ih, ok := p.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		ctype, _, _ := ih.ContentType()
		switch {
		case ctype == "text/plain" && textBody == "":
			textBody = readCapped(p.Body)
		case ctype == "text/html" && htmlBody == "":
			htmlBody = readCapped(p.Body)
		}
	}

	body := textBody
	if body == "" && htmlBody != "" {
		body = reHTMLTag.ReplaceAllString(htmlBody, "")
	}

	return &Email{
		MessageID: msgID,
		From:      from,
		FromAddr:  fromAddr,
		To:        to,
		Subject:   subject,
		BodyText:  strings.TrimSpace(body),
		Date:      date,
	}, nil
}

// CanonicalID derives the dedup identifier for a message: the protocol
// message-id with enclosing angle brackets stripped, or
// "{accountID}_{seq}" when the message carries none.
func CanonicalID(messageID, accountID string, seq uint32) string {
	id := strings.Trim(strings.TrimSpace(messageID), "<>")
	if id == "" {
		return fmt.Sprintf("%s_%d", accountID, seq)
	}
	return id
}

// Preview returns the first previewLen runes of body with a trailing
// ellipsis when truncated.
func Preview(body string) string {
	runes := []rune(body)
	if len(runes) <= previewLen {
		return body
	}
	return string(runes[:previewLen]) + "..."
}

func addressField(h mail.Header, key string) (display, addr string) {
	list, err := h.AddressList(key)
	if err != nil || len(list) == 0 {
		return strings.TrimSpace(h.Get(key)), ""
	}
	parts := make([]string, 0, len(list))
	for _, a := range list {
		parts = append(parts, a.String())
	}
	return strings.Join(parts, ", "), list[0].Address
}

func readCapped(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, maxBodyBytes))
	return string(b)
}

// parseDateFuzzy tries multiple date layouts to handle non-standard Date
// headers (e.g. missing timezone, unconventional formats).
func parseDateFuzzy(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}
	for _, layout := range []string{
		time.RFC1123Z,
		time.RFC1123,
		"Mon, 2 Jan 2006 15:04:05 -0700 (MST)",
		"Mon, 2 Jan 2006 15:04:05 -0700",
		"Mon, 2 Jan 2006 15:04:05",
		"2 Jan 2006 15:04:05 -0700",
		"2 Jan 2006 15:04:05",
		time.RFC822Z,
		time.RFC822,
		"2006-01-02T15:04:05Z07:00",
		"2006-01-02 15:04:05",
	} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t
		}
	}
	return time.Time{}
}
