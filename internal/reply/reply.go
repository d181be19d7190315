// Package reply sends templated auto-replies over SMTP for categorized mail.
package reply

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"net"
	"net/smtp"
	"strconv"
	"strings"

	"github.com/emersion/go-message/mail"

	"github.com/inboxd/inboxd/internal/model"
)

// templates maps a category to its canned reply body. Categories absent from
// the map get no auto-reply.
var templates = map[model.Category]string{
	model.CategoryInterested:    "Thank you! Our team will reach out to you very soon. Please stay connected.",
	model.CategoryNotInterested: "Thank you for your response! No worries, we won't disturb you further.",
	model.CategoryOutOfOffice:   "Thank you for informing! We will follow up once you are back.",
}

// TemplateFor returns the reply body for a category, or "" if none applies.
func TemplateFor(cat model.Category) string {
	return templates[cat]
}

// Sender delivers a composed reply. Implementations must not retry.
type Sender interface {
	Send(ctx context.Context, acc model.Account, to string, msg []byte) error
}

// Replier composes and dispatches auto-replies.
type Replier struct {
	sender  Sender
	enabled bool
}

// New creates a Replier using SMTP delivery. Pass enabled=false to disable
// dispatch while keeping template lookups available.
func New(enabled bool) *Replier {
	return &Replier{sender: &smtpSender{}, enabled: enabled}
}

// NewWithSender creates a Replier with a custom delivery backend.
func NewWithSender(s Sender, enabled bool) *Replier {
	return &Replier{sender: s, enabled: enabled}
}

// Dispatch sends the category's templated reply for doc, if one exists.
// Failures are logged and swallowed; a reply is attempted at most once.
func (r *Replier) Dispatch(ctx context.Context, acc model.Account, doc model.EmailDocument) {
	if !r.enabled {
		return
	}
	body := TemplateFor(doc.Category)
	if body == "" || doc.FromAddr == "" {
		return
	}

	msg, err := composeReply(acc.User, doc.FromAddr, doc.Subject, body, doc.ID)
	if err != nil {
		log.Printf("ERROR: [%s] compose reply: %v", acc.ID, err)
		return
	}
	if err := r.sender.Send(ctx, acc, doc.FromAddr, msg); err != nil {
		log.Printf("ERROR: [%s] send reply to %s: %v", acc.ID, doc.FromAddr, err)
		return
	}
	log.Printf("INFO: [%s] auto-reply (%s) sent to %s", acc.ID, doc.Category, doc.FromAddr)
}

// ReplySubject prefixes "Re: " unless the subject already carries it.
func ReplySubject(subject string) string {
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(subject)), "re:") {
		return subject
	}
	return "Re: " + subject
}

func composeReply(from, to, subject, body, origID string) ([]byte, error) {
	var h mail.Header
	if addrs, err := mail.ParseAddressList(from); err == nil && len(addrs) > 0 {
		h.SetAddressList("From", addrs)
	} else {
		h.Set("From", from)
	}
	if addrs, err := mail.ParseAddressList(to); err == nil && len(addrs) > 0 {
		h.SetAddressList("To", addrs)
	} else {
		h.Set("To", to)
	}
	h.SetSubject(ReplySubject(subject))
	h.Set("Content-Type", "text/plain; charset=utf-8")
	h.Set("Message-Id", "<"+model.NewID()+"@"+mailDomain(from)+">")
	if origID != "" && strings.Contains(origID, "@") {
		ref := "<" + origID + ">"
		h.Set("In-Reply-To", ref)
		h.Set("References", ref)
	}

	var buf bytes.Buffer
	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("build message: %w", err)
	}
	if _, err := w.Write([]byte(body)); err != nil {
		w.Close()
		return nil, fmt.Errorf("write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close message: %w", err)
	}
	return buf.Bytes(), nil
}

// mailDomain extracts the domain of an address for Message-Id generation.
func mailDomain(addr string) string {
	if _, domain, ok := strings.Cut(addr, "@"); ok && domain != "" {
		return strings.Trim(domain, "<> ")
	}
	return "localhost"
}

// SMTPHost derives the submission host from an account's IMAP host
// (imap.example.com -> smtp.example.com). Gmail always maps to smtp.gmail.com.
func SMTPHost(imapHost string) string {
	if strings.Contains(imapHost, "gmail") {
		return "smtp.gmail.com"
	}
	if rest, ok := strings.CutPrefix(imapHost, "imap."); ok {
		return "smtp." + rest
	}
	return imapHost
}

type smtpSender struct{}

const submissionPort = 587

func (smtpSender) Send(ctx context.Context, acc model.Account, to string, msg []byte) error {
	host := SMTPHost(acc.Host)
	addr := net.JoinHostPort(host, strconv.Itoa(submissionPort))

	d := net.Dialer{}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("smtp dial: %w", err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, host)
	if err != nil {
		return fmt.Errorf("smtp new client: %w", err)
	}
	defer client.Close()

	if err := client.StartTLS(&tls.Config{ServerName: host}); err != nil {
		return fmt.Errorf("smtp starttls: %w", err)
	}
	auth := smtp.PlainAuth("", acc.User, acc.Password, host)
	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("smtp auth: %w", err)
	}
	if err := client.Mail(acc.User); err != nil {
		return fmt.Errorf("smtp mail: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("smtp rcpt: %w", err)
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		w.Close()
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp data close: %w", err)
	}
	return client.Quit()
}
