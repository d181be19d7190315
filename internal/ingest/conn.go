// Package ingest is the mail ingestion engine: one watcher per account
// performing a bounded historical backfill and then IDLE-based live
// monitoring, feeding every discovered message through the parse, classify
// and fan-out pipeline.
package ingest

import (
	"fmt"
	"net"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/inboxd/inboxd/internal/model"
)

const dialTimeout = 10 * time.Second

// Conn is the subset of the IMAP session a watcher needs. A Conn is owned by
// exactly one watcher and never shared.
type Conn interface {
	Login(username, password string) error
	// Select opens the mailbox and returns its current message count.
	Select(mailbox string) (uint32, error)
	// SearchSince returns sequence numbers of messages received since the
	// given time, ascending.
	SearchSince(since time.Time) ([]uint32, error)
	// FetchRaw retrieves the full raw message for one sequence number.
	FetchRaw(seq uint32) ([]byte, error)
	// Idle starts a server-push wait. The returned handle's Done channel
	// yields the command's final error once the wait ends.
	Idle() (IdleHandle, error)
	// Updates delivers new mailbox message counts pushed by the server
	// while an Idle is in flight.
	Updates() <-chan uint32
	Logout() error
	Close() error
}

// IdleHandle controls one in-flight IDLE command.
type IdleHandle interface {
	// Close asks the server to end the IDLE.
	Close() error
	// Done yields the command's completion error (nil on clean end).
	Done() <-chan error
}

// DialFunc opens an authenticated-capable connection for an account.
// Swapped out in tests.
type DialFunc func(acc model.Account) (Conn, error)

// Dial connects to the account's IMAP endpoint, TLS or plaintext per its
// configuration.
func Dial(acc model.Account) (Conn, error) {
	updates := make(chan uint32, 8)
	opts := &imapclient.Options{
		Dialer: &net.Dialer{Timeout: dialTimeout},
		UnilateralDataHandler: &imapclient.UnilateralDataHandler{
			Mailbox: func(data *imapclient.UnilateralDataMailbox) {
				if data.NumMessages != nil {
					select {
					case updates <- *data.NumMessages:
					default:
					}
				}
			},
		},
	}

	var cl *imapclient.Client
	var err error
	if acc.TLS {
		cl, err = imapclient.DialTLS(acc.Addr(), opts)
	} else {
		cl, err = imapclient.DialInsecure(acc.Addr(), opts)
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", acc.Addr(), err)
	}
	return &imapConn{client: cl, updates: updates}, nil
}

type imapConn struct {
	client  *imapclient.Client
	updates chan uint32
}

func (c *imapConn) Login(username, password string) error {
	return c.client.Login(username, password).Wait()
}

func (c *imapConn) Select(mailbox string) (uint32, error) {
	data, err := c.client.Select(mailbox, nil).Wait()
	if err != nil {
		return 0, err
	}
	return data.NumMessages, nil
}

func (c *imapConn) SearchSince(since time.Time) ([]uint32, error) {
	data, err := c.client.Search(&imap.SearchCriteria{Since: since}, nil).Wait()
	if err != nil {
		return nil, err
	}
	return data.AllSeqNums(), nil
}

func (c *imapConn) FetchRaw(seq uint32) ([]byte, error) {
	var seqSet imap.SeqSet
	seqSet.AddNum(seq)
	section := &imap.FetchItemBodySection{}
	opts := &imap.FetchOptions{BodySection: []*imap.FetchItemBodySection{section}}

	msgs, err := c.client.Fetch(seqSet, opts).Collect()
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, fmt.Errorf("message %d not found", seq)
	}
	body := msgs[0].FindBodySection(section)
	if body == nil {
		return nil, fmt.Errorf("message %d has no body section", seq)
	}
	return body, nil
}

func (c *imapConn) Idle() (IdleHandle, error) {
	cmd, err := c.client.Idle()
	if err != nil {
		return nil, err
	}
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()
	return &idleHandle{cmd: cmd, done: done}, nil
}

type idleHandle struct {
	cmd  *imapclient.IdleCommand
	done chan error
}

func (h *idleHandle) Close() error       { return h.cmd.Close() }
func (h *idleHandle) Done() <-chan error { return h.done }

func (c *imapConn) Updates() <-chan uint32 { return c.updates }

func (c *imapConn) Logout() error {
	return c.client.Logout().Wait()
}

func (c *imapConn) Close() error { return c.client.Close() }
