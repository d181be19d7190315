// Package model defines core data types shared across the application.
package model

import (
	"net"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// NewID generates a UUIDv7 (time-ordered) identifier.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		// Fallback to v4 if v7 fails (should never happen).
		return uuid.New().String()
	}
	return id.String()
}

// Account is one mailbox account's immutable configuration.
// Loaded once at process start and never mutated; an invalid account is
// skipped at load time, never fixed up later.
type Account struct {
	ID       string `json:"id" yaml:"id"`
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port,omitempty" yaml:"port,omitempty"`
	User     string `json:"user" yaml:"user"`
	Password string `json:"-" yaml:"password,omitempty"` // never exposed via JSON
	TLS      bool   `json:"tls" yaml:"tls"`
}

// Addr returns the host:port dial address, defaulting the port from the TLS flag.
func (a Account) Addr() string {
	port := a.Port
	if port == 0 {
		if a.TLS {
			port = 993
		} else {
			port = 143
		}
	}
	return net.JoinHostPort(a.Host, strconv.Itoa(port))
}

// AccountsFile is the accounts.yml structure.
type AccountsFile struct {
	Accounts []Account `json:"accounts" yaml:"accounts"`
}

// Category is the classification assigned to an ingested message.
type Category string

const (
	CategoryInterested    Category = "interested"
	CategoryNotInterested Category = "not-interested"
	CategoryMeetings      Category = "meetings"
	CategoryOutOfOffice   Category = "out-of-office"
	CategorySpam          Category = "spam"
	CategoryInbox         Category = "inbox"
)

// EmailDocument is the stored representation of one ingested message.
// (ID, AccountID) is the dedup key: repeated ingestion updates in place,
// it never duplicates.
type EmailDocument struct {
	ID        string    `json:"id"`
	AccountID string    `json:"accountId"`
	From      string    `json:"from"`
	FromAddr  string    `json:"-"`
	To        string    `json:"to"`
	Subject   string    `json:"subject"`
	BodyText  string    `json:"body"`
	Folder    string    `json:"folder"`
	Date      time.Time `json:"date"`
	Category  Category  `json:"category"`
	Preview   string    `json:"preview"`
	CreatedAt time.Time `json:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// WatcherState is the connection lifecycle state of one account watcher.
// Exactly one state is active per watcher at any instant.
type WatcherState string

const (
	StateDisconnected WatcherState = "disconnected"
	StateConnecting   WatcherState = "connecting"
	StateSyncing      WatcherState = "syncing"
	StateMonitoring   WatcherState = "monitoring"
	StateReconnecting WatcherState = "reconnecting"
)

// WatcherStatus is the operator-visible snapshot of one watcher.
type WatcherStatus struct {
	AccountID  string       `json:"account_id"`
	State      WatcherState `json:"state"`
	Monitoring bool         `json:"monitoring"`
	Watermark  uint32       `json:"watermark"`
	LastError  string       `json:"last_error,omitempty"`
}

// EmailStats summarises stored messages per category and account.
type EmailStats struct {
	Total      int            `json:"total"`
	ByCategory map[string]int `json:"byCategory"`
	ByAccount  map[string]int `json:"byAccount"`
}
