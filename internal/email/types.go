package email

import "time"

// RawMessage is one fetched message before parsing
type RawMessage struct {
	UID          uint32
	SeqNum       uint32
	MessageID    string // from the envelope, may be empty
	Subject      string
	From         string
	To           string
	Date         time.Time
	InternalDate time.Time
	Raw          []byte
}

// MailboxEvent is a "message count changed" notification for a mailbox
type MailboxEvent struct {
	Mailbox string
	Total   uint32
}

// ClientConfig configuration for one IMAP connection
type ClientConfig struct {
	Addr        string // host:port
	Username    string
	Password    string
	Secure      bool
	DialTimeout time.Duration
}

// Client is the mailbox-protocol capability set the worker drives. The
// production implementation wraps go-imap; tests substitute fakes.
type Client interface {
	// ListMailboxes returns all selectable mailbox names as a flat
	// sequence, parents before children.
	ListMailboxes() ([]string, error)
	// Select opens a mailbox and returns its total message count. The
	// connection holds a single selected mailbox at a time; selecting one
	// mailbox deselects the previous.
	Select(name string, readOnly bool) (uint32, error)
	// SearchSince returns sequence numbers of messages whose internal
	// date is on or after since.
	SearchSince(since time.Time) ([]uint32, error)
	// FetchMessages fetches envelope, raw source, internal date and uid
	// for each sequence number.
	FetchMessages(seqs []uint32) ([]*RawMessage, error)
	// FetchMessage fetches a single message by sequence number.
	FetchMessage(seq uint32) (*RawMessage, error)
	// Updates delivers mailbox notifications for the selected mailbox.
	Updates() <-chan MailboxEvent
	// Closed is closed when the connection is lost or logged out.
	Closed() <-chan struct{}
	Logout() error
}

// DialFunc opens a connection and authenticates
type DialFunc func(cfg ClientConfig) (Client, error)
