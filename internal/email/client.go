package email

import (
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"sort"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
)

// imapClient wraps a go-imap connection behind the Client interface
type imapClient struct {
	cli    *client.Client
	events chan MailboxEvent
}

// Dial opens an IMAP connection and logs in
func Dial(cfg ClientConfig) (Client, error) {
	timeout := cfg.DialTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	dialer := &net.Dialer{Timeout: timeout}
	var conn net.Conn
	var err error
	if cfg.Secure {
		conn, err = tls.DialWithDialer(dialer, "tcp", cfg.Addr, nil)
	} else {
		conn, err = dialer.Dial("tcp", cfg.Addr)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	cli, err := client.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create IMAP client: %w", err)
	}

	if err := cli.Login(cfg.Username, cfg.Password); err != nil {
		cli.Logout()
		return nil, fmt.Errorf("failed to login: %w", err)
	}

	c := &imapClient{
		cli:    cli,
		events: make(chan MailboxEvent, 16),
	}

	// go-imap blocks the connection reader while the updates channel is
	// full, so drain it unconditionally and drop events the worker has
	// not consumed yet.
	updates := make(chan client.Update, 16)
	cli.Updates = updates
	go c.translateUpdates(updates)

	return c, nil
}

func (c *imapClient) translateUpdates(updates <-chan client.Update) {
	for {
		select {
		case upd := <-updates:
			if mb, ok := upd.(*client.MailboxUpdate); ok {
				ev := MailboxEvent{Mailbox: mb.Mailbox.Name, Total: mb.Mailbox.Messages}
				select {
				case c.events <- ev:
				default:
				}
			}
		case <-c.cli.LoggedOut():
			return
		}
	}
}

// ListMailboxes lists all selectable mailboxes, flattened pre-order
func (c *imapClient) ListMailboxes() ([]string, error) {
	ch := make(chan *imap.MailboxInfo, 10)
	done := make(chan error, 1)
	go func() {
		done <- c.cli.List("", "*", ch)
	}()

	var names []string
	for mb := range ch {
		if hasAttribute(mb.Attributes, imap.NoSelectAttr) {
			continue
		}
		names = append(names, mb.Name)
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("failed to list mailboxes: %w", err)
	}

	// Hierarchical names share a path prefix, so a plain sort yields
	// parent-before-children order.
	sort.Strings(names)
	return names, nil
}

func hasAttribute(attrs []string, target string) bool {
	for _, attr := range attrs {
		if attr == target {
			return true
		}
	}
	return false
}

func (c *imapClient) Select(name string, readOnly bool) (uint32, error) {
	mbox, err := c.cli.Select(name, readOnly)
	if err != nil {
		return 0, fmt.Errorf("failed to select %q: %w", name, err)
	}
	return mbox.Messages, nil
}

func (c *imapClient) SearchSince(since time.Time) ([]uint32, error) {
	criteria := imap.NewSearchCriteria()
	criteria.Since = since
	seqs, err := c.cli.Search(criteria)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	return seqs, nil
}

func (c *imapClient) FetchMessages(seqs []uint32) ([]*RawMessage, error) {
	if len(seqs) == 0 {
		return nil, nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(seqs...)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchInternalDate, imap.FetchUid, section.FetchItem()}

	ch := make(chan *imap.Message, 10)
	done := make(chan error, 1)
	go func() {
		done <- c.cli.Fetch(seqset, items, ch)
	}()

	var messages []*RawMessage
	for msg := range ch {
		messages = append(messages, rawFromIMAP(msg, section))
	}
	if err := <-done; err != nil {
		return messages, fmt.Errorf("failed to fetch: %w", err)
	}
	return messages, nil
}

func (c *imapClient) FetchMessage(seq uint32) (*RawMessage, error) {
	messages, err := c.FetchMessages([]uint32{seq})
	if err != nil {
		return nil, err
	}
	if len(messages) == 0 {
		return nil, fmt.Errorf("message %d not found", seq)
	}
	return messages[0], nil
}

// rawFromIMAP converts a fetched go-imap message into a RawMessage
func rawFromIMAP(msg *imap.Message, section *imap.BodySectionName) *RawMessage {
	raw := &RawMessage{
		UID:          msg.Uid,
		SeqNum:       msg.SeqNum,
		InternalDate: msg.InternalDate,
	}

	if msg.Envelope != nil {
		raw.MessageID = msg.Envelope.MessageId
		raw.Subject = msg.Envelope.Subject
		raw.Date = msg.Envelope.Date
		if len(msg.Envelope.From) > 0 {
			raw.From = msg.Envelope.From[0].Address()
		}
		for i, to := range msg.Envelope.To {
			if i > 0 {
				raw.To += ", "
			}
			raw.To += to.Address()
		}
	}

	if body := msg.GetBody(section); body != nil {
		if b, err := io.ReadAll(body); err == nil {
			raw.Raw = b
		}
	}

	return raw
}

func (c *imapClient) Updates() <-chan MailboxEvent {
	return c.events
}

func (c *imapClient) Closed() <-chan struct{} {
	return c.cli.LoggedOut()
}

func (c *imapClient) Logout() error {
	return c.cli.Logout()
}
