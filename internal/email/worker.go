package email

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/arvales/mailindex/internal/index"
	"github.com/arvales/mailindex/pkg/models"
)

// State is the lifecycle state of a Worker
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateEnumerating
	StateListening
	StateReconnecting
	StateShuttingDown
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateEnumerating:
		return "enumerating"
	case StateListening:
		return "listening"
	case StateReconnecting:
		return "reconnecting"
	case StateShuttingDown:
		return "shutting_down"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

const (
	baseRetryDelay = 1 * time.Second
	maxRetryDelay  = 30 * time.Second
	ingestTimeout  = 30 * time.Second
)

// RetryDelay returns the reconnect backoff after attempts consecutive
// connection failures: min(30s, 1s * 2^attempts)
func RetryDelay(attempts int) time.Duration {
	if attempts >= 5 {
		return maxRetryDelay
	}
	d := baseRetryDelay << uint(attempts)
	if d > maxRetryDelay {
		d = maxRetryDelay
	}
	return d
}

// WorkerConfig configures one account worker
type WorkerConfig struct {
	Account        *models.Account
	Password       string // decrypted
	Dial           DialFunc
	Gateway        *index.Gateway
	BackfillWindow time.Duration
	DialTimeout    time.Duration
	Logger         *slog.Logger
}

// Worker owns one account's IMAP connection. All mailbox processing runs on
// a single goroutine per worker: connect, then backfill and subscribe each
// mailbox in sequence, then react to events. One outstanding command at a
// time keeps the shared "selected mailbox" on the connection unambiguous.
type Worker struct {
	account        *models.Account
	password       string
	dial           DialFunc
	gateway        *index.Gateway
	backfillWindow time.Duration
	dialTimeout    time.Duration
	logger         *slog.Logger

	mu           sync.Mutex
	state        State
	conn         Client
	connected    bool
	attempts     int
	shuttingDown bool
	retryTimer   *time.Timer
}

// NewWorker creates a worker for an account. It does not connect; call
// Start.
func NewWorker(cfg WorkerConfig) *Worker {
	return &Worker{
		account:        cfg.Account,
		password:       cfg.Password,
		dial:           cfg.Dial,
		gateway:        cfg.Gateway,
		backfillWindow: cfg.BackfillWindow,
		dialTimeout:    cfg.DialTimeout,
		logger:         cfg.Logger.With("component", "worker", "account_id", cfg.Account.ID),
		state:          StateDisconnected,
	}
}

// Start begins the connection lifecycle asynchronously
func (w *Worker) Start() {
	go w.run()
}

// run is the worker's single processing goroutine. Reconnect timers re-enter
// it after a backoff delay.
func (w *Worker) run() {
	w.mu.Lock()
	if w.shuttingDown {
		w.mu.Unlock()
		return
	}
	w.setStateLocked(StateConnecting)
	w.mu.Unlock()

	conn, err := w.dial(ClientConfig{
		Addr:        w.account.Addr(),
		Username:    w.account.Username,
		Password:    w.password,
		Secure:      w.account.Secure,
		DialTimeout: w.dialTimeout,
	})
	if err != nil {
		w.logger.Error("connect failed", "addr", w.account.Addr(), "error", err)
		w.scheduleReconnect()
		return
	}

	w.mu.Lock()
	if w.shuttingDown {
		w.mu.Unlock()
		if err := conn.Logout(); err != nil {
			w.logger.Warn("logout failed", "error", err)
		}
		return
	}
	w.conn = conn
	w.connected = true
	w.attempts = 0
	w.setStateLocked(StateEnumerating)
	w.mu.Unlock()

	w.logger.Info("connected", "addr", w.account.Addr())

	if err := w.enumerate(conn); err != nil {
		w.logger.Error("mailbox enumeration failed", "error", err)
		w.handleDisconnect(conn)
		return
	}

	w.mu.Lock()
	if w.shuttingDown {
		w.mu.Unlock()
		return
	}
	w.setStateLocked(StateListening)
	w.mu.Unlock()

	w.listen(conn)
}

// enumerate walks every mailbox in order: backfill it, then re-open it
// read-write so the server emits count updates for it
func (w *Worker) enumerate(conn Client) error {
	mailboxes, err := conn.ListMailboxes()
	if err != nil {
		return err
	}
	w.logger.Info("enumerated mailboxes", "count", len(mailboxes))

	for _, name := range mailboxes {
		if w.isShuttingDown() {
			return nil
		}

		w.backfill(conn, name)

		if _, err := conn.Select(name, false); err != nil {
			w.logger.Error("failed to open mailbox for updates", "mailbox", name, "error", err)
		}
	}
	return nil
}

// backfill ingests messages from the configured window. A failure to open
// or search the mailbox skips it entirely; a failure to index one message
// does not abort the rest.
func (w *Worker) backfill(conn Client, mailbox string) {
	log := w.logger.With("mailbox", mailbox)

	if _, err := conn.Select(mailbox, true); err != nil {
		log.Error("failed to open mailbox, skipping", "error", err)
		return
	}

	since := time.Now().Add(-w.backfillWindow)
	seqs, err := conn.SearchSince(since)
	if err != nil {
		log.Error("backfill search failed, skipping", "error", err)
		return
	}
	if len(seqs) == 0 {
		return
	}

	messages, err := conn.FetchMessages(seqs)
	if err != nil {
		// Messages fetched before the failure are still worth indexing
		log.Error("backfill fetch failed", "error", err)
	}

	log.Info("backfilling messages", "count", len(messages))
	for _, msg := range messages {
		if err := w.ingest(mailbox, msg); err != nil {
			log.Error("failed to index message", "uid", msg.UID, "error", err)
		}
	}
}

// listen reacts to mailbox notifications until the connection drops
func (w *Worker) listen(conn Client) {
	for {
		select {
		case ev := <-conn.Updates():
			w.handleMailboxEvent(conn, ev)
		case <-conn.Closed():
			w.logger.Info("connection closed")
			w.handleDisconnect(conn)
			return
		}
	}
}

// handleMailboxEvent processes a "count changed" notification. The
// connection holds one selected mailbox, so a notification may fire while
// another mailbox is selected; re-select the named mailbox and trust only
// the count that select reports.
func (w *Worker) handleMailboxEvent(conn Client, ev MailboxEvent) {
	log := w.logger.With("mailbox", ev.Mailbox)

	total, err := conn.Select(ev.Mailbox, false)
	if err != nil {
		log.Error("failed to reselect mailbox", "error", err)
		return
	}
	if total == 0 {
		return
	}

	msg, err := conn.FetchMessage(total)
	if err != nil {
		log.Error("failed to fetch new message", "seq", total, "error", err)
		return
	}
	if err := w.ingest(ev.Mailbox, msg); err != nil {
		log.Error("failed to index new message", "uid", msg.UID, "error", err)
	}
}

// ingest runs one message through parse, identity resolution, dedup and
// upsert
func (w *Worker) ingest(mailbox string, msg *RawMessage) error {
	ctx, cancel := context.WithTimeout(context.Background(), ingestTimeout)
	defer cancel()

	parsed := ParseMessage(msg.Raw)
	messageID := ResolveMessageID(msg.MessageID, msg.Raw)

	if w.gateway.Exists(ctx, w.account.ID, messageID) {
		w.logger.Debug("message already indexed", "mailbox", mailbox, "message_id", messageID)
		return nil
	}

	subject := parsed.Subject
	if subject == "" {
		subject = msg.Subject
	}
	from := parsed.From
	if from == "" {
		from = msg.From
	}
	to := parsed.To
	if to == "" {
		to = msg.To
	}
	receivedAt := msg.InternalDate
	if receivedAt.IsZero() {
		receivedAt = msg.Date
	}

	doc := &models.Document{
		DocID:      index.DocumentID(w.account.ID, messageID),
		MessageID:  messageID,
		AccountID:  w.account.ID,
		Folder:     mailbox,
		FromAddr:   from,
		ToAddr:     to,
		Subject:    subject,
		BodyText:   parsed.BodyText,
		BodyHTML:   parsed.BodyHTML,
		ReceivedAt: receivedAt,
		Raw:        string(msg.Raw),
	}
	return w.gateway.Upsert(ctx, doc)
}

// handleDisconnect records the connection loss and schedules a retry
// unless a stop is already in progress
func (w *Worker) handleDisconnect(conn Client) {
	w.mu.Lock()
	w.connected = false
	w.conn = nil
	shuttingDown := w.shuttingDown
	w.mu.Unlock()

	if shuttingDown {
		return
	}

	_ = conn.Logout()
	w.scheduleReconnect()
}

// scheduleReconnect arms a timer that re-enters run after the backoff
// delay. The timer handle is retained so Stop can cancel it.
func (w *Worker) scheduleReconnect() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.shuttingDown {
		return
	}

	w.attempts++
	delay := RetryDelay(w.attempts)
	w.setStateLocked(StateReconnecting)
	w.retryTimer = time.AfterFunc(delay, w.run)

	w.logger.Info("reconnect scheduled", "attempt", w.attempts, "delay", delay)
}

// Stop marks the worker shutting down, cancels any pending reconnect and
// logs out. An in-flight backfill step finishes naturally; no further
// reconnect or resubscribe happens afterwards.
func (w *Worker) Stop() {
	w.mu.Lock()
	if w.shuttingDown {
		w.mu.Unlock()
		return
	}
	w.shuttingDown = true
	w.setStateLocked(StateShuttingDown)
	if w.retryTimer != nil {
		w.retryTimer.Stop()
		w.retryTimer = nil
	}
	conn := w.conn
	w.conn = nil
	w.connected = false
	w.mu.Unlock()

	if conn != nil {
		if err := conn.Logout(); err != nil {
			w.logger.Warn("logout failed", "error", err)
		}
	}

	w.mu.Lock()
	w.setStateLocked(StateStopped)
	w.mu.Unlock()
}

func (w *Worker) setStateLocked(s State) {
	if w.state != s {
		w.logger.Debug("state change", "from", w.state.String(), "to", s.String())
		w.state = s
	}
}

// State returns the worker's current lifecycle state
func (w *Worker) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Connected reports whether the worker holds a live connection
func (w *Worker) Connected() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.connected
}

// Attempts returns the consecutive connection failure count
func (w *Worker) Attempts() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.attempts
}

// Account returns the account snapshot the worker was started with
func (w *Worker) Account() *models.Account {
	return w.account
}

func (w *Worker) isShuttingDown() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.shuttingDown
}
