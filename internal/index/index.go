package index

import (
	"context"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strconv"
	"time"

	"github.com/arvales/mailindex/internal/database"
	"github.com/arvales/mailindex/pkg/models"
)

// ErrNotFound is returned when a document is not found
var ErrNotFound = errors.New("document not found")

// Gateway deduplicates and stores email documents. It owns the
// email_documents table; every worker shares one Gateway and the per-id
// upsert makes the final state convergent regardless of interleaving.
type Gateway struct {
	db     *database.DB
	logger *slog.Logger
}

// NewGateway creates a new index gateway
func NewGateway(db *database.DB, logger *slog.Logger) *Gateway {
	return &Gateway{
		db:     db,
		logger: logger.With("component", "index"),
	}
}

const documentSchema = `
CREATE TABLE IF NOT EXISTS email_documents (
    doc_id TEXT PRIMARY KEY,
    message_id TEXT NOT NULL,
    account_id INTEGER NOT NULL,
    folder TEXT NOT NULL,
    from_addr TEXT,
    to_addr TEXT,
    subject TEXT,
    body_text TEXT,
    body_html TEXT,
    received_at DATETIME,
    labels TEXT DEFAULT '[]',
    raw TEXT,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_documents_account ON email_documents(account_id);
CREATE INDEX IF NOT EXISTS idx_documents_folder ON email_documents(account_id, folder);
CREATE INDEX IF NOT EXISTS idx_documents_received ON email_documents(received_at);
`

// EnsureIndex creates the backing table if absent. Idempotent; called once
// at process start before any worker starts.
func (g *Gateway) EnsureIndex(ctx context.Context) error {
	if _, err := g.db.ExecContext(ctx, documentSchema); err != nil {
		return fmt.Errorf("failed to ensure index: %w", err)
	}
	return nil
}

// DocumentID derives the stable document identity for an (account, message)
// pair. The message id is base64url-encoded so folder separators and other
// header punctuation never leak into the key.
func DocumentID(accountID int64, messageID string) string {
	if messageID == "" {
		// Never derive identity from an empty string
		messageID = fmt.Sprintf("empty-%d-%s", time.Now().UnixMilli(), strconv.FormatFloat(rand.Float64(), 'f', -1, 64))
	}
	return fmt.Sprintf("%d_%s", accountID, base64.URLEncoding.EncodeToString([]byte(messageID)))
}

// Exists reports whether a document for (accountID, messageID) is already
// indexed. A query failure is reported as "not seen": re-indexing a
// duplicate is preferred over silently losing a message.
func (g *Gateway) Exists(ctx context.Context, accountID int64, messageID string) bool {
	docID := DocumentID(accountID, messageID)
	var n int
	err := g.db.GetContext(ctx, &n, `SELECT COUNT(1) FROM email_documents WHERE doc_id = ?`, docID)
	if err != nil {
		g.logger.Error("existence check failed", "doc_id", docID, "error", err)
		return false
	}
	return n > 0
}

// Upsert writes a document at its computed id, overwriting any previous
// version (last-write-wins)
func (g *Gateway) Upsert(ctx context.Context, doc *models.Document) error {
	if doc.DocID == "" {
		doc.DocID = DocumentID(doc.AccountID, doc.MessageID)
	}
	if doc.Labels == "" {
		doc.Labels = "[]"
	}
	query := `
		INSERT INTO email_documents (doc_id, message_id, account_id, folder, from_addr, to_addr, subject, body_text, body_html, received_at, labels, raw, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(doc_id) DO UPDATE SET
			message_id = excluded.message_id,
			folder = excluded.folder,
			from_addr = excluded.from_addr,
			to_addr = excluded.to_addr,
			subject = excluded.subject,
			body_text = excluded.body_text,
			body_html = excluded.body_html,
			received_at = excluded.received_at,
			labels = excluded.labels,
			raw = excluded.raw
	`
	_, err := g.db.ExecContext(ctx, query,
		doc.DocID,
		doc.MessageID,
		doc.AccountID,
		doc.Folder,
		doc.FromAddr,
		doc.ToAddr,
		doc.Subject,
		doc.BodyText,
		doc.BodyHTML,
		doc.ReceivedAt,
		doc.Labels,
		doc.Raw,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert document: %w", err)
	}
	return nil
}

// Get returns a document by its id
func (g *Gateway) Get(ctx context.Context, docID string) (*models.Document, error) {
	var doc models.Document
	err := g.db.GetContext(ctx, &doc, `SELECT * FROM email_documents WHERE doc_id = ?`, docID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return &doc, nil
}
