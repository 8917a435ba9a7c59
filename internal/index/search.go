package index

import (
	"context"
	"fmt"
	"time"

	"github.com/arvales/mailindex/pkg/models"
)

// Filter narrows a search over the indexed corpus. Zero values mean
// "no constraint".
type Filter struct {
	AccountID int64
	Folder    string
	Query     string // matched against subject, from and body text
	Since     time.Time
	Limit     int
}

const defaultSearchLimit = 50

// Search returns documents matching the filter, newest first
func (g *Gateway) Search(ctx context.Context, f Filter) ([]*models.Document, error) {
	query := `SELECT * FROM email_documents WHERE 1=1`
	var args []interface{}

	if f.AccountID != 0 {
		query += ` AND account_id = ?`
		args = append(args, f.AccountID)
	}
	if f.Folder != "" {
		query += ` AND folder = ?`
		args = append(args, f.Folder)
	}
	if f.Query != "" {
		query += ` AND (subject LIKE ? OR from_addr LIKE ? OR body_text LIKE ?)`
		pattern := "%" + f.Query + "%"
		args = append(args, pattern, pattern, pattern)
	}
	if !f.Since.IsZero() {
		query += ` AND received_at >= ?`
		args = append(args, f.Since)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	query += ` ORDER BY received_at DESC LIMIT ?`
	args = append(args, limit)

	var docs []*models.Document
	if err := g.db.SelectContext(ctx, &docs, query, args...); err != nil {
		return nil, fmt.Errorf("failed to search documents: %w", err)
	}
	return docs, nil
}
