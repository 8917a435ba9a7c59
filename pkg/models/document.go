package models

import "time"

// Document represents an indexed email message
type Document struct {
	DocID      string    `db:"doc_id" json:"doc_id"`
	MessageID  string    `db:"message_id" json:"message_id"` // Email Message-ID header
	AccountID  int64     `db:"account_id" json:"account_id"` // FK to Account
	Folder     string    `db:"folder" json:"folder"`         // IMAP mailbox name
	FromAddr   string    `db:"from_addr" json:"from"`
	ToAddr     string    `db:"to_addr" json:"to"`
	Subject    string    `db:"subject" json:"subject"`
	BodyText   string    `db:"body_text" json:"body_text"`
	BodyHTML   string    `db:"body_html" json:"body_html"`
	ReceivedAt time.Time `db:"received_at" json:"received_at"`
	Labels     string    `db:"labels" json:"labels"` // JSON array of strings
	Raw        string    `db:"raw" json:"-"`         // original message source
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
