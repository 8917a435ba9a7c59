package models

import (
	"strconv"
	"time"
)

// Account represents a configured mail source
type Account struct {
	ID        int64     `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Host      string    `db:"host" json:"host"`
	Port      int       `db:"port" json:"port"`
	Secure    bool      `db:"secure" json:"secure"` // connect with TLS
	Username  string    `db:"username" json:"username"`
	Password  string    `db:"password" json:"-"` // encrypted token, or legacy plaintext
	Enabled   bool      `db:"enabled" json:"enabled"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Addr returns the host:port address of the account's IMAP server
func (a *Account) Addr() string {
	port := a.Port
	if port == 0 {
		if a.Secure {
			port = 993
		} else {
			port = 143
		}
	}
	return a.Host + ":" + strconv.Itoa(port)
}
