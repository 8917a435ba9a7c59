package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arvales/mailindex/pkg/models"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate(context.Background()))
	return db
}

func testAccount(name string) *models.Account {
	return &models.Account{
		Name:     name,
		Host:     "mail.example.com",
		Port:     993,
		Secure:   true,
		Username: name + "@example.com",
		Password: "secret",
		Enabled:  true,
	}
}

func TestCreateAndGetAccount(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	account := testAccount("work")
	require.NoError(t, db.CreateAccount(ctx, account))
	assert.NotZero(t, account.ID)
	assert.False(t, account.CreatedAt.IsZero())

	got, err := db.GetAccountByID(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, "work", got.Name)
	assert.Equal(t, "mail.example.com", got.Host)
	assert.Equal(t, 993, got.Port)
	assert.True(t, got.Secure)
	assert.Equal(t, "work@example.com", got.Username)
	assert.True(t, got.Enabled)
}

func TestGetAccountNotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.GetAccountByID(context.Background(), 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListEnabledAccounts(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	enabled := testAccount("on")
	require.NoError(t, db.CreateAccount(ctx, enabled))

	disabled := testAccount("off")
	disabled.Enabled = false
	require.NoError(t, db.CreateAccount(ctx, disabled))

	all, err := db.ListAccounts(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	active, err := db.ListEnabledAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "on", active[0].Name)
}

func TestSetAccountEnabled(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	account := testAccount("toggle")
	require.NoError(t, db.CreateAccount(ctx, account))

	require.NoError(t, db.SetAccountEnabled(ctx, account.ID, false))

	got, err := db.GetAccountByID(ctx, account.ID)
	require.NoError(t, err)
	assert.False(t, got.Enabled)

	assert.ErrorIs(t, db.SetAccountEnabled(ctx, 999, true), ErrNotFound)
}

func TestDeleteAccount(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	account := testAccount("gone")
	require.NoError(t, db.CreateAccount(ctx, account))
	require.NoError(t, db.DeleteAccount(ctx, account.ID))

	_, err := db.GetAccountByID(ctx, account.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
