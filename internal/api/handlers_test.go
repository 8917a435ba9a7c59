package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arvales/mailindex/internal/database"
	"github.com/arvales/mailindex/internal/email"
	"github.com/arvales/mailindex/internal/index"
	"github.com/arvales/mailindex/internal/secrets"
	"github.com/arvales/mailindex/pkg/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testEnv struct {
	db       *database.DB
	registry *email.Registry
	gateway  *index.Gateway
	codec    *secrets.Codec
	router   *gin.Engine
}

// newTestEnv wires the control plane against an in-memory database and a
// dial that always fails, so workers register but never reach a server
func newTestEnv(t *testing.T, masterKey string) *testEnv {
	t.Helper()

	db, err := database.NewInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate(context.Background()))

	logger := slog.Default()
	gateway := index.NewGateway(db, logger)
	require.NoError(t, gateway.EnsureIndex(context.Background()))

	codec := secrets.NewCodec(masterKey, logger)
	registry := email.NewRegistry(email.RegistryConfig{
		Dial: func(cfg email.ClientConfig) (email.Client, error) {
			return nil, errors.New("connection refused")
		},
		Gateway:        gateway,
		Codec:          codec,
		BackfillWindow: 30 * 24 * time.Hour,
		Logger:         logger,
	})
	t.Cleanup(registry.StopAll)

	router := NewRouter(Deps{
		DB:       db,
		Registry: registry,
		Gateway:  gateway,
		Codec:    codec,
		Logger:   logger,
	})
	return &testEnv{db: db, registry: registry, gateway: gateway, codec: codec, router: router}
}

func (e *testEnv) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func validCreateBody() gin.H {
	return gin.H{
		"name":     "work",
		"host":     "mail.example.com",
		"port":     993,
		"username": "user@example.com",
		"password": "secret",
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, "master")
	rec := env.do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateAccountValidation(t *testing.T) {
	env := newTestEnv(t, "master")

	body := validCreateBody()
	delete(body, "host")
	rec := env.do(http.MethodPost, "/accounts", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateAccountStartsWorker(t *testing.T) {
	env := newTestEnv(t, "master")

	rec := env.do(http.MethodPost, "/accounts", validCreateBody())
	require.Equal(t, http.StatusCreated, rec.Code)

	var created models.Account
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.NotZero(t, created.ID)
	assert.True(t, created.Enabled)

	// Stored password is encrypted, not the plaintext
	stored, err := env.db.GetAccountByID(context.Background(), created.ID)
	require.NoError(t, err)
	assert.NotEqual(t, "secret", stored.Password)
	plain, err := env.codec.Decrypt(stored.Password)
	require.NoError(t, err)
	assert.Equal(t, "secret", plain)

	assert.True(t, env.registry.Running(created.ID))
}

func TestCreateAccountWithoutMasterKey(t *testing.T) {
	env := newTestEnv(t, "")

	rec := env.do(http.MethodPost, "/accounts", validCreateBody())
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "no master key configured")
}

func TestDisableAccountStopsWorker(t *testing.T) {
	env := newTestEnv(t, "master")

	rec := env.do(http.MethodPost, "/accounts", validCreateBody())
	require.Equal(t, http.StatusCreated, rec.Code)
	var created models.Account
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.True(t, env.registry.Running(created.ID))

	rec = env.do(http.MethodPost, fmt.Sprintf("/accounts/%d/disable", created.ID), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, env.registry.Running(created.ID))

	stored, err := env.db.GetAccountByID(context.Background(), created.ID)
	require.NoError(t, err)
	assert.False(t, stored.Enabled)
}

func TestDisableUnknownAccount(t *testing.T) {
	env := newTestEnv(t, "master")
	rec := env.do(http.MethodPost, "/accounts/999/disable", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEnableAccountRestartsWorker(t *testing.T) {
	env := newTestEnv(t, "master")

	rec := env.do(http.MethodPost, "/accounts", validCreateBody())
	require.Equal(t, http.StatusCreated, rec.Code)
	var created models.Account
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	env.do(http.MethodPost, fmt.Sprintf("/accounts/%d/disable", created.ID), nil)
	require.False(t, env.registry.Running(created.ID))

	rec = env.do(http.MethodPost, fmt.Sprintf("/accounts/%d/enable", created.ID), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.registry.Running(created.ID))
}

func TestAccountStatus(t *testing.T) {
	env := newTestEnv(t, "master")

	rec := env.do(http.MethodGet, "/accounts/42/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got struct {
		ID      int64  `json:"id"`
		Running bool   `json:"running"`
		Status  string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, int64(42), got.ID)
	assert.False(t, got.Running)
	assert.Equal(t, "stopped", got.Status)
}

func TestSearch(t *testing.T) {
	env := newTestEnv(t, "master")
	ctx := context.Background()

	require.NoError(t, env.gateway.Upsert(ctx, &models.Document{
		MessageID:  "<1@x>",
		AccountID:  1,
		Folder:     "INBOX",
		FromAddr:   "alice@example.com",
		Subject:    "quarterly report",
		BodyText:   "numbers attached",
		ReceivedAt: time.Now(),
	}))
	require.NoError(t, env.gateway.Upsert(ctx, &models.Document{
		MessageID:  "<2@x>",
		AccountID:  2,
		Folder:     "INBOX",
		FromAddr:   "bob@example.com",
		Subject:    "lunch",
		BodyText:   "tomorrow?",
		ReceivedAt: time.Now(),
	}))

	rec := env.do(http.MethodGet, "/search?q=quarterly", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got struct {
		Results []*models.Document `json:"results"`
		Count   int                `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, 1, got.Count)
	assert.Equal(t, "<1@x>", got.Results[0].MessageID)

	rec = env.do(http.MethodGet, "/search?account_id=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 1, got.Count)
}

func TestSearchBadParams(t *testing.T) {
	env := newTestEnv(t, "master")

	rec := env.do(http.MethodGet, "/search?since=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodGet, "/search?account_id=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetDocument(t *testing.T) {
	env := newTestEnv(t, "master")
	ctx := context.Background()

	doc := &models.Document{
		MessageID:  "<1@x>",
		AccountID:  1,
		Folder:     "INBOX",
		Subject:    "hello",
		ReceivedAt: time.Now(),
	}
	require.NoError(t, env.gateway.Upsert(ctx, doc))

	rec := env.do(http.MethodGet, "/documents/"+doc.DocID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got models.Document
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "hello", got.Subject)

	rec = env.do(http.MethodGet, "/documents/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
