package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/arvales/mailindex/internal/database"
	"github.com/arvales/mailindex/internal/email"
	"github.com/arvales/mailindex/internal/index"
	"github.com/arvales/mailindex/internal/secrets"
	"github.com/arvales/mailindex/pkg/models"
)

type handler struct {
	db       *database.DB
	registry *email.Registry
	gateway  *index.Gateway
	codec    *secrets.Codec
	logger   *slog.Logger
}

func newHandler(deps Deps) *handler {
	return &handler{
		db:       deps.DB,
		registry: deps.Registry,
		gateway:  deps.Gateway,
		codec:    deps.Codec,
		logger:   deps.Logger.With("component", "api"),
	}
}

func (h *handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// CreateAccountRequest is the payload for POST /accounts
type CreateAccountRequest struct {
	Name     string `json:"name" binding:"required"`
	Host     string `json:"host" binding:"required"`
	Port     int    `json:"port"`
	Secure   *bool  `json:"secure"`
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *handler) createAccount(c *gin.Context) {
	var req CreateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	encrypted, err := h.codec.Encrypt(req.Password)
	if err != nil {
		if errors.Is(err, secrets.ErrNoMasterKey) {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "no master key configured"})
			return
		}
		h.logger.Error("failed to encrypt password", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to encrypt password"})
		return
	}

	secure := true
	if req.Secure != nil {
		secure = *req.Secure
	}

	account := &models.Account{
		Name:     req.Name,
		Host:     req.Host,
		Port:     req.Port,
		Secure:   secure,
		Username: req.Username,
		Password: encrypted,
		Enabled:  true,
	}
	if err := h.db.CreateAccount(c.Request.Context(), account); err != nil {
		h.logger.Error("failed to create account", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create account"})
		return
	}

	h.registry.Start(account)

	c.JSON(http.StatusCreated, account)
}

func (h *handler) listAccounts(c *gin.Context) {
	accounts, err := h.db.ListAccounts(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to list accounts", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list accounts"})
		return
	}
	if accounts == nil {
		accounts = []*models.Account{}
	}
	c.JSON(http.StatusOK, accounts)
}

func (h *handler) disableAccount(c *gin.Context) {
	id, ok := h.accountID(c)
	if !ok {
		return
	}

	if err := h.db.SetAccountEnabled(c.Request.Context(), id, false); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "account not found"})
			return
		}
		h.logger.Error("failed to disable account", "account_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to disable account"})
		return
	}

	h.registry.Stop(id)

	c.JSON(http.StatusOK, gin.H{"id": id, "enabled": false})
}

func (h *handler) enableAccount(c *gin.Context) {
	id, ok := h.accountID(c)
	if !ok {
		return
	}

	if err := h.db.SetAccountEnabled(c.Request.Context(), id, true); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "account not found"})
			return
		}
		h.logger.Error("failed to enable account", "account_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to enable account"})
		return
	}

	account, err := h.db.GetAccountByID(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("failed to load account", "account_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load account"})
		return
	}

	h.registry.Start(account)

	c.JSON(http.StatusOK, gin.H{"id": id, "enabled": true})
}

func (h *handler) deleteAccount(c *gin.Context) {
	id, ok := h.accountID(c)
	if !ok {
		return
	}

	h.registry.Stop(id)

	if err := h.db.DeleteAccount(c.Request.Context(), id); err != nil {
		h.logger.Error("failed to delete account", "account_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete account"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"id": id, "deleted": true})
}

func (h *handler) accountStatus(c *gin.Context) {
	id, ok := h.accountID(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":      id,
		"running": h.registry.Running(id),
		"status":  h.registry.Status(id),
	})
}

func (h *handler) search(c *gin.Context) {
	filter := index.Filter{
		Folder: c.Query("folder"),
		Query:  c.Query("q"),
	}

	if v := c.Query("account_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid account_id"})
			return
		}
		filter.AccountID = id
	}
	if v := c.Query("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid since, expected RFC 3339"})
			return
		}
		filter.Since = since
	}
	if v := c.Query("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		filter.Limit = limit
	}

	docs, err := h.gateway.Search(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("search failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "search failed"})
		return
	}
	if docs == nil {
		docs = []*models.Document{}
	}
	c.JSON(http.StatusOK, gin.H{"results": docs, "count": len(docs)})
}

func (h *handler) getDocument(c *gin.Context) {
	doc, err := h.gateway.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, index.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "document not found"})
			return
		}
		h.logger.Error("failed to get document", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get document"})
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (h *handler) accountID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid account id"})
		return 0, false
	}
	return id, true
}
