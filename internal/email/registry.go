package email

import (
	"log/slog"
	"sync"
	"time"

	"github.com/arvales/mailindex/internal/index"
	"github.com/arvales/mailindex/internal/secrets"
	"github.com/arvales/mailindex/pkg/models"
)

// RegistryConfig configures the worker registry
type RegistryConfig struct {
	Dial           DialFunc
	Gateway        *index.Gateway
	Codec          *secrets.Codec
	BackfillWindow time.Duration
	DialTimeout    time.Duration
	Logger         *slog.Logger
}

// Registry owns the account-id to worker mapping and is the single source
// of truth for "is this account's worker running". At most one worker
// exists per account id.
type Registry struct {
	workers map[int64]*Worker
	mu      sync.RWMutex

	dial           DialFunc
	gateway        *index.Gateway
	codec          *secrets.Codec
	backfillWindow time.Duration
	dialTimeout    time.Duration
	logger         *slog.Logger
}

// NewRegistry creates an empty worker registry
func NewRegistry(cfg RegistryConfig) *Registry {
	return &Registry{
		workers:        make(map[int64]*Worker),
		dial:           cfg.Dial,
		gateway:        cfg.Gateway,
		codec:          cfg.Codec,
		backfillWindow: cfg.BackfillWindow,
		dialTimeout:    cfg.DialTimeout,
		logger:         cfg.Logger.With("component", "registry"),
	}
}

// Start registers a worker for the account and begins connecting
// asynchronously. A start for an already-running account is a no-op.
func (r *Registry) Start(account *models.Account) {
	r.mu.Lock()
	if _, exists := r.workers[account.ID]; exists {
		r.mu.Unlock()
		r.logger.Info("worker already running", "account_id", account.ID)
		return
	}

	worker := NewWorker(WorkerConfig{
		Account:        account,
		Password:       r.codec.DecryptOrPlaintext(account.Password),
		Dial:           r.dial,
		Gateway:        r.gateway,
		BackfillWindow: r.backfillWindow,
		DialTimeout:    r.dialTimeout,
		Logger:         r.logger,
	})
	r.workers[account.ID] = worker
	r.mu.Unlock()

	worker.Start()
	r.logger.Info("started worker", "account_id", account.ID, "name", account.Name)
}

// Stop stops the account's worker and removes it from the registry.
// A stop for an unregistered account id is a no-op.
func (r *Registry) Stop(accountID int64) {
	r.mu.Lock()
	worker, exists := r.workers[accountID]
	r.mu.Unlock()

	if !exists {
		return
	}

	worker.Stop()

	r.mu.Lock()
	delete(r.workers, accountID)
	r.mu.Unlock()

	r.logger.Info("stopped worker", "account_id", accountID)
}

// StartAll starts a worker for every account. Individual failures do not
// prevent starting the rest.
func (r *Registry) StartAll(accounts []*models.Account) {
	r.logger.Info("starting workers", "count", len(accounts))
	for _, account := range accounts {
		r.Start(account)
	}
}

// StopAll stops every registered worker
func (r *Registry) StopAll() {
	r.mu.Lock()
	workers := make([]*Worker, 0, len(r.workers))
	ids := make([]int64, 0, len(r.workers))
	for id, w := range r.workers {
		workers = append(workers, w)
		ids = append(ids, id)
	}
	r.mu.Unlock()

	for _, w := range workers {
		w.Stop()
	}

	r.mu.Lock()
	for _, id := range ids {
		delete(r.workers, id)
	}
	r.mu.Unlock()

	r.logger.Info("all workers stopped")
}

// Running reports whether a worker is registered for the account id
func (r *Registry) Running(accountID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.workers[accountID]
	return exists
}

// Status returns a human-readable status for the account's worker
func (r *Registry) Status(accountID int64) string {
	r.mu.RLock()
	worker, exists := r.workers[accountID]
	r.mu.RUnlock()

	if !exists {
		return "stopped"
	}
	return worker.State().String()
}
