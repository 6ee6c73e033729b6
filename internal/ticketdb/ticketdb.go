// Package ticketdb - Public facade over the ticket database.
package ticketdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/veilmix-network/veilmix/internal/storage"
	"github.com/veilmix-network/veilmix/internal/types"
	"github.com/veilmix-network/veilmix/pkg/logging"
)

// Defaults for Options left at zero.
const (
	DefaultQueueCapacity = 100_000
	DefaultCacheEntries  = 10_000
)

// Options configures a Manager.
type Options struct {
	// QueueCapacity bounds the ingestion FIFO.
	QueueCapacity int

	// CacheEntries bounds the unrealized-value cache.
	CacheEntries int
}

// Manager is the narrow API the rest of the node uses to work with
// acknowledged tickets: Start, Insert, UnrealizedValue, WriteTransaction,
// and a drain-on-shutdown Stop.
//
// Insert never waits on a database commit: it enqueues the ticket for the
// single persistence worker and pre-credits the unrealized-value cache by
// the face-value. Readers consult the cache first and fall through to a
// read-only transaction on miss.
type Manager struct {
	store         *storage.Store
	writeMu       *semaphore.Weighted
	cache         *unrealizedCache
	log           *logging.Logger
	queueCapacity int

	mu     sync.RWMutex
	queue  chan *types.AcknowledgedTicket
	closed bool
	done   chan struct{}
}

// NewManager creates a ticket manager over the given store. Ticket
// persistence does not run until Start is called.
func NewManager(store *storage.Store, opts Options) (*Manager, error) {
	if opts.QueueCapacity <= 0 {
		opts.QueueCapacity = DefaultQueueCapacity
	}
	if opts.CacheEntries <= 0 {
		opts.CacheEntries = DefaultCacheEntries
	}

	log := logging.GetDefault().Component("ticketdb")

	cache, err := newUnrealizedCache(store, opts.CacheEntries, log)
	if err != nil {
		return nil, err
	}

	return &Manager{
		store:         store,
		writeMu:       semaphore.NewWeighted(1),
		cache:         cache,
		log:           log,
		queueCapacity: opts.QueueCapacity,
	}, nil
}

// Start spawns the persistence worker feeding tickets from the ingestion
// queue into the store. Without it, tickets are never persisted. The
// notifier receives each ticket after its durable commit; pass nil for a
// no-op drain. A second call fails with ErrAlreadyStarted and spawns
// nothing.
func (m *Manager) Start(notifier Notifier) error {
	if notifier == nil {
		notifier = DrainNotifier()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.queue != nil {
		return ErrAlreadyStarted
	}

	m.queue = make(chan *types.AcknowledgedTicket, m.queueCapacity)
	m.done = make(chan struct{})

	go m.run(m.queue, notifier)

	m.log.Info("ticket processing started", "queue_capacity", m.queueCapacity)
	return nil
}

// Insert submits an acknowledged ticket for persistence. It never waits on a
// database commit: the ticket is enqueued with non-blocking semantics and
// the unrealized-value cache is credited by the face-value only after the
// enqueue succeeded, so a QueueFull failure leaves the cache untouched.
// When the ticket's cache entry is absent, the credit re-seeds it with a
// read of the store before returning.
//
// The credit happens before durability on purpose: a reader may briefly see
// a value above the durable truth, never below it.
func (m *Manager) Insert(ctx context.Context, t *types.AcknowledgedTicket) error {
	m.mu.RLock()
	if m.queue == nil || m.closed {
		m.mu.RUnlock()
		return ErrNotStarted
	}

	select {
	case m.queue <- t:
		m.mu.RUnlock()
	default:
		m.mu.RUnlock()
		return ErrQueueFull
	}

	if err := m.cache.Credit(ctx, t); err != nil {
		if errors.Is(err, types.ErrBalanceOverflow) {
			return fmt.Errorf("failed to credit unrealized value: %w", err)
		}
		// The ticket is already enqueued; a failed store fold only
		// leaves the entry unpopulated, and the next read resolves it.
		m.log.Error("failed to credit unrealized value",
			"channel", t.ChannelID,
			"epoch", t.Epoch,
			"index", t.Index,
			"error", err)
	}

	return nil
}

// UnrealizedValue returns the sum of face-values of all acknowledged
// tickets for the selector's single (channel, epoch). Selectors naming zero
// or several channels fail with ErrNotSingleChannel before the cache is
// touched.
func (m *Manager) UnrealizedValue(ctx context.Context, sel storage.TicketSelector) (types.Balance, error) {
	if !sel.SingleChannel() {
		return types.Balance{}, ErrNotSingleChannel
	}

	ce := sel.Channels()[0]
	return m.cache.GetOrCompute(ctx, cacheKey{channel: ce.ChannelID, epoch: ce.Epoch})
}

// WriteTransaction runs f inside a write transaction under the process-wide
// write lock. External collaborators (redemption, chain resync) use it to
// make multi-statement writes without fighting the ingestion path for the
// store's internal lock. The transaction is committed if f returns nil and
// rolled back otherwise; cancellation while waiting for the lock returns
// the context error.
func (m *Manager) WriteTransaction(ctx context.Context, f func(tx *sql.Tx) error) error {
	if err := m.writeMu.Acquire(ctx, 1); err != nil {
		return err
	}
	defer m.writeMu.Release(1)

	tx, err := m.store.BeginWrite(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin write transaction: %w", err)
	}

	if err := f(tx); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit()
}

// Invalidate drops the cached unrealized value for one (channel, epoch).
func (m *Manager) Invalidate(id types.ChannelID, epoch types.Epoch) {
	m.cache.Invalidate(cacheKey{channel: id, epoch: epoch})
}

// InvalidateChannel drops all cached unrealized values of a channel. Called
// when the channel's epoch advances or on explicit resynchronization.
func (m *Manager) InvalidateChannel(id types.ChannelID) {
	m.cache.InvalidateChannel(id)
}

// Store exposes the underlying ticket store for read paths.
func (m *Manager) Store() *storage.Store {
	return m.store
}

// Stop closes the ingestion queue and waits for the worker to drain the
// remaining tickets. Restart within the same process is not supported.
func (m *Manager) Stop() {
	m.mu.Lock()
	if m.queue == nil || m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	close(m.queue)
	done := m.done
	m.mu.Unlock()

	<-done
}
