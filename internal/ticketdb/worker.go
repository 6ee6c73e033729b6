// Package ticketdb - The single persistence worker draining the ingestion queue.
package ticketdb

import (
	"context"
	"fmt"

	"github.com/veilmix-network/veilmix/internal/types"
)

// run is the persistence worker loop. Exactly one instance exists per
// started manager. Each ticket is written together with its statistics
// update in one transaction under the write lock, then emitted on the
// notifier. Per-ticket failures are logged and the ticket discarded; the
// worker itself never exits on them. The loop terminates once the queue is
// closed and drained.
func (m *Manager) run(queue <-chan *types.AcknowledgedTicket, notifier Notifier) {
	defer close(m.done)

	log := m.log.Component("ticket-worker")
	ctx := context.Background()

	for t := range queue {
		if err := m.persistTicket(ctx, t); err != nil {
			log.Error("failed to persist acknowledged ticket",
				"channel", t.ChannelID,
				"epoch", t.Epoch,
				"index", t.Index,
				"error", err)
			m.recordRejection(ctx, t, err)
			continue
		}

		log.Debug("ticket persisted into the ticket db",
			"channel", t.ChannelID,
			"epoch", t.Epoch,
			"index", t.Index,
			"amount", t.Amount)

		// The send may block on a slow consumer; that back-pressure is
		// what paces ingestion.
		if err := notifier.Send(ctx, t); err != nil {
			log.Error("failed to notify about persisted ticket",
				"channel", t.ChannelID,
				"index", t.Index,
				"error", err)
		}
	}

	log.Info("ticket processing finished")
}

// persistTicket writes the ticket row and the winning-count increment as one
// atomic commit, holding the write lock for the duration of the transaction.
// Contending for the lock per ticket keeps other node writers from starving
// behind a saturated ingestion queue.
func (m *Manager) persistTicket(ctx context.Context, t *types.AcknowledgedTicket) error {
	if err := m.writeMu.Acquire(ctx, 1); err != nil {
		return err
	}
	defer m.writeMu.Release(1)

	tx, err := m.store.BeginWrite(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin ticket insert transaction: %w", err)
	}

	if err := m.store.InsertTicket(tx, t); err != nil {
		tx.Rollback()
		return err
	}

	if err := m.store.IncrementWinningCount(tx, t.ChannelID); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit()
}

// recordRejection leaves a best-effort audit trail for a discarded ticket,
// written under the write lock like every other store write.
// The unrealized-value cache is left alone: the transient over-credit is
// accepted drift, cleared on eviction or invalidation.
func (m *Manager) recordRejection(ctx context.Context, t *types.AcknowledgedTicket, cause error) {
	if err := m.writeMu.Acquire(ctx, 1); err != nil {
		m.log.Warn("failed to acquire write lock for ticket rejection", "error", err)
		return
	}
	defer m.writeMu.Release(1)

	if err := m.store.RecordRejection(ctx, t, cause.Error()); err != nil {
		m.log.Warn("failed to record ticket rejection", "error", err)
	}
	if err := m.store.AddRejectedCount(ctx, t.ChannelID, 1); err != nil {
		m.log.Warn("failed to bump rejected ticket count", "error", err)
	}
}
