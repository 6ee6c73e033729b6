// Package storage - Per-channel ticket statistics and the rejection audit log.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/veilmix-network/veilmix/internal/types"
)

// IncrementWinningCount bumps the winning-ticket counter for a channel by
// one inside a write transaction, creating the statistics row if absent.
// Called in the same transaction as the corresponding ticket insert so that
// the two are one atomic commit.
func (s *Store) IncrementWinningCount(tx *sql.Tx, id types.ChannelID) error {
	now := time.Now().Unix()

	_, err := tx.Exec(`
		INSERT INTO ticket_statistics (channel_id, winning_tickets, updated_at)
		VALUES (?, 1, ?)
		ON CONFLICT(channel_id) DO UPDATE SET
			winning_tickets = winning_tickets + 1,
			updated_at = excluded.updated_at
	`, id.Bytes(), now)

	if err != nil {
		return fmt.Errorf("failed to increment winning count: %w", err)
	}

	return nil
}

// AddRedeemedCount bumps the redeemed-ticket counter inside a write
// transaction. Written by the redemption subsystem through the serialized
// write path.
func (s *Store) AddRedeemedCount(tx *sql.Tx, id types.ChannelID, n uint64) error {
	now := time.Now().Unix()

	_, err := tx.Exec(`
		INSERT INTO ticket_statistics (channel_id, redeemed_tickets, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(channel_id) DO UPDATE SET
			redeemed_tickets = redeemed_tickets + excluded.redeemed_tickets,
			updated_at = excluded.updated_at
	`, id.Bytes(), n, now)

	if err != nil {
		return fmt.Errorf("failed to add redeemed count: %w", err)
	}

	return nil
}

// AddRejectedCount bumps the rejected-ticket counter outside the main insert
// path. Best-effort bookkeeping for discarded tickets.
func (s *Store) AddRejectedCount(ctx context.Context, id types.ChannelID, n uint64) error {
	now := time.Now().Unix()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ticket_statistics (channel_id, rejected_tickets, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(channel_id) DO UPDATE SET
			rejected_tickets = rejected_tickets + excluded.rejected_tickets,
			updated_at = excluded.updated_at
	`, id.Bytes(), n, now)

	if err != nil {
		return fmt.Errorf("failed to add rejected count: %w", err)
	}

	return nil
}

// GetStatistics returns the statistics row for a channel. A channel with no
// recorded activity yields a zero-valued row.
func (s *Store) GetStatistics(ctx context.Context, id types.ChannelID) (*types.TicketStatistics, error) {
	stats := &types.TicketStatistics{ChannelID: id}

	var updatedAt int64
	err := s.db.QueryRowContext(ctx, `
		SELECT winning_tickets, redeemed_tickets, rejected_tickets, updated_at
		FROM ticket_statistics
		WHERE channel_id = ?
	`, id.Bytes()).Scan(&stats.WinningTickets, &stats.RedeemedTickets, &stats.RejectedTickets, &updatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return stats, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ticket statistics: %w", err)
	}

	stats.UpdatedAt = time.Unix(updatedAt, 0)
	return stats, nil
}

// RecordRejection appends an audit row for a ticket the persistence worker
// had to discard.
func (s *Store) RecordRejection(ctx context.Context, t *types.AcknowledgedTicket, reason string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ticket_rejections (id, channel_id, channel_epoch, ticket_index, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, uuid.NewString(), t.ChannelID.Bytes(), uint32(t.Epoch), t.Index, reason, time.Now().Unix())

	if err != nil {
		return fmt.Errorf("failed to record ticket rejection: %w", err)
	}

	return nil
}

// CountRejections returns the number of audit rows recorded for a channel.
func (s *Store) CountRejections(ctx context.Context, id types.ChannelID) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM ticket_rejections WHERE channel_id = ?
	`, id.Bytes()).Scan(&count)

	if err != nil {
		return 0, fmt.Errorf("failed to count ticket rejections: %w", err)
	}

	return count, nil
}
