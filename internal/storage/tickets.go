// Package storage - Acknowledged ticket rows.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/veilmix-network/veilmix/internal/types"
)

// Ticket errors
var (
	ErrTicketExists   = errors.New("ticket already exists")
	ErrTicketNotFound = errors.New("ticket not found")
)

const ticketColumns = "channel_id, channel_epoch, ticket_index, amount, state, response, signature"

// InsertTicket inserts a new acknowledged ticket row inside a write
// transaction. Returns ErrTicketExists if a ticket with the same
// (channel, epoch, index) is already present.
func (s *Store) InsertTicket(tx *sql.Tx, t *types.AcknowledgedTicket) error {
	_, err := tx.Exec(`
		INSERT INTO tickets (`+ticketColumns+`, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		t.ChannelID.Bytes(), uint32(t.Epoch), t.Index, t.Amount.Bytes(),
		int(t.State), t.Response, t.Signature, time.Now().Unix(),
	)

	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
			return ErrTicketExists
		}
		return fmt.Errorf("failed to insert ticket: %w", err)
	}

	return nil
}

// ForEachTicket streams all tickets matching the selector through f, inside
// a read-only snapshot, in (channel_id, channel_epoch, ticket_index)
// ascending order. A non-nil error from f stops the scan and is returned.
func (s *Store) ForEachTicket(ctx context.Context, sel TicketSelector, f func(t *types.AcknowledgedTicket) error) error {
	if sel.MatchesNothing() {
		return nil
	}

	return s.WithReadTx(ctx, func(tx *sql.Tx) error {
		where, args := sel.whereClause()

		rows, err := tx.QueryContext(ctx, `
			SELECT `+ticketColumns+`
			FROM tickets
			WHERE `+where+`
			ORDER BY channel_id ASC, channel_epoch ASC, ticket_index ASC
		`, args...)
		if err != nil {
			return fmt.Errorf("failed to query tickets: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			t, err := scanTicket(rows)
			if err != nil {
				return err
			}
			if err := f(t); err != nil {
				return err
			}
		}

		return rows.Err()
	})
}

// GetTicket retrieves a single ticket row.
func (s *Store) GetTicket(ctx context.Context, id types.ChannelID, epoch types.Epoch, index uint64) (*types.AcknowledgedTicket, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+ticketColumns+`
		FROM tickets
		WHERE channel_id = ? AND channel_epoch = ? AND ticket_index = ?
	`, id.Bytes(), uint32(epoch), index)

	t, err := scanTicket(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTicketNotFound
	}
	if err != nil {
		return nil, err
	}

	return t, nil
}

// CountTickets returns the number of tickets matching the selector.
func (s *Store) CountTickets(ctx context.Context, sel TicketSelector) (int, error) {
	if sel.MatchesNothing() {
		return 0, nil
	}

	where, args := sel.whereClause()

	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM tickets WHERE "+where, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count tickets: %w", err)
	}

	return count, nil
}

// SetTicketStates moves all tickets matching the selector into the given
// state, inside a write transaction. Used by the redemption subsystem through
// the serialized write path. Returns the number of updated rows.
func (s *Store) SetTicketStates(tx *sql.Tx, sel TicketSelector, state types.TicketState) (int64, error) {
	if sel.MatchesNothing() {
		return 0, nil
	}

	where, args := sel.whereClause()
	args = append([]interface{}{int(state)}, args...)

	result, err := tx.Exec("UPDATE tickets SET state = ? WHERE "+where, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to update ticket states: %w", err)
	}

	return result.RowsAffected()
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTicket(row scanner) (*types.AcknowledgedTicket, error) {
	var (
		channelID []byte
		epoch     uint32
		index     uint64
		amount    []byte
		state     int
		response  []byte
		signature []byte
	)

	if err := row.Scan(&channelID, &epoch, &index, &amount, &state, &response, &signature); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan ticket: %w", err)
	}

	id, err := types.ChannelIDFromBytes(channelID)
	if err != nil {
		return nil, fmt.Errorf("corrupt channel id in ticket row: %w", err)
	}

	value, err := types.BalanceFromBytes(amount)
	if err != nil {
		return nil, fmt.Errorf("corrupt amount in ticket row: %w", err)
	}

	return &types.AcknowledgedTicket{
		ChannelID: id,
		Epoch:     types.Epoch(epoch),
		Index:     index,
		Amount:    value,
		State:     types.TicketState(state),
		Response:  response,
		Signature: signature,
	}, nil
}
