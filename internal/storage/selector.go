// Package storage - Ticket selection predicates.
package storage

import (
	"strings"

	"github.com/veilmix-network/veilmix/internal/types"
)

// ChannelEpoch names one channel under one epoch.
type ChannelEpoch struct {
	ChannelID types.ChannelID
	Epoch     types.Epoch
}

// TicketSelector describes a set of tickets: one or more (channel, epoch)
// pairs, an optional half-open index range [lo, hi), an optional minimum
// amount, and an optional state set. Selectors compile to the store's query
// language; scans always yield rows in (channel_id, channel_epoch,
// ticket_index) ascending order.
//
// The zero selector has an empty channel set and matches nothing.
type TicketSelector struct {
	channels  []ChannelEpoch
	indexFrom uint64
	indexTo   uint64
	hasRange  bool
	minAmount *types.Balance
	states    []types.TicketState
}

// SelectChannel returns a selector for a single (channel, epoch) pair.
func SelectChannel(id types.ChannelID, epoch types.Epoch) TicketSelector {
	return TicketSelector{channels: []ChannelEpoch{{ChannelID: id, Epoch: epoch}}}
}

// AlsoChannel returns a copy of the selector with an additional
// (channel, epoch) pair in its channel set.
func (s TicketSelector) AlsoChannel(id types.ChannelID, epoch types.Epoch) TicketSelector {
	channels := make([]ChannelEpoch, len(s.channels), len(s.channels)+1)
	copy(channels, s.channels)
	s.channels = append(channels, ChannelEpoch{ChannelID: id, Epoch: epoch})
	return s
}

// WithIndexRange restricts the selector to ticket indices in [from, to).
// An empty range (from == to) matches nothing.
func (s TicketSelector) WithIndexRange(from, to uint64) TicketSelector {
	s.indexFrom = from
	s.indexTo = to
	s.hasRange = true
	return s
}

// WithMinAmount restricts the selector to tickets of at least the given
// face-value. An unset bound behaves as zero.
func (s TicketSelector) WithMinAmount(min types.Balance) TicketSelector {
	s.minAmount = &min
	return s
}

// WithStates restricts the selector to tickets in one of the given states.
func (s TicketSelector) WithStates(states ...types.TicketState) TicketSelector {
	s.states = append([]types.TicketState(nil), states...)
	return s
}

// SingleChannel reports whether the selector names exactly one
// (channel, epoch) pair.
func (s TicketSelector) SingleChannel() bool {
	return len(s.channels) == 1
}

// Channels returns the selector's channel set.
func (s TicketSelector) Channels() []ChannelEpoch {
	return s.channels
}

// MatchesNothing reports whether the selector is degenerate: an empty
// channel set, or an empty index range.
func (s TicketSelector) MatchesNothing() bool {
	if len(s.channels) == 0 {
		return true
	}
	if s.hasRange && s.indexFrom >= s.indexTo {
		return true
	}
	return false
}

// Matches reports whether a ticket satisfies the selector.
func (s TicketSelector) Matches(t *types.AcknowledgedTicket) bool {
	if s.MatchesNothing() {
		return false
	}

	inChannelSet := false
	for _, ce := range s.channels {
		if ce.ChannelID == t.ChannelID && ce.Epoch == t.Epoch {
			inChannelSet = true
			break
		}
	}
	if !inChannelSet {
		return false
	}

	if s.hasRange && (t.Index < s.indexFrom || t.Index >= s.indexTo) {
		return false
	}

	if s.minAmount != nil && t.Amount.Cmp(*s.minAmount) < 0 {
		return false
	}

	if len(s.states) > 0 {
		inStates := false
		for _, st := range s.states {
			if st == t.State {
				inStates = true
				break
			}
		}
		if !inStates {
			return false
		}
	}

	return true
}

// whereClause lowers the selector to a SQL predicate over the tickets table.
// Degenerate selectors must be handled by the caller before lowering.
func (s TicketSelector) whereClause() (string, []interface{}) {
	var conds []string
	var args []interface{}

	channelConds := make([]string, 0, len(s.channels))
	for _, ce := range s.channels {
		channelConds = append(channelConds, "(channel_id = ? AND channel_epoch = ?)")
		args = append(args, ce.ChannelID.Bytes(), uint32(ce.Epoch))
	}
	conds = append(conds, "("+strings.Join(channelConds, " OR ")+")")

	if s.hasRange {
		conds = append(conds, "ticket_index >= ? AND ticket_index < ?")
		args = append(args, s.indexFrom, s.indexTo)
	}

	if s.minAmount != nil && !s.minAmount.IsZero() {
		// amount blobs are fixed-width big-endian, memcmp order is numeric order
		conds = append(conds, "amount >= ?")
		args = append(args, s.minAmount.Bytes())
	}

	if len(s.states) > 0 {
		placeholders := make([]string, len(s.states))
		for i, st := range s.states {
			placeholders[i] = "?"
			args = append(args, int(st))
		}
		conds = append(conds, "state IN ("+strings.Join(placeholders, ", ")+")")
	}

	return strings.Join(conds, " AND "), args
}
