package types

import "time"

// TicketStatistics is the per-channel aggregate row maintained alongside
// ticket inserts. WinningTickets is incremented by the ingestion pipeline in
// the same transaction as each insert; RejectedTickets is bumped by the
// persistence worker when it discards a ticket; RedeemedTickets is written by
// external collaborators through the shared write path.
type TicketStatistics struct {
	ChannelID       ChannelID
	WinningTickets  uint64
	RedeemedTickets uint64
	RejectedTickets uint64
	UpdatedAt       time.Time
}
