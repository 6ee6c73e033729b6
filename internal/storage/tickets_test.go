package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/veilmix-network/veilmix/internal/types"
)

func TestInsertAndGetTicket(t *testing.T) {
	store := newTestStore(t)
	channel := testChannelID(0x01)

	ticket := makeTicket(t, channel, 4, 1, 100_000)
	insertTicket(t, store, ticket)

	got, err := store.GetTicket(context.Background(), channel, 4, 1)
	if err != nil {
		t.Fatalf("GetTicket() error = %v", err)
	}

	if got.ChannelID != ticket.ChannelID || got.Epoch != ticket.Epoch || got.Index != ticket.Index {
		t.Errorf("GetTicket() key mismatch: got (%s, %d, %d)", got.ChannelID, got.Epoch, got.Index)
	}
	if !got.Amount.Equal(ticket.Amount) {
		t.Errorf("Amount = %s, want %s", got.Amount, ticket.Amount)
	}
	if string(got.Response) != string(ticket.Response) {
		t.Error("Response bytes do not round-trip")
	}
	if string(got.Signature) != string(ticket.Signature) {
		t.Error("Signature bytes do not round-trip")
	}
}

func TestGetTicketNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetTicket(context.Background(), testChannelID(0x01), 4, 99)
	if !errors.Is(err, ErrTicketNotFound) {
		t.Errorf("GetTicket() error = %v, want ErrTicketNotFound", err)
	}
}

func TestInsertDuplicateTicket(t *testing.T) {
	store := newTestStore(t)
	channel := testChannelID(0x01)

	ticket := makeTicket(t, channel, 4, 1, 100_000)
	insertTicket(t, store, ticket)

	tx, err := store.BeginWrite(context.Background())
	if err != nil {
		t.Fatalf("BeginWrite() error = %v", err)
	}
	defer tx.Rollback()

	err = store.InsertTicket(tx, makeTicket(t, channel, 4, 1, 50_000))
	if !errors.Is(err, ErrTicketExists) {
		t.Errorf("InsertTicket() duplicate error = %v, want ErrTicketExists", err)
	}
}

func TestForEachTicketOrder(t *testing.T) {
	store := newTestStore(t)
	channel := testChannelID(0x01)

	// Insert out of order; the scan must yield ascending indices.
	for _, index := range []uint64{3, 1, 2} {
		insertTicket(t, store, makeTicket(t, channel, 4, index, 10_000))
	}

	var indices []uint64
	err := store.ForEachTicket(context.Background(), SelectChannel(channel, 4), func(ticket *types.AcknowledgedTicket) error {
		indices = append(indices, ticket.Index)
		return nil
	})
	if err != nil {
		t.Fatalf("ForEachTicket() error = %v", err)
	}

	if len(indices) != 3 {
		t.Fatalf("scan returned %d tickets, want 3", len(indices))
	}
	for i, index := range indices {
		if index != uint64(i+1) {
			t.Errorf("indices = %v, want ascending 1..3", indices)
			break
		}
	}
}

func TestForEachTicketScopesByEpoch(t *testing.T) {
	store := newTestStore(t)
	channel := testChannelID(0x01)

	insertTicket(t, store, makeTicket(t, channel, 3, 1, 10_000))
	insertTicket(t, store, makeTicket(t, channel, 4, 1, 20_000))

	count := 0
	err := store.ForEachTicket(context.Background(), SelectChannel(channel, 4), func(ticket *types.AcknowledgedTicket) error {
		count++
		if ticket.Epoch != 4 {
			t.Errorf("scan leaked epoch %d ticket", ticket.Epoch)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("ForEachTicket() error = %v", err)
	}
	if count != 1 {
		t.Errorf("scan returned %d tickets, want 1", count)
	}
}

func TestSelectorDegenerateCases(t *testing.T) {
	store := newTestStore(t)
	channel := testChannelID(0x01)
	insertTicket(t, store, makeTicket(t, channel, 4, 1, 10_000))

	// Empty channel set matches nothing.
	count, err := store.CountTickets(context.Background(), TicketSelector{})
	if err != nil {
		t.Fatalf("CountTickets() error = %v", err)
	}
	if count != 0 {
		t.Errorf("empty selector matched %d tickets, want 0", count)
	}

	// Empty index range [1, 1) matches nothing.
	sel := SelectChannel(channel, 4).WithIndexRange(1, 1)
	count, err = store.CountTickets(context.Background(), sel)
	if err != nil {
		t.Fatalf("CountTickets() error = %v", err)
	}
	if count != 0 {
		t.Errorf("empty index range matched %d tickets, want 0", count)
	}
}

func TestSelectorIndexRange(t *testing.T) {
	store := newTestStore(t)
	channel := testChannelID(0x01)

	for index := uint64(1); index <= 5; index++ {
		insertTicket(t, store, makeTicket(t, channel, 4, index, 10_000))
	}

	// Half-open [2, 4) selects indices 2 and 3.
	sel := SelectChannel(channel, 4).WithIndexRange(2, 4)
	var indices []uint64
	err := store.ForEachTicket(context.Background(), sel, func(ticket *types.AcknowledgedTicket) error {
		indices = append(indices, ticket.Index)
		return nil
	})
	if err != nil {
		t.Fatalf("ForEachTicket() error = %v", err)
	}

	if len(indices) != 2 || indices[0] != 2 || indices[1] != 3 {
		t.Errorf("indices = %v, want [2 3]", indices)
	}
}

func TestSelectorMinAmount(t *testing.T) {
	store := newTestStore(t)
	channel := testChannelID(0x01)

	insertTicket(t, store, makeTicket(t, channel, 4, 1, 10_000))
	insertTicket(t, store, makeTicket(t, channel, 4, 2, 50_000))

	sel := SelectChannel(channel, 4).WithMinAmount(types.NewBalance(20_000))
	count, err := store.CountTickets(context.Background(), sel)
	if err != nil {
		t.Fatalf("CountTickets() error = %v", err)
	}
	if count != 1 {
		t.Errorf("min amount selector matched %d tickets, want 1", count)
	}
}

func TestSelectorMultipleChannels(t *testing.T) {
	store := newTestStore(t)
	first := testChannelID(0x01)
	second := testChannelID(0x02)

	insertTicket(t, store, makeTicket(t, first, 4, 1, 10_000))
	insertTicket(t, store, makeTicket(t, second, 2, 1, 10_000))
	insertTicket(t, store, makeTicket(t, second, 3, 1, 10_000))

	sel := SelectChannel(first, 4).AlsoChannel(second, 3)
	if sel.SingleChannel() {
		t.Error("two-channel selector reported SingleChannel")
	}

	count, err := store.CountTickets(context.Background(), sel)
	if err != nil {
		t.Fatalf("CountTickets() error = %v", err)
	}
	if count != 2 {
		t.Errorf("selector matched %d tickets, want 2", count)
	}
}

func TestSetTicketStates(t *testing.T) {
	store := newTestStore(t)
	channel := testChannelID(0x01)

	insertTicket(t, store, makeTicket(t, channel, 4, 1, 10_000))
	insertTicket(t, store, makeTicket(t, channel, 4, 2, 10_000))

	tx, err := store.BeginWrite(context.Background())
	if err != nil {
		t.Fatalf("BeginWrite() error = %v", err)
	}
	updated, err := store.SetTicketStates(tx, SelectChannel(channel, 4), types.TicketStateBeingRedeemed)
	if err != nil {
		tx.Rollback()
		t.Fatalf("SetTicketStates() error = %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	if updated != 2 {
		t.Errorf("SetTicketStates() updated = %d, want 2", updated)
	}

	sel := SelectChannel(channel, 4).WithStates(types.TicketStateBeingRedeemed)
	count, err := store.CountTickets(context.Background(), sel)
	if err != nil {
		t.Fatalf("CountTickets() error = %v", err)
	}
	if count != 2 {
		t.Errorf("state selector matched %d tickets, want 2", count)
	}
}

func TestSelectorMatches(t *testing.T) {
	channel := testChannelID(0x01)
	ticket := &types.AcknowledgedTicket{
		ChannelID: channel,
		Epoch:     4,
		Index:     2,
		Amount:    types.NewBalance(10_000),
		State:     types.TicketStateUntouched,
	}

	if !SelectChannel(channel, 4).Matches(ticket) {
		t.Error("single-channel selector should match its own ticket")
	}
	if SelectChannel(channel, 5).Matches(ticket) {
		t.Error("selector should not match a different epoch")
	}
	if SelectChannel(channel, 4).WithIndexRange(3, 10).Matches(ticket) {
		t.Error("selector should not match outside the index range")
	}
	if SelectChannel(channel, 4).WithMinAmount(types.NewBalance(20_000)).Matches(ticket) {
		t.Error("selector should not match below the amount bound")
	}
	if SelectChannel(channel, 4).WithStates(types.TicketStateRedeemed).Matches(ticket) {
		t.Error("selector should not match outside the state set")
	}
	if (TicketSelector{}).Matches(ticket) {
		t.Error("empty selector should match nothing")
	}
}
