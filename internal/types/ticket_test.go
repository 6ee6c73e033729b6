package types

import (
	"crypto/rand"
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

func testTicket(t *testing.T) *AcknowledgedTicket {
	t.Helper()

	response := make([]byte, 32)
	if _, err := rand.Read(response); err != nil {
		t.Fatalf("rand.Read() error = %v", err)
	}

	var id ChannelID
	id[31] = 0x01

	return &AcknowledgedTicket{
		ChannelID: id,
		Epoch:     4,
		Index:     1,
		Amount:    NewBalance(100_000),
		Response:  response,
	}
}

func TestTicketSignVerify(t *testing.T) {
	key, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("GeneratePrivateKey() error = %v", err)
	}

	ticket := testTicket(t)
	ticket.Sign(key)

	if len(ticket.Signature) == 0 {
		t.Fatal("Sign() left signature empty")
	}

	if !ticket.VerifySignature(key.PubKey()) {
		t.Error("VerifySignature() = false for the signing key")
	}

	other, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("GeneratePrivateKey() error = %v", err)
	}
	if ticket.VerifySignature(other.PubKey()) {
		t.Error("VerifySignature() = true for a different key")
	}
}

func TestTicketDigestBindsFields(t *testing.T) {
	ticket := testTicket(t)
	base := ticket.SigningDigest()

	modified := *ticket
	modified.Index = 2
	if modified.SigningDigest() == base {
		t.Error("digest should change with the index")
	}

	modified = *ticket
	modified.Amount = NewBalance(1)
	if modified.SigningDigest() == base {
		t.Error("digest should change with the amount")
	}

	modified = *ticket
	modified.Epoch = 5
	if modified.SigningDigest() == base {
		t.Error("digest should change with the epoch")
	}
}

func TestTicketStateString(t *testing.T) {
	cases := map[TicketState]string{
		TicketStateUntouched:     "untouched",
		TicketStateBeingRedeemed: "being-redeemed",
		TicketStateRedeemed:      "redeemed",
		TicketState(99):          "unknown",
	}

	for state, want := range cases {
		if got := state.String(); got != want {
			t.Errorf("TicketState(%d).String() = %s, want %s", state, got, want)
		}
	}
}
