package types

import (
	"encoding/binary"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"golang.org/x/crypto/blake2b"
)

// TicketState tracks where a persisted ticket is in its redemption lifecycle.
// The ingestion path only ever writes TicketStateUntouched; the redemption
// subsystem moves tickets through the remaining states.
type TicketState int

const (
	TicketStateUntouched     TicketState = 0
	TicketStateBeingRedeemed TicketState = 1
	TicketStateRedeemed      TicketState = 2
)

// String implements fmt.Stringer.
func (s TicketState) String() string {
	switch s {
	case TicketStateUntouched:
		return "untouched"
	case TicketStateBeingRedeemed:
		return "being-redeemed"
	case TicketStateRedeemed:
		return "redeemed"
	default:
		return "unknown"
	}
}

// AcknowledgedTicket is a per-hop payment artifact confirmed as winning by
// the upstream acknowledgment pipeline. It is immutable once produced: the
// database persists it, aggregates it, and hands it to the notifier, but
// never alters it. The cryptographic material (Response, Signature) is
// opaque to the database.
type AcknowledgedTicket struct {
	ChannelID ChannelID
	Epoch     Epoch
	Index     uint64
	Amount    Balance
	State     TicketState

	// Response is the challenge response proving acknowledgment.
	Response []byte

	// Signature is the issuer's signature over the ticket digest.
	Signature []byte
}

// SigningDigest returns the blake2b digest the issuer signs: channel id,
// epoch, index, amount and challenge response in fixed-width big-endian
// layout.
func (t *AcknowledgedTicket) SigningDigest() [32]byte {
	buf := make([]byte, 0, ChannelIDLength+4+8+BalanceLength+len(t.Response))
	buf = append(buf, t.ChannelID[:]...)
	buf = binary.BigEndian.AppendUint32(buf, uint32(t.Epoch))
	buf = binary.BigEndian.AppendUint64(buf, t.Index)
	buf = append(buf, t.Amount.Bytes()...)
	buf = append(buf, t.Response...)
	return blake2b.Sum256(buf)
}

// Sign sets the ticket's issuer signature. Used by the upstream pipeline and
// by tests that fabricate tickets.
func (t *AcknowledgedTicket) Sign(key *secp256k1.PrivateKey) {
	digest := t.SigningDigest()
	t.Signature = ecdsa.SignCompact(key, digest[:], true)
}

// VerifySignature reports whether the ticket's signature was produced by the
// given issuer key. The database itself never calls this; signature validity
// is established upstream.
func (t *AcknowledgedTicket) VerifySignature(issuer *secp256k1.PublicKey) bool {
	digest := t.SigningDigest()
	recovered, _, err := ecdsa.RecoverCompact(t.Signature, digest[:])
	if err != nil {
		return false
	}
	return recovered.IsEqual(issuer)
}
