package types

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ChannelIDLength is the size of a channel identifier in bytes.
const ChannelIDLength = 32

// ChannelID identifies a directed payment channel between two parties.
// Identifiers are totally ordered by lexicographic byte comparison.
type ChannelID [ChannelIDLength]byte

// Epoch counts channel close/reopen cycles. A ticket is only worth its
// face-value within the epoch it was issued in.
type Epoch uint32

// NewChannelID derives the identifier of the channel from source to
// destination. The derivation matches the on-chain contract:
// keccak256(source || destination), so a directed pair always maps to the
// same identifier.
func NewChannelID(source, destination common.Address) ChannelID {
	var id ChannelID
	copy(id[:], crypto.Keccak256(source.Bytes(), destination.Bytes()))
	return id
}

// ChannelIDFromBytes copies a 32-byte slice into a ChannelID.
func ChannelIDFromBytes(data []byte) (ChannelID, error) {
	if len(data) != ChannelIDLength {
		return ChannelID{}, fmt.Errorf("channel id must be %d bytes, got %d", ChannelIDLength, len(data))
	}
	var id ChannelID
	copy(id[:], data)
	return id, nil
}

// ChannelIDFromHex parses a hex-encoded channel identifier, with or without
// a 0x prefix.
func ChannelIDFromHex(s string) (ChannelID, error) {
	s = strings.TrimPrefix(s, "0x")
	data, err := hex.DecodeString(s)
	if err != nil {
		return ChannelID{}, fmt.Errorf("invalid channel id hex: %w", err)
	}
	return ChannelIDFromBytes(data)
}

// Bytes returns the identifier as a slice.
func (c ChannelID) Bytes() []byte {
	return c[:]
}

// Hex returns the 0x-prefixed hex encoding.
func (c ChannelID) Hex() string {
	return "0x" + hex.EncodeToString(c[:])
}

// Cmp compares two identifiers lexicographically.
func (c ChannelID) Cmp(other ChannelID) int {
	return bytes.Compare(c[:], other[:])
}

// String implements fmt.Stringer.
func (c ChannelID) String() string {
	return c.Hex()
}
