// Package domain holds the registry's identifier primitives.
//
// Each identifier is a distinct type so a dispute id can never be passed where an
// item key is expected. Construct them with the Parse functions at trust
// boundaries (HTTP params, Kafka payloads); direct conversion skips validation.
package domain

import (
	"encoding/hex"
	"encoding/json"
	"strconv"
	"strings"

	dErrors "tcr/pkg/domain-errors"
)

// MaxItemKeyBytes bounds item keys. 32-byte hashes are typical but any opaque
// identifier up to this length is accepted.
const MaxItemKeyBytes = 64

// ItemKey is the opaque byte-string identifier of a registry item.
// It is stored as a string of raw bytes so it can key maps directly.
type ItemKey string

// NewItemKey builds a key from raw bytes.
func NewItemKey(raw []byte) (ItemKey, error) {
	if len(raw) == 0 {
		return "", dErrors.New(dErrors.CodeInvalidInput, "item key must not be empty")
	}
	if len(raw) > MaxItemKeyBytes {
		return "", dErrors.Newf(dErrors.CodeInvalidInput, "item key exceeds %d bytes", MaxItemKeyBytes)
	}
	return ItemKey(raw), nil
}

// ParseItemKey decodes a hex-encoded key, with or without a 0x prefix.
func ParseItemKey(s string) (ItemKey, error) {
	trimmed := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if trimmed == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "item key must not be empty")
	}
	raw, err := hex.DecodeString(trimmed)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInvalidInput, "item key must be hex encoded")
	}
	return NewItemKey(raw)
}

// Hex returns the 0x-prefixed lowercase hex encoding used on the wire.
func (k ItemKey) Hex() string {
	return "0x" + hex.EncodeToString([]byte(k))
}

// String is the wire form, so keys log the same way they are addressed.
func (k ItemKey) String() string {
	return k.Hex()
}

// IsNil reports whether the key is empty.
func (k ItemKey) IsNil() bool {
	return k == ""
}

func (k ItemKey) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.Hex())
}

func (k *ItemKey) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInvalidInput, "item key must be a hex string")
	}
	parsed, err := ParseItemKey(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// addressLen is the byte length of a party address.
const addressLen = 20

// Address identifies a party (submitter, challenger, arbitrator, fee governor).
// Canonical form is 0x followed by 40 lowercase hex characters.
type Address string

// ParseAddress validates and canonicalises a party address.
func ParseAddress(s string) (Address, error) {
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return "", dErrors.New(dErrors.CodeInvalidInput, "address must start with 0x")
	}
	body := s[2:]
	if len(body) != addressLen*2 {
		return "", dErrors.New(dErrors.CodeInvalidInput, "address must be 20 bytes")
	}
	if _, err := hex.DecodeString(body); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInvalidInput, "address must be hex encoded")
	}
	return Address("0x" + strings.ToLower(body)), nil
}

func (a Address) String() string {
	return string(a)
}

// IsNil reports whether the address is unset.
func (a Address) IsNil() bool {
	return a == ""
}

// DisputeID is the arbitrator-assigned identifier of a dispute.
type DisputeID uint64

// ParseDisputeID parses a base-10 dispute id.
func ParseDisputeID(s string) (DisputeID, error) {
	if s == "" {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "dispute id must not be empty")
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInvalidInput, "dispute id must be an unsigned integer")
	}
	return DisputeID(n), nil
}

func (d DisputeID) String() string {
	return strconv.FormatUint(uint64(d), 10)
}
