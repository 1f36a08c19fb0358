// Package identity implements the node identity: a short PeerID derived from a
// random value, and normalization of user-chosen display names.
package identity

import (
	"encoding/base32"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"
	"lukechampine.com/blake3"

	"github.com/WebFirstLanguage/lanchat/pkg/constants"
)

// MaxNameLength is the maximum display name length in runes
const MaxNameLength = 32

// peerIDEncoding renders raw ids; padding is stripped and the result lowercased
var peerIDEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// PeerID is the human-readable identifier of a node on the broadcast domain
type PeerID string

// String returns the id as a plain string
func (p PeerID) String() string {
	return string(p)
}

// Raw decodes the id back into the 4 bytes carried by a beacon
func (p PeerID) Raw() ([constants.PeerIDRawSize]byte, error) {
	var raw [constants.PeerIDRawSize]byte

	decoded, err := peerIDEncoding.DecodeString(strings.ToUpper(string(p)))
	if err != nil {
		return raw, fmt.Errorf("invalid peer id %q: %w", string(p), err)
	}
	if len(decoded) != constants.PeerIDRawSize {
		return raw, fmt.Errorf("invalid peer id %q: expected %d bytes, got %d",
			string(p), constants.PeerIDRawSize, len(decoded))
	}

	copy(raw[:], decoded)
	return raw, nil
}

// PeerIDFromRaw renders the raw beacon bytes as a PeerID
func PeerIDFromRaw(raw [constants.PeerIDRawSize]byte) PeerID {
	return PeerID(strings.ToLower(peerIDEncoding.EncodeToString(raw[:])))
}

// Identity is the local node identity. It lives for one process only.
type Identity struct {
	seed uuid.UUID
	raw  [constants.PeerIDRawSize]byte
	id   PeerID
}

// GenerateIdentity creates a fresh identity from a random UUID
func GenerateIdentity() (*Identity, error) {
	seed, err := uuid.NewRandom()
	if err != nil {
		return nil, fmt.Errorf("failed to generate identity seed: %w", err)
	}
	return FromSeed(seed), nil
}

// FromSeed derives an identity from the given seed. The raw id is the first
// 32 bits of BLAKE3(seed).
func FromSeed(seed uuid.UUID) *Identity {
	hasher := blake3.New(32, nil)
	hasher.Write(seed[:])
	hash := hasher.Sum(nil)

	id := &Identity{seed: seed}
	copy(id.raw[:], hash[:constants.PeerIDRawSize])
	id.id = PeerIDFromRaw(id.raw)
	return id
}

// ID returns the rendered PeerID
func (id *Identity) ID() PeerID {
	return id.id
}

// Raw returns the 4 bytes announced in beacons
func (id *Identity) Raw() [constants.PeerIDRawSize]byte {
	return id.raw
}

// Seed returns the random value the identity was derived from
func (id *Identity) Seed() uuid.UUID {
	return id.seed
}

// NormalizeName trims and NFKC-normalizes a display name and checks that it
// is printable and not too long
func NormalizeName(name string) (string, error) {
	normalized := norm.NFKC.String(strings.TrimSpace(name))

	if normalized == "" {
		return "", fmt.Errorf("name must not be empty")
	}

	if n := utf8.RuneCountInString(normalized); n > MaxNameLength {
		return "", fmt.Errorf("name too long: %d runes (max %d)", n, MaxNameLength)
	}

	for _, r := range normalized {
		if !unicode.IsPrint(r) {
			return "", fmt.Errorf("name contains non-printable character %U", r)
		}
	}

	return normalized, nil
}
