package keyring

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"strings"

	"golang.org/x/crypto/hkdf"

	"github.com/akuznecov/whisperkit/internal/shared"
)

const secretSize = 32

// HKDF info strings provide domain separation between the two derivations.
const (
	directInfo = "whisperkit/direct/v1"
	groupInfo  = "whisperkit/group/v1"
)

// DeriveDirectSecret computes the pairwise secret shared with a peer. The
// caller's public key is recovered from the private key and combined with the
// peer's public key in lexicographic order, so both sides arrive at the same
// value regardless of who derives first.
func DeriveDirectSecret(myPrivateKey, peerPublicKey string) (string, error) {
	if myPrivateKey == "" {
		return "", fmt.Errorf("%w: no private key", shared.ErrDerivation)
	}
	if peerPublicKey == "" {
		return "", fmt.Errorf("%w: no peer public key", shared.ErrDerivation)
	}

	keys := []string{PublicFromPrivate(myPrivateKey), peerPublicKey}
	sort.Strings(keys)

	return expand(strings.Join(keys, "|"), directInfo)
}

// DeriveDirectSecret derives the pairwise secret with a peer using the
// store's active private key.
func (s *Store) DeriveDirectSecret(peerPublicKey string) (string, error) {
	private, err := s.privateKey()
	if err != nil {
		return "", fmt.Errorf("%w: %w", shared.ErrDerivation, err)
	}
	return DeriveDirectSecret(private, peerPublicKey)
}

// DeriveGroupSecret computes the group secret for (chatID, keyVersion) from
// the full set of active members' public keys. Keys are sorted into canonical
// order before combining, so every member computes the identical value no
// matter the local join order. The chat id and version are bound into the
// derivation, making secrets unique per chat and per rotation epoch.
func DeriveGroupSecret(memberPublicKeys []string, chatID string, keyVersion int) (string, error) {
	if len(memberPublicKeys) == 0 {
		return "", fmt.Errorf("%w: no member keys", shared.ErrDerivation)
	}
	if chatID == "" {
		return "", fmt.Errorf("%w: no chat id", shared.ErrDerivation)
	}
	if keyVersion < 1 {
		return "", fmt.Errorf("%w: key version must be >= 1", shared.ErrDerivation)
	}
	for _, k := range memberPublicKeys {
		if k == "" {
			return "", fmt.Errorf("%w: empty member key", shared.ErrDerivation)
		}
	}

	keys := make([]string, len(memberPublicKeys))
	copy(keys, memberPublicKeys)
	sort.Strings(keys)

	info := fmt.Sprintf("%s/%s/%d", groupInfo, chatID, keyVersion)
	return expand(strings.Join(keys, "|"), info)
}

// expand runs HKDF-SHA256 over the input key material and returns a
// hex-encoded 32-byte secret.
func expand(ikm, info string) (string, error) {
	r := hkdf.New(sha256.New, []byte(ikm), nil, []byte(info))
	secret := make([]byte, secretSize)
	if _, err := io.ReadFull(r, secret); err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrDerivation, err)
	}
	return hex.EncodeToString(secret), nil
}
