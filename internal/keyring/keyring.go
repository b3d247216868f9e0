// Package keyring owns the local identity's key material: the long-term key
// pair, the in-memory cache of per-chat shared secrets, and the derivation of
// pairwise and group secrets.
//
// The key pair here is not a genuine asymmetric pair: the public key is a
// one-way digest of the private key, and shared secrets are derived from
// public key material alone. This mirrors the deployed wire protocol and is a
// known cryptographic weakness; replacing it with a real key agreement
// changes the wire format and is deliberately out of scope.
package keyring

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"golang.org/x/crypto/pbkdf2"

	"github.com/akuznecov/whisperkit/internal/models"
	"github.com/akuznecov/whisperkit/internal/shared"
)

// DefaultKDFIterations is the PBKDF2 work factor applied when stretching the
// key-generation seed.
const DefaultKDFIterations = 10_000

const privateKeySize = 32

// Store holds exactly one active key pair per process plus the cache of
// derived chat secrets. All mutation is serialized behind a single mutex;
// concurrent access only happens from the retry worker and inbound delivery
// callbacks.
type Store struct {
	mu         sync.RWMutex
	pair       *models.KeyPair
	secrets    map[string]map[int]string // chatID -> version -> secret
	iterations int
}

// NewStore returns an empty Store using the given PBKDF2 iteration count;
// values below DefaultKDFIterations are raised to it.
func NewStore(iterations int) *Store {
	if iterations < DefaultKDFIterations {
		iterations = DefaultKDFIterations
	}
	return &Store{
		secrets:    make(map[string]map[int]string),
		iterations: iterations,
	}
}

// GenerateKeyPair creates fresh key material and makes it the active pair.
// The seed mixes the secure random source with a high-resolution timer and
// the wall clock, then is stretched with PBKDF2-SHA256. The public key is a
// one-way digest of the private key.
func (s *Store) GenerateKeyPair() (models.KeyPair, error) {
	seed := make([]byte, privateKeySize)
	if _, err := rand.Read(seed); err != nil {
		return models.KeyPair{}, fmt.Errorf("%w: secure random source unavailable: %v", shared.ErrKeyGeneration, err)
	}

	now := time.Now()
	entropy := make([]byte, 0, privateKeySize+16)
	entropy = append(entropy, seed...)
	entropy = binary.BigEndian.AppendUint64(entropy, uint64(now.UnixNano()))
	entropy = binary.BigEndian.AppendUint64(entropy, uint64(now.Unix()))
	defer shared.WipeByteArray(entropy)

	salt, err := shared.RandBytes(16)
	if err != nil {
		return models.KeyPair{}, fmt.Errorf("%w: %v", shared.ErrKeyGeneration, err)
	}

	private := pbkdf2.Key(entropy, salt, s.iterations, privateKeySize, sha256.New)
	defer shared.WipeByteArray(private)

	privateHex := hex.EncodeToString(private)
	pair := models.KeyPair{
		PrivateKey: privateHex,
		PublicKey:  PublicFromPrivate(privateHex),
	}

	s.mu.Lock()
	s.pair = &pair
	s.mu.Unlock()

	return pair, nil
}

// PublicFromPrivate derives the public half from a private key.
func PublicFromPrivate(privateKey string) string {
	sum := sha256.Sum256([]byte(privateKey))
	return hex.EncodeToString(sum[:])
}

// SetKeyPair restores a previously generated pair, e.g. after session resume
// from the encrypted local store. Only non-emptiness is validated.
func (s *Store) SetKeyPair(pair models.KeyPair) error {
	if pair.PublicKey == "" || pair.PrivateKey == "" {
		return fmt.Errorf("%w: empty key pair", shared.ErrNotInitialized)
	}
	s.mu.Lock()
	s.pair = &pair
	s.mu.Unlock()
	return nil
}

// PublicKey returns the active public key, or shared.ErrNotInitialized when
// no pair is set.
func (s *Store) PublicKey() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.pair == nil {
		return "", shared.ErrNotInitialized
	}
	return s.pair.PublicKey, nil
}

func (s *Store) privateKey() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.pair == nil {
		return "", shared.ErrNotInitialized
	}
	return s.pair.PrivateKey, nil
}

// Initialized reports whether a key pair is active.
func (s *Store) Initialized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pair != nil
}

// Clear wipes the key pair and every cached chat secret. Must be called on
// logout.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pair != nil {
		s.pair.PrivateKey = ""
		s.pair.PublicKey = ""
		s.pair = nil
	}
	for chatID, versions := range s.secrets {
		for v := range versions {
			versions[v] = ""
		}
		delete(s.secrets, chatID)
	}
}

// CacheSecret stores the secret for (chatID, version) in memory. Older
// versions are retained so in-flight messages sent under a previous key can
// still be decrypted; ForgetChat drops them.
func (s *Store) CacheSecret(chatID string, version int, secret string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	versions, ok := s.secrets[chatID]
	if !ok {
		versions = make(map[int]string)
		s.secrets[chatID] = versions
	}
	versions[version] = secret
}

// Secret looks up the cached secret for (chatID, version).
func (s *Store) Secret(chatID string, version int) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	versions, ok := s.secrets[chatID]
	if !ok {
		return "", false
	}
	secret, ok := versions[version]
	return secret, ok
}

// ForgetChat drops all cached secrets for a chat.
func (s *Store) ForgetChat(chatID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for v := range s.secrets[chatID] {
		s.secrets[chatID][v] = ""
	}
	delete(s.secrets, chatID)
}
