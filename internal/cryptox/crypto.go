// Package cryptox implements the symmetric cipher engine: authenticated
// encryption of message payloads under a chat secret and of file payloads
// under single-use file keys. All primitives are AES-256-GCM.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/akuznecov/whisperkit/internal/shared"
)

const nonceSize = 12

// payload wraps plaintext with a send timestamp so a decrypted message
// carries enough metadata to reject naive replays at the application layer.
// GCM itself provides the tamper detection.
type payload struct {
	Content string `json:"content"`
	SentAt  int64  `json:"sentAt"`
}

// KeyFromSecret turns an opaque secret string into a 32-byte AES key.
func KeyFromSecret(secret string) []byte {
	sum := sha256.Sum256([]byte(secret))
	return sum[:]
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Encrypt seals plaintext under the given secret. The output is
// base64(nonce || ciphertext) with a fresh random nonce per call.
func Encrypt(plaintext, secret string) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("%w: empty secret", shared.ErrEncryption)
	}

	data, err := json.Marshal(payload{Content: plaintext, SentAt: time.Now().UnixMilli()})
	if err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrEncryption, err)
	}

	sealed, err := seal(data, KeyFromSecret(secret))
	if err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrEncryption, err)
	}

	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens ciphertext produced by Encrypt. Any integrity or format
// failure, including an empty result, yields shared.ErrDecryption.
func Decrypt(ciphertext, secret string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: bad encoding: %v", shared.ErrDecryption, err)
	}

	data, err := open(raw, KeyFromSecret(secret))
	if err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrDecryption, err)
	}
	defer shared.WipeByteArray(data)

	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		return "", fmt.Errorf("%w: bad payload: %v", shared.ErrDecryption, err)
	}
	if p.Content == "" {
		return "", fmt.Errorf("%w: empty result", shared.ErrDecryption)
	}

	return p.Content, nil
}

// NewFileKey returns a fresh random 32-byte file key as a hex string.
func NewFileKey() (string, error) {
	return shared.MakeRandHexString(32)
}

// EncryptFile seals data under a freshly generated single-use file key and
// returns both. The key travels in the message envelope, encrypted under the
// chat secret, so file keys rotate independently of chat-level keys.
func EncryptFile(data []byte) (ciphertext []byte, fileKey string, err error) {
	fileKey, err = NewFileKey()
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", shared.ErrEncryption, err)
	}
	ciphertext, err = EncryptFileWithKey(data, fileKey)
	if err != nil {
		return nil, "", err
	}
	return ciphertext, fileKey, nil
}

// EncryptFileWithKey seals data under an existing file key.
func EncryptFileWithKey(data []byte, fileKey string) ([]byte, error) {
	sealed, err := seal(data, KeyFromSecret(fileKey))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrEncryption, err)
	}
	return sealed, nil
}

// DecryptFile opens a file ciphertext produced by EncryptFile.
func DecryptFile(ciphertext []byte, fileKey string) ([]byte, error) {
	data, err := open(ciphertext, KeyFromSecret(fileKey))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrDecryption, err)
	}
	return data, nil
}

// SealJSON serializes v to JSON and encrypts it with the given raw key,
// returning ciphertext and nonce separately. Used for at-rest storage of
// key material under the master key.
func SealJSON(v any, key []byte) (ciphertext, nonce []byte, err error) {
	plaintext, err := json.Marshal(v)
	if err != nil {
		return nil, nil, err
	}
	defer shared.WipeByteArray(plaintext)

	nonce, err = shared.RandBytes(nonceSize)
	if err != nil {
		return nil, nil, err
	}

	aesgcm, err := newGCM(key)
	if err != nil {
		return nil, nil, err
	}

	return aesgcm.Seal(nil, nonce, plaintext, nil), nonce, nil
}

// OpenJSON decrypts ciphertext produced by SealJSON and unmarshals the
// result into v.
func OpenJSON(ciphertext, nonce, key []byte, v any) error {
	aesgcm, err := newGCM(key)
	if err != nil {
		return err
	}

	plaintext, err := aesgcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrDecryption, err)
	}
	defer shared.WipeByteArray(plaintext)

	return json.Unmarshal(plaintext, v)
}

// seal encrypts plaintext and prepends the nonce to the ciphertext.
func seal(plaintext, key []byte) ([]byte, error) {
	aesgcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}

	return aesgcm.Seal(nonce, nonce, plaintext, nil), nil
}

// open splits the nonce prefix off and decrypts the remainder.
func open(sealed, key []byte) ([]byte, error) {
	if len(sealed) < nonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}

	aesgcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce, ct := sealed[:nonceSize], sealed[nonceSize:]
	return aesgcm.Open(nil, nonce, ct, nil)
}

// Fingerprint returns a short hex digest of public key material, used for
// manual identity verification.
func Fingerprint(publicKey string) string {
	sum := sha256.Sum256([]byte(publicKey))
	return hex.EncodeToString(sum[:8])
}
