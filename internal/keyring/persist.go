package keyring

import (
	"context"
	"fmt"

	"golang.org/x/crypto/argon2"

	"github.com/akuznecov/whisperkit/internal/cryptox"
	"github.com/akuznecov/whisperkit/internal/models"
	"github.com/akuznecov/whisperkit/internal/repositories/chatkeys"
	"github.com/akuznecov/whisperkit/internal/repositories/metadata"
	"github.com/akuznecov/whisperkit/internal/shared"
)

const (
	metaKeyPair      = "keypair"
	metaKeyPairNonce = "keypair_nonce"
)

// DeriveMasterKey stretches the user's passphrase into the 32-byte master
// key that seals local key material at rest.
func DeriveMasterKey(passphrase, salt []byte) []byte {
	return argon2.IDKey(passphrase, salt, 1, 64*1024, 4, 32)
}

// SealedStore persists key material encrypted under the master key. The
// plaintext secret never reaches the repositories.
type SealedStore struct {
	meta      metadata.Repository
	keys      chatkeys.Repository
	masterKey []byte
}

func NewSealedStore(meta metadata.Repository, keys chatkeys.Repository, masterKey []byte) *SealedStore {
	return &SealedStore{meta: meta, keys: keys, masterKey: masterKey}
}

// SaveKeyPair seals the pair under the master key and stores it.
func (p *SealedStore) SaveKeyPair(ctx context.Context, pair models.KeyPair) error {
	ciphertext, nonce, err := cryptox.SealJSON(pair, p.masterKey)
	if err != nil {
		return fmt.Errorf("failed to seal key pair: %w", err)
	}
	if err := p.meta.Set(ctx, metaKeyPair, ciphertext); err != nil {
		return err
	}
	return p.meta.Set(ctx, metaKeyPairNonce, nonce)
}

// LoadKeyPair restores a previously saved pair. Returns shared.ErrNotFound
// when no pair has been saved on this device.
func (p *SealedStore) LoadKeyPair(ctx context.Context) (models.KeyPair, error) {
	ciphertext, err := p.meta.Get(ctx, metaKeyPair)
	if err != nil {
		return models.KeyPair{}, err
	}
	nonce, err := p.meta.Get(ctx, metaKeyPairNonce)
	if err != nil {
		return models.KeyPair{}, err
	}
	if ciphertext == nil || nonce == nil {
		return models.KeyPair{}, shared.ErrNotFound
	}

	var pair models.KeyPair
	if err := cryptox.OpenJSON(ciphertext, nonce, p.masterKey, &pair); err != nil {
		return models.KeyPair{}, fmt.Errorf("failed to open key pair: %w", err)
	}
	return pair, nil
}

// SaveChatKey seals a chat's current secret and stores it via the given
// repository handle. Passing a transactional repository lets rotation commit
// the version bump and the secret together.
func (p *SealedStore) SaveChatKey(ctx context.Context, repo chatkeys.Repository, entry *models.ChatKeyEntry) error {
	ciphertext, nonce, err := cryptox.SealJSON(entry.Secret, p.masterKey)
	if err != nil {
		return fmt.Errorf("failed to seal chat key: %w", err)
	}
	return repo.Upsert(ctx, &chatkeys.SealedKey{
		ChatID:  entry.ChatID,
		Secret:  ciphertext,
		Nonce:   nonce,
		Version: entry.Version,
	})
}

// LoadChatKey returns the persisted current secret for a chat.
func (p *SealedStore) LoadChatKey(ctx context.Context, chatID string) (*models.ChatKeyEntry, error) {
	sealed, err := p.keys.Get(ctx, chatID)
	if err != nil {
		return nil, err
	}

	var secret string
	if err := cryptox.OpenJSON(sealed.Secret, sealed.Nonce, p.masterKey, &secret); err != nil {
		return nil, fmt.Errorf("failed to open chat key: %w", err)
	}
	return &models.ChatKeyEntry{ChatID: chatID, Secret: secret, Version: sealed.Version}, nil
}

// DeleteChatKey removes the persisted secret for a chat, e.g. when the user
// leaves it.
func (p *SealedStore) DeleteChatKey(ctx context.Context, chatID string) error {
	return p.keys.Delete(ctx, chatID)
}

// Keys exposes the underlying chat-key repository for non-transactional use.
func (p *SealedStore) Keys() chatkeys.Repository {
	return p.keys
}

// Wipe removes everything this store persisted and zeroes the master key.
// Called on logout.
func (p *SealedStore) Wipe(ctx context.Context) error {
	if err := p.keys.Clear(ctx); err != nil {
		return err
	}
	if err := p.meta.Clear(ctx); err != nil {
		return err
	}
	shared.WipeByteArray(p.masterKey)
	return nil
}
