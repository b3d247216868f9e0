// Package rotation replaces a chat's shared secret when group membership
// changes. A rotation is all-or-nothing: any failure before the local commit
// leaves the chat at its previous version, and the rotation is retried as a
// whole. The derived secret is deterministic for a given (chat, version,
// roster), so a retried rotation converges for members that already
// installed theirs.
//
// Removed members keep the ability to decrypt anything encrypted under
// versions they witnessed; rotation only revokes future secrets. Re-encrypting
// history would require a different protocol and is intentionally not done.
package rotation

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/akuznecov/whisperkit/internal/cryptox"
	"github.com/akuznecov/whisperkit/internal/dbx"
	"github.com/akuznecov/whisperkit/internal/directory"
	"github.com/akuznecov/whisperkit/internal/keyring"
	"github.com/akuznecov/whisperkit/internal/logging"
	"github.com/akuznecov/whisperkit/internal/models"
	"github.com/akuznecov/whisperkit/internal/repositories/chatkeys"
	"github.com/akuznecov/whisperkit/internal/repositories/chats"
	"github.com/akuznecov/whisperkit/internal/shared"
	"github.com/akuznecov/whisperkit/internal/transport"
)

// Manager orchestrates secret regeneration and per-member key distribution.
// Callers serialize invocations per chat; the manager itself does not lock.
type Manager struct {
	db        *sql.DB
	keys      *keyring.Store
	sealed    *keyring.SealedStore
	directory directory.KeyDirectory
	members   directory.Membership
	publisher transport.Publisher
	log       logging.Logger
}

func NewManager(db *sql.DB, keys *keyring.Store, sealed *keyring.SealedStore,
	dir directory.KeyDirectory, members directory.Membership,
	publisher transport.Publisher, log logging.Logger) *Manager {
	return &Manager{
		db:        db,
		keys:      keys,
		sealed:    sealed,
		directory: dir,
		members:   members,
		publisher: publisher,
		log:       log,
	}
}

// Rotate moves chat from STABLE(v) to STABLE(v+1) with the given roster of
// active participants. Removed members' keys are excluded from the new
// derivation, which is what revokes their access to future messages.
func (m *Manager) Rotate(ctx context.Context, chat *models.Chat, roster []string) (*models.Chat, error) {
	newVersion := chat.KeyVersion + 1

	secret, envelopes, err := m.prepare(ctx, chat, roster, newVersion)
	if err != nil {
		return nil, err
	}

	if err := m.distribute(ctx, envelopes); err != nil {
		return nil, err
	}

	// The directory roster changes only after every member's envelope has
	// gone out; a failed distribution leaves the remote roster at v.
	if err := m.members.SetParticipants(ctx, chat.ID, roster); err != nil {
		return nil, fmt.Errorf("%w: roster update: %v", shared.ErrDelivery, err)
	}

	if err := m.commit(ctx, chat.ID, roster, secret, newVersion); err != nil {
		return nil, err
	}

	m.keys.CacheSecret(chat.ID, newVersion, secret)

	updated := *chat
	updated.Participants = roster
	updated.KeyVersion = newVersion
	m.log.Info(ctx, "chat key rotated", "chat_id", chat.ID, "key_version", newVersion, "members", len(roster))
	return &updated, nil
}

// DistributeInitialKey derives version 1 of a new group's secret and sends
// it to every member. The chat record itself is persisted by the caller.
func (m *Manager) DistributeInitialKey(ctx context.Context, chat *models.Chat) (string, error) {
	secret, envelopes, err := m.prepare(ctx, chat, chat.Participants, chat.KeyVersion)
	if err != nil {
		return "", err
	}

	if err := m.distribute(ctx, envelopes); err != nil {
		return "", err
	}

	if err := m.sealed.SaveChatKey(ctx, m.sealed.Keys(), &models.ChatKeyEntry{
		ChatID:  chat.ID,
		Secret:  secret,
		Version: chat.KeyVersion,
	}); err != nil {
		return "", err
	}

	m.keys.CacheSecret(chat.ID, chat.KeyVersion, secret)
	return secret, nil
}

// prepare derives the new secret and builds every per-member key envelope
// before anything is published.
func (m *Manager) prepare(ctx context.Context, chat *models.Chat, roster []string, version int) (string, []*models.Envelope, error) {
	selfPub, err := m.keys.PublicKey()
	if err != nil {
		return "", nil, fmt.Errorf("%w: %w", shared.ErrDerivation, err)
	}

	pubKeys, err := m.directory.PublicKeys(ctx, roster)
	if err != nil {
		return "", nil, fmt.Errorf("%w: key lookup: %v", shared.ErrDerivation, err)
	}

	memberKeys := make([]string, 0, len(roster))
	for _, id := range roster {
		pk, ok := pubKeys[id]
		if !ok {
			return "", nil, fmt.Errorf("%w: no public key for %s", shared.ErrDerivation, id)
		}
		memberKeys = append(memberKeys, pk)
	}

	secret, err := keyring.DeriveGroupSecret(memberKeys, chat.ID, version)
	if err != nil {
		return "", nil, err
	}

	// Every member recovers the group secret from their pairwise secret with
	// the sender; the group secret itself never travels in the clear.
	envelopes := make([]*models.Envelope, 0, len(roster))
	now := time.Now()
	for _, id := range roster {
		if pubKeys[id] == selfPub {
			continue
		}
		direct, err := m.keys.DeriveDirectSecret(pubKeys[id])
		if err != nil {
			return "", nil, err
		}
		sealed, err := cryptox.Encrypt(secret, direct)
		if err != nil {
			return "", nil, err
		}
		envelopes = append(envelopes, &models.Envelope{
			Kind:            models.EnvelopeKindKey,
			MessageID:       uuid.NewString(),
			ChatID:          chat.ID,
			SenderID:        chat.CreatedBy,
			SenderPublicKey: selfPub,
			KeyVersion:      version,
			RecipientID:     id,
			EncryptedSecret: sealed,
			SentAt:          now,
		})
	}

	return secret, envelopes, nil
}

func (m *Manager) distribute(ctx context.Context, envelopes []*models.Envelope) error {
	for _, env := range envelopes {
		if err := m.publisher.Publish(ctx, env); err != nil {
			return fmt.Errorf("%w: key envelope for %s: %v", shared.ErrDelivery, env.RecipientID, err)
		}
	}
	return nil
}

// commit persists the roster, the version bump and the sealed secret in a
// single transaction so a crash cannot leave them disagreeing.
func (m *Manager) commit(ctx context.Context, chatID string, roster []string, secret string, version int) error {
	return dbx.WithTx(ctx, m.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := chats.NewSQLiteRepository(tx).UpdateMembership(ctx, chatID, roster, version); err != nil {
			return err
		}
		return m.sealed.SaveChatKey(ctx, chatkeys.NewSQLiteRepository(tx), &models.ChatKeyEntry{
			ChatID:  chatID,
			Secret:  secret,
			Version: version,
		})
	})
}
