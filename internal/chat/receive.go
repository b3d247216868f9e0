package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/akuznecov/whisperkit/internal/cryptox"
	"github.com/akuznecov/whisperkit/internal/models"
	"github.com/akuznecov/whisperkit/internal/shared"
)

// MessageHandler receives decrypted inbound messages.
type MessageHandler func(msg *models.Message)

// Subscribe attaches to a chat's channel. Inbound key envelopes update local
// key state; inbound messages are decrypted and handed to the handler.
// Undecryptable or expired envelopes are dropped with a log line, never
// surfaced as plaintext.
func (s *Service) Subscribe(ctx context.Context, chatID string, handler MessageHandler) (func(), error) {
	return s.deps.Transport.Subscribe(ctx, chatID, func(env *models.Envelope) {
		s.handleEnvelope(ctx, env, handler)
	})
}

func (s *Service) handleEnvelope(ctx context.Context, env *models.Envelope, handler MessageHandler) {
	if env.Expired(time.Now()) {
		s.deps.Log.Debug(ctx, "expired envelope dropped", "chat_id", env.ChatID, "message_id", env.MessageID)
		return
	}

	switch env.Kind {
	case models.EnvelopeKindKey:
		if err := s.acceptKeyEnvelope(ctx, env); err != nil {
			s.deps.Log.Error(ctx, "key envelope rejected", "chat_id", env.ChatID, "error", err)
		}
	case models.EnvelopeKindMessage:
		msg, err := s.openMessage(ctx, env)
		if err != nil {
			s.deps.Log.Error(ctx, "inbound message dropped", "chat_id", env.ChatID, "message_id", env.MessageID, "error", err)
			return
		}
		if msg != nil {
			handler(msg)
		}
	default:
		s.deps.Log.Warn(ctx, "unknown envelope kind", "kind", env.Kind, "chat_id", env.ChatID)
	}
}

// acceptKeyEnvelope installs a rotated group secret delivered by the chat
// admin. The secret travels encrypted under the pairwise secret between the
// admin and this user, so only the addressed member can open it.
func (s *Service) acceptKeyEnvelope(ctx context.Context, env *models.Envelope) error {
	if env.RecipientID != s.deps.Session.UserID() {
		return nil
	}

	unlock := s.lockChat(env.ChatID)
	defer unlock()

	// Key envelopes for a chat this device already knows are accepted only
	// from the chat's admin.
	chat, err := s.deps.Chats.Get(ctx, env.ChatID)
	if err == nil && env.SenderID != chat.CreatedBy {
		return fmt.Errorf("%w: key envelope from %s, chat admin is %s", shared.ErrAuthorization, env.SenderID, chat.CreatedBy)
	}
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return err
	}

	pairwise, err := s.deps.Keys.DeriveDirectSecret(env.SenderPublicKey)
	if err != nil {
		return err
	}
	secret, err := cryptox.Decrypt(env.EncryptedSecret, pairwise)
	if err != nil {
		return err
	}

	if err := s.deps.Sealed.SaveChatKey(ctx, s.deps.Sealed.Keys(), &models.ChatKeyEntry{
		ChatID:  env.ChatID,
		Secret:  secret,
		Version: env.KeyVersion,
	}); err != nil {
		return err
	}
	s.deps.Keys.CacheSecret(env.ChatID, env.KeyVersion, secret)

	if err := s.syncChatRecord(ctx, env); err != nil {
		return err
	}

	s.deps.Log.Info(ctx, "group key installed", "chat_id", env.ChatID, "key_version", env.KeyVersion)
	return nil
}

// syncChatRecord brings the local chat row up to the envelope's key version
// and refreshes the roster from the directory. A key envelope for an unknown
// chat creates the row, so an invitation works without a separate chat sync.
func (s *Service) syncChatRecord(ctx context.Context, env *models.Envelope) error {
	roster, err := s.deps.Members.Participants(ctx, env.ChatID)
	if err != nil {
		return fmt.Errorf("roster refresh: %w", err)
	}

	chat, err := s.deps.Chats.Get(ctx, env.ChatID)
	if errors.Is(err, shared.ErrNotFound) {
		return s.deps.Chats.Upsert(ctx, &models.Chat{
			ID:           env.ChatID,
			IsGroup:      true,
			Participants: roster,
			KeyVersion:   env.KeyVersion,
			CreatedBy:    env.SenderID,
			CreatedAt:    env.SentAt,
		})
	}
	if err != nil {
		return err
	}
	if env.KeyVersion <= chat.KeyVersion {
		// stale or replayed rotation, the installed secret is harmless
		return nil
	}
	return s.deps.Chats.UpdateMembership(ctx, env.ChatID, roster, env.KeyVersion)
}

// openMessage decrypts an inbound message envelope. Returns (nil, nil) for
// the local user's own echoes.
func (s *Service) openMessage(ctx context.Context, env *models.Envelope) (*models.Message, error) {
	if env.SenderID == s.deps.Session.UserID() {
		return nil, nil
	}

	secret, err := s.inboundSecret(ctx, env)
	if err != nil {
		return nil, err
	}

	msg := &models.Message{
		ID:        env.MessageID,
		ChatID:    env.ChatID,
		SenderID:  env.SenderID,
		Type:      env.Type,
		FileName:  env.FileName,
		FileSize:  env.FileSize,
		ReplyTo:   env.ReplyTo,
		ExpiresAt: env.ExpiresAt,
		SentAt:    env.SentAt,
		Status:    models.MessageStatusSent,
	}

	if env.Ciphertext != "" {
		msg.Content, err = cryptox.Decrypt(env.Ciphertext, secret)
		if err != nil {
			return nil, err
		}
	}

	if env.BlobKey != "" {
		msg.FileData, err = s.fetchFile(ctx, env, secret)
		if err != nil {
			return nil, err
		}
	}

	return msg, nil
}

// inboundSecret resolves the secret for the version the envelope was sealed
// under. Old versions stay available from the in-memory cache only; a version
// this device has never seen is a rotation conflict.
func (s *Service) inboundSecret(ctx context.Context, env *models.Envelope) (string, error) {
	if secret, ok := s.deps.Keys.Secret(env.ChatID, env.KeyVersion); ok {
		return secret, nil
	}

	entry, err := s.deps.Sealed.LoadChatKey(ctx, env.ChatID)
	if err == nil && entry.Version == env.KeyVersion {
		s.deps.Keys.CacheSecret(env.ChatID, entry.Version, entry.Secret)
		return entry.Secret, nil
	}
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return "", err
	}

	chat, cerr := s.deps.Chats.Get(ctx, env.ChatID)
	if cerr == nil && !chat.IsGroup {
		// Direct secrets are version-independent and derivable from the
		// sender's public key carried in the envelope.
		secret, derr := s.deps.Keys.DeriveDirectSecret(env.SenderPublicKey)
		if derr != nil {
			return "", derr
		}
		s.deps.Keys.CacheSecret(env.ChatID, env.KeyVersion, secret)
		return secret, nil
	}
	if errors.Is(cerr, shared.ErrNotFound) && env.ChatID == directChatID(s.deps.Session.UserID(), env.SenderID) {
		return s.bootstrapDirectChat(ctx, env)
	}
	if cerr != nil && !errors.Is(cerr, shared.ErrNotFound) {
		return "", cerr
	}

	return "", fmt.Errorf("%w: no key for chat %s at version %d", shared.ErrRotationConflict, env.ChatID, env.KeyVersion)
}

// bootstrapDirectChat creates the local chat row for a first-contact direct
// message. The chat id names the pair and the envelope carries the sender's
// public key, so the secret is derivable without any backend round trip.
func (s *Service) bootstrapDirectChat(ctx context.Context, env *models.Envelope) (string, error) {
	secret, err := s.deps.Keys.DeriveDirectSecret(env.SenderPublicKey)
	if err != nil {
		return "", err
	}

	unlock := s.lockChat(env.ChatID)
	defer unlock()

	if err := s.deps.Chats.Upsert(ctx, &models.Chat{
		ID:           env.ChatID,
		IsGroup:      false,
		Participants: []string{env.SenderID, s.deps.Session.UserID()},
		KeyVersion:   env.KeyVersion,
		CreatedBy:    env.SenderID,
		CreatedAt:    env.SentAt,
	}); err != nil {
		return "", err
	}
	if err := s.deps.Sealed.SaveChatKey(ctx, s.deps.Sealed.Keys(), &models.ChatKeyEntry{
		ChatID:  env.ChatID,
		Secret:  secret,
		Version: env.KeyVersion,
	}); err != nil {
		return "", err
	}
	s.deps.Keys.CacheSecret(env.ChatID, env.KeyVersion, secret)

	s.deps.Log.Info(ctx, "direct chat created from inbound message", "chat_id", env.ChatID, "peer", env.SenderID)
	return secret, nil
}

// fetchFile downloads the attachment ciphertext and opens it with the
// single-use file key carried in the envelope.
func (s *Service) fetchFile(ctx context.Context, env *models.Envelope, secret string) ([]byte, error) {
	ciphertext, err := s.deps.Blobs.Get(ctx, env.BlobKey)
	if err != nil {
		return nil, fmt.Errorf("%w: blob download: %v", shared.ErrDelivery, err)
	}
	fileKey, err := cryptox.Decrypt(env.FileKey, secret)
	if err != nil {
		return nil, err
	}
	return cryptox.DecryptFile(ciphertext, fileKey)
}

// Chats lists the locally known chats.
func (s *Service) Chats(ctx context.Context) ([]*models.Chat, error) {
	return s.deps.Chats.List(ctx)
}

// Logout wipes all local key material and queued plaintext. After logout the
// device retains no way to decrypt anything.
func (s *Service) Logout(ctx context.Context) error {
	if err := s.outbox.Clear(ctx); err != nil {
		return err
	}
	if err := s.deps.Sealed.Wipe(ctx); err != nil {
		return err
	}
	s.deps.Keys.Clear()
	s.deps.Session.Clear()
	s.deps.Log.Info(ctx, "logged out, local key material wiped")
	return nil
}
