// Package chat is the orchestrator: it exposes the create/send/subscribe and
// membership operations, wiring key material, the cipher engine, rotation,
// the outbox and the transport together.
package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/akuznecov/whisperkit/internal/blob"
	"github.com/akuznecov/whisperkit/internal/cryptox"
	"github.com/akuznecov/whisperkit/internal/directory"
	"github.com/akuznecov/whisperkit/internal/keyring"
	"github.com/akuznecov/whisperkit/internal/logging"
	"github.com/akuznecov/whisperkit/internal/models"
	"github.com/akuznecov/whisperkit/internal/outbox"
	"github.com/akuznecov/whisperkit/internal/repositories/chats"
	outboxrepo "github.com/akuznecov/whisperkit/internal/repositories/outbox"
	"github.com/akuznecov/whisperkit/internal/rotation"
	"github.com/akuznecov/whisperkit/internal/session"
	"github.com/akuznecov/whisperkit/internal/shared"
	"github.com/akuznecov/whisperkit/internal/transport"
)

// Deps collects everything the orchestrator needs. All dependencies are
// explicit; there are no package-level singletons.
type Deps struct {
	Session    *session.Session
	Keys       *keyring.Store
	Sealed     *keyring.SealedStore
	Chats      chats.Repository
	OutboxRepo outboxrepo.Repository
	Rotation   *rotation.Manager
	Directory  directory.KeyDirectory
	Members    directory.Membership
	Transport  transport.Transport
	Blobs      blob.Store
	Log        logging.Logger
}

// Service implements the messaging operations exposed to the UI layer.
// Operations on different chats run concurrently; operations touching one
// chat's key state are serialized behind a per-chat lock, so a rotation in
// progress excludes sends that would read a stale key version.
type Service struct {
	deps   Deps
	outbox *outbox.Queue

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

func NewService(deps Deps, opts ...outbox.Option) *Service {
	s := &Service{
		deps:  deps,
		locks: make(map[string]*sync.Mutex),
	}
	s.outbox = outbox.NewQueue(deps.OutboxRepo, s.retrySend, deps.Log, opts...)
	return s
}

// Outbox exposes the delivery queue, e.g. to start its worker or observe
// dropped sends.
func (s *Service) Outbox() *outbox.Queue {
	return s.outbox
}

// lockChat serializes key-state mutation per chat.
func (s *Service) lockChat(chatID string) func() {
	s.locksMu.Lock()
	mu, ok := s.locks[chatID]
	if !ok {
		mu = &sync.Mutex{}
		s.locks[chatID] = mu
	}
	s.locksMu.Unlock()

	mu.Lock()
	return mu.Unlock
}

// InitIdentity makes sure the device has key material: a pair is restored
// from the encrypted local store when present, otherwise generated, sealed,
// and its public half published to the directory. Generation failure blocks
// registration entirely.
func (s *Service) InitIdentity(ctx context.Context) error {
	pair, err := s.deps.Sealed.LoadKeyPair(ctx)
	switch {
	case err == nil:
		return s.deps.Keys.SetKeyPair(pair)
	case errors.Is(err, shared.ErrNotFound):
		// first login on this device
	default:
		return err
	}

	pair, err = s.deps.Keys.GenerateKeyPair()
	if err != nil {
		return err
	}
	if err := s.deps.Sealed.SaveKeyPair(ctx, pair); err != nil {
		return err
	}
	if err := s.deps.Directory.PublishKey(ctx, s.deps.Session.UserID(), pair.PublicKey); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrDelivery, err)
	}
	s.deps.Log.Info(ctx, "identity generated", "fingerprint", cryptox.Fingerprint(pair.PublicKey))
	return nil
}

// CreateChat creates a chat with the given other participants. For a direct
// chat, an existing chat for the same unordered pair is returned instead of
// a duplicate. For a group, the initial secret (version 1) is derived and
// distributed to all members.
func (s *Service) CreateChat(ctx context.Context, participantIDs []string, isGroup bool, name string) (*models.Chat, error) {
	self := s.deps.Session.UserID()
	if self == "" {
		return nil, shared.ErrAuthorization
	}

	roster := dedupe(append([]string{self}, participantIDs...))

	if !isGroup {
		if len(roster) != 2 {
			return nil, fmt.Errorf("%w: direct chat needs exactly one peer", shared.ErrDerivation)
		}
		return s.createDirectChat(ctx, self, otherOf(roster, self))
	}

	chat := &models.Chat{
		ID:           uuid.NewString(),
		Name:         name,
		IsGroup:      true,
		Participants: roster,
		KeyVersion:   1,
		CreatedBy:    self,
		CreatedAt:    time.Now(),
	}

	if err := s.deps.Members.SetParticipants(ctx, chat.ID, roster); err != nil {
		return nil, fmt.Errorf("%w: roster registration: %v", shared.ErrDelivery, err)
	}
	if _, err := s.deps.Rotation.DistributeInitialKey(ctx, chat); err != nil {
		return nil, err
	}
	if err := s.deps.Chats.Upsert(ctx, chat); err != nil {
		return nil, err
	}

	s.deps.Log.Info(ctx, "group chat created", "chat_id", chat.ID, "members", len(roster))
	return chat, nil
}

// directChatNamespace scopes the name-based ids of direct chats.
var directChatNamespace = uuid.MustParse("8c9d4f5e-2a71-4b0e-9d3c-6f1e8b2a7c54")

// directChatID is the same on both devices of an unordered pair, so each
// side of a direct chat publishes and subscribes on one shared channel.
func directChatID(a, b string) string {
	return uuid.NewSHA1(directChatNamespace, []byte(models.DirectKey(a, b))).String()
}

func (s *Service) createDirectChat(ctx context.Context, self, peer string) (*models.Chat, error) {
	existing, err := s.deps.Chats.FindDirect(ctx, self, peer)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}

	secret, err := s.directSecretFor(ctx, peer)
	if err != nil {
		return nil, err
	}

	chat := &models.Chat{
		ID:           directChatID(self, peer),
		IsGroup:      false,
		Participants: []string{self, peer},
		KeyVersion:   1,
		CreatedBy:    self,
		CreatedAt:    time.Now(),
	}

	if err := s.deps.Members.SetParticipants(ctx, chat.ID, chat.Participants); err != nil {
		return nil, fmt.Errorf("%w: roster registration: %v", shared.ErrDelivery, err)
	}
	if err := s.deps.Chats.Upsert(ctx, chat); err != nil {
		return nil, err
	}
	if err := s.deps.Sealed.SaveChatKey(ctx, s.deps.Sealed.Keys(), &models.ChatKeyEntry{
		ChatID:  chat.ID,
		Secret:  secret,
		Version: 1,
	}); err != nil {
		return nil, err
	}
	s.deps.Keys.CacheSecret(chat.ID, 1, secret)

	return chat, nil
}

// directSecretFor derives the pairwise secret with peer from the directory's
// current key for them.
func (s *Service) directSecretFor(ctx context.Context, peer string) (string, error) {
	pubKeys, err := s.deps.Directory.PublicKeys(ctx, []string{peer})
	if err != nil {
		return "", fmt.Errorf("%w: key lookup: %v", shared.ErrDerivation, err)
	}
	peerPub, ok := pubKeys[peer]
	if !ok {
		return "", fmt.Errorf("%w: no public key for %s", shared.ErrDerivation, peer)
	}
	return s.deps.Keys.DeriveDirectSecret(peerPub)
}

// SendMessage encrypts and publishes a message. A transport failure is not
// surfaced: the plaintext request is queued and the returned message carries
// MessageStatusPending.
func (s *Service) SendMessage(ctx context.Context, chatID, content string, msgType models.MessageType, fileData []byte, fileName string) (*models.Message, error) {
	self := s.deps.Session.UserID()

	chat, err := s.deps.Chats.Get(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if !chat.HasParticipant(self) {
		return nil, fmt.Errorf("%w: not a participant of chat %s", shared.ErrAuthorization, chatID)
	}

	pending := &models.PendingMessage{
		ID:        uuid.NewString(),
		ChatID:    chatID,
		Content:   content,
		Type:      msgType,
		FileData:  fileData,
		FileName:  fileName,
		CreatedAt: time.Now(),
	}

	msg := &models.Message{
		ID:       pending.ID,
		ChatID:   chatID,
		SenderID: self,
		Type:     msgType,
		Content:  content,
		FileName: fileName,
		FileSize: int64(len(fileData)),
		SentAt:   pending.CreatedAt,
		Status:   models.MessageStatusSent,
	}

	unlock := s.lockChat(chatID)
	err = s.encryptAndPublish(ctx, chat, pending)
	unlock()

	if err == nil {
		return msg, nil
	}
	if !errors.Is(err, shared.ErrDelivery) {
		// Cryptographic and authorization failures propagate; only transport
		// failures are converted into queued retries.
		return nil, err
	}

	if qerr := s.outbox.Enqueue(ctx, pending); qerr != nil {
		return nil, errors.Join(err, qerr)
	}
	msg.Status = models.MessageStatusPending
	return msg, nil
}

// retrySend is the outbox's send function: the full pipeline re-runs so the
// message is encrypted under whatever key version is current at retry time.
func (s *Service) retrySend(ctx context.Context, pending *models.PendingMessage) error {
	chat, err := s.deps.Chats.Get(ctx, pending.ChatID)
	if err != nil {
		return err
	}
	if !chat.HasParticipant(s.deps.Session.UserID()) {
		return fmt.Errorf("%w: no longer a participant", shared.ErrAuthorization)
	}

	unlock := s.lockChat(chat.ID)
	defer unlock()
	return s.encryptAndPublish(ctx, chat, pending)
}

// encryptAndPublish is the send pipeline. Callers hold the chat lock.
func (s *Service) encryptAndPublish(ctx context.Context, chat *models.Chat, pending *models.PendingMessage) error {
	secret, version, err := s.currentSecret(ctx, chat)
	if err != nil {
		return err
	}

	selfPub, err := s.deps.Keys.PublicKey()
	if err != nil {
		return err
	}

	env := &models.Envelope{
		Kind:            models.EnvelopeKindMessage,
		MessageID:       pending.ID,
		ChatID:          chat.ID,
		SenderID:        s.deps.Session.UserID(),
		SenderPublicKey: selfPub,
		KeyVersion:      version,
		Type:            pending.Type,
		SentAt:          time.Now(),
	}

	if pending.Content != "" {
		env.Ciphertext, err = cryptox.Encrypt(pending.Content, secret)
		if err != nil {
			return err
		}
	}

	if len(pending.FileData) > 0 {
		if err := s.attachFile(ctx, env, pending, secret); err != nil {
			return err
		}
	}

	return s.deps.Transport.Publish(ctx, env)
}

// attachFile seals the file under a fresh single-use key, uploads the
// ciphertext to object storage, and places the file key (itself encrypted
// under the chat secret) into the envelope.
func (s *Service) attachFile(ctx context.Context, env *models.Envelope, pending *models.PendingMessage, secret string) error {
	ciphertext, fileKey, err := cryptox.EncryptFile(pending.FileData)
	if err != nil {
		return err
	}

	key := blob.NewObjectKey()
	if err := s.deps.Blobs.Put(ctx, key, ciphertext); err != nil {
		return fmt.Errorf("%w: blob upload: %v", shared.ErrDelivery, err)
	}

	sealedKey, err := cryptox.Encrypt(fileKey, secret)
	if err != nil {
		return err
	}

	env.BlobKey = key
	env.FileKey = sealedKey
	env.FileName = pending.FileName
	env.FileSize = int64(len(pending.FileData))
	return nil
}

// currentSecret resolves the chat's secret at its current key version:
// in-memory cache first, then the sealed local store, then (direct chats
// only) a fresh derivation from the peer's directory key.
func (s *Service) currentSecret(ctx context.Context, chat *models.Chat) (string, int, error) {
	if secret, ok := s.deps.Keys.Secret(chat.ID, chat.KeyVersion); ok {
		return secret, chat.KeyVersion, nil
	}

	entry, err := s.deps.Sealed.LoadChatKey(ctx, chat.ID)
	if err == nil {
		if entry.Version != chat.KeyVersion {
			return "", 0, fmt.Errorf("%w: stored key is v%d, chat is v%d", shared.ErrRotationConflict, entry.Version, chat.KeyVersion)
		}
		s.deps.Keys.CacheSecret(chat.ID, entry.Version, entry.Secret)
		return entry.Secret, entry.Version, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return "", 0, err
	}

	if chat.IsGroup {
		return "", 0, fmt.Errorf("%w: no key for group chat %s", shared.ErrRotationConflict, chat.ID)
	}

	peer := otherOf(chat.Participants, s.deps.Session.UserID())
	secret, err := s.directSecretFor(ctx, peer)
	if err != nil {
		return "", 0, err
	}
	if err := s.deps.Sealed.SaveChatKey(ctx, s.deps.Sealed.Keys(), &models.ChatKeyEntry{
		ChatID:  chat.ID,
		Secret:  secret,
		Version: chat.KeyVersion,
	}); err != nil {
		return "", 0, err
	}
	s.deps.Keys.CacheSecret(chat.ID, chat.KeyVersion, secret)
	return secret, chat.KeyVersion, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	result := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		result = append(result, id)
	}
	return result
}

func otherOf(pair []string, self string) string {
	for _, id := range pair {
		if id != self {
			return id
		}
	}
	return ""
}
