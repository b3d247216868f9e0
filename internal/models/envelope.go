package models

import "time"

// EnvelopeKind distinguishes regular chat traffic from key distribution.
type EnvelopeKind string

const (
	// EnvelopeKindMessage carries encrypted chat content.
	EnvelopeKindMessage EnvelopeKind = "message"
	// EnvelopeKindKey carries a rotated chat secret, encrypted individually
	// for one recipient under the admin/recipient pairwise secret.
	EnvelopeKindKey EnvelopeKind = "keyenvelope"
)

// Envelope is the only wire format the core defines. It carries ciphertext
// plus everything a receiver needs to pick the right key version and sender
// identity. Plaintext never appears here.
type Envelope struct {
	Kind            EnvelopeKind `json:"kind"`
	MessageID       string       `json:"messageId"`
	ChatID          string       `json:"chatId"`
	SenderID        string       `json:"senderId"`
	SenderPublicKey string       `json:"senderPublicKey"`
	KeyVersion      int          `json:"keyVersion"`
	Type            MessageType  `json:"messageType,omitempty"`
	Ciphertext      string       `json:"ciphertextContent,omitempty"`

	// Attachment fields. The blob itself lives in object storage under
	// BlobKey; FileKey is the single-use file key, encrypted under the chat
	// secret so it can be rotated independently of chat-level keys.
	BlobKey  string `json:"blobKey,omitempty"`
	FileKey  string `json:"fileKey,omitempty"`
	FileName string `json:"fileName,omitempty"`
	FileSize int64  `json:"fileSize,omitempty"`

	// Key-envelope fields.
	RecipientID     string `json:"recipientId,omitempty"`
	EncryptedSecret string `json:"encryptedSecret,omitempty"`

	ReplyTo   string     `json:"replyTo,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	SentAt    time.Time  `json:"sentAt"`
}

// Expired reports whether the envelope carries an expiry that has passed.
// Expired envelopes are dropped before decryption.
func (e *Envelope) Expired(now time.Time) bool {
	return e.ExpiresAt != nil && now.After(*e.ExpiresAt)
}
