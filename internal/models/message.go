package models

import "time"

// MessageType classifies a message payload.
type MessageType string

const (
	MessageTypeText  MessageType = "text"
	MessageTypeImage MessageType = "image"
	MessageTypeFile  MessageType = "file"
)

// MessageStatus reflects delivery progress as seen by the sender.
type MessageStatus string

const (
	// MessageStatusSent means the transport accepted the envelope.
	MessageStatusSent MessageStatus = "sent"
	// MessageStatusPending means the send failed and the message sits in the
	// outbox awaiting retry.
	MessageStatusPending MessageStatus = "pending"
)

// Message is the decrypted, in-memory view of a chat message. Content is
// plaintext and must never be persisted remotely.
type Message struct {
	ID        string        `json:"id"`
	ChatID    string        `json:"chatId"`
	SenderID  string        `json:"senderId"`
	Type      MessageType   `json:"messageType"`
	Content   string        `json:"content"`
	FileData  []byte        `json:"-"`
	FileName  string        `json:"fileName,omitempty"`
	FileSize  int64         `json:"fileSize,omitempty"`
	ReplyTo   string        `json:"replyTo,omitempty"`
	ExpiresAt *time.Time    `json:"expiresAt,omitempty"`
	SentAt    time.Time     `json:"createdAt"`
	Status    MessageStatus `json:"-"`
}

// PendingMessage is an outbound send that has not been acknowledged by the
// transport. The original plaintext request is kept (not ciphertext) so a
// retry re-encrypts under the key version current at that moment.
type PendingMessage struct {
	ID         string      `json:"id"`
	ChatID     string      `json:"chatId"`
	Content    string      `json:"content"`
	Type       MessageType `json:"messageType"`
	FileData   []byte      `json:"fileData,omitempty"`
	FileName   string      `json:"fileName,omitempty"`
	RetryCount int         `json:"retryCount"`
	CreatedAt  time.Time   `json:"createdAt"`
}
