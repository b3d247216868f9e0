// Package models defines the chat, message and key-material types shared by
// the encryption core.
package models

import (
	"sort"
	"strings"
	"time"
)

// KeyPair is the local identity's long-term key material. The private key
// never leaves the device; both halves are opaque hex strings.
type KeyPair struct {
	PublicKey  string `json:"publicKey"`
	PrivateKey string `json:"privateKey"`
}

// ChatKeyEntry is the current shared secret for one chat. At most one current
// version is persisted per chat; older versions live only in the in-memory
// cache while in-flight messages drain.
type ChatKeyEntry struct {
	ChatID  string `json:"chatId"`
	Secret  string `json:"secret"`
	Version int    `json:"version"`
}

// Chat holds the membership metadata the core needs to encrypt for a chat.
// The creator is implicitly the admin.
type Chat struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	IsGroup      bool      `json:"isGroup"`
	Participants []string  `json:"participants"`
	KeyVersion   int       `json:"keyVersion"`
	CreatedBy    string    `json:"createdBy"`
	CreatedAt    time.Time `json:"createdAt"`
}

// HasParticipant reports whether userID is a member of the chat.
func (c *Chat) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// IsAdmin reports whether userID may mutate the chat's membership.
func (c *Chat) IsAdmin(userID string) bool {
	return c.CreatedBy == userID
}

// DirectKey returns the canonical identifier of the unordered participant
// pair of a direct chat. Both participants compute the same value, which is
// what makes direct-chat deduplication possible.
func DirectKey(a, b string) string {
	pair := []string{a, b}
	sort.Strings(pair)
	return strings.Join(pair, "|")
}
