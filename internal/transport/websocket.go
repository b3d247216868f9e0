package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/akuznecov/whisperkit/internal/logging"
	"github.com/akuznecov/whisperkit/internal/models"
	"github.com/akuznecov/whisperkit/internal/session"
	"github.com/akuznecov/whisperkit/internal/shared"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultWriteTimeout     = 10 * time.Second
)

// frame is the relay's wire protocol: an action plus an envelope. The relay
// fans envelopes out to every subscriber of the chat.
type frame struct {
	Action   string           `json:"action"` // publish | subscribe | unsubscribe | deliver
	ChatID   string           `json:"chatId"`
	Envelope *models.Envelope `json:"envelope,omitempty"`
}

// WSTransport implements Transport over a single websocket connection to the
// relay. Writes are serialized with a mutex (gorilla connections allow one
// concurrent writer); a background read loop dispatches inbound envelopes to
// per-chat handlers.
type WSTransport struct {
	conn *websocket.Conn
	log  logging.Logger

	writeMu sync.Mutex

	mu       sync.RWMutex
	handlers map[string][]subscription
	nextSub  int
	closed   bool
}

type subscription struct {
	id int
	h  Handler
}

// DialWS connects to the relay, authenticating with the session token, and
// starts the read loop.
func DialWS(ctx context.Context, wsURL string, sess *session.Session, log logging.Logger) (*WSTransport, error) {
	token, err := sess.Token()
	if err != nil {
		return nil, err
	}

	dialer := websocket.Dialer{HandshakeTimeout: defaultHandshakeTimeout}
	header := http.Header{"Authorization": {"Bearer " + token}}

	conn, _, err := dialer.DialContext(ctx, wsURL, header)
	if err != nil {
		return nil, fmt.Errorf("%w: dial: %v", shared.ErrDelivery, err)
	}

	t := &WSTransport{
		conn:     conn,
		log:      log,
		handlers: make(map[string][]subscription),
	}
	go t.readLoop()
	return t, nil
}

func (t *WSTransport) Publish(ctx context.Context, env *models.Envelope) error {
	if err := t.write(ctx, frame{Action: "publish", ChatID: env.ChatID, Envelope: env}); err != nil {
		return fmt.Errorf("%w: publish: %v", shared.ErrDelivery, err)
	}
	return nil
}

func (t *WSTransport) Subscribe(ctx context.Context, chatID string, h Handler) (func(), error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, fmt.Errorf("%w: transport closed", shared.ErrDelivery)
	}
	t.nextSub++
	id := t.nextSub
	first := len(t.handlers[chatID]) == 0
	t.handlers[chatID] = append(t.handlers[chatID], subscription{id: id, h: h})
	t.mu.Unlock()

	if first {
		if err := t.write(ctx, frame{Action: "subscribe", ChatID: chatID}); err != nil {
			t.removeHandler(chatID, id)
			return nil, fmt.Errorf("%w: subscribe: %v", shared.ErrDelivery, err)
		}
	}

	cancel := func() {
		if last := t.removeHandler(chatID, id); last {
			_ = t.write(context.Background(), frame{Action: "unsubscribe", ChatID: chatID})
		}
	}
	return cancel, nil
}

func (t *WSTransport) Close() error {
	t.mu.Lock()
	t.closed = true
	t.handlers = make(map[string][]subscription)
	t.mu.Unlock()
	return t.conn.Close()
}

// removeHandler drops a subscription and reports whether it was the chat's
// last one.
func (t *WSTransport) removeHandler(chatID string, id int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	subs := t.handlers[chatID]
	for i, s := range subs {
		if s.id == id {
			t.handlers[chatID] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(t.handlers[chatID]) == 0 {
		delete(t.handlers, chatID)
		return true
	}
	return false
}

func (t *WSTransport) write(ctx context.Context, f frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}

	deadline := time.Now().Add(defaultWriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if err := t.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

func (t *WSTransport) readLoop() {
	ctx := context.Background()
	for {
		_, data, err := t.conn.ReadMessage()
		if err != nil {
			t.mu.RLock()
			closed := t.closed
			t.mu.RUnlock()
			if !closed {
				t.log.Warn(ctx, "transport read loop terminated", "error", err)
			}
			return
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			t.log.Warn(ctx, "dropping malformed frame", "error", err)
			continue
		}
		if f.Action != "deliver" || f.Envelope == nil {
			continue
		}

		t.mu.RLock()
		subs := make([]subscription, len(t.handlers[f.ChatID]))
		copy(subs, t.handlers[f.ChatID])
		t.mu.RUnlock()

		for _, s := range subs {
			s.h(f.Envelope)
		}
	}
}
