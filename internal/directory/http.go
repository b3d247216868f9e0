package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/akuznecov/whisperkit/internal/session"
	"github.com/akuznecov/whisperkit/internal/shared"
)

const defaultTimeout = 10 * time.Second

// HTTPDirectory implements KeyDirectory and Membership against the hosted
// backend's REST API, authenticating with the session token.
type HTTPDirectory struct {
	baseURL string
	client  *http.Client
	session *session.Session
}

func NewHTTPDirectory(baseURL string, sess *session.Session) *HTTPDirectory {
	return &HTTPDirectory{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: defaultTimeout},
		session: sess,
	}
}

func (d *HTTPDirectory) PublicKeys(ctx context.Context, userIDs []string) (map[string]string, error) {
	q := url.Values{"ids": {strings.Join(userIDs, ",")}}

	var result []struct {
		UserID    string `json:"userId"`
		PublicKey string `json:"publicKey"`
	}
	if err := d.do(ctx, http.MethodGet, "/v1/users/keys?"+q.Encode(), nil, &result); err != nil {
		return nil, fmt.Errorf("key lookup failed: %w", err)
	}

	keys := make(map[string]string, len(result))
	for _, r := range result {
		if r.PublicKey != "" {
			keys[r.UserID] = r.PublicKey
		}
	}
	return keys, nil
}

func (d *HTTPDirectory) PublishKey(ctx context.Context, userID, publicKey string) error {
	body := map[string]string{"userId": userID, "publicKey": publicKey}
	if err := d.do(ctx, http.MethodPut, "/v1/users/keys", body, nil); err != nil {
		return fmt.Errorf("key publish failed: %w", err)
	}
	return nil
}

func (d *HTTPDirectory) Participants(ctx context.Context, chatID string) ([]string, error) {
	var result struct {
		Participants []string `json:"participants"`
	}
	if err := d.do(ctx, http.MethodGet, "/v1/chats/"+url.PathEscape(chatID)+"/members", nil, &result); err != nil {
		return nil, fmt.Errorf("membership lookup failed: %w", err)
	}
	return result.Participants, nil
}

func (d *HTTPDirectory) SetParticipants(ctx context.Context, chatID string, userIDs []string) error {
	body := map[string][]string{"participants": userIDs}
	if err := d.do(ctx, http.MethodPut, "/v1/chats/"+url.PathEscape(chatID)+"/members", body, nil); err != nil {
		return fmt.Errorf("membership update failed: %w", err)
	}
	return nil
}

func (d *HTTPDirectory) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, d.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	token, err := d.session.Token()
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return shared.ErrAuthorization
	case resp.StatusCode == http.StatusNotFound:
		return shared.ErrNotFound
	case resp.StatusCode >= 300:
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("backend returned %s: %s", resp.Status, string(b))
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
