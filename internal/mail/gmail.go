package mail

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

const gmailSendURL = "https://gmail.googleapis.com/gmail/v1/users/me/messages/send"

// Gmail sends through the Gmail REST API. Credentials stay inside the token
// source; callers only ever see Send.
type Gmail struct {
	from     string
	client   *http.Client
	endpoint string
}

func NewGmail(from string, tokens oauth2.TokenSource, timeout time.Duration) *Gmail {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	client := oauth2.NewClient(context.Background(), tokens)
	client.Timeout = timeout
	return &Gmail{from: from, client: client, endpoint: gmailSendURL}
}

// WithEndpoint points the sender at a different API root (tests).
func (g *Gmail) WithEndpoint(url string) *Gmail {
	cp := *g
	cp.endpoint = url
	return &cp
}

func (g *Gmail) Send(ctx context.Context, msg Message) error {
	raw, err := buildMIME(g.from, msg)
	if err != nil {
		// a malformed address will not fix itself, but the engine retries every
		// failure on the next cycle anyway
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}

	payload, err := json.Marshal(map[string]string{
		"raw": base64.URLEncoding.EncodeToString(raw),
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) {
			return fmt.Errorf("%w: token refresh: %v", ErrAuth, err)
		}
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: status %d: %s", ErrAuth, resp.StatusCode, body)
	default:
		return fmt.Errorf("%w: status %d: %s", ErrTransient, resp.StatusCode, body)
	}
}
