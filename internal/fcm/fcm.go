// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package fcm delivers Android push notifications through Firebase
// Cloud Messaging, authenticated with a Google service-account OAuth2
// bearer token.
package fcm

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"os"
	"regexp"
	"time"

	"golang.org/x/oauth2/google"

	relerrors "github.com/deltachat/notifiers-relay/internal/errors"
)

const authScope = "https://www.googleapis.com/auth/firebase.messaging"

// sendURL is a var, not a const, so tests can redirect delivery to a
// local fixture server.
var sendURL = "https://fcm.googleapis.com/v1/projects/delta-chat-fcm/messages:send"

var tokenPattern = regexp.MustCompile(`^[A-Za-z0-9_:-]+$`)

// Client sends FCM "data" messages authenticated by a service-account
// key, loaded once at startup and reused for the process lifetime.
type Client struct {
	httpClient *http.Client
}

// New builds a Client from a service-account JSON key file at keyPath.
// The returned http.Client attaches a fresh bearer token to every
// request, refreshing it automatically as it nears expiry.
func New(keyPath string) (*Client, error) {
	raw, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, relerrors.Wrap(err, relerrors.KindUnavailable, "read fcm service account key")
	}

	jwtConfig, err := google.JWTConfigFromJSON(raw, authScope)
	if err != nil {
		return nil, relerrors.Wrap(err, relerrors.KindValidation, "parse fcm service account key")
	}

	httpClient := jwtConfig.Client(context.Background())
	httpClient.Timeout = 60 * time.Second

	return &Client{httpClient: httpClient}, nil
}

// Send delivers a data-only message to token, carrying the fixed
// "level": "awesome" payload the chat client reacts to by polling.
// Tokens must match [A-Za-z0-9_:-]+; a malformed token is treated as
// already-unregistered (KindGone) without a network round trip.
func (c *Client) Send(ctx context.Context, token string) error {
	if !tokenPattern.MatchString(token) {
		return relerrors.New(relerrors.KindGone, "fcm token contains invalid characters")
	}

	body, err := json.Marshal(map[string]any{
		"message": map[string]any{
			"token": token,
			"data":  map[string]any{"level": "awesome"},
		},
	})
	if err != nil {
		return relerrors.Wrap(err, relerrors.KindInternal, "marshal fcm request body")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sendURL, bytes.NewReader(body))
	if err != nil {
		return relerrors.Wrap(err, relerrors.KindInternal, "build fcm request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return relerrors.Wrap(err, relerrors.KindUnavailable, "send fcm request")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return relerrors.Errorf(relerrors.KindGone, "fcm rejected token %s: status %d", token, resp.StatusCode)
	default:
		return relerrors.Errorf(relerrors.KindInternal, "fcm delivery failed: status %d", resp.StatusCode)
	}
}

// ValidToken reports whether token matches the character set FCM device
// tokens are restricted to.
func ValidToken(token string) bool {
	return tokenPattern.MatchString(token)
}
