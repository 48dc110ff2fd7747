// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package ubports delivers push notifications to Ubuntu Touch devices
// through the UBports push notification service, a plain unauthenticated
// HTTPS JSON endpoint.
package ubports

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"regexp"
	"time"

	relerrors "github.com/deltachat/notifiers-relay/internal/errors"
)

const appID = "deltatouch.lotharketterer_deltatouch"

// sendURL is a var, not a const, so tests can redirect delivery to a
// local fixture server.
var sendURL = "https://push.ubports.com/notify"

var tokenPattern = regexp.MustCompile(`^[A-Za-z0-9_:-]+$`)

// Client sends UBports notify requests over a shared http.Client.
type Client struct {
	httpClient *http.Client
}

// New builds a Client with a 60-second request timeout.
func New() *Client {
	return &Client{httpClient: &http.Client{Timeout: 60 * time.Second}}
}

// ValidToken reports whether token matches the character set UBports
// push tokens are restricted to.
func ValidToken(token string) bool {
	return tokenPattern.MatchString(token)
}

// Send posts a notify request for token, expiring seven days from now.
// A malformed token is treated as already-unregistered (KindGone)
// without a network round trip.
func (c *Client) Send(ctx context.Context, token string) error {
	if !ValidToken(token) {
		return relerrors.New(relerrors.KindGone, "ubports token contains invalid characters")
	}

	body, err := json.Marshal(map[string]any{
		"appid":     appID,
		"token":     token,
		"expire_on": time.Now().Add(7 * 24 * time.Hour).Format(time.RFC3339),
	})
	if err != nil {
		return relerrors.Wrap(err, relerrors.KindInternal, "marshal ubports request body")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sendURL, bytes.NewReader(body))
	if err != nil {
		return relerrors.Wrap(err, relerrors.KindInternal, "build ubports request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return relerrors.Wrap(err, relerrors.KindUnavailable, "send ubports request")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return relerrors.Errorf(relerrors.KindGone, "ubports rejected token %s: status %d", token, resp.StatusCode)
	default:
		return relerrors.Errorf(relerrors.KindInternal, "ubports delivery failed: status %d", resp.StatusCode)
	}
}
