// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package apns implements the relay's two long-lived, client-certificate
// authenticated HTTP/2 connections to Apple's push gateway (production
// and sandbox), shared by every notifier worker and the HTTP front end.
package apns

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"golang.org/x/net/http2"

	relerrors "github.com/deltachat/notifiers-relay/internal/errors"
)

const (
	productionHost = "https://api.push.apple.com"
	sandboxHost     = "https://api.sandbox.push.apple.com"

	// PriorityNormal lets Apple schedule delivery based on power
	// considerations on the user's device, used for silent heartbeats.
	PriorityNormal = 5
	// PriorityHigh requests immediate delivery, used for visible alerts.
	PriorityHigh = 10
)

// Client is one long-lived HTTP/2 connection to an APNS environment,
// authenticated by a client certificate extracted from a PKCS#12
// bundle. Its lifetime is the process lifetime; it is safe for
// concurrent use by every notifier worker and HTTP handler.
type Client struct {
	host       string
	httpClient *http.Client
	topic      string
}

// NewPair builds the production and sandbox clients from one PKCS#12
// bundle read from certPath, decrypted with password. The file is read
// once per client, so each client owns its own independent TLS
// certificate chain.
func NewPair(certPath, password, topic string) (production, sandbox *Client, err error) {
	production, err = newClient(productionHost, certPath, password, topic)
	if err != nil {
		return nil, nil, relerrors.Wrap(err, relerrors.KindUnavailable, "build production apns client")
	}
	sandbox, err = newClient(sandboxHost, certPath, password, topic)
	if err != nil {
		return nil, nil, relerrors.Wrap(err, relerrors.KindUnavailable, "build sandbox apns client")
	}
	return production, sandbox, nil
}

func newClient(host, certPath, password, topic string) (*Client, error) {
	raw, err := os.ReadFile(certPath)
	if err != nil {
		return nil, relerrors.Wrap(err, relerrors.KindUnavailable, "read certificate file")
	}

	cert, err := certificateFromPKCS12(raw, password)
	if err != nil {
		return nil, relerrors.Wrap(err, relerrors.KindValidation, "parse pkcs12 bundle")
	}

	transport := &http2.Transport{
		TLSClientConfig: &tls.Config{
			Certificates: []tls.Certificate{cert},
		},
	}

	return &Client{
		host:  host,
		topic: topic,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   30 * time.Second,
		},
	}, nil
}

// Payload is the JSON body of an APNS notification request.
type Payload struct {
	APS map[string]any `json:"aps"`
}

// SilentPayload builds the background heartbeat push: content-available
// set, no alert/badge/sound, so iOS never surfaces it to the user.
func SilentPayload() Payload {
	return Payload{APS: map[string]any{"content-available": 1}}
}

// AlertPayload builds the visible "you have new messages" push with
// localisation keys, so the client can render it in the user's language.
func AlertPayload() Payload {
	return Payload{APS: map[string]any{
		"alert": map[string]any{
			"title":          "New messages",
			"title-loc-key":  "new_messages",
			"body":           "You have new messages",
			"loc-key":        "new_messages_body",
		},
		"sound":            "default",
		"mutable-content":  1,
	}}
}

// Response is a successful (200) APNS reply.
type Response struct {
	StatusCode int
	ApnsID     string
}

// ResponseError is a non-200 reply from APNS, carrying the reason from
// its JSON body, as opposed to a transport-level failure.
type ResponseError struct {
	StatusCode int
	Reason     string
	Timestamp  int64
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("apns response error: status=%d reason=%s", e.StatusCode, e.Reason)
}

// Unregistered reports whether this error means the token is dead and
// should be dropped for good (HTTP 410, reason "Unregistered").
func (e *ResponseError) Unregistered() bool {
	return e.StatusCode == http.StatusGone
}

type errorBody struct {
	Reason    string `json:"reason"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// Send posts payload to deviceToken with the given priority and push
// type ("background" or "alert"), and returns either a Response (status
// 200), a *ResponseError (any other status APNS answered with), or a
// transport-level error.
func (c *Client) Send(ctx context.Context, deviceToken string, payload Payload, priority int, pushType string) (*Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, relerrors.Wrap(err, relerrors.KindInternal, "marshal apns payload")
	}

	url := fmt.Sprintf("%s/3/device/%s", c.host, deviceToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, relerrors.Wrap(err, relerrors.KindInternal, "build apns request")
	}

	req.Header.Set("apns-priority", fmt.Sprintf("%d", priority))
	req.Header.Set("apns-push-type", pushType)
	if c.topic != "" {
		req.Header.Set("apns-topic", c.topic)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, relerrors.Wrap(err, relerrors.KindUnavailable, "send apns request")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return &Response{StatusCode: resp.StatusCode, ApnsID: resp.Header.Get("apns-id")}, nil
	}

	raw, _ := io.ReadAll(resp.Body)
	var eb errorBody
	_ = json.Unmarshal(raw, &eb)
	return nil, &ResponseError{StatusCode: resp.StatusCode, Reason: eb.Reason, Timestamp: eb.Timestamp}
}
