// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package fcm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	relerrors "github.com/deltachat/notifiers-relay/internal/errors"
)

func TestValidToken(t *testing.T) {
	if !ValidToken("abc123_-:XYZ") {
		t.Error("expected token with allowed characters to validate")
	}
	if ValidToken("abc 123") {
		t.Error("expected token with a space to be rejected")
	}
	if ValidToken("abc/123") {
		t.Error("expected token with a slash to be rejected")
	}
}

func TestSendRejectsMalformedTokenWithoutNetworkCall(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	prior := sendURL
	sendURL = server.URL
	defer func() { sendURL = prior }()

	client := &Client{httpClient: server.Client()}
	err := client.Send(context.Background(), "bad token!")
	if err == nil {
		t.Fatal("expected error for malformed token")
	}
	if called {
		t.Error("expected no network call for malformed token")
	}
}

func TestSendSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	prior := sendURL
	sendURL = server.URL
	defer func() { sendURL = prior }()

	client := &Client{httpClient: server.Client()}
	if err := client.Send(context.Background(), "valid-token_123"); err != nil {
		t.Fatalf("Send: %v", err)
	}
}

func TestSendClientErrorIsGone(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	prior := sendURL
	sendURL = server.URL
	defer func() { sendURL = prior }()

	client := &Client{httpClient: server.Client()}
	if err := client.Send(context.Background(), "valid-token_123"); relerrors.GetKind(err) != relerrors.KindGone {
		t.Fatalf("expected KindGone error for 400 response, got %v", err)
	}
}

func TestSendServerErrorIsInternal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	prior := sendURL
	sendURL = server.URL
	defer func() { sendURL = prior }()

	client := &Client{httpClient: server.Client()}
	if err := client.Send(context.Background(), "valid-token_123"); relerrors.GetKind(err) != relerrors.KindInternal {
		t.Fatalf("expected KindInternal error for 500 response, got %v", err)
	}
}
