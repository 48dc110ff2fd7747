// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package httpfront implements the relay's three public HTTP routes:
// liveness, heartbeat registration, and one-shot visible notification.
package httpfront

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/deltachat/notifiers-relay/internal/apns"
	relerrors "github.com/deltachat/notifiers-relay/internal/errors"
	"github.com/deltachat/notifiers-relay/internal/logging"
	"github.com/deltachat/notifiers-relay/internal/state"
	"github.com/deltachat/notifiers-relay/internal/token"
)

type requestIDKey struct{}

// requestIDMiddleware stamps each request with a correlation ID so a
// request's register/notify outcome can be traced through the logs.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), requestIDKey{}, uuid.NewString())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestID(r *http.Request) string {
	id, _ := r.Context().Value(requestIDKey{}).(string)
	return id
}

// Server is the relay's main HTTP listener.
type Server struct {
	addr   string
	state  *state.State
	logger *logging.Logger
	http   *http.Server
}

// New builds the main HTTP listener bound to addr (host:port).
func New(addr string, st *state.State) *Server {
	logger := logging.Default().WithComponent("httpfront")

	router := mux.NewRouter()
	router.Use(requestIDMiddleware)
	srv := &Server{addr: addr, state: st, logger: logger}

	router.HandleFunc("/", srv.handleRoot).Methods(http.MethodGet)
	router.HandleFunc("/register", srv.handleRegister).Methods(http.MethodPost)
	router.HandleFunc("/notify", srv.handleNotify).Methods(http.MethodPost)

	srv.http = &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv
}

// ListenAndServe blocks serving the relay's public HTTP surface until
// ctx is canceled or the listener fails.
func (s *Server) ListenAndServe(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.http.Shutdown(shutdownCtx)
	}()

	s.logger.Info("http front listening", "addr", s.addr)
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Hello, world!"))
}

type registerRequest struct {
	Token string `json:"token"`
}

// handleRegister accepts a heartbeat registration. Registration is
// indiscriminate: any token taxonomy is accepted and persisted; a
// NotifierWorker will drop it on first pop if it turns out not to be
// an APNS token.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed request body", http.StatusInternalServerError)
		return
	}

	tok, err := s.decryptIfWrapped(req.Token)
	if err != nil {
		s.logger.Warn("failed to decrypt registration token", "error", err)
		http.Error(w, "decryption failed", http.StatusInternalServerError)
		return
	}

	if err := s.state.Schedule.InsertNow(tok); err != nil {
		s.logger.Error("failed to insert schedule entry", "error", err)
		http.Error(w, "storage failure", http.StatusInternalServerError)
		return
	}
	if err := s.state.Schedule.Flush(); err != nil {
		s.logger.Error("failed to flush schedule", "error", err)
		http.Error(w, "storage failure", http.StatusInternalServerError)
		return
	}

	s.state.Metrics.HeartbeatRegistrations.Inc()
	s.logger.Info("registered heartbeat token", "request_id", requestID(r))
	w.WriteHeader(http.StatusOK)
}

// handleNotify delivers a single visible notification. The request
// body is the raw token string, not JSON.
func (s *Server) handleNotify(w http.ResponseWriter, r *http.Request) {
	raw, err := readBody(r)
	if err != nil {
		http.Error(w, "malformed request body", http.StatusInternalServerError)
		return
	}

	parsed, err := token.Parse(raw)
	if err != nil {
		http.Error(w, "malformed token", http.StatusInternalServerError)
		return
	}

	tok := raw
	if parsed.Variant == token.VariantEncrypted {
		if s.state.PGP == nil {
			s.state.Metrics.OpenPGPDecryptionFailures.Inc()
			http.Error(w, "token is gone", http.StatusGone)
			return
		}
		plaintext, err := s.state.PGP.Decrypt(parsed.Ciphertext)
		if err != nil {
			s.state.Metrics.OpenPGPDecryptionFailures.Inc()
			s.logger.Info("notify token failed to decrypt", "error", err)
			http.Error(w, "token is gone", http.StatusGone)
			return
		}
		tok = plaintext
		parsed, err = token.Parse(tok)
		if err != nil {
			http.Error(w, "malformed token", http.StatusInternalServerError)
			return
		}
	}

	s.logger.Info("dispatching notification", "request_id", requestID(r), "variant", parsed.Variant)

	switch parsed.Variant {
	case token.VariantUBports:
		s.notifyUBports(w, parsed.Value)
	case token.VariantFCM:
		s.notifyFCM(w, parsed.Value)
	case token.VariantAPNSSandbox:
		s.notifyAPNS(w, tok, parsed.Value, s.state.Sandbox)
	case token.VariantAPNSProduction:
		s.notifyAPNS(w, tok, parsed.Value, s.state.Production)
	default:
		http.Error(w, "malformed token", http.StatusInternalServerError)
	}
}

func (s *Server) notifyUBports(w http.ResponseWriter, value string) {
	if err := s.state.UBports.Send(context.Background(), value); err != nil {
		s.writeUpstreamError(w, relerrors.Attr(err, "token", value))
		return
	}
	s.state.Metrics.UBportsNotifications.Inc()
	w.WriteHeader(http.StatusOK)
}

func (s *Server) notifyFCM(w http.ResponseWriter, value string) {
	if err := s.state.FCM.Send(context.Background(), value); err != nil {
		s.writeUpstreamError(w, relerrors.Attr(err, "token", value))
		return
	}
	s.state.Metrics.FCMNotifications.Inc()
	w.WriteHeader(http.StatusOK)
}

// notifyAPNS sends a high-priority visible alert. rawToken (including
// any sandbox: prefix) is what Schedule.Remove expects.
func (s *Server) notifyAPNS(w http.ResponseWriter, rawToken, deviceToken string, client state.APNSSender) {
	resp, err := client.Send(context.Background(), deviceToken, apns.AlertPayload(), apns.PriorityHigh, "alert")
	if err != nil {
		if respErr, ok := err.(*apns.ResponseError); ok && respErr.Unregistered() {
			if remErr := s.state.Schedule.Remove(rawToken); remErr != nil {
				s.logger.Error("failed to remove unregistered token", "error", remErr)
			}
			http.Error(w, "token is gone", http.StatusGone)
			return
		}
		s.logger.Warn("apns delivery failed", "error", err)
		http.Error(w, "delivery failed", http.StatusInternalServerError)
		return
	}
	if resp.StatusCode == http.StatusOK {
		s.state.Metrics.DirectNotifications.Inc()
	}
	w.WriteHeader(http.StatusOK)
}

// writeUpstreamError maps an FCM/UBports delivery error to the HTTP
// status the chat server expects: KindGone (malformed token or 4xx) is
// 410, anything else is 500. Logs the token attribute attached by the
// caller so a failing device can be traced without leaking it into the
// HTTP response body.
func (s *Server) writeUpstreamError(w http.ResponseWriter, err error) {
	if relerrors.GetKind(err) == relerrors.KindGone {
		http.Error(w, "token is gone", http.StatusGone)
		return
	}
	s.logger.Warn("upstream delivery failed", "error", err, "attributes", relerrors.GetAttributes(err))
	http.Error(w, "delivery failed", http.StatusInternalServerError)
}

func readBody(r *http.Request) (string, error) {
	defer r.Body.Close()
	buf, err := io.ReadAll(r.Body)
	if err != nil {
		return "", err
	}
	return string(buf), nil
}

// decryptIfWrapped decrypts an openpgp: envelope for /register, where a
// decrypt failure is a 500, not 410 — the registration path has no
// "token is gone" signal to relay back to the chat server.
func (s *Server) decryptIfWrapped(raw string) (string, error) {
	parsed, err := token.Parse(raw)
	if err != nil {
		return raw, nil
	}
	if parsed.Variant != token.VariantEncrypted {
		return raw, nil
	}
	if s.state.PGP == nil {
		return "", relerrors.New(relerrors.KindInternal, "no openpgp keyring configured")
	}
	return s.state.PGP.Decrypt(parsed.Ciphertext)
}
