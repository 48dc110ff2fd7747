// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package state bundles the relay's shared handles — the durable
// schedule, the APNS/FCM/UBports clients, the OpenPGP decryptor, and
// the metrics registry — into one immutable value shared by every HTTP
// handler and notifier worker. Nothing outlives State; there is no
// back-reference from any component to it.
package state

import (
	"context"

	"github.com/deltachat/notifiers-relay/internal/apns"
	"github.com/deltachat/notifiers-relay/internal/metrics"
	"github.com/deltachat/notifiers-relay/internal/pgp"
	"github.com/deltachat/notifiers-relay/internal/schedule"
)

// APNSSender is the subset of *apns.Client the rest of the relay
// depends on, so tests can substitute a fake connection pool.
type APNSSender interface {
	Send(ctx context.Context, deviceToken string, payload apns.Payload, priority int, pushType string) (*apns.Response, error)
}

// FCMSender is the subset of *fcm.Client the rest of the relay depends
// on.
type FCMSender interface {
	Send(ctx context.Context, token string) error
}

// UBportsSender is the subset of *ubports.Client the rest of the relay
// depends on.
type UBportsSender interface {
	Send(ctx context.Context, token string) error
}

// State is the shared, immutable handle passed (by pointer, never
// copied mutably) to every goroutine the relay spawns.
type State struct {
	Schedule   *schedule.Schedule
	Production APNSSender
	Sandbox    APNSSender
	FCM        FCMSender
	UBports    UBportsSender
	PGP        *pgp.Decryptor // nil if no keyring was configured
	Metrics    *metrics.Registry
	Topic      string
}

// Client selects the production or sandbox APNS connection for a
// sandbox flag, as determined by TokenCodec's parse of the token.
func (s *State) Client(sandbox bool) APNSSender {
	if sandbox {
		return s.Sandbox
	}
	return s.Production
}
