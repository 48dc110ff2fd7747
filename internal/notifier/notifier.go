// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package notifier runs the fleet of heartbeat worker goroutines that
// drain Schedule and re-notify each device roughly once per interval,
// exploiting HTTP/2 pipelining across two shared APNS connections.
package notifier

import (
	"context"
	"time"

	"github.com/deltachat/notifiers-relay/internal/apns"
	"github.com/deltachat/notifiers-relay/internal/logging"
	"github.com/deltachat/notifiers-relay/internal/state"
	"github.com/deltachat/notifiers-relay/internal/token"
)

// WorkerCount is the fixed fleet size. APNS throughput on a single
// HTTP/2 connection is bounded by concurrent-stream limits; many
// workers sharing two underlying connection pools exploits pipelining.
const WorkerCount = 50

// Run starts WorkerCount identical worker goroutines, each looping
// until ctx is canceled. It returns once every worker has exited.
func Run(ctx context.Context, st *state.State, interval time.Duration) {
	done := make(chan struct{}, WorkerCount)
	for i := 0; i < WorkerCount; i++ {
		go func() {
			worker(ctx, st, interval)
			done <- struct{}{}
		}()
	}
	for i := 0; i < WorkerCount; i++ {
		<-done
	}
}

func worker(ctx context.Context, st *state.State, interval time.Duration) {
	logger := logging.Default().WithComponent("notifier")
	logger.Info("waking up devices", "interval", interval)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		st.Metrics.HeartbeatTokens.Set(float64(st.Schedule.Count()))

		ts, tok, ok, err := st.Schedule.Pop()
		if err != nil {
			logger.Error("failed to pop schedule", "error", err)
			sleep(ctx, 60*time.Second)
			continue
		}
		if !ok {
			sleep(ctx, 60*time.Second)
			continue
		}

		now := time.Now()
		popped := time.Unix(int64(ts), 0)
		if popped.After(now) {
			popped = now
		}
		wakeAt := popped.Add(interval)
		if delay := wakeAt.Sub(now); delay > 0 {
			sleep(ctx, delay)
		}

		if err := wakeup(ctx, st, tok); err != nil {
			logger.Error("failed to notify token", "token", tok, "error", err)
			sleep(ctx, 60*time.Second)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// wakeup delivers one silent heartbeat push and updates the schedule
// accordingly. Only APNS tokens (production or sandbox) are eligible
// for heartbeats; any other variant is dropped from the schedule.
func wakeup(ctx context.Context, st *state.State, raw string) error {
	logger := logging.Default().WithComponent("notifier")
	logger.Debug("notify", "token", raw)

	parsed, err := token.Parse(raw)
	if err != nil {
		return st.Schedule.Remove(raw)
	}

	var client state.APNSSender
	switch parsed.Variant {
	case token.VariantAPNSSandbox:
		client = st.Sandbox
	case token.VariantAPNSProduction:
		client = st.Production
	default:
		return st.Schedule.Remove(raw)
	}

	resp, err := client.Send(ctx, parsed.Value, apns.SilentPayload(), apns.PriorityNormal, "background")
	switch {
	case err == nil:
		logger.Info("delivered heartbeat", "token", parsed.Value)
		if resp.StatusCode == 200 {
			st.Metrics.HeartbeatNotifications.Inc()
		}
		return st.Schedule.InsertNow(raw)

	default:
		if respErr, ok := err.(*apns.ResponseError); ok {
			logger.Info("removing token due to apns error", "token", parsed.Value, "status", respErr.StatusCode)
			return st.Schedule.Remove(raw)
		}
		// Transport-level failure: reinsert at now to avoid a dead token
		// monopolising the heap.
		return st.Schedule.InsertNow(raw)
	}
}
