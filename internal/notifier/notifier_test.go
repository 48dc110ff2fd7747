// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package notifier

import (
	"context"
	"net/http"
	"path/filepath"
	"testing"

	"github.com/deltachat/notifiers-relay/internal/apns"
	"github.com/deltachat/notifiers-relay/internal/metrics"
	"github.com/deltachat/notifiers-relay/internal/schedule"
	"github.com/deltachat/notifiers-relay/internal/state"
)

type fakeAPNS struct {
	resp *apns.Response
	err  error
	sent []string
}

func (f *fakeAPNS) Send(ctx context.Context, deviceToken string, payload apns.Payload, priority int, pushType string) (*apns.Response, error) {
	f.sent = append(f.sent, deviceToken)
	return f.resp, f.err
}

func newTestState(t *testing.T, production state.APNSSender) *state.State {
	t.Helper()
	s, err := schedule.Open(filepath.Join(t.TempDir(), "db.sqlite"))
	if err != nil {
		t.Fatalf("Open schedule: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return &state.State{
		Schedule:   s,
		Production: production,
		Sandbox:    production,
		Metrics:    metrics.NewRegistry(),
	}
}

func TestWakeupSuccessReinsertsAtNow(t *testing.T) {
	fake := &fakeAPNS{resp: &apns.Response{StatusCode: http.StatusOK}}
	st := newTestState(t, fake)

	if err := st.Schedule.Insert("AAAA", 10); err != nil {
		t.Fatal(err)
	}
	if err := wakeup(context.Background(), st, "AAAA"); err != nil {
		t.Fatalf("wakeup: %v", err)
	}

	ts, tok, ok, err := st.Schedule.Pop()
	if err != nil || !ok || tok != "AAAA" || ts == 10 {
		t.Fatalf("expected token reinserted at now, got (%d, %s, %v, %v)", ts, tok, ok, err)
	}
}

func TestWakeupUnregisteredRemovesToken(t *testing.T) {
	fake := &fakeAPNS{err: &apns.ResponseError{StatusCode: http.StatusGone}}
	st := newTestState(t, fake)

	if err := st.Schedule.Insert("DEAD", 10); err != nil {
		t.Fatal(err)
	}
	if err := wakeup(context.Background(), st, "DEAD"); err != nil {
		t.Fatalf("wakeup: %v", err)
	}

	_, _, ok, err := st.Schedule.Pop()
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("expected token to be removed from schedule")
	}
}

func TestWakeupNonAPNSTokenIsDropped(t *testing.T) {
	fake := &fakeAPNS{}
	st := newTestState(t, fake)

	if err := st.Schedule.Insert("fcm-chat.delta:XYZ", 10); err != nil {
		t.Fatal(err)
	}
	if err := wakeup(context.Background(), st, "fcm-chat.delta:XYZ"); err != nil {
		t.Fatalf("wakeup: %v", err)
	}
	if len(fake.sent) != 0 {
		t.Error("expected no APNS call for a non-APNS token")
	}

	_, _, ok, err := st.Schedule.Pop()
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("expected non-APNS token to be dropped from schedule")
	}
}
