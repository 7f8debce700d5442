package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestFrameCounter(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.Frame("onlineUsersChanged", "handled")
	m.Frame("onlineUsersChanged", "handled")
	m.Frame("", "malformed")

	if got := testutil.ToFloat64(m.FramesTotal.WithLabelValues("onlineUsersChanged", "handled")); got != 2 {
		t.Errorf("expected 2 handled frames, got %v", got)
	}
	if got := testutil.ToFloat64(m.FramesTotal.WithLabelValues("unknown", "malformed")); got != 1 {
		t.Errorf("expected 1 malformed frame, got %v", got)
	}
}

func TestConnectionStateIsExclusive(t *testing.T) {
	m := New(nil)

	m.SetConnectionState("connecting")
	m.SetConnectionState("open")

	if got := testutil.ToFloat64(m.ConnectionState.WithLabelValues("open")); got != 1 {
		t.Errorf("expected open=1, got %v", got)
	}
	if got := testutil.ToFloat64(m.ConnectionState.WithLabelValues("connecting")); got != 0 {
		t.Errorf("expected connecting=0, got %v", got)
	}
}

func TestSnapshotAndConnectResults(t *testing.T) {
	m := New(nil)

	m.Snapshot("conversations", nil)
	m.Snapshot("conversations", errors.New("boom"))
	m.ConnectAttempt(errors.New("refused"))

	if got := testutil.ToFloat64(m.SnapshotFetches.WithLabelValues("conversations", "error")); got != 1 {
		t.Errorf("expected 1 failed fetch, got %v", got)
	}
	if got := testutil.ToFloat64(m.ConnectAttempts.WithLabelValues("error")); got != 1 {
		t.Errorf("expected 1 failed attempt, got %v", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.Frame("x", "handled")
	m.SetUnread(3)
	m.SetConnectionState("open")
}
