// Package metrics exposes Prometheus collectors for the real-time layer.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	// FramesTotal counts inbound frames by event and outcome
	// (handled|malformed|unknown|panic|stale).
	FramesTotal *prometheus.CounterVec

	// ConnectAttempts counts channel dial attempts by result (ok|error).
	ConnectAttempts *prometheus.CounterVec

	// ConnectionState is 1 for the current channel state label, 0 otherwise.
	ConnectionState *prometheus.GaugeVec

	// SnapshotFetches counts REST snapshot fetches by resource and status.
	SnapshotFetches *prometheus.CounterVec

	// UnreadTotal mirrors the unread ledger aggregate.
	UnreadTotal prometheus.Gauge

	// PendingFriendRequests mirrors the inbox length.
	PendingFriendRequests prometheus.Gauge

	// OnlineUsers mirrors the presence set size.
	OnlineUsers prometheus.Gauge
}

var connectionStates = []string{"absent", "connecting", "open", "closed", "errored"}

// New creates the collectors and registers them with reg when reg is non-nil.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		FramesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatsync",
			Name:      "frames_total",
			Help:      "Inbound channel frames by event and outcome.",
		}, []string{"event", "outcome"}),
		ConnectAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatsync",
			Name:      "connect_attempts_total",
			Help:      "Channel connection attempts by result.",
		}, []string{"result"}),
		ConnectionState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "chatsync",
			Name:      "connection_state",
			Help:      "Current channel connection state.",
		}, []string{"state"}),
		SnapshotFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatsync",
			Name:      "snapshot_fetches_total",
			Help:      "REST snapshot fetches by resource and status.",
		}, []string{"resource", "status"}),
		UnreadTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "chatsync",
			Name:      "unread_messages",
			Help:      "Sum of unread counters across conversations.",
		}),
		PendingFriendRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "chatsync",
			Name:      "pending_friend_requests",
			Help:      "Friend requests currently in the inbox.",
		}),
		OnlineUsers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "chatsync",
			Name:      "online_users",
			Help:      "Identities in the last presence snapshot.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.FramesTotal,
			m.ConnectAttempts,
			m.ConnectionState,
			m.SnapshotFetches,
			m.UnreadTotal,
			m.PendingFriendRequests,
			m.OnlineUsers,
		)
	}
	return m
}

// Frame records the outcome of one inbound frame.
func (m *Metrics) Frame(event, outcome string) {
	if m == nil {
		return
	}
	if event == "" {
		event = "unknown"
	}
	m.FramesTotal.WithLabelValues(event, outcome).Inc()
}

// ConnectAttempt records a dial result.
func (m *Metrics) ConnectAttempt(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.ConnectAttempts.WithLabelValues(result).Inc()
}

// SetConnectionState flips the state gauge to state.
func (m *Metrics) SetConnectionState(state string) {
	if m == nil {
		return
	}
	for _, s := range connectionStates {
		v := 0.0
		if s == state {
			v = 1
		}
		m.ConnectionState.WithLabelValues(s).Set(v)
	}
}

// Snapshot records a REST snapshot fetch.
func (m *Metrics) Snapshot(resource string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.SnapshotFetches.WithLabelValues(resource, status).Inc()
}

// SetUnread updates the unread gauge.
func (m *Metrics) SetUnread(total int) {
	if m == nil {
		return
	}
	m.UnreadTotal.Set(float64(total))
}

// SetPending updates the pending friend request gauge.
func (m *Metrics) SetPending(n int) {
	if m == nil {
		return
	}
	m.PendingFriendRequests.Set(float64(n))
}

// SetOnline updates the online users gauge.
func (m *Metrics) SetOnline(n int) {
	if m == nil {
		return
	}
	m.OnlineUsers.Set(float64(n))
}
