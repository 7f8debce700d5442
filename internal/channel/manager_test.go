package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/chatsync/internal/events"
)

type fakeConn struct {
	inbound chan []byte
	closed  chan struct{}

	mu      sync.Mutex
	written []events.Frame
	once    sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{inbound: make(chan []byte, 16), closed: make(chan struct{})}
}

func (c *fakeConn) Read(ctx context.Context) ([]byte, error) {
	select {
	case data := <-c.inbound:
		return data, nil
	case <-c.closed:
		return nil, io.EOF
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *fakeConn) Write(_ context.Context, data []byte) error {
	select {
	case <-c.closed:
		return io.ErrClosedPipe
	default:
	}
	var f events.Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	c.mu.Lock()
	c.written = append(c.written, f)
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) Close(string) error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) frames() []events.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]events.Frame(nil), c.written...)
}

type fakeDialer struct {
	mu    sync.Mutex
	conns []*fakeConn
	ids   []string
	err   error
}

func (d *fakeDialer) Dial(_ context.Context, identityID string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ids = append(d.ids, identityID)
	if d.err != nil {
		return nil, d.err
	}
	c := newFakeConn()
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *fakeDialer) dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.ids)
}

func (d *fakeDialer) conn(i int) *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conns[i]
}

func frameString(t *testing.T, f events.Frame) string {
	t.Helper()
	var s string
	if err := json.Unmarshal(f.Data, &s); err != nil {
		t.Fatalf("frame %s data: %v", f.Event, err)
	}
	return s
}

func TestOpenSendsSetup(t *testing.T) {
	d := &fakeDialer{}
	m := NewManager(d, nil, Options{})

	if err := m.Open(context.Background(), "u1"); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if m.State() != StateOpen {
		t.Fatalf("state = %s, want open", m.State())
	}
	if m.ConnectionID() == "" {
		t.Error("expected a connection id")
	}
	frames := d.conn(0).frames()
	if len(frames) != 1 || frames[0].Event != events.Setup || frameString(t, frames[0]) != "u1" {
		t.Fatalf("frames = %+v, want one setup(u1)", frames)
	}
}

func TestOpenSameIdentityIsNoop(t *testing.T) {
	d := &fakeDialer{}
	m := NewManager(d, nil, Options{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := m.Open(ctx, "u1"); err != nil {
			t.Fatalf("Open #%d: %v", i, err)
		}
	}
	if d.dials() != 1 {
		t.Errorf("dials = %d, want 1", d.dials())
	}
	if n := len(d.conn(0).frames()); n != 1 {
		t.Errorf("frames = %d, want one setup", n)
	}
}

func TestOpenDifferentIdentityClosesFirst(t *testing.T) {
	d := &fakeDialer{}
	m := NewManager(d, nil, Options{})
	ctx := context.Background()

	if err := m.Open(ctx, "u1"); err != nil {
		t.Fatal(err)
	}
	if err := m.Open(ctx, "u2"); err != nil {
		t.Fatal(err)
	}

	first := d.conn(0).frames()
	if len(first) != 2 || first[1].Event != events.DisconnectUser || frameString(t, first[1]) != "u1" {
		t.Fatalf("first conn frames = %+v, want setup then disconnectUser(u1)", first)
	}
	select {
	case <-d.conn(0).closed:
	default:
		t.Error("first connection not closed")
	}
	if m.IdentityID() != "u2" || m.State() != StateOpen {
		t.Errorf("identity=%s state=%s", m.IdentityID(), m.State())
	}
}

func TestCloseSendsDisconnect(t *testing.T) {
	d := &fakeDialer{}
	m := NewManager(d, nil, Options{})
	ctx := context.Background()
	if err := m.Open(ctx, "u1"); err != nil {
		t.Fatal(err)
	}

	if err := m.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if m.State() != StateClosed {
		t.Errorf("state = %s, want closed", m.State())
	}
	frames := d.conn(0).frames()
	if frames[len(frames)-1].Event != events.DisconnectUser {
		t.Errorf("last frame = %s, want disconnectUser", frames[len(frames)-1].Event)
	}
	if err := m.Send(ctx, events.JoinChat, "c1"); !errors.Is(err, ErrNotOpen) {
		t.Errorf("Send after close = %v, want ErrNotOpen", err)
	}
	if err := m.Close(ctx); err != nil {
		t.Errorf("second Close = %v", err)
	}
}

func TestDialFailureIsErrored(t *testing.T) {
	d := &fakeDialer{err: errors.New("refused")}
	var seen []State
	m := NewManager(d, nil, Options{OnState: func(s State, _ error) { seen = append(seen, s) }})

	err := m.Open(context.Background(), "u1")
	if !errors.Is(err, ErrConnect) {
		t.Fatalf("Open = %v, want ErrConnect", err)
	}
	if m.State() != StateErrored {
		t.Errorf("state = %s, want errored", m.State())
	}
	if len(seen) != 2 || seen[0] != StateConnecting || seen[1] != StateErrored {
		t.Errorf("transitions = %v", seen)
	}

	d.mu.Lock()
	d.err = nil
	d.mu.Unlock()
	if err := m.Open(context.Background(), "u1"); err != nil {
		t.Fatalf("retry Open: %v", err)
	}
	if m.State() != StateOpen {
		t.Errorf("state after retry = %s", m.State())
	}
}

func TestInboundFramesInOrder(t *testing.T) {
	d := &fakeDialer{}
	got := make(chan string, 8)
	m := NewManager(d, func(b []byte) { got <- string(b) }, Options{})
	if err := m.Open(context.Background(), "u1"); err != nil {
		t.Fatal(err)
	}

	c := d.conn(0)
	for _, s := range []string{"a", "b", "c"} {
		c.inbound <- []byte(s)
	}
	for _, want := range []string{"a", "b", "c"} {
		select {
		case s := <-got:
			if s != want {
				t.Fatalf("got %q, want %q", s, want)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for %q", want)
		}
	}
}

func TestDropAfterOpenIsClosed(t *testing.T) {
	d := &fakeDialer{}
	dropped := make(chan error, 1)
	m := NewManager(d, nil, Options{OnState: func(s State, err error) {
		if s == StateClosed {
			dropped <- err
		}
	}})
	if err := m.Open(context.Background(), "u1"); err != nil {
		t.Fatal(err)
	}

	_ = d.conn(0).Close("server gone")
	select {
	case err := <-dropped:
		if err == nil {
			t.Error("expected drop cause")
		}
	case <-time.After(time.Second):
		t.Fatal("drop not observed")
	}
	if m.State() != StateClosed {
		t.Errorf("state = %s, want closed", m.State())
	}
	if err := m.Send(context.Background(), events.JoinChat, "c1"); !errors.Is(err, ErrNotOpen) {
		t.Errorf("Send after drop = %v", err)
	}
}

func TestConcurrentSendsSerialize(t *testing.T) {
	d := &fakeDialer{}
	m := NewManager(d, nil, Options{})
	if err := m.Open(context.Background(), "u1"); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := m.Send(context.Background(), events.JoinChat, "c1"); err != nil {
				t.Errorf("Send: %v", err)
			}
		}()
	}
	wg.Wait()
	if n := len(d.conn(0).frames()); n != 21 {
		t.Errorf("frames = %d, want 21", n)
	}
}

// syncBuffer guards a bytes.Buffer written by the manager's goroutines.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.Split(strings.TrimSpace(b.buf.String()), "\n")
}

func TestLogsLeaveIdentityToCallerLogger(t *testing.T) {
	var out syncBuffer
	logger := slog.New(slog.NewTextHandler(&out, nil)).With("user_id", "u1")
	d := &fakeDialer{}
	m := NewManager(d, nil, Options{Logger: logger})

	if err := m.Open(context.Background(), "u1"); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := m.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}

	lines := out.lines()
	if len(lines) < 3 {
		t.Fatalf("expected open and close logs, got %q", lines)
	}
	for _, line := range lines {
		if n := strings.Count(line, "user_id="); n != 1 {
			t.Errorf("user_id appears %d times in %q", n, line)
		}
	}
}
