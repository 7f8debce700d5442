package events

import (
	"errors"
	"fmt"
	"log/slog"
)

// Handlers holds one handler per event variant. A nil handler ignores the variant.
type Handlers struct {
	Presence      func(Presence)
	Notification  func(Notification)
	Message       func(MessageEvent)
	FriendRequest func(FriendRequestEvent)
}

// Dispatcher routes decoded events to their component handler.
// Dispatch is not safe for concurrent use; the channel read loop is its only caller.
type Dispatcher struct {
	handlers Handlers
	logger   *slog.Logger
	observe  func(name Name, outcome string)
}

// NewDispatcher creates a dispatcher over the given handlers.
func NewDispatcher(h Handlers, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{handlers: h, logger: logger}
}

// Observe registers a callback invoked with the outcome of every frame:
// "handled", "malformed", "unknown" or "panic".
func (d *Dispatcher) Observe(fn func(name Name, outcome string)) {
	d.observe = fn
}

// HandleFrame decodes raw and dispatches it. Bad frames are logged and dropped.
func (d *Dispatcher) HandleFrame(raw []byte) {
	ev, err := Decode(raw)
	if err != nil {
		outcome := "malformed"
		if errors.Is(err, ErrUnknownEvent) {
			outcome = "unknown"
		}
		d.logger.Debug("Dropping inbound frame", "error", err, "bytes", len(raw))
		d.report("", outcome)
		return
	}
	d.Dispatch(ev)
}

// Dispatch hands ev to its handler. A panicking handler is recovered so one bad
// event does not stop the caller's loop.
func (d *Dispatcher) Dispatch(ev Event) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Event handler panicked", "event", ev.Name(), "panic", fmt.Sprint(r))
			d.report(ev.Name(), "panic")
		}
	}()

	switch e := ev.(type) {
	case Presence:
		if d.handlers.Presence != nil {
			d.handlers.Presence(e)
		}
	case Notification:
		if d.handlers.Notification != nil {
			d.handlers.Notification(e)
		}
	case MessageEvent:
		if d.handlers.Message != nil {
			d.handlers.Message(e)
		}
	case FriendRequestEvent:
		if d.handlers.FriendRequest != nil {
			d.handlers.FriendRequest(e)
		}
	}
	d.report(ev.Name(), "handled")
}

func (d *Dispatcher) report(name Name, outcome string) {
	if d.observe != nil {
		d.observe(name, outcome)
	}
}
