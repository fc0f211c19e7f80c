// Package palantir is the top-level client facade. A Client owns at most
// one Session at a time; replacing or clearing the slot is always
// explicit, and consumers keep a single set of event subscriptions that
// survives session turnover.
package palantir

import (
	"log/slog"
	"sync"

	"github.com/palantir-watch/palantir-go/pkg/events"
	"github.com/palantir-watch/palantir-go/pkg/session"
)

// Client is the session slot. The zero value is not usable; construct
// with New.
type Client struct {
	logger *slog.Logger

	mu      sync.Mutex
	current *session.Session
	subs    []events.Subscription

	update   events.Emitter[session.State]
	errEvent events.Emitter[string]
	closed   events.Emitter[string]
}

// New returns an empty Client. logger may be nil.
func New(logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{logger: logger.With("component", "client")}
}

// Connect dials a new session and installs it in the slot, closing any
// previous session first. The new session is returned for direct use;
// its events also flow through the Client's subscriptions.
func (c *Client) Connect(cfg *session.Config) *session.Session {
	sess := session.Dial(cfg)
	c.Adopt(sess)
	return sess
}

// Adopt installs an existing session in the slot, closing any previous
// one. The replaced session is closed quietly; only the installed
// session's events reach the Client's subscribers.
func (c *Client) Adopt(sess *session.Session) {
	c.mu.Lock()
	old := c.current
	c.detachLocked()
	c.current = sess
	c.attachLocked(sess)
	c.mu.Unlock()

	if old != nil {
		c.logger.Info("replacing active session", "url", old.ServerURL())
		old.Close("replaced")
	}
}

// Clear closes and removes the current session, if any. The closed event
// is forwarded to subscribers with the given message.
func (c *Client) Clear(message string) {
	c.mu.Lock()
	sess := c.current
	c.mu.Unlock()

	if sess != nil {
		sess.Close(message)
	}
}

// Current returns the session in the slot, or nil.
func (c *Client) Current() *session.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// State returns the current session's state, or an empty not-in-room
// snapshot when the slot is empty.
func (c *Client) State() session.State {
	c.mu.Lock()
	sess := c.current
	c.mu.Unlock()

	if sess == nil {
		return session.State{RoomConnectionStatus: session.StatusNotInRoom}
	}
	return sess.State()
}

// OnUpdate registers a listener for state broadcasts from whichever
// session occupies the slot.
func (c *Client) OnUpdate(fn func(session.State)) events.Subscription {
	return c.update.Subscribe(fn)
}

// OnError registers a listener for error events from the active session.
func (c *Client) OnError(fn func(string)) events.Subscription {
	return c.errEvent.Subscribe(fn)
}

// OnClosed registers a listener fired when the active session ends and
// the slot empties. Replacement does not fire it.
func (c *Client) OnClosed(fn func(string)) events.Subscription {
	return c.closed.Subscribe(fn)
}

func (c *Client) attachLocked(sess *session.Session) {
	c.subs = []events.Subscription{
		sess.OnUpdate(func(st session.State) { c.update.Emit(st) }),
		sess.OnError(func(msg string) { c.errEvent.Emit(msg) }),
		sess.OnClosed(func(msg string) { c.onSessionClosed(sess, msg) }),
	}
}

func (c *Client) detachLocked() {
	for _, sub := range c.subs {
		sub.Unsubscribe()
	}
	c.subs = nil
	c.current = nil
}

// onSessionClosed empties the slot when the session it holds ends,
// whether via Clear, the server, or transport loss. A session that was
// already replaced is ignored.
func (c *Client) onSessionClosed(sess *session.Session, message string) {
	c.mu.Lock()
	if c.current != sess {
		c.mu.Unlock()
		return
	}
	c.detachLocked()
	c.mu.Unlock()

	c.logger.Info("active session ended", "message", message)
	c.closed.Emit(message)
}
