// Package connection layers the authentication handshake and keepalive
// management on top of a message channel. It exposes a simpler
// open/message/error/closed event surface: connection-namespaced protocol
// messages are intercepted here and never reach consumers.
package connection

import (
	"log/slog"
	"sync"
	"time"

	"github.com/palantir-watch/palantir-go/pkg/channel"
	"github.com/palantir-watch/palantir-go/pkg/events"
	"github.com/palantir-watch/palantir-go/pkg/protocol"
)

// State is the connection lifecycle state.
type State int

const (
	StateInitial State = iota
	StateConnected
	StateAuthenticating
	StateAuthenticated
	StateDisconnected
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateInitial:
		return "Initial"
	case StateConnected:
		return "Connected"
	case StateAuthenticating:
		return "Authenticating"
	case StateAuthenticated:
		return "Authenticated"
	case StateDisconnected:
		return "Disconnected"
	default:
		return "Unknown"
	}
}

// Config configures a Connection.
type Config struct {
	// URL is the websocket endpoint.
	URL string

	// Username identifies the client in the login handshake.
	Username string

	// APIKey optionally authenticates the login. Empty means anonymous.
	APIKey string

	// KeepaliveInterval is the period of the keepalive message sent while
	// authenticated. It exists purely to stop intermediaries from severing
	// an idle transport; no response is expected. Default: 10 seconds.
	KeepaliveInterval time.Duration

	// HandshakeTimeout bounds the websocket dial. Default: 10 seconds.
	HandshakeTimeout time.Duration

	// WriteTimeout bounds each frame write. Default: 10 seconds.
	WriteTimeout time.Duration

	// Logger receives structured logs. Default: slog.Default().
	Logger *slog.Logger
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig(url, username string) *Config {
	return &Config{
		URL:               url,
		Username:          username,
		KeepaliveInterval: 10 * time.Second,
		HandshakeTimeout:  10 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

func (c *Config) withDefaults() *Config {
	out := *c
	if out.KeepaliveInterval <= 0 {
		out.KeepaliveInterval = 10 * time.Second
	}
	if out.Logger == nil {
		out.Logger = slog.Default()
	}
	return &out
}

// Connection wraps exactly one Channel for its entire lifetime. It is
// created connecting and destroyed (closed) exactly once; a fresh
// Connection must be constructed to retry.
type Connection struct {
	cfg     *Config
	channel *channel.Channel
	logger  *slog.Logger

	mu            sync.Mutex
	state         State
	keepaliveStop chan struct{}

	open     events.Signal
	message  events.Emitter[*protocol.Message]
	errEvent events.Emitter[string]
	closed   events.Emitter[string]
}

// Dial opens a Connection over a new websocket channel. The handshake
// runs asynchronously; subscribe to OnOpen/OnClosed for the outcome.
func Dial(cfg *Config) *Connection {
	cfg = cfg.withDefaults()
	chCfg := channel.DefaultConfig(cfg.URL)
	chCfg.HandshakeTimeout = cfg.HandshakeTimeout
	chCfg.WriteTimeout = cfg.WriteTimeout
	chCfg.Logger = cfg.Logger
	return wrap(channel.Dial(chCfg), cfg)
}

// New wraps an existing transport, for tests and custom transports.
func New(transport channel.Transport, cfg *Config) *Connection {
	cfg = cfg.withDefaults()
	chCfg := channel.DefaultConfig(cfg.URL)
	chCfg.Logger = cfg.Logger
	return wrap(channel.New(transport, chCfg), cfg)
}

func wrap(ch *channel.Channel, cfg *Config) *Connection {
	c := &Connection{
		cfg:     cfg,
		channel: ch,
		logger:  cfg.Logger.With("component", "connection", "url", cfg.URL),
		state:   StateInitial,
	}
	ch.OnOpen(c.onChannelOpen)
	ch.OnMessage(c.onChannelMessage)
	ch.OnClosed(c.onChannelClosed)
	return c
}

// Open reports whether the connection is authenticated and usable.
func (c *Connection) Open() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateAuthenticated
}

// State returns the current lifecycle state.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ServerURL returns the endpoint this connection targets.
func (c *Connection) ServerURL() string { return c.channel.URL() }

// OnOpen registers a listener fired once authentication succeeds.
func (c *Connection) OnOpen(fn func()) events.Subscription { return c.open.Listen(fn) }

// OnMessage registers a listener for non-connection protocol messages.
func (c *Connection) OnMessage(fn func(*protocol.Message)) events.Subscription {
	return c.message.Subscribe(fn)
}

// OnError registers a listener for server-reported errors.
func (c *Connection) OnError(fn func(string)) events.Subscription {
	return c.errEvent.Subscribe(fn)
}

// OnClosed registers a listener fired once when the connection ends.
func (c *Connection) OnClosed(fn func(string)) events.Subscription {
	return c.closed.Subscribe(fn)
}

// Send forwards a message body to the channel. Only meaningful once the
// connection is open; no guard is enforced here, callers check Open.
func (c *Connection) Send(body protocol.Body) {
	c.channel.Send(body)
}

// Close tears the connection down with a human-readable reason. Terminal
// and idempotent: the first call wins, later calls are no-ops.
func (c *Connection) Close(message string) {
	c.closeWith(message)
}

func (c *Connection) onChannelOpen() {
	c.mu.Lock()
	if c.state != StateInitial {
		c.mu.Unlock()
		c.logger.Warn("transport opened in unexpected state", "state", c.state.String())
		return
	}
	c.state = StateAuthenticating
	c.mu.Unlock()

	c.logger.Debug("transport connected, logging in", "username", c.cfg.Username)
	c.channel.Send(protocol.Login{Username: c.cfg.Username, APIKey: c.cfg.APIKey})
}

func (c *Connection) onChannelClosed() {
	c.closeWith("Connection closed")
}

func (c *Connection) onChannelMessage(msg *protocol.Message) {
	if msg.Kind().IsConnection() {
		c.handleConnectionMessage(msg)
		return
	}

	c.mu.Lock()
	authenticated := c.state == StateAuthenticated
	c.mu.Unlock()

	if !authenticated {
		// Permissive handshake: out-of-sequence traffic is tolerated.
		c.logger.Warn("ignoring message before authentication", "kind", msg.Kind())
		return
	}
	c.message.Emit(msg)
}

// handleConnectionMessage intercepts connection-namespaced messages in
// every state; they are never forwarded as message events.
func (c *Connection) handleConnectionMessage(msg *protocol.Message) {
	switch body := msg.Body.(type) {
	case protocol.LoginAck:
		c.onLoginAck()

	case protocol.Ping:
		pingsAnswered.Inc()
		c.channel.Send(protocol.Pong{})

	case protocol.ClientError:
		c.logger.Warn("server reported error", "message", body.Message)
		c.errEvent.Emit(body.Message)

	case protocol.Closed:
		c.logger.Info("server closed connection", "message", body.Message)
		c.closeWith(body.Message)

	default:
		c.logger.Warn("ignoring unexpected connection message", "kind", msg.Kind())
	}
}

func (c *Connection) onLoginAck() {
	c.mu.Lock()
	if c.state != StateAuthenticating {
		c.mu.Unlock()
		c.logger.Warn("ignoring login_ack in unexpected state", "state", c.state.String())
		return
	}
	c.state = StateAuthenticated
	stop := make(chan struct{})
	c.keepaliveStop = stop
	c.mu.Unlock()

	go c.keepaliveLoop(stop)

	c.logger.Info("authenticated", "username", c.cfg.Username)
	c.open.Fire()
}

func (c *Connection) keepaliveLoop(stop chan struct{}) {
	ticker := time.NewTicker(c.cfg.KeepaliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.channel.Send(protocol.Keepalive{})
		case <-stop:
			return
		}
	}
}

// closeWith runs the close sequence once: tear down the channel, stop the
// keepalive timer, emit closed. DISCONNECTED is terminal.
func (c *Connection) closeWith(message string) {
	c.mu.Lock()
	if c.state == StateDisconnected {
		c.mu.Unlock()
		return
	}
	c.state = StateDisconnected
	if c.keepaliveStop != nil {
		close(c.keepaliveStop)
		c.keepaliveStop = nil
	}
	c.mu.Unlock()

	c.channel.Close()
	c.logger.Info("connection closed", "message", message)
	c.closed.Emit(message)
}
