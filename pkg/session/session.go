// Package session implements the room-lifecycle state machine on top of a
// connection. A session joins or creates at most one room at a time,
// tracks its membership and permissions from server pushes, and recovers
// from missing acknowledgments with one-shot timeouts. Failures surface
// as events; pending operations are never retried automatically.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/palantir-watch/palantir-go/pkg/connection"
	"github.com/palantir-watch/palantir-go/pkg/events"
	"github.com/palantir-watch/palantir-go/pkg/protocol"
)

const tracerName = "palantir-go/session"

// Caller-misuse errors. These fail synchronously at the call site; no
// message is sent and no state changes.
var (
	ErrAlreadyInRoom = errors.New("session: already in a room or a room operation is pending")
	ErrNotInRoom     = errors.New("session: not in a room")
	ErrInvalidRoomID = errors.New("session: invalid room id")
	ErrInvalidUserID = errors.New("session: invalid user id")
)

// timeoutErrorText is raised when a room operation misses its ack window.
const timeoutErrorText = "Connection timed out"

// RoomInit are the caller-supplied parameters for a new room.
type RoomInit struct {
	Name     string
	Password string
}

// Config configures a Session and its underlying connection.
type Config struct {
	connection.Config

	// AckTimeout is the wait window after sending a room-lifecycle request
	// before the operation is abandoned. Default: 1 second.
	AckTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig(url, username string) *Config {
	return &Config{
		Config:     *connection.DefaultConfig(url, username),
		AckTimeout: time.Second,
	}
}

// Session is the room state machine. It wraps exactly one Connection for
// its entire lifetime; to reconnect, construct a fresh Session.
type Session struct {
	conn       *connection.Connection
	logger     *slog.Logger
	tracer     trace.Tracer
	ackTimeout time.Duration

	mu        sync.Mutex
	phase     phase
	opSeq     uint64 // bumped on every transition that invalidates an ack timer
	ackTimer  *time.Timer
	roomData  *RoomData
	roomPerms *RoomPermissions

	open        events.Signal
	update      events.Emitter[State]
	errEvent    events.Emitter[string]
	closed      events.Emitter[string]
	roomCreated events.Signal
	roomJoined  events.Signal
	roomLeft    events.Signal
}

// Dial opens a Session over a new connection to cfg.URL.
func Dial(cfg *Config) *Session {
	return New(connection.Dial(&cfg.Config), cfg)
}

// New wraps an existing Connection. Exposed for tests and custom
// transports; the connection must not be shared with another session.
func New(conn *connection.Connection, cfg *Config) *Session {
	ackTimeout := cfg.AckTimeout
	if ackTimeout <= 0 {
		ackTimeout = time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Session{
		conn:       conn,
		logger:     logger.With("component", "session"),
		tracer:     otel.Tracer(tracerName),
		ackTimeout: ackTimeout,
		phase:      phaseInitial,
	}
	conn.OnOpen(s.onConnectionOpen)
	conn.OnMessage(s.onConnectionMessage)
	conn.OnError(s.onConnectionError)
	conn.OnClosed(s.onConnectionClosed)
	return s
}

// Open reports whether the underlying connection is authenticated.
func (s *Session) Open() bool { return s.conn.Open() }

// ServerURL returns the endpoint the session is connected to.
func (s *Session) ServerURL() string { return s.conn.ServerURL() }

// OnOpen registers a listener fired once the connection authenticates.
func (s *Session) OnOpen(fn func()) events.Subscription { return s.open.Listen(fn) }

// OnUpdate registers a listener for session state broadcasts.
func (s *Session) OnUpdate(fn func(State)) events.Subscription { return s.update.Subscribe(fn) }

// OnError registers a listener for error events.
func (s *Session) OnError(fn func(string)) events.Subscription { return s.errEvent.Subscribe(fn) }

// OnClosed registers a listener fired once when the session ends.
func (s *Session) OnClosed(fn func(string)) events.Subscription { return s.closed.Subscribe(fn) }

// OnRoomCreated registers a listener for create acknowledgment.
func (s *Session) OnRoomCreated(fn func()) events.Subscription { return s.roomCreated.Listen(fn) }

// OnRoomJoined registers a listener for join acknowledgment.
func (s *Session) OnRoomJoined(fn func()) events.Subscription { return s.roomJoined.Listen(fn) }

// OnRoomLeft registers a listener for leave/close acknowledgment.
func (s *Session) OnRoomLeft(fn func()) events.Subscription { return s.roomLeft.Listen(fn) }

// State returns a fresh snapshot of the session state. RoomData and
// RoomPermissions are populated iff the status is StatusInRoom.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

func (s *Session) stateLocked() State {
	st := State{RoomConnectionStatus: s.phase.status()}
	if s.phase == phaseJoined {
		st.RoomData = s.roomData.clone()
		st.RoomPermissions = s.roomPerms.clone()
	}
	return st
}

// CreateRoom asks the server to create a room and become its host. Valid
// only when not in a room and with no operation pending. The outcome
// arrives via events: roomcreated and update on acknowledgment, error on
// timeout. The caller must re-invoke to retry.
func (s *Session) CreateRoom(ctx context.Context, init RoomInit) error {
	_, span := s.tracer.Start(ctx, "session.create_room",
		trace.WithAttributes(attribute.String("room.name", init.Name)))
	defer span.End()

	s.mu.Lock()
	if s.phase != phaseInitial {
		err := fmt.Errorf("%w (state %s)", ErrAlreadyInRoom, s.phase)
		s.mu.Unlock()
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	s.phase = phaseCreating
	s.roomData = nil
	s.roomPerms = nil
	s.pendingRoomLocked(&RoomData{ID: uuid.Nil.String(), Name: init.Name, Password: init.Password})
	st := s.stateLocked()
	s.mu.Unlock()

	roomOperations.WithLabelValues("create").Inc()
	s.logger.Info("creating room", "name", init.Name)
	s.conn.Send(protocol.RoomCreate{Name: init.Name, Password: init.Password})
	s.update.Emit(st)
	return nil
}

// JoinRoom asks the server to join the room with the given canonical text
// identifier. Same acknowledgment and timeout policy as CreateRoom.
func (s *Session) JoinRoom(ctx context.Context, id, password string) error {
	_, span := s.tracer.Start(ctx, "session.join_room",
		trace.WithAttributes(attribute.String("room.id", id)))
	defer span.End()

	roomID, err := uuid.Parse(id)
	if err != nil {
		err = fmt.Errorf("%w: %q", ErrInvalidRoomID, id)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	s.mu.Lock()
	if s.phase != phaseInitial {
		err := fmt.Errorf("%w (state %s)", ErrAlreadyInRoom, s.phase)
		s.mu.Unlock()
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	s.phase = phaseJoining
	s.roomData = nil
	s.roomPerms = nil
	s.pendingRoomLocked(&RoomData{ID: roomID.String(), Password: password})
	st := s.stateLocked()
	s.mu.Unlock()

	roomOperations.WithLabelValues("join").Inc()
	s.logger.Info("joining room", "id", roomID)
	s.conn.Send(protocol.RoomJoin{ID: protocol.ID(roomID), Password: password})
	s.update.Emit(st)
	return nil
}

// LeaveRoom leaves the current room. A no-op when not in a room. Local
// room data is cleared optimistically before the server confirms.
func (s *Session) LeaveRoom(ctx context.Context) {
	_, span := s.tracer.Start(ctx, "session.leave_room")
	defer span.End()

	s.mu.Lock()
	if s.phase != phaseJoined {
		s.mu.Unlock()
		s.logger.Debug("leave requested while not in a room", "state", s.phase.String())
		return
	}
	s.phase = phaseLeaving
	s.clearRoomLocked()
	s.armAckTimerLocked()
	st := s.stateLocked()
	s.mu.Unlock()

	roomOperations.WithLabelValues("leave").Inc()
	s.logger.Info("leaving room")
	s.conn.Send(protocol.RoomLeave{})
	s.update.Emit(st)
}

// CloseRoom closes the current room for everyone. Valid only while in a
// room; the server enforces whether this client may actually do it.
func (s *Session) CloseRoom(ctx context.Context) error {
	_, span := s.tracer.Start(ctx, "session.close_room")
	defer span.End()

	s.mu.Lock()
	if s.phase != phaseJoined {
		err := fmt.Errorf("%w (state %s)", ErrNotInRoom, s.phase)
		s.mu.Unlock()
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	s.phase = phaseLeaving
	s.clearRoomLocked()
	s.armAckTimerLocked()
	st := s.stateLocked()
	s.mu.Unlock()

	roomOperations.WithLabelValues("close").Inc()
	s.logger.Info("closing room")
	s.conn.Send(protocol.RoomClose{})
	s.update.Emit(st)
	return nil
}

// KickUser asks the server to remove a user from the room. No local state
// changes; the membership change arrives with the next room::state push.
func (s *Session) KickUser(ctx context.Context, userID string) error {
	_, span := s.tracer.Start(ctx, "session.kick_user",
		trace.WithAttributes(attribute.String("user.id", userID)))
	defer span.End()

	id, err := uuid.Parse(userID)
	if err != nil {
		err = fmt.Errorf("%w: %q", ErrInvalidUserID, userID)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	s.mu.Lock()
	if s.phase != phaseJoined {
		err := fmt.Errorf("%w (state %s)", ErrNotInRoom, s.phase)
		s.mu.Unlock()
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	s.mu.Unlock()

	roomOperations.WithLabelValues("kick").Inc()
	s.logger.Info("kicking user", "id", id)
	s.conn.Send(protocol.RoomKickUser{UserID: protocol.ID(id)})
	return nil
}

// Close ends the session with a human-readable reason. Idempotent; the
// session cannot be reused afterwards.
func (s *Session) Close(message string) {
	s.mu.Lock()
	if s.phase == phaseClosed {
		s.mu.Unlock()
		return
	}
	s.phase = phaseClosed
	s.stopAckTimerLocked()
	s.roomData = nil
	s.roomPerms = nil
	s.mu.Unlock()

	if s.conn.Open() {
		s.conn.Close(message)
	}
	s.logger.Info("session closed", "message", message)
	s.closed.Emit(message)
}

// pendingRoomLocked stores the optimistic room snapshot for the operation
// in flight and arms its ack timer.
func (s *Session) pendingRoomLocked(data *RoomData) {
	s.roomData = data
	s.roomPerms = &RoomPermissions{}
	s.armAckTimerLocked()
}

func (s *Session) clearRoomLocked() {
	s.roomData = nil
	s.roomPerms = nil
}

// armAckTimerLocked starts the one-shot acknowledgment timer for the
// current operation. The sequence number ties the timer to the transition
// that armed it: any later transition bumps the sequence, making a stale
// fire a guaranteed no-op.
func (s *Session) armAckTimerLocked() {
	s.stopAckTimerLocked()
	s.opSeq++
	seq := s.opSeq
	s.ackTimer = time.AfterFunc(s.ackTimeout, func() { s.onAckTimeout(seq) })
}

func (s *Session) stopAckTimerLocked() {
	if s.ackTimer != nil {
		s.ackTimer.Stop()
		s.ackTimer = nil
	}
}

func (s *Session) onAckTimeout(seq uint64) {
	s.mu.Lock()
	if s.opSeq != seq || !s.phase.pending() {
		s.mu.Unlock()
		return
	}
	prev := s.phase
	s.phase = phaseInitial
	s.ackTimer = nil
	s.clearRoomLocked()
	st := s.stateLocked()
	s.mu.Unlock()

	ackTimeouts.Inc()
	s.logger.Warn("room operation timed out", "state", prev.String())
	s.errEvent.Emit(timeoutErrorText)
	s.update.Emit(st)
}

func (s *Session) onConnectionOpen() {
	s.logger.Info("session opened", "url", s.conn.ServerURL())
	s.open.Fire()
}

func (s *Session) onConnectionMessage(msg *protocol.Message) {
	if !msg.Kind().IsRoom() {
		s.logger.Warn("ignoring message outside room namespace", "kind", msg.Kind())
		return
	}

	switch body := msg.Body.(type) {
	case protocol.RoomCreateAck:
		s.onOperationAck(phaseCreating, &s.roomCreated, "create")
	case protocol.RoomJoinAck:
		s.onOperationAck(phaseJoining, &s.roomJoined, "join")
	case protocol.RoomLeaveAck, protocol.RoomCloseAck:
		s.onLeaveAck(msg.Kind())
	case protocol.RoomState:
		s.onRoomState(body)
	case protocol.RoomPermissions:
		s.onRoomPermissions(body)
	case protocol.RoomDisconnected:
		s.onRoomDisconnected(body)
	default:
		s.logger.Warn("ignoring unexpected room message", "kind", msg.Kind())
	}
}

// onOperationAck completes a pending create or join: the session is now
// in the room, and the server is asked for the state and permission
// snapshots it does not push unprompted.
func (s *Session) onOperationAck(want phase, signal *events.Signal, op string) {
	s.mu.Lock()
	if s.phase != want {
		s.mu.Unlock()
		s.logger.Warn("ignoring out-of-sequence ack", "op", op, "state", s.phase.String())
		return
	}
	s.phase = phaseJoined
	s.stopAckTimerLocked()
	s.opSeq++
	st := s.stateLocked()
	s.mu.Unlock()

	s.logger.Info("room operation acknowledged", "op", op)
	s.conn.Send(protocol.RoomRequestState{})
	s.conn.Send(protocol.RoomRequestPermissions{})
	signal.Fire()
	s.update.Emit(st)
}

func (s *Session) onLeaveAck(kind protocol.Kind) {
	s.mu.Lock()
	if s.phase != phaseLeaving {
		s.mu.Unlock()
		s.logger.Warn("ignoring out-of-sequence ack", "kind", kind, "state", s.phase.String())
		return
	}
	s.phase = phaseInitial
	s.stopAckTimerLocked()
	s.opSeq++
	st := s.stateLocked()
	s.mu.Unlock()

	s.logger.Info("left room")
	s.roomLeft.Fire()
	s.update.Emit(st)
}

func (s *Session) onRoomState(body protocol.RoomState) {
	s.mu.Lock()
	if s.phase != phaseJoined {
		s.mu.Unlock()
		s.logger.Warn("ignoring room state while not in a room", "state", s.phase.String())
		return
	}
	s.roomData = roomDataFromState(body)
	st := s.stateLocked()
	s.mu.Unlock()

	s.logger.Debug("room state replaced", "room", st.RoomData.ID, "users", len(st.RoomData.Users))
	s.update.Emit(st)
}

func (s *Session) onRoomPermissions(body protocol.RoomPermissions) {
	s.mu.Lock()
	if s.phase != phaseJoined {
		s.mu.Unlock()
		s.logger.Warn("ignoring permissions while not in a room", "state", s.phase.String())
		return
	}
	s.roomPerms = &RoomPermissions{Role: body.Role, Permissions: body.Permissions}
	st := s.stateLocked()
	s.mu.Unlock()

	s.logger.Debug("room permissions replaced", "role", body.Role)
	s.update.Emit(st)
}

// onRoomDisconnected handles the server forcibly ending the room
// relationship. The connection itself stays up.
func (s *Session) onRoomDisconnected(body protocol.RoomDisconnected) {
	s.mu.Lock()
	if s.phase != phaseJoined {
		s.mu.Unlock()
		s.logger.Warn("ignoring room disconnect while not in a room", "state", s.phase.String())
		return
	}
	s.phase = phaseInitial
	s.stopAckTimerLocked()
	s.opSeq++
	s.clearRoomLocked()
	st := s.stateLocked()
	s.mu.Unlock()

	s.logger.Warn("disconnected from room", "reason", body.Reason)
	s.errEvent.Emit("Disconnected from room: " + body.Reason)
	s.update.Emit(st)
}

// onConnectionError forwards connection errors, aborting any pending room
// operation first: errors are never retried automatically.
func (s *Session) onConnectionError(message string) {
	s.mu.Lock()
	aborted := s.phase.pending()
	if aborted {
		s.phase = phaseInitial
		s.stopAckTimerLocked()
		s.opSeq++
		s.clearRoomLocked()
	}
	st := s.stateLocked()
	s.mu.Unlock()

	s.errEvent.Emit(message)
	if aborted {
		s.logger.Warn("pending room operation aborted by error", "message", message)
		s.update.Emit(st)
	}
}

// onConnectionClosed handles the transport dying underneath the session.
func (s *Session) onConnectionClosed(message string) {
	s.mu.Lock()
	if s.phase == phaseClosed {
		s.mu.Unlock()
		return
	}
	s.phase = phaseInitial
	s.stopAckTimerLocked()
	s.opSeq++
	s.clearRoomLocked()
	st := s.stateLocked()
	s.mu.Unlock()

	s.errEvent.Emit("Server connection failed")
	s.update.Emit(st)
	s.Close(message)
}
