package session_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/palantir-watch/palantir-go/pkg/channel/wiretest"
	"github.com/palantir-watch/palantir-go/pkg/connection"
	"github.com/palantir-watch/palantir-go/pkg/protocol"
	"github.com/palantir-watch/palantir-go/pkg/session"
)

var (
	roomID  = uuid.MustParse("0f1e2d3c-4b5a-6978-8796-a5b4c3d2e1f0")
	aliceID = protocol.ID{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}
)

func newSession(t *testing.T, ackTimeout time.Duration) (*session.Session, *wiretest.Transport) {
	t.Helper()
	cfg := session.DefaultConfig("ws://example.test/ws", "alice")
	cfg.AckTimeout = ackTimeout
	transport := wiretest.New()
	conn := connection.New(transport, &cfg.Config)
	return session.New(conn, cfg), transport
}

// newOpenSession returns a session whose connection is authenticated.
func newOpenSession(t *testing.T, ackTimeout time.Duration) (*session.Session, *wiretest.Transport) {
	t.Helper()
	sess, transport := newSession(t, ackTimeout)
	transport.Open()
	transport.DeliverBody(t, protocol.LoginAck{})
	if !sess.Open() {
		t.Fatal("session not open after login_ack")
	}
	return sess, transport
}

// newJoinedSession returns a session that has created a room.
func newJoinedSession(t *testing.T, ackTimeout time.Duration) (*session.Session, *wiretest.Transport) {
	t.Helper()
	sess, transport := newOpenSession(t, ackTimeout)
	if err := sess.CreateRoom(context.Background(), session.RoomInit{Name: "Movie Night", Password: "abc"}); err != nil {
		t.Fatalf("CreateRoom() error = %v", err)
	}
	transport.DeliverBody(t, protocol.RoomCreateAck{})
	if got := sess.State().RoomConnectionStatus; got != session.StatusInRoom {
		t.Fatalf("status = %s, want in_room", got)
	}
	return sess, transport
}

func countBodies[T protocol.Body](t *testing.T, transport *wiretest.Transport) int {
	t.Helper()
	n := 0
	for _, body := range transport.SentBodies(t) {
		if _, ok := body.(T); ok {
			n++
		}
	}
	return n
}

func TestCreateRoomEndToEnd(t *testing.T) {
	sess, transport := newOpenSession(t, time.Second)

	var updates []session.State
	sess.OnUpdate(func(st session.State) { updates = append(updates, st) })
	created := 0
	sess.OnRoomCreated(func() { created++ })

	if err := sess.CreateRoom(context.Background(), session.RoomInit{Name: "Movie Night", Password: "abc"}); err != nil {
		t.Fatalf("CreateRoom() error = %v", err)
	}

	create, ok := transport.LastBody(t).(protocol.RoomCreate)
	if !ok {
		t.Fatalf("sent body = %T, want RoomCreate", transport.LastBody(t))
	}
	if create.Name != "Movie Night" || create.Password != "abc" {
		t.Errorf("RoomCreate = %+v", create)
	}
	if got := sess.State().RoomConnectionStatus; got != session.StatusJoining {
		t.Errorf("status = %s, want joining", got)
	}

	transport.DeliverBody(t, protocol.RoomCreateAck{})

	if created != 1 {
		t.Errorf("roomcreated events = %d, want 1", created)
	}
	st := sess.State()
	if st.RoomConnectionStatus != session.StatusInRoom {
		t.Errorf("status = %s, want in_room", st.RoomConnectionStatus)
	}
	if st.RoomData == nil || st.RoomData.Name != "Movie Night" {
		t.Errorf("room data after ack = %+v", st.RoomData)
	}
	if n := countBodies[protocol.RoomRequestState](t, transport); n != 1 {
		t.Errorf("request_state sent = %d, want 1", n)
	}
	if n := countBodies[protocol.RoomRequestPermissions](t, transport); n != 1 {
		t.Errorf("request_permissions sent = %d, want 1", n)
	}

	// Server answers the state request.
	transport.DeliverBody(t, protocol.RoomState{
		ID:       protocol.ID(roomID),
		Name:     "Movie Night",
		Password: "abc",
		Users:    []protocol.RoomUser{{ID: aliceID, Name: "alice", Role: protocol.RoleHost}},
	})

	st = sess.State()
	if st.RoomData.ID != roomID.String() {
		t.Errorf("room id = %s, want %s", st.RoomData.ID, roomID)
	}
	if len(st.RoomData.Users) != 1 {
		t.Fatalf("users = %d, want 1", len(st.RoomData.Users))
	}
	user := st.RoomData.Users[0]
	if user.ID != uuid.UUID(aliceID).String() || user.Name != "alice" || user.Role != protocol.RoleHost {
		t.Errorf("user = %+v", user)
	}

	if len(updates) == 0 {
		t.Fatal("no update events fired")
	}
	last := updates[len(updates)-1]
	if last.RoomConnectionStatus != session.StatusInRoom || last.RoomData == nil {
		t.Errorf("last update = %+v", last)
	}
}

func TestCreateRoomTwiceFails(t *testing.T) {
	sess, transport := newOpenSession(t, time.Second)

	if err := sess.CreateRoom(context.Background(), session.RoomInit{Name: "a"}); err != nil {
		t.Fatalf("first CreateRoom() error = %v", err)
	}
	err := sess.CreateRoom(context.Background(), session.RoomInit{Name: "b"})
	if !errors.Is(err, session.ErrAlreadyInRoom) {
		t.Fatalf("second CreateRoom() error = %v, want ErrAlreadyInRoom", err)
	}
	if n := countBodies[protocol.RoomCreate](t, transport); n != 1 {
		t.Errorf("RoomCreate frames = %d, want 1 (second call must send nothing)", n)
	}
}

func TestJoinRoom(t *testing.T) {
	sess, transport := newOpenSession(t, time.Second)
	joined := 0
	sess.OnRoomJoined(func() { joined++ })

	if err := sess.JoinRoom(context.Background(), roomID.String(), "abc"); err != nil {
		t.Fatalf("JoinRoom() error = %v", err)
	}

	join, ok := transport.LastBody(t).(protocol.RoomJoin)
	if !ok {
		t.Fatalf("sent body = %T, want RoomJoin", transport.LastBody(t))
	}
	if join.ID != protocol.ID(roomID) || join.Password != "abc" {
		t.Errorf("RoomJoin = %+v", join)
	}

	transport.DeliverBody(t, protocol.RoomJoinAck{})

	if joined != 1 {
		t.Errorf("roomjoined events = %d, want 1", joined)
	}
	st := sess.State()
	if st.RoomConnectionStatus != session.StatusInRoom {
		t.Errorf("status = %s, want in_room", st.RoomConnectionStatus)
	}
	if st.RoomData == nil || st.RoomData.ID != roomID.String() {
		t.Errorf("room data = %+v", st.RoomData)
	}
	if n := countBodies[protocol.RoomRequestState](t, transport); n != 1 {
		t.Errorf("request_state sent = %d, want 1", n)
	}
}

func TestJoinRoomRejectsBadID(t *testing.T) {
	sess, transport := newOpenSession(t, time.Second)

	err := sess.JoinRoom(context.Background(), "not-a-room-id", "")
	if !errors.Is(err, session.ErrInvalidRoomID) {
		t.Fatalf("JoinRoom() error = %v, want ErrInvalidRoomID", err)
	}
	if n := countBodies[protocol.RoomJoin](t, transport); n != 0 {
		t.Errorf("RoomJoin frames = %d, want 0", n)
	}
	if got := sess.State().RoomConnectionStatus; got != session.StatusNotInRoom {
		t.Errorf("status = %s, want not_in_room", got)
	}
}

func TestJoinAckTimeout(t *testing.T) {
	sess, _ := newOpenSession(t, 40*time.Millisecond)

	var errs []string
	sess.OnError(func(msg string) { errs = append(errs, msg) })

	if err := sess.JoinRoom(context.Background(), roomID.String(), ""); err != nil {
		t.Fatalf("JoinRoom() error = %v", err)
	}

	time.Sleep(120 * time.Millisecond)

	if len(errs) != 1 {
		t.Fatalf("error events = %v, want exactly one", errs)
	}
	if errs[0] != "Connection timed out" {
		t.Errorf("error = %q, want %q", errs[0], "Connection timed out")
	}
	if got := sess.State().RoomConnectionStatus; got != session.StatusNotInRoom {
		t.Errorf("status = %s, want not_in_room after timeout", got)
	}
}

func TestLateAckAfterTimeoutIgnored(t *testing.T) {
	sess, transport := newOpenSession(t, 30*time.Millisecond)

	if err := sess.JoinRoom(context.Background(), roomID.String(), ""); err != nil {
		t.Fatalf("JoinRoom() error = %v", err)
	}
	time.Sleep(90 * time.Millisecond)

	transport.DeliverBody(t, protocol.RoomJoinAck{})

	if got := sess.State().RoomConnectionStatus; got != session.StatusNotInRoom {
		t.Errorf("status = %s, want not_in_room (late ack must be ignored)", got)
	}
}

func TestAckCancelsTimeout(t *testing.T) {
	sess, transport := newOpenSession(t, 40*time.Millisecond)

	errs := 0
	sess.OnError(func(string) { errs++ })

	if err := sess.JoinRoom(context.Background(), roomID.String(), ""); err != nil {
		t.Fatalf("JoinRoom() error = %v", err)
	}
	transport.DeliverBody(t, protocol.RoomJoinAck{})

	time.Sleep(100 * time.Millisecond)

	if errs != 0 {
		t.Errorf("error events = %d, want 0 (timer canceled by ack)", errs)
	}
	if got := sess.State().RoomConnectionStatus; got != session.StatusInRoom {
		t.Errorf("status = %s, want in_room", got)
	}
}

func TestLeaveRoom(t *testing.T) {
	sess, transport := newJoinedSession(t, time.Second)

	var updates []session.State
	sess.OnUpdate(func(st session.State) { updates = append(updates, st) })
	left := 0
	sess.OnRoomLeft(func() { left++ })

	sess.LeaveRoom(context.Background())

	if n := countBodies[protocol.RoomLeave](t, transport); n != 1 {
		t.Fatalf("RoomLeave frames = %d, want 1", n)
	}
	// Optimistic clear: data gone before the server confirms.
	st := sess.State()
	if st.RoomConnectionStatus != session.StatusLeaving {
		t.Errorf("status = %s, want leaving", st.RoomConnectionStatus)
	}
	if st.RoomData != nil || st.RoomPermissions != nil {
		t.Errorf("room data/permissions = %+v/%+v, want cleared", st.RoomData, st.RoomPermissions)
	}

	transport.DeliverBody(t, protocol.RoomLeaveAck{})

	if left != 1 {
		t.Errorf("roomleft events = %d, want 1", left)
	}
	if got := sess.State().RoomConnectionStatus; got != session.StatusNotInRoom {
		t.Errorf("status = %s, want not_in_room", got)
	}
	if len(updates) < 2 {
		t.Errorf("update events = %d, want >= 2", len(updates))
	}
}

func TestLeaveRoomNoopWhenNotInRoom(t *testing.T) {
	sess, transport := newOpenSession(t, time.Second)

	sess.LeaveRoom(context.Background())

	if n := countBodies[protocol.RoomLeave](t, transport); n != 0 {
		t.Errorf("RoomLeave frames = %d, want 0", n)
	}
}

func TestCloseRoom(t *testing.T) {
	sess, transport := newJoinedSession(t, time.Second)

	if err := sess.CloseRoom(context.Background()); err != nil {
		t.Fatalf("CloseRoom() error = %v", err)
	}
	if n := countBodies[protocol.RoomClose](t, transport); n != 1 {
		t.Fatalf("RoomClose frames = %d, want 1", n)
	}

	transport.DeliverBody(t, protocol.RoomCloseAck{})
	if got := sess.State().RoomConnectionStatus; got != session.StatusNotInRoom {
		t.Errorf("status = %s, want not_in_room", got)
	}
}

func TestCloseRoomRequiresRoom(t *testing.T) {
	sess, _ := newOpenSession(t, time.Second)
	if err := sess.CloseRoom(context.Background()); !errors.Is(err, session.ErrNotInRoom) {
		t.Errorf("CloseRoom() error = %v, want ErrNotInRoom", err)
	}
}

func TestKickUser(t *testing.T) {
	sess, transport := newJoinedSession(t, time.Second)

	userID := uuid.UUID(aliceID).String()
	if err := sess.KickUser(context.Background(), userID); err != nil {
		t.Fatalf("KickUser() error = %v", err)
	}
	kick, ok := transport.LastBody(t).(protocol.RoomKickUser)
	if !ok {
		t.Fatalf("sent body = %T, want RoomKickUser", transport.LastBody(t))
	}
	if kick.UserID != aliceID {
		t.Errorf("kick user id = %v, want %v", kick.UserID, aliceID)
	}
	// No local state change.
	if got := sess.State().RoomConnectionStatus; got != session.StatusInRoom {
		t.Errorf("status = %s, want in_room", got)
	}
}

func TestKickUserRequiresRoom(t *testing.T) {
	sess, _ := newOpenSession(t, time.Second)
	err := sess.KickUser(context.Background(), uuid.UUID(aliceID).String())
	if !errors.Is(err, session.ErrNotInRoom) {
		t.Errorf("KickUser() error = %v, want ErrNotInRoom", err)
	}
}

func TestRoomStateReplacedWholesale(t *testing.T) {
	sess, transport := newJoinedSession(t, time.Second)

	transport.DeliverBody(t, protocol.RoomState{
		ID: protocol.ID(roomID), Name: "Movie Night", Password: "abc",
		Users: []protocol.RoomUser{
			{ID: aliceID, Name: "alice", Role: protocol.RoleHost},
			{ID: protocol.ID{2}, Name: "bob", Role: protocol.RoleGuest},
		},
	})
	transport.DeliverBody(t, protocol.RoomState{
		ID: protocol.ID(roomID), Name: "Movie Night", Password: "abc",
		Users: []protocol.RoomUser{
			{ID: aliceID, Name: "alice", Role: protocol.RoleHost},
		},
	})

	st := sess.State()
	if len(st.RoomData.Users) != 1 {
		t.Errorf("users after replacement = %d, want 1", len(st.RoomData.Users))
	}
}

func TestRoomPermissionsUpdate(t *testing.T) {
	sess, transport := newJoinedSession(t, time.Second)

	transport.DeliverBody(t, protocol.RoomPermissions{
		Role:        protocol.RoleHost,
		Permissions: protocol.Permissions{CanHost: true, CanClose: true, CanSetRoles: true, CanKick: true},
	})

	st := sess.State()
	if st.RoomPermissions == nil {
		t.Fatal("permissions = nil, want populated")
	}
	if st.RoomPermissions.Role != protocol.RoleHost || !st.RoomPermissions.Permissions.CanKick {
		t.Errorf("permissions = %+v", st.RoomPermissions)
	}
}

func TestRoomDisconnected(t *testing.T) {
	sess, transport := newJoinedSession(t, time.Second)

	var errs []string
	updates := 0
	sess.OnError(func(msg string) { errs = append(errs, msg) })
	sess.OnUpdate(func(session.State) { updates++ })

	transport.DeliverBody(t, protocol.RoomDisconnected{Reason: "closed_by_host"})

	if len(errs) != 1 {
		t.Fatalf("error events = %v, want 1", errs)
	}
	if updates != 1 {
		t.Errorf("update events = %d, want 1", updates)
	}
	st := sess.State()
	if st.RoomConnectionStatus != session.StatusNotInRoom || st.RoomData != nil {
		t.Errorf("state after disconnect = %+v", st)
	}
}

func TestOutOfSequenceRoomMessagesIgnored(t *testing.T) {
	sess, transport := newOpenSession(t, time.Second)

	errs := 0
	updates := 0
	sess.OnError(func(string) { errs++ })
	sess.OnUpdate(func(session.State) { updates++ })

	// Room traffic while not in a room: logged and ignored.
	transport.DeliverBody(t, protocol.RoomState{
		ID: protocol.ID(roomID), Name: "n", Password: "p",
		Users: []protocol.RoomUser{},
	})
	transport.DeliverBody(t, protocol.RoomJoinAck{})
	transport.DeliverBody(t, protocol.RoomLeaveAck{})
	transport.DeliverBody(t, protocol.RoomDisconnected{Reason: "x"})

	if errs != 0 || updates != 0 {
		t.Errorf("errs = %d, updates = %d, want 0, 0", errs, updates)
	}
	if got := sess.State().RoomConnectionStatus; got != session.StatusNotInRoom {
		t.Errorf("status = %s, want not_in_room", got)
	}
}

func TestConnectionErrorAbortsPendingOperation(t *testing.T) {
	sess, transport := newOpenSession(t, 60*time.Millisecond)

	var errs []string
	updates := 0
	sess.OnError(func(msg string) { errs = append(errs, msg) })
	sess.OnUpdate(func(session.State) { updates++ })

	if err := sess.JoinRoom(context.Background(), roomID.String(), ""); err != nil {
		t.Fatalf("JoinRoom() error = %v", err)
	}
	updatesBefore := updates

	transport.DeliverBody(t, protocol.ClientError{Message: "no such room"})

	if len(errs) != 1 || errs[0] != "no such room" {
		t.Fatalf("error events = %v, want [no such room]", errs)
	}
	if got := sess.State().RoomConnectionStatus; got != session.StatusNotInRoom {
		t.Errorf("status = %s, want not_in_room (operation aborted)", got)
	}
	if updates != updatesBefore+1 {
		t.Errorf("update events = %d, want %d", updates, updatesBefore+1)
	}

	// The ack timer was canceled along with the operation.
	time.Sleep(120 * time.Millisecond)
	if len(errs) != 1 {
		t.Errorf("error events after timeout window = %v, want no timeout error", errs)
	}
}

func TestConnectionErrorOutsideOperationJustForwards(t *testing.T) {
	sess, transport := newJoinedSession(t, time.Second)

	var errs []string
	updates := 0
	sess.OnError(func(msg string) { errs = append(errs, msg) })
	sess.OnUpdate(func(session.State) { updates++ })

	transport.DeliverBody(t, protocol.ClientError{Message: "quota exceeded"})

	if len(errs) != 1 || errs[0] != "quota exceeded" {
		t.Errorf("error events = %v", errs)
	}
	if updates != 0 {
		t.Errorf("update events = %d, want 0", updates)
	}
	if got := sess.State().RoomConnectionStatus; got != session.StatusInRoom {
		t.Errorf("status = %s, want in_room (client_error alone does not leave the room)", got)
	}
}

func TestTransportLossWhileJoined(t *testing.T) {
	sess, transport := newJoinedSession(t, time.Second)

	var order []string
	sess.OnError(func(msg string) { order = append(order, "error:"+msg) })
	sess.OnUpdate(func(st session.State) {
		order = append(order, "update:"+string(st.RoomConnectionStatus))
	})
	sess.OnClosed(func(string) { order = append(order, "closed") })

	transport.Drop()

	want := []string{"error:Server connection failed", "update:not_in_room", "closed"}
	if len(order) != len(want) {
		t.Fatalf("event order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("event order = %v, want %v", order, want)
		}
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	sess, transport := newJoinedSession(t, time.Second)

	closedEvents := 0
	sess.OnClosed(func(string) { closedEvents++ })

	sess.Close("done")
	sess.Close("done again")

	if closedEvents != 1 {
		t.Errorf("closed events = %d, want 1", closedEvents)
	}
	if !transport.Closed() {
		t.Error("transport left open after session close")
	}
	st := sess.State()
	if st.RoomConnectionStatus != session.StatusNotInRoom || st.RoomData != nil {
		t.Errorf("state after close = %+v", st)
	}
}

func TestPingInvisibleToSession(t *testing.T) {
	sess, transport := newJoinedSession(t, time.Second)

	updates := 0
	errs := 0
	sess.OnUpdate(func(session.State) { updates++ })
	sess.OnError(func(string) { errs++ })

	transport.DeliverBody(t, protocol.Ping{})

	if n := countBodies[protocol.Pong](t, transport); n != 1 {
		t.Errorf("pongs = %d, want 1", n)
	}
	if updates != 0 || errs != 0 {
		t.Errorf("updates = %d, errs = %d, want 0, 0", updates, errs)
	}
}

func TestDataPresentIffInRoom(t *testing.T) {
	sess, transport := newOpenSession(t, 30*time.Millisecond)

	check := func(stage string) {
		t.Helper()
		st := sess.State()
		inRoom := st.RoomConnectionStatus == session.StatusInRoom
		if (st.RoomData != nil) != inRoom || (st.RoomPermissions != nil) != inRoom {
			t.Errorf("%s: status %s with data=%v perms=%v",
				stage, st.RoomConnectionStatus, st.RoomData != nil, st.RoomPermissions != nil)
		}
	}

	check("initial")
	if err := sess.JoinRoom(context.Background(), roomID.String(), ""); err != nil {
		t.Fatalf("JoinRoom() error = %v", err)
	}
	check("joining")
	transport.DeliverBody(t, protocol.RoomJoinAck{})
	check("joined")
	sess.LeaveRoom(context.Background())
	check("leaving")
	time.Sleep(90 * time.Millisecond) // leave ack timeout fires
	check("after timeout")
	sess.Close("bye")
	check("closed")
}
