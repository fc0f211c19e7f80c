package protocol

import "strings"

// Kind is the message discriminator ("<namespace>::<verb>/v<version>").
type Kind string

const (
	KindLogin       Kind = "connection::login/v1"
	KindLoginAck    Kind = "connection::login_ack/v1"
	KindPing        Kind = "connection::ping/v1"
	KindPong        Kind = "connection::pong/v1"
	KindClientError Kind = "connection::client_error/v1"
	KindClosed      Kind = "connection::closed/v1"
	KindKeepalive   Kind = "connection::keepalive/v1"

	KindRoomCreate             Kind = "room::create/v1"
	KindRoomCreateAck          Kind = "room::create_ack/v1"
	KindRoomClose              Kind = "room::close/v1"
	KindRoomCloseAck           Kind = "room::close_ack/v1"
	KindRoomJoin               Kind = "room::join/v1"
	KindRoomJoinAck            Kind = "room::join_ack/v1"
	KindRoomLeave              Kind = "room::leave/v1"
	KindRoomLeaveAck           Kind = "room::leave_ack/v1"
	KindRoomDisconnected       Kind = "room::disconnected/v1"
	KindRoomRequestState       Kind = "room::request_state/v1"
	KindRoomState              Kind = "room::state/v1"
	KindRoomKickUser           Kind = "room::kick_user/v1"
	KindRoomRequestPermissions Kind = "room::request_permissions/v1"
	KindRoomPermissions        Kind = "room::permissions/v1"
)

// Namespace values.
const (
	NamespaceConnection = "connection"
	NamespaceRoom       = "room"
)

// Namespace returns the part of the discriminator before "::", or "" if
// the discriminator is malformed.
func (k Kind) Namespace() string {
	ns, _, ok := strings.Cut(string(k), "::")
	if !ok {
		return ""
	}
	return ns
}

// IsConnection reports whether the kind belongs to the connection namespace.
func (k Kind) IsConnection() bool {
	return k.Namespace() == NamespaceConnection
}

// IsRoom reports whether the kind belongs to the room namespace.
func (k Kind) IsRoom() bool {
	return k.Namespace() == NamespaceRoom
}

// ID is a raw 16-byte room or user identifier as it appears on the wire.
// Conversion to and from the canonical text form happens at the session
// boundary, not here.
type ID [16]byte

// Role is a room member role assigned by the server.
type Role string

const (
	RoleHost      Role = "host"
	RoleGuest     Role = "guest"
	RoleSpectator Role = "spectator"
)

// Valid reports whether the role is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleHost, RoleGuest, RoleSpectator:
		return true
	}
	return false
}

// RoomUser is one member of a room as reported by room::state.
type RoomUser struct {
	ID   ID
	Name string
	Role Role
}

// Permissions are the per-role capabilities granted by the server.
// The client never derives these locally.
type Permissions struct {
	CanHost     bool
	CanClose    bool
	CanSetRoles bool
	CanKick     bool
}

// Body is one variant of the message union. The concrete types below are
// the only implementations.
type Body interface {
	// Kind returns the discriminator for this variant.
	Kind() Kind
}

// Message is one decoded frame: a body plus the sender timestamp.
type Message struct {
	// T is the sender clock in milliseconds since epoch. It is stamped by
	// Encode and not validated beyond its type on receipt.
	T int64

	Body Body
}

// Kind returns the discriminator of the message body.
func (m *Message) Kind() Kind { return m.Body.Kind() }

// Login opens the authentication handshake.
type Login struct {
	Username string
	APIKey   string // optional; omitted from the wire when empty
}

// LoginAck acknowledges a successful login.
type LoginAck struct{}

// Ping is a server liveness probe; the client answers with Pong.
type Ping struct{}

// Pong answers a Ping.
type Pong struct{}

// ClientError carries a server-reported error message.
type ClientError struct {
	Message string
}

// Closed announces a server-initiated disconnect.
type Closed struct {
	Message string
}

// Keepalive is a periodic no-op that keeps idle intermediaries from
// severing the transport. No response is expected.
type Keepalive struct{}

// RoomCreate asks the server to create a room.
type RoomCreate struct {
	Name     string
	Password string
}

// RoomCreateAck acknowledges RoomCreate.
type RoomCreateAck struct{}

// RoomClose asks the server to close the current room for everyone.
type RoomClose struct{}

// RoomCloseAck acknowledges RoomClose.
type RoomCloseAck struct{}

// RoomJoin asks the server to join an existing room.
type RoomJoin struct {
	ID       ID
	Password string
}

// RoomJoinAck acknowledges RoomJoin.
type RoomJoinAck struct{}

// RoomLeave asks the server to leave the current room.
type RoomLeave struct{}

// RoomLeaveAck acknowledges RoomLeave.
type RoomLeaveAck struct{}

// RoomDisconnected announces that the server ended the room relationship.
type RoomDisconnected struct {
	Reason string
}

// RoomRequestState asks the server to push a room::state snapshot.
type RoomRequestState struct{}

// RoomState is the authoritative snapshot of the joined room. It replaces
// any previous snapshot wholesale.
type RoomState struct {
	ID       ID
	Name     string
	Password string
	Users    []RoomUser
}

// RoomKickUser asks the server to remove a user from the room.
type RoomKickUser struct {
	UserID ID
}

// RoomRequestPermissions asks the server to push a room::permissions grant.
type RoomRequestPermissions struct{}

// RoomPermissions is the server-delivered permission grant for this client.
type RoomPermissions struct {
	Role        Role
	Permissions Permissions
}

func (Login) Kind() Kind                  { return KindLogin }
func (LoginAck) Kind() Kind               { return KindLoginAck }
func (Ping) Kind() Kind                   { return KindPing }
func (Pong) Kind() Kind                   { return KindPong }
func (ClientError) Kind() Kind            { return KindClientError }
func (Closed) Kind() Kind                 { return KindClosed }
func (Keepalive) Kind() Kind              { return KindKeepalive }
func (RoomCreate) Kind() Kind             { return KindRoomCreate }
func (RoomCreateAck) Kind() Kind          { return KindRoomCreateAck }
func (RoomClose) Kind() Kind              { return KindRoomClose }
func (RoomCloseAck) Kind() Kind           { return KindRoomCloseAck }
func (RoomJoin) Kind() Kind               { return KindRoomJoin }
func (RoomJoinAck) Kind() Kind            { return KindRoomJoinAck }
func (RoomLeave) Kind() Kind              { return KindRoomLeave }
func (RoomLeaveAck) Kind() Kind           { return KindRoomLeaveAck }
func (RoomDisconnected) Kind() Kind       { return KindRoomDisconnected }
func (RoomRequestState) Kind() Kind       { return KindRoomRequestState }
func (RoomState) Kind() Kind              { return KindRoomState }
func (RoomKickUser) Kind() Kind           { return KindRoomKickUser }
func (RoomRequestPermissions) Kind() Kind { return KindRoomRequestPermissions }
func (RoomPermissions) Kind() Kind        { return KindRoomPermissions }
