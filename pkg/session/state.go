package session

import (
	"github.com/google/uuid"

	"github.com/palantir-watch/palantir-go/pkg/protocol"
)

// RoomConnectionStatus is the externally visible room relationship,
// a pure projection of the session's internal state.
type RoomConnectionStatus string

const (
	StatusNotInRoom RoomConnectionStatus = "not_in_room"
	StatusJoining   RoomConnectionStatus = "joining"
	StatusInRoom    RoomConnectionStatus = "in_room"
	StatusLeaving   RoomConnectionStatus = "leaving"
)

// RoomUser is one room member, with the identifier in canonical text form.
type RoomUser struct {
	ID   string
	Name string
	Role protocol.Role
}

// RoomData is the authoritative snapshot of the joined room. It is
// replaced wholesale on every room::state message, never patched.
type RoomData struct {
	ID       string
	Name     string
	Password string
	Users    []RoomUser
}

func (d *RoomData) clone() *RoomData {
	if d == nil {
		return nil
	}
	out := *d
	out.Users = make([]RoomUser, len(d.Users))
	copy(out.Users, d.Users)
	return &out
}

// RoomPermissions is the server-delivered permission grant. The client
// never computes permissions locally.
type RoomPermissions struct {
	Role        protocol.Role
	Permissions protocol.Permissions
}

func (p *RoomPermissions) clone() *RoomPermissions {
	if p == nil {
		return nil
	}
	out := *p
	return &out
}

// State is the session snapshot broadcast on every update event and
// returned by Session.State. RoomData and RoomPermissions are set iff
// RoomConnectionStatus is StatusInRoom.
type State struct {
	RoomConnectionStatus RoomConnectionStatus
	RoomData             *RoomData
	RoomPermissions      *RoomPermissions
}

// phase is the internal finite-state value; RoomConnectionStatus projects
// from it.
type phase int

const (
	phaseInitial phase = iota
	phaseJoining
	phaseCreating
	phaseJoined
	phaseLeaving
	phaseClosed
)

func (p phase) String() string {
	switch p {
	case phaseInitial:
		return "Initial"
	case phaseJoining:
		return "Joining"
	case phaseCreating:
		return "Creating"
	case phaseJoined:
		return "Joined"
	case phaseLeaving:
		return "Leaving"
	case phaseClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

func (p phase) status() RoomConnectionStatus {
	switch p {
	case phaseJoining, phaseCreating:
		return StatusJoining
	case phaseJoined:
		return StatusInRoom
	case phaseLeaving:
		return StatusLeaving
	default:
		return StatusNotInRoom
	}
}

// pending reports whether a room operation is awaiting acknowledgment.
func (p phase) pending() bool {
	return p == phaseJoining || p == phaseCreating || p == phaseLeaving
}

// roomDataFromState converts a wire snapshot, translating every binary
// identifier to its canonical text form at this boundary.
func roomDataFromState(body protocol.RoomState) *RoomData {
	users := make([]RoomUser, len(body.Users))
	for i, u := range body.Users {
		users[i] = RoomUser{
			ID:   uuid.UUID(u.ID).String(),
			Name: u.Name,
			Role: u.Role,
		}
	}
	return &RoomData{
		ID:       uuid.UUID(body.ID).String(),
		Name:     body.Name,
		Password: body.Password,
		Users:    users,
	}
}
