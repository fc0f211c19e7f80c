package protocol

import (
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// Encode serializes a message body to one wire frame, stamping the current
// time into "t".
func Encode(body Body) ([]byte, error) {
	return EncodeAt(body, time.Now().UnixMilli())
}

// EncodeAt serializes a message body with an explicit timestamp. Exposed
// for tests; production callers use Encode.
func EncodeAt(body Body, t int64) ([]byte, error) {
	fields, err := bodyFields(body)
	if err != nil {
		return nil, err
	}

	frame := make(map[string]any, len(fields)+2)
	frame["m"] = string(body.Kind())
	frame["t"] = t
	for k, v := range fields {
		frame[k] = v
	}

	return msgpack.Marshal(frame)
}

// bodyFields returns the payload fields for one variant. The field set per
// variant is fixed; optional fields are omitted rather than set to nil.
func bodyFields(body Body) (map[string]any, error) {
	switch b := body.(type) {
	case Login:
		f := map[string]any{"username": b.Username}
		if b.APIKey != "" {
			f["api_key"] = b.APIKey
		}
		return f, nil

	case ClientError:
		return map[string]any{"message": b.Message}, nil

	case Closed:
		return map[string]any{"message": b.Message}, nil

	case RoomCreate:
		return map[string]any{"name": b.Name, "password": b.Password}, nil

	case RoomJoin:
		return map[string]any{"id": b.ID[:], "password": b.Password}, nil

	case RoomDisconnected:
		return map[string]any{"reason": b.Reason}, nil

	case RoomState:
		users := make([]any, len(b.Users))
		for i, u := range b.Users {
			u := u // per-iteration copy: u.ID[:] must not alias the loop variable under go <1.22
			users[i] = map[string]any{
				"id":   u.ID[:],
				"name": u.Name,
				"role": string(u.Role),
			}
		}
		return map[string]any{
			"id":       b.ID[:],
			"name":     b.Name,
			"password": b.Password,
			"users":    users,
		}, nil

	case RoomKickUser:
		return map[string]any{"user_id": b.UserID[:]}, nil

	case RoomPermissions:
		return map[string]any{
			"role": string(b.Role),
			"permissions": map[string]any{
				"can_host":      b.Permissions.CanHost,
				"can_close":     b.Permissions.CanClose,
				"can_set_roles": b.Permissions.CanSetRoles,
				"can_kick":      b.Permissions.CanKick,
			},
		}, nil

	case LoginAck, Ping, Pong, Keepalive,
		RoomCreateAck, RoomClose, RoomCloseAck, RoomJoinAck,
		RoomLeave, RoomLeaveAck, RoomRequestState, RoomRequestPermissions:
		return nil, nil

	default:
		return nil, fmt.Errorf("%w: %T", ErrEncodeUnknown, body)
	}
}
