package protocol

import "github.com/vmihailenco/msgpack/v5"

// Decode deserializes one wire frame and validates it against the message
// union. The discriminator is parsed first, then the matching variant's
// structural validator runs. On any failure the frame yields a *DecodeError
// and no partial value.
func Decode(data []byte) (*Message, error) {
	var raw map[string]any
	if err := msgpack.Unmarshal(data, &raw); err != nil {
		return nil, &DecodeError{Err: ErrNotMap}
	}
	if raw == nil {
		return nil, &DecodeError{Err: ErrNotMap}
	}

	mv, ok := raw["m"]
	if !ok {
		return nil, missingField("", "m")
	}
	ms, ok := mv.(string)
	if !ok {
		return nil, invalidField("", "m", "expected string")
	}

	kind := Kind(ms)
	dec, ok := decoders[kind]
	if !ok {
		return nil, &DecodeError{Kind: kind, Err: ErrUnknownKind}
	}

	t, err := int64Field(kind, raw, "t")
	if err != nil {
		return nil, err
	}

	body, err := dec(raw)
	if err != nil {
		return nil, err
	}

	return &Message{T: t, Body: body}, nil
}

// decoders dispatches a parsed discriminator to its variant validator.
var decoders = map[Kind]func(map[string]any) (Body, error){
	KindLogin:       decodeLogin,
	KindLoginAck:    emptyBody(LoginAck{}),
	KindPing:        emptyBody(Ping{}),
	KindPong:        emptyBody(Pong{}),
	KindClientError: decodeClientError,
	KindClosed:      decodeClosed,
	KindKeepalive:   emptyBody(Keepalive{}),

	KindRoomCreate:             decodeRoomCreate,
	KindRoomCreateAck:          emptyBody(RoomCreateAck{}),
	KindRoomClose:              emptyBody(RoomClose{}),
	KindRoomCloseAck:           emptyBody(RoomCloseAck{}),
	KindRoomJoin:               decodeRoomJoin,
	KindRoomJoinAck:            emptyBody(RoomJoinAck{}),
	KindRoomLeave:              emptyBody(RoomLeave{}),
	KindRoomLeaveAck:           emptyBody(RoomLeaveAck{}),
	KindRoomDisconnected:       decodeRoomDisconnected,
	KindRoomRequestState:       emptyBody(RoomRequestState{}),
	KindRoomState:              decodeRoomState,
	KindRoomKickUser:           decodeRoomKickUser,
	KindRoomRequestPermissions: emptyBody(RoomRequestPermissions{}),
	KindRoomPermissions:        decodeRoomPermissions,
}

func emptyBody(b Body) func(map[string]any) (Body, error) {
	return func(map[string]any) (Body, error) { return b, nil }
}

func decodeLogin(m map[string]any) (Body, error) {
	username, err := stringField(KindLogin, m, "username")
	if err != nil {
		return nil, err
	}
	apiKey, err := optionalStringField(KindLogin, m, "api_key")
	if err != nil {
		return nil, err
	}
	return Login{Username: username, APIKey: apiKey}, nil
}

func decodeClientError(m map[string]any) (Body, error) {
	msg, err := stringField(KindClientError, m, "message")
	if err != nil {
		return nil, err
	}
	return ClientError{Message: msg}, nil
}

func decodeClosed(m map[string]any) (Body, error) {
	msg, err := stringField(KindClosed, m, "message")
	if err != nil {
		return nil, err
	}
	return Closed{Message: msg}, nil
}

func decodeRoomCreate(m map[string]any) (Body, error) {
	name, err := stringField(KindRoomCreate, m, "name")
	if err != nil {
		return nil, err
	}
	password, err := stringField(KindRoomCreate, m, "password")
	if err != nil {
		return nil, err
	}
	return RoomCreate{Name: name, Password: password}, nil
}

func decodeRoomJoin(m map[string]any) (Body, error) {
	id, err := idField(KindRoomJoin, m, "id")
	if err != nil {
		return nil, err
	}
	password, err := stringField(KindRoomJoin, m, "password")
	if err != nil {
		return nil, err
	}
	return RoomJoin{ID: id, Password: password}, nil
}

func decodeRoomDisconnected(m map[string]any) (Body, error) {
	reason, err := stringField(KindRoomDisconnected, m, "reason")
	if err != nil {
		return nil, err
	}
	return RoomDisconnected{Reason: reason}, nil
}

func decodeRoomState(m map[string]any) (Body, error) {
	id, err := idField(KindRoomState, m, "id")
	if err != nil {
		return nil, err
	}
	name, err := stringField(KindRoomState, m, "name")
	if err != nil {
		return nil, err
	}
	password, err := stringField(KindRoomState, m, "password")
	if err != nil {
		return nil, err
	}
	users, err := usersField(KindRoomState, m, "users")
	if err != nil {
		return nil, err
	}
	return RoomState{ID: id, Name: name, Password: password, Users: users}, nil
}

func decodeRoomKickUser(m map[string]any) (Body, error) {
	userID, err := idField(KindRoomKickUser, m, "user_id")
	if err != nil {
		return nil, err
	}
	return RoomKickUser{UserID: userID}, nil
}

func decodeRoomPermissions(m map[string]any) (Body, error) {
	role, err := roleField(KindRoomPermissions, m, "role")
	if err != nil {
		return nil, err
	}
	perms, err := permissionsField(KindRoomPermissions, m, "permissions")
	if err != nil {
		return nil, err
	}
	return RoomPermissions{Role: role, Permissions: perms}, nil
}

// Field accessors. Each returns a *DecodeError naming the kind and field
// on failure so a rejected frame can be logged precisely.

func stringField(k Kind, m map[string]any, name string) (string, error) {
	v, ok := m[name]
	if !ok {
		return "", missingField(k, name)
	}
	s, ok := v.(string)
	if !ok {
		return "", invalidField(k, name, "expected string")
	}
	return s, nil
}

func optionalStringField(k Kind, m map[string]any, name string) (string, error) {
	v, ok := m[name]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", invalidField(k, name, "expected string")
	}
	return s, nil
}

// int64Field accepts any numeric representation the msgpack decoder may
// produce for an integer field.
func int64Field(k Kind, m map[string]any, name string) (int64, error) {
	v, ok := m[name]
	if !ok {
		return 0, missingField(k, name)
	}
	switch n := v.(type) {
	case int64:
		return n, nil
	case uint64:
		return int64(n), nil
	case int:
		return int64(n), nil
	case int8:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case uint8:
		return int64(n), nil
	case uint16:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case float64:
		return int64(n), nil
	case float32:
		return int64(n), nil
	default:
		return 0, invalidField(k, name, "expected integer")
	}
}

func boolField(k Kind, m map[string]any, name string) (bool, error) {
	v, ok := m[name]
	if !ok {
		return false, missingField(k, name)
	}
	b, ok := v.(bool)
	if !ok {
		return false, invalidField(k, name, "expected bool")
	}
	return b, nil
}

func idField(k Kind, m map[string]any, name string) (ID, error) {
	v, ok := m[name]
	if !ok {
		return ID{}, missingField(k, name)
	}
	raw, ok := v.([]byte)
	if !ok {
		return ID{}, invalidField(k, name, "expected binary")
	}
	if len(raw) != len(ID{}) {
		return ID{}, invalidField(k, name, "expected 16 bytes")
	}
	return ID(raw), nil
}

func roleField(k Kind, m map[string]any, name string) (Role, error) {
	s, err := stringField(k, m, name)
	if err != nil {
		return "", err
	}
	role := Role(s)
	if !role.Valid() {
		return "", invalidField(k, name, "unknown role")
	}
	return role, nil
}

func usersField(k Kind, m map[string]any, name string) ([]RoomUser, error) {
	v, ok := m[name]
	if !ok {
		return nil, missingField(k, name)
	}
	list, ok := v.([]any)
	if !ok {
		return nil, invalidField(k, name, "expected array")
	}
	if len(list) > MaxRoomUsers {
		return nil, invalidField(k, name, "member list too large")
	}

	users := make([]RoomUser, 0, len(list))
	for _, elem := range list {
		um, ok := elem.(map[string]any)
		if !ok {
			return nil, invalidField(k, name, "expected map entries")
		}
		id, err := idField(k, um, "id")
		if err != nil {
			return nil, err
		}
		uname, err := stringField(k, um, "name")
		if err != nil {
			return nil, err
		}
		role, err := roleField(k, um, "role")
		if err != nil {
			return nil, err
		}
		users = append(users, RoomUser{ID: id, Name: uname, Role: role})
	}
	return users, nil
}

func permissionsField(k Kind, m map[string]any, name string) (Permissions, error) {
	v, ok := m[name]
	if !ok {
		return Permissions{}, missingField(k, name)
	}
	pm, ok := v.(map[string]any)
	if !ok {
		return Permissions{}, invalidField(k, name, "expected map")
	}

	var p Permissions
	var err error
	if p.CanHost, err = boolField(k, pm, "can_host"); err != nil {
		return Permissions{}, err
	}
	if p.CanClose, err = boolField(k, pm, "can_close"); err != nil {
		return Permissions{}, err
	}
	if p.CanSetRoles, err = boolField(k, pm, "can_set_roles"); err != nil {
		return Permissions{}, err
	}
	if p.CanKick, err = boolField(k, pm, "can_kick"); err != nil {
		return Permissions{}, err
	}
	return p, nil
}
