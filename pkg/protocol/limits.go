package protocol

// Limits on incoming frames. The channel enforces MaxFrameSize at the
// transport read boundary; the decoder enforces the collection limit so a
// small frame cannot claim a huge member list.
const (
	// MaxFrameSize is the largest frame accepted from the transport (64KB).
	MaxFrameSize = 64 * 1024

	// MaxRoomUsers is the largest member list accepted in room::state.
	MaxRoomUsers = 1024
)
