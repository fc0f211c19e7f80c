// Package protocol implements the palantir wire protocol.
//
// Every frame exchanged with the server is one msgpack-encoded map with a
// string discriminator under the "m" key and a sender timestamp under "t"
// (milliseconds since epoch). The remaining keys are the payload of the
// variant named by the discriminator.
//
// # Discriminators
//
// Discriminators are namespaced and versioned:
//
//	<namespace>::<verb>/v<version>
//
// Two namespaces exist. "connection" carries the login handshake, liveness
// and teardown messages and is consumed entirely by the connection layer.
// "room" carries the room lifecycle (create/join/leave/close), membership
// state and permission grants and is consumed by the session layer.
//
// # Decoding
//
// Decode parses the discriminator first and then dispatches to a
// per-variant structural validator. A frame that is not valid msgpack,
// names no known variant, or is missing a required field (or carries one
// with the wrong type) fails with a *DecodeError and produces no partial
// value. Unknown extra keys are ignored for forward compatibility.
//
// # Encoding
//
// Encode stamps the current time into "t" and emits a deterministic field
// set per variant; optional fields (login api_key) are omitted when empty
// rather than encoded as nil.
package protocol
