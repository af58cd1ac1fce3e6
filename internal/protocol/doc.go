// Package protocol coordinates one ADB message exchange over a byte-stream transport.
//
// Ownership boundary:
// - header-then-payload pipeline under one shared deadline
// - direction locks (blocking and cooperative variants)
// - translation of transport and codec failures into ErrProtocol / ErrTimeout
//
// The transport (package transport) and the wire codec (package wire) are
// collaborators; none of their native errors escape this package unwrapped.
package protocol
