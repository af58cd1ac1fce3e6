// Package protoerr holds the base protocol error, below both the deadline and
// protocol packages so each can match it.
package protoerr

import "errors"

var ErrProtocol = errors.New("protocol: transport protocol error")
