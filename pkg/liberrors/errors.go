// Package liberrors holds the typed error values the signalling core and
// the forwarding fabric raise, grounded on the error kinds of spec.md §7.
package liberrors

import "fmt"

// ErrProtocol is a malformed message, unknown CSeq, SessionId mismatch or
// missing required header. The offending connection must be closed.
type ErrProtocol struct {
	Reason string
}

func (e ErrProtocol) Error() string {
	return fmt.Sprintf("rtsp protocol error: %s", e.Reason)
}

// ErrResourceUnavailable is a Peer creation failure, an empty SDP after
// prepare, or a SessionId collision.
type ErrResourceUnavailable struct {
	Reason string
}

func (e ErrResourceUnavailable) Error() string {
	return fmt.Sprintf("resource unavailable: %s", e.Reason)
}

// ErrUnauthorized is a back-session name collision or a bad auth token.
type ErrUnauthorized struct {
	Name string
}

func (e ErrUnauthorized) Error() string {
	return fmt.Sprintf("unauthorized back session %q", e.Name)
}

// ErrRouteNotFound is a front session referencing an unknown back name.
type ErrRouteNotFound struct {
	Name string
}

func (e ErrRouteNotFound) Error() string {
	return fmt.Sprintf("no back session registered under %q", e.Name)
}

// ErrSessionNotFound is a request/response referencing an unknown SessionId
// on a server-role endpoint.
type ErrSessionNotFound struct {
	Session string
}

func (e ErrSessionNotFound) Error() string {
	return fmt.Sprintf("no media session %q", e.Session)
}

// ErrTranslationMiss is a response for which ForwardContext holds no
// CSeq/SessionId translation entry.
type ErrTranslationMiss struct {
	Reason string
}

func (e ErrTranslationMiss) Error() string {
	return fmt.Sprintf("forwarding translation miss: %s", e.Reason)
}
