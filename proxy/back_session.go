package proxy

import (
	"github.com/WebRTSP/Native/pkg/liberrors"
	"github.com/WebRTSP/Native/pkg/rtsp"
	"github.com/WebRTSP/Native/session"
)

// BackSession is the source-facing side of the proxy, registered under
// a name (spec.md §2 item 6). It answers no request itself: a SETUP
// (trickled ICE) or TEARDOWN (EOS) from the real back source is handed to
// ForwardContext for routing to the viewer that owns the session, and
// any other method closes the connection (GET_PARAMETER/SET_PARAMETER
// are acknowledged by session.Base before reaching it). Every response it
// receives is a reply to a request ForwardContext forwarded on a front's
// behalf.
type BackSession struct {
	session.DefaultHandler

	base *session.Base
	ctx  *ForwardContext
	name string

	onDisconnect func()
}

// NewBackSession wires a BackSession to transport and attempts to
// register it under name. The caller is responsible for validating the
// back's auth token before calling this (spec.md §6/§7: a bad token
// disconnects before registration is even attempted) — registration
// failure here means only a name collision with an already-live
// BackSession, reported as liberrors.ErrUnauthorized per spec.md §7.
func NewBackSession(transport session.Transport, name string, ctx *ForwardContext, onDisconnect func()) (*BackSession, error) {
	bs := &BackSession{ctx: ctx, name: name, onDisconnect: onDisconnect}
	bs.base = session.NewBase(transport, bs)

	if !ctx.registerBackSession(name, bs) {
		return nil, liberrors.ErrUnauthorized{Name: name}
	}
	return bs, nil
}

// HandleInbound feeds one inbound WS frame to the session. The caller
// must close the connection if it returns false.
func (bs *BackSession) HandleInbound(frame string) bool {
	return bs.base.HandleInbound(frame)
}

// Close unregisters bs from its ForwardContext. Call on WS disconnect —
// this cascades to force-disconnect every FrontSession still bound to
// bs (spec.md §3 BackSession lifecycle, §8 scenario 5).
func (bs *BackSession) Close() {
	bs.ctx.removeBackSession(bs.name, bs)
}

func (bs *BackSession) forceDisconnect() {
	if bs.onDisconnect != nil {
		bs.onDisconnect()
	}
}

// HandleSetupRequest implements session.Handler: the back source's own
// trickled-ICE SETUP request, forwarded to whichever front owns the
// SessionId it names.
func (bs *BackSession) HandleSetupRequest(req *rtsp.Request) bool {
	return bs.ctx.forwardToFrontSession(bs, req)
}

// OnTeardownRequest implements session.Handler: the back source issues
// TEARDOWN itself only when its own Peer signals EOS (spec.md §4.4 "the
// embedding session translates it into a TEARDOWN toward the peer
// side"), forwarded to whichever front owns the SessionId it names.
func (bs *BackSession) OnTeardownRequest(req *rtsp.Request) bool {
	return bs.ctx.forwardToFrontSession(bs, req)
}

// OnOptionsResponse implements session.Handler: back's reply to an
// OPTIONS a front forwarded through bs.
func (bs *BackSession) OnOptionsResponse(req *rtsp.Request, res *rtsp.Response) bool {
	return bs.ctx.forwardToFrontSessionResponse(bs, req, res)
}

// OnDescribeResponse implements session.Handler.
func (bs *BackSession) OnDescribeResponse(req *rtsp.Request, res *rtsp.Response) bool {
	return bs.ctx.forwardToFrontSessionResponse(bs, req, res)
}

// OnAnnounceResponse implements session.Handler.
func (bs *BackSession) OnAnnounceResponse(req *rtsp.Request, res *rtsp.Response) bool {
	return bs.ctx.forwardToFrontSessionResponse(bs, req, res)
}

// OnSetupResponse implements session.Handler: back's ack for an SDP or
// ICE SETUP a front forwarded through bs.
func (bs *BackSession) OnSetupResponse(req *rtsp.Request, res *rtsp.Response) bool {
	return bs.ctx.forwardToFrontSessionResponse(bs, req, res)
}

// OnPlayResponse implements session.Handler.
func (bs *BackSession) OnPlayResponse(req *rtsp.Request, res *rtsp.Response) bool {
	return bs.ctx.forwardToFrontSessionResponse(bs, req, res)
}

// OnRecordResponse implements session.Handler.
func (bs *BackSession) OnRecordResponse(req *rtsp.Request, res *rtsp.Response) bool {
	return bs.ctx.forwardToFrontSessionResponse(bs, req, res)
}

// OnTeardownResponse implements session.Handler.
func (bs *BackSession) OnTeardownResponse(req *rtsp.Request, res *rtsp.Response) bool {
	return bs.ctx.forwardToFrontSessionResponse(bs, req, res)
}
