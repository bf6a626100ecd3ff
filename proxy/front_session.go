package proxy

import (
	"github.com/WebRTSP/Native/pkg/rtsp"
	"github.com/WebRTSP/Native/session"
)

// FrontSession is the viewer-facing side of the proxy. It answers
// OPTIONS itself; every other request is handed to ForwardContext for
// routing to whichever BackSession it is (or becomes) bound to
// (spec.md §2 item 6, §4.5).
type FrontSession struct {
	session.DefaultHandler

	base *session.Base
	ctx  *ForwardContext

	back *BackSession

	onDisconnect func()
}

// NewFrontSession wires a FrontSession to transport and registers it
// with ctx. onDisconnect is called when the underlying connection must
// be force-closed, e.g. because the bound BackSession went away.
func NewFrontSession(transport session.Transport, ctx *ForwardContext, onDisconnect func()) *FrontSession {
	fs := &FrontSession{ctx: ctx, onDisconnect: onDisconnect}
	fs.base = session.NewBase(transport, fs)
	ctx.registerFrontSession(fs)
	return fs
}

// HandleInbound feeds one inbound WS frame to the session. The caller
// must close the connection if it returns false.
func (fs *FrontSession) HandleInbound(frame string) bool {
	return fs.base.HandleInbound(frame)
}

// Close unregisters fs from its ForwardContext. Call on WS disconnect.
func (fs *FrontSession) Close() {
	fs.ctx.removeFrontSession(fs)
}

func (fs *FrontSession) sendError(cseq rtsp.CSeq, status rtsp.StatusCode) {
	fs.base.SendErrorResponse(cseq, status) //nolint:errcheck
}

func (fs *FrontSession) forceDisconnect() {
	if fs.onDisconnect != nil {
		fs.onDisconnect()
	}
}

// OnOptionsRequest implements session.Handler: answered locally, never
// forwarded (spec.md §8 scenario 1).
func (fs *FrontSession) OnOptionsRequest(req *rtsp.Request) bool {
	res := fs.base.PrepareOkResponse(req.CSeq, "")
	res.Header.Set(rtsp.HeaderPublic, "DESCRIBE, SETUP, PLAY, TEARDOWN")
	return fs.base.SendResponse(res) == nil
}

// OnDescribeRequest implements session.Handler.
func (fs *FrontSession) OnDescribeRequest(req *rtsp.Request) bool {
	return fs.ctx.forwardToBackSession(fs, req)
}

// OnAnnounceRequest implements session.Handler.
func (fs *FrontSession) OnAnnounceRequest(req *rtsp.Request) bool {
	return fs.ctx.forwardToBackSession(fs, req)
}

// HandleSetupRequest implements session.Handler: the SDP/ICE SETUP a
// viewer sends us. Base only ever calls it for inbound SETUP *requests*;
// the viewer's ack for an ICE SETUP we forwarded from the back side
// arrives through OnSetupResponse instead.
func (fs *FrontSession) HandleSetupRequest(req *rtsp.Request) bool {
	return fs.ctx.forwardToBackSession(fs, req)
}

// OnPlayRequest implements session.Handler.
func (fs *FrontSession) OnPlayRequest(req *rtsp.Request) bool {
	return fs.ctx.forwardToBackSession(fs, req)
}

// OnRecordRequest implements session.Handler.
func (fs *FrontSession) OnRecordRequest(req *rtsp.Request) bool {
	return fs.ctx.forwardToBackSession(fs, req)
}

// OnTeardownRequest implements session.Handler.
func (fs *FrontSession) OnTeardownRequest(req *rtsp.Request) bool {
	return fs.ctx.forwardToBackSession(fs, req)
}

// OnOptionsResponse implements session.Handler: fs never issues OPTIONS
// itself, so this hook is unreachable in practice; included for
// interface completeness.
func (fs *FrontSession) OnOptionsResponse(req *rtsp.Request, res *rtsp.Response) bool {
	return fs.ctx.forwardToBackSessionResponse(fs, req, res)
}

// OnDescribeResponse implements session.Handler, for symmetry with
// OnOptionsResponse; unreachable for the same reason.
func (fs *FrontSession) OnDescribeResponse(req *rtsp.Request, res *rtsp.Response) bool {
	return fs.ctx.forwardToBackSessionResponse(fs, req, res)
}

// OnAnnounceResponse implements session.Handler; see OnOptionsResponse.
func (fs *FrontSession) OnAnnounceResponse(req *rtsp.Request, res *rtsp.Response) bool {
	return fs.ctx.forwardToBackSessionResponse(fs, req, res)
}

// OnRecordResponse implements session.Handler; see OnOptionsResponse.
func (fs *FrontSession) OnRecordResponse(req *rtsp.Request, res *rtsp.Response) bool {
	return fs.ctx.forwardToBackSessionResponse(fs, req, res)
}

// OnSetupResponse implements session.Handler: the viewer's ack for a
// trickled-ICE SETUP we forwarded on behalf of the bound back.
func (fs *FrontSession) OnSetupResponse(req *rtsp.Request, res *rtsp.Response) bool {
	return fs.ctx.forwardToBackSessionResponse(fs, req, res)
}

// OnPlayResponse implements session.Handler; see OnOptionsResponse.
func (fs *FrontSession) OnPlayResponse(req *rtsp.Request, res *rtsp.Response) bool {
	return fs.ctx.forwardToBackSessionResponse(fs, req, res)
}

// OnTeardownResponse implements session.Handler: the viewer's ack for a
// TEARDOWN we forwarded on behalf of the bound back (its Peer's EOS).
func (fs *FrontSession) OnTeardownResponse(req *rtsp.Request, res *rtsp.Response) bool {
	return fs.ctx.forwardToBackSessionResponse(fs, req, res)
}
