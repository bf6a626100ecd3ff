// Package session implements the RTSP-over-WebSocket session state
// machines of spec.md §4.2–§4.4: the shared CSeq/dispatch bookkeeping of
// Base, the client-role ClientSession and the server-role ServerSession.
package session

import (
	"strings"
	"sync/atomic"

	"github.com/WebRTSP/Native/pkg/rtsp"
)

// Transport is the outbound half of a session: emitting a framed RTSP
// message on the underlying WebSocket. spec.md §2 item 2 treats the
// WebSocket transport as an abstract bidirectional text-message pipe;
// Transport is the Go shape of that abstraction, implemented by
// transport.WS in this repository.
type Transport interface {
	SendRequest(*rtsp.Request) error
	SendResponse(*rtsp.Response) error
}

// Handler receives the dispatch callbacks described in spec.md §4.2. A
// concrete session embeds DefaultHandler and overrides only the hooks
// relevant to its role — the Go shape of the "pair of capability
// interfaces... composed by the concrete session rather than inherited"
// called for in spec.md §9's design note on the deep class hierarchy.
type Handler interface {
	// Inbound requests. SETUP is special: both roles receive it (a
	// server-role endpoint for the SDP/ICE answer, a client-role
	// endpoint for trickled ICE from the peer side), so HandleSetupRequest
	// is the single polymorphic hook spec.md §4.2 describes for it.
	OnOptionsRequest(*rtsp.Request) bool
	OnDescribeRequest(*rtsp.Request) bool
	OnAnnounceRequest(*rtsp.Request) bool
	HandleSetupRequest(*rtsp.Request) bool
	OnPlayRequest(*rtsp.Request) bool
	OnRecordRequest(*rtsp.Request) bool
	OnTeardownRequest(*rtsp.Request) bool

	// Inbound responses, correlated by CSeq against a prior outbound
	// request issued through Base. OnAnnounceResponse/OnRecordResponse
	// are only ever reached by forwarding code in the proxy package —
	// neither ClientSession nor ServerSession issues those methods
	// itself (spec.md §4.3/§4.4).
	OnOptionsResponse(*rtsp.Request, *rtsp.Response) bool
	OnDescribeResponse(*rtsp.Request, *rtsp.Response) bool
	OnAnnounceResponse(*rtsp.Request, *rtsp.Response) bool
	OnSetupResponse(*rtsp.Request, *rtsp.Response) bool
	OnPlayResponse(*rtsp.Request, *rtsp.Response) bool
	OnRecordResponse(*rtsp.Request, *rtsp.Response) bool
	OnTeardownResponse(*rtsp.Request, *rtsp.Response) bool
}

// DefaultHandler closes the connection (returns false) for every hook a
// concrete session does not override, mirroring the "return false"
// default of the reference implementation's base-class virtuals.
type DefaultHandler struct{}

func (DefaultHandler) OnOptionsRequest(*rtsp.Request) bool   { return false }
func (DefaultHandler) OnDescribeRequest(*rtsp.Request) bool  { return false }
func (DefaultHandler) OnAnnounceRequest(*rtsp.Request) bool  { return false }
func (DefaultHandler) HandleSetupRequest(*rtsp.Request) bool { return false }
func (DefaultHandler) OnPlayRequest(*rtsp.Request) bool      { return false }
func (DefaultHandler) OnRecordRequest(*rtsp.Request) bool    { return false }
func (DefaultHandler) OnTeardownRequest(*rtsp.Request) bool  { return false }

func (DefaultHandler) OnOptionsResponse(*rtsp.Request, *rtsp.Response) bool  { return false }
func (DefaultHandler) OnDescribeResponse(*rtsp.Request, *rtsp.Response) bool { return false }
func (DefaultHandler) OnAnnounceResponse(*rtsp.Request, *rtsp.Response) bool { return false }
func (DefaultHandler) OnSetupResponse(*rtsp.Request, *rtsp.Response) bool    { return false }
func (DefaultHandler) OnPlayResponse(*rtsp.Request, *rtsp.Response) bool     { return false }
func (DefaultHandler) OnRecordResponse(*rtsp.Request, *rtsp.Response) bool   { return false }
func (DefaultHandler) OnTeardownResponse(*rtsp.Request, *rtsp.Response) bool {
	return false
}

// Base holds the CSeq counter, the outstanding-request table (keyed by
// CSeq, for client-role-style replies on either role) and the dispatch
// plumbing shared by every RTSP-over-WS endpoint (spec.md §4.2).
type Base struct {
	transport Transport
	handler   Handler

	nextCSeq uint32
	pending  map[rtsp.CSeq]*rtsp.Request
}

// NewBase wires a Base to its transport and dispatch handler.
func NewBase(transport Transport, handler Handler) *Base {
	return &Base{
		transport: transport,
		handler:   handler,
		pending:   make(map[rtsp.CSeq]*rtsp.Request),
	}
}

func (b *Base) allocCSeq() rtsp.CSeq {
	return rtsp.CSeq(atomic.AddUint32(&b.nextCSeq, 1))
}

// PendingCount reports the number of outstanding requests awaiting a
// response — used by tests to verify the "0 outstanding on clean
// termination" invariant of spec.md §8.
func (b *Base) PendingCount() int {
	return len(b.pending)
}

func (b *Base) request(method rtsp.Method, uri string, session rtsp.SessionId, contentType string, body []byte) error {
	h := rtsp.NewHeader()
	if session != "" {
		h.Set(rtsp.HeaderSession, string(session))
	}
	if contentType != "" {
		h.Set(rtsp.HeaderContentType, contentType)
	}

	req := &rtsp.Request{
		Method: method,
		URI:    uri,
		CSeq:   b.allocCSeq(),
		Header: h,
		Body:   body,
	}

	b.pending[req.CSeq] = req

	if err := b.transport.SendRequest(req); err != nil {
		delete(b.pending, req.CSeq)
		return err
	}
	return nil
}

// RequestOptions issues an OPTIONS request.
func (b *Base) RequestOptions(uri string) error {
	return b.request(rtsp.OPTIONS, uri, "", "", nil)
}

// RequestDescribe issues a DESCRIBE request.
func (b *Base) RequestDescribe(uri string) error {
	return b.request(rtsp.DESCRIBE, uri, "", "", nil)
}

// RequestSetup issues a SETUP request carrying either an SDP answer or a
// trickled ICE candidate line, per spec.md §4.2/§6.
func (b *Base) RequestSetup(uri, contentType string, session rtsp.SessionId, body []byte) error {
	return b.request(rtsp.SETUP, uri, session, contentType, body)
}

// RequestPlay issues a PLAY request.
func (b *Base) RequestPlay(uri string, session rtsp.SessionId) error {
	return b.request(rtsp.PLAY, uri, session, "", nil)
}

// RequestTeardown issues a TEARDOWN request.
func (b *Base) RequestTeardown(uri string, session rtsp.SessionId) error {
	return b.request(rtsp.TEARDOWN, uri, session, "", nil)
}

// ForwardRequest stamps req with a freshly allocated CSeq, tracks it in
// the outstanding-request table and sends it as-is. Unlike RequestXxx,
// the caller supplies an already-built Request — the shape forwarding
// code in the proxy package needs, since it re-emits a request received
// on one connection onto another rather than building one from method
// arguments (spec.md §4.5).
func (b *Base) ForwardRequest(req *rtsp.Request) (rtsp.CSeq, error) {
	cseq := b.allocCSeq()
	req.CSeq = cseq
	b.pending[cseq] = req

	if err := b.transport.SendRequest(req); err != nil {
		delete(b.pending, cseq)
		return 0, err
	}
	return cseq, nil
}

// SendResponse emits res verbatim. The caller is responsible for having
// set res.CSeq to the originating request's CSeq.
func (b *Base) SendResponse(res *rtsp.Response) error {
	return b.transport.SendResponse(res)
}

// PrepareOkResponse builds a 200 response echoing cseq, with a Session
// header if session is non-empty (spec.md §4.2).
func (b *Base) PrepareOkResponse(cseq rtsp.CSeq, session rtsp.SessionId) *rtsp.Response {
	h := rtsp.NewHeader()
	if session != "" {
		h.Set(rtsp.HeaderSession, string(session))
	}
	return &rtsp.Response{
		StatusCode: rtsp.StatusOK,
		CSeq:       cseq,
		Header:     h,
	}
}

// SendOkResponse prepares and sends a 200 response in one call.
func (b *Base) SendOkResponse(cseq rtsp.CSeq, session rtsp.SessionId) error {
	return b.SendResponse(b.PrepareOkResponse(cseq, session))
}

// SendErrorResponse sends a non-2xx response with no body, echoing cseq.
func (b *Base) SendErrorResponse(cseq rtsp.CSeq, status rtsp.StatusCode) error {
	return b.SendResponse(&rtsp.Response{
		StatusCode: status,
		CSeq:       cseq,
		Header:     rtsp.NewHeader(),
	})
}

// HandleInbound parses frame and dispatches it as a request or response.
// It returns false if the connection must be closed as a result — a
// malformed message, an unknown CSeq, or a handler hook itself returning
// false (spec.md §4.2/§7 "protocol error... close the offending
// connection").
func (b *Base) HandleInbound(frame string) bool {
	if looksLikeResponse(frame) {
		res, err := rtsp.ReadResponse(frame)
		if err != nil {
			return false
		}
		return b.dispatchResponse(res)
	}

	req, err := rtsp.ReadRequest(frame)
	if err != nil {
		return false
	}
	return b.dispatchRequest(req)
}

func looksLikeResponse(frame string) bool {
	return strings.HasPrefix(frame, "RTSP/1.0 ")
}

func (b *Base) dispatchResponse(res *rtsp.Response) bool {
	req, ok := b.pending[res.CSeq]
	if !ok {
		return false
	}
	delete(b.pending, res.CSeq)

	switch req.Method {
	case rtsp.OPTIONS:
		return b.handler.OnOptionsResponse(req, res)
	case rtsp.DESCRIBE:
		return b.handler.OnDescribeResponse(req, res)
	case rtsp.ANNOUNCE:
		return b.handler.OnAnnounceResponse(req, res)
	case rtsp.SETUP:
		return b.handler.OnSetupResponse(req, res)
	case rtsp.PLAY:
		return b.handler.OnPlayResponse(req, res)
	case rtsp.RECORD:
		return b.handler.OnRecordResponse(req, res)
	case rtsp.TEARDOWN:
		return b.handler.OnTeardownResponse(req, res)
	default:
		return false
	}
}

// GET_PARAMETER/SET_PARAMETER are answered directly by Base with an empty
// 200 regardless of role (spec.md §9 supplemented feature) — they never
// reach Handler and never spawn a MediaSession.
func (b *Base) dispatchRequest(req *rtsp.Request) bool {
	switch req.Method {
	case rtsp.GET_PARAMETER, rtsp.SET_PARAMETER:
		return b.SendOkResponse(req.CSeq, req.Session()) == nil
	case rtsp.OPTIONS:
		return b.handler.OnOptionsRequest(req)
	case rtsp.DESCRIBE:
		return b.handler.OnDescribeRequest(req)
	case rtsp.ANNOUNCE:
		return b.handler.OnAnnounceRequest(req)
	case rtsp.SETUP:
		return b.handler.HandleSetupRequest(req)
	case rtsp.PLAY:
		return b.handler.OnPlayRequest(req)
	case rtsp.RECORD:
		return b.handler.OnRecordRequest(req)
	case rtsp.TEARDOWN:
		return b.handler.OnTeardownRequest(req)
	default:
		return false
	}
}
