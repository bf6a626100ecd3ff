// Package proxy hosts the inverse-proxy-specific wiring of spec.md §2
// items 6–8: the FrontSession/BackSession forwarding conduits and the
// ForwardContext registry/router that pairs them by name, grounded on
// _examples/original_source/Apps/InverseProxy/InverseProxyServer/ForwardContext.h.
//
// Unlike session.ClientSession/session.ServerSession, neither
// FrontSession nor BackSession drives a webrtcpeer.Peer directly — the
// real Peer lives on the standalone source/viewer harnesses in cmd/,
// which is what spec.md §4.3/§4.4 describe. FrontSession and BackSession
// are thin session.Base wrappers whose job is purely to translate CSeqs
// (and, for SETUP/PLAY/TEARDOWN, SessionIds are passed through verbatim
// — the scenarios of spec.md §8 show the back's own SessionId reaching
// the front unchanged) and hand messages to the other side.
package proxy

import (
	"fmt"
	"log"
	"strings"

	"github.com/WebRTSP/Native/pkg/liberrors"
	"github.com/WebRTSP/Native/pkg/rtsp"
)

// frontOrigin recovers, given a back-side CSeq, which FrontSession
// issued the request that CSeq now answers, and under what CSeq that
// front knows it by.
type frontOrigin struct {
	front     *FrontSession
	frontCSeq rtsp.CSeq
}

// backOrigin is frontOrigin's mirror for back-initiated requests (ICE
// trickle) forwarded onward to a front.
type backOrigin struct {
	back     *BackSession
	backCSeq rtsp.CSeq
}

// ForwardContext is the process-lived rendezvous of spec.md §4.5. Every
// method here must only be called from the single loop the owning
// proxy.Server confines Front/Back dispatch to (spec.md §5) — it holds
// no locks of its own.
type ForwardContext struct {
	backByName map[string]*BackSession
	frontSet   map[*FrontSession]struct{}

	// backPending[back][backCSeq] recovers the front-originated request
	// now in flight on back, for forwardToFrontSessionResponse.
	backPending map[*BackSession]map[rtsp.CSeq]frontOrigin

	// frontPending[front][frontCSeq] recovers the back-originated
	// request now in flight on front, for forwardToBackSessionResponse.
	frontPending map[*FrontSession]map[rtsp.CSeq]backOrigin

	// sessionOwner[back][sessionId] recovers which FrontSession's
	// DESCRIBE/ANNOUNCE established sessionId on back, so a later
	// back-initiated SETUP (ICE trickle) for that session routes to the
	// right viewer.
	sessionOwner map[*BackSession]map[rtsp.SessionId]*FrontSession

	logger *log.Logger
}

// NewForwardContext returns an empty ForwardContext. logger may be nil,
// in which case routing failures are not logged.
func NewForwardContext(logger *log.Logger) *ForwardContext {
	return &ForwardContext{
		backByName:   make(map[string]*BackSession),
		frontSet:     make(map[*FrontSession]struct{}),
		backPending:  make(map[*BackSession]map[rtsp.CSeq]frontOrigin),
		frontPending: make(map[*FrontSession]map[rtsp.CSeq]backOrigin),
		sessionOwner: make(map[*BackSession]map[rtsp.SessionId]*FrontSession),
		logger:       logger,
	}
}

func (ctx *ForwardContext) logf(format string, args ...any) {
	if ctx.logger != nil {
		ctx.logger.Printf(format, args...)
	}
}

// registerFrontSession admits front.
func (ctx *ForwardContext) registerFrontSession(front *FrontSession) {
	ctx.frontSet[front] = struct{}{}
}

// removeFrontSession forgets front and unbinds it from whatever
// BackSession it was attached to.
func (ctx *ForwardContext) removeFrontSession(front *FrontSession) {
	delete(ctx.frontSet, front)
	delete(ctx.frontPending, front)
	front.back = nil

	for _, owners := range ctx.sessionOwner {
		for sessionId, owner := range owners {
			if owner == front {
				delete(owners, sessionId)
			}
		}
	}
}

// registerBackSession admits back under name. It fails if name already
// maps to a live BackSession.
func (ctx *ForwardContext) registerBackSession(name string, back *BackSession) bool {
	if _, exists := ctx.backByName[name]; exists {
		return false
	}
	ctx.backByName[name] = back
	ctx.backPending[back] = make(map[rtsp.CSeq]frontOrigin)
	ctx.sessionOwner[back] = make(map[rtsp.SessionId]*FrontSession)
	return true
}

// removeBackSession removes back from the registry only if it is
// currently registered under name, and force-disconnects every
// FrontSession bound to it (spec.md §3 BackSession lifecycle, §8
// scenario 5).
func (ctx *ForwardContext) removeBackSession(name string, back *BackSession) {
	if ctx.backByName[name] != back {
		return
	}
	delete(ctx.backByName, name)
	delete(ctx.backPending, back)
	delete(ctx.sessionOwner, back)

	for front := range ctx.frontSet {
		if front.back == back {
			front.back = nil
			front.forceDisconnect()
		}
	}
}

// splitBackName parses "<backName>/<streamPath>" into its two parts.
func splitBackName(uri string) (name, path string, ok bool) {
	idx := strings.IndexByte(uri, '/')
	if idx <= 0 || idx == len(uri)-1 {
		return "", "", false
	}
	return uri[:idx], uri[idx+1:], true
}

// forwardToBackSession forwards a front-originated request to the back
// it is (or is about to become) bound to (spec.md §4.5). The first such
// request determines the binding, parsed from the request-URI.
func (ctx *ForwardContext) forwardToBackSession(front *FrontSession, req *rtsp.Request) bool {
	back := front.back
	if back == nil {
		name, path, ok := splitBackName(req.URI)
		if !ok {
			front.sendError(req.CSeq, rtsp.StatusBadRequest)
			return false
		}
		b, ok := ctx.backByName[name]
		if !ok {
			ctx.logf("forward context: %v", liberrors.ErrRouteNotFound{Name: name})
			front.sendError(req.CSeq, rtsp.StatusNotFound)
			return false
		}
		back = b
		front.back = back
		req.URI = path
	} else if name, path, ok := splitBackName(req.URI); ok && ctx.backByName[name] == back {
		req.URI = path
	}

	frontCSeq := req.CSeq

	backCSeq, err := back.base.ForwardRequest(req)
	if err != nil {
		front.sendError(frontCSeq, rtsp.StatusServiceUnavailable)
		return false
	}

	ctx.backPending[back][backCSeq] = frontOrigin{front: front, frontCSeq: frontCSeq}
	return true
}

// forwardToBackSessionResponse forwards front's response to a request
// back had itself initiated (spec.md §4.5 "forwardToBackSession(front,
// request, response)").
func (ctx *ForwardContext) forwardToBackSessionResponse(front *FrontSession, req *rtsp.Request, res *rtsp.Response) bool {
	pending := ctx.frontPending[front]
	if pending == nil {
		ctx.logf("forward context: %v", liberrors.ErrTranslationMiss{Reason: "no pending back-originated requests for this front"})
		return false
	}
	origin, ok := pending[req.CSeq]
	if !ok {
		ctx.logf("forward context: %v", liberrors.ErrTranslationMiss{Reason: fmt.Sprintf("no pending request for CSeq %d", req.CSeq)})
		return false
	}
	delete(pending, req.CSeq)

	res.CSeq = origin.backCSeq
	return origin.back.base.SendResponse(res) == nil
}

// forwardToFrontSession forwards a back-initiated request — in practice
// a trickled-ICE SETUP or an EOS TEARDOWN — to the FrontSession bound to
// back's SessionId
// (spec.md §4.4 "ICE emission toward the remote" / §4.5).
func (ctx *ForwardContext) forwardToFrontSession(back *BackSession, req *rtsp.Request) bool {
	owners := ctx.sessionOwner[back]
	if owners == nil {
		ctx.logf("forward context: %v", liberrors.ErrSessionNotFound{Session: string(req.Session())})
		return false
	}
	front, ok := owners[req.Session()]
	if !ok {
		ctx.logf("forward context: %v", liberrors.ErrSessionNotFound{Session: string(req.Session())})
		return false
	}

	backCSeq := req.CSeq
	req.URI = back.name + "/" + req.URI

	frontCSeq, err := front.base.ForwardRequest(req)
	if err != nil {
		return false
	}

	if ctx.frontPending[front] == nil {
		ctx.frontPending[front] = make(map[rtsp.CSeq]backOrigin)
	}
	ctx.frontPending[front][frontCSeq] = backOrigin{back: back, backCSeq: backCSeq}
	return true
}

// forwardToFrontSessionResponse forwards back's response to a
// front-originated request, using the translation recorded by
// forwardToBackSession. It also learns the (back, SessionId) → front
// ownership the first time a response carries a Session header, so a
// later back-initiated SETUP for that session can find its way back to
// the right viewer.
func (ctx *ForwardContext) forwardToFrontSessionResponse(back *BackSession, req *rtsp.Request, res *rtsp.Response) bool {
	pending := ctx.backPending[back]
	if pending == nil {
		ctx.logf("forward context: %v", liberrors.ErrTranslationMiss{Reason: "no pending front-originated requests for this back"})
		return false
	}
	origin, ok := pending[req.CSeq]
	if !ok {
		ctx.logf("forward context: %v", liberrors.ErrTranslationMiss{Reason: fmt.Sprintf("no pending request for CSeq %d", req.CSeq)})
		return false
	}
	delete(pending, req.CSeq)

	if sessionId := res.Session(); sessionId != "" {
		ctx.sessionOwner[back][sessionId] = origin.front
	}

	res.CSeq = origin.frontCSeq
	return origin.front.base.SendResponse(res) == nil
}
