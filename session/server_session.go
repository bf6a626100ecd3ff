package session

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"

	"github.com/WebRTSP/Native/pkg/liberrors"
	"github.com/WebRTSP/Native/pkg/rtsp"
	"github.com/WebRTSP/Native/pkg/webrtcpeer"
)

// MediaSession is one DESCRIBE- or ANNOUNCE-spawned session on a
// ServerSession, keyed by SessionId (spec.md §3).
type MediaSession struct {
	recorder      bool
	uri           string
	createRequest *rtsp.Request
	localPeer     webrtcpeer.Peer
}

// pendingRequest is a PendingRequest of spec.md §3: an in-flight
// DESCRIBE or ANNOUNCE awaiting its Peer's "prepared" callback.
type pendingRequest struct {
	request *rtsp.Request
	session rtsp.SessionId
}

// ServerSession is the RTSP server-role state machine of spec.md §4.4: it
// accepts DESCRIBE/ANNOUNCE/SETUP/PLAY/RECORD/TEARDOWN and drives one
// Peer per MediaSession. The embedding code (cmd/inverseproxy-source)
// supplies onEos, the Go shape of the reference's abstract onEos hook
// (spec.md §9 design note on composing capabilities rather than
// inheriting them). Grounded on
// _examples/original_source/Signalling/ServerSession.cpp.
type ServerSession struct {
	DefaultHandler

	base *Base
	loop *Loop

	peerFactory   webrtcpeer.Factory
	iceServers    []string
	recordEnabled bool
	logger        *log.Logger

	nextSessionId uint64
	mediaSessions map[rtsp.SessionId]*MediaSession

	describePending map[rtsp.CSeq]*pendingRequest
	announcePending map[rtsp.CSeq]*pendingRequest

	onEos   func(rtsp.SessionId, string)
	onFatal func()
}

// NewServerSession wires a ServerSession to its transport and Peer
// factory. recordEnabled gates ANNOUNCE/RECORD (spec.md §4.4/§6). logger
// may be nil, in which case ServerSession logs nothing. onEos is called
// once per MediaSession, with its stream URI, when its Peer signals
// end-of-stream; onFatal is called when the connection must be closed as
// the result of an async (not handler-return-value) failure — a Peer
// validation failure after "prepared" fires (spec.md §4.4 step 4).
func NewServerSession(
	transport Transport,
	peerFactory webrtcpeer.Factory,
	iceServers []string,
	recordEnabled bool,
	loop *Loop,
	logger *log.Logger,
	onEos func(rtsp.SessionId, string),
	onFatal func(),
) *ServerSession {
	ss := &ServerSession{
		loop:            loop,
		peerFactory:     peerFactory,
		iceServers:      iceServers,
		recordEnabled:   recordEnabled,
		logger:          logger,
		mediaSessions:   make(map[rtsp.SessionId]*MediaSession),
		describePending: make(map[rtsp.CSeq]*pendingRequest),
		announcePending: make(map[rtsp.CSeq]*pendingRequest),
		onEos:           onEos,
		onFatal:         onFatal,
	}
	ss.base = NewBase(transport, ss)
	return ss
}

func (ss *ServerSession) logf(format string, args ...any) {
	if ss.logger != nil {
		ss.logger.Printf(format, args...)
	}
}

// HandleInbound feeds one inbound WS frame to the session. The caller
// must close the connection if it returns false.
func (ss *ServerSession) HandleInbound(frame string) bool {
	return ss.base.HandleInbound(frame)
}

// MediaSessionCount reports the number of live MediaSessions — used by
// tests.
func (ss *ServerSession) MediaSessionCount() int {
	return len(ss.mediaSessions)
}

func (ss *ServerSession) allocSessionId() rtsp.SessionId {
	return rtsp.SessionId(fmt.Sprintf("%d", atomic.AddUint64(&ss.nextSessionId, 1)))
}

// OnOptionsRequest implements Handler.
func (ss *ServerSession) OnOptionsRequest(req *rtsp.Request) bool {
	public := "DESCRIBE, SETUP, PLAY, TEARDOWN"
	if ss.recordEnabled {
		public += ", ANNOUNCE, RECORD"
	}

	res := ss.base.PrepareOkResponse(req.CSeq, "")
	res.Header.Set(rtsp.HeaderPublic, public)
	return ss.base.SendResponse(res) == nil
}

// OnDescribeRequest implements Handler: spawns a playback MediaSession.
func (ss *ServerSession) OnDescribeRequest(req *rtsp.Request) bool {
	return ss.startMediaSession(req, false)
}

// OnAnnounceRequest implements Handler: spawns a recording MediaSession,
// if recording is enabled.
func (ss *ServerSession) OnAnnounceRequest(req *rtsp.Request) bool {
	if !ss.recordEnabled {
		return ss.base.SendErrorResponse(req.CSeq, rtsp.StatusMethodNotAllowed) == nil
	}
	if req.ContentType() != rtsp.ContentTypeSDP {
		return ss.base.SendErrorResponse(req.CSeq, rtsp.StatusBadRequest) == nil
	}
	return ss.startMediaSession(req, true)
}

func (ss *ServerSession) pendingTable(recorder bool) map[rtsp.CSeq]*pendingRequest {
	if recorder {
		return ss.announcePending
	}
	return ss.describePending
}

// startMediaSession implements spec.md §4.4 steps 1–3 shared by DESCRIBE
// and ANNOUNCE: create the Peer, allocate the SessionId, record the
// PendingRequest and start Peer.Prepare.
func (ss *ServerSession) startMediaSession(req *rtsp.Request, recorder bool) bool {
	peer, err := ss.peerFactory(req.URI, recorder)
	if err != nil {
		return ss.base.SendErrorResponse(req.CSeq, rtsp.StatusInternalServerError) == nil
	}

	sessionId := ss.allocSessionId()
	ms := &MediaSession{recorder: recorder, uri: req.URI, localPeer: peer}
	ss.mediaSessions[sessionId] = ms

	table := ss.pendingTable(recorder)
	table[req.CSeq] = &pendingRequest{request: req, session: sessionId}

	cseq := req.CSeq
	err = peer.Prepare(
		context.Background(),
		ss.iceServers,
		func() { ss.loop.Post(func() { ss.onPeerPrepared(cseq, sessionId, recorder) }) },
		func(mlineIndex int, candidate string) {
			ss.loop.Post(func() { ss.onPeerICECandidate(sessionId, mlineIndex, candidate) })
		},
		func() { ss.loop.Post(func() { ss.onPeerEOS(sessionId) }) },
	)
	if err != nil {
		delete(table, req.CSeq)
		delete(ss.mediaSessions, sessionId)
		return ss.base.SendErrorResponse(req.CSeq, rtsp.StatusInternalServerError) == nil
	}

	if recorder {
		// The reference calls prepare() then setRemoteSdp() in that order
		// for ANNOUNCE (_examples/original_source/Signalling/ServerSession.cpp
		// onAnnounceRequest) — the recorder-role Peer waits for this call
		// before producing its answer.
		if err := peer.SetRemoteSDP(string(req.Body)); err != nil {
			delete(table, req.CSeq)
			delete(ss.mediaSessions, sessionId)
			return ss.base.SendErrorResponse(req.CSeq, rtsp.StatusInternalServerError) == nil
		}
	}

	return true
}

// onPeerPrepared implements spec.md §4.4 step 4. The PendingRequest
// entry is removed exactly once here, on this path or in
// startMediaSession's error branches — never both (spec.md §8 invariant).
func (ss *ServerSession) onPeerPrepared(cseq rtsp.CSeq, sessionId rtsp.SessionId, recorder bool) {
	table := ss.pendingTable(recorder)

	pending, ok := table[cseq]
	if !ok {
		// Already removed by startMediaSession's error branches or by a
		// prior prepared firing; a post-lifetime callback per spec.md §9
		// is a no-op.
		return
	}
	delete(table, cseq)

	if pending.session != sessionId {
		ss.fatalMediaSession(sessionId)
		return
	}

	ms, ok := ss.mediaSessions[sessionId]
	if !ok || ms.recorder != recorder {
		ss.fatalMediaSession(sessionId)
		return
	}

	sdp := ms.localPeer.SDP()
	if sdp == "" {
		ss.fatalMediaSession(sessionId)
		return
	}

	res := ss.base.PrepareOkResponse(pending.request.CSeq, sessionId)
	res.Header.Set(rtsp.HeaderContentType, rtsp.ContentTypeSDP)
	res.Body = []byte(sdp)
	if err := ss.base.SendResponse(res); err != nil {
		ss.fatalMediaSession(sessionId)
		return
	}

	ms.createRequest = pending.request
}

// fatalMediaSession erases sessionId's MediaSession, if any, and signals
// a hard connection close — the "disconnect" outcome of spec.md §4.4
// step 4's validation failures and the empty-SDP boundary behavior of
// spec.md §8.
func (ss *ServerSession) fatalMediaSession(sessionId rtsp.SessionId) {
	if ms, ok := ss.mediaSessions[sessionId]; ok {
		delete(ss.mediaSessions, sessionId)
		ms.localPeer.Stop()
	}
	if ss.onFatal != nil {
		ss.onFatal()
	}
}

// HandleSetupRequest implements Handler. SETUP carries either the SDP
// answer/offer counterpart or one or more trickled ICE candidate lines
// (spec.md §4.4).
func (ss *ServerSession) HandleSetupRequest(req *rtsp.Request) bool {
	sessionId := req.Session()
	ms, ok := ss.mediaSessions[sessionId]
	if !ok {
		ss.logf("server session: %v", liberrors.ErrSessionNotFound{Session: string(sessionId)})
		return false
	}

	switch req.ContentType() {
	case rtsp.ContentTypeSDP:
		if err := ms.localPeer.SetRemoteSDP(string(req.Body)); err != nil {
			return ss.base.SendErrorResponse(req.CSeq, rtsp.StatusInternalServerError) == nil
		}
		// First successful SETUP releases createRequest (spec.md §3).
		ms.createRequest = nil
		return ss.base.SendOkResponse(req.CSeq, sessionId) == nil

	case rtsp.ContentTypeICECandidate:
		candidates, ok := parseICEBody(req.Body)
		if !ok {
			return ss.base.SendErrorResponse(req.CSeq, rtsp.StatusBadRequest) == nil
		}
		for _, c := range candidates {
			if c.candidate == rtsp.EndOfCandidates {
				continue
			}
			if err := ms.localPeer.AddICECandidate(c.mlineIndex, c.candidate); err != nil {
				return ss.base.SendErrorResponse(req.CSeq, rtsp.StatusBadRequest) == nil
			}
		}
		return ss.base.SendOkResponse(req.CSeq, sessionId) == nil

	default:
		return ss.base.SendErrorResponse(req.CSeq, rtsp.StatusBadRequest) == nil
	}
}

// OnPlayRequest implements Handler. An unknown or recorder SessionId
// returns false, closing the connection rather than answering with an
// error status (spec.md:104, spec.md:192 scenario 6), matching
// OnTeardownRequest and the reference's onPlayRequest.
func (ss *ServerSession) OnPlayRequest(req *rtsp.Request) bool {
	ms, ok := ss.mediaSessions[req.Session()]
	if !ok || ms.recorder {
		ss.logf("server session: %v", liberrors.ErrSessionNotFound{Session: string(req.Session())})
		return false
	}
	ms.localPeer.Play()
	return ss.base.SendOkResponse(req.CSeq, req.Session()) == nil
}

// OnRecordRequest implements Handler. RECORD requires recording enabled
// and a recorder session; an unknown or non-recorder SessionId returns
// false for the same reason OnPlayRequest does.
func (ss *ServerSession) OnRecordRequest(req *rtsp.Request) bool {
	if !ss.recordEnabled {
		return ss.base.SendErrorResponse(req.CSeq, rtsp.StatusMethodNotAllowed) == nil
	}
	ms, ok := ss.mediaSessions[req.Session()]
	if !ok || !ms.recorder {
		ss.logf("server session: %v", liberrors.ErrSessionNotFound{Session: string(req.Session())})
		return false
	}
	ms.localPeer.Play()
	return ss.base.SendOkResponse(req.CSeq, req.Session()) == nil
}

// OnTeardownRequest implements Handler. An unknown SessionId returns
// false, closing the connection rather than answering 200 (spec.md §8
// scenario 6, TEARDOWN idempotence).
func (ss *ServerSession) OnTeardownRequest(req *rtsp.Request) bool {
	sessionId := req.Session()
	ms, ok := ss.mediaSessions[sessionId]
	if !ok {
		return false
	}
	ss.eraseMediaSession(sessionId, ms)
	return ss.base.SendOkResponse(req.CSeq, sessionId) == nil
}

func (ss *ServerSession) eraseMediaSession(sessionId rtsp.SessionId, ms *MediaSession) {
	delete(ss.mediaSessions, sessionId)
	ms.localPeer.Stop()
}

// RequestTeardown issues a TEARDOWN toward the remote side for sessionId,
// the translation of the eosCb of spec.md §4.4 ("the embedding session
// translates it into a TEARDOWN toward the peer side") for a ServerSession
// that is not itself wrapped by a proxy FrontSession/BackSession — i.e.
// the standalone source harness driving this ServerSession directly.
func (ss *ServerSession) RequestTeardown(uri string, sessionId rtsp.SessionId) error {
	return ss.base.RequestTeardown(uri, sessionId)
}

// OnSetupResponse implements Handler: these are acks for the ICE-trickle
// SETUP requests this ServerSession itself issued toward the remote
// (spec.md §4.4 "ICE emission toward the remote").
func (ss *ServerSession) OnSetupResponse(_ *rtsp.Request, res *rtsp.Response) bool {
	return res.StatusCode == rtsp.StatusOK
}

func (ss *ServerSession) onPeerICECandidate(sessionId rtsp.SessionId, mlineIndex int, candidate string) {
	ms, ok := ss.mediaSessions[sessionId]
	if !ok {
		return
	}
	body := fmt.Sprintf("%d/%s\r\n", mlineIndex, candidate)
	if err := ss.base.RequestSetup(ms.uri, rtsp.ContentTypeICECandidate, sessionId, []byte(body)); err != nil {
		ss.eraseMediaSession(sessionId, ms)
	}
}

// onPeerEOS implements the eosCb of spec.md §4.4: erase the MediaSession
// and surface it to the embedding code via onEos, which the standalone
// source harness translates into a TEARDOWN toward the peer side.
func (ss *ServerSession) onPeerEOS(sessionId rtsp.SessionId) {
	ms, ok := ss.mediaSessions[sessionId]
	if !ok {
		return
	}
	uri := ms.uri
	delete(ss.mediaSessions, sessionId)
	ms.localPeer.Stop()
	if ss.onEos != nil {
		ss.onEos(sessionId, uri)
	}
}
