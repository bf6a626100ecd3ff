package session

import (
	"context"
	"fmt"
	"log"

	"github.com/WebRTSP/Native/pkg/liberrors"
	"github.com/WebRTSP/Native/pkg/rtsp"
	"github.com/WebRTSP/Native/pkg/webrtcpeer"
)

// ClientState is one point in the ClientSession state machine of
// spec.md §4.3.
type ClientState int

// Client states, in the order the reference's ClientSession.h enum lists
// them.
const (
	ClientIdle ClientState = iota
	ClientOptionsSent
	ClientDescribed
	ClientSdpAnswered
	ClientPlaying
	ClientTornDown
)

// ClientSession drives a front-session-shaped or back-session-shaped
// client role: it issues OPTIONS/DESCRIBE/SETUP/PLAY and drives a
// webrtcpeer.Peer through the answer side of the offer/answer exchange.
// Grounded on _examples/original_source/Client/ClientSession.cpp and
// Client/Native/ClientSession.h.
type ClientSession struct {
	DefaultHandler

	base *Base
	loop *Loop

	uri         string
	iceServers  []string
	peerFactory webrtcpeer.ClientPeerFactory
	logger      *log.Logger

	onDisconnect func()

	state     ClientState
	sessionId rtsp.SessionId
	peer      webrtcpeer.Peer
}

// NewClientSession wires a ClientSession to its transport, target URI and
// peer factory. loop serializes Peer callbacks (which fire on pion's own
// goroutines) against WS-driven dispatch, per spec.md §5. onDisconnect is
// called at most once, when the session reaches ClientTornDown.
func NewClientSession(
	transport Transport,
	uri string,
	iceServers []string,
	peerFactory webrtcpeer.ClientPeerFactory,
	loop *Loop,
	logger *log.Logger,
	onDisconnect func(),
) *ClientSession {
	cs := &ClientSession{
		uri:          uri,
		iceServers:   iceServers,
		peerFactory:  peerFactory,
		loop:         loop,
		logger:       logger,
		onDisconnect: onDisconnect,
		state:        ClientIdle,
	}
	cs.base = NewBase(transport, cs)
	return cs
}

// State reports the current ClientState.
func (cs *ClientSession) State() ClientState {
	return cs.state
}

func (cs *ClientSession) logf(format string, args ...any) {
	if cs.logger != nil {
		cs.logger.Printf(format, args...)
	}
}

// HandleInbound feeds one inbound WS frame to the session. The caller
// must close the connection if it returns false.
func (cs *ClientSession) HandleInbound(frame string) bool {
	return cs.base.HandleInbound(frame)
}

// OnConnected starts the session by requesting OPTIONS on "*", matching
// the reference's onConnected handler.
func (cs *ClientSession) OnConnected() bool {
	if cs.state != ClientIdle {
		return false
	}
	if err := cs.base.RequestOptions("*"); err != nil {
		cs.logf("client session: request OPTIONS: %v", err)
		return false
	}
	cs.state = ClientOptionsSent
	return true
}

// OnOptionsResponse implements Handler.
func (cs *ClientSession) OnOptionsResponse(_ *rtsp.Request, res *rtsp.Response) bool {
	if cs.state != ClientOptionsSent {
		return false
	}
	if res.StatusCode != rtsp.StatusOK {
		cs.logf("client session: %v", liberrors.ErrProtocol{Reason: fmt.Sprintf("OPTIONS answered with status %d", res.StatusCode)})
		return false
	}
	if err := cs.base.RequestDescribe(cs.uri); err != nil {
		cs.logf("client session: request DESCRIBE: %v", err)
		return false
	}
	return true
}

// OnDescribeResponse implements Handler. It adopts the session id, hands
// the offered remote SDP to a freshly-created Peer and starts it.
func (cs *ClientSession) OnDescribeResponse(_ *rtsp.Request, res *rtsp.Response) bool {
	if res.StatusCode != rtsp.StatusOK {
		cs.logf("client session: %v", liberrors.ErrProtocol{Reason: fmt.Sprintf("DESCRIBE answered with status %d", res.StatusCode)})
		return false
	}

	sessionId := res.Session()
	if sessionId == "" {
		cs.logf("client session: %v", liberrors.ErrProtocol{Reason: "DESCRIBE response missing Session header"})
		return false
	}
	cs.sessionId = sessionId

	remoteSdp := string(res.Body)
	if remoteSdp == "" {
		cs.logf("client session: %v", liberrors.ErrProtocol{Reason: "DESCRIBE response has empty SDP body"})
		return false
	}

	peer, err := cs.peerFactory(cs.uri)
	if err != nil {
		cs.logf("client session: %v", liberrors.ErrResourceUnavailable{Reason: err.Error()})
		return false
	}
	cs.peer = peer

	if err := peer.Prepare(
		context.Background(),
		cs.iceServers,
		func() { cs.loop.Post(cs.onPeerPrepared) },
		func(mlineIndex int, candidate string) {
			cs.loop.Post(func() { cs.onPeerICECandidate(mlineIndex, candidate) })
		},
		func() { cs.loop.Post(cs.onPeerEOS) },
	); err != nil {
		cs.logf("client session: peer prepare: %v", err)
		return false
	}

	if err := peer.SetRemoteSDP(remoteSdp); err != nil {
		cs.logf("client session: peer set remote SDP: %v", err)
		return false
	}

	cs.state = ClientDescribed
	return true
}

func (cs *ClientSession) onPeerPrepared() {
	if cs.state != ClientDescribed && cs.state != ClientSdpAnswered {
		return
	}

	local := cs.peer.SDP()
	if local == "" {
		cs.logf("client session: %v", liberrors.ErrResourceUnavailable{Reason: "peer produced empty local SDP"})
		cs.disconnect()
		return
	}

	if err := cs.base.RequestSetup(cs.uri, rtsp.ContentTypeSDP, cs.sessionId, []byte(local)); err != nil {
		cs.logf("client session: request SETUP: %v", err)
		cs.disconnect()
	}
}

func (cs *ClientSession) onPeerICECandidate(mlineIndex int, candidate string) {
	if cs.sessionId == "" {
		return
	}
	body := fmt.Sprintf("%d/%s\r\n", mlineIndex, candidate)
	if err := cs.base.RequestSetup(cs.uri, rtsp.ContentTypeICECandidate, cs.sessionId, []byte(body)); err != nil {
		cs.logf("client session: request trickled SETUP: %v", err)
		cs.disconnect()
	}
}

func (cs *ClientSession) onPeerEOS() {
	cs.disconnect()
}

// OnSetupResponse implements Handler. Only the SDP-bearing SETUP (the
// answer) advances the state machine; SETUP responses to trickled ICE
// lines are otherwise just acknowledged.
func (cs *ClientSession) OnSetupResponse(req *rtsp.Request, res *rtsp.Response) bool {
	if res.StatusCode != rtsp.StatusOK {
		return false
	}
	if res.Session() != cs.sessionId {
		return false
	}

	if req.ContentType() == rtsp.ContentTypeSDP {
		cs.state = ClientSdpAnswered
		if err := cs.base.RequestPlay(cs.uri, cs.sessionId); err != nil {
			return false
		}
	}
	return true
}

// OnPlayResponse implements Handler.
func (cs *ClientSession) OnPlayResponse(_ *rtsp.Request, res *rtsp.Response) bool {
	if res.StatusCode != rtsp.StatusOK {
		return false
	}
	if res.Session() != cs.sessionId {
		return false
	}

	cs.peer.Play()
	cs.state = ClientPlaying
	return true
}

// OnTeardownResponse implements Handler. TEARDOWN is terminal in either
// direction (spec.md §9 Open Question (a)): the session is torn down
// regardless of the response's status.
func (cs *ClientSession) OnTeardownResponse(_ *rtsp.Request, res *rtsp.Response) bool {
	if res.Session() != cs.sessionId {
		return false
	}
	cs.disconnect()
	return false
}

// HandleSetupRequest implements Handler: inbound SETUP carries exactly
// one trickled ICE candidate line from the peer side.
func (cs *ClientSession) HandleSetupRequest(req *rtsp.Request) bool {
	if cs.peer == nil || req.Session() != cs.sessionId {
		return false
	}
	if req.ContentType() != rtsp.ContentTypeICECandidate {
		return false
	}

	candidates, ok := parseICEBody(req.Body)
	if !ok || len(candidates) != 1 {
		return false
	}

	c := candidates[0]
	if c.candidate != rtsp.EndOfCandidates {
		if err := cs.peer.AddICECandidate(c.mlineIndex, c.candidate); err != nil {
			cs.logf("client session: add trickled ICE candidate: %v", err)
			return false
		}
	}

	return cs.base.SendOkResponse(req.CSeq, cs.sessionId) == nil
}

// RequestTeardown initiates a client-driven teardown.
func (cs *ClientSession) RequestTeardown() error {
	if cs.state == ClientIdle || cs.state == ClientTornDown {
		return nil
	}
	return cs.base.RequestTeardown(cs.uri, cs.sessionId)
}

func (cs *ClientSession) disconnect() {
	if cs.state == ClientTornDown {
		return
	}
	cs.state = ClientTornDown
	if cs.peer != nil {
		cs.peer.Stop()
	}
	if cs.onDisconnect != nil {
		cs.onDisconnect()
	}
}
