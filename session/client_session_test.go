package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WebRTSP/Native/pkg/rtsp"
	"github.com/WebRTSP/Native/pkg/webrtcpeer"
)

// fakeTransport records every request/response sent through it, for
// assertions, and lets the test feed back synthetic responses.
type fakeTransport struct {
	requests  []*rtsp.Request
	responses []*rtsp.Response
}

func (t *fakeTransport) SendRequest(req *rtsp.Request) error {
	t.requests = append(t.requests, req)
	return nil
}

func (t *fakeTransport) SendResponse(res *rtsp.Response) error {
	t.responses = append(t.responses, res)
	return nil
}

func (t *fakeTransport) last() *rtsp.Request {
	if len(t.requests) == 0 {
		return nil
	}
	return t.requests[len(t.requests)-1]
}

// fakePeer is a scriptable webrtcpeer.Peer double.
type fakePeer struct {
	sdp              string
	remoteSdp        string
	addedCandidates  []string
	stopped          bool
	onPrepared       webrtcpeer.PreparedFunc
	onICECandidate   webrtcpeer.ICECandidateFunc
	onEOS            webrtcpeer.EOSFunc
}

func (p *fakePeer) Prepare(_ context.Context, _ []string, onPrepared webrtcpeer.PreparedFunc, onICECandidate webrtcpeer.ICECandidateFunc, onEOS webrtcpeer.EOSFunc) error {
	p.onPrepared = onPrepared
	p.onICECandidate = onICECandidate
	p.onEOS = onEOS
	return nil
}

func (p *fakePeer) SDP() string { return p.sdp }

func (p *fakePeer) SetRemoteSDP(sdp string) error {
	p.remoteSdp = sdp
	p.sdp = "v=0\r\no=- 0 0 IN IP4 127.0.0.1\r\ns=-\r\nt=0 0\r\n"
	p.onPrepared()
	return nil
}

func (p *fakePeer) AddICECandidate(_ int, candidate string) error {
	p.addedCandidates = append(p.addedCandidates, candidate)
	return nil
}

func (p *fakePeer) Play() {}

func (p *fakePeer) Stop() { p.stopped = true }

func newTestClientSession(t *testing.T) (*ClientSession, *fakeTransport, *fakePeer) {
	t.Helper()

	tr := &fakeTransport{}
	peer := &fakePeer{}
	loop := NewLoop()
	t.Cleanup(loop.Close)

	disconnected := false
	cs := NewClientSession(tr, "rtsp://proxy/back1", nil,
		func(string) (webrtcpeer.Peer, error) { return peer, nil },
		loop, nil, func() { disconnected = true })
	_ = disconnected

	return cs, tr, peer
}

// onLoop runs fn on l, the way WS-driven dispatch runs in production, then
// waits for every action fn posted to l (such as Peer callbacks) to run.
func onLoop(l *Loop, fn func() bool) bool {
	result := make(chan bool, 1)
	l.Post(func() { result <- fn() })
	ok := <-result
	drain(l)
	return ok
}

// drain waits until every action posted to l so far has run.
func drain(l *Loop) {
	done := make(chan struct{})
	l.Post(func() { close(done) })
	<-done
}

func TestClientSessionHappyPath(t *testing.T) {
	cs, tr, peer := newTestClientSession(t)

	require.True(t, cs.OnConnected())
	require.Equal(t, ClientOptionsSent, cs.State())
	require.Len(t, tr.requests, 1)
	assert.Equal(t, rtsp.OPTIONS, tr.last().Method)

	require.True(t, cs.OnOptionsResponse(tr.last(), &rtsp.Response{StatusCode: rtsp.StatusOK, CSeq: tr.last().CSeq}))
	require.Len(t, tr.requests, 2)
	assert.Equal(t, rtsp.DESCRIBE, tr.last().Method)

	describeReq := tr.last()
	describeRes := &rtsp.Response{StatusCode: rtsp.StatusOK, CSeq: describeReq.CSeq, Header: rtsp.NewHeader(), Body: []byte("v=0\r\n")}
	describeRes.Header.Set(rtsp.HeaderSession, "sess-1")

	require.True(t, onLoop(cs.loop, func() bool { return cs.OnDescribeResponse(describeReq, describeRes) }))
	require.Equal(t, ClientDescribed, cs.State())
	require.Equal(t, rtsp.SessionId("sess-1"), cs.sessionId)

	// SetRemoteSDP fired the Peer's prepared callback, which posted
	// onPeerPrepared to the loop; onLoop waited for it, and it must have
	// issued a SETUP carrying the local SDP answer.
	require.Len(t, tr.requests, 3)
	setupReq := tr.last()
	assert.Equal(t, rtsp.SETUP, setupReq.Method)
	assert.Equal(t, rtsp.ContentTypeSDP, setupReq.ContentType())
	assert.Equal(t, peer.sdp, string(setupReq.Body))

	setupRes := &rtsp.Response{StatusCode: rtsp.StatusOK, CSeq: setupReq.CSeq, Header: rtsp.NewHeader()}
	setupRes.Header.Set(rtsp.HeaderSession, "sess-1")
	require.True(t, cs.OnSetupResponse(setupReq, setupRes))
	require.Equal(t, ClientSdpAnswered, cs.State())
	require.Len(t, tr.requests, 4)
	assert.Equal(t, rtsp.PLAY, tr.last().Method)

	playReq := tr.last()
	playRes := &rtsp.Response{StatusCode: rtsp.StatusOK, CSeq: playReq.CSeq, Header: rtsp.NewHeader()}
	playRes.Header.Set(rtsp.HeaderSession, "sess-1")
	require.True(t, cs.OnPlayResponse(playReq, playRes))
	assert.Equal(t, ClientPlaying, cs.State())
}

func TestClientSessionOptionsNotOkDisconnects(t *testing.T) {
	cs, tr, _ := newTestClientSession(t)

	require.True(t, cs.OnConnected())
	ok := cs.OnOptionsResponse(tr.last(), &rtsp.Response{StatusCode: rtsp.StatusInternalServerError, CSeq: tr.last().CSeq})
	assert.False(t, ok)
}

func TestClientSessionTrickledICEFromPeer(t *testing.T) {
	cs, tr, peer := newTestClientSession(t)
	cs.sessionId = "sess-1"
	cs.peer = peer

	// The peer was assigned directly, so no Prepare callbacks are
	// registered; call the handler the ICE callback posts to the loop.
	cs.onPeerICECandidate(1, "candidate:1 1 UDP 1 1.2.3.4 9 typ host")
	require.Len(t, tr.requests, 1)
	assert.Equal(t, rtsp.SETUP, tr.requests[0].Method)
	assert.Equal(t, rtsp.ContentTypeICECandidate, tr.requests[0].ContentType())
	assert.Equal(t, "1/candidate:1 1 UDP 1 1.2.3.4 9 typ host\r\n", string(tr.requests[0].Body))
}

func TestClientSessionInboundSetupAppliesTrickledCandidate(t *testing.T) {
	cs, tr, peer := newTestClientSession(t)
	cs.sessionId = "sess-1"
	cs.peer = peer

	h := rtsp.NewHeader()
	h.Set(rtsp.HeaderSession, "sess-1")
	h.Set(rtsp.HeaderContentType, rtsp.ContentTypeICECandidate)
	req := &rtsp.Request{Method: rtsp.SETUP, URI: "rtsp://proxy/back1", CSeq: 7, Header: h, Body: []byte("0/candidate:1 1 UDP 1 1.2.3.4 9 typ host\r\n")}

	ok := cs.HandleSetupRequest(req)
	require.True(t, ok)
	require.Len(t, peer.addedCandidates, 1)
	require.Len(t, tr.responses, 1)
	assert.Equal(t, rtsp.StatusOK, tr.responses[0].StatusCode)
}

func TestClientSessionInboundSetupEndOfCandidatesIsNoop(t *testing.T) {
	cs, tr, peer := newTestClientSession(t)
	cs.sessionId = "sess-1"
	cs.peer = peer

	h := rtsp.NewHeader()
	h.Set(rtsp.HeaderSession, "sess-1")
	h.Set(rtsp.HeaderContentType, rtsp.ContentTypeICECandidate)
	req := &rtsp.Request{Method: rtsp.SETUP, CSeq: 8, Header: h, Body: []byte("0/" + rtsp.EndOfCandidates + "\r\n")}

	ok := cs.HandleSetupRequest(req)
	require.True(t, ok)
	assert.Empty(t, peer.addedCandidates)
	require.Len(t, tr.responses, 1)
}

func TestClientSessionInboundSetupWrongSessionRejected(t *testing.T) {
	cs, _, peer := newTestClientSession(t)
	cs.sessionId = "sess-1"
	cs.peer = peer

	h := rtsp.NewHeader()
	h.Set(rtsp.HeaderSession, "other-session")
	h.Set(rtsp.HeaderContentType, rtsp.ContentTypeICECandidate)
	req := &rtsp.Request{Method: rtsp.SETUP, CSeq: 9, Header: h, Body: []byte("0/x\r\n")}

	assert.False(t, cs.HandleSetupRequest(req))
}

func TestClientSessionTeardownIsTerminal(t *testing.T) {
	cs, tr, peer := newTestClientSession(t)
	cs.sessionId = "sess-1"
	cs.peer = peer
	cs.state = ClientPlaying

	require.NoError(t, cs.RequestTeardown())
	teardownReq := tr.last()

	res := &rtsp.Response{StatusCode: rtsp.StatusOK, CSeq: teardownReq.CSeq, Header: rtsp.NewHeader()}
	res.Header.Set(rtsp.HeaderSession, "sess-1")

	ok := cs.OnTeardownResponse(teardownReq, res)
	assert.False(t, ok)
	assert.Equal(t, ClientTornDown, cs.State())
	assert.True(t, peer.stopped)
}
