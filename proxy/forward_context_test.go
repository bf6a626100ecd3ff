package proxy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WebRTSP/Native/pkg/rtsp"
	"github.com/WebRTSP/Native/session"
)

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

func (t *fakeTransport) lastRequest() *rtsp.Request {
	return t.requests[len(t.requests)-1]
}

func (t *fakeTransport) lastResponse() *rtsp.Response {
	return t.responses[len(t.responses)-1]
}

func newFrontBack(t *testing.T, ctx *ForwardContext, backName string) (*FrontSession, *fakeTransport, *BackSession, *fakeTransport) {
	t.Helper()

	frontTr := &fakeTransport{}
	front := NewFrontSession(frontTr, ctx, func() {})

	backTr := &fakeTransport{}
	back, err := NewBackSession(backTr, backName, ctx, func() {})
	require.NoError(t, err)

	return front, frontTr, back, backTr
}

func TestForwardContextUnknownBackReturns404(t *testing.T) {
	ctx := NewForwardContext(nil)
	front, frontTr, _, _ := newFrontBack(t, ctx, "source1")

	h := rtsp.NewHeader()
	req := &rtsp.Request{Method: rtsp.DESCRIBE, URI: "ghost/x", CSeq: 2, Header: h}
	ok := front.OnDescribeRequest(req)

	assert.False(t, ok)
	require.Len(t, frontTr.responses, 1)
	assert.Equal(t, rtsp.StatusNotFound, frontTr.responses[0].StatusCode)
	assert.Nil(t, front.back)
}

func TestForwardContextHappyPlaybackFlow(t *testing.T) {
	ctx := NewForwardContext(nil)
	front, frontTr, back, backTr := newFrontBack(t, ctx, "source1")

	describeReq := &rtsp.Request{Method: rtsp.DESCRIBE, URI: "source1/bars", CSeq: 2, Header: rtsp.NewHeader()}
	ok := front.OnDescribeRequest(describeReq)
	require.True(t, ok)
	require.Same(t, back, front.back)

	require.Len(t, backTr.requests, 1)
	forwarded := backTr.lastRequest()
	assert.Equal(t, "bars", forwarded.URI)
	assert.NotEqual(t, rtsp.CSeq(2), forwarded.CSeq, "back side must get its own CSeq")

	sdpHeader := rtsp.NewHeader()
	sdpHeader.Set(rtsp.HeaderSession, "1")
	sdpHeader.Set(rtsp.HeaderContentType, rtsp.ContentTypeSDP)
	backRes := &rtsp.Response{StatusCode: rtsp.StatusOK, CSeq: forwarded.CSeq, Header: sdpHeader, Body: []byte("v=0\r\n")}

	ok = back.OnDescribeResponse(forwarded, backRes)
	require.True(t, ok)

	require.Len(t, frontTr.responses, 1)
	fr := frontTr.lastResponse()
	assert.Equal(t, rtsp.CSeq(2), fr.CSeq)
	assert.Equal(t, rtsp.SessionId("1"), fr.Session())
	assert.Equal(t, "v=0\r\n", string(fr.Body))
}

func TestForwardContextICETrickleBackToFront(t *testing.T) {
	ctx := NewForwardContext(nil)
	front, frontTr, back, backTr := newFrontBack(t, ctx, "source1")

	describeReq := &rtsp.Request{Method: rtsp.DESCRIBE, URI: "source1/bars", CSeq: 2, Header: rtsp.NewHeader()}
	front.OnDescribeRequest(describeReq)
	forwarded := backTr.lastRequest()

	sdpHeader := rtsp.NewHeader()
	sdpHeader.Set(rtsp.HeaderSession, "1")
	sdpHeader.Set(rtsp.HeaderContentType, rtsp.ContentTypeSDP)
	back.OnDescribeResponse(forwarded, &rtsp.Response{StatusCode: rtsp.StatusOK, CSeq: forwarded.CSeq, Header: sdpHeader, Body: []byte("v=0\r\n")})

	// back-source trickles an ICE candidate for session "1".
	iceHeader := rtsp.NewHeader()
	iceHeader.Set(rtsp.HeaderSession, "1")
	iceHeader.Set(rtsp.HeaderContentType, rtsp.ContentTypeICECandidate)
	iceReq := &rtsp.Request{Method: rtsp.SETUP, URI: "bars", CSeq: 9, Header: iceHeader, Body: []byte("0/candidate:1 1 UDP 1 1.2.3.4 9 typ host\r\n")}

	ok := back.HandleSetupRequest(iceReq)
	require.True(t, ok)

	require.Len(t, frontTr.requests, 1)
	fwd := frontTr.lastRequest()
	assert.Equal(t, "source1/bars", fwd.URI)
	assert.Equal(t, rtsp.ContentTypeICECandidate, fwd.ContentType())

	// front acks it; the ack must flow back to the back source under
	// its original CSeq.
	ackRes := &rtsp.Response{StatusCode: rtsp.StatusOK, CSeq: fwd.CSeq, Header: rtsp.NewHeader()}
	ok = front.OnSetupResponse(fwd, ackRes)
	require.True(t, ok)

	require.Len(t, backTr.responses, 1)
	assert.Equal(t, rtsp.CSeq(9), backTr.lastResponse().CSeq)
}

func TestForwardContextBackInitiatedTeardownReachesOwningFront(t *testing.T) {
	ctx := NewForwardContext(nil)
	front, frontTr, back, backTr := newFrontBack(t, ctx, "source1")

	describeReq := &rtsp.Request{Method: rtsp.DESCRIBE, URI: "source1/bars", CSeq: 2, Header: rtsp.NewHeader()}
	front.OnDescribeRequest(describeReq)
	forwarded := backTr.lastRequest()

	sdpHeader := rtsp.NewHeader()
	sdpHeader.Set(rtsp.HeaderSession, "1")
	sdpHeader.Set(rtsp.HeaderContentType, rtsp.ContentTypeSDP)
	back.OnDescribeResponse(forwarded, &rtsp.Response{StatusCode: rtsp.StatusOK, CSeq: forwarded.CSeq, Header: sdpHeader, Body: []byte("v=0\r\n")})

	// the back source's own Peer hits EOS and issues TEARDOWN toward the
	// proxy for session "1" — this must reach the owning front, not tear
	// down the back's own connection.
	teardownHeader := rtsp.NewHeader()
	teardownHeader.Set(rtsp.HeaderSession, "1")
	teardownReq := &rtsp.Request{Method: rtsp.TEARDOWN, CSeq: 9, Header: teardownHeader}

	ok := back.OnTeardownRequest(teardownReq)
	require.True(t, ok)

	require.Len(t, frontTr.requests, 1)
	assert.Equal(t, rtsp.TEARDOWN, frontTr.lastRequest().Method)
}

func TestForwardContextBackDropCascadesToFronts(t *testing.T) {
	ctx := NewForwardContext(nil)
	front, _, back, backTr := newFrontBack(t, ctx, "source1")

	disconnected := false
	front.onDisconnect = func() { disconnected = true }

	describeReq := &rtsp.Request{Method: rtsp.DESCRIBE, URI: "source1/bars", CSeq: 2, Header: rtsp.NewHeader()}
	front.OnDescribeRequest(describeReq)
	require.Len(t, backTr.requests, 1)

	back.Close()

	assert.True(t, disconnected)
	assert.Nil(t, front.back)

	// source1 is no longer routable.
	front2, front2Tr, _ := func() (*FrontSession, *fakeTransport, bool) {
		tr := &fakeTransport{}
		f := NewFrontSession(tr, ctx, func() {})
		return f, tr, true
	}()
	ok := front2.OnDescribeRequest(&rtsp.Request{Method: rtsp.DESCRIBE, URI: "source1/bars", CSeq: 3, Header: rtsp.NewHeader()})
	assert.False(t, ok)
	require.Len(t, front2Tr.responses, 1)
	assert.Equal(t, rtsp.StatusNotFound, front2Tr.responses[0].StatusCode)
}

func TestForwardContextDuplicateBackNameRejected(t *testing.T) {
	ctx := NewForwardContext(nil)
	backTr1 := &fakeTransport{}
	_, err := NewBackSession(backTr1, "source1", ctx, func() {})
	require.NoError(t, err)

	backTr2 := &fakeTransport{}
	_, err = NewBackSession(backTr2, "source1", ctx, func() {})
	assert.Error(t, err)
}

func TestForwardContextRemoveFrontSessionUnbinds(t *testing.T) {
	ctx := NewForwardContext(nil)
	front, _, _, backTr := newFrontBack(t, ctx, "source1")

	front.OnDescribeRequest(&rtsp.Request{Method: rtsp.DESCRIBE, URI: "source1/bars", CSeq: 2, Header: rtsp.NewHeader()})
	require.Len(t, backTr.requests, 1)
	require.NotNil(t, front.back)

	front.Close()
	assert.Nil(t, front.back)
}

var _ session.Transport = (*fakeTransport)(nil)
