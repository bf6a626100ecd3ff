package rtsp

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReadRequestOptions(t *testing.T) {
	req, err := ReadRequest("OPTIONS * RTSP/1.0\r\nCSeq: 1\r\n\r\n")
	require.NoError(t, err)
	require.Equal(t, OPTIONS, req.Method)
	require.Equal(t, "*", req.URI)
	require.Equal(t, CSeq(1), req.CSeq)
}

func TestReadRequestWithBody(t *testing.T) {
	frame := "SETUP rtsp://proxy/source1/bars RTSP/1.0\r\n" +
		"CSeq: 7\r\n" +
		"Session: 1\r\n" +
		"Content-Type: application/x-ice-candidate\r\n" +
		"Content-Length: 55\r\n" +
		"\r\n" +
		"0/candidate:1 1 UDP 2130706431 10.0.0.1 5000 typ host\r\n"

	req, err := ReadRequest(frame)
	require.NoError(t, err)
	require.Equal(t, SETUP, req.Method)
	require.Equal(t, SessionId("1"), req.Session())
	require.Equal(t, ContentTypeICECandidate, req.ContentType())
	require.Equal(t, "0/candidate:1 1 UDP 2130706431 10.0.0.1 5000 typ host\r\n", string(req.Body))
}

func TestRequestRoundTrip(t *testing.T) {
	req := &Request{
		Method: DESCRIBE,
		URI:    "rtsp://proxy/source1/bars",
		CSeq:   2,
		Header: NewHeader(),
	}

	frame, err := req.Write()
	require.NoError(t, err)

	parsed, err := ReadRequest(frame)
	require.NoError(t, err)
	require.Equal(t, req.Method, parsed.Method)
	require.Equal(t, req.URI, parsed.URI)
	require.Equal(t, req.CSeq, parsed.CSeq)
}

func TestReadRequestMissingCSeq(t *testing.T) {
	_, err := ReadRequest("OPTIONS * RTSP/1.0\r\n\r\n")
	require.Error(t, err)
}

func TestReadRequestUnknownMethodStillParses(t *testing.T) {
	// Unknown methods parse fine; the caller decides whether to respond 501.
	req, err := ReadRequest("FROB * RTSP/1.0\r\nCSeq: 1\r\n\r\n")
	require.NoError(t, err)
	require.Equal(t, Method("FROB"), req.Method)
}

func TestResponseRoundTrip(t *testing.T) {
	res := &Response{
		StatusCode: StatusOK,
		CSeq:       1,
		Header:     NewHeader(),
	}
	res.Header.Set(HeaderPublic, "DESCRIBE, SETUP, PLAY, TEARDOWN")

	frame, err := res.Write()
	require.NoError(t, err)
	require.Contains(t, frame, "RTSP/1.0 200 OK\r\n")

	parsed, err := ReadResponse(frame)
	require.NoError(t, err)
	require.Equal(t, StatusOK, parsed.StatusCode)
	require.Equal(t, CSeq(1), parsed.CSeq)
	require.Equal(t, "DESCRIBE, SETUP, PLAY, TEARDOWN", parsed.Header.Get(HeaderPublic))
}

func TestResponseWithSDPBody(t *testing.T) {
	res := &Response{
		StatusCode: StatusOK,
		CSeq:       2,
		Header:     NewHeader(),
		Body:       []byte("v=0\r\no=- 0 0 IN IP4 127.0.0.1\r\ns=-\r\nt=0 0\r\n"),
	}
	res.Header.Set(HeaderSession, "1")
	res.Header.Set(HeaderContentType, ContentTypeSDP)

	frame, err := res.Write()
	require.NoError(t, err)

	parsed, err := ReadResponse(frame)
	require.NoError(t, err)
	require.Equal(t, res.Body, parsed.Body)
	require.Equal(t, SessionId("1"), parsed.Session())
}

func TestReadResponseBodyLengthMismatch(t *testing.T) {
	frame := "RTSP/1.0 200 OK\r\nCSeq: 1\r\nContent-Length: 100\r\n\r\nshort"
	_, err := ReadResponse(frame)
	require.Error(t, err)
}
