package rtsp

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"
)

const (
	requestMaxMethodLength   = 64
	requestMaxURILength      = 2048
	requestMaxProtocolLength = 32
)

// ReadRequest parses a single RTSP request from a text frame.
func ReadRequest(frame string) (*Request, error) {
	rb := bufio.NewReader(strings.NewReader(frame))

	methodBytes, err := readBytesLimited(rb, ' ', requestMaxMethodLength)
	if err != nil {
		return nil, fmt.Errorf("rtsp: malformed start line: %w", err)
	}
	method := Method(methodBytes[:len(methodBytes)-1])
	if method == "" {
		return nil, fmt.Errorf("rtsp: empty method")
	}

	uriBytes, err := readBytesLimited(rb, ' ', requestMaxURILength)
	if err != nil {
		return nil, fmt.Errorf("rtsp: malformed start line: %w", err)
	}
	uri := string(uriBytes[:len(uriBytes)-1])
	if uri == "" {
		return nil, fmt.Errorf("rtsp: empty request-URI")
	}

	protoBytes, err := readBytesLimited(rb, '\r', requestMaxProtocolLength)
	if err != nil {
		return nil, fmt.Errorf("rtsp: malformed start line: %w", err)
	}
	proto := string(protoBytes[:len(protoBytes)-1])
	if proto != protocolVersion {
		return nil, fmt.Errorf("rtsp: unsupported protocol version %q", proto)
	}
	if err := readByteEqual(rb, '\n'); err != nil {
		return nil, err
	}

	header, err := headerRead(rb)
	if err != nil {
		return nil, fmt.Errorf("rtsp: malformed header: %w", err)
	}

	cseqStr := header.Get(HeaderCSeq)
	if cseqStr == "" {
		return nil, fmt.Errorf("rtsp: missing CSeq")
	}
	cseq, err := strconv.ParseUint(cseqStr, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("rtsp: invalid CSeq %q", cseqStr)
	}

	body, err := contentRead(rb, header)
	if err != nil {
		return nil, err
	}

	return &Request{
		Method: method,
		URI:    uri,
		CSeq:   CSeq(cseq),
		Header: header,
		Body:   body,
	}, nil
}

// Write serializes req as a text frame.
func (req *Request) Write() (string, error) {
	var sb strings.Builder
	bw := bufio.NewWriter(&sb)

	if _, err := bw.WriteString(string(req.Method) + " " + req.URI + " " + protocolVersion + "\r\n"); err != nil {
		return "", err
	}

	header := req.Header.Clone()
	header.Set(HeaderCSeq, cseqString(req.CSeq))
	if len(req.Body) > 0 {
		header.Set(HeaderContentLength, strconv.Itoa(len(req.Body)))
	}

	if err := header.write(bw); err != nil {
		return "", err
	}
	if err := contentWrite(bw, req.Body); err != nil {
		return "", err
	}
	if err := bw.Flush(); err != nil {
		return "", err
	}

	return sb.String(), nil
}
