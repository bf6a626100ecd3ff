package rtsp

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"
)

const responseMaxStatusLineLength = 255

// ReadResponse parses a single RTSP response from a text frame.
func ReadResponse(frame string) (*Response, error) {
	rb := bufio.NewReader(strings.NewReader(frame))

	protoBytes, err := readBytesLimited(rb, ' ', responseMaxStatusLineLength)
	if err != nil {
		return nil, fmt.Errorf("rtsp: malformed status line: %w", err)
	}
	proto := string(protoBytes[:len(protoBytes)-1])
	if proto != protocolVersion {
		return nil, fmt.Errorf("rtsp: unsupported protocol version %q", proto)
	}

	codeBytes, err := readBytesLimited(rb, ' ', responseMaxStatusLineLength)
	if err != nil {
		return nil, fmt.Errorf("rtsp: malformed status line: %w", err)
	}
	code, err := strconv.Atoi(string(codeBytes[:len(codeBytes)-1]))
	if err != nil {
		return nil, fmt.Errorf("rtsp: invalid status code: %w", err)
	}

	reasonBytes, err := readBytesLimited(rb, '\r', responseMaxStatusLineLength)
	if err != nil {
		return nil, fmt.Errorf("rtsp: malformed status line: %w", err)
	}
	reason := string(reasonBytes[:len(reasonBytes)-1])
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

	return &Response{
		StatusCode:   StatusCode(code),
		ReasonPhrase: reason,
		CSeq:         CSeq(cseq),
		Header:       header,
		Body:         body,
	}, nil
}

// Write serializes res as a text frame.
func (res *Response) Write() (string, error) {
	var sb strings.Builder
	bw := bufio.NewWriter(&sb)

	reason := res.ReasonPhrase
	if reason == "" {
		reason = StatusMessages[res.StatusCode]
	}

	if _, err := bw.WriteString(fmt.Sprintf("%s %d %s\r\n", protocolVersion, res.StatusCode, reason)); err != nil {
		return "", err
	}

	header := res.Header.Clone()
	header.Set(HeaderCSeq, cseqString(res.CSeq))
	if len(res.Body) > 0 {
		header.Set(HeaderContentLength, strconv.Itoa(len(res.Body)))
	}

	if err := header.write(bw); err != nil {
		return "", err
	}
	if err := contentWrite(bw, res.Body); err != nil {
		return "", err
	}
	if err := bw.Flush(); err != nil {
		return "", err
	}

	return sb.String(), nil
}
