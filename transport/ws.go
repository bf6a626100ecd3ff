// Package transport wraps a WebSocket connection as the bidirectional
// text-message pipe spec.md §2 item 2 treats as an external capability,
// grounded on the RTSP-over-WebSocket tunnelling of
// _examples/bluenviron-gortsplib/server_tunnel_websocket.go and
// client_tunnel_websocket.go, adapted from binary framing to the text
// framing spec.md §6 specifies for this protocol.
package transport

import (
	"context"
	"fmt"

	"github.com/gorilla/websocket"

	"github.com/WebRTSP/Native/pkg/rtsp"
)

// WS carries RTSP requests/responses as WebSocket text frames, one
// message per frame.
type WS struct {
	conn *websocket.Conn
}

// NewWS wraps an already-established WebSocket connection.
func NewWS(conn *websocket.Conn) *WS {
	return &WS{conn: conn}
}

// Dial opens an outbound WebSocket connection to url (e.g.
// "ws://host:port/?name=source1&token=..."), grounded on the
// websocket.Dialer usage of
// _examples/bluenviron-gortsplib/client_tunnel_websocket.go. This is how
// a back source or a standalone viewer — both clients of a WS listener —
// reach the proxy, even though in the RTSP sense a back source then
// plays the server role over the connection it just dialed (spec.md §1
// "inverse signalling proxy").
func Dial(ctx context.Context, url string) (*WS, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil) //nolint:bodyclose
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", url, err)
	}
	return NewWS(conn), nil
}

// ReadMessage blocks for the next WS text frame and returns its payload.
func (w *WS) ReadMessage() (string, error) {
	msgType, data, err := w.conn.ReadMessage()
	if err != nil {
		return "", err
	}
	if msgType != websocket.TextMessage {
		return "", fmt.Errorf("transport: unexpected WS message type %d", msgType)
	}
	return string(data), nil
}

// writeMessage writes one WS text frame.
func (w *WS) writeMessage(frame string) error {
	return w.conn.WriteMessage(websocket.TextMessage, []byte(frame))
}

// SendRequest implements session.Transport.
func (w *WS) SendRequest(req *rtsp.Request) error {
	frame, err := req.Write()
	if err != nil {
		return err
	}
	return w.writeMessage(frame)
}

// SendResponse implements session.Transport.
func (w *WS) SendResponse(res *rtsp.Response) error {
	frame, err := res.Write()
	if err != nil {
		return err
	}
	return w.writeMessage(frame)
}

// Close closes the underlying WebSocket connection.
func (w *WS) Close() error {
	return w.conn.Close()
}
