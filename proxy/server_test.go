package proxy

import (
	"context"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func dialWS(t *testing.T, addr, query string) *websocket.Conn {
	t.Helper()

	url := "ws://" + addr + "/"
	if query != "" {
		url += "?" + query
	}

	var conn *websocket.Conn
	var err error
	for i := 0; i < 20; i++ {
		conn, _, err = websocket.DefaultDialer.Dial(url, nil)
		if err == nil {
			return conn
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.NoError(t, err)
	return conn
}

func TestServerEndToEndDescribe(t *testing.T) {
	const frontAddr = "localhost:18780"
	const backAddr = "localhost:18781"

	s := NewServer(ServerConfig{
		FrontAddr:      frontAddr,
		BackAddr:       backAddr,
		BackAuthTokens: map[string]string{"source1": "dummyToken"},
	})
	go s.Start() //nolint:errcheck
	defer s.Shutdown(context.Background()) //nolint:errcheck

	backConn := dialWS(t, backAddr, "name=source1&token=dummyToken")
	defer backConn.Close()

	frontConn := dialWS(t, frontAddr, "")
	defer frontConn.Close()

	require.NoError(t, frontConn.WriteMessage(websocket.TextMessage,
		[]byte("DESCRIBE source1/bars RTSP/1.0\r\nCSeq: 1\r\n\r\n")))

	_, data, err := backConn.ReadMessage()
	require.NoError(t, err)
	require.Contains(t, string(data), "DESCRIBE bars RTSP/1.0")

	require.NoError(t, backConn.WriteMessage(websocket.TextMessage,
		[]byte("RTSP/1.0 200 OK\r\nCSeq: 1\r\nSession: 1\r\nContent-Type: application/sdp\r\nContent-Length: 5\r\n\r\nv=0\r\n")))

	_, data, err = frontConn.ReadMessage()
	require.NoError(t, err)
	require.Contains(t, string(data), "RTSP/1.0 200 OK")
	require.Contains(t, string(data), "Session: 1")
}

func TestServerRejectsBackWithBadToken(t *testing.T) {
	const backAddr = "localhost:18782"

	s := NewServer(ServerConfig{
		FrontAddr:      "localhost:18783",
		BackAddr:       backAddr,
		BackAuthTokens: map[string]string{"source1": "dummyToken"},
	})
	go s.Start() //nolint:errcheck
	defer s.Shutdown(context.Background()) //nolint:errcheck

	time.Sleep(20 * time.Millisecond)

	_, _, err := websocket.DefaultDialer.Dial("ws://"+backAddr+"/?name=source1&token=wrong", nil)
	require.Error(t, err)
}
