// Command inverseproxy-source is a standalone back source: it dials out
// to an Inverse Proxy Server's back listener (reversing the usual
// direction, since the source — not the proxy — initiates the TCP/WS
// connection) and then plays the RTSP server role over that connection,
// driving a webrtcpeer.Peer per MediaSession (spec.md §1, §4.4).
//
// Grounded on the InverseProxyClient role of
// _examples/original_source/Apps/InverseProxy/InverseProxyTest/InverseProxyTest.cpp
// (connects under a name+token, reconnects every RECONNECT_TIMEOUT=5
// seconds on disconnect) and the stdlib flag+log harness idiom of
// _examples/bluenviron-gortsplib/examples/client-read-track-opus/main.go.
package main

import (
	"context"
	"flag"
	"log"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/WebRTSP/Native/pkg/rtsp"
	"github.com/WebRTSP/Native/pkg/webrtcpeer"
	"github.com/WebRTSP/Native/session"
	"github.com/WebRTSP/Native/transport"
)

const reconnectTimeout = 5 * time.Second

func main() {
	proxyAddr := flag.String("proxy", "localhost:4002", "host:port of the proxy's back listener")
	name := flag.String("name", "source1", "name this source registers under")
	token := flag.String("token", "dummyToken", "pre-shared auth token for -name")
	stunServer := flag.String("stun", "stun:stun.l.google.com:19302", "STUN/TURN server URL offered to the Peer")
	flag.Parse()

	logger := log.New(os.Stderr, "inverseproxy-source["+*name+"]: ", log.LstdFlags)
	peerFactory := webrtcpeer.NewFactory(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	for ctx.Err() == nil {
		if err := runOnce(ctx, *proxyAddr, *name, *token, []string{*stunServer}, peerFactory, logger); err != nil {
			logger.Printf("session ended: %v", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectTimeout):
		}
	}
}

func runOnce(
	ctx context.Context,
	proxyAddr, name, token string,
	iceServers []string,
	peerFactory webrtcpeer.Factory,
	logger *log.Logger,
) error {
	u := url.URL{Scheme: "ws", Host: proxyAddr, Path: "/"}
	q := u.Query()
	q.Set("name", name)
	q.Set("token", token)
	u.RawQuery = q.Encode()

	ws, err := transport.Dial(ctx, u.String())
	if err != nil {
		return err
	}
	defer ws.Close() //nolint:errcheck

	loop := session.NewLoop()
	defer loop.Close()

	done := make(chan struct{})
	closeOnce := func() {
		select {
		case <-done:
		default:
			close(done)
			ws.Close() //nolint:errcheck
		}
	}

	var ss *session.ServerSession
	ss = session.NewServerSession(
		ws,
		peerFactory,
		iceServers,
		false, // the reference test source never records
		loop,
		logger,
		func(sessionId rtsp.SessionId, uri string) {
			// EOS: translate into a TEARDOWN toward the proxy, per spec.md
			// §4.4 "eosCb... surfaces as an abstract onEos hook".
			if err := ss.RequestTeardown(uri, sessionId); err != nil {
				logger.Printf("teardown on EOS for session %s: %v", sessionId, err)
			}
		},
		closeOnce,
	)

	logger.Printf("registered as %q on %s", name, proxyAddr)

	for {
		frame, err := ws.ReadMessage()
		if err != nil {
			closeOnce()
			return err
		}

		result := make(chan bool, 1)
		loop.Post(func() { result <- ss.HandleInbound(frame) })
		if !<-result {
			closeOnce()
			return nil
		}
	}
}
