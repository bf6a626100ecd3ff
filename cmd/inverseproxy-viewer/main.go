// Command inverseproxy-viewer is a standalone front viewer: it connects
// to an Inverse Proxy Server's front listener and plays the RTSP client
// role, issuing OPTIONS/DESCRIBE/SETUP/PLAY against a "<name>/<path>"
// stream-path and driving a webrtcpeer.Peer through the answer side of
// the offer/answer exchange (spec.md §4.3).
//
// Grounded on the client::WsClient role of
// _examples/original_source/Apps/InverseProxy/InverseProxyTest/InverseProxyTest.cpp
// (reconnects every RECONNECT_TIMEOUT=5 seconds on disconnect).
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

	"github.com/WebRTSP/Native/pkg/webrtcpeer"
	"github.com/WebRTSP/Native/session"
	"github.com/WebRTSP/Native/transport"
)

const reconnectTimeout = 5 * time.Second

func main() {
	proxyAddr := flag.String("proxy", "localhost:4001", "host:port of the proxy's front listener")
	streamURI := flag.String("uri", "source1/bars", "<backName>/<streamPath> to play")
	stunServer := flag.String("stun", "stun:stun.l.google.com:19302", "STUN/TURN server URL offered to the Peer")
	flag.Parse()

	logger := log.New(os.Stderr, "inverseproxy-viewer: ", log.LstdFlags)
	peerFactory := webrtcpeer.AsClientFactory(webrtcpeer.NewFactory(logger))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	for ctx.Err() == nil {
		if err := runOnce(ctx, *proxyAddr, *streamURI, []string{*stunServer}, peerFactory, logger); err != nil {
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
	proxyAddr, streamURI string,
	iceServers []string,
	peerFactory webrtcpeer.ClientPeerFactory,
	logger *log.Logger,
) error {
	u := url.URL{Scheme: "ws", Host: proxyAddr, Path: "/"}

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

	cs := session.NewClientSession(ws, streamURI, iceServers, peerFactory, loop, logger, closeOnce)

	connected := make(chan bool, 1)
	loop.Post(func() { connected <- cs.OnConnected() })
	if !<-connected {
		return nil
	}

	logger.Printf("requesting %q from %s", streamURI, proxyAddr)

	for {
		frame, err := ws.ReadMessage()
		if err != nil {
			closeOnce()
			return err
		}

		result := make(chan bool, 1)
		loop.Post(func() { result <- cs.HandleInbound(frame) })
		if !<-result {
			closeOnce()
			return nil
		}
	}
}
