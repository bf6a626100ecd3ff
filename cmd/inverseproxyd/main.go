// Command inverseproxyd runs the Inverse Proxy Server: two WebSocket
// listeners (front-facing and back-facing) sharing one ForwardContext, per
// spec.md §2 item 8. Grounded on the stdlib flag+log harness idiom of
// _examples/bluenviron-gortsplib/examples/server-play-format-h264-from-disk/main.go,
// adapted to this repository's two-listener shape
// (_examples/original_source/Apps/InverseProxy/InverseProxyTest/InverseProxyTest.cpp's
// InverseProxyServerConfig).
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/WebRTSP/Native/proxy"
)

// backAuthFlag accumulates repeated -back-auth name:token flags into a
// map, the Go shape of the original's backAuthTokens struct-literal map.
type backAuthFlag map[string]string

func (f backAuthFlag) String() string {
	pairs := make([]string, 0, len(f))
	for name, token := range f {
		pairs = append(pairs, name+":"+token)
	}
	return strings.Join(pairs, ",")
}

func (f backAuthFlag) Set(value string) error {
	name, token, ok := strings.Cut(value, ":")
	if !ok || name == "" || token == "" {
		log.Fatalf("inverseproxyd: -back-auth must be name:token, got %q", value)
	}
	f[name] = token
	return nil
}

func main() {
	frontAddr := flag.String("front", ":4001", "listen address for front (viewer) WebSocket connections")
	backAddr := flag.String("back", ":4002", "listen address for back (source) WebSocket connections")

	backAuth := backAuthFlag{}
	flag.Var(&backAuth, "back-auth", "name:token pair a back source must present; repeatable")
	flag.Parse()

	if len(backAuth) == 0 {
		backAuth["source1"] = "dummyToken"
	}

	logger := log.New(os.Stderr, "inverseproxyd: ", log.LstdFlags)

	server := proxy.NewServer(proxy.ServerConfig{
		FrontAddr:      *frontAddr,
		BackAddr:       *backAddr,
		BackAuthTokens: backAuth,
		Logger:         logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		logger.Printf("shutting down")
		if err := server.Shutdown(context.Background()); err != nil {
			logger.Printf("shutdown: %v", err)
		}
	}()

	logger.Printf("front listening on %s, back listening on %s", *frontAddr, *backAddr)
	if err := server.Start(); err != nil {
		logger.Fatalf("%v", err)
	}
}
