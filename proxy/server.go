package proxy

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/WebRTSP/Native/session"
	"github.com/WebRTSP/Native/transport"
)

// ServerConfig is the Inverse Proxy Server's configuration surface
// (spec.md §2 item 8), grounded on the
// InverseProxyServerConfig{frontPort, backPort, backAuthTokens} shape of
// _examples/original_source/Apps/InverseProxy/InverseProxyTest/InverseProxyTest.cpp.
type ServerConfig struct {
	// FrontAddr is the listen address for viewer-facing WebSocket
	// connections, e.g. ":8080".
	FrontAddr string
	// BackAddr is the listen address for source-facing WebSocket
	// connections, e.g. ":8081".
	BackAddr string

	// BackAuthTokens maps a back session's name to the pre-shared token
	// it must present (as a "token" query parameter) before it is
	// allowed to register (spec.md §6/§7). A name absent from this map
	// can never register.
	BackAuthTokens map[string]string

	// Logger receives one line per accepted or rejected connection, plus
	// ForwardContext's routing failures; dropped connections are not
	// logged. Defaults to log.Default() if nil.
	Logger *log.Logger
}

// Server is the Inverse Proxy Server: two WebSocket listeners sharing one
// ForwardContext, with every FrontSession/BackSession method call
// confined to a single Loop (spec.md §5), grounded on the
// http.ServeMux+websocket.Upgrader idiom of
// _examples/other_examples/PufferBlow-media-sfu__main.go.
type Server struct {
	cfg ServerConfig
	log *log.Logger

	ctx  *ForwardContext
	loop *session.Loop

	upgrader websocket.Upgrader

	frontSrv *http.Server
	backSrv  *http.Server
}

// NewServer builds a Server from cfg. Call Start to begin listening.
func NewServer(cfg ServerConfig) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}

	s := &Server{
		cfg:  cfg,
		log:  logger,
		ctx:  NewForwardContext(logger),
		loop: session.NewLoop(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}

	frontMux := http.NewServeMux()
	frontMux.HandleFunc("/", s.handleFront)
	s.frontSrv = &http.Server{Addr: cfg.FrontAddr, Handler: frontMux, ReadHeaderTimeout: 10 * time.Second}

	backMux := http.NewServeMux()
	backMux.HandleFunc("/", s.handleBack)
	s.backSrv = &http.Server{Addr: cfg.BackAddr, Handler: backMux, ReadHeaderTimeout: 10 * time.Second}

	return s
}

// Start begins serving both listeners. It blocks until one of them
// returns a non-shutdown error, or until Shutdown is called elsewhere.
func (s *Server) Start() error {
	errs := make(chan error, 2)

	go func() { errs <- s.frontSrv.ListenAndServe() }()
	go func() { errs <- s.backSrv.ListenAndServe() }()

	err := <-errs
	if errors.Is(err, http.ErrServerClosed) {
		err = <-errs
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
	return err
}

// Shutdown stops both listeners and the shared Loop.
func (s *Server) Shutdown(ctx context.Context) error {
	err1 := s.frontSrv.Shutdown(ctx)
	err2 := s.backSrv.Shutdown(ctx)
	s.loop.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

func (s *Server) handleFront(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Printf("proxy: front upgrade failed: %v", err)
		return
	}

	ws := transport.NewWS(conn)
	created := make(chan *FrontSession, 1)
	s.loop.Post(func() {
		created <- NewFrontSession(ws, s.ctx, func() {
			ws.Close() //nolint:errcheck
		})
	})
	front := <-created

	s.log.Printf("proxy: front connection accepted from %s", r.RemoteAddr)
	s.serveConnection(ws, front.HandleInbound, front.Close)
}

func (s *Server) handleBack(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	token := r.URL.Query().Get("token")

	if name == "" || s.cfg.BackAuthTokens[name] == "" || s.cfg.BackAuthTokens[name] != token {
		s.log.Printf("proxy: back connection from %s rejected (name %q)", r.RemoteAddr, name)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Printf("proxy: back upgrade failed: %v", err)
		return
	}

	ws := transport.NewWS(conn)
	var back *BackSession
	registered := make(chan struct{})
	s.loop.Post(func() {
		back, err = NewBackSession(ws, name, s.ctx, func() {
			ws.Close() //nolint:errcheck
		})
		close(registered)
	})
	<-registered
	if err != nil {
		s.log.Printf("proxy: back %q registration failed: %v", name, err)
		ws.Close() //nolint:errcheck
		return
	}

	s.log.Printf("proxy: back %q connection accepted from %s", name, r.RemoteAddr)
	s.serveConnection(ws, back.HandleInbound, back.Close)
}

// serveConnection reads WS frames on the calling goroutine but dispatches
// every one of them onto the shared Loop, so FrontSession/BackSession/
// ForwardContext state is only ever touched from that single goroutine
// (spec.md §5).
func (s *Server) serveConnection(ws *transport.WS, handleInbound func(string) bool, onClose func()) {
	defer ws.Close() //nolint:errcheck

	for {
		frame, err := ws.ReadMessage()
		if err != nil {
			break
		}

		result := make(chan bool, 1)
		s.loop.Post(func() {
			result <- handleInbound(frame)
		})
		if !<-result {
			break
		}
	}

	done := make(chan struct{})
	s.loop.Post(func() {
		onClose()
		close(done)
	})
	<-done
}
