package webrtcpeer

import (
	"context"
	"fmt"

	"github.com/pion/webrtc/v4"
)

// endOfCandidates is the literal trickled-candidate value meaning "no
// more candidates" (spec.md glossary).
const endOfCandidates = "a=end-of-candidates"

// PionPeer is the github.com/pion/webrtc/v4-backed Peer implementation.
// Grounded on the offer/answer/ICE flow exercised in
// _examples/backkem-matter/test/integration/webrtc_transport_e2e_test.go.
//
// Its role is fixed at construction: a non-recording peer always offers
// (the DESCRIBE/playback path of _examples/original_source/Signalling/ServerSession.cpp,
// where Prepare is called with no remote description yet); a recording
// peer always answers, deferring CreateAnswer until SetRemoteSDP supplies
// the announcer's offer, matching that file's onAnnounceRequest ordering
// (prepare() is called, then setRemoteSdp()).
type PionPeer struct {
	recorder bool
	api      *webrtc.API

	pc *webrtc.PeerConnection

	onPrepared     PreparedFunc
	onICECandidate ICECandidateFunc
	onEOS          EOSFunc

	remoteSet bool
}

// NewFactory returns a Factory that builds PionPeer instances, logging
// pion's own internal diagnostics (ICE, DTLS...) through logger.
func NewFactory(logger *Logger) Factory {
	se := webrtc.SettingEngine{}
	if logger != nil {
		se.LoggerFactory = newPionLoggerFactory(logger)
	}
	api := webrtc.NewAPI(webrtc.WithSettingEngine(se))

	return func(uri string, recorder bool) (Peer, error) {
		return &PionPeer{recorder: recorder, api: api}, nil
	}
}

func toICEServers(urls []string) []webrtc.ICEServer {
	servers := make([]webrtc.ICEServer, 0, len(urls))
	for _, u := range urls {
		servers = append(servers, webrtc.ICEServer{URLs: []string{u}})
	}
	return servers
}

// Prepare implements Peer.
func (p *PionPeer) Prepare(
	_ context.Context,
	iceServers []string,
	onPrepared PreparedFunc,
	onICECandidate ICECandidateFunc,
	onEOS EOSFunc,
) error {
	p.onPrepared = onPrepared
	p.onICECandidate = onICECandidate
	p.onEOS = onEOS

	pc, err := p.api.NewPeerConnection(webrtc.Configuration{
		ICEServers: toICEServers(iceServers),
	})
	if err != nil {
		return fmt.Errorf("webrtcpeer: new peer connection: %w", err)
	}
	p.pc = pc

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			p.onICECandidate(0, endOfCandidates)
			return
		}
		init := c.ToJSON()
		mLineIndex := 0
		if init.SDPMLineIndex != nil {
			mLineIndex = int(*init.SDPMLineIndex)
		}
		p.onICECandidate(mLineIndex, init.Candidate)
	})

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		switch s {
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			p.onEOS()
		}
	})

	if p.recorder {
		// wait for the announcer's offer via SetRemoteSDP.
		return nil
	}
	return p.createOffer()
}

func (p *PionPeer) createOffer() error {
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("webrtcpeer: create offer: %w", err)
	}
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("webrtcpeer: set local description: %w", err)
	}
	p.onPrepared()
	return nil
}

func (p *PionPeer) createAnswer() error {
	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return fmt.Errorf("webrtcpeer: create answer: %w", err)
	}
	if err := p.pc.SetLocalDescription(answer); err != nil {
		return fmt.Errorf("webrtcpeer: set local description: %w", err)
	}
	p.onPrepared()
	return nil
}

// SDP implements Peer.
func (p *PionPeer) SDP() string {
	if p.pc == nil {
		return ""
	}
	ld := p.pc.LocalDescription()
	if ld == nil {
		return ""
	}
	return ld.SDP
}

// SetRemoteSDP implements Peer.
func (p *PionPeer) SetRemoteSDP(sdp string) error {
	typ := webrtc.SDPTypeAnswer
	if p.recorder {
		typ = webrtc.SDPTypeOffer
	}

	if err := p.pc.SetRemoteDescription(webrtc.SessionDescription{Type: typ, SDP: sdp}); err != nil {
		return fmt.Errorf("webrtcpeer: set remote description: %w", err)
	}
	p.remoteSet = true

	if p.recorder {
		return p.createAnswer()
	}
	return nil
}

// AddICECandidate implements Peer.
func (p *PionPeer) AddICECandidate(mlineIndex int, candidate string) error {
	idx := uint16(mlineIndex)
	return p.pc.AddICECandidate(webrtc.ICECandidateInit{
		Candidate:     candidate,
		SDPMLineIndex: &idx,
	})
}

// Play implements Peer. Media flow follows directly from the negotiated
// connection; there is nothing further to do at the signalling layer.
func (p *PionPeer) Play() {}

// Stop implements Peer. Idempotent.
func (p *PionPeer) Stop() {
	if p.pc != nil {
		p.pc.Close() //nolint:errcheck
	}
}
