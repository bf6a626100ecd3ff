// Package webrtcpeer implements the WebRTC "Peer" capability spec.md §2
// item 2 and §9 treat as abstract and external: producing local SDP,
// accepting remote SDP, trickling local ICE candidates and signalling
// end-of-stream. session and proxy depend only on the Peer interface;
// PionPeer is the concrete implementation wired in by cmd/.
package webrtcpeer

import "context"

// PreparedFunc is called once the Peer has produced a local description
// and is ready to exchange it (spec.md §4.3/§4.4 "prepared").
type PreparedFunc func()

// ICECandidateFunc is called once per trickled local ICE candidate.
// mlineIndex identifies the m-line the candidate belongs to.
type ICECandidateFunc func(mlineIndex int, candidate string)

// EOSFunc is called when the peer connection has permanently ended.
type EOSFunc func()

// Peer is the WebRTC capability a ServerSession/ClientSession drives.
// Method names mirror the reference WebRTCPeer/GstStreamer contract
// (_examples/original_source/Streaming/GstStreamer.h,
// _examples/original_source/Signalling/ServerSession.cpp).
type Peer interface {
	// Prepare begins ICE gathering / offer creation against the given
	// STUN/TURN server URLs. onPrepared fires once SDP() will return a
	// non-empty local description; onICECandidate fires once per
	// trickled candidate; onEOS fires when the connection has ended.
	Prepare(ctx context.Context, iceServers []string, onPrepared PreparedFunc, onICECandidate ICECandidateFunc, onEOS EOSFunc) error

	// SDP returns the local SDP description, or "" if not yet available.
	SDP() string

	// SetRemoteSDP applies the remote offer or answer.
	SetRemoteSDP(sdp string) error

	// AddICECandidate applies one trickled remote ICE candidate.
	AddICECandidate(mlineIndex int, candidate string) error

	// Play starts media flow (for a playback peer) or accepts incoming
	// media (for a recording peer).
	Play()

	// Stop tears the peer connection down. Idempotent.
	Stop()
}

// Factory creates a Peer for the given request-URI. recorder distinguishes
// the ANNOUNCE/RECORD (recording) role from the DESCRIBE/PLAY (playback)
// role, the Go shape of the reference's createPeer/createRecordPeer
// std::functions (_examples/original_source/Signalling/ServerSession.cpp).
type Factory func(uri string, recorder bool) (Peer, error)

// ClientPeerFactory creates the Peer a ClientSession drives. A
// ClientSession's peer always receives a remote offer (the back-source
// side's own peer was the one to create it) and answers, so it is
// always constructed in the "recorder" role of Factory — the Go shape of
// the reference's single CreateClientPeer std::function
// (_examples/original_source/Apps/InverseProxy/InverseProxyTest/InverseProxyTest.cpp).
type ClientPeerFactory func(uri string) (Peer, error)

// AsClientFactory adapts a Factory to a ClientPeerFactory, always
// requesting the answering role.
func AsClientFactory(f Factory) ClientPeerFactory {
	return func(uri string) (Peer, error) {
		return f(uri, true)
	}
}
