// SPDX-License-Identifier: Apache-2.0
package core

// WebRTC transport: NAT-traversing data channels. TransportWebRTC is not
// counted as obfuscated by IsObfuscated. Grounded on the teacher's rpc_webrtc.go
// (pion/webrtc/v4 PeerConnection/DataChannel wiring, offer/answer exchange)
// generalized from an HTTP-bridge RPC endpoint into a PluggableTransport
// implementation per
// _examples/original_source/botho/src/network/transport/webrtc/dtls.rs's
// transport-selection role.

import (
	"context"
	"errors"
	"sync"

	"github.com/pion/webrtc/v4"
)

// ErrNoOffer is returned when Accept is called with no pending offer
// queued by SubmitOffer.
var ErrNoOffer = errors.New("transport: no pending WebRTC offer")

// WebRTCTransport implements PluggableTransport over pion's WebRTC data
// channels. A single data channel, "gossip", carries onion and fast-path
// traffic; signaling (offer/answer SDP exchange) happens out of band, e.g.
// over the node's existing peer-exchange gossip topic.
type WebRTCTransport struct {
	config webrtc.Configuration

	mu      sync.Mutex
	peers   map[string]*webrtcPeer
	pending chan *pendingOffer
}

type webrtcPeer struct {
	conn    *webrtc.PeerConnection
	channel *webrtc.DataChannel
}

type pendingOffer struct {
	peerID string
	offer  webrtc.SessionDescription
}

// NewWebRTCTransport builds a transport using the given ICE server
// configuration (typically a small set of STUN servers for NAT traversal).
func NewWebRTCTransport(config webrtc.Configuration) *WebRTCTransport {
	return &WebRTCTransport{
		config:  config,
		peers:   make(map[string]*webrtcPeer),
		pending: make(chan *pendingOffer, 32),
	}
}

func (t *WebRTCTransport) Type() TransportType { return TransportWebRTC }
func (t *WebRTCTransport) Name() string         { return "webrtc" }
func (t *WebRTCTransport) IsAvailable() bool     { return true }

// Connect creates a PeerConnection, opens the gossip data channel, sets a
// local offer, and returns a Conn once the channel reports open or ctx is
// done. Connect does not read addr and sets no remote description itself.
func (t *WebRTCTransport) Connect(ctx context.Context, peerID, addr string) (Conn, error) {
	pc, err := webrtc.NewPeerConnection(t.config)
	if err != nil {
		return nil, err
	}
	dc, err := pc.CreateDataChannel("gossip", nil)
	if err != nil {
		_ = pc.Close()
		return nil, err
	}

	conn := newWebRTCConn(peerID, pc, dc)

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		_ = pc.Close()
		return nil, err
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		_ = pc.Close()
		return nil, err
	}

	t.mu.Lock()
	t.peers[peerID] = &webrtcPeer{conn: pc, channel: dc}
	t.mu.Unlock()

	select {
	case <-conn.opened:
	case <-ctx.Done():
		_ = pc.Close()
		return nil, ctx.Err()
	}
	return conn, nil
}

// SubmitOffer hands a remotely offered SDP to this transport's accept loop.
// The signaling channel that carried the offer is outside this type's
// scope (it arrives over the node's gossip plane).
func (t *WebRTCTransport) SubmitOffer(peerID string, offerSDP string) {
	t.pending <- &pendingOffer{peerID: peerID, offer: webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offerSDP}}
}

// Accept waits for a queued offer, answers it, and returns the resulting
// connection once its data channel opens.
func (t *WebRTCTransport) Accept(ctx context.Context) (Conn, error) {
	var po *pendingOffer
	select {
	case po = <-t.pending:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	pc, err := webrtc.NewPeerConnection(t.config)
	if err != nil {
		return nil, err
	}

	conn := newWebRTCConn(po.peerID, pc, nil)
	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		conn.bind(dc)
	})

	if err := pc.SetRemoteDescription(po.offer); err != nil {
		_ = pc.Close()
		return nil, err
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		_ = pc.Close()
		return nil, err
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		_ = pc.Close()
		return nil, err
	}

	t.mu.Lock()
	t.peers[po.peerID] = &webrtcPeer{conn: pc}
	t.mu.Unlock()

	select {
	case <-conn.opened:
	case <-ctx.Done():
		_ = pc.Close()
		return nil, ctx.Err()
	}
	return conn, nil
}

// Close tears down every tracked peer connection.
func (t *WebRTCTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, p := range t.peers {
		if p.channel != nil {
			_ = p.channel.Close()
		}
		_ = p.conn.Close()
		delete(t.peers, id)
	}
	return nil
}

// webrtcConn adapts a pion DataChannel to the Conn interface with a
// blocking Read backed by an internal byte channel, since pion delivers
// messages via callback rather than exposing a read syscall.
type webrtcConn struct {
	peerID string
	pc     *webrtc.PeerConnection
	dc     *webrtc.DataChannel

	opened chan struct{}
	msgs   chan []byte
	closed chan struct{}

	mu  sync.Mutex
	buf []byte
}

func newWebRTCConn(peerID string, pc *webrtc.PeerConnection, dc *webrtc.DataChannel) *webrtcConn {
	c := &webrtcConn{
		peerID: peerID,
		pc:     pc,
		opened: make(chan struct{}),
		msgs:   make(chan []byte, 256),
		closed: make(chan struct{}),
	}
	if dc != nil {
		c.bind(dc)
	}
	return c
}

func (c *webrtcConn) bind(dc *webrtc.DataChannel) {
	c.dc = dc
	dc.OnOpen(func() {
		select {
		case <-c.opened:
		default:
			close(c.opened)
		}
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		select {
		case c.msgs <- msg.Data:
		case <-c.closed:
		}
	})
	dc.OnClose(func() {
		select {
		case <-c.closed:
		default:
			close(c.closed)
		}
	})
}

func (c *webrtcConn) Read(p []byte) (int, error) {
	c.mu.Lock()
	if len(c.buf) > 0 {
		n := copy(p, c.buf)
		c.buf = c.buf[n:]
		c.mu.Unlock()
		return n, nil
	}
	c.mu.Unlock()

	select {
	case data := <-c.msgs:
		n := copy(p, data)
		if n < len(data) {
			c.mu.Lock()
			c.buf = append(c.buf, data[n:]...)
			c.mu.Unlock()
		}
		return n, nil
	case <-c.closed:
		return 0, errors.New("transport: webrtc data channel closed")
	}
}

func (c *webrtcConn) Write(p []byte) (int, error) {
	if c.dc == nil {
		return 0, errors.New("transport: webrtc data channel not yet open")
	}
	if err := c.dc.Send(p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *webrtcConn) Close() error {
	if c.dc != nil {
		_ = c.dc.Close()
	}
	return c.pc.Close()
}

func (c *webrtcConn) RemotePeerID() string { return c.peerID }
