// SPDX-License-Identifier: Apache-2.0
package core

// Pluggable obfuscated transport: the node can carry gossip traffic over
// WebRTC data channels, a TLS tunnel disguised as HTTPS, or HTTP/2 framing
// layered on top of either. Grounded on
// _examples/original_source/botho/src/network/transport/{mod,tls_tunnel,http2,webrtc}.rs
// (the PluggableTransport trait and its TransportType sum type) and on the
// teacher's rpc_webrtc.go/security.go for the concrete Go wiring (pion
// PeerConnection, crypto/tls with certificate pinning).

import (
	"context"
	"errors"
	"io"
)

// TransportType names a concrete obfuscation strategy.
type TransportType int

const (
	TransportWebRTC TransportType = iota
	TransportTLSTunnel
	TransportHTTP2
)

// String renders the transport's wire-visible name.
func (t TransportType) String() string {
	switch t {
	case TransportWebRTC:
		return "webrtc"
	case TransportTLSTunnel:
		return "tls-tunnel"
	case TransportHTTP2:
		return "http2"
	default:
		return "unknown"
	}
}

// IsObfuscated reports whether the transport disguises traffic as another
// protocol to a passive observer, as opposed to a bare gossip socket.
func (t TransportType) IsObfuscated() bool {
	return t == TransportTLSTunnel || t == TransportHTTP2
}

var (
	ErrTransportUnavailable = errors.New("transport: unavailable in this build or environment")
	ErrTransportNotSupported = errors.New("transport: operation not supported by this transport")
	ErrNoAddress             = errors.New("transport: no address provided for peer")
)

// Conn is a bidirectional, closable byte stream to one remote peer,
// satisfied by a TLS connection, an HTTP/2-framed connection, or a WebRTC
// data channel adapter.
type Conn interface {
	io.ReadWriteCloser
	RemotePeerID() string
}

// PluggableTransport is the common surface every obfuscated transport
// implements, letting the node orchestrator swap transports without caring
// which one is active.
type PluggableTransport interface {
	Type() TransportType
	Name() string
	IsAvailable() bool
	Connect(ctx context.Context, peerID, addr string) (Conn, error)
	Accept(ctx context.Context) (Conn, error)
	Close() error
}

// TransportSet is the sum of transports a node has configured, selected in
// priority order so the node falls back if the preferred transport cannot
// reach a peer (e.g. WebRTC blocked by a restrictive NAT/firewall).
type TransportSet struct {
	transports []PluggableTransport
}

// NewTransportSet builds a set from the given transports, in priority
// order.
func NewTransportSet(transports ...PluggableTransport) *TransportSet {
	return &TransportSet{transports: transports}
}

// Connect tries each transport in priority order, returning the first
// successful connection.
func (s *TransportSet) Connect(ctx context.Context, peerID, addr string) (Conn, PluggableTransport, error) {
	var lastErr error
	for _, t := range s.transports {
		if !t.IsAvailable() {
			continue
		}
		conn, err := t.Connect(ctx, peerID, addr)
		if err == nil {
			return conn, t, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = ErrTransportUnavailable
	}
	return nil, nil, lastErr
}

// ByType returns the configured transport of the given type, if any.
func (s *TransportSet) ByType(kind TransportType) (PluggableTransport, bool) {
	for _, t := range s.transports {
		if t.Type() == kind {
			return t, true
		}
	}
	return nil, false
}
