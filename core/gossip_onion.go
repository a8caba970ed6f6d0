// SPDX-License-Identifier: Apache-2.0
package core

// Per-hop onion layer encryption. Grounded on spec.md §4.6's layer format
// and security.go's XChaCha20-Poly1305 Encrypt/Decrypt convention (nonce
// prepended to ciphertext); the forward/exit layer split is this package's
// own encoding of selection.rs/relay_handler.rs's "forward carries next-hop
// peer id, exit carries the inner payload" distinction, since the Rust
// sources pass already-deserialized Rust enums across process boundaries
// rather than defining an explicit wire format.

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

var (
	ErrOnionDecryptFailed = errors.New("gossip: onion layer decryption failed")
	ErrOnionLayerTooShort = errors.New("gossip: onion layer too short")
	ErrOnionBadLayerType  = errors.New("gossip: unrecognized onion layer type")
)

// OnionLayerType discriminates a peeled layer's payload shape.
type OnionLayerType byte

const (
	OnionLayerForward OnionLayerType = 0
	OnionLayerExit    OnionLayerType = 1
)

// PeeledLayer is the result of decrypting exactly one onion layer.
type PeeledLayer struct {
	Type       OnionLayerType
	NextHop    string // set when Type == OnionLayerForward
	InnerBytes []byte // forward: next ciphertext; exit: the InnerMessage bytes
}

// sealLayer AEAD-seals plaintext under key with a fresh random nonce,
// returning nonce‖ciphertext per security.go's Encrypt convention.
func sealLayer(key [32]byte, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return nil, fmt.Errorf("onion seal: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("onion seal: %w", err)
	}
	sealed := aead.Seal(nil, nonce, plaintext, nil)
	out := make([]byte, 0, len(nonce)+len(sealed))
	out = append(out, nonce...)
	out = append(out, sealed...)
	return out, nil
}

// openLayer reverses sealLayer.
func openLayer(key [32]byte, frame []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return nil, fmt.Errorf("onion open: %w", err)
	}
	if len(frame) < aead.NonceSize() {
		return nil, ErrOnionLayerTooShort
	}
	nonce := frame[:aead.NonceSize()]
	ciphertext := frame[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrOnionDecryptFailed
	}
	return plain, nil
}

// WrapForwardLayer builds one forward layer around an already-wrapped inner
// ciphertext: plaintext = next_peer_id_len ‖ next_peer_id ‖ inner_ciphertext,
// then nonce‖AEAD(key, plaintext).
func WrapForwardLayer(key [32]byte, nextPeerID string, innerCiphertext []byte) ([]byte, error) {
	idBytes := []byte(nextPeerID)
	plaintext := make([]byte, 0, 2+len(idBytes)+len(innerCiphertext))
	var lenBuf [2]byte
	binary.LittleEndian.PutUint16(lenBuf[:], uint16(len(idBytes)))
	plaintext = append(plaintext, lenBuf[:]...)
	plaintext = append(plaintext, idBytes...)
	plaintext = append(plaintext, innerCiphertext...)
	sealed, err := sealLayer(key, plaintext)
	if err != nil {
		return nil, err
	}
	return append([]byte{byte(OnionLayerForward)}, sealed...), nil
}

// WrapExitLayer builds the innermost layer: nonce‖AEAD(key, inner_payload).
func WrapExitLayer(key [32]byte, innerPayload []byte) ([]byte, error) {
	sealed, err := sealLayer(key, innerPayload)
	if err != nil {
		return nil, err
	}
	return append([]byte{byte(OnionLayerExit)}, sealed...), nil
}

// PeelLayer decrypts exactly one layer from frame using key, returning the
// discriminated result. The caller (relay handler) does not know in advance
// whether it holds the exit key; the frame's leading type byte disambiguates
// without the relay ever seeing the plaintext of a layer it is not meant to
// decrypt, since a wrong key simply fails AEAD authentication.
func PeelLayer(key [32]byte, frame []byte) (*PeeledLayer, error) {
	if len(frame) < 1 {
		return nil, ErrOnionLayerTooShort
	}
	layerType := OnionLayerType(frame[0])
	body := frame[1:]
	plain, err := openLayer(key, body)
	if err != nil {
		return nil, err
	}
	switch layerType {
	case OnionLayerForward:
		if len(plain) < 2 {
			return nil, ErrOnionLayerTooShort
		}
		idLen := int(binary.LittleEndian.Uint16(plain[:2]))
		if len(plain) < 2+idLen {
			return nil, ErrOnionLayerTooShort
		}
		return &PeeledLayer{
			Type:       OnionLayerForward,
			NextHop:    string(plain[2 : 2+idLen]),
			InnerBytes: plain[2+idLen:],
		}, nil
	case OnionLayerExit:
		return &PeeledLayer{Type: OnionLayerExit, InnerBytes: plain}, nil
	default:
		return nil, ErrOnionBadLayerType
	}
}

// InnerMessageKind tags the plaintext payload an exit layer reveals.
type InnerMessageKind byte

const (
	InnerMessageTransaction InnerMessageKind = 0
	InnerMessageCover       InnerMessageKind = 1
	InnerMessageSyncRequest InnerMessageKind = 2
)

// InnerMessage is the deserialized exit-layer payload: a transaction
// broadcast, cover traffic (dropped silently by the exit), or a sync
// request.
type InnerMessage struct {
	Kind    InnerMessageKind
	TxHash  [32]byte
	TxData  []byte
}

// EncodeInnerMessage serializes an InnerMessage for exit-layer wrapping.
func EncodeInnerMessage(m InnerMessage) []byte {
	out := []byte{byte(m.Kind)}
	switch m.Kind {
	case InnerMessageTransaction:
		out = append(out, m.TxHash[:]...)
		var lenBuf [4]byte
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(m.TxData)))
		out = append(out, lenBuf[:]...)
		out = append(out, m.TxData...)
	case InnerMessageCover:
		// no payload beyond the tag
	case InnerMessageSyncRequest:
		out = append(out, m.TxData...)
	}
	return out
}

// DecodeInnerMessage reverses EncodeInnerMessage.
func DecodeInnerMessage(b []byte) (*InnerMessage, error) {
	if len(b) < 1 {
		return nil, ErrOnionLayerTooShort
	}
	kind := InnerMessageKind(b[0])
	rest := b[1:]
	switch kind {
	case InnerMessageTransaction:
		if len(rest) < 36 {
			return nil, ErrOnionLayerTooShort
		}
		var hash [32]byte
		copy(hash[:], rest[:32])
		dataLen := binary.LittleEndian.Uint32(rest[32:36])
		if len(rest) < int(36+dataLen) {
			return nil, ErrOnionLayerTooShort
		}
		return &InnerMessage{Kind: kind, TxHash: hash, TxData: rest[36 : 36+dataLen]}, nil
	case InnerMessageCover:
		return &InnerMessage{Kind: kind}, nil
	case InnerMessageSyncRequest:
		return &InnerMessage{Kind: kind, TxData: rest}, nil
	default:
		return nil, ErrOnionBadLayerType
	}
}
