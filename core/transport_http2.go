// SPDX-License-Identifier: Apache-2.0
package core

// HTTP/2 DATA frame wrapping, layered on top of the TLS tunnel for maximum
// obfuscation: a passive observer sees traffic that matches RFC 7540's
// framing, not just its outer TLS handshake. Grounded on
// _examples/original_source/botho/src/network/transport/http2.rs
// (frame header layout, padding-to-target-size, stream ID cycling,
// SETTINGS/WINDOW_UPDATE filler frames).

import (
	"crypto/rand"
	"errors"
)

const (
	// MaxHTTP2FrameSize is RFC 7540's default max frame payload.
	MaxHTTP2FrameSize = 16384
	http2FrameHeaderSize = 9

	http2FrameTypeData         = 0x0
	http2FrameTypeSettings     = 0x4
	http2FrameTypeWindowUpdate = 0x8

	http2FlagEndStream = 0x1
	http2FlagPadded    = 0x8
)

var (
	ErrHTTP2FrameTooShort   = errors.New("http2: frame too short to contain header")
	ErrHTTP2NotDataFrame    = errors.New("http2: expected a DATA frame")
	ErrHTTP2IncompleteFrame = errors.New("http2: incomplete frame")
	ErrHTTP2InvalidPadding  = errors.New("http2: invalid padding")
)

// HTTP2WrapperConfig controls padding and stream numbering.
type HTTP2WrapperConfig struct {
	UsePadding      bool
	TargetFrameSize int
	InitialStreamID uint32
}

// DefaultHTTP2WrapperConfig enables padding toward MaxHTTP2FrameSize,
// matching http2.rs's Default impl. The pad-length field is one byte, so a
// frame gets at most 255 padding bytes and reaches the target size only
// when it is already within 255 bytes of it.
func DefaultHTTP2WrapperConfig() HTTP2WrapperConfig {
	return HTTP2WrapperConfig{UsePadding: true, TargetFrameSize: MaxHTTP2FrameSize, InitialStreamID: 1}
}

// HighObfuscationHTTP2Config is the same as DefaultHTTP2WrapperConfig:
// padding toward the maximum frame size, at most 255 bytes per frame.
func HighObfuscationHTTP2Config() HTTP2WrapperConfig {
	return DefaultHTTP2WrapperConfig()
}

// LowOverheadHTTP2Config disables padding to minimize bandwidth overhead.
func LowOverheadHTTP2Config() HTTP2WrapperConfig {
	return HTTP2WrapperConfig{UsePadding: false, TargetFrameSize: MaxHTTP2FrameSize, InitialStreamID: 1}
}

// HTTP2Wrapper wraps arbitrary payloads in HTTP/2 DATA frames and decodes
// a streamed byte sequence back into payloads.
type HTTP2Wrapper struct {
	config         HTTP2WrapperConfig
	currentStream  uint32
	decoderBuffer  []byte
}

// NewHTTP2Wrapper builds a wrapper from config.
func NewHTTP2Wrapper(config HTTP2WrapperConfig) *HTTP2Wrapper {
	return &HTTP2Wrapper{config: config, currentStream: config.InitialStreamID}
}

func (w *HTTP2Wrapper) calculatePadding(dataLen int) (int, bool) {
	overhead := http2FrameHeaderSize + 1
	current := overhead + dataLen
	if current >= w.config.TargetFrameSize {
		return 0, false
	}
	padding := w.config.TargetFrameSize - current
	if padding > 255 {
		padding = 255
	}
	return padding, true
}

// Wrap returns data as a complete HTTP/2 DATA frame, including header and
// any padding.
func (w *HTTP2Wrapper) Wrap(data []byte) ([]byte, error) {
	padLen, usePadding := 0, false
	if w.config.UsePadding {
		padLen, usePadding = w.calculatePadding(len(data))
	}

	payloadSize := len(data)
	if usePadding {
		payloadSize = 1 + len(data) + padLen
	}

	frame := make([]byte, 0, http2FrameHeaderSize+payloadSize)
	frame = append(frame,
		byte((payloadSize>>16)&0xFF), byte((payloadSize>>8)&0xFF), byte(payloadSize&0xFF),
		http2FrameTypeData,
	)
	flags := byte(0)
	if usePadding {
		flags = http2FlagPadded
	}
	frame = append(frame, flags)

	sid := w.currentStream
	frame = append(frame, byte((sid>>24)&0x7F), byte((sid>>16)&0xFF), byte((sid>>8)&0xFF), byte(sid&0xFF))

	if usePadding {
		frame = append(frame, byte(padLen))
	}
	frame = append(frame, data...)
	if usePadding && padLen > 0 {
		pad := make([]byte, padLen)
		if _, err := rand.Read(pad); err != nil {
			return nil, err
		}
		frame = append(frame, pad...)
	}
	return frame, nil
}

// Unwrap extracts the original payload from a complete HTTP/2 DATA frame.
func (w *HTTP2Wrapper) Unwrap(frame []byte) ([]byte, error) {
	if len(frame) < http2FrameHeaderSize {
		return nil, ErrHTTP2FrameTooShort
	}
	length := int(frame[0])<<16 | int(frame[1])<<8 | int(frame[2])
	frameType := frame[3]
	flags := frame[4]

	if frameType != http2FrameTypeData {
		return nil, ErrHTTP2NotDataFrame
	}
	expected := http2FrameHeaderSize + length
	if len(frame) < expected {
		return nil, ErrHTTP2IncompleteFrame
	}
	payload := frame[http2FrameHeaderSize:expected]

	if flags&http2FlagPadded != 0 {
		if len(payload) == 0 {
			return nil, ErrHTTP2InvalidPadding
		}
		padLen := int(payload[0])
		if padLen >= len(payload) {
			return nil, ErrHTTP2InvalidPadding
		}
		return append([]byte(nil), payload[1:len(payload)-padLen]...), nil
	}
	return append([]byte(nil), payload...), nil
}

// Feed appends bytes read off the wire to the streaming decode buffer.
func (w *HTTP2Wrapper) Feed(data []byte) {
	w.decoderBuffer = append(w.decoderBuffer, data...)
}

// TryDecodeNext extracts the next complete frame's payload from the
// decoder buffer, returning (nil, nil) if more data is needed.
func (w *HTTP2Wrapper) TryDecodeNext() ([]byte, error) {
	if len(w.decoderBuffer) < http2FrameHeaderSize {
		return nil, nil
	}
	length := int(w.decoderBuffer[0])<<16 | int(w.decoderBuffer[1])<<8 | int(w.decoderBuffer[2])
	total := http2FrameHeaderSize + length
	if len(w.decoderBuffer) < total {
		return nil, nil
	}
	frame := w.decoderBuffer[:total]
	w.decoderBuffer = w.decoderBuffer[total:]
	return w.Unwrap(frame)
}

// ClearBuffer discards any partially buffered frame data.
func (w *HTTP2Wrapper) ClearBuffer() {
	w.decoderBuffer = w.decoderBuffer[:0]
}

// NextStream advances to the next client-initiated stream ID (odd numbers,
// incrementing by 2, wrapping back to the initial ID before overflowing the
// 31-bit stream ID space).
func (w *HTTP2Wrapper) NextStream() {
	w.currentStream += 2
	if w.currentStream == 0 || w.currentStream > 0x7FFFFFFF {
		w.currentStream = w.config.InitialStreamID
	}
}

// CurrentStreamID returns the stream ID the next Wrap call will use.
func (w *HTTP2Wrapper) CurrentStreamID() uint32 { return w.currentStream }

// SettingsFrame returns an empty SETTINGS frame, sent at connection start
// to look like a real HTTP/2 preface.
func (w *HTTP2Wrapper) SettingsFrame() []byte {
	return []byte{0, 0, 0, http2FrameTypeSettings, 0, 0, 0, 0, 0}
}

// SettingsAckFrame returns a SETTINGS frame with the ACK flag set.
func (w *HTTP2Wrapper) SettingsAckFrame() []byte {
	return []byte{0, 0, 0, http2FrameTypeSettings, 0x1, 0, 0, 0, 0}
}

// WindowUpdateFrame returns a WINDOW_UPDATE frame for streamID granting
// increment additional bytes of flow-control window.
func (w *HTTP2Wrapper) WindowUpdateFrame(streamID, increment uint32) []byte {
	frame := []byte{0, 0, 4, http2FrameTypeWindowUpdate, 0,
		byte((streamID >> 24) & 0x7F), byte(streamID >> 16), byte(streamID >> 8), byte(streamID),
	}
	return append(frame,
		byte((increment>>24)&0x7F), byte(increment>>16), byte(increment>>8), byte(increment))
}
