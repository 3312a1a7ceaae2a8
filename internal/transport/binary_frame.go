/*
 * This file is part of Loqa (https://github.com/loqalabs/loqa).
 * Copyright (C) 2025 Loqa Labs
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program. If not, see <https://www.gnu.org/licenses/>.
 */

package transport

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/loqalabs/loqa-xmp-go/internal/audio"
)

// Binary frame protocol carried over HTTP/1.1 between the player and a
// remote renderer. PCM payloads are split to fit MaxDataSize.

// FrameType represents the type of frame being transmitted
type FrameType uint8

const (
	// Player to renderer
	FrameTypePCM    FrameType = 0x01 // interleaved samples in the announced format
	FrameTypeEnd    FrameType = 0x02 // no more audio for this session
	FrameTypeFormat FrameType = 0x11 // payload: EncodeFormat
	FrameTypeFlush  FrameType = 0x12 // payload: EncodeMillis, drop queued audio
	FrameTypePause  FrameType = 0x13 // payload: one byte, 1 = paused

	// Either direction
	FrameTypeHeartbeat FrameType = 0x10

	// Renderer to player
	FrameTypeError  FrameType = 0x20 // payload: UTF-8 message
	FrameTypeStatus FrameType = 0x21 // payload: EncodeMillis, played position
)

// Frame represents a binary frame in the protocol
type Frame struct {
	Type      FrameType
	SessionID uint32
	Sequence  uint32
	Timestamp uint64
	Data      []byte
}

// FrameHeader is the fixed frame header, big-endian on the wire
type FrameHeader struct {
	Magic     uint32    // FrameMagic
	Type      FrameType // Frame type (1 byte)
	Reserved  uint8     // Reserved for future use (1 byte)
	Length    uint16    // Data payload length (2 bytes)
	SessionID uint32    // Session identifier (4 bytes)
	Sequence  uint32    // Sequence number (4 bytes)
	Timestamp uint64    // Unix timestamp microseconds (8 bytes)
}

const (
	FrameMagic = 0x4C584D50 // "LXMP"

	MaxFrameSize = 8192
	HeaderSize   = 24
	MaxDataSize  = MaxFrameSize - HeaderSize

	formatPayloadSize = 6
	millisPayloadSize = 4
)

// Serialize converts a frame to binary format
func (f *Frame) Serialize() ([]byte, error) {
	if len(f.Data) > MaxDataSize {
		return nil, fmt.Errorf("frame data too large: %d bytes (max %d)", len(f.Data), MaxDataSize)
	}

	header := FrameHeader{
		Magic:     FrameMagic,
		Type:      f.Type,
		Length:    uint16(len(f.Data)), //nolint:gosec // bounded by MaxDataSize
		SessionID: f.SessionID,
		Sequence:  f.Sequence,
		Timestamp: f.Timestamp,
	}

	buf := bytes.NewBuffer(make([]byte, 0, HeaderSize+len(f.Data)))
	if err := binary.Write(buf, binary.BigEndian, header); err != nil {
		return nil, fmt.Errorf("failed to write frame header: %w", err)
	}
	buf.Write(f.Data)
	return buf.Bytes(), nil
}

// DeserializeFrame converts one complete serialized frame back
func DeserializeFrame(data []byte) (*Frame, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("frame too small: %d bytes (min %d)", len(data), HeaderSize)
	}

	header, err := parseFrameHeader(data[:HeaderSize])
	if err != nil {
		return nil, err
	}

	expectedSize := HeaderSize + int(header.Length)
	if len(data) != expectedSize {
		return nil, fmt.Errorf("frame size mismatch: got %d bytes, expected %d", len(data), expectedSize)
	}

	return header.frame(data[HeaderSize:]), nil
}

// ReadFrame reads the next frame from a stream
func ReadFrame(r io.Reader) (*Frame, error) {
	headerData := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, headerData); err != nil {
		return nil, err
	}

	header, err := parseFrameHeader(headerData)
	if err != nil {
		return nil, err
	}

	data := make([]byte, header.Length)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, fmt.Errorf("failed to read frame data: %w", err)
	}
	return header.frame(data), nil
}

// parseFrameHeader parses and validates a header
func parseFrameHeader(headerData []byte) (*FrameHeader, error) {
	if len(headerData) != HeaderSize {
		return nil, fmt.Errorf("invalid header size: %d bytes (expected %d)", len(headerData), HeaderSize)
	}

	var header FrameHeader
	if err := binary.Read(bytes.NewReader(headerData), binary.BigEndian, &header); err != nil {
		return nil, fmt.Errorf("failed to read frame header: %w", err)
	}

	if header.Magic != FrameMagic {
		return nil, fmt.Errorf("invalid frame magic: 0x%08X (expected 0x%08X)", header.Magic, FrameMagic)
	}
	if header.Length > MaxDataSize {
		return nil, fmt.Errorf("frame data too large: %d bytes (max %d)", header.Length, MaxDataSize)
	}

	return &header, nil
}

func (h *FrameHeader) frame(data []byte) *Frame {
	f := &Frame{
		Type:      h.Type,
		SessionID: h.SessionID,
		Sequence:  h.Sequence,
		Timestamp: h.Timestamp,
	}
	if len(data) > 0 {
		f.Data = data
	}
	return f
}

// NewFrame creates a new frame with the specified parameters
func NewFrame(frameType FrameType, sessionID, sequence uint32, timestamp uint64, data []byte) *Frame {
	return &Frame{
		Type:      frameType,
		SessionID: sessionID,
		Sequence:  sequence,
		Timestamp: timestamp,
		Data:      data,
	}
}

// Size returns the total serialized size of the frame
func (f *Frame) Size() int {
	return HeaderSize + len(f.Data)
}

// EncodeFormat packs an audio format: encoding (1), channels (1), rate (4).
func EncodeFormat(format audio.Format) []byte {
	buf := make([]byte, formatPayloadSize)
	buf[0] = byte(format.Encoding)
	buf[1] = byte(format.Channels)
	binary.BigEndian.PutUint32(buf[2:], uint32(format.Rate)) //nolint:gosec // sample rates fit
	return buf
}

// DecodeFormat unpacks EncodeFormat's payload and validates it.
func DecodeFormat(data []byte) (audio.Format, error) {
	if len(data) != formatPayloadSize {
		return audio.Format{}, fmt.Errorf("format payload is %d bytes (expected %d)", len(data), formatPayloadSize)
	}
	format := audio.Format{
		Encoding: audio.Encoding(data[0]),
		Channels: int(data[1]),
		Rate:     int(binary.BigEndian.Uint32(data[2:])),
	}
	if err := format.Validate(); err != nil {
		return audio.Format{}, err
	}
	return format, nil
}

// EncodeMillis packs a position in milliseconds.
func EncodeMillis(ms int) []byte {
	if ms < 0 {
		ms = 0
	}
	buf := make([]byte, millisPayloadSize)
	binary.BigEndian.PutUint32(buf, uint32(ms)) //nolint:gosec // clamped above
	return buf
}

// DecodeMillis unpacks EncodeMillis's payload.
func DecodeMillis(data []byte) (int, error) {
	if len(data) != millisPayloadSize {
		return 0, fmt.Errorf("position payload is %d bytes (expected %d)", len(data), millisPayloadSize)
	}
	return int(binary.BigEndian.Uint32(data)), nil
}
