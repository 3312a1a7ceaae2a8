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
	"encoding/binary"
	"fmt"
	"log"
	"sync"

	"github.com/loqalabs/loqa-xmp-go/internal/audio"
)

// HTTPSink implements audio.Sink by streaming PCM frames to a remote
// renderer. 16-bit samples travel little-endian.
type HTTPSink struct {
	rendererURL string
	playerID    string

	mu        sync.Mutex
	cond      *sync.Cond
	client    *RendererClient
	format    audio.Format
	open      bool
	aborted   bool
	paused    bool
	remoteErr error
	played    int
	clock     audio.WrittenClock
}

// NewHTTPSink creates a sink that connects to rendererURL on Open.
func NewHTTPSink(rendererURL, playerID string) *HTTPSink {
	s := &HTTPSink{rendererURL: rendererURL, playerID: playerID}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Open connects if needed and announces the format.
func (s *HTTPSink) Open(format audio.Format) error {
	if err := format.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	client := s.client
	if client == nil || !client.IsConnected() {
		client = NewRendererClient(s.rendererURL, s.playerID)
		if err := client.Connect(); err != nil {
			s.mu.Unlock()
			return fmt.Errorf("%w: %v", audio.ErrDeviceRejected, err)
		}
		if err := client.StartReceiving(s.handleIncomingFrame); err != nil {
			client.Disconnect()
			s.mu.Unlock()
			return fmt.Errorf("%w: %v", audio.ErrDeviceRejected, err)
		}
		s.client = client
	}
	s.mu.Unlock()

	if err := client.SendFrame(FrameTypeFormat, EncodeFormat(format)); err != nil {
		return fmt.Errorf("%w: %v", audio.ErrDeviceRejected, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.format = format
	s.open = true
	s.aborted = false
	s.paused = false
	s.remoteErr = nil
	s.clock.Reset(format, 0)
	log.Printf("🔊 Streaming %s %d Hz %d ch to %s", format.Encoding, format.Rate, format.Channels, s.rendererURL)
	return nil
}

// Write sends data in frames of at most MaxDataSize bytes. It blocks
// while paused and returns audio.ErrAborted once aborted.
func (s *HTTPSink) Write(data []byte) error {
	s.mu.Lock()
	for s.paused && !s.aborted && s.open {
		s.cond.Wait()
	}
	if !s.open {
		s.mu.Unlock()
		return audio.ErrNotOpen
	}
	if s.remoteErr != nil {
		err := s.remoteErr
		s.mu.Unlock()
		return err
	}
	client := s.client
	wide := s.format.Encoding == audio.EncodingS16NE
	s.mu.Unlock()

	if wide {
		data = toLittleEndian(data)
	}

	chunk := MaxDataSize
	if wide {
		chunk -= chunk % 2
	}
	for len(data) > 0 {
		if s.isAborted() {
			return audio.ErrAborted
		}

		n := min(chunk, len(data))
		if err := client.SendFrame(FrameTypePCM, data[:n]); err != nil {
			if s.isAborted() {
				return audio.ErrAborted
			}
			return err
		}

		s.mu.Lock()
		s.clock.Add(n)
		s.mu.Unlock()
		data = data[n:]
	}
	return nil
}

// Abort makes pending and further writes return audio.ErrAborted until
// Flush or Open.
func (s *HTTPSink) Abort() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aborted = true
	s.cond.Broadcast()
}

// Flush tells the renderer to drop queued audio and restarts the clock at ms.
func (s *HTTPSink) Flush(ms int) {
	s.mu.Lock()
	s.aborted = false
	s.clock.Reset(s.format, ms)
	client := s.client
	s.cond.Broadcast()
	s.mu.Unlock()

	if client != nil {
		if err := client.SendFrame(FrameTypeFlush, EncodeMillis(ms)); err != nil {
			log.Printf("⚠️  Failed to send flush: %v", err)
		}
	}
}

// Pause holds writes and forwards the state to the renderer.
func (s *HTTPSink) Pause(paused bool) {
	s.mu.Lock()
	s.paused = paused
	client := s.client
	s.cond.Broadcast()
	s.mu.Unlock()

	if client == nil {
		return
	}
	flag := byte(0)
	if paused {
		flag = 1
	}
	if err := client.SendFrame(FrameTypePause, []byte{flag}); err != nil {
		log.Printf("⚠️  Failed to send pause: %v", err)
	}
}

// WrittenTime returns the position of the audio sent so far.
func (s *HTTPSink) WrittenTime() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clock.Millis()
}

// PlayedTime returns the last position the renderer reported.
func (s *HTTPSink) PlayedTime() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.played
}

// Close ends the stream and disconnects.
func (s *HTTPSink) Close() error {
	s.mu.Lock()
	client := s.client
	wasOpen := s.open
	s.client = nil
	s.open = false
	s.cond.Broadcast()
	s.mu.Unlock()

	if client == nil {
		return nil
	}

	var err error
	if wasOpen {
		err = client.SendFrame(FrameTypeEnd, nil)
	}
	client.Disconnect()
	return err
}

func (s *HTTPSink) isAborted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.aborted || !s.open
}

// handleIncomingFrame processes frames sent by the renderer
func (s *HTTPSink) handleIncomingFrame(frame *Frame) error {
	switch frame.Type {
	case FrameTypeStatus:
		ms, err := DecodeMillis(frame.Data)
		if err != nil {
			return err
		}
		s.mu.Lock()
		s.played = ms
		s.mu.Unlock()

	case FrameTypeHeartbeat:

	case FrameTypeError:
		log.Printf("❌ Renderer error: %s", string(frame.Data))
		s.mu.Lock()
		s.remoteErr = fmt.Errorf("renderer: %s", string(frame.Data))
		s.cond.Broadcast()
		s.mu.Unlock()

	default:
		log.Printf("⚠️  Unexpected frame type 0x%02x from renderer", byte(frame.Type))
	}
	return nil
}

var littleEndianHost = binary.NativeEndian.Uint16([]byte{1, 0}) == 1

// toLittleEndian returns data with 16-bit samples in little-endian order,
// copying only on big-endian hosts.
func toLittleEndian(data []byte) []byte {
	if littleEndianHost {
		return data
	}
	out := make([]byte, len(data))
	for i := 0; i+1 < len(data); i += 2 {
		out[i], out[i+1] = data[i+1], data[i]
	}
	return out
}
