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

package audio

import (
	"encoding/binary"
	"fmt"
	"log"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// DefaultFramesPerBuffer is the PortAudio buffer size in frames.
const DefaultFramesPerBuffer = 1024

// PortAudioSink implements Sink with a blocking PortAudio output stream.
// Incoming PCM is collected into a fixed-size stream buffer; a full buffer
// is handed to Pa_WriteStream, which blocks until the device takes it.
type PortAudioSink struct {
	mu              sync.Mutex
	cond            *sync.Cond
	initialized     bool
	stream          *portaudio.Stream
	active          bool
	format          Format
	framesPerBuffer int
	buf16           []int16
	buf8            []uint8
	fill            int // samples buffered in buf16/buf8
	aborted         bool
	paused          bool
	clock           WrittenClock
}

// NewPortAudioSink creates a sink using the default output device.
func NewPortAudioSink(framesPerBuffer int) *PortAudioSink {
	if framesPerBuffer <= 0 {
		framesPerBuffer = DefaultFramesPerBuffer
	}
	s := &PortAudioSink{framesPerBuffer: framesPerBuffer}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Open initializes PortAudio if needed and opens the default output stream.
func (s *PortAudioSink) Open(format Format) error {
	if err := format.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		if err := portaudio.Initialize(); err != nil {
			return fmt.Errorf("failed to initialize PortAudio: %w", err)
		}
		s.initialized = true
	}

	if s.stream != nil {
		s.closeStreamLocked()
	}

	samples := s.framesPerBuffer * format.Channels
	var buffer interface{}
	if format.Encoding == EncodingU8 {
		s.buf8 = make([]uint8, samples)
		s.buf16 = nil
		buffer = s.buf8
	} else {
		s.buf16 = make([]int16, samples)
		s.buf8 = nil
		buffer = s.buf16
	}

	stream, err := portaudio.OpenDefaultStream(
		0,               // input channels (none for output stream)
		format.Channels, // output channels
		float64(format.Rate),
		s.framesPerBuffer,
		buffer,
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeviceRejected, err)
	}

	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return fmt.Errorf("%w: failed to start stream: %v", ErrDeviceRejected, err)
	}

	s.stream = stream
	s.active = true
	s.format = format
	s.fill = 0
	s.aborted = false
	s.paused = false
	s.clock.Reset(format, 0)
	return nil
}

// Write converts data into the stream buffer and writes every full buffer.
func (s *PortAudioSink) Write(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stream == nil {
		return ErrNotOpen
	}

	sampleSize := s.format.BytesPerSample()
	capacity := s.framesPerBuffer * s.format.Channels

	for len(data) >= sampleSize {
		for s.paused && !s.aborted {
			s.cond.Wait()
		}
		if s.aborted {
			return ErrAborted
		}

		n := 0
		for s.fill < capacity && n+sampleSize <= len(data) {
			if sampleSize == 1 {
				s.buf8[s.fill] = data[n]
			} else {
				s.buf16[s.fill] = int16(binary.NativeEndian.Uint16(data[n:]))
			}
			s.fill++
			n += sampleSize
		}
		data = data[n:]
		s.clock.Add(n)

		if s.fill == capacity {
			if err := s.writeBufferLocked(); err != nil {
				return err
			}
		}
	}
	return nil
}

// writeBufferLocked releases the lock around the blocking stream write so
// Abort can run while the device is busy.
func (s *PortAudioSink) writeBufferLocked() error {
	stream := s.stream
	s.mu.Unlock()
	err := stream.Write()
	s.mu.Lock()

	s.fill = 0
	if s.aborted {
		return ErrAborted
	}
	if err != nil && err != portaudio.OutputUnderflowed {
		return fmt.Errorf("failed to write audio: %w", err)
	}
	return nil
}

// Abort stops the stream immediately, which unblocks a pending Write.
func (s *PortAudioSink) Abort() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.aborted = true
	if s.stream != nil && s.active {
		if err := s.stream.Abort(); err != nil {
			log.Printf("⚠️ Failed to abort PortAudio stream: %v", err)
		}
		s.active = false
	}
	s.cond.Broadcast()
}

// Flush drops buffered samples and restarts the stream if it was aborted.
func (s *PortAudioSink) Flush(ms int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.fill = 0
	s.aborted = false
	s.clock.Reset(s.format, ms)

	if s.stream != nil && !s.active {
		if err := s.stream.Start(); err != nil {
			log.Printf("⚠️ Failed to restart PortAudio stream: %v", err)
			return
		}
		s.active = true
	}
	s.cond.Broadcast()
}

// Pause holds writers until resumed.
func (s *PortAudioSink) Pause(paused bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = paused
	s.cond.Broadcast()
}

// WrittenTime returns the position of the audio accepted so far.
func (s *PortAudioSink) WrittenTime() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clock.Millis()
}

// Close writes any partial buffer padded with silence, then closes the
// stream and terminates PortAudio.
func (s *PortAudioSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stream != nil && s.active && !s.aborted && s.fill > 0 {
		capacity := s.framesPerBuffer * s.format.Channels
		for i := s.fill; i < capacity; i++ {
			if s.buf8 != nil {
				s.buf8[i] = 0x80
			} else {
				s.buf16[i] = 0
			}
		}
		if err := s.stream.Write(); err != nil {
			log.Printf("⚠️ Failed to drain PortAudio stream: %v", err)
		}
		s.fill = 0
	}

	s.closeStreamLocked()

	if !s.initialized {
		return nil
	}
	s.initialized = false
	return portaudio.Terminate()
}

func (s *PortAudioSink) closeStreamLocked() {
	if s.stream == nil {
		return
	}
	if s.active {
		if err := s.stream.Stop(); err != nil {
			log.Printf("⚠️ Failed to stop PortAudio stream: %v", err)
		}
		s.active = false
	}
	if err := s.stream.Close(); err != nil {
		log.Printf("⚠️ Failed to close PortAudio stream: %v", err)
	}
	s.stream = nil
	s.aborted = true
	s.cond.Broadcast()
}
