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
	"os"
	"sync"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WavSink implements Sink by rendering to a WAV file as fast as the decoder
// produces frames. Abort and Pause only affect the write state.
type WavSink struct {
	mu      sync.Mutex
	path    string
	file    *os.File
	encoder *wav.Encoder
	format  Format
	buffer  goaudio.IntBuffer
	aborted bool
	paused  bool
	clock   WrittenClock
}

// NewWavSink creates a sink that writes to path on Open.
func NewWavSink(path string) *WavSink {
	return &WavSink{path: path}
}

// Open creates the output file and the WAV encoder.
func (s *WavSink) Open(format Format) error {
	if err := format.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.encoder != nil {
		if err := s.closeLocked(); err != nil {
			return err
		}
	}

	f, err := os.Create(s.path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeviceRejected, err)
	}

	bitDepth := format.BytesPerSample() * 8
	s.file = f
	s.encoder = wav.NewEncoder(f, format.Rate, bitDepth, format.Channels, 1) // 1 = PCM
	s.format = format
	s.buffer = goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: format.Channels, SampleRate: format.Rate},
		SourceBitDepth: bitDepth,
	}
	s.aborted = false
	s.paused = false
	s.clock.Reset(format, 0)
	return nil
}

// Write encodes data into the file.
func (s *WavSink) Write(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.encoder == nil {
		return ErrNotOpen
	}
	if s.aborted {
		return ErrAborted
	}

	sampleSize := s.format.BytesPerSample()
	count := len(data) / sampleSize
	if cap(s.buffer.Data) < count {
		s.buffer.Data = make([]int, count)
	}
	s.buffer.Data = s.buffer.Data[:count]

	for i := 0; i < count; i++ {
		if sampleSize == 1 {
			s.buffer.Data[i] = int(data[i])
		} else {
			s.buffer.Data[i] = int(int16(binary.NativeEndian.Uint16(data[i*2:])))
		}
	}

	if err := s.encoder.Write(&s.buffer); err != nil {
		return fmt.Errorf("failed to encode wav: %w", err)
	}
	s.clock.Add(count * sampleSize)
	return nil
}

// Abort makes further writes fail until Flush.
func (s *WavSink) Abort() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aborted = true
}

// Flush resets the clock; audio already encoded stays in the file.
func (s *WavSink) Flush(ms int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aborted = false
	s.clock.Reset(s.format, ms)
}

// Pause is recorded but has no effect on file output.
func (s *WavSink) Pause(paused bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = paused
}

// WrittenTime returns the position of the audio encoded so far.
func (s *WavSink) WrittenTime() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clock.Millis()
}

// Close finalizes the WAV header and closes the file.
func (s *WavSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeLocked()
}

func (s *WavSink) closeLocked() error {
	if s.encoder == nil {
		return nil
	}

	encErr := s.encoder.Close()
	fileErr := s.file.Close()
	s.encoder = nil
	s.file = nil
	s.aborted = true

	if encErr != nil {
		return fmt.Errorf("failed to finalize wav: %w", encErr)
	}
	return fileErr
}
