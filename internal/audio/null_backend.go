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
	"sync"
	"time"
)

// NullSink discards audio. With realtime set, writes take as long as the
// audio they carry would take to play, so playback proceeds at speed.
type NullSink struct {
	mu       sync.Mutex
	cond     *sync.Cond
	realtime bool
	format   Format
	open     bool
	aborted  bool
	paused   bool
	clock    WrittenClock
}

// NewNullSink creates a discarding sink.
func NewNullSink(realtime bool) *NullSink {
	s := &NullSink{realtime: realtime}
	s.cond = sync.NewCond(&s.mu)
	return s
}

func (s *NullSink) Open(format Format) error {
	if err := format.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.format = format
	s.open = true
	s.aborted = false
	s.paused = false
	s.clock.Reset(format, 0)
	return nil
}

func (s *NullSink) Write(data []byte) error {
	s.mu.Lock()
	for s.paused && !s.aborted && s.open {
		s.cond.Wait()
	}
	if !s.open {
		s.mu.Unlock()
		return ErrNotOpen
	}
	if s.aborted {
		s.mu.Unlock()
		return ErrAborted
	}
	s.clock.Add(len(data))
	bytesPerMs := s.format.BytesPerMillisecond()
	s.mu.Unlock()

	if s.realtime && bytesPerMs > 0 {
		time.Sleep(time.Duration(float64(len(data)) / bytesPerMs * float64(time.Millisecond)))
	}
	return nil
}

func (s *NullSink) Abort() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aborted = true
	s.cond.Broadcast()
}

func (s *NullSink) Flush(ms int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aborted = false
	s.clock.Reset(s.format, ms)
	s.cond.Broadcast()
}

func (s *NullSink) Pause(paused bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = paused
	s.cond.Broadcast()
}

func (s *NullSink) WrittenTime() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clock.Millis()
}

func (s *NullSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = false
	s.cond.Broadcast()
	return nil
}
