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
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

// oto allows a single context per process, so it is shared by every OtoSink
// and pinned to the first format it was created with.
var (
	otoMu      sync.Mutex
	otoContext *oto.Context
	otoFormat  Format
)

func sharedOtoContext(format Format) (*oto.Context, error) {
	otoMu.Lock()
	defer otoMu.Unlock()

	if otoContext != nil {
		if format != otoFormat {
			return nil, fmt.Errorf("%w: oto context already running at %+v", ErrDeviceRejected, otoFormat)
		}
		return otoContext, nil
	}

	otoFmt := oto.FormatSignedInt16LE
	if format.Encoding == EncodingU8 {
		otoFmt = oto.FormatUnsignedInt8
	}

	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   format.Rate,
		ChannelCount: format.Channels,
		Format:       otoFmt,
		BufferSize:   50 * time.Millisecond,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceRejected, err)
	}
	<-ready

	otoContext = ctx
	otoFormat = format
	return ctx, nil
}

// OtoSink implements Sink on top of oto's pull-model player. Writes go into
// a bounded queue that oto drains from its own goroutine.
type OtoSink struct {
	mu     sync.Mutex
	player *oto.Player
	queue  *pcmQueue
	format Format
	clock  WrittenClock
}

// NewOtoSink creates an oto-backed sink.
func NewOtoSink() *OtoSink {
	return &OtoSink{}
}

// Open attaches a player to the shared oto context.
func (s *OtoSink) Open(format Format) error {
	if err := format.Validate(); err != nil {
		return err
	}

	ctx, err := sharedOtoContext(format)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.player != nil {
		_ = s.player.Close()
	}

	// Queue a quarter second ahead of the device.
	s.queue = newPCMQueue(int(format.BytesPerMillisecond()*250), format.Encoding)
	s.format = format
	s.clock.Reset(format, 0)
	s.player = ctx.NewPlayer(s.queue)
	s.player.Play()
	return nil
}

// Write queues data, blocking while the queue is full.
func (s *OtoSink) Write(data []byte) error {
	s.mu.Lock()
	queue := s.queue
	s.mu.Unlock()

	if queue == nil {
		return ErrNotOpen
	}

	n, err := queue.Write(data)

	s.mu.Lock()
	s.clock.Add(n)
	s.mu.Unlock()
	return err
}

// Abort releases a blocked Write.
func (s *OtoSink) Abort() {
	s.mu.Lock()
	queue := s.queue
	s.mu.Unlock()

	if queue != nil {
		queue.abort()
	}
}

// Flush drops queued audio.
func (s *OtoSink) Flush(ms int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.queue != nil {
		s.queue.reset()
	}
	s.clock.Reset(s.format, ms)
}

// Pause pauses or resumes the oto player.
func (s *OtoSink) Pause(paused bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.player == nil {
		return
	}
	s.queue.setPaused(paused)
	if paused {
		s.player.Pause()
	} else {
		s.player.Play()
	}
}

// WrittenTime returns the position of the audio queued so far.
func (s *OtoSink) WrittenTime() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clock.Millis()
}

// Close closes the player. The shared context stays alive.
func (s *OtoSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.queue != nil {
		s.queue.abort()
	}
	if s.player == nil {
		return nil
	}
	err := s.player.Close()
	s.player = nil
	return err
}

// pcmQueue is a bounded byte FIFO. Write blocks while the queue is full;
// Read never blocks and pads with silence so the device keeps running.
type pcmQueue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	data    []byte
	limit   int
	silence byte
	aborted bool
	paused  bool
}

func newPCMQueue(limit int, encoding Encoding) *pcmQueue {
	if limit <= 0 {
		limit = 4096
	}
	q := &pcmQueue{limit: limit}
	if encoding == EncodingU8 {
		q.silence = 0x80
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Write returns the number of bytes queued before an abort, if any.
func (q *pcmQueue) Write(p []byte) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	written := 0
	for len(p) > 0 {
		for !q.aborted && len(q.data) >= q.limit {
			q.cond.Wait()
		}
		if q.aborted {
			return written, ErrAborted
		}

		n := q.limit - len(q.data)
		if n > len(p) {
			n = len(p)
		}
		q.data = append(q.data, p[:n]...)
		p = p[n:]
		written += n
	}
	return written, nil
}

// Read satisfies io.Reader for oto.
func (q *pcmQueue) Read(p []byte) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := 0
	if !q.paused {
		n = copy(p, q.data)
		q.data = q.data[n:]
	}
	for i := n; i < len(p); i++ {
		p[i] = q.silence
	}
	q.cond.Broadcast()
	return len(p), nil
}

func (q *pcmQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.data)
}

func (q *pcmQueue) abort() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.aborted = true
	q.cond.Broadcast()
}

func (q *pcmQueue) reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.data = q.data[:0]
	q.aborted = false
	q.cond.Broadcast()
}

func (q *pcmQueue) setPaused(paused bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.paused = paused
}
