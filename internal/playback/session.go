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

// Package playback runs one module playback and coordinates stop, seek and
// pause requests coming from other goroutines.
package playback

import (
	"errors"
	"log"
	"sync"

	"github.com/loqalabs/loqa-xmp-go/internal/audio"
	"github.com/loqalabs/loqa-xmp-go/internal/decoder"
)

// NoStop disables the stop-time boundary.
const NoStop = -1

// noSeek marks the seek field empty.
const noSeek = -1

// State is the externally visible phase of a session.
type State int

const (
	StateRunning State = iota
	StateSeekPending
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateSeekPending:
		return "seek-pending"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Session owns the shared request state for one playback. The decoder
// belongs to the playback goroutine; the control side only touches it
// through Stop, inside the critical section.
type Session struct {
	mu      sync.Mutex
	cond    *sync.Cond
	dec     decoder.Decoder
	sink    audio.Sink
	stopAt  int
	stopped bool // stop requested or loop finished
	seekTo  int
	seekSeq uint64 // seeks requested
	seekAck uint64 // seeks applied by the loop
	exited  bool
	err     error
	done    chan struct{}
}

// NewSession creates a session for a started decoder. startMs > 0 is
// queued as an initial seek; stopMs >= 0 ends playback once the sink has
// written that much.
func NewSession(dec decoder.Decoder, sink audio.Sink, startMs, stopMs int) *Session {
	s := &Session{
		dec:    dec,
		sink:   sink,
		stopAt: stopMs,
		seekTo: noSeek,
		done:   make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)

	if startMs > 0 {
		s.seekTo = startMs
		s.seekSeq = 1
	}
	return s
}

// Start runs the playback loop in its own goroutine.
func (s *Session) Start() {
	go s.Run()
}

// Run is the playback loop. It returns once the module ended, the stop
// boundary was reached, Stop was called or the sink failed, after the
// decoder resources have been released.
func (s *Session) Run() {
	defer close(s.done)

	var runErr error
	for {
		if s.stopAt >= 0 && s.sink.WrittenTime() >= s.stopAt {
			break
		}

		s.mu.Lock()
		if s.stopped {
			s.mu.Unlock()
			break
		}
		if s.seekTo != noSeek {
			target := s.seekTo
			s.dec.SeekTime(target)
			s.sink.Flush(target)
			s.seekTo = noSeek
			s.seekAck = s.seekSeq
			s.cond.Broadcast()
		}
		s.mu.Unlock()

		frame, err := s.dec.PlayFrame()
		if err != nil {
			if errors.Is(err, decoder.ErrEnd) && s.seekPending() {
				// A seek that arrived during the last frame revives the module.
				continue
			}
			if !errors.Is(err, decoder.ErrEnd) {
				runErr = err
			}
			break
		}

		if len(frame) == 0 || s.interrupted() {
			continue
		}

		if err := s.sink.Write(frame); err != nil {
			if errors.Is(err, audio.ErrAborted) && s.interrupted() {
				continue
			}
			if !errors.Is(err, audio.ErrAborted) {
				runErr = err
			}
			// An abort nobody asked for means the output went away.
			break
		}
	}

	s.mu.Lock()
	s.stopped = true
	s.err = runErr
	s.cond.Broadcast() // wake up any waiting request
	s.mu.Unlock()

	s.dec.End()
	s.dec.Release()
	s.dec.Free()

	s.mu.Lock()
	s.exited = true
	s.mu.Unlock()

	if runErr != nil {
		log.Printf("❌ Playback ended with error: %v", runErr)
	}
}

// Stop requests the loop to finish. It is idempotent and does not wait.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	s.dec.Stop()
	s.stopped = true
	s.sink.Abort()
	s.cond.Broadcast()
}

// Seek asks the loop to jump to ms and blocks until it has done so. It
// returns false when the session stopped before the seek was applied.
// Callers must not issue concurrent seeks.
func (s *Session) Seek(ms int) bool {
	if ms < 0 {
		ms = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return false
	}

	s.seekSeq++
	seq := s.seekSeq
	s.seekTo = ms
	s.sink.Abort()
	s.cond.Broadcast()

	for s.seekAck < seq && !s.stopped {
		s.cond.Wait()
	}
	return s.seekAck >= seq
}

// Pause holds or resumes output while the session is live.
func (s *Session) Pause(paused bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.stopped {
		s.sink.Pause(paused)
	}
}

// SetOptions changes player options on the live decoder. It reports
// false once the session has stopped.
func (s *Session) SetOptions(opts decoder.PlayerOptions) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return false, nil
	}
	return true, s.dec.Configure(opts)
}

// State reports the current phase.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.exited:
		return StateStopped
	case s.stopped:
		return StateStopping
	case s.seekTo != noSeek:
		return StateSeekPending
	default:
		return StateRunning
	}
}

// Done is closed once the loop has released the decoder.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the loop finishes and returns its error, if any.
func (s *Session) Wait() error {
	<-s.done
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Session) seekPending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seekTo != noSeek && !s.stopped
}

// interrupted reports a stop or seek that arrived during the last render;
// the rendered frame is stale in both cases.
func (s *Session) interrupted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped || s.seekTo != noSeek
}
