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

// MockSink implements Sink for testing without hardware dependencies
type MockSink struct {
	mu                 sync.Mutex
	cond               *sync.Cond
	format             Format
	open               bool
	openError          error
	writeError         error
	simulateRealTiming bool
	blockWrites        bool
	blockedWriters     int
	aborted            bool
	paused             bool
	closed             bool
	clock              WrittenClock
	bytesWritten       int64
	writeCount         int
	abortCount         int
	flushes            []int
	pauses             []bool
	opened             []Format
}

// NewMockSink creates a new mock sink
func NewMockSink() *MockSink {
	m := &MockSink{}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// SetOpenError configures the sink to return an error on Open()
func (m *MockSink) SetOpenError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.openError = err
}

// SetWriteError configures the sink to return an error on Write()
func (m *MockSink) SetWriteError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeError = err
}

// SetSimulateRealTiming makes Write sleep for the duration of the audio
func (m *MockSink) SetSimulateRealTiming(simulate bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.simulateRealTiming = simulate
}

// SetBlockWrites makes Write block until Abort, Close or SetBlockWrites(false)
func (m *MockSink) SetBlockWrites(block bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blockWrites = block
	m.cond.Broadcast()
}

// Open records the format
func (m *MockSink) Open(format Format) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.openError != nil {
		return m.openError
	}
	if err := format.Validate(); err != nil {
		return err
	}

	m.format = format
	m.open = true
	m.closed = false
	m.aborted = false
	m.paused = false
	m.opened = append(m.opened, format)
	m.clock.Reset(format, 0)
	return nil
}

// Write records the audio data
func (m *MockSink) Write(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.writeError != nil {
		return m.writeError
	}
	if !m.open {
		return ErrNotOpen
	}

	m.blockedWriters++
	for (m.blockWrites || m.paused) && !m.aborted && m.open {
		m.cond.Wait()
	}
	m.blockedWriters--

	if m.aborted || !m.open {
		return ErrAborted
	}

	m.bytesWritten += int64(len(data))
	m.writeCount++
	m.clock.Add(len(data))

	// Simulate real timing if enabled
	if m.simulateRealTiming {
		duration := time.Duration(float64(len(data)) / m.format.BytesPerMillisecond() * float64(time.Millisecond))
		m.mu.Unlock()
		time.Sleep(duration)
		m.mu.Lock()
	}

	return nil
}

// Abort releases blocked writers
func (m *MockSink) Abort() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.aborted = true
	m.abortCount++
	m.cond.Broadcast()
}

// Flush clears the abort state and restarts the clock
func (m *MockSink) Flush(ms int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.aborted = false
	m.flushes = append(m.flushes, ms)
	m.clock.Reset(m.format, ms)
	m.cond.Broadcast()
}

// Pause records the pause state
func (m *MockSink) Pause(paused bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paused = paused
	m.pauses = append(m.pauses, paused)
	m.cond.Broadcast()
}

// WrittenTime returns the clock position
func (m *MockSink) WrittenTime() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clock.Millis()
}

// Close closes the mock sink
func (m *MockSink) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.open = false
	m.closed = true
	m.cond.Broadcast()
	return nil
}

// BlockedWriters returns how many Write calls are currently waiting
func (m *MockSink) BlockedWriters() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.blockedWriters
}

// BytesWritten returns the total bytes accepted
func (m *MockSink) BytesWritten() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bytesWritten
}

// WriteCount returns how many writes were accepted
func (m *MockSink) WriteCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writeCount
}

// AbortCount returns how many times Abort was called
func (m *MockSink) AbortCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.abortCount
}

// Flushes returns every position passed to Flush
func (m *MockSink) Flushes() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]int, len(m.flushes))
	copy(result, m.flushes)
	return result
}

// Pauses returns every value passed to Pause
func (m *MockSink) Pauses() []bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]bool, len(m.pauses))
	copy(result, m.pauses)
	return result
}

// OpenedFormats returns every format passed to a successful Open
func (m *MockSink) OpenedFormats() []Format {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]Format, len(m.opened))
	copy(result, m.opened)
	return result
}

// IsOpen reports whether the sink is open
func (m *MockSink) IsOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.open
}

// IsClosed reports whether Close was called after the last Open
func (m *MockSink) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
