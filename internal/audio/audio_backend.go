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
	"errors"
	"fmt"
)

var (
	// ErrDeviceRejected is returned by Open when the output cannot play the format.
	ErrDeviceRejected = errors.New("audio device rejected format")

	// ErrAborted is returned by Write after Abort, until the next Flush or Open.
	ErrAborted = errors.New("audio write aborted")

	// ErrNotOpen is returned by Write before Open.
	ErrNotOpen = errors.New("audio sink not open")
)

// Encoding is the PCM sample layout.
type Encoding int

const (
	// EncodingS16NE is signed 16-bit native endian.
	EncodingS16NE Encoding = iota
	// EncodingU8 is unsigned 8-bit.
	EncodingU8
)

func (e Encoding) String() string {
	switch e {
	case EncodingS16NE:
		return "s16ne"
	case EncodingU8:
		return "u8"
	default:
		return fmt.Sprintf("encoding(%d)", int(e))
	}
}

// Format describes the PCM stream handed to a sink.
type Format struct {
	Encoding Encoding
	Rate     int
	Channels int
}

// BytesPerSample returns the size of one sample of one channel.
func (f Format) BytesPerSample() int {
	if f.Encoding == EncodingU8 {
		return 1
	}
	return 2
}

// BytesPerMillisecond returns how many bytes one millisecond of audio takes.
func (f Format) BytesPerMillisecond() float64 {
	return float64(f.Rate*f.Channels*f.BytesPerSample()) / 1000.0
}

// Validate checks that the format is playable at all.
func (f Format) Validate() error {
	if f.Encoding != EncodingS16NE && f.Encoding != EncodingU8 {
		return fmt.Errorf("%w: unknown encoding %s", ErrDeviceRejected, f.Encoding)
	}
	if f.Rate <= 0 {
		return fmt.Errorf("%w: sample rate %d", ErrDeviceRejected, f.Rate)
	}
	if f.Channels != 1 && f.Channels != 2 {
		return fmt.Errorf("%w: %d channels", ErrDeviceRejected, f.Channels)
	}
	return nil
}

// Sink is the audio output the playback loop writes to.
// This enables dependency injection and makes testing hardware-independent.
type Sink interface {
	// Open prepares the output for format.
	Open(format Format) error

	// Write blocks until data has been accepted by the output.
	Write(data []byte) error

	// Abort releases a pending Write. Later writes fail with ErrAborted
	// until Flush is called.
	Abort()

	// Flush drops buffered audio and restarts the clock at ms.
	Flush(ms int)

	// Pause holds or resumes output.
	Pause(paused bool)

	// WrittenTime returns the position, in ms, of the audio written so far.
	WrittenTime() int

	// Close releases the output.
	Close() error
}

// WrittenClock converts a byte count into a millisecond position. Sinks
// use it to implement WrittenTime. Callers provide their own locking.
type WrittenClock struct {
	base           int
	bytes          int64
	bytesPerSecond int64
}

// Reset restarts the clock at ms for format.
func (c *WrittenClock) Reset(format Format, ms int) {
	c.base = ms
	c.bytes = 0
	c.bytesPerSecond = int64(format.Rate * format.Channels * format.BytesPerSample())
}

// Add counts n bytes of written PCM.
func (c *WrittenClock) Add(n int) {
	c.bytes += int64(n)
}

// Millis returns the position reached.
func (c *WrittenClock) Millis() int {
	if c.bytesPerSecond <= 0 {
		return c.base
	}
	return c.base + int(c.bytes*1000/c.bytesPerSecond)
}
