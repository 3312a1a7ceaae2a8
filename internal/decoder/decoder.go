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

// Package decoder defines the boundary between the plugin and the module
// decoding library. Everything past this interface (format parsing, mixing,
// resampling) belongs to the library.
package decoder

import "errors"

var (
	// ErrFileNotFound is returned when the module file cannot be opened for reading.
	ErrFileNotFound = errors.New("module file not found or unreadable")

	// ErrUnrecognizedFormat is returned when the library rejects the file content.
	ErrUnrecognizedFormat = errors.New("unrecognized module format")

	// ErrEnd is returned by PlayFrame once the module has finished playing.
	ErrEnd = errors.New("end of module")

	// ErrState is returned when a call is made in the wrong player state.
	ErrState = errors.New("invalid player state")
)

// Library opens decoder contexts and sniffs module files.
type Library interface {
	// Test reports whether path holds a module the library can load.
	// It returns nil for a recognized module.
	Test(path string) error

	// NewDecoder creates an independent decoder context.
	NewDecoder() (Decoder, error)
}

// Decoder is one library context. Calls follow the sequence
// Load -> Start -> {PlayFrame, SeekTime}* -> End -> Release -> Free.
type Decoder interface {
	// SetSampleLoading toggles loading of sample data. Metadata probes
	// disable it.
	SetSampleLoading(enabled bool)

	Load(path string) error
	ModuleInfo() ModuleInfo
	FrameInfo() FrameInfo

	// Start prepares the player to render in the given output format.
	Start(format OutputFormat) error

	// Configure applies player options. It is valid only after Start and
	// may be called while another goroutine renders frames.
	Configure(opts PlayerOptions) error

	// PlayFrame renders the next frame and returns its PCM data. The slice
	// is only valid until the next call. ErrEnd marks the end of the module.
	PlayFrame() ([]byte, error)

	SeekTime(ms int)

	// Stop asks the player to finish. It is the one call that may come from
	// a goroutine other than the one rendering frames.
	Stop()

	End()
	Release()
	Free()
}

// ModuleInfo describes a loaded module.
type ModuleInfo struct {
	Name     string
	Type     string
	Channels int
}

// FrameInfo reports player position.
type FrameInfo struct {
	Time      int // ms
	TotalTime int // ms
}

// OutputFormat is the PCM layout requested from the player.
type OutputFormat struct {
	Rate int
	Bits int // 8 (unsigned) or 16 (signed native endian)
	Mono bool
}

// Channels returns the number of interleaved channels.
func (f OutputFormat) Channels() int {
	if f.Mono {
		return 1
	}
	return 2
}

// BytesFor returns how much PCM ms milliseconds of audio take.
func (f OutputFormat) BytesFor(ms int) int {
	return f.Rate * f.Channels() * (f.Bits / 8) * ms / 1000
}

// PlayerOptions are the mixer settings applied after Start.
type PlayerOptions struct {
	Interpolation bool // spline when set, nearest neighbour otherwise
	Filter        bool // lowpass DSP
	PanAmplitude  int  // percent
	FixLoops      bool
	ModRange      bool
	Convert8Bit   bool
}

// TrackMetadata is the format-agnostic tuple handed to the host.
type TrackMetadata struct {
	Path     string
	Title    string
	Format   string
	Duration int // ms
	Channels int
}
