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

package decoder

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"
)

// MockLibrary implements Library without the native library. It recognizes
// files by their tracker signatures so tests can exercise content sniffing
// with real files on disk.
type MockLibrary struct {
	mu            sync.Mutex
	frameMillis   int
	duration      int
	renderDelay   time.Duration
	loadError     error
	newDecoderErr error
	decoders      []*MockDecoder
}

// NewMockLibrary creates a mock library rendering 20ms frames of one-minute modules.
func NewMockLibrary() *MockLibrary {
	return &MockLibrary{
		frameMillis: 20,
		duration:    60000,
	}
}

// SetDuration sets the total time reported for every module.
func (m *MockLibrary) SetDuration(ms int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.duration = ms
}

// SetFrameMillis sets how much audio a single PlayFrame renders.
func (m *MockLibrary) SetFrameMillis(ms int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frameMillis = ms
}

// SetRenderDelay makes PlayFrame sleep to simulate mixing work.
func (m *MockLibrary) SetRenderDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.renderDelay = d
}

// SetLoadError makes every Load fail with err.
func (m *MockLibrary) SetLoadError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadError = err
}

// SetNewDecoderError makes NewDecoder fail with err.
func (m *MockLibrary) SetNewDecoderError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.newDecoderErr = err
}

// Decoders returns every context created so far.
func (m *MockLibrary) Decoders() []*MockDecoder {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]*MockDecoder, len(m.decoders))
	copy(result, m.decoders)
	return result
}

// Test sniffs the file at path.
func (m *MockLibrary) Test(path string) error {
	_, err := sniffModule(path)
	return err
}

// NewDecoder creates a mock decoder context.
func (m *MockLibrary) NewDecoder() (Decoder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.newDecoderErr != nil {
		return nil, m.newDecoderErr
	}

	d := &MockDecoder{
		library:       m,
		sampleLoading: true,
		frameMillis:   m.frameMillis,
		duration:      m.duration,
		renderDelay:   m.renderDelay,
		loadError:     m.loadError,
	}
	m.decoders = append(m.decoders, d)
	return d, nil
}

// MockDecoder implements Decoder by rendering silence at the requested format.
type MockDecoder struct {
	mu            sync.Mutex
	library       *MockLibrary
	info          ModuleInfo
	sampleLoading bool
	frameMillis   int
	duration      int
	renderDelay   time.Duration
	loadError     error
	format        OutputFormat
	options       PlayerOptions
	position      int
	loaded        bool
	started       bool
	stopRequested bool
	ended         bool
	released      bool
	freed         bool
	seeks         []int
	frames        int
	buffer        []byte
}

// SetSampleLoading records whether samples would be loaded.
func (d *MockDecoder) SetSampleLoading(enabled bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sampleLoading = enabled
}

// SampleLoading reports the last SetSampleLoading value.
func (d *MockDecoder) SampleLoading() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sampleLoading
}

// Load sniffs the file and marks the module loaded.
func (d *MockDecoder) Load(path string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.loadError != nil {
		return d.loadError
	}

	info, err := sniffModule(path)
	if err != nil {
		return err
	}

	d.info = info
	d.loaded = true
	d.released = false
	d.position = 0
	return nil
}

// ModuleInfo returns the sniffed module description.
func (d *MockDecoder) ModuleInfo() ModuleInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.info
}

// FrameInfo returns the current position.
func (d *MockDecoder) FrameInfo() FrameInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.loaded {
		return FrameInfo{}
	}
	return FrameInfo{Time: d.position, TotalTime: d.duration}
}

// Start prepares rendering in format.
func (d *MockDecoder) Start(format OutputFormat) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.loaded {
		return ErrState
	}
	if format.Rate <= 0 || (format.Bits != 8 && format.Bits != 16) {
		return fmt.Errorf("invalid output format %+v", format)
	}

	d.format = format
	d.started = true
	d.stopRequested = false
	return nil
}

// Configure records player options.
func (d *MockDecoder) Configure(opts PlayerOptions) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.started {
		return ErrState
	}
	d.options = opts
	return nil
}

// Options returns the last options passed to Configure.
func (d *MockDecoder) Options() PlayerOptions {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.options
}

// PlayFrame renders one frame of silence and advances the position.
func (d *MockDecoder) PlayFrame() ([]byte, error) {
	d.mu.Lock()
	if !d.started {
		d.mu.Unlock()
		return nil, ErrState
	}
	if d.stopRequested || d.position >= d.duration {
		d.mu.Unlock()
		return nil, ErrEnd
	}

	size := d.format.BytesFor(d.frameMillis)
	if cap(d.buffer) < size {
		d.buffer = make([]byte, size)
	}
	d.buffer = d.buffer[:size]
	silence := byte(0)
	if d.format.Bits == 8 {
		silence = 0x80
	}
	for i := range d.buffer {
		d.buffer[i] = silence
	}

	d.position += d.frameMillis
	d.frames++
	delay := d.renderDelay
	buf := d.buffer
	d.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	return buf, nil
}

// SeekTime moves the position, clamped to the module length.
func (d *MockDecoder) SeekTime(ms int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if ms < 0 {
		ms = 0
	}
	if ms > d.duration {
		ms = d.duration
	}
	d.position = ms
	d.seeks = append(d.seeks, ms)
}

// Seeks returns every position passed to SeekTime.
func (d *MockDecoder) Seeks() []int {
	d.mu.Lock()
	defer d.mu.Unlock()
	result := make([]int, len(d.seeks))
	copy(result, d.seeks)
	return result
}

// Stop makes the next PlayFrame return ErrEnd.
func (d *MockDecoder) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopRequested = true
}

// End finishes the player.
func (d *MockDecoder) End() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.started = false
	d.ended = true
}

// Release unloads the module.
func (d *MockDecoder) Release() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.loaded = false
	d.released = true
}

// Free destroys the context.
func (d *MockDecoder) Free() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.freed = true
}

// Frames returns how many frames were rendered.
func (d *MockDecoder) Frames() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.frames
}

// Finished reports whether End, Release and Free have all run.
func (d *MockDecoder) Finished() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ended && d.released && d.freed
}

// Released reports whether the module was released.
func (d *MockDecoder) Released() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.released
}

// Freed reports whether the context was freed.
func (d *MockDecoder) Freed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.freed
}

var modSignatures = [][]byte{
	[]byte("M.K."), []byte("M!K!"), []byte("4CHN"), []byte("6CHN"),
	[]byte("8CHN"), []byte("FLT4"), []byte("FLT8"),
}

// sniffModule recognizes the four common tracker headers.
func sniffModule(path string) (ModuleInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ModuleInfo{}, fmt.Errorf("%s: %w", path, errors.Join(ErrFileNotFound, err))
	}

	switch {
	case bytes.HasPrefix(data, []byte("Extended Module: ")) && len(data) >= 37:
		return ModuleInfo{Name: cString(data[17:37]), Type: "Fast Tracker II", Channels: 8}, nil
	case bytes.HasPrefix(data, []byte("IMPM")) && len(data) >= 30:
		return ModuleInfo{Name: cString(data[4:30]), Type: "Impulse Tracker", Channels: 16}, nil
	case len(data) >= 48 && bytes.Equal(data[44:48], []byte("SCRM")):
		return ModuleInfo{Name: cString(data[:28]), Type: "Scream Tracker 3", Channels: 16}, nil
	case len(data) >= 1084:
		for _, sig := range modSignatures {
			if bytes.Equal(data[1080:1084], sig) {
				channels := 4
				if sig[0] == '6' {
					channels = 6
				} else if sig[0] == '8' || bytes.Equal(sig, []byte("FLT8")) {
					channels = 8
				}
				return ModuleInfo{Name: cString(data[:20]), Type: "Protracker " + string(sig), Channels: channels}, nil
			}
		}
	}

	return ModuleInfo{}, fmt.Errorf("%s: %w", path, ErrUnrecognizedFormat)
}

func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(bytes.TrimRight(b, " "))
}

// MODFileBytes builds the smallest 4-channel Protracker file the sniffer
// accepts, with the given title.
func MODFileBytes(title string) []byte {
	data := make([]byte, 1084+1024)
	copy(data[:20], title)
	data[950] = 1 // song length
	copy(data[1080:1084], "M.K.")
	return data
}

// XMFileBytes builds a minimal Fast Tracker II header with the given title.
func XMFileBytes(title string) []byte {
	data := make([]byte, 80)
	copy(data, "Extended Module: ")
	copy(data[17:37], title)
	data[37] = 0x1a
	return data
}
