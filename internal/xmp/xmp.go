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

// Package xmp binds libxmp to the decoder interfaces.
package xmp

/*
#cgo pkg-config: libxmp
#include <stdlib.h>
#include <xmp.h>
*/
import "C"

import (
	"fmt"
	"os"
	"sync"
	"unsafe"

	"github.com/loqalabs/loqa-xmp-go/internal/decoder"
)

// Library implements decoder.Library on top of libxmp.
type Library struct{}

// NewLibrary returns the libxmp-backed library.
func NewLibrary() *Library {
	return &Library{}
}

// Version returns the libxmp version string.
func Version() string {
	return C.GoString(C.xmp_version)
}

// Test reports whether libxmp recognizes the file at path.
func (l *Library) Test(path string) error {
	if err := checkReadable(path); err != nil {
		return err
	}

	cpath := C.CString(path)
	defer C.free(unsafe.Pointer(cpath))

	if code := C.xmp_test_module(cpath, nil); code != 0 {
		return fmt.Errorf("%s: %w", path, codeToError(code))
	}
	return nil
}

// NewDecoder creates a fresh libxmp context.
func (l *Library) NewDecoder() (decoder.Decoder, error) {
	ctx := C.xmp_create_context()
	if ctx == nil {
		return nil, fmt.Errorf("xmp_create_context failed")
	}
	return &Decoder{ctx: ctx}, nil
}

// Decoder wraps one xmp_context.
type Decoder struct {
	ctx     C.xmp_context
	mu      sync.Mutex
	info    C.struct_xmp_frame_info
	playing bool
}

// SetSampleLoading toggles XMP_SMPCTL_SKIP.
func (d *Decoder) SetSampleLoading(enabled bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	ctl := C.int(0)
	if !enabled {
		ctl = C.XMP_SMPCTL_SKIP
	}
	C.xmp_set_player(d.ctx, C.XMP_PLAYER_SMPCTL, ctl)
}

// Load loads the module at path.
func (d *Decoder) Load(path string) error {
	if err := checkReadable(path); err != nil {
		return err
	}

	cpath := C.CString(path)
	defer C.free(unsafe.Pointer(cpath))

	d.mu.Lock()
	defer d.mu.Unlock()

	if code := C.xmp_load_module(d.ctx, cpath); code < 0 {
		return fmt.Errorf("%s: %w", path, codeToError(code))
	}
	return nil
}

// ModuleInfo returns the module name, format and channel count.
func (d *Decoder) ModuleInfo() decoder.ModuleInfo {
	d.mu.Lock()
	defer d.mu.Unlock()

	var mi C.struct_xmp_module_info
	C.xmp_get_module_info(d.ctx, &mi)
	if mi.mod == nil {
		return decoder.ModuleInfo{}
	}

	return decoder.ModuleInfo{
		Name:     C.GoString(&mi.mod.name[0]),
		Type:     C.GoString(&mi.mod._type[0]),
		Channels: int(mi.mod.chn),
	}
}

// FrameInfo returns the current and total time in milliseconds.
func (d *Decoder) FrameInfo() decoder.FrameInfo {
	d.mu.Lock()
	defer d.mu.Unlock()

	C.xmp_get_frame_info(d.ctx, &d.info)
	return decoder.FrameInfo{
		Time:      int(d.info.time),
		TotalTime: int(d.info.total_time),
	}
}

// Start starts the player in the requested PCM format.
func (d *Decoder) Start(format decoder.OutputFormat) error {
	var flags C.int
	if format.Mono {
		flags |= C.XMP_FORMAT_MONO
	}
	if format.Bits == 8 {
		flags |= C.XMP_FORMAT_8BIT | C.XMP_FORMAT_UNSIGNED
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if code := C.xmp_start_player(d.ctx, C.int(format.Rate), flags); code != 0 {
		return fmt.Errorf("xmp_start_player: %w", codeToError(code))
	}
	d.playing = true
	return nil
}

// Configure applies interpolation, DSP, mix and loop options.
func (d *Decoder) Configure(opts decoder.PlayerOptions) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.playing {
		return decoder.ErrState
	}

	interp := C.int(C.XMP_INTERP_NEAREST)
	if opts.Interpolation {
		interp = C.XMP_INTERP_SPLINE
	}
	if code := C.xmp_set_player(d.ctx, C.XMP_PLAYER_INTERP, interp); code != 0 {
		return fmt.Errorf("set interpolation: %w", codeToError(code))
	}

	dsp := C.xmp_get_player(d.ctx, C.XMP_PLAYER_DSP)
	if opts.Filter {
		dsp |= C.XMP_DSP_LOWPASS
	} else {
		dsp &^= C.XMP_DSP_LOWPASS
	}
	if code := C.xmp_set_player(d.ctx, C.XMP_PLAYER_DSP, dsp); code != 0 {
		return fmt.Errorf("set dsp: %w", codeToError(code))
	}

	if code := C.xmp_set_player(d.ctx, C.XMP_PLAYER_MIX, C.int(opts.PanAmplitude)); code != 0 {
		return fmt.Errorf("set pan amplitude: %w", codeToError(code))
	}

	// XMP_PLAYER_FLAGS is only copied in by xmp_start_player; the module
	// already playing reads XMP_PLAYER_CFLAGS.
	for _, param := range []C.int{C.XMP_PLAYER_FLAGS, C.XMP_PLAYER_CFLAGS} {
		if err := d.setFlag(param, C.XMP_FLAGS_FIXLOOP, opts.FixLoops); err != nil {
			return fmt.Errorf("set fix loops: %w", err)
		}
	}

	// libxmp 4 has no switch for the 3-octave MOD range or 8-bit sample
	// conversion; both stay persisted settings only.
	return nil
}

// setFlag sets or clears bit in a flags parameter. Callers hold d.mu.
func (d *Decoder) setFlag(param, bit C.int, on bool) error {
	flags := C.xmp_get_player(d.ctx, param)
	if on {
		flags |= bit
	} else {
		flags &^= bit
	}
	if code := C.xmp_set_player(d.ctx, param, flags); code != 0 {
		return codeToError(code)
	}
	return nil
}

// fixLoops reports whether the module being played has loop fixing on.
func (d *Decoder) fixLoops() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return C.xmp_get_player(d.ctx, C.XMP_PLAYER_CFLAGS)&C.XMP_FLAGS_FIXLOOP != 0
}

// PlayFrame renders one frame and returns a view of libxmp's buffer.
func (d *Decoder) PlayFrame() ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if code := C.xmp_play_frame(d.ctx); code != 0 {
		if code == -C.XMP_END {
			return nil, decoder.ErrEnd
		}
		return nil, codeToError(code)
	}

	C.xmp_get_frame_info(d.ctx, &d.info)
	if d.info.buffer == nil || d.info.buffer_size <= 0 {
		return nil, nil
	}
	return unsafe.Slice((*byte)(d.info.buffer), int(d.info.buffer_size)), nil
}

// SeekTime jumps to ms.
func (d *Decoder) SeekTime(ms int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	C.xmp_seek_time(d.ctx, C.int(ms))
}

// Stop makes the next frame report the end of the module. It does not take
// the lock: xmp_stop_module only raises a flag polled by xmp_play_frame, so a
// stop never waits for a frame in progress.
func (d *Decoder) Stop() {
	C.xmp_stop_module(d.ctx)
}

// End stops the player.
func (d *Decoder) End() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.playing {
		C.xmp_end_player(d.ctx)
		d.playing = false
	}
}

// Release unloads the module.
func (d *Decoder) Release() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if C.xmp_get_player(d.ctx, C.XMP_PLAYER_STATE) >= C.XMP_STATE_LOADED {
		C.xmp_release_module(d.ctx)
	}
}

// Free destroys the context. The decoder must not be used afterwards.
func (d *Decoder) Free() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.ctx != nil {
		C.xmp_free_context(d.ctx)
		d.ctx = nil
	}
}

func checkReadable(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%s: %w: %v", path, decoder.ErrFileNotFound, err)
	}
	return f.Close()
}

// codeToError converts a negative libxmp return code to a Go error.
func codeToError(code C.int) error {
	switch -code {
	case C.XMP_ERROR_FORMAT:
		return decoder.ErrUnrecognizedFormat
	case C.XMP_ERROR_LOAD, C.XMP_ERROR_DEPACK:
		return fmt.Errorf("%w: load failed", decoder.ErrUnrecognizedFormat)
	case C.XMP_ERROR_SYSTEM:
		return decoder.ErrFileNotFound
	case C.XMP_ERROR_STATE:
		return decoder.ErrState
	case C.XMP_END:
		return decoder.ErrEnd
	default:
		return fmt.Errorf("libxmp error %d", int(code))
	}
}
