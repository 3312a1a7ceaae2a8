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

package xmp

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loqalabs/loqa-xmp-go/internal/decoder"
)

func writeModule(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

// newDecoder skips the test when libxmp cannot create a context.
func newDecoder(t *testing.T) *Decoder {
	t.Helper()
	dec, err := NewLibrary().NewDecoder()
	if err != nil {
		t.Skipf("libxmp not usable: %v", err)
	}
	t.Cleanup(dec.Free)
	return dec.(*Decoder)
}

func TestLibraryTest(t *testing.T) {
	lib := NewLibrary()

	assert.NoError(t, lib.Test(writeModule(t, "song.mod", decoder.MODFileBytes("x"))))
	assert.ErrorIs(t, lib.Test(writeModule(t, "notes.mod", []byte("not a module at all\n"))), decoder.ErrUnrecognizedFormat)
	assert.ErrorIs(t, lib.Test(filepath.Join(t.TempDir(), "missing.mod")), decoder.ErrFileNotFound)
}

func TestDecoderLoadWithoutSamples(t *testing.T) {
	dec := newDecoder(t)
	dec.SetSampleLoading(false)

	require.NoError(t, dec.Load(writeModule(t, "song.mod", decoder.MODFileBytes("x"))))
	defer dec.Release()

	info := dec.ModuleInfo()
	assert.Equal(t, "x", info.Name)
	assert.Equal(t, 4, info.Channels)
	assert.NotEmpty(t, info.Type)
	assert.Positive(t, dec.FrameInfo().TotalTime)
}

func TestDecoderLoadRejectsText(t *testing.T) {
	dec := newDecoder(t)

	err := dec.Load(writeModule(t, "notes.txt", []byte("hello, this is plain text\n")))
	assert.ErrorIs(t, err, decoder.ErrUnrecognizedFormat)

	err = dec.Load(filepath.Join(t.TempDir(), "missing.mod"))
	assert.ErrorIs(t, err, decoder.ErrFileNotFound)
}

func TestDecoderRendersUnsigned8Bit(t *testing.T) {
	dec := newDecoder(t)
	require.NoError(t, dec.Load(writeModule(t, "song.mod", decoder.MODFileBytes("x"))))
	defer dec.Release()

	format := decoder.OutputFormat{Rate: 44100, Bits: 8}
	require.NoError(t, dec.Start(format))
	defer dec.End()

	// 125 BPM gives 20ms frames.
	for i := 0; i < 4; i++ {
		frame, err := dec.PlayFrame()
		require.NoError(t, err)
		require.Len(t, frame, format.BytesFor(20))
		for _, b := range frame {
			require.Equal(t, byte(0x80), b, "an empty module renders unsigned silence")
		}
	}
}

func TestDecoderConfigureBeforeStart(t *testing.T) {
	dec := newDecoder(t)
	require.NoError(t, dec.Load(writeModule(t, "song.mod", decoder.MODFileBytes("x"))))
	defer dec.Release()

	assert.ErrorIs(t, dec.Configure(decoder.PlayerOptions{}), decoder.ErrState)
}

func TestDecoderConfigureFixLoopsOnPlayingModule(t *testing.T) {
	dec := newDecoder(t)
	require.NoError(t, dec.Load(writeModule(t, "song.mod", decoder.MODFileBytes("x"))))
	defer dec.Release()
	require.NoError(t, dec.Start(decoder.OutputFormat{Rate: 44100, Bits: 16}))
	defer dec.End()

	opts := decoder.PlayerOptions{Interpolation: true, Filter: true, PanAmplitude: 80, FixLoops: true}
	require.NoError(t, dec.Configure(opts))
	assert.True(t, dec.fixLoops())

	opts.FixLoops = false
	require.NoError(t, dec.Configure(opts))
	assert.False(t, dec.fixLoops())
}

func TestDecoderPlaysToEnd(t *testing.T) {
	dec := newDecoder(t)
	require.NoError(t, dec.Load(writeModule(t, "song.mod", decoder.MODFileBytes("x"))))
	defer dec.Release()
	require.NoError(t, dec.Start(decoder.OutputFormat{Rate: 11025, Bits: 16, Mono: true}))
	defer dec.End()

	dec.Stop()
	_, err := dec.PlayFrame()
	assert.ErrorIs(t, err, decoder.ErrEnd)
}
