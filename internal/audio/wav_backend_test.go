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
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWavSinkWritesDecodableFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.wav")
	sink := NewWavSink(path)

	require.NoError(t, sink.Open(Format{Encoding: EncodingS16NE, Rate: 22050, Channels: 2}))

	pcm := make([]byte, 0, 8)
	for _, v := range []int16{100, -100, 32000, -32000} {
		pcm = binary.NativeEndian.AppendUint16(pcm, uint16(v))
	}
	require.NoError(t, sink.Write(pcm))
	require.NoError(t, sink.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	dec := wav.NewDecoder(f)
	require.True(t, dec.IsValidFile(), "output should be a valid wav file")

	buf, err := dec.FullPCMBuffer()
	require.NoError(t, err)
	assert.Equal(t, 2, buf.Format.NumChannels)
	assert.Equal(t, 22050, buf.Format.SampleRate)
	assert.Equal(t, []int{100, -100, 32000, -32000}, buf.Data)
}

func TestWavSinkAbortAndFlush(t *testing.T) {
	sink := NewWavSink(filepath.Join(t.TempDir(), "abort.wav"))
	require.NoError(t, sink.Open(Format{Encoding: EncodingU8, Rate: 11025, Channels: 1}))
	defer func() { _ = sink.Close() }()

	sink.Abort()
	assert.ErrorIs(t, sink.Write([]byte{0x80}), ErrAborted)

	sink.Flush(2000)
	require.NoError(t, sink.Write(make([]byte, 1103)))
	assert.Equal(t, 2100, sink.WrittenTime())
}

func TestWavSinkRejectsUnwritablePath(t *testing.T) {
	sink := NewWavSink(filepath.Join(t.TempDir(), "missing", "out.wav"))
	err := sink.Open(Format{Encoding: EncodingS16NE, Rate: 44100, Channels: 2})
	assert.ErrorIs(t, err, ErrDeviceRejected)
}
