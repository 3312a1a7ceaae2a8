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

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loqalabs/loqa-xmp-go/internal/audio"
	"github.com/loqalabs/loqa-xmp-go/internal/config"
	"github.com/loqalabs/loqa-xmp-go/internal/decoder"
	"github.com/loqalabs/loqa-xmp-go/internal/playback"
	"github.com/loqalabs/loqa-xmp-go/internal/plugin"
	"github.com/loqalabs/loqa-xmp-go/internal/transport"
)

func useMockLibrary(t *testing.T, durationMs int) *decoder.MockLibrary {
	t.Helper()
	lib := decoder.NewMockLibrary()
	lib.SetDuration(durationMs)
	orig := newLibrary
	newLibrary = func() decoder.Library { return lib }
	t.Cleanup(func() { newLibrary = orig })
	return lib
}

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func runCmd(args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := run(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRunWithoutArgs(t *testing.T) {
	code, _, stderr := runCmd()
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, stderr, "usage: xmpplay")
}

func TestRunUnknownCommand(t *testing.T) {
	code, _, stderr := runCmd("dance")
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, stderr, `unknown command "dance"`)
}

func TestRunHelp(t *testing.T) {
	code, stdout, _ := runCmd("help")
	assert.Equal(t, exitOK, code)
	assert.Contains(t, stdout, "formats")
}

func TestRunFormats(t *testing.T) {
	code, stdout, _ := runCmd("formats")
	assert.Equal(t, exitOK, code)
	fields := strings.Fields(stdout)
	assert.Equal(t, plugin.Extensions(), fields)
}

func TestParseKeys(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []keyAction
	}{
		{"space", " ", []keyAction{keyPause}},
		{"quit", "q", []keyAction{keyQuit}},
		{"upper quit", "Q", []keyAction{keyQuit}},
		{"ctrl-c", "\x03", []keyAction{keyQuit}},
		{"left arrow", "\x1b[D", []keyAction{keySeekBack}},
		{"right arrow", "\x1b[C", []keyAction{keySeekForward}},
		{"up arrow ignored", "\x1b[A", nil},
		{"mixed", " \x1b[Cx\x1b[Dq", []keyAction{keyPause, keySeekForward, keySeekBack, keyQuit}},
		{"lone escape", "\x1b", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseKeys([]byte(tt.input)))
		})
	}
}

type keyRecorder struct {
	pauses   []bool
	seeks    []int
	position int
}

func (k *keyRecorder) Pause(paused bool) { k.pauses = append(k.pauses, paused) }

func (k *keyRecorder) Seek(ms int) bool {
	k.seeks = append(k.seeks, ms)
	return true
}

func (k *keyRecorder) WrittenTime() int { return k.position }

func TestReadKeys(t *testing.T) {
	tests := []struct {
		name   string
		paused bool
		want   []bool
	}{
		{"started playing", false, []bool{true, false}},
		{"started paused", true, []bool{false, true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &keyRecorder{position: 3000}
			quit := make(chan struct{})

			readKeys(strings.NewReader("  \x1b[D\x1b[Cq"), rec, tt.paused, quit)

			assert.Equal(t, tt.want, rec.pauses)
			assert.Equal(t, []int{0, 8000}, rec.seeks)
			select {
			case <-quit:
			default:
				t.Fatal("q must close the quit channel")
			}
		})
	}
}

func TestReadKeysStopsAtEOF(t *testing.T) {
	rec := &keyRecorder{}
	quit := make(chan struct{})

	readKeys(strings.NewReader(" "), rec, false, quit)

	assert.Equal(t, []bool{true}, rec.pauses)
	select {
	case <-quit:
		t.Fatal("end of input is not a quit")
	default:
	}
}

func TestCRLFWriter(t *testing.T) {
	var buf bytes.Buffer
	n, err := crlfWriter{&buf}.Write([]byte("a\nb\n"))
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, "a\r\nb\r\n", buf.String())
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "0:00", formatDuration(0))
	assert.Equal(t, "0:00", formatDuration(-5))
	assert.Equal(t, "0:59", formatDuration(59999))
	assert.Equal(t, "2:03", formatDuration(123000))
	assert.Equal(t, "61:01", formatDuration(3661000))
}

func TestNewSink(t *testing.T) {
	s, err := newSink(outputPortAudio, "", "", "p")
	require.NoError(t, err)
	assert.IsType(t, &audio.PortAudioSink{}, s)

	s, err = newSink(outputWav, "x.wav", "", "p")
	require.NoError(t, err)
	assert.IsType(t, &audio.WavSink{}, s)

	s, err = newSink(outputHTTP, "", "http://renderer", "p")
	require.NoError(t, err)
	assert.IsType(t, &transport.HTTPSink{}, s)

	s, err = newSink(outputNull, "", "", "p")
	require.NoError(t, err)
	assert.IsType(t, &audio.NullSink{}, s)

	_, err = newSink(outputWav, "", "", "p")
	assert.ErrorIs(t, err, errUsage)
	_, err = newSink(outputHTTP, "", "", "p")
	assert.ErrorIs(t, err, errUsage)
	_, err = newSink("alsa", "", "", "p")
	assert.ErrorIs(t, err, errUsage)
}

func TestParsePlayFlags(t *testing.T) {
	var stderr bytes.Buffer

	opts, files, err := parsePlayFlags([]string{"-output", "wav", "-start", "1500", "-paused", "song.xm"}, &stderr)
	require.NoError(t, err)
	assert.Equal(t, []string{"song.xm"}, files)
	assert.Equal(t, outputWav, opts.output)
	assert.Equal(t, 1500, opts.startMs)
	assert.Equal(t, playback.NoStop, opts.stopMs)
	assert.True(t, opts.paused)

	_, _, err = parsePlayFlags(nil, &stderr)
	assert.ErrorIs(t, err, errUsage)

	_, _, err = parsePlayFlags([]string{"a.mod", "b.mod"}, &stderr)
	assert.ErrorIs(t, err, errUsage)

	_, files, err = parsePlayFlags([]string{"-nats", "nats://localhost:4222"}, &stderr)
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestPlayToWav(t *testing.T) {
	useMockLibrary(t, 1000)
	dir := t.TempDir()
	song := writeFile(t, dir, "song.xm", decoder.XMFileBytes("unreal ii"))
	out := filepath.Join(dir, "out.wav")

	code, stdout, _ := runCmd("play", "-config", filepath.Join(dir, "xmp.env"), "-output", "wav", "-wav", out, song)
	require.Equal(t, exitOK, code)
	assert.Contains(t, stdout, "Finished unreal ii")

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()
	dec := wav.NewDecoder(f)
	require.True(t, dec.IsValidFile())
	assert.Equal(t, uint32(44100), dec.SampleRate)
	assert.Equal(t, uint16(2), dec.NumChans)
	assert.Equal(t, uint16(16), dec.BitDepth)
}

func TestPlayHonoursSavedSettings(t *testing.T) {
	useMockLibrary(t, 500)
	dir := t.TempDir()
	settings := filepath.Join(dir, "xmp.env")
	cfg := config.Default()
	cfg.SampleRate = config.Rate22050
	cfg.Channels = config.Mono
	require.NoError(t, config.NewStore(settings).Save(cfg))

	song := writeFile(t, dir, "song.mod", decoder.MODFileBytes("enigma"))
	out := filepath.Join(dir, "out.wav")

	code, _, _ := runCmd("play", "-config", settings, "-output", "wav", "-wav", out, song)
	require.Equal(t, exitOK, code)

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()
	dec := wav.NewDecoder(f)
	dec.ReadInfo()
	assert.Equal(t, uint32(22050), dec.SampleRate)
	assert.Equal(t, uint16(1), dec.NumChans)
}

func TestPlayMissingFile(t *testing.T) {
	useMockLibrary(t, 500)
	dir := t.TempDir()

	code, _, _ := runCmd("play", "-config", filepath.Join(dir, "xmp.env"), "-output", "null", filepath.Join(dir, "nope.mod"))
	assert.Equal(t, exitError, code)
}

func TestPlayBadOutput(t *testing.T) {
	code, _, _ := runCmd("play", "-output", "alsa", "song.mod")
	assert.Equal(t, exitUsage, code)
}

func TestProbe(t *testing.T) {
	useMockLibrary(t, 123000)
	dir := t.TempDir()
	xm := writeFile(t, dir, "song.xm", decoder.XMFileBytes("unreal ii"))
	mod := writeFile(t, dir, "song.mod", decoder.MODFileBytes("enigma"))

	code, stdout, _ := runCmd("probe", "-config", filepath.Join(dir, "xmp.env"), xm, mod)
	require.Equal(t, exitOK, code)

	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "unreal ii")
	assert.Contains(t, lines[0], "Fast Tracker II")
	assert.Contains(t, lines[0], "2:03")
	assert.Contains(t, lines[1], "enigma")
	assert.Contains(t, lines[1], "4 ch")
}

func TestProbeReportsFailures(t *testing.T) {
	useMockLibrary(t, 1000)
	dir := t.TempDir()
	xm := writeFile(t, dir, "song.xm", decoder.XMFileBytes("unreal ii"))
	txt := writeFile(t, dir, "notes.txt", []byte("hello"))

	code, stdout, _ := runCmd("probe", "-config", filepath.Join(dir, "xmp.env"), xm, txt)
	assert.Equal(t, exitError, code)
	assert.Contains(t, stdout, "unreal ii")
	assert.Contains(t, stdout, "notes.txt")
}

func TestProbeNeedsFiles(t *testing.T) {
	code, _, _ := runCmd("probe")
	assert.Equal(t, exitUsage, code)
}

func TestConfigShowsDefaults(t *testing.T) {
	useMockLibrary(t, 1000)
	settings := filepath.Join(t.TempDir(), "xmp.env")

	code, stdout, _ := runCmd("config", "-config", settings)
	require.Equal(t, exitOK, code)
	assert.Contains(t, stdout, "[Quality]")
	assert.Contains(t, stdout, "[Options]")
	assert.Contains(t, stdout, "(x) 16 bit")
	assert.Contains(t, stdout, "( ) 8 bit")
	assert.Contains(t, stdout, "[x] Enable IT filters")
	assert.Contains(t, stdout, "80 [0..100]")

	_, err := os.Stat(settings)
	assert.ErrorIs(t, err, os.ErrNotExist, "showing settings must not write them")
}

func TestConfigSet(t *testing.T) {
	useMockLibrary(t, 1000)
	settings := filepath.Join(t.TempDir(), "xmp.env")

	code, stdout, _ := runCmd("config", "-config", settings, "-set", "freq11=true", "-set", "mono=true", "-set", "panamp=42.6")
	require.Equal(t, exitOK, code)
	assert.Contains(t, stdout, "(x) 11 kHz")
	assert.Contains(t, stdout, "( ) 44 kHz")

	cfg, err := config.NewStore(settings).Load()
	require.NoError(t, err)
	assert.Equal(t, config.Rate11025, cfg.SampleRate)
	assert.Equal(t, config.Mono, cfg.Channels)
	assert.Equal(t, 43, cfg.PanAmplitude)
}

func TestConfigSetRejectsBadInput(t *testing.T) {
	useMockLibrary(t, 1000)
	settings := filepath.Join(t.TempDir(), "xmp.env")

	code, _, _ := runCmd("config", "-config", settings, "-set", "panamp=250")
	assert.Equal(t, exitUsage, code)

	code, _, _ = runCmd("config", "-config", settings, "-set", "volume=3")
	assert.Equal(t, exitUsage, code)

	code, _, _ = runCmd("config", "-config", settings, "-set", "mono")
	assert.Equal(t, exitUsage, code)
}
