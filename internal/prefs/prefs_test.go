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

package prefs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loqalabs/loqa-xmp-go/internal/config"
)

func TestRoundTripAllValidConfigs(t *testing.T) {
	for _, rate := range []config.SampleRate{config.Rate44100, config.Rate22050, config.Rate11025} {
		for _, bits := range []config.BitDepth{config.Bits8, config.Bits16} {
			for _, ch := range []config.Channels{config.Mono, config.Stereo} {
				for mask := 0; mask < 32; mask++ {
					for _, pan := range []int{0, 1, 50, 80, 99, 100} {
						cfg := config.PlaybackConfig{
							SampleRate:    rate,
							BitDepth:      bits,
							Channels:      ch,
							Interpolation: mask&1 != 0,
							Filter:        mask&2 != 0,
							FixLoops:      mask&4 != 0,
							ModRange:      mask&8 != 0,
							Convert8Bit:   mask&16 != 0,
							PanAmplitude:  pan,
						}
						require.Equal(t, cfg, FromConfig(cfg).Config())
					}
				}
			}
		}
	}
}

func TestFromConfigSetsOneButtonPerGroup(t *testing.T) {
	cfg := config.Default()
	cfg.SampleRate = config.Rate22050
	cfg.Channels = config.Mono

	ui := FromConfig(cfg)
	assert.True(t, ui.Bits16)
	assert.False(t, ui.Bits8)
	assert.False(t, ui.Stereo)
	assert.True(t, ui.Mono)
	assert.False(t, ui.Freq44)
	assert.True(t, ui.Freq22)
	assert.False(t, ui.Freq11)
	assert.Equal(t, 80.0, ui.PanAmp)
}

func TestInconsistentRadioPrecedence(t *testing.T) {
	tests := []struct {
		name     string
		ui       UIState
		wantRate config.SampleRate
		wantBits config.BitDepth
		wantCh   config.Channels
	}{
		{"nothing selected", UIState{}, config.Rate44100, config.Bits16, config.Stereo},
		{"all frequencies", UIState{Freq44: true, Freq22: true, Freq11: true}, config.Rate11025, config.Bits16, config.Stereo},
		{"44 and 22", UIState{Freq44: true, Freq22: true}, config.Rate22050, config.Bits16, config.Stereo},
		{"both resolutions", UIState{Bits16: true, Bits8: true}, config.Rate44100, config.Bits8, config.Stereo},
		{"both layouts", UIState{Stereo: true, Mono: true}, config.Rate44100, config.Bits16, config.Mono},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.ui.Config()
			assert.Equal(t, tt.wantRate, cfg.SampleRate)
			assert.Equal(t, tt.wantBits, cfg.BitDepth)
			assert.Equal(t, tt.wantCh, cfg.Channels)
			assert.NoError(t, cfg.Validate())
		})
	}
}

func TestPanAmpRoundsAndClamps(t *testing.T) {
	tests := []struct {
		pan  float64
		want int
	}{
		{49.4, 49},
		{49.6, 50},
		{-3, 0},
		{250, 100},
	}

	for _, tt := range tests {
		ui := UIState{PanAmp: tt.pan}
		assert.Equal(t, tt.want, ui.Config().PanAmplitude, "pan %v", tt.pan)
	}
}

func TestSetRadioClearsGroup(t *testing.T) {
	ui := FromConfig(config.Default())
	require.True(t, ui.Freq44)

	require.NoError(t, ui.Set(FieldFreq11, "true"))
	assert.False(t, ui.Freq44)
	assert.False(t, ui.Freq22)
	assert.True(t, ui.Freq11)
	assert.Equal(t, config.Rate11025, ui.Config().SampleRate)

	require.NoError(t, ui.Set(FieldFilter, "false"))
	assert.False(t, ui.Filter)

	require.NoError(t, ui.Set(FieldPanAmp, "42"))
	v, err := ui.Get(FieldPanAmp)
	require.NoError(t, err)
	assert.Equal(t, "42", v)
}

func TestSetRejectsBadInput(t *testing.T) {
	ui := FromConfig(config.Default())

	assert.Error(t, ui.Set("volume", "1"))
	assert.Error(t, ui.Set(FieldMono, "perhaps"))
	assert.Error(t, ui.Set(FieldPanAmp, "101"))
	assert.Error(t, ui.Set(FieldPanAmp, "abc"))
	_, err := ui.Get("volume")
	assert.Error(t, err)
}

func TestLayoutBindsEveryField(t *testing.T) {
	bound := map[string]Kind{}
	var tabs []string
	Walk(Layout(), func(w Widget, depth int) {
		if w.Kind == KindTab {
			tabs = append(tabs, w.Label)
		}
		if w.Field != "" {
			bound[w.Field] = w.Kind
		}
	})

	assert.Equal(t, []string{"Quality", "Options"}, tabs)

	ui := FromConfig(config.Default())
	for field := range bound {
		_, err := ui.Get(field)
		assert.NoError(t, err, field)
	}
	assert.Len(t, bound, 13)
	assert.Equal(t, KindSpin, bound[FieldPanAmp])
	assert.Equal(t, KindRadio, bound[FieldFreq22])
	assert.Equal(t, KindCheck, bound[FieldModRange])
}

func TestLayoutSpinRange(t *testing.T) {
	var spin Widget
	Walk(Layout(), func(w Widget, _ int) {
		if w.Kind == KindSpin {
			spin = w
		}
	})
	assert.Equal(t, 0.0, spin.Min)
	assert.Equal(t, 100.0, spin.Max)
	assert.Equal(t, 1.0, spin.Step)
}
