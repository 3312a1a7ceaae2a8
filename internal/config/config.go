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

// Package config holds the plugin's persisted playback settings.
package config

import (
	"errors"
	"fmt"

	"github.com/loqalabs/loqa-xmp-go/internal/decoder"
)

// ErrInvalid is returned for settings outside their allowed range.
var ErrInvalid = errors.New("invalid playback setting")

// SampleRate is the mixing frequency.
type SampleRate int

const (
	Rate44100 SampleRate = 44100
	Rate22050 SampleRate = 22050
	Rate11025 SampleRate = 11025
)

// BitDepth is the output resolution.
type BitDepth int

const (
	Bits8  BitDepth = 8
	Bits16 BitDepth = 16
)

// Channels is the output channel layout.
type Channels int

const (
	Mono   Channels = 1
	Stereo Channels = 2
)

func (c Channels) String() string {
	if c == Mono {
		return "mono"
	}
	return "stereo"
}

// PlaybackConfig is the validated plugin configuration.
type PlaybackConfig struct {
	SampleRate    SampleRate
	BitDepth      BitDepth
	Channels      Channels
	Interpolation bool
	Filter        bool
	PanAmplitude  int // percent, 0..100
	FixLoops      bool
	ModRange      bool
	Convert8Bit   bool
}

// Default returns the settings used when nothing is persisted.
func Default() PlaybackConfig {
	return PlaybackConfig{
		SampleRate:    Rate44100,
		BitDepth:      Bits16,
		Channels:      Stereo,
		Interpolation: true,
		Filter:        true,
		PanAmplitude:  80,
	}
}

// Validate checks every field range.
func (c PlaybackConfig) Validate() error {
	switch c.SampleRate {
	case Rate44100, Rate22050, Rate11025:
	default:
		return fmt.Errorf("%w: sample rate %d", ErrInvalid, c.SampleRate)
	}
	if c.BitDepth != Bits8 && c.BitDepth != Bits16 {
		return fmt.Errorf("%w: bit depth %d", ErrInvalid, c.BitDepth)
	}
	if c.Channels != Mono && c.Channels != Stereo {
		return fmt.Errorf("%w: channels %d", ErrInvalid, c.Channels)
	}
	if c.PanAmplitude < 0 || c.PanAmplitude > 100 {
		return fmt.Errorf("%w: pan amplitude %d", ErrInvalid, c.PanAmplitude)
	}
	return nil
}

// OutputFormat returns the PCM format the decoder should render.
func (c PlaybackConfig) OutputFormat() decoder.OutputFormat {
	return decoder.OutputFormat{
		Rate: int(c.SampleRate),
		Bits: int(c.BitDepth),
		Mono: c.Channels == Mono,
	}
}

// PlayerOptions returns the mixer options for the decoder.
func (c PlaybackConfig) PlayerOptions() decoder.PlayerOptions {
	return decoder.PlayerOptions{
		Interpolation: c.Interpolation,
		Filter:        c.Filter,
		PanAmplitude:  c.PanAmplitude,
		FixLoops:      c.FixLoops,
		ModRange:      c.ModRange,
		Convert8Bit:   c.Convert8Bit,
	}
}

// mixingFreq is the persisted index of a sample rate.
func (r SampleRate) mixingFreq() int {
	switch r {
	case Rate22050:
		return 1
	case Rate11025:
		return 2
	default:
		return 0
	}
}

func sampleRateFromMixingFreq(index int) (SampleRate, error) {
	switch index {
	case 0:
		return Rate44100, nil
	case 1:
		return Rate22050, nil
	case 2:
		return Rate11025, nil
	default:
		return 0, fmt.Errorf("%w: mixing_freq %d", ErrInvalid, index)
	}
}
