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

// Package prefs maps PlaybackConfig to the field set a preferences
// dialog edits, and describes that dialog's layout.
package prefs

import (
	"fmt"
	"math"
	"strconv"

	"github.com/loqalabs/loqa-xmp-go/internal/config"
)

// UIState is the flat set of values bound to preference widgets.
// Radio groups are stored as one bool per button.
type UIState struct {
	Bits16 bool
	Bits8  bool
	Stereo bool
	Mono   bool
	Freq44 bool
	Freq22 bool
	Freq11 bool

	Convert8Bit   bool
	FixLoops      bool
	ModRange      bool
	Interpolation bool
	Filter        bool

	PanAmp float64
}

// FromConfig fills a UIState with exactly one button set per radio group.
func FromConfig(cfg config.PlaybackConfig) UIState {
	return UIState{
		Bits16:        cfg.BitDepth != config.Bits8,
		Bits8:         cfg.BitDepth == config.Bits8,
		Stereo:        cfg.Channels != config.Mono,
		Mono:          cfg.Channels == config.Mono,
		Freq44:        cfg.SampleRate != config.Rate22050 && cfg.SampleRate != config.Rate11025,
		Freq22:        cfg.SampleRate == config.Rate22050,
		Freq11:        cfg.SampleRate == config.Rate11025,
		Convert8Bit:   cfg.Convert8Bit,
		FixLoops:      cfg.FixLoops,
		ModRange:      cfg.ModRange,
		Interpolation: cfg.Interpolation,
		Filter:        cfg.Filter,
		PanAmp:        float64(cfg.PanAmplitude),
	}
}

// Config converts the UI state back. Inconsistent radio groups resolve
// toward the lower-quality button: 11 kHz over 22 kHz over 44 kHz,
// 8 bit over 16 bit, mono over stereo. PanAmp is rounded and clamped.
func (s UIState) Config() config.PlaybackConfig {
	cfg := config.PlaybackConfig{
		SampleRate:    config.Rate44100,
		BitDepth:      config.Bits16,
		Channels:      config.Stereo,
		Convert8Bit:   s.Convert8Bit,
		FixLoops:      s.FixLoops,
		ModRange:      s.ModRange,
		Interpolation: s.Interpolation,
		Filter:        s.Filter,
		PanAmplitude:  clampPan(s.PanAmp),
	}

	switch {
	case s.Freq11:
		cfg.SampleRate = config.Rate11025
	case s.Freq22:
		cfg.SampleRate = config.Rate22050
	}
	if s.Bits8 {
		cfg.BitDepth = config.Bits8
	}
	if s.Mono {
		cfg.Channels = config.Mono
	}
	return cfg
}

func clampPan(v float64) int {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return int(math.Round(v))
}

// Get returns the current value of a bound field as text.
func (s *UIState) Get(field string) (string, error) {
	if field == FieldPanAmp {
		return strconv.FormatFloat(s.PanAmp, 'f', -1, 64), nil
	}
	p, err := s.boolField(field)
	if err != nil {
		return "", err
	}
	return strconv.FormatBool(*p), nil
}

// Set assigns a bound field from text. Selecting a radio button clears
// the other buttons of its group.
func (s *UIState) Set(field, value string) error {
	if field == FieldPanAmp {
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", field, err)
		}
		if v < panMin || v > panMax {
			return fmt.Errorf("%s: %v outside [%v, %v]", field, v, panMin, panMax)
		}
		s.PanAmp = v
		return nil
	}

	p, err := s.boolField(field)
	if err != nil {
		return err
	}
	on, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	if on {
		for _, other := range radioGroupOf(field) {
			q, _ := s.boolField(other)
			*q = false
		}
	}
	*p = on
	return nil
}

func (s *UIState) boolField(field string) (*bool, error) {
	switch field {
	case FieldBits16:
		return &s.Bits16, nil
	case FieldBits8:
		return &s.Bits8, nil
	case FieldStereo:
		return &s.Stereo, nil
	case FieldMono:
		return &s.Mono, nil
	case FieldFreq44:
		return &s.Freq44, nil
	case FieldFreq22:
		return &s.Freq22, nil
	case FieldFreq11:
		return &s.Freq11, nil
	case FieldConvert8Bit:
		return &s.Convert8Bit, nil
	case FieldFixLoops:
		return &s.FixLoops, nil
	case FieldModRange:
		return &s.ModRange, nil
	case FieldInterpolation:
		return &s.Interpolation, nil
	case FieldFilter:
		return &s.Filter, nil
	}
	return nil, fmt.Errorf("unknown preference field %q", field)
}
