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

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Section prefixes every key the plugin owns in the store.
const Section = "XMP"

// Persisted key names, without the section prefix.
const (
	KeyMixingFreq    = "mixing_freq"
	KeyForce8Bit     = "force8bit"
	KeyConvert8Bit   = "convert8bit"
	KeyFixLoops      = "fixloops"
	KeyModRange      = "modrange"
	KeyForceMono     = "force_mono"
	KeyInterpolation = "interpolation"
	KeyFilter        = "filter"
	KeyPanAmplitude  = "pan_amplitude"
)

// Defaults are the values used for keys missing from the store.
var Defaults = map[string]string{
	KeyMixingFreq:    "0",
	KeyConvert8Bit:   "0",
	KeyFixLoops:      "0",
	KeyModRange:      "0",
	KeyForce8Bit:     "0",
	KeyForceMono:     "0",
	KeyInterpolation: "TRUE",
	KeyFilter:        "TRUE",
	KeyPanAmplitude:  "80",
}

// Store persists PlaybackConfig as KEY=value lines in a dotenv file.
// Keys outside the section are preserved on Save.
type Store struct {
	path string
}

// NewStore returns a store backed by the file at path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file.
func (s *Store) Path() string {
	return s.path
}

// EnvKey returns the stored name of key.
func EnvKey(key string) string {
	return Section + "_" + strings.ToUpper(key)
}

// Load reads the configuration. A missing file yields the defaults.
func (s *Store) Load() (PlaybackConfig, error) {
	values, err := s.read()
	if err != nil {
		return PlaybackConfig{}, err
	}

	get := func(key string) string {
		if v, ok := values[EnvKey(key)]; ok && v != "" {
			return v
		}
		return Defaults[key]
	}

	var cfg PlaybackConfig
	var errs []error

	freq, err := parseInt(KeyMixingFreq, get(KeyMixingFreq))
	errs = append(errs, err)
	cfg.SampleRate, err = sampleRateFromMixingFreq(freq)
	errs = append(errs, err)

	force8, err := parseBool(KeyForce8Bit, get(KeyForce8Bit))
	errs = append(errs, err)
	cfg.BitDepth = Bits16
	if force8 {
		cfg.BitDepth = Bits8
	}

	mono, err := parseBool(KeyForceMono, get(KeyForceMono))
	errs = append(errs, err)
	cfg.Channels = Stereo
	if mono {
		cfg.Channels = Mono
	}

	cfg.Convert8Bit, err = parseBool(KeyConvert8Bit, get(KeyConvert8Bit))
	errs = append(errs, err)
	cfg.FixLoops, err = parseBool(KeyFixLoops, get(KeyFixLoops))
	errs = append(errs, err)
	cfg.ModRange, err = parseBool(KeyModRange, get(KeyModRange))
	errs = append(errs, err)
	cfg.Interpolation, err = parseBool(KeyInterpolation, get(KeyInterpolation))
	errs = append(errs, err)
	cfg.Filter, err = parseBool(KeyFilter, get(KeyFilter))
	errs = append(errs, err)
	cfg.PanAmplitude, err = parseInt(KeyPanAmplitude, get(KeyPanAmplitude))
	errs = append(errs, err)

	if err := errors.Join(errs...); err != nil {
		return PlaybackConfig{}, fmt.Errorf("failed to load %s: %w", s.path, err)
	}
	if err := cfg.Validate(); err != nil {
		return PlaybackConfig{}, fmt.Errorf("failed to load %s: %w", s.path, err)
	}
	return cfg, nil
}

// Save writes cfg, keeping unrelated keys already in the file.
func (s *Store) Save(cfg PlaybackConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	values, err := s.read()
	if err != nil {
		return err
	}

	values[EnvKey(KeyMixingFreq)] = strconv.Itoa(cfg.SampleRate.mixingFreq())
	values[EnvKey(KeyForce8Bit)] = formatBool(cfg.BitDepth == Bits8)
	values[EnvKey(KeyConvert8Bit)] = formatBool(cfg.Convert8Bit)
	values[EnvKey(KeyModRange)] = formatBool(cfg.ModRange)
	values[EnvKey(KeyFixLoops)] = formatBool(cfg.FixLoops)
	values[EnvKey(KeyForceMono)] = formatBool(cfg.Channels == Mono)
	values[EnvKey(KeyInterpolation)] = formatBool(cfg.Interpolation)
	values[EnvKey(KeyFilter)] = formatBool(cfg.Filter)
	values[EnvKey(KeyPanAmplitude)] = strconv.Itoa(cfg.PanAmplitude)

	if err := godotenv.Write(values, s.path); err != nil {
		return fmt.Errorf("failed to save %s: %w", s.path, err)
	}
	return nil
}

func (s *Store) read() (map[string]string, error) {
	values, err := godotenv.Read(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", s.path, err)
	}
	return values, nil
}

func parseBool(key, value string) (bool, error) {
	b, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return false, fmt.Errorf("%w: %s=%q", ErrInvalid, key, value)
	}
	return b, nil
}

func parseInt(key, value string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q", ErrInvalid, key, value)
	}
	return n, nil
}

func formatBool(b bool) string {
	if b {
		return "TRUE"
	}
	return "FALSE"
}
