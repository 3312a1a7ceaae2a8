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
	"fmt"

	"github.com/loqalabs/loqa-xmp-go/internal/audio"
	"github.com/loqalabs/loqa-xmp-go/internal/transport"
)

const (
	outputPortAudio = "portaudio"
	outputOto       = "oto"
	outputWav       = "wav"
	outputHTTP      = "http"
	outputNull      = "null"
)

// newSink builds the audio output selected on the command line.
func newSink(kind, wavPath, httpURL, playerID string) (audio.Sink, error) {
	switch kind {
	case outputPortAudio:
		return audio.NewPortAudioSink(audio.DefaultFramesPerBuffer), nil
	case outputOto:
		return audio.NewOtoSink(), nil
	case outputWav:
		if wavPath == "" {
			return nil, fmt.Errorf("%w: -output wav needs -wav", errUsage)
		}
		return audio.NewWavSink(wavPath), nil
	case outputHTTP:
		if httpURL == "" {
			return nil, fmt.Errorf("%w: -output http needs -http", errUsage)
		}
		return transport.NewHTTPSink(httpURL, playerID), nil
	case outputNull:
		return audio.NewNullSink(true), nil
	default:
		return nil, fmt.Errorf("%w: unknown output %q", errUsage, kind)
	}
}
