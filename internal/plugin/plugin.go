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

// Package plugin implements the input plugin callbacks a media host drives:
// file detection, metadata probing, playback control and preferences.
package plugin

import (
	"errors"
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/loqalabs/loqa-xmp-go/internal/audio"
	"github.com/loqalabs/loqa-xmp-go/internal/config"
	"github.com/loqalabs/loqa-xmp-go/internal/decoder"
	"github.com/loqalabs/loqa-xmp-go/internal/playback"
	"github.com/loqalabs/loqa-xmp-go/internal/prefs"
)

// Name identifies the plugin to hosts.
const Name = "XMP Plugin"

// Playback is the host object for one play request.
type Playback interface {
	// Output returns the sink decoded audio is written to. The host owns it.
	Output() audio.Sink

	// SetTuple publishes track metadata.
	SetTuple(meta decoder.TrackMetadata)

	// SetParams publishes the stream parameters. Bitrate is nominal.
	SetParams(bitrate, rate, channels int)

	// SetReady tells the host playback is about to begin.
	SetReady()
}

// InputPlugin binds a decoding library to the host callbacks.
type InputPlugin struct {
	lib   decoder.Library
	store *config.Store

	mu      sync.Mutex
	cfg     config.PlaybackConfig
	session *playback.Session
	options decoder.PlayerOptions // applied to session

	probeMu sync.Mutex
}

// New creates a plugin. store may be nil, in which case settings are not
// persisted.
func New(lib decoder.Library, store *config.Store) *InputPlugin {
	return &InputPlugin{
		lib:   lib,
		store: store,
		cfg:   config.Default(),
	}
}

// Init loads persisted settings. A store that cannot be read leaves the
// defaults in place.
func (p *InputPlugin) Init() error {
	if p.store == nil {
		return nil
	}

	cfg, err := p.store.Load()
	if err != nil {
		log.Printf("⚠️  Using default settings: %v", err)
		return err
	}

	p.mu.Lock()
	p.cfg = cfg
	p.mu.Unlock()

	log.Printf("🔧 Loaded settings from %s: %d Hz, %d bit, %s", p.store.Path(), cfg.SampleRate, cfg.BitDepth, cfg.Channels)
	return nil
}

// Cleanup stops any active playback and waits for it to finish.
func (p *InputPlugin) Cleanup() {
	p.mu.Lock()
	s := p.session
	p.session = nil
	p.mu.Unlock()

	if s != nil {
		s.Stop()
		<-s.Done()
	}
}

// Config returns the active settings.
func (p *InputPlugin) Config() config.PlaybackConfig {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg
}

// IsOurFile reports whether the library recognizes the file's content.
func (p *InputPlugin) IsOurFile(uri string) bool {
	return p.lib.Test(StripFileURI(uri)) == nil
}

// Probe reads module metadata without loading samples. Probes are
// serialized and never touch the active session.
func (p *InputPlugin) Probe(uri string) (decoder.TrackMetadata, error) {
	path := StripFileURI(uri)

	p.probeMu.Lock()
	defer p.probeMu.Unlock()

	dec, err := p.lib.NewDecoder()
	if err != nil {
		return decoder.TrackMetadata{}, err
	}
	defer dec.Free()

	dec.SetSampleLoading(false)
	if err := dec.Load(path); err != nil {
		return decoder.TrackMetadata{}, err
	}
	defer dec.Release()

	return metadata(path, dec), nil
}

// Play opens the sink, loads the module and starts a playback goroutine.
// On error nothing is left running. stopMs < 0 plays to the end.
func (p *InputPlugin) Play(pb Playback, uri string, startMs, stopMs int, paused bool) (*playback.Session, error) {
	path := StripFileURI(uri)

	p.mu.Lock()
	previous := p.session
	p.session = nil
	cfg := p.cfg
	p.mu.Unlock()

	if previous != nil {
		previous.Stop()
		<-previous.Done()
	}

	if err := checkReadable(path); err != nil {
		return nil, err
	}

	format := cfg.OutputFormat()
	sinkFormat := audio.Format{
		Encoding: audio.EncodingS16NE,
		Rate:     format.Rate,
		Channels: format.Channels(),
	}
	if format.Bits == 8 {
		sinkFormat.Encoding = audio.EncodingU8
	}

	sink := pb.Output()
	if err := sink.Open(sinkFormat); err != nil {
		return nil, fmt.Errorf("open output: %w", err)
	}

	dec, err := p.lib.NewDecoder()
	if err != nil {
		return nil, err
	}
	if err := dec.Load(path); err != nil {
		dec.Free()
		return nil, fmt.Errorf("load %s: %w", path, err)
	}

	meta := metadata(path, dec)
	pb.SetTuple(meta)
	pb.SetParams(meta.Channels*1000, format.Rate, format.Channels())
	pb.SetReady()

	if err := dec.Start(format); err != nil {
		dec.Release()
		dec.Free()
		return nil, fmt.Errorf("start player: %w", err)
	}
	if err := dec.Configure(cfg.PlayerOptions()); err != nil {
		dec.End()
		dec.Release()
		dec.Free()
		return nil, fmt.Errorf("configure player: %w", err)
	}

	if paused {
		sink.Pause(true)
	}

	s := playback.NewSession(dec, sink, startMs, stopMs)

	p.mu.Lock()
	p.session = s
	p.options = cfg.PlayerOptions()
	p.mu.Unlock()

	log.Printf("🎵 Playing %q (%s, %d ms, %d channels) at %d Hz %d bit %s",
		meta.Title, meta.Format, meta.Duration, meta.Channels, format.Rate, format.Bits, cfg.Channels)
	s.Start()
	return s, nil
}

// Stop ends the active playback, if any. It does not wait.
func (p *InputPlugin) Stop() {
	if s := p.current(); s != nil {
		log.Printf("⏹️  Stop requested")
		s.Stop()
	}
}

// Pause holds or resumes the active playback.
func (p *InputPlugin) Pause(paused bool) {
	if s := p.current(); s != nil {
		s.Pause(paused)
	}
}

// Seek jumps the active playback to ms and returns once the jump was
// applied. It reports false if nothing is playing or playback stopped first.
func (p *InputPlugin) Seek(ms int) bool {
	s := p.current()
	if s == nil {
		return false
	}
	log.Printf("⏩ Seek to %d ms", ms)
	return s.Seek(ms)
}

// Session returns the active playback session, or nil.
func (p *InputPlugin) Session() *playback.Session {
	return p.current()
}

// Preferences returns the UI state for the current settings.
func (p *InputPlugin) Preferences() prefs.UIState {
	return prefs.FromConfig(p.Config())
}

// ApplyPreferences stores edited UI state. The pan amplitude takes effect
// on the playing module right away; other settings apply to the next Play.
func (p *InputPlugin) ApplyPreferences(ui prefs.UIState) error {
	cfg := ui.Config()
	if err := cfg.Validate(); err != nil {
		return err
	}

	p.mu.Lock()
	p.cfg = cfg
	s := p.session
	p.options.PanAmplitude = cfg.PanAmplitude
	opts := p.options
	p.mu.Unlock()

	var errs []error
	if s != nil {
		if _, err := s.SetOptions(opts); err != nil {
			errs = append(errs, fmt.Errorf("update pan amplitude: %w", err))
		}
	}

	if p.store != nil {
		if err := p.store.Save(cfg); err != nil {
			errs = append(errs, err)
		} else {
			log.Printf("💾 Saved settings to %s", p.store.Path())
		}
	}
	return errors.Join(errs...)
}

func (p *InputPlugin) current() *playback.Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.session
}

func metadata(path string, dec decoder.Decoder) decoder.TrackMetadata {
	info := dec.ModuleInfo()
	frame := dec.FrameInfo()
	return decoder.TrackMetadata{
		Path:     path,
		Title:    info.Name,
		Format:   info.Type,
		Duration: frame.TotalTime,
		Channels: info.Channels,
	}
}

func checkReadable(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %w", decoder.ErrFileNotFound, err)
	}
	return f.Close()
}
