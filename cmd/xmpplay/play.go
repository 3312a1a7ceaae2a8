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
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"sync"

	"golang.org/x/term"

	"github.com/loqalabs/loqa-xmp-go/internal/audio"
	"github.com/loqalabs/loqa-xmp-go/internal/decoder"
	"github.com/loqalabs/loqa-xmp-go/internal/nats"
	"github.com/loqalabs/loqa-xmp-go/internal/playback"
	"github.com/loqalabs/loqa-xmp-go/internal/plugin"
)

const seekStepMs = 5000

type playOptions struct {
	configPath string
	output     string
	wavPath    string
	httpURL    string
	natsURL    string
	playerID   string
	startMs    int
	stopMs     int
	paused     bool
}

func parsePlayFlags(args []string, stderr io.Writer) (playOptions, []string, error) {
	var opts playOptions
	fs := newFlagSet("play", stderr)
	fs.StringVar(&opts.configPath, "config", defaultConfigPath, "settings file")
	fs.StringVar(&opts.output, "output", outputPortAudio, "audio output: portaudio, oto, wav, http or null")
	fs.StringVar(&opts.wavPath, "wav", "out.wav", "file written by -output wav")
	fs.StringVar(&opts.httpURL, "http", "http://localhost:3000", "renderer URL used by -output http")
	fs.StringVar(&opts.natsURL, "nats", "", "NATS server URL for remote control (disabled when empty)")
	fs.StringVar(&opts.playerID, "id", defaultPlayerID, "player identifier for NATS subjects and the renderer")
	fs.IntVar(&opts.startMs, "start", 0, "start position in milliseconds")
	fs.IntVar(&opts.stopMs, "stop", playback.NoStop, "stop position in milliseconds, negative plays to the end")
	fs.BoolVar(&opts.paused, "paused", false, "start paused")

	if err := parseFlags(fs, args); err != nil {
		return opts, nil, err
	}
	if opts.natsURL == "" && fs.NArg() != 1 {
		fs.Usage()
		return opts, nil, fmt.Errorf("%w: play needs exactly one file", errUsage)
	}
	return opts, fs.Args(), nil
}

// host is the Playback the plugin reports to. It also serves as the
// remote-control player, reusing one sink across plays.
type host struct {
	plugin *plugin.InputPlugin
	sink   audio.Sink

	mu      sync.Mutex
	meta    decoder.TrackMetadata
	session *playback.Session
	changed chan struct{} // signalled when a new session starts
}

func newHost(p *plugin.InputPlugin, sink audio.Sink) *host {
	return &host{plugin: p, sink: sink, changed: make(chan struct{}, 1)}
}

func (h *host) Output() audio.Sink { return h.sink }

func (h *host) SetTuple(meta decoder.TrackMetadata) {
	h.mu.Lock()
	h.meta = meta
	h.mu.Unlock()
	log.Printf("📋 %s | %s | %s", meta.Title, meta.Format, formatDuration(meta.Duration))
}

func (h *host) SetParams(bitrate, rate, channels int) {
	log.Printf("🎚️  %d kbps nominal, %d Hz, %d channel(s)", bitrate/1000, rate, channels)
}

func (h *host) SetReady() {}

// Play implements nats.Player.
func (h *host) Play(uri string, startMs, stopMs int, paused bool) (decoder.TrackMetadata, error) {
	s, err := h.plugin.Play(h, uri, startMs, stopMs, paused)
	if err != nil {
		return decoder.TrackMetadata{}, err
	}

	h.mu.Lock()
	h.session = s
	meta := h.meta
	h.mu.Unlock()

	select {
	case h.changed <- struct{}{}:
	default:
	}
	return meta, nil
}

func (h *host) Stop()             { h.plugin.Stop() }
func (h *host) Pause(paused bool) { h.plugin.Pause(paused) }
func (h *host) Seek(ms int) bool  { return h.plugin.Seek(ms) }

func (h *host) WrittenTime() int { return h.sink.WrittenTime() }

func (h *host) current() (*playback.Session, decoder.TrackMetadata) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.session, h.meta
}

func runPlay(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	opts, files, err := parsePlayFlags(args, stderr)
	if err != nil {
		return err
	}

	sink, err := newSink(opts.output, opts.wavPath, opts.httpURL, opts.playerID)
	if err != nil {
		return err
	}
	defer func() {
		if err := sink.Close(); err != nil {
			log.Printf("⚠️  Failed to close output: %v", err)
		}
	}()

	p := openPlugin(opts.configPath)
	defer p.Cleanup()
	h := newHost(p, sink)

	var controller *nats.Controller
	if opts.natsURL != "" {
		controller, err = nats.NewController(opts.natsURL, opts.playerID, h, 16)
		if err != nil {
			return err
		}
		defer controller.Close()
		if err := controller.Start(); err != nil {
			return err
		}
		go controller.Run(ctx)
	}

	if len(files) > 0 {
		meta, err := h.Play(files[0], opts.startMs, opts.stopMs, opts.paused)
		if err != nil {
			return fmt.Errorf("cannot play %s: %w", files[0], err)
		}
		if controller != nil {
			controller.Announce(nats.NowPlayingMessage{
				State:      nats.StatePlaying,
				Path:       meta.Path,
				Title:      meta.Title,
				Format:     meta.Format,
				DurationMs: meta.Duration,
				PositionMs: opts.startMs,
			})
		}
	}

	quit := make(chan struct{})
	if restore := startKeyControl(h, opts.paused, quit); restore != nil {
		defer restore()
	}

	return waitForPlayback(ctx, h, controller, quit, stdout)
}

// waitForPlayback returns when playback ends, unless a controller keeps
// the player alive for further commands; then only a signal or the quit
// key ends it.
func waitForPlayback(ctx context.Context, h *host, controller *nats.Controller, quit <-chan struct{}, stdout io.Writer) error {
	for {
		s, meta := h.current()
		var done <-chan struct{}
		if s != nil {
			done = s.Done()
		}

		select {
		case <-ctx.Done():
			log.Println("🛑 Interrupted")
			h.Stop()
			return nil

		case <-quit:
			h.Stop()
			return nil

		case <-h.changed:

		case <-done:
			if err := s.Wait(); err != nil {
				if controller == nil {
					return err
				}
				controller.Announce(nats.NowPlayingMessage{State: nats.StateError, Path: meta.Path, Error: err.Error()})
			} else if controller != nil {
				controller.Announce(nats.NowPlayingMessage{State: nats.StateEnded, Path: meta.Path, Title: meta.Title})
			}
			fmt.Fprintf(stdout, "⏹️  Finished %s at %s\n", displayName(meta), formatDuration(h.sink.WrittenTime()))
			if controller == nil {
				return nil
			}
			h.mu.Lock()
			if h.session == s {
				h.session = nil
			}
			h.mu.Unlock()
		}
	}
}

// startKeyControl puts an interactive stdin into raw mode and handles
// single-key commands. It returns nil when stdin is not a terminal.
func startKeyControl(h *host, paused bool, quit chan<- struct{}) func() {
	fd := int(os.Stdin.Fd()) //nolint:gosec // file descriptors fit in int
	if !term.IsTerminal(fd) {
		return nil
	}

	state, err := term.MakeRaw(fd)
	if err != nil {
		log.Printf("⚠️  Key control unavailable: %v", err)
		return nil
	}

	logOutput := log.Writer()
	log.SetOutput(crlfWriter{logOutput})
	log.Println("⌨️  space: pause/resume, ←/→: seek 5s, q: quit")

	go readKeys(os.Stdin, h, paused, quit)

	return func() {
		log.SetOutput(logOutput)
		if err := term.Restore(fd, state); err != nil {
			log.Printf("⚠️  Failed to restore terminal: %v", err)
		}
	}
}

// keyTarget is what the single-key commands drive.
type keyTarget interface {
	Pause(paused bool)
	Seek(ms int) bool
	WrittenTime() int
}

// readKeys handles key presses until r fails or q is pressed. paused is
// the state playback started in.
func readKeys(r io.Reader, t keyTarget, paused bool, quit chan<- struct{}) {
	buf := make([]byte, 16)
	for {
		n, err := r.Read(buf)
		if err != nil {
			return
		}
		for _, key := range parseKeys(buf[:n]) {
			switch key {
			case keyPause:
				paused = !paused
				t.Pause(paused)
				if paused {
					log.Println("⏸️  Paused")
				} else {
					log.Println("▶️  Resumed")
				}
			case keySeekBack, keySeekForward:
				delta := seekStepMs
				if key == keySeekBack {
					delta = -seekStepMs
				}
				t.Seek(max(t.WrittenTime()+delta, 0))
			case keyQuit:
				close(quit)
				return
			}
		}
	}
}

func displayName(meta decoder.TrackMetadata) string {
	if meta.Title != "" {
		return meta.Title
	}
	return meta.Path
}

func formatDuration(ms int) string {
	if ms < 0 {
		ms = 0
	}
	return fmt.Sprintf("%d:%02d", ms/60000, ms/1000%60)
}
