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

package nats

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/loqalabs/loqa-xmp-go/internal/decoder"
)

// MockPlayerNATSConnection routes published messages to local subscribers
type MockPlayerNATSConnection struct {
	mu          sync.RWMutex
	subscribers map[string][]nats.MsgHandler
	published   map[string][][]byte
	connected   bool
	errors      map[string]error
}

func NewMockPlayerNATSConnection() *MockPlayerNATSConnection {
	return &MockPlayerNATSConnection{
		subscribers: make(map[string][]nats.MsgHandler),
		published:   make(map[string][][]byte),
		connected:   true,
		errors:      make(map[string]error),
	}
}

func (m *MockPlayerNATSConnection) Subscribe(subject string, handler nats.MsgHandler) (*nats.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return nil, nats.ErrConnectionClosed
	}

	if err, exists := m.errors[subject]; exists {
		return nil, err
	}

	m.subscribers[subject] = append(m.subscribers[subject], handler)
	return &nats.Subscription{}, nil
}

func (m *MockPlayerNATSConnection) Publish(subject string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return nats.ErrConnectionClosed
	}
	m.published[subject] = append(m.published[subject], append([]byte(nil), data...))
	return nil
}

// Deliver hands data to every handler subscribed to subject
func (m *MockPlayerNATSConnection) Deliver(subject string, data []byte) {
	m.mu.RLock()
	handlers := m.subscribers[subject]
	m.mu.RUnlock()

	msg := &nats.Msg{Subject: subject, Data: data}
	for _, handler := range handlers {
		handler(msg)
	}
}

func (m *MockPlayerNATSConnection) Published(subject string) []NowPlayingMessage {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []NowPlayingMessage
	for _, data := range m.published[subject] {
		var msg NowPlayingMessage
		if err := json.Unmarshal(data, &msg); err == nil {
			out = append(out, msg)
		}
	}
	return out
}

func (m *MockPlayerNATSConnection) SetError(subject string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[subject] = err
}

func (m *MockPlayerNATSConnection) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
}

// recordingPlayer records the calls made by the controller
type recordingPlayer struct {
	mu      sync.Mutex
	calls   []string
	playErr error
	seekOK  bool
	started []ControlMessage
}

func (p *recordingPlayer) record(call string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, call)
}

func (p *recordingPlayer) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

func (p *recordingPlayer) Play(uri string, startMs, stopMs int, paused bool) (decoder.TrackMetadata, error) {
	p.record("play")
	p.mu.Lock()
	p.started = append(p.started, ControlMessage{URI: uri, StartMs: startMs, StopMs: stopMs, Paused: paused})
	p.mu.Unlock()
	if p.playErr != nil {
		return decoder.TrackMetadata{}, p.playErr
	}
	return decoder.TrackMetadata{Path: uri, Title: "enigma", Format: "Protracker M.K.", Duration: 180000, Channels: 4}, nil
}

func (p *recordingPlayer) Stop()             { p.record("stop") }
func (p *recordingPlayer) Pause(paused bool) { p.record("pause") }
func (p *recordingPlayer) Seek(ms int) bool {
	p.record("seek")
	return p.seekOK
}

func runController(t *testing.T, c *Controller) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(time.Millisecond)
	}
}

func send(t *testing.T, conn *MockPlayerNATSConnection, subject string, cmd ControlMessage) {
	t.Helper()
	data, err := json.Marshal(cmd)
	if err != nil {
		t.Fatalf("Failed to marshal command: %v", err)
	}
	conn.Deliver(subject, data)
}

func TestController_Subjects(t *testing.T) {
	c := NewControllerWithConnection(NewMockPlayerNATSConnection(), "kitchen", &recordingPlayer{}, 4)

	if got := c.ControlSubject(); got != "xmp.kitchen.control" {
		t.Errorf("ControlSubject = %s", got)
	}
	if got := c.NowPlayingSubject(); got != "xmp.kitchen.nowplaying" {
		t.Errorf("NowPlayingSubject = %s", got)
	}
}

func TestController_StartSubscribeErrors(t *testing.T) {
	tests := []struct {
		name    string
		subject string
	}{
		{"player_subject", "xmp.p1.control"},
		{"broadcast_subject", BroadcastSubject},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := NewMockPlayerNATSConnection()
			boom := errors.New("permission denied")
			conn.SetError(tt.subject, boom)

			c := NewControllerWithConnection(conn, "p1", &recordingPlayer{}, 4)
			if err := c.Start(); !errors.Is(err, boom) {
				t.Errorf("Start error = %v, want %v", err, boom)
			}
		})
	}
}

func TestController_PlayAnnouncesMetadata(t *testing.T) {
	conn := NewMockPlayerNATSConnection()
	player := &recordingPlayer{}
	c := NewControllerWithConnection(conn, "p1", player, 4)
	if err := c.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	runController(t, c)

	send(t, conn, c.ControlSubject(), ControlMessage{Action: ActionPlay, URI: "/music/song.mod", StartMs: 5000})

	waitFor(t, func() bool { return len(conn.Published(c.NowPlayingSubject())) == 1 })
	msg := conn.Published(c.NowPlayingSubject())[0]

	if msg.PlayerID != "p1" || msg.State != StatePlaying {
		t.Errorf("Unexpected announcement: %+v", msg)
	}
	if msg.Title != "enigma" || msg.DurationMs != 180000 || msg.PositionMs != 5000 {
		t.Errorf("Metadata not announced: %+v", msg)
	}

	player.mu.Lock()
	started := player.started[0]
	player.mu.Unlock()
	if started.StopMs != -1 {
		t.Errorf("Missing stop_ms should play to the end, got %d", started.StopMs)
	}
}

func TestController_PlayFailureAnnouncesError(t *testing.T) {
	conn := NewMockPlayerNATSConnection()
	player := &recordingPlayer{playErr: decoder.ErrFileNotFound}
	c := NewControllerWithConnection(conn, "p1", player, 4)
	if err := c.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	runController(t, c)

	send(t, conn, c.ControlSubject(), ControlMessage{Action: ActionPlay, URI: "/missing.mod"})

	waitFor(t, func() bool { return len(conn.Published(c.NowPlayingSubject())) == 1 })
	msg := conn.Published(c.NowPlayingSubject())[0]
	if msg.State != StateError || msg.Error == "" {
		t.Errorf("Expected error announcement, got %+v", msg)
	}
}

func TestController_CommandsRunInOrder(t *testing.T) {
	conn := NewMockPlayerNATSConnection()
	player := &recordingPlayer{seekOK: true}
	c := NewControllerWithConnection(conn, "p1", player, 8)
	if err := c.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	send(t, conn, c.ControlSubject(), ControlMessage{Action: ActionPlay, URI: "/a.xm"})
	send(t, conn, BroadcastSubject, ControlMessage{Action: ActionPause, Paused: true})
	send(t, conn, c.ControlSubject(), ControlMessage{Action: ActionSeek, PositionMs: 1000})
	send(t, conn, BroadcastSubject, ControlMessage{Action: ActionStop})
	runController(t, c)

	want := []string{"play", "pause", "seek", "stop"}
	waitFor(t, func() bool { return len(player.Calls()) == len(want) })
	for i, call := range player.Calls() {
		if call != want[i] {
			t.Errorf("Call %d = %s, want %s", i, call, want[i])
		}
	}

	waitFor(t, func() bool { return len(conn.Published(c.NowPlayingSubject())) == 4 })
	states := []string{StatePlaying, StatePaused, StatePlaying, StateStopped}
	for i, msg := range conn.Published(c.NowPlayingSubject()) {
		if msg.State != states[i] {
			t.Errorf("Announcement %d state = %s, want %s", i, msg.State, states[i])
		}
	}
}

func TestController_IgnoresBadMessages(t *testing.T) {
	conn := NewMockPlayerNATSConnection()
	c := NewControllerWithConnection(conn, "p1", &recordingPlayer{}, 4)
	if err := c.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	conn.Deliver(c.ControlSubject(), []byte("not-json"))
	send(t, conn, c.ControlSubject(), ControlMessage{Action: "rewind"})

	if n := len(c.commands); n != 0 {
		t.Errorf("Expected no queued commands, got %d", n)
	}
}

func TestController_QueueFullDrops(t *testing.T) {
	conn := NewMockPlayerNATSConnection()
	c := NewControllerWithConnection(conn, "p1", &recordingPlayer{}, 2)
	if err := c.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	for i := 0; i < 5; i++ {
		send(t, conn, c.ControlSubject(), ControlMessage{Action: ActionStop})
	}

	if n := len(c.commands); n != 2 {
		t.Errorf("Expected queue to hold 2 commands, got %d", n)
	}
}

func TestController_SeekWithoutPlaybackNotAnnounced(t *testing.T) {
	conn := NewMockPlayerNATSConnection()
	player := &recordingPlayer{seekOK: false}
	c := NewControllerWithConnection(conn, "p1", player, 4)

	c.execute(ControlMessage{Action: ActionSeek, PositionMs: 500})

	if len(conn.Published(c.NowPlayingSubject())) != 0 {
		t.Error("Failed seek must not be announced")
	}
}

func TestController_AnnounceAfterClose(t *testing.T) {
	conn := NewMockPlayerNATSConnection()
	c := NewControllerWithConnection(conn, "p1", &recordingPlayer{}, 4)
	c.Close()

	// Publishing on a closed connection is logged, not fatal.
	c.Announce(NowPlayingMessage{State: StateEnded})
	if len(conn.Published(c.NowPlayingSubject())) != 0 {
		t.Error("Nothing should be published after Close")
	}
}
