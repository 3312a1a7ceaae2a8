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
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/loqalabs/loqa-xmp-go/internal/decoder"
)

// Control actions.
const (
	ActionPlay  = "play"
	ActionStop  = "stop"
	ActionPause = "pause"
	ActionSeek  = "seek"
)

// Now-playing states.
const (
	StatePlaying = "playing"
	StatePaused  = "paused"
	StateStopped = "stopped"
	StateEnded   = "ended"
	StateError   = "error"
)

// BroadcastSubject reaches every player.
const BroadcastSubject = "xmp.broadcast.control"

// ControlMessage is a remote command for a player
type ControlMessage struct {
	Action     string `json:"action"`                // play, stop, pause, seek
	URI        string `json:"uri,omitempty"`         // play: file path or file:// URI
	StartMs    int    `json:"start_ms,omitempty"`    // play: initial position
	StopMs     int    `json:"stop_ms,omitempty"`     // play: end position, <= 0 plays to the end
	Paused     bool   `json:"paused,omitempty"`      // play: start paused; pause: hold or resume
	PositionMs int    `json:"position_ms,omitempty"` // seek target
}

// NowPlayingMessage announces player state changes
type NowPlayingMessage struct {
	PlayerID   string `json:"player_id"`
	State      string `json:"state"`
	Path       string `json:"path,omitempty"`
	Title      string `json:"title,omitempty"`
	Format     string `json:"format,omitempty"`
	DurationMs int    `json:"duration_ms,omitempty"`
	PositionMs int    `json:"position_ms,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Player is the playback surface the controller drives.
type Player interface {
	Play(uri string, startMs, stopMs int, paused bool) (decoder.TrackMetadata, error)
	Stop()
	Pause(paused bool)
	Seek(ms int) bool
}

// PlayerNATSConnection interface for dependency injection
type PlayerNATSConnection interface {
	Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error)
	Publish(subject string, data []byte) error
	Close()
}

// PlayerNATSConnectionAdapter adapts *nats.Conn to PlayerNATSConnection interface
type PlayerNATSConnectionAdapter struct {
	conn *nats.Conn
}

func NewPlayerNATSConnectionAdapter(conn *nats.Conn) *PlayerNATSConnectionAdapter {
	return &PlayerNATSConnectionAdapter{conn: conn}
}

func (r *PlayerNATSConnectionAdapter) Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error) {
	return r.conn.Subscribe(subject, cb)
}

func (r *PlayerNATSConnectionAdapter) Publish(subject string, data []byte) error {
	return r.conn.Publish(subject, data)
}

func (r *PlayerNATSConnectionAdapter) Close() {
	r.conn.Close()
}

// Controller turns NATS control messages into player calls and publishes
// now-playing updates. Commands are queued and run one at a time by Run.
type Controller struct {
	natsConn PlayerNATSConnection
	playerID string
	player   Player
	commands chan ControlMessage
}

// NewController connects to NATS and creates a controller for player.
func NewController(natsURL, playerID string, player Player, queueCapacity int) (*Controller, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name("xmpplay-"+playerID),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", natsURL, err)
	}

	log.Printf("✅ Connected to NATS at %s", natsURL)
	return NewControllerWithConnection(NewPlayerNATSConnectionAdapter(nc), playerID, player, queueCapacity), nil
}

// NewControllerWithConnection creates a controller on an existing connection (for testing)
func NewControllerWithConnection(natsConn PlayerNATSConnection, playerID string, player Player, queueCapacity int) *Controller {
	return &Controller{
		natsConn: natsConn,
		playerID: playerID,
		player:   player,
		commands: make(chan ControlMessage, queueCapacity),
	}
}

// ControlSubject is the subject addressed to this player.
func (c *Controller) ControlSubject() string {
	return fmt.Sprintf("xmp.%s.control", c.playerID)
}

// NowPlayingSubject is where state updates are published.
func (c *Controller) NowPlayingSubject() string {
	return fmt.Sprintf("xmp.%s.nowplaying", c.playerID)
}

// Start subscribes to the player and broadcast control subjects.
func (c *Controller) Start() error {
	playerTopic := c.ControlSubject()
	if _, err := c.natsConn.Subscribe(playerTopic, c.handleControlMessage); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", playerTopic, err)
	}

	if _, err := c.natsConn.Subscribe(BroadcastSubject, c.handleControlMessage); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", BroadcastSubject, err)
	}

	log.Printf("🎧 Subscribed to control topics: %s, %s", playerTopic, BroadcastSubject)
	return nil
}

// handleControlMessage decodes a command and queues it for Run
func (c *Controller) handleControlMessage(msg *nats.Msg) {
	var cmd ControlMessage
	if err := json.Unmarshal(msg.Data, &cmd); err != nil {
		log.Printf("❌ Failed to unmarshal control message: %v", err)
		return
	}

	switch cmd.Action {
	case ActionPlay, ActionStop, ActionPause, ActionSeek:
	default:
		log.Printf("⚠️  Ignoring unknown control action %q on %s", cmd.Action, msg.Subject)
		return
	}

	log.Printf("📥 Received %s command on %s", cmd.Action, msg.Subject)

	select {
	case c.commands <- cmd:
	default:
		log.Printf("⚠️  Command queue full, dropping %s command", cmd.Action)
	}
}

// Run executes queued commands until ctx is done.
func (c *Controller) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-c.commands:
			c.execute(cmd)
		}
	}
}

func (c *Controller) execute(cmd ControlMessage) {
	switch cmd.Action {
	case ActionPlay:
		stopMs := cmd.StopMs
		if stopMs <= 0 {
			stopMs = -1
		}
		meta, err := c.player.Play(cmd.URI, cmd.StartMs, stopMs, cmd.Paused)
		if err != nil {
			log.Printf("❌ Remote play of %s failed: %v", cmd.URI, err)
			c.Announce(NowPlayingMessage{State: StateError, Path: cmd.URI, Error: err.Error()})
			return
		}
		state := StatePlaying
		if cmd.Paused {
			state = StatePaused
		}
		c.Announce(NowPlayingMessage{
			State:      state,
			Path:       meta.Path,
			Title:      meta.Title,
			Format:     meta.Format,
			DurationMs: meta.Duration,
			PositionMs: cmd.StartMs,
		})

	case ActionStop:
		c.player.Stop()
		c.Announce(NowPlayingMessage{State: StateStopped})

	case ActionPause:
		c.player.Pause(cmd.Paused)
		state := StatePlaying
		if cmd.Paused {
			state = StatePaused
		}
		c.Announce(NowPlayingMessage{State: state})

	case ActionSeek:
		if !c.player.Seek(cmd.PositionMs) {
			log.Printf("⚠️  Seek to %d ms ignored, nothing is playing", cmd.PositionMs)
			return
		}
		c.Announce(NowPlayingMessage{State: StatePlaying, PositionMs: cmd.PositionMs})
	}
}

// Announce publishes a now-playing update stamped with the player id.
func (c *Controller) Announce(update NowPlayingMessage) {
	update.PlayerID = c.playerID

	data, err := json.Marshal(update)
	if err != nil {
		log.Printf("❌ Failed to marshal now-playing message: %v", err)
		return
	}

	if err := c.natsConn.Publish(c.NowPlayingSubject(), data); err != nil {
		log.Printf("⚠️  Failed to publish now-playing update: %v", err)
		return
	}
	log.Printf("📤 Published %s to %s", update.State, c.NowPlayingSubject())
}

// Close closes the NATS connection
func (c *Controller) Close() {
	if c.natsConn != nil {
		c.natsConn.Close()
		log.Println("🔌 NATS connection closed")
	}
}
