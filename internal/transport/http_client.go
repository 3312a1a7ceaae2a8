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

package transport

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const (
	streamPlayerPath = "/stream/player"
	sendPlayerPath   = "/send/player"
)

// ErrNotConnected is returned when sending before Connect.
var ErrNotConnected = errors.New("not connected to renderer")

// RendererClient talks to a remote renderer over HTTP/1.1. Frames to the
// renderer go out as individual POSTs; frames from the renderer arrive on
// one long-lived streaming response.
type RendererClient struct {
	rendererURL    string
	playerID       string
	sessionID      string
	sequence       uint32
	mutex          sync.Mutex
	connectTimeout time.Duration

	client      *http.Client
	isConnected bool

	ctx    context.Context
	cancel context.CancelFunc

	response *http.Response
	reader   *bufio.Reader
}

// NewRendererClient creates a client for the renderer at rendererURL
func NewRendererClient(rendererURL, playerID string) *RendererClient {
	ctx, cancel := context.WithCancel(context.Background())

	transport := &http.Transport{
		MaxIdleConns:        2,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     5 * time.Second,
		ForceAttemptHTTP2:   false,
	}

	return &RendererClient{
		rendererURL:    strings.TrimRight(rendererURL, "/"),
		playerID:       playerID,
		sessionID:      generateSessionID(),
		connectTimeout: 10 * time.Second,
		client: &http.Client{
			Timeout:   0, // the status stream stays open
			Transport: transport,
		},
		ctx:    ctx,
		cancel: cancel,
	}
}

// SetConnectTimeout sets the connection timeout
func (c *RendererClient) SetConnectTimeout(timeout time.Duration) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.connectTimeout = timeout
}

// Connect opens the status stream from the renderer
func (c *RendererClient) Connect() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.isConnected {
		return fmt.Errorf("already connected")
	}

	u, err := url.Parse(c.rendererURL)
	if err != nil || u.Host == "" {
		return fmt.Errorf("invalid renderer URL %q", c.rendererURL)
	}

	log.Printf("🔗 Connecting to renderer at %s", c.rendererURL)

	streamURL := c.endpoint(streamPlayerPath)
	req, err := http.NewRequestWithContext(c.ctx, http.MethodGet, streamURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/octet-stream")
	req.Header.Set("X-Player-ID", c.playerID)
	req.Header.Set("X-Session-ID", c.sessionID)

	responseChan := make(chan *http.Response, 1)
	errorChan := make(chan error, 1)

	go func() {
		resp, err := c.client.Do(req)
		if err != nil {
			errorChan <- err
			return
		}
		responseChan <- resp
	}()

	select {
	case resp := <-responseChan:
		if resp.StatusCode != http.StatusOK {
			if err := resp.Body.Close(); err != nil {
				log.Printf("⚠️  Failed to close response body: %v", err)
			}
			return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
		}
		c.response = resp
		c.reader = bufio.NewReader(resp.Body)

	case err := <-errorChan:
		return fmt.Errorf("failed to connect to renderer: %w", err)

	case <-time.After(c.connectTimeout):
		return fmt.Errorf("connection timeout")
	}

	c.isConnected = true
	log.Printf("✅ Connected to renderer (session: %s)", c.sessionID)
	return nil
}

// SendFrame posts one frame to the renderer
func (c *RendererClient) SendFrame(frameType FrameType, data []byte) error {
	c.mutex.Lock()
	if !c.isConnected {
		c.mutex.Unlock()
		return ErrNotConnected
	}
	c.sequence++
	seq := c.sequence
	c.mutex.Unlock()

	frame := NewFrame(
		frameType,
		c.sessionHash(),
		seq,
		uint64(time.Now().UnixMicro()), //nolint:gosec // positive wall clock
		data,
	)

	frameData, err := frame.Serialize()
	if err != nil {
		return fmt.Errorf("failed to serialize frame: %w", err)
	}

	req, err := http.NewRequestWithContext(c.ctx, http.MethodPost, c.endpoint(sendPlayerPath), bytes.NewReader(frameData))
	if err != nil {
		return fmt.Errorf("failed to create send request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("X-Player-ID", c.playerID)
	req.Header.Set("X-Session-ID", c.sessionID)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send frame: %w", err)
	}
	defer func() {
		if _, err := io.Copy(io.Discard, resp.Body); err != nil {
			log.Printf("⚠️  Failed to drain send response body: %v", err)
		}
		if closeErr := resp.Body.Close(); closeErr != nil {
			log.Printf("⚠️  Failed to close send response body: %v", closeErr)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("send frame failed with status: %d", resp.StatusCode)
	}

	if frame.Type != FrameTypePCM {
		log.Printf("📤 Sent frame type 0x%02x (%d bytes)", byte(frame.Type), len(frameData))
	}
	return nil
}

// StartReceiving reads renderer frames in a goroutine and hands each to
// frameHandler until the stream ends or Disconnect is called.
func (c *RendererClient) StartReceiving(frameHandler func(*Frame) error) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if !c.isConnected {
		return ErrNotConnected
	}

	go c.handleIncomingFrames(c.reader, frameHandler)
	return nil
}

func (c *RendererClient) handleIncomingFrames(reader io.Reader, frameHandler func(*Frame) error) {
	for {
		frame, err := ReadFrame(reader)
		if err != nil {
			switch {
			case c.ctx.Err() != nil:
			case errors.Is(err, io.EOF):
				log.Println("🔚 Renderer stream ended")
			default:
				log.Printf("❌ Failed to read renderer frame: %v", err)
			}
			return
		}

		if frameHandler != nil {
			if err := frameHandler(frame); err != nil {
				log.Printf("❌ Frame handler error: %v", err)
			}
		}
	}
}

// Disconnect closes the status stream and cancels in-flight requests
func (c *RendererClient) Disconnect() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if !c.isConnected {
		return
	}

	c.cancel()

	if c.response != nil {
		if err := c.response.Body.Close(); err != nil {
			log.Printf("⚠️  Failed to close response body: %v", err)
		}
	}

	if transport, ok := c.client.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}

	c.isConnected = false
	log.Println("👋 Disconnected from renderer")
}

// IsConnected returns whether the client is currently connected
func (c *RendererClient) IsConnected() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.isConnected
}

// SessionID returns the session identifier sent with every request
func (c *RendererClient) SessionID() string {
	return c.sessionID
}

func (c *RendererClient) endpoint(path string) string {
	return fmt.Sprintf("%s%s?player_id=%s", c.rendererURL, path, url.QueryEscape(c.playerID))
}

// sessionHash folds the session ID into the 32-bit header field
func (c *RendererClient) sessionHash() uint32 {
	hash := uint32(0)
	for _, b := range []byte(c.sessionID) {
		hash = hash*31 + uint32(b)
	}
	return hash
}

func generateSessionID() string {
	now := time.Now()
	random := rand.Int63n(1000000) //nolint:gosec // not security relevant
	return fmt.Sprintf("xmp-%d-%d-%d", now.Unix(), now.Nanosecond(), random)
}
