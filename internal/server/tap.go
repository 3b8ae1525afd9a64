// ABOUTME: WebSocket tap server broadcasting captured audio to clients
// ABOUTME: Manages connections, codec negotiation, and timestamped chunk fan-out
package server

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/Resonate-Protocol/soundtap-go/internal/audio"
	"github.com/Resonate-Protocol/soundtap-go/internal/capture"
	"github.com/Resonate-Protocol/soundtap-go/internal/device"
	"github.com/Resonate-Protocol/soundtap-go/internal/discovery"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Protocol constants
	ProtocolVersion = 1

	// Message type for binary audio chunks
	AudioChunkMessageType = 1

	// chunkDuration is how much audio each broadcast chunk carries
	chunkDuration = 20 * time.Millisecond
)

// Source is the capture session surface the server consumes
type Source interface {
	GetInfo() audio.Info
	Device() device.Entry
	Loopback() bool
	Read(dst []byte) (int, float64)
	Buffered() int
	Dropped() uint64
	Packets() uint64
}

// Config holds server configuration
type Config struct {
	Port       int
	Name       string
	EnableMDNS bool
	Debug      bool
}

// Server broadcasts one capture session to any number of tap clients
type Server struct {
	config   Config
	serverID string
	source   Source

	upgrader websocket.Upgrader

	httpServer *http.Server
	mux        *http.ServeMux

	clients   map[string]*Client
	clientsMu sync.RWMutex

	// Codec negotiated from the capture format at startup
	codec   string
	encoder *OpusEncoder

	mdnsManager *discovery.Manager

	stopChan   chan struct{}
	stopOnce   sync.Once
	shutdownMu sync.RWMutex
	isShutdown bool
	wg         sync.WaitGroup
}

// Client represents a connected tap client
type Client struct {
	ID   string
	Name string
	Conn *websocket.Conn

	sendChan chan interface{}
}

// New creates a new server streaming from the given capture source
func New(config Config, source Source) *Server {
	return &Server{
		config:   config,
		serverID: uuid.New().String(),
		source:   source,
		mux:      http.NewServeMux(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// Local-network tool; non-browser clients carry no Origin.
				origin := r.Header.Get("Origin")
				if origin != "" {
					log.Printf("Warning: accepting WebSocket from origin: %s", origin)
				}
				return true
			},
		},
		clients:  make(map[string]*Client),
		stopChan: make(chan struct{}),
	}
}

// Start runs the server until Stop is called or the listener fails
func (s *Server) Start() error {
	log.Printf("Tap server starting: %s (ID: %s)", s.config.Name, s.serverID)

	info := s.source.GetInfo()
	if OpusSupported(info.SampleRate, info.Channels) {
		encoder, err := NewOpusEncoder(info.SampleRate, info.Channels)
		if err != nil {
			log.Printf("Opus unavailable, falling back to pcm: %v", err)
			s.codec = "pcm_f32le"
		} else {
			s.codec = "opus"
			s.encoder = encoder
		}
	} else {
		log.Printf("Capture format %dHz/%dch not Opus-compatible, using pcm", info.SampleRate, info.Channels)
		s.codec = "pcm_f32le"
	}

	if s.config.EnableMDNS {
		s.mdnsManager = discovery.NewManager(discovery.Config{
			ServiceName: s.config.Name,
			Port:        s.config.Port,
		})
		if err := s.mdnsManager.Advertise(); err != nil {
			log.Printf("Failed to start mDNS advertisement: %v", err)
		} else {
			log.Printf("mDNS advertisement started")
		}
	}

	s.mux.HandleFunc("/tap", s.handleWebSocket)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.pump()
	}()

	addr := fmt.Sprintf(":%d", s.config.Port)
	log.Printf("WebSocket server listening on %s", addr)

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.mux,
	}

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	var serverErr error
	select {
	case <-s.stopChan:
		log.Printf("Server shutting down...")
	case err := <-errChan:
		log.Printf("HTTP server error: %v", err)
		serverErr = err
	}

	s.shutdownMu.Lock()
	s.isShutdown = true
	s.shutdownMu.Unlock()

	if s.mdnsManager != nil {
		s.mdnsManager.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	s.wg.Wait()
	log.Printf("Server stopped cleanly")

	if serverErr != nil {
		return fmt.Errorf("HTTP server failed: %w", serverErr)
	}
	return nil
}

// Stop stops the server
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
}

// pump drains the capture source and broadcasts fixed-duration chunks
func (s *Server) pump() {
	info := s.source.GetInfo()
	frameBytes := info.SampleRate * info.BytesPerSample * int(chunkDuration.Milliseconds()) / 1000
	frameSeconds := chunkDuration.Seconds()

	ticker := time.NewTicker(chunkDuration / 2)
	defer ticker.Stop()

	statsTicker := time.NewTicker(time.Second)
	defer statsTicker.Stop()

	readBuf := make([]byte, frameBytes)
	var staged []byte
	var stagedTime float64

	for {
		select {
		case <-s.stopChan:
			return

		case <-ticker.C:
			for {
				n, ts := s.source.Read(readBuf)
				if n == 0 {
					break
				}
				if len(staged) == 0 {
					stagedTime = ts
				}
				staged = append(staged, readBuf[:n]...)
			}

			for len(staged) >= frameBytes {
				s.broadcastChunk(staged[:frameBytes], stagedTime)
				staged = staged[frameBytes:]
				stagedTime += frameSeconds
			}

		case <-statsTicker.C:
			s.broadcastMessage("stream/stats", StreamStats{
				Packets:  s.source.Packets(),
				Buffered: s.source.Buffered(),
				Dropped:  s.source.Dropped(),
			})
		}
	}
}

// broadcastChunk encodes one chunk and fans it out to all clients
func (s *Server) broadcastChunk(payload []byte, timestamp float64) {
	data := payload
	if s.encoder != nil {
		encoded, err := s.encoder.EncodeFloat32(audio.Float32FromBytes(payload))
		if err != nil {
			log.Printf("Opus encode error, dropping chunk: %v", err)
			return
		}
		data = encoded
	}

	chunk := CreateAudioChunk(int64(timestamp*capture.TicksPerSecond), data)

	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	for _, client := range s.clients {
		select {
		case client.sendChan <- chunk:
		default:
			// Slow client, drop the chunk rather than stall capture.
		}
	}
}

// broadcastMessage sends a JSON message to all clients
func (s *Server) broadcastMessage(msgType string, payload interface{}) {
	msg := Message{Type: msgType, Payload: payload}

	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	for _, client := range s.clients {
		select {
		case client.sendChan <- msg:
		default:
		}
	}
}

// handleWebSocket handles WebSocket connections
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}

	log.Printf("New WebSocket connection from %s", r.RemoteAddr)
	s.handleConnection(conn)
}

// handleConnection manages a client connection
func (s *Server) handleConnection(conn *websocket.Conn) {
	defer conn.Close()

	s.shutdownMu.RLock()
	if s.isShutdown {
		s.shutdownMu.RUnlock()
		log.Printf("Rejecting connection during shutdown")
		return
	}
	s.shutdownMu.RUnlock()

	hello, err := s.readHello(conn)
	if err != nil {
		log.Printf("Handshake failed: %v", err)
		return
	}

	client := &Client{
		ID:       hello.ClientID,
		Name:     hello.Name,
		Conn:     conn,
		sendChan: make(chan interface{}, 100),
	}

	s.clientsMu.Lock()
	if existing, exists := s.clients[client.ID]; exists {
		s.clientsMu.Unlock()
		log.Printf("Client ID %s already connected (name: %s), rejecting duplicate", client.ID, existing.Name)

		errorMsg := Message{
			Type: "server/error",
			Payload: map[string]string{
				"error":   "duplicate_client_id",
				"message": "Client ID already connected",
			},
		}
		if data, err := json.Marshal(errorMsg); err == nil {
			conn.WriteMessage(websocket.TextMessage, data)
		}
		return
	}
	s.clients[client.ID] = client
	s.clientsMu.Unlock()

	defer func() {
		s.clientsMu.Lock()
		delete(s.clients, client.ID)
		s.clientsMu.Unlock()
		close(client.sendChan)
		log.Printf("Client disconnected: %s", client.Name)
	}()

	if err := s.sendMessage(client, "server/hello", ServerHello{
		ServerID: s.serverID,
		Name:     s.config.Name,
		Version:  ProtocolVersion,
	}); err != nil {
		log.Printf("Error sending server hello: %v", err)
		return
	}

	info := s.source.GetInfo()
	if err := s.sendMessage(client, "stream/start", StreamStart{
		Codec:      s.codec,
		SampleRate: info.SampleRate,
		Channels:   info.Channels,
		Device:     device.DisplayName(s.source.Device()),
		Loopback:   s.source.Loopback(),
	}); err != nil {
		log.Printf("Error sending stream start: %v", err)
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.clientWriter(client)
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("Error unmarshaling message: %v", err)
			continue
		}
		if s.config.Debug {
			log.Printf("[DEBUG] Message from %s: %s", client.Name, msg.Type)
		}
	}
}

// readHello waits for the client/hello handshake message
func (s *Server) readHello(conn *websocket.Conn) (*ClientHello, error) {
	_, data, err := conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("error reading hello: %w", err)
	}

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("error unmarshaling message: %w", err)
	}
	if msg.Type != "client/hello" {
		return nil, fmt.Errorf("expected client/hello, got %s", msg.Type)
	}

	helloData, err := json.Marshal(msg.Payload)
	if err != nil {
		return nil, fmt.Errorf("error marshaling hello payload: %w", err)
	}

	var hello ClientHello
	if err := json.Unmarshal(helloData, &hello); err != nil {
		return nil, fmt.Errorf("error unmarshaling client hello: %w", err)
	}
	if hello.ClientID == "" {
		return nil, fmt.Errorf("client hello missing client_id")
	}
	if hello.Name == "" {
		return nil, fmt.Errorf("client hello missing name")
	}

	log.Printf("Client hello: %s (ID: %s)", hello.Name, hello.ClientID)
	return &hello, nil
}

// clientWriter sends queued messages to the client
func (s *Server) clientWriter(client *Client) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	const writeDeadline = 10 * time.Second

	for {
		select {
		case msg, ok := <-client.sendChan:
			if !ok {
				return
			}

			switch v := msg.(type) {
			case []byte:
				client.Conn.SetWriteDeadline(time.Now().Add(writeDeadline))
				if err := client.Conn.WriteMessage(websocket.BinaryMessage, v); err != nil {
					log.Printf("Error writing binary message: %v", err)
					return
				}
			default:
				data, err := json.Marshal(v)
				if err != nil {
					log.Printf("Error marshaling message: %v", err)
					continue
				}
				client.Conn.SetWriteDeadline(time.Now().Add(writeDeadline))
				if err := client.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
					log.Printf("Error writing text message: %v", err)
					return
				}
			}

		case <-ticker.C:
			if err := client.Conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(10*time.Second)); err != nil {
				return
			}
		}
	}
}

// sendMessage queues a JSON message for a client
func (s *Server) sendMessage(client *Client, msgType string, payload interface{}) error {
	select {
	case client.sendChan <- Message{Type: msgType, Payload: payload}:
		return nil
	default:
		return fmt.Errorf("client send buffer full")
	}
}

// ClientCount returns the number of connected clients
func (s *Server) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

// CreateAudioChunk creates a binary audio chunk message.
// Binary format: [message_type:1][timestamp:8][audio_data:N] where the
// timestamp is in 100ns ticks of the capture device clock.
func CreateAudioChunk(timestamp int64, audioData []byte) []byte {
	chunk := make([]byte, 1+8+len(audioData))
	chunk[0] = AudioChunkMessageType
	binary.BigEndian.PutUint64(chunk[1:9], uint64(timestamp))
	copy(chunk[9:], audioData)
	return chunk
}
