// ABOUTME: Tap protocol message type definitions
// ABOUTME: Defines the JSON control messages exchanged with tap clients
package server

// Message is the top-level wrapper for all control messages
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// ClientHello is sent by clients to initiate the handshake
type ClientHello struct {
	ClientID string `json:"client_id"`
	Name     string `json:"name"`
	Version  int    `json:"version"`
}

// ServerHello is the server's response to client/hello
type ServerHello struct {
	ServerID string `json:"server_id"`
	Name     string `json:"name"`
	Version  int    `json:"version"`
}

// StreamStart announces the capture format before audio chunks flow
type StreamStart struct {
	Codec      string `json:"codec"` // "pcm_f32le" or "opus"
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`

	// Device is the human-readable name of the captured endpoint
	Device   string `json:"device"`
	Loopback bool   `json:"loopback"`
}

// StreamStats is pushed periodically so clients can watch capture health
type StreamStats struct {
	Packets  uint64 `json:"packets"`
	Buffered int    `json:"buffered"`
	Dropped  uint64 `json:"dropped"`
}
