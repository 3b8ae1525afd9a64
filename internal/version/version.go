// ABOUTME: Version constants for the soundtap project
// ABOUTME: Identifies the product in logs and protocol handshakes
package version

const (
	Product      = "soundtap-go"
	Manufacturer = "Resonate Protocol"
	Version      = "0.1.0"
)
