// ABOUTME: High-level soundtap library API
// ABOUTME: Provides a simple Tap API for capturing live system audio
// Package soundtap provides a high-level API for live audio capture.
//
// A Tap captures one device (microphone or loopback of an output) into a
// one-second ring buffer with device-clock timestamps:
//   - Tap: open a device and read timestamped PCM from it
//   - ListDevices: enumerate capturable endpoints
//
// For lower-level control, see the internal capture, device, and backend
// packages.
//
// Example:
//
//	devices, err := soundtap.ListDevices()
//	tap, err := soundtap.New(soundtap.Config{DeviceIndex: 0})
//	defer tap.Close()
//
//	buf := make([]byte, 4096)
//	n, timestamp := tap.Read(buf)
package soundtap
