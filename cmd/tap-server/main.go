// ABOUTME: Entry point for the soundtap WebSocket server
// ABOUTME: Captures a device and broadcasts it to tap clients
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/Resonate-Protocol/soundtap-go/internal/server"
	"github.com/Resonate-Protocol/soundtap-go/pkg/soundtap"
)

var (
	port      = flag.Int("port", 8937, "WebSocket server port")
	name      = flag.String("name", "", "Server friendly name (default: hostname-soundtap)")
	deviceIdx = flag.Int("device", 0, "Device index to capture (see soundtap -list)")
	audioFile = flag.String("file", "", "Feed capture from an MP3/FLAC file instead of hardware")
	logFile   = flag.String("log-file", "tap-server.log", "Log file path")
	debug     = flag.Bool("debug", false, "Enable debug logging")
	noMDNS    = flag.Bool("no-mdns", false, "Disable mDNS advertisement")
)

func main() {
	flag.Parse()

	f, err := os.OpenFile(*logFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer f.Close()

	log.SetOutput(io.MultiWriter(os.Stdout, f))

	serverName := *name
	if serverName == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		serverName = fmt.Sprintf("%s-soundtap", hostname)
	}

	log.Printf("Starting tap server: %s on port %d", serverName, *port)
	if *debug {
		log.Printf("Debug logging enabled")
	}
	log.Printf("Press Ctrl-C to stop")

	tap, err := soundtap.New(soundtap.Config{
		DeviceIndex: *deviceIdx,
		File:        *audioFile,
	})
	if err != nil {
		log.Fatalf("Failed to start capture: %v", err)
	}
	defer tap.Close()

	info := tap.Info()
	log.Printf("Capturing %s: %dHz, %d channels", tap.Device(), info.SampleRate, info.Channels)

	srv := server.New(server.Config{
		Port:       *port,
		Name:       serverName,
		EnableMDNS: !*noMDNS,
		Debug:      *debug,
	}, tap.Session())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			log.Printf("\nReceived %v signal, shutting down gracefully...", sig)
		case err := <-tap.Err():
			log.Printf("Capture failed: %v", err)
		}
		srv.Stop()
	}()

	if err := srv.Start(); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	log.Printf("Server stopped")
}
