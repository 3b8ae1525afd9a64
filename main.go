// ABOUTME: Entry point for the soundtap capture tool
// ABOUTME: Parses CLI flags and runs a capture session with optional TUI
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Resonate-Protocol/soundtap-go/internal/ui"
	"github.com/Resonate-Protocol/soundtap-go/internal/version"
	"github.com/Resonate-Protocol/soundtap-go/pkg/soundtap"
)

var (
	list      = flag.Bool("list", false, "List capturable devices and exit")
	deviceIdx = flag.Int("device", 0, "Device index from -list order")
	audioFile = flag.String("file", "", "Feed capture from an MP3/FLAC file instead of hardware")
	outPath   = flag.String("out", "", "Write captured float32 PCM to this file")
	duration  = flag.Duration("duration", 0, "Stop after this long (default: run until interrupted)")
	logFile   = flag.String("log-file", "soundtap.log", "Log file path")
	noTUI     = flag.Bool("no-tui", false, "Disable TUI, use streaming logs instead")
)

func main() {
	flag.Parse()

	if *list {
		listDevices()
		return
	}

	useTUI := !*noTUI

	f, err := os.OpenFile(*logFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer func() { _ = f.Close() }()

	if useTUI {
		// TUI mode: log only to file
		log.SetOutput(f)
	} else {
		log.SetOutput(io.MultiWriter(os.Stdout, f))
	}

	log.Printf("Starting %s %s", version.Product, version.Version)

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

	var out *os.File
	if *outPath != "" {
		out, err = os.Create(*outPath)
		if err != nil {
			log.Fatalf("Failed to create output file: %v", err)
		}
		defer out.Close()
		log.Printf("Writing raw float32 PCM to %s", *outPath)
	}

	var monitor *ui.Monitor
	if useTUI {
		monitor = ui.NewMonitor()
		go func() {
			if err := monitor.Run(); err != nil {
				log.Printf("TUI error: %v", err)
			}
		}()

		running := true
		monitor.Send(ui.StatusMsg{
			Running:    &running,
			DeviceName: tap.Device(),
			Loopback:   tap.Loopback(),
			Codec:      "pcm_f32le",
			SampleRate: info.SampleRate,
			Channels:   info.Channels,
		})
	}

	stopChan := make(chan struct{})
	go drainLoop(tap, out, monitor, stopChan)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var timeout <-chan time.Time
	if *duration > 0 {
		timeout = time.After(*duration)
	}

	var tuiQuit <-chan struct{}
	if monitor != nil {
		tuiQuit = monitor.QuitChan()
	}

	select {
	case <-sigChan:
		log.Printf("Shutdown signal received")
	case <-tuiQuit:
		log.Printf("TUI quit requested")
	case <-timeout:
		log.Printf("Capture duration elapsed")
	case err := <-tap.Err():
		log.Printf("Capture failed: %v", err)
	}

	close(stopChan)
	if monitor != nil {
		monitor.Stop()
	}

	if err := tap.Close(); err != nil {
		log.Printf("Error closing tap: %v", err)
	}
	log.Printf("Capture stopped")
}

// drainLoop reads captured audio, optionally persisting it, and feeds
// stats to the TUI
func drainLoop(tap *soundtap.Tap, out *os.File, monitor *ui.Monitor, stopChan chan struct{}) {
	session := tap.Session()
	info := tap.Info()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	statsTicker := time.NewTicker(500 * time.Millisecond)
	defer statsTicker.Stop()

	buf := make([]byte, info.SampleRate*info.BytesPerSample/10)
	var lastTime float64

	for {
		select {
		case <-stopChan:
			return

		case <-ticker.C:
			for {
				n, ts := tap.Read(buf)
				if n == 0 {
					break
				}
				lastTime = ts + float64(n)/float64(info.SampleRate*info.BytesPerSample)
				if out != nil {
					if _, err := out.Write(buf[:n]); err != nil {
						log.Printf("Output write error: %v", err)
						return
					}
				}
			}

		case <-statsTicker.C:
			if monitor != nil {
				monitor.Send(ui.StatusMsg{
					Buffered: session.Buffered(),
					Capacity: info.SampleRate * info.BytesPerSample,
					Dropped:  session.Dropped(),
					Packets:  session.Packets(),
					LastTime: lastTime,
				})
			}
		}
	}
}

// listDevices prints the capturable endpoints
func listDevices() {
	devices, err := soundtap.ListDevices()
	if err != nil {
		log.Fatalf("Failed to enumerate devices: %v", err)
	}

	if len(devices) == 0 {
		fmt.Println("No capturable devices found")
		return
	}

	for i, d := range devices {
		marker := " "
		if d.Default {
			marker = "*"
		}
		fmt.Printf("%s %2d: %s\n", marker, i, d.Name)
	}
}
