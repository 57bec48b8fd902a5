// Package dlp drives a DLP-IO8-G USB data acquisition module as a TTL
// trigger box. Each marker code is mapped to one of the eight I/O lines,
// which is raised and lowered again after a short pulse.
package dlp

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/fipslab/fips/internal/device"
)

const (
	cmdPing   = 0x27 // '
	cmdBinary = 0x5C // \
	pingReply = 'Q'

	// DefaultPulse is how long a line stays high.
	DefaultPulse = 5 * time.Millisecond
)

// ASCII commands that set lines 1-8 high and low.
var (
	setCmd   = []byte("12345678")
	unsetCmd = []byte("QWERTYUI")
)

// ErrNoResponse is returned when the box does not answer a ping.
var ErrNoResponse = errors.New("dlp-io8-g did not respond to ping")

// Box is an open DLP-IO8-G. It implements device.Marker.
type Box struct {
	mu    sync.Mutex
	port  io.ReadWriteCloser
	pulse time.Duration
	timer map[int]*time.Timer
}

// Open opens the serial device and checks the box answers.
func Open(path string, baudRate int) (*Box, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	if err := port.SetReadTimeout(time.Second); err != nil {
		port.Close()
		return nil, fmt.Errorf("setting read timeout on %s: %w", path, err)
	}

	b, err := New(port, DefaultPulse)
	if err != nil {
		port.Close()
		return nil, err
	}
	slog.Info("trigger box ready", "device", path, "baud_rate", baudRate)
	return b, nil
}

// New wraps an already open port, pings the box and switches it to binary
// mode.
func New(port io.ReadWriteCloser, pulse time.Duration) (*Box, error) {
	b := &Box{port: port, pulse: pulse, timer: make(map[int]*time.Timer)}

	if !b.Ping() {
		return nil, ErrNoResponse
	}
	if _, err := port.Write([]byte{cmdBinary}); err != nil {
		return nil, fmt.Errorf("switching to binary mode: %w", err)
	}
	return b, nil
}

// Ping reports whether the box answers.
func (b *Box) Ping() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := b.port.Write([]byte{cmdPing}); err != nil {
		return false
	}
	buf := make([]byte, 1)
	n, err := b.port.Read(buf)
	return err == nil && n == 1 && buf[0] == pingReply
}

// Line returns the 1-based I/O line a code is sent on.
func Line(code device.MarkerCode) (int, error) {
	if code < 1 || int(code) > len(setCmd) {
		return 0, fmt.Errorf("marker code %d has no line", code)
	}
	return int(code), nil
}

// Mark raises the line for code and lowers it after the pulse.
func (b *Box) Mark(code device.MarkerCode) error {
	line, err := Line(code)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := b.port.Write(setCmd[line-1 : line]); err != nil {
		return fmt.Errorf("setting line %d: %w", line, err)
	}

	if t, ok := b.timer[line]; ok {
		t.Stop()
	}
	b.timer[line] = time.AfterFunc(b.pulse, func() {
		b.unset(line)
	})
	return nil
}

func (b *Box) unset(line int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.timer, line)
	if b.port == nil {
		return
	}
	if _, err := b.port.Write(unsetCmd[line-1 : line]); err != nil {
		slog.Warn("failed to lower trigger line", "line", line, "error", err)
	}
}

// Close lowers every pending line and closes the port.
func (b *Box) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.port == nil {
		return nil
	}
	for line, t := range b.timer {
		t.Stop()
		if _, err := b.port.Write(unsetCmd[line-1 : line]); err != nil {
			slog.Warn("failed to lower trigger line", "line", line, "error", err)
		}
	}
	clear(b.timer)

	err := b.port.Close()
	b.port = nil
	return err
}
