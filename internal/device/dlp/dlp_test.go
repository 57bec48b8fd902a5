package dlp_test

import (
	"bytes"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fipslab/fips/internal/device"
	"github.com/fipslab/fips/internal/device/dlp"
)

type fakePort struct {
	mu      sync.Mutex
	written bytes.Buffer
	reply   byte
	closed  bool
}

func (p *fakePort) Read(b []byte) (int, error) {
	b[0] = p.reply
	return 1, nil
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.written.Write(b)
}

func (p *fakePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakePort) String() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.written.String()
}

func TestNew(t *testing.T) {
	port := &fakePort{reply: 'Q'}
	if _, err := dlp.New(port, time.Millisecond); err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if got := port.String(); got != "'\\" {
		t.Errorf("expected ping then binary command, got %q", got)
	}
}

func TestNewNoResponse(t *testing.T) {
	_, err := dlp.New(&fakePort{reply: 'x'}, time.Millisecond)
	if !errors.Is(err, dlp.ErrNoResponse) {
		t.Errorf("expected ErrNoResponse, got %v", err)
	}
}

func TestMarkPulse(t *testing.T) {
	port := &fakePort{reply: 'Q'}
	box, err := dlp.New(port, time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}

	if err := box.Mark(device.MarkCue); err != nil {
		t.Fatalf("Mark failed: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if port.String() == "'\\3E" {
			break
		}
		time.Sleep(time.Millisecond)
	}
	if got := port.String(); got != "'\\3E" {
		t.Errorf("expected line 3 raised and lowered, got %q", got)
	}
}

func TestCloseLowersPendingLines(t *testing.T) {
	port := &fakePort{reply: 'Q'}
	box, err := dlp.New(port, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if err := box.Mark(device.MarkTrialStart); err != nil {
		t.Fatal(err)
	}
	if err := box.Close(); err != nil {
		t.Fatal(err)
	}
	if got := port.String(); got != "'\\1Q" {
		t.Errorf("expected line 1 lowered on close, got %q", got)
	}
	if !port.closed {
		t.Error("port not closed")
	}
	if err := box.Close(); err != nil {
		t.Errorf("second Close returned %v", err)
	}
}

func TestLine(t *testing.T) {
	if _, err := dlp.Line(device.MarkerCode(9)); err == nil {
		t.Error("expected an error for code 9")
	}
	if l, err := dlp.Line(device.MarkTrialEnd); err != nil || l != 5 {
		t.Errorf("Line(trial end) = %d, %v", l, err)
	}
}
