package rot2prog

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/w1xm/rot2prog_interface/rotator"
)

// fakeConn replays canned responses and records writes. Reads past the end
// of the canned data time out, like a silent serial port.
type fakeConn struct {
	reads  bytes.Buffer
	writes bytes.Buffer
	closed bool
}

func (c *fakeConn) Read(p []byte) (int, error) {
	if c.reads.Len() == 0 {
		return 0, ErrTimeout
	}
	return c.reads.Read(p)
}

func (c *fakeConn) Write(p []byte) (int, error) {
	return c.writes.Write(p)
}

func (c *fakeConn) Close() error {
	c.closed = true
	return nil
}

func (c *fakeConn) respond(frame [ResponseLen]byte) {
	c.reads.Write(frame[:])
}

func testConfig() Config {
	return Config{SettleDelay: time.Millisecond}
}

func open(t *testing.T, c *fakeConn, config Config) *Rotator {
	t.Helper()
	r, err := Open(c, config)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return r
}

func TestOpenLearnsPulse(t *testing.T) {
	c := &fakeConn{}
	c.respond(EncodeResponse(12.5, 30, 2, 2))
	r := open(t, c, testConfig())
	if got := r.Pulse(); got != 2 {
		t.Errorf("Pulse() = %d, want 2", got)
	}
	want := StatusCommand()
	if !bytes.Equal(c.writes.Bytes(), want[:]) {
		t.Errorf("opening wrote % x, want % x", c.writes.Bytes(), want)
	}
	if diff := cmp.Diff(r.LastStatus(), rotator.Status{AzPos: 12.5, ElPos: 30, Pulse: 2}); diff != "" {
		t.Errorf("unexpected status: got(-)/want(+):\n%s", diff)
	}
}

func TestOpenTimeout(t *testing.T) {
	c := &fakeConn{}
	if _, err := Open(c, testConfig()); !errors.Is(err, ErrTimeout) {
		t.Fatalf("Open on a silent line: got %v, want ErrTimeout", err)
	}
	if !c.closed {
		t.Error("failed open left the connection open")
	}
}

func TestStatusTracksPulse(t *testing.T) {
	c := &fakeConn{}
	c.respond(EncodeResponse(0, 0, 1, 1))
	r := open(t, c, testConfig())
	c.respond(EncodeResponse(45, 10, 4, 4))
	status, err := r.Status()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.Pulse != 4 || r.Pulse() != 4 {
		t.Errorf("pulse after status = %d (session %d), want 4", status.Pulse, r.Pulse())
	}
}

func TestSetPosition(t *testing.T) {
	c := &fakeConn{}
	c.respond(EncodeResponse(0, 0, 2, 2))
	r := open(t, c, testConfig())
	c.writes.Reset()
	if err := r.SetPosition(90, 90); err != nil {
		t.Fatalf("SetPosition: %v", err)
	}
	want, err := SetCommand(90, 90, 2)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(c.writes.Bytes(), want[:]) {
		t.Errorf("SetPosition wrote % x, want % x", c.writes.Bytes(), want)
	}
}

func TestSetPositionOutOfRange(t *testing.T) {
	c := &fakeConn{}
	c.respond(EncodeResponse(0, 0, 1, 1))
	r := open(t, c, testConfig())
	c.writes.Reset()
	var rerr *RangeError
	if err := r.SetPosition(400, 90); !errors.As(err, &rerr) {
		t.Fatalf("SetPosition(400, 90): got %v, want RangeError", err)
	}
	if c.writes.Len() != 0 {
		t.Errorf("rejected set still wrote % x", c.writes.Bytes())
	}
}

func TestSetPositionPulseUnknown(t *testing.T) {
	c := &fakeConn{}
	c.respond(EncodeResponse(0, 0, 0, 0))
	r := open(t, c, testConfig())
	c.writes.Reset()
	if err := r.SetPosition(90, 90); !errors.Is(err, ErrPulseUnknown) {
		t.Fatalf("got %v, want ErrPulseUnknown", err)
	}
	if c.writes.Len() != 0 {
		t.Errorf("rejected set still wrote % x", c.writes.Bytes())
	}
}

func TestStop(t *testing.T) {
	c := &fakeConn{}
	c.respond(EncodeResponse(10, 20, 1, 1))
	r := open(t, c, testConfig())
	c.writes.Reset()
	c.respond(EncodeResponse(12.3, 20, 1, 1))
	status, err := r.Stop()
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	want := StopCommand()
	if !bytes.Equal(c.writes.Bytes(), want[:]) {
		t.Errorf("Stop wrote % x, want % x", c.writes.Bytes(), want)
	}
	wantStatus := rotator.Status{AzPos: 12.3, ElPos: 20, Pulse: 1}
	if diff := cmp.Diff(status, wantStatus, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
		t.Errorf("unexpected status: got(-)/want(+):\n%s", diff)
	}
}

func TestBadFrameKeepsSessionUsable(t *testing.T) {
	c := &fakeConn{}
	c.respond(EncodeResponse(0, 0, 2, 2))
	r := open(t, c, testConfig())

	// A frame with mismatched pulse bytes surfaces as a ConsistencyError
	// and leaves the cached pulse alone.
	c.respond(EncodeResponse(0, 0, 1, 2))
	var cerr *ConsistencyError
	if _, err := r.Status(); !errors.As(err, &cerr) {
		t.Fatalf("got %v, want ConsistencyError", err)
	}
	if r.Pulse() != 2 {
		t.Errorf("bad frame changed pulse to %d", r.Pulse())
	}

	c.respond(EncodeResponse(5, 5, 4, 4))
	if _, err := r.Status(); err != nil {
		t.Fatalf("Status after bad frame: %v", err)
	}

	// A silent line reports a timeout, also without ending the session.
	if _, err := r.Status(); !errors.Is(err, ErrTimeout) {
		t.Fatalf("got %v, want ErrTimeout", err)
	}
	c.respond(EncodeResponse(6, 6, 4, 4))
	if _, err := r.Status(); err != nil {
		t.Fatalf("Status after timeout: %v", err)
	}
}

func TestClose(t *testing.T) {
	c := &fakeConn{}
	c.respond(EncodeResponse(0, 0, 1, 1))
	r := open(t, c, testConfig())
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !c.closed {
		t.Error("Close did not close the transport")
	}
	if _, err := r.Status(); !errors.Is(err, ErrClosed) {
		t.Errorf("Status after close: got %v, want ErrClosed", err)
	}
	if err := r.SetPosition(90, 90); !errors.Is(err, ErrClosed) {
		t.Errorf("SetPosition after close: got %v, want ErrClosed", err)
	}
	if err := r.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestStatusCallback(t *testing.T) {
	var got []rotator.Status
	c := &fakeConn{}
	c.respond(EncodeResponse(1, 2, 1, 1))
	config := testConfig()
	config.StatusCallback = func(status rotator.Status) {
		got = append(got, status)
	}
	r := open(t, c, config)
	c.respond(EncodeResponse(3, 4, 1, 1))
	if _, err := r.Status(); err != nil {
		t.Fatal(err)
	}
	want := []rotator.Status{
		{AzPos: 1, ElPos: 2, Pulse: 1},
		{AzPos: 3, ElPos: 4, Pulse: 1},
	}
	if diff := cmp.Diff(got, want); diff != "" {
		t.Errorf("unexpected callbacks: got(-)/want(+):\n%s", diff)
	}
}

func TestSetDevicePathKeepsSessionOnFailure(t *testing.T) {
	c := &fakeConn{}
	c.respond(EncodeResponse(0, 0, 1, 1))
	r := open(t, c, testConfig())
	var terr *TransportError
	if err := r.SetDevicePath("testdata/no-such-device"); !errors.As(err, &terr) {
		t.Fatalf("got %v, want TransportError", err)
	}
	if c.closed {
		t.Error("failed device swap closed the working connection")
	}
	if got := r.DevicePath(); got != "" {
		t.Errorf("DevicePath() = %q, want \"\"", got)
	}
	c.respond(EncodeResponse(7, 8, 1, 1))
	if _, err := r.Status(); err != nil {
		t.Errorf("Status after failed swap: %v", err)
	}
}

// watchConn serves one scripted response per exchange, in order; a nil
// entry leaves the read to time out. Writes fail once failAfter exchanges
// have begun.
type watchConn struct {
	mu        sync.Mutex
	script    [][]byte
	exchanges int
	failAfter int
	pending   []byte
}

func (c *watchConn) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.exchanges++
	if c.exchanges > c.failAfter {
		return 0, errors.New("port gone")
	}
	c.pending = nil
	if len(c.script) > 0 {
		c.pending = c.script[0]
		c.script = c.script[1:]
	}
	return len(p), nil
}

func (c *watchConn) Read(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.pending) == 0 {
		return 0, ErrTimeout
	}
	n := copy(p, c.pending)
	c.pending = c.pending[n:]
	return n, nil
}

func (c *watchConn) Close() error { return nil }

func TestWatch(t *testing.T) {
	initial := EncodeResponse(0, 0, 1, 1)
	bad := EncodeResponse(0, 0, 1, 2)
	good := EncodeResponse(30, 40, 1, 1)
	c := &watchConn{
		script:    [][]byte{initial[:], bad[:], nil, good[:]},
		failAfter: 4,
	}
	var got []rotator.Status
	config := testConfig()
	config.StatusCallback = func(status rotator.Status) {
		got = append(got, status)
	}
	r, err := Open(c, config)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	// The bad frame and the timeout are logged and polling continues; the
	// write failure ends the watch.
	err = r.Watch(context.Background(), time.Millisecond)
	var terr *TransportError
	if !errors.As(err, &terr) {
		t.Fatalf("Watch returned %v, want TransportError", err)
	}
	want := []rotator.Status{
		{AzPos: 0, ElPos: 0, Pulse: 1},
		{AzPos: 30, ElPos: 40, Pulse: 1},
	}
	if diff := cmp.Diff(got, want); diff != "" {
		t.Errorf("unexpected reports: got(-)/want(+):\n%s", diff)
	}
}

func TestOffset(t *testing.T) {
	c := &fakeConn{}
	c.respond(EncodeResponse(10, 20, 1, 1))
	var callbacks []rotator.Status
	config := testConfig()
	config.StatusCallback = func(status rotator.Status) {
		callbacks = append(callbacks, status)
	}
	o, err := OpenOffset(c, config, 5, -2)
	if err != nil {
		t.Fatalf("OpenOffset: %v", err)
	}

	// Reports gain the offsets, including through the callback.
	c.respond(EncodeResponse(10, 20, 1, 1))
	status, err := o.Status()
	if err != nil {
		t.Fatal(err)
	}
	want := rotator.Status{AzPos: 15, ElPos: 18, Pulse: 1}
	if diff := cmp.Diff(status, want); diff != "" {
		t.Errorf("unexpected status: got(-)/want(+):\n%s", diff)
	}
	if diff := cmp.Diff(callbacks, []rotator.Status{want, want}); diff != "" {
		t.Errorf("unexpected callbacks: got(-)/want(+):\n%s", diff)
	}

	// Requests lose them.
	c.writes.Reset()
	if err := o.SetPosition(90, 45); err != nil {
		t.Fatal(err)
	}
	wantCmd, err := SetCommand(85, 47, 1)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(c.writes.Bytes(), wantCmd[:]) {
		t.Errorf("SetPosition wrote % x, want % x", c.writes.Bytes(), wantCmd)
	}

	// Changing an offset re-drives the last requested true position.
	c.writes.Reset()
	if err := o.SetAzimuthOffset(10); err != nil {
		t.Fatal(err)
	}
	wantCmd, err = SetCommand(80, 47, 1)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(c.writes.Bytes(), wantCmd[:]) {
		t.Errorf("offset change wrote % x, want % x", c.writes.Bytes(), wantCmd)
	}
}

func TestOffsetNoResendBeforePosition(t *testing.T) {
	c := &fakeConn{}
	c.respond(EncodeResponse(0, 0, 1, 1))
	o, err := OpenOffset(c, testConfig(), 0, 0)
	if err != nil {
		t.Fatalf("OpenOffset: %v", err)
	}
	c.writes.Reset()
	if err := o.SetAzimuthOffset(3); err != nil {
		t.Fatal(err)
	}
	if c.writes.Len() != 0 {
		t.Errorf("offset change before any set wrote % x", c.writes.Bytes())
	}
}

func TestOffsetStopEndsPositionMode(t *testing.T) {
	c := &fakeConn{}
	c.respond(EncodeResponse(0, 0, 1, 1))
	o, err := OpenOffset(c, testConfig(), 5, 0)
	if err != nil {
		t.Fatalf("OpenOffset: %v", err)
	}
	if err := o.SetPosition(90, 45); err != nil {
		t.Fatal(err)
	}
	c.respond(EncodeResponse(40, 45, 1, 1))
	if _, err := o.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	// The mount is halted; changing an offset must not start it moving.
	c.writes.Reset()
	if err := o.SetAzimuthOffset(10); err != nil {
		t.Fatal(err)
	}
	if c.writes.Len() != 0 {
		t.Errorf("offset change after stop wrote % x", c.writes.Bytes())
	}

	// A new position request re-enters position mode.
	if err := o.SetPosition(30, 20); err != nil {
		t.Fatal(err)
	}
	c.writes.Reset()
	if err := o.SetElevationOffset(2); err != nil {
		t.Fatal(err)
	}
	want, err := SetCommand(20, 18, 1)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(c.writes.Bytes(), want[:]) {
		t.Errorf("offset change wrote % x, want % x", c.writes.Bytes(), want)
	}
}

func TestOffsetRejectedSetKeepsLastTarget(t *testing.T) {
	c := &fakeConn{}
	c.respond(EncodeResponse(0, 0, 1, 1))
	o, err := OpenOffset(c, testConfig(), 0, 0)
	if err != nil {
		t.Fatalf("OpenOffset: %v", err)
	}
	if err := o.SetPosition(90, 45); err != nil {
		t.Fatal(err)
	}
	var rerr *RangeError
	if err := o.SetPosition(500, 45); !errors.As(err, &rerr) {
		t.Fatalf("SetPosition(500, 45): got %v, want RangeError", err)
	}

	// The rejected target must not become the one an offset change
	// re-drives toward.
	c.writes.Reset()
	if err := o.SetAzimuthOffset(5); err != nil {
		t.Fatal(err)
	}
	want, err := SetCommand(85, 45, 1)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(c.writes.Bytes(), want[:]) {
		t.Errorf("offset change wrote % x, want % x", c.writes.Bytes(), want)
	}
}
