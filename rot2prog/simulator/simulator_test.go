package simulator

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/w1xm/rot2prog_interface/rot2prog"
)

func TestSimulatedSession(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sim, conn := New(2)
	go sim.Run(ctx)

	r, err := rot2prog.Open(conn, rot2prog.Config{
		ReadTimeout: 5 * time.Second,
		SettleDelay: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()
	if got := r.Pulse(); got != 2 {
		t.Fatalf("Pulse() = %d, want 2", got)
	}
	status, err := r.Status()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.AzPos != 0 || status.ElPos != 0 {
		t.Fatalf("initial position = (%v, %v), want (0, 0)", status.AzPos, status.ElPos)
	}

	if err := r.SetPosition(5, 2.5); err != nil {
		t.Fatalf("SetPosition: %v", err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for {
		status, err = r.Status()
		if err != nil {
			t.Fatalf("Status: %v", err)
		}
		if math.Abs(status.AzPos-5) < 0.2 && math.Abs(status.ElPos-2.5) < 0.2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("never reached target; at (%v, %v)", status.AzPos, status.ElPos)
		}
		time.Sleep(10 * time.Millisecond)
	}

	if _, err := r.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestSimulatorStopsMotion(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sim, conn := New(1)
	go sim.Run(ctx)

	r, err := rot2prog.Open(conn, rot2prog.Config{SettleDelay: time.Millisecond})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	if err := r.SetPosition(300, 150); err != nil {
		t.Fatalf("SetPosition: %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	stopped, err := r.Stop()
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if stopped.AzPos >= 300 {
		t.Fatalf("mount teleported to azimuth %v", stopped.AzPos)
	}
	time.Sleep(100 * time.Millisecond)
	status, err := r.Status()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if math.Abs(status.AzPos-stopped.AzPos) > 0.3 {
		t.Errorf("mount kept moving after stop: %v then %v", stopped.AzPos, status.AzPos)
	}
}
