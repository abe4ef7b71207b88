// Package simulator emulates the controller side of the SPID protocol so
// the rest of the stack can run without hardware.
package simulator

import (
	"context"
	"fmt"
	"io"
	"log"
	"math"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/w1xm/rot2prog_interface/rot2prog"
)

const (
	// Slew rate in degrees/second, per axis
	slewRate = 30
	// Discrete simulation step size
	stepSize = 25 * time.Millisecond
)

// Simulator is one emulated controller. It answers status and stop frames
// with position reports and walks toward set targets at a constant rate,
// clamped to the mount's travel limits.
type Simulator struct {
	conn  io.ReadWriteCloser
	pulse byte

	mu                 sync.Mutex
	az, el             float64
	targetAz, targetEl float64
}

// New returns a simulator reporting the given pulse resolution, along with
// the connection a session should be opened over.
func New(pulse byte) (*Simulator, net.Conn) {
	a, b := net.Pipe()
	return &Simulator{conn: a, pulse: pulse}, b
}

// Run serves the protocol until ctx is canceled or the peer disconnects.
func (s *Simulator) Run(ctx context.Context) error {
	defer s.conn.Close()
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		t := time.NewTicker(stepSize)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-t.C:
			}
			s.step()
		}
	})
	g.Go(s.reader)
	return g.Wait()
}

func (s *Simulator) reader() error {
	buf := make([]byte, rot2prog.CommandLen)
	for {
		if _, err := io.ReadFull(s.conn, buf); err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("reading port: %w", err)
		}
		req, err := rot2prog.DecodeCommand(buf)
		if err != nil {
			log.Printf("parsing % x: %v", buf, err)
			continue
		}
		if err := s.handle(req); err != nil {
			return err
		}
	}
}

func (s *Simulator) handle(req rot2prog.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch req.Type {
	case rot2prog.CmdStatus:
		return s.reply()
	case rot2prog.CmdStop:
		s.targetAz, s.targetEl = s.az, s.el
		return s.reply()
	case rot2prog.CmdSet:
		if req.AzPulse == 0 || req.ElPulse == 0 {
			log.Printf("ignoring set with zero pulse resolution")
			return nil
		}
		s.targetAz = clamp(rot2prog.PulsesToDegrees(req.AzRaw, req.AzPulse), rot2prog.MinAz, rot2prog.MaxAz)
		s.targetEl = clamp(rot2prog.PulsesToDegrees(req.ElRaw, req.ElPulse), rot2prog.MinEl, rot2prog.MaxEl)
		// A real controller sends nothing back for a set.
	}
	return nil
}

// reply sends a position report. Callers hold s.mu.
func (s *Simulator) reply() error {
	resp := rot2prog.EncodeResponse(s.az, s.el, s.pulse, s.pulse)
	_, err := s.conn.Write(resp[:])
	return err
}

// step advances both axes toward their targets at the slew rate.
func (s *Simulator) step() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.az = approach(s.az, s.targetAz)
	s.el = approach(s.el, s.targetEl)
}

func approach(pos, target float64) float64 {
	max := slewRate * stepSize.Seconds()
	delta := target - pos
	if math.Abs(delta) <= max {
		return target
	}
	if delta < 0 {
		return pos - max
	}
	return pos + max
}

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// Position reports the simulated pointing.
func (s *Simulator) Position() (az, el float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.az, s.el
}
