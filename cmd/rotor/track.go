package main

import (
	"context"
	"log"
	"math"
	"time"

	"github.com/w1xm/rot2prog_interface/rot2prog"
	"github.com/w1xm/rot2prog_interface/rotator"
)

// Repoint threshold in degrees; the controller only resolves tenths.
const trackStep = 0.1

// startTrack begins driving the mount to follow the given equatorial
// coordinates. Callers hold s.mu.
func (s *Server) startTrack(ra, dec float64) {
	s.stopTrack()
	ctx, cancel := context.WithCancel(context.Background())
	s.trackCancel = cancel
	go s.trackLoop(ctx, ra, dec)
}

// stopTrack cancels any running track. Callers hold s.mu.
func (s *Server) stopTrack() {
	if s.trackCancel != nil {
		s.trackCancel()
		s.trackCancel = nil
	}
}

func (s *Server) trackLoop(ctx context.Context, ra, dec float64) {
	log.Printf("tracking ra %.3f dec %.3f", ra, dec)
	t := time.NewTicker(time.Second)
	defer t.Stop()
	lastAz, lastEl := math.Inf(1), math.Inf(1)
	for {
		select {
		case <-ctx.Done():
			log.Print("tracking stopped")
			return
		case <-t.C:
		}
		az, el := rotator.Horizontal(time.Now(), ra, dec, s.latitude, s.longitude)
		if el < rot2prog.MinEl {
			// Below the horizon; wait for the target to rise.
			continue
		}
		if math.Abs(az-lastAz) < trackStep && math.Abs(el-lastEl) < trackStep {
			continue
		}
		s.mu.Lock()
		if ctx.Err() != nil {
			// Canceled while waiting for the lock; a manual command
			// has taken over.
			s.mu.Unlock()
			return
		}
		err := s.r.SetPosition(az, el)
		s.mu.Unlock()
		if err != nil {
			log.Printf("tracking: %v", err)
			continue
		}
		lastAz, lastEl = az, el
	}
}
